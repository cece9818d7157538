package ward

import (
	"context"
	"errors"
	"time"
)

// AuditErrorCode defines a public type used by ward APIs.
//
// AuditErrorCode instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise. Codes name the
// precise internal reason for a rejection; the error returned to the caller
// stays deliberately coarse.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrEmailTaken         AuditErrorCode = "email_taken"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrTokenInvalid       AuditErrorCode = "token_invalid"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenReuse         AuditErrorCode = "token_reuse"
	auditErrIdentityConflict   AuditErrorCode = "identity_conflict"
	auditErrProviderUnknown    AuditErrorCode = "provider_unknown"
	auditErrLastFactor         AuditErrorCode = "last_auth_factor"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrSecondFactorState  AuditErrorCode = "second_factor_state"
	auditErrContention         AuditErrorCode = "store_contention"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit hands one event to the async dispatcher. IP and client id come
// from the request context; metadataBuilder runs only when a dispatcher is
// attached, so callers can build maps lazily on hot paths.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		AccountID: accountID,
		IP:        ClientIPFromContext(ctx),
		ClientID:  ClientIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrEmailTaken):
		return auditErrEmailTaken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenReused):
		return auditErrTokenReuse
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrTokenInvalid
	case errors.Is(err, ErrIdentityLinkedElsewhere),
		errors.Is(err, ErrProviderAlreadyLinked):
		return auditErrIdentityConflict
	case errors.Is(err, ErrProviderUnknown):
		return auditErrProviderUnknown
	case errors.Is(err, ErrLastAuthFactor):
		return auditErrLastFactor
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrSecondFactorNotEnabled),
		errors.Is(err, ErrSecondFactorNotPending),
		errors.Is(err, ErrSecondFactorAlreadyEnabled):
		return auditErrSecondFactorState
	case errors.Is(err, ErrStoreContention):
		return auditErrContention
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrInvalid):
		return auditErrInvalidInput
	default:
		return auditErrInternal
	}
}
