package ward

import (
	"context"
	"fmt"

	"github.com/wardauth/ward/internal"
)

// RegenerateBackupCodes describes the regeneratebackupcodes operation and its observable behavior.
//
// RegenerateBackupCodes replaces the account's unused backup codes with a
// fresh set after proof of the current password. The new codes are returned
// in plain text exactly once; every previously issued code stops working in
// the same update.
//
// RegenerateBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// RegenerateBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, pass string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	acct, err := e.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.SecondFactor != SecondFactorEnabled {
		return nil, ErrSecondFactorNotEnabled
	}

	if pass == "" || acct.PasswordHash == "" || !e.passwordHash.Verify(pass, acct.PasswordHash) {
		e.emitAudit(ctx, AuditBackupCodesIssued, false, acct.ID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	plain, records, err := e.newBackupCodes(acct.ID)
	if err != nil {
		return nil, err
	}

	updated, err := e.applyAccountUpdate(ctx, acct, func(a *Account) {
		if a.SecondFactor != SecondFactorEnabled {
			return
		}
		a.BackupCodes = records
	})
	if err != nil {
		return nil, err
	}
	if updated.SecondFactor != SecondFactorEnabled {
		return nil, ErrSecondFactorNotEnabled
	}

	e.emitAudit(ctx, AuditBackupCodesIssued, true, acct.ID, nil, func() map[string]string {
		return map[string]string{"count": fmt.Sprintf("%d", len(plain))}
	})

	return plain, nil
}

// newBackupCodes mints one configured set of codes for an account. Only the
// account-bound hashes are ever stored; the formatted plain codes exist for
// the single response that delivers them.
func (e *Engine) newBackupCodes(accountID string) ([]string, []BackupCodeRecord, error) {
	count := e.config.SecondFactor.BackupCodeCount
	length := e.config.SecondFactor.BackupCodeLength

	plain := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		formatted := internal.FormatBackupCode(code)
		plain = append(plain, formatted)
		records = append(records, BackupCodeRecord{
			Hash: internal.BackupCodeHash(accountID, internal.CanonicalizeBackupCode(formatted)),
		})
	}
	return plain, records, nil
}
