package refresh

import "github.com/google/uuid"

// TokenRecord defines a public type used by ward APIs.
//
// TokenRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenRecord struct {
	ID        uuid.UUID
	AccountID string

	// ChainID is the ID of the chain's root record. The root points at itself.
	ChainID uuid.UUID

	// ReplacedBy is the record minted by the rotation that retired this one.
	// The zero UUID marks the chain tail.
	ReplacedBy uuid.UUID

	IssuedAt  int64
	ExpiresAt int64

	Revoked    bool
	SecretHash [32]byte
}

// Active reports whether the record is unrevoked and unexpired at nowUnix.
func (r *TokenRecord) Active(nowUnix int64) bool {
	return r != nil && !r.Revoked && r.ExpiresAt > nowUnix
}
