package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wardauth/ward"
)

const uniqueViolation = "23505"

const (
	constraintAccountsEmail    = "ward_accounts_email_key"
	constraintIdentitySubject  = "ward_identities_subject"
	constraintIdentityProvider = "ward_identities_account_provider"
)

// Store defines a public type used by ward APIs.
//
// Store instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type Store struct {
	db *sqlx.DB
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore may return an error when input validation, dependency calls, or security checks fail.
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// EnsureSchema creates the account and identity tables if they do not exist
// (idempotent). This is a convenience for early development; prefer
// migrations in production.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS ward_accounts (
  id TEXT PRIMARY KEY,
  email CITEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'user',
  email_verified BOOLEAN NOT NULL DEFAULT false,
  failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  second_factor SMALLINT NOT NULL DEFAULT 0,
  second_factor_secret BYTEA,
  second_factor_last_step BIGINT NOT NULL DEFAULT 0,
  backup_code_hashes BYTEA,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_login_at TIMESTAMPTZ,
  version BIGINT NOT NULL DEFAULT 1,
  CONSTRAINT ward_accounts_email_key UNIQUE (email)
);
CREATE TABLE IF NOT EXISTS ward_identities (
  provider TEXT NOT NULL,
  subject_id TEXT NOT NULL,
  account_id TEXT NOT NULL REFERENCES ward_accounts(id) ON DELETE CASCADE,
  linked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT ward_identities_subject UNIQUE (provider, subject_id),
  CONSTRAINT ward_identities_account_provider UNIQUE (account_id, provider)
);
CREATE INDEX IF NOT EXISTS idx_ward_identities_account ON ward_identities(account_id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

type accountRow struct {
	ID                   string     `db:"id"`
	Email                string     `db:"email"`
	PasswordHash         string     `db:"password_hash"`
	Role                 string     `db:"role"`
	EmailVerified        bool       `db:"email_verified"`
	FailedAttempts       int        `db:"failed_attempts"`
	LockedUntil          *time.Time `db:"locked_until"`
	SecondFactor         int16      `db:"second_factor"`
	SecondFactorSecret   []byte     `db:"second_factor_secret"`
	SecondFactorLastStep int64      `db:"second_factor_last_step"`
	BackupCodeHashes     []byte     `db:"backup_code_hashes"`
	CreatedAt            time.Time  `db:"created_at"`
	LastLogin            *time.Time `db:"last_login_at"`
	Version              int64      `db:"version"`
}

const accountColumns = `id, email, password_hash, role, email_verified,
	failed_attempts, locked_until, second_factor, second_factor_secret,
	second_factor_last_step, backup_code_hashes, created_at, last_login_at,
	version`

func (row *accountRow) toAccount() (*ward.Account, error) {
	codes, err := unpackBackupCodes(row.BackupCodeHashes)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", row.ID, err)
	}

	acct := &ward.Account{
		ID:                   row.ID,
		Email:                row.Email,
		PasswordHash:         row.PasswordHash,
		Role:                 ward.Role(row.Role),
		EmailVerified:        row.EmailVerified,
		FailedAttempts:       row.FailedAttempts,
		SecondFactor:         ward.SecondFactorState(row.SecondFactor),
		SecondFactorLastStep: row.SecondFactorLastStep,
		BackupCodes:          codes,
		CreatedAt:            row.CreatedAt.UTC(),
		Version:              row.Version,
	}
	if row.LockedUntil != nil {
		lu := row.LockedUntil.UTC()
		acct.LockedUntil = &lu
	}
	if row.LastLogin != nil {
		ll := row.LastLogin.UTC()
		acct.LastLogin = &ll
	}
	if len(row.SecondFactorSecret) > 0 {
		acct.SecondFactorSecret = append([]byte(nil), row.SecondFactorSecret...)
	}
	return acct, nil
}

func accountParams(acct *ward.Account) map[string]any {
	var lockedUntil *time.Time
	if acct.LockedUntil != nil {
		lu := acct.LockedUntil.UTC()
		lockedUntil = &lu
	}
	var lastLogin *time.Time
	if acct.LastLogin != nil {
		ll := acct.LastLogin.UTC()
		lastLogin = &ll
	}

	return map[string]any{
		"id":                      acct.ID,
		"email":                   ward.NormalizeEmail(acct.Email),
		"password_hash":           acct.PasswordHash,
		"role":                    string(acct.Role),
		"email_verified":          acct.EmailVerified,
		"failed_attempts":         acct.FailedAttempts,
		"locked_until":            lockedUntil,
		"second_factor":           int16(acct.SecondFactor),
		"second_factor_secret":    acct.SecondFactorSecret,
		"second_factor_last_step": acct.SecondFactorLastStep,
		"backup_code_hashes":      packBackupCodes(acct.BackupCodes),
		"created_at":              acct.CreatedAt.UTC(),
		"last_login_at":           lastLogin,
	}
}

// FindByEmail implements [ward.AccountStore]. Matching is case-insensitive
// through the CITEXT column.
func (s *Store) FindByEmail(ctx context.Context, email string) (*ward.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM ward_accounts WHERE email = $1`

	var row accountRow
	if err := s.db.GetContext(ctx, &row, q, ward.NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toAccount()
}

// FindByID implements [ward.AccountStore].
func (s *Store) FindByID(ctx context.Context, id string) (*ward.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM ward_accounts WHERE id = $1`

	var row accountRow
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toAccount()
}

// Create implements [ward.AccountStore]. The inserted row starts at
// version 1; the caller's struct is updated to match.
func (s *Store) Create(ctx context.Context, account *ward.Account) error {
	const q = `INSERT INTO ward_accounts
		(id, email, password_hash, role, email_verified, failed_attempts,
		 locked_until, second_factor, second_factor_secret,
		 second_factor_last_step, backup_code_hashes, created_at,
		 last_login_at, version)
	VALUES
		(:id, :email, :password_hash, :role, :email_verified, :failed_attempts,
		 :locked_until, :second_factor, :second_factor_secret,
		 :second_factor_last_step, :backup_code_hashes, :created_at,
		 :last_login_at, 1)`

	if _, err := s.db.NamedExecContext(ctx, q, accountParams(account)); err != nil {
		if isUniqueViolation(err, constraintAccountsEmail) {
			return ward.ErrEmailTaken
		}
		return err
	}
	account.Version = 1
	return nil
}

// CompareAndUpdate implements [ward.AccountStore]. The mutation runs in Go
// against a freshly loaded copy, and the write-back carries
// WHERE version = expected; a row another writer already bumped simply
// matches nothing.
func (s *Store) CompareAndUpdate(ctx context.Context, id string, expectedVersion int64, mutate func(*ward.Account)) (bool, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil || current.Version != expectedVersion {
		return false, nil
	}

	next := current.Clone()
	mutate(next)
	next.ID = current.ID

	const q = `UPDATE ward_accounts SET
		email = :email,
		password_hash = :password_hash,
		role = :role,
		email_verified = :email_verified,
		failed_attempts = :failed_attempts,
		locked_until = :locked_until,
		second_factor = :second_factor,
		second_factor_secret = :second_factor_secret,
		second_factor_last_step = :second_factor_last_step,
		backup_code_hashes = :backup_code_hashes,
		last_login_at = :last_login_at,
		version = :expected_version + 1
	WHERE id = :id AND version = :expected_version`

	params := accountParams(next)
	params["expected_version"] = expectedVersion

	res, err := s.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

type identityRow struct {
	Provider  string    `db:"provider"`
	SubjectID string    `db:"subject_id"`
	AccountID string    `db:"account_id"`
	LinkedAt  time.Time `db:"linked_at"`
}

func (row *identityRow) toIdentity() ward.LinkedIdentity {
	return ward.LinkedIdentity{
		Provider:  row.Provider,
		SubjectID: row.SubjectID,
		AccountID: row.AccountID,
		LinkedAt:  row.LinkedAt.UTC(),
	}
}

// FindIdentity implements [ward.AccountStore].
func (s *Store) FindIdentity(ctx context.Context, provider, subjectID string) (*ward.LinkedIdentity, error) {
	const q = `SELECT provider, subject_id, account_id, linked_at
		FROM ward_identities WHERE provider = $1 AND subject_id = $2`

	var row identityRow
	if err := s.db.GetContext(ctx, &row, q, provider, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	identity := row.toIdentity()
	return &identity, nil
}

// IdentitiesForAccount implements [ward.AccountStore].
func (s *Store) IdentitiesForAccount(ctx context.Context, accountID string) ([]ward.LinkedIdentity, error) {
	const q = `SELECT provider, subject_id, account_id, linked_at
		FROM ward_identities WHERE account_id = $1
		ORDER BY linked_at, provider`

	var rows []identityRow
	if err := s.db.SelectContext(ctx, &rows, q, accountID); err != nil {
		return nil, err
	}

	out := make([]ward.LinkedIdentity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toIdentity())
	}
	return out, nil
}

// LinkIdentity implements [ward.AccountStore]. The two uniqueness rules map
// onto named constraints, so the database decides which sentinel applies.
func (s *Store) LinkIdentity(ctx context.Context, identity ward.LinkedIdentity) error {
	const q = `INSERT INTO ward_identities (provider, subject_id, account_id, linked_at)
		VALUES ($1, $2, $3, $4)`

	linkedAt := identity.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, q, identity.Provider, identity.SubjectID, identity.AccountID, linkedAt.UTC())
	if err != nil {
		if isUniqueViolation(err, constraintIdentitySubject) {
			return ward.ErrIdentityLinkedElsewhere
		}
		if isUniqueViolation(err, constraintIdentityProvider) {
			return ward.ErrProviderAlreadyLinked
		}
		return err
	}
	return nil
}

// UnlinkIdentity implements [ward.AccountStore].
func (s *Store) UnlinkIdentity(ctx context.Context, accountID, provider string) (bool, error) {
	const q = `DELETE FROM ward_identities WHERE account_id = $1 AND provider = $2`

	res, err := s.db.ExecContext(ctx, q, accountID, provider)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Ping reports backend reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
}

const backupCodeHashSize = 32

// packBackupCodes flattens unused backup-code hashes into one BYTEA blob,
// 32 bytes per code.
func packBackupCodes(records []ward.BackupCodeRecord) []byte {
	if len(records) == 0 {
		return nil
	}
	out := make([]byte, 0, len(records)*backupCodeHashSize)
	for i := range records {
		out = append(out, records[i].Hash[:]...)
	}
	return out
}

func unpackBackupCodes(raw []byte) ([]ward.BackupCodeRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw)%backupCodeHashSize != 0 {
		return nil, fmt.Errorf("backup code blob length %d not a multiple of %d", len(raw), backupCodeHashSize)
	}

	out := make([]ward.BackupCodeRecord, 0, len(raw)/backupCodeHashSize)
	for off := 0; off < len(raw); off += backupCodeHashSize {
		var rec ward.BackupCodeRecord
		copy(rec.Hash[:], raw[off:off+backupCodeHashSize])
		out = append(out, rec)
	}
	return out, nil
}
