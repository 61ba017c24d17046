// Package pgstore implements authcore.AccountStore on PostgreSQL with pgx.
//
// The schema is shipped as embedded goose migrations; call Migrate once at
// startup. Optimistic concurrency uses the version column: an update only
// matches the row when the caller's version is still current.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, name, password_hash, verified,
	otp_code_hash, otp_purpose, otp_issued_at,
	refresh_token_hash, oauth_id, created_at, updated_at, version`

// Store is a PostgreSQL-backed account store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New returns a Store over pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// FindByEmail implements authcore.AccountStore.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// FindByEmailAndName implements authcore.AccountStore. An email match wins
// over a name match.
func (s *Store) FindByEmailAndName(ctx context.Context, email, name string) (*authcore.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE email = $1 OR name = $2
		ORDER BY (email = $1) DESC, created_at
		LIMIT 1`, email, name)
	return scanAccount(row)
}

// FindByRefreshToken implements authcore.AccountStore.
func (s *Store) FindByRefreshToken(ctx context.Context, tokenHash string) (*authcore.Account, error) {
	if tokenHash == "" {
		return nil, authcore.ErrAccountNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE refresh_token_hash = $1`, tokenHash)
	return scanAccount(row)
}

// Create implements authcore.AccountStore.
func (s *Store) Create(ctx context.Context, acc *authcore.Account) error {
	id := acc.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	codeHash, purpose, issuedAt := otpColumns(acc.OTP)

	_, err := s.pool.Exec(ctx, `INSERT INTO accounts (
			id, email, name, password_hash, verified,
			otp_code_hash, otp_purpose, otp_issued_at,
			refresh_token_hash, oauth_id, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, 1)`,
		id, acc.Email, acc.Name, acc.PasswordHash, acc.Verified,
		codeHash, purpose, issuedAt,
		nullable(acc.RefreshTokenHash), acc.OAuthID, now,
	)
	if err != nil {
		return mapWriteErr(err)
	}

	acc.ID = id
	acc.CreatedAt = now
	acc.UpdatedAt = now
	acc.Version = 1
	return nil
}

// Update implements authcore.AccountStore.
func (s *Store) Update(ctx context.Context, id string, acc *authcore.Account) error {
	now := s.now().UTC().Truncate(time.Microsecond)
	codeHash, purpose, issuedAt := otpColumns(acc.OTP)

	tag, err := s.pool.Exec(ctx, `UPDATE accounts SET
			email = $3, name = $4, password_hash = $5, verified = $6,
			otp_code_hash = $7, otp_purpose = $8, otp_issued_at = $9,
			refresh_token_hash = $10, oauth_id = $11,
			updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $2`,
		id, acc.Version, acc.Email, acc.Name, acc.PasswordHash, acc.Verified,
		codeHash, purpose, issuedAt,
		nullable(acc.RefreshTokenHash), acc.OAuthID, now,
	)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}

	acc.ID = id
	acc.Version++
	acc.UpdatedAt = now
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return errors.Join(authcore.ErrStoreUnavailable, err)
	}
	if !exists {
		return authcore.ErrAccountNotFound
	}
	return authcore.ErrConcurrentUpdate
}

func scanAccount(row pgx.Row) (*authcore.Account, error) {
	var (
		acc      authcore.Account
		codeHash *string
		purpose  *string
		issuedAt *time.Time
		refresh  *string
	)
	err := row.Scan(
		&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.Verified,
		&codeHash, &purpose, &issuedAt,
		&refresh, &acc.OAuthID, &acc.CreatedAt, &acc.UpdatedAt, &acc.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, authcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Join(authcore.ErrStoreUnavailable, err)
	}

	if codeHash != nil && purpose != nil && issuedAt != nil {
		acc.OTP = &authcore.OTPState{
			CodeHash: *codeHash,
			Purpose:  authcore.OTPPurpose(*purpose),
			IssuedAt: issuedAt.UTC(),
		}
	}
	if refresh != nil {
		acc.RefreshTokenHash = *refresh
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}

func otpColumns(o *authcore.OTPState) (codeHash, purpose *string, issuedAt *time.Time) {
	if o == nil {
		return nil, nil, nil
	}
	p := string(o.Purpose)
	t := o.IssuedAt.UTC()
	return &o.CodeHash, &p, &t
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// isDuplicateKey reports a unique constraint violation (SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapWriteErr(err error) error {
	if isDuplicateKey(err) {
		return authcore.ErrDuplicateAccount
	}
	return errors.Join(authcore.ErrStoreUnavailable, err)
}
