// Package sqlitestore implements authcore.AccountStore on SQLite using the
// pure-Go modernc.org/sqlite driver.
//
// Timestamps are stored as Unix milliseconds in UTC. Open applies the
// embedded goose migrations before returning.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrPathRequired is returned by Open for an empty path.
var ErrPathRequired = errors.New("sqlitestore: storage path is required")

const accountColumns = `id, email, name, password_hash, verified,
	otp_code_hash, otp_purpose, otp_issued_at,
	refresh_token_hash, oauth_id, created_at, updated_at, version`

// dsnPragmas are applied by the modernc driver to every new connection.
const dsnPragmas = "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// Store is a SQLite-backed account store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database file at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}

	dsn := filepath.Clean(path) + dsnPragmas
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// FindByEmail implements authcore.AccountStore.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?1`, email)
	return scanAccount(row)
}

// FindByEmailAndName implements authcore.AccountStore. An email match wins
// over a name match.
func (s *Store) FindByEmailAndName(ctx context.Context, email, name string) (*authcore.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE email = ?1 OR name = ?2
		ORDER BY (email = ?1) DESC, created_at
		LIMIT 1`, email, name)
	return scanAccount(row)
}

// FindByRefreshToken implements authcore.AccountStore.
func (s *Store) FindByRefreshToken(ctx context.Context, tokenHash string) (*authcore.Account, error) {
	if tokenHash == "" {
		return nil, authcore.ErrAccountNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE refresh_token_hash = ?1`, tokenHash)
	return scanAccount(row)
}

// Create implements authcore.AccountStore.
func (s *Store) Create(ctx context.Context, acc *authcore.Account) error {
	id := acc.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := fromMillis(toMillis(s.now()))
	codeHash, purpose, issuedAt := otpColumns(acc.OTP)

	_, err := s.db.ExecContext(ctx, `INSERT INTO accounts (
			id, email, name, password_hash, verified,
			otp_code_hash, otp_purpose, otp_issued_at,
			refresh_token_hash, oauth_id, created_at, updated_at, version
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?11, 1)`,
		id, acc.Email, acc.Name, acc.PasswordHash, acc.Verified,
		codeHash, purpose, issuedAt,
		nullString(acc.RefreshTokenHash), acc.OAuthID, toMillis(now),
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
	now := fromMillis(toMillis(s.now()))
	codeHash, purpose, issuedAt := otpColumns(acc.OTP)

	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET
			email = ?3, name = ?4, password_hash = ?5, verified = ?6,
			otp_code_hash = ?7, otp_purpose = ?8, otp_issued_at = ?9,
			refresh_token_hash = ?10, oauth_id = ?11,
			updated_at = ?12, version = version + 1
		WHERE id = ?1 AND version = ?2`,
		id, acc.Version, acc.Email, acc.Name, acc.PasswordHash, acc.Verified,
		codeHash, purpose, issuedAt,
		nullString(acc.RefreshTokenHash), acc.OAuthID, toMillis(now),
	)
	if err != nil {
		return mapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Join(authcore.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return s.missOrConflict(ctx, id)
	}

	acc.ID = id
	acc.Version++
	acc.UpdatedAt = now
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = ?1)`, id).Scan(&exists)
	if err != nil {
		return errors.Join(authcore.ErrStoreUnavailable, err)
	}
	if !exists {
		return authcore.ErrAccountNotFound
	}
	return authcore.ErrConcurrentUpdate
}

func scanAccount(row *sql.Row) (*authcore.Account, error) {
	var (
		acc       authcore.Account
		codeHash  sql.NullString
		purpose   sql.NullString
		issuedAt  sql.NullInt64
		refresh   sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.Verified,
		&codeHash, &purpose, &issuedAt,
		&refresh, &acc.OAuthID, &createdAt, &updatedAt, &acc.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Join(authcore.ErrStoreUnavailable, err)
	}

	if codeHash.Valid && purpose.Valid && issuedAt.Valid {
		acc.OTP = &authcore.OTPState{
			CodeHash: codeHash.String,
			Purpose:  authcore.OTPPurpose(purpose.String),
			IssuedAt: fromMillis(issuedAt.Int64),
		}
	}
	acc.RefreshTokenHash = refresh.String
	acc.CreatedAt = fromMillis(createdAt)
	acc.UpdatedAt = fromMillis(updatedAt)
	return &acc, nil
}

func otpColumns(o *authcore.OTPState) (codeHash, purpose sql.NullString, issuedAt sql.NullInt64) {
	if o == nil {
		return
	}
	return sql.NullString{String: o.CodeHash, Valid: true},
		sql.NullString{String: string(o.Purpose), Valid: true},
		sql.NullInt64{Int64: toMillis(o.IssuedAt), Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

func mapWriteErr(err error) error {
	if isUniqueViolation(err) {
		return authcore.ErrDuplicateAccount
	}
	return errors.Join(authcore.ErrStoreUnavailable, err)
}
