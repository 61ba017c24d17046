package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) authcore.AccountStore {
		return openTestStore(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout, foreignKeys, synchronous int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys))
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&synchronous))
	assert.Equal(t, 5000, timeout)
	assert.Equal(t, 1, foreignKeys)
	assert.Equal(t, 1, synchronous)
}

func TestReopenKeepsAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	acc := &authcore.Account{Email: "a@x.com", Name: "Ann", Verified: true}
	require.NoError(t, s.Create(ctx, acc))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.True(t, got.Verified)
}

func TestTimestampsAreMillisecondUTC(t *testing.T) {
	s := openTestStore(t)
	s.now = func() time.Time {
		return time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.FixedZone("x", -7200))
	}

	acc := &authcore.Account{Email: "a@x.com", Name: "Ann"}
	require.NoError(t, s.Create(context.Background(), acc))

	want := time.Date(2026, 5, 6, 9, 8, 9, 123000000, time.UTC)
	assert.Equal(t, want, acc.CreatedAt)

	got, err := s.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, want, got.CreatedAt)
}

func TestMapWriteErrPassesThroughOtherErrors(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := mapWriteErr(cause)
	assert.ErrorIs(t, err, authcore.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}
