// Package storetest is the conformance suite for authcore.AccountStore
// backends.
//
// Backends call Run from their own tests with a constructor returning a
// ready store. Accounts use random emails, so a suite may share a database
// with earlier runs.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a store for a single subtest.
type Factory func(t *testing.T) authcore.AccountStore

// Run executes every conformance check against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, authcore.AccountStore)
	}{
		{"CreateAssignsIdentity", testCreateAssignsIdentity},
		{"CreateDuplicateEmail", testCreateDuplicateEmail},
		{"FindMissing", testFindMissing},
		{"FindByEmailAndName", testFindByEmailAndName},
		{"UpdateRoundTrip", testUpdateRoundTrip},
		{"UpdateStaleVersion", testUpdateStaleVersion},
		{"UpdateMissing", testUpdateMissing},
		{"RefreshIndexFollowsUpdates", testRefreshIndexFollowsUpdates},
		{"ReturnedAccountsAreCopies", testReturnedAccountsAreCopies},
		{"ConcurrentUpdatesSingleWinner", testConcurrentUpdatesSingleWinner},
		{"CanceledContext", testCanceledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newAccount() *authcore.Account {
	id := uuid.NewString()
	return &authcore.Account{
		Email:        "user-" + id + "@example.com",
		Name:         "user " + id,
		PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
	}
}

func create(t *testing.T, s authcore.AccountStore) *authcore.Account {
	t.Helper()
	acc := newAccount()
	require.NoError(t, s.Create(context.Background(), acc))
	return acc
}

func testCreateAssignsIdentity(t *testing.T, s authcore.AccountStore) {
	acc := create(t, s)

	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, int64(1), acc.Version)
	assert.False(t, acc.CreatedAt.IsZero())
	assert.False(t, acc.UpdatedAt.IsZero())

	got, err := s.FindByEmail(context.Background(), acc.Email)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, acc.Name, got.Name)
	assert.Equal(t, acc.PasswordHash, got.PasswordHash)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Verified)
	assert.Nil(t, got.OTP)
	assert.Empty(t, got.RefreshTokenHash)
	assert.Empty(t, got.OAuthID)
	assert.WithinDuration(t, acc.CreatedAt, got.CreatedAt, time.Millisecond)
}

func testCreateDuplicateEmail(t *testing.T, s authcore.AccountStore) {
	first := create(t, s)

	dup := newAccount()
	dup.Email = first.Email
	err := s.Create(context.Background(), dup)
	require.ErrorIs(t, err, authcore.ErrDuplicateAccount)
}

func testFindMissing(t *testing.T, s authcore.AccountStore) {
	ctx := context.Background()

	_, err := s.FindByEmail(ctx, "missing-"+uuid.NewString()+"@example.com")
	require.ErrorIs(t, err, authcore.ErrAccountNotFound)

	_, err = s.FindByEmailAndName(ctx, "missing-"+uuid.NewString()+"@example.com", "missing "+uuid.NewString())
	require.ErrorIs(t, err, authcore.ErrAccountNotFound)

	_, err = s.FindByRefreshToken(ctx, uuid.NewString())
	require.ErrorIs(t, err, authcore.ErrAccountNotFound)

	_, err = s.FindByRefreshToken(ctx, "")
	require.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func testFindByEmailAndName(t *testing.T, s authcore.AccountStore) {
	ctx := context.Background()
	acc := create(t, s)

	byEmail, err := s.FindByEmailAndName(ctx, acc.Email, "other "+uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byEmail.ID)

	byName, err := s.FindByEmailAndName(ctx, "other-"+uuid.NewString()+"@example.com", acc.Name)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, byName.ID)
}

func testUpdateRoundTrip(t *testing.T, s authcore.AccountStore) {
	ctx := context.Background()
	acc := create(t, s)
	createdAt := acc.CreatedAt

	issued := time.Now().UTC().Truncate(time.Millisecond)
	acc.Verified = true
	acc.OAuthID = "google:" + uuid.NewString()
	acc.RefreshTokenHash = uuid.NewString()
	acc.OTP = &authcore.OTPState{
		CodeHash: "digest",
		Purpose:  authcore.OTPPasswordReset,
		IssuedAt: issued,
	}
	require.NoError(t, s.Update(ctx, acc.ID, acc))
	assert.Equal(t, int64(2), acc.Version)

	got, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.Verified)
	assert.Equal(t, acc.OAuthID, got.OAuthID)
	assert.Equal(t, acc.RefreshTokenHash, got.RefreshTokenHash)
	require.NotNil(t, got.OTP)
	assert.Equal(t, "digest", got.OTP.CodeHash)
	assert.Equal(t, authcore.OTPPasswordReset, got.OTP.Purpose)
	assert.True(t, issued.Equal(got.OTP.IssuedAt), "issued at %v, got %v", issued, got.OTP.IssuedAt)
	assert.WithinDuration(t, createdAt, got.CreatedAt, time.Millisecond)

	got.OTP = nil
	require.NoError(t, s.Update(ctx, got.ID, got))

	cleared, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	assert.Nil(t, cleared.OTP)
	assert.Equal(t, int64(3), cleared.Version)
}

func testUpdateStaleVersion(t *testing.T, s authcore.AccountStore) {
	ctx := context.Background()
	acc := create(t, s)

	stale := *acc
	acc.Verified = true
	require.NoError(t, s.Update(ctx, acc.ID, acc))

	stale.Name = "stale " + uuid.NewString()
	err := s.Update(ctx, stale.ID, &stale)
	require.ErrorIs(t, err, authcore.ErrConcurrentUpdate)

	got, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	assert.Equal(t, acc.Name, got.Name)
	assert.True(t, got.Verified)
}

func testUpdateMissing(t *testing.T, s authcore.AccountStore) {
	acc := newAccount()
	acc.Version = 1
	err := s.Update(context.Background(), uuid.NewString(), acc)
	require.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func testRefreshIndexFollowsUpdates(t *testing.T, s authcore.AccountStore) {
	ctx := context.Background()
	acc := create(t, s)

	first := uuid.NewString()
	acc.RefreshTokenHash = first
	require.NoError(t, s.Update(ctx, acc.ID, acc))

	got, err := s.FindByRefreshToken(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	second := uuid.NewString()
	acc.RefreshTokenHash = second
	require.NoError(t, s.Update(ctx, acc.ID, acc))

	_, err = s.FindByRefreshToken(ctx, first)
	require.ErrorIs(t, err, authcore.ErrAccountNotFound)
	got, err = s.FindByRefreshToken(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	acc.RefreshTokenHash = ""
	require.NoError(t, s.Update(ctx, acc.ID, acc))
	_, err = s.FindByRefreshToken(ctx, second)
	require.ErrorIs(t, err, authcore.ErrAccountNotFound)
}

func testReturnedAccountsAreCopies(t *testing.T, s authcore.AccountStore) {
	ctx := context.Background()
	acc := create(t, s)
	acc.OTP = &authcore.OTPState{CodeHash: "digest", Purpose: authcore.OTPVerification, IssuedAt: time.Now().UTC()}
	require.NoError(t, s.Update(ctx, acc.ID, acc))

	acc.Name = "mutated after write"
	acc.OTP.CodeHash = "mutated"

	got, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	got.Verified = true
	got.OTP.CodeHash = "mutated again"

	again, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated after write", again.Name)
	assert.False(t, again.Verified)
	require.NotNil(t, again.OTP)
	assert.Equal(t, "digest", again.OTP.CodeHash)
}

func testConcurrentUpdatesSingleWinner(t *testing.T, s authcore.AccountStore) {
	ctx := context.Background()
	acc := create(t, s)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		cp := *acc
		cp.RefreshTokenHash = uuid.NewString()
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, cp.ID, &cp)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, authcore.ErrConcurrentUpdate)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := s.FindByEmail(ctx, acc.Email)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func testCanceledContext(t *testing.T, s authcore.AccountStore) {
	acc := create(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindByEmail(ctx, acc.Email)
	require.Error(t, err)
	err = s.Create(ctx, newAccount())
	require.Error(t, err)
}
