package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoURLEnv = "AUTHCORE_TEST_MONGO_URL"

func TestConformance(t *testing.T) {
	url := os.Getenv(mongoURLEnv)
	if url == "" {
		t.Skipf("%s not set", mongoURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, client.Ping(ctx, nil))

	store := New(client, Config{Database: "authcore_test"})
	require.NoError(t, store.EnsureIndexes(ctx))
	require.NoError(t, store.EnsureIndexes(ctx))

	storetest.Run(t, func(t *testing.T) authcore.AccountStore {
		return store
	})
}

func TestDocumentMapping(t *testing.T) {
	issued := time.Date(2026, 2, 3, 4, 5, 6, 0, time.FixedZone("x", 3600))
	acc := &authcore.Account{
		ID:               "id-1",
		Email:            "a@x.com",
		Name:             "Ann",
		PasswordHash:     "hash",
		Verified:         true,
		RefreshTokenHash: "digest",
		OAuthID:          "google:1",
		Version:          4,
		OTP: &authcore.OTPState{
			CodeHash: "code",
			Purpose:  authcore.OTPPasswordReset,
			IssuedAt: issued,
		},
	}

	doc := toDocument(acc)
	assert.Equal(t, "password_reset", doc.OTP.Purpose)
	assert.Equal(t, time.UTC, doc.OTP.IssuedAt.Location())

	back := doc.toAccount()
	assert.Equal(t, acc.Email, back.Email)
	assert.Equal(t, acc.RefreshTokenHash, back.RefreshTokenHash)
	assert.Equal(t, acc.Version, back.Version)
	require.NotNil(t, back.OTP)
	assert.True(t, issued.Equal(back.OTP.IssuedAt))

	acc.OTP = nil
	assert.Nil(t, toDocument(acc).OTP)
}

func TestDefaultCollection(t *testing.T) {
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://localhost:27017"))
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(context.Background()) }()

	s := New(client, Config{Database: "db"})
	assert.Equal(t, DefaultCollection, s.coll.Name())
	assert.Equal(t, "db", s.coll.Database().Name())
}
