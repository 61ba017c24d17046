// Package mongostore implements authcore.AccountStore on MongoDB.
//
// Accounts are stored one document per account, keyed by the account id.
// EnsureIndexes creates the unique email and refresh digest indexes the
// store relies on; call it once at startup.
package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is used when Config.Collection is empty.
const DefaultCollection = "accounts"

// Config selects the collection.
type Config struct {
	Database   string
	Collection string
}

type otpDocument struct {
	CodeHash string    `bson:"code_hash"`
	Purpose  string    `bson:"purpose"`
	IssuedAt time.Time `bson:"issued_at"`
}

type accountDocument struct {
	ID               string       `bson:"_id"`
	Email            string       `bson:"email"`
	Name             string       `bson:"name"`
	PasswordHash     string       `bson:"password_hash"`
	Verified         bool         `bson:"verified"`
	OTP              *otpDocument `bson:"otp,omitempty"`
	RefreshTokenHash string       `bson:"refresh_token_hash,omitempty"`
	OAuthID          string       `bson:"oauth_id"`
	CreatedAt        time.Time    `bson:"created_at"`
	UpdatedAt        time.Time    `bson:"updated_at"`
	Version          int64        `bson:"version"`
}

// Store is a MongoDB-backed account store.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

// New returns a Store over the configured collection of client.
func New(client *mongo.Client, cfg Config) *Store {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return &Store{
		coll: client.Database(cfg.Database).Collection(cfg.Collection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the indexes required by the store. It is safe to
// call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "refresh_token_hash", Value: 1}},
			Options: options.Index().
				SetName("refresh_token_hash_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "refresh_token_hash", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name"),
		},
	})
	if err != nil {
		return errors.Join(authcore.ErrStoreUnavailable, err)
	}
	return nil
}

// FindByEmail implements authcore.AccountStore.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// FindByEmailAndName implements authcore.AccountStore. An email match wins
// over a name match.
func (s *Store) FindByEmailAndName(ctx context.Context, email, name string) (*authcore.Account, error) {
	acc, err := s.FindByEmail(ctx, email)
	if !errors.Is(err, authcore.ErrAccountNotFound) {
		return acc, err
	}
	return s.findOne(ctx, bson.D{{Key: "name", Value: name}})
}

// FindByRefreshToken implements authcore.AccountStore.
func (s *Store) FindByRefreshToken(ctx context.Context, tokenHash string) (*authcore.Account, error) {
	if tokenHash == "" {
		return nil, authcore.ErrAccountNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "refresh_token_hash", Value: tokenHash}})
}

// Create implements authcore.AccountStore.
func (s *Store) Create(ctx context.Context, acc *authcore.Account) error {
	doc := toDocument(acc)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Version = 1

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return mapWriteErr(err)
	}
	acc.ID = doc.ID
	acc.CreatedAt = now
	acc.UpdatedAt = now
	acc.Version = 1
	return nil
}

// Update implements authcore.AccountStore. The replacement only matches
// the document while its version equals acc.Version.
func (s *Store) Update(ctx context.Context, id string, acc *authcore.Account) error {
	doc := toDocument(acc)
	doc.ID = id
	doc.Version = acc.Version + 1
	doc.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	var cur struct {
		CreatedAt time.Time `bson:"created_at"`
	}
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}},
		options.FindOne().SetProjection(bson.D{{Key: "created_at", Value: 1}}),
	).Decode(&cur)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return authcore.ErrAccountNotFound
	}
	if err != nil {
		return errors.Join(authcore.ErrStoreUnavailable, err)
	}
	doc.CreatedAt = cur.CreatedAt.UTC()

	res, err := s.coll.ReplaceOne(ctx, bson.D{
		{Key: "_id", Value: id},
		{Key: "version", Value: acc.Version},
	}, doc)
	if err != nil {
		return mapWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return authcore.ErrConcurrentUpdate
	}

	acc.ID = id
	acc.Version = doc.Version
	acc.UpdatedAt = doc.UpdatedAt
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*authcore.Account, error) {
	var doc accountDocument
	err := s.coll.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, authcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Join(authcore.ErrStoreUnavailable, err)
	}
	return doc.toAccount(), nil
}

func toDocument(acc *authcore.Account) accountDocument {
	doc := accountDocument{
		ID:               acc.ID,
		Email:            acc.Email,
		Name:             acc.Name,
		PasswordHash:     acc.PasswordHash,
		Verified:         acc.Verified,
		RefreshTokenHash: acc.RefreshTokenHash,
		OAuthID:          acc.OAuthID,
		CreatedAt:        acc.CreatedAt,
		UpdatedAt:        acc.UpdatedAt,
		Version:          acc.Version,
	}
	if acc.OTP != nil {
		doc.OTP = &otpDocument{
			CodeHash: acc.OTP.CodeHash,
			Purpose:  string(acc.OTP.Purpose),
			IssuedAt: acc.OTP.IssuedAt.UTC(),
		}
	}
	return doc
}

func (d accountDocument) toAccount() *authcore.Account {
	acc := &authcore.Account{
		ID:               d.ID,
		Email:            d.Email,
		Name:             d.Name,
		PasswordHash:     d.PasswordHash,
		Verified:         d.Verified,
		RefreshTokenHash: d.RefreshTokenHash,
		OAuthID:          d.OAuthID,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		Version:          d.Version,
	}
	if d.OTP != nil {
		acc.OTP = &authcore.OTPState{
			CodeHash: d.OTP.CodeHash,
			Purpose:  authcore.OTPPurpose(d.OTP.Purpose),
			IssuedAt: d.OTP.IssuedAt.UTC(),
		}
	}
	return acc
}

func mapWriteErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return authcore.ErrDuplicateAccount
	}
	return errors.Join(authcore.ErrStoreUnavailable, err)
}
