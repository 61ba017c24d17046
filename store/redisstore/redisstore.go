// Package redisstore implements authcore.AccountStore on Redis.
//
// Each account is one JSON string under {prefix}:acct:{id}. Index keys map
// the email, the refresh token digest and the name back to the id. Writes
// run in WATCH/MULTI transactions so a concurrent change to the watched
// keys aborts the write instead of overwriting it.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is used when Config.Prefix is empty.
const DefaultPrefix = "authcore"

// Config holds key naming options.
type Config struct {
	Prefix string
}

// Store is a Redis-backed account store.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New returns a Store over rdb.
func New(rdb redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: cfg.Prefix, now: time.Now}
}

// FindByEmail implements authcore.AccountStore.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.findVia(ctx, s.emailKey(email), func(acc *authcore.Account) bool {
		return acc.Email == email
	})
}

// FindByEmailAndName implements authcore.AccountStore. An email match wins
// over a name match.
func (s *Store) FindByEmailAndName(ctx context.Context, email, name string) (*authcore.Account, error) {
	acc, err := s.FindByEmail(ctx, email)
	if !errors.Is(err, authcore.ErrAccountNotFound) {
		return acc, err
	}

	ids, err := s.rdb.SMembers(ctx, s.nameKey(name)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	for _, id := range ids {
		acc, err := s.load(ctx, s.rdb, id)
		if errors.Is(err, authcore.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if acc.Name == name {
			return acc, nil
		}
	}
	return nil, authcore.ErrAccountNotFound
}

// FindByRefreshToken implements authcore.AccountStore.
func (s *Store) FindByRefreshToken(ctx context.Context, tokenHash string) (*authcore.Account, error) {
	if tokenHash == "" {
		return nil, authcore.ErrAccountNotFound
	}
	return s.findVia(ctx, s.refreshKey(tokenHash), func(acc *authcore.Account) bool {
		return acc.RefreshTokenHash == tokenHash
	})
}

// Create implements authcore.AccountStore.
func (s *Store) Create(ctx context.Context, acc *authcore.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	now := s.now().UTC()

	record := acc.Clone()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.Version = 1
	payload, err := json.Marshal(record)
	if err != nil {
		return unavailable(err)
	}

	emailKey := s.emailKey(record.Email)
	acctKey := s.accountKey(record.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, emailKey, acctKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return authcore.ErrDuplicateAccount
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, acctKey, payload, 0)
			pipe.Set(ctx, emailKey, record.ID, 0)
			pipe.SAdd(ctx, s.nameKey(record.Name), record.ID)
			if record.RefreshTokenHash != "" {
				pipe.Set(ctx, s.refreshKey(record.RefreshTokenHash), record.ID, 0)
			}
			return nil
		})
		return err
	}, emailKey, acctKey)

	switch {
	case err == nil:
	case errors.Is(err, authcore.ErrDuplicateAccount), errors.Is(err, redis.TxFailedErr):
		return authcore.ErrDuplicateAccount
	default:
		return unavailable(err)
	}

	acc.CreatedAt = now
	acc.UpdatedAt = now
	acc.Version = 1
	return nil
}

// Update implements authcore.AccountStore.
func (s *Store) Update(ctx context.Context, id string, acc *authcore.Account) error {
	acctKey := s.accountKey(id)
	var next *authcore.Account

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Version != acc.Version {
			return authcore.ErrConcurrentUpdate
		}
		if acc.Email != cur.Email {
			owner, err := tx.Get(ctx, s.emailKey(acc.Email)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != id {
				return authcore.ErrDuplicateAccount
			}
		}

		next = acc.Clone()
		next.ID = id
		next.CreatedAt = cur.CreatedAt
		next.Version = cur.Version + 1
		next.UpdatedAt = s.now().UTC()
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, acctKey, payload, 0)
			if cur.Email != next.Email {
				pipe.Del(ctx, s.emailKey(cur.Email))
				pipe.Set(ctx, s.emailKey(next.Email), id, 0)
			}
			if cur.Name != next.Name {
				pipe.SRem(ctx, s.nameKey(cur.Name), id)
				pipe.SAdd(ctx, s.nameKey(next.Name), id)
			}
			if cur.RefreshTokenHash != next.RefreshTokenHash {
				if cur.RefreshTokenHash != "" {
					pipe.Del(ctx, s.refreshKey(cur.RefreshTokenHash))
				}
				if next.RefreshTokenHash != "" {
					pipe.Set(ctx, s.refreshKey(next.RefreshTokenHash), id, 0)
				}
			}
			return nil
		})
		return err
	}, acctKey)

	switch {
	case err == nil:
	case errors.Is(err, redis.TxFailedErr):
		return authcore.ErrConcurrentUpdate
	case errors.Is(err, authcore.ErrAccountNotFound),
		errors.Is(err, authcore.ErrConcurrentUpdate),
		errors.Is(err, authcore.ErrDuplicateAccount),
		errors.Is(err, authcore.ErrStoreUnavailable):
		return err
	default:
		return unavailable(err)
	}

	acc.Version = next.Version
	acc.UpdatedAt = next.UpdatedAt
	return nil
}

// findVia resolves an index key and checks the loaded record still matches,
// since an index entry can briefly outlive the field it was built from.
func (s *Store) findVia(ctx context.Context, indexKey string, match func(*authcore.Account) bool) (*authcore.Account, error) {
	id, err := s.rdb.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, authcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	acc, err := s.load(ctx, s.rdb, id)
	if err != nil {
		return nil, err
	}
	if !match(acc) {
		return nil, authcore.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, id string) (*authcore.Account, error) {
	raw, err := c.Get(ctx, s.accountKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, authcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var acc authcore.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, errors.Join(authcore.ErrStoreUnavailable, ErrCorruptRecord, err)
	}
	return &acc, nil
}

func (s *Store) accountKey(id string) string        { return s.prefix + ":acct:" + id }
func (s *Store) emailKey(email string) string       { return s.prefix + ":email:" + email }
func (s *Store) nameKey(name string) string         { return s.prefix + ":name:" + name }
func (s *Store) refreshKey(tokenHash string) string { return s.prefix + ":refresh:" + tokenHash }

// ErrCorruptRecord is joined to ErrStoreUnavailable when a stored account
// cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt account record")

func unavailable(err error) error {
	return errors.Join(authcore.ErrStoreUnavailable, err)
}
