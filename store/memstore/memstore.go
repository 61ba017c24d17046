// Package memstore provides an in-memory authcore.AccountStore.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
)

// Store keeps accounts in maps guarded by a single mutex. The zero value is
// not usable; call New.
type Store struct {
	mu        sync.RWMutex
	byID      map[string]*authcore.Account
	byEmail   map[string]string
	byRefresh map[string]string
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:      make(map[string]*authcore.Account),
		byEmail:   make(map[string]string),
		byRefresh: make(map[string]string),
		now:       time.Now,
	}
}

// FindByEmail implements authcore.AccountStore.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail, email)
}

// FindByEmailAndName implements authcore.AccountStore. An email match wins
// over a name match.
func (s *Store) FindByEmailAndName(ctx context.Context, email, name string) (*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc, err := s.lookup(s.byEmail, email); err == nil {
		return acc, nil
	}
	for _, acc := range s.byID {
		if acc.Name == name {
			return acc.Clone(), nil
		}
	}
	return nil, authcore.ErrAccountNotFound
}

// FindByRefreshToken implements authcore.AccountStore.
func (s *Store) FindByRefreshToken(ctx context.Context, tokenHash string) (*authcore.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tokenHash == "" {
		return nil, authcore.ErrAccountNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byRefresh, tokenHash)
}

// Create implements authcore.AccountStore.
func (s *Store) Create(ctx context.Context, acc *authcore.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[acc.Email]; ok {
		return authcore.ErrDuplicateAccount
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if _, ok := s.byID[acc.ID]; ok {
		return authcore.ErrDuplicateAccount
	}

	now := s.now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now
	acc.Version = 1
	s.put(acc.Clone())
	return nil
}

// Update implements authcore.AccountStore.
func (s *Store) Update(ctx context.Context, id string, acc *authcore.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	if cur.Version != acc.Version {
		return authcore.ErrConcurrentUpdate
	}
	if owner, taken := s.byEmail[acc.Email]; taken && owner != id {
		return authcore.ErrDuplicateAccount
	}

	delete(s.byEmail, cur.Email)
	if cur.RefreshTokenHash != "" {
		delete(s.byRefresh, cur.RefreshTokenHash)
	}

	acc.ID = id
	acc.CreatedAt = cur.CreatedAt
	acc.Version = cur.Version + 1
	acc.UpdatedAt = s.now().UTC()
	s.put(acc.Clone())
	return nil
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) lookup(index map[string]string, key string) (*authcore.Account, error) {
	id, ok := index[key]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) put(acc *authcore.Account) {
	s.byID[acc.ID] = acc
	s.byEmail[acc.Email] = acc.ID
	if acc.RefreshTokenHash != "" {
		s.byRefresh[acc.RefreshTokenHash] = acc.ID
	}
}
