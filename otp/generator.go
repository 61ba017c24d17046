package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"math/big"
	"strings"
	"time"
)

const (
	numericAlphabet = "0123456789"
	// No 0/O, 1/I/L: codes are read off an email and typed back.
	alphanumericAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	minLength = 4
	maxLength = 12
)

// Charset selects the alphabet codes are drawn from.
type Charset uint8

const (
	// Numeric produces digit-only codes.
	Numeric Charset = iota
	// Alphanumeric produces upper-case codes without look-alike symbols.
	Alphanumeric
)

// ErrInvalidLength is returned by New when Config.Length is out of range.
var ErrInvalidLength = errors.New("otp length must be between 4 and 12")

// Config controls code shape.
type Config struct {
	Length  int
	Charset Charset
}

// Code is a freshly generated code and the moment it was issued.
type Code struct {
	Value    string
	IssuedAt time.Time
}

// Generator produces codes. It is safe for concurrent use.
type Generator struct {
	alphabet string
	length   int
	random   io.Reader
	now      func() time.Time
}

// New returns a Generator reading from crypto/rand.
func New(cfg Config) (*Generator, error) {
	if cfg.Length < minLength || cfg.Length > maxLength {
		return nil, ErrInvalidLength
	}

	alphabet := numericAlphabet
	if cfg.Charset == Alphanumeric {
		alphabet = alphanumericAlphabet
	}

	return &Generator{
		alphabet: alphabet,
		length:   cfg.Length,
		random:   rand.Reader,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of g that stamps codes using now.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	cp := *g
	if now != nil {
		cp.now = now
	}
	return &cp
}

// Generate draws a new code. Each symbol is chosen uniformly and
// independently, so earlier codes carry no information about later ones.
func (g *Generator) Generate() (Code, error) {
	var b strings.Builder
	b.Grow(g.length)

	max := big.NewInt(int64(len(g.alphabet)))
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return Code{}, err
		}
		b.WriteByte(g.alphabet[n.Int64()])
	}

	return Code{
		Value:    b.String(),
		IssuedAt: g.now().UTC(),
	}, nil
}

// Hash returns the hex SHA-256 digest stored in place of the code.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(normalize(code)))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether code hashes to digest, in constant time.
func Matches(code, digest string) bool {
	if code == "" || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Hash(code)), []byte(digest)) == 1
}

// Expired reports whether a code issued at issuedAt is past ttl at now.
// A zero ttl never expires.
func Expired(issuedAt, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(issuedAt.Add(ttl))
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
