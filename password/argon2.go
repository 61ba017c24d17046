package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// DefaultMaxPasswordBytes is applied when Config.MaxPasswordBytes is zero.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrPasswordTooLong is returned when the plaintext exceeds Config.MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned when a stored digest cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds the Argon2id cost parameters used for new hashes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxPasswordBytes bounds the plaintext accepted by Hash and Verify.
	// Zero selects 1024.
	MaxPasswordBytes int
}

// Argon2 hashes new passwords with Argon2id and verifies both Argon2id
// and legacy bcrypt digests.
type Argon2 struct {
	config Config
}

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$hash" digest.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.hash),
	)
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}

	return &Argon2{config: cfg}, nil
}

// Hash derives a salted Argon2id digest encoded as a PHC string.
func (a *Argon2) Hash(password string) (string, error) {
	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	digest := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
		hash:        make([]byte, a.config.KeyLength),
	}
	if _, err := io.ReadFull(rand.Reader, digest.salt); err != nil {
		return "", err
	}
	digest.hash = digest.derive(password)
	return digest.String(), nil
}

// Verify reports whether password matches encodedHash. The comparison is
// constant time for Argon2id digests; bcrypt digests are delegated to
// the bcrypt package which compares in constant time as well.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	if isBcrypt(encodedHash) {
		return verifyBcrypt(password, encodedHash)
	}

	digest, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(digest.derive(password), digest.hash) == 1, nil
}

// NeedsUpgrade reports whether encodedHash should be replaced by a fresh
// digest: bcrypt digests always, Argon2id digests produced with weaker
// parameters than the current Config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}

	digest, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return a.config.Memory > digest.memory ||
		a.config.Time > digest.time ||
		a.config.Parallelism > digest.parallelism ||
		a.config.KeyLength != uint32(len(digest.hash)), nil
}

func parsePHC(encoded string) (phc, error) {
	var d phc

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return d, fmt.Errorf("%w: invalid PHC format", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return d, fmt.Errorf("%w: unsupported algorithm", ErrMalformedHash)
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return d, fmt.Errorf("%w: unsupported argon2 version", ErrMalformedHash)
	}

	var memory, iterations, threads uint64
	seen := 0
	for _, kv := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return d, fmt.Errorf("%w: invalid parameter entry", ErrMalformedHash)
		}
		var (
			dst  *uint64
			bits int
		)
		switch key {
		case "m":
			dst, bits = &memory, 32
		case "t":
			dst, bits = &iterations, 32
		case "p":
			dst, bits = &threads, 8
		default:
			return d, fmt.Errorf("%w: unsupported parameter %q", ErrMalformedHash, key)
		}
		v, err := strconv.ParseUint(value, 10, bits)
		if err != nil || *dst != 0 {
			return d, fmt.Errorf("%w: invalid %s parameter", ErrMalformedHash, key)
		}
		*dst = v
		seen++
	}
	if seen != 3 {
		return d, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	if memory < uint64(minMemoryKB) || iterations < uint64(minTimeCost) || threads < uint64(minParallelism) {
		return d, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}
	d.memory, d.time, d.parallelism = uint32(memory), uint32(iterations), uint8(threads)

	var err error
	if d.salt, err = decodeSegment(parts[4]); err != nil || len(d.salt) < int(minSaltLength) {
		return d, fmt.Errorf("%w: invalid salt", ErrMalformedHash)
	}
	if d.hash, err = decodeSegment(parts[5]); err != nil || len(d.hash) == 0 {
		return d, fmt.Errorf("%w: invalid hash", ErrMalformedHash)
	}
	return d, nil
}

// decodeSegment accepts unpadded base64 as the PHC format writes it, and
// padded base64 from older digests.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MaxPasswordBytes < 0 {
		return errors.New("password max bytes must be >= 0")
	}

	return nil
}
