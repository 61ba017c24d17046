package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

var (
	// ErrExpired is returned when a token is past its expiry, leeway included.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for any other token that fails verification.
	ErrInvalid = errors.New("token invalid")
	// ErrSigningKeyUnavailable is returned when a token cannot be signed.
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")
)

// Config holds key material and validation rules. It is read once by
// NewManager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager issues and verifies access and refresh tokens.
type Manager struct {
	config Config
	keys   keyring
	now    func() time.Time
}

// keyring holds key material decoded once by NewManager.
type keyring struct {
	method jwt.SigningMethod
	sign   any            // nil for a verify-only manager
	verify any            // used when byKID is empty
	byKID  map[string]any // kid -> verification key
}

// AccessClaims is the payload of an access token. Subject carries the
// account ID as well.
type AccessClaims struct {
	Email     string `json:"email"`
	Verified  bool   `json:"verified"`
	AccountID string `json:"aid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. It holds no account
// reference; the token is resolved to an account by its digest.
type RefreshClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type typedClaims interface {
	jwt.Claims
	tokenType() string
	issuedAt() *jwt.NumericDate
}

func (c *AccessClaims) tokenType() string           { return c.TokenType }
func (c *AccessClaims) issuedAt() *jwt.NumericDate  { return c.IssuedAt }
func (c *RefreshClaims) tokenType() string          { return c.TokenType }
func (c *RefreshClaims) issuedAt() *jwt.NumericDate { return c.IssuedAt }

// NewManager validates cfg and returns a Manager. An Ed25519 manager built
// without a private key is verify-only.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	keys, err := loadKeys(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.KeyID != "" && len(keys.byKID) > 0 {
		if _, ok := keys.byKID[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, keys: keys, now: time.Now}, nil
}

func loadKeys(cfg Config) (keyring, error) {
	var k keyring

	decodeVerify := func(raw []byte) (any, error) { return raw, nil }
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return k, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		k.method = jwt.SigningMethodHS256
		k.sign = cfg.PrivateKey
		k.verify = cfg.PrivateKey
	case MethodEd25519:
		k.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return k, err
			}
			k.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return k, err
			}
			k.verify = pub
		}
		if len(cfg.VerifyKeys) == 0 && k.verify == nil {
			return k, errors.New("ed25519 requires public key or verify key set")
		}
		decodeVerify = func(raw []byte) (any, error) { return parseEdPublicKey(raw) }
	default:
		return k, errors.New("unsupported signing method")
	}

	if len(cfg.VerifyKeys) > 0 {
		k.byKID = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return k, errors.New("verify key map contains empty kid")
			}
			key, err := decodeVerify(raw)
			if err != nil {
				return k, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			k.byKID[kid] = key
		}
	}
	return k, nil
}

// WithClock returns a copy of j that stamps and validates times using now.
func (j *Manager) WithClock(now func() time.Time) *Manager {
	cp := *j
	if now != nil {
		cp.now = now
	}
	return &cp
}

// AccessTTL reports the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// IssueAccess signs an access token for the account.
func (j *Manager) IssueAccess(accountID, email string, verified bool) (string, error) {
	claims := &AccessClaims{
		Email:            email,
		Verified:         verified,
		AccountID:        accountID,
		TokenType:        typeAccess,
		RegisteredClaims: j.registered(accountID, j.config.AccessTTL),
	}
	return j.Issue(claims)
}

// IssueRefresh signs a refresh token. Every call yields a distinct token.
func (j *Manager) IssueRefresh() (string, error) {
	claims := &RefreshClaims{
		TokenType:        typeRefresh,
		RegisteredClaims: j.registered("", j.config.RefreshTTL),
	}
	return j.Issue(claims)
}

// Issue signs arbitrary claims with the configured key and kid header.
// Callers are responsible for registered claims; IssueAccess and
// IssueRefresh fill them in.
func (j *Manager) Issue(claims jwt.Claims) (string, error) {
	if j.keys.sign == nil {
		return "", errors.Join(ErrSigningKeyUnavailable, errors.New("manager is verify-only"))
	}

	token := jwt.NewWithClaims(j.keys.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.keys.sign)
	if err != nil {
		return "", errors.Join(ErrSigningKeyUnavailable, err)
	}
	return signed, nil
}

// ParseAccess verifies an access token and returns its claims.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, typeAccess); err != nil {
		return nil, err
	}
	if claims.AccountID == "" || claims.Subject != claims.AccountID {
		return nil, fmt.Errorf("%w: subject does not match account", ErrInvalid)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, typeRefresh); err != nil {
		return nil, err
	}
	return claims, nil
}

func (j *Manager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := j.now()
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

func (j *Manager) parse(tokenStr string, claims typedClaims, wantType string) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, j.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return errors.Join(ErrExpired, err)
		}
		return errors.Join(ErrInvalid, err)
	}
	if !token.Valid {
		return ErrInvalid
	}
	if claims.tokenType() != wantType {
		return fmt.Errorf("%w: unexpected token type %q", ErrInvalid, claims.tokenType())
	}
	if j.config.RequireIAT && claims.issuedAt() == nil {
		return fmt.Errorf("%w: missing iat", ErrInvalid)
	}
	if iat := claims.issuedAt(); iat != nil && j.config.MaxFutureIAT > 0 {
		if iat.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
			return fmt.Errorf("%w: iat too far in the future", ErrInvalid)
		}
	}
	return nil
}

func (j *Manager) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != j.keys.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	switch {
	case len(j.keys.byKID) > 0:
		key, ok := j.keys.byKID[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	case j.config.KeyID != "" && kid != j.config.KeyID:
		return nil, fmt.Errorf("unknown kid %q", kid)
	case j.keys.verify == nil:
		return nil, errors.New("no verification key configured")
	default:
		return j.keys.verify, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
