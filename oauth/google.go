package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ProviderGoogle is the provider name placed in resolved profiles.
const ProviderGoogle = "google"

// GoogleUserInfoURL is the default profile endpoint.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	// ErrInvalidState is returned when the callback state is unknown,
	// expired or reused.
	ErrInvalidState = errors.New("oauth: invalid or expired state")
	// ErrExchangeFailed is returned when the authorization code is rejected.
	ErrExchangeFailed = errors.New("oauth: code exchange failed")
	// ErrUserInfoFailed is returned when the profile cannot be fetched.
	ErrUserInfoFailed = errors.New("oauth: user info request failed")
	// ErrStateStore wraps StateStore backend failures.
	ErrStateStore = errors.New("oauth: state store unavailable")
	// ErrInvalidConfig is returned by NewGoogle for missing settings.
	ErrInvalidConfig = errors.New("oauth: invalid config")
)

// GoogleConfig configures the Google provider. Endpoint and UserInfoURL
// default to Google's production endpoints.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	StateTTL     time.Duration
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

// Google resolves profiles from Google accounts.
type Google struct {
	oauth2      *oauth2.Config
	states      StateStore
	stateTTL    time.Duration
	userInfoURL string
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// NewGoogle validates cfg and returns a provider that records states in
// states.
func NewGoogle(cfg GoogleConfig, states StateStore) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", ErrInvalidConfig)
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("%w: redirect url is required", ErrInvalidConfig)
	}
	if states == nil {
		return nil, fmt.Errorf("%w: state store is required", ErrInvalidConfig)
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		}
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = GoogleUserInfoURL
	}

	return &Google{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		states:      states,
		stateTTL:    cfg.StateTTL,
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

// AuthURL issues a state and returns the consent page URL carrying it.
func (g *Google) AuthURL(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if err := g.states.Save(ctx, state, g.stateTTL); err != nil {
		return "", err
	}
	return g.oauth2.AuthCodeURL(state), nil
}

// Profile consumes state, exchanges code and fetches the account profile.
// Every failure carries authcore.ErrProviderAuthFailed.
func (g *Google) Profile(ctx context.Context, code, state string) (authcore.ProviderProfile, error) {
	if err := g.states.Consume(ctx, state); err != nil {
		return authcore.ProviderProfile{}, errors.Join(authcore.ErrProviderAuthFailed, err)
	}

	token, err := g.oauth2.Exchange(ctx, code)
	if err != nil {
		return authcore.ProviderProfile{}, errors.Join(authcore.ErrProviderAuthFailed, ErrExchangeFailed, err)
	}

	info, err := g.fetchUserInfo(ctx, token)
	if err != nil {
		return authcore.ProviderProfile{}, errors.Join(authcore.ErrProviderAuthFailed, ErrUserInfoFailed, err)
	}

	return authcore.ProviderProfile{
		Provider:      ProviderGoogle,
		Subject:       info.ID,
		Email:         strings.TrimSpace(info.Email),
		EmailVerified: info.VerifiedEmail,
		Name:          info.Name,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
	}, nil
}

func (g *Google) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.oauth2.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google api returned status %d", resp.StatusCode)
	}
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, errors.New("google profile has no id")
	}
	return &info, nil
}
