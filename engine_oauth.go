package authcore

import (
	"context"
	"errors"
	"strings"
)

// OAuthCallback signs in the holder of an identity already authenticated by
// an OAuth provider.
//
// An unknown email creates a verified account with no password, linked to
// the provider identity, and reports OAuthWelcome. A known email links the
// identity when the account has none, marks the account verified and
// reports OAuthWelcomeBack. Both paths issue a fresh token pair.
//
// ErrProviderAuthFailed is returned when the profile lacks a provider,
// subject or email, when the provider has not verified the email and
// Config.OAuth.RequireVerifiedEmail is set, and when the account is already
// linked to a different identity at the same provider.
func (e *Engine) OAuthCallback(ctx context.Context, profile ProviderProfile) (OAuthResult, error) {
	if err := e.ready(); err != nil {
		return OAuthResult{}, err
	}

	provider := strings.ToLower(strings.TrimSpace(profile.Provider))
	subject := strings.TrimSpace(profile.Subject)
	email := normalizeEmail(profile.Email)
	if provider == "" || subject == "" || !validEmail(email) {
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, "", ErrProviderAuthFailed, "incomplete_profile")
	}
	if e.config.OAuth.RequireVerifiedEmail && !profile.EmailVerified {
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, "", ErrProviderAuthFailed, "email_unverified")
	}
	oauthID := provider + ":" + subject

	acc, err := e.findByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return e.oauthCreate(ctx, email, oauthID, profile)
	case err != nil:
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, "", err, "lookup_failed")
	}

	switch {
	case acc.OAuthID == oauthID:
	case acc.OAuthID == "":
		// Linking an existing account always requires a provider-verified
		// email.
		if !profile.EmailVerified {
			return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, acc.ID, ErrProviderAuthFailed, "link_unverified_email")
		}
		acc.OAuthID = oauthID
	case strings.HasPrefix(acc.OAuthID, provider+":"):
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, acc.ID, ErrProviderAuthFailed, "identity_mismatch")
	}
	acc.Verified = true

	tokens, err := e.issuePair(ctx, acc)
	if err != nil {
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, acc.ID, err, "issue_tokens")
	}
	if err := e.updateAccount(ctx, acc); err != nil {
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, acc.ID, err, "store_update")
	}

	e.metricInc(MetricOAuthLogin)
	e.emitAudit(ctx, auditEventOAuthLogin, true, acc.ID, nil, func() map[string]string {
		return map[string]string{
			"provider": provider,
		}
	})

	return OAuthResult{
		Outcome:   OAuthWelcomeBack,
		AccountID: acc.ID,
		Name:      acc.Name,
		Tokens:    tokens,
	}, nil
}

func (e *Engine) oauthCreate(ctx context.Context, email, oauthID string, profile ProviderProfile) (OAuthResult, error) {
	acc := &Account{
		Email:    email,
		Name:     displayName(profile, email),
		Verified: true,
		OAuthID:  oauthID,
	}
	if err := e.createAccount(ctx, acc); err != nil {
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, "", err, "create_failed")
	}

	tokens, err := e.issuePair(ctx, acc)
	if err != nil {
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, acc.ID, err, "issue_tokens")
	}
	if err := e.updateAccount(ctx, acc); err != nil {
		return OAuthResult{}, e.fail(ctx, MetricOAuthFailure, auditEventOAuthFailure, acc.ID, err, "store_refresh")
	}

	e.metricInc(MetricOAuthAccountCreated)
	e.emitAudit(ctx, auditEventOAuthAccountCreated, true, acc.ID, nil, func() map[string]string {
		return map[string]string{
			"provider": strings.ToLower(strings.TrimSpace(profile.Provider)),
		}
	})

	return OAuthResult{
		Outcome:   OAuthWelcome,
		AccountID: acc.ID,
		Name:      acc.Name,
		Tokens:    tokens,
	}, nil
}

// displayName picks the profile name, then given and family name, then the
// local part of the email.
func displayName(profile ProviderProfile, email string) string {
	if name := normalizeName(profile.Name); name != "" {
		return truncateName(name)
	}
	full := normalizeName(strings.TrimSpace(profile.GivenName) + " " + strings.TrimSpace(profile.FamilyName))
	if full != "" {
		return truncateName(full)
	}
	local, _, _ := strings.Cut(email, "@")
	return truncateName(local)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= maxNameLength {
		return name
	}
	return string(runes[:maxNameLength])
}
