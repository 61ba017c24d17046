// Package oauth resolves an authcore.ProviderProfile from an OAuth 2.0
// authorization code.
//
// Google drives the redirect leg (AuthURL) and the callback leg (Profile).
// The state parameter is single use: AuthURL records it in a StateStore and
// Profile consumes it before exchanging the code. The resulting profile is
// passed to authcore.Engine.OAuthCallback.
package oauth
