// Package jwt issues and verifies the access and refresh tokens handed out
// by authcore.
//
// Access tokens carry the account ID, email and verification flag. Refresh
// tokens carry only registered claims and a random jti; the engine maps
// them back to an account through the digest it stored at issuance. Both
// kinds carry a "typ" claim so one can never be accepted as the other.
//
// Key material is passed in through [Config]. HS256 uses a shared secret;
// Ed25519 accepts raw or PEM keys and supports rotation with KeyID and a
// VerifyKeys set. A manager built without a private key verifies only.
package jwt
