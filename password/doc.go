// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] returns true when a stored hash was produced with weaker
// parameters, so the caller can re-hash on the next successful login.
//
// # Legacy digests
//
// Records imported from older deployments may carry bcrypt digests ($2a$, $2b$, $2y$).
// [Argon2.Verify] accepts them and [Argon2.NeedsUpgrade] always flags them.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum length)
// is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
