// Package auth provides authentication for the VoltHome sync backend.
//
// Access tokens are short-lived HS256 JWTs carrying the user id as the
// subject; they are validated by signature only, with no database hit.
// Refresh tokens are opaque 256-bit random strings. Only their SHA-256
// hash is stored, as a row in refresh_sessions. Refreshing rotates the
// session: the old row is revoked and linked to its replacement via
// replaced_by, so a stolen-then-reused token is detectable from the chain.
package auth
