// Package profile stores per-user profile data (display name, email,
// avatar). Profiles are created lazily: reading a user that has never
// saved anything returns defaults rather than an error, and the first
// update inserts the row.
package profile
