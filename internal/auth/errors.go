package auth

import "errors"

// Sentinel errors for authentication operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session has expired")
	ErrSessionRevoked = errors.New("session has been revoked")
)
