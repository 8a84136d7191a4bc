package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/volthome/volt-core/internal/infrastructure/config"
)

// Service implements the login / refresh / logout flows on top of the
// session repository. It is the single place where raw refresh tokens
// are minted and compared.
type Service struct {
	sessions SessionRepository
	cfg      config.JWTConfig
}

// NewService creates an auth service backed by the given session repository.
func NewService(sessions SessionRepository, cfg config.JWTConfig) *Service {
	return &Service{sessions: sessions, cfg: cfg}
}

// refreshTTL returns the configured refresh session lifetime.
func (s *Service) refreshTTL() time.Duration {
	days := s.cfg.RefreshTokenTTL
	if days <= 0 {
		days = 30 //nolint:mnd // default 30-day refresh session
	}
	return time.Duration(days) * 24 * time.Hour
}

// Login issues a token pair for the given user and records the refresh
// session. The caller is responsible for having authenticated the user.
func (s *Service) Login(ctx context.Context, userID, userAgent, ip string) (*TokenPair, error) {
	access, err := IssueAccessToken(userID, s.cfg.Secret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	session := &Session{
		UserID:    userID,
		TokenHash: HashToken(refresh),
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: time.Now().Add(s.refreshTTL()),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh session and returns a fresh token pair.
// A revoked session is rejected; an expired one is revoked on sight.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken, userAgent, ip string) (*TokenPair, error) {
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(rawRefreshToken))
	if err != nil {
		return nil, err
	}

	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !time.Now().Before(session.ExpiresAt) {
		if err := s.sessions.Revoke(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("revoking expired session: %w", err)
		}
		return nil, ErrSessionExpired
	}

	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	next := &Session{
		UserID:    session.UserID,
		TokenHash: HashToken(refresh),
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: time.Now().Add(s.refreshTTL()),
	}
	if err := s.sessions.Rotate(ctx, session.ID, next); err != nil {
		return nil, err
	}

	access, err := IssueAccessToken(session.UserID, s.cfg.Secret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the session matching the given refresh token. Unknown
// tokens are ignored so logout is idempotent.
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) error {
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(rawRefreshToken))
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return err
	}
	return s.sessions.Revoke(ctx, session.ID)
}

// LogoutAll revokes every active session of a user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// ParseToken validates an access token against the configured secret.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	return ParseAccessToken(tokenString, s.cfg.Secret)
}
