package application

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

// sessionClaims is the JWT claims layout for session tokens. The identity
// snapshot is embedded so verification needs no server-side session store.
type sessionClaims struct {
	Handle string   `json:"handle"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Orgs   []string `json:"orgs"`
	Admin  bool     `json:"admin"`
	jwt.RegisteredClaims
}

// SessionService issues and verifies signed, time-bound session tokens.
// Tokens are HS256 JWTs; validity is fully determined by the signature and
// expiry, and sessions are never renewed implicitly.
type SessionService struct {
	signingKey []byte
	ttl        time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// NewSessionService creates a SessionService signing with the given secret.
// The secret must already satisfy the configured minimum length; config
// validation enforces that before this point.
func NewSessionService(secret string, ttl time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		signingKey: []byte(secret),
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Issue mints a session token embedding the identity snapshot and an expiry
// ttl from now.
func (s *SessionService) Issue(identity model.Identity) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Handle: identity.Handle,
		Name:   identity.Name,
		Email:  identity.Email,
		Orgs:   identity.Orgs,
		Admin:  identity.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and returns the embedded
// identity claims. Malformed, expired, and forged tokens all fail with the
// same session_invalid code so callers cannot distinguish them; the
// distinction is logged at debug level only.
func (s *SessionService) Verify(token string) (*model.SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		s.logger.Debug("session token rejected", "reason", err)
		return nil, apperror.New(apperror.CodeSessionInvalid, "invalid or expired session")
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		s.logger.Debug("session token rejected", "reason", "claims type mismatch")
		return nil, apperror.New(apperror.CodeSessionInvalid, "invalid or expired session")
	}

	// jwt/v5 only validates exp when the claim is present; a signed token
	// missing iat or exp is not one this service issued.
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		s.logger.Debug("session token rejected", "reason", "missing iat or exp claim")
		return nil, apperror.New(apperror.CodeSessionInvalid, "invalid or expired session")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		s.logger.Debug("session token rejected", "reason", "non-numeric subject")
		return nil, apperror.New(apperror.CodeSessionInvalid, "invalid or expired session")
	}

	orgs := claims.Orgs
	if orgs == nil {
		orgs = []string{}
	}

	return &model.SessionClaims{
		Identity: model.Identity{
			ID:      id,
			Handle:  claims.Handle,
			Name:    claims.Name,
			Email:   claims.Email,
			Orgs:    orgs,
			IsAdmin: claims.Admin,
		},
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// GenerateSigningSecret returns a random hex secret of the given byte
// length. Intended for development only: each instance generating its own
// secret would mint tokens no other instance accepts.
func GenerateSigningSecret(length int) (string, error) {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	return hex.EncodeToString(buf)[:length], nil
}
