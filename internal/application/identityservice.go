package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// IdentityService exchanges opaque external credentials for verified
// identities and derives the admin role from the configured allow-list.
type IdentityService struct {
	provider     driven.IdentityProvider
	adminHandles []string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewIdentityService creates an IdentityService with the required dependencies.
func NewIdentityService(provider driven.IdentityProvider, adminHandles []string, timeout time.Duration, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		provider:     provider,
		adminHandles: adminHandles,
		timeout:      timeout,
		logger:       logger,
	}
}

// ExchangeCredential resolves the principal behind credential. Credential
// validity is not transient, so a provider rejection is final: no retries.
// The raw credential never appears in errors or logs.
func (s *IdentityService) ExchangeCredential(ctx context.Context, credential string) (*model.Identity, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, apperror.New(apperror.CodeCredentialInvalid, "credential must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	identity, err := s.provider.VerifyCredential(ctx, credential)
	if err != nil {
		s.logger.Info("credential exchange rejected", "error", err)
		return nil, apperror.Wrap(apperror.CodeCredentialInvalid, "credential rejected by identity provider", err)
	}

	identity.IsAdmin = s.isAdmin(identity.Handle)
	if identity.Orgs == nil {
		identity.Orgs = []string{}
	}

	s.logger.Info("identity verified",
		"handle", identity.Handle,
		"orgs", len(identity.Orgs),
		"admin", identity.IsAdmin,
	)

	return identity, nil
}

// isAdmin matches the handle against the admin allow-list. GitHub handles
// are case-insensitive.
func (s *IdentityService) isAdmin(handle string) bool {
	for _, admin := range s.adminHandles {
		if strings.EqualFold(admin, handle) {
			return true
		}
	}
	return false
}
