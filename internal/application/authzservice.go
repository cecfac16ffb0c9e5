package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// AuthzService decides whether a session may act on a named organization.
// Every decision, allowed or denied, is written to the audit sink.
type AuthzService struct {
	allowedOrgs []string
	audit       driven.AuditSink
	logger      *slog.Logger

	now func() time.Time
}

// NewAuthzService creates an AuthzService. allowedOrgs may be empty, in
// which case rule (3) below never denies.
func NewAuthzService(allowedOrgs []string, audit driven.AuditSink, logger *slog.Logger) *AuthzService {
	return &AuthzService{
		allowedOrgs: allowedOrgs,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// CanAccess evaluates, in order: (1) admin sessions may access any org;
// (2) org membership grants access; (3) a non-empty org allow-list denies
// orgs outside it; (4) default allow. Membership therefore always overrides
// the allow-list, and the allow-list only restricts identities with no
// membership signal. Denials carry only the org name, never the reason a
// membership lookup failed.
func (s *AuthzService) CanAccess(ctx context.Context, claims *model.SessionClaims, org, action string) error {
	allowed, reason := s.decide(claims.Identity, org)

	s.record(ctx, model.AuthzDecision{
		Timestamp: s.now().UTC(),
		Handle:    claims.Identity.Handle,
		Org:       org,
		Action:    action,
		Allowed:   allowed,
		Reason:    reason,
	})

	if !allowed {
		return apperror.Newf(apperror.CodeOrgAccessDenied, "access to organization %q denied", org)
	}
	return nil
}

func (s *AuthzService) decide(identity model.Identity, org string) (bool, string) {
	if identity.IsAdmin {
		return true, "admin"
	}
	if identity.MemberOf(org) {
		return true, "org membership"
	}
	if len(s.allowedOrgs) > 0 && !contains(s.allowedOrgs, org) {
		return false, "org not in allow-list"
	}
	return true, "default allow"
}

// record writes the decision to the audit sink. A sink failure must not
// turn an allowed request into a denied one, so it is logged and dropped.
func (s *AuthzService) record(ctx context.Context, decision model.AuthzDecision) {
	if err := s.audit.AppendDecision(ctx, decision); err != nil {
		s.logger.Error("failed to record authz decision",
			"handle", decision.Handle,
			"org", decision.Org,
			"action", decision.Action,
			"error", err,
		)
	}
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
