// Package httphandler is the HTTP driving adapter serving the REST API.
package httphandler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/application"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

// maxRequestRepos caps the repository list accepted by a single readiness
// or approval request.
const maxRequestRepos = 50

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	identity  *application.IdentityService
	sessions  *application.SessionService
	authz     *application.AuthzService
	readiness *application.ReadinessService
	approvals *application.ApprovalService
	adoption  *application.AdoptionService

	identityLimiter *application.RateLimiter
	globalLimiter   *application.RateLimiter

	production bool
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	identity *application.IdentityService,
	sessions *application.SessionService,
	authz *application.AuthzService,
	readiness *application.ReadinessService,
	approvals *application.ApprovalService,
	adoption *application.AdoptionService,
	identityLimiter *application.RateLimiter,
	globalLimiter *application.RateLimiter,
	production bool,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		identity:        identity,
		sessions:        sessions,
		authz:           authz,
		readiness:       readiness,
		approvals:       approvals,
		adoption:        adoption,
		identityLimiter: identityLimiter,
		globalLimiter:   globalLimiter,
		production:      production,
		logger:          logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and
// wrapped with origin, logging, and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger, allowedOrigin string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/session", h.ExchangeCredential)
	mux.HandleFunc("GET /api/v1/orgs/{org}/readiness", h.GetReadiness)
	mux.HandleFunc("POST /api/v1/orgs/{org}/approvals", h.ApproveRollout)
	mux.HandleFunc("GET /api/v1/orgs/{org}/rollouts", h.ListRollouts)
	mux.HandleFunc("GET /api/v1/orgs/{org}/adoption", h.GetAdoption)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = originMiddleware(allowedOrigin, wrapped)

	return wrapped
}

// ExchangeCredential exchanges an external credential for a session token.
// Unauthenticated, so rate limiting keys on the caller's address.
func (h *Handler) ExchangeCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.globalLimiter.Allow("global"); err != nil {
		writeAppError(w, err, h.production)
		return
	}
	if err := h.identityLimiter.Allow("addr:" + remoteHost(r)); err != nil {
		writeAppError(w, err, h.production)
		return
	}

	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperror.CodeValidationError, "invalid request body")
		return
	}

	identity, err := h.identity.ExchangeCredential(r.Context(), req.Credential)
	if err != nil {
		writeAppError(w, err, h.production)
		return
	}

	token, err := h.sessions.Issue(*identity)
	if err != nil {
		h.logger.Error("failed to issue session", "handle", identity.Handle, "error", err)
		writeAppError(w, apperror.Wrap(apperror.CodeInternal, "failed to issue session", err), h.production)
		return
	}

	claims, err := h.sessions.Verify(token)
	if err != nil {
		h.logger.Error("freshly issued session failed verification", "handle", identity.Handle, "error", err)
		writeAppError(w, apperror.Wrap(apperror.CodeInternal, "failed to issue session", err), h.production)
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{
		Token:     token,
		Handle:    identity.Handle,
		Admin:     identity.IsAdmin,
		Orgs:      identity.Orgs,
		ExpiresAt: claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// GetReadiness computes a fresh readiness report for the org and the
// repository set given in the repos query parameter.
func (h *Handler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	claims, ok := h.authorize(w, r, org, "readiness")
	if !ok {
		return
	}

	repos, err := parseRepoList(r.URL.Query().Get("repos"))
	if err != nil {
		writeAppError(w, err, h.production)
		return
	}

	report, err := h.readiness.Evaluate(r.Context(), org, repos)
	if err != nil {
		h.logger.Error("readiness evaluation failed", "org", org, "handle", claims.Identity.Handle, "error", err)
		writeAppError(w, err, h.production)
		return
	}

	writeJSON(w, http.StatusOK, toReadinessResponse(report))
}

// ApproveRollout re-validates readiness and dispatches an approved rollout.
// The approver is always the session identity; the request body cannot
// claim a different one.
func (h *Handler) ApproveRollout(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	claims, ok := h.authorize(w, r, org, "approve")
	if !ok {
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperror.CodeValidationError, "invalid request body")
		return
	}

	record, report, err := h.approvals.Approve(r.Context(), org, req.Repos, model.RolloutType(req.RolloutType), claims.Identity.Handle)
	if err != nil {
		switch apperror.CodeOf(err) {
		case apperror.CodePrerequisitesNotMet:
			// Return the fresh report so the caller can see exactly which
			// repositories blocked the rollout.
			writeAppErrorData(w, err, h.production, toReadinessResponse(report))
		case apperror.CodeDispatchFailed:
			writeAppErrorData(w, err, h.production, toApprovalResponse(*record))
		default:
			writeAppError(w, err, h.production)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toApprovalResponse(*record))
}

// ListRollouts returns recent approval records for the org.
func (h *Handler) ListRollouts(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	if _, ok := h.authorize(w, r, org, "rollout-status"); !ok {
		return
	}

	records, err := h.approvals.RecentRollouts(r.Context(), org)
	if err != nil {
		h.logger.Error("failed to list rollouts", "org", org, "error", err)
		writeAppError(w, apperror.Wrap(apperror.CodeInternal, "failed to list rollouts", err), h.production)
		return
	}

	resp := make([]ApprovalResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toApprovalResponse(record))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetAdoption reports standardized-workflow adoption across the org.
func (h *Handler) GetAdoption(w http.ResponseWriter, r *http.Request) {
	org := r.PathValue("org")
	claims, ok := h.authorize(w, r, org, "adoption")
	if !ok {
		return
	}

	report, err := h.adoption.Report(r.Context(), org)
	if err != nil {
		h.logger.Error("adoption report failed", "org", org, "handle", claims.Identity.Handle, "error", err)
		writeAppError(w, err, h.production)
		return
	}

	writeJSON(w, http.StatusOK, toAdoptionResponse(report))
}

// Health returns a simple health check response. Unauthenticated and
// unthrottled so liveness probes never trip the rate limiter.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// authorize runs the request gate: aggregate rate limit, session
// verification, per-identity rate limit, then organization access. It
// writes the failure response itself and reports whether the request may
// proceed.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, org, action string) (*model.SessionClaims, bool) {
	if err := h.globalLimiter.Allow("global"); err != nil {
		writeAppError(w, err, h.production)
		return nil, false
	}

	claims, err := h.sessionFromRequest(r)
	if err != nil {
		writeAppError(w, err, h.production)
		return nil, false
	}

	if err := h.identityLimiter.Allow(claims.Identity.Handle); err != nil {
		writeAppError(w, err, h.production)
		return nil, false
	}

	if err := h.authz.CanAccess(r.Context(), claims, org, action); err != nil {
		h.logger.Info("org access denied",
			"org", org,
			"handle", claims.Identity.Handle,
			"action", action,
		)
		writeAppError(w, err, h.production)
		return nil, false
	}

	return claims, true
}

// sessionFromRequest extracts and verifies the bearer session token.
func (h *Handler) sessionFromRequest(r *http.Request) (*model.SessionClaims, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return nil, apperror.New(apperror.CodeSessionInvalid, "missing session token")
	}
	return h.sessions.Verify(token)
}

// parseRepoList splits and validates the comma-separated repos parameter.
func parseRepoList(raw string) ([]string, error) {
	var repos []string
	for _, repo := range strings.Split(raw, ",") {
		repo = strings.TrimSpace(repo)
		if repo != "" {
			repos = append(repos, repo)
		}
	}

	if len(repos) == 0 {
		return nil, apperror.New(apperror.CodeValidationError, "invalid request").
			WithDetails("repos query parameter must name at least one repository")
	}
	if len(repos) > maxRequestRepos {
		return nil, apperror.New(apperror.CodeValidationError, "invalid request").
			WithDetails("repos exceeds the maximum of 50")
	}

	return repos, nil
}

// remoteHost extracts the host part of the caller's address for
// pre-authentication rate limiting.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
