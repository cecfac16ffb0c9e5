package httphandler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

// envelope is the standard response wrapper: every response carries a
// success flag and an ISO-8601 timestamp.
type envelope struct {
	Success   bool       `json:"success"`
	Timestamp string     `json:"timestamp"`
	Data      any        `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
}

// errorBody carries a stable machine-readable code plus a human-readable
// message. Details and ResetAt appear only for the codes that define them.
type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	ResetAt string   `json:"reset_at,omitempty"`
}

// writeJSON marshals the envelope around v and writes it with the given
// status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	writeEnvelope(w, status, envelope{
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      v,
	})
}

// writeAppError maps a coded application error to an HTTP status and a
// failure envelope. In production the message of internal errors is
// replaced with a generic one so internals never leak; other codes carry
// caller-safe messages by construction.
func writeAppError(w http.ResponseWriter, err error, production bool) {
	writeAppErrorData(w, err, production, nil)
}

// writeAppErrorData is writeAppError with an additional data payload, used
// by failure paths that return diagnostics (the fresh readiness report on
// prerequisites_not_met, the audit record on dispatch_failed).
func writeAppErrorData(w http.ResponseWriter, err error, production bool, data any) {
	code := apperror.CodeOf(err)

	body := &errorBody{
		Code:    string(code),
		Message: "internal server error",
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		if code != apperror.CodeInternal || !production {
			body.Message = appErr.Message
		}
		body.Details = appErr.Details
		if !appErr.ResetAt.IsZero() {
			body.ResetAt = appErr.ResetAt.UTC().Format(time.RFC3339)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(appErr.ResetAt)))
		}
	} else if !production {
		body.Message = err.Error()
	}

	writeEnvelope(w, statusForCode(code), envelope{
		Success:   false,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		Error:     body,
	})
}

// retryAfterSeconds converts a reset time into the delay-seconds form the
// Retry-After header requires, rounded up so clients never retry early.
func retryAfterSeconds(resetAt time.Time) int {
	secs := int(math.Ceil(time.Until(resetAt).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}

// writeError writes a failure envelope for a handler-level problem that has
// no application error behind it.
func writeError(w http.ResponseWriter, status int, code apperror.Code, message string) {
	writeEnvelope(w, status, envelope{
		Success:   false,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error:     &errorBody{Code: string(code), Message: message},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"internal_error","message":"internal server error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// statusForCode maps the error taxonomy to HTTP statuses.
func statusForCode(code apperror.Code) int {
	switch code {
	case apperror.CodeCredentialInvalid, apperror.CodeSessionInvalid:
		return http.StatusUnauthorized
	case apperror.CodeOrgAccessDenied, apperror.CodeAdminRequired:
		return http.StatusForbidden
	case apperror.CodeValidationError:
		return http.StatusBadRequest
	case apperror.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case apperror.CodePrerequisitesNotMet:
		return http.StatusConflict
	case apperror.CodeDispatchFailed, apperror.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ExchangeRequest is the JSON body for the credential exchange endpoint.
type ExchangeRequest struct {
	Credential string `json:"credential"`
}

// SessionResponse is the JSON representation of a freshly issued session.
type SessionResponse struct {
	Token     string   `json:"token"`
	Handle    string   `json:"handle"`
	Admin     bool     `json:"admin"`
	Orgs      []string `json:"orgs"`
	ExpiresAt string   `json:"expires_at"`
}

// ApproveRequest is the JSON body for the approval endpoint.
type ApproveRequest struct {
	Repos       []string `json:"repos"`
	RolloutType string   `json:"rollout_type"`
}

// IssueResponse is one readiness finding.
type IssueResponse struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// RepoReadinessResponse is the per-repository readiness result.
type RepoReadinessResponse struct {
	Repo   string          `json:"repo"`
	Ready  bool            `json:"ready"`
	Issues []IssueResponse `json:"issues"`
}

// ReadinessResponse is the JSON representation of a readiness report.
type ReadinessResponse struct {
	Org          string                  `json:"org"`
	Total        int                     `json:"total"`
	Ready        int                     `json:"ready"`
	AllReady     bool                    `json:"all_ready"`
	Repositories []RepoReadinessResponse `json:"repositories"`
	CheckedAt    string                  `json:"checked_at"`
}

// ApprovalResponse is the JSON representation of an approval record.
type ApprovalResponse struct {
	ID             string   `json:"id"`
	CorrelationID  string   `json:"correlation_id"`
	Org            string   `json:"org"`
	Repos          []string `json:"repos"`
	RolloutType    string   `json:"rollout_type"`
	ApprovedBy     string   `json:"approved_by"`
	DispatchTarget string   `json:"dispatch_target"`
	Outcome        string   `json:"outcome"`
	ValidatedAt    string   `json:"validated_at"`
	DispatchedAt   string   `json:"dispatched_at"`
}

// RepoAdoptionResponse is the per-repository adoption result.
type RepoAdoptionResponse struct {
	Repo    string `json:"repo"`
	Adopted bool   `json:"adopted"`
}

// AdoptionResponse is the JSON representation of an adoption report.
type AdoptionResponse struct {
	Org          string                 `json:"org"`
	WorkflowPath string                 `json:"workflow_path"`
	Total        int                    `json:"total"`
	Adopted      int                    `json:"adopted"`
	Repositories []RepoAdoptionResponse `json:"repositories"`
	CheckedAt    string                 `json:"checked_at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// toReadinessResponse converts a domain ReadinessReport to its JSON
// representation.
func toReadinessResponse(report *model.ReadinessReport) ReadinessResponse {
	repos := make([]RepoReadinessResponse, 0, len(report.Repositories))
	for _, r := range report.Repositories {
		issues := make([]IssueResponse, 0, len(r.Issues))
		for _, issue := range r.Issues {
			issues = append(issues, IssueResponse{
				Severity: string(issue.Severity),
				Message:  issue.Message,
			})
		}
		repos = append(repos, RepoReadinessResponse{
			Repo:   r.Repo,
			Ready:  r.Ready,
			Issues: issues,
		})
	}

	return ReadinessResponse{
		Org:          report.Org,
		Total:        report.Total,
		Ready:        report.Ready,
		AllReady:     report.AllReady,
		Repositories: repos,
		CheckedAt:    report.CheckedAt.UTC().Format(time.RFC3339),
	}
}

// toApprovalResponse converts a domain ApprovalRecord to its JSON
// representation.
func toApprovalResponse(record model.ApprovalRecord) ApprovalResponse {
	return ApprovalResponse{
		ID:             record.ID,
		CorrelationID:  record.CorrelationID,
		Org:            record.Org,
		Repos:          record.Repos,
		RolloutType:    string(record.RolloutType),
		ApprovedBy:     record.ApprovedBy,
		DispatchTarget: record.DispatchTarget,
		Outcome:        string(record.Outcome),
		ValidatedAt:    record.ValidatedAt.UTC().Format(time.RFC3339),
		DispatchedAt:   record.DispatchedAt.UTC().Format(time.RFC3339),
	}
}

// toAdoptionResponse converts a domain AdoptionReport to its JSON
// representation.
func toAdoptionResponse(report *model.AdoptionReport) AdoptionResponse {
	repos := make([]RepoAdoptionResponse, 0, len(report.Repositories))
	for _, r := range report.Repositories {
		repos = append(repos, RepoAdoptionResponse{Repo: r.Repo, Adopted: r.Adopted})
	}

	return AdoptionResponse{
		Org:          report.Org,
		WorkflowPath: report.WorkflowPath,
		Total:        report.Total,
		Adopted:      report.Adopted,
		Repositories: repos,
		CheckedAt:    report.CheckedAt.UTC().Format(time.RFC3339),
	}
}
