package server

import (
	"errors"
	"net/http"

	"github.com/sungjin9288/DecisionDoc-AI/internal/generation"
	"github.com/sungjin9288/DecisionDoc-AI/internal/ops"
	"github.com/sungjin9288/DecisionDoc-AI/internal/storage"
)

// Error codes of the wire contract. Every failed request carries exactly
// one of these.
const (
	CodeMaintenanceMode         = "MAINTENANCE_MODE"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeRequestValidationFailed = "REQUEST_VALIDATION_FAILED"
	CodeProviderFailed          = "PROVIDER_FAILED"
	CodeEvalLintFailed          = "EVAL_LINT_FAILED"
	CodeDocValidationFailed     = "DOC_VALIDATION_FAILED"
	CodeStorageFailed           = "STORAGE_FAILED"
	CodeOpsNotifyFailed         = "OPS_NOTIFY_FAILED"
	CodeInternalError           = "INTERNAL_ERROR"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	RequestID string   `json:"request_id"`
	Details   []string `json:"details,omitempty"`
}

// apiError pairs an error code with its HTTP status and safe message.
type apiError struct {
	status  int
	code    string
	message string
	details []string
}

// mapError classifies any error from the handlers onto the wire contract.
// Messages are written fresh here; internal error text never leaks.
func mapError(err error) apiError {
	if failure, ok := generation.AsFailure(err); ok {
		switch failure.Kind {
		case generation.FailureProvider:
			return apiError{http.StatusInternalServerError, CodeProviderFailed,
				"document generation provider failed", nil}
		case generation.FailureLints:
			return apiError{http.StatusInternalServerError, CodeEvalLintFailed,
				"generated documents failed quality lints", failure.Details}
		case generation.FailureValidation:
			return apiError{http.StatusInternalServerError, CodeDocValidationFailed,
				"generated documents failed structural validation", failure.Details}
		case generation.FailureStorage:
			return apiError{http.StatusInternalServerError, CodeStorageFailed,
				"failed to persist artifacts", nil}
		}
	}
	if errors.Is(err, ops.ErrNotifyFailed) {
		return apiError{http.StatusInternalServerError, CodeOpsNotifyFailed,
			"incident notification failed", nil}
	}
	if errors.Is(err, storage.ErrStorageFailed) {
		return apiError{http.StatusInternalServerError, CodeStorageFailed,
			"failed to persist artifacts", nil}
	}
	return apiError{http.StatusInternalServerError, CodeInternalError,
		"internal error", nil}
}
