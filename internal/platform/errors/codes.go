// Package errors provides structured error handling for the admin plane.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument represents a malformed request.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Credential context errors
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeCsrfInvalid        Code = "CSRF_INVALID"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"

	// Step-up errors
	CodeStepUpRequired Code = "STEP_UP_REQUIRED"
	CodeStepUpInvalid  Code = "STEP_UP_INVALID"

	// Approval ledger errors
	CodeApprovalRequired      Code = "APPROVAL_REQUIRED"
	CodeApprovalInvalid       Code = "APPROVAL_INVALID"
	CodeSelfApprovalForbidden Code = "SELF_APPROVAL_FORBIDDEN"

	// Request plumbing errors
	CodeIdempotencyKeyMissing Code = "IDEMPOTENCY_KEY_MISSING"
	CodeIdempotencyKeyReused  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimited           Code = "RATE_LIMITED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodePermissionDenied,
		CodeCsrfInvalid,
		CodeInvalidCredentials,
		CodeStepUpRequired,
		CodeStepUpInvalid,
		CodeSelfApprovalForbidden:
		return http.StatusForbidden
	case CodeApprovalRequired,
		CodeApprovalInvalid,
		CodeIdempotencyKeyReused:
		return http.StatusConflict
	case CodeIdempotencyKeyMissing,
		CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Wire returns the lowercase code used in JSON error responses.
func (c Code) Wire() string {
	if name, ok := wireNames[c]; ok {
		return name
	}
	return "internal"
}

var wireNames = map[Code]string{
	CodeInvalidArgument:       "invalid_argument",
	CodeUnauthorized:          "unauthorized",
	CodePermissionDenied:      "permission_denied",
	CodeCsrfInvalid:           "csrf_invalid",
	CodeInvalidCredentials:    "invalid_credentials",
	CodeStepUpRequired:        "step_up_required",
	CodeStepUpInvalid:         "step_up_invalid",
	CodeApprovalRequired:      "approval_required",
	CodeApprovalInvalid:       "approval_invalid",
	CodeSelfApprovalForbidden: "self_approval_forbidden",
	CodeIdempotencyKeyMissing: "idempotency_key_missing",
	CodeIdempotencyKeyReused:  "idempotency_key_reused",
	CodeRateLimited:           "rate_limited",
	CodeNotFound:              "not_found",
}
