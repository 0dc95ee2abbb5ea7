// Package admin serves the operator plane: session-scoped admin endpoints
// where every mutation passes through layered authorization before it runs.
package admin

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
)

// Header and cookie names shared with the admin client.
const (
	sessionCookieName = "nb_token"
	csrfCookieName    = "nb_csrf"

	headerCsrfToken      = "X-CSRF-Token"
	headerStepUpToken    = "X-Admin-Step-Up-Token"
	headerApprovalID     = "X-Admin-Approval-Id"
	headerBreakGlass     = "X-Admin-Break-Glass-Reason"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotency-Replayed"
)

// maxBodyBytes caps admin request bodies. Operator payloads are small.
const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response. A refusal reason, when
// present, is surfaced as a top-level field.
type errorBody struct {
	Error    string            `json:"error"`
	Reason   string            `json:"reason,omitempty"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("admin: encode response: %v", err)
	}
}

// writeRaw replays a previously encoded response verbatim.
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			log.Printf("admin: write response: %v", err)
		}
	}
}

func writeJSONError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		log.Printf("admin: internal error: %v", err)
		appErr = apperrors.New(apperrors.CodeUnknown, "internal error")
	}
	writeJSON(w, appErr.Code.HTTPStatus(), errorBody{
		Error:    appErr.Code.Wire(),
		Reason:   appErr.Metadata["reason"],
		Message:  appErr.Message,
		Metadata: appErr.Metadata,
	})
}

// writeRateLimited emits a 429 with a Retry-After hint in seconds.
func writeRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:   apperrors.CodeRateLimited.Wire(),
		Message: "too many attempts, slow down",
	})
}

// readBody drains a bounded request body so it can be hashed and re-parsed.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "read request body", err)
	}
	return body, nil
}

func decodeJSON(body []byte, target any) error {
	if len(body) == 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "request body is required")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "decode request body", err)
	}
	return nil
}
