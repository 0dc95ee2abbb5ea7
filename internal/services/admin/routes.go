package admin

import (
	"context"
	"net/http"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/platform/requestctx"
	"github.com/louisbranch/noticeboard/internal/services/admin/announce"
)

// Handler builds the admin plane's routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/csrf", s.requireSession(s.handleCsrfToken))
	mux.HandleFunc("POST /auth/step-up", s.requireSession(s.handleStepUp))
	mux.HandleFunc("POST /auth/logout", s.requireSession(s.handleLogout))

	mux.HandleFunc("POST /approvals/{id}/approve", s.requireSession(s.handleApprove))
	mux.HandleFunc("POST /approvals/{id}/reject", s.requireSession(s.handleReject))
	mux.HandleFunc("GET /approvals/pending", s.requireSession(s.handlePendingApprovals))
	mux.HandleFunc("GET /audit/recent", s.requireSession(s.handleRecentAudit))
	mux.HandleFunc("GET /breakglass/recent", s.requireSession(s.handleRecentBreakGlass))

	mux.HandleFunc("POST /announcements/{id}/publish", s.requireSession(s.guard(guardedRoute{
		action:     "announcement:publish",
		permission: "announcement:publish",
		execute: func(ctx context.Context, _ requestctx.Identity, r *http.Request, _ []byte) (int, any, error) {
			record, err := s.announcements.Publish(ctx, r.PathValue("id"))
			return http.StatusOK, record, err
		},
	})))

	mux.HandleFunc("POST /announcements/{id}/reject", s.requireSession(s.guard(guardedRoute{
		action:     "announcement:reject",
		permission: "announcement:reject",
		execute: func(ctx context.Context, _ requestctx.Identity, r *http.Request, _ []byte) (int, any, error) {
			record, err := s.announcements.Reject(ctx, r.PathValue("id"))
			return http.StatusOK, record, err
		},
	})))

	mux.HandleFunc("POST /announcements/{id}/rollback", s.requireSession(s.guard(guardedRoute{
		action:     "announcement:rollback",
		permission: "announcement:rollback",
		// Restoring a published snapshot puts content back in front of
		// readers, so it is classified as a publish.
		classify: func(ctx context.Context, r *http.Request, _ []byte) (string, int, error) {
			if status, ok := s.announcements.SnapshotStatus(ctx, r.PathValue("id")); ok && status == announce.StatusPublished {
				return "announcement:publish", 1, nil
			}
			return "announcement:rollback", 1, nil
		},
		execute: func(ctx context.Context, _ requestctx.Identity, r *http.Request, _ []byte) (int, any, error) {
			record, err := s.announcements.Rollback(ctx, r.PathValue("id"))
			return http.StatusOK, record, err
		},
	})))

	mux.HandleFunc("DELETE /announcements/{id}", s.requireSession(s.guard(guardedRoute{
		action:     "announcement:delete",
		permission: "announcement:delete",
		execute: func(ctx context.Context, _ requestctx.Identity, r *http.Request, _ []byte) (int, any, error) {
			record, err := s.announcements.Delete(ctx, r.PathValue("id"))
			return http.StatusOK, record, err
		},
	})))

	mux.HandleFunc("POST /announcements/bulk/publish", s.requireSession(s.guard(guardedRoute{
		action:     "announcement:bulk_publish",
		permission: "announcement:bulk_publish",
		classify:   classifyBulk("announcement:bulk_publish"),
		execute: func(ctx context.Context, _ requestctx.Identity, _ *http.Request, body []byte) (int, any, error) {
			ids, err := bulkIDs(body)
			if err != nil {
				return 0, nil, err
			}
			records, err := s.announcements.BulkPublish(ctx, ids)
			return http.StatusOK, map[string]any{"announcements": records}, err
		},
	})))

	mux.HandleFunc("POST /announcements/bulk/delete", s.requireSession(s.guard(guardedRoute{
		action:     "announcement:bulk_delete",
		permission: "announcement:bulk_delete",
		classify:   classifyBulk("announcement:bulk_delete"),
		execute: func(ctx context.Context, _ requestctx.Identity, _ *http.Request, body []byte) (int, any, error) {
			ids, err := bulkIDs(body)
			if err != nil {
				return 0, nil, err
			}
			records, err := s.announcements.BulkDelete(ctx, ids)
			return http.StatusOK, map[string]any{"announcements": records}, err
		},
	})))

	mux.HandleFunc("POST /sessions/terminate-others", s.requireSession(s.guard(guardedRoute{
		action:     "session:terminate_others",
		permission: "session:terminate_others",
		execute: func(ctx context.Context, identity requestctx.Identity, _ *http.Request, _ []byte) (int, any, error) {
			terminated := s.announcements.TerminateOtherSessions(ctx, identity.UserID, identity.SessionID)
			return http.StatusOK, map[string]any{"success": true, "terminated": terminated}, nil
		},
	})))

	return mux
}

// bulkIDs parses the shared bulk request body.
func bulkIDs(body []byte) ([]string, error) {
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		return nil, err
	}
	if len(payload.IDs) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "ids must not be empty")
	}
	return payload.IDs, nil
}

// classifyBulk reports the batch size so risk classification can escalate
// large batches.
func classifyBulk(action string) func(context.Context, *http.Request, []byte) (string, int, error) {
	return func(_ context.Context, _ *http.Request, body []byte) (string, int, error) {
		ids, err := bulkIDs(body)
		if err != nil {
			return "", 0, err
		}
		return action, len(ids), nil
	}
}
