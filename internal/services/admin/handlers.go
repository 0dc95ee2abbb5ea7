package admin

import (
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/services/admin/approval"
	"github.com/louisbranch/noticeboard/internal/services/admin/audit"
)

// Step-up brute-force suspension.
const (
	stepUpMaxFailures = 5
	stepUpSuspension  = 30 * time.Second
)

// attemptLimiter suspends a user after repeated failed credential checks.
type attemptLimiter struct {
	mu       sync.Mutex
	failures map[string]int
	until    map[string]time.Time
	clock    func() time.Time
}

func newAttemptLimiter() *attemptLimiter {
	return &attemptLimiter{
		failures: make(map[string]int),
		until:    make(map[string]time.Time),
		clock:    time.Now,
	}
}

// Suspended reports whether the user must wait, and for how long.
func (l *attemptLimiter) Suspended(userID string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.until[userID]
	if !ok {
		return 0, false
	}
	remaining := until.Sub(l.clock())
	if remaining <= 0 {
		delete(l.until, userID)
		return 0, false
	}
	return remaining, true
}

func (l *attemptLimiter) Fail(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[userID]++
	if l.failures[userID] >= stepUpMaxFailures {
		l.until[userID] = l.clock().Add(stepUpSuspension)
		l.failures[userID] = 0
	}
}

func (l *attemptLimiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, userID)
	delete(l.until, userID)
}

// handleStepUp serves POST /auth/step-up: re-verify credentials and mint a
// short-lived elevation token for this session.
func (s *Server) handleStepUp(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSONError(w, apperrors.New(apperrors.CodeUnauthorized, "request has no identity"))
		return
	}
	if err := s.csrf.Check(r, identity.SessionID); err != nil {
		writeJSONError(w, err)
		return
	}
	if remaining, suspended := s.stepUpLimiter.Suspended(identity.UserID); suspended {
		writeRateLimited(w, int(remaining.Seconds())+1)
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	var payload struct {
		Password string `json:"password"`
		OTP      string `json:"otp"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	grant, err := s.stepUp.Issue(r.Context(), identity.UserID, identity.SessionID, payload.Password, payload.OTP)
	if err != nil {
		s.stepUpLimiter.Fail(identity.UserID)
		s.audit.MustRecord(r.Context(), audit.Entry{
			Action:   "auth:step_up",
			ActorID:  identity.UserID,
			Metadata: map[string]string{"outcome": "denied"},
		})
		writeJSONError(w, err)
		return
	}
	s.stepUpLimiter.Reset(identity.UserID)
	s.audit.MustRecord(r.Context(), audit.Entry{
		Action:   "auth:step_up",
		ActorID:  identity.UserID,
		Metadata: map[string]string{"outcome": "issued"},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     grant.Token,
		"expiresAt": grant.ExpiresAt.Format(time.RFC3339),
	})
}

// handleLogout serves POST /auth/logout: drop this session's server-side
// authorization state. The login service owns the session cookie itself.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSONError(w, apperrors.New(apperrors.CodeUnauthorized, "request has no identity"))
		return
	}
	if err := s.csrf.Check(r, identity.SessionID); err != nil {
		writeJSONError(w, err)
		return
	}
	s.stepUp.InvalidateSession(identity.SessionID)
	s.csrf.Drop(identity.SessionID)
	writeJSON(w, http.StatusNoContent, nil)
}

// decisionResponse is the payload of approve and reject endpoints.
type decisionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, func(identity string) (approval.Request, error) {
		return s.approvals.Approve(r.Context(), r.PathValue("id"), identity)
	}, "approval:approve")
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, func(identity string) (approval.Request, error) {
		var payload struct {
			Note string `json:"note"`
		}
		body, err := readBody(r)
		if err != nil {
			return approval.Request{}, err
		}
		if len(body) > 0 {
			if err := decodeJSON(body, &payload); err != nil {
				return approval.Request{}, err
			}
		}
		return s.approvals.Reject(r.Context(), r.PathValue("id"), identity, payload.Note)
	}, "approval:reject")
}

// decide runs the shared plumbing of both decision endpoints: CSRF, the
// decide permission, the transition itself, and one audit entry.
func (s *Server) decide(w http.ResponseWriter, r *http.Request, transition func(approverID string) (approval.Request, error), action string) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSONError(w, apperrors.New(apperrors.CodeUnauthorized, "request has no identity"))
		return
	}
	if err := s.csrf.Check(r, identity.SessionID); err != nil {
		writeJSONError(w, err)
		return
	}
	if err := s.matrix.Require(identity.Role, "approval:decide"); err != nil {
		writeJSONError(w, err)
		return
	}

	request, err := transition(identity.UserID)
	if err != nil {
		outcome := "denied"
		if errors.Is(err, approval.ErrSelfApproval) {
			outcome = "self_approval_blocked"
		}
		s.audit.MustRecord(r.Context(), audit.Entry{
			Action:   action,
			ActorID:  identity.UserID,
			TargetID: r.PathValue("id"),
			Metadata: map[string]string{"outcome": outcome},
		})
		writeJSONError(w, err)
		return
	}
	s.audit.MustRecord(r.Context(), audit.Entry{
		Action:   action,
		ActorID:  identity.UserID,
		TargetID: request.ID,
		Metadata: map[string]string{"outcome": string(request.Status)},
	})
	writeJSON(w, http.StatusOK, decisionResponse{ID: request.ID, Status: string(request.Status)})
}

// pendingApproval is one row in the reviewer's queue.
type pendingApproval struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Risk        string    `json:"risk"`
	RequesterID string    `json:"requesterId"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	requests, err := s.approvals.Pending(r.Context())
	if err != nil {
		writeJSONError(w, err)
		return
	}
	rows := make([]pendingApproval, 0, len(requests))
	for _, request := range requests {
		rows = append(rows, pendingApproval{
			ID:          request.ID,
			Action:      request.Action,
			Risk:        string(request.Risk),
			RequesterID: request.RequesterID,
			CreatedAt:   request.CreatedAt,
			ExpiresAt:   request.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": rows})
}

func (s *Server) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.Recent(r.Context(), 50)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// breakGlassEvent is one row in the override review feed.
type breakGlassEvent struct {
	ID         string    `json:"id"`
	ApprovalID string    `json:"approvalId"`
	OperatorID string    `json:"operatorId"`
	Reason     string    `json:"reason"`
	UsedAt     time.Time `json:"usedAt"`
}

func (s *Server) handleRecentBreakGlass(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecentBreakGlass(r.Context(), 50)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	events := make([]breakGlassEvent, 0, len(records))
	for _, record := range records {
		events = append(events, breakGlassEvent{
			ID:         record.ID,
			ApprovalID: record.ApprovalID,
			OperatorID: record.OperatorID,
			Reason:     record.Reason,
			UsedAt:     record.UsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
