package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/platform/id"
	"github.com/louisbranch/noticeboard/internal/platform/requestctx"
	"github.com/louisbranch/noticeboard/internal/platform/timeouts"
	"github.com/louisbranch/noticeboard/internal/services/admin/approval"
	"github.com/louisbranch/noticeboard/internal/services/admin/audit"
	"github.com/louisbranch/noticeboard/internal/services/admin/fingerprint"
	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
)

// guardedRoute describes one mutation behind the authorization pipeline.
type guardedRoute struct {
	// action names the mutation for permissions, risk, and audit.
	action string
	// permission is checked against the operator's role.
	permission string
	// classify optionally reclassifies the action and target count from the
	// request, e.g. a rollback into a published snapshot counts as a publish.
	classify func(ctx context.Context, r *http.Request, body []byte) (string, int, error)
	// execute runs the mutation after every check has passed.
	execute func(ctx context.Context, identity requestctx.Identity, r *http.Request, body []byte) (int, any, error)
}

// queuedResponse is the 202 payload when a mutation needs a second approver.
type queuedResponse struct {
	RequiresApproval bool                 `json:"requiresApproval"`
	ApprovalID       string               `json:"approvalId"`
	BreakGlass       breakglassAdvertised `json:"breakGlass"`
}

type breakglassAdvertised struct {
	Enabled         bool `json:"enabled"`
	MinReasonLength int  `json:"minReasonLength"`
}

// guard wraps a mutation in the full authorization pipeline. The checks run
// in a fixed order: CSRF, idempotency replay, step-up, permission, risk
// classification, approval or break-glass, then execution. Every terminal
// outcome leaves exactly one audit entry.
func (s *Server) guard(route guardedRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Mutation)
		defer cancel()

		identity, ok := identityFrom(r)
		if !ok {
			writeJSONError(w, apperrors.New(apperrors.CodeUnauthorized, "request has no identity"))
			return
		}

		ctx, span := s.tracer.Start(ctx, "admin.mutation",
			trace.WithAttributes(
				attribute.String("admin.action", route.action),
				attribute.String("admin.actor", identity.UserID),
			))
		defer span.End()

		body, err := readBody(r)
		if err != nil {
			writeJSONError(w, err)
			return
		}
		actionFingerprint := fingerprint.Compute(r.Method, r.URL.Path, body)

		if err := s.csrf.Check(r, identity.SessionID); err != nil {
			s.denied(ctx, span, w, route.action, identity, err)
			return
		}

		idempotencyKey := r.Header.Get(headerIdempotencyKey)
		if idempotencyKey == "" {
			s.denied(ctx, span, w, route.action, identity,
				apperrors.New(apperrors.CodeIdempotencyKeyMissing, "Idempotency-Key header is required"))
			return
		}
		if outcome, found, err := s.replay(ctx, idempotencyKey, actionFingerprint); err != nil {
			s.denied(ctx, span, w, route.action, identity, err)
			return
		} else if found {
			span.SetAttributes(attribute.String("admin.outcome", "replayed"))
			w.Header().Set(headerReplayed, "true")
			writeRaw(w, outcome.Status, outcome.Body)
			return
		}

		if err := s.stepUp.Check(r.Header.Get(headerStepUpToken), identity.SessionID); err != nil {
			s.denied(ctx, span, w, route.action, identity, err)
			return
		}

		if err := s.matrix.Require(identity.Role, route.permission); err != nil {
			s.denied(ctx, span, w, route.action, identity, err)
			return
		}

		action, targetCount := route.action, 1
		if route.classify != nil {
			action, targetCount, err = route.classify(ctx, r, body)
			if err != nil {
				s.denied(ctx, span, w, route.action, identity, err)
				return
			}
		}
		decision := s.policy.Classify(action, identity.Role, targetCount)
		span.SetAttributes(
			attribute.String("admin.risk", string(decision.Risk)),
			attribute.Bool("admin.requires_approval", decision.Required),
		)

		breakGlassReason := ""
		if decision.Required {
			approvalID := r.Header.Get(headerApprovalID)
			reason := r.Header.Get(headerBreakGlass)
			switch {
			case approvalID != "":
				if _, err := s.approvals.ValidateForExecution(ctx, approvalID, actionFingerprint, identity.UserID); err != nil {
					s.denied(ctx, span, w, action, identity, err)
					return
				}
			case reason != "":
				// A refused override leaves the ordinary dual-control
				// flow standing.
				if err := s.breakGlass.Evaluate(decision.Risk, reason); err != nil {
					s.queue(ctx, span, w, action, actionFingerprint, identity, decision)
					return
				}
				breakGlassReason = reason
			default:
				s.queue(ctx, span, w, action, actionFingerprint, identity, decision)
				return
			}
		}

		status, payload, err := route.execute(ctx, identity, r, body)
		if err != nil {
			s.denied(ctx, span, w, action, identity, err)
			return
		}

		encoded, err := json.Marshal(payload)
		if err != nil {
			s.denied(ctx, span, w, action, identity, apperrors.Wrap(apperrors.CodeUnknown, "encode outcome", err))
			return
		}
		s.remember(ctx, idempotencyKey, actionFingerprint, status, encoded)

		outcome := "executed"
		if breakGlassReason != "" {
			outcome = "executed_break_glass"
			if err := s.recordBreakGlass(ctx, identity, action, actionFingerprint, decision.Risk, breakGlassReason); err != nil {
				log.Printf("admin: record break glass trail: %v", err)
			}
		}
		span.SetAttributes(attribute.String("admin.outcome", outcome))
		s.audit.MustRecord(ctx, audit.Entry{
			Action:   action,
			ActorID:  identity.UserID,
			TargetID: r.PathValue("id"),
			Metadata: map[string]string{
				"outcome":     outcome,
				"fingerprint": actionFingerprint,
				"risk":        string(decision.Risk),
			},
		})
		writeRaw(w, status, encoded)
	}
}

// replay looks up a completed outcome for the idempotency key. A key reused
// for a different request is refused rather than replayed.
func (s *Server) replay(ctx context.Context, key, actionFingerprint string) (storage.IdempotencyRecord, bool, error) {
	record, err := s.store.GetOutcome(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.IdempotencyRecord{}, false, nil
		}
		return storage.IdempotencyRecord{}, false, err
	}
	if record.Fingerprint != actionFingerprint {
		return storage.IdempotencyRecord{}, false,
			apperrors.New(apperrors.CodeIdempotencyKeyReused, "idempotency key was used for a different request")
	}
	return record, true, nil
}

// remember persists the first outcome for a key. Losing the insert race is
// fine; the winner's outcome is the one future replays must see.
func (s *Server) remember(ctx context.Context, key, actionFingerprint string, status int, body []byte) {
	err := s.store.PutOutcome(ctx, storage.IdempotencyRecord{
		Key:         key,
		Fingerprint: actionFingerprint,
		Status:      status,
		Body:        body,
	})
	if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		log.Printf("admin: record idempotent outcome: %v", err)
	}
}

// queue creates a pending approval request and answers 202.
func (s *Server) queue(ctx context.Context, span trace.Span, w http.ResponseWriter, action, actionFingerprint string, identity requestctx.Identity, decision approval.Decision) {
	request, err := s.approvals.Create(ctx, identity.UserID, action, actionFingerprint, decision.Risk)
	if err != nil {
		s.denied(ctx, span, w, action, identity, err)
		return
	}
	span.SetAttributes(attribute.String("admin.outcome", "queued"))
	s.audit.MustRecord(ctx, audit.Entry{
		Action:   action,
		ActorID:  identity.UserID,
		TargetID: request.ID,
		Metadata: map[string]string{
			"outcome":     "queued",
			"fingerprint": actionFingerprint,
			"risk":        string(decision.Risk),
		},
	})
	advertised := s.breakGlass.Describe(decision.Risk)
	writeJSON(w, http.StatusAccepted, queuedResponse{
		RequiresApproval: true,
		ApprovalID:       request.ID,
		BreakGlass: breakglassAdvertised{
			Enabled:         advertised.Enabled,
			MinReasonLength: advertised.MinReasonLength,
		},
	})
}

// recordBreakGlass writes an emergency override's ledger trail once the
// mutation has run, so the event only ever points at a mutation that
// happened. The ledger still gets a request row so the audit trail shows
// what was bypassed; the row is closed immediately since no approver will
// ever decide it.
func (s *Server) recordBreakGlass(ctx context.Context, identity requestctx.Identity, action, actionFingerprint string, risk approval.Risk, reason string) error {
	request, err := s.approvals.Create(ctx, identity.UserID, action, actionFingerprint, risk)
	if err != nil {
		return err
	}
	if err := s.approvals.CloseForBreakGlass(ctx, request.ID); err != nil {
		return err
	}
	eventID, err := id.NewID()
	if err != nil {
		return err
	}
	return s.store.AppendBreakGlass(ctx, storage.BreakGlassRecord{
		ID:         eventID,
		ApprovalID: request.ID,
		OperatorID: identity.UserID,
		Reason:     reason,
		UsedAt:     time.Now().UTC(),
	})
}

// denied writes the failure response and audits the refusal.
func (s *Server) denied(ctx context.Context, span trace.Span, w http.ResponseWriter, action string, identity requestctx.Identity, err error) {
	wire := "internal"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		wire = appErr.Code.Wire()
	}
	span.SetAttributes(attribute.String("admin.outcome", "denied:"+wire))
	s.audit.MustRecord(ctx, audit.Entry{
		Action:  action,
		ActorID: identity.UserID,
		Metadata: map[string]string{
			"outcome": "denied",
			"error":   wire,
		},
	})
	writeJSONError(w, err)
}
