package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/platform/id"
	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
)

// defaultExpiry bounds how long a pending approval stays actionable.
const defaultExpiry = 30 * time.Minute

// Service runs the dual-control state machine over a durable approval store.
type Service struct {
	store  storage.ApprovalStore
	expiry time.Duration
	clock  func() time.Time
	newID  func() (string, error)
}

// NewService creates an approval service with default dependencies.
// A non-positive expiry falls back to 30 minutes.
func NewService(store storage.ApprovalStore, expiry time.Duration) *Service {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Service{
		store:  store,
		expiry: expiry,
		clock:  time.Now,
		newID:  id.NewID,
	}
}

// Create inserts a new pending approval request and returns it.
func (s *Service) Create(ctx context.Context, requesterID, action, actionFingerprint string, risk Risk) (Request, error) {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return Request{}, fmt.Errorf("requester id is required")
	}
	if strings.TrimSpace(actionFingerprint) == "" {
		return Request{}, fmt.Errorf("action fingerprint is required")
	}

	approvalID, err := s.newID()
	if err != nil {
		return Request{}, fmt.Errorf("generate approval id: %w", err)
	}
	now := s.clock().UTC()
	record := storage.ApprovalRecord{
		ID:                approvalID,
		RequesterID:       requesterID,
		ActionFingerprint: actionFingerprint,
		Action:            action,
		Risk:              string(risk),
		Status:            string(StatusPending),
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.expiry),
	}
	if err := s.store.CreateApproval(ctx, record); err != nil {
		return Request{}, fmt.Errorf("persist approval: %w", err)
	}
	return fromRecord(record), nil
}

// Get returns one approval request by id.
func (s *Service) Get(ctx context.Context, approvalID string) (Request, error) {
	record, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Request{}, apperrors.New(apperrors.CodeNotFound, "approval request not found")
		}
		return Request{}, err
	}
	return fromRecord(record), nil
}

// Approve transitions a pending request to approved.
// The requester may never approve their own request, regardless of role.
func (s *Service) Approve(ctx context.Context, approvalID, approverID string) (Request, error) {
	return s.decide(ctx, approvalID, approverID, StatusApproved, "")
}

// Reject transitions a pending request to rejected with an optional note.
func (s *Service) Reject(ctx context.Context, approvalID, approverID, note string) (Request, error) {
	return s.decide(ctx, approvalID, approverID, StatusRejected, note)
}

func (s *Service) decide(ctx context.Context, approvalID, approverID string, status Status, note string) (Request, error) {
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return Request{}, fmt.Errorf("approver id is required")
	}

	current, err := s.Get(ctx, approvalID)
	if err != nil {
		return Request{}, err
	}
	if current.RequesterID == approverID {
		return Request{}, ErrSelfApproval
	}

	now := s.clock().UTC()
	record, err := s.store.DecideApproval(ctx, approvalID, approverID, string(status), note, now)
	if err != nil {
		if errors.Is(err, storage.ErrStaleApproval) {
			return Request{}, s.staleReason(ctx, approvalID, now)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return Request{}, apperrors.New(apperrors.CodeNotFound, "approval request not found")
		}
		return Request{}, err
	}
	return fromRecord(record), nil
}

// ValidateForExecution checks that an approval authorizes exactly this
// mutation for this requester, then marks it consumed. The executed stamp is
// a compare-and-swap so concurrent executions admit exactly one.
func (s *Service) ValidateForExecution(ctx context.Context, approvalID, actionFingerprint, requesterID string) (Request, error) {
	current, err := s.Get(ctx, approvalID)
	if err != nil {
		return Request{}, err
	}

	now := s.clock().UTC()
	if current.Status == StatusPending && !current.ExpiresAt.After(now) {
		return Request{}, invalidErr(ReasonStatusExpired)
	}
	if current.Status != StatusApproved {
		return Request{}, invalidErr(statusReason(current.Status))
	}
	if current.Executed() {
		// A consumed approval never serves as a fresh grant, whatever
		// request it is attached to.
		return Request{}, invalidErr(ReasonStatusApproved)
	}
	if current.ActionFingerprint != actionFingerprint || current.RequesterID != requesterID {
		return Request{}, invalidErr(ReasonMismatch)
	}

	if err := s.store.MarkApprovalExecuted(ctx, approvalID, now); err != nil {
		if errors.Is(err, storage.ErrStaleApproval) {
			// Either consumed by a concurrent execution or no longer approved.
			return Request{}, invalidErr(ReasonStatusApproved)
		}
		return Request{}, err
	}
	current.ExecutedAt = now
	return current, nil
}

// CloseForBreakGlass terminally closes a pending request whose action ran
// under break-glass, keeping the ledger symmetric with the audit trail.
func (s *Service) CloseForBreakGlass(ctx context.Context, approvalID string) error {
	now := s.clock().UTC()
	_, err := s.store.DecideApproval(ctx, approvalID, "", string(StatusExpired), "closed by break-glass execution", now)
	if err != nil && !errors.Is(err, storage.ErrStaleApproval) {
		return err
	}
	return nil
}

// Pending lists pending approval requests for reviewers, oldest first.
// Requests already past expiry are filtered out even before the sweep runs.
func (s *Service) Pending(ctx context.Context) ([]Request, error) {
	records, err := s.store.ListPendingApprovals(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	requests := make([]Request, 0, len(records))
	for _, record := range records {
		if !record.ExpiresAt.After(now) {
			continue
		}
		requests = append(requests, fromRecord(record))
	}
	return requests, nil
}

// Sweep marks expired pending rows. Advisory cleanup; every decision path
// re-checks expiry at call time.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.ExpireApprovals(ctx, s.clock().UTC())
}

// staleReason re-reads a row after a lost decision race and reports the
// specific state that blocked the transition.
func (s *Service) staleReason(ctx context.Context, approvalID string, now time.Time) error {
	current, err := s.Get(ctx, approvalID)
	if err != nil {
		return err
	}
	if current.Status == StatusPending && !current.ExpiresAt.After(now) {
		return invalidErr(ReasonStatusExpired)
	}
	return invalidErr(statusReason(current.Status))
}
