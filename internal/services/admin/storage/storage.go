// Package storage defines persistence contracts for admin authorization state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrStaleApproval indicates a conditional approval update lost its race:
	// the row is no longer in the state the caller required.
	ErrStaleApproval = errors.New("approval not in required state")
)

// ApprovalRecord stores one dual-control approval request.
type ApprovalRecord struct {
	ID                string
	RequesterID       string
	ActionFingerprint string
	Action            string
	Risk              string
	Status            string
	Note              string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	ApproverID        string
	DecidedAt         time.Time // zero while pending
	ExecutedAt        time.Time // zero until validated for execution
}

// BreakGlassRecord stores one audited emergency override use.
type BreakGlassRecord struct {
	ID         string
	ApprovalID string
	OperatorID string
	Reason     string
	UsedAt     time.Time
}

// AuditRecord stores one immutable security audit entry.
type AuditRecord struct {
	ID        string
	Action    string
	ActorID   string
	TargetID  string
	Note      string
	Metadata  map[string]string
	CreatedAt time.Time
}

// IdempotencyRecord stores the cached outcome of one completed mutation.
type IdempotencyRecord struct {
	Key         string
	Fingerprint string
	Status      int
	Body        []byte
	CreatedAt   time.Time
}

// ApprovalStore persists approval requests and their one-way transitions.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, record ApprovalRecord) error
	GetApproval(ctx context.Context, id string) (ApprovalRecord, error)
	// DecideApproval atomically moves a pending, unexpired approval to the
	// given terminal status. It returns ErrStaleApproval when the row is no
	// longer pending or has passed its expiry, so concurrent deciders race
	// safely: exactly one wins.
	DecideApproval(ctx context.Context, id, approverID, status, note string, decidedAt time.Time) (ApprovalRecord, error)
	// MarkApprovalExecuted atomically stamps an approved, not-yet-executed
	// approval as consumed. Returns ErrStaleApproval if already executed or
	// not approved.
	MarkApprovalExecuted(ctx context.Context, id string, executedAt time.Time) error
	ListPendingApprovals(ctx context.Context) ([]ApprovalRecord, error)
	// ExpireApprovals marks pending approvals past their expiry as expired
	// and returns how many rows changed. Advisory; deciders re-check expiry.
	ExpireApprovals(ctx context.Context, now time.Time) (int64, error)
}

// BreakGlassStore appends and reads emergency override events.
type BreakGlassStore interface {
	AppendBreakGlass(ctx context.Context, record BreakGlassRecord) error
	ListRecentBreakGlass(ctx context.Context, limit int) ([]BreakGlassRecord, error)
}

// AuditStore appends and reads immutable audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, record AuditRecord) error
	ListRecentAudit(ctx context.Context, limit int) ([]AuditRecord, error)
}

// IdempotencyStore persists completed mutation outcomes keyed by client key.
type IdempotencyStore interface {
	// PutOutcome records a completed outcome. Returns ErrAlreadyExists when
	// the key was already recorded; the first outcome stands.
	PutOutcome(ctx context.Context, record IdempotencyRecord) error
	GetOutcome(ctx context.Context, key string) (IdempotencyRecord, error)
}

// Store is a composite interface for admin authorization storage concerns.
type Store interface {
	ApprovalStore
	BreakGlassStore
	AuditStore
	IdempotencyStore
	Close() error
}
