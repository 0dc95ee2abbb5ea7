// Package approval implements the dual-control approval ledger: a durable
// store of approval requests with a strict one-way lifecycle.
package approval

import (
	"time"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
)

// Status describes the lifecycle state of an approval request.
// Transitions out of pending are one-way; every non-pending state is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Risk classifies how dangerous a mutation is.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Request is one dual-control approval request.
type Request struct {
	ID                string
	RequesterID       string
	ActionFingerprint string
	Action            string
	Risk              Risk
	Status            Status
	Note              string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	ApproverID        string
	DecidedAt         time.Time
	ExecutedAt        time.Time
}

// Executed reports whether the approval has already been consumed.
func (r Request) Executed() bool {
	return !r.ExecutedAt.IsZero()
}

// Reason codes carried in APPROVAL_INVALID metadata.
const (
	ReasonStatusPending  = "invalid_status:pending"
	ReasonStatusApproved = "invalid_status:approved"
	ReasonStatusRejected = "invalid_status:rejected"
	ReasonStatusExpired  = "invalid_status:expired"
	ReasonMismatch       = "request_mismatch"
)

// ErrSelfApproval is returned when a requester tries to decide their own request.
var ErrSelfApproval = apperrors.New(apperrors.CodeSelfApprovalForbidden, "requester may not decide own approval request")

// invalidErr builds an APPROVAL_INVALID error carrying the specific reason.
func invalidErr(reason string) *apperrors.Error {
	return apperrors.WithMetadata(
		apperrors.CodeApprovalInvalid,
		"approval request is not usable: "+reason,
		map[string]string{"reason": reason},
	)
}

// InvalidReason extracts the reason code from an APPROVAL_INVALID error.
func InvalidReason(err error) string {
	if appErr, ok := err.(*apperrors.Error); ok && appErr.Code == apperrors.CodeApprovalInvalid {
		return appErr.Metadata["reason"]
	}
	return ""
}

// statusReason maps an observed terminal or stale state to its reason code.
func statusReason(status Status) string {
	switch status {
	case StatusApproved:
		return ReasonStatusApproved
	case StatusRejected:
		return ReasonStatusRejected
	case StatusExpired:
		return ReasonStatusExpired
	default:
		return ReasonStatusPending
	}
}

func fromRecord(record storage.ApprovalRecord) Request {
	return Request{
		ID:                record.ID,
		RequesterID:       record.RequesterID,
		ActionFingerprint: record.ActionFingerprint,
		Action:            record.Action,
		Risk:              Risk(record.Risk),
		Status:            Status(record.Status),
		Note:              record.Note,
		CreatedAt:         record.CreatedAt,
		ExpiresAt:         record.ExpiresAt,
		ApproverID:        record.ApproverID,
		DecidedAt:         record.DecidedAt,
		ExecutedAt:        record.ExecutedAt,
	}
}
