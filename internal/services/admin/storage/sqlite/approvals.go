package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
)

const approvalColumns = `id, requester_id, action_fingerprint, action, risk, status, note,
       created_at, expires_at, approver_id, decided_at, executed_at`

// CreateApproval inserts one pending approval request.
func (s *Store) CreateApproval(ctx context.Context, record storage.ApprovalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("approval id is required")
	}
	if strings.TrimSpace(record.RequesterID) == "" {
		return fmt.Errorf("requester id is required")
	}
	if strings.TrimSpace(record.ActionFingerprint) == "" {
		return fmt.Errorf("action fingerprint is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO approval_requests (
		   id, requester_id, action_fingerprint, action, risk, status, note,
		   created_at, expires_at, approver_id, decided_at, executed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', 0, 0)`,
		record.ID,
		record.RequesterID,
		record.ActionFingerprint,
		record.Action,
		record.Risk,
		record.Status,
		record.Note,
		toMillis(record.CreatedAt),
		toMillis(record.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetApproval returns one approval request by id.
func (s *Store) GetApproval(ctx context.Context, id string) (storage.ApprovalRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ApprovalRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ApprovalRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ApprovalRecord{}, fmt.Errorf("approval id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = ?`,
		id,
	)
	return scanApproval(row)
}

// DecideApproval atomically moves a pending, unexpired approval to a terminal
// status. Exactly one concurrent decider wins; the rest observe
// ErrStaleApproval and must re-read the row for the actual state.
func (s *Store) DecideApproval(ctx context.Context, id, approverID, status, note string, decidedAt time.Time) (storage.ApprovalRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ApprovalRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ApprovalRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ApprovalRecord{}, fmt.Errorf("approval id is required")
	}
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE approval_requests
		    SET status = ?, approver_id = ?, note = ?, decided_at = ?
		  WHERE id = ? AND status = 'pending' AND expires_at > ?`,
		status,
		approverID,
		note,
		toMillis(decidedAt),
		id,
		toMillis(decidedAt),
	)
	if err != nil {
		return storage.ApprovalRecord{}, fmt.Errorf("decide approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ApprovalRecord{}, fmt.Errorf("decide approval rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetApproval(ctx, id); err != nil {
			return storage.ApprovalRecord{}, err
		}
		return storage.ApprovalRecord{}, storage.ErrStaleApproval
	}
	return s.GetApproval(ctx, id)
}

// MarkApprovalExecuted atomically stamps an approved approval as consumed.
func (s *Store) MarkApprovalExecuted(ctx context.Context, id string, executedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("approval id is required")
	}
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE approval_requests
		    SET executed_at = ?
		  WHERE id = ? AND status = 'approved' AND executed_at = 0`,
		toMillis(executedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark approval executed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark approval executed rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetApproval(ctx, id); err != nil {
			return err
		}
		return storage.ErrStaleApproval
	}
	return nil
}

// ListPendingApprovals returns pending approval requests, oldest first.
func (s *Store) ListPendingApprovals(ctx context.Context) ([]storage.ApprovalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+approvalColumns+`
		   FROM approval_requests
		  WHERE status = 'pending'
		  ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var records []storage.ApprovalRecord
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending approvals: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return records, nil
}

// ExpireApprovals marks pending approvals past their expiry as expired.
func (s *Store) ExpireApprovals(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE approval_requests
		    SET status = 'expired', decided_at = ?
		  WHERE status = 'pending' AND expires_at <= ?`,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("expire approvals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire approvals rows affected: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (storage.ApprovalRecord, error) {
	var record storage.ApprovalRecord
	var createdAt, expiresAt, decidedAt, executedAt int64
	err := row.Scan(
		&record.ID,
		&record.RequesterID,
		&record.ActionFingerprint,
		&record.Action,
		&record.Risk,
		&record.Status,
		&record.Note,
		&createdAt,
		&expiresAt,
		&record.ApproverID,
		&decidedAt,
		&executedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ApprovalRecord{}, storage.ErrNotFound
		}
		return storage.ApprovalRecord{}, fmt.Errorf("scan approval: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.ExpiresAt = fromMillis(expiresAt)
	record.DecidedAt = fromMillis(decidedAt)
	record.ExecutedAt = fromMillis(executedAt)
	return record, nil
}
