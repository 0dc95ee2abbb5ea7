package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
)

// AppendBreakGlass inserts one emergency override event.
func (s *Store) AppendBreakGlass(ctx context.Context, record storage.BreakGlassRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("break glass id is required")
	}
	if strings.TrimSpace(record.OperatorID) == "" {
		return fmt.Errorf("operator id is required")
	}
	if strings.TrimSpace(record.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	usedAt := record.UsedAt
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO break_glass_events (id, approval_id, operator_id, reason, used_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.ApprovalID,
		record.OperatorID,
		record.Reason,
		toMillis(usedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("append break glass event: %w", err)
	}
	return nil
}

// ListRecentBreakGlass returns the newest override events, most recent first.
func (s *Store) ListRecentBreakGlass(ctx context.Context, limit int) ([]storage.BreakGlassRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, approval_id, operator_id, reason, used_at
		   FROM break_glass_events
		  ORDER BY used_at DESC, id DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent break glass events: %w", err)
	}
	defer rows.Close()

	var records []storage.BreakGlassRecord
	for rows.Next() {
		var record storage.BreakGlassRecord
		var usedAt int64
		if err := rows.Scan(
			&record.ID,
			&record.ApprovalID,
			&record.OperatorID,
			&record.Reason,
			&usedAt,
		); err != nil {
			return nil, fmt.Errorf("list recent break glass events: %w", err)
		}
		record.UsedAt = fromMillis(usedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent break glass events: %w", err)
	}
	return records, nil
}
