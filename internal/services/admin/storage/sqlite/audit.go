package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
)

// AppendAudit inserts one immutable audit entry.
func (s *Store) AppendAudit(ctx context.Context, record storage.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("audit id is required")
	}
	if strings.TrimSpace(record.Action) == "" {
		return fmt.Errorf("audit action is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO audit_entries (id, action, actor_id, target_id, note, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Action,
		record.ActorID,
		record.TargetID,
		record.Note,
		string(encoded),
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListRecentAudit returns the newest audit entries, most recent first.
func (s *Store) ListRecentAudit(ctx context.Context, limit int) ([]storage.AuditRecord, error) {
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
		`SELECT id, action, actor_id, target_id, note, metadata, created_at
		   FROM audit_entries
		  ORDER BY created_at DESC, id DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent audit: %w", err)
	}
	defer rows.Close()

	var records []storage.AuditRecord
	for rows.Next() {
		var record storage.AuditRecord
		var metadata string
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.Action,
			&record.ActorID,
			&record.TargetID,
			&record.Note,
			&metadata,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list recent audit: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent audit: %w", err)
	}
	return records, nil
}
