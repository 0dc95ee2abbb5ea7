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

// PutOutcome records a completed mutation outcome under its idempotency key.
// The first recorded outcome for a key stands; later writes fail.
func (s *Store) PutOutcome(ctx context.Context, record storage.IdempotencyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.Key) == "" {
		return fmt.Errorf("idempotency key is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO idempotency_keys (key, fingerprint, status, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.Key,
		record.Fingerprint,
		record.Status,
		record.Body,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put idempotent outcome: %w", err)
	}
	return nil
}

// GetOutcome returns the cached outcome for an idempotency key.
func (s *Store) GetOutcome(ctx context.Context, key string) (storage.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.IdempotencyRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.IdempotencyRecord{}, fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return storage.IdempotencyRecord{}, fmt.Errorf("idempotency key is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT key, fingerprint, status, body, created_at
		   FROM idempotency_keys
		  WHERE key = ?`,
		key,
	)

	var record storage.IdempotencyRecord
	var createdAt int64
	err := row.Scan(&record.Key, &record.Fingerprint, &record.Status, &record.Body, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.IdempotencyRecord{}, storage.ErrNotFound
		}
		return storage.IdempotencyRecord{}, fmt.Errorf("get idempotent outcome: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
