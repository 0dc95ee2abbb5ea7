// Package audit records operator actions. Every entry is written through to
// durable storage and mirrored in a small in-memory ring so the recent feed
// stays cheap to serve.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/noticeboard/internal/platform/id"
	"github.com/louisbranch/noticeboard/internal/services/admin/storage"
)

// ringSize bounds the in-memory mirror of recent entries.
const ringSize = 256

// Entry is one recorded operator action.
type Entry struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	ActorID   string            `json:"actorId"`
	TargetID  string            `json:"targetId,omitempty"`
	Note      string            `json:"note,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Recorder appends audit entries to storage and keeps a recent-entry ring.
type Recorder struct {
	store storage.AuditStore

	mu   sync.Mutex
	ring []Entry

	clock func() time.Time
	newID func() (string, error)
}

// NewRecorder creates a recorder backed by the given store.
func NewRecorder(store storage.AuditStore) *Recorder {
	return &Recorder{
		store: store,
		clock: time.Now,
		newID: id.NewID,
	}
}

// Record persists an entry, assigning its id and timestamp. A storage failure
// is returned to the caller; authorization outcomes must not be silently
// unaccounted for.
func (r *Recorder) Record(ctx context.Context, entry Entry) (Entry, error) {
	if r == nil || r.store == nil {
		return Entry{}, fmt.Errorf("audit recorder is not configured")
	}
	entryID, err := r.newID()
	if err != nil {
		return Entry{}, fmt.Errorf("generate audit id: %w", err)
	}
	entry.ID = entryID
	entry.CreatedAt = r.clock().UTC()

	record := storage.AuditRecord{
		ID:        entry.ID,
		Action:    entry.Action,
		ActorID:   entry.ActorID,
		TargetID:  entry.TargetID,
		Note:      entry.Note,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
	if err := r.store.AppendAudit(ctx, record); err != nil {
		return Entry{}, fmt.Errorf("append audit entry: %w", err)
	}

	r.mu.Lock()
	r.ring = append(r.ring, entry)
	if len(r.ring) > ringSize {
		r.ring = r.ring[len(r.ring)-ringSize:]
	}
	r.mu.Unlock()
	return entry, nil
}

// MustRecord records an entry after the guarded action already ran. The
// failure is logged rather than returned; the action cannot be un-executed.
func (r *Recorder) MustRecord(ctx context.Context, entry Entry) Entry {
	recorded, err := r.Record(ctx, entry)
	if err != nil {
		log.Printf("audit: record %s by %s failed: %v", entry.Action, entry.ActorID, err)
		return entry
	}
	return recorded
}

// Recent returns up to n entries, newest first. It prefers the in-memory
// ring and falls back to storage when the ring is cold, e.g. after restart.
func (r *Recorder) Recent(ctx context.Context, n int) ([]Entry, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("audit recorder is not configured")
	}
	if n <= 0 {
		n = 50
	}

	r.mu.Lock()
	cached := len(r.ring)
	var entries []Entry
	if cached >= n {
		entries = make([]Entry, n)
		for idx := 0; idx < n; idx++ {
			entries[idx] = r.ring[cached-1-idx]
		}
	}
	r.mu.Unlock()
	if entries != nil {
		return entries, nil
	}

	records, err := r.store.ListRecentAudit(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries = make([]Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, Entry{
			ID:        record.ID,
			Action:    record.Action,
			ActorID:   record.ActorID,
			TargetID:  record.TargetID,
			Note:      record.Note,
			Metadata:  record.Metadata,
			CreatedAt: record.CreatedAt,
		})
	}
	return entries, nil
}
