// Package announce holds the announcement records the operator plane
// mutates. Authoring and delivery live in other services; this service only
// carries the states and snapshots the admin mutations act on.
package announce

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
)

// Status is an announcement's lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
	StatusDeleted   Status = "deleted"
)

// Announcement is one announcement as the operator plane sees it.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot captures an announcement before a mutation so a rollback can
// restore it. The prior status travels with the content: rolling back into a
// published snapshot republishes.
type Snapshot struct {
	AnnouncementID string
	Title          string
	Body           string
	Status         Status
	TakenAt        time.Time
}

// Service is an in-memory announcement registry. It also tracks admin
// sessions so the terminate-others mutation has something to act on.
type Service struct {
	mu            sync.Mutex
	announcements map[string]*Announcement
	snapshots     map[string]Snapshot
	sessions      map[string]string // sessionID -> userID

	clock func() time.Time
}

// NewService creates an empty registry.
func NewService() *Service {
	return &Service{
		announcements: make(map[string]*Announcement),
		snapshots:     make(map[string]Snapshot),
		sessions:      make(map[string]string),
		clock:         time.Now,
	}
}

// Seed installs an announcement, replacing any existing record with the same
// id. Used at startup and in tests; authoring is not an operator concern.
func (s *Service) Seed(announcement Announcement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if announcement.UpdatedAt.IsZero() {
		announcement.UpdatedAt = s.clock().UTC()
	}
	record := announcement
	s.announcements[announcement.ID] = &record
}

// Get returns one announcement.
func (s *Service) Get(_ context.Context, announcementID string) (Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.announcements[announcementID]
	if !ok {
		return Announcement{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("announcement %s not found", announcementID))
	}
	return *record, nil
}

// SnapshotStatus reports the status stored in an announcement's latest
// snapshot. Used to classify a rollback before it runs: restoring a published
// snapshot is a publish.
func (s *Service) SnapshotStatus(_ context.Context, announcementID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.snapshots[announcementID]
	if !ok {
		return "", false
	}
	return snapshot.Status, true
}

// Publish moves an announcement to published, snapshotting the prior state.
func (s *Service) Publish(_ context.Context, announcementID string) (Announcement, error) {
	return s.transition(announcementID, StatusPublished)
}

// Reject moves an announcement to rejected, snapshotting the prior state.
func (s *Service) Reject(_ context.Context, announcementID string) (Announcement, error) {
	return s.transition(announcementID, StatusRejected)
}

// Delete tombstones an announcement, snapshotting the prior state.
func (s *Service) Delete(_ context.Context, announcementID string) (Announcement, error) {
	return s.transition(announcementID, StatusDeleted)
}

// Rollback restores an announcement from its latest snapshot. The snapshot is
// consumed; there is no rollback of a rollback.
func (s *Service) Rollback(_ context.Context, announcementID string) (Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.announcements[announcementID]
	if !ok {
		return Announcement{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("announcement %s not found", announcementID))
	}
	snapshot, ok := s.snapshots[announcementID]
	if !ok {
		return Announcement{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("announcement %s has no snapshot", announcementID))
	}
	record.Title = snapshot.Title
	record.Body = snapshot.Body
	record.Status = snapshot.Status
	record.UpdatedAt = s.clock().UTC()
	delete(s.snapshots, announcementID)
	return *record, nil
}

// BulkPublish publishes several announcements. The batch is all-or-nothing on
// lookup: an unknown id fails the whole call before any state changes.
func (s *Service) BulkPublish(_ context.Context, announcementIDs []string) ([]Announcement, error) {
	return s.bulkTransition(announcementIDs, StatusPublished)
}

// BulkDelete tombstones several announcements with the same batch semantics.
func (s *Service) BulkDelete(_ context.Context, announcementIDs []string) ([]Announcement, error) {
	return s.bulkTransition(announcementIDs, StatusDeleted)
}

func (s *Service) transition(announcementID string, status Status) (Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(announcementID, status)
}

func (s *Service) transitionLocked(announcementID string, status Status) (Announcement, error) {
	record, ok := s.announcements[announcementID]
	if !ok {
		return Announcement{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("announcement %s not found", announcementID))
	}
	now := s.clock().UTC()
	s.snapshots[announcementID] = Snapshot{
		AnnouncementID: announcementID,
		Title:          record.Title,
		Body:           record.Body,
		Status:         record.Status,
		TakenAt:        now,
	}
	record.Status = status
	record.UpdatedAt = now
	return *record, nil
}

func (s *Service) bulkTransition(announcementIDs []string, status Status) ([]Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, announcementID := range announcementIDs {
		if _, ok := s.announcements[announcementID]; !ok {
			return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("announcement %s not found", announcementID))
		}
	}
	results := make([]Announcement, 0, len(announcementIDs))
	for _, announcementID := range announcementIDs {
		record, err := s.transitionLocked(announcementID, status)
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	return results, nil
}

// RegisterSession records a live admin session for a user.
func (s *Service) RegisterSession(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = userID
}

// TerminateOtherSessions removes every session of the user except keepSessionID
// and returns the terminated session ids.
func (s *Service) TerminateOtherSessions(_ context.Context, userID, keepSessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var terminated []string
	for sessionID, owner := range s.sessions {
		if owner == userID && sessionID != keepSessionID {
			delete(s.sessions, sessionID)
			terminated = append(terminated, sessionID)
		}
	}
	sort.Strings(terminated)
	return terminated
}
