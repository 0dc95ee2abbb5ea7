package announce

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
)

func seeded(t *testing.T) *Service {
	t.Helper()
	service := NewService()
	service.Seed(Announcement{ID: "ann-1", Title: "Maintenance window", Body: "Sunday 02:00", Status: StatusDraft})
	service.Seed(Announcement{ID: "ann-2", Title: "New feature", Body: "Dark mode", Status: StatusPublished})
	return service
}

func TestPublishSnapshotsPriorState(t *testing.T) {
	service := seeded(t)
	ctx := context.Background()

	published, err := service.Publish(ctx, "ann-1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != StatusPublished {
		t.Fatalf("expected published, got %s", published.Status)
	}

	status, ok := service.SnapshotStatus(ctx, "ann-1")
	if !ok || status != StatusDraft {
		t.Fatalf("expected draft snapshot, got %s ok=%v", status, ok)
	}
}

func TestRollbackRestoresAndConsumesSnapshot(t *testing.T) {
	service := seeded(t)
	ctx := context.Background()

	if _, err := service.Reject(ctx, "ann-2"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// The snapshot was published, so this rollback republishes.
	restored, err := service.Rollback(ctx, "ann-2")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if restored.Status != StatusPublished {
		t.Fatalf("expected rollback to restore published, got %s", restored.Status)
	}

	if _, err := service.Rollback(ctx, "ann-2"); err == nil {
		t.Fatal("expected second rollback to fail, snapshot was consumed")
	}
}

func TestBulkLookupIsAllOrNothing(t *testing.T) {
	service := seeded(t)
	ctx := context.Background()

	_, err := service.BulkPublish(ctx, []string{"ann-1", "ann-missing"})
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeNotFound {
		t.Fatalf("expected not_found for bad batch, got %v", err)
	}

	// ann-1 must be untouched by the failed batch.
	record, err := service.Get(ctx, "ann-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != StatusDraft {
		t.Fatalf("expected draft after failed batch, got %s", record.Status)
	}

	results, err := service.BulkDelete(ctx, []string{"ann-1", "ann-2"})
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	for _, result := range results {
		if result.Status != StatusDeleted {
			t.Fatalf("expected deleted, got %+v", result)
		}
	}
}

func TestTerminateOtherSessions(t *testing.T) {
	service := seeded(t)
	service.RegisterSession("sess-1", "user-a")
	service.RegisterSession("sess-2", "user-a")
	service.RegisterSession("sess-3", "user-b")

	terminated := service.TerminateOtherSessions(context.Background(), "user-a", "sess-1")
	if len(terminated) != 1 || terminated[0] != "sess-2" {
		t.Fatalf("expected only sess-2 terminated, got %v", terminated)
	}
}
