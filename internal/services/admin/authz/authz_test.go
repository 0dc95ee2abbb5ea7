package authz

import (
	"errors"
	"testing"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
)

func TestMatrixAllows(t *testing.T) {
	matrix := DefaultMatrix()

	tests := []struct {
		name       string
		role       string
		permission string
		want       bool
	}{
		{"superadmin wildcard", "superadmin", "session:terminate_others", true},
		{"admin prefix wildcard", "admin", "announcement:bulk_delete", true},
		{"admin exact grant", "admin", "session:terminate_others", true},
		{"admin outside grants", "admin", "billing:refund", false},
		{"moderator exact grant", "moderator", "announcement:publish", true},
		{"moderator lacks delete", "moderator", "announcement:delete", false},
		{"viewer has nothing", "viewer", "announcement:publish", false},
		{"unknown role", "intern", "announcement:publish", false},
		{"prefix wildcard is not a bare prefix match", "admin", "announcementx:publish", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := matrix.Allows(tc.role, tc.permission); got != tc.want {
				t.Fatalf("Allows(%q, %q) = %v, want %v", tc.role, tc.permission, got, tc.want)
			}
		})
	}
}

func TestMatrixRequire(t *testing.T) {
	matrix := DefaultMatrix()

	if err := matrix.Require("admin", "announcement:publish"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}

	err := matrix.Require("viewer", "announcement:publish")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodePermissionDenied {
		t.Fatalf("expected permission_denied, got %v", err)
	}
	if appErr.Metadata["permission"] != "announcement:publish" {
		t.Fatalf("expected permission metadata, got %+v", appErr.Metadata)
	}
}
