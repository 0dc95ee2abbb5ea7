package fingerprint

import "testing"

func TestComputeStable(t *testing.T) {
	a := Compute("POST", "/announcements/ann-1/publish", []byte(`{}`))
	b := Compute("post", "/announcements/ann-1/publish/", []byte(`{}`))
	if a != b {
		t.Fatalf("expected equivalent requests to share a fingerprint: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d", len(a))
	}
}

func TestComputeBindsEachComponent(t *testing.T) {
	base := Compute("POST", "/announcements/ann-1/publish", []byte(`{}`))

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
	}{
		{"different method", "DELETE", "/announcements/ann-1/publish", []byte(`{}`)},
		{"different path", "POST", "/announcements/ann-2/publish", []byte(`{}`)},
		{"different body", "POST", "/announcements/ann-1/publish", []byte(`{"force":true}`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if Compute(tc.method, tc.path, tc.body) == base {
				t.Fatal("expected fingerprint to differ")
			}
		})
	}
}

func TestComputeIgnoresQueryString(t *testing.T) {
	a := Compute("POST", "/announcements/ann-1/publish", nil)
	b := Compute("POST", "/announcements/ann-1/publish?lang=en", nil)
	if a != b {
		t.Fatal("expected query string to be excluded from fingerprint")
	}
}
