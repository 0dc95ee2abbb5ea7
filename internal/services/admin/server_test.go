package admin

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/louisbranch/noticeboard/internal/services/admin/announce"
	"github.com/louisbranch/noticeboard/internal/services/admin/stepup"
)

const testPassword = "hunter22"

type testEnv struct {
	t          *testing.T
	server     *Server
	httpServer *httptest.Server
	signingKey ed25519.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	directory := stepup.StaticDirectory{
		"user-a": {PasswordHash: string(hash)},
		"user-b": {PasswordHash: string(hash)},
	}

	config := Config{
		DatabasePath:        filepath.Join(t.TempDir(), "admin.db"),
		SessionPublicKey:    base64.StdEncoding.EncodeToString(publicKey),
		ApprovalExpiry:      30 * time.Minute,
		StepUpTTL:           10 * time.Minute,
		BreakGlassEnabled:   true,
		BreakGlassMinReason: 12,
	}
	server, err := NewServer(config, stepup.NewPasswordVerifier(directory, nil))
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })

	server.Announcements().Seed(announce.Announcement{ID: "ann-1", Title: "Maintenance", Body: "Sunday", Status: announce.StatusDraft})
	server.Announcements().Seed(announce.Announcement{ID: "ann-2", Title: "Feature", Body: "Dark mode", Status: announce.StatusDraft})

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return &testEnv{t: t, server: server, httpServer: httpServer, signingKey: privateKey}
}

// operator is one authenticated session driving requests by hand.
type operator struct {
	env       *testEnv
	session   string
	csrf      string
	stepUp    string
	sessionID string
}

func (e *testEnv) operator(userID, role, sessionID string) *operator {
	e.t.Helper()
	claims := jwt.MapClaims{
		"iss":   sessionIssuer,
		"aud":   sessionAudience,
		"sub":   userID,
		"email": userID + "@example.com",
		"role":  role,
		"sid":   sessionID,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(e.signingKey)
	if err != nil {
		e.t.Fatalf("sign session token: %v", err)
	}
	return &operator{env: e, session: token, sessionID: sessionID}
}

func (o *operator) do(method, path string, body []byte, headers map[string]string) (*http.Response, []byte) {
	o.env.t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, o.env.httpServer.URL+path, reader)
	if err != nil {
		o.env.t.Fatalf("build request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: o.session})
	if o.csrf != "" {
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: o.csrf})
		req.Header.Set(headerCsrfToken, o.csrf)
	}
	if o.stepUp != "" {
		req.Header.Set(headerStepUpToken, o.stepUp)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		o.env.t.Fatalf("send request: %v", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		o.env.t.Fatalf("read response: %v", err)
	}
	return resp, respBody
}

func (o *operator) fetchCsrf() {
	o.env.t.Helper()
	resp, body := o.do(http.MethodGet, "/auth/csrf", nil, nil)
	if resp.StatusCode != http.StatusOK {
		o.env.t.Fatalf("fetch csrf: %d %s", resp.StatusCode, body)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		o.env.t.Fatalf("decode csrf: %v", err)
	}
	o.csrf = payload.Token
}

func (o *operator) elevate(password string) (*http.Response, []byte) {
	o.env.t.Helper()
	payload, _ := json.Marshal(map[string]string{"password": password})
	resp, body := o.do(http.MethodPost, "/auth/step-up", payload, nil)
	if resp.StatusCode == http.StatusOK {
		var grant struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &grant); err != nil {
			o.env.t.Fatalf("decode step-up: %v", err)
		}
		o.stepUp = grant.Token
	}
	return resp, body
}

func decodeError(t *testing.T, body []byte) errorBody {
	t.Helper()
	var failure errorBody
	if err := json.Unmarshal(body, &failure); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return failure
}

func decodeQueued(t *testing.T, body []byte) queuedResponse {
	t.Helper()
	var queued queuedResponse
	if err := json.Unmarshal(body, &queued); err != nil {
		t.Fatalf("decode queued body %q: %v", body, err)
	}
	return queued
}

func TestMutationRejectedWithoutCsrf(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")

	resp, body := op.do(http.MethodPost, "/announcements/ann-1/publish", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", resp.StatusCode, body)
	}
	if failure := decodeError(t, body); failure.Error != "csrf_invalid" {
		t.Fatalf("expected csrf_invalid, got %+v", failure)
	}
}

func TestMutationRejectedWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodPost, env.httpServer.URL+"/announcements/ann-1/publish", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStepUpRequiredThenElevated(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()

	// Reject is medium risk: no second approver needed, step-up still is.
	resp, body := op.do(http.MethodPost, "/announcements/ann-1/reject", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", resp.StatusCode, body)
	}
	if failure := decodeError(t, body); failure.Error != "step_up_required" {
		t.Fatalf("expected step_up_required, got %+v", failure)
	}

	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}
	resp, body = op.do(http.MethodPost, "/announcements/ann-1/reject", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after elevation, got %d %s", resp.StatusCode, body)
	}
}

func TestStepUpWrongPasswordAndSuspension(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()

	for i := 0; i < 5; i++ {
		resp, body := op.elevate("wrong-password")
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("attempt %d: expected 403, got %d %s", i, resp.StatusCode, body)
		}
		if failure := decodeError(t, body); failure.Error != "invalid_credentials" {
			t.Fatalf("expected invalid_credentials, got %+v", failure)
		}
	}

	resp, _ := op.elevate(testPassword)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
}

func TestMissingIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()

	resp, body := op.do(http.MethodPost, "/announcements/ann-1/publish", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", resp.StatusCode, body)
	}
	if failure := decodeError(t, body); failure.Error != "idempotency_key_missing" {
		t.Fatalf("expected idempotency_key_missing, got %+v", failure)
	}
}

func TestPermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "viewer", "sess-a")
	op.fetchCsrf()
	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	resp, body := op.do(http.MethodPost, "/announcements/ann-1/publish", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", resp.StatusCode, body)
	}
	if failure := decodeError(t, body); failure.Error != "permission_denied" {
		t.Fatalf("expected permission_denied, got %+v", failure)
	}
}

func TestPublishDualControlFlow(t *testing.T) {
	env := newTestEnv(t)

	requester := env.operator("user-a", "admin", "sess-a")
	requester.fetchCsrf()
	if resp, body := requester.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	// High-risk publish queues behind dual control.
	resp, body := requester.do(http.MethodPost, "/announcements/ann-1/publish", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", resp.StatusCode, body)
	}
	queued := decodeQueued(t, body)
	if !queued.RequiresApproval || queued.ApprovalID == "" {
		t.Fatalf("unexpected queued response %+v", queued)
	}
	if !queued.BreakGlass.Enabled || queued.BreakGlass.MinReasonLength != 12 {
		t.Fatalf("unexpected break-glass advertisement %+v", queued.BreakGlass)
	}

	// The requester cannot approve their own request.
	resp, body = requester.do(http.MethodPost, "/approvals/"+queued.ApprovalID+"/approve", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for self-approval, got %d %s", resp.StatusCode, body)
	}
	if failure := decodeError(t, body); failure.Error != "self_approval_forbidden" {
		t.Fatalf("expected self_approval_forbidden, got %+v", failure)
	}

	// A second operator sees and approves it.
	approver := env.operator("user-b", "admin", "sess-b")
	approver.fetchCsrf()
	resp, body = approver.do(http.MethodGet, "/approvals/pending", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pending: %d %s", resp.StatusCode, body)
	}
	var pending struct {
		Approvals []struct {
			ID string `json:"id"`
		} `json:"approvals"`
	}
	if err := json.Unmarshal(body, &pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending.Approvals) != 1 || pending.Approvals[0].ID != queued.ApprovalID {
		t.Fatalf("expected the queued request pending, got %s", body)
	}

	resp, body = approver.do(http.MethodPost, "/approvals/"+queued.ApprovalID+"/approve", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", resp.StatusCode, body)
	}

	// The requester retries the identical mutation with the approval id.
	resp, body = requester.do(http.MethodPost, "/announcements/ann-1/publish", nil, map[string]string{
		headerIdempotencyKey: "key-1",
		headerApprovalID:     queued.ApprovalID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after approval, got %d %s", resp.StatusCode, body)
	}
	var published announce.Announcement
	if err := json.Unmarshal(body, &published); err != nil {
		t.Fatalf("decode announcement: %v", err)
	}
	if published.Status != announce.StatusPublished {
		t.Fatalf("expected published, got %s", published.Status)
	}

	// Replaying the same idempotency key returns the first outcome verbatim.
	resp, replayBody := requester.do(http.MethodPost, "/announcements/ann-1/publish", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected replayed 200, got %d %s", resp.StatusCode, replayBody)
	}
	if resp.Header.Get(headerReplayed) != "true" {
		t.Fatal("expected replay marker header")
	}
	if !bytes.Equal(bytes.TrimSpace(replayBody), bytes.TrimSpace(body)) {
		t.Fatalf("expected verbatim replay, got %s vs %s", replayBody, body)
	}

	// The consumed approval cannot authorize another mutation.
	resp, body = requester.do(http.MethodPost, "/announcements/ann-2/publish", nil, map[string]string{
		headerIdempotencyKey: "key-2",
		headerApprovalID:     queued.ApprovalID,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", resp.StatusCode, body)
	}
	failure := decodeError(t, body)
	if failure.Error != "approval_invalid" || failure.Reason != "invalid_status:approved" {
		t.Fatalf("expected approval_invalid invalid_status:approved, got %+v", failure)
	}
}

func TestApprovalFingerprintMismatch(t *testing.T) {
	env := newTestEnv(t)

	requester := env.operator("user-a", "admin", "sess-a")
	requester.fetchCsrf()
	if resp, body := requester.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	resp, body := requester.do(http.MethodPost, "/announcements/ann-1/publish", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", resp.StatusCode, body)
	}
	queued := decodeQueued(t, body)

	approver := env.operator("user-b", "admin", "sess-b")
	approver.fetchCsrf()
	if resp, body := approver.do(http.MethodPost, "/approvals/"+queued.ApprovalID+"/approve", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", resp.StatusCode, body)
	}

	// Same approval id, different mutation: refused before execution.
	resp, body = requester.do(http.MethodPost, "/announcements/ann-2/publish", nil, map[string]string{
		headerIdempotencyKey: "key-2",
		headerApprovalID:     queued.ApprovalID,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", resp.StatusCode, body)
	}
	failure := decodeError(t, body)
	if failure.Reason != "request_mismatch" {
		t.Fatalf("expected request_mismatch, got %+v", failure)
	}
}

func TestBreakGlassOverride(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()
	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	// Too short a justification leaves dual control standing: the mutation
	// is queued, not executed and not refused outright.
	resp, body := op.do(http.MethodPost, "/announcements/ann-1/publish", nil, map[string]string{
		headerIdempotencyKey: "key-1",
		headerBreakGlass:     "short",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for short reason, got %d %s", resp.StatusCode, body)
	}
	if queued := decodeQueued(t, body); !queued.RequiresApproval {
		t.Fatalf("expected queued outcome for short reason, got %+v", queued)
	}

	resp, body = op.do(http.MethodPost, "/announcements/ann-1/publish", nil, map[string]string{
		headerIdempotencyKey: "key-1",
		headerBreakGlass:     "prod incident INC-4182, outage banner",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected break-glass execution, got %d %s", resp.StatusCode, body)
	}
	var published announce.Announcement
	if err := json.Unmarshal(body, &published); err != nil {
		t.Fatalf("decode announcement: %v", err)
	}
	if published.Status != announce.StatusPublished {
		t.Fatalf("expected published, got %s", published.Status)
	}

	// Exactly one override event, recorded for the run that happened.
	resp, body = op.do(http.MethodGet, "/breakglass/recent", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("break-glass feed: %d %s", resp.StatusCode, body)
	}
	var feed struct {
		Events []struct {
			OperatorID string `json:"operatorId"`
			Reason     string `json:"reason"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("decode break-glass feed: %v", err)
	}
	if len(feed.Events) != 1 || feed.Events[0].OperatorID != "user-a" {
		t.Fatalf("expected one override event for user-a, got %s", body)
	}

	// Break-glass never bypasses step-up.
	fresh := env.operator("user-b", "admin", "sess-b")
	fresh.fetchCsrf()
	resp, body = fresh.do(http.MethodPost, "/announcements/ann-2/publish", nil, map[string]string{
		headerIdempotencyKey: "key-2",
		headerBreakGlass:     "prod incident INC-4182, outage banner",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without step-up, got %d %s", resp.StatusCode, body)
	}
	if failure := decodeError(t, body); failure.Error != "step_up_required" {
		t.Fatalf("expected step_up_required, got %+v", failure)
	}
}

func TestBreakGlassFailedMutationLeavesNoOverrideEvent(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()
	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	// The override is accepted but the mutation itself fails, so no event
	// may claim an execution that never happened.
	resp, body := op.do(http.MethodPost, "/announcements/missing/publish", nil, map[string]string{
		headerIdempotencyKey: "key-1",
		headerBreakGlass:     "prod incident INC-4182, outage banner",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown announcement, got %d %s", resp.StatusCode, body)
	}

	resp, body = op.do(http.MethodGet, "/breakglass/recent", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("break-glass feed: %d %s", resp.StatusCode, body)
	}
	var feed struct {
		Events []struct {
			ID string `json:"id"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("decode break-glass feed: %v", err)
	}
	if len(feed.Events) != 0 {
		t.Fatalf("expected no override events, got %s", body)
	}
}

func TestBulkEscalationQueuesMediumAction(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()
	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	// terminate-others is medium risk and runs directly.
	resp, body := op.do(http.MethodPost, "/sessions/terminate-others", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for medium risk, got %d %s", resp.StatusCode, body)
	}
	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode terminate response: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success flag, got %s", body)
	}
}

func TestRollbackIntoPublishedSnapshotNeedsApproval(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()
	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	// ann-2 starts published; rejecting it snapshots the published state.
	env.server.Announcements().Seed(announce.Announcement{ID: "ann-3", Title: "Live", Body: "x", Status: announce.StatusPublished})
	resp, body := op.do(http.MethodPost, "/announcements/ann-3/reject", nil,
		map[string]string{headerIdempotencyKey: "key-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: %d %s", resp.StatusCode, body)
	}

	// Rolling back would republish, so it is classified high risk.
	resp, body = op.do(http.MethodPost, "/announcements/ann-3/rollback", nil,
		map[string]string{headerIdempotencyKey: "key-2"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for publish-equivalent rollback, got %d %s", resp.StatusCode, body)
	}
	queued := decodeQueued(t, body)
	if !queued.RequiresApproval {
		t.Fatalf("expected approval requirement, got %+v", queued)
	}
}

func TestAuditTrailRecordsOutcomes(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()
	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}
	if resp, body := op.do(http.MethodPost, "/announcements/ann-1/reject", nil,
		map[string]string{headerIdempotencyKey: "key-1"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: %d %s", resp.StatusCode, body)
	}

	resp, body := op.do(http.MethodGet, "/audit/recent", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit: %d %s", resp.StatusCode, body)
	}
	var feed struct {
		Entries []struct {
			Action   string            `json:"action"`
			Metadata map[string]string `json:"metadata"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	var sawMutation bool
	for _, entry := range feed.Entries {
		if entry.Action == "announcement:reject" && entry.Metadata["outcome"] == "executed" {
			sawMutation = true
		}
	}
	if !sawMutation {
		t.Fatalf("expected executed mutation in audit feed, got %s", body)
	}
}

func TestLogoutInvalidatesServerState(t *testing.T) {
	env := newTestEnv(t)
	op := env.operator("user-a", "admin", "sess-a")
	op.fetchCsrf()
	if resp, body := op.elevate(testPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("step up: %d %s", resp.StatusCode, body)
	}

	if resp, body := op.do(http.MethodPost, "/auth/logout", nil, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: %d %s", resp.StatusCode, body)
	}

	// Old CSRF binding and step-up grant are both gone.
	resp, body := op.do(http.MethodPost, "/announcements/ann-1/reject", nil,
		map[string]string{headerIdempotencyKey: fmt.Sprintf("key-%d", time.Now().UnixNano())})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 after logout, got %d %s", resp.StatusCode, body)
	}
	if failure := decodeError(t, body); failure.Error != "csrf_invalid" {
		t.Fatalf("expected csrf_invalid after logout, got %+v", failure)
	}
}
