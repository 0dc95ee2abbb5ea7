// Package client implements the coordinator that drives admin mutations
// through the server's authorization pipeline. It owns the retry choreography
// so callers issue one logical mutation and get one final outcome.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/louisbranch/noticeboard/internal/platform/id"
	"github.com/louisbranch/noticeboard/internal/services/admin/fingerprint"
)

// Header and cookie names shared with the admin server.
const (
	sessionCookieName = "nb_token"
	csrfCookieName    = "nb_csrf"

	headerCsrfToken      = "X-CSRF-Token"
	headerStepUpToken    = "X-Admin-Step-Up-Token"
	headerApprovalID     = "X-Admin-Approval-Id"
	headerBreakGlass     = "X-Admin-Break-Glass-Reason"
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotency-Replayed"
)

// maxRetryAfter caps how long the coordinator sleeps on a 429.
const maxRetryAfter = 10 * time.Second

// forcedLogoutThreshold is how many consecutive 401s trigger a local logout.
const forcedLogoutThreshold = 2

// Prompter supplies the interactive inputs some authorization conditions
// demand. Implementations may decline by returning ErrDeclined.
type Prompter interface {
	// StepUpCredentials asks the operator to re-enter their password and,
	// when enrolled, a second-factor code.
	StepUpCredentials(ctx context.Context) (password, otp string, err error)
	// BreakGlassReason asks whether to override a queued approval. Returning
	// ErrDeclined leaves the mutation waiting for its second approver.
	BreakGlassReason(ctx context.Context, minLength int) (string, error)
}

// ErrDeclined is returned by prompters that choose not to supply an input.
var ErrDeclined = fmt.Errorf("prompt declined")

// ErrLoggedOut is returned once the coordinator has forced a logout.
var ErrLoggedOut = fmt.Errorf("session was logged out")

// Outcome is the final result of one coordinated mutation.
type Outcome struct {
	StatusCode int
	Body       []byte
	// RequiresApproval is set when the mutation was queued behind dual
	// control; ApprovalID names the pending request.
	RequiresApproval bool
	ApprovalID       string
	// Replayed is set when the server served a cached idempotent outcome.
	Replayed bool
}

// wireError is the server's JSON error shape.
type wireError struct {
	Error    string            `json:"error"`
	Reason   string            `json:"reason"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata"`
}

// reason reports the refusal reason, accepting older servers that carried it
// only inside metadata.
func (e wireError) reason() string {
	if e.Reason != "" {
		return e.Reason
	}
	return e.Metadata["reason"]
}

// Coordinator serializes admin mutations for one operator session.
type Coordinator struct {
	base     *url.URL
	http     *http.Client
	prompter Prompter
	sleep    func(time.Duration)

	mu             sync.Mutex
	sessionToken   string
	csrfToken      string
	stepUpToken    string
	approvals      map[string]string // fingerprint -> approval id
	idempotency    map[string]string // fingerprint -> idempotency key
	consecutive401 int
	loggedOut      bool
}

// New creates a coordinator for the admin server at baseURL.
func New(baseURL string, httpClient *http.Client, prompter Prompter) (*Coordinator, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Coordinator{
		base:        base,
		http:        httpClient,
		prompter:    prompter,
		sleep:       time.Sleep,
		approvals:   make(map[string]string),
		idempotency: make(map[string]string),
	}, nil
}

// Login installs the session token and clears any forced-logout state.
func (c *Coordinator) Login(sessionToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = sessionToken
	c.csrfToken = ""
	c.stepUpToken = ""
	c.consecutive401 = 0
	c.loggedOut = false
}

// Logout clears all local authorization state and best-effort notifies the
// server so its side of the session is torn down too.
func (c *Coordinator) Logout(ctx context.Context) {
	c.mu.Lock()
	session, csrf := c.sessionToken, c.csrfToken
	c.sessionToken = ""
	c.csrfToken = ""
	c.stepUpToken = ""
	c.approvals = make(map[string]string)
	c.idempotency = make(map[string]string)
	c.loggedOut = true
	c.mu.Unlock()

	if session == "" || csrf == "" {
		return
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrf})
	req.Header.Set(headerCsrfToken, csrf)
	resp, err := c.http.Do(req)
	if err == nil {
		resp.Body.Close()
	}
}

// Mutate performs one guarded mutation end to end. Mutations are
// single-flight: concurrent callers queue behind the lock so retry state
// never interleaves. Each recoverable condition is retried at most once.
func (c *Coordinator) Mutate(ctx context.Context, method, path string, body []byte) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedOut {
		return Outcome{}, ErrLoggedOut
	}
	if c.sessionToken == "" {
		return Outcome{}, fmt.Errorf("no session, call Login first")
	}

	actionFingerprint := fingerprint.Compute(method, path, body)
	key, ok := c.idempotency[actionFingerprint]
	if !ok {
		var err error
		key, err = id.NewID()
		if err != nil {
			return Outcome{}, fmt.Errorf("generate idempotency key: %w", err)
		}
		c.idempotency[actionFingerprint] = key
	}

	// Each recoverable condition may trigger at most one retry.
	var retriedCsrf, retriedStepUp, retriedRate, retriedApproval, triedBreakGlass bool
	breakGlassReason := ""

	for {
		if c.csrfToken == "" {
			if err := c.refreshCsrfLocked(ctx); err != nil {
				return Outcome{}, err
			}
		}

		status, respBody, header, err := c.send(ctx, method, path, body, key, actionFingerprint, breakGlassReason)
		if err != nil {
			return Outcome{}, err
		}

		if status >= 200 && status < 300 && status != http.StatusAccepted {
			c.consecutive401 = 0
			delete(c.approvals, actionFingerprint)
			delete(c.idempotency, actionFingerprint)
			return Outcome{StatusCode: status, Body: respBody, Replayed: header.Get(headerReplayed) == "true"}, nil
		}

		switch status {
		case http.StatusAccepted:
			c.consecutive401 = 0
			var queued struct {
				RequiresApproval bool   `json:"requiresApproval"`
				ApprovalID       string `json:"approvalId"`
				BreakGlass       struct {
					Enabled         bool `json:"enabled"`
					MinReasonLength int  `json:"minReasonLength"`
				} `json:"breakGlass"`
			}
			if err := json.Unmarshal(respBody, &queued); err != nil {
				return Outcome{}, fmt.Errorf("decode queued response: %w", err)
			}
			c.approvals[actionFingerprint] = queued.ApprovalID
			if queued.BreakGlass.Enabled && !triedBreakGlass && c.prompter != nil {
				triedBreakGlass = true
				reason, err := c.prompter.BreakGlassReason(ctx, queued.BreakGlass.MinReasonLength)
				if err == nil && reason != "" {
					breakGlassReason = reason
					// The queued request will be closed by the override.
					delete(c.approvals, actionFingerprint)
					continue
				}
			}
			return Outcome{
				StatusCode:       status,
				Body:             respBody,
				RequiresApproval: true,
				ApprovalID:       queued.ApprovalID,
			}, nil

		case http.StatusUnauthorized:
			c.consecutive401++
			if c.consecutive401 >= forcedLogoutThreshold {
				c.forceLogoutLocked()
				return Outcome{}, ErrLoggedOut
			}
			return Outcome{StatusCode: status, Body: respBody}, c.wireErr(respBody, status)

		case http.StatusForbidden:
			c.consecutive401 = 0
			failure := decodeWireError(respBody)
			switch failure.Error {
			case "csrf_invalid":
				if retriedCsrf {
					return Outcome{StatusCode: status, Body: respBody}, c.wireErr(respBody, status)
				}
				retriedCsrf = true
				if err := c.refreshCsrfLocked(ctx); err != nil {
					return Outcome{}, err
				}
				continue
			case "step_up_required", "step_up_invalid":
				if retriedStepUp || c.prompter == nil {
					return Outcome{StatusCode: status, Body: respBody}, c.wireErr(respBody, status)
				}
				retriedStepUp = true
				if err := c.stepUpLocked(ctx); err != nil {
					return Outcome{}, err
				}
				continue
			default:
				return Outcome{StatusCode: status, Body: respBody}, c.wireErr(respBody, status)
			}

		case http.StatusConflict:
			c.consecutive401 = 0
			failure := decodeWireError(respBody)
			if failure.Error == "approval_invalid" {
				if failure.reason() != "invalid_status:approved" {
					delete(c.approvals, actionFingerprint)
				} else if !retriedApproval {
					// A just-consumed approval means a duplicate of this
					// very mutation won the race; retrying replays its
					// outcome, so the cached id stays.
					retriedApproval = true
					continue
				}
			}
			return Outcome{StatusCode: status, Body: respBody}, c.wireErr(respBody, status)

		case http.StatusTooManyRequests:
			c.consecutive401 = 0
			if retriedRate {
				return Outcome{StatusCode: status, Body: respBody}, c.wireErr(respBody, status)
			}
			retriedRate = true
			c.sleep(retryAfter(header.Get("Retry-After"), maxRetryAfter))
			continue

		default:
			return Outcome{StatusCode: status, Body: respBody}, c.wireErr(respBody, status)
		}
	}
}

// ApprovalID reports the cached pending approval for a mutation, if any.
func (c *Coordinator) ApprovalID(method, path string, body []byte) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	approvalID, ok := c.approvals[fingerprint.Compute(method, path, body)]
	return approvalID, ok
}

// send issues one HTTP attempt with the current tokens attached.
func (c *Coordinator) send(ctx context.Context, method, path string, body []byte, key, actionFingerprint, breakGlassReason string) (int, []byte, http.Header, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return 0, nil, nil, err
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: c.sessionToken})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: c.csrfToken})
	req.Header.Set(headerCsrfToken, c.csrfToken)
	req.Header.Set(headerIdempotencyKey, key)
	if c.stepUpToken != "" {
		req.Header.Set(headerStepUpToken, c.stepUpToken)
	}
	if approvalID, ok := c.approvals[actionFingerprint]; ok {
		req.Header.Set(headerApprovalID, approvalID)
	}
	if breakGlassReason != "" {
		req.Header.Set(headerBreakGlass, breakGlassReason)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("send %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

func (c *Coordinator) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	target := c.base.JoinPath(path).String()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// refreshCsrfLocked fetches a fresh anti-forgery token for this session.
func (c *Coordinator) refreshCsrfLocked(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/csrf", nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: c.sessionToken})
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh csrf token: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read csrf response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			c.consecutive401++
			if c.consecutive401 >= forcedLogoutThreshold {
				c.forceLogoutLocked()
				return ErrLoggedOut
			}
		}
		return c.wireErr(respBody, resp.StatusCode)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return fmt.Errorf("decode csrf response: %w", err)
	}
	c.csrfToken = payload.Token
	return nil
}

// stepUpLocked prompts for credentials and mints an elevation token.
func (c *Coordinator) stepUpLocked(ctx context.Context) error {
	password, otp, err := c.prompter.StepUpCredentials(ctx)
	if err != nil {
		return fmt.Errorf("step-up prompt: %w", err)
	}
	payload, err := json.Marshal(map[string]string{"password": password, "otp": otp})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/step-up", payload)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: c.sessionToken})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: c.csrfToken})
	req.Header.Set(headerCsrfToken, c.csrfToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("step up: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read step-up response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return c.wireErr(respBody, resp.StatusCode)
	}
	var grant struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &grant); err != nil {
		return fmt.Errorf("decode step-up response: %w", err)
	}
	c.stepUpToken = grant.Token
	return nil
}

func (c *Coordinator) forceLogoutLocked() {
	c.sessionToken = ""
	c.csrfToken = ""
	c.stepUpToken = ""
	c.approvals = make(map[string]string)
	c.idempotency = make(map[string]string)
	c.loggedOut = true
}

// wireErr turns a server error body into a descriptive error.
func (c *Coordinator) wireErr(body []byte, status int) error {
	failure := decodeWireError(body)
	if failure.Error == "" {
		return fmt.Errorf("server returned %d", status)
	}
	if reason := failure.reason(); reason != "" {
		return fmt.Errorf("server refused: %s (%s)", failure.Error, reason)
	}
	return fmt.Errorf("server refused: %s", failure.Error)
}

func decodeWireError(body []byte) wireError {
	var failure wireError
	_ = json.Unmarshal(body, &failure)
	return failure
}

// retryAfter parses the Retry-After header or falls back to one second,
// never exceeding the limit.
func retryAfter(header string, limit time.Duration) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return time.Second
	}
	delay := time.Duration(seconds) * time.Second
	if delay > limit {
		return limit
	}
	return delay
}
