package admin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
)

// csrfTokens binds one random anti-forgery token to each admin session.
// The token travels twice on every mutation, once in the readable cookie and
// once in the request header, and both copies must match the session's bound
// value.
type csrfTokens struct {
	mu     sync.Mutex
	tokens map[string]string // sessionID -> token
}

func newCsrfTokens() *csrfTokens {
	return &csrfTokens{tokens: make(map[string]string)}
}

// Ensure returns the session's token, minting one on first use.
func (c *csrfTokens) Ensure(sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token, ok := c.tokens[sessionID]; ok {
		return token, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	token := hex.EncodeToString(buf)
	c.tokens[sessionID] = token
	return token, nil
}

// Drop removes the session's binding, e.g. on logout.
func (c *csrfTokens) Drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, sessionID)
}

// Check validates the double-submitted token against the session binding.
func (c *csrfTokens) Check(r *http.Request, sessionID string) error {
	invalid := apperrors.New(apperrors.CodeCsrfInvalid, "csrf token is missing or does not match")

	header := r.Header.Get(headerCsrfToken)
	if header == "" {
		return invalid
	}
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return invalid
	}

	c.mu.Lock()
	bound := c.tokens[sessionID]
	c.mu.Unlock()
	if bound == "" {
		return invalid
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(bound)) != 1 {
		return invalid
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(bound)) != 1 {
		return invalid
	}
	return nil
}

// handleCsrfToken serves GET /auth/csrf: it returns the session's token and
// re-sets the readable cookie so the client can recover from a lost copy.
func (s *Server) handleCsrfToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSONError(w, apperrors.New(apperrors.CodeUnauthorized, "request has no identity"))
		return
	}
	token, err := s.csrf.Ensure(identity.SessionID)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
