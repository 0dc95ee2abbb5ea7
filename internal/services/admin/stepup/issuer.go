// Package stepup mints short-lived elevation grants after re-verifying the
// caller's credentials. Grants are opaque random values looked up server-side,
// never signed tokens, so they can be revoked at any moment.
package stepup

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/platform/timeouts"
)

const (
	// DefaultTTL bounds a grant's lifetime when no TTL is configured.
	DefaultTTL = 10 * time.Minute
	// MinTTL is the shortest configurable grant lifetime.
	MinTTL = time.Minute
)

// CredentialVerifier re-verifies a user's password and optional second factor.
// Implementations must verify against the session's own user record and fail
// uniformly, never revealing which factor was wrong.
type CredentialVerifier interface {
	Verify(ctx context.Context, userID, password, otp string) error
}

// Issuer mints and checks step-up grants for one admin process.
type Issuer struct {
	verifier CredentialVerifier
	grants   *grantStore
	ttl      time.Duration
	clock    func() time.Time
	newToken func() (string, error)
}

// NewIssuer creates an issuer with the given verifier and TTL.
// TTLs below the minimum are clamped up; zero selects the default.
func NewIssuer(verifier CredentialVerifier, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	return &Issuer{
		verifier: verifier,
		grants:   newGrantStore(),
		ttl:      ttl,
		clock:    time.Now,
		newToken: newToken,
	}
}

// Issue re-verifies credentials for the session's own user and mints a grant.
// The verification call is bounded: a slow credential backend surfaces as
// invalid credentials rather than a hung request.
func (i *Issuer) Issue(ctx context.Context, userID, sessionID, password, otp string) (Grant, error) {
	if i.verifier == nil {
		return Grant{}, fmt.Errorf("credential verifier is not configured")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeouts.CredentialCheck)
	defer cancel()
	if err := i.verifier.Verify(verifyCtx, userID, password, otp); err != nil {
		return Grant{}, apperrors.Wrap(apperrors.CodeInvalidCredentials, "credentials invalid", err)
	}

	token, err := i.newToken()
	if err != nil {
		return Grant{}, fmt.Errorf("generate step-up token: %w", err)
	}
	now := i.clock().UTC()
	grant := Grant{
		Token:     token,
		UserID:    userID,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	i.grants.Put(grant, now)
	return grant, nil
}

// Check verifies that a token names a live grant for this session. The grant
// is not consumed; it stays valid until natural expiry, bounding blast radius
// by time rather than call count. A token presented for the wrong session is
// invalidated outright.
func (i *Issuer) Check(token, sessionID string) error {
	if token == "" {
		return apperrors.New(apperrors.CodeStepUpRequired, "step-up token is required")
	}
	now := i.clock().UTC()
	grant, ok := i.grants.Get(token, now)
	if !ok {
		return apperrors.New(apperrors.CodeStepUpInvalid, "step-up token is unknown or expired")
	}
	if grant.SessionID != sessionID {
		i.grants.Delete(token)
		return apperrors.New(apperrors.CodeStepUpInvalid, "step-up token is bound to another session")
	}
	return nil
}

// InvalidateSession revokes every grant issued to a session, e.g. on logout.
func (i *Issuer) InvalidateSession(sessionID string) {
	i.grants.DeleteSession(sessionID)
}

// newToken returns a high-entropy random token.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
