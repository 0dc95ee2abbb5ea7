package admin

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/platform/requestctx"
)

const (
	sessionIssuer   = "noticeboard-login"
	sessionAudience = "noticeboard-admin"
)

// sessionClaims is the payload of the login service's session token.
type sessionClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// sessionVerifier validates nb_token session cookies minted by the login
// service. The admin plane holds only the public half of the signing key.
type sessionVerifier struct {
	publicKey ed25519.PublicKey
}

// newSessionVerifier parses a base64-encoded ed25519 public key.
func newSessionVerifier(encodedKey string) (*sessionVerifier, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode session public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("session public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return &sessionVerifier{publicKey: ed25519.PublicKey(raw)}, nil
}

// verify parses and validates a session token, returning the operator identity.
func (v *sessionVerifier) verify(token string) (requestctx.Identity, error) {
	if v == nil || len(v.publicKey) == 0 {
		return requestctx.Identity{}, fmt.Errorf("session verifier is not configured")
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return requestctx.Identity{}, fmt.Errorf("parse session token: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.SessionID == "" {
		return requestctx.Identity{}, fmt.Errorf("session token is incomplete")
	}
	return requestctx.Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

// requireSession authenticates the nb_token cookie and installs the operator
// identity into the request context. Unauthenticated requests get a JSON 401.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeJSONError(w, apperrors.New(apperrors.CodeUnauthorized, "session cookie is missing"))
			return
		}
		identity, err := s.sessions.verify(cookie.Value)
		if err != nil {
			writeJSONError(w, apperrors.Wrap(apperrors.CodeUnauthorized, "session token is invalid", err))
			return
		}
		s.announcements.RegisterSession(identity.SessionID, identity.UserID)
		next(w, r.WithContext(requestctx.WithIdentity(r.Context(), identity)))
	}
}
