package stepup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrVerifyFailed is the uniform failure for any credential mismatch.
var ErrVerifyFailed = errors.New("credential verification failed")

// Credentials is the credential material held for one user by the directory.
type Credentials struct {
	PasswordHash     string
	TwoFactorEnabled bool
}

// Directory looks up credential material for a user. Supplied by the auth
// service; this subsystem treats enrollment as a black box.
type Directory interface {
	Credentials(ctx context.Context, userID string) (Credentials, error)
}

// OTPChecker verifies a time-based or backup second-factor code.
type OTPChecker interface {
	CheckOTP(ctx context.Context, userID, code string) error
}

// StaticDirectory is a fixed credential table, useful for small deployments
// and tests.
type StaticDirectory map[string]Credentials

// Credentials implements Directory.
func (d StaticDirectory) Credentials(_ context.Context, userID string) (Credentials, error) {
	creds, ok := d[userID]
	if !ok {
		return Credentials{}, fmt.Errorf("unknown user %s", userID)
	}
	return creds, nil
}

// PasswordVerifier verifies a password hash and, when enrolled, a second
// factor. All failure modes collapse into ErrVerifyFailed so callers cannot
// learn which factor failed.
type PasswordVerifier struct {
	directory Directory
	otp       OTPChecker
}

// NewPasswordVerifier creates a verifier over the given directory.
// The OTP checker may be nil when no user has a second factor enrolled.
func NewPasswordVerifier(directory Directory, otp OTPChecker) *PasswordVerifier {
	return &PasswordVerifier{directory: directory, otp: otp}
}

// Verify implements CredentialVerifier.
func (v *PasswordVerifier) Verify(ctx context.Context, userID, password, otp string) error {
	if v == nil || v.directory == nil {
		return ErrVerifyFailed
	}
	if strings.TrimSpace(userID) == "" || password == "" {
		return ErrVerifyFailed
	}

	creds, err := v.directory.Credentials(ctx, userID)
	if err != nil {
		return ErrVerifyFailed
	}
	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)) != nil {
		return ErrVerifyFailed
	}
	if creds.TwoFactorEnabled {
		if v.otp == nil || otp == "" {
			return ErrVerifyFailed
		}
		if err := v.otp.CheckOTP(ctx, userID, otp); err != nil {
			return ErrVerifyFailed
		}
	}
	return nil
}
