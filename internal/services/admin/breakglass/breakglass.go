// Package breakglass evaluates emergency overrides of dual control. An
// override substitutes for a second approver only; it never weakens session,
// CSRF, or step-up requirements.
package breakglass

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/noticeboard/internal/platform/errors"
	"github.com/louisbranch/noticeboard/internal/services/admin/approval"
)

const (
	// DefaultMinReasonLength applies when no length is configured.
	DefaultMinReasonLength = 12
	// FloorMinReasonLength is the lowest configurable reason length.
	FloorMinReasonLength = 8
)

// Config controls whether break-glass is available and how much
// justification it demands.
type Config struct {
	Enabled         bool
	MinReasonLength int
	// AllowedRisks limits which risk tiers may be overridden. Empty allows
	// every tier.
	AllowedRisks map[approval.Risk]bool
}

// DefaultConfig enables break-glass with the default justification length.
func DefaultConfig() Config {
	return Config{Enabled: true, MinReasonLength: DefaultMinReasonLength}
}

// minReason returns the effective minimum reason length after clamping.
func (c Config) minReason() int {
	if c.MinReasonLength <= 0 {
		return DefaultMinReasonLength
	}
	if c.MinReasonLength < FloorMinReasonLength {
		return FloorMinReasonLength
	}
	return c.MinReasonLength
}

// Advertise describes the break-glass option for queued-response payloads.
type Advertise struct {
	Enabled         bool `json:"enabled"`
	MinReasonLength int  `json:"minReasonLength"`
}

// Describe reports whether an override is offered for the given risk tier.
func (c Config) Describe(risk approval.Risk) Advertise {
	return Advertise{Enabled: c.available(risk), MinReasonLength: c.minReason()}
}

func (c Config) available(risk approval.Risk) bool {
	if !c.Enabled {
		return false
	}
	if len(c.AllowedRisks) == 0 {
		return true
	}
	return c.AllowedRisks[risk]
}

// Evaluate validates a break-glass attempt. A nil return means the override
// stands in for the missing approval; the caller still owes an audit entry
// and a break-glass event record.
func (c Config) Evaluate(risk approval.Risk, reason string) error {
	if !c.available(risk) {
		return apperrors.New(apperrors.CodePermissionDenied, "break-glass override is not enabled for this action")
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < c.minReason() {
		return apperrors.New(apperrors.CodePermissionDenied,
			fmt.Sprintf("break-glass reason must be at least %d characters", c.minReason()))
	}
	return nil
}
