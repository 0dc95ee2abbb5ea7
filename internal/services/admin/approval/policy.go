package approval

// Decision is the outcome of risk classification for one mutation.
type Decision struct {
	Required bool
	Risk     Risk
}

// Policy decides which actions need a second approver. The table is keyed by
// action name; roles in the bypass list skip dual control entirely, and the
// whole policy can be disabled.
type Policy struct {
	Enabled     bool
	BypassRoles map[string]bool
	RiskTable   map[string]Risk
	// BulkEscalation promotes medium-risk actions touching at least this
	// many targets to high risk. Zero disables escalation.
	BulkEscalation int
}

// DefaultPolicy returns the standard risk table: publish and delete paths are
// high risk, state rollbacks and session terminations are medium.
func DefaultPolicy() Policy {
	return Policy{
		Enabled: true,
		RiskTable: map[string]Risk{
			"announcement:publish":      RiskHigh,
			"announcement:bulk_publish": RiskHigh,
			"announcement:delete":       RiskHigh,
			"announcement:bulk_delete":  RiskHigh,
			"announcement:rollback":     RiskMedium,
			"announcement:reject":       RiskMedium,
			"session:terminate_others":  RiskMedium,
		},
		BulkEscalation: 20,
	}
}

// Classify returns whether the action needs dual control and at what risk.
func (p Policy) Classify(action, role string, targetCount int) Decision {
	risk, ok := p.RiskTable[action]
	if !ok {
		risk = RiskLow
	}
	if p.BulkEscalation > 0 && risk == RiskMedium && targetCount >= p.BulkEscalation {
		risk = RiskHigh
	}

	decision := Decision{Risk: risk}
	if !p.Enabled {
		return decision
	}
	if p.BypassRoles[role] {
		return decision
	}
	decision.Required = risk == RiskHigh
	return decision
}
