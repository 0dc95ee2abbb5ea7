package approval

import "testing"

func TestClassifyDefaults(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name        string
		action      string
		role        string
		targetCount int
		required    bool
		risk        Risk
	}{
		{"publish is high risk", "announcement:publish", "admin", 1, true, RiskHigh},
		{"bulk delete is high risk", "announcement:bulk_delete", "admin", 3, true, RiskHigh},
		{"rollback is medium risk", "announcement:rollback", "admin", 1, false, RiskMedium},
		{"terminate sessions is medium risk", "session:terminate_others", "admin", 1, false, RiskMedium},
		{"unknown action is low risk", "announcement:retitle", "admin", 1, false, RiskLow},
		{"bulk escalation promotes medium to high", "announcement:rollback", "admin", 25, true, RiskHigh},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := policy.Classify(tc.action, tc.role, tc.targetCount)
			if decision.Required != tc.required || decision.Risk != tc.risk {
				t.Fatalf("got %+v, want required=%v risk=%s", decision, tc.required, tc.risk)
			}
		})
	}
}

func TestClassifyDisabledPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.Enabled = false

	decision := policy.Classify("announcement:publish", "admin", 1)
	if decision.Required {
		t.Fatal("expected disabled policy to never require approval")
	}
	if decision.Risk != RiskHigh {
		t.Fatalf("expected risk classification to survive disablement, got %s", decision.Risk)
	}
}

func TestClassifyBypassRole(t *testing.T) {
	policy := DefaultPolicy()
	policy.BypassRoles = map[string]bool{"superadmin": true}

	if policy.Classify("announcement:publish", "superadmin", 1).Required {
		t.Fatal("expected bypass role to skip dual control")
	}
	if !policy.Classify("announcement:publish", "admin", 1).Required {
		t.Fatal("expected non-bypass role to require approval")
	}
}
