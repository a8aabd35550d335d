package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/planner"
)

func TestEvaluateScopeDestructiveRemoteAlwaysEscalates(t *testing.T) {
	scope := planner.ActionScope{Destructive: true, AffectsRemote: true, EstimatedImpact: planner.ImpactLow}
	for _, level := range []config.AutonomyLevel{config.AutonomyCautious, config.AutonomyProactive, config.AutonomyScheduled} {
		v := EvaluateScope(scope, level)
		assert.False(t, v.Approved)
		assert.True(t, v.EscalationRequired)
	}
}

func TestEvaluateScopeCautious(t *testing.T) {
	lowLocal := planner.ActionScope{EstimatedImpact: planner.ImpactLow}
	v := EvaluateScope(lowLocal, config.AutonomyCautious)
	assert.True(t, v.Approved)

	lowRemote := planner.ActionScope{EstimatedImpact: planner.ImpactLow, AffectsRemote: true}
	v = EvaluateScope(lowRemote, config.AutonomyCautious)
	assert.False(t, v.Approved)

	medium := planner.ActionScope{EstimatedImpact: planner.ImpactMedium}
	v = EvaluateScope(medium, config.AutonomyCautious)
	assert.False(t, v.Approved)
	assert.True(t, v.EscalationRequired)
}

func TestEvaluateScopeProactive(t *testing.T) {
	v := EvaluateScope(planner.ActionScope{EstimatedImpact: planner.ImpactLow}, config.AutonomyProactive)
	assert.True(t, v.Approved)

	v = EvaluateScope(planner.ActionScope{EstimatedImpact: planner.ImpactMedium}, config.AutonomyProactive)
	assert.False(t, v.Approved)
	assert.False(t, v.EscalationRequired)

	v = EvaluateScope(planner.ActionScope{EstimatedImpact: planner.ImpactHigh}, config.AutonomyProactive)
	assert.False(t, v.Approved)
	assert.True(t, v.EscalationRequired)
}

func TestEvaluateScopeScheduled(t *testing.T) {
	v := EvaluateScope(planner.ActionScope{EstimatedImpact: planner.ImpactLow}, config.AutonomyScheduled)
	assert.True(t, v.Approved)

	v = EvaluateScope(planner.ActionScope{EstimatedImpact: planner.ImpactMedium}, config.AutonomyScheduled)
	assert.True(t, v.Approved, "medium-impact local action auto-approves under scheduled mode")

	v = EvaluateScope(planner.ActionScope{EstimatedImpact: planner.ImpactMedium, AffectsRemote: true}, config.AutonomyScheduled)
	assert.False(t, v.Approved)
	assert.True(t, v.EscalationRequired)
}

func TestEvaluateScopeUnknownLevel(t *testing.T) {
	v := EvaluateScope(planner.ActionScope{}, config.AutonomyLevel("bogus"))
	assert.False(t, v.Approved)
	assert.True(t, v.EscalationRequired)
}

func TestShouldEscalate(t *testing.T) {
	assert.True(t, ShouldEscalate(planner.ActionScope{Destructive: true, AffectsRemote: true}))
	assert.True(t, ShouldEscalate(planner.ActionScope{EstimatedImpact: planner.ImpactHigh, Projects: []string{"a", "b"}}))
	assert.False(t, ShouldEscalate(planner.ActionScope{EstimatedImpact: planner.ImpactHigh, Projects: []string{"a"}}))
	assert.False(t, ShouldEscalate(planner.ActionScope{EstimatedImpact: planner.ImpactLow}))
}

func TestCanAutoExecute(t *testing.T) {
	cfg := &config.Config{
		Autonomy: config.Autonomy{
			Global:      config.AutonomyProactive,
			Overrides:   map[string]config.AutonomyLevel{"cautious-proj": config.AutonomyCautious},
			PreApproved: map[string][]string{"scheduled-proj": {"run tests"}},
		},
	}

	assert.False(t, CanAutoExecute("anything", planner.ActionScope{}, "cautious-proj", cfg))

	proactiveOK := planner.ActionScope{Reversible: true, EstimatedImpact: planner.ImpactLow}
	assert.True(t, CanAutoExecute("x", proactiveOK, "other-proj", cfg))

	proactiveDestructive := planner.ActionScope{Destructive: true, Reversible: true, EstimatedImpact: planner.ImpactLow}
	assert.False(t, CanAutoExecute("x", proactiveDestructive, "other-proj", cfg))

	cfg.Autonomy.Overrides["scheduled-proj"] = config.AutonomyScheduled
	assert.True(t, CanAutoExecute("run tests", planner.ActionScope{Projects: []string{"scheduled-proj"}}, "scheduled-proj", cfg))
	assert.False(t, CanAutoExecute("deploy", planner.ActionScope{Projects: []string{"scheduled-proj"}}, "scheduled-proj", cfg))
}
