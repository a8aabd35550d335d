// Package governance implements the pre-execution autonomy/scope gate
// and the deterministic pre-dispatch governance checks.
package governance

import (
	"fmt"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/planner"
)

// ScopeVerdict is the result of evaluating an ActionScope against the
// current autonomy level.
type ScopeVerdict struct {
	Approved           bool
	Reason             string
	EscalationRequired bool
}

// EvaluateScope implements the autonomy/scope decision table from
// spec §4.4.
func EvaluateScope(scope planner.ActionScope, level config.AutonomyLevel) ScopeVerdict {
	if scope.Destructive && scope.AffectsRemote {
		return ScopeVerdict{Approved: false, Reason: "destructive remote action requires explicit approval", EscalationRequired: true}
	}

	switch level {
	case config.AutonomyCautious:
		if scope.EstimatedImpact == planner.ImpactLow && !scope.AffectsRemote {
			return ScopeVerdict{Approved: true, Reason: "low-impact local action auto-approved under cautious mode"}
		}
		return ScopeVerdict{
			Approved:           false,
			Reason:             "cautious mode requires approval for non-trivial actions",
			EscalationRequired: scope.EstimatedImpact == planner.ImpactMedium || scope.EstimatedImpact == planner.ImpactHigh,
		}

	case config.AutonomyProactive:
		if scope.EstimatedImpact == planner.ImpactLow {
			return ScopeVerdict{Approved: true, Reason: "low-impact action auto-approved under proactive mode"}
		}
		return ScopeVerdict{
			Approved:           false,
			Reason:             fmt.Sprintf("%s-impact action requires approval under proactive mode", scope.EstimatedImpact),
			EscalationRequired: scope.EstimatedImpact == planner.ImpactHigh,
		}

	case config.AutonomyScheduled:
		if scope.EstimatedImpact == planner.ImpactLow {
			return ScopeVerdict{Approved: true, Reason: "low-impact action auto-approved under scheduled mode"}
		}
		if scope.EstimatedImpact == planner.ImpactMedium && !scope.AffectsRemote {
			return ScopeVerdict{Approved: true, Reason: "medium-impact local action auto-approved under scheduled mode"}
		}
		return ScopeVerdict{
			Approved:           false,
			Reason:             fmt.Sprintf("%s-impact action escalated under scheduled mode", scope.EstimatedImpact),
			EscalationRequired: true,
		}

	default:
		return ScopeVerdict{Approved: false, Reason: fmt.Sprintf("unknown autonomy level %q", level), EscalationRequired: true}
	}
}

// ShouldEscalate independently flags destructive+remote actions and
// high-impact multi-project actions, regardless of the EvaluateScope
// verdict.
func ShouldEscalate(scope planner.ActionScope) bool {
	if scope.Destructive && scope.AffectsRemote {
		return true
	}
	if scope.EstimatedImpact == planner.ImpactHigh && len(scope.Projects) > 1 {
		return true
	}
	return false
}

// CanAutoExecute resolves the effective autonomy level for project (or
// the global level if project is empty) and decides whether action may
// run without any human signal at all.
func CanAutoExecute(action string, scope planner.ActionScope, project string, cfg *config.Config) bool {
	level := cfg.Autonomy.Global
	if project != "" {
		level = cfg.EffectiveAutonomy(project)
	}

	switch level {
	case config.AutonomyCautious:
		return false
	case config.AutonomyProactive:
		return !scope.Destructive && scope.Reversible && !scope.AffectsRemote &&
			(scope.EstimatedImpact == planner.ImpactLow || scope.EstimatedImpact == planner.ImpactMedium)
	case config.AutonomyScheduled:
		return cfg.IsPreApproved(action, scope.Projects)
	default:
		return false
	}
}
