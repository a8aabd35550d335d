package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &ValidationError{Op: "transition", Reason: "unknown status"}, "validation: transition: unknown status"},
		{"lock_contention", &LockContentionError{TaskID: "t1", LockedBy: "worker-a"}, "lock contention: task t1 already locked by worker-a"},
		{"worker_unavailable_named", &WorkerUnavailable{Requested: "claude"}, "worker unavailable: claude"},
		{"worker_unavailable_empty", &WorkerUnavailable{}, "worker unavailable: no eligible worker in fallback chain"},
		{"execution_failure", &ExecutionFailure{Step: "merge", Reason: "exit 1"}, "execution failed at merge: exit 1"},
		{"governance_hard_block", &GovernanceHardBlock{Rule: "no-force-push", Detail: "main branch"}, "governance hard-block [no-force-push]: main branch"},
		{"budget_exhausted", &BudgetExhausted{Date: "2026-07-30", Pct: 104.5, Ceiling: 50}, "budget exhausted for 2026-07-30: 104.5% of 50.00 ceiling"},
		{"circular_dependency", &CircularDependency{Cycle: []string{"a", "b", "a"}}, fmt.Sprintf("circular dependency detected: %v", []string{"a", "b", "a"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &TransportError{Medium: "openclaw", Cause: cause}
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openclaw")
	assert.Contains(t, err.Error(), "refused")
}

func TestErrorsAsRecoversConcreteKind(t *testing.T) {
	var err error = &GovernanceHardBlock{Rule: "strategic-drift", Detail: "out of scope"}
	var hb *GovernanceHardBlock
	require.True(t, errors.As(err, &hb))
	assert.Equal(t, "strategic-drift", hb.Rule)

	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
}
