package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antigravity-dev/overlord/internal/ecosystem"
)

func TestStaleBranchDetector(t *testing.T) {
	d := StaleBranchDetector{ThresholdDays: 14}
	status := ecosystem.ProjectStatus{Name: "api", Git: ecosystem.GitState{StaleBranches: []string{"feat/old", "fix/ancient"}}}

	findings := d.Detect(status)
	assert.Len(t, findings, 2)
	assert.Equal(t, "stale-branch", findings[0].Detector)
	assert.Contains(t, findings[0].Description, "feat/old")
	assert.Contains(t, findings[0].Description, "14 days")
	assert.Equal(t, "clean stale branches in api", findings[0].ProposedAction)
}

func TestStaleBranchDetectorDefaultsThreshold(t *testing.T) {
	d := StaleBranchDetector{}
	status := ecosystem.ProjectStatus{Name: "api", Git: ecosystem.GitState{StaleBranches: []string{"feat/old"}}}
	findings := d.Detect(status)
	assert.Contains(t, findings[0].Description, "7 days")
}

func TestStaleBranchDetectorNoStaleBranches(t *testing.T) {
	d := StaleBranchDetector{}
	findings := d.Detect(ecosystem.ProjectStatus{Name: "api"})
	assert.Empty(t, findings)
}

func TestAheadOfMainDetectorSeverityScalesWithCount(t *testing.T) {
	d := AheadOfMainDetector{}

	findings := d.Detect(ecosystem.ProjectStatus{Name: "api", Git: ecosystem.GitState{Branch: "feat/x", Ahead: 2}})
	assert.Len(t, findings, 1)
	assert.Equal(t, SeverityLow, findings[0].Severity)

	findings = d.Detect(ecosystem.ProjectStatus{Name: "api", Git: ecosystem.GitState{Branch: "feat/x", Ahead: 6}})
	assert.Equal(t, SeverityMedium, findings[0].Severity)

	findings = d.Detect(ecosystem.ProjectStatus{Name: "api", Git: ecosystem.GitState{Ahead: 0}})
	assert.Empty(t, findings)
}

func TestFailingTestDetectorFlagsMissingInfra(t *testing.T) {
	d := FailingTestDetector{}
	findings := d.Detect(ecosystem.ProjectStatus{Name: "api", Tests: ecosystem.TestHealth{HasTests: false}})
	assert.Len(t, findings, 1)
	assert.Equal(t, "No test infrastructure detected", findings[0].Description)
}

func TestFailingTestDetectorFlagsRelatedIssues(t *testing.T) {
	d := FailingTestDetector{}
	status := ecosystem.ProjectStatus{
		Name:   "api",
		Tests:  ecosystem.TestHealth{HasTests: true},
		Issues: []string{"branch significantly ahead of remote", "CI test suite failing"},
	}
	findings := d.Detect(status)
	assert.Len(t, findings, 1)
	assert.Equal(t, "CI test suite failing", findings[0].Description)
}

func TestRunAppliesEveryDetectorToEveryProject(t *testing.T) {
	statuses := []ecosystem.ProjectStatus{
		{Name: "api", Tests: ecosystem.TestHealth{HasTests: false}},
		{Name: "frontend", Git: ecosystem.GitState{StaleBranches: []string{"fix/old"}}, Tests: ecosystem.TestHealth{HasTests: true}},
	}
	findings := Run(Default, statuses)

	var byProject = map[string]int{}
	for _, f := range findings {
		byProject[f.Project]++
	}
	assert.Equal(t, 1, byProject["api"])
	assert.Equal(t, 1, byProject["frontend"])
}
