// Package detect implements proactive detectors that inspect the
// ecosystem scan for actionable issues — stale branches, a branch with
// commits ahead of its remote, missing test infrastructure. Findings are
// reported only: the daemon's scan task posts how many were found and
// the chat router's scan command lists them. Nothing parses a Finding's
// ProposedAction or turns a Finding into a proposal.
package detect

import (
	"fmt"
	"strings"

	"github.com/antigravity-dev/overlord/internal/ecosystem"
)

// Severity is the closed set of finding severities.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Finding is a single detection result.
type Finding struct {
	Detector       string
	Project        string
	Severity       Severity
	Description    string
	ProposedAction string
}

// Detector inspects one project's scan result for issues.
type Detector interface {
	Detect(status ecosystem.ProjectStatus) []Finding
}

// StaleBranchDetector flags local branches with no recent activity.
type StaleBranchDetector struct {
	ThresholdDays int
}

func (d StaleBranchDetector) Detect(status ecosystem.ProjectStatus) []Finding {
	threshold := d.ThresholdDays
	if threshold <= 0 {
		threshold = 7
	}
	var out []Finding
	for _, branch := range status.Git.StaleBranches {
		out = append(out, Finding{
			Detector:       "stale-branch",
			Project:        status.Name,
			Severity:       SeverityLow,
			Description:    fmt.Sprintf("Branch %q has no recent activity (>%d days)", branch, threshold),
			ProposedAction: fmt.Sprintf("clean stale branches in %s", status.Name),
		})
	}
	return out
}

// AheadOfMainDetector flags when a project's current branch holds
// commits the target branch does not yet have.
type AheadOfMainDetector struct{}

func (d AheadOfMainDetector) Detect(status ecosystem.ProjectStatus) []Finding {
	if status.Git.Ahead <= 0 {
		return nil
	}
	severity := SeverityLow
	if status.Git.Ahead >= 5 {
		severity = SeverityMedium
	}
	return []Finding{{
		Detector:       "ahead-of-main",
		Project:        status.Name,
		Severity:       severity,
		Description:    fmt.Sprintf("Branch %q is %d commits ahead", status.Git.Branch, status.Git.Ahead),
		ProposedAction: fmt.Sprintf("merge %s develop to main", status.Name),
	}}
}

// FailingTestDetector flags missing test infrastructure or test-shaped
// issues already surfaced by the scan.
type FailingTestDetector struct{}

func (d FailingTestDetector) Detect(status ecosystem.ProjectStatus) []Finding {
	var out []Finding
	if !status.Tests.HasTests {
		out = append(out, Finding{
			Detector:       "failing-test",
			Project:        status.Name,
			Severity:       SeverityMedium,
			Description:    "No test infrastructure detected",
			ProposedAction: fmt.Sprintf("run tests in %s", status.Name),
		})
	}
	for _, issue := range status.Issues {
		lower := strings.ToLower(issue)
		if strings.Contains(lower, "test") || strings.Contains(lower, "fail") {
			out = append(out, Finding{
				Detector:       "failing-test",
				Project:        status.Name,
				Severity:       SeverityMedium,
				Description:    issue,
				ProposedAction: fmt.Sprintf("run tests in %s", status.Name),
			})
		}
	}
	return out
}

// Default is the fixed set of detectors run on every scheduled scan.
var Default = []Detector{
	StaleBranchDetector{ThresholdDays: 7},
	AheadOfMainDetector{},
	FailingTestDetector{},
}

// Run applies every detector in set to each project status.
func Run(set []Detector, statuses []ecosystem.ProjectStatus) []Finding {
	var all []Finding
	for _, status := range statuses {
		for _, d := range set {
			all = append(all, d.Detect(status)...)
		}
	}
	return all
}
