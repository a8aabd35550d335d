// Package chatbot routes chat-transport messages to the Overlord
// stack: a fixed regex command vocabulary first, natural-language
// dispatch requests through the planner and governance gates, and an
// LLM-backed fallback for anything else.
package chatbot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/depgraph"
	"github.com/antigravity-dev/overlord/internal/detect"
	"github.com/antigravity-dev/overlord/internal/ecosystem"
	"github.com/antigravity-dev/overlord/internal/governance"
	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/planner"
	"github.com/antigravity-dev/overlord/internal/proposal"
	"github.com/antigravity-dev/overlord/internal/release"
)

var (
	reStatus   = regexp.MustCompile(`(?i)^status(?:\s+(\S+))?$`)
	reScan     = regexp.MustCompile(`(?i)^scan(?:\s+(\S+))?$`)
	reMerge    = regexp.MustCompile(`(?i)^merge\s+(\S+)\s+(\S+)\s+to\s+(\S+)$`)
	reRelease  = regexp.MustCompile(`(?i)^release\s+(\S+)\s+(\S+)$`)
	reAutonomy = regexp.MustCompile(`(?i)^autonomy(?:\s+(\S+))?$`)
	reMemory   = regexp.MustCompile(`(?i)^memory\s+(.+)$`)
	reApprove  = regexp.MustCompile(`(?i)^approve\s+(\S+)$`)
	reDeny     = regexp.MustCompile(`(?i)^deny\s+(\S+)$`)
	reHelp     = regexp.MustCompile(`(?i)^help$`)
	reGreeting = regexp.MustCompile(`(?i)^(hi|hello|hey|howdy|yo|sup|what'?s\s*up|how\s*are\s*you|how'?s\s*it\s*going)\b`)
)

var autonomyDescriptions = map[config.AutonomyLevel]string{
	config.AutonomyCautious:  "Cautious: Nothing auto-executes. All actions require explicit approval.",
	config.AutonomyProactive: "Proactive: Safe local operations auto-execute. Remote-affecting actions require approval.",
	config.AutonomyScheduled: "Scheduled: Pre-approved actions auto-execute on schedule. Others require approval.",
}

// Router dispatches a single chat message to the Overlord stack.
type Router struct {
	cfg       *config.Config
	graph     *depgraph.Graph
	registry  *ecosystem.Registry
	parser    *planner.Parser
	governor  *governance.Engine
	proposals *proposal.Manager
	releases  *release.Coordinator
	executor  proposal.Executor
	memory    *memory.Log
	llm       *LLMFallback
}

// New constructs a Router. llm may be nil to disable the LLM fallback.
func New(cfg *config.Config, graph *depgraph.Graph, registry *ecosystem.Registry, parser *planner.Parser, governor *governance.Engine, proposals *proposal.Manager, releases *release.Coordinator, executor proposal.Executor, mem *memory.Log, llm *LLMFallback) *Router {
	return &Router{cfg: cfg, graph: graph, registry: registry, parser: parser, governor: governor, proposals: proposals, releases: releases, executor: executor, memory: mem, llm: llm}
}

// Handle parses text and routes it to the matching handler, falling
// back to the LLM fallback when no fixed command matches.
func (r *Router) Handle(ctx context.Context, text, userID, threadID string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return r.handleHelp(), nil
	}

	if m := reStatus.FindStringSubmatch(text); m != nil {
		return r.handleStatus(ctx, m[1])
	}
	if m := reScan.FindStringSubmatch(text); m != nil {
		return r.handleScan(ctx, m[1])
	}
	if reMerge.MatchString(text) {
		return r.handleDispatch(ctx, text)
	}
	if m := reRelease.FindStringSubmatch(text); m != nil {
		return r.handleRelease(ctx, m[1], m[2])
	}
	if m := reAutonomy.FindStringSubmatch(text); m != nil {
		return r.handleAutonomy(m[1]), nil
	}
	if m := reMemory.FindStringSubmatch(text); m != nil {
		return r.handleMemory(ctx, m[1])
	}
	if m := reApprove.FindStringSubmatch(text); m != nil {
		return r.handleApprove(ctx, m[1])
	}
	if m := reDeny.FindStringSubmatch(text); m != nil {
		return r.handleDeny(ctx, m[1])
	}
	if reHelp.MatchString(text) {
		return r.handleHelp(), nil
	}
	if reGreeting.MatchString(text) {
		return "Hey! I'm the Overlord — your ecosystem orchestrator.\nType `help` to see what I can do.", nil
	}

	if r.llm == nil {
		return "I didn't recognize that command. Type `help` for the command list.", nil
	}
	return r.llm.Respond(ctx, text, userID, threadID)
}

func (r *Router) handleStatus(ctx context.Context, project string) (string, error) {
	statuses, err := r.registry.Scan(ctx)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, s := range statuses {
		if project != "" && s.Name != project {
			continue
		}
		health := "clean"
		if !s.Git.Clean {
			health = "dirty"
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s), %d ahead / %d behind", s.Name, s.Git.Branch, health, s.Git.Ahead, s.Git.Behind))
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No status available for %q", project), nil
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Router) handleScan(ctx context.Context, project string) (string, error) {
	statuses, err := r.registry.Scan(ctx)
	if err != nil {
		return "", err
	}
	if project != "" {
		filtered := statuses[:0]
		for _, s := range statuses {
			if s.Name == project {
				filtered = append(filtered, s)
			}
		}
		statuses = filtered
	}
	findings := detect.Run(detect.Default, statuses)
	if len(findings) == 0 {
		return fmt.Sprintf("Scan complete: %d/%d healthy", len(statuses), len(statuses)), nil
	}
	lines := []string{fmt.Sprintf("Scan found %d issues:", len(findings))}
	for _, f := range findings {
		lines = append(lines, fmt.Sprintf("  [%s] %s: %s", f.Severity, f.Project, f.Description))
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Router) handleDispatch(ctx context.Context, text string) (string, error) {
	plan, err := r.parser.Parse(text)
	if err != nil {
		return "", err
	}
	return r.proposeOrExecute(ctx, text, plan, "natural-language dispatch command")
}

func (r *Router) handleRelease(ctx context.Context, project, version string) (string, error) {
	plan, err := r.releases.PlanRelease(release.Spec{Project: project, Version: version, UpdateDependents: true})
	if err != nil {
		return "", err
	}
	return r.proposeOrExecute(ctx, plan.Task, plan, fmt.Sprintf("release %s %s", project, version))
}

func (r *Router) proposeOrExecute(ctx context.Context, task string, plan *planner.Plan, reason string) (string, error) {
	verdict := governance.EvaluateScope(plan.Scope, r.cfg.EffectiveAutonomy(primaryProject(plan.Scope)))
	if verdict.Approved && !plan.RequiresApproval {
		outcome, err := r.executor.Execute(ctx, plan, true)
		if err != nil {
			return "", err
		}
		if outcome.Status == "success" {
			return fmt.Sprintf("Dispatched and executed successfully: %s", task), nil
		}
		return fmt.Sprintf("Dispatched but failed: %s", outcome.Reason), nil
	}

	id, err := r.proposals.Propose(ctx, task, plan.Scope, reason, plan)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Proposal `%s` created for approval: %s", id, task), nil
}

func primaryProject(scope planner.ActionScope) string {
	if len(scope.Projects) == 0 {
		return ""
	}
	return scope.Projects[0]
}

func (r *Router) handleAutonomy(level string) string {
	if level != "" {
		if desc, ok := autonomyDescriptions[config.AutonomyLevel(strings.ToLower(level))]; ok {
			return desc
		}
		return fmt.Sprintf("Unknown autonomy level: `%s`\nValid levels: cautious, proactive, scheduled", level)
	}

	lines := []string{fmt.Sprintf("Autonomy: global = %s", r.cfg.Autonomy.Global)}
	names := make([]string, 0, len(r.cfg.Projects))
	for name := range r.cfg.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("  %s: %s", name, r.cfg.EffectiveAutonomy(name)))
	}
	return strings.Join(lines, "\n")
}

func (r *Router) handleMemory(ctx context.Context, query string) (string, error) {
	entries, err := r.memory.Recent(ctx, "", 50)
	if err != nil {
		return "", err
	}
	var matched []string
	lowerQuery := strings.ToLower(query)
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Content), lowerQuery) {
			proj := "global"
			if e.Project.Valid {
				proj = e.Project.String
			}
			content := e.Content
			if len(content) > 80 {
				content = content[:80]
			}
			matched = append(matched, fmt.Sprintf("  [%d] (%s/%s) %s", e.ID, proj, e.Category, content))
			if len(matched) >= 5 {
				break
			}
		}
	}
	if len(matched) == 0 {
		return fmt.Sprintf("No memories found for: %s", query), nil
	}
	return fmt.Sprintf("Memory results for '%s':\n%s", query, strings.Join(matched, "\n")), nil
}

func (r *Router) handleApprove(ctx context.Context, proposalID string) (string, error) {
	return r.resolveProposal(ctx, proposalID, true)
}

func (r *Router) handleDeny(ctx context.Context, proposalID string) (string, error) {
	return r.resolveProposal(ctx, proposalID, false)
}

func (r *Router) resolveProposal(ctx context.Context, proposalID string, approve bool) (string, error) {
	result, err := r.proposals.Resolve(ctx, proposalID, approve)
	if err != nil {
		return "", err
	}
	if result == "" {
		return fmt.Sprintf("Proposal `%s` not found or not pending.", proposalID), nil
	}
	return result, nil
}

func (r *Router) handleHelp() string {
	return strings.Join([]string{
		"Overlord commands:",
		"  status [project] — ecosystem or project health",
		"  scan [project] — run detectors against the ecosystem",
		"  merge <project> <branch> to <branch> — dispatch a merge",
		"  release <project> <version> — plan and run a coordinated release",
		"  autonomy [level] — show autonomy levels or describe one",
		"  memory <query> — search the memory log",
		"  approve <proposal-id> / deny <proposal-id> — resolve a pending proposal",
		"  help — this message",
	}, "\n")
}
