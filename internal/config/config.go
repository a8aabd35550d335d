// Package config loads and validates the Overlord TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// BranchModel is the declared branching strategy for a project.
type BranchModel string

const (
	BranchModelDevelopMain BranchModel = "develop-main"
	BranchModelTrunkBased  BranchModel = "trunk-based"
	BranchModelGitflow     BranchModel = "gitflow"
)

// ProjectRole classifies a project's place in the ecosystem.
type ProjectRole string

const (
	RoleSharedLibrary      ProjectRole = "shared-library"
	RolePlatformDeployment ProjectRole = "platform-deployment"
	RoleFrontend           ProjectRole = "frontend"
	RoleTooling            ProjectRole = "tooling"
	RoleProvisioning       ProjectRole = "provisioning"
	RolePersonal           ProjectRole = "personal"
)

// AutonomyLevel is the closed set of autonomy levels the governance gate
// evaluates action scopes against.
type AutonomyLevel string

const (
	AutonomyCautious  AutonomyLevel = "cautious"
	AutonomyProactive AutonomyLevel = "proactive"
	AutonomyScheduled AutonomyLevel = "scheduled"
)

// WorkerKind discriminates the three concrete worker backends.
type WorkerKind string

const (
	WorkerClaude WorkerKind = "claude"
	WorkerGemini WorkerKind = "gemini"
	WorkerLocal  WorkerKind = "local"
)

type Config struct {
	General       General                `toml:"general"`
	Projects      map[string]Project     `toml:"projects"`
	Autonomy      Autonomy               `toml:"autonomy"`
	Schedule      map[string]ScheduleTask `toml:"schedule"`
	Workers       map[string]Worker      `toml:"workers"`
	CostControls  CostControls           `toml:"cost_controls"`
	Notifications Notifications          `toml:"notifications"`
	ChatLLM       ChatLLM                `toml:"chat_llm"`
}

type General struct {
	LogLevel      string   `toml:"log_level"`
	StateDir      string   `toml:"state_dir"`
	WorkspaceRoot string   `toml:"workspace_root"`
	MirrorRoot    string   `toml:"mirror_root"`
	WorktreeRoot  string   `toml:"worktree_root"`
	TickInterval  Duration `toml:"tick_interval"`
	LockTimeout   Duration `toml:"lock_timeout"`
}

type Project struct {
	Path        string      `toml:"path"`
	Remote      string      `toml:"remote"`
	Role        ProjectRole `toml:"role"`
	BranchModel BranchModel `toml:"branch_model"`
	DependsOn   []string    `toml:"depends_on"`
}

type Autonomy struct {
	Global       AutonomyLevel                      `toml:"global"`
	Overrides    map[string]AutonomyLevel           `toml:"overrides"`
	PreApproved  map[string][]string                `toml:"pre_approved"`
	StrategicKws []string                           `toml:"strategic_keywords"`
}

type ScheduleTask struct {
	Cron    string `toml:"cron"`
	Enabled bool   `toml:"enabled"`
}

type Worker struct {
	Enabled        bool              `toml:"enabled"`
	BinaryPath     string            `toml:"binary_path"`
	DefaultModel   string            `toml:"default_model"`
	ModelOverrides map[string]string `toml:"model_overrides"`
	Timeout        Duration          `toml:"timeout"`
	Endpoint       string            `toml:"endpoint"`
	APIKey         string            `toml:"api_key"`
	APIKeyEnv      string            `toml:"api_key_env"`
	Sandbox        string            `toml:"sandbox"` // "", "docker"
}

type CostControls struct {
	DailyCeilingUSD       float64 `toml:"daily_ceiling_usd"`
	WarningThresholdPct   float64 `toml:"warning_threshold_pct"`
	DefaultTaskBudgetTok  int     `toml:"default_task_budget_tokens"`
}

type Notifications struct {
	UrgentEnabled  bool   `toml:"urgent_enabled"`
	DigestEnabled  bool   `toml:"digest_enabled"`
	DigestCron     string `toml:"digest_cron"`
	ChatAccount    string `toml:"chat_account"`
	DefaultChannel string `toml:"default_channel"`
}

// ChatLLM configures the conversational fallback used by the chat
// command router for text that matches no fixed command.
type ChatLLM struct {
	Enabled   bool     `toml:"enabled"`
	Model     string   `toml:"model"`
	APIKey    string   `toml:"api_key"`
	APIKeyEnv string   `toml:"api_key_env"`
	Timeout   Duration `toml:"timeout"`
}

// ExpandHome expands a leading "~" to the current user's home directory.
func ExpandHome(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Load reads and parses the TOML configuration at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks referential integrity of the loaded config: every
// depends_on entry must name a configured project, and autonomy overrides
// and pre-approved entries must reference configured projects.
func (c *Config) Validate() error {
	for name, p := range c.Projects {
		for _, dep := range p.DependsOn {
			if _, ok := c.Projects[dep]; !ok {
				return fmt.Errorf("config: project %q depends_on unknown project %q", name, dep)
			}
		}
	}
	for name := range c.Autonomy.Overrides {
		if _, ok := c.Projects[name]; !ok {
			return fmt.Errorf("config: autonomy override for unknown project %q", name)
		}
	}
	for name := range c.Autonomy.PreApproved {
		if _, ok := c.Projects[name]; !ok {
			return fmt.Errorf("config: pre_approved entry for unknown project %q", name)
		}
	}
	return nil
}

// EffectiveAutonomy resolves the autonomy level for a project: a
// per-project override if present, else the global level.
func (c *Config) EffectiveAutonomy(project string) AutonomyLevel {
	if lvl, ok := c.Autonomy.Overrides[project]; ok && lvl != "" {
		return lvl
	}
	return c.Autonomy.Global
}

// IsPreApproved reports whether action is in the pre-approved list for
// every one of the given projects.
func (c *Config) IsPreApproved(action string, projects []string) bool {
	for _, p := range projects {
		actions, ok := c.Autonomy.PreApproved[p]
		if !ok {
			return false
		}
		found := false
		for _, a := range actions {
			if strings.EqualFold(a, action) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Manager supports hot-reload of the configuration, rejecting changes to
// fields that require a process restart to take effect safely.
type Manager interface {
	Current() *Config
	Reload(path string) error
}

type fileManager struct {
	cfg *Config
}

// NewManager wraps an already-loaded Config in a reloadable Manager.
func NewManager(cfg *Config) Manager {
	return &fileManager{cfg: cfg}
}

func (m *fileManager) Current() *Config { return m.cfg }

func (m *fileManager) Reload(path string) error {
	next, err := Load(path)
	if err != nil {
		return err
	}
	if err := ValidateReload(m.cfg, next); err != nil {
		return err
	}
	m.cfg = next
	return nil
}

// ValidateReload rejects a config reload that changes a field requiring
// a restart: the state directory or the workspace root.
func ValidateReload(oldCfg, newCfg *Config) error {
	if oldCfg == nil || newCfg == nil {
		return fmt.Errorf("config: invalid state during reload")
	}
	oldDir := strings.TrimSpace(oldCfg.General.StateDir)
	newDir := strings.TrimSpace(newCfg.General.StateDir)
	if oldDir != newDir {
		return fmt.Errorf("config: state_dir changed (%q -> %q) and requires restart", oldDir, newDir)
	}
	oldRoot := strings.TrimSpace(oldCfg.General.WorkspaceRoot)
	newRoot := strings.TrimSpace(newCfg.General.WorkspaceRoot)
	if oldRoot != newRoot {
		return fmt.Errorf("config: workspace_root changed (%q -> %q) and requires restart", oldRoot, newRoot)
	}
	return nil
}

// ResolveAPIKey returns the configured API key, falling back to the
// named environment variable.
func (w Worker) ResolveAPIKey() string {
	if w.APIKey != "" {
		return w.APIKey
	}
	if w.APIKeyEnv != "" {
		return os.Getenv(w.APIKeyEnv)
	}
	return ""
}

// ResolveAPIKey returns the configured API key, falling back to the
// named environment variable.
func (c ChatLLM) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}
