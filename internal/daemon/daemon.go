// Package daemon runs Overlord as a persistent background process:
// scheduled ecosystem sweeps and proposal-expiry cleanup under one
// signal-driven shutdown. The chat command loop is not part of Run;
// cmd/overlord starts the chat poller separately.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/detect"
	"github.com/antigravity-dev/overlord/internal/ecosystem"
	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/proposal"
)

// Notifier posts free-form status text to the chat control plane. A nil
// Notifier means the daemon logs instead of posting.
type Notifier interface {
	Post(ctx context.Context, text string) (threadID string, err error)
}

// Daemon is the persistent background process.
type Daemon struct {
	cfg        *config.Config
	registry   *ecosystem.Registry
	proposals  *proposal.Manager
	memory     *memory.Log
	notifier   Notifier
	log        *slog.Logger
	cleanupTTL time.Duration
}

// New constructs a Daemon. notifier may be nil.
func New(cfg *config.Config, registry *ecosystem.Registry, proposals *proposal.Manager, mem *memory.Log, notifier Notifier, log *slog.Logger) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	return &Daemon{cfg: cfg, registry: registry, proposals: proposals, memory: mem, notifier: notifier, log: log, cleanupTTL: 30 * time.Minute}
}

// Run starts the scheduler and cleanup loops and blocks until ctx is
// canceled or a SIGINT/SIGTERM is received.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.log.Info("overlord daemon starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.schedulerLoop(gctx) })
	g.Go(func() error { return d.cleanupLoop(gctx) })

	err := g.Wait()
	d.log.Info("overlord daemon stopped")
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// schedulerLoop drives every enabled config.Schedule entry through a
// robfig/cron.Cron scheduler, dispatching to executeScheduledTask.
func (d *Daemon) schedulerLoop(ctx context.Context) error {
	c := cron.New()
	for name, task := range d.cfg.Schedule {
		if !task.Enabled || task.Cron == "" {
			continue
		}
		taskName, spec := name, task.Cron
		if err := c.AddFunc(spec, func() { d.executeScheduledTask(ctx, taskName) }); err != nil {
			d.log.Error("invalid cron spec for scheduled task", "task", taskName, "cron", spec, "error", err)
			continue
		}
		d.log.Info("scheduled task registered", "task", taskName, "cron", spec)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return ctx.Err()
}

func (d *Daemon) executeScheduledTask(ctx context.Context, name string) {
	d.log.Info("executing scheduled task", "task", name)

	switch name {
	case "scan":
		d.runScan(ctx)
	case "test-all":
		d.runTestAll(ctx)
	case "clean-stale-branches":
		d.runCleanStaleBranches(ctx)
	default:
		d.log.Warn("unknown scheduled task", "task", name)
	}

	if d.memory != nil {
		_ = d.memory.Remember(ctx, "pattern", fmt.Sprintf("Scheduled task %q executed", name), "")
	}
}

func (d *Daemon) runScan(ctx context.Context) {
	statuses, err := d.registry.Scan(ctx)
	if err != nil {
		d.log.Error("scan failed", "error", err)
		return
	}
	findings := detect.Run(detect.Default, statuses)
	if len(findings) > 0 {
		d.postf(ctx, "Scheduled scan: %d findings across %d projects", len(findings), len(statuses))
	}
	d.log.Info("scan complete", "projects", len(statuses), "findings", len(findings))
}

func (d *Daemon) runTestAll(ctx context.Context) {
	statuses, err := d.registry.Scan(ctx)
	if err != nil {
		d.log.Error("test-all scan failed", "error", err)
		return
	}
	var noTests []string
	for _, s := range statuses {
		if !s.Tests.HasTests {
			noTests = append(noTests, s.Name)
		}
	}
	if len(noTests) > 0 {
		d.postf(ctx, "Test sweep: %v have no tests detected", noTests)
	}
	d.log.Info("test-all sweep complete", "missing_tests", len(noTests))
}

func (d *Daemon) runCleanStaleBranches(ctx context.Context) {
	statuses, err := d.registry.Scan(ctx)
	if err != nil {
		d.log.Error("stale-branch scan failed", "error", err)
		return
	}
	count := 0
	for _, s := range statuses {
		if len(s.Git.StaleBranches) > 0 {
			count++
			d.postf(ctx, "%s: stale branches %v", s.Name, s.Git.StaleBranches)
		}
	}
	d.log.Info("stale branch check complete", "projects_with_stale_branches", count)
}

func (d *Daemon) postf(ctx context.Context, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if d.notifier == nil {
		d.log.Info(text)
		return
	}
	if _, err := d.notifier.Post(ctx, text); err != nil {
		d.log.Error("post to chat failed", "error", err)
	}
}

// cleanupLoop periodically expires stale pending proposals.
func (d *Daemon) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.proposals.CleanupExpired(d.cleanupTTL); err != nil {
				d.log.Error("proposal cleanup failed", "error", err)
			}
		}
	}
}
