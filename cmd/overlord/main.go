package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/antigravity-dev/overlord/internal/chatbot"
	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/daemon"
	"github.com/antigravity-dev/overlord/internal/depgraph"
	"github.com/antigravity-dev/overlord/internal/dispatcher"
	"github.com/antigravity-dev/overlord/internal/ecosystem"
	"github.com/antigravity-dev/overlord/internal/governance"
	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/mirror"
	"github.com/antigravity-dev/overlord/internal/planner"
	"github.com/antigravity-dev/overlord/internal/proposal"
	"github.com/antigravity-dev/overlord/internal/queue"
	"github.com/antigravity-dev/overlord/internal/release"
	"github.com/antigravity-dev/overlord/internal/worker"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// components bundles every wired piece shared across subcommands.
type components struct {
	cfg        *config.Config
	queue      *queue.Queue
	graph      *depgraph.Graph
	parser     *planner.Parser
	workers    *worker.Registry
	governor   *governance.Engine
	mirrors    mirror.Manager
	dispatcher *dispatcher.Dispatcher
	engine     *dispatcher.Engine
	registry   *ecosystem.Registry
	memory     *memory.Log
	proposals  *proposal.Manager
	releases   *release.Coordinator
	router     *chatbot.Router
	transport  *chatbot.Transport
	stateDB    *sql.DB
}

func wire(cfg *config.Config, log *slog.Logger) (*components, error) {
	q, err := queue.Open(config.ExpandHome(cfg.General.StateDir) + "/overlord-queue.db")
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	stateDB, err := sql.Open("sqlite", config.ExpandHome(cfg.General.StateDir)+"/overlord-state.db")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	stateDB.SetMaxOpenConns(1)

	mem, err := memory.Open(stateDB)
	if err != nil {
		return nil, fmt.Errorf("open memory log: %w", err)
	}

	propStore, err := proposal.OpenStore(stateDB)
	if err != nil {
		return nil, fmt.Errorf("open proposal store: %w", err)
	}

	graph := depgraph.New(cfg)
	parser := planner.New(graph, q)
	workers := worker.NewRegistry(cfg)
	gov := governance.New(cfg, q, cfg.General.WorkspaceRoot)
	mirrors := mirror.NewGitManager(config.ExpandHome(cfg.General.MirrorRoot), config.ExpandHome(cfg.General.WorktreeRoot))
	d := dispatcher.New(q, cfg, mirrors, workers, gov, log.With("component", "dispatcher"))
	engine := dispatcher.NewEngine(d)
	registry := ecosystem.NewRegistry(cfg, cfg.General.TickInterval.Duration)
	releases := release.New(cfg, graph, q, engine, mem)

	var transport *chatbot.Transport
	if cfg.Notifications.DefaultChannel != "" {
		transport = chatbot.NewTransport(nil, cfg.Notifications.ChatAccount, cfg.Notifications.DefaultChannel, 0)
	}
	var propNotifier proposal.Notifier
	if transport != nil {
		propNotifier = transport
	}
	propMgr := proposal.New(propStore, engine, propNotifier, mem, log.With("component", "proposal"))
	llm := chatbot.NewLLMFallback(cfg.ChatLLM, registry, mem)
	router := chatbot.New(cfg, graph, registry, parser, gov, propMgr, releases, engine, mem, llm)

	return &components{
		cfg: cfg, queue: q, graph: graph, parser: parser, workers: workers,
		governor: gov, mirrors: mirrors, dispatcher: d, engine: engine,
		registry: registry, memory: mem, proposals: propMgr, releases: releases,
		router: router, transport: transport, stateDB: stateDB,
	}, nil
}

func (c *components) Close() {
	c.queue.Close()
	c.stateDB.Close()
}

func main() {
	configPath := flag.String("config", "overlord.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		runDaemon(*configPath, *dev)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)

	c, err := wire(cfg, logger)
	if err != nil {
		logger.Error("failed to wire components", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	ctx := context.Background()

	switch args[0] {
	case "queue":
		runQueueCmd(ctx, c, logger, args[1:])
	case "dispatch":
		runDispatchCmd(ctx, c, logger, args[1:])
	case "status":
		printStatus(ctx, c, logger)
	case "scan":
		runScanCmd(ctx, c, logger)
	case "discover":
		runDiscoverCmd(c, logger)
	case "worker":
		fs := flag.NewFlagSet("worker", flag.ExitOnError)
		hostPort := fs.String("temporal-host", "", "Temporal frontend host:port (default 127.0.0.1:7233)")
		fs.Parse(args[1:])
		logger.Info("starting temporal plan-execution worker", "task_queue", dispatcher.TaskQueue)
		if err := dispatcher.StartWorker(*hostPort, c.dispatcher); err != nil {
			logger.Error("temporal worker exited", "error", err)
			os.Exit(1)
		}
	case "config":
		fmt.Printf("%+v\n", c.cfg)
	case "halt":
		logger.Info("halt requested; no running daemon to signal from a one-shot invocation")
	default:
		logger.Error("unknown command", "command", args[0])
		os.Exit(1)
	}
}

func runDaemon(configPath string, dev bool) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("overlord starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = configureLogger(cfg.General.LogLevel, dev)
	slog.SetDefault(logger)

	c, err := wire(cfg, logger)
	if err != nil {
		logger.Error("failed to wire components", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	var daemonNotifier daemon.Notifier
	if c.transport != nil {
		daemonNotifier = c.transport
	}
	d := daemon.New(cfg, c.registry, c.proposals, c.memory, daemonNotifier, logger.With("component", "daemon"))

	if c.transport != nil && cfg.Notifications.DefaultChannel != "" {
		go func() {
			poller := chatbot.NewPoller(c.transport, c.router, cfg.Notifications.DefaultChannel, 10*time.Second)
			if err := poller.Run(context.Background()); err != nil {
				logger.Error("chat poller stopped", "error", err)
			}
		}()
	}

	if err := d.Run(context.Background()); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func runQueueCmd(ctx context.Context, c *components, logger *slog.Logger, args []string) {
	if len(args) == 0 {
		logger.Error("queue: expected a subcommand (list|triage|sync|log)")
		os.Exit(1)
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("queue list", flag.ExitOnError)
		project := fs.String("project", "", "filter by project")
		status := fs.String("status", "", "filter by status")
		fs.Parse(args[1:])

		var statusPtr *queue.Status
		if *status != "" {
			s := queue.Status(*status)
			statusPtr = &s
		}
		tasks, err := c.queue.ListTasks(statusPtr, *project, 100)
		if err != nil {
			logger.Error("queue list failed", "error", err)
			os.Exit(1)
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\n", t.ID, t.Project, t.Status, t.Priority, t.Title)
		}
	case "triage":
		fs := flag.NewFlagSet("queue triage", flag.ExitOnError)
		title := fs.String("title", "", "task title")
		project := fs.String("project", "", "project name")
		description := fs.String("description", "", "task description")
		priority := fs.String("priority", string(queue.PriorityMedium), "priority")
		complexity := fs.String("complexity", "", "complexity")
		fs.Parse(args[1:])
		if *title == "" || *project == "" {
			logger.Error("queue triage: -title and -project are required")
			os.Exit(1)
		}
		id, err := c.queue.AddTask(*title, *project, *description, queue.Priority(*priority), *complexity, nil)
		if err != nil {
			logger.Error("queue triage failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(id)
	case "sync":
		fs := flag.NewFlagSet("queue sync", flag.ExitOnError)
		timeout := fs.Duration("lock-timeout", 30*time.Minute, "stale lock timeout")
		fs.Parse(args[1:])
		reclaimed, err := c.queue.ReclaimStaleLocks(*timeout)
		if err != nil {
			logger.Error("queue sync failed", "error", err)
			os.Exit(1)
		}
		logger.Info("reclaimed stale locks", "count", len(reclaimed), "tasks", reclaimed)
	case "log":
		fs := flag.NewFlagSet("queue log", flag.ExitOnError)
		fs.Parse(args[1:])
		if fs.NArg() == 0 {
			logger.Error("queue log: expected a task id")
			os.Exit(1)
		}
		entries, err := c.queue.GetTaskLog(fs.Arg(0))
		if err != nil {
			logger.Error("queue log failed", "error", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s -> %s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.OldStatus, e.NewStatus, e.ChangedBy, e.Reason.String)
		}
	default:
		logger.Error("queue: unknown subcommand", "subcommand", args[0])
		os.Exit(1)
	}
}

func runDispatchCmd(ctx context.Context, c *components, logger *slog.Logger, args []string) {
	if len(args) == 0 {
		logger.Error("dispatch: expected a subcommand (run|cleanup)")
		os.Exit(1)
	}
	switch args[0] {
	case "run":
		fs := flag.NewFlagSet("dispatch run", flag.ExitOnError)
		dryRun := fs.Bool("dry-run", false, "run dispatch logic without executing the worker")
		workerName := fs.String("worker", "", "explicit worker name, overriding tier inference")
		skipReview := fs.Bool("skip-review", false, "skip the automated review pass")
		fs.Parse(args[1:])
		if fs.NArg() == 0 {
			logger.Error("dispatch run: expected a task id")
			os.Exit(1)
		}
		rec, err := c.dispatcher.Dispatch(ctx, fs.Arg(0), dispatcher.Options{DryRun: *dryRun, WorkerName: *workerName, SkipReview: *skipReview})
		if err != nil {
			logger.Error("dispatch failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("task=%s worker=%s review=%s\n", rec.TaskID, rec.WorkerID, rec.ReviewStatus)
	case "cleanup":
		fs := flag.NewFlagSet("dispatch cleanup", flag.ExitOnError)
		timeout := fs.Duration("timeout", c.cfg.General.LockTimeout.Duration, "stale lock timeout")
		fs.Parse(args[1:])
		reclaimed, err := c.queue.ReclaimStaleLocks(*timeout)
		if err != nil {
			logger.Error("dispatch cleanup failed", "error", err)
			os.Exit(1)
		}
		n, err := c.proposals.CleanupExpired(30 * time.Minute)
		if err != nil {
			logger.Error("proposal cleanup failed", "error", err)
			os.Exit(1)
		}
		logger.Info("cleanup complete", "reclaimed_locks", len(reclaimed), "expired_proposals", n)
	default:
		logger.Error("dispatch: unknown subcommand", "subcommand", args[0])
		os.Exit(1)
	}
}

func printStatus(ctx context.Context, c *components, logger *slog.Logger) {
	statuses, err := c.registry.Scan(ctx)
	if err != nil {
		logger.Error("status failed", "error", err)
		os.Exit(1)
	}
	for _, s := range statuses {
		fmt.Printf("%s\t%s\tclean=%t\tahead=%s\tbehind=%s\n", s.Name, s.Git.Branch, s.Git.Clean, strconv.Itoa(s.Git.Ahead), strconv.Itoa(s.Git.Behind))
	}
}

func runScanCmd(ctx context.Context, c *components, logger *slog.Logger) {
	reply, err := c.router.Handle(ctx, "scan", "cli", "cli")
	if err != nil {
		logger.Error("scan failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(reply)
}

func runDiscoverCmd(c *components, logger *slog.Logger) {
	for _, name := range c.registry.Projects() {
		fmt.Println(name)
	}
}
