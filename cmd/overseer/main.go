// Overseer control-plane server — accepts natural-language instructions
// over HTTP, routes them to the agent fleet, enforces risk-gated
// approval, and executes queued tasks with priorities and retries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/overseer-ai/overseer/pkg/agent"
	"github.com/overseer-ai/overseer/pkg/api"
	"github.com/overseer-ai/overseer/pkg/cleanup"
	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/database"
	"github.com/overseer-ai/overseer/pkg/eval"
	"github.com/overseer-ai/overseer/pkg/harness"
	"github.com/overseer-ai/overseer/pkg/hitl"
	"github.com/overseer-ai/overseer/pkg/llm"
	"github.com/overseer-ai/overseer/pkg/orchestrator"
	"github.com/overseer-ai/overseer/pkg/queue"
	"github.com/overseer-ai/overseer/pkg/risk"
	"github.com/overseer-ai/overseer/pkg/services"
	"github.com/overseer-ai/overseer/pkg/version"
	"github.com/overseer-ai/overseer/pkg/workflow"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		info := version.Get()
		fmt.Printf("%s %s (%s, built %s, %s)\n",
			version.AppName, info.Version, info.GitCommit, info.BuildDate, info.GoVersion)
		return
	}

	// Load .env before anything reads the environment.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}
	setupLogging()

	slog.Info("Starting overseer",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration: compiled-in defaults + YAML registries + env.
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded", "agents", stats.Agents, "workflows", stats.Workflows)

	// 2. Database (single SQLite file; migrations applied on open).
	dbClient, err := database.NewClient(ctx, cfg.Storage.DatabasePath)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()
	slog.Info("Database ready", "path", cfg.Storage.DatabasePath)

	// 3. LLM provider chain. All LLM-aware components degrade to rule
	// mode when no provider key is configured.
	llmClient := llm.NewClientFromEnv()
	slog.Info("LLM client initialized",
		"active", llmClient.ActiveProvider(),
		"offline_mode", !llmClient.Available())

	// 4. Stores and services.
	sessionService := services.NewSessionService(dbClient)
	profileService := services.NewProfileService(dbClient)
	if err := profileService.EnsureDefaults(ctx, cfg.Agents); err != nil {
		slog.Error("Failed to seed agent profiles", "error", err)
		os.Exit(1)
	}

	// 5. Risk, eval, and the approval gate.
	assessor := risk.New(llmClient, nil)
	evalEngine := eval.New(cfg.Defaults.EvalPassScore, llmClient, nil)
	notifier := hitl.NewWebhookNotifier(cfg.HITL, nil)
	gate := hitl.NewGate(dbClient, cfg.HITL, notifier, nil)

	// 6. EPCC harness with the progress journal.
	progress, err := harness.NewProgressLog(cfg.Storage.ProgressLogPath, nil)
	if err != nil {
		slog.Error("Failed to open progress log", "path", cfg.Storage.ProgressLogPath, "error", err)
		os.Exit(1)
	}
	pipeline := harness.New(sessionService, profileService, assessor, gate, evalEngine, progress, nil)

	// 7. Agent fleet and the dispatcher. The queue's executor runs the
	// full EPCC pipeline via the dispatcher, which itself needs the
	// queue for API submissions; the closure breaks the cycle.
	registry := agent.NewRegistry(cfg.Agents, llmClient, nil)
	var dispatcher *orchestrator.Dispatcher
	queueExecutor := func(ctx context.Context, agentName, instruction string) (string, error) {
		return dispatcher.ExecuteForQueue(ctx, agentName, instruction)
	}
	taskQueue := queue.New(dbClient, cfg.Queue, queueExecutor, nil)
	dispatcher = orchestrator.NewDispatcher(llmClient, pipeline, registry, taskQueue, nil)

	// 8. Workflow engine over the same pipeline.
	workflowExecutor := func(ctx context.Context, agentName, instruction string) (string, error) {
		return dispatcher.ExecuteForQueue(ctx, agentName, instruction)
	}
	engine := workflow.NewEngine(workflowExecutor, nil)
	for _, def := range cfg.Workflows {
		if err := engine.Register(def); err != nil {
			slog.Error("Failed to register workflow", "workflow_id", def.WorkflowID, "error", err)
			os.Exit(1)
		}
	}

	// 9. Queue workers (stale-task recovery runs inside Start).
	if err := taskQueue.Start(ctx); err != nil {
		slog.Error("Failed to start task queue", "error", err)
		os.Exit(1)
	}

	// 10. Retention cleanup.
	cleanupService := cleanup.NewService(cfg.Retention, taskQueue.Store(), gate, profileService, nil)
	cleanupService.Start(ctx)

	// 11. HTTP server.
	httpServer := api.NewServer(cfg, dbClient, registry, dispatcher, taskQueue,
		gate, engine, sessionService, profileService, llmClient, nil)

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Overseer started successfully",
		"workers", cfg.Queue.WorkerCount,
		"agents", stats.Agents)

	// 12. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown: stop intake first, then drain workers.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	taskQueue.Stop(true)
	cleanupService.Stop()

	slog.Info("Shutdown complete")
}
