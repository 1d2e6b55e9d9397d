// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DebugBuddy/cmd/debugbuddy/config"
	"github.com/AleutianAI/DebugBuddy/pkg/ux"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/llm"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/safety"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/tools"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/history"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/retrieval"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/seeder"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/subprocess"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/telemetry"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/tui"
)

// initialRunTimeout bounds the user's own command. Diagnostic commands
// the agent runs later use the much shorter configured timeout.
const initialRunTimeout = 10 * time.Minute

func runDebug(cmd *cobra.Command, args []string) {
	os.Exit(debugSession(args))
}

// debugSession runs the whole flow and reports the process exit code.
// Deferred cleanup (telemetry flush, file watcher) must run before the
// exit, so the os.Exit stays in runDebug.
func debugSession(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Global

	shutdown, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		logger.Warn("telemetry init failed, continuing without it", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	absDir, err := filepath.Abs(workDir)
	if err != nil {
		log.Fatalf("Could not resolve the working directory: %v", err)
	}

	command := strings.Join(args, " ")
	runner := subprocess.NewExecRunner(absDir, logger)

	spin := ux.NewSpinner("Running: " + command)
	spin.Start()
	res, err := runner.Run(ctx, command, initialRunTimeout)
	switch {
	case errors.Is(err, context.Canceled):
		spin.Stop()
		fmt.Println("Interrupted.")
		return 130
	case err != nil && !errors.Is(err, subprocess.ErrTimeout):
		spin.StopWithError(fmt.Sprintf("Could not run the command: %v", err))
		return 1
	}

	if res.OK() {
		spin.StopWithSuccess(fmt.Sprintf("Command succeeded in %s. Nothing to debug.",
			res.Duration.Round(time.Millisecond)))
		if res.Stdout != "" {
			fmt.Print(res.Stdout)
		}
		return 0
	}

	if res.TimedOut {
		spin.StopWithError(fmt.Sprintf("Command timed out after %s.", initialRunTimeout))
	} else {
		spin.StopWithError(fmt.Sprintf("Command failed with exit code %d.", res.ExitCode))
	}
	ux.ErrorBox("Command Output", tailLines(res.Combined(), 20))

	sctx := agentcontext.New(userContext, agentcontext.CommandDetails{
		Command:  command,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}, absDir, sessionConstraints(cfg), agentcontext.Limits{
		RecentActions:    cfg.Agent.RecentActionsLimit,
		ErrorProgression: cfg.Agent.ErrorProgressionLimit,
	})
	sctx.AvailableTools = tools.Descriptors()

	planner, err := buildPlanner(cfg)
	if err != nil {
		log.Fatalf("Planner setup failed: %v", err)
	}

	var rootCause seeder.RootCauseFunc
	if !noIndex {
		hybrid := buildRetrieval(cfg, planner)
		spin = ux.NewSpinner("Indexing project files")
		spin.Start()
		files, chunks, err := hybrid.IndexTree(ctx, absDir)
		if err != nil {
			spin.StopWithWarning(fmt.Sprintf("Indexing failed, continuing without hints: %v", err))
		} else {
			spin.StopWithSuccess(fmt.Sprintf("Indexed %d files into %d chunks.", files, chunks))
			rootCause = hybrid.RootCauseFile
		}
	}

	sdr := seeder.New(seeder.Options{
		MaxDepth:  cfg.Agent.MaxSearchDepth,
		RootCause: rootCause,
		Logger:    logger,
	})
	spin = ux.NewSpinner("Analyzing the failure")
	spin.Start()
	if err := sdr.Seed(ctx, sctx); err != nil {
		spin.StopWithError(fmt.Sprintf("Project analysis failed: %v", err))
		return 1
	}
	spin.StopWithSuccess(seedSummary(sctx))

	var refresher agent.ContextRefresher
	if !noWatch {
		watcher, err := seeder.NewWatcher(absDir, logger)
		if err != nil {
			logger.Warn("file watcher unavailable", "error", err)
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("file watcher failed to start", "error", err)
		} else {
			defer watcher.Stop()
			refresher = watcher
		}
	}

	interactor := tui.New(logger)
	dispatcher := tools.NewDispatcher(runner, safety.NewCommandGate(cfg.Safety.BlockedCommands),
		interactor, logger, tools.Config{
			DiagnosticTimeout: cfg.Safety.DiagnosticTimeout(),
			SearchCacheTTL:    cfg.Agent.SearchCacheTTL(),
			ReadCacheWindow:   cfg.Agent.ReadCacheWindow,
			SearchMaxDepth:    cfg.Agent.MaxSearchDepth,
		})

	orch, err := agent.NewOrchestrator(agent.Options{
		Planner:        planner,
		Dispatcher:     dispatcher,
		Interactor:     interactor,
		Logger:         logger,
		Optimizer:      agentcontext.OptimizerConfig{MaxContentChars: cfg.Agent.MaxOutputChars},
		MaxSteps:       maxSteps,
		DedupWindow:    cfg.Agent.DuplicateWindow,
		FailureLimit:   cfg.Agent.MaxConsecutiveFailures,
		PacingInterval: cfg.Agent.Pacing(),
		Temperature:    float64(cfg.Planner.Temperature),
		Deterministic:  deterministic,
		ForceJSON:      true,
		Refresher:      refresher,
	})
	if err != nil {
		log.Fatalf("Agent setup failed: %v", err)
	}

	session := agent.NewSession(sctx)
	result, err := orch.Run(ctx, session)
	if err != nil {
		log.Fatalf("Session failed: %v", err)
	}

	saveSessionLog(cfg, session, result, command)
	ux.SessionSummary(result.Metrics.StepsTaken, len(session.Context.SolvedIssues),
		failedSteps(session.Context))

	return exitCode(result.State)
}

// sessionConstraints maps config onto the planner-visible guarantees.
func sessionConstraints(cfg config.BuddyConfig) agentcontext.Constraints {
	constraints := agentcontext.DefaultConstraints()
	if cfg.Agent.MaxSteps > 0 {
		constraints.MaxSessionSteps = cfg.Agent.MaxSteps
	}
	return constraints
}

// buildPlanner constructs the configured LLM backend.
func buildPlanner(cfg config.BuddyConfig) (llm.Client, error) {
	p := cfg.Planner
	switch p.Backend {
	case "openai":
		if p.APIKeyEnv == "" {
			return nil, fmt.Errorf("the %q backend needs planner.api_key_env set in the config file", p.Backend)
		}
		key := []byte(os.Getenv(p.APIKeyEnv))
		if len(key) == 0 {
			return nil, fmt.Errorf("environment variable %s is empty; export the API key first", p.APIKeyEnv)
		}
		return llm.NewOpenAICompatClient(llm.OpenAIOptions{
			BaseURL:      p.BaseURL,
			Model:        p.Model,
			APIKey:       key,
			Timeout:      p.Timeout(),
			MaxRetries:   p.MaxRetries,
			RetryBackoff: p.RetryBackoff(),
			Logger:       logger,
		})
	default:
		return llm.NewOllamaClient(llm.OllamaOptions{
			BaseURL:      p.BaseURL,
			Model:        p.Model,
			Timeout:      p.Timeout(),
			MaxRetries:   p.MaxRetries,
			RetryBackoff: p.RetryBackoff(),
			Logger:       logger,
		})
	}
}

// buildRetrieval assembles the hybrid searcher: Weaviate when enabled
// and reachable, the in-memory backend otherwise. A planner that can
// embed doubles as the embedder; anything else leaves retrieval
// lexical-only.
func buildRetrieval(cfg config.BuddyConfig, planner llm.Client) *retrieval.Hybrid {
	var backend retrieval.Backend
	if cfg.Retrieval.Weaviate.Enabled {
		url := fmt.Sprintf("%s://%s", cfg.Retrieval.Weaviate.Scheme, cfg.Retrieval.Weaviate.Host)
		weaviate, err := retrieval.NewWeaviateBackend(url, logger)
		if err != nil {
			logger.Warn("weaviate unavailable, falling back to in-memory retrieval",
				"url", url, "error", err)
		} else {
			backend = weaviate
		}
	}
	embedder, _ := planner.(retrieval.Embedder)
	return retrieval.NewHybrid(retrieval.Options{
		Backend:  backend,
		Embedder: embedder,
		Weights: retrieval.Weights{
			BM25:   cfg.Retrieval.KeywordWeight,
			Vector: cfg.Retrieval.VectorWeight,
		},
		Chunker:  retrieval.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap),
		Stoplist: cfg.Retrieval.Stoplist,
		Logger:   logger,
	})
}

// telemetryConfig layers the file config over the env-aware defaults.
func telemetryConfig(cfg config.BuddyConfig) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.ServiceVersion = rootCmd.Version
	tc.Logger = logger
	if cfg.Telemetry.TraceExporter != "" {
		tc.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		tc.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.MetricsAddr != "" {
		tc.MetricsAddr = cfg.Telemetry.MetricsAddr
	}
	return tc
}

// saveSessionLog persists the finished session when history is on.
// Failures are logged and swallowed: losing a log entry never turns a
// resolved session into a failed command.
func saveSessionLog(cfg config.BuddyConfig, session *agent.Session, result *agent.RunResult, command string) {
	if !cfg.History.Enabled {
		return
	}
	store, err := history.Open(history.Options{Dir: cfg.History.Dir, Logger: logger})
	if err != nil {
		logger.Warn("session log store unavailable", "error", err)
		return
	}
	defer store.Close()

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Save(saveCtx, &history.Record{
		SessionID:      session.ID,
		Timestamp:      session.StartedAt,
		InitialCommand: command,
		UserContext:    session.Context.InitialUserRequest,
		FinalState:     string(result.State),
		FinalMessage:   result.FinalMessage,
		StepsTaken:     result.Metrics.StepsTaken,
		DurationMs:     result.Duration.Milliseconds(),
		FinalContext:   session.Context,
	}); err != nil {
		logger.Warn("session log not saved", "error", err)
		return
	}
	ux.Muted(fmt.Sprintf("Session saved. Revisit it with: debugbuddy sessions show %s",
		shortID(session.ID)))
}

func seedSummary(sctx *agentcontext.AgentContext) string {
	blocking := "no blocking error detected"
	if sctx.CurrentBlockingError != nil {
		blocking = "blocking error: " + sctx.CurrentBlockingError.Type
	}
	return fmt.Sprintf("Analyzed the project: %d files discovered, %d cached, %s.",
		len(sctx.FileState.DiscoveredFiles),
		len(sctx.KnowledgeBase.FilesRead),
		blocking)
}

func failedSteps(sctx *agentcontext.AgentContext) int {
	failed := 0
	for _, step := range sctx.SessionHistory {
		if step.Result.Status == agentcontext.StatusError {
			failed++
		}
	}
	return failed
}

// exitCode maps a terminal session state onto a shell exit status.
// Deliberate conclusions exit zero; giving up or hitting a limit exits
// one; interruption uses the conventional SIGINT code.
func exitCode(state agent.SessionState) int {
	switch state {
	case agent.StateResolved, agent.StateGuidanceProvided:
		return 0
	case agent.StateAbortedByUser:
		return 130
	default:
		return 1
	}
}

// tailLines returns the last n lines of s.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// shortID returns the first uuid block, enough to resolve a session.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
