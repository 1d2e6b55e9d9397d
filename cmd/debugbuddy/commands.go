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
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/DebugBuddy/cmd/debugbuddy/config"
	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	"github.com/AleutianAI/DebugBuddy/pkg/ux"
)

// logger is the process logger, built from config in PersistentPreRun.
var logger = logging.Default()

// --- Global Command Variables ---
var (
	cfgPath       string
	outputMode    string
	userContext   string
	workDir       string
	maxSteps      int
	noWatch       bool
	noIndex       bool
	deterministic bool
	sessionsLimit int
	sessionsJSON  bool
	forceInit     bool

	rootCmd = &cobra.Command{
		Use:   "debugbuddy",
		Short: "An interactive assistant that debugs failing shell commands with you",
		Long: `DebugBuddy runs your command, and when it fails, drives a local
				diagnose-and-fix loop: it reads your project, consults a language
				model, and proposes diagnostics and patches that only touch the
				machine after you say yes.`,
		Version: "0.3.0",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfgPath != "" {
				loaded, err := config.LoadFrom(cfgPath)
				if err != nil {
					log.Fatalf("Error loading config %s: %v", cfgPath, err)
				}
				config.Global = loaded
			} else if err := config.Load(); err != nil {
				log.Fatalf("Error loading config: %v", err)
			}

			initOutputMode()
			logger = buildLogger(config.Global)
		},
	}

	// --- Debug ---
	debugCmd = &cobra.Command{
		Use:   "debug [command...]",
		Short: "Run a shell command and debug it interactively when it fails",
		Long: `Runs the given command in the working directory. A zero exit means
				there is nothing to do. On failure, the session seeds itself from
				the command output and the project tree, then iterates with the
				planner until the error is resolved or a limit is hit.`,
		Args: cobra.MinimumNArgs(1),
		Run:  runDebug, // Defined in cmd_debug.go
	}

	// --- Sessions ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Inspect past debugging sessions",
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List recorded debugging sessions, newest first",
		Run:   runSessionsList, // Defined in cmd_sessions.go
	}
	showSessionCmd = &cobra.Command{
		Use:   "show [session]",
		Short: "Show one session by id, id prefix, or store key",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsShow, // Defined in cmd_sessions.go
	}

	// --- Models ---
	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "Manage the local Ollama models the planner uses",
	}
	modelsStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Check that Ollama is reachable and the planner model is pulled",
		Run:   runModelsStatus, // Defined in cmd_models.go
	}
	modelsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the models the Ollama server has pulled",
		Run:   runModelsList, // Defined in cmd_models.go
	}
	modelsPullCmd = &cobra.Command{
		Use:   "pull [model]",
		Short: "Pull a model onto the Ollama server",
		Args:  cobra.ExactArgs(1),
		Run:   runModelsPull, // Defined in cmd_models.go
	}

	// --- Config ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage ~/.debugbuddy/debugbuddy.yaml",
	}
	initConfigCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Run:   runConfigInit, // Defined in cmd_config.go
	}
	showConfigCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Run:   runConfigShow, // Defined in cmd_config.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Path to an alternate config file (default ~/.debugbuddy/debugbuddy.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputMode, "output", "o", "",
		"Output style: rich (default on a terminal), minimal, or plain (scripting)")

	rootCmd.AddCommand(debugCmd)
	debugCmd.Flags().StringVarP(&userContext, "context", "c", "",
		"What you were trying to do, in your own words; shown to the planner")
	debugCmd.Flags().StringVarP(&workDir, "dir", "d", ".",
		"Working directory for the command and the session")
	debugCmd.Flags().IntVar(&maxSteps, "max-steps", 0,
		"Override the configured step limit for this session")
	debugCmd.Flags().BoolVar(&noWatch, "no-watch", false,
		"Disable the filesystem watcher that refreshes stale cached reads")
	debugCmd.Flags().BoolVar(&noIndex, "no-index", false,
		"Skip indexing the project for retrieval hints")
	debugCmd.Flags().BoolVar(&deterministic, "deterministic", false,
		"Ask the planner for greedy decoding so reruns repeat themselves")

	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(listSessionsCmd)
	listSessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20,
		"Maximum number of sessions to list")
	sessionsCmd.AddCommand(showSessionCmd)
	showSessionCmd.Flags().BoolVar(&sessionsJSON, "json", false,
		"Dump the full session record as JSON, including the final context")

	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsStatusCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsPullCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().BoolVar(&forceInit, "force", false,
		"Overwrite an existing config file with the defaults")
	configCmd.AddCommand(showConfigCmd)
}

// initOutputMode resolves the rendering mode. The flag wins, then the
// DEBUGBUDDY_OUTPUT env var, then TTY detection, then the config file.
func initOutputMode() {
	ux.InitMode()
	if config.Global.Output != "" && os.Getenv("DEBUGBUDDY_OUTPUT") == "" && ux.StdoutIsTerminal() {
		ux.SetMode(ux.ParseMode(config.Global.Output))
	}
	if outputMode != "" {
		ux.SetMode(ux.ParseMode(outputMode))
	}
}

// buildLogger constructs the process logger from config. Stderr stays
// on in every mode: the loop is single-threaded, so log lines land
// between prompts and double as step-by-step progress.
func buildLogger(cfg config.BuddyConfig) *logging.Logger {
	return logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "debugbuddy",
		JSON:    cfg.Logging.JSON,
	})
}

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
