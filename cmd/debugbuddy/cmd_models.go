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
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/DebugBuddy/cmd/debugbuddy/config"
	"github.com/AleutianAI/DebugBuddy/pkg/ux"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/llm"
)

// healthTimeout bounds the server probe so status answers fast when
// Ollama is down.
const healthTimeout = 5 * time.Second

// ollamaClient builds a management client for the local Ollama server.
// Model commands always talk to Ollama, even when the planner backend
// is an OpenAI-compatible server.
func ollamaClient() *llm.OllamaClient {
	baseURL := "http://localhost:11434"
	if config.Global.Planner.Backend == "ollama" && config.Global.Planner.BaseURL != "" {
		baseURL = config.Global.Planner.BaseURL
	}
	client, err := llm.NewOllamaClient(llm.OllamaOptions{
		BaseURL: baseURL,
		Model:   config.Global.Planner.Model,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Could not create the Ollama client: %v", err)
	}
	return client
}

func runModelsStatus(cmd *cobra.Command, args []string) {
	client := ollamaClient()

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		ux.Error(fmt.Sprintf("Ollama is not reachable: %v", err))
		fmt.Println("Start it with: ollama serve")
		os.Exit(1)
	}
	ux.Success("Ollama is running.")

	models, err := client.ListModels(ctx)
	if err != nil {
		log.Fatalf("Could not list models: %v", err)
	}

	configured := config.Global.Planner.Model
	for _, m := range models {
		if m.Name == configured {
			ux.Success(fmt.Sprintf("Planning model %s is available (%s).",
				configured, humanize.Bytes(uint64(m.SizeBytes))))
			return
		}
	}
	ux.Warning(fmt.Sprintf("Planning model %s is not pulled yet.", configured))
	fmt.Printf("Fetch it with: debugbuddy models pull %s\n", configured)
	os.Exit(1)
}

func runModelsList(cmd *cobra.Command, args []string) {
	client := ollamaClient()

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	models, err := client.ListModels(ctx)
	if err != nil {
		log.Fatalf("Could not list models: %v", err)
	}
	if len(models) == 0 {
		fmt.Println("No models pulled yet.")
		fmt.Printf("Fetch the configured one with: debugbuddy models pull %s\n",
			config.Global.Planner.Model)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			m.Name,
			humanize.Bytes(uint64(m.SizeBytes)),
			humanize.Time(m.ModifiedAt))
	}
	w.Flush()
}

func runModelsPull(cmd *cobra.Command, args []string) {
	client := ollamaClient()
	name := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spin := ux.NewSpinner("Pulling " + name)
	spin.Start()
	err := client.Pull(ctx, name, func(status string) {
		spin.UpdateMessage(fmt.Sprintf("Pulling %s: %s", name, status))
	})
	if err != nil {
		spin.StopWithError(fmt.Sprintf("Pull failed: %v", err))
		os.Exit(1)
	}
	spin.StopWithSuccess(fmt.Sprintf("Model %s is ready.", name))
}
