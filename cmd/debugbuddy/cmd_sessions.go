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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/DebugBuddy/cmd/debugbuddy/config"
	"github.com/AleutianAI/DebugBuddy/pkg/ux"
	agentcontext "github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/context"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/history"
)

// storeTimeout bounds one history store operation.
const storeTimeout = 10 * time.Second

// openHistory opens the session store read-write. Listing still works
// when history.enabled is off; the flag only gates new writes.
func openHistory() *history.Store {
	store, err := history.Open(history.Options{
		Dir:    config.Global.History.Dir,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Could not open the session store: %v", err)
	}
	return store
}

func runSessionsList(cmd *cobra.Command, args []string) {
	store := openHistory()
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	summaries, err := store.List(ctx, sessionsLimit)
	if err != nil {
		log.Fatalf("Could not list sessions: %v", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No debugging sessions recorded yet.")
		fmt.Println("Start one with: debugbuddy debug -- <command>")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tWHEN\tSTATE\tSTEPS\tCOMMAND")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			shortID(s.SessionID),
			humanize.Time(s.Timestamp),
			s.FinalState,
			s.StepsTaken,
			truncate(s.InitialCommand, 48))
	}
	w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) {
	store := openHistory()
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rec, err := store.Find(ctx, args[0])
	if errors.Is(err, history.ErrNotFound) {
		log.Fatalf("No session matches %q. Run 'debugbuddy sessions list' to see what is stored.", args[0])
	}
	if err != nil {
		log.Fatalf("Could not load the session: %v", err)
	}

	if sessionsJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			log.Fatalf("Could not encode the session: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	printSessionRecord(rec)
}

func printSessionRecord(rec *history.Record) {
	summary := fmt.Sprintf("Command:  %s\nStarted:  %s\nState:    %s\nSteps:    %d\nDuration: %s",
		rec.InitialCommand,
		rec.Timestamp.Format(time.RFC1123),
		rec.FinalState,
		rec.StepsTaken,
		time.Duration(rec.DurationMs)*time.Millisecond)
	if rec.UserContext != "" {
		summary += "\nContext:  " + rec.UserContext
	}
	ux.Box("Session "+shortID(rec.SessionID), summary)

	if rec.FinalContext != nil && len(rec.FinalContext.SessionHistory) > 0 {
		fmt.Println()
		for _, step := range rec.FinalContext.SessionHistory {
			icon := ux.IconSuccess
			if step.Result.Status == agentcontext.StatusError {
				icon = ux.IconError
			}
			fmt.Printf(" %s %2d  %s  %s\n", icon.Render(), step.StepNo,
				step.Action.Tool, truncate(step.Result.Message, 72))
		}
	}

	if rec.FinalMessage != "" {
		fmt.Println()
		ux.Box("Outcome", rec.FinalMessage)
	}
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
