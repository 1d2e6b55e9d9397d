// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command debugbuddy is a local, interactive debugging assistant.
//
// Usage:
//
//	debugbuddy debug -- python etl.py
//	debugbuddy debug --context "broke after the schema change" -- npm test
//	debugbuddy sessions list
//	debugbuddy models status
//
// The debug command runs the given shell command; when it fails, an
// agentic loop gathers project context, consults a local language
// model, and walks through diagnostics and fixes. Nothing on disk
// changes without an explicit confirmation.
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
