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
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/DebugBuddy/cmd/debugbuddy/config"
	"github.com/AleutianAI/DebugBuddy/pkg/ux"
)

func runConfigInit(cmd *cobra.Command, args []string) {
	path, err := config.Path()
	if err != nil {
		log.Fatalf("Could not resolve the config path: %v", err)
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		ux.Warning(fmt.Sprintf("Config already exists at %s. Use --force to overwrite it.", path))
		return
	}
	if err := config.WriteDefault(path); err != nil {
		log.Fatalf("Could not write the config: %v", err)
	}
	ux.Success("Default config written to " + path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	data, err := yaml.Marshal(config.Global)
	if err != nil {
		log.Fatalf("Could not encode the config: %v", err)
	}
	if path, err := config.Path(); err == nil {
		if cfgPath != "" {
			path = cfgPath
		}
		ux.Muted("# " + path)
	}
	fmt.Print(string(data))
}
