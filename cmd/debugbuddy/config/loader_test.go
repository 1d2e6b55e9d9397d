// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".debugbuddy", "debugbuddy.yaml")

	err := createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg BuddyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	// Verify some defaults
	if cfg.Planner.Backend != "ollama" {
		t.Errorf("Planner.Backend = %q, want %q", cfg.Planner.Backend, "ollama")
	}
	if cfg.Agent.MaxSteps != 20 {
		t.Errorf("Agent.MaxSteps = %d, want 20", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.MaxConsecutiveFailures != 3 {
		t.Errorf("Agent.MaxConsecutiveFailures = %d, want 3", cfg.Agent.MaxConsecutiveFailures)
	}
}

// TestCreateDefault_DirectoryCreation verifies directory is created.
func TestCreateDefault_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "deep", "nested", "path", "debugbuddy.yaml")

	err := createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed with nested path: %v", err)
	}

	dirPath := filepath.Dir(configPath)
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		t.Fatal("nested directories were not created")
	}
}

// TestLoadFrom verifies a written default round-trips through load.
func TestLoadFrom(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "debugbuddy.yaml")
	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.Retrieval.KeywordWeight != 0.3 {
		t.Errorf("KeywordWeight = %v, want 0.3", cfg.Retrieval.KeywordWeight)
	}
	if cfg.Retrieval.VectorWeight != 0.7 {
		t.Errorf("VectorWeight = %v, want 0.7", cfg.Retrieval.VectorWeight)
	}
}

// TestLoadFrom_PartialFile verifies missing fields take defaults.
func TestLoadFrom_PartialFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "debugbuddy.yaml")

	partial := "agent:\n  max_steps: 5\n"
	if err := os.WriteFile(configPath, []byte(partial), 0644); err != nil {
		t.Fatalf("failed to write partial config: %v", err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.Agent.MaxSteps != 5 {
		t.Errorf("MaxSteps = %d, want 5 from file", cfg.Agent.MaxSteps)
	}
	// Unspecified fields keep their defaults.
	if cfg.Agent.PacingMs != 500 {
		t.Errorf("PacingMs = %d, want default 500", cfg.Agent.PacingMs)
	}
	if cfg.Planner.Model == "" {
		t.Error("Planner.Model should default, got empty")
	}
}

// TestLoadFrom_InvalidValues verifies validation rejects bad configs.
func TestLoadFrom_InvalidValues(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "debugbuddy.yaml")

	bad := "agent:\n  max_steps: 0\n"
	if err := os.WriteFile(configPath, []byte(bad), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadFrom(configPath); err == nil {
		t.Error("LoadFrom() should reject max_steps: 0")
	}
}

// TestLoadFrom_BadBackend verifies the backend enum is enforced.
func TestLoadFrom_BadBackend(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "debugbuddy.yaml")

	bad := "planner:\n  backend: gemini\n"
	if err := os.WriteFile(configPath, []byte(bad), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadFrom(configPath); err == nil {
		t.Error("LoadFrom() should reject unknown planner backend")
	}
}

// TestLoadFrom_MissingFile verifies the error path.
func TestLoadFrom_MissingFile(t *testing.T) {
	if _, err := LoadFrom("/nonexistent/debugbuddy.yaml"); err == nil {
		t.Error("LoadFrom() should fail for a missing file")
	}
}

// TestValidate_Defaults verifies the shipped defaults pass validation.
func TestValidate_Defaults(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("DefaultConfig() should validate: %v", err)
	}
}

// TestDefaultConfig_Denylist verifies the conservative denylist.
func TestDefaultConfig_Denylist(t *testing.T) {
	cfg := DefaultConfig()
	want := []string{"rm", "del", "format", "mkfs", "dd", "mv", "cp", ">", ">>", "sudo"}
	if len(cfg.Safety.BlockedCommands) != len(want) {
		t.Fatalf("BlockedCommands len = %d, want %d", len(cfg.Safety.BlockedCommands), len(want))
	}
	for i, w := range want {
		if cfg.Safety.BlockedCommands[i] != w {
			t.Errorf("BlockedCommands[%d] = %q, want %q", i, cfg.Safety.BlockedCommands[i], w)
		}
	}
}

// TestDurationHelpers verifies unit conversions.
func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Agent.Pacing().Milliseconds() != 500 {
		t.Errorf("Pacing() = %v, want 500ms", cfg.Agent.Pacing())
	}
	if cfg.Agent.SearchCacheTTL().Seconds() != 300 {
		t.Errorf("SearchCacheTTL() = %v, want 5m", cfg.Agent.SearchCacheTTL())
	}
	if cfg.Planner.Timeout().Seconds() != 120 {
		t.Errorf("Timeout() = %v, want 120s", cfg.Planner.Timeout())
	}
	if cfg.Planner.RetryBackoff().Seconds() != 2 {
		t.Errorf("RetryBackoff() = %v, want 2s", cfg.Planner.RetryBackoff())
	}
	if cfg.Safety.DiagnosticTimeout().Seconds() != 10 {
		t.Errorf("DiagnosticTimeout() = %v, want 10s", cfg.Safety.DiagnosticTimeout())
	}
}
