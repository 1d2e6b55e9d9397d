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
	"time"
)

// BuddyConfig is the root of ~/.debugbuddy/debugbuddy.yaml.
//
// Every threshold the agent uses at runtime lives here rather than as a
// hard-coded constant, so a user can loosen or tighten the loop without
// rebuilding. Durations are stored as integer fields with a unit suffix
// in the name; helper methods convert them to time.Duration.
type BuddyConfig struct {
	// Agent: loop limits and context window sizes
	Agent AgentConfig `yaml:"agent"`

	// Planner: which LLM backend proposes the next action
	Planner PlannerConfig `yaml:"planner"`

	// Retrieval: hybrid code search weights and backends
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Safety: command gating for diagnostic execution
	Safety SafetyConfig `yaml:"safety"`

	// History: session log persistence
	History HistoryConfig `yaml:"history"`

	// Telemetry: tracing/metrics, off by default
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging: structured log destinations
	Logging LoggingConfig `yaml:"logging"`

	// Output controls terminal rendering: rich, minimal, or plain
	Output string `yaml:"output" validate:"omitempty,oneof=rich minimal plain"`
}

type AgentConfig struct {
	// MaxSteps bounds a session; the agent never exceeds it. e.g. 20
	MaxSteps int `yaml:"max_steps" validate:"min=1,max=100"`

	// MaxConsecutiveFailures ends the session early. e.g. 3
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" validate:"min=1,max=20"`

	// DuplicateWindow is how many recent steps are checked when
	// deciding a proposed action is a repeat. e.g. 3
	DuplicateWindow int `yaml:"duplicate_window" validate:"min=1,max=10"`

	// PacingMs is the minimum gap between automated steps so a human
	// can follow along. e.g. 500
	PacingMs int `yaml:"pacing_ms" validate:"min=0,max=10000"`

	// RecentActionsLimit caps the rolling action window. e.g. 10
	RecentActionsLimit int `yaml:"recent_actions_limit" validate:"min=1,max=50"`

	// ErrorProgressionLimit caps remembered error transitions. e.g. 10
	ErrorProgressionLimit int `yaml:"error_progression_limit" validate:"min=1,max=50"`

	// MaxOutputChars is the prompt budget for a single stored output.
	// Longer outputs keep their head and tail halves around a marker.
	// e.g. 2000
	MaxOutputChars int `yaml:"max_output_chars" validate:"min=200"`

	// SearchCacheTTLSeconds bounds reuse of cached search results. e.g. 300
	SearchCacheTTLSeconds int `yaml:"search_cache_ttl_seconds" validate:"min=0"`

	// ReadCacheWindow is how many steps a file read stays fresh. e.g. 3
	ReadCacheWindow int `yaml:"read_cache_window" validate:"min=1,max=20"`

	// MaxSearchDepth bounds directory walks for search and structure
	// mapping. e.g. 3
	MaxSearchDepth int `yaml:"max_search_depth" validate:"min=1,max=10"`

	// MaxSearchResults caps results returned per codebase search. e.g. 10
	MaxSearchResults int `yaml:"max_search_results" validate:"min=1,max=100"`
}

// Pacing returns the per-step pacing delay.
func (a AgentConfig) Pacing() time.Duration {
	return time.Duration(a.PacingMs) * time.Millisecond
}

// SearchCacheTTL returns the search cache freshness window.
func (a AgentConfig) SearchCacheTTL() time.Duration {
	return time.Duration(a.SearchCacheTTLSeconds) * time.Second
}

type PlannerConfig struct {
	// Backend can be "ollama" or "openai" (any OpenAI-compatible server)
	Backend string `yaml:"backend" validate:"oneof=ollama openai"`

	// BaseURL of the backend, e.g. http://localhost:11434
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Model name to plan with, e.g. qwen2.5-coder:14b
	Model string `yaml:"model" validate:"required"`

	// APIKeyEnv names the environment variable holding the API key for
	// OpenAI-compatible backends. The key itself never goes in the file.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// TimeoutSeconds bounds one planning request. e.g. 120
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1,max=600"`

	// MaxRetries for transient backend failures. e.g. 3
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// RetryBackoffSeconds is the initial backoff; it doubles per retry. e.g. 2
	RetryBackoffSeconds int `yaml:"retry_backoff_seconds" validate:"min=1,max=60"`

	// Temperature for the planning model. Low keeps plans focused.
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// Timeout returns the per-request planner timeout.
func (p PlannerConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial retry backoff.
func (p PlannerConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffSeconds) * time.Second
}

type RetrievalConfig struct {
	// KeywordWeight scales lexical scores in fusion. e.g. 0.3
	KeywordWeight float64 `yaml:"keyword_weight" validate:"gte=0,lte=1"`

	// VectorWeight scales semantic scores in fusion. e.g. 0.7
	VectorWeight float64 `yaml:"vector_weight" validate:"gte=0,lte=1"`

	// TopK results returned to the caller after fusion. e.g. 5
	TopK int `yaml:"top_k" validate:"min=1,max=50"`

	// ChunkSize in characters for indexing. e.g. 1200
	ChunkSize int `yaml:"chunk_size" validate:"min=100"`

	// ChunkOverlap in characters between neighboring chunks. e.g. 200
	ChunkOverlap int `yaml:"chunk_overlap" validate:"min=0"`

	// Stoplist replaces the built-in common-token stoplist used when
	// extracting root cause terms from error text. Empty keeps the
	// built-in list.
	Stoplist []string `yaml:"stoplist,omitempty"`

	// Weaviate optionally offloads retrieval to a running instance.
	Weaviate WeaviateConfig `yaml:"weaviate"`
}

type WeaviateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Scheme  string `yaml:"scheme,omitempty" validate:"omitempty,oneof=http https"`
	Host    string `yaml:"host,omitempty"`
}

type SafetyConfig struct {
	// BlockedCommands is a substring denylist for diagnostic commands.
	// Matching is per token and broad: "cp" also blocks "scp".
	BlockedCommands []string `yaml:"blocked_commands"`

	// DiagnosticTimeoutSeconds bounds any diagnostic subprocess. e.g. 10
	DiagnosticTimeoutSeconds int `yaml:"diagnostic_timeout_seconds" validate:"min=1,max=120"`
}

// DiagnosticTimeout returns the subprocess timeout.
func (s SafetyConfig) DiagnosticTimeout() time.Duration {
	return time.Duration(s.DiagnosticTimeoutSeconds) * time.Second
}

type HistoryConfig struct {
	// Enabled persists session logs to a local store.
	Enabled bool `yaml:"enabled"`

	// Dir holds the store, e.g. ~/.debugbuddy/history
	Dir string `yaml:"dir,omitempty"`
}

type TelemetryConfig struct {
	// Enabled turns on tracing and metrics. Off by default: this is a
	// local tool and nothing leaves the machine unless asked.
	Enabled bool `yaml:"enabled"`

	// TraceExporter can be "stdout" or "otlp"
	TraceExporter string `yaml:"trace_exporter,omitempty" validate:"omitempty,oneof=stdout otlp"`

	// MetricExporter can be "stdout" or "prometheus"
	MetricExporter string `yaml:"metric_exporter,omitempty" validate:"omitempty,oneof=stdout prometheus"`

	// OTLPEndpoint for the otlp trace exporter, e.g. localhost:4317
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`

	// MetricsAddr for the prometheus scrape endpoint, e.g. :9464
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir for per-day JSON log files, e.g. ~/.debugbuddy/logs
	Dir string `yaml:"dir,omitempty"`

	// JSON switches stderr logs to JSON
	JSON bool `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() BuddyConfig {
	return BuddyConfig{
		Agent: AgentConfig{
			MaxSteps:               20,
			MaxConsecutiveFailures: 3,
			DuplicateWindow:        3,
			PacingMs:               500,
			RecentActionsLimit:     10,
			ErrorProgressionLimit:  10,
			MaxOutputChars:         2000,
			SearchCacheTTLSeconds:  300,
			ReadCacheWindow:        3,
			MaxSearchDepth:         3,
			MaxSearchResults:       10,
		},
		Planner: PlannerConfig{
			Backend:             "ollama",
			BaseURL:             "http://localhost:11434",
			Model:               "qwen2.5-coder:14b",
			TimeoutSeconds:      120,
			MaxRetries:          3,
			RetryBackoffSeconds: 2,
			Temperature:         0.2,
		},
		Retrieval: RetrievalConfig{
			KeywordWeight: 0.3,
			VectorWeight:  0.7,
			TopK:          5,
			ChunkSize:     1200,
			ChunkOverlap:  200,
			Weaviate: WeaviateConfig{
				Enabled: false,
				Scheme:  "http",
				Host:    "localhost:8080",
			},
		},
		Safety: SafetyConfig{
			BlockedCommands: []string{
				"rm", "del", "format", "mkfs", "dd", "mv", "cp", ">", ">>", "sudo",
			},
			DiagnosticTimeoutSeconds: 10,
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     "~/.debugbuddy/history",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			TraceExporter:  "stdout",
			MetricExporter: "stdout",
			OTLPEndpoint:   "localhost:4317",
			MetricsAddr:    ":9464",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.debugbuddy/logs",
			JSON:  false,
		},
		Output: "rich",
	}
}
