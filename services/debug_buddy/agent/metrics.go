// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for orchestrator operations.
var (
	tracer = otel.Tracer("debugbuddy.agent")
	meter  = otel.Meter("debugbuddy.agent")
)

// Metrics for the session loop.
var (
	stepLatency    metric.Float64Histogram
	stepsTotal     metric.Int64Counter
	toolResults    metric.Int64Counter
	plannerRetries metric.Int64Counter
	dedupSkips     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		stepLatency, err = meter.Float64Histogram(
			"agent_step_duration_seconds",
			metric.WithDescription("Duration of one orchestrator step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stepsTotal, err = meter.Int64Counter(
			"agent_steps_total",
			metric.WithDescription("Total orchestrator steps taken"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolResults, err = meter.Int64Counter(
			"agent_tool_results_total",
			metric.WithDescription("Tool results by tool and status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		plannerRetries, err = meter.Int64Counter(
			"agent_planner_retries_total",
			metric.WithDescription("Transport-level planner retries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		dedupSkips, err = meter.Int64Counter(
			"agent_dedup_skips_total",
			metric.WithDescription("Steps skipped by the deduplication gate"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startStepSpan creates a span for one orchestrator step.
func startStepSpan(ctx context.Context, sessionID string, stepNo int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Orchestrator.Step",
		trace.WithAttributes(
			attribute.String("agent.session_id", sessionID),
			attribute.Int("agent.step_no", stepNo),
		),
	)
}

// recordStepMetrics records metrics for one completed step.
func recordStepMetrics(ctx context.Context, duration time.Duration, tool, status string) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)

	stepLatency.Record(ctx, duration.Seconds(), attrs)
	stepsTotal.Add(ctx, 1)
	toolResults.Add(ctx, 1, attrs)
}

// recordPlannerRetries records transport retries behind one planner call.
func recordPlannerRetries(ctx context.Context, retries int) {
	if err := initMetrics(); err != nil || retries == 0 {
		return
	}
	plannerRetries.Add(ctx, int64(retries))
}

// recordDedupSkip records one deduplication-gate hit.
func recordDedupSkip(ctx context.Context, tool string) {
	if err := initMetrics(); err != nil {
		return
	}
	dedupSkips.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
	))
}
