// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package subprocess executes planner-proposed shell commands with
// timeouts, output capture, and whole-group termination.
//
// # Description
//
// Commands run through the platform shell. On timeout or interrupt the
// entire process group is killed, not just the direct child, so a
// diagnostic like "python x.py | head" cannot leave orphans behind.
// Output is captured with a size cap; partial output survives a kill.
//
// # Thread Safety
//
// ExecRunner is safe for concurrent use. Each Run creates its own
// process and buffers.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
)

// DefaultMaxOutputBytes caps captured output per stream.
const DefaultMaxOutputBytes = 1 << 20 // 1 MiB

// Result is the outcome of one command execution.
type Result struct {
	Command   string        `json:"command"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Combined returns stderr followed by stdout, the order the error
// parser scans in.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stderr + "\n" + r.Stdout
}

// OK reports a zero exit without timeout.
func (r *Result) OK() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner is the execution capability the tool layer consumes. Tests
// inject a ScriptedRunner; production uses ExecRunner.
type Runner interface {
	// Run executes command through the shell with the given timeout.
	// A non-zero exit is not an error; the exit code is in the Result.
	// On timeout the partial output is returned with TimedOut set and
	// err wrapping ErrTimeout.
	Run(ctx context.Context, command string, timeout time.Duration) (*Result, error)
}

// ExecRunner runs commands through the platform shell.
type ExecRunner struct {
	workingDir string
	maxOutput  int
	log        *logging.Logger
}

// NewExecRunner creates a runner rooted at workingDir.
func NewExecRunner(workingDir string, log *logging.Logger) *ExecRunner {
	if log == nil {
		log = logging.Default()
	}
	return &ExecRunner{
		workingDir: workingDir,
		maxOutput:  DefaultMaxOutputBytes,
		log:        log,
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, args := shellInvocation(command)
	cmd := exec.CommandContext(runCtx, shell, args...)
	cmd.Dir = r.workingDir
	setProcGroup(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	outLimited := &limitedWriter{w: &stdout, limit: r.maxOutput}
	errLimited := &limitedWriter{w: &stderr, limit: r.maxOutput}
	cmd.Stdout = outLimited
	cmd.Stderr = errLimited

	r.log.Debug("executing command",
		"command", command,
		"timeout", timeout,
		"working_dir", r.workingDir)

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Command:   command,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: outLimited.truncated || errLimited.truncated,
		Duration:  time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		r.log.Warn("command timed out",
			"command", command,
			"timeout", timeout,
			"partial_output_bytes", stdout.Len()+stderr.Len())
		return result, ErrTimeout
	}
	if runCtx.Err() == context.Canceled {
		result.ExitCode = -1
		return result, context.Canceled
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			return result, err
		}
	}

	r.log.Debug("command finished",
		"command", command,
		"exit_code", result.ExitCode,
		"duration", result.Duration)
	return result, nil
}

// ErrTimeout indicates the command hit its deadline and was killed.
var ErrTimeout = errors.New("command timed out")

// =============================================================================
// Limited Writer
// =============================================================================

// limitedWriter wraps a writer with a size limit. Writes past the
// limit are discarded and flagged, never errored, so the child process
// keeps running to completion.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	orig := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return orig, nil
	}
	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}
	n, err := lw.w.Write(p)
	lw.written += n
	if err != nil {
		return n, err
	}
	// Report the full length so the copier never sees a short write.
	return orig, nil
}
