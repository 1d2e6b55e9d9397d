// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui implements the user-interaction surface of the agent.
//
// # Description
//
// The dispatcher asks questions and shows proposed patches through the
// Interactor capability; this package provides its real
// implementations. Terminal renders huh prompts and a scrollable
// bubbletea diff review for rich terminals. Plain reads answers line
// by line for minimal terminals. NonInteractive declines every
// confirmation, so a session piped into a file can never mutate the
// project silently.
//
// # Thread Safety
//
// Interactor implementations serve one session at a time. The
// bubbletea review model is single-threaded within its event loop.
package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
	"github.com/AleutianAI/DebugBuddy/pkg/ux"
	"github.com/AleutianAI/DebugBuddy/services/debug_buddy/agent/tools"
)

// pagerLineThreshold is the diff length above which the patch review
// switches from an inline block to the scrollable viewport.
const pagerLineThreshold = 40

// New picks the Interactor for the current terminal: NonInteractive
// when stdin or stdout is not a TTY or plain output was requested,
// Plain for minimal mode, and the huh-backed Terminal otherwise.
func New(log *logging.Logger) tools.Interactor {
	if log == nil {
		log = logging.Default()
	}
	if !ux.IsInteractive() || ux.GetMode() == ux.ModePlain {
		return NewNonInteractive(log)
	}
	if ux.GetMode() == ux.ModeMinimal {
		return NewPlain(os.Stdin, os.Stdout)
	}
	return NewTerminal(log)
}

// =============================================================================
// Terminal
// =============================================================================

// Terminal is the rich-mode Interactor: huh forms for prompts,
// lipgloss blocks for display, and the bubbletea viewport for long
// patch reviews. Construct it only for interactive terminals.
type Terminal struct {
	log   *logging.Logger
	theme *huh.Theme
}

// NewTerminal creates the rich-terminal Interactor.
func NewTerminal(log *logging.Logger) *Terminal {
	if log == nil {
		log = logging.Default()
	}
	return &Terminal{log: log, theme: huh.ThemeCharm()}
}

// AskYesNo poses a yes/no confirm and blocks for the answer.
func (t *Terminal) AskYesNo(ctx context.Context, prompt string) (bool, error) {
	var answer bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(&answer),
	)).WithTheme(t.theme)

	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	return answer, nil
}

// AskInput poses a free-form question and blocks for the reply.
func (t *Terminal) AskInput(ctx context.Context, prompt string) (string, error) {
	var reply string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(prompt).
			Value(&reply),
	)).WithTheme(t.theme)

	if err := form.RunWithContext(ctx); err != nil {
		return "", fmt.Errorf("input prompt: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// DisplayBlock shows a titled block of text without blocking.
func (t *Terminal) DisplayBlock(title, body string) {
	ux.Box(title, body)
}

// ConfirmPatch shows the description plus diff and blocks for
// approval. Long diffs open in the scrollable review; short ones stay
// inline above a confirm prompt.
func (t *Terminal) ConfirmPatch(ctx context.Context, description, diff string) (bool, error) {
	if strings.Count(diff, "\n")+1 > pagerLineThreshold {
		return ReviewPatch(ctx, description, diff)
	}
	ux.Box("Proposed Patch", description+"\n\n"+ux.DiffText(diff))
	return t.AskYesNo(ctx, "Apply this patch?")
}

// =============================================================================
// Plain
// =============================================================================

// Plain is the minimal-mode Interactor: line-oriented prompts with no
// escape sequences, for terminals where forms misrender.
type Plain struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPlain creates a line-oriented Interactor over a reader and
// writer, usually os.Stdin and os.Stdout.
func NewPlain(in io.Reader, out io.Writer) *Plain {
	return &Plain{in: bufio.NewReader(in), out: out}
}

// AskYesNo prints "prompt [y/N]" and reads one line. Anything but a
// leading y or Y declines.
func (p *Plain) AskYesNo(ctx context.Context, prompt string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fmt.Fprintf(p.out, "%s [y/N]: ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// AskInput prints the prompt and reads one line.
func (p *Plain) AskInput(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fmt.Fprintf(p.out, "%s: ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// DisplayBlock prints a titled block as plain text.
func (p *Plain) DisplayBlock(title, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n[%s]\n%s\n\n", title, body)
}

// ConfirmPatch prints the description and raw diff, then asks.
func (p *Plain) ConfirmPatch(ctx context.Context, description, diff string) (bool, error) {
	p.DisplayBlock("Proposed Patch", description+"\n\n"+diff)
	return p.AskYesNo(ctx, "Apply this patch?")
}

// =============================================================================
// NonInteractive
// =============================================================================

// NonInteractive is the Interactor for sessions without a terminal.
// Every confirmation is declined and every question returns an empty
// reply, so an unattended run can observe but never mutate.
type NonInteractive struct {
	log *logging.Logger
	out io.Writer
}

// NewNonInteractive creates the auto-declining Interactor.
func NewNonInteractive(log *logging.Logger) *NonInteractive {
	if log == nil {
		log = logging.Default()
	}
	return &NonInteractive{log: log, out: os.Stdout}
}

// AskYesNo declines without blocking.
func (n *NonInteractive) AskYesNo(_ context.Context, prompt string) (bool, error) {
	n.log.Info("confirmation auto-declined, no terminal attached", "prompt", prompt)
	return false, nil
}

// AskInput returns an empty reply without blocking.
func (n *NonInteractive) AskInput(_ context.Context, prompt string) (string, error) {
	n.log.Info("question skipped, no terminal attached", "prompt", prompt)
	return "", nil
}

// DisplayBlock prints a titled block as plain text.
func (n *NonInteractive) DisplayBlock(title, body string) {
	fmt.Fprintf(n.out, "\n[%s]\n%s\n\n", title, body)
}

// ConfirmPatch declines without blocking. The diff still goes to the
// output so the proposal is visible in captured logs.
func (n *NonInteractive) ConfirmPatch(_ context.Context, description, diff string) (bool, error) {
	n.DisplayBlock("Proposed Patch (auto-declined, no terminal attached)", description+"\n\n"+diff)
	n.log.Info("patch auto-declined, no terminal attached")
	return false, nil
}
