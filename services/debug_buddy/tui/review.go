// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/DebugBuddy/pkg/ux"
)

// DoneMsg signals the review is complete.
type DoneMsg struct {
	Approved bool
}

// PatchModel is the bubbletea model for reviewing one proposed patch:
// a fixed header with the planner's rationale, a scrollable viewport
// holding the colorized diff, and a one-key verdict.
type PatchModel struct {
	description string
	diff        string

	viewport viewport.Model
	width    int
	height   int

	ready    bool
	approved bool
	quitting bool
}

// NewPatchModel creates a review model for one description and diff.
func NewPatchModel(description, diff string) PatchModel {
	return PatchModel{description: description, diff: diff}
}

// Init implements tea.Model.
func (m PatchModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		viewportHeight := max(m.height-headerHeight-footerHeight, 1)

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(ux.DiffText(m.diff))
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y":
			m.approved = true
			return m.finish()

		case "n", "N", "q", "esc", "ctrl+c":
			return m.finish()

		case "g", "home":
			m.viewport.GotoTop()
			return m, nil

		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	// The viewport's own keymap covers line, half-page, and page
	// scrolling.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m PatchModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading...\n"
	}

	var b strings.Builder
	b.WriteString(reviewTitleStyle.Render("Proposed Patch"))
	b.WriteString("\n")
	b.WriteString(reviewDescStyle.Render(m.description))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m PatchModel) footerView() string {
	hint := reviewHintStyle.Render("y apply, n reject, j/k scroll, g/G jump")
	percent := reviewHintStyle.Render(fmt.Sprintf("%3.0f%%", m.viewport.ScrollPercent()*100))
	gap := m.width - lipgloss.Width(hint) - lipgloss.Width(percent)
	if gap < 1 {
		gap = 1
	}
	return hint + strings.Repeat(" ", gap) + percent
}

// Approved reports the verdict after the program exits.
func (m PatchModel) Approved() bool {
	return m.approved
}

// finish emits the verdict and quits the program.
func (m PatchModel) finish() (tea.Model, tea.Cmd) {
	m.quitting = true
	approved := m.approved
	return m, tea.Sequence(
		func() tea.Msg { return DoneMsg{Approved: approved} },
		tea.Quit,
	)
}

// ReviewPatch runs the full-screen patch review and blocks until the
// user decides.
//
// Inputs:
//   - ctx: cancels the review; cancellation rejects the patch
//   - description: the planner's rationale for the change
//   - diff: the unified diff to display
//
// Outputs:
//   - bool: true when the user approved the patch
//   - error: non-nil when the terminal program cannot run
func ReviewPatch(ctx context.Context, description, diff string) (bool, error) {
	p := tea.NewProgram(NewPatchModel(description, diff),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("patch review: %w", err)
	}

	m, ok := final.(PatchModel)
	if !ok {
		return false, errors.New("patch review returned an unexpected model")
	}
	return m.Approved(), nil
}

// =============================================================================
// Styles
// =============================================================================

var (
	reviewTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))

	reviewDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	reviewHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)
