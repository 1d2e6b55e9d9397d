// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// OutputMode defines how much visual formatting terminal output gets.
type OutputMode string

const (
	// ModeRich enables colors, icons, boxes, and spinners.
	ModeRich OutputMode = "rich"

	// ModeMinimal uses icons and basic formatting only.
	ModeMinimal OutputMode = "minimal"

	// ModePlain outputs plain text suitable for scripting and parsing.
	// Interactive prompts are disabled in this mode.
	ModePlain OutputMode = "plain"
)

var (
	currentMode = ModeRich
	modeMu      sync.RWMutex
)

// GetMode returns the current output mode.
func GetMode() OutputMode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode updates the current output mode.
func SetMode(m OutputMode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode converts a string to an OutputMode. Unknown values map to
// ModeRich so a typo in config degrades to the default rather than
// silencing output.
func ParseMode(s string) OutputMode {
	switch strings.ToLower(s) {
	case "rich", "full", "r":
		return ModeRich
	case "minimal", "min", "m":
		return ModeMinimal
	case "plain", "machine", "quiet", "p", "q":
		return ModePlain
	default:
		return ModeRich
	}
}

// InitMode initializes the output mode from the environment.
//
// Order of precedence: DEBUGBUDDY_OUTPUT env var, then TTY detection
// (non-TTY stdout means plain output), then the rich default.
func InitMode() {
	if env := os.Getenv("DEBUGBUDDY_OUTPUT"); env != "" {
		SetMode(ParseMode(env))
		return
	}
	if !StdoutIsTerminal() {
		SetMode(ModePlain)
		return
	}
	SetMode(ModeRich)
}

// StdoutIsTerminal reports whether stdout is attached to a terminal.
func StdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StdinIsTerminal reports whether stdin is attached to a terminal.
func StdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive returns true if interactive prompts can be shown.
// Requires both a terminal on stdin and a non-plain output mode.
func IsInteractive() bool {
	return GetMode() != ModePlain && StdinIsTerminal()
}

// ShouldShowProgress returns true if spinners and progress bars
// should be rendered.
func ShouldShowProgress() bool {
	return GetMode() != ModePlain
}
