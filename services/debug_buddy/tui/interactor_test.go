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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/DebugBuddy/pkg/logging"
)

const testPatchDiff = "--- a/etl.py\n+++ b/etl.py\n@@ -10,1 +10,1 @@\n-user = row[\"user_id\"]\n+user = row.get(\"user_id\")\n"

func TestNew_FallsBackWithoutTerminal(t *testing.T) {
	// Test binaries run without a TTY on stdin, so the factory must
	// never hand back a prompting implementation here.
	got := New(logging.Default())
	assert.IsType(t, &NonInteractive{}, got)
}

func TestPlain_AskYesNo(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "lowercase y", input: "y\n", want: true},
		{name: "yes word", input: "yes\n", want: true},
		{name: "uppercase with spaces", input: "  Y  \n", want: true},
		{name: "explicit no", input: "n\n", want: false},
		{name: "empty defaults to no", input: "\n", want: false},
		{name: "unrelated text", input: "maybe\n", want: false},
		{name: "answer without trailing newline", input: "y", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPlain(strings.NewReader(tt.input), &out)

			got, err := p.AskYesNo(context.Background(), "Run the command again?")
			require.NoError(t, err)

			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Run the command again? [y/N]: ")
		})
	}
}

func TestPlain_AskYesNoExhaustedInput(t *testing.T) {
	var out bytes.Buffer
	p := NewPlain(strings.NewReader(""), &out)

	_, err := p.AskYesNo(context.Background(), "Continue?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading answer")
}

func TestPlain_AskInput(t *testing.T) {
	var out bytes.Buffer
	p := NewPlain(strings.NewReader("  it fails after the nightly import  \n"), &out)

	got, err := p.AskInput(context.Background(), "What changed recently?")
	require.NoError(t, err)

	assert.Equal(t, "it fails after the nightly import", got)
	assert.Contains(t, out.String(), "What changed recently?: ")
}

func TestPlain_DisplayBlock(t *testing.T) {
	var out bytes.Buffer
	p := NewPlain(strings.NewReader(""), &out)

	p.DisplayBlock("Stack Trace", "KeyError: 'user_id'")

	assert.Contains(t, out.String(), "[Stack Trace]")
	assert.Contains(t, out.String(), "KeyError: 'user_id'")
}

func TestPlain_ConfirmPatch(t *testing.T) {
	var out bytes.Buffer
	p := NewPlain(strings.NewReader("y\n"), &out)

	ok, err := p.ConfirmPatch(context.Background(), "Use .get to tolerate missing columns.", testPatchDiff)
	require.NoError(t, err)

	assert.True(t, ok)
	assert.Contains(t, out.String(), "[Proposed Patch]")
	assert.Contains(t, out.String(), "Use .get to tolerate missing columns.")
	assert.Contains(t, out.String(), "+user = row.get(\"user_id\")")
	assert.Contains(t, out.String(), "Apply this patch? [y/N]: ")
}

func TestPlain_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPlain(strings.NewReader("y\n"), &bytes.Buffer{})

	_, err := p.AskYesNo(ctx, "Continue?")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = p.AskInput(ctx, "Anything else?")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNonInteractive_DeclinesEverything(t *testing.T) {
	var out bytes.Buffer
	n := &NonInteractive{log: logging.Default(), out: &out}

	ok, err := n.AskYesNo(context.Background(), "Run the command again?")
	require.NoError(t, err)
	assert.False(t, ok)

	answer, err := n.AskInput(context.Background(), "What changed recently?")
	require.NoError(t, err)
	assert.Empty(t, answer)

	ok, err = n.ConfirmPatch(context.Background(), "Use .get to tolerate missing columns.", testPatchDiff)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "Proposed Patch (auto-declined, no terminal attached)")
	assert.Contains(t, out.String(), "+user = row.get(\"user_id\")")
}

func TestNonInteractive_DisplayBlock(t *testing.T) {
	var out bytes.Buffer
	n := &NonInteractive{log: logging.Default(), out: &out}

	n.DisplayBlock("Command Output", "exit status 1")

	assert.Contains(t, out.String(), "[Command Output]")
	assert.Contains(t, out.String(), "exit status 1")
}
