// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package subprocess

import (
	"os/exec"
)

// shellInvocation wraps a command for cmd.exe.
func shellInvocation(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}

// setProcGroup is a no-op on Windows; job-object management is not
// implemented and the direct child is killed on cancel.
func setProcGroup(cmd *exec.Cmd) {}

// terminate kills the direct child process.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
