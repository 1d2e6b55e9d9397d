// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"sync"
)

// ScriptedInteractor is an Interactor that replays canned answers and
// records every prompt it was shown. It backs tests that exercise the
// confirmation flows without a terminal.
type ScriptedInteractor struct {
	mu sync.Mutex

	// YesNoAnswers are consumed in order by AskYesNo; when exhausted,
	// AskYesNo answers false.
	YesNoAnswers []bool

	// InputAnswers are consumed in order by AskInput; when exhausted,
	// AskInput answers the empty string.
	InputAnswers []string

	// PatchAnswers are consumed in order by ConfirmPatch; when
	// exhausted, ConfirmPatch answers false.
	PatchAnswers []bool

	// Err, when set, fails every blocking call.
	Err error

	// Recorded prompts, in call order.
	Prompts []string
	Blocks  []string
	Diffs   []string
}

// NewScriptedInteractor returns an empty scripted interactor that
// declines everything.
func NewScriptedInteractor() *ScriptedInteractor {
	return &ScriptedInteractor{}
}

// AskYesNo replays the next scripted yes/no answer.
func (s *ScriptedInteractor) AskYesNo(ctx context.Context, prompt string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return false, s.Err
	}
	if len(s.YesNoAnswers) == 0 {
		return false, nil
	}
	answer := s.YesNoAnswers[0]
	s.YesNoAnswers = s.YesNoAnswers[1:]
	return answer, nil
}

// AskInput replays the next scripted reply.
func (s *ScriptedInteractor) AskInput(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.InputAnswers) == 0 {
		return "", nil
	}
	answer := s.InputAnswers[0]
	s.InputAnswers = s.InputAnswers[1:]
	return answer, nil
}

// DisplayBlock records the block.
func (s *ScriptedInteractor) DisplayBlock(title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Blocks = append(s.Blocks, title+"\n"+body)
}

// ConfirmPatch records the diff and replays the next scripted answer.
func (s *ScriptedInteractor) ConfirmPatch(ctx context.Context, description, diff string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, description)
	s.Diffs = append(s.Diffs, diff)
	if s.Err != nil {
		return false, s.Err
	}
	if len(s.PatchAnswers) == 0 {
		return false, nil
	}
	answer := s.PatchAnswers[0]
	s.PatchAnswers = s.PatchAnswers[1:]
	return answer, nil
}

var _ Interactor = (*ScriptedInteractor)(nil)
