// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import "fmt"

// Phase is a stage of the query pipeline. Transitions are restricted to the
// edges in transitions; an illegal transition is a programming error and
// surfaces immediately instead of producing a half-processed state.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseIntent   Phase = "intent"
	PhaseChat     Phase = "chat"
	PhaseClarify  Phase = "clarify"
	PhaseAwaiting Phase = "awaiting_clarification"
	PhaseGenerate Phase = "generate"
	PhaseValidate Phase = "validate"
	PhaseCritique Phase = "critique"
	PhaseExecute  Phase = "execute"
	PhaseAnswer   Phase = "answer"
	PhaseDone     Phase = "done"
	PhaseFailed   Phase = "failed"
)

var transitions = map[Phase][]Phase{
	PhaseStart:    {PhaseIntent, PhaseGenerate},
	PhaseIntent:   {PhaseChat, PhaseClarify},
	PhaseChat:     {PhaseDone},
	PhaseClarify:  {PhaseAwaiting, PhaseGenerate},
	PhaseAwaiting: {},
	PhaseGenerate: {PhaseValidate, PhaseFailed},
	PhaseValidate: {PhaseCritique, PhaseExecute, PhaseFailed},
	PhaseCritique: {PhaseGenerate, PhaseFailed},
	PhaseExecute:  {PhaseAnswer, PhaseFailed},
	PhaseAnswer:   {PhaseDone},
}

// advance moves the state to next, enforcing the transition table.
func (s *State) advance(next Phase) error {
	for _, allowed := range transitions[s.Phase] {
		if allowed == next {
			s.Phase = next
			return nil
		}
	}
	return fmt.Errorf("illegal phase transition %s -> %s", s.Phase, next)
}
