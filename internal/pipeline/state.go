// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"sqlpilot/internal/db"
	"sqlpilot/internal/errors"
	"sqlpilot/internal/intent"
	"sqlpilot/internal/validate"
)

// Outcome is the terminal disposition of a pipeline run.
type Outcome string

const (
	OutcomeAnswered              Outcome = "answered"
	OutcomeChat                  Outcome = "chat"
	OutcomeAwaitingClarification Outcome = "awaiting_clarification"
	OutcomeFailed                Outcome = "failed"
)

// Clarification is the suspended-question slice of the state.
type Clarification struct {
	Needed   bool
	Question string
	Options  []string
	Reasons  []string
	Answer   string
	Count    int
}

// Request is one user turn handed to the orchestrator. A non-empty
// ClarificationAnswer resumes the session's pending clarification instead of
// starting a fresh question.
type Request struct {
	SessionID           string
	UserID              string
	Question            string
	ClarificationAnswer string
}

// State carries everything one run accumulates. Each run gets a fresh State;
// cross-run continuity (history, pending clarifications) lives in the
// session, not here.
type State struct {
	Phase   Phase
	Outcome Outcome

	SessionID          string
	UserID             string
	Question           string
	NormalizedQuestion string

	Intent intent.Decision

	IsChatResponse bool
	ChatResponse   string

	CandidateSQL      string
	Validation        *validate.Result
	Critique          string
	RegenerationCount int

	Clarification Clarification

	Execution *db.Result
	Answer    string

	Err *errors.E
}

func newState(req Request) *State {
	return &State{
		Phase:     PhaseStart,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Question:  req.Question,
	}
}

// EffectiveQuestion is the question generation works from: the clarified
// form when one exists, the original otherwise.
func (s *State) EffectiveQuestion() string {
	if s.NormalizedQuestion != "" {
		return s.NormalizedQuestion
	}
	return s.Question
}

func (s *State) fail(kind errors.Kind, msg string, cause error) *State {
	if cause != nil {
		s.Err = errors.Wrap(kind, msg, cause)
	} else {
		s.Err = errors.New(kind, msg)
	}
	s.Phase = PhaseFailed
	s.Outcome = OutcomeFailed
	return s
}
