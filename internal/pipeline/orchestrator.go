// Copyright (c) 2025 Sqlpilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pipeline orchestrates one user turn end to end: intent
// classification, clarification, SQL generation with a bounded
// validate-critique-regenerate loop, sandboxed execution, and answer
// building. Runs for the same session are serialized; state that must
// survive a clarification round trip is kept per session.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"sqlpilot/internal/answer"
	"sqlpilot/internal/clarify"
	"sqlpilot/internal/db"
	"sqlpilot/internal/errors"
	"sqlpilot/internal/intent"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/logging"
	"sqlpilot/internal/memory"
	"sqlpilot/internal/prompt"
	"sqlpilot/internal/sandbox"
	"sqlpilot/internal/validate"
)

const defaultChatReply = "你好！我是数据查询助手，可以帮你用自然语言查询数据库中的数据。"

// SchemaSource is the slice of schema.Manager the pipeline needs.
type SchemaSource interface {
	RelevantSchemaText(question string) string
}

// pending is a clarification waiting for the user's answer.
type pending struct {
	OriginalQuestion string
	Question         string
	Options          []string
	Count            int
}

// Options configures an Orchestrator.
type Options struct {
	LLM              llm.Client
	DB               db.Client
	Guard            *sandbox.Guard
	Prompts          *prompt.Store
	Schema           SchemaSource
	Sessions         *memory.Store
	Intent           intent.Classifier
	Clarify          *clarify.Manager
	Critic           *validate.Critic
	Answers          *answer.Builder
	MaxRegenerations int
	Logger           *slog.Logger
}

// Orchestrator runs the query pipeline.
type Orchestrator struct {
	opts Options

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	awaiting map[string]*pending
}

func New(opts Options) *Orchestrator {
	if opts.MaxRegenerations <= 0 {
		opts.MaxRegenerations = 3
	}
	if opts.Intent == nil {
		opts.Intent = intent.KeywordClassifier{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:     opts,
		locks:    make(map[string]*sync.Mutex),
		awaiting: make(map[string]*pending),
	}
}

func (o *Orchestrator) sessionLock(id string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	return l
}

func (o *Orchestrator) takePending(id string) *pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.awaiting[id]
	delete(o.awaiting, id)
	return p
}

func (o *Orchestrator) setPending(id string, p *pending) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.awaiting[id] = p
}

// Run processes one turn. Failures of the pipeline itself come back inside
// the state (Outcome, Err); the error return is reserved for unusable
// requests and cancelled contexts.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*State, error) {
	if strings.TrimSpace(req.Question) == "" && strings.TrimSpace(req.ClarificationAnswer) == "" {
		return nil, errors.New(errors.EmptyQuestion, "question is empty")
	}

	lock := o.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	sess := o.opts.Sessions.Get(req.SessionID)
	st := newState(req)
	log := o.opts.Logger.With("session", req.SessionID)

	if strings.TrimSpace(req.ClarificationAnswer) != "" {
		o.resumeClarification(st, sess, req.ClarificationAnswer)
		if err := st.advance(PhaseGenerate); err != nil {
			return nil, err
		}
	} else {
		sess.AddQuery(req.Question)
		if err := st.advance(PhaseIntent); err != nil {
			return nil, err
		}
		st.Intent = o.opts.Intent.Classify(req.Question, sess.History())
		log.Debug("intent classified", "type", st.Intent.Type)

		if st.Intent.IsChat() {
			if err := st.advance(PhaseChat); err != nil {
				return nil, err
			}
			return o.runChat(ctx, st, sess)
		}

		if err := st.advance(PhaseClarify); err != nil {
			return nil, err
		}
		if done, err := o.maybeClarify(ctx, st, sess, log); done || err != nil {
			return st, err
		}
		if err := st.advance(PhaseGenerate); err != nil {
			return nil, err
		}
	}

	if err := o.generateLoop(ctx, st, sess, log); err != nil {
		return nil, err
	}
	if st.Outcome == OutcomeFailed {
		return st, nil
	}

	if err := o.execute(ctx, st, log); err != nil {
		return nil, err
	}
	if st.Outcome == OutcomeFailed {
		return st, nil
	}

	if err := st.advance(PhaseAnswer); err != nil {
		return nil, err
	}
	st.Answer = o.opts.Answers.Build(ctx, st.EffectiveQuestion(), st.CandidateSQL, st.Execution)
	sess.AddAnswer(st.Answer, st.CandidateSQL, st.Execution.RowCount)

	if err := st.advance(PhaseDone); err != nil {
		return nil, err
	}
	st.Outcome = OutcomeAnswered
	return st, nil
}

// resumeClarification folds the user's answer into the suspended question
// and clears the pending clarification.
func (o *Orchestrator) resumeClarification(st *State, sess *memory.Session, answer string) {
	p := o.takePending(st.SessionID)
	original := st.Question
	if p != nil && p.OriginalQuestion != "" {
		original = p.OriginalQuestion
	} else if q := sess.LastQuery(); q != "" {
		original = q
	}

	sess.AddClarificationAnswer(answer)
	st.Question = original
	st.NormalizedQuestion = clarify.NormalizeAnswer(original, answer)
	st.CandidateSQL = ""
	if p != nil {
		st.Clarification.Count = p.Count
	}
}

func (o *Orchestrator) runChat(ctx context.Context, st *State, sess *memory.Session) (*State, error) {
	st.IsChatResponse = true
	reply := defaultChatReply

	p, err := o.opts.Prompts.LoadAndRender("chat", map[string]string{
		"question":       st.Question,
		"dialog_history": sess.ContextForGeneration(5),
	})
	if err == nil {
		if resp, err := o.opts.LLM.Chat(ctx, p, ""); err == nil && strings.TrimSpace(resp) != "" {
			reply = strings.TrimSpace(resp)
		}
	}

	st.ChatResponse = reply
	sess.AddChat(reply)
	if err := st.advance(PhaseDone); err != nil {
		return nil, err
	}
	st.Outcome = OutcomeChat
	return st, nil
}

// maybeClarify suspends the run with a clarification question when the
// detector flags the question and the budget allows it. Wording failures
// are logged and the run continues unclarified.
func (o *Orchestrator) maybeClarify(ctx context.Context, st *State, sess *memory.Session, log *slog.Logger) (bool, error) {
	check := o.opts.Clarify.NeedsClarification(st.Question, sess.History(), st.Clarification.Count)
	if !check.Needed {
		return false, nil
	}

	q, opts, err := o.opts.Clarify.BuildQuestion(ctx, st.Question, check, sess)
	if err != nil {
		log.Warn("clarification question failed, continuing without", "err", err)
		return false, nil
	}

	sess.AddClarification(q, opts, check.Reasons)
	o.setPending(st.SessionID, &pending{
		OriginalQuestion: st.Question,
		Question:         q,
		Options:          opts,
		Count:            st.Clarification.Count + 1,
	})

	if err := st.advance(PhaseAwaiting); err != nil {
		return false, err
	}
	st.Clarification = Clarification{
		Needed:   true,
		Question: q,
		Options:  opts,
		Reasons:  check.Reasons,
		Count:    st.Clarification.Count + 1,
	}
	st.Outcome = OutcomeAwaitingClarification
	return true, nil
}

// generateLoop runs generate -> validate, feeding critique back into the
// prompt until validation passes or the regeneration budget is spent.
func (o *Orchestrator) generateLoop(ctx context.Context, st *State, sess *memory.Session, log *slog.Logger) error {
	question := st.EffectiveQuestion()
	schemaText := ""
	if o.opts.Schema != nil {
		schemaText = o.opts.Schema.RelevantSchemaText(question)
	}
	historyText := sess.ContextForGeneration(5)

	for {
		p, err := o.opts.Prompts.LoadAndRender("nl2sql", map[string]string{
			"schema":         schemaText,
			"question":       question,
			"dialog_history": historyText,
		})
		if err != nil {
			st.fail(errors.GenerationFailed, "load generation prompt", err)
			return nil
		}
		if st.Critique != "" {
			p += "\n\n## 上次尝试的问题\n上一条SQL:\n" + st.CandidateSQL + "\n\n分析:\n" + st.Critique + "\n\n请根据以上分析生成修正后的SQL。"
			st.Critique = ""
		}

		resp, err := o.opts.LLM.Chat(ctx, p, "")
		if err != nil {
			st.fail(errors.GenerationFailed, "generate SQL", err)
			return nil
		}
		st.CandidateSQL = ExtractSQL(resp)
		log.Debug("sql generated", "sql", logging.TruncateSQL(st.CandidateSQL, 100), "attempt", st.RegenerationCount)

		if err := st.advance(PhaseValidate); err != nil {
			return err
		}
		v := validate.Validate(st.CandidateSQL)
		st.Validation = &v
		if v.Passed {
			if err := st.advance(PhaseExecute); err != nil {
				return err
			}
			return nil
		}

		if st.RegenerationCount >= o.opts.MaxRegenerations {
			st.fail(errors.ValidationExhausted,
				"could not generate valid SQL after retries: "+strings.Join(v.Errors, "; "), nil)
			return nil
		}
		st.RegenerationCount++

		if err := st.advance(PhaseCritique); err != nil {
			return err
		}
		st.Critique = o.opts.Critic.Critique(ctx, question, st.CandidateSQL, v.Errors)
		log.Debug("validation failed, regenerating", "attempt", st.RegenerationCount)
		if err := st.advance(PhaseGenerate); err != nil {
			return err
		}
	}
}

// execute runs the sandbox gate and the query. Blocked statements never
// reach the driver and are terminal, not critique fodder.
func (o *Orchestrator) execute(ctx context.Context, st *State, log *slog.Logger) error {
	check := o.opts.Guard.Check(st.CandidateSQL)
	if !check.OK {
		st.Execution = &db.Result{OK: false, Error: check.Reason, ErrorCode: check.Code}
		log.Warn("sql blocked", "code", check.Code, "sql", logging.TruncateSQL(st.CandidateSQL, 100))
		st.fail(errors.SandboxBlocked, check.Reason, nil)
		return nil
	}

	limited, limit := o.opts.Guard.Limit(st.CandidateSQL)
	st.CandidateSQL = limited
	log.Debug("executing", "limit", limit)

	res, err := o.opts.DB.Query(ctx, limited)
	if err != nil {
		st.fail(errors.ExecutionFailed, "execute query", err)
		return nil
	}
	st.Execution = res
	if res.OK {
		return nil
	}

	if res.ErrorCode == db.CodeTimeout {
		o.opts.Guard.RecordTimeout(limited)
		st.fail(errors.ExecutionTimeout, res.Error, nil)
		return nil
	}
	st.fail(errors.ExecutionFailed, res.Error, nil)
	return nil
}
