package flow

import (
	"context"
	"fmt"

	"adminbot/internal/session"
	"adminbot/pkg/logx"
)

// Status classifies the outcome of one engine call.
type Status int

const (
	// StatusNone means the operator had no active session.
	StatusNone Status = iota
	// StatusPrompt asks the caller to show Step's prompt.
	StatusPrompt
	// StatusRejected keeps the session at the same step; Reason explains why.
	StatusRejected
	// StatusCommitted means the flow finished; Summary describes the result.
	StatusCommitted
	// StatusCommitFailed means the terminal commit failed; the session is
	// cleared and Err carries the cause.
	StatusCommitFailed
	// StatusCanceled means the session was discarded without committing.
	StatusCanceled
)

// Result is what the console renders after each engine call.
type Result struct {
	Status  Status
	Kind    Kind
	Step    *Step // step to prompt for StatusPrompt / StatusRejected
	Reason  string
	Summary string
	Err     error
}

// Engine advances operator sessions through flow definitions one input at a
// time. It does no locking itself; callers serialize per operator through
// session.Store.WithOperator.
type Engine struct {
	sessions *session.Store
	defs     map[Kind]*Definition
	log      logx.Logger
}

func NewEngine(sessions *session.Store, defs map[Kind]*Definition, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{sessions: sessions, defs: defs, log: log}
}

// Definition exposes a flow definition (menu rendering needs the steps).
func (e *Engine) Definition(kind Kind) *Definition { return e.defs[kind] }

// Active returns the operator's session, or nil.
func (e *Engine) Active(operatorID int64) *session.Session {
	return e.sessions.Get(operatorID)
}

// Start begins a flow for the operator, silently discarding any in-progress
// session, and returns the first step to prompt.
func (e *Engine) Start(operatorID int64, kind Kind) (Result, error) {
	def, ok := e.defs[kind]
	if !ok {
		return Result{}, fmt.Errorf("unknown flow %q", kind)
	}
	if old := e.sessions.Get(operatorID); old != nil {
		e.log.Debug("session overwritten",
			logx.Int64("operator", operatorID),
			logx.String("old_flow", old.FlowKind), logx.String("new_flow", string(kind)))
	}
	e.sessions.Start(operatorID, string(kind), def.First())
	return Result{Status: StatusPrompt, Kind: kind, Step: &def.Steps[0]}, nil
}

// Cancel discards the operator's session without running any commit.
func (e *Engine) Cancel(operatorID int64) Result {
	sess := e.sessions.Get(operatorID)
	if sess == nil {
		return Result{Status: StatusNone}
	}
	kind := Kind(sess.FlowKind)
	e.sessions.Clear(operatorID)
	return Result{Status: StatusCanceled, Kind: kind}
}

// ProcessInput applies one raw input (free text or a discrete choice value)
// to the operator's current step.
//
// Rejected input leaves the session untouched and reports the reason;
// operators may retry without limit. Accepted input stores the value and
// advances; input accepted on the last step triggers the commit, after
// which the session is cleared regardless of the commit's outcome.
func (e *Engine) ProcessInput(ctx context.Context, operatorID int64, raw string) Result {
	sess := e.sessions.Get(operatorID)
	if sess == nil {
		return Result{Status: StatusNone}
	}
	kind := Kind(sess.FlowKind)
	def, ok := e.defs[kind]
	if !ok {
		// A definition disappeared under a live session; drop the session.
		e.sessions.Clear(operatorID)
		return Result{Status: StatusNone}
	}
	step, idx := def.StepByName(sess.Step)
	if step == nil {
		e.sessions.Clear(operatorID)
		return Result{Status: StatusNone}
	}

	value, reject := step.Validate(ctx, raw, sess.Fields)
	if reject != "" {
		e.sessions.Touch(operatorID)
		return Result{Status: StatusRejected, Kind: kind, Step: step, Reason: reject}
	}

	last := idx == len(def.Steps)-1
	if !last {
		next := def.Steps[idx+1]
		e.sessions.Advance(operatorID, step.Field, value, next.Name)
		return Result{Status: StatusPrompt, Kind: kind, Step: &def.Steps[idx+1]}
	}

	// Terminal step accepted: hand the full field map to the commit.
	sess.Fields[step.Field] = value
	sess.Fields[FieldOperatorID] = operatorID
	fields := sess.Fields
	e.sessions.Clear(operatorID)

	summary, err := def.Commit(ctx, fields)
	if err != nil {
		e.log.Warn("flow commit failed",
			logx.Int64("operator", operatorID), logx.String("flow", string(kind)), logx.Err(err))
		return Result{Status: StatusCommitFailed, Kind: kind, Err: err}
	}
	e.log.Info("flow committed",
		logx.Int64("operator", operatorID), logx.String("flow", string(kind)),
		logx.String("summary", summary))
	return Result{Status: StatusCommitted, Kind: kind, Summary: summary}
}
