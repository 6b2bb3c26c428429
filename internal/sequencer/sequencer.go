// Package sequencer walks a recipe of steps. Auto steps run inline, prompt
// steps are handed to the actor one at a time and the scheduler step is
// delegated to the engine until the plan is finished.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msageha/baton/internal/engine"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/recipe"
)

var (
	ErrUnknownStep   = errors.New("unknown step")
	ErrUnknownAction = errors.New("unknown auto action")
)

// Action is the body of an auto step. The returned result is recorded on the
// step.
type Action func(ctx context.Context, eng *engine.Engine, s *model.SessionState) (model.Result, error)

type Option func(*Sequencer)

func WithAction(name string, fn Action) Option {
	return func(q *Sequencer) {
		q.actions[name] = fn
	}
}

func WithClock(clock func() time.Time) Option {
	return func(q *Sequencer) {
		if clock != nil {
			q.clock = clock
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(q *Sequencer) {
		if l != nil {
			q.logger = l
		}
	}
}

// Sequencer loads the session once per call, runs as many steps as it can
// without the actor and saves once.
type Sequencer struct {
	store   engine.StateStore
	engine  *engine.Engine
	actions map[string]Action
	logger  *logging.Logger
	clock   func() time.Time
}

// New returns a sequencer with the checkpoint action registered. load-plan
// needs configuration and is registered by the caller with LoadPlan.
func New(store engine.StateStore, eng *engine.Engine, opts ...Option) (*Sequencer, error) {
	if store == nil || eng == nil {
		return nil, fmt.Errorf("sequencer: state store and engine are required")
	}
	q := &Sequencer{
		store:   store,
		engine:  eng,
		actions: map[string]Action{ActionCheckpoint: Checkpoint},
		logger:  logging.Discard(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Instruction is the outstanding unit of work. StepID is what the caller
// passes back to Complete: a recipe step id or a graph node id.
type Instruction struct {
	StepID   string      `json:"stepId"`
	Block    string      `json:"block"`
	ItemID   string      `json:"itemId,omitempty"`
	Phase    model.Phase `json:"phase,omitempty"`
	Text     string      `json:"instruction"`
	IssuedAt string      `json:"issuedAt"`
}

type Response struct {
	SessionID   string       `json:"sessionId"`
	Done        bool         `json:"done"`
	Halted      bool         `json:"halted"`
	Reason      string       `json:"reason,omitempty"`
	FailedItems []string     `json:"failedItems,omitempty"`
	Instruction *Instruction `json:"instruction,omitempty"`
}

type CompleteResponse struct {
	StepID    string                   `json:"stepId"`
	Duplicate bool                     `json:"duplicate,omitempty"`
	Engine    *engine.CompleteResponse `json:"engine,omitempty"`
}

type InvalidateResponse struct {
	StepID string                     `json:"stepId"`
	Stale  []string                   `json:"stale,omitempty"`
	Engine *engine.InvalidateResponse `json:"engine,omitempty"`
}

// Start creates a fresh session for r and persists it.
func (q *Sequencer) Start(ctx context.Context, r *model.Recipe, settings model.SessionSettings) (*model.SessionState, error) {
	if errs := recipe.Validate(r); errs != nil {
		return nil, errs
	}
	s := model.NewSessionState(model.GenerateSessionID(), q.now())
	s.Recipe = *r
	s.Settings = settings
	s.AddEvent("session_started", map[string]any{"recipe": r.Name, "steps": len(r.Steps)}, s.CreatedAt)
	if err := q.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	q.log(logging.LevelInfo, "session started id=%s recipe=%s", s.SessionID, r.Name)
	return s, nil
}

func (q *Sequencer) Next(ctx context.Context) (Response, error) {
	var resp Response
	err := q.update(ctx, func(s *model.SessionState) (bool, error) {
		var changed bool
		var err error
		resp, changed, err = q.advance(ctx, s)
		resp.SessionID = s.SessionID
		return changed, err
	})
	return resp, err
}

func (q *Sequencer) advance(ctx context.Context, s *model.SessionState) (Response, bool, error) {
	changed := false
	for {
		if pa := s.PendingAction; pa != nil && !pa.Acknowledged {
			return Response{Instruction: instructionFrom(pa)}, changed, nil
		}
		if s.BlockIndex >= len(s.Recipe.Steps) {
			return Response{Done: true}, changed, nil
		}

		step := s.Recipe.Steps[s.BlockIndex]
		switch step.Kind {
		case model.StepKindAuto:
			if err := q.runAuto(ctx, s, step); err != nil {
				// steps already run in this call stay recorded
				return Response{}, changed, err
			}
			changed = true

		case model.StepKindPrompt:
			now := q.now()
			s.PendingAction = &model.PendingAction{
				Block:       step.ID,
				Action:      step.ID,
				Instruction: step.Instruction,
				IssuedAt:    now,
			}
			s.AddEvent("prompted", map[string]any{"step": step.ID}, now)
			q.log(logging.LevelInfo, "prompt issued step=%s", step.ID)
			return Response{Instruction: instructionFrom(s.PendingAction)}, true, nil

		case model.StepKindScheduler:
			er, ch, err := q.engine.Advance(s)
			changed = changed || ch
			if err != nil {
				return Response{}, changed, fmt.Errorf("step %s: %w", step.ID, err)
			}
			if er.Instruction != nil {
				return Response{Instruction: instructionFrom(s.PendingAction)}, changed, nil
			}
			if er.Halted {
				return Response{Done: true, Halted: true, Reason: er.Reason, FailedItems: er.FailedItems}, changed, nil
			}
			now := q.now()
			s.RecordStep(step.ID, model.StepComplete, model.Result{"plan": s.Engine.Plan.Name}, now)
			s.BlockIndex++
			s.AddEvent("step_completed", map[string]any{"step": step.ID}, now)
			changed = true

		default:
			return Response{}, changed, fmt.Errorf("step %s: unknown kind %q", step.ID, step.Kind)
		}
	}
}

func (q *Sequencer) runAuto(ctx context.Context, s *model.SessionState, step model.RecipeStep) error {
	fn, ok := q.actions[step.Action]
	if !ok {
		return fmt.Errorf("step %s: %w %q", step.ID, ErrUnknownAction, step.Action)
	}
	result, err := fn(ctx, q.engine, s)
	if err != nil {
		q.log(logging.LevelError, "auto step failed step=%s action=%s: %v", step.ID, step.Action, err)
		return fmt.Errorf("step %s: %w", step.ID, err)
	}
	now := q.now()
	s.RecordStep(step.ID, model.StepComplete, result, now)
	s.BlockIndex++
	s.AddEvent("auto_step", map[string]any{"step": step.ID, "action": step.Action}, now)
	q.log(logging.LevelInfo, "auto step done step=%s action=%s", step.ID, step.Action)
	return nil
}

// Complete routes graph node ids to the engine and recipe step ids to the
// recipe.
func (q *Sequencer) Complete(ctx context.Context, stepID string, result model.Result) (CompleteResponse, error) {
	var resp CompleteResponse
	err := q.update(ctx, func(s *model.SessionState) (bool, error) {
		if engine.Owns(s, stepID) {
			er, err := q.engine.Apply(s, stepID, result)
			if err != nil {
				return false, err
			}
			resp = CompleteResponse{StepID: stepID, Duplicate: er.Duplicate, Engine: &er}
			return !er.Duplicate, nil
		}

		idx := recipe.Index(&s.Recipe, stepID)
		if idx < 0 {
			return false, fmt.Errorf("complete %s: %w", stepID, ErrUnknownStep)
		}
		resp = CompleteResponse{StepID: stepID}
		pa := s.PendingAction
		if pa == nil || pa.Acknowledged || pa.Block != stepID {
			if rec := s.Steps[stepID]; rec != nil && rec.Status == model.StepComplete {
				resp.Duplicate = true
				return false, nil
			}
			return false, fmt.Errorf("complete %s: %w", stepID, engine.ErrNotOutstanding)
		}

		now := q.now()
		s.RecordStep(stepID, model.StepComplete, result, now)
		s.PendingAction = nil
		s.BlockIndex = idx + 1
		s.AddEvent("step_completed", map[string]any{"step": stepID}, now)
		q.log(logging.LevelInfo, "prompt step completed step=%s", stepID)
		return true, nil
	})
	return resp, err
}

// Invalidate marks a recipe step and every later step stale and rewinds to
// it. Graph node ids are reset by the engine; if the recipe already moved
// past the scheduler step it is rewound to that step.
func (q *Sequencer) Invalidate(ctx context.Context, stepID string) (InvalidateResponse, error) {
	var resp InvalidateResponse
	err := q.update(ctx, func(s *model.SessionState) (bool, error) {
		resp = InvalidateResponse{StepID: stepID}
		if engine.Owns(s, stepID) {
			er, err := q.engine.Reset(s, stepID)
			if err != nil {
				return false, err
			}
			resp.Engine = &er
			if idx := schedulerIndex(&s.Recipe); idx >= 0 && s.BlockIndex > idx {
				resp.Stale = q.rewind(s, idx+1)
				s.BlockIndex = idx
				if rec := s.Steps[s.Recipe.Steps[idx].ID]; rec != nil {
					rec.Status = model.StepStale
				}
			}
			return true, nil
		}

		idx := recipe.Index(&s.Recipe, stepID)
		if idx < 0 {
			return false, fmt.Errorf("invalidate %s: %w", stepID, ErrUnknownStep)
		}
		resp.Stale = q.rewind(s, idx)
		if s.BlockIndex > idx {
			s.BlockIndex = idx
		}
		if pa := s.PendingAction; pa != nil && q.blockIndex(s, pa.Block) >= idx {
			s.PendingAction = nil
		}
		s.AddEvent("step_invalidated", map[string]any{"step": stepID, "stale": resp.Stale}, q.now())
		q.log(logging.LevelInfo, "invalidated step=%s stale=%d", stepID, len(resp.Stale))
		return true, nil
	})
	return resp, err
}

// rewind marks recorded recipe steps from index from onwards stale.
func (q *Sequencer) rewind(s *model.SessionState, from int) []string {
	var stale []string
	now := q.now()
	for _, step := range s.Recipe.Steps[from:] {
		if rec, ok := s.Steps[step.ID]; ok && rec.Status == model.StepComplete {
			rec.Status = model.StepStale
			rec.At = now
			stale = append(stale, step.ID)
		}
	}
	return stale
}

// blockIndex maps a pending action block to its recipe position.
func (q *Sequencer) blockIndex(s *model.SessionState, block string) int {
	if block == engine.BlockScheduler {
		return schedulerIndex(&s.Recipe)
	}
	return recipe.Index(&s.Recipe, block)
}

func schedulerIndex(r *model.Recipe) int {
	for i, step := range r.Steps {
		if step.Kind == model.StepKindScheduler {
			return i
		}
	}
	return -1
}

func instructionFrom(pa *model.PendingAction) *Instruction {
	return &Instruction{
		StepID:   pa.Action,
		Block:    pa.Block,
		ItemID:   pa.ItemID,
		Phase:    pa.Phase,
		Text:     pa.Instruction,
		IssuedAt: pa.IssuedAt,
	}
}

func (q *Sequencer) update(ctx context.Context, fn func(s *model.SessionState) (bool, error)) error {
	s, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	changed, fnErr := fn(s)
	if !changed {
		return fnErr
	}
	s.UpdatedAt = q.now()
	if err := q.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return fnErr
}

func (q *Sequencer) now() string {
	return q.clock().UTC().Format(time.RFC3339)
}

func (q *Sequencer) log(level logging.Level, format string, args ...any) {
	q.logger.Log(level, "sequencer", format, args...)
}
