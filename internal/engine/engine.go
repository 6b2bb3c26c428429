// Package engine drives a plan through its phase graph one instruction at a
// time.
//
// Every public operation is load → mutate → save on the whole session. The
// session holds at most one outstanding instruction; asking for the next
// instruction while one is outstanding returns it unchanged.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/prompt"
	"github.com/msageha/baton/internal/triage"
)

var (
	ErrUnknownPhase   = errors.New("unknown phase")
	ErrNotInitialized = errors.New("engine not initialized")
	ErrNotOutstanding = errors.New("node is not the outstanding instruction")
)

// BlockScheduler marks pending actions issued by the engine.
const BlockScheduler = "scheduler"

// StateStore persists the whole session.
type StateStore interface {
	Load(ctx context.Context) (*model.SessionState, error)
	Save(ctx context.Context, s *model.SessionState) error
}

// ContextStore receives the side products of wrap-up and triage.
type ContextStore interface {
	Init() error
	WriteOutput(itemID string, outputs map[string]string) error
	AppendLearning(itemID, text string) error
	AppendIssue(itemID, text string) error
	AppendAudit(entry string) error
	ReadOutputs() (map[string]map[string]string, error)
}

// PromptRenderer turns a phase node into instruction text.
type PromptRenderer interface {
	Render(req prompt.Request) (string, error)
}

type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithScopeChecker replaces the destructive-topic patterns used by triage.
func WithScopeChecker(c *triage.ScopeChecker) Option {
	return func(e *Engine) {
		if c != nil {
			e.policy = triage.NewPolicy(c)
		}
	}
}

type Engine struct {
	store    StateStore
	ctxStore ContextStore
	renderer PromptRenderer
	policy   *triage.Policy
	logger   *logging.Logger
	clock    func() time.Time
}

// New wires an engine to its collaborators.
func New(store StateStore, ctxStore ContextStore, renderer PromptRenderer, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: state store is required")
	}
	if ctxStore == nil {
		return nil, fmt.Errorf("engine: context store is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("engine: prompt renderer is required")
	}
	e := &Engine{
		store:    store,
		ctxStore: ctxStore,
		renderer: renderer,
		policy:   triage.NewPolicy(nil),
		logger:   logging.Discard(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Instruction is the single unit of work handed to the actor.
type Instruction struct {
	NodeID   string      `json:"nodeId"`
	ItemID   string      `json:"itemId"`
	Phase    model.Phase `json:"phase"`
	Text     string      `json:"instruction"`
	IssuedAt string      `json:"issuedAt"`
}

// NextResponse is either an instruction or a terminal report.
type NextResponse struct {
	Done        bool         `json:"done"`
	Halted      bool         `json:"halted"`
	Reason      string       `json:"reason,omitempty"`
	FailedItems []string     `json:"failedItems,omitempty"`
	Instruction *Instruction `json:"instruction,omitempty"`
}

type CompleteResponse struct {
	NodeID       string           `json:"nodeId"`
	ItemID       string           `json:"itemId"`
	Phase        model.Phase      `json:"phase"`
	Duplicate    bool             `json:"duplicate,omitempty"`
	ItemStatus   model.ItemStatus `json:"itemStatus,omitempty"`
	Disposition  string           `json:"disposition,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	InsertedItem string           `json:"insertedItem,omitempty"`
}

type InvalidateResponse struct {
	NodeID string   `json:"nodeId"`
	Reset  []string `json:"reset"`
}

// Init builds the graph for a plan and stores it as the committed state of the
// current session.
func (e *Engine) Init(ctx context.Context, snapshot model.PlanSnapshot, strategy model.CommitStrategy, mode model.Mode) error {
	return e.update(ctx, func(s *model.SessionState) (bool, error) {
		return true, e.InitSession(s, snapshot, strategy, mode)
	})
}

// Next returns the outstanding instruction or dispatches a new one.
func (e *Engine) Next(ctx context.Context) (NextResponse, error) {
	var resp NextResponse
	err := e.update(ctx, func(s *model.SessionState) (bool, error) {
		var changed bool
		var err error
		resp, changed, err = e.Advance(s)
		return changed, err
	})
	return resp, err
}

// Complete records the actor's result for the outstanding node.
func (e *Engine) Complete(ctx context.Context, nodeID string, result model.Result) (CompleteResponse, error) {
	var resp CompleteResponse
	err := e.update(ctx, func(s *model.SessionState) (bool, error) {
		var err error
		resp, err = e.Apply(s, nodeID, result)
		return !resp.Duplicate, err
	})
	return resp, err
}

// Invalidate resets a node and everything downstream of it.
func (e *Engine) Invalidate(ctx context.Context, nodeID string) (InvalidateResponse, error) {
	var resp InvalidateResponse
	err := e.update(ctx, func(s *model.SessionState) (bool, error) {
		var err error
		resp, err = e.Reset(s, nodeID)
		return true, err
	})
	return resp, err
}

func (e *Engine) update(ctx context.Context, fn func(s *model.SessionState) (bool, error)) error {
	s, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	changed, err := fn(s)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.UpdatedAt = e.now()
	if err := e.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (e *Engine) now() string {
	return e.clock().UTC().Format(time.RFC3339)
}

func (e *Engine) log(level logging.Level, format string, args ...any) {
	e.logger.Log(level, "engine", format, args...)
}

// Owns reports whether nodeID names a node of the session graph.
func Owns(s *model.SessionState, nodeID string) bool {
	for _, n := range s.Engine.Graph.Nodes {
		if n.ID == nodeID {
			return true
		}
	}
	return false
}
