package engine

import (
	"fmt"

	"github.com/msageha/baton/internal/graph"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
)

// InitSession resets the engine part of s for a new plan. Any outstanding
// scheduler instruction from a previous run is dropped.
func (e *Engine) InitSession(s *model.SessionState, snapshot model.PlanSnapshot, strategy model.CommitStrategy, mode model.Mode) error {
	g, err := graph.Build(snapshot.Items, snapshot.Dependencies, mode)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	if strategy == "" {
		strategy = model.CommitPerItem
	}

	todos := make(map[string]*model.ItemRuntimeState, len(snapshot.Items))
	for _, item := range snapshot.Items {
		todos[item.ID] = &model.ItemRuntimeState{Status: model.ItemPending}
	}

	if err := e.ctxStore.Init(); err != nil {
		return fmt.Errorf("init context store: %w", err)
	}

	if s.Engine.Initialized {
		e.log(logging.LevelWarn, "reinitializing engine plan=%s", snapshot.Name)
	}
	s.Engine = model.EngineState{
		Mode:           mode,
		CommitStrategy: strategy,
		Initialized:    true,
		Plan:           snapshot,
		Todos:          todos,
		Finalize:       model.FinalizeState{Status: model.FinalizePending},
		Graph:          graph.Serialize(g),
	}
	if pa := s.PendingAction; pa != nil && pa.Block == BlockScheduler {
		s.PendingAction = nil
	}

	now := e.now()
	s.AddEvent("engine_initialized", map[string]any{
		"plan":  snapshot.Name,
		"items": len(snapshot.Items),
		"nodes": g.Len(),
		"mode":  string(mode),
	}, now)
	e.log(logging.LevelInfo, "initialized plan=%s items=%d nodes=%d mode=%s", snapshot.Name, len(snapshot.Items), g.Len(), mode)
	return nil
}
