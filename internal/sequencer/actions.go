package sequencer

import (
	"context"
	"fmt"

	"github.com/msageha/baton/internal/engine"
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/plan"
)

// Built-in auto action names.
const (
	ActionLoadPlan   = "load-plan"
	ActionCheckpoint = "checkpoint"
)

// PlanSource says where load-plan finds the plan and which engine settings
// apply. Session settings win over Path and Mode; Mode wins over the plan
// document, which wins over Defaults.
type PlanSource struct {
	Path     string
	Mode     model.Mode
	Defaults model.EngineConfig
}

// LoadPlan returns the load-plan action: load and validate the plan, then
// initialize the engine on the session.
func LoadPlan(src PlanSource) Action {
	return func(_ context.Context, eng *engine.Engine, s *model.SessionState) (model.Result, error) {
		path := src.Path
		if s.Settings.PlanPath != "" {
			path = s.Settings.PlanPath
		}
		doc, err := plan.Load(path)
		if err != nil {
			return nil, err
		}
		mode := src.Defaults.Mode
		if doc.Mode != "" {
			mode = doc.Mode
		}
		if src.Mode != "" {
			mode = src.Mode
		}
		if s.Settings.Mode != "" {
			mode = s.Settings.Mode
		}
		strategy := src.Defaults.CommitStrategy
		if doc.CommitStrategy != "" {
			strategy = doc.CommitStrategy
		}
		if err := eng.InitSession(s, plan.Snapshot(doc), strategy, mode); err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
		return model.Result{
			"plan":  doc.Name,
			"path":  path,
			"items": len(doc.Items),
			"mode":  string(mode),
		}, nil
	}
}

// Checkpoint summarises item outcomes into the step record.
func Checkpoint(_ context.Context, _ *engine.Engine, s *model.SessionState) (model.Result, error) {
	counts := make(map[string]int)
	for _, st := range s.Engine.Todos {
		counts[string(st.Status)]++
	}
	result := model.Result{
		"block_index": s.BlockIndex,
		"finalize":    string(s.Engine.Finalize.Status),
		"items":       len(s.Engine.Todos),
	}
	for status, n := range counts {
		result["status_"+status] = n
	}
	return result, nil
}
