package engine

import (
	"fmt"

	"github.com/msageha/baton/internal/graph"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
)

// Reset is Invalidate on an already loaded session. The node and every node
// downstream of it go back to pending; item and finalize statuses are
// recomputed from the graph, step records become stale and a matching
// outstanding instruction is dropped.
func (e *Engine) Reset(s *model.SessionState, nodeID string) (InvalidateResponse, error) {
	if !s.Engine.Initialized {
		return InvalidateResponse{}, ErrNotInitialized
	}
	g, err := graph.Deserialize(s.Engine.Graph)
	if err != nil {
		return InvalidateResponse{}, fmt.Errorf("load graph: %w", err)
	}
	downstream, err := graph.Downstream(g, nodeID)
	if err != nil {
		return InvalidateResponse{}, err
	}
	targets := append([]string{nodeID}, downstream...)
	if err := graph.ResetNodes(g, targets...); err != nil {
		return InvalidateResponse{}, err
	}

	now := e.now()
	affected := make(map[string]bool)
	inTargets := make(map[string]bool, len(targets))
	for _, id := range targets {
		inTargets[id] = true
		n, _ := g.Node(id)
		affected[n.ItemID] = true
		if rec, ok := s.Steps[id]; ok {
			rec.Status = model.StepStale
			rec.At = now
		}
	}

	for itemID := range affected {
		if itemID == model.FinalizeItemID {
			recomputeFinalize(s, g)
			continue
		}
		if st := s.Engine.Todos[itemID]; st != nil {
			st.Status = statusFromGraph(g, itemID)
			st.HaltReason = ""
		}
	}
	s.Engine.HaltedReason = ""

	if pa := Outstanding(s); pa != nil && inTargets[pa.Action] {
		s.PendingAction = nil
	}

	s.Engine.Graph = graph.Serialize(g)
	s.AddEvent("invalidated", map[string]any{"node": nodeID, "reset": targets}, now)
	e.log(logging.LevelInfo, "invalidated node=%s reset=%d", nodeID, len(targets))
	return InvalidateResponse{NodeID: nodeID, Reset: targets}, nil
}

// statusFromGraph derives item status from the completed prefix of its chain:
// pending if nothing is complete, done if everything is, otherwise the
// dispatched status of the last complete phase.
func statusFromGraph(g *graph.Graph, itemID string) model.ItemStatus {
	chain := g.ItemNodes(itemID)
	var last *graph.Node
	for _, n := range chain {
		if n.Status != model.NodeComplete {
			break
		}
		last = n
	}
	switch {
	case last == nil:
		return model.ItemPending
	case last == chain[len(chain)-1]:
		return model.ItemDone
	}
	if st, ok := model.DispatchStatus(last.Phase); ok {
		return st
	}
	return model.ItemPending
}

func recomputeFinalize(s *model.SessionState, g *graph.Graph) {
	fin := &s.Engine.Finalize
	var last *graph.Node
	chain := g.ItemNodes(model.FinalizeItemID)
	for _, n := range chain {
		if n.Status != model.NodeComplete {
			break
		}
		last = n
	}
	switch {
	case last == nil:
		fin.Status = model.FinalizePending
		fin.CurrentStep = ""
	case last == chain[len(chain)-1]:
		fin.Status = model.FinalizeDone
		fin.CurrentStep = last.Phase
	default:
		fin.Status = model.FinalizeRunning
		fin.CurrentStep = last.Phase
	}
	if !phaseComplete(g, model.PhaseCodeReview) {
		fin.CodeReviewResult = nil
	}
	if !phaseComplete(g, model.PhaseFinalVerify) {
		fin.FinalVerifyResult = nil
	}
}

func phaseComplete(g *graph.Graph, phase model.Phase) bool {
	n, ok := g.Node(graph.NodeID(model.FinalizeItemID, phase))
	return ok && n.Status == model.NodeComplete
}
