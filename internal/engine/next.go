package engine

import (
	"fmt"
	"strings"

	"github.com/msageha/baton/internal/graph"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/prompt"
)

// Advance is Next on an already loaded session. changed reports whether s was
// modified and needs saving.
func (e *Engine) Advance(s *model.SessionState) (NextResponse, bool, error) {
	if !s.Engine.Initialized {
		return NextResponse{}, false, ErrNotInitialized
	}
	if pa := Outstanding(s); pa != nil {
		return NextResponse{Instruction: instructionFrom(pa)}, false, nil
	}

	g, err := graph.Deserialize(s.Engine.Graph)
	if err != nil {
		return NextResponse{}, false, fmt.Errorf("load graph: %w", err)
	}
	resync(s, g)

	runnable := dispatchable(s, g, graph.FindRunnable(g))
	if len(runnable) == 0 {
		resp := e.terminal(s, g)
		s.Engine.Graph = graph.Serialize(g)
		return resp, true, nil
	}

	node, _ := g.Node(runnable[0])
	if err := e.markDispatched(s, node); err != nil {
		return NextResponse{}, false, err
	}

	text, err := e.renderer.Render(e.renderRequest(s, node))
	if err != nil {
		return NextResponse{}, false, fmt.Errorf("render %s: %w", node.ID, err)
	}

	now := e.now()
	s.PendingAction = &model.PendingAction{
		Block:       BlockScheduler,
		Action:      node.ID,
		ItemID:      node.ItemID,
		Phase:       node.Phase,
		Instruction: text,
		IssuedAt:    now,
	}
	s.Engine.Graph = graph.Serialize(g)
	s.AddEvent("dispatched", map[string]any{"node": node.ID}, now)
	e.log(logging.LevelInfo, "dispatched node=%s runnable=%d", node.ID, len(runnable))

	return NextResponse{Instruction: instructionFrom(s.PendingAction)}, true, nil
}

// dispatchable drops runnable nodes of failed items. A halted item keeps its
// remaining chain in the graph but is never dispatched again.
func dispatchable(s *model.SessionState, g *graph.Graph, runnable []string) []string {
	out := make([]string, 0, len(runnable))
	for _, id := range runnable {
		if n, ok := g.Node(id); ok {
			if st := s.Engine.Todos[n.ItemID]; st != nil && st.Status == model.ItemFailed {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}

// Outstanding returns the unacknowledged scheduler instruction, if any.
func Outstanding(s *model.SessionState) *model.PendingAction {
	pa := s.PendingAction
	if pa == nil || pa.Acknowledged || pa.Phase == "" {
		return nil
	}
	return pa
}

func instructionFrom(pa *model.PendingAction) *Instruction {
	return &Instruction{
		NodeID:   pa.Action,
		ItemID:   pa.ItemID,
		Phase:    pa.Phase,
		Text:     pa.Instruction,
		IssuedAt: pa.IssuedAt,
	}
}

// terminal builds the response when nothing is runnable.
func (e *Engine) terminal(s *model.SessionState, g *graph.Graph) NextResponse {
	if graph.AllComplete(g) {
		s.Engine.Finalize.Status = model.FinalizeDone
		s.Engine.HaltedReason = ""
		e.log(logging.LevelInfo, "plan complete plan=%s", s.Engine.Plan.Name)
		return NextResponse{Done: true}
	}

	var failed []string
	for _, id := range itemOrder(s) {
		if st := s.Engine.Todos[id]; st != nil && st.Status == model.ItemFailed {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		reason := "items failed: " + strings.Join(failed, ", ")
		s.Engine.HaltedReason = reason
		e.log(logging.LevelWarn, "halted failed=%s", strings.Join(failed, ","))
		return NextResponse{Done: true, Halted: true, Reason: reason, FailedItems: failed}
	}

	// Only reachable if the graph was built or edited inconsistently.
	var pending []string
	for _, n := range g.Nodes() {
		if n.Status == model.NodePending {
			pending = append(pending, n.ID)
		}
	}
	reason := fmt.Sprintf("no runnable nodes but %d pending: %s", len(pending), strings.Join(pending, ", "))
	s.Engine.HaltedReason = reason
	e.log(logging.LevelError, "stalled graph %s", reason)
	return NextResponse{Done: true, Halted: true, Reason: reason}
}

// markDispatched advances item or finalize status for a dispatched node.
func (e *Engine) markDispatched(s *model.SessionState, node *graph.Node) error {
	if node.ItemID == model.FinalizeItemID {
		s.Engine.Finalize.Status = model.FinalizeRunning
		s.Engine.Finalize.CurrentStep = node.Phase
		return nil
	}
	st := s.Engine.Todos[node.ItemID]
	if st == nil {
		return fmt.Errorf("dispatch %s: no runtime state for item %s", node.ID, node.ItemID)
	}
	next, ok := model.DispatchStatus(node.Phase)
	if !ok {
		return fmt.Errorf("dispatch %s: %w %q", node.ID, ErrUnknownPhase, node.Phase)
	}
	if err := model.ValidateItemTransition(st.Status, next); err != nil {
		return fmt.Errorf("dispatch %s: %w", node.ID, err)
	}
	st.Status = next
	return nil
}

// resync promotes graph nodes that item and finalize status imply are done.
// It never demotes a node.
func resync(s *model.SessionState, g *graph.Graph) {
	for _, n := range g.Nodes() {
		if n.Status == model.NodeComplete {
			continue
		}
		if impliedComplete(s, g, n) {
			n.Status = model.NodeComplete
		}
	}
}

func impliedComplete(s *model.SessionState, g *graph.Graph, n *graph.Node) bool {
	if n.ItemID == model.FinalizeItemID {
		fin := s.Engine.Finalize
		switch fin.Status {
		case model.FinalizeDone:
			return true
		case model.FinalizeRunning:
			return before(g.ItemNodes(n.ItemID), n.Phase, fin.CurrentStep)
		}
		return false
	}

	st := s.Engine.Todos[n.ItemID]
	if st == nil {
		return false
	}
	if st.Status == model.ItemDone {
		return true
	}
	dispatched, ok := model.DispatchedPhase(st.Status)
	if !ok {
		return false
	}
	return before(g.ItemNodes(n.ItemID), n.Phase, dispatched)
}

// before reports whether phase comes strictly before ref in chain.
func before(chain []*graph.Node, phase, ref model.Phase) bool {
	for _, c := range chain {
		switch c.Phase {
		case ref:
			return false
		case phase:
			return true
		}
	}
	return false
}

func (e *Engine) renderRequest(s *model.SessionState, node *graph.Node) prompt.Request {
	req := prompt.Request{
		PlanName:       s.Engine.Plan.Name,
		Mode:           s.Engine.Mode,
		CommitStrategy: s.Engine.CommitStrategy,
		NodeID:         node.ID,
		ItemID:         node.ItemID,
		Phase:          node.Phase,
	}
	if node.ItemID == model.FinalizeItemID {
		fin := s.Engine.Finalize
		req.Finalize = &fin
		req.Items = summaries(s)
		return req
	}
	if item, ok := findItem(s, node.ItemID); ok {
		req.Item = &item
	}
	req.State = s.Engine.Todos[node.ItemID]
	return req
}
