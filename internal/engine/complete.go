package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/msageha/baton/internal/graph"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/triage"
)

// Apply is Complete on an already loaded session.
//
// Only the outstanding node may be completed. Completing a node that is
// already complete and no longer outstanding is reported as a duplicate and
// changes nothing.
func (e *Engine) Apply(s *model.SessionState, nodeID string, result model.Result) (CompleteResponse, error) {
	if !s.Engine.Initialized {
		return CompleteResponse{}, ErrNotInitialized
	}
	g, err := graph.Deserialize(s.Engine.Graph)
	if err != nil {
		return CompleteResponse{}, fmt.Errorf("load graph: %w", err)
	}
	node, ok := g.Node(nodeID)
	if !ok {
		return CompleteResponse{}, fmt.Errorf("complete %s: %w", nodeID, graph.ErrUnknownNode)
	}
	resp := CompleteResponse{NodeID: node.ID, ItemID: node.ItemID, Phase: node.Phase}

	pa := Outstanding(s)
	if pa == nil || pa.Action != nodeID {
		if node.Status == model.NodeComplete {
			resp.Duplicate = true
			e.log(logging.LevelInfo, "duplicate complete ignored node=%s", nodeID)
			return resp, nil
		}
		return CompleteResponse{}, fmt.Errorf("complete %s: %w", nodeID, ErrNotOutstanding)
	}

	if err := graph.MarkComplete(g, nodeID); err != nil {
		return CompleteResponse{}, err
	}
	now := e.now()
	s.RecordStep(nodeID, model.StepComplete, result, now)

	if node.ItemID == model.FinalizeItemID {
		err = e.completeFinalize(s, node, result)
	} else {
		err = e.completeItem(s, g, node, result, &resp)
	}
	if err != nil {
		return CompleteResponse{}, err
	}

	if st := s.Engine.Todos[node.ItemID]; st != nil {
		resp.ItemStatus = st.Status
	}
	s.Engine.Graph = graph.Serialize(g)
	s.PendingAction = nil
	s.AddEvent("completed", map[string]any{"node": nodeID}, now)
	e.log(logging.LevelInfo, "completed node=%s", nodeID)
	return resp, nil
}

func (e *Engine) completeItem(s *model.SessionState, g *graph.Graph, node *graph.Node, result model.Result, resp *CompleteResponse) error {
	st := s.Engine.Todos[node.ItemID]
	if st == nil {
		return fmt.Errorf("complete %s: no runtime state for item %s", node.ID, node.ItemID)
	}

	switch node.Phase {
	case model.PhaseWorker:
		st.WorkerResult = result
		return nil
	case model.PhaseVerify:
		return e.completeVerify(s, g, node, st, result, resp)
	case model.PhaseWrapup:
		return e.completeWrapup(node.ItemID, result)
	case model.PhaseCommit:
		if err := model.ValidateItemTransition(st.Status, model.ItemDone); err != nil {
			return fmt.Errorf("complete %s: %w", node.ID, err)
		}
		st.Status = model.ItemDone
		return nil
	default:
		return fmt.Errorf("complete %s: %w %q", node.ID, ErrUnknownPhase, node.Phase)
	}
}

func (e *Engine) completeVerify(s *model.SessionState, g *graph.Graph, node *graph.Node, st *model.ItemRuntimeState, result model.Result, resp *CompleteResponse) error {
	itemID := node.ItemID
	item, ok := findItem(s, itemID)
	if !ok {
		return fmt.Errorf("complete %s: item %s not in plan", node.ID, itemID)
	}

	var vr model.VerifyResult
	verdict := &vr
	if err := result.Decode(&vr); err != nil {
		// an unreadable report is an ambiguous failure, not a crash
		e.log(logging.LevelWarn, "unreadable verify result node=%s err=%v", node.ID, err)
		verdict = nil
	} else {
		st.VerifyResult = &vr
	}

	tr := e.policy.Triage(verdict, item.Type, st, st.Depth)
	resp.Disposition = string(tr.Disposition)
	resp.Reason = tr.Reason
	e.audit("triage", itemID, map[string]any{
		"disposition": string(tr.Disposition),
		"reason":      tr.Reason,
		"details":     tr.Details,
	})
	e.log(logging.LevelInfo, "triage item=%s disposition=%s reason=%q", itemID, tr.Disposition, tr.Reason)

	switch tr.Disposition {
	case triage.Pass:
		st.FixContext = nil
		return nil
	case triage.Retry:
		return e.retry(g, node, st, tr, verdict)
	case triage.Adapt:
		inserted, err := e.adapt(s, g, item, st, verdict, tr)
		if err != nil {
			return err
		}
		resp.InsertedItem = inserted
		return nil
	default:
		return e.halt(itemID, st, tr.Reason)
	}
}

func (e *Engine) retry(g *graph.Graph, node *graph.Node, st *model.ItemRuntimeState, tr triage.Result, vr *model.VerifyResult) error {
	if err := model.ValidateItemTransition(st.Status, model.ItemPending); err != nil {
		return fmt.Errorf("retry %s: %w", node.ItemID, err)
	}
	reset := []string{
		graph.NodeID(node.ItemID, model.PhaseWorker),
		graph.NodeID(node.ItemID, model.PhaseVerify),
	}
	if err := graph.ResetNodes(g, reset...); err != nil {
		return fmt.Errorf("retry %s: %w", node.ItemID, err)
	}
	st.Retries++
	st.Status = model.ItemPending
	st.FixContext = &model.FixContext{
		Attempt:        st.Retries,
		Reason:         tr.Reason,
		FailedCriteria: vr.FailedCriteria(),
	}
	if vr != nil {
		st.FixContext.Summary = vr.Summary
	}
	e.log(logging.LevelInfo, "retry item=%s attempt=%d", node.ItemID, st.Retries)
	return nil
}

// adapt inserts a corrective item under the verified item. Running out of
// insertion slots turns into a halt of the originating item.
func (e *Engine) adapt(s *model.SessionState, g *graph.Graph, item model.WorkItem, st *model.ItemRuntimeState, vr *model.VerifyResult, tr triage.Result) (string, error) {
	adaptation := correctiveAdaptation(item, vr, tr)
	newItem := model.WorkItem{
		ID:    e.dynamicID(s, item.ID, adaptation.NewTodo.ID),
		Title: adaptation.NewTodo.Title,
		Type:  adaptation.NewTodo.Type,
		Steps: adaptation.NewTodo.Steps,
		Risk:  item.Risk,
	}
	if newItem.Type == "" {
		newItem.Type = model.ItemTypeWork
	}

	if _, err := graph.InsertDynamicTodo(g, item.ID, newItem, s.Engine.Mode); err != nil {
		if errors.Is(err, graph.ErrDynamicLimit) {
			e.audit("insertion_limit", item.ID, map[string]any{"error": err.Error(), "proposed": newItem.Title})
			return "", e.halt(item.ID, st, triage.ReasonAdaptLimit)
		}
		return "", fmt.Errorf("adapt %s: %w", item.ID, err)
	}

	st.DynamicChildren++
	st.Adaptation = adaptation
	st.FixContext = nil
	s.Engine.Todos[newItem.ID] = &model.ItemRuntimeState{
		Status:    model.ItemPending,
		IsDynamic: true,
		ParentID:  item.ID,
		Depth:     st.Depth + 1,
	}
	s.Engine.DynamicTodos = append(s.Engine.DynamicTodos, newItem)
	e.audit("adapt", item.ID, map[string]any{"inserted": newItem.ID, "reason": adaptation.Reason})
	e.log(logging.LevelInfo, "adapt item=%s inserted=%s", item.ID, newItem.ID)
	return newItem.ID, nil
}

// correctiveAdaptation uses the actor's proposal when there is one and
// otherwise derives a fix item from the failed criteria.
func correctiveAdaptation(item model.WorkItem, vr *model.VerifyResult, tr triage.Result) *model.Adaptation {
	var a model.Adaptation
	if vr != nil && vr.SuggestedAdaptation != nil {
		a = *vr.SuggestedAdaptation
	}
	if a.Reason == "" {
		a.Reason = tr.Reason
	}
	if a.NewTodo == nil {
		a.NewTodo = &model.NewTodo{}
	} else {
		nt := *a.NewTodo
		a.NewTodo = &nt
	}
	if a.NewTodo.Title == "" {
		title := "Resolve failed verification for " + item.ID
		if failed := vr.FailedCriteria(); len(failed) > 0 {
			title += ": " + strings.Join(failed, ", ")
		}
		a.NewTodo.Title = title
	}
	return &a
}

// dynamicID keeps a valid, unused proposed id or derives <parent>-fix<n>.
func (e *Engine) dynamicID(s *model.SessionState, parentID, proposed string) string {
	taken := func(id string) bool {
		_, ok := s.Engine.Todos[id]
		return ok
	}
	if proposed != "" && model.ValidItemID(proposed) && !taken(proposed) {
		return proposed
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s-fix%d", parentID, n)
		if !taken(id) {
			return id
		}
	}
}

func (e *Engine) halt(itemID string, st *model.ItemRuntimeState, reason string) error {
	if err := model.ValidateItemTransition(st.Status, model.ItemFailed); err != nil {
		return fmt.Errorf("halt %s: %w", itemID, err)
	}
	st.Status = model.ItemFailed
	st.HaltReason = reason
	e.log(logging.LevelWarn, "halt item=%s reason=%q", itemID, reason)
	return nil
}

func (e *Engine) completeWrapup(itemID string, result model.Result) error {
	var wr model.WrapupResult
	if err := result.Decode(&wr); err != nil {
		e.log(logging.LevelWarn, "unreadable wrapup result item=%s err=%v", itemID, err)
		return nil
	}
	if len(wr.Outputs) > 0 {
		if err := e.ctxStore.WriteOutput(itemID, wr.Outputs); err != nil {
			return fmt.Errorf("write outputs for %s: %w", itemID, err)
		}
	}
	for _, l := range wr.Learnings {
		if err := e.ctxStore.AppendLearning(itemID, l); err != nil {
			return fmt.Errorf("append learning for %s: %w", itemID, err)
		}
	}
	for _, i := range wr.Issues {
		if err := e.ctxStore.AppendIssue(itemID, i); err != nil {
			return fmt.Errorf("append issue for %s: %w", itemID, err)
		}
	}
	return nil
}

// completeFinalize records finalize results. Review and final-verify
// failures are written as issues and never stop the chain.
func (e *Engine) completeFinalize(s *model.SessionState, node *graph.Node, result model.Result) error {
	fin := &s.Engine.Finalize
	fin.CurrentStep = node.Phase

	switch node.Phase {
	case model.PhaseResidualCommit, model.PhaseStateComplete:
	case model.PhaseCodeReview:
		rr := e.decodeReview(node.ID, result)
		fin.CodeReviewResult = rr
		if !strings.EqualFold(rr.Status, "approved") {
			return e.reviewIssues("code review", rr)
		}
	case model.PhaseFinalVerify:
		rr := e.decodeReview(node.ID, result)
		fin.FinalVerifyResult = rr
		if !strings.EqualFold(rr.Status, "verified") {
			return e.reviewIssues("final verification", rr)
		}
	case model.PhaseReport:
		fin.Status = model.FinalizeDone
	default:
		return fmt.Errorf("complete %s: %w %q", node.ID, ErrUnknownPhase, node.Phase)
	}
	return nil
}

func (e *Engine) decodeReview(nodeID string, result model.Result) *model.ReviewResult {
	var rr model.ReviewResult
	if err := result.Decode(&rr); err != nil {
		e.log(logging.LevelWarn, "unreadable review result node=%s err=%v", nodeID, err)
	}
	return &rr
}

func (e *Engine) reviewIssues(label string, rr *model.ReviewResult) error {
	issues := []string(rr.Issues)
	if len(issues) == 0 {
		status := rr.Status
		if status == "" {
			status = "no status"
		}
		issues = []string{fmt.Sprintf("%s reported %s", label, status)}
	}
	for _, issue := range issues {
		if err := e.ctxStore.AppendIssue(model.FinalizeItemID, label+": "+issue); err != nil {
			return fmt.Errorf("append %s issue: %w", label, err)
		}
	}
	e.log(logging.LevelWarn, "%s not clean, continuing (advisory) status=%q issues=%d", label, rr.Status, len(issues))
	return nil
}

// audit failures are logged and do not fail the transition.
func (e *Engine) audit(kind, itemID string, details map[string]any) {
	entry := triage.BuildAuditEntry(kind, itemID, details, e.clock())
	if err := e.ctxStore.AppendAudit(entry); err != nil {
		e.log(logging.LevelError, "audit write failed kind=%s item=%s err=%v", kind, itemID, err)
	}
}
