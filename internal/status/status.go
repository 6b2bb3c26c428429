// Package status summarises a session for humans (styled text) or tools
// (JSON).
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/state"
)

type Report struct {
	SessionID      string               `json:"sessionId"`
	Recipe         string               `json:"recipe"`
	BlockIndex     int                  `json:"blockIndex"`
	TotalSteps     int                  `json:"totalSteps"`
	CurrentStep    string               `json:"currentStep,omitempty"`
	Plan           string               `json:"plan,omitempty"`
	Mode           model.Mode           `json:"mode,omitempty"`
	CommitStrategy model.CommitStrategy `json:"commitStrategy,omitempty"`
	Items          []ItemStatus         `json:"items,omitempty"`
	Counts         map[string]int       `json:"counts,omitempty"`
	Finalize       FinalizeStatus       `json:"finalize"`
	Outstanding    *Outstanding         `json:"outstanding,omitempty"`
	HaltedReason   string               `json:"haltedReason,omitempty"`
	UpdatedAt      string               `json:"updatedAt"`
}

type ItemStatus struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Status          model.ItemStatus `json:"status"`
	Retries         int              `json:"retries"`
	DynamicChildren int              `json:"dynamicChildren"`
	ParentID        string           `json:"parentId,omitempty"`
	HaltReason      string           `json:"haltReason,omitempty"`
}

type FinalizeStatus struct {
	Status      model.FinalizeStatus `json:"status"`
	CurrentStep model.Phase          `json:"currentStep,omitempty"`
	Completed   int                  `json:"completed"`
	Total       int                  `json:"total"`
}

type Outstanding struct {
	StepID   string      `json:"stepId"`
	Block    string      `json:"block"`
	ItemID   string      `json:"itemId,omitempty"`
	Phase    model.Phase `json:"phase,omitempty"`
	IssuedAt string      `json:"issuedAt"`
}

// Run loads the session under batonDir and writes its report to w.
func Run(ctx context.Context, batonDir string, jsonOutput bool, w io.Writer) error {
	s, err := state.New(batonDir).Load(ctx)
	if err != nil {
		return err
	}
	r := Build(s)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err = io.WriteString(w, Render(r))
	return err
}

// Build derives a report from session state. Items are listed in plan order
// followed by dynamic items in insertion order.
func Build(s *model.SessionState) Report {
	r := Report{
		SessionID:      s.SessionID,
		Recipe:         s.Recipe.Name,
		BlockIndex:     s.BlockIndex,
		TotalSteps:     len(s.Recipe.Steps),
		Plan:           s.Engine.Plan.Name,
		Mode:           s.Engine.Mode,
		CommitStrategy: s.Engine.CommitStrategy,
		HaltedReason:   s.Engine.HaltedReason,
		UpdatedAt:      s.UpdatedAt,
		Finalize: FinalizeStatus{
			Status:      s.Engine.Finalize.Status,
			CurrentStep: s.Engine.Finalize.CurrentStep,
		},
	}
	if s.BlockIndex < len(s.Recipe.Steps) {
		r.CurrentStep = s.Recipe.Steps[s.BlockIndex].ID
	}

	items := append(append([]model.WorkItem(nil), s.Engine.Plan.Items...), s.Engine.DynamicTodos...)
	if len(items) > 0 {
		r.Counts = make(map[string]int)
	}
	for _, item := range items {
		is := ItemStatus{ID: item.ID, Title: item.Title, Status: model.ItemPending}
		if st := s.Engine.Todos[item.ID]; st != nil {
			is.Status = st.Status
			is.Retries = st.Retries
			is.DynamicChildren = st.DynamicChildren
			is.ParentID = st.ParentID
			is.HaltReason = st.HaltReason
		}
		r.Counts[string(is.Status)]++
		r.Items = append(r.Items, is)
	}

	for _, n := range s.Engine.Graph.Nodes {
		if n.ItemID != model.FinalizeItemID {
			continue
		}
		r.Finalize.Total++
		if n.Status == model.NodeComplete {
			r.Finalize.Completed++
		}
	}

	if pa := s.PendingAction; pa != nil && !pa.Acknowledged {
		r.Outstanding = &Outstanding{
			StepID:   pa.Action,
			Block:    pa.Block,
			ItemID:   pa.ItemID,
			Phase:    pa.Phase,
			IssuedAt: pa.IssuedAt,
		}
	}
	return r
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func styleFor(status string) lipgloss.Style {
	switch status {
	// item and finalize statuses share the done and pending names
	case string(model.ItemDone):
		return okStyle
	case string(model.ItemFailed):
		return failStyle
	case string(model.ItemPending):
		return labelStyle
	default:
		return warnStyle
	}
}

// Render formats r as styled text.
func Render(r Report) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label+":")), value)
	}

	b.WriteString(titleStyle.Render("Session "+r.SessionID) + "\n")
	step := fmt.Sprintf("%d/%d", r.BlockIndex, r.TotalSteps)
	if r.CurrentStep != "" {
		step += " (" + r.CurrentStep + ")"
	}
	line("Recipe", r.Recipe+" step "+step)
	if r.Plan != "" {
		line("Plan", fmt.Sprintf("%s [%s, commit %s]", r.Plan, r.Mode, r.CommitStrategy))
	}
	if r.UpdatedAt != "" {
		line("Updated", r.UpdatedAt)
	}

	if len(r.Items) > 0 {
		b.WriteString("\n" + titleStyle.Render("Items") + "\n")
		for _, it := range r.Items {
			extra := ""
			if it.Retries > 0 {
				extra += fmt.Sprintf(" retries=%d", it.Retries)
			}
			if it.DynamicChildren > 0 {
				extra += fmt.Sprintf(" children=%d", it.DynamicChildren)
			}
			if it.ParentID != "" {
				extra += " parent=" + it.ParentID
			}
			if it.HaltReason != "" {
				extra += " halt=" + failStyle.Render(it.HaltReason)
			}
			fmt.Fprintf(&b, "  %-20s %s %s%s\n", it.ID,
				styleFor(string(it.Status)).Render(fmt.Sprintf("%-18s", it.Status)), it.Title, extra)
		}
	}

	if r.Finalize.Total > 0 {
		fin := fmt.Sprintf("%s %d/%d", styleFor(string(r.Finalize.Status)).Render(string(r.Finalize.Status)),
			r.Finalize.Completed, r.Finalize.Total)
		if r.Finalize.CurrentStep != "" && r.Finalize.Status != model.FinalizeDone {
			fin += " at " + string(r.Finalize.CurrentStep)
		}
		b.WriteString("\n")
		line("Finalize", fin)
	}

	if o := r.Outstanding; o != nil {
		line("Outstanding", fmt.Sprintf("%s (issued %s)", o.StepID, o.IssuedAt))
	}
	if r.HaltedReason != "" {
		line("Halted", failStyle.Render(r.HaltedReason))
	}
	return b.String()
}
