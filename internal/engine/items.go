package engine

import (
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/prompt"
)

// findItem looks in the plan first, then in dynamically inserted items.
func findItem(s *model.SessionState, id string) (model.WorkItem, bool) {
	for _, it := range s.Engine.Plan.Items {
		if it.ID == id {
			return it, true
		}
	}
	for _, it := range s.Engine.DynamicTodos {
		if it.ID == id {
			return it, true
		}
	}
	return model.WorkItem{}, false
}

// itemOrder is plan order followed by insertion order.
func itemOrder(s *model.SessionState) []string {
	ids := make([]string, 0, len(s.Engine.Plan.Items)+len(s.Engine.DynamicTodos))
	for _, it := range s.Engine.Plan.Items {
		ids = append(ids, it.ID)
	}
	for _, it := range s.Engine.DynamicTodos {
		ids = append(ids, it.ID)
	}
	return ids
}

func summaries(s *model.SessionState) []prompt.ItemSummary {
	var out []prompt.ItemSummary
	for _, id := range itemOrder(s) {
		it, _ := findItem(s, id)
		sum := prompt.ItemSummary{ID: id, Title: it.Title}
		if st := s.Engine.Todos[id]; st != nil {
			sum.Status = st.Status
			sum.Retries = st.Retries
			sum.HaltReason = st.HaltReason
		}
		out = append(out, sum)
	}
	return out
}
