package graph

import (
	"fmt"

	"github.com/msageha/baton/internal/model"
)

// InsertDynamicTodo appends a phase chain for item whose first phase waits on
// the last phase of parentID. The finalize chain is made to wait on the new
// chain as well. At most model.MaxDynamicChildren items may be inserted per
// parent; the next attempt fails with ErrDynamicLimit.
func InsertDynamicTodo(g *Graph, parentID string, item model.WorkItem, mode model.Mode) ([]string, error) {
	chain, err := ItemChain(mode)
	if err != nil {
		return nil, err
	}
	if count := g.dynamicChildren[parentID]; count >= model.MaxDynamicChildren {
		return nil, fmt.Errorf("%w: parent %s already has %d dynamic children", ErrDynamicLimit, parentID, count)
	}
	parent := g.ItemNodes(parentID)
	if len(parent) == 0 {
		return nil, fmt.Errorf("insert under %s: %w", parentID, ErrUnknownNode)
	}
	if !model.ValidItemID(item.ID) {
		return nil, fmt.Errorf("insert under %s: invalid item id %q", parentID, item.ID)
	}
	if len(g.ItemNodes(item.ID)) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
	}

	ids := g.addChain(item.ID, chain, []string{parent[len(parent)-1].ID})

	if fin := g.ItemNodes(model.FinalizeItemID); len(fin) > 0 && fin[0].Status == model.NodePending {
		fin[0].BlockedBy[ids[len(ids)-1]] = struct{}{}
	}

	g.dynamicChildren[parentID]++
	return ids, nil
}
