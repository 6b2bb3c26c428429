package graph

import (
	"fmt"
	"sort"

	"github.com/msageha/baton/internal/model"
)

// Serialize converts the graph into its storage form. Blocker sets become
// sorted lists.
func Serialize(g *Graph) model.SerializedGraph {
	out := model.SerializedGraph{
		Nodes: make([]model.SerializedNode, 0, len(g.order)),
	}
	for _, id := range g.order {
		n := g.nodes[id]
		blocked := make([]string, 0, len(n.BlockedBy))
		for b := range n.BlockedBy {
			blocked = append(blocked, b)
		}
		sort.Strings(blocked)
		out.Nodes = append(out.Nodes, model.SerializedNode{
			ID:        n.ID,
			ItemID:    n.ItemID,
			Phase:     n.Phase,
			Status:    n.Status,
			BlockedBy: blocked,
		})
	}
	if len(g.dynamicChildren) > 0 {
		out.DynamicChildren = make(map[string]int, len(g.dynamicChildren))
		for k, v := range g.dynamicChildren {
			out.DynamicChildren[k] = v
		}
	}
	return out
}

// Deserialize rebuilds a graph from its storage form, preserving node order.
func Deserialize(sg model.SerializedGraph) (*Graph, error) {
	g := New()
	for i, sn := range sg.Nodes {
		if sn.ID == "" {
			return nil, fmt.Errorf("graph.nodes[%d]: missing id", i)
		}
		if _, dup := g.nodes[sn.ID]; dup {
			return nil, fmt.Errorf("graph.nodes[%d]: duplicate id %s", i, sn.ID)
		}
		status := sn.Status
		if status == "" {
			status = model.NodePending
		}
		n := &Node{
			ID:        sn.ID,
			ItemID:    sn.ItemID,
			Phase:     sn.Phase,
			Status:    status,
			BlockedBy: make(map[string]struct{}, len(sn.BlockedBy)),
		}
		for _, b := range sn.BlockedBy {
			n.BlockedBy[b] = struct{}{}
		}
		g.add(n)
	}
	for k, v := range sg.DynamicChildren {
		g.dynamicChildren[k] = v
	}
	return g, nil
}
