package graph

import (
	"fmt"

	"github.com/msageha/baton/internal/model"
)

// FindRunnable lists pending nodes whose blockers are all complete, in
// iteration order. A blocker id with no node is never satisfied.
func FindRunnable(g *Graph) []string {
	var out []string
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Status != model.NodePending {
			continue
		}
		if g.satisfied(n) {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) satisfied(n *Node) bool {
	for b := range n.BlockedBy {
		blocker, ok := g.nodes[b]
		if !ok || blocker.Status != model.NodeComplete {
			return false
		}
	}
	return true
}

// MarkComplete sets a node complete. An unknown id is a caller bug.
func MarkComplete(g *Graph, id string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("mark complete %s: %w", id, ErrUnknownNode)
	}
	n.Status = model.NodeComplete
	return nil
}

// ResetNodes puts nodes back to pending.
func ResetNodes(g *Graph, ids ...string) error {
	for _, id := range ids {
		n, ok := g.nodes[id]
		if !ok {
			return fmt.Errorf("reset %s: %w", id, ErrUnknownNode)
		}
		n.Status = model.NodePending
	}
	return nil
}

// AllComplete reports whether every node is complete.
func AllComplete(g *Graph) bool {
	for _, id := range g.order {
		if g.nodes[id].Status != model.NodeComplete {
			return false
		}
	}
	return true
}

// Downstream returns every node that transitively waits on id, in
// iteration order. id itself is not included.
func Downstream(g *Graph, id string) ([]string, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("downstream of %s: %w", id, ErrUnknownNode)
	}
	dependents := make(map[string][]string)
	for _, nid := range g.order {
		for b := range g.nodes[nid].BlockedBy {
			dependents[b] = append(dependents[b], nid)
		}
	}

	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range dependents[cur] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}

	var out []string
	for _, nid := range g.order {
		if nid != id && seen[nid] {
			out = append(out, nid)
		}
	}
	return out, nil
}
