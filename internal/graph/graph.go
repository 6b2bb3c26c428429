package graph

import (
	"errors"
	"fmt"

	"github.com/msageha/baton/internal/model"
)

var (
	ErrUnknownNode   = errors.New("unknown graph node")
	ErrInvalidMode   = errors.New("invalid execution mode")
	ErrCycle         = errors.New("dependency cycle")
	ErrDuplicateItem = errors.New("duplicate item id")
	// ErrDynamicLimit is returned when a parent already has the maximum
	// number of dynamically inserted children.
	ErrDynamicLimit = errors.New("dynamic insertion limit exceeded")
)

var (
	fullChain    = []model.Phase{model.PhaseWorker, model.PhaseVerify, model.PhaseWrapup, model.PhaseCommit}
	reducedChain = []model.Phase{model.PhaseWorker, model.PhaseWrapup, model.PhaseCommit}

	fullFinalize = []model.Phase{
		model.PhaseResidualCommit,
		model.PhaseCodeReview,
		model.PhaseFinalVerify,
		model.PhaseStateComplete,
		model.PhaseReport,
	}
	reducedFinalize = []model.Phase{
		model.PhaseResidualCommit,
		model.PhaseStateComplete,
		model.PhaseReport,
	}
)

// Node is one phase of one item.
type Node struct {
	ID        string
	ItemID    string
	Phase     model.Phase
	Status    model.NodeStatus
	BlockedBy map[string]struct{}
}

// Graph is an arena of nodes keyed by id. order records insertion order and
// is the iteration order for every query.
type Graph struct {
	nodes           map[string]*Node
	order           []string
	dynamicChildren map[string]int
}

func New() *Graph {
	return &Graph{
		nodes:           make(map[string]*Node),
		dynamicChildren: make(map[string]int),
	}
}

// NodeID composes the id of an item's phase node.
func NodeID(itemID string, phase model.Phase) string {
	return itemID + "." + string(phase)
}

// ItemChain returns the per-item phase chain for mode.
func ItemChain(mode model.Mode) ([]model.Phase, error) {
	switch mode {
	case model.ModeFull:
		return clonePhases(fullChain), nil
	case model.ModeReduced:
		return clonePhases(reducedChain), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

// FinalizeChain returns the closing chain for mode.
func FinalizeChain(mode model.Mode) ([]model.Phase, error) {
	switch mode {
	case model.ModeFull:
		return clonePhases(fullFinalize), nil
	case model.ModeReduced:
		return clonePhases(reducedFinalize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func clonePhases(p []model.Phase) []model.Phase {
	out := make([]model.Phase, len(p))
	copy(out, p)
	return out
}

// Build expands items into phase chains and wires artifact dependencies.
// An item's first phase waits on the last phase of every other item that
// produces one of the artifacts it requires. Artifacts without a known
// producer add no edge. The finalize chain waits on every item.
func Build(items []model.WorkItem, deps []model.DependencyDeclaration, mode model.Mode) (*Graph, error) {
	chain, err := ItemChain(mode)
	if err != nil {
		return nil, err
	}
	finalize, err := FinalizeChain(mode)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(items))
	names := make([]string, 0, len(items))
	for _, item := range items {
		if known[item.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
		}
		known[item.ID] = true
		names = append(names, item.ID)
	}

	itemDeps := ItemDependencies(names, deps)
	if _, err := ValidateDAG(names, itemDeps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCycle, err)
	}

	g := New()
	last := chain[len(chain)-1]
	for _, id := range names {
		blockers := make([]string, 0, len(itemDeps[id]))
		for _, p := range itemDeps[id] {
			blockers = append(blockers, NodeID(p, last))
		}
		g.addChain(id, chain, blockers)
	}

	finBlockers := make([]string, 0, len(names))
	for _, id := range names {
		finBlockers = append(finBlockers, NodeID(id, last))
	}
	g.addChain(model.FinalizeItemID, finalize, finBlockers)

	return g, nil
}

// addChain appends a linear chain whose first node is blocked by blockers.
func (g *Graph) addChain(itemID string, chain []model.Phase, blockers []string) []string {
	ids := make([]string, 0, len(chain))
	prev := ""
	for i, phase := range chain {
		n := &Node{
			ID:        NodeID(itemID, phase),
			ItemID:    itemID,
			Phase:     phase,
			Status:    model.NodePending,
			BlockedBy: make(map[string]struct{}),
		}
		if i == 0 {
			for _, b := range blockers {
				n.BlockedBy[b] = struct{}{}
			}
		} else {
			n.BlockedBy[prev] = struct{}{}
		}
		g.add(n)
		ids = append(ids, n.ID)
		prev = n.ID
	}
	return ids
}

func (g *Graph) add(n *Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	g.nodes[n.ID] = n
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in iteration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

func (g *Graph) Len() int {
	return len(g.order)
}

// ItemNodes returns the chain of one item in order.
func (g *Graph) ItemNodes(itemID string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.ItemID == itemID {
			out = append(out, n)
		}
	}
	return out
}

// DynamicChildren reports how many items were inserted under parentID.
func (g *Graph) DynamicChildren(parentID string) int {
	return g.dynamicChildren[parentID]
}

// ItemDependencies resolves artifact declarations into item-level edges: each
// item maps to the items producing an artifact it requires, in declaration
// order. Declarations for ids outside names and self-edges are dropped.
func ItemDependencies(names []string, deps []model.DependencyDeclaration) map[string][]string {
	known := make(map[string]bool, len(names))
	for _, id := range names {
		known[id] = true
	}

	// artifact → producing items, in declaration order
	producers := make(map[string][]string)
	requires := make(map[string][]string)
	for _, d := range deps {
		if !known[d.ItemID] {
			continue
		}
		for _, a := range d.Produces {
			producers[a] = appendUnique(producers[a], d.ItemID)
		}
		for _, a := range d.Requires {
			requires[d.ItemID] = appendUnique(requires[d.ItemID], a)
		}
	}

	itemDeps := make(map[string][]string, len(names))
	for _, id := range names {
		for _, a := range requires[id] {
			for _, p := range producers[a] {
				if p == id {
					continue
				}
				itemDeps[id] = appendUnique(itemDeps[id], p)
			}
		}
	}
	return itemDeps
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
