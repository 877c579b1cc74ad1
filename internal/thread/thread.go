// Package thread rebuilds conversation trees from parent links.
//
// Units arrive as a flat batch; Build turns them into a forest keyed by the
// parent pointers. Bad links do not abort a run: a unit whose parent is
// missing from the batch becomes an orphan root, and a parent cycle is
// broken by force-rooting its first member in input order. Both conditions
// are logged and the affected units still flow through the pipeline.
package thread

import (
	"github.com/rs/zerolog/log"

	"github.com/transitlab/transitpulse/internal/feedback"
)

// Node is one unit in a conversation tree. Children keep input order, which
// makes traversal deterministic for a fixed batch.
type Node struct {
	Unit       feedback.TextUnit
	Children   []*Node
	Orphan     bool // parent id set but absent from the batch
	ForcedRoot bool // parent link severed to break a cycle
}

// Forest holds every unit from a batch. Orphans are kept out of Roots so
// callers can tell clean trees from salvaged ones, but their subtrees are
// still complete and walkable.
type Forest struct {
	Roots   []*Node
	Orphans []*Node
}

// Build assembles the forest. Input order decides both sibling order and
// which cycle member gets force-rooted.
func Build(units []feedback.TextUnit) *Forest {
	nodes := make([]*Node, len(units))
	byID := make(map[string]*Node, len(units))
	for i := range units {
		n := &Node{Unit: units[i]}
		nodes[i] = n
		byID[units[i].ID] = n
	}

	severed := findCycleBreaks(nodes, byID)

	f := &Forest{}
	for _, n := range nodes {
		u := n.Unit
		switch {
		case u.IsRoot():
			f.Roots = append(f.Roots, n)
		case severed[u.ID]:
			n.ForcedRoot = true
			f.Roots = append(f.Roots, n)
			log.Warn().
				Str("unit_id", u.ID).
				Str("thread_id", u.ThreadID).
				Msg("parent cycle detected, unit force-rooted")
		default:
			parent, ok := byID[u.ParentID]
			if !ok || parent.Unit.ThreadID != u.ThreadID {
				n.Orphan = true
				f.Orphans = append(f.Orphans, n)
				log.Warn().
					Str("unit_id", u.ID).
					Str("parent_id", u.ParentID).
					Str("thread_id", u.ThreadID).
					Msg("parent missing from batch, unit treated as orphan root")
				continue
			}
			parent.Children = append(parent.Children, n)
		}
	}
	return f
}

// Walk visits every node parent-before-child, roots first then orphan
// subtrees, siblings in input order. parent is nil for roots and orphans.
func (f *Forest) Walk(fn func(parent, node *Node)) {
	var visit func(parent, n *Node)
	visit = func(parent, n *Node) {
		fn(parent, n)
		for _, c := range n.Children {
			visit(n, c)
		}
	}
	for _, r := range f.Roots {
		visit(nil, r)
	}
	for _, o := range f.Orphans {
		visit(nil, o)
	}
}

// Size counts every node in the forest.
func (f *Forest) Size() int {
	n := 0
	f.Walk(func(_, _ *Node) { n++ })
	return n
}

// findCycleBreaks follows parent chains and picks the units whose links
// must be severed. The visited map doubles as chain-membership tracking so
// each unit is walked at most once across the whole batch.
func findCycleBreaks(nodes []*Node, byID map[string]*Node) map[string]bool {
	severed := make(map[string]bool)
	const (
		unseen = iota
		inChain
		done
	)
	state := make(map[string]int, len(nodes))

	for _, start := range nodes {
		if state[start.Unit.ID] != unseen {
			continue
		}
		var chain []*Node
		n := start
		for {
			id := n.Unit.ID
			if state[id] == done {
				break
			}
			if state[id] == inChain {
				// n is the first chain member reached twice; severing the
				// earliest cycle entry in input order keeps Build stable.
				severed[id] = true
				break
			}
			state[id] = inChain
			chain = append(chain, n)
			if n.Unit.IsRoot() || n.Unit.ID == n.Unit.ParentID {
				if n.Unit.ID == n.Unit.ParentID {
					severed[n.Unit.ID] = true
				}
				break
			}
			parent, ok := byID[n.Unit.ParentID]
			if !ok {
				break
			}
			n = parent
		}
		for _, c := range chain {
			state[c.Unit.ID] = done
		}
	}
	return severed
}
