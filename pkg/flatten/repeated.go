package flatten

import (
	"github.com/chazu/solidcsg/pkg/scene"
	"github.com/chazu/solidcsg/pkg/traverse"
)

// Occurrences counts how often each canonical subtree identity appears.
// Counting stops descending into a subtree once its identity has been seen
// twice, so the descendants of a repeated subtree are counted once.
type Occurrences map[string]int

// Count adds the subtrees under root to o. Several trees can be counted
// into the same Occurrences since identities do not depend on handles.
func (o Occurrences) Count(t *scene.Tree, root scene.NodeID) {
	traverse.Traverse(t, root, traverse.VisitorFunc(func(state *traverse.State, n *scene.Node) traverse.Response {
		if state.IsPostfix() {
			return traverse.ContinueTraversal
		}
		key := t.IDString(n.ID)
		o[key]++
		if o[key] > 1 {
			return traverse.PruneTraversal
		}
		return traverse.ContinueTraversal
	}))
}

// Repeated returns the identities seen more than once.
func (o Occurrences) Repeated() map[string]bool {
	out := make(map[string]bool)
	for k, c := range o {
		if c > 1 {
			out[k] = true
		}
	}
	return out
}

// FindRepeated returns the identities of the subtrees that occur more than
// once under roots.
func FindRepeated(t *scene.Tree, roots ...scene.NodeID) map[string]bool {
	o := Occurrences{}
	for _, r := range roots {
		o.Count(t, r)
	}
	return o.Repeated()
}
