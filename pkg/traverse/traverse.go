// Package traverse walks a scene tree depth-first, calling a visitor once
// before a node's children (prefix) and once after (postfix). Inherited
// state such as the accumulated matrix and color flows from parents to
// children through State.
package traverse

import (
	"fmt"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/scene"
)

// Response tells the walker how to proceed after a visit.
type Response int

const (
	// ContinueTraversal descends into children after a prefix visit.
	ContinueTraversal Response = iota
	// PruneTraversal skips the children; the postfix visit still happens.
	PruneTraversal
	// AbortTraversal stops the whole walk.
	AbortTraversal
)

func (r Response) String() string {
	switch r {
	case ContinueTraversal:
		return "continue"
	case PruneTraversal:
		return "prune"
	case AbortTraversal:
		return "abort"
	default:
		return fmt.Sprintf("Response(%d)", int(r))
	}
}

// Visitor receives prefix and postfix visits. state.IsPrefix tells them
// apart. Changes a prefix visit makes to state are seen by the node's
// children and by its own postfix visit.
type Visitor interface {
	Visit(state *State, n *scene.Node) Response
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(state *State, n *scene.Node) Response

func (f VisitorFunc) Visit(state *State, n *scene.Node) Response { return f(state, n) }

// State is the per-node traversal state inherited from the parent.
type State struct {
	prefix      bool
	matrix      geom.Mat4
	color       geom.Color
	background  bool
	highlight   bool
	preferExact bool
	parent      *scene.Node
	depth       int
}

// NewState returns the state at the top of a walk: identity matrix, unset
// color, no flags.
func NewState() State {
	return State{matrix: geom.Identity()}
}

func (s *State) IsPrefix() bool  { return s.prefix }
func (s *State) IsPostfix() bool { return !s.prefix }

// Matrix is the product of all transforms above the node.
func (s *State) Matrix() geom.Mat4     { return s.matrix }
func (s *State) SetMatrix(m geom.Mat4) { s.matrix = m }
func (s *State) Color() geom.Color     { return s.color }
func (s *State) SetColor(c geom.Color) { s.color = c }
func (s *State) IsBackground() bool    { return s.background }
func (s *State) SetBackground(b bool)  { s.background = b }
func (s *State) IsHighlight() bool     { return s.highlight }
func (s *State) SetHighlight(b bool)   { s.highlight = b }
func (s *State) PreferExact() bool     { return s.preferExact }
func (s *State) SetPreferExact(b bool) { s.preferExact = b }

// Parent is the node whose children are being walked, or nil at the top.
func (s *State) Parent() *scene.Node { return s.parent }

// Depth is the distance from the node the walk started at.
func (s *State) Depth() int { return s.depth }

// Counters tallies a walk. Pass the same value to several walks to
// accumulate.
type Counters struct {
	Entered  int // prefix visits
	Pruned   int // prefix visits answered with PruneTraversal
	Skipped  int // disabled children never visited
	MaxDepth int
}

// Walker runs traversals over one tree.
type Walker struct {
	Tree     *scene.Tree
	Counters *Counters
}

// Traverse walks the subtree under root with v, starting from NewState.
func Traverse(t *scene.Tree, root scene.NodeID, v Visitor) Response {
	w := Walker{Tree: t, Counters: &Counters{}}
	return w.Walk(root, v)
}

// Walk walks the subtree under root with v.
func (w *Walker) Walk(root scene.NodeID, v Visitor) Response {
	if w.Counters == nil {
		w.Counters = &Counters{}
	}
	return w.traverse(w.Tree.MustGet(root), NewState(), v)
}

func (w *Walker) traverse(n *scene.Node, inherited State, v Visitor) Response {
	state := inherited
	state.prefix = true
	w.Counters.Entered++
	if state.depth > w.Counters.MaxDepth {
		w.Counters.MaxDepth = state.depth
	}

	resp := v.Visit(&state, n)
	if resp == AbortTraversal {
		return AbortTraversal
	}

	if resp == ContinueTraversal {
		child := state
		child.parent = n
		child.depth = state.depth + 1
		for _, cid := range n.Children {
			c := w.Tree.MustGet(cid)
			if c.IsDisabled() {
				w.Counters.Skipped++
				continue
			}
			if w.traverse(c, child, v) == AbortTraversal {
				return AbortTraversal
			}
		}
	} else {
		w.Counters.Pruned++
	}

	state.prefix = false
	state.parent = inherited.parent
	if v.Visit(&state, n) == AbortTraversal {
		return AbortTraversal
	}
	return ContinueTraversal
}
