package csgterm

import (
	"fmt"
	"log/slog"

	"github.com/chazu/solidcsg/pkg/evaluate"
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/scene"
	"github.com/chazu/solidcsg/pkg/traverse"
)

// Warning is a non-fatal problem found while building terms.
type Warning = evaluate.Warning

// Option configures a Builder.
type Option func(*Builder)

// WithEvaluator makes leaf terms carry evaluated geometry. Without it they
// only name the geometry by content, and bounding-box pruning is off.
func WithEvaluator(e *evaluate.Evaluator) Option { return func(b *Builder) { b.eval = e } }

func WithLogger(l *slog.Logger) Option { return func(b *Builder) { b.log = l } }

// Builder assembles term trees for subtrees of one scene tree.
type Builder struct {
	tree   *scene.Tree
	eval   *evaluate.Evaluator
	log    *slog.Logger
	walker traverse.Walker

	visited map[scene.NodeID][]*Term
	root    *Term

	highlights  []*Term
	backgrounds []*Term
	warnings    []Warning
}

// New returns a Builder over t.
func New(t *scene.Tree, opts ...Option) *Builder {
	b := &Builder{
		tree:    t,
		walker:  traverse.Walker{Tree: t, Counters: &traverse.Counters{}},
		visited: make(map[scene.NodeID][]*Term),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b
}

// Highlights returns the highlighted terms found by the last Build.
func (b *Builder) Highlights() []*Term { return b.highlights }

// Backgrounds returns the background terms found by the last Build. None
// of them is part of the returned term.
func (b *Builder) Backgrounds() []*Term { return b.backgrounds }

// Warnings returns every warning raised so far.
func (b *Builder) Warnings() []Warning { return b.warnings }

// Build returns the term for the subtree under id. It returns nil when the
// subtree as a whole is background.
func (b *Builder) Build(id scene.NodeID) *Term {
	b.highlights, b.backgrounds = nil, nil
	b.root = nil
	b.walker.Walk(id, traverse.VisitorFunc(b.visit))
	clear(b.visited)

	t := b.root
	if t == nil {
		return nil
	}
	if t.Highlight {
		b.highlights = append(b.highlights, t)
	}
	if t.Background {
		b.backgrounds = append(b.backgrounds, t)
		return nil
	}
	return t
}

func (b *Builder) visit(state *traverse.State, n *scene.Node) traverse.Response {
	if state.IsPrefix() {
		return b.enter(state, n)
	}

	var t *Term
	switch {
	case n.Kind == scene.KindList && state.Parent() != nil:
		kids := b.visited[n.ID]
		delete(b.visited, n.ID)
		for _, k := range kids {
			b.addToParent(state, k)
		}
		return traverse.ContinueTraversal
	case n.Kind == scene.KindLeaf:
		t = b.leaf(state, n)
	case opaque(n):
		b.setAside(state, n)
		t = b.leaf(state, n)
	case n.Kind == scene.KindCsg:
		d, _ := n.Csg()
		t = b.fold(state, n, d.Op)
	default:
		t = b.fold(state, n, kernel.OpUnion)
	}
	b.addToParent(state, t)
	return traverse.ContinueTraversal
}

func (b *Builder) enter(state *traverse.State, n *scene.Node) traverse.Response {
	if n.IsHighlight() {
		state.SetHighlight(true)
	}
	if n.IsBackground() {
		state.SetBackground(true)
	}
	switch d := n.Data.(type) {
	case scene.TransformData:
		if !geom.IsFinite(d.Matrix) {
			b.warnf(n, "transformation matrix contains NaN or Inf; removing subtree")
			return traverse.PruneTraversal
		}
		state.SetMatrix(geom.Mul(state.Matrix(), d.Matrix))
	case scene.ColorData:
		if !state.Color().IsSet() {
			state.SetColor(d.Color)
		}
	}
	delete(b.visited, n.ID)
	return traverse.ContinueTraversal
}

// opaque reports whether n becomes a single leaf term: renders and the
// operators a preview renderer cannot compose.
func opaque(n *scene.Node) bool {
	if n.Kind == scene.KindRender {
		return true
	}
	d, ok := n.Csg()
	if !ok {
		return false
	}
	switch d.Op {
	case kernel.OpUnion, kernel.OpIntersection, kernel.OpDifference:
		return false
	}
	return true
}

func (b *Builder) leaf(state *traverse.State, n *scene.Node) *Term {
	var g geom.Geometry
	if b.eval != nil {
		g = b.eval.EvaluateGeometry(n.ID, false)
	}
	t := newLeaf(n, b.tree.IDString(n.ID), state.Matrix(), state.Color(), g)
	t.Highlight = state.IsHighlight()
	t.Background = state.IsBackground()
	return t
}

// setAside moves the flagged terms under an opaque node to the side lists
// and drops the rest.
func (b *Builder) setAside(state *traverse.State, n *scene.Node) {
	for _, t := range b.visited[n.ID] {
		if t == nil {
			continue
		}
		if t.Background && !state.IsBackground() {
			b.backgrounds = append(b.backgrounds, t)
		}
		if t.Highlight && !state.IsHighlight() {
			b.highlights = append(b.highlights, t)
		}
	}
	delete(b.visited, n.ID)
}

// fold combines the terms of n's children left to right with op.
// Background operands leave the fold. Highlighted operands are kept or
// set aside depending on op: a difference takes the highlight of its
// minuend, an intersection or union is highlighted when both sides are.
// Otherwise a highlighted operand is set aside, and a union also leaves it
// out of the result.
func (b *Builder) fold(state *traverse.State, n *scene.Node, op kernel.Op) *Term {
	kids := b.visited[n.ID]
	delete(b.visited, n.ID)
	if len(kids) == 0 {
		return Empty()
	}

	var t1 *Term
	for _, t2 := range kids {
		if t2 == nil {
			continue
		}
		if t1 == nil {
			t1 = t2
			continue
		}

		var t *Term
		switch {
		case t2.Background:
			t = t1
			b.backgrounds = append(b.backgrounds, t2)
		case t1.Background:
			t = t2
			b.backgrounds = append(b.backgrounds, t1)
		default:
			t = combine(op, t1, t2)
		}

		switch op {
		case kernel.OpDifference:
			if t != t1 && t1.Highlight {
				t.Highlight = true
			} else if t != t2 && t2.Highlight {
				b.highlights = append(b.highlights, t2)
			}
		case kernel.OpIntersection:
			if !t.IsEmpty() && t != t1 && t != t2 && t1.Highlight && t2.Highlight {
				t.Highlight = true
			} else {
				if t != t1 && t1.Highlight {
					b.highlights = append(b.highlights, t1)
				}
				if t != t2 && t2.Highlight {
					b.highlights = append(b.highlights, t2)
				}
			}
		case kernel.OpUnion:
			switch {
			case t != t1 && t != t2 && t1.Highlight && t2.Highlight:
				t.Highlight = true
			case t != t1 && t1.Highlight:
				b.highlights = append(b.highlights, t1)
				t = t2
			case t != t2 && t2.Highlight:
				b.highlights = append(b.highlights, t2)
				t = t1
			}
		}
		t1 = t
	}

	if t1 != nil {
		if state.IsBackground() {
			t1.Background = true
		}
		if state.IsHighlight() {
			t1.Highlight = true
		}
	}
	return t1
}

func (b *Builder) addToParent(state *traverse.State, t *Term) {
	if p := state.Parent(); p != nil {
		b.visited[p.ID] = append(b.visited[p.ID], t)
		return
	}
	b.root = t
}

func (b *Builder) warnf(n *scene.Node, format string, args ...any) {
	w := Warning{Node: n.ID, Source: n.Source(), Message: fmt.Sprintf(format, args...)}
	b.warnings = append(b.warnings, w)
	b.log.Warn(w.Message,
		slog.Int("node", int(w.Node)),
		slog.String("source", w.Source.String()),
	)
}
