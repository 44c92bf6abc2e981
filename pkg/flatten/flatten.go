// Package flatten rewrites scene trees into equivalent trees that are
// cheaper to evaluate. Two passes run in order: transforms and colors are
// pushed down toward the leaves, then nested associative operators are
// merged into their parents. Rewritten nodes are added to the same arena
// under new handles; nodes whose subtree did not change keep theirs.
package flatten

import (
	"log/slog"

	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/scene"
)

// Options selects the rewrites a Flattener performs.
type Options struct {
	// PushTransforms moves transform and color nodes below operators.
	PushTransforms bool
	// FlattenAssociative merges nested unions and intersections.
	FlattenAssociative bool
	// PushThroughHull lets pending transforms pass through hull nodes.
	PushThroughHull bool

	Logger *slog.Logger
}

// DefaultOptions enables both passes.
func DefaultOptions() Options {
	return Options{PushTransforms: true, FlattenAssociative: true}
}

// Option modifies Options.
type Option func(*Options)

func WithPushTransforms(on bool) Option     { return func(o *Options) { o.PushTransforms = on } }
func WithFlattenAssociative(on bool) Option { return func(o *Options) { o.FlattenAssociative = on } }
func WithPushThroughHull(on bool) Option    { return func(o *Options) { o.PushThroughHull = on } }
func WithLogger(l *slog.Logger) Option      { return func(o *Options) { o.Logger = l } }

// Stats counts the rewrites of one Flattener.
type Stats struct {
	Absorbed  int // transform and color nodes folded into pending state
	Wrapped   int // nodes added to apply pending state
	Inlined   int // operator children merged into their parent
	Collapsed int // single-child operators replaced by the child
	Cloned    int // nodes copied with rewritten children
}

// Flattener rewrites subtrees of one scene tree. Subtrees whose identity
// is in the repeated set are left intact so the evaluator cache can share
// their results.
type Flattener struct {
	tree     *scene.Tree
	repeated map[string]bool
	opts     Options
	log      *slog.Logger
	stats    Stats
}

// New returns a Flattener over t. A nil repeated set is computed from
// t.Root.
func New(t *scene.Tree, repeated map[string]bool, opts ...Option) *Flattener {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if repeated == nil {
		repeated = FindRepeated(t, t.Root)
	}
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Flattener{tree: t, repeated: repeated, opts: o, log: log}
}

// Stats returns the rewrite counts so far.
func (f *Flattener) Stats() Stats { return f.stats }

// Rewrite returns the handle of a subtree equivalent to root. It is root
// itself when nothing changed.
func (f *Flattener) Rewrite(root scene.NodeID) scene.NodeID {
	before := f.stats
	id := root
	if f.opts.PushTransforms {
		id = f.push(id, pending{})
	}
	if f.opts.FlattenAssociative {
		id = f.flatten(id)
	}
	f.log.Debug("flattened tree",
		slog.Int("root", int(root)),
		slog.Int("new_root", int(id)),
		slog.Int("absorbed", f.stats.Absorbed-before.Absorbed),
		slog.Int("wrapped", f.stats.Wrapped-before.Wrapped),
		slog.Int("inlined", f.stats.Inlined-before.Inlined),
		slog.Int("collapsed", f.stats.Collapsed-before.Collapsed))
	return id
}

// Flatten rewrites the whole of t and moves t.Root to the result.
func Flatten(t *scene.Tree, opts ...Option) scene.NodeID {
	if t.Root == scene.NoNode {
		return scene.NoNode
	}
	t.Root = New(t, nil, opts...).Rewrite(t.Root)
	return t.Root
}

// canInline reports whether n may be rewritten. Flagged nodes must stay
// where they are for their modifiers to mean the same thing.
func (f *Flattener) canInline(n *scene.Node) bool {
	if n.IsHighlight() || n.IsBackground() || n.IsRoot() || n.IsDisabled() {
		return false
	}
	return !f.isRepeated(n)
}

func (f *Flattener) isRepeated(n *scene.Node) bool {
	return f.repeated[f.tree.IDString(n.ID)]
}

// canPushThrough reports whether pending state can move below n onto its
// children.
func (f *Flattener) canPushThrough(n *scene.Node) bool {
	if !f.canInline(n) {
		return false
	}
	switch n.Kind {
	case scene.KindGroup, scene.KindList:
		return true
	case scene.KindCsg:
		d, _ := n.Csg()
		switch d.Op {
		case kernel.OpUnion, kernel.OpIntersection, kernel.OpDifference:
			return true
		case kernel.OpHull:
			return f.opts.PushThroughHull
		}
	}
	return false
}

func associative(op kernel.Op) bool {
	return op == kernel.OpUnion || op == kernel.OpIntersection
}

// flatten merges nested associative operators under id.
func (f *Flattener) flatten(id scene.NodeID) scene.NodeID {
	n := f.tree.MustGet(id)
	if !f.canInline(n) {
		return id
	}
	switch n.Kind {
	case scene.KindGroup, scene.KindList:
		return f.makeOp(n, f.flattenChildren(n, kernel.OpUnion, nil))

	case scene.KindTransform, scene.KindColor:
		return f.clone(n, f.flattenChildren(n, kernel.OpUnion, nil))

	case scene.KindCsg:
		d, _ := n.Csg()
		if associative(d.Op) {
			return f.makeOp(n, f.flattenChildren(n, d.Op, nil))
		}
	}

	children := make([]scene.NodeID, len(n.Children))
	for i, c := range n.Children {
		children[i] = f.flatten(c)
	}
	return f.clone(n, children)
}

// flattenChildren appends the operands of n to out, inlining children
// that apply op themselves. Under a union, groups and lists are unions.
func (f *Flattener) flattenChildren(n *scene.Node, op kernel.Op, out []scene.NodeID) []scene.NodeID {
	for _, cid := range n.Children {
		c := f.tree.MustGet(cid)
		implicit := op == kernel.OpUnion && (c.Kind == scene.KindGroup || c.Kind == scene.KindList)
		if f.canInline(c) && (implicit || c.IsCsgOp(op)) {
			f.stats.Inlined++
			out = f.flattenChildren(c, op, out)
			continue
		}
		out = append(out, f.flatten(cid))
	}
	return out
}

// makeOp returns the node applying n's operator to children. A single
// operand stands for the operator.
func (f *Flattener) makeOp(n *scene.Node, children []scene.NodeID) scene.NodeID {
	if len(children) == 1 && !f.tree.MustGet(children[0]).IsDisabled() {
		f.stats.Collapsed++
		return children[0]
	}
	return f.clone(n, children)
}

// clone returns n when children are its own, or a copy of n over
// children.
func (f *Flattener) clone(n *scene.Node, children []scene.NodeID) scene.NodeID {
	if sameChildren(n.Children, children) {
		return n.ID
	}
	id, ok := f.tree.Clone(n, children)
	if !ok {
		return n.ID
	}
	f.stats.Cloned++
	return id
}

func sameChildren(a, b []scene.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
