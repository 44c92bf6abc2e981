// Package csgterm builds binary CSG terms from scene trees for preview
// rendering. Leaves stay unevaluated: a leaf term names its geometry by
// content and carries the transform and color to draw it with, leaving the
// actual boolean composition to the renderer.
package csgterm

import (
	"strconv"
	"strings"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/scene"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Kind enumerates term types.
type Kind int

const (
	KindEmpty Kind = iota
	KindLeaf
	KindUnion
	KindIntersection
	KindDifference
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindLeaf:
		return "leaf"
	case KindUnion:
		return "union"
	case KindIntersection:
		return "intersection"
	case KindDifference:
		return "difference"
	default:
		return "unknown"
	}
}

func kindOf(op kernel.Op) Kind {
	switch op {
	case kernel.OpIntersection:
		return KindIntersection
	case kernel.OpDifference:
		return KindDifference
	default:
		return KindUnion
	}
}

// Term is a node of a binary CSG term tree.
type Term struct {
	Kind        Kind
	Left, Right *Term // operators only

	// Leaf fields.
	Node     scene.NodeID
	Label    string // node label and handle, unique within the tree
	Tag      string // canonical identity of the subtree the leaf stands for
	Matrix   geom.Mat4
	Color    geom.Color
	Geometry geom.Geometry // nil unless the builder evaluates leaves

	Highlight  bool
	Background bool

	box     geom.Box
	bounded bool
}

// Empty returns a new empty-set term.
func Empty() *Term {
	return &Term{Kind: KindEmpty, Node: scene.NoNode, Label: "empty()", Matrix: geom.Identity()}
}

func newLeaf(n *scene.Node, tag string, m geom.Mat4, c geom.Color, g geom.Geometry) *Term {
	t := &Term{
		Kind:     KindLeaf,
		Node:     n.ID,
		Label:    n.Label() + "#" + strconv.Itoa(int(n.ID)),
		Tag:      tag,
		Matrix:   m,
		Color:    c,
		Geometry: g,
	}
	if g != nil && !g.IsEmpty() {
		t.box, t.bounded = transformBox(g.BoundingBox(), m), true
	}
	return t
}

// IsEmpty reports whether t is known to describe no volume.
func (t *Term) IsEmpty() bool {
	return t.Kind == KindEmpty || t.Kind == KindLeaf && t.Geometry != nil && t.Geometry.IsEmpty()
}

// BoundingBox returns the extent of t in world coordinates. It reports
// false when some leaf below t was not evaluated.
func (t *Term) BoundingBox() (geom.Box, bool) {
	return t.box, t.bounded
}

// Leaves returns the leaf terms of t, left to right.
func (t *Term) Leaves() []*Term {
	var out []*Term
	var walk func(*Term)
	walk = func(t *Term) {
		switch t.Kind {
		case KindLeaf:
			out = append(out, t)
		case KindUnion, KindIntersection, KindDifference:
			walk(t.Left)
			walk(t.Right)
		}
	}
	walk(t)
	return out
}

// String renders t in infix form: + for union, * for intersection, - for
// difference.
func (t *Term) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *Term) write(sb *strings.Builder) {
	var op string
	switch t.Kind {
	case KindUnion:
		op = " + "
	case KindIntersection:
		op = " * "
	case KindDifference:
		op = " - "
	default:
		sb.WriteString(t.Label)
		return
	}
	sb.WriteByte('(')
	t.Left.write(sb)
	sb.WriteString(op)
	t.Right.write(sb)
	sb.WriteByte(')')
}

// combine applies op to left and right. Empty operands follow the set
// algebra, and operands whose boxes cannot meet are pruned the way an
// intersection or difference would remove them. A nil operand stands for
// a node that produced nothing.
func combine(op kernel.Op, left, right *Term) *Term {
	switch {
	case left == nil && right == nil:
		return Empty()
	case left == nil:
		return right
	case right == nil:
		return left
	}
	if right.IsEmpty() {
		if op == kernel.OpUnion || op == kernel.OpDifference {
			return left
		}
		return right
	}
	if left.IsEmpty() {
		if op == kernel.OpUnion {
			return right
		}
		return left
	}

	lb, lok := left.BoundingBox()
	rb, rok := right.BoundingBox()
	if lok && rok && !geom.BoxesOverlap(lb, rb) {
		switch op {
		case kernel.OpIntersection:
			return Empty()
		case kernel.OpDifference:
			return left
		}
	}

	t := &Term{Kind: kindOf(op), Left: left, Right: right, Node: scene.NoNode}
	switch t.Kind {
	case KindUnion:
		if lok && rok {
			t.box, t.bounded = geom.BoxUnion(lb, rb), true
		}
	case KindIntersection:
		switch {
		case lok && rok:
			t.box = geom.Box{Min: lb.Min.Max(rb.Min), Max: lb.Max.Min(rb.Max)}
			t.bounded = true
		case lok:
			t.box, t.bounded = lb, true
		case rok:
			t.box, t.bounded = rb, true
		}
	case KindDifference:
		t.box, t.bounded = lb, lok
	}
	return t
}

func transformBox(b geom.Box, m geom.Mat4) geom.Box {
	corners := make([]v3.Vec, 0, 8)
	for i := 0; i < 8; i++ {
		p := b.Min
		if i&1 != 0 {
			p.X = b.Max.X
		}
		if i&2 != 0 {
			p.Y = b.Max.Y
		}
		if i&4 != 0 {
			p.Z = b.Max.Z
		}
		corners = append(corners, geom.Apply(m, p))
	}
	return geom.BoxOfPoints(corners)
}
