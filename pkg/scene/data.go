package scene

import (
	"fmt"
	"strings"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Leaf
// ---------------------------------------------------------------------------

// LeafData carries the primitive that produces a leaf's geometry.
type LeafData struct {
	Shape Shape
}

func (LeafData) nodeData() {}

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

// TransformData is an affine transform applied to all children.
type TransformData struct {
	Matrix geom.Mat4
}

func (TransformData) nodeData() {}

// ---------------------------------------------------------------------------
// Color
// ---------------------------------------------------------------------------

// ColorData assigns a color to all children that have none yet.
type ColorData struct {
	Color geom.Color
}

func (ColorData) nodeData() {}

// ---------------------------------------------------------------------------
// CSG
// ---------------------------------------------------------------------------

// CsgData holds the operator of a KindCsg node and the parameters some
// operators take.
type CsgData struct {
	Op        kernel.Op
	Convexity int
	NewSize   v3.Vec  // resize only
	AutoSize  [3]bool // resize only
}

func (CsgData) nodeData() {}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

// RenderData forces full evaluation of its children.
type RenderData struct {
	Convexity int
}

func (RenderData) nodeData() {}

// GroupData is the payload of group nodes.
type GroupData struct{}

func (GroupData) nodeData() {}

// ListData is the payload of list nodes.
type ListData struct{}

func (ListData) nodeData() {}

// RootData is the payload of the root node.
type RootData struct{}

func (RootData) nodeData() {}

// ---------------------------------------------------------------------------
// Canonical descriptions
// ---------------------------------------------------------------------------

// describe returns the canonical parameter description of a node, excluding
// its children, handle and name.
func describe(n *Node) string {
	switch d := n.Data.(type) {
	case LeafData:
		if d.Shape == nil {
			return "leaf()"
		}
		return d.Shape.String()
	case TransformData:
		return "multmatrix(" + formatMatrix(d.Matrix) + ")"
	case ColorData:
		return "color(" + d.Color.String() + ")"
	case CsgData:
		switch d.Op {
		case kernel.OpResize:
			return fmt.Sprintf("resize(newsize = %s, auto = [%t, %t, %t], convexity = %d)",
				formatVec(d.NewSize), d.AutoSize[0], d.AutoSize[1], d.AutoSize[2], d.Convexity)
		case kernel.OpMinkowski, kernel.OpFill:
			return fmt.Sprintf("%s(convexity = %d)", d.Op, d.Convexity)
		default:
			return d.Op.String() + "()"
		}
	case RenderData:
		return fmt.Sprintf("render(convexity = %d)", d.Convexity)
	case GroupData:
		return "group()"
	case ListData:
		return "list()"
	case RootData:
		return "root()"
	default:
		return n.Kind.String() + "()"
	}
}

func formatVec(v v3.Vec) string {
	return fmt.Sprintf("[%g, %g, %g]", v.X, v.Y, v.Z)
}

func formatMatrix(m geom.Mat4) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for r := 0; r < 4; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "[%g, %g, %g, %g]", m[4*r], m[4*r+1], m[4*r+2], m[4*r+3])
	}
	sb.WriteByte(']')
	return sb.String()
}
