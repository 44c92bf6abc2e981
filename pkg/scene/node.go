package scene

import (
	"fmt"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
)

// NodeID is a handle into a Tree. It is unique within its tree and never
// reused, so it can key per-node bookkeeping during traversal.
type NodeID int

// NoNode is the invalid handle.
const NoNode NodeID = -1

// Kind enumerates the types of nodes in a scene tree.
type Kind int

const (
	KindGroup     Kind = iota // implicit union of children
	KindLeaf                  // primitive producing geometry itself
	KindTransform             // affine transform of children
	KindColor                 // color applied to children
	KindCsg                   // CSG operator, see CsgData.Op
	KindRender                // force full evaluation of children
	KindList                  // transparent container, children pass through
	KindRoot                  // top of the tree
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindLeaf:
		return "leaf"
	case KindTransform:
		return "transform"
	case KindColor:
		return "color"
	case KindCsg:
		return "csg"
	case KindRender:
		return "render"
	case KindList:
		return "list"
	case KindRoot:
		return "root"
	default:
		return "unknown"
	}
}

// SourceRef locates the source construct a node was instantiated from.
type SourceRef struct {
	File string
	Line int
	Col  int
}

func (s SourceRef) String() string {
	switch {
	case s.Line == 0:
		return s.File
	case s.File == "":
		return fmt.Sprintf("line %d", s.Line)
	default:
		return fmt.Sprintf("%s:%d", s.File, s.Line)
	}
}

// Modifiers are the debug flags attached to an instantiation.
type Modifiers struct {
	Highlight  bool // '#': evaluated normally and also shown on its own
	Background bool // '%': shown for reference, excluded from its parent
	Root       bool // '!': becomes the effective root of the tree
	Disabled   bool // '*': skipped entirely
}

// Instance is the instantiation record of a node: the name of what was
// instantiated, where, and with which modifiers. Clones share it.
type Instance struct {
	Name   string
	Source SourceRef
	Mods   Modifiers
}

// Node is the fundamental element of a scene tree. Nodes are immutable once
// added to a Tree; rewriting passes add new nodes instead.
type Node struct {
	ID       NodeID
	Kind     Kind
	Name     string // optional user-facing name
	Inst     *Instance
	Children []NodeID
	Data     NodeData
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData() // marker method restricting implementations to this package
}

// Shape is the leaf geometry contract: a primitive knows how to produce its
// own geometry and how to describe itself canonically.
type Shape interface {
	CreateGeometry() (geom.Geometry, error)
	// String is the canonical description of the shape and its parameters.
	// Equal strings must mean equal geometry.
	String() string
}

func (n *Node) mods() Modifiers {
	if n.Inst == nil {
		return Modifiers{}
	}
	return n.Inst.Mods
}

// IsHighlight reports whether the node carries the highlight modifier.
func (n *Node) IsHighlight() bool { return n.mods().Highlight }

// IsBackground reports whether the node carries the background modifier.
func (n *Node) IsBackground() bool { return n.mods().Background }

// IsRoot reports whether the node carries the root modifier.
func (n *Node) IsRoot() bool { return n.mods().Root }

// IsDisabled reports whether the node carries the disable modifier.
func (n *Node) IsDisabled() bool { return n.mods().Disabled }

// Source returns the instantiation location, if known.
func (n *Node) Source() SourceRef {
	if n.Inst == nil {
		return SourceRef{}
	}
	return n.Inst.Source
}

// Csg returns the payload of a KindCsg node.
func (n *Node) Csg() (CsgData, bool) {
	d, ok := n.Data.(CsgData)
	return d, ok
}

// IsCsgOp reports whether n is a KindCsg node with operator op.
func (n *Node) IsCsgOp(op kernel.Op) bool {
	d, ok := n.Data.(CsgData)
	return ok && n.Kind == KindCsg && d.Op == op
}

// Label is a short human-readable name: the shape name for leaves, the
// operator for CSG nodes, the kind otherwise.
func (n *Node) Label() string {
	switch d := n.Data.(type) {
	case LeafData:
		if d.Shape != nil {
			s := d.Shape.String()
			for i, r := range s {
				if r == '(' {
					return s[:i]
				}
			}
			return s
		}
	case CsgData:
		return d.Op.String()
	case TransformData:
		return "multmatrix"
	}
	return n.Kind.String()
}
