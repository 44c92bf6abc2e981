package scene

import (
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Builder provides a fluent API for building scene trees. Every method adds
// one node and returns its handle.
type Builder struct {
	tree *Tree
	src  SourceRef
}

// NewBuilder creates a builder over a fresh tree.
func NewBuilder() *Builder {
	return &Builder{tree: New()}
}

// Tree returns the tree under construction.
func (b *Builder) Tree() *Tree {
	return b.tree
}

// At sets the source location recorded on subsequently added nodes.
func (b *Builder) At(src SourceRef) *Builder {
	b.src = src
	return b
}

func (b *Builder) add(kind Kind, name string, data NodeData, children []NodeID) NodeID {
	return b.tree.Add(&Node{
		Kind:     kind,
		Inst:     &Instance{Name: name, Source: b.src},
		Children: append([]NodeID(nil), children...),
		Data:     data,
	})
}

// Leaf adds a primitive.
func (b *Builder) Leaf(s Shape) NodeID {
	n := &Node{Kind: KindLeaf, Data: LeafData{Shape: s}}
	return b.add(KindLeaf, n.Label(), n.Data, nil)
}

// Transform adds an affine transform of children.
func (b *Builder) Transform(m geom.Mat4, children ...NodeID) NodeID {
	return b.add(KindTransform, "multmatrix", TransformData{Matrix: m}, children)
}

// Translate adds a translation of children.
func (b *Builder) Translate(v v3.Vec, children ...NodeID) NodeID {
	return b.add(KindTransform, "translate", TransformData{Matrix: geom.Translate(v)}, children)
}

// Rotate adds a rotation of children by Euler angles in degrees.
func (b *Builder) Rotate(deg v3.Vec, children ...NodeID) NodeID {
	return b.add(KindTransform, "rotate", TransformData{Matrix: geom.RotateEuler(deg)}, children)
}

// Scale adds a scaling of children.
func (b *Builder) Scale(v v3.Vec, children ...NodeID) NodeID {
	return b.add(KindTransform, "scale", TransformData{Matrix: geom.Scale(v)}, children)
}

// Color adds a color node.
func (b *Builder) Color(c geom.Color, children ...NodeID) NodeID {
	return b.add(KindColor, "color", ColorData{Color: c}, children)
}

// Csg adds a CSG operator node with default parameters.
func (b *Builder) Csg(op kernel.Op, children ...NodeID) NodeID {
	return b.add(KindCsg, op.String(), CsgData{Op: op}, children)
}

// Union adds a union of children.
func (b *Builder) Union(children ...NodeID) NodeID {
	return b.Csg(kernel.OpUnion, children...)
}

// Intersection adds an intersection of children.
func (b *Builder) Intersection(children ...NodeID) NodeID {
	return b.Csg(kernel.OpIntersection, children...)
}

// Difference subtracts every later child from the first.
func (b *Builder) Difference(children ...NodeID) NodeID {
	return b.Csg(kernel.OpDifference, children...)
}

// Hull adds the convex hull of children.
func (b *Builder) Hull(children ...NodeID) NodeID {
	return b.Csg(kernel.OpHull, children...)
}

// Fill adds a hole-removing fill of planar children.
func (b *Builder) Fill(children ...NodeID) NodeID {
	return b.Csg(kernel.OpFill, children...)
}

// Minkowski adds the Minkowski sum of children.
func (b *Builder) Minkowski(convexity int, children ...NodeID) NodeID {
	return b.add(KindCsg, "minkowski", CsgData{Op: kernel.OpMinkowski, Convexity: convexity}, children)
}

// Resize adds a resize of the union of children.
func (b *Builder) Resize(size v3.Vec, auto [3]bool, convexity int, children ...NodeID) NodeID {
	return b.add(KindCsg, "resize", CsgData{
		Op:        kernel.OpResize,
		NewSize:   size,
		AutoSize:  auto,
		Convexity: convexity,
	}, children)
}

// Render adds a render node.
func (b *Builder) Render(convexity int, children ...NodeID) NodeID {
	return b.add(KindRender, "render", RenderData{Convexity: convexity}, children)
}

// Group adds a group node.
func (b *Builder) Group(children ...NodeID) NodeID {
	return b.add(KindGroup, "group", GroupData{}, children)
}

// List adds a transparent list node.
func (b *Builder) List(children ...NodeID) NodeID {
	return b.add(KindList, "list", ListData{}, children)
}

// Root adds the root node and makes it the tree's root.
func (b *Builder) Root(children ...NodeID) NodeID {
	id := b.add(KindRoot, "root", RootData{}, children)
	b.tree.Root = id
	return id
}

// Named gives node id a user-facing name.
func (b *Builder) Named(id NodeID, name string) NodeID {
	b.tree.MustGet(id).Name = name
	return id
}

func (b *Builder) modify(id NodeID, f func(*Modifiers)) NodeID {
	n := b.tree.MustGet(id)
	var m Modifiers
	if n.Inst != nil {
		m = n.Inst.Mods
	}
	f(&m)
	b.tree.SetModifiers(id, m)
	return id
}

// Highlight sets the highlight modifier on node id.
func (b *Builder) Highlight(id NodeID) NodeID {
	return b.modify(id, func(m *Modifiers) { m.Highlight = true })
}

// Background sets the background modifier on node id.
func (b *Builder) Background(id NodeID) NodeID {
	return b.modify(id, func(m *Modifiers) { m.Background = true })
}

// Disable sets the disable modifier on node id.
func (b *Builder) Disable(id NodeID) NodeID {
	return b.modify(id, func(m *Modifiers) { m.Disabled = true })
}

// ShowOnly sets the root modifier on node id.
func (b *Builder) ShowOnly(id NodeID) NodeID {
	return b.modify(id, func(m *Modifiers) { m.Root = true })
}
