package flatten

import (
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/scene"
)

// pending is the transform and color collected from absorbed nodes, still
// to be applied below the current node.
type pending struct {
	matrix    geom.Mat4
	hasMatrix bool
	color     geom.Color
}

func (p pending) active() bool { return p.hasMatrix || p.color.IsSet() }

// then returns p followed, closer to the leaves, by m.
func (p pending) then(m geom.Mat4) pending {
	if p.hasMatrix {
		p.matrix = geom.Mul(p.matrix, m)
	} else {
		p.matrix = m
	}
	p.hasMatrix = true
	return p
}

// withColor sets c unless an outer color is already pending, which wins.
func (p pending) withColor(c geom.Color) pending {
	if !p.color.IsSet() {
		p.color = c
	}
	return p
}

// push moves the pending state p, and the transform and color nodes it can
// absorb, below the operators under id.
func (f *Flattener) push(id scene.NodeID, p pending) scene.NodeID {
	n := f.tree.MustGet(id)
	if n.IsDisabled() {
		return id
	}
	// A repeated subtree is kept whole; pending state stays above it.
	if f.isRepeated(n) {
		return f.wrap(id, p, n.Source())
	}

	if f.absorbable(n) {
		next := p
		switch d := n.Data.(type) {
		case scene.TransformData:
			next = p.then(d.Matrix)
		case scene.ColorData:
			next = p.withColor(d.Color)
		}
		f.stats.Absorbed++
		children := make([]scene.NodeID, 0, len(n.Children))
		for _, c := range n.Children {
			children = append(children, f.push(c, next))
		}
		if len(children) == 1 {
			return children[0]
		}
		return f.tree.Add(&scene.Node{
			Kind:     scene.KindGroup,
			Inst:     &scene.Instance{Name: "group", Source: n.Source()},
			Children: children,
			Data:     scene.GroupData{},
		})
	}

	if p.active() && !f.canPushThrough(n) {
		return f.wrap(f.pushChildren(n, pending{}), p, n.Source())
	}
	return f.pushChildren(n, p)
}

// absorbable reports whether n is a transform or color node whose effect
// can be carried down as pending state. It needs several children or a
// single child the state can move through. Singular and non-finite
// transforms stay in place.
func (f *Flattener) absorbable(n *scene.Node) bool {
	if !f.canInline(n) {
		return false
	}
	switch d := n.Data.(type) {
	case scene.TransformData:
		if n.Kind != scene.KindTransform || !geom.IsFinite(d.Matrix) || geom.Det3(d.Matrix) == 0 {
			return false
		}
	case scene.ColorData:
		if n.Kind != scene.KindColor {
			return false
		}
	default:
		return false
	}
	switch len(n.Children) {
	case 0:
		return false
	case 1:
		return f.canPushThrough(f.tree.MustGet(n.Children[0]))
	}
	return true
}

// pushChildren pushes p into every child of n. When a child changed, n is
// copied over the new children; when n cannot be copied, n is kept as is
// and p is applied above it.
func (f *Flattener) pushChildren(n *scene.Node, p pending) scene.NodeID {
	children := make([]scene.NodeID, len(n.Children))
	for i, c := range n.Children {
		children[i] = f.push(c, p)
	}
	if sameChildren(n.Children, children) {
		return n.ID
	}
	id, ok := f.tree.Clone(n, children)
	if !ok {
		return f.wrap(n.ID, p, n.Source())
	}
	f.stats.Cloned++
	return id
}

// wrap applies p above id: the transform directly, the color outside it.
func (f *Flattener) wrap(id scene.NodeID, p pending, src scene.SourceRef) scene.NodeID {
	if p.hasMatrix {
		f.stats.Wrapped++
		id = f.tree.Add(&scene.Node{
			Kind:     scene.KindTransform,
			Inst:     &scene.Instance{Name: "multmatrix", Source: src},
			Children: []scene.NodeID{id},
			Data:     scene.TransformData{Matrix: p.matrix},
		})
	}
	if p.color.IsSet() {
		f.stats.Wrapped++
		id = f.tree.Add(&scene.Node{
			Kind:     scene.KindColor,
			Inst:     &scene.Instance{Name: "color", Source: src},
			Children: []scene.NodeID{id},
			Data:     scene.ColorData{Color: p.color},
		})
	}
	return id
}
