package evaluate

import (
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/lazy"
	"github.com/chazu/solidcsg/pkg/scene"
)

// compute builds the outcome of n from the collected results of its
// children.
func (e *Evaluator) compute(n *scene.Node, f *frame) outcome {
	key := e.tree.IDString(n.ID)
	out := outcome{side: f.side, cacheable: !f.tainted}
	wrap := func(g geom.Geometry, ok bool) {
		out.g = lazy.New(g, key, n.Source())
		out.cacheable = out.cacheable && ok
	}
	// keep retains the box set of a union result.
	keep := func(u *lazy.Geometry, ok bool) {
		out.g = u
		out.cacheable = out.cacheable && ok
	}

	if n.Kind == scene.KindLeaf {
		out.hl = n.IsHighlight()
		wrap(e.leaf(n))
		return out
	}

	kids := e.operands(f.children)

	switch n.Kind {
	case scene.KindList:
		l := &geom.List{}
		out.items = make([]child, 0, len(kids))
		for _, c := range kids {
			c.hl = c.hl || n.IsHighlight()
			out.items = append(out.items, c)
			l.Items = append(l.Items, geom.Item{Node: int(c.node.ID), Geometry: c.g.Geometry()})
		}
		out.hl = n.IsHighlight()
		wrap(l, true)

	case scene.KindRoot:
		out.hl, kids = highlighted(kernel.OpUnion, n, kids, &out.side)
		if !e.opts.LazyUnion {
			keep(e.union(n, kids))
			break
		}
		l := &geom.List{}
		for _, c := range kids {
			if !c.g.IsEmpty() {
				l.Items = append(l.Items, geom.Item{Node: int(c.node.ID), Geometry: c.g.Geometry()})
			}
		}
		wrap(l, true)

	case scene.KindTransform:
		d := n.Data.(scene.TransformData)
		out.hl, kids = highlighted(kernel.OpUnion, n, kids, &out.side)
		u, ok := e.union(n, kids)
		g := geom.Transform(u.Geometry(), d.Matrix)
		if p, isPoly := g.(*geom.Polygon2D); isPoly && !p.Sanitized && !p.IsEmpty() {
			var sok bool
			g, sok = e.sanitize(n, p)
			ok = ok && sok
		}
		out.side = out.side.transform(d.Matrix)
		wrap(g, ok)

	case scene.KindRender:
		d, _ := n.Data.(scene.RenderData)
		out.hl, kids = highlighted(kernel.OpUnion, n, kids, &out.side)
		u, ok := e.union(n, kids)
		wrap(withConvexity(u.Geometry(), d.Convexity), ok)

	case scene.KindCsg:
		d := n.Data.(scene.CsgData)
		out.hl, kids = highlighted(d.Op, n, kids, &out.side)
		if d.Op == kernel.OpUnion {
			keep(e.union(n, kids))
			break
		}
		wrap(e.csg(n, d, kids))

	default:
		// Groups, colors and anything unknown are implicit unions.
		out.hl, kids = highlighted(kernel.OpUnion, n, kids, &out.side)
		keep(e.union(n, kids))
	}
	return out
}

// operands applies the dimension check: the first non-empty child fixes
// the dimension and later children of the other dimension are dropped.
func (e *Evaluator) operands(children []child) []child {
	dim := 0
	kids := make([]child, 0, len(children))
	for _, c := range children {
		if !c.g.IsEmpty() {
			d := c.g.Geometry().Dimension()
			switch {
			case dim == 0:
				dim = d
			case d != dim:
				e.warnf(c.node, "Mixing 2D and 3D objects is not supported")
				continue
			}
		}
		kids = append(kids, c)
	}
	return kids
}

// highlighted reports whether the whole result of n is highlighted and
// returns the operands that take part in the result. A difference is
// highlighted when its first operand is, an intersection or union when
// every operand is. Otherwise highlighted operands are set aside in s;
// a union also leaves them out of its result.
func highlighted(op kernel.Op, n *scene.Node, kids []child, s *side) (bool, []child) {
	if n.IsHighlight() {
		return true, kids
	}
	switch op {
	case kernel.OpUnion, kernel.OpIntersection, kernel.OpDifference:
	default:
		return false, kids
	}
	var marked, rest []child
	for _, c := range kids {
		if c.hl {
			marked = append(marked, c)
		} else {
			rest = append(rest, c)
		}
	}
	if len(marked) == 0 {
		return false, kids
	}
	if op == kernel.OpDifference {
		if kids[0].hl {
			return true, kids
		}
	} else if len(rest) == 0 {
		return true, kids
	}
	for _, c := range marked {
		if !c.g.IsEmpty() {
			s.highlights = append(s.highlights, c.g.Geometry())
		}
	}
	if op == kernel.OpUnion {
		return false, rest
	}
	return false, kids
}

func (e *Evaluator) leaf(n *scene.Node) (geom.Geometry, bool) {
	d, _ := n.Data.(scene.LeafData)
	if d.Shape == nil {
		e.warnf(n, "leaf has no shape")
		return geom.Empty{}, true
	}
	e.stats.Leaves++
	g, ok := e.call(n, n.Label(), d.Shape.CreateGeometry)
	if !ok {
		return g, false
	}
	if p, isPoly := g.(*geom.Polygon2D); isPoly && !p.Sanitized && !p.IsEmpty() {
		return e.sanitize(n, p)
	}
	return g, true
}

func (e *Evaluator) sanitize(n *scene.Node, p *geom.Polygon2D) (geom.Geometry, bool) {
	return e.call(n, "sanitize", func() (geom.Geometry, error) {
		s, err := e.backend.Sanitize(p)
		if err != nil || s == nil {
			return nil, err
		}
		return s, nil
	})
}

// union folds kids with the deferred union.
func (e *Evaluator) union(n *scene.Node, kids []child) (*lazy.Geometry, bool) {
	items := make([]*lazy.Geometry, len(kids))
	for i, c := range kids {
		items[i] = c.g
	}
	var res *lazy.Geometry
	ok := e.guard(n, "union", func() error {
		var err error
		res, err = e.unioner.UnionAll(items)
		return err
	})
	if !ok {
		return lazy.New(geom.Empty{}, "", n.Source()), false
	}
	return res, true
}

func (e *Evaluator) csg(n *scene.Node, d scene.CsgData, kids []child) (geom.Geometry, bool) {
	switch d.Op {
	case kernel.OpIntersection, kernel.OpDifference:
		return e.combine(n, d.Op, kids)

	case kernel.OpMinkowski:
		operands := nonEmpty(kids)
		switch len(operands) {
		case 0:
			return geom.Empty{}, true
		case 1:
			return withConvexity(operands[0], d.Convexity), true
		}
		g, ok := e.call(n, "minkowski", func() (geom.Geometry, error) {
			return e.backend.Minkowski(operands)
		})
		return withConvexity(g, d.Convexity), ok

	case kernel.OpHull:
		operands := nonEmpty(kids)
		if len(operands) == 0 {
			return geom.Empty{}, true
		}
		return e.call(n, "hull", func() (geom.Geometry, error) {
			return e.backend.Hull(operands)
		})

	case kernel.OpFill:
		operands := nonEmpty(kids)
		if len(operands) == 0 {
			return geom.Empty{}, true
		}
		if operands[0].Dimension() == 3 {
			e.warnf(n, "fill() is only supported for 2D objects; using union")
			u, ok := e.union(n, kids)
			return u.Geometry(), ok
		}
		return e.call(n, "fill", func() (geom.Geometry, error) {
			return e.backend.Fill(operands)
		})

	case kernel.OpResize:
		u, ok := e.union(n, kids)
		if !ok || u.IsEmpty() {
			return geom.Empty{}, ok
		}
		g, ok := e.call(n, "resize", func() (geom.Geometry, error) {
			return e.backend.Resize(u.Geometry(), d.NewSize, d.AutoSize)
		})
		return withConvexity(g, d.Convexity), ok

	default:
		u, ok := e.union(n, kids)
		return u.Geometry(), ok
	}
}

// combine runs an intersection or difference. An empty first operand
// empties a difference; any empty operand empties an intersection.
func (e *Evaluator) combine(n *scene.Node, op kernel.Op, kids []child) (geom.Geometry, bool) {
	if len(kids) == 0 {
		return geom.Empty{}, true
	}
	operands := make([]geom.Geometry, 0, len(kids))
	for i, c := range kids {
		if c.g.IsEmpty() {
			if op == kernel.OpIntersection || i == 0 {
				return geom.Empty{}, true
			}
			continue
		}
		operands = append(operands, c.g.Geometry())
	}
	if len(operands) == 1 {
		return operands[0], true
	}
	return e.call(n, op.String(), func() (geom.Geometry, error) {
		return e.backend.Combine(op, operands)
	})
}

func nonEmpty(kids []child) []geom.Geometry {
	out := make([]geom.Geometry, 0, len(kids))
	for _, c := range kids {
		if !c.g.IsEmpty() {
			out = append(out, c.g.Geometry())
		}
	}
	return out
}

func withConvexity(g geom.Geometry, n int) geom.Geometry {
	if n <= 0 {
		return g
	}
	switch v := g.(type) {
	case *geom.Mesh:
		return v.WithConvexity(n)
	case *geom.Polygon2D:
		return v.WithConvexity(n)
	case *geom.Exact:
		return v.WithConvexity(n)
	}
	return g
}

// call runs one backend operation for n. Errors and panics are logged as
// warnings and yield empty geometry with ok false.
func (e *Evaluator) call(n *scene.Node, op string, fn func() (geom.Geometry, error)) (geom.Geometry, bool) {
	var g geom.Geometry
	ok := e.guard(n, op, func() error {
		var err error
		g, err = fn()
		return err
	})
	if !ok {
		return geom.Empty{}, false
	}
	return geom.OrEmpty(g), true
}

func (e *Evaluator) guard(n *scene.Node, op string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if a, fatal := r.(assertion); fatal {
				panic(a)
			}
			e.warnf(n, "%s failed: %v", op, r)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		e.warnf(n, "%s failed: %v", op, err)
		return false
	}
	return true
}
