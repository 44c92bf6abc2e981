package sdfx

import (
	"fmt"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	polyclip "github.com/ctessum/polyclip-go"
	v2 "github.com/deadsy/sdfx/vec/v2"
)

func polygons(children []geom.Geometry) ([]*geom.Polygon2D, error) {
	out := make([]*geom.Polygon2D, 0, len(children))
	for _, c := range children {
		p, ok := c.(*geom.Polygon2D)
		if !ok {
			return nil, fmt.Errorf("%s geometry is not planar", c.Kind())
		}
		out = append(out, p)
	}
	return out, nil
}

func toClip(p *geom.Polygon2D) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(p.Outlines))
	for _, o := range p.Outlines {
		if len(o.Vertices) < 3 {
			continue
		}
		c := make(polyclip.Contour, len(o.Vertices))
		for i, v := range o.Vertices {
			c[i] = polyclip.Point{X: v.X, Y: v.Y}
		}
		out = append(out, c)
	}
	return out
}

func clipOp(op kernel.Op) (polyclip.Op, error) {
	switch op {
	case kernel.OpUnion:
		return polyclip.UNION, nil
	case kernel.OpIntersection:
		return polyclip.INTERSECTION, nil
	case kernel.OpDifference:
		return polyclip.DIFFERENCE, nil
	default:
		return 0, fmt.Errorf("%s is not a planar boolean", op)
	}
}

// clip2D folds sanitized polygons left to right with op.
func clip2D(op kernel.Op, polys []*geom.Polygon2D) (*geom.Polygon2D, error) {
	cop, err := clipOp(op)
	if err != nil {
		return nil, err
	}
	acc := toClip(polys[0])
	conv := polys[0].Conv
	for _, p := range polys[1:] {
		acc = acc.Construct(cop, toClip(p))
		if p.Conv > conv {
			conv = p.Conv
		}
	}
	out := orient(acc)
	out.Conv = conv
	return out, nil
}

// orient builds a sanitized polygon from clipper output. An outline nested
// inside an odd number of others is a hole and winds clockwise; the rest
// wind counter-clockwise.
func orient(contours polyclip.Polygon) *geom.Polygon2D {
	loops := make([][]v2.Vec, 0, len(contours))
	for _, c := range contours {
		if len(c) < 3 {
			continue
		}
		vs := make([]v2.Vec, len(c))
		for i, p := range c {
			vs[i] = v2.Vec{X: p.X, Y: p.Y}
		}
		loops = append(loops, vs)
	}

	out := &geom.Polygon2D{Sanitized: true, Conv: 1}
	for i, vs := range loops {
		depth := 0
		for j, other := range loops {
			if i != j && pointInLoop(vs[0], other) {
				depth++
			}
		}
		positive := depth%2 == 0
		if (geom.SignedArea(vs) >= 0) != positive {
			for a, b := 0, len(vs)-1; a < b; a, b = a+1, b-1 {
				vs[a], vs[b] = vs[b], vs[a]
			}
		}
		out.Outlines = append(out.Outlines, geom.Outline{Vertices: vs, Positive: positive})
	}
	return out
}

// pointInLoop is the even-odd crossing test.
func pointInLoop(p v2.Vec, loop []v2.Vec) bool {
	in := false
	for i, j := 0, len(loop)-1; i < len(loop); j, i = i, i+1 {
		a, b := loop[i], loop[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

// Sanitize resolves overlapping outlines with the even-odd rule and fixes
// their orientation.
func (k *Kernel) Sanitize(p *geom.Polygon2D) (*geom.Polygon2D, error) {
	if p.Sanitized {
		return p, nil
	}
	var acc polyclip.Polygon
	for _, o := range p.Outlines {
		single := toClip(&geom.Polygon2D{Outlines: []geom.Outline{o}})
		if len(single) == 0 {
			continue
		}
		if acc == nil {
			acc = single
			continue
		}
		acc = acc.Construct(polyclip.XOR, single)
	}
	out := orient(acc)
	out.Conv = p.Conv
	return out, nil
}

// Fill removes every hole from the union of planar children.
func (k *Kernel) Fill(children []geom.Geometry) (geom.Geometry, error) {
	if len(children) == 0 {
		return geom.Empty{}, nil
	}
	polys, err := polygons(children)
	if err != nil {
		return nil, &kernel.Error{Op: "fill", Err: err}
	}
	merged, err := clip2D(kernel.OpUnion, polys)
	if err != nil {
		return nil, &kernel.Error{Op: "fill", Err: err}
	}
	var acc polyclip.Polygon
	for _, o := range merged.Outlines {
		if !o.Positive {
			continue
		}
		c := toClip(&geom.Polygon2D{Outlines: []geom.Outline{o}})
		if acc == nil {
			acc = c
			continue
		}
		acc = acc.Construct(polyclip.UNION, c)
	}
	out := orient(acc)
	out.Conv = merged.Conv
	return out, nil
}
