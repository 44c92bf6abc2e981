package sdfx

import (
	"math"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Solid is the exact representation of this backend: a tree of signed
// distance functions.
type Solid struct {
	s     sdf.SDF3
	nodes int
}

var _ geom.Solid = (*Solid)(nil)

// NewSolid wraps an SDF.
func NewSolid(s sdf.SDF3) *Solid {
	return &Solid{s: s, nodes: 1}
}

// SDF returns the distance function, or nil for the empty solid.
func (s *Solid) SDF() sdf.SDF3 { return s.s }

func (s *Solid) IsEmpty() bool { return s.s == nil || geom.BoxIsEmpty(s.s.BoundingBox()) }

func (s *Solid) BoundingBox() geom.Box {
	if s.s == nil {
		return geom.EmptyBox()
	}
	return s.s.BoundingBox()
}

func (s *Solid) Cost() int64 { return int64(s.nodes) * 256 }

// Transform returns s mapped through m. A singular m collapses the solid to
// nothing.
func (s *Solid) Transform(m geom.Mat4) geom.Solid {
	if s.s == nil {
		return s
	}
	inv, ok := geom.Inverse(m)
	if !ok {
		return &Solid{}
	}
	return &Solid{s: newAffineSDF(s.s, m, inv), nodes: s.nodes + 1}
}

// ---------------------------------------------------------------------------
// Affine transform
// ---------------------------------------------------------------------------

// affineSDF evaluates its child in the transformed frame. Distances are
// scaled by a lower bound of the transform's stretch so they never
// overestimate.
type affineSDF struct {
	s     sdf.SDF3
	inv   geom.Mat4
	scale float64
	bb    sdf.Box3
}

func newAffineSDF(s sdf.SDF3, fwd, inv geom.Mat4) *affineSDF {
	var frob float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			frob += inv[4*r+c] * inv[4*r+c]
		}
	}
	bb := s.BoundingBox()
	corners := make([]v3.Vec, 0, 8)
	for i := 0; i < 8; i++ {
		p := bb.Min
		if i&1 != 0 {
			p.X = bb.Max.X
		}
		if i&2 != 0 {
			p.Y = bb.Max.Y
		}
		if i&4 != 0 {
			p.Z = bb.Max.Z
		}
		corners = append(corners, geom.Apply(fwd, p))
	}
	return &affineSDF{
		s:     s,
		inv:   inv,
		scale: 1 / math.Sqrt(frob),
		bb:    geom.BoxOfPoints(corners),
	}
}

func (a *affineSDF) Evaluate(p v3.Vec) float64 {
	return a.s.Evaluate(geom.Apply(a.inv, p)) * a.scale
}

func (a *affineSDF) BoundingBox() sdf.Box3 { return a.bb }

// ---------------------------------------------------------------------------
// Mesh distance
// ---------------------------------------------------------------------------

// rayDir is skewed off every axis so parity rays rarely graze edges of
// axis-aligned meshes.
var rayDir = v3.Vec{X: 1, Y: 0.0001234567, Z: 0.0007654321}

// meshSDF is the signed distance to a closed triangle mesh: the unsigned
// distance to the nearest triangle, negative when a ray from the point
// crosses the surface an odd number of times.
type meshSDF struct {
	m  *geom.Mesh
	bb sdf.Box3
}

func newMeshSDF(m *geom.Mesh) *meshSDF {
	return &meshSDF{m: m, bb: m.BoundingBox()}
}

func (ms *meshSDF) BoundingBox() sdf.Box3 { return ms.bb }

func (ms *meshSDF) Evaluate(p v3.Vec) float64 {
	d := math.Inf(1)
	crossings := 0
	for i := range ms.m.Triangles {
		a, b, c := ms.m.Corners(i)
		if dd := p.Sub(closestOnTriangle(p, a, b, c)).Length(); dd < d {
			d = dd
		}
		if rayHits(p, rayDir, a, b, c) {
			crossings++
		}
	}
	if crossings%2 == 1 {
		return -d
	}
	return d
}

// rayHits is the Möller-Trumbore test for a ray starting at o.
func rayHits(o, dir, a, b, c v3.Vec) bool {
	const eps = 1e-12
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	h := dir.Cross(e2)
	det := e1.Dot(h)
	if math.Abs(det) < eps {
		return false
	}
	f := 1 / det
	s := o.Sub(a)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return false
	}
	q := s.Cross(e1)
	v := f * dir.Dot(q)
	if v < 0 || u+v > 1 {
		return false
	}
	return f*e2.Dot(q) > eps
}

// closestOnTriangle returns the point of triangle abc nearest to p.
func closestOnTriangle(p, a, b, c v3.Vec) v3.Vec {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)
	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.MulScalar(d1 / (d1 - d3)))
	}
	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.MulScalar(d2 / (d2 - d6)))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).MulScalar(w))
	}
	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.MulScalar(v)).Add(ac.MulScalar(w))
}
