package sdfx

import (
	"fmt"
	"math"
	"sort"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Hull returns the convex hull of every child. Planar children are hulled
// over their outline points, solids over their mesh vertices.
func (k *Kernel) Hull(children []geom.Geometry) (geom.Geometry, error) {
	if len(children) == 0 {
		return geom.Empty{}, nil
	}
	dim, err := dimensionOf(children)
	if err != nil {
		return nil, &kernel.Error{Op: "hull", Err: err}
	}
	if dim == 2 {
		polys, err := polygons(children)
		if err != nil {
			return nil, &kernel.Error{Op: "hull", Err: err}
		}
		var pts []v2.Vec
		for _, p := range polys {
			pts = append(pts, p.Points()...)
		}
		return hull2D(pts), nil
	}

	var pts []v3.Vec
	for _, c := range children {
		m, err := k.ToMesh(c)
		if err != nil {
			return nil, err
		}
		pts = append(pts, m.Vertices...)
	}
	m, err := hull3D(pts)
	if err != nil {
		return nil, &kernel.Error{Op: "hull", Err: err}
	}
	return m, nil
}

// Minkowski returns the Minkowski sum of the children's convex hulls, which
// is exact for convex operands.
func (k *Kernel) Minkowski(children []geom.Geometry) (geom.Geometry, error) {
	switch len(children) {
	case 0:
		return geom.Empty{}, nil
	case 1:
		return children[0], nil
	}
	dim, err := dimensionOf(children)
	if err != nil {
		return nil, &kernel.Error{Op: "minkowski", Err: err}
	}

	if dim == 2 {
		polys, err := polygons(children)
		if err != nil {
			return nil, &kernel.Error{Op: "minkowski", Err: err}
		}
		acc := convex2D(polys[0].Points())
		for _, p := range polys[1:] {
			other := convex2D(p.Points())
			sums := make([]v2.Vec, 0, len(acc)*len(other))
			for _, a := range acc {
				for _, b := range other {
					sums = append(sums, a.Add(b))
				}
			}
			acc = convex2D(sums)
		}
		return hull2D(acc), nil
	}

	var acc []v3.Vec
	for i, c := range children {
		m, err := k.ToMesh(c)
		if err != nil {
			return nil, err
		}
		h, err := hull3D(m.Vertices)
		if err != nil {
			return nil, &kernel.Error{Op: "minkowski", Err: err}
		}
		if i == 0 {
			acc = h.Vertices
			continue
		}
		sums := make([]v3.Vec, 0, len(acc)*len(h.Vertices))
		for _, a := range acc {
			for _, b := range h.Vertices {
				sums = append(sums, a.Add(b))
			}
		}
		if acc, err = hullVertices(sums); err != nil {
			return nil, &kernel.Error{Op: "minkowski", Err: err}
		}
	}
	m, err := hull3D(acc)
	if err != nil {
		return nil, &kernel.Error{Op: "minkowski", Err: err}
	}
	return m, nil
}

func hullVertices(pts []v3.Vec) ([]v3.Vec, error) {
	m, err := hull3D(pts)
	if err != nil {
		return nil, err
	}
	return m.Vertices, nil
}

// hull2D returns the convex hull polygon of pts. Fewer than three
// non-collinear points give empty geometry.
func hull2D(pts []v2.Vec) geom.Geometry {
	hull := convex2D(pts)
	if len(hull) < 3 {
		return geom.Empty{}
	}
	return &geom.Polygon2D{
		Outlines:  []geom.Outline{{Vertices: hull, Positive: true}},
		Sanitized: true,
		Conv:      1,
	}
}

// convex2D is Andrew's monotone chain; the hull comes back counter-clockwise.
func convex2D(pts []v2.Vec) []v2.Vec {
	ps := append([]v2.Vec(nil), pts...)
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Y < ps[j].Y
	})
	cross := func(o, a, b v2.Vec) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}
	hull := make([]v2.Vec, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	if len(hull) > 0 {
		hull = hull[:len(hull)-1]
	}
	return hull
}

// hull3D is an incremental convex hull. Faces wind counter-clockwise seen
// from outside.
func hull3D(pts []v3.Vec) (*geom.Mesh, error) {
	if len(pts) < 4 {
		return nil, fmt.Errorf("need 4 points, have %d", len(pts))
	}
	bb := geom.BoxOfPoints(pts)
	eps := 1e-9 * math.Max(1, bb.Max.Sub(bb.Min).Length())

	// Initial tetrahedron from extreme, non-degenerate points.
	i0 := 0
	i1 := -1
	for i, p := range pts {
		if p.Sub(pts[i0]).Length() > eps {
			i1 = i
			break
		}
	}
	if i1 < 0 {
		return nil, fmt.Errorf("degenerate point set")
	}
	i2 := -1
	for i, p := range pts {
		if pts[i1].Sub(pts[i0]).Cross(p.Sub(pts[i0])).Length() > eps {
			i2 = i
			break
		}
	}
	if i2 < 0 {
		return nil, fmt.Errorf("collinear point set")
	}
	n := pts[i1].Sub(pts[i0]).Cross(pts[i2].Sub(pts[i0]))
	i3 := -1
	for i, p := range pts {
		if math.Abs(n.Dot(p.Sub(pts[i0]))) > eps*n.Length() {
			i3 = i
			break
		}
	}
	if i3 < 0 {
		return nil, fmt.Errorf("coplanar point set")
	}

	type face struct {
		v      [3]int
		normal v3.Vec
		off    float64
	}
	mk := func(a, b, c int) face {
		nn := pts[b].Sub(pts[a]).Cross(pts[c].Sub(pts[a]))
		nn = nn.MulScalar(1 / nn.Length())
		return face{v: [3]int{a, b, c}, normal: nn, off: nn.Dot(pts[a])}
	}
	if n.Dot(pts[i3].Sub(pts[i0])) > 0 {
		i1, i2 = i2, i1
	}
	faces := []face{mk(i0, i1, i2), mk(i0, i3, i1), mk(i1, i3, i2), mk(i2, i3, i0)}

	for pi, p := range pts {
		if pi == i0 || pi == i1 || pi == i2 || pi == i3 {
			continue
		}
		visible := make([]bool, len(faces))
		outside := false
		for fi, f := range faces {
			if f.normal.Dot(p)-f.off > eps {
				visible[fi] = true
				outside = true
			}
		}
		if !outside {
			continue
		}
		edges := make(map[[2]int]bool)
		for fi, f := range faces {
			if !visible[fi] {
				continue
			}
			for j := 0; j < 3; j++ {
				edges[[2]int{f.v[j], f.v[(j+1)%3]}] = true
			}
		}
		kept := faces[:0:0]
		for fi, f := range faces {
			if !visible[fi] {
				kept = append(kept, f)
			}
		}
		for fi, f := range faces {
			if !visible[fi] {
				continue
			}
			for j := 0; j < 3; j++ {
				a, b := f.v[j], f.v[(j+1)%3]
				if !edges[[2]int{b, a}] {
					kept = append(kept, mk(a, b, pi))
				}
			}
		}
		faces = kept
	}

	// Compact to the vertices actually on the hull.
	index := make(map[int]uint32)
	m := &geom.Mesh{Conv: 1}
	for _, f := range faces {
		var tri [3]uint32
		for j, vi := range f.v {
			idx, ok := index[vi]
			if !ok {
				idx = uint32(len(m.Vertices))
				index[vi] = idx
				m.Vertices = append(m.Vertices, pts[vi])
			}
			tri[j] = idx
		}
		m.Triangles = append(m.Triangles, tri)
	}
	return m, nil
}
