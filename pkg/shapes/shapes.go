// Package shapes provides the primitive leaves of a scene: cubes, spheres,
// cylinders and polyhedra in 3D, squares, circles and polygons in 2D. Each
// primitive produces its own geometry and a canonical description used as
// part of the cache key.
package shapes

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/scene"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var (
	_ scene.Shape = Cube{}
	_ scene.Shape = Sphere{}
	_ scene.Shape = Cylinder{}
	_ scene.Shape = Polyhedron{}
	_ scene.Shape = Square{}
	_ scene.Shape = Circle{}
	_ scene.Shape = Polygon{}
)

// ---------------------------------------------------------------------------
// Cube
// ---------------------------------------------------------------------------

// Cube is an axis-aligned box with its minimum corner at the origin, or
// centered on it.
type Cube struct {
	Size   v3.Vec
	Center bool
}

func (c Cube) String() string {
	return fmt.Sprintf("cube(size = [%g, %g, %g], center = %t)", c.Size.X, c.Size.Y, c.Size.Z, c.Center)
}

// CreateGeometry returns a closed 12-triangle mesh, or Empty when any
// dimension is not positive.
func (c Cube) CreateGeometry() (geom.Geometry, error) {
	s := c.Size
	if s.X <= 0 || s.Y <= 0 || s.Z <= 0 {
		return geom.Empty{}, nil
	}
	var o v3.Vec
	if c.Center {
		o = s.MulScalar(-0.5)
	}
	x0, y0, z0 := o.X, o.Y, o.Z
	x1, y1, z1 := o.X+s.X, o.Y+s.Y, o.Z+s.Z
	verts := []v3.Vec{
		{X: x0, Y: y0, Z: z0}, {X: x1, Y: y0, Z: z0}, {X: x1, Y: y1, Z: z0}, {X: x0, Y: y1, Z: z0},
		{X: x0, Y: y0, Z: z1}, {X: x1, Y: y0, Z: z1}, {X: x1, Y: y1, Z: z1}, {X: x0, Y: y1, Z: z1},
	}
	tris := [][3]uint32{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{2, 3, 7}, {2, 7, 6},
		{1, 2, 6}, {1, 6, 5},
		{3, 0, 4}, {3, 4, 7},
	}
	return geom.NewMesh(verts, tris), nil
}

// ---------------------------------------------------------------------------
// Sphere
// ---------------------------------------------------------------------------

// Sphere is a faceted sphere centered on the origin.
type Sphere struct {
	R         float64
	Fragments int
}

func (s Sphere) String() string {
	return fmt.Sprintf("sphere(r = %g, fragments = %d)", s.R, s.fragments())
}

func (s Sphere) fragments() int {
	if s.Fragments >= 3 {
		return s.Fragments
	}
	return Fragments(s.R, 0, DefaultFs, DefaultFa)
}

// CreateGeometry returns a latitude/longitude mesh with rings placed
// between the poles so the sphere has flat caps.
func (s Sphere) CreateGeometry() (geom.Geometry, error) {
	if s.R <= 0 {
		return geom.Empty{}, nil
	}
	n := s.fragments()
	rings := (n + 1) / 2
	if rings < 2 {
		rings = 2
	}

	m := &geom.Mesh{Conv: 1}
	for i := 0; i < rings; i++ {
		phi := math.Pi * (float64(i) + 0.5) / float64(rings)
		m.Vertices = append(m.Vertices, ring(s.R*math.Sin(phi), s.R*math.Cos(phi), n)...)
	}
	idx := func(r, j int) uint32 { return uint32(r*n + j%n) }

	// Top cap faces +Z, bottom cap faces -Z.
	for j := 1; j < n-1; j++ {
		m.Triangles = append(m.Triangles, [3]uint32{idx(0, 0), idx(0, j), idx(0, j+1)})
		m.Triangles = append(m.Triangles, [3]uint32{idx(rings-1, 0), idx(rings-1, j+1), idx(rings-1, j)})
	}
	for i := 0; i < rings-1; i++ {
		m.Triangles = appendBand(m.Triangles, idx, i, i+1, n)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Cylinder
// ---------------------------------------------------------------------------

// Cylinder is a frustum along Z with bottom radius R1 and top radius R2.
// A zero radius makes a cone.
type Cylinder struct {
	H, R1, R2 float64
	Fragments int
	Center    bool
}

func (c Cylinder) String() string {
	return fmt.Sprintf("cylinder(h = %g, r1 = %g, r2 = %g, center = %t, fragments = %d)",
		c.H, c.R1, c.R2, c.Center, c.fragments())
}

func (c Cylinder) fragments() int {
	if c.Fragments >= 3 {
		return c.Fragments
	}
	return Fragments(math.Max(c.R1, c.R2), 0, DefaultFs, DefaultFa)
}

// CreateGeometry returns a closed mesh, or Empty for degenerate parameters.
func (c Cylinder) CreateGeometry() (geom.Geometry, error) {
	if c.H <= 0 || c.R1 < 0 || c.R2 < 0 || (c.R1 <= 0 && c.R2 <= 0) {
		return geom.Empty{}, nil
	}
	n := c.fragments()
	z0, z1 := 0.0, c.H
	if c.Center {
		z0, z1 = -c.H/2, c.H/2
	}

	m := &geom.Mesh{Conv: 1}
	switch {
	case c.R2 <= 0:
		// Cone with apex on top.
		m.Vertices = append(ring(c.R1, z0, n), v3.Vec{Z: z1})
		apex := uint32(n)
		for j := 0; j < n; j++ {
			m.Triangles = append(m.Triangles, [3]uint32{apex, uint32(j), uint32((j + 1) % n)})
		}
		for j := 1; j < n-1; j++ {
			m.Triangles = append(m.Triangles, [3]uint32{0, uint32(j + 1), uint32(j)})
		}
	case c.R1 <= 0:
		// Cone with apex at the bottom.
		m.Vertices = append(ring(c.R2, z1, n), v3.Vec{Z: z0})
		apex := uint32(n)
		for j := 0; j < n; j++ {
			m.Triangles = append(m.Triangles, [3]uint32{uint32(j), apex, uint32((j + 1) % n)})
		}
		for j := 1; j < n-1; j++ {
			m.Triangles = append(m.Triangles, [3]uint32{0, uint32(j), uint32(j + 1)})
		}
	default:
		m.Vertices = append(ring(c.R2, z1, n), ring(c.R1, z0, n)...)
		idx := func(r, j int) uint32 { return uint32(r*n + j%n) }
		for j := 1; j < n-1; j++ {
			m.Triangles = append(m.Triangles, [3]uint32{idx(0, 0), idx(0, j), idx(0, j+1)})
			m.Triangles = append(m.Triangles, [3]uint32{idx(1, 0), idx(1, j+1), idx(1, j)})
		}
		m.Triangles = appendBand(m.Triangles, idx, 0, 1, n)
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Polyhedron
// ---------------------------------------------------------------------------

// Polyhedron is an explicit solid. Faces list point indices counter-clockwise
// when seen from outside and are fan-triangulated.
type Polyhedron struct {
	Points []v3.Vec
	Faces  [][]int
}

func (p Polyhedron) String() string {
	var sb strings.Builder
	sb.WriteString("polyhedron(points = [")
	for i, v := range p.Points {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "[%g, %g, %g]", v.X, v.Y, v.Z)
	}
	sb.WriteString("], faces = [")
	for i, f := range p.Faces {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%v", f)
	}
	sb.WriteString("])")
	return sb.String()
}

// CreateGeometry validates face indices and triangulates the faces.
func (p Polyhedron) CreateGeometry() (geom.Geometry, error) {
	m := &geom.Mesh{Vertices: append([]v3.Vec(nil), p.Points...), Conv: 1}
	for fi, f := range p.Faces {
		if len(f) < 3 {
			return nil, fmt.Errorf("polyhedron: face %d has %d points", fi, len(f))
		}
		for _, i := range f {
			if i < 0 || i >= len(p.Points) {
				return nil, fmt.Errorf("polyhedron: face %d references point %d of %d", fi, i, len(p.Points))
			}
		}
		for j := 1; j < len(f)-1; j++ {
			m.Triangles = append(m.Triangles, [3]uint32{uint32(f[0]), uint32(f[j]), uint32(f[j+1])})
		}
	}
	if m.IsEmpty() {
		return geom.Empty{}, nil
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// 2D
// ---------------------------------------------------------------------------

// Square is an axis-aligned rectangle.
type Square struct {
	Size   v2.Vec
	Center bool
}

func (s Square) String() string {
	return fmt.Sprintf("square(size = [%g, %g], center = %t)", s.Size.X, s.Size.Y, s.Center)
}

func (s Square) CreateGeometry() (geom.Geometry, error) {
	if s.Size.X <= 0 || s.Size.Y <= 0 {
		return geom.Empty{}, nil
	}
	var x0, y0 float64
	if s.Center {
		x0, y0 = -s.Size.X/2, -s.Size.Y/2
	}
	x1, y1 := x0+s.Size.X, y0+s.Size.Y
	p := geom.NewPolygon([]v2.Vec{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}})
	p.Sanitized = true
	return p, nil
}

// Circle is a regular polygon approximating a circle.
type Circle struct {
	R         float64
	Fragments int
}

func (c Circle) String() string {
	return fmt.Sprintf("circle(r = %g, fragments = %d)", c.R, c.fragments())
}

func (c Circle) fragments() int {
	if c.Fragments >= 3 {
		return c.Fragments
	}
	return Fragments(c.R, 0, DefaultFs, DefaultFa)
}

func (c Circle) CreateGeometry() (geom.Geometry, error) {
	if c.R <= 0 {
		return geom.Empty{}, nil
	}
	n := c.fragments()
	pts := make([]v2.Vec, n)
	for i := range pts {
		s, co := math.Sincos(2 * math.Pi * float64(i) / float64(n))
		pts[i] = v2.Vec{X: c.R * co, Y: c.R * s}
	}
	p := geom.NewPolygon(pts)
	p.Sanitized = true
	return p, nil
}

// Polygon is an arbitrary simple loop. Its output is unsanitized; the
// evaluator sanitizes it through the backend.
type Polygon struct {
	Points []v2.Vec
}

func (p Polygon) String() string {
	var sb strings.Builder
	sb.WriteString("polygon(points = [")
	for i, v := range p.Points {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "[%g, %g]", v.X, v.Y)
	}
	sb.WriteString("])")
	return sb.String()
}

func (p Polygon) CreateGeometry() (geom.Geometry, error) {
	if len(p.Points) < 3 {
		return geom.Empty{}, nil
	}
	return geom.NewPolygon(append([]v2.Vec(nil), p.Points...)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ring returns n points on a horizontal circle of radius r at height z,
// counter-clockwise seen from +Z.
func ring(r, z float64, n int) []v3.Vec {
	pts := make([]v3.Vec, n)
	for j := range pts {
		s, c := math.Sincos(2 * math.Pi * float64(j) / float64(n))
		pts[j] = v3.Vec{X: r * c, Y: r * s, Z: z}
	}
	return pts
}

// appendBand stitches the quads between an upper and a lower ring.
func appendBand(tris [][3]uint32, idx func(r, j int) uint32, upper, lower, n int) [][3]uint32 {
	for j := 0; j < n; j++ {
		a, b := idx(upper, j), idx(upper, j+1)
		c, d := idx(lower, j+1), idx(lower, j)
		tris = append(tris, [3]uint32{a, d, c}, [3]uint32{a, c, b})
	}
	return tris
}
