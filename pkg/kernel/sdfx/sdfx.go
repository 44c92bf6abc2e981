// Package sdfx implements the kernel.Backend interface using the
// github.com/deadsy/sdfx SDF-based CAD library for 3D solids and
// github.com/ctessum/polyclip-go for planar booleans.
package sdfx

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Backend = (*Kernel)(nil)

// DefaultMeshCells controls marching cubes tessellation resolution along
// the longest axis.
const DefaultMeshCells = 200

// Kernel implements kernel.Backend using sdfx.
type Kernel struct {
	cells int
	log   *slog.Logger
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithMeshCells sets the marching cubes resolution.
func WithMeshCells(n int) Option {
	return func(k *Kernel) { k.cells = n }
}

// WithLogger sets the logger for backend warnings.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// New returns a new Kernel.
func New(opts ...Option) *Kernel {
	k := &Kernel{cells: DefaultMeshCells, log: slog.Default()}
	for _, o := range opts {
		o(k)
	}
	if k.cells <= 0 {
		k.cells = DefaultMeshCells
	}
	return k
}

// toSDF converts 3D geometry into a distance function.
func toSDF(g geom.Geometry) (sdf.SDF3, error) {
	switch v := g.(type) {
	case *geom.Mesh:
		return newMeshSDF(v), nil
	case *geom.Exact:
		s, ok := v.Solid.(*Solid)
		if !ok {
			return nil, fmt.Errorf("foreign solid %T", v.Solid)
		}
		if s.s == nil {
			return nil, fmt.Errorf("empty solid")
		}
		return s.s, nil
	default:
		return nil, fmt.Errorf("%s geometry is not a 3D solid", g.Kind())
	}
}

func dimensionOf(children []geom.Geometry) (int, error) {
	if len(children) == 0 {
		return 0, fmt.Errorf("no operands")
	}
	dim := children[0].Dimension()
	for _, c := range children[1:] {
		if c.Dimension() != dim {
			return 0, fmt.Errorf("mixed %dD and %dD operands", dim, c.Dimension())
		}
	}
	return dim, nil
}

// Combine folds children with op. 3D operands become an SDF tree; planar
// operands are clipped with polyclip.
func (k *Kernel) Combine(op kernel.Op, children []geom.Geometry) (geom.Geometry, error) {
	name := op.String()
	var live []geom.Geometry
	for i, c := range children {
		if !geom.IsEmpty(c) {
			live = append(live, c)
			continue
		}
		if op == kernel.OpIntersection || (op == kernel.OpDifference && i == 0) {
			return geom.Empty{}, nil
		}
	}
	if len(live) == 0 {
		return geom.Empty{}, nil
	}
	children = live

	dim, err := dimensionOf(children)
	if err != nil {
		return nil, &kernel.Error{Op: name, Err: err}
	}
	if dim == 2 {
		polys, err := polygons(children)
		if err != nil {
			return nil, &kernel.Error{Op: name, Err: err}
		}
		out, err := clip2D(op, polys)
		if err != nil {
			return nil, &kernel.Error{Op: name, Err: err}
		}
		return out, nil
	}

	sdfs := make([]sdf.SDF3, len(children))
	nodes := 1
	for i, c := range children {
		if sdfs[i], err = toSDF(c); err != nil {
			return nil, &kernel.Error{Op: name, Err: err}
		}
		if e, ok := c.(*geom.Exact); ok {
			nodes += e.Solid.(*Solid).nodes
		} else {
			nodes++
		}
	}

	var s sdf.SDF3
	switch op {
	case kernel.OpUnion:
		s = sdf.Union3D(sdfs...)
	case kernel.OpIntersection:
		s = sdfs[0]
		for _, o := range sdfs[1:] {
			s = sdf.Intersect3D(s, o)
		}
	case kernel.OpDifference:
		s = sdfs[0]
		if len(sdfs) > 1 {
			s = sdf.Difference3D(s, sdf.Union3D(sdfs[1:]...))
		}
	default:
		return nil, kernel.Errorf(name, "not a boolean operator")
	}
	return geom.NewExact(&Solid{s: s, nodes: nodes}), nil
}

// ToMesh converts a solid to a triangle mesh using marching cubes. Meshes
// come back unchanged.
func (k *Kernel) ToMesh(g geom.Geometry) (*geom.Mesh, error) {
	switch v := g.(type) {
	case geom.Empty:
		return &geom.Mesh{Conv: 1}, nil
	case *geom.Mesh:
		return v, nil
	case *geom.List:
		out := &geom.Mesh{Conv: 1}
		for _, it := range v.Flatten() {
			if geom.IsEmpty(it.Geometry) {
				continue
			}
			m, err := k.ToMesh(it.Geometry)
			if err != nil {
				return nil, err
			}
			out = out.Concat(m)
		}
		return out, nil
	case *geom.Exact:
		s, ok := v.Solid.(*Solid)
		if !ok {
			return nil, kernel.Errorf("tomesh", "foreign solid %T", v.Solid)
		}
		if s.IsEmpty() {
			return &geom.Mesh{Conv: v.Conv}, nil
		}
		renderer := render.NewMarchingCubesUniform(k.cells)
		triangles := render.ToTriangles(s.s, renderer)
		tris := make([][3]v3.Vec, 0, len(triangles))
		for _, tri := range triangles {
			tris = append(tris, [3]v3.Vec{tri[0], tri[1], tri[2]})
		}
		return geom.MeshFromTriangles(tris).WithConvexity(v.Conv), nil
	default:
		return nil, kernel.Errorf("tomesh", "%s geometry has no mesh", g.Kind())
	}
}

// Resize scales g about the origin so its bounding box matches size. Axes
// with a zero size keep their extent unless auto is set, in which case they
// take the scale of the largest requested axis.
func (k *Kernel) Resize(g geom.Geometry, size v3.Vec, auto [3]bool) (geom.Geometry, error) {
	if geom.IsEmpty(g) {
		return geom.Empty{}, nil
	}
	bb := g.BoundingBox()
	extent := bb.Max.Sub(bb.Min)
	want := [3]float64{size.X, size.Y, size.Z}
	have := [3]float64{extent.X, extent.Y, extent.Z}
	dim := g.Dimension()

	scale := [3]float64{1, 1, 1}
	maxIdx := 0
	for i := 0; i < dim; i++ {
		if want[i] == 0 {
			continue
		}
		if want[i] < 0 {
			return nil, kernel.Errorf("resize", "negative size %g on axis %d", want[i], i)
		}
		if have[i] == 0 {
			k.log.Warn("resize in direction normal to flat object is not implemented",
				slog.Int("axis", i))
			return g, nil
		}
		scale[i] = want[i] / have[i]
		if want[i] > want[maxIdx] {
			maxIdx = i
		}
	}
	autoscale := 1.0
	if want[maxIdx] != 0 {
		autoscale = want[maxIdx] / have[maxIdx]
	}
	for i := 0; i < dim; i++ {
		if auto[i] && want[i] == 0 {
			scale[i] = autoscale
		}
	}
	return geom.Transform(g, geom.Scale(v3.Vec{X: scale[0], Y: scale[1], Z: scale[2]})), nil
}

// Volume measures 3D geometry. Meshes are integrated exactly; other solids
// are sampled at the centers of a grid with the given step.
func Volume(g geom.Geometry, step float64) float64 {
	switch v := g.(type) {
	case *geom.Mesh:
		return v.Volume()
	case *geom.List:
		var total float64
		for _, it := range v.Flatten() {
			total += Volume(it.Geometry, step)
		}
		return total
	case *geom.Exact:
		s, ok := v.Solid.(*Solid)
		if !ok || s.IsEmpty() {
			return 0
		}
		bb := s.s.BoundingBox()
		n := [3]int{
			int(math.Ceil((bb.Max.X - bb.Min.X) / step)),
			int(math.Ceil((bb.Max.Y - bb.Min.Y) / step)),
			int(math.Ceil((bb.Max.Z - bb.Min.Z) / step)),
		}
		count := 0
		for i := 0; i < n[0]; i++ {
			for j := 0; j < n[1]; j++ {
				for l := 0; l < n[2]; l++ {
					p := bb.Min.Add(v3.Vec{
						X: (float64(i) + 0.5) * step,
						Y: (float64(j) + 0.5) * step,
						Z: (float64(l) + 0.5) * step,
					})
					if s.s.Evaluate(p) < 0 {
						count++
					}
				}
			}
		}
		return float64(count) * step * step * step
	default:
		return 0
	}
}
