//go:build manifold

// Package manifold provides a CGo-based boolean backend binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh booleans, so its results are exact solids in the
// sense of the evaluator: they can be combined again without tessellation
// error.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
//
// Planar operations, Minkowski sums, fills and resizes are delegated to a
// fallback backend.
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface checks.
var _ kernel.Backend = (*Kernel)(nil)
var _ geom.Solid = (*solid)(nil)

// solid wraps a C ManifoldManifold pointer.
type solid struct {
	ptr *C.ManifoldManifold
}

// newSolid wraps a C ManifoldManifold pointer with a Go-side finalizer
// for automatic memory management.
func newSolid(ptr *C.ManifoldManifold) *solid {
	s := &solid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *solid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

func (s *solid) BoundingBox() geom.Box {
	if s.IsEmpty() {
		return geom.EmptyBox()
	}
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	return geom.Box{
		Min: v3.Vec{
			X: float64(C.manifold_box_min_x(bbox)),
			Y: float64(C.manifold_box_min_y(bbox)),
			Z: float64(C.manifold_box_min_z(bbox)),
		},
		Max: v3.Vec{
			X: float64(C.manifold_box_max_x(bbox)),
			Y: float64(C.manifold_box_max_y(bbox)),
			Z: float64(C.manifold_box_max_z(bbox)),
		},
	}
}

func (s *solid) IsEmpty() bool {
	return s.ptr == nil || C.manifold_is_empty(s.ptr) != 0
}

func (s *solid) Cost() int64 {
	return 128 + 96*int64(C.manifold_num_tri(s.ptr))
}

// Transform applies m. Manifold takes the affine part column by column.
func (s *solid) Transform(m geom.Mat4) geom.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_transform(alloc, s.ptr,
		C.double(m[0]), C.double(m[4]), C.double(m[8]),
		C.double(m[1]), C.double(m[5]), C.double(m[9]),
		C.double(m[2]), C.double(m[6]), C.double(m[10]),
		C.double(m[3]), C.double(m[7]), C.double(m[11]),
	)
	return newSolid(ptr)
}

// Kernel implements kernel.Backend using the Manifold C library.
type Kernel struct {
	fallback kernel.Backend
}

// New creates a manifold backend. Operations manifold does not provide are
// sent to fallback.
func New(fallback kernel.Backend) (kernel.Backend, error) {
	if fallback == nil {
		return nil, fmt.Errorf("manifold: fallback backend is required")
	}
	return &Kernel{fallback: fallback}, nil
}

// fromMesh imports a triangle mesh.
func fromMesh(m *geom.Mesh) (*solid, error) {
	if m.IsEmpty() {
		return nil, fmt.Errorf("empty mesh")
	}
	props := make([]float32, 0, 3*len(m.Vertices))
	for _, v := range m.Vertices {
		props = append(props, float32(v.X), float32(v.Y), float32(v.Z))
	}
	tris := make([]uint32, 0, 3*len(m.Triangles))
	for _, t := range m.Triangles {
		tris = append(tris, t[0], t[1], t[2])
	}
	meshGL := C.manifold_meshgl(C.manifold_alloc_meshgl(),
		(*C.float)(unsafe.Pointer(&props[0])), C.size_t(len(m.Vertices)), C.size_t(3),
		(*C.uint32_t)(unsafe.Pointer(&tris[0])), C.size_t(len(m.Triangles)),
	)
	defer C.manifold_delete_meshgl(meshGL)
	return newSolid(C.manifold_of_meshgl(C.manifold_alloc_manifold(), meshGL)), nil
}

func toSolid(g geom.Geometry) (*solid, error) {
	switch v := g.(type) {
	case *geom.Mesh:
		return fromMesh(v)
	case *geom.Exact:
		if s, ok := v.Solid.(*solid); ok {
			return s, nil
		}
		return nil, fmt.Errorf("foreign solid %T", v.Solid)
	default:
		return nil, fmt.Errorf("%s geometry is not a 3D solid", g.Kind())
	}
}

func is3D(children []geom.Geometry) bool {
	for _, c := range children {
		if c.Dimension() != 3 {
			return false
		}
	}
	return len(children) > 0
}

// Combine folds children with op.
func (k *Kernel) Combine(op kernel.Op, children []geom.Geometry) (geom.Geometry, error) {
	if !is3D(children) {
		return k.fallback.Combine(op, children)
	}
	acc, err := toSolid(children[0])
	if err != nil {
		return nil, &kernel.Error{Op: op.String(), Err: err}
	}
	for _, c := range children[1:] {
		s, err := toSolid(c)
		if err != nil {
			return nil, &kernel.Error{Op: op.String(), Err: err}
		}
		alloc := C.manifold_alloc_manifold()
		switch op {
		case kernel.OpUnion:
			acc = newSolid(C.manifold_union(alloc, acc.ptr, s.ptr))
		case kernel.OpIntersection:
			acc = newSolid(C.manifold_intersection(alloc, acc.ptr, s.ptr))
		case kernel.OpDifference:
			acc = newSolid(C.manifold_difference(alloc, acc.ptr, s.ptr))
		default:
			return nil, kernel.Errorf(op.String(), "not a boolean operator")
		}
	}
	return geom.NewExact(acc), nil
}

// Hull hulls 3D children with manifold and planar ones with the fallback.
func (k *Kernel) Hull(children []geom.Geometry) (geom.Geometry, error) {
	if !is3D(children) {
		return k.fallback.Hull(children)
	}
	u, err := k.Combine(kernel.OpUnion, children)
	if err != nil {
		return nil, err
	}
	s := u.(*geom.Exact).Solid.(*solid)
	return geom.NewExact(newSolid(C.manifold_hull(C.manifold_alloc_manifold(), s.ptr))), nil
}

func (k *Kernel) Minkowski(children []geom.Geometry) (geom.Geometry, error) {
	return k.fallback.Minkowski(k.meshes(children))
}

func (k *Kernel) Fill(children []geom.Geometry) (geom.Geometry, error) {
	return k.fallback.Fill(children)
}

func (k *Kernel) Resize(g geom.Geometry, size v3.Vec, auto [3]bool) (geom.Geometry, error) {
	return k.fallback.Resize(g, size, auto)
}

func (k *Kernel) Sanitize(p *geom.Polygon2D) (*geom.Polygon2D, error) {
	return k.fallback.Sanitize(p)
}

// meshes replaces manifold solids with their meshes so the fallback can
// read them.
func (k *Kernel) meshes(children []geom.Geometry) []geom.Geometry {
	out := make([]geom.Geometry, len(children))
	for i, c := range children {
		out[i] = c
		if e, ok := c.(*geom.Exact); ok {
			if _, mine := e.Solid.(*solid); mine {
				if m, err := k.ToMesh(c); err == nil {
					out[i] = m
				}
			}
		}
	}
	return out
}

// ToMesh extracts a triangle mesh from the solid using Manifold's MeshGL
// format. Only the position properties are read.
func (k *Kernel) ToMesh(g geom.Geometry) (*geom.Mesh, error) {
	e, ok := g.(*geom.Exact)
	if !ok {
		return k.fallback.ToMesh(g)
	}
	ms, ok := e.Solid.(*solid)
	if !ok {
		return k.fallback.ToMesh(g)
	}

	meshGL := C.manifold_get_meshgl(C.manifold_alloc_meshgl(), ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return &geom.Mesh{Conv: e.Conv}, nil
	}

	// MeshGL stores numProp floats per vertex; the first three are the
	// position.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))
	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)
	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	vertices := make([]v3.Vec, numVert)
	for i := range vertices {
		base := i * numProp
		vertices[i] = v3.Vec{
			X: float64(propData[base]),
			Y: float64(propData[base+1]),
			Z: float64(propData[base+2]),
		}
	}
	tris := make([][3]uint32, numTri)
	for i := range tris {
		tris[i] = [3]uint32{indices[3*i], indices[3*i+1], indices[3*i+2]}
	}
	return geom.NewMesh(vertices, tris).WithConvexity(e.Conv), nil
}
