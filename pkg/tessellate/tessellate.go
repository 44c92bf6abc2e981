// Package tessellate turns evaluated geometry into flat render buffers.
// One buffer is produced per top-level object: a list result yields one
// buffer per item, anything else a single buffer.
package tessellate

import (
	"fmt"
	"strconv"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/scene"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Buffer holds one object ready for a GPU renderer. Triangles are flat
// shaded: every triangle has its own three vertices.
type Buffer struct {
	Vertices []float32 `json:"vertices"`        // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`         // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`         // [i0,i1,i2, ...] triangles
	Lines    []float32 `json:"lines,omitempty"` // planar outlines as segment end points
	PartName string    `json:"partName"`        // which scene node this came from
	Node     int       `json:"node"`
}

// VertexCount returns the number of vertices.
func (b *Buffer) VertexCount() int {
	return len(b.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (b *Buffer) TriangleCount() int {
	return len(b.Indices) / 3
}

// SegmentCount returns the number of outline segments.
func (b *Buffer) SegmentCount() int {
	return len(b.Lines) / 6
}

// IsEmpty returns true if the buffer has nothing to draw.
func (b *Buffer) IsEmpty() bool {
	return len(b.Vertices) == 0 && len(b.Lines) == 0
}

// Tessellate converts g into render buffers, using k to mesh exact solids.
// Part names come from t when given: the node's name, or its label and
// handle. Empty objects produce no buffer. The geometry is never mutated.
func Tessellate(t *scene.Tree, g geom.Geometry, k kernel.Backend) ([]*Buffer, error) {
	if geom.IsEmpty(g) {
		return nil, nil
	}

	items := []geom.Item{{Node: int(scene.NoNode), Geometry: g}}
	if l, ok := g.(*geom.List); ok {
		items = l.Flatten()
	}

	var out []*Buffer
	for _, it := range items {
		if geom.IsEmpty(it.Geometry) {
			continue
		}
		b, err := buffer(it.Geometry, k)
		if err != nil {
			return nil, fmt.Errorf("tessellate: node %d: %w", it.Node, err)
		}
		b.Node = it.Node
		b.PartName = partName(t, it.Node)
		out = append(out, b)
	}
	return out, nil
}

func buffer(g geom.Geometry, k kernel.Backend) (*Buffer, error) {
	if p, ok := g.(*geom.Polygon2D); ok {
		return outlines(p), nil
	}
	m, ok := g.(*geom.Mesh)
	if !ok {
		if k == nil {
			return nil, fmt.Errorf("%s geometry needs a backend to mesh", g.Kind())
		}
		var err error
		if m, err = k.ToMesh(g); err != nil {
			return nil, err
		}
	}
	return triangles(m), nil
}

// triangles flattens m with per-face normals.
func triangles(m *geom.Mesh) *Buffer {
	n := m.TriangleCount() * 3
	b := &Buffer{
		Vertices: make([]float32, 0, n*3),
		Normals:  make([]float32, 0, n*3),
		Indices:  make([]uint32, 0, n),
	}
	for i := range m.Triangles {
		a, c, d := m.Corners(i)
		nrm := faceNormal(a, c, d)
		for _, v := range [3]v3.Vec{a, c, d} {
			b.Indices = append(b.Indices, uint32(len(b.Vertices)/3))
			b.Vertices = append(b.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			b.Normals = append(b.Normals, float32(nrm.X), float32(nrm.Y), float32(nrm.Z))
		}
	}
	return b
}

func faceNormal(a, b, c v3.Vec) v3.Vec {
	n := b.Sub(a).Cross(c.Sub(a))
	if l := n.Length(); l > 0 {
		return n.DivScalar(l)
	}
	return v3.Vec{}
}

// outlines draws every loop of p as closed line segments in the z=0
// plane.
func outlines(p *geom.Polygon2D) *Buffer {
	b := &Buffer{}
	for _, o := range p.Outlines {
		n := len(o.Vertices)
		if n < 2 {
			continue
		}
		for i, v := range o.Vertices {
			w := o.Vertices[(i+1)%n]
			b.Lines = append(b.Lines,
				float32(v.X), float32(v.Y), 0,
				float32(w.X), float32(w.Y), 0)
		}
	}
	return b
}

// partName prefers the node's name, falling back to its label and handle.
func partName(t *scene.Tree, id int) string {
	if t == nil || id < 0 {
		return "object"
	}
	n := t.Get(scene.NodeID(id))
	if n == nil {
		return "node" + strconv.Itoa(id)
	}
	if n.Name != "" {
		return n.Name
	}
	return n.Label() + "#" + strconv.Itoa(id)
}
