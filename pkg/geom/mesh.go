package geom

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// GridFine is the quantization step used when merging mesh vertices.
const GridFine = 1.0 / (1 << 20)

// Mesh is an indexed triangle mesh. Triangles wind counter-clockwise when
// seen from outside the solid.
type Mesh struct {
	Vertices  []v3.Vec
	Triangles [][3]uint32
	Conv      int
}

// NewMesh builds a mesh from vertices and index triples.
func NewMesh(vertices []v3.Vec, triangles [][3]uint32) *Mesh {
	return &Mesh{Vertices: vertices, Triangles: triangles, Conv: 1}
}

// MeshFromTriangles builds a mesh from unindexed triangles, merging
// coincident vertices.
func MeshFromTriangles(tris [][3]v3.Vec) *Mesh {
	m := &Mesh{Conv: 1}
	m.Vertices = make([]v3.Vec, 0, len(tris)*3)
	m.Triangles = make([][3]uint32, 0, len(tris))
	for _, t := range tris {
		base := uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, t[0], t[1], t[2])
		m.Triangles = append(m.Triangles, [3]uint32{base, base + 1, base + 2})
	}
	return m.Quantize(GridFine)
}

func (m *Mesh) Kind() Kind     { return KindMesh }
func (m *Mesh) Dimension() int { return 3 }
func (m *Mesh) IsEmpty() bool  { return len(m.Triangles) == 0 }
func (m *Mesh) Convexity() int { return m.Conv }
func (m *Mesh) geometry()      {}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Triangles) }

func (m *Mesh) BoundingBox() Box { return BoxOfPoints(m.Vertices) }

func (m *Mesh) Cost() int64 {
	return int64(len(m.Vertices))*24 + int64(len(m.Triangles))*12 + 64
}

// Corners returns the three corner positions of triangle i.
func (m *Mesh) Corners(i int) (a, b, c v3.Vec) {
	t := m.Triangles[i]
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}

// WithConvexity returns a shallow copy of m carrying convexity n.
func (m *Mesh) WithConvexity(n int) *Mesh {
	c := *m
	c.Conv = n
	return &c
}

// Transform returns m transformed by the affine matrix t. A mirroring
// transform flips triangle winding so faces keep pointing outwards.
func (m *Mesh) Transform(t Mat4) *Mesh {
	out := &Mesh{
		Vertices:  make([]v3.Vec, len(m.Vertices)),
		Triangles: make([][3]uint32, len(m.Triangles)),
		Conv:      m.Conv,
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = Apply(t, v)
	}
	flip := Det3(t) < 0
	for i, tri := range m.Triangles {
		if flip {
			tri[1], tri[2] = tri[2], tri[1]
		}
		out.Triangles[i] = tri
	}
	return out
}

// Concat returns a mesh holding the triangles of m followed by those of
// others. Vertices are not merged; see Quantize.
func (m *Mesh) Concat(others ...*Mesh) *Mesh {
	nv, nt := len(m.Vertices), len(m.Triangles)
	for _, o := range others {
		nv += len(o.Vertices)
		nt += len(o.Triangles)
	}
	out := &Mesh{
		Vertices:  make([]v3.Vec, 0, nv),
		Triangles: make([][3]uint32, 0, nt),
		Conv:      m.Conv,
	}
	for _, src := range append([]*Mesh{m}, others...) {
		base := uint32(len(out.Vertices))
		out.Vertices = append(out.Vertices, src.Vertices...)
		for _, t := range src.Triangles {
			out.Triangles = append(out.Triangles, [3]uint32{t[0] + base, t[1] + base, t[2] + base})
		}
		if src.Conv > out.Conv {
			out.Conv = src.Conv
		}
	}
	return out
}

// Quantize snaps vertices to a grid of the given step, merges vertices that
// land on the same grid point and drops triangles that collapse.
func (m *Mesh) Quantize(step float64) *Mesh {
	type key [3]int64
	index := make(map[key]uint32, len(m.Vertices))
	remap := make([]uint32, len(m.Vertices))
	out := &Mesh{Conv: m.Conv}
	for i, v := range m.Vertices {
		k := key{
			int64(math.Round(v.X / step)),
			int64(math.Round(v.Y / step)),
			int64(math.Round(v.Z / step)),
		}
		idx, ok := index[k]
		if !ok {
			idx = uint32(len(out.Vertices))
			index[k] = idx
			out.Vertices = append(out.Vertices, v3.Vec{
				X: float64(k[0]) * step,
				Y: float64(k[1]) * step,
				Z: float64(k[2]) * step,
			})
		}
		remap[i] = idx
	}
	out.Triangles = make([][3]uint32, 0, len(m.Triangles))
	for _, t := range m.Triangles {
		a, b, c := remap[t[0]], remap[t[1]], remap[t[2]]
		if a == b || b == c || a == c {
			continue
		}
		out.Triangles = append(out.Triangles, [3]uint32{a, b, c})
	}
	return out
}

// IsClosedManifold reports whether every directed edge of m is matched by
// exactly one opposite edge, i.e. the surface is closed and consistently
// oriented.
func (m *Mesh) IsClosedManifold() bool {
	if len(m.Triangles) == 0 {
		return false
	}
	type edge [2]uint32
	count := make(map[edge]int, len(m.Triangles)*3)
	for _, t := range m.Triangles {
		for j := 0; j < 3; j++ {
			count[edge{t[j], t[(j+1)%3]}]++
		}
	}
	for e, n := range count {
		if n != 1 || count[edge{e[1], e[0]}] != 1 {
			return false
		}
	}
	return true
}

// Volume returns the signed enclosed volume. Closed outward-facing meshes
// have positive volume.
func (m *Mesh) Volume() float64 {
	var v float64
	for i := range m.Triangles {
		a, b, c := m.Corners(i)
		v += a.Dot(b.Cross(c))
	}
	return v / 6
}
