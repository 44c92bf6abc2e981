// Package geom defines the geometry values produced by evaluation: empty
// geometry, planar polygon sets, triangle meshes, backend-owned exact solids
// and ordered lists of per-node results. Values are immutable once built;
// every transform returns a new value.
package geom

import "fmt"

// Kind enumerates the geometry representations.
type Kind int

const (
	KindEmpty     Kind = iota // no geometry
	KindPolygon2D             // planar outlines
	KindMesh                  // approximate triangle mesh
	KindExact                 // backend-owned exact solid
	KindList                  // ordered per-node results
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindPolygon2D:
		return "polygon2d"
	case KindMesh:
		return "mesh"
	case KindExact:
		return "exact"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Geometry is the closed set of evaluation results.
type Geometry interface {
	Kind() Kind
	// Dimension is 2 or 3, or 0 for empty geometry.
	Dimension() int
	IsEmpty() bool
	BoundingBox() Box
	// Cost is the approximate memory footprint in bytes, used by the cache.
	Cost() int64
	Convexity() int
	geometry() // marker restricting implementations to this package
}

// IsEmpty reports whether g is nil or empty.
func IsEmpty(g Geometry) bool {
	return g == nil || g.IsEmpty()
}

// OrEmpty returns g, or Empty when g is nil.
func OrEmpty(g Geometry) Geometry {
	if g == nil {
		return Empty{}
	}
	return g
}

// ---------------------------------------------------------------------------
// Empty
// ---------------------------------------------------------------------------

// Empty is the geometry of nothing. It is the identity for union.
type Empty struct{}

func (Empty) Kind() Kind       { return KindEmpty }
func (Empty) Dimension() int   { return 0 }
func (Empty) IsEmpty() bool    { return true }
func (Empty) BoundingBox() Box { return EmptyBox() }
func (Empty) Cost() int64      { return 0 }
func (Empty) Convexity() int   { return 1 }
func (Empty) geometry()        {}

// ---------------------------------------------------------------------------
// Exact
// ---------------------------------------------------------------------------

// Solid is an exact solid owned by a boolean backend.
type Solid interface {
	BoundingBox() Box
	IsEmpty() bool
	Cost() int64
	// Transform returns a new solid; the receiver is unchanged.
	Transform(m Mat4) Solid
}

// Exact wraps a backend solid.
type Exact struct {
	Solid Solid
	Conv  int
}

// NewExact wraps s.
func NewExact(s Solid) *Exact {
	return &Exact{Solid: s, Conv: 1}
}

func (e *Exact) Kind() Kind     { return KindExact }
func (e *Exact) Dimension() int { return 3 }
func (e *Exact) geometry()      {}

func (e *Exact) IsEmpty() bool {
	return e.Solid == nil || e.Solid.IsEmpty()
}

func (e *Exact) BoundingBox() Box {
	if e.Solid == nil {
		return EmptyBox()
	}
	return e.Solid.BoundingBox()
}

func (e *Exact) Cost() int64 {
	if e.Solid == nil {
		return 0
	}
	return e.Solid.Cost()
}

func (e *Exact) Convexity() int { return e.Conv }

// WithConvexity returns a copy of e carrying convexity n.
func (e *Exact) WithConvexity(n int) *Exact {
	c := *e
	c.Conv = n
	return &c
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

// Item pairs a geometry with the handle of the node that produced it.
type Item struct {
	Node     int
	Geometry Geometry
}

// List is an ordered collection of per-node results, produced when top-level
// objects are kept apart instead of being unioned.
type List struct {
	Items []Item
}

func (l *List) Kind() Kind { return KindList }
func (l *List) geometry()  {}

func (l *List) Dimension() int {
	for _, it := range l.Items {
		if !IsEmpty(it.Geometry) {
			return it.Geometry.Dimension()
		}
	}
	return 0
}

func (l *List) IsEmpty() bool {
	for _, it := range l.Items {
		if !IsEmpty(it.Geometry) {
			return false
		}
	}
	return true
}

func (l *List) BoundingBox() Box {
	b := EmptyBox()
	for _, it := range l.Items {
		if it.Geometry != nil {
			b = BoxUnion(b, it.Geometry.BoundingBox())
		}
	}
	return b
}

func (l *List) Cost() int64 {
	var c int64
	for _, it := range l.Items {
		if it.Geometry != nil {
			c += it.Geometry.Cost()
		}
	}
	return c
}

func (l *List) Convexity() int {
	c := 1
	for _, it := range l.Items {
		if it.Geometry != nil && it.Geometry.Convexity() > c {
			c = it.Geometry.Convexity()
		}
	}
	return c
}

// Flatten returns the items of l with nested lists expanded in order.
func (l *List) Flatten() []Item {
	var out []Item
	for _, it := range l.Items {
		if sub, ok := it.Geometry.(*List); ok {
			out = append(out, sub.Flatten()...)
			continue
		}
		out = append(out, it)
	}
	return out
}

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

// Transform returns g transformed by m. Planar geometry uses the XY affine
// slice of m; a polygon whose orientation is reversed or collapsed by the
// transform comes back unsanitized and must be sanitized again.
func Transform(g Geometry, m Mat4) Geometry {
	switch v := g.(type) {
	case nil:
		return Empty{}
	case Empty:
		return v
	case *Polygon2D:
		return v.Transform(Affine2D(m))
	case *Mesh:
		return v.Transform(m)
	case *Exact:
		if v.Solid == nil {
			return v
		}
		return &Exact{Solid: v.Solid.Transform(m), Conv: v.Conv}
	case *List:
		out := &List{Items: make([]Item, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = Item{Node: it.Node, Geometry: Transform(it.Geometry, m)}
		}
		return out
	default:
		panic(fmt.Sprintf("geom: unknown geometry %T", g))
	}
}
