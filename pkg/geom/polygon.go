package geom

import (
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Outline is a closed planar loop. Positive outlines bound material and wind
// counter-clockwise; holes wind clockwise.
type Outline struct {
	Vertices []v2.Vec
	Positive bool
}

// Polygon2D is a set of outlines. Sanitized polygons have non-overlapping
// outlines with orientation matching their Positive flag.
type Polygon2D struct {
	Outlines  []Outline
	Sanitized bool
	Conv      int
}

// NewPolygon returns an unsanitized polygon with a single outline.
func NewPolygon(points []v2.Vec) *Polygon2D {
	return &Polygon2D{
		Outlines: []Outline{{Vertices: points, Positive: SignedArea(points) >= 0}},
		Conv:     1,
	}
}

func (p *Polygon2D) Kind() Kind     { return KindPolygon2D }
func (p *Polygon2D) Dimension() int { return 2 }
func (p *Polygon2D) Convexity() int { return p.Conv }
func (p *Polygon2D) geometry()      {}

func (p *Polygon2D) IsEmpty() bool {
	for _, o := range p.Outlines {
		if len(o.Vertices) >= 3 {
			return false
		}
	}
	return true
}

func (p *Polygon2D) BoundingBox() Box {
	b := EmptyBox()
	for _, o := range p.Outlines {
		for _, v := range o.Vertices {
			pt := v3.Vec{X: v.X, Y: v.Y}
			b.Min = b.Min.Min(pt)
			b.Max = b.Max.Max(pt)
		}
	}
	return b
}

func (p *Polygon2D) Cost() int64 {
	c := int64(64)
	for _, o := range p.Outlines {
		c += int64(len(o.Vertices))*16 + 32
	}
	return c
}

// Points returns every vertex of every outline.
func (p *Polygon2D) Points() []v2.Vec {
	var pts []v2.Vec
	for _, o := range p.Outlines {
		pts = append(pts, o.Vertices...)
	}
	return pts
}

// Area returns the signed area of the polygon set.
func (p *Polygon2D) Area() float64 {
	var a float64
	for _, o := range p.Outlines {
		a += SignedArea(o.Vertices)
	}
	return a
}

// WithConvexity returns a shallow copy of p carrying convexity n.
func (p *Polygon2D) WithConvexity(n int) *Polygon2D {
	c := *p
	c.Conv = n
	return &c
}

// Transform applies the planar affine a. Mirroring transforms reverse every
// outline to keep winding consistent; transforms with a non-positive
// determinant clear the sanitized flag.
func (p *Polygon2D) Transform(a Aff3) *Polygon2D {
	det := Det2(a)
	out := &Polygon2D{
		Outlines:  make([]Outline, len(p.Outlines)),
		Sanitized: p.Sanitized && det > 0,
		Conv:      p.Conv,
	}
	for i, o := range p.Outlines {
		vs := make([]v2.Vec, len(o.Vertices))
		for j, v := range o.Vertices {
			vs[j] = Apply2(a, v)
		}
		if det < 0 {
			reverse(vs)
		}
		out.Outlines[i] = Outline{Vertices: vs, Positive: o.Positive}
	}
	return out
}

// Concat returns a polygon holding the outlines of p followed by those of
// others. The result is sanitized only if every input is and the caller
// guarantees the inputs do not overlap.
func (p *Polygon2D) Concat(others ...*Polygon2D) *Polygon2D {
	out := &Polygon2D{Sanitized: p.Sanitized, Conv: p.Conv}
	out.Outlines = append(out.Outlines, p.Outlines...)
	for _, o := range others {
		out.Outlines = append(out.Outlines, o.Outlines...)
		out.Sanitized = out.Sanitized && o.Sanitized
		if o.Conv > out.Conv {
			out.Conv = o.Conv
		}
	}
	return out
}

// SignedArea returns the shoelace area of a closed loop; counter-clockwise
// loops are positive.
func SignedArea(pts []v2.Vec) float64 {
	var a float64
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}

func reverse(vs []v2.Vec) {
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
}
