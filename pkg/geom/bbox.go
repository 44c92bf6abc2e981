package geom

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Box is an axis-aligned bounding box.
type Box = sdf.Box3

// EmptyBox returns the inverted box that acts as the identity for BoxUnion.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: v3.Vec{X: inf, Y: inf, Z: inf},
		Max: v3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// BoxIsEmpty reports whether b encloses no point.
func BoxIsEmpty(b Box) bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// BoxUnion returns the smallest box enclosing a and b.
func BoxUnion(a, b Box) Box {
	if BoxIsEmpty(a) {
		return b
	}
	if BoxIsEmpty(b) {
		return a
	}
	return Box{Min: a.Min.Min(b.Min), Max: a.Max.Max(b.Max)}
}

// BoxesOverlap reports whether a and b share any point. Boxes that only
// touch on a face, edge or corner count as overlapping.
func BoxesOverlap(a, b Box) bool {
	if BoxIsEmpty(a) || BoxIsEmpty(b) {
		return false
	}
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y &&
		a.Min.Z <= b.Max.Z && b.Min.Z <= a.Max.Z
}

// BoxOfPoints returns the bounding box of pts.
func BoxOfPoints(pts []v3.Vec) Box {
	b := EmptyBox()
	for _, p := range pts {
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
	}
	return b
}

// BoxSet is an ordered collection of boxes approximating the extent of a
// geometry. An overlap query may report false positives but never false
// negatives.
type BoxSet []Box

// Append returns s with b added. Empty boxes are dropped.
func (s BoxSet) Append(b Box) BoxSet {
	if BoxIsEmpty(b) {
		return s
	}
	return append(s, b)
}

// Merge returns a new set holding the boxes of s followed by those of o.
func (s BoxSet) Merge(o BoxSet) BoxSet {
	out := make(BoxSet, 0, len(s)+len(o))
	out = append(out, s...)
	return append(out, o...)
}

// Bounds returns the box enclosing every member of s.
func (s BoxSet) Bounds() Box {
	b := EmptyBox()
	for _, m := range s {
		b = BoxUnion(b, m)
	}
	return b
}

// Intersects reports whether any box of s overlaps any box of o.
func (s BoxSet) Intersects(o BoxSet) bool {
	if len(s) == 0 || len(o) == 0 {
		return false
	}
	if !BoxesOverlap(s.Bounds(), o.Bounds()) {
		return false
	}
	for _, a := range s {
		for _, b := range o {
			if BoxesOverlap(a, b) {
				return true
			}
		}
	}
	return false
}
