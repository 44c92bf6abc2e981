// Package lazy implements the deferred union used when folding many
// siblings under a union. Parts whose bounding boxes cannot overlap are
// concatenated instead of being handed to the boolean backend.
package lazy

import (
	"fmt"
	"log/slog"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/scene"
)

// Geometry is a geometry value together with the box set of its disjoint
// parts, a content key and the source location it came from.
type Geometry struct {
	g     geom.Geometry
	boxes geom.BoxSet
	known bool

	Key string
	Loc scene.SourceRef
}

// New wraps g. The box set is computed on first use.
func New(g geom.Geometry, key string, loc scene.SourceRef) *Geometry {
	return &Geometry{g: geom.OrEmpty(g), Key: key, Loc: loc}
}

// Geometry returns the wrapped value.
func (l *Geometry) Geometry() geom.Geometry { return l.g }

func (l *Geometry) IsEmpty() bool { return l == nil || geom.IsEmpty(l.g) }

// Boxes returns the box set, a single box around the whole geometry unless
// the value was built by disjoint concatenation.
func (l *Geometry) Boxes() geom.BoxSet {
	if !l.known {
		l.boxes = geom.BoxSet(nil).Append(l.g.BoundingBox())
		l.known = true
	}
	return l.boxes
}

func (l *Geometry) String() string {
	if l.Key != "" {
		return l.Key
	}
	return fmt.Sprintf("%s@%s", l.g.Kind(), l.Loc)
}

// Stats counts the union paths taken by a Unioner.
type Stats struct {
	Disjoint  int // unions answered by concatenation
	Exact     int // unions handed to the backend
	Fallbacks int // concatenations rejected by validation
}

// Unioner folds geometry with the deferred-union heuristic.
type Unioner struct {
	Backend kernel.Backend

	// Validate checks that concatenated meshes are closed manifolds and
	// falls back to the backend when they are not.
	Validate bool

	// Quantum is the grid step for merging coincident vertices; zero means
	// geom.GridFine.
	Quantum float64

	Logger *slog.Logger

	stats Stats
}

// Stats returns the counts accumulated so far.
func (u *Unioner) Stats() Stats { return u.stats }

func (u *Unioner) log() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

// Union returns the union of a and b. An empty side yields the other side
// unchanged. Neither input is modified.
func (u *Unioner) Union(a, b *Geometry) (*Geometry, error) {
	switch {
	case a.IsEmpty():
		if b == nil {
			return New(geom.Empty{}, "", scene.SourceRef{}), nil
		}
		return b, nil
	case b.IsEmpty():
		return a, nil
	}

	if !a.Boxes().Intersects(b.Boxes()) {
		if out, ok := u.concat(a, b); ok {
			u.stats.Disjoint++
			return out, nil
		}
	}
	return u.exact(a, b)
}

// UnionAll folds items left to right. Nil and empty items are skipped; the
// result is empty when every item is.
func (u *Unioner) UnionAll(items []*Geometry) (*Geometry, error) {
	var acc *Geometry
	for _, it := range items {
		if it.IsEmpty() {
			continue
		}
		if acc == nil {
			acc = it
			continue
		}
		var err error
		if acc, err = u.Union(acc, it); err != nil {
			return nil, err
		}
	}
	if acc == nil {
		return New(geom.Empty{}, "", scene.SourceRef{}), nil
	}
	return acc, nil
}

// concat joins two disjoint values of the same representation. It reports
// false when the inputs cannot be concatenated or validation rejects the
// result.
func (u *Unioner) concat(a, b *Geometry) (*Geometry, bool) {
	var joined geom.Geometry
	switch ag := a.g.(type) {
	case *geom.Mesh:
		bg, ok := b.g.(*geom.Mesh)
		if !ok {
			return nil, false
		}
		q := u.Quantum
		if q == 0 {
			q = geom.GridFine
		}
		m := ag.Concat(bg).Quantize(q)
		if u.Validate && !m.IsClosedManifold() {
			u.stats.Fallbacks++
			u.log().Warn("disjoint union produced an invalid mesh, using exact union",
				slog.String("left", a.String()),
				slog.String("right", b.String()),
			)
			return nil, false
		}
		joined = m
	case *geom.Polygon2D:
		bg, ok := b.g.(*geom.Polygon2D)
		if !ok {
			return nil, false
		}
		joined = ag.Concat(bg)
	default:
		return nil, false
	}

	out := &Geometry{
		g:     joined,
		boxes: a.Boxes().Merge(b.Boxes()),
		known: true,
		Loc:   a.Loc,
	}
	return out, true
}

func (u *Unioner) exact(a, b *Geometry) (*Geometry, error) {
	u.stats.Exact++
	g, err := u.Backend.Combine(kernel.OpUnion, []geom.Geometry{a.g, b.g})
	if err != nil {
		return nil, fmt.Errorf("lazy: union of %s and %s: %w", a, b, err)
	}
	return New(g, "", a.Loc), nil
}
