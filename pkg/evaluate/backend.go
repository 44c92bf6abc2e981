package evaluate

import (
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// meteredBackend counts every call made to the wrapped backend.
type meteredBackend struct {
	kernel.Backend
	calls *int
}

func (b *meteredBackend) Combine(op kernel.Op, children []geom.Geometry) (geom.Geometry, error) {
	*b.calls++
	return b.Backend.Combine(op, children)
}

func (b *meteredBackend) Hull(children []geom.Geometry) (geom.Geometry, error) {
	*b.calls++
	return b.Backend.Hull(children)
}

func (b *meteredBackend) Minkowski(children []geom.Geometry) (geom.Geometry, error) {
	*b.calls++
	return b.Backend.Minkowski(children)
}

func (b *meteredBackend) Fill(children []geom.Geometry) (geom.Geometry, error) {
	*b.calls++
	return b.Backend.Fill(children)
}

func (b *meteredBackend) Resize(g geom.Geometry, size v3.Vec, auto [3]bool) (geom.Geometry, error) {
	*b.calls++
	return b.Backend.Resize(g, size, auto)
}

func (b *meteredBackend) Sanitize(p *geom.Polygon2D) (*geom.Polygon2D, error) {
	*b.calls++
	return b.Backend.Sanitize(p)
}

func (b *meteredBackend) ToMesh(g geom.Geometry) (*geom.Mesh, error) {
	*b.calls++
	return b.Backend.ToMesh(g)
}
