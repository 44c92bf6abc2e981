package sdfx

import (
	"fmt"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/scene"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

var _ scene.Shape = Shape{}

// Shape is a leaf whose geometry is an exact SDF solid. Desc must describe
// the solid canonically since it becomes part of the cache key.
type Shape struct {
	Desc string
	S    sdf.SDF3
}

func (s Shape) String() string { return s.Desc }

func (s Shape) CreateGeometry() (geom.Geometry, error) {
	if s.S == nil {
		return geom.Empty{}, nil
	}
	return geom.NewExact(NewSolid(s.S)), nil
}

// Box creates a box with the given dimensions and edge rounding. The solid
// has its minimum corner at the origin; sdf.Box3D centers the box, so it is
// translated by half its size.
func Box(size v3.Vec, round float64) (Shape, error) {
	s, err := sdf.Box3D(size, round)
	if err != nil {
		return Shape{}, fmt.Errorf("sdfx: box: %w", err)
	}
	m := sdf.Translate3d(size.MulScalar(0.5))
	return Shape{
		Desc: fmt.Sprintf("sdf_box(size = [%g, %g, %g], round = %g)", size.X, size.Y, size.Z, round),
		S:    sdf.Transform3D(s, m),
	}, nil
}

// Cylinder creates a cylinder along Z centered on the origin.
func Cylinder(height, radius, round float64) (Shape, error) {
	s, err := sdf.Cylinder3D(height, radius, round)
	if err != nil {
		return Shape{}, fmt.Errorf("sdfx: cylinder: %w", err)
	}
	return Shape{
		Desc: fmt.Sprintf("sdf_cylinder(h = %g, r = %g, round = %g)", height, radius, round),
		S:    s,
	}, nil
}

// Sphere creates a sphere centered on the origin.
func Sphere(radius float64) (Shape, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return Shape{}, fmt.Errorf("sdfx: sphere: %w", err)
	}
	return Shape{Desc: fmt.Sprintf("sdf_sphere(r = %g)", radius), S: s}, nil
}
