// Package kernel defines the boolean backend contract. Implementations
// (sdfx, manifold) own the exact solid representation and perform booleans,
// hulls, Minkowski sums and resizing behind this interface, so the
// evaluator can swap backends without changing the rest of the system.
package kernel

import (
	"fmt"

	"github.com/chazu/solidcsg/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Op enumerates the CSG operators.
type Op int

const (
	OpUnion Op = iota
	OpIntersection
	OpDifference
	OpMinkowski
	OpHull
	OpFill
	OpResize
)

func (o Op) String() string {
	switch o {
	case OpUnion:
		return "union"
	case OpIntersection:
		return "intersection"
	case OpDifference:
		return "difference"
	case OpMinkowski:
		return "minkowski"
	case OpHull:
		return "hull"
	case OpFill:
		return "fill"
	case OpResize:
		return "resize"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Backend is the boolean backend contract. Children handed to a backend are
// non-empty and share one dimension. Implementations may return any
// geometry kind; 3D booleans usually return *geom.Exact.
type Backend interface {
	// Combine folds children left to right with op, which is one of
	// OpUnion, OpIntersection or OpDifference.
	Combine(op Op, children []geom.Geometry) (geom.Geometry, error)

	// Hull returns the convex hull of all children.
	Hull(children []geom.Geometry) (geom.Geometry, error)

	// Minkowski returns the Minkowski sum of all children.
	Minkowski(children []geom.Geometry) (geom.Geometry, error)

	// Fill removes holes from planar geometry.
	Fill(children []geom.Geometry) (geom.Geometry, error)

	// Resize scales g to size. Zero size components with auto set scale
	// proportionally; zero components without auto keep their extent.
	Resize(g geom.Geometry, size v3.Vec, auto [3]bool) (geom.Geometry, error)

	// Sanitize normalizes outline orientation and removes overlaps.
	Sanitize(p *geom.Polygon2D) (*geom.Polygon2D, error)

	// ToMesh converts any 3D geometry to an approximate triangle mesh.
	ToMesh(g geom.Geometry) (*geom.Mesh, error)
}

// Error is a failure reported by a backend operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kernel: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns an *Error for op with a formatted cause.
func Errorf(op string, format string, args ...any) *Error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...)}
}
