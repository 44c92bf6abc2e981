package sdfx

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/shapes"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func cubeMesh(t *testing.T, size float64, at v3.Vec) *geom.Mesh {
	t.Helper()
	g, err := shapes.Cube{Size: v3.Vec{X: size, Y: size, Z: size}}.CreateGeometry()
	if err != nil {
		t.Fatalf("cube: %v", err)
	}
	return g.(*geom.Mesh).Transform(geom.Translate(at))
}

func square(t *testing.T, size float64, at v2.Vec) *geom.Polygon2D {
	t.Helper()
	g, err := shapes.Square{Size: v2.Vec{X: size, Y: size}}.CreateGeometry()
	if err != nil {
		t.Fatalf("square: %v", err)
	}
	return g.(*geom.Polygon2D).Transform(geom.Affine2D(geom.Translate(v3.Vec{X: at.X, Y: at.Y})))
}

func TestBooleanVolumes(t *testing.T) {
	k := New()
	a := cubeMesh(t, 10, v3.Vec{})
	b := cubeMesh(t, 10, v3.Vec{X: 5})

	tests := []struct {
		op   kernel.Op
		want float64
	}{
		{kernel.OpUnion, 1500},
		{kernel.OpIntersection, 500},
		{kernel.OpDifference, 500},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			g, err := k.Combine(tt.op, []geom.Geometry{a, b})
			if err != nil {
				t.Fatalf("Combine: %v", err)
			}
			if g.Kind() != geom.KindExact {
				t.Fatalf("kind = %s, want exact", g.Kind())
			}
			if got := Volume(g, 0.5); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("volume = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCombineEmptyOperands(t *testing.T) {
	k := New()
	cube := cubeMesh(t, 10, v3.Vec{})

	g, err := k.Combine(kernel.OpDifference, []geom.Geometry{geom.Empty{}, cube})
	if err != nil || !geom.IsEmpty(g) {
		t.Errorf("empty minuend: got %v, %v; want empty", g, err)
	}
	g, err = k.Combine(kernel.OpIntersection, []geom.Geometry{cube, geom.Empty{}})
	if err != nil || !geom.IsEmpty(g) {
		t.Errorf("intersection with empty: got %v, %v; want empty", g, err)
	}
	g, err = k.Combine(kernel.OpUnion, []geom.Geometry{geom.Empty{}, cube})
	if err != nil {
		t.Fatalf("union with empty: %v", err)
	}
	if got := Volume(g, 0.5); math.Abs(got-1000) > 1e-6 {
		t.Errorf("union with empty volume = %f, want 1000", got)
	}
}

func TestCombineMixedDimensions(t *testing.T) {
	k := New()
	_, err := k.Combine(kernel.OpUnion, []geom.Geometry{square(t, 1, v2.Vec{}), cubeMesh(t, 1, v3.Vec{})})
	var kerr *kernel.Error
	if !errors.As(err, &kerr) {
		t.Fatalf("err = %v, want *kernel.Error", err)
	}
	if kerr.Op != "union" {
		t.Errorf("op = %q, want union", kerr.Op)
	}
}

func TestPlanarBooleans(t *testing.T) {
	k := New()

	g, err := k.Combine(kernel.OpUnion, []geom.Geometry{square(t, 1, v2.Vec{}), square(t, 1, v2.Vec{X: 0.5, Y: 0.5})})
	if err != nil {
		t.Fatalf("union: %v", err)
	}
	if got := g.(*geom.Polygon2D).Area(); math.Abs(got-1.75) > 1e-9 {
		t.Errorf("union area = %f, want 1.75", got)
	}

	g, err = k.Combine(kernel.OpDifference, []geom.Geometry{square(t, 4, v2.Vec{}), square(t, 2, v2.Vec{X: 1, Y: 1})})
	if err != nil {
		t.Fatalf("difference: %v", err)
	}
	p := g.(*geom.Polygon2D)
	if !p.Sanitized {
		t.Error("difference result should be sanitized")
	}
	if len(p.Outlines) != 2 {
		t.Fatalf("outlines = %d, want 2", len(p.Outlines))
	}
	holes := 0
	for _, o := range p.Outlines {
		if !o.Positive {
			holes++
			if geom.SignedArea(o.Vertices) >= 0 {
				t.Error("hole should wind clockwise")
			}
		}
	}
	if holes != 1 {
		t.Errorf("holes = %d, want 1", holes)
	}
	if got := p.Area(); math.Abs(got-12) > 1e-9 {
		t.Errorf("difference area = %f, want 12", got)
	}

	filled, err := k.Fill([]geom.Geometry{p})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if got := filled.(*geom.Polygon2D).Area(); math.Abs(got-16) > 1e-9 {
		t.Errorf("filled area = %f, want 16", got)
	}
}

func TestSanitizeFixesWinding(t *testing.T) {
	k := New()
	cw := geom.NewPolygon([]v2.Vec{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 0}})
	if cw.Sanitized {
		t.Fatal("NewPolygon should be unsanitized")
	}
	p, err := k.Sanitize(cw)
	if err != nil {
		t.Fatalf("Sanitize: %v", err)
	}
	if !p.Sanitized || len(p.Outlines) != 1 || !p.Outlines[0].Positive {
		t.Fatalf("sanitized = %+v", p)
	}
	if got := p.Area(); math.Abs(got-4) > 1e-9 {
		t.Errorf("area = %f, want 4", got)
	}
}

func TestHull(t *testing.T) {
	k := New()
	g, err := k.Hull([]geom.Geometry{cubeMesh(t, 10, v3.Vec{}), cubeMesh(t, 10, v3.Vec{X: 20})})
	if err != nil {
		t.Fatalf("Hull: %v", err)
	}
	m := g.(*geom.Mesh)
	if !m.IsClosedManifold() {
		t.Error("hull should be a closed manifold")
	}
	if got := m.Volume(); math.Abs(got-3000) > 1e-6 {
		t.Errorf("hull volume = %f, want 3000", got)
	}

	g, err = k.Hull([]geom.Geometry{square(t, 1, v2.Vec{}), square(t, 1, v2.Vec{X: 3})})
	if err != nil {
		t.Fatalf("Hull 2D: %v", err)
	}
	if got := g.(*geom.Polygon2D).Area(); math.Abs(got-4) > 1e-9 {
		t.Errorf("2D hull area = %f, want 4", got)
	}
}

func TestHullDegenerate(t *testing.T) {
	_, err := hull3D([]v3.Vec{{}, {X: 1}, {Y: 1}, {X: 1, Y: 1}})
	if err == nil {
		t.Error("coplanar points should not form a hull")
	}
}

func TestMinkowski(t *testing.T) {
	k := New()
	g, err := k.Minkowski([]geom.Geometry{cubeMesh(t, 10, v3.Vec{}), cubeMesh(t, 2, v3.Vec{X: -1, Y: -1, Z: -1})})
	if err != nil {
		t.Fatalf("Minkowski: %v", err)
	}
	m := g.(*geom.Mesh)
	if got := m.Volume(); math.Abs(got-1728) > 1e-6 {
		t.Errorf("volume = %f, want 1728", got)
	}
	if got := m.BoundingBox().Min.X; math.Abs(got+1) > 1e-9 {
		t.Errorf("min x = %f, want -1", got)
	}
}

func TestResize(t *testing.T) {
	k := New()
	cube := cubeMesh(t, 10, v3.Vec{})

	tests := []struct {
		name string
		size v3.Vec
		auto [3]bool
		want v3.Vec
	}{
		{"explicit", v3.Vec{X: 20, Y: 5, Z: 10}, [3]bool{}, v3.Vec{X: 20, Y: 5, Z: 10}},
		{"keep zero axes", v3.Vec{X: 20}, [3]bool{}, v3.Vec{X: 20, Y: 10, Z: 10}},
		{"auto follows largest", v3.Vec{X: 20, Y: 30}, [3]bool{false, false, true}, v3.Vec{X: 20, Y: 30, Z: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := k.Resize(cube, tt.size, tt.auto)
			if err != nil {
				t.Fatalf("Resize: %v", err)
			}
			bb := g.BoundingBox()
			got := bb.Max.Sub(bb.Min)
			if got.Sub(tt.want).Length() > 1e-9 {
				t.Errorf("extent = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := k.Resize(cube, v3.Vec{X: -1}, [3]bool{}); err == nil {
		t.Error("negative size should fail")
	}
}

func TestToMeshMarchingCubes(t *testing.T) {
	k := New(WithMeshCells(40))
	box, err := Box(v3.Vec{X: 10, Y: 10, Z: 10}, 0)
	if err != nil {
		t.Fatalf("Box: %v", err)
	}
	g, err := box.CreateGeometry()
	if err != nil {
		t.Fatalf("CreateGeometry: %v", err)
	}
	bb := g.BoundingBox()
	if math.Abs(bb.Min.X) > 1e-9 || math.Abs(bb.Max.X-10) > 1e-9 {
		t.Errorf("box should span 0..10, got %v..%v", bb.Min, bb.Max)
	}

	m, err := k.ToMesh(g)
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	if m.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if v := m.Volume(); math.Abs(v-1000)/1000 > 0.1 {
		t.Errorf("tessellated volume = %f, want about 1000", v)
	}

	if _, err := k.ToMesh(square(t, 1, v2.Vec{})); err == nil {
		t.Error("planar geometry has no mesh")
	}
}

func TestSolidTransform(t *testing.T) {
	k := New()
	g, err := k.Combine(kernel.OpUnion, []geom.Geometry{cubeMesh(t, 10, v3.Vec{}), cubeMesh(t, 10, v3.Vec{X: 5})})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	moved := geom.Transform(g, geom.Translate(v3.Vec{X: 100}))
	if got := moved.BoundingBox().Min.X; math.Abs(got-100) > 1e-9 {
		t.Errorf("moved min x = %f, want 100", got)
	}
	if got := Volume(moved, 0.5); math.Abs(got-1500) > 1e-6 {
		t.Errorf("moved volume = %f, want 1500", got)
	}

	flat := geom.Transform(g, geom.Scale(v3.Vec{X: 1, Y: 1, Z: 0}))
	if !flat.IsEmpty() {
		t.Error("singular transform should collapse the solid")
	}
}
