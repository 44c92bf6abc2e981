package evaluate

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/chazu/solidcsg/pkg/cache"
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/kernel/sdfx"
	"github.com/chazu/solidcsg/pkg/scene"
	"github.com/chazu/solidcsg/pkg/shapes"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func cube(size float64) scene.Shape {
	return shapes.Cube{Size: v3.Vec{X: size, Y: size, Z: size}}
}

func newEvaluator(t *scene.Tree, b kernel.Backend, opts ...Option) *Evaluator {
	if b == nil {
		b = sdfx.New(sdfx.WithMeshCells(16), sdfx.WithLogger(quiet))
	}
	return New(t, b, append([]Option{WithLogger(quiet)}, opts...)...)
}

// twoCubes builds root(union(cube(10), translate([dx,0,0]) cube(10))).
func twoCubes(dx float64) (*scene.Builder, scene.NodeID) {
	b := scene.NewBuilder()
	a := b.Leaf(cube(10))
	moved := b.Translate(v3.Vec{X: dx}, b.Leaf(cube(10)))
	return b, b.Root(b.Union(a, moved))
}

func hasWarning(e *Evaluator, substr string) bool {
	for _, w := range e.Warnings() {
		if strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

func TestDisjointUnionSkipsBackend(t *testing.T) {
	b, root := twoCubes(20)
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	m, ok := g.(*geom.Mesh)
	require.True(t, ok, "result kind = %s, want mesh", g.Kind())
	assert.Equal(t, 24, m.TriangleCount())
	assert.Equal(t, 16, m.VertexCount())
	assert.InDelta(t, 2000, m.Volume(), 1e-9)

	st := e.Stats()
	assert.Equal(t, 0, st.BackendCalls)
	assert.Equal(t, 1, st.DisjointUnions)
	assert.Equal(t, 0, st.ExactUnions)
	assert.Equal(t, 1, st.Leaves, "the second cube(10) is a cache hit")
}

func TestOverlappingUnionUsesBackend(t *testing.T) {
	b, root := twoCubes(5)
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	require.Equal(t, geom.KindExact, g.Kind())
	assert.InDelta(t, 1500, sdfx.Volume(g, 0.5), 1e-6)
	assert.Equal(t, 1, e.Stats().ExactUnions)

	bb := g.BoundingBox()
	assert.InDelta(t, 0, bb.Min.X, 1e-9)
	assert.InDelta(t, 15, bb.Max.X, 1e-9)
}

func TestEvaluationIsIdempotent(t *testing.T) {
	for _, allowExact := range []bool{true, false} {
		b, root := twoCubes(5)
		e := newEvaluator(b.Tree(), nil)

		first := e.EvaluateGeometry(root, allowExact)
		calls := e.Stats().BackendCalls
		leaves := e.Stats().Leaves
		second := e.EvaluateGeometry(root, allowExact)

		assert.Same(t, first, second, "allowExact=%t", allowExact)
		assert.Equal(t, calls, e.Stats().BackendCalls, "allowExact=%t: second run called the backend", allowExact)
		assert.Equal(t, leaves, e.Stats().Leaves, "allowExact=%t: second run created leaves", allowExact)
		if !allowExact {
			assert.Equal(t, geom.KindMesh, first.Kind())
		}
	}
}

func TestApproximateRequestConvertsCachedExact(t *testing.T) {
	b, root := twoCubes(5)
	e := newEvaluator(b.Tree(), nil)

	exact := e.EvaluateGeometry(root, true)
	require.Equal(t, geom.KindExact, exact.Kind())

	mesh := e.EvaluateGeometry(root, false)
	require.Equal(t, geom.KindMesh, mesh.Kind())
	assert.InDelta(t, 1500, mesh.(*geom.Mesh).Volume(), 150)

	again := e.EvaluateGeometry(root, true)
	assert.Same(t, exact, again, "exact entry should still be preferred")
}

func TestSharedSubtreeEvaluatedOnce(t *testing.T) {
	b := scene.NewBuilder()
	shared := b.Leaf(cube(10))
	root := b.Root(b.Union(shared, b.Translate(v3.Vec{X: 20}, shared), b.Translate(v3.Vec{X: 40}, shared)))
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	assert.Equal(t, 36, g.(*geom.Mesh).TriangleCount())
	assert.Equal(t, 1, e.Stats().Leaves)
	assert.Equal(t, 0, e.Stats().BackendCalls)
}

func TestBackgroundChildExcluded(t *testing.T) {
	b := scene.NewBuilder()
	bg := b.Background(b.Translate(v3.Vec{X: 5}, b.Leaf(cube(10))))
	root := b.Root(b.Union(b.Leaf(cube(10)), bg))
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	m := g.(*geom.Mesh)
	assert.Equal(t, 12, m.TriangleCount())
	assert.InDelta(t, 10, m.BoundingBox().Max.X, 1e-9)
	assert.Equal(t, 0, e.Stats().BackendCalls)

	require.Len(t, e.Background(), 1)
	assert.InDelta(t, 5, e.Background()[0].BoundingBox().Min.X, 1e-9)
}

func TestBackgroundSurvivesCacheHit(t *testing.T) {
	b := scene.NewBuilder()
	bg := b.Background(b.Leaf(cube(3)))
	inner := b.Union(b.Leaf(cube(10)), bg)
	root := b.Root(b.Translate(v3.Vec{Z: 100}, inner))
	e := newEvaluator(b.Tree(), nil)

	e.EvaluateGeometry(root, true)
	require.Len(t, e.Background(), 1)
	assert.InDelta(t, 100, e.Background()[0].BoundingBox().Min.Z, 1e-9)

	e.EvaluateGeometry(root, true)
	require.Len(t, e.Background(), 1)
	assert.InDelta(t, 100, e.Background()[0].BoundingBox().Min.Z, 1e-9)
}

func TestDimensionMismatchDropped(t *testing.T) {
	b := scene.NewBuilder()
	sq := b.Leaf(shapes.Square{Size: v2.Vec{X: 5, Y: 5}})
	root := b.Root(b.Union(b.Leaf(cube(10)), sq))
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	require.Equal(t, geom.KindMesh, g.Kind())
	assert.Equal(t, 12, g.(*geom.Mesh).TriangleCount())
	assert.True(t, hasWarning(e, "Mixing 2D and 3D objects is not supported"))
	assert.Equal(t, sq, e.Warnings()[0].Node)
}

func TestDimensionFixedByFirstOperand(t *testing.T) {
	b := scene.NewBuilder()
	c := b.Leaf(cube(10))
	root := b.Root(b.Union(b.Leaf(shapes.Square{Size: v2.Vec{X: 5, Y: 5}}), c))
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	assert.Equal(t, 2, g.Dimension())
	require.Len(t, e.Warnings(), 1)
	assert.Equal(t, c, e.Warnings()[0].Node)
}

func TestNonFiniteTransformRemoved(t *testing.T) {
	b := scene.NewBuilder()
	bad := b.Translate(v3.Vec{X: math.NaN()}, b.Leaf(cube(10)))
	root := b.Root(b.Union(b.Leaf(cube(10)), bad))
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	assert.Equal(t, 12, g.(*geom.Mesh).TriangleCount())
	assert.True(t, hasWarning(e, "NaN or Inf"))
	assert.Equal(t, 1, e.Stats().Leaves, "pruned subtree should not be evaluated")
}

func TestVisitedFramesReleased(t *testing.T) {
	b, root := twoCubes(5)
	e := newEvaluator(b.Tree(), nil)
	e.EvaluateGeometry(root, true)

	assert.Empty(t, e.visited)
	assert.Empty(t, e.early)
	assert.Nil(t, e.result)
}

// flakyBackend fails or panics on demand.
type flakyBackend struct {
	kernel.Backend
	fail      bool
	panicHull bool
}

func (f *flakyBackend) Combine(op kernel.Op, children []geom.Geometry) (geom.Geometry, error) {
	if f.fail {
		return nil, kernel.Errorf(op.String(), "injected failure")
	}
	return f.Backend.Combine(op, children)
}

func (f *flakyBackend) Hull(children []geom.Geometry) (geom.Geometry, error) {
	if f.panicHull {
		panic("hull exploded")
	}
	return f.Backend.Hull(children)
}

func TestBackendFailureIsNotCached(t *testing.T) {
	fb := &flakyBackend{Backend: sdfx.New(sdfx.WithLogger(quiet)), fail: true}
	b := scene.NewBuilder()
	isect := b.Intersection(b.Leaf(cube(10)), b.Translate(v3.Vec{X: 5}, b.Leaf(cube(10))))
	root := b.Root(isect)
	e := newEvaluator(b.Tree(), fb)

	g := e.EvaluateGeometry(root, true)
	assert.True(t, geom.IsEmpty(g))
	assert.True(t, hasWarning(e, "injected failure"))
	assert.False(t, e.Cache().Contains(b.Tree().IDString(isect)))

	fb.fail = false
	g = e.EvaluateGeometry(root, true)
	require.False(t, geom.IsEmpty(g))
	assert.InDelta(t, 500, sdfx.Volume(g, 0.5), 1e-6)
}

func TestBackendPanicRecovered(t *testing.T) {
	fb := &flakyBackend{Backend: sdfx.New(sdfx.WithLogger(quiet)), panicHull: true}
	b := scene.NewBuilder()
	root := b.Root(b.Union(
		b.Hull(b.Leaf(cube(1)), b.Translate(v3.Vec{X: 5}, b.Leaf(cube(1)))),
		b.Translate(v3.Vec{Y: 20}, b.Leaf(cube(10))),
	))
	e := newEvaluator(b.Tree(), fb)

	g := e.EvaluateGeometry(root, true)
	assert.Equal(t, 12, g.(*geom.Mesh).TriangleCount(), "only the hull should be lost")
	assert.True(t, hasWarning(e, "hull failed: hull exploded"))
}

// recordingBackend remembers the operand kinds of every Combine call.
type recordingBackend struct {
	kernel.Backend
	operands map[kernel.Op][]geom.Kind
}

func (r *recordingBackend) Combine(op kernel.Op, children []geom.Geometry) (geom.Geometry, error) {
	if r.operands == nil {
		r.operands = make(map[kernel.Op][]geom.Kind)
	}
	for _, c := range children {
		r.operands[op] = append(r.operands[op], c.Kind())
	}
	return r.Backend.Combine(op, children)
}

func TestBooleanOperandsPreferCachedExact(t *testing.T) {
	rb := &recordingBackend{Backend: sdfx.New(sdfx.WithMeshCells(16), sdfx.WithLogger(quiet))}
	b := scene.NewBuilder()
	overlap := b.Union(b.Leaf(cube(10)), b.Translate(v3.Vec{X: 5}, b.Leaf(cube(10))))
	diff := b.Difference(overlap, b.Leaf(cube(3)))
	e := newEvaluator(b.Tree(), rb)

	// Caches both the exact union and its mesh.
	first := e.EvaluateGeometry(overlap, false)
	require.Equal(t, geom.KindMesh, first.Kind())
	key := b.Tree().IDString(overlap)
	_, hasExact := e.Cache().GetFrom(cache.Exact, key)
	require.True(t, hasExact)

	rb.operands = nil
	g := e.EvaluateGeometry(diff, false)
	assert.Equal(t, geom.KindMesh, g.Kind(), "the caller still gets a mesh")
	assert.Equal(t, []geom.Kind{geom.KindExact, geom.KindMesh}, rb.operands[kernel.OpDifference],
		"difference operands should use the exact cached union")
}

// reentrant evaluates the tree again from inside leaf creation.
type reentrant struct {
	e    **Evaluator
	root *scene.NodeID
}

func (r reentrant) String() string { return "reentrant()" }

func (r reentrant) CreateGeometry() (geom.Geometry, error) {
	return (*r.e).EvaluateGeometry(*r.root, true), nil
}

func TestReentrantEvaluationPanics(t *testing.T) {
	var (
		e    *Evaluator
		root scene.NodeID
	)
	b := scene.NewBuilder()
	root = b.Root(b.Leaf(reentrant{e: &e, root: &root}))
	e = newEvaluator(b.Tree(), nil)

	require.Panics(t, func() { e.EvaluateGeometry(root, true) })
}

func TestHighlightTieBreak(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *scene.Builder) scene.NodeID
		want  int     // side items
		minX  float64 // of the first side item; negative skips the check
		maxX  float64 // of the result; zero skips the check
	}{
		{
			name: "highlighted minuend highlights the difference",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Difference(b.Highlight(b.Leaf(cube(10))), b.Translate(v3.Vec{X: 5}, b.Leaf(cube(10))))
			},
			want: 1,
			minX: 0,
		},
		{
			name: "highlighted subtrahend is shown on its own",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Difference(b.Leaf(cube(10)), b.Highlight(b.Translate(v3.Vec{X: 5}, b.Leaf(cube(10)))))
			},
			want: 1,
			minX: 5,
		},
		{
			name: "partially highlighted union carves the operand out",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Union(b.Leaf(cube(10)), b.Highlight(b.Translate(v3.Vec{X: 30}, b.Leaf(cube(10)))))
			},
			want: 1,
			minX: 30,
			maxX: 10,
		},
		{
			name: "fully highlighted intersection is highlighted",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Intersection(b.Highlight(b.Leaf(cube(10))), b.Highlight(b.Translate(v3.Vec{X: 5}, b.Leaf(cube(10)))))
			},
			want: 1,
			minX: -1,
		},
		{
			name: "no highlights",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Union(b.Leaf(cube(10)))
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := scene.NewBuilder()
			root := b.Root(tt.build(b))
			e := newEvaluator(b.Tree(), nil)
			g := e.EvaluateGeometry(root, true)

			require.Len(t, e.Highlights(), tt.want)
			if tt.want > 0 && tt.minX >= 0 {
				assert.InDelta(t, tt.minX, e.Highlights()[0].BoundingBox().Min.X, 1e-9)
			}
			if tt.maxX != 0 {
				assert.InDelta(t, tt.maxX, g.BoundingBox().Max.X, 1e-9)
			}
		})
	}
}

func TestLazyUnionRootKeepsObjectsApart(t *testing.T) {
	b, _ := twoCubes(5)
	tree := b.Tree()
	union := tree.MustGet(tree.Root).Children[0]
	root := b.Root(tree.MustGet(union).Children...)
	e := newEvaluator(tree, nil, WithLazyUnion(true))

	g := e.EvaluateGeometry(root, true)
	l, ok := g.(*geom.List)
	require.True(t, ok, "result kind = %s, want list", g.Kind())
	require.Len(t, l.Items, 2)
	assert.Equal(t, 0, e.Stats().BackendCalls)
	assert.Equal(t, int(tree.MustGet(root).Children[1]), l.Items[1].Node)
}

func TestListPassesChildrenThrough(t *testing.T) {
	b := scene.NewBuilder()
	list := b.List(b.Leaf(cube(10)), b.Translate(v3.Vec{X: 20}, b.Leaf(cube(10))))
	root := b.Root(b.Difference(b.Leaf(cube(100)), list))
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	require.Equal(t, geom.KindExact, g.Kind())
	assert.InDelta(t, 1e6-2000, sdfx.Volume(g, 2), 1e-6)
}

func TestPlanarLeavesAreSanitized(t *testing.T) {
	b := scene.NewBuilder()
	cw := b.Leaf(shapes.Polygon{Points: []v2.Vec{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 0}}})
	mirrored := b.Scale(v3.Vec{X: -1, Y: 1, Z: 1}, b.Leaf(shapes.Square{Size: v2.Vec{X: 1, Y: 1}}))
	root := b.Root(b.Union(cw, b.Translate(v3.Vec{X: -5}, mirrored)))
	e := newEvaluator(b.Tree(), nil)

	g := e.EvaluateGeometry(root, true)
	p, ok := g.(*geom.Polygon2D)
	require.True(t, ok)
	assert.InDelta(t, 5, p.Area(), 1e-9)
	for _, o := range p.Outlines {
		assert.True(t, o.Positive)
		assert.Greater(t, geom.SignedArea(o.Vertices), 0.0)
	}
}

func TestOperatorEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		build     func(b *scene.Builder) scene.NodeID
		empty     bool
		warning   string
		extentX   float64
		noBackend bool
	}{
		{
			name: "difference with empty minuend",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Difference(b.Leaf(cube(0)), b.Leaf(cube(10)))
			},
			empty:     true,
			noBackend: true,
		},
		{
			name: "intersection with empty operand",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Intersection(b.Leaf(cube(10)), b.Group())
			},
			empty:     true,
			noBackend: true,
		},
		{
			name: "minkowski of one child",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Minkowski(2, b.Leaf(cube(10)), b.Leaf(cube(0)))
			},
			extentX:   10,
			noBackend: true,
		},
		{
			name: "hull of nothing",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Hull(b.Leaf(cube(0)))
			},
			empty:     true,
			noBackend: true,
		},
		{
			name: "fill in 3D unions",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Fill(b.Leaf(cube(10)), b.Translate(v3.Vec{X: 20}, b.Leaf(cube(10))))
			},
			warning:   "only supported for 2D",
			extentX:   30,
			noBackend: true,
		},
		{
			name: "resize",
			build: func(b *scene.Builder) scene.NodeID {
				return b.Resize(v3.Vec{X: 20}, [3]bool{false, true, true}, 0, b.Leaf(cube(10)))
			},
			extentX: 20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := scene.NewBuilder()
			root := b.Root(tt.build(b))
			e := newEvaluator(b.Tree(), nil)

			g := e.EvaluateGeometry(root, true)
			assert.Equal(t, tt.empty, geom.IsEmpty(g))
			if tt.warning != "" {
				assert.True(t, hasWarning(e, tt.warning), "warnings = %v", e.Warnings())
			}
			if tt.extentX > 0 {
				bb := g.BoundingBox()
				assert.InDelta(t, tt.extentX, bb.Max.X-bb.Min.X, 1e-9)
			}
			if tt.noBackend {
				assert.Equal(t, 0, e.Stats().BackendCalls)
			}
		})
	}
}

func TestResizeAutoScalesOtherAxes(t *testing.T) {
	b := scene.NewBuilder()
	root := b.Root(b.Resize(v3.Vec{X: 20}, [3]bool{false, true, true}, 0, b.Leaf(cube(10))))
	e := newEvaluator(b.Tree(), nil)

	bb := e.EvaluateGeometry(root, true).BoundingBox()
	assert.InDelta(t, 20, bb.Max.Y-bb.Min.Y, 1e-9)
	assert.InDelta(t, 20, bb.Max.Z-bb.Min.Z, 1e-9)
}

func TestSharedCacheAcrossEvaluators(t *testing.T) {
	b, root := twoCubes(5)
	first := newEvaluator(b.Tree(), nil)
	first.EvaluateGeometry(root, true)

	second := newEvaluator(b.Tree(), nil, WithCache(first.Cache()))
	g := second.EvaluateGeometry(root, true)
	assert.Equal(t, geom.KindExact, g.Kind())
	assert.Equal(t, 0, second.Stats().BackendCalls)
	assert.Equal(t, 1, second.Stats().CacheHits)
}

func TestWarningString(t *testing.T) {
	w := Warning{Source: scene.SourceRef{File: "part.lisp", Line: 3}, Message: "boom"}
	assert.Equal(t, "part.lisp:3: boom", w.String())
	assert.Equal(t, "boom", Warning{Message: "boom"}.String())
}

func TestAssertionError(t *testing.T) {
	var err error = assertion("broken")
	assert.True(t, errors.As(err, new(assertion)))
	assert.Equal(t, "broken", err.Error())
}
