package flatten

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/solidcsg/pkg/evaluate"
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel/sdfx"
	"github.com/chazu/solidcsg/pkg/scene"
	"github.com/chazu/solidcsg/pkg/shapes"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func cube(size float64) scene.Shape {
	return shapes.Cube{Size: v3.Vec{X: size, Y: size, Z: size}}
}

// outline is the labelled shape of a subtree, for structural diffs.
type outline struct {
	Label    string
	Children []outline
}

func outlineOf(t *scene.Tree, id scene.NodeID) outline {
	n := t.MustGet(id)
	o := outline{Label: n.Label()}
	for _, c := range n.Children {
		o.Children = append(o.Children, outlineOf(t, c))
	}
	return o
}

func diffOutline(t *testing.T, want outline, tree *scene.Tree, id scene.NodeID) {
	t.Helper()
	if diff := cmp.Diff(want, outlineOf(tree, id), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("rewritten tree mismatch (-want +got):\n%s\n%s", diff, tree.Dump(id))
	}
}

func leafOutline(label string) outline { return outline{Label: label} }

func evaluate3D(t *testing.T, tree *scene.Tree, id scene.NodeID) (*evaluate.Evaluator, geom.Geometry) {
	t.Helper()
	e := evaluate.New(tree, sdfx.New(sdfx.WithMeshCells(16), sdfx.WithLogger(quiet)), evaluate.WithLogger(quiet))
	return e, e.EvaluateGeometry(id, true)
}

func rewrite(tree *scene.Tree, root scene.NodeID, opts ...Option) (*Flattener, scene.NodeID) {
	f := New(tree, FindRepeated(tree, root), append([]Option{WithLogger(quiet)}, opts...)...)
	return f, f.Rewrite(root)
}

func TestAssociativeUnionFlattened(t *testing.T) {
	b := scene.NewBuilder()
	inner := b.Union(
		b.Translate(v3.Vec{X: 20}, b.Leaf(cube(5))),
		b.Translate(v3.Vec{X: 40}, b.Leaf(cube(3))),
	)
	outer := b.Union(b.Leaf(cube(10)), inner)
	root := b.Root(outer)
	tree := b.Tree()

	_, before := evaluate3D(t, tree, root)

	f, got := rewrite(tree, root)
	require.NotEqual(t, root, got)
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "union", Children: []outline{
			leafOutline("cube"),
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
		}},
	}}, tree, got)

	_, after := evaluate3D(t, tree, got)
	require.Equal(t, geom.KindMesh, after.Kind())
	assert.InDelta(t, 1000+125+27, after.(*geom.Mesh).Volume(), 1e-9)
	assert.InDelta(t, before.(*geom.Mesh).Volume(), after.(*geom.Mesh).Volume(), 1e-9)

	// The input nodes are untouched.
	assert.Len(t, tree.MustGet(outer).Children, 2)
	assert.Equal(t, inner, tree.MustGet(outer).Children[1])
	assert.Equal(t, 1, f.Stats().Inlined)
}

func TestFlattenMovesTreeRoot(t *testing.T) {
	b := scene.NewBuilder()
	old := b.Root(b.Union(b.Leaf(cube(1)), b.Union(b.Leaf(cube(2)), b.Leaf(cube(3)))))
	tree := b.Tree()

	got := Flatten(tree, WithLogger(quiet))
	assert.Equal(t, got, tree.Root)
	assert.NotEqual(t, old, tree.Root)
	u := tree.MustGet(tree.MustGet(got).Children[0])
	assert.Len(t, u.Children, 3)
}

func TestRepeatedSubtreeKeptIntact(t *testing.T) {
	b := scene.NewBuilder()
	shared := b.Union(b.Leaf(cube(10)), b.Translate(v3.Vec{X: 20}, b.Leaf(cube(5))))
	t1 := b.Translate(v3.Vec{Y: 100}, shared)
	t2 := b.Translate(v3.Vec{Y: 200}, shared)
	root := b.Root(b.Union(t1, b.Union(t2, b.Leaf(cube(1)))))
	tree := b.Tree()

	repeated := FindRepeated(tree, root)
	require.True(t, repeated[tree.IDString(shared)])

	_, got := rewrite(tree, root)
	u := tree.MustGet(tree.MustGet(got).Children[0])
	require.Len(t, u.Children, 3)
	assert.Equal(t, t1, u.Children[0])
	assert.Equal(t, t2, u.Children[1])
	assert.Equal(t, shared, tree.MustGet(u.Children[0]).Children[0])
	assert.Equal(t, shared, tree.MustGet(u.Children[1]).Children[0])

	e, _ := evaluate3D(t, tree, got)
	assert.Equal(t, 3, e.Stats().Leaves, "shared leaves should be created once")
}

func TestRepeatedSubtreeInsideNotRewritten(t *testing.T) {
	b := scene.NewBuilder()
	inner := b.Translate(v3.Vec{X: 20}, b.Leaf(cube(5)), b.Leaf(cube(7)))
	shared := b.Union(inner)
	moved := b.Translate(v3.Vec{Y: 100}, shared, b.Leaf(cube(1)))
	root := b.Root(b.Union(shared, moved))
	tree := b.Tree()
	require.True(t, FindRepeated(tree, root)[tree.IDString(shared)])

	_, got := rewrite(tree, root)
	u := tree.MustGet(tree.MustGet(got).Children[0])
	require.Len(t, u.Children, 3, tree.Dump(got))
	assert.Equal(t, shared, u.Children[0], "repeated subtree replaced:\n%s", tree.Dump(got))

	// The pending translation stays above the second occurrence.
	wrapped := tree.MustGet(u.Children[1])
	require.Equal(t, scene.KindTransform, wrapped.Kind)
	assert.Equal(t, []scene.NodeID{shared}, wrapped.Children)

	// Nothing inside the repeated subtree moved.
	assert.Equal(t, []scene.NodeID{inner}, tree.MustGet(shared).Children)

	e, _ := evaluate3D(t, tree, got)
	assert.Equal(t, 3, e.Stats().Leaves, "shared leaves should be created once")
}

func TestFlaggedNodesNotRewritten(t *testing.T) {
	tests := []struct {
		name string
		flag func(b *scene.Builder, id scene.NodeID) scene.NodeID
	}{
		{"highlight", (*scene.Builder).Highlight},
		{"background", (*scene.Builder).Background},
		{"disabled", (*scene.Builder).Disable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := scene.NewBuilder()
			flagged := tt.flag(b, b.Union(b.Leaf(cube(2)), b.Leaf(cube(3))))
			root := b.Root(b.Union(b.Leaf(cube(1)), flagged))
			tree := b.Tree()
			n := tree.Len()

			_, got := rewrite(tree, root)
			assert.Equal(t, root, got)
			assert.Equal(t, n, tree.Len(), "no nodes should be added")
		})
	}
}

func TestTransformPushedThroughUnion(t *testing.T) {
	b := scene.NewBuilder()
	root := b.Root(b.Translate(v3.Vec{X: 10}, b.Union(
		b.Leaf(cube(10)),
		b.Translate(v3.Vec{X: 30}, b.Leaf(cube(5))),
	)))
	tree := b.Tree()
	_, before := evaluate3D(t, tree, root)

	f, got := rewrite(tree, root)
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "union", Children: []outline{
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
			{Label: "multmatrix", Children: []outline{
				{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
			}},
		}},
	}}, tree, got)
	assert.Equal(t, 1, f.Stats().Absorbed)

	u := tree.MustGet(tree.MustGet(got).Children[0])
	wrapped := tree.MustGet(u.Children[0]).Data.(scene.TransformData)
	assert.Equal(t, geom.Translate(v3.Vec{X: 10}), wrapped.Matrix)

	_, after := evaluate3D(t, tree, got)
	assert.Equal(t, before.BoundingBox(), after.BoundingBox())
	assert.InDelta(t, 10, after.BoundingBox().Min.X, 1e-9)
	assert.InDelta(t, 45, after.BoundingBox().Max.X, 1e-9)
}

func TestNestedTransformsCompose(t *testing.T) {
	b := scene.NewBuilder()
	root := b.Root(b.Translate(v3.Vec{X: 10}, b.Union(
		b.Translate(v3.Vec{Y: 5}, b.Union(b.Leaf(cube(1)), b.Leaf(cube(2)))),
		b.Leaf(cube(3)),
	)))
	tree := b.Tree()

	f, got := rewrite(tree, root)
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "union", Children: []outline{
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
		}},
	}}, tree, got)
	assert.Equal(t, 2, f.Stats().Absorbed)

	u := tree.MustGet(tree.MustGet(got).Children[0])
	want := []v3.Vec{{X: 10, Y: 5}, {X: 10, Y: 5}, {X: 10}}
	for i, c := range u.Children {
		m := tree.MustGet(c).Data.(scene.TransformData).Matrix
		assert.Equal(t, want[i], geom.Apply(m, v3.Vec{}), "child %d", i)
	}
}

func TestColorPushedDown(t *testing.T) {
	red := geom.RGBA(1, 0, 0, 1)
	blue := geom.RGBA(0, 0, 1, 1)

	b := scene.NewBuilder()
	root := b.Root(b.Color(red,
		b.Color(blue, b.Leaf(cube(1)), b.Leaf(cube(2))),
		b.Leaf(cube(3)),
	))
	tree := b.Tree()

	_, got := rewrite(tree, root)
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "group", Children: []outline{
			{Label: "color", Children: []outline{leafOutline("cube")}},
			{Label: "color", Children: []outline{leafOutline("cube")}},
			{Label: "color", Children: []outline{leafOutline("cube")}},
		}},
	}}, tree, got)

	g := tree.MustGet(tree.MustGet(got).Children[0])
	for i, c := range g.Children {
		assert.Equal(t, red, tree.MustGet(c).Data.(scene.ColorData).Color, "outer color wins, child %d", i)
	}
}

func TestTransformAndColorWrapOrder(t *testing.T) {
	b := scene.NewBuilder()
	blue := geom.RGBA(0, 0, 1, 1)
	root := b.Root(b.Color(blue, b.Translate(v3.Vec{Z: 3}, b.Leaf(cube(1)), b.Leaf(cube(2)))))
	tree := b.Tree()

	_, got := rewrite(tree, root)
	// The color cannot move through the transform; the transform spreads
	// over both leaves and the group it leaves behind is merged into the
	// color node.
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "color", Children: []outline{
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
		}},
	}}, tree, got)
}

func TestSingularTransformNotPushed(t *testing.T) {
	b := scene.NewBuilder()
	flat := b.Scale(v3.Vec{X: 1, Y: 1, Z: 0}, b.Union(b.Leaf(cube(1)), b.Leaf(cube(2))))
	root := b.Root(flat)
	tree := b.Tree()

	f, got := rewrite(tree, root, WithFlattenAssociative(false))
	assert.Equal(t, root, got)
	assert.Zero(t, f.Stats().Absorbed)
}

func TestHullPushThroughOption(t *testing.T) {
	build := func() (*scene.Tree, scene.NodeID) {
		b := scene.NewBuilder()
		root := b.Root(b.Translate(v3.Vec{X: 1}, b.Hull(b.Leaf(cube(1)), b.Leaf(cube(2)))))
		return b.Tree(), root
	}

	tree, root := build()
	_, got := rewrite(tree, root)
	assert.Equal(t, root, got, "hull blocks pushdown by default")

	tree, root = build()
	_, got = rewrite(tree, root, WithPushThroughHull(true))
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "hull", Children: []outline{
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
		}},
	}}, tree, got)
}

func TestCloneFailureFallsBackToWrapping(t *testing.T) {
	b := scene.NewBuilder()
	tree := b.Tree()
	a := b.Leaf(cube(1))
	bare := tree.Add(&scene.Node{Kind: scene.KindGroup, Children: []scene.NodeID{a}})
	root := b.Root(b.Translate(v3.Vec{X: 5}, bare, b.Leaf(cube(2))))

	_, got := rewrite(tree, root, WithFlattenAssociative(false))
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "group", Children: []outline{
			{Label: "multmatrix", Children: []outline{
				{Label: "group", Children: []outline{leafOutline("cube")}},
			}},
			{Label: "multmatrix", Children: []outline{leafOutline("cube")}},
		}},
	}}, tree, got)

	g := tree.MustGet(tree.MustGet(got).Children[0])
	assert.Equal(t, bare, tree.MustGet(g.Children[0]).Children[0])
}

func TestIntersectionDoesNotInlineGroups(t *testing.T) {
	b := scene.NewBuilder()
	root := b.Root(b.Intersection(
		b.Leaf(cube(4)),
		b.Group(b.Leaf(cube(1)), b.Leaf(cube(2))),
		b.Intersection(b.Leaf(cube(3)), b.Leaf(cube(5))),
	))
	tree := b.Tree()

	_, got := rewrite(tree, root)
	diffOutline(t, outline{Label: "root", Children: []outline{
		{Label: "intersection", Children: []outline{
			leafOutline("cube"),
			{Label: "group", Children: []outline{leafOutline("cube"), leafOutline("cube")}},
			leafOutline("cube"),
			leafOutline("cube"),
		}},
	}}, tree, got)
}

func TestSingleChildOperatorCollapses(t *testing.T) {
	b := scene.NewBuilder()
	leaf := b.Leaf(cube(1))
	root := b.Root(b.Difference(b.Union(b.Group(leaf)), b.Leaf(cube(2))))
	tree := b.Tree()

	f, got := rewrite(tree, root)
	d := tree.MustGet(tree.MustGet(got).Children[0])
	assert.Equal(t, leaf, d.Children[0])
	assert.Equal(t, 1, f.Stats().Collapsed)
}

func TestFindRepeated(t *testing.T) {
	b := scene.NewBuilder()
	shared := b.Union(b.Leaf(cube(1)), b.Leaf(cube(2)))
	root := b.Root(shared, b.Translate(v3.Vec{X: 5}, shared), b.Leaf(cube(3)))
	tree := b.Tree()

	got := FindRepeated(tree, root)
	want := map[string]bool{tree.IDString(shared): true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindRepeated mismatch (-want +got):\n%s", diff)
	}
}

func TestOccurrencesAcrossTrees(t *testing.T) {
	build := func(size float64) (*scene.Tree, scene.NodeID) {
		b := scene.NewBuilder()
		return b.Tree(), b.Root(b.Leaf(cube(size)))
	}
	t1, r1 := build(1)
	t2, r2 := build(1)
	t3, r3 := build(2)

	o := Occurrences{}
	o.Count(t1, r1)
	o.Count(t2, r2)
	o.Count(t3, r3)

	rep := o.Repeated()
	assert.True(t, rep[t1.IDString(r1)])
	assert.False(t, rep[t3.IDString(r3)])
	// Counting stopped at the repeated root.
	assert.Equal(t, 1, o[t1.IDString(t1.MustGet(r1).Children[0])])
}
