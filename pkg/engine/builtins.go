package engine

import (
	"fmt"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/scene"
	"github.com/chazu/solidcsg/pkg/shapes"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNode wraps a scene node handle so it can be passed between builtins.
type sexpNode struct {
	id    scene.NodeID
	label string
}

func (n *sexpNode) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s #%d)", n.label, n.id)
}
func (n *sexpNode) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a v3.Vec.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// A trailing keyword with no value is recorded as a flag set to true.
func parseArgs(args []zygo.Sexp) kwArgs {
	pa := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		switch {
		case !ok:
			pa.positional = append(pa.positional, args[i])
		case i+1 < len(args):
			pa.kw[name] = args[i+1]
			i++
		default:
			pa.kw[name] = &zygo.SexpBool{Val: true}
		}
	}
	return pa
}

func (pa kwArgs) float(key string, def float64) (float64, error) {
	v, ok := pa.kw[key]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func (pa kwArgs) int(key string, def int) (int, error) {
	f, err := pa.float(key, float64(def))
	return int(f), err
}

func (pa kwArgs) bool(key string) (bool, error) {
	v, ok := pa.kw[key]
	if !ok {
		return false, nil
	}
	b, err := toBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %s", describeSexp(s))
}

func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpInt:
		return v.Val != 0, nil
	}
	return false, fmt.Errorf("expected boolean, got %s", describeSexp(s))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %s", describeSexp(s))
}

// toVec3 accepts a vec3, or a single number n meaning (n n n).
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	f, err := toFloat64(s)
	if err != nil {
		return v3.Vec{}, fmt.Errorf("expected vec3 or number, got %s", describeSexp(s))
	}
	return v3.Vec{X: f, Y: f, Z: f}, nil
}

func toNode(s zygo.Sexp) (scene.NodeID, error) {
	if n, ok := s.(*sexpNode); ok {
		return n.id, nil
	}
	return scene.NoNode, fmt.Errorf("expected object, got %s", describeSexp(s))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, bool) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		items, err := zygo.ListToArray(v)
		return items, err == nil
	case *zygo.SexpArray:
		return v.Val, true
	case *zygo.SexpSentinel:
		return nil, v == zygo.SexpNull
	}
	return nil, false
}

// toChildren collects object arguments, splicing lists and arrays of
// objects so that (union (map f xs)) works.
func toChildren(args []zygo.Sexp) ([]scene.NodeID, error) {
	var out []scene.NodeID
	for _, a := range args {
		if items, ok := sexpListToSlice(a); ok {
			ids, err := toChildren(items)
			if err != nil {
				return nil, err
			}
			out = append(out, ids...)
			continue
		}
		id, err := toNode(a)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func describeSexp(s zygo.Sexp) string {
	return fmt.Sprintf("%T (%s)", s, s.SexpString(nil))
}

// parseColor resolves a CSS color name or a #rgb / #rrggbb hex string.
func parseColor(name string, alpha float64) (geom.Color, error) {
	var c colorful.Color
	if strings.HasPrefix(name, "#") {
		var err error
		if c, err = colorful.Hex(name); err != nil {
			return geom.Color{}, fmt.Errorf("invalid hex color %q", name)
		}
	} else {
		rgba, ok := colornames.Map[strings.ToLower(name)]
		if !ok {
			return geom.Color{}, fmt.Errorf("unknown color %q", name)
		}
		c, _ = colorful.MakeColor(rgba)
	}
	return geom.RGBA(c.R, c.G, c.B, alpha), nil
}

// ---------------------------------------------------------------------------
// Scene construction
// ---------------------------------------------------------------------------

// session collects the nodes one evaluation creates. Objects never used as
// a child of another object are the top level of the scene.
type session struct {
	b        *scene.Builder
	created  []scene.NodeID
	consumed map[scene.NodeID]bool
}

func newSession(filename string) *session {
	return &session{
		b:        scene.NewBuilder().At(scene.SourceRef{File: filename}),
		consumed: make(map[scene.NodeID]bool),
	}
}

func (s *session) node(id scene.NodeID, children []scene.NodeID) zygo.Sexp {
	for _, c := range children {
		s.consumed[c] = true
	}
	s.created = append(s.created, id)
	return &sexpNode{id: id, label: s.b.Tree().MustGet(id).Label()}
}

// finish adds the root over every top-level object and returns the tree.
func (s *session) finish() *scene.Tree {
	var top []scene.NodeID
	for _, id := range s.created {
		if !s.consumed[id] {
			top = append(top, id)
		}
	}
	s.b.Root(top...)
	return s.b.Tree()
}

type builtin func(pa kwArgs) (zygo.Sexp, error)

// registerBuiltins installs the scene builtins into a zygomys environment.
// Every builtin adds nodes to s.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *session) {
	add := func(name string, fn builtin) {
		env.AddFunction(name, func(env *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			res, err := fn(parseArgs(args))
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", strings.ReplaceAll(name, "_", "-"), err)
			}
			return res, nil
		})
	}

	// (vec3 1 2 3)
	add("vec3", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) != 3 {
			return nil, fmt.Errorf("requires exactly 3 arguments, got %d", len(pa.positional))
		}
		var xyz [3]float64
		for i, a := range pa.positional {
			f, err := toFloat64(a)
			if err != nil {
				return nil, err
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// Primitives
	// -----------------------------------------------------------------------

	// (cube 10) (cube (vec3 10 20 5) :center true)
	add("cube", func(pa kwArgs) (zygo.Sexp, error) {
		size := v3.Vec{X: 1, Y: 1, Z: 1}
		if len(pa.positional) > 0 {
			var err error
			if size, err = toVec3(pa.positional[0]); err != nil {
				return nil, err
			}
		}
		center, err := pa.bool("center")
		if err != nil {
			return nil, err
		}
		return s.node(s.b.Leaf(shapes.Cube{Size: size, Center: center}), nil), nil
	})

	// (sphere 5 :fn 32)
	add("sphere", func(pa kwArgs) (zygo.Sexp, error) {
		r, err := radius(pa, 1)
		if err != nil {
			return nil, err
		}
		fn, err := pa.int("fn", 0)
		if err != nil {
			return nil, err
		}
		return s.node(s.b.Leaf(shapes.Sphere{R: r, Fragments: fn}), nil), nil
	})

	// (cylinder :h 10 :r 2) (cylinder :h 10 :r1 3 :r2 1 :center true)
	add("cylinder", func(pa kwArgs) (zygo.Sexp, error) {
		h, err := pa.float("h", 1)
		if err != nil {
			return nil, err
		}
		r, err := radius(pa, 1)
		if err != nil {
			return nil, err
		}
		r1, err := pa.float("r1", r)
		if err != nil {
			return nil, err
		}
		r2, err := pa.float("r2", r)
		if err != nil {
			return nil, err
		}
		fn, err := pa.int("fn", 0)
		if err != nil {
			return nil, err
		}
		center, err := pa.bool("center")
		if err != nil {
			return nil, err
		}
		c := shapes.Cylinder{H: h, R1: r1, R2: r2, Fragments: fn, Center: center}
		return s.node(s.b.Leaf(c), nil), nil
	})

	// (square 4) (square 4 3 :center true)
	add("square", func(pa kwArgs) (zygo.Sexp, error) {
		size := v2.Vec{X: 1, Y: 1}
		for i, a := range pa.positional {
			if i > 1 {
				return nil, fmt.Errorf("takes at most 2 sizes")
			}
			f, err := toFloat64(a)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				size = v2.Vec{X: f, Y: f}
			} else {
				size.Y = f
			}
		}
		center, err := pa.bool("center")
		if err != nil {
			return nil, err
		}
		return s.node(s.b.Leaf(shapes.Square{Size: size, Center: center}), nil), nil
	})

	// (circle 3 :fn 16)
	add("circle", func(pa kwArgs) (zygo.Sexp, error) {
		r, err := radius(pa, 1)
		if err != nil {
			return nil, err
		}
		fn, err := pa.int("fn", 0)
		if err != nil {
			return nil, err
		}
		return s.node(s.b.Leaf(shapes.Circle{R: r, Fragments: fn}), nil), nil
	})

	// -----------------------------------------------------------------------
	// Transforms and color: (translate (vec3 10 0 0) child ...)
	// -----------------------------------------------------------------------

	transform := func(build func(v v3.Vec, children ...scene.NodeID) scene.NodeID) builtin {
		return func(pa kwArgs) (zygo.Sexp, error) {
			if len(pa.positional) == 0 {
				return nil, fmt.Errorf("requires a vector")
			}
			v, err := toVec3(pa.positional[0])
			if err != nil {
				return nil, err
			}
			kids, err := toChildren(pa.positional[1:])
			if err != nil {
				return nil, err
			}
			return s.node(build(v, kids...), kids), nil
		}
	}
	add("translate", transform(s.b.Translate))
	add("rotate", transform(s.b.Rotate))
	add("scale", transform(s.b.Scale))

	// (color "red" child ...) (color "#ff8800" :alpha 0.5 child ...)
	add("color", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) == 0 {
			return nil, fmt.Errorf("requires a color name")
		}
		name, err := toString(pa.positional[0])
		if err != nil {
			return nil, err
		}
		alpha, err := pa.float("alpha", 1)
		if err != nil {
			return nil, err
		}
		c, err := parseColor(name, alpha)
		if err != nil {
			return nil, err
		}
		kids, err := toChildren(pa.positional[1:])
		if err != nil {
			return nil, err
		}
		return s.node(s.b.Color(c, kids...), kids), nil
	})

	// -----------------------------------------------------------------------
	// Operators: (union child ...)
	// -----------------------------------------------------------------------

	operator := func(build func(children ...scene.NodeID) scene.NodeID) builtin {
		return func(pa kwArgs) (zygo.Sexp, error) {
			kids, err := toChildren(pa.positional)
			if err != nil {
				return nil, err
			}
			return s.node(build(kids...), kids), nil
		}
	}
	add("union", operator(s.b.Union))
	add("difference", operator(s.b.Difference))
	add("intersection", operator(s.b.Intersection))
	add("hull", operator(s.b.Hull))
	add("fill", operator(s.b.Fill))
	add("group", operator(s.b.Group))

	withConvexity := func(build func(convexity int, children ...scene.NodeID) scene.NodeID) builtin {
		return func(pa kwArgs) (zygo.Sexp, error) {
			convexity, err := pa.int("convexity", 1)
			if err != nil {
				return nil, err
			}
			kids, err := toChildren(pa.positional)
			if err != nil {
				return nil, err
			}
			return s.node(build(convexity, kids...), kids), nil
		}
	}
	add("minkowski", withConvexity(s.b.Minkowski))
	add("render", withConvexity(s.b.Render))

	// (resize (vec3 20 0 0) :auto true child ...)
	add("resize", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) == 0 {
			return nil, fmt.Errorf("requires a size")
		}
		size, err := toVec3(pa.positional[0])
		if err != nil {
			return nil, err
		}
		auto, err := pa.bool("auto")
		if err != nil {
			return nil, err
		}
		kids, err := toChildren(pa.positional[1:])
		if err != nil {
			return nil, err
		}
		id := s.b.Resize(size, [3]bool{auto, auto, auto}, 1, kids...)
		return s.node(id, kids), nil
	})

	// -----------------------------------------------------------------------
	// Modifiers and names: (highlight obj) (named "lid" obj)
	// They return the object they modify.
	// -----------------------------------------------------------------------

	modifier := func(set func(id scene.NodeID) scene.NodeID) builtin {
		return func(pa kwArgs) (zygo.Sexp, error) {
			if len(pa.positional) != 1 {
				return nil, fmt.Errorf("requires exactly one object")
			}
			id, err := toNode(pa.positional[0])
			if err != nil {
				return nil, err
			}
			set(id)
			return pa.positional[0], nil
		}
	}
	add("highlight", modifier(s.b.Highlight))
	add("background", modifier(s.b.Background))
	add("disable", modifier(s.b.Disable))
	add("show_only", modifier(s.b.ShowOnly))

	add("named", func(pa kwArgs) (zygo.Sexp, error) {
		if len(pa.positional) != 2 {
			return nil, fmt.Errorf("requires a name and an object")
		}
		name, err := toString(pa.positional[0])
		if err != nil {
			return nil, err
		}
		id, err := toNode(pa.positional[1])
		if err != nil {
			return nil, err
		}
		s.b.Named(id, name)
		return pa.positional[1], nil
	})
}

// radius reads the first positional argument, :r or :d.
func radius(pa kwArgs, def float64) (float64, error) {
	if len(pa.positional) > 0 {
		return toFloat64(pa.positional[0])
	}
	if _, ok := pa.kw["d"]; ok {
		d, err := pa.float("d", 0)
		return d / 2, err
	}
	return pa.float("r", def)
}
