// Package evaluate computes the geometry of scene subtrees. Evaluation is
// a single depth-first walk: every node's result is built from its
// children's results at its postfix visit and memoized in a cache keyed by
// canonical subtree identity, so shared and repeated subtrees are computed
// once.
package evaluate

import (
	"fmt"
	"log/slog"

	"github.com/chazu/solidcsg/pkg/cache"
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/lazy"
	"github.com/chazu/solidcsg/pkg/scene"
	"github.com/chazu/solidcsg/pkg/traverse"
)

// Warning is a non-fatal problem found while evaluating a node. The node's
// result is dropped or replaced by empty geometry.
type Warning struct {
	Node    scene.NodeID
	Source  scene.SourceRef
	Message string
}

func (w Warning) String() string {
	if loc := w.Source.String(); loc != "" {
		return fmt.Sprintf("%s: %s", loc, w.Message)
	}
	return w.Message
}

// assertion is the panic value for broken evaluator invariants. Operator
// recovery re-raises it.
type assertion string

func (a assertion) Error() string { return string(a) }

// Stats counts evaluation work.
type Stats struct {
	Nodes          int // prefix visits
	CacheHits      int
	CacheMisses    int
	Leaves         int // leaf geometries created
	BackendCalls   int
	DisjointUnions int // unions answered without the backend
	ExactUnions    int
}

// Options configures an Evaluator.
type Options struct {
	// LazyUnion keeps top-level objects apart: the root evaluates to a
	// *geom.List instead of their union.
	LazyUnion bool

	// ValidateFastUnion checks disjoint mesh unions for manifoldness and
	// falls back to the backend when the check fails.
	ValidateFastUnion bool

	Cache  *cache.Cache
	Logger *slog.Logger
}

// Option modifies Options.
type Option func(*Options)

func WithLazyUnion(on bool) Option         { return func(o *Options) { o.LazyUnion = on } }
func WithValidateFastUnion(on bool) Option { return func(o *Options) { o.ValidateFastUnion = on } }
func WithLogger(l *slog.Logger) Option     { return func(o *Options) { o.Logger = l } }

// WithCache shares c between evaluators. By default each evaluator owns a
// fresh cache.
func WithCache(c *cache.Cache) Option { return func(o *Options) { o.Cache = c } }

// side holds the items kept out of a node's result: re-emitted highlighted
// operands and background children, in the node's coordinate frame.
type side struct {
	highlights  []geom.Geometry
	backgrounds []geom.Geometry
}

func (s *side) merge(o side) {
	s.highlights = append(s.highlights, o.highlights...)
	s.backgrounds = append(s.backgrounds, o.backgrounds...)
}

func (s side) transform(m geom.Mat4) side {
	out := side{
		highlights:  make([]geom.Geometry, len(s.highlights)),
		backgrounds: make([]geom.Geometry, len(s.backgrounds)),
	}
	for i, g := range s.highlights {
		out.highlights[i] = geom.Transform(g, m)
	}
	for i, g := range s.backgrounds {
		out.backgrounds[i] = geom.Transform(g, m)
	}
	return out
}

// child is one evaluated operand waiting for its parent's postfix visit.
type child struct {
	node *scene.Node
	g    *lazy.Geometry
	hl   bool
}

// frame collects the results of a node's children.
type frame struct {
	children []child
	side     side
	tainted  bool // a descendant's backend call failed
}

// outcome is the result of one node.
type outcome struct {
	g         *lazy.Geometry
	hl        bool // the whole result is highlighted
	side      side
	cacheable bool

	// items are the operands a list node passes through to its parent.
	items []child
}

// memo remembers what the geometry cache cannot hold for a key.
type memo struct {
	hl   bool
	side side
}

// Evaluator evaluates subtrees of one scene tree. It is not safe for
// concurrent use; the cache it holds may be shared.
type Evaluator struct {
	tree    *scene.Tree
	backend *meteredBackend
	cache   *cache.Cache
	unioner *lazy.Unioner
	opts    Options
	log     *slog.Logger
	walker  traverse.Walker

	running    bool
	allowExact bool
	visited    map[scene.NodeID]*frame
	early      map[scene.NodeID]outcome
	memos      map[string]memo
	result     *outcome

	stats       Stats
	warnings    []Warning
	highlights  []geom.Geometry
	backgrounds []geom.Geometry
}

// New creates an evaluator for t using backend for everything the lazy
// union cannot answer.
func New(t *scene.Tree, backend kernel.Backend, opts ...Option) *Evaluator {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Cache == nil {
		o.Cache = cache.New(cache.WithLogger(o.Logger))
	}
	e := &Evaluator{
		tree:    t,
		cache:   o.Cache,
		opts:    o,
		log:     o.Logger,
		visited: make(map[scene.NodeID]*frame),
		early:   make(map[scene.NodeID]outcome),
		memos:   make(map[string]memo),
		walker:  traverse.Walker{Tree: t, Counters: &traverse.Counters{}},
	}
	e.backend = &meteredBackend{Backend: backend, calls: &e.stats.BackendCalls}
	e.unioner = &lazy.Unioner{
		Backend:  e.backend,
		Validate: o.ValidateFastUnion,
		Logger:   o.Logger,
	}
	return e
}

// Tree returns the tree being evaluated.
func (e *Evaluator) Tree() *scene.Tree { return e.tree }

// Cache returns the geometry cache.
func (e *Evaluator) Cache() *cache.Cache { return e.cache }

// Backend returns the backend the evaluator calls, with call counting.
func (e *Evaluator) Backend() kernel.Backend { return e.backend }

// Stats returns the work done so far.
func (e *Evaluator) Stats() Stats {
	s := e.stats
	us := e.unioner.Stats()
	s.DisjointUnions = us.Disjoint
	s.ExactUnions = us.Exact
	return s
}

// Counters returns the accumulated traversal counters.
func (e *Evaluator) Counters() traverse.Counters { return *e.walker.Counters }

// Warnings returns every warning raised so far.
func (e *Evaluator) Warnings() []Warning { return e.warnings }

// Highlights returns the highlighted geometry set aside by the last
// evaluation, in the coordinates of the evaluated node.
func (e *Evaluator) Highlights() []geom.Geometry { return e.highlights }

// Background returns the background geometry excluded by the last
// evaluation, in the coordinates of the evaluated node.
func (e *Evaluator) Background() []geom.Geometry { return e.backgrounds }

// EvaluateTree evaluates the effective root of the tree.
func (e *Evaluator) EvaluateTree(allowExact bool) geom.Geometry {
	return e.EvaluateGeometry(e.tree.EffectiveRoot(), allowExact)
}

// EvaluateGeometry returns the geometry of the subtree under id. With
// allowExact false, exact backend solids in the result are converted to
// meshes. Backend failures become empty geometry and a warning; the
// function itself never fails. Calling it from inside an evaluation, or on
// a cyclic tree, panics.
func (e *Evaluator) EvaluateGeometry(id scene.NodeID, allowExact bool) geom.Geometry {
	if e.running {
		panic(assertion("evaluate: re-entrant evaluation"))
	}
	e.running = true
	defer func() { e.running = false }()

	e.allowExact = allowExact
	e.highlights, e.backgrounds = nil, nil
	n := e.tree.MustGet(id)
	key := e.tree.IDString(id)

	var out outcome
	if g, ok := e.lookup(key, e.allowExact); ok {
		m := e.memoFor(key, n)
		out = outcome{g: lazy.New(g, key, n.Source()), hl: m.hl, side: m.side}
	} else {
		e.result = nil
		e.walker.Walk(id, traverse.VisitorFunc(e.visit))
		if e.result == nil {
			panic(assertion(fmt.Sprintf("evaluate: walk of node %d produced no result", id)))
		}
		out = *e.result
		e.result = nil
	}

	g := out.g.Geometry()
	if !allowExact {
		g = e.approximate(key, g)
	}
	e.backgrounds = out.side.backgrounds
	e.highlights = out.side.highlights
	if out.hl && !geom.IsEmpty(g) {
		e.highlights = append(e.highlights, g)
	}
	return g
}

// lookup probes the cache. With preferExact an exact entry wins over an
// approximate one.
func (e *Evaluator) lookup(key string, preferExact bool) (geom.Geometry, bool) {
	g, ok := e.cache.Get(key, preferExact)
	if ok {
		e.stats.CacheHits++
	} else {
		e.stats.CacheMisses++
	}
	return g, ok
}

func (e *Evaluator) memoFor(key string, n *scene.Node) memo {
	if m, ok := e.memos[key]; ok {
		return m
	}
	return memo{hl: n.IsHighlight()}
}

// approximate converts exact solids in g to meshes and caches the meshes
// in the approximate store under key.
func (e *Evaluator) approximate(key string, g geom.Geometry) geom.Geometry {
	switch v := g.(type) {
	case *geom.Exact:
		if v.IsEmpty() {
			return geom.Empty{}
		}
		if m, ok := e.cache.GetFrom(cache.Approximate, key); ok {
			return m
		}
		m, err := e.toMesh(v)
		if err != nil {
			e.warnf(nil, "cannot tessellate exact result: %v", err)
			return geom.Empty{}
		}
		e.insert(nil, key, m)
		return m
	case *geom.List:
		out := &geom.List{Items: make([]geom.Item, len(v.Items))}
		for i, it := range v.Items {
			itemKey := key
			if n := e.tree.Get(scene.NodeID(it.Node)); n != nil {
				itemKey = e.tree.IDString(n.ID)
			}
			out.Items[i] = geom.Item{Node: it.Node, Geometry: e.approximate(itemKey, it.Geometry)}
		}
		return out
	default:
		return g
	}
}

func (e *Evaluator) toMesh(g geom.Geometry) (m *geom.Mesh, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.backend.ToMesh(g)
}

// insert stores g and warns when the cache refuses it.
func (e *Evaluator) insert(n *scene.Node, key string, g geom.Geometry) {
	if !e.cache.Insert(key, g) {
		e.warnf(n, "geometry too large for %s cache (cost %d)", cache.StoreFor(g), g.Cost())
	}
}

func (e *Evaluator) warnf(n *scene.Node, format string, args ...any) {
	w := Warning{Node: scene.NoNode, Message: fmt.Sprintf(format, args...)}
	if n != nil {
		w.Node = n.ID
		w.Source = n.Source()
	}
	e.warnings = append(e.warnings, w)
	e.log.Warn(w.Message,
		slog.Int("node", int(w.Node)),
		slog.String("source", w.Source.String()),
	)
}

// visit is the traversal callback.
func (e *Evaluator) visit(state *traverse.State, n *scene.Node) traverse.Response {
	if state.IsPrefix() {
		return e.enter(state, n)
	}
	e.leave(state, n)
	return traverse.ContinueTraversal
}

func (e *Evaluator) enter(state *traverse.State, n *scene.Node) traverse.Response {
	e.stats.Nodes++
	if n.IsBackground() {
		state.SetBackground(true)
	}
	if n.IsHighlight() {
		state.SetHighlight(true)
	}
	if state.Depth() == 0 {
		state.SetPreferExact(e.allowExact)
	}

	// The node a walk starts at was probed by EvaluateGeometry.
	key := e.tree.IDString(n.ID)
	if state.Depth() > 0 {
		if g, ok := e.lookup(key, state.PreferExact()); ok {
			m := e.memoFor(key, n)
			e.early[n.ID] = outcome{g: lazy.New(g, key, n.Source()), hl: m.hl, side: m.side, cacheable: true}
			return traverse.PruneTraversal
		}
	}

	if exactOperands(n) {
		state.SetPreferExact(true)
	}

	switch n.Kind {
	case scene.KindLeaf:
		return traverse.PruneTraversal
	case scene.KindTransform:
		d := n.Data.(scene.TransformData)
		if !geom.IsFinite(d.Matrix) {
			e.warnf(n, "transformation matrix contains NaN or Inf; removing subtree")
			e.early[n.ID] = outcome{g: lazy.New(geom.Empty{}, key, n.Source()), hl: n.IsHighlight(), cacheable: true}
			return traverse.PruneTraversal
		}
		state.SetMatrix(geom.Mul(state.Matrix(), d.Matrix))
	case scene.KindColor:
		if !state.Color().IsSet() {
			state.SetColor(n.Data.(scene.ColorData).Color)
		}
	}
	e.visited[n.ID] = &frame{}
	return traverse.ContinueTraversal
}

// exactOperands reports whether the children of n are operands of a
// boolean or Minkowski sum, which take exact geometry when it is cached.
func exactOperands(n *scene.Node) bool {
	d, ok := n.Csg()
	if !ok || n.Kind != scene.KindCsg {
		return false
	}
	switch d.Op {
	case kernel.OpUnion, kernel.OpIntersection, kernel.OpDifference, kernel.OpMinkowski:
		return true
	}
	return false
}

func (e *Evaluator) leave(state *traverse.State, n *scene.Node) {
	out, ok := e.early[n.ID]
	if ok {
		delete(e.early, n.ID)
	} else {
		f := e.visited[n.ID]
		delete(e.visited, n.ID)
		if f == nil {
			f = &frame{}
		}
		out = e.compute(n, f)
		if out.cacheable {
			key := e.tree.IDString(n.ID)
			e.insert(n, key, out.g.Geometry())
			e.memos[key] = memo{hl: out.hl, side: out.side}
		}
	}
	e.addToParent(state, n, out)
}

// addToParent hands a node's outcome to its parent's frame, or makes it
// the walk's result at the top.
func (e *Evaluator) addToParent(state *traverse.State, n *scene.Node, out outcome) {
	parent := state.Parent()
	if parent == nil {
		e.result = &out
		return
	}
	f := e.visited[parent.ID]
	if f == nil {
		panic(assertion(fmt.Sprintf("evaluate: no frame for parent %d of node %d", parent.ID, n.ID)))
	}
	f.side.merge(out.side)
	f.tainted = f.tainted || !out.cacheable
	if n.IsBackground() {
		if !out.g.IsEmpty() {
			f.side.backgrounds = append(f.side.backgrounds, out.g.Geometry())
		}
		return
	}
	if out.items != nil {
		f.children = append(f.children, out.items...)
		return
	}
	if l, ok := out.g.Geometry().(*geom.List); ok {
		for _, it := range l.Flatten() {
			node := e.tree.Get(scene.NodeID(it.Node))
			if node == nil {
				node = n
			}
			f.children = append(f.children, child{
				node: node,
				g:    lazy.New(it.Geometry, "", node.Source()),
				hl:   out.hl,
			})
		}
		return
	}
	f.children = append(f.children, child{node: n, g: out.g, hl: out.hl})
}
