package scene

import (
	"fmt"
	"strings"
	"sync"
)

// Tree is an arena of scene nodes addressed by NodeID. Parents refer to
// children by handle, so a subtree may be shared by several parents. Nodes
// are only ever appended; rewriting passes add nodes and move Root.
type Tree struct {
	Root NodeID

	nodes []*Node

	mu       sync.Mutex
	ids      map[NodeID]string
	inflight map[NodeID]bool
}

// New creates an empty Tree.
func New() *Tree {
	return &Tree{Root: NoNode}
}

// Add appends n to the tree, assigns its handle and returns it. A node
// without an instantiation record gets a fresh one named after its label.
func (t *Tree) Add(n *Node) NodeID {
	n.ID = NodeID(len(t.nodes))
	if n.Inst == nil {
		n.Inst = &Instance{Name: n.Label()}
	}
	t.nodes = append(t.nodes, n)
	return n.ID
}

// Get returns the node with the given handle, or nil.
func (t *Tree) Get(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// MustGet returns the node with the given handle, or panics.
func (t *Tree) MustGet(id NodeID) *Node {
	n := t.Get(id)
	if n == nil {
		panic(fmt.Sprintf("scene: no node with handle %d", id))
	}
	return n
}

// Len returns the number of nodes in the arena, reachable or not.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Children returns the child nodes of n, skipping dangling handles.
func (t *Tree) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c := t.Get(cid); c != nil {
			children = append(children, c)
		}
	}
	return children
}

// Clone adds a copy of n with the given children under a new handle. The
// instantiation record is shared with n. It reports false when n has no
// payload to copy.
func (t *Tree) Clone(n *Node, children []NodeID) (NodeID, bool) {
	if n.Data == nil {
		return NoNode, false
	}
	c := &Node{
		Kind:     n.Kind,
		Name:     n.Name,
		Inst:     n.Inst,
		Children: append([]NodeID(nil), children...),
		Data:     n.Data,
	}
	return t.Add(c), true
}

// SetModifiers replaces the modifiers of node id. It must be called before
// the tree is evaluated.
func (t *Tree) SetModifiers(id NodeID, mods Modifiers) {
	n := t.MustGet(id)
	inst := Instance{}
	if n.Inst != nil {
		inst = *n.Inst
	}
	inst.Mods = mods
	n.Inst = &inst

	t.mu.Lock()
	t.ids = nil
	t.mu.Unlock()
}

// Walk visits the subtree under id in pre-order. Disabled nodes are
// skipped along with their subtrees. Returning false from fn stops descent
// into the current node's children.
func (t *Tree) Walk(id NodeID, fn func(n *Node, depth int) bool) {
	var walk func(id NodeID, depth int)
	walk = func(id NodeID, depth int) {
		n := t.Get(id)
		if n == nil || n.IsDisabled() {
			return
		}
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(id, 0)
}

// EffectiveRoot returns the first root-flagged node under Root in pre-order,
// or Root when there is none.
func (t *Tree) EffectiveRoot() NodeID {
	found := NoNode
	t.Walk(t.Root, func(n *Node, _ int) bool {
		if found != NoNode {
			return false
		}
		if n.IsRoot() {
			found = n.ID
			return false
		}
		return true
	})
	if found == NoNode {
		return t.Root
	}
	return found
}

// IDString returns the canonical identity of the subtree under id: a
// deterministic description of node kinds, parameters, modifiers and
// children that ignores handles and names. Two subtrees with equal
// identity evaluate to equal geometry. Results are memoized per handle.
func (t *Tree) IDString(id NodeID) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ids == nil {
		t.ids = make(map[NodeID]string)
	}
	return t.idString(id)
}

func (t *Tree) idString(id NodeID) string {
	if s, ok := t.ids[id]; ok {
		return s
	}
	n := t.MustGet(id)
	if t.inflight == nil {
		t.inflight = make(map[NodeID]bool)
	}
	if t.inflight[id] {
		panic(fmt.Sprintf("scene: cycle through node %d", id))
	}
	t.inflight[id] = true
	defer delete(t.inflight, id)

	var sb strings.Builder
	if n.IsRoot() {
		sb.WriteByte('!')
	}
	if n.IsHighlight() {
		sb.WriteByte('#')
	}
	if n.IsBackground() {
		sb.WriteByte('%')
	}
	sb.WriteString(describe(n))

	var kids []string
	for _, c := range n.Children {
		cn := t.MustGet(c)
		if cn.IsDisabled() {
			continue
		}
		kids = append(kids, t.idString(c))
	}
	if len(kids) == 0 {
		sb.WriteByte(';')
	} else {
		sb.WriteByte('{')
		for _, k := range kids {
			sb.WriteString(k)
		}
		sb.WriteByte('}')
	}

	s := sb.String()
	t.ids[id] = s
	return s
}

// Dump renders the subtree under id as indented text, one node per line,
// with handles. It is meant for debugging rewritten trees.
func (t *Tree) Dump(id NodeID) string {
	var sb strings.Builder
	t.Walk(id, func(n *Node, depth int) bool {
		sb.WriteString(strings.Repeat("  ", depth))
		if n.IsRoot() {
			sb.WriteByte('!')
		}
		if n.IsHighlight() {
			sb.WriteByte('#')
		}
		if n.IsBackground() {
			sb.WriteByte('%')
		}
		fmt.Fprintf(&sb, "%s [%d]", describe(n), n.ID)
		if n.Name != "" {
			fmt.Fprintf(&sb, " %q", n.Name)
		}
		sb.WriteByte('\n')
		return true
	})
	return sb.String()
}
