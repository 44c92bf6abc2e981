package scene

import (
	"fmt"
	"math"

	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/hashicorp/go-multierror"
)

// ValidationSeverity indicates whether a validation finding blocks evaluation
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks evaluation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (NoNode if tree-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID == NoNode {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %d: %s", e.Severity, e.NodeID, e.Message)
}

// ValidationResult bundles blocking errors and advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// Err aggregates the blocking findings into a single error, or nil.
func (r ValidationResult) Err() error {
	var merr *multierror.Error
	for _, e := range r.Errors {
		merr = multierror.Append(merr, e)
	}
	return merr.ErrorOrNil()
}

// Validate runs every check on the tree and returns the blocking findings
// as one aggregated error, or nil. It never mutates the tree.
func Validate(t *Tree) error {
	return Check(t).Err()
}

// Check runs every check on the tree and separates errors from warnings.
func Check(t *Tree) ValidationResult {
	var findings []ValidationError
	findings = append(findings, validateRoot(t)...)
	findings = append(findings, validateDAG(t)...)
	findings = append(findings, validateReferences(t)...)
	findings = append(findings, validatePayloads(t)...)

	var r ValidationResult
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			r.Warnings = append(r.Warnings, f)
		} else {
			r.Errors = append(r.Errors, f)
		}
	}
	return r
}

func validateRoot(t *Tree) []ValidationError {
	if t.Root == NoNode {
		return nil
	}
	if t.Get(t.Root) == nil {
		return []ValidationError{{
			NodeID:   NoNode,
			Message:  fmt.Sprintf("root handle %d does not exist", t.Root),
			Severity: SeverityError,
		}}
	}
	return nil
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = in current DFS path, black (2) = fully explored.
func validateDAG(t *Tree) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, t.Len())
	var errs []ValidationError

	var visit func(id NodeID) bool // returns true if cycle found
	visit = func(id NodeID) bool {
		n := t.Get(id)
		if n == nil {
			// Dangling reference; handled by validateReferences.
			return false
		}
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("cycle detected: node %d is part of a cycle", id),
				Severity: SeverityError,
			})
			return true
		}

		color[id] = gray
		for _, c := range n.Children {
			if visit(c) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for id := range t.nodes {
		if color[id] == white && visit(NodeID(id)) {
			// One cycle error is sufficient; stop early.
			break
		}
	}
	return errs
}

// validateReferences checks that every child handle points at a node.
func validateReferences(t *Tree) []ValidationError {
	var errs []ValidationError
	for _, n := range t.nodes {
		for _, c := range n.Children {
			if t.Get(c) == nil {
				errs = append(errs, ValidationError{
					NodeID:   n.ID,
					Message:  fmt.Sprintf("child reference %d does not exist", c),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validatePayloads checks that each node carries the payload its kind
// requires and flags parameters evaluation will discard.
func validatePayloads(t *Tree) []ValidationError {
	var errs []ValidationError
	bad := func(n *Node, sev ValidationSeverity, format string, args ...any) {
		errs = append(errs, ValidationError{NodeID: n.ID, Message: fmt.Sprintf(format, args...), Severity: sev})
	}

	for _, n := range t.nodes {
		switch n.Kind {
		case KindLeaf:
			d, ok := n.Data.(LeafData)
			if !ok || d.Shape == nil {
				bad(n, SeverityError, "leaf node has no shape")
			}
			if len(n.Children) > 0 {
				bad(n, SeverityWarning, "leaf node has %d children; they are ignored", len(n.Children))
			}
		case KindTransform:
			d, ok := n.Data.(TransformData)
			if !ok {
				bad(n, SeverityError, "transform node has payload %T", n.Data)
				continue
			}
			if !geom.IsFinite(d.Matrix) {
				bad(n, SeverityWarning, "transformation matrix contains NaN or Inf; subtree will be removed")
			}
		case KindColor:
			d, ok := n.Data.(ColorData)
			if !ok {
				bad(n, SeverityError, "color node has payload %T", n.Data)
				continue
			}
			for _, c := range []float64{d.Color.R, d.Color.G, d.Color.B, d.Color.A} {
				if c < 0 || c > 1 || math.IsNaN(c) {
					bad(n, SeverityWarning, "color component %g outside [0, 1]", c)
					break
				}
			}
		case KindCsg:
			d, ok := n.Data.(CsgData)
			if !ok {
				bad(n, SeverityError, "csg node has payload %T", n.Data)
				continue
			}
			if d.Op == kernel.OpResize && (d.NewSize.X < 0 || d.NewSize.Y < 0 || d.NewSize.Z < 0) {
				bad(n, SeverityError, "resize to negative size %v", d.NewSize)
			}
		}
	}
	return errs
}
