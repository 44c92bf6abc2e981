// Package engine evaluates scene scripts. It wraps zygomys in a sandboxed
// environment with builtins for primitives, transforms, operators and
// modifiers, and produces a scene tree from user source code.
package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/solidcsg/pkg/scene"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	NodeID  scene.NodeID
}

// EvalResult bundles the full output of an evaluation.
type EvalResult struct {
	Tree     *scene.Tree
	Errors   []EvalError
	Warnings []EvalWarning
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilename sets the file name recorded as the source of every node.
func WithFilename(name string) Option { return func(e *Engine) { e.filename = name } }

// WithTimeout overrides EvalTimeout.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithLogger sets the logger used for evaluation diagnostics.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// Engine wraps the zygomys interpreter for scene evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	filename string
	timeout  time.Duration
	log      *slog.Logger
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: EvalTimeout}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Evaluate takes script source and produces a new scene tree whose root
// holds every top-level object.
//
// Return semantics:
//   - On success: returns tree + nil errors + nil error
//   - On parse/eval failure: returns nil tree + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*scene.Tree, []EvalError, error) {
	res, err := e.Run(source)
	if err != nil {
		return nil, nil, err
	}
	return res.Tree, res.Errors, nil
}

// Run is Evaluate with the warnings found while checking the tree.
func (e *Engine) Run(source string) (*EvalResult, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		res := e.evaluate(source)
		ch <- evalResult{res: res}
	}()

	res, err := waitWithTimeout(ch, gen, e.timeout, &e.mu, &e.generation)
	if err != nil {
		e.log.Error("evaluation failed", slog.String("file", e.filename), slog.Any("error", err))
		return nil, err
	}
	if len(res.Errors) > 0 {
		e.log.Debug("evaluation errors", slog.String("file", e.filename), slog.Int("count", len(res.Errors)))
	}
	return res, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) *EvalResult {
	s := newSession(e.filename)

	// Empty source is a valid program that produces an empty scene.
	if strings.TrimSpace(source) == "" {
		return &EvalResult{Tree: s.finish()}
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, s)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return &EvalResult{Errors: parseZygomysError(err)}
	}
	if _, err := env.Run(); err != nil {
		return &EvalResult{Errors: parseZygomysError(err)}
	}

	t := s.finish()
	check := scene.Check(t)
	if len(check.Errors) > 0 {
		res := &EvalResult{}
		for _, f := range check.Errors {
			res.Errors = append(res.Errors, EvalError{Line: lineOf(t, f.NodeID), Message: f.Error()})
		}
		return res
	}
	res := &EvalResult{Tree: t}
	for _, f := range check.Warnings {
		res.Warnings = append(res.Warnings, EvalWarning{
			Line:    lineOf(t, f.NodeID),
			Message: f.Message,
			NodeID:  f.NodeID,
		})
	}
	return res
}

func lineOf(t *scene.Tree, id scene.NodeID) int {
	if n := t.Get(id); n != nil {
		return n.Source().Line
	}
	return 0
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values,
// extracting a line number from the message when there is one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
