//go:build !manifold

// Package manifold provides a CGo-based boolean backend binding to the
// Manifold library. When the "manifold" build tag is not set, this stub
// package is compiled instead, returning an error from New().
//
// Build with: go build -tags=manifold
package manifold

import (
	"errors"

	"github.com/chazu/solidcsg/pkg/kernel"
)

// ErrUnavailable is returned by New when the package was built without the
// manifold tag.
var ErrUnavailable = errors.New("manifold backend not available: build with -tags=manifold")

// New returns ErrUnavailable. Build with -tags=manifold to enable.
func New(fallback kernel.Backend) (kernel.Backend, error) {
	return nil, ErrUnavailable
}
