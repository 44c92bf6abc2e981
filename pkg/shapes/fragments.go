package shapes

import (
	"math"

	"github.com/chazu/solidcsg/pkg/geom"
)

// Default resolution settings for round primitives.
const (
	DefaultFa = 12.0 // minimum angle per fragment, degrees
	DefaultFs = 2.0  // minimum fragment length
)

// Fragments returns the number of segments used to approximate a circle of
// radius r. A positive fn wins (at least 3); otherwise the count follows
// from the minimum angle fa and minimum edge length fs, never below 5.
func Fragments(r float64, fn int, fs, fa float64) int {
	if r < geom.GridFine || math.IsInf(r, 0) || math.IsNaN(r) {
		return 3
	}
	if fn > 0 {
		if fn < 3 {
			return 3
		}
		return fn
	}
	n := math.Ceil(math.Max(math.Min(360/fa, r*2*math.Pi/fs), 5))
	return int(n)
}
