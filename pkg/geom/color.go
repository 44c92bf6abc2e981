package geom

import "fmt"

// Color is an RGBA color with components in [0,1]. The zero value is the
// unset sentinel: a node tree without a color node leaves it unset.
type Color struct {
	R, G, B, A float64
	Valid      bool
}

// RGBA returns a set color.
func RGBA(r, g, b, a float64) Color {
	return Color{R: r, G: g, B: b, A: a, Valid: true}
}

// IsSet reports whether c carries a color.
func (c Color) IsSet() bool { return c.Valid }

func (c Color) String() string {
	if !c.Valid {
		return "unset"
	}
	return fmt.Sprintf("[%g, %g, %g, %g]", c.R, c.G, c.B, c.A)
}
