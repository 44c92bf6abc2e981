package kernel

import (
	"errors"
	"testing"
)

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpUnion, "union"},
		{OpIntersection, "intersection"},
		{OpDifference, "difference"},
		{OpMinkowski, "minkowski"},
		{OpHull, "hull"},
		{OpFill, "fill"},
		{OpResize, "resize"},
		{Op(42), "Op(42)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.op.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&Error{Op: "union", Err: cause})

	if got, want := err.Error(), "kernel: union: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	var kerr *Error
	if !errors.As(err, &kerr) || kerr.Op != "union" {
		t.Errorf("errors.As did not recover *Error with Op=union")
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf("hull", "need %d points", 4)
	if got, want := err.Error(), "kernel: hull: need 4 points"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
