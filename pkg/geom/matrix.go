package geom

import (
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/image/math/f64"
)

// Mat4 is a 4x4 affine matrix in row major order: m[4*r+c].
type Mat4 = f64.Mat4

// Aff3 is the 2D affine slice of a Mat4, row major with an implicit [0 0 1] row.
type Aff3 = f64.Aff3

// Identity returns the 4x4 identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// IsIdentity reports whether m is exactly the identity.
func IsIdentity(m Mat4) bool {
	return m == Identity()
}

// Mul returns the product a*b. Applied to a point, b acts first.
func Mul(a, b Mat4) Mat4 {
	var r Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += a[4*i+k] * b[4*k+j]
			}
			r[4*i+j] = s
		}
	}
	return r
}

// Translate returns a translation matrix.
func Translate(v v3.Vec) Mat4 {
	m := Identity()
	m[3], m[7], m[11] = v.X, v.Y, v.Z
	return m
}

// Scale returns a scaling matrix.
func Scale(v v3.Vec) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = v.X, v.Y, v.Z
	return m
}

// RotateX returns a rotation about the X axis by rad radians.
func RotateX(rad float64) Mat4 {
	s, c := math.Sincos(rad)
	m := Identity()
	m[5], m[6] = c, -s
	m[9], m[10] = s, c
	return m
}

// RotateY returns a rotation about the Y axis by rad radians.
func RotateY(rad float64) Mat4 {
	s, c := math.Sincos(rad)
	m := Identity()
	m[0], m[2] = c, s
	m[8], m[10] = -s, c
	return m
}

// RotateZ returns a rotation about the Z axis by rad radians.
func RotateZ(rad float64) Mat4 {
	s, c := math.Sincos(rad)
	m := Identity()
	m[0], m[1] = c, -s
	m[4], m[5] = s, c
	return m
}

// RotateEuler rotates by Euler angles in degrees, X first, then Y, then Z.
func RotateEuler(deg v3.Vec) Mat4 {
	const rad = math.Pi / 180
	return Mul(RotateZ(deg.Z*rad), Mul(RotateY(deg.Y*rad), RotateX(deg.X*rad)))
}

// IsFinite reports whether every element of m is finite.
func IsFinite(m Mat4) bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Det3 returns the determinant of the linear (upper-left 3x3) part of m.
func Det3(m Mat4) float64 {
	return m[0]*(m[5]*m[10]-m[6]*m[9]) -
		m[1]*(m[4]*m[10]-m[6]*m[8]) +
		m[2]*(m[4]*m[9]-m[5]*m[8])
}

// Apply transforms the point p by m.
func Apply(m Mat4, p v3.Vec) v3.Vec {
	return v3.Vec{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// Inverse returns the inverse of the affine matrix m. The second result is
// false when the linear part is singular.
func Inverse(m Mat4) (Mat4, bool) {
	det := Det3(m)
	if det == 0 || math.IsNaN(det) {
		return Mat4{}, false
	}
	inv := 1 / det
	r := Identity()
	r[0] = (m[5]*m[10] - m[6]*m[9]) * inv
	r[1] = (m[2]*m[9] - m[1]*m[10]) * inv
	r[2] = (m[1]*m[6] - m[2]*m[5]) * inv
	r[4] = (m[6]*m[8] - m[4]*m[10]) * inv
	r[5] = (m[0]*m[10] - m[2]*m[8]) * inv
	r[6] = (m[2]*m[4] - m[0]*m[6]) * inv
	r[8] = (m[4]*m[9] - m[5]*m[8]) * inv
	r[9] = (m[1]*m[8] - m[0]*m[9]) * inv
	r[10] = (m[0]*m[5] - m[1]*m[4]) * inv
	r[3] = -(r[0]*m[3] + r[1]*m[7] + r[2]*m[11])
	r[7] = -(r[4]*m[3] + r[5]*m[7] + r[6]*m[11])
	r[11] = -(r[8]*m[3] + r[9]*m[7] + r[10]*m[11])
	return r, true
}

// Affine2D extracts the XY affine slice of m.
func Affine2D(m Mat4) Aff3 {
	return Aff3{
		m[0], m[1], m[3],
		m[4], m[5], m[7],
	}
}

// Det2 returns the determinant of the linear part of a.
func Det2(a Aff3) float64 {
	return a[0]*a[4] - a[1]*a[3]
}

// Apply2 transforms the planar point p by a.
func Apply2(a Aff3, p v2.Vec) v2.Vec {
	return v2.Vec{
		X: a[0]*p.X + a[1]*p.Y + a[2],
		Y: a[3]*p.X + a[4]*p.Y + a[5],
	}
}
