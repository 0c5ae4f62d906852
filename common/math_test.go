package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriArea2DSign(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{0, 0, 1}
	c := []float32{1, 0, 1}

	// Clockwise on the xz-plane is positive.
	assert.InDelta(t, 1.0, TriArea2D(a, b, c), 1e-6)
	assert.InDelta(t, -1.0, TriArea2D(a, c, b), 1e-6)
	assert.InDelta(t, 0.0, TriArea2D(a, b, b), 1e-6)
}

func TestDistancePtSegSqr2D(t *testing.T) {
	p := []float32{0, 0, 0}
	q := []float32{10, 0, 0}

	tt, d := DistancePtSegSqr2D([]float32{5, 7, 3}, p, q)
	assert.InDelta(t, 0.5, tt, 1e-6)
	assert.InDelta(t, 9.0, d, 1e-5) // y is ignored

	// Beyond the segment end the parameter clamps.
	tt, d = DistancePtSegSqr2D([]float32{12, 0, 0}, p, q)
	assert.InDelta(t, 1.0, tt, 1e-6)
	assert.InDelta(t, 4.0, d, 1e-5)
}

func TestClosestHeightPointTriangle(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{0, 2, 2}
	c := []float32{2, 4, 2}

	h, ok := ClosestHeightPointTriangle([]float32{0.5, 99, 1}, a, b, c)
	require.True(t, ok)
	assert.InDelta(t, 1.5, h, 1e-4)

	// Outside the triangle.
	_, ok = ClosestHeightPointTriangle([]float32{5, 0, 5}, a, b, c)
	assert.False(t, ok)
}

func TestDistancePtPolyEdgesSqr(t *testing.T) {
	// Unit square, clockwise on xz.
	verts := []float32{
		0, 0, 0,
		0, 0, 1,
		1, 0, 1,
		1, 0, 0,
	}
	ed := make([]float32, 4)
	et := make([]float32, 4)

	assert.True(t, DistancePtPolyEdgesSqr([]float32{0.5, 0, 0.5}, verts, 4, ed, et))
	assert.False(t, DistancePtPolyEdgesSqr([]float32{1.5, 0, 0.5}, verts, 4, ed, et))
}

func TestIntersectSegmentPoly2D(t *testing.T) {
	verts := []float32{
		0, 0, 0,
		0, 0, 1,
		1, 0, 1,
		1, 0, 0,
	}

	// Segment crossing the square left to right.
	tmin, tmax, _, segMax, ok := IntersectSegmentPoly2D(
		[]float32{-1, 0, 0.5}, []float32{2, 0, 0.5}, verts, 4)
	require.True(t, ok)
	assert.InDelta(t, 1.0/3.0, tmin, 1e-5)
	assert.InDelta(t, 2.0/3.0, tmax, 1e-5)
	assert.NotEqual(t, -1, segMax)

	// Segment missing the square entirely.
	_, _, _, _, ok = IntersectSegmentPoly2D(
		[]float32{-1, 0, 5}, []float32{2, 0, 5}, verts, 4)
	assert.False(t, ok)
}

func TestVnormalize(t *testing.T) {
	v := []float32{3, 0, 4}
	Vnormalize(v)
	assert.InDelta(t, 1.0, Vlen(v), 1e-5)

	// Zero vector stays put instead of producing NaNs.
	z := []float32{0, 0, 0}
	Vnormalize(z)
	assert.True(t, Visfinite(z))
}
