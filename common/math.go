package common

import (
	"math"
)

func Sqr(a float32) float32 { return a * a }

func Clamp(v, mn, mx float32) float32 {
	if v < mn {
		return mn
	}
	if v > mx {
		return mx
	}
	return v
}

// Vert3 returns the i-th vertex of a packed [(x, y, z) * n] array.
func Vert3(verts []float32, i int) []float32 { return verts[i*3 : i*3+3] }

func Vset(dest []float32, x, y, z float32) {
	dest[0] = x
	dest[1] = y
	dest[2] = z
}

func Vcopy(dest, v []float32) {
	dest[0] = v[0]
	dest[1] = v[1]
	dest[2] = v[2]
}

func Vadd(dest, v1, v2 []float32) {
	dest[0] = v1[0] + v2[0]
	dest[1] = v1[1] + v2[1]
	dest[2] = v1[2] + v2[2]
}

func Vsub(dest, v1, v2 []float32) {
	dest[0] = v1[0] - v2[0]
	dest[1] = v1[1] - v2[1]
	dest[2] = v1[2] - v2[2]
}

func Vscale(dest, v []float32, t float32) {
	dest[0] = v[0] * t
	dest[1] = v[1] * t
	dest[2] = v[2] * t
}

// Vmad performs a scaled vector addition. (v1 + (v2 * s))
func Vmad(dest, v1, v2 []float32, s float32) {
	dest[0] = v1[0] + v2[0]*s
	dest[1] = v1[1] + v2[1]*s
	dest[2] = v1[2] + v2[2]*s
}

// Vlerp performs a linear interpolation between two vectors. (v1 toward v2)
func Vlerp(dest, v1, v2 []float32, t float32) {
	dest[0] = v1[0] + (v2[0]-v1[0])*t
	dest[1] = v1[1] + (v2[1]-v1[1])*t
	dest[2] = v1[2] + (v2[2]-v1[2])*t
}

func Vequal(p0, p1 []float32) bool {
	thr := Sqr(1.0 / 16384.0)
	return VdistSqr(p0, p1) < thr
}

func Vdot(v1, v2 []float32) float32 {
	return v1[0]*v2[0] + v1[1]*v2[1] + v1[2]*v2[2]
}

func Vlen(v []float32) float32 {
	return float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
}

func VlenSqr(v []float32) float32 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

func Vdist(v1, v2 []float32) float32 {
	return float32(math.Sqrt(float64(VdistSqr(v1, v2))))
}

func VdistSqr(v1, v2 []float32) float32 {
	dx := v2[0] - v1[0]
	dy := v2[1] - v1[1]
	dz := v2[2] - v1[2]
	return dx*dx + dy*dy + dz*dz
}

func Vnormalize(v []float32) {
	d := Vlen(v)
	if d == 0 {
		return
	}
	d = 1.0 / d
	v[0] *= d
	v[1] *= d
	v[2] *= d
}

// / @name xz-plane helpers. The y-values are ignored.
// / @{

func Vdot2D(u, v []float32) float32 {
	return u[0]*v[0] + u[2]*v[2]
}

// Vperp2D derives the xz-plane 2D perp product of the two vectors. (uz*vx - ux*vz)
func Vperp2D(u, v []float32) float32 {
	return u[2]*v[0] - u[0]*v[2]
}

func Vdist2D(v1, v2 []float32) float32 {
	dx := v2[0] - v1[0]
	dz := v2[2] - v1[2]
	return float32(math.Sqrt(float64(dx*dx + dz*dz)))
}

func Vdist2DSqr(v1, v2 []float32) float32 {
	dx := v2[0] - v1[0]
	dz := v2[2] - v1[2]
	return dx*dx + dz*dz
}

// TriArea2D derives the signed xz-plane area of the triangle ABC, or the
// relationship of line AB to point C.
func TriArea2D(a, b, c []float32) float32 {
	abx := b[0] - a[0]
	abz := b[2] - a[2]
	acx := c[0] - a[0]
	acz := c[2] - a[2]
	return acx*abz - abx*acz
}

/// @}

func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func Visfinite(v []float32) bool {
	return IsFinite(v[0]) && IsFinite(v[1]) && IsFinite(v[2])
}

// DistancePtSegSqr2D returns the squared xz-distance from pt to segment pq
// and the parametric position of the closest point on the segment.
func DistancePtSegSqr2D(pt, p, q []float32) (t, distSqr float32) {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqz*pqz
	t = pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return t, dx*dx + dz*dz
}

// ClosestHeightPointTriangle derives the y-coordinate of the triangle at the
// xz-position of p via scaled barycentric coordinates.
func ClosestHeightPointTriangle(p, a, b, c []float32) (h float32, ok bool) {
	const eps = 1e-6
	v0 := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	v1 := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	v2 := [3]float32{p[0] - a[0], p[1] - a[1], p[2] - a[2]}

	denom := v0[0]*v1[2] - v0[2]*v1[0]
	if math.Abs(float64(denom)) < eps {
		return 0, false
	}
	u := v1[2]*v2[0] - v1[0]*v2[2]
	v := v0[0]*v2[2] - v0[2]*v2[0]

	if denom < 0 {
		denom = -denom
		u = -u
		v = -v
	}

	if u >= 0 && v >= 0 && (u+v) <= denom {
		return a[1] + (v0[1]*u+v1[1]*v)/denom, true
	}
	return 0, false
}

// DistancePtPolyEdgesSqr computes, for each polygon edge, the squared
// xz-distance from pt and the closest parametric position, and reports
// whether pt lies inside the polygon (pnpoly).
func DistancePtPolyEdgesSqr(pt, verts []float32, nverts int, ed, et []float32) (inside bool) {
	i := 0
	j := nverts - 1
	for i < nverts {
		vi := Vert3(verts, i)
		vj := Vert3(verts, j)
		if ((vi[2] > pt[2]) != (vj[2] > pt[2])) &&
			(pt[0] < (vj[0]-vi[0])*(pt[2]-vi[2])/(vj[2]-vi[2])+vi[0]) {
			inside = !inside
		}
		et[j], ed[j] = DistancePtSegSqr2D(pt, vj, vi)
		j = i
		i++
	}
	return inside
}

// RandomPointInConvexPoly returns a random point in a convex polygon.
// Adapted from the Graphics Gems article. s and t are uniform [0,1) samples.
func RandomPointInConvexPoly(pts []float32, npts int, areas []float32, s, t float32, out []float32) {
	// Calc triangle areas.
	areasum := float32(0)
	for i := 2; i < npts; i++ {
		areas[i] = TriArea2D(Vert3(pts, 0), Vert3(pts, i-1), Vert3(pts, i))
		areasum += max32(0.001, areas[i])
	}
	// Find sub triangle weighted by area.
	thr := s * areasum
	acc := float32(0)
	u := float32(1)
	tri := npts - 1
	for i := 2; i < npts; i++ {
		dacc := max32(0.001, areas[i])
		if thr >= acc && thr < (acc+dacc) {
			u = (thr - acc) / dacc
			tri = i
			break
		}
		acc += dacc
	}

	v := float32(math.Sqrt(float64(t)))

	a := 1 - v
	b := (1 - u) * v
	c := u * v
	pa := Vert3(pts, 0)
	pb := Vert3(pts, tri-1)
	pc := Vert3(pts, tri)

	out[0] = a*pa[0] + b*pb[0] + c*pc[0]
	out[1] = a*pa[1] + b*pb[1] + c*pc[1]
	out[2] = a*pa[2] + b*pb[2] + c*pc[2]
}

// IntersectSegmentPoly2D clips the segment p0->p1 against a convex polygon on
// the xz-plane, returning the entry/exit parameters and edge indices.
func IntersectSegmentPoly2D(p0, p1, verts []float32, nverts int) (tmin, tmax float32, segMin, segMax int, ok bool) {
	const eps = 0.000001

	tmin = 0
	tmax = 1
	segMin = -1
	segMax = -1
	var dir [3]float32
	Vsub(dir[:], p1, p0)

	i := 0
	j := nverts - 1
	for i < nverts {
		var edge, diff [3]float32
		Vsub(edge[:], Vert3(verts, i), Vert3(verts, j))
		Vsub(diff[:], p0, Vert3(verts, j))
		n := Vperp2D(edge[:], diff[:])
		d := Vperp2D(dir[:], edge[:])
		if math.Abs(float64(d)) < eps {
			// Segment is nearly parallel to this edge.
			if n < 0 {
				return tmin, tmax, segMin, segMax, false
			}
			j = i
			i++
			continue
		}
		t := n / d
		if d < 0 {
			// Segment is entering across this edge.
			if t > tmin {
				tmin = t
				segMin = j
				if tmin > tmax {
					return tmin, tmax, segMin, segMax, false
				}
			}
		} else {
			// Segment is leaving across this edge.
			if t < tmax {
				tmax = t
				segMax = j
				if tmax < tmin {
					return tmin, tmax, segMin, segMax, false
				}
			}
		}
		j = i
		i++
	}

	return tmin, tmax, segMin, segMax, true
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
