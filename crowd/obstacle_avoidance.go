package crowd

import (
	"math"

	"walkernav/common"
)

const (
	maxPatternDivs  = 32
	maxPatternRings = 4
)

// ObstacleAvoidanceParams tunes one quality tier of the velocity sampler.
type ObstacleAvoidanceParams struct {
	VelBias       float32
	WeightDesVel  float32
	WeightCurVel  float32
	WeightSide    float32
	WeightToi     float32
	HorizTime     float32
	AdaptiveDivs  int32 // samples per ring
	AdaptiveRings int32
	AdaptiveDepth int32 // refinement iterations
}

func defaultObstacleAvoidanceParams() ObstacleAvoidanceParams {
	return ObstacleAvoidanceParams{
		VelBias:       0.4,
		WeightDesVel:  2.0,
		WeightCurVel:  0.75,
		WeightSide:    0.75,
		WeightToi:     2.5,
		HorizTime:     2.5,
		AdaptiveDivs:  7,
		AdaptiveRings: 2,
		AdaptiveDepth: 5,
	}
}

type obstacleCircle struct {
	p    [3]float32 // position
	vel  [3]float32 // current velocity
	dvel [3]float32 // desired velocity
	rad  float32
	dp   [3]float32 // direction from the sampling agent, normalized
	np   [3]float32 // side normal used for the side penalty
}

// obstacleAvoidanceQuery samples candidate velocities against the nearby
// agent circles and picks the one with the lowest combined penalty.
type obstacleAvoidanceQuery struct {
	params       ObstacleAvoidanceParams
	invHorizTime float32
	vmax         float32
	invVmax      float32

	circles  []obstacleCircle
	ncircles int
}

func newObstacleAvoidanceQuery(maxCircles int) *obstacleAvoidanceQuery {
	return &obstacleAvoidanceQuery{
		circles: make([]obstacleCircle, maxCircles),
	}
}

func (q *obstacleAvoidanceQuery) reset() {
	q.ncircles = 0
}

func (q *obstacleAvoidanceQuery) addCircle(pos []float32, rad float32, vel, dvel []float32) {
	if q.ncircles >= len(q.circles) {
		return
	}
	c := &q.circles[q.ncircles]
	q.ncircles++
	common.Vcopy(c.p[:], pos)
	c.rad = rad
	common.Vcopy(c.vel[:], vel)
	common.Vcopy(c.dvel[:], dvel)
}

// prepare computes, per circle, the direction to the obstacle and the side
// normal relative to the agent's desired direction.
func (q *obstacleAvoidanceQuery) prepare(pos, dvel []float32) {
	orig := [3]float32{}
	for i := 0; i < q.ncircles; i++ {
		c := &q.circles[i]

		common.Vsub(c.dp[:], c.p[:], pos)
		common.Vnormalize(c.dp[:])

		var dv [3]float32
		common.Vsub(dv[:], c.dvel[:], dvel)

		a := common.TriArea2D(orig[:], c.dp[:], dv[:])
		if a < 0.01 {
			c.np[0] = -c.dp[2]
			c.np[2] = c.dp[0]
		} else {
			c.np[0] = c.dp[2]
			c.np[2] = -c.dp[0]
		}
	}
}

// sweepCircleCircle finds the times at which a circle of radius r0 moving
// along v touches a static circle of radius r1.
func sweepCircleCircle(c0 []float32, r0 float32, v []float32, c1 []float32, r1 float32) (tmin, tmax float32, ok bool) {
	const eps = 0.0001
	var s [3]float32
	common.Vsub(s[:], c1, c0)
	r := r0 + r1
	c := common.Vdot2D(s[:], s[:]) - r*r
	a := common.Vdot2D(v, v)
	if a < eps {
		return 0, 0, false
	}
	b := common.Vdot2D(v, s[:])
	d := b*b - a*c
	if d < 0 {
		return 0, 0, false
	}
	a = 1.0 / a
	rd := float32(math.Sqrt(float64(d)))
	return (b - rd) * a, (b + rd) * a, true
}

// processSample scores one candidate velocity. Lower is better. The score
// combines desired-velocity deviation, current-velocity deviation, passing
// side preference and time to first collision.
func (q *obstacleAvoidanceQuery) processSample(vcand, pos []float32, rad float32, vel, dvel []float32, minPenalty float32) float32 {
	vpen := q.params.WeightDesVel * common.Vdist2D(vcand, dvel) * q.invVmax
	vcpen := q.params.WeightCurVel * common.Vdist2D(vcand, vel) * q.invVmax

	// Earliest time of impact that could still beat minPenalty.
	minPen := minPenalty - vpen - vcpen
	tThreshold := (q.params.WeightToi/minPen - 0.1) * q.params.HorizTime
	if tThreshold-q.params.HorizTime > -math.SmallestNonzeroFloat32 {
		return minPenalty // tpen alone cannot beat minPenalty
	}

	tmin := q.params.HorizTime
	side := float32(0)
	nside := 0
	for i := 0; i < q.ncircles; i++ {
		c := &q.circles[i]

		// Relative velocity of the candidate against the obstacle.
		var vab [3]float32
		common.Vscale(vab[:], vcand, 2)
		common.Vsub(vab[:], vab[:], vel)
		common.Vsub(vab[:], vab[:], c.vel[:])

		side += common.Clamp(min32(common.Vdot2D(c.dp[:], vab[:])*0.5+0.5,
			common.Vdot2D(c.np[:], vab[:])*2), 0, 1)
		nside++

		htmin, htmax, ok := sweepCircleCircle(pos, rad, vab[:], c.p[:], c.rad)
		if !ok {
			continue
		}
		if htmin < 0 && htmax > 0 {
			// Already overlapping, avoid less aggressively.
			htmin = -htmin * 0.5
		}
		if htmin >= 0 && htmin < tmin {
			tmin = htmin
			if tmin < tThreshold {
				return minPenalty
			}
		}
	}
	if nside > 0 {
		side /= float32(nside)
	}

	spen := q.params.WeightSide * side
	tpen := q.params.WeightToi * (1.0 / (0.1 + tmin*q.invHorizTime))
	return vpen + vcpen + spen + tpen
}

// sampleVelocityAdaptive searches velocity space with a shrinking ring
// pattern oriented along the desired velocity, returning the sample count.
func (q *obstacleAvoidanceQuery) sampleVelocityAdaptive(pos []float32, rad, vmax float32,
	vel, dvel []float32, params *ObstacleAvoidanceParams, nvel []float32) int {

	q.params = *params
	q.invHorizTime = 1.0 / q.params.HorizTime
	q.vmax = vmax
	if vmax > 0 {
		q.invVmax = 1.0 / vmax
	} else {
		q.invVmax = float32(math.MaxFloat32)
	}
	q.prepare(pos, dvel)

	common.Vset(nvel, 0, 0, 0)

	var pat [(maxPatternDivs*maxPatternRings + 1) * 2]float32

	ndivs := int(common.Clamp(float32(q.params.AdaptiveDivs), 1, maxPatternDivs))
	nrings := int(common.Clamp(float32(q.params.AdaptiveRings), 1, maxPatternRings))
	depth := int(q.params.AdaptiveDepth)

	da := (1.0 / float32(ndivs)) * 2 * math.Pi
	ca := float32(math.Cos(float64(da)))
	sa := float32(math.Sin(float64(da)))

	// Desired direction and the same rotated by half a division; rings
	// alternate between the two so samples interleave.
	var ddir [6]float32
	common.Vcopy(ddir[:], dvel)
	normalize2D(ddir[:])
	rotate2D(ddir[3:], ddir[:], da*0.5)

	npat := 0
	pat[npat*2] = 0
	pat[npat*2+1] = 0
	npat++
	for j := 0; j < nrings; j++ {
		r := float32(nrings-j) / float32(nrings)
		pat[npat*2] = ddir[(j%2)*3] * r
		pat[npat*2+1] = ddir[(j%2)*3+2] * r
		last1 := npat * 2
		last2 := last1
		npat++
		for i := 1; i < ndivs-1; i += 2 {
			// Next point on the right.
			pat[npat*2] = pat[last1]*ca + pat[last1+1]*sa
			pat[npat*2+1] = -pat[last1]*sa + pat[last1+1]*ca
			// Next point on the left.
			pat[npat*2+2] = pat[last2]*ca - pat[last2+1]*sa
			pat[npat*2+3] = pat[last2]*sa + pat[last2+1]*ca
			last1 = npat * 2
			last2 = last1 + 2
			npat += 2
		}
		if ndivs&1 == 0 {
			pat[npat*2] = pat[last2]*ca - pat[last2+1]*sa
			pat[npat*2+1] = pat[last2]*sa + pat[last2+1]*ca
			npat++
		}
	}

	// Start sampling.
	cr := vmax * (1.0 - q.params.VelBias)
	var res [3]float32
	common.Vset(res[:], dvel[0]*q.params.VelBias, 0, dvel[2]*q.params.VelBias)
	ns := 0
	for k := 0; k < depth; k++ {
		minPenalty := float32(math.MaxFloat32)
		var bvel [3]float32

		for i := 0; i < npat; i++ {
			vcand := [3]float32{
				res[0] + pat[i*2]*cr,
				0,
				res[2] + pat[i*2+1]*cr,
			}
			if common.Sqr(vcand[0])+common.Sqr(vcand[2]) > common.Sqr(vmax+0.001) {
				continue
			}
			penalty := q.processSample(vcand[:], pos, rad, vel, dvel, minPenalty)
			ns++
			if penalty < minPenalty {
				minPenalty = penalty
				common.Vcopy(bvel[:], vcand[:])
			}
		}

		common.Vcopy(res[:], bvel[:])
		cr *= 0.5
	}
	common.Vcopy(nvel, res[:])
	return ns
}

func normalize2D(v []float32) {
	d := float32(math.Sqrt(float64(v[0]*v[0] + v[2]*v[2])))
	if d == 0 {
		return
	}
	d = 1.0 / d
	v[0] *= d
	v[2] *= d
}

// rotate2D rotates v around the y-axis by ang radians into dest.
func rotate2D(dest, v []float32, ang float32) {
	c := float32(math.Cos(float64(ang)))
	s := float32(math.Sin(float64(ang)))
	dest[0] = v[0]*c - v[2]*s
	dest[2] = v[0]*s + v[2]*c
	dest[1] = v[1]
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
