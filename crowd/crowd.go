package crowd

import (
	"math"

	"walkernav/common"
	"walkernav/navmesh"
)

const (
	// MaxNeighbours is the neighbour budget per agent.
	MaxNeighbours = 6
	// MaxCorners is how many funnel corners an agent steers against.
	MaxCorners = 4
	// MaxAvoidanceParams is the number of avoidance quality tiers.
	MaxAvoidanceParams = 4
	// MaxQueryFilterTypes is the number of configurable query filters.
	MaxQueryFilterTypes = 4

	// maxPathResult bounds every polygon corridor.
	maxPathResult = 256

	// collisionIters caps collision resolution passes per update.
	collisionIters = 4
	// collisionResolveFactor dampens penetration correction to avoid
	// jitter between touching agents.
	collisionResolveFactor = 0.7

	// topologyOptTimeThr is how often a moving agent replans its corridor
	// to recover from drift, in seconds.
	topologyOptTimeThr = 0.5
)

// Agent update flags.
const (
	UpdateFlagsAnticipateTurns uint8 = 1 << iota
	UpdateFlagsObstacleAvoidance
	UpdateFlagsSeparation
	UpdateFlagsOptimizeVis
	UpdateFlagsOptimizeTopo
)

// Move target states.
const (
	targetNone = iota
	targetFailed
	targetValid
	targetRequesting
)

// AgentParams configures one crowd agent.
type AgentParams struct {
	Radius          float32
	Height          float32
	MaxAcceleration float32
	MaxSpeed        float32

	// CollisionQueryRange bounds neighbour lookups; PathOptimizationRange
	// bounds the visibility shortcut raycast.
	CollisionQueryRange   float32
	PathOptimizationRange float32

	SeparationWeight      float32
	UpdateFlags           uint8
	ObstacleAvoidanceType int
	QueryFilterType       int
}

type neighbour struct {
	idx  int
	dist float32
}

// Agent is one simulated crowd member. Fields are maintained by the Crowd;
// callers read them between updates.
type Agent struct {
	Active  bool
	Partial bool // corridor leads toward, not to, the target

	Params AgentParams

	Npos [3]float32 // position
	Vel  [3]float32 // actual velocity
	Dvel [3]float32 // desired velocity from steering
	nvel [3]float32 // desired velocity after obstacle avoidance
	disp [3]float32 // collision displacement accumulator

	DesiredSpeed float32

	CornerVerts [MaxCorners * 3]float32
	CornerFlags [MaxCorners]uint8
	CornerPolys [MaxCorners]navmesh.PolyRef
	Ncorners    int

	corridor *pathCorridor

	neis  [MaxNeighbours]neighbour
	nneis int

	targetState     int
	targetRef       navmesh.PolyRef
	targetPos       [3]float32
	topologyOptTime float32

	idx int
}

// TargetRef returns the polygon of the current move target, zero when the
// agent has none.
func (ag *Agent) TargetRef() navmesh.PolyRef { return ag.targetRef }

// HasTarget reports whether the agent is moving toward a valid target.
func (ag *Agent) HasTarget() bool { return ag.targetState == targetValid }

// Crowd simulates local steering and avoidance for a pool of agents over a
// shared navigation mesh. All methods must be externally serialized.
type Crowd struct {
	agents              []*Agent
	pathBuf             []navmesh.PolyRef
	grid                *proximityGrid
	obstacleQuery       *obstacleAvoidanceQuery
	obstacleQueryParams [MaxAvoidanceParams]ObstacleAvoidanceParams
	filters             [MaxQueryFilterTypes]*navmesh.QueryFilter
	ext                 [3]float32
	navquery            *navmesh.NavMeshQuery

	velocitySampleCount int
}

// NewCrowd creates a crowd of up to maxAgents agents with radii up to
// maxAgentRadius, querying mesh.
func NewCrowd(maxAgents int, maxAgentRadius float32, mesh *navmesh.Mesh) *Crowd {
	c := &Crowd{
		agents:        make([]*Agent, maxAgents),
		pathBuf:       make([]navmesh.PolyRef, maxPathResult),
		grid:          newProximityGrid(maxAgentRadius * 3),
		obstacleQuery: newObstacleAvoidanceQuery(MaxNeighbours),
		navquery:      navmesh.NewNavMeshQuery(mesh, maxPathResult*2),
	}
	c.ext = [3]float32{maxAgentRadius * 2, maxAgentRadius * 1.5, maxAgentRadius * 2}
	for i := range c.agents {
		c.agents[i] = &Agent{idx: i, corridor: newPathCorridor(maxPathResult)}
	}
	for i := range c.obstacleQueryParams {
		c.obstacleQueryParams[i] = defaultObstacleAvoidanceParams()
	}
	for i := range c.filters {
		c.filters[i] = navmesh.NewQueryFilter()
	}
	return c
}

// ObstacleAvoidanceDefaults returns the baseline avoidance weights, for
// callers tuning individual tiers from a common starting point.
func (c *Crowd) ObstacleAvoidanceDefaults() ObstacleAvoidanceParams {
	return defaultObstacleAvoidanceParams()
}

// SetObstacleAvoidanceParams configures one avoidance quality tier.
func (c *Crowd) SetObstacleAvoidanceParams(idx int, params ObstacleAvoidanceParams) {
	if idx >= 0 && idx < MaxAvoidanceParams {
		c.obstacleQueryParams[idx] = params
	}
}

// EditableFilter returns the query filter of the given slot for tuning.
func (c *Crowd) EditableFilter(i int) *navmesh.QueryFilter { return c.filters[i] }

// QueryHalfExtents is the search box used when placing agents.
func (c *Crowd) QueryHalfExtents() [3]float32 { return c.ext }

// AgentCount is the pool capacity, not the live agent count.
func (c *Crowd) AgentCount() int { return len(c.agents) }

// Agent returns the agent in slot idx.
func (c *Crowd) Agent(idx int) *Agent { return c.agents[idx] }

// VelocitySampleCount reports how many avoidance samples the last Update
// evaluated.
func (c *Crowd) VelocitySampleCount() int { return c.velocitySampleCount }

// AddAgent places an agent near pos and returns its slot index, or -1 when
// the pool is full.
func (c *Crowd) AddAgent(pos []float32, params *AgentParams) int {
	idx := -1
	for i, ag := range c.agents {
		if !ag.Active {
			idx = i
			break
		}
	}
	if idx == -1 {
		return -1
	}
	ag := c.agents[idx]

	var nearest [3]float32
	common.Vcopy(nearest[:], pos)
	ref, _ := c.navquery.FindNearestPoly(pos, c.ext[:], c.filters[params.QueryFilterType], nearest[:])

	ag.Params = *params
	ag.corridor.reset(ref, nearest[:])
	common.Vcopy(ag.Npos[:], nearest[:])
	common.Vset(ag.Vel[:], 0, 0, 0)
	common.Vset(ag.Dvel[:], 0, 0, 0)
	common.Vset(ag.nvel[:], 0, 0, 0)
	common.Vset(ag.disp[:], 0, 0, 0)
	ag.DesiredSpeed = 0
	ag.Ncorners = 0
	ag.nneis = 0
	ag.Partial = false
	ag.targetState = targetNone
	ag.targetRef = 0
	ag.topologyOptTime = 0
	ag.Active = true
	return idx
}

// RemoveAgent frees the agent slot.
func (c *Crowd) RemoveAgent(idx int) {
	if idx >= 0 && idx < len(c.agents) {
		c.agents[idx].Active = false
	}
}

// RequestMoveTarget sets the agent's move target; the corridor is planned
// during the next Update.
func (c *Crowd) RequestMoveTarget(idx int, ref navmesh.PolyRef, pos []float32) bool {
	if idx < 0 || idx >= len(c.agents) || ref == 0 {
		return false
	}
	ag := c.agents[idx]
	ag.targetRef = ref
	common.Vcopy(ag.targetPos[:], pos)
	ag.targetState = targetRequesting
	return true
}

// planPathToTarget plans the corridor toward the agent's target. On an
// unreachable or budget-limited search the corridor leads to the closest
// reachable point and the agent is flagged partial.
func (c *Crowd) planPathToTarget(ag *Agent) {
	startRef := ag.corridor.firstPoly()
	if startRef == 0 {
		ag.targetState = targetFailed
		return
	}

	filter := c.filters[ag.Params.QueryFilterType]
	n, status := c.navquery.FindPath(startRef, ag.targetRef,
		ag.corridor.getPos(), ag.targetPos[:], filter, c.pathBuf)
	if status.Failed() || n == 0 {
		ag.targetState = targetFailed
		return
	}

	var target [3]float32
	common.Vcopy(target[:], ag.targetPos[:])
	ag.Partial = c.pathBuf[n-1] != ag.targetRef
	if ag.Partial {
		// Clamp the target to the closest reachable polygon.
		c.navquery.ClosestPointOnPolyBoundary(c.pathBuf[n-1], ag.targetPos[:], target[:])
	}
	ag.corridor.setCorridor(target[:], c.pathBuf, n)
	ag.targetState = targetValid
	ag.topologyOptTime = 0
}

func (c *Crowd) activeAgents() []*Agent {
	out := make([]*Agent, 0, len(c.agents))
	for _, ag := range c.agents {
		if ag.Active {
			out = append(out, ag)
		}
	}
	return out
}

// checkPathValidity re-places agents whose corridor no longer resolves,
// which happens after the mesh is swapped under a live crowd.
func (c *Crowd) checkPathValidity(agents []*Agent) {
	mesh := c.navquery.Mesh()
	for _, ag := range agents {
		if ag.corridor.firstPoly() != 0 && mesh.IsValidPolyRef(ag.corridor.firstPoly()) {
			continue
		}
		var nearest [3]float32
		common.Vcopy(nearest[:], ag.Npos[:])
		ref, _ := c.navquery.FindNearestPoly(ag.Npos[:], c.ext[:],
			c.filters[ag.Params.QueryFilterType], nearest[:])
		ag.corridor.reset(ref, nearest[:])
		common.Vcopy(ag.Npos[:], nearest[:])
		if ag.targetState == targetValid {
			ag.targetState = targetRequesting
		}
	}
}

func (c *Crowd) getNeighbours(ag *Agent) int {
	r := ag.Params.CollisionQueryRange
	var ids [32]uint16
	n := c.grid.queryItems(ag.Npos[0]-r, ag.Npos[2]-r, ag.Npos[0]+r, ag.Npos[2]+r, ids[:])

	nneis := 0
	for i := 0; i < n; i++ {
		idx := int(ids[i])
		other := c.agents[idx]
		if other == ag || !other.Active {
			continue
		}
		var diff [3]float32
		common.Vsub(diff[:], ag.Npos[:], other.Npos[:])
		diff[1] = 0
		distSqr := common.VlenSqr(diff[:])
		if distSqr > common.Sqr(r) {
			continue
		}
		nneis = insertNeighbour(ag.neis[:], nneis, idx, distSqr)
	}
	return nneis
}

// insertNeighbour keeps neis sorted by distance, dropping the farthest
// when full.
func insertNeighbour(neis []neighbour, nneis, idx int, dist float32) int {
	pos := nneis
	for i := 0; i < nneis; i++ {
		if dist < neis[i].dist {
			pos = i
			break
		}
	}
	if pos >= len(neis) {
		return nneis
	}
	if nneis < len(neis) {
		nneis++
	}
	copy(neis[pos+1:nneis], neis[pos:nneis-1])
	neis[pos] = neighbour{idx: idx, dist: dist}
	return nneis
}

func calcSmoothSteerDirection(ag *Agent, dir []float32) {
	if ag.Ncorners == 0 {
		common.Vset(dir, 0, 0, 0)
		return
	}
	ip0 := 0
	ip1 := 1
	if ip1 > ag.Ncorners-1 {
		ip1 = ag.Ncorners - 1
	}
	p0 := common.Vert3(ag.CornerVerts[:], ip0)
	p1 := common.Vert3(ag.CornerVerts[:], ip1)

	var dir0, dir1 [3]float32
	common.Vsub(dir0[:], p0, ag.Npos[:])
	common.Vsub(dir1[:], p1, ag.Npos[:])
	dir0[1] = 0
	dir1[1] = 0

	len0 := common.Vlen(dir0[:])
	len1 := common.Vlen(dir1[:])
	if len1 > 0.001 {
		common.Vscale(dir1[:], dir1[:], 1.0/len1)
	}

	dir[0] = dir0[0] - dir1[0]*len0*0.5
	dir[1] = 0
	dir[2] = dir0[2] - dir1[2]*len0*0.5
	common.Vnormalize(dir)
}

func calcStraightSteerDirection(ag *Agent, dir []float32) {
	if ag.Ncorners == 0 {
		common.Vset(dir, 0, 0, 0)
		return
	}
	common.Vsub(dir, common.Vert3(ag.CornerVerts[:], 0), ag.Npos[:])
	dir[1] = 0
	common.Vnormalize(dir)
}

// getDistanceToGoal returns the 2D distance to the end of the path when it
// is within range, range otherwise.
func getDistanceToGoal(ag *Agent, rng float32) float32 {
	if ag.Ncorners == 0 {
		return rng
	}
	if ag.CornerFlags[ag.Ncorners-1]&navmesh.StraightPathEnd == 0 {
		return rng
	}
	return min32(common.Vdist2D(ag.Npos[:], common.Vert3(ag.CornerVerts[:], ag.Ncorners-1)), rng)
}

// Update advances the simulation by dt seconds: replans pending targets,
// refreshes neighbours and corners, steers, samples avoidance velocities,
// integrates and resolves residual collisions.
func (c *Crowd) Update(dt float32) {
	c.velocitySampleCount = 0
	agents := c.activeAgents()

	c.checkPathValidity(agents)

	// Process move requests and periodic replans.
	for _, ag := range agents {
		if ag.targetState == targetRequesting {
			c.planPathToTarget(ag)
		}
	}
	for _, ag := range agents {
		if ag.targetState != targetValid || ag.Params.UpdateFlags&UpdateFlagsOptimizeTopo == 0 {
			continue
		}
		ag.topologyOptTime += dt
		if ag.topologyOptTime > topologyOptTimeThr {
			c.planPathToTarget(ag)
		}
	}

	// Register agents to the proximity grid.
	c.grid.clear()
	for _, ag := range agents {
		p := ag.Npos[:]
		r := ag.Params.Radius
		c.grid.addItem(uint16(ag.idx), p[0]-r, p[2]-r, p[0]+r, p[2]+r)
	}

	for _, ag := range agents {
		ag.nneis = c.getNeighbours(ag)
	}

	// Find the next corners to steer to, optionally shortcutting the
	// corridor when the next corner is directly visible.
	for _, ag := range agents {
		if ag.targetState != targetValid {
			ag.Ncorners = 0
			continue
		}
		ag.Ncorners = ag.corridor.findCorners(ag.CornerVerts[:], ag.CornerFlags[:],
			ag.CornerPolys[:], MaxCorners, c.navquery)
		if ag.Params.UpdateFlags&UpdateFlagsOptimizeVis != 0 && ag.Ncorners > 0 {
			target := common.Vert3(ag.CornerVerts[:], minInt(1, ag.Ncorners-1))
			ag.corridor.optimizePathVisibility(target, ag.Params.PathOptimizationRange,
				c.navquery, c.filters[ag.Params.QueryFilterType])
		}
	}

	// Steering.
	for _, ag := range agents {
		var dvel [3]float32
		if ag.Params.UpdateFlags&UpdateFlagsAnticipateTurns != 0 {
			calcSmoothSteerDirection(ag, dvel[:])
		} else {
			calcStraightSteerDirection(ag, dvel[:])
		}

		// Slow down when approaching the end of the path.
		slowDownRadius := ag.Params.Radius * 2
		speedScale := getDistanceToGoal(ag, slowDownRadius) / slowDownRadius
		ag.DesiredSpeed = ag.Params.MaxSpeed
		common.Vscale(dvel[:], dvel[:], ag.DesiredSpeed*speedScale)

		// Separation.
		if ag.Params.UpdateFlags&UpdateFlagsSeparation != 0 {
			separationDist := ag.Params.CollisionQueryRange
			invSeparationDist := 1.0 / separationDist
			separationWeight := ag.Params.SeparationWeight

			w := float32(0)
			var disp [3]float32
			for i := 0; i < ag.nneis; i++ {
				other := c.agents[ag.neis[i].idx]
				var diff [3]float32
				common.Vsub(diff[:], ag.Npos[:], other.Npos[:])
				diff[1] = 0
				distSqr := common.VlenSqr(diff[:])
				if distSqr < 0.00001 || distSqr > common.Sqr(separationDist) {
					continue
				}
				dist := float32(math.Sqrt(float64(distSqr)))
				weight := separationWeight * (1.0 - common.Sqr(dist*invSeparationDist))
				common.Vmad(disp[:], disp[:], diff[:], weight/dist)
				w += 1.0
			}
			if w > 0.0001 {
				common.Vmad(dvel[:], dvel[:], disp[:], 1.0/w)
				speedSqr := common.VlenSqr(dvel[:])
				desiredSqr := common.Sqr(ag.DesiredSpeed)
				if speedSqr > desiredSqr {
					common.Vscale(dvel[:], dvel[:], desiredSqr/speedSqr)
				}
			}
		}
		common.Vcopy(ag.Dvel[:], dvel[:])
	}

	// Velocity planning.
	for _, ag := range agents {
		if ag.Params.UpdateFlags&UpdateFlagsObstacleAvoidance != 0 {
			c.obstacleQuery.reset()
			for i := 0; i < ag.nneis; i++ {
				other := c.agents[ag.neis[i].idx]
				c.obstacleQuery.addCircle(other.Npos[:], other.Params.Radius,
					other.Vel[:], other.Dvel[:])
			}
			params := c.obstacleQueryParams[ag.Params.ObstacleAvoidanceType]
			c.velocitySampleCount += c.obstacleQuery.sampleVelocityAdaptive(
				ag.Npos[:], ag.Params.Radius, ag.DesiredSpeed,
				ag.Vel[:], ag.Dvel[:], &params, ag.nvel[:])
		} else {
			common.Vcopy(ag.nvel[:], ag.Dvel[:])
		}
	}

	// Integrate with an acceleration cap.
	for _, ag := range agents {
		maxDelta := ag.Params.MaxAcceleration * dt
		var dv [3]float32
		common.Vsub(dv[:], ag.nvel[:], ag.Vel[:])
		ds := common.Vlen(dv[:])
		if ds > maxDelta {
			common.Vscale(dv[:], dv[:], maxDelta/ds)
		}
		common.Vadd(ag.Vel[:], ag.Vel[:], dv[:])

		if common.Vlen(ag.Vel[:]) > 0.0001 {
			common.Vmad(ag.Npos[:], ag.Npos[:], ag.Vel[:], dt)
		} else {
			common.Vset(ag.Vel[:], 0, 0, 0)
		}
	}

	// Resolve residual overlap between agents.
	for iter := 0; iter < collisionIters; iter++ {
		for _, ag := range agents {
			common.Vset(ag.disp[:], 0, 0, 0)
			w := float32(0)
			for i := 0; i < ag.nneis; i++ {
				other := c.agents[ag.neis[i].idx]
				var diff [3]float32
				common.Vsub(diff[:], ag.Npos[:], other.Npos[:])
				diff[1] = 0
				distSqr := common.VlenSqr(diff[:])
				rads := ag.Params.Radius + other.Params.Radius
				if distSqr > common.Sqr(rads) {
					continue
				}
				dist := float32(math.Sqrt(float64(distSqr)))
				pen := rads - dist
				if dist < 0.0001 {
					// Agents on top of each other, push apart sideways.
					if ag.idx > other.idx {
						common.Vset(diff[:], -ag.Dvel[2], 0, ag.Dvel[0])
					} else {
						common.Vset(diff[:], ag.Dvel[2], 0, -ag.Dvel[0])
					}
					pen = 0.01
				} else {
					pen = (1.0 / dist) * (pen * 0.5) * collisionResolveFactor
				}
				common.Vmad(ag.disp[:], ag.disp[:], diff[:], pen)
				w += 1.0
			}
			if w > 0.0001 {
				common.Vscale(ag.disp[:], ag.disp[:], 1.0/w)
			}
		}
		for _, ag := range agents {
			common.Vadd(ag.Npos[:], ag.Npos[:], ag.disp[:])
		}
	}

	// Move along the surface and pull the position back onto the mesh.
	for _, ag := range agents {
		ag.corridor.movePosition(ag.Npos[:], c.navquery)
		common.Vcopy(ag.Npos[:], ag.corridor.getPos())
		if ag.targetState == targetNone || ag.targetState == targetFailed {
			ag.corridor.reset(ag.corridor.firstPoly(), ag.Npos[:])
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
