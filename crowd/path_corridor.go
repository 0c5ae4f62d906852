package crowd

import (
	"walkernav/common"
	"walkernav/navmesh"
)

// pathCorridor tracks an agent's position and target along a polygon
// corridor. The corridor shrinks from the front as the agent advances and
// can be shortcut when a raycast proves direct visibility.
type pathCorridor struct {
	pos    [3]float32
	target [3]float32
	path   []navmesh.PolyRef
	npath  int
}

func newPathCorridor(maxPath int) *pathCorridor {
	return &pathCorridor{path: make([]navmesh.PolyRef, maxPath)}
}

// reset places the corridor at a single polygon with pos as both position
// and target.
func (c *pathCorridor) reset(ref navmesh.PolyRef, pos []float32) {
	common.Vcopy(c.pos[:], pos)
	common.Vcopy(c.target[:], pos)
	c.path[0] = ref
	if ref == 0 {
		c.npath = 0
	} else {
		c.npath = 1
	}
}

// setCorridor installs a freshly planned path toward target.
func (c *pathCorridor) setCorridor(target []float32, path []navmesh.PolyRef, npath int) {
	common.Vcopy(c.target[:], target)
	copy(c.path, path[:npath])
	c.npath = npath
}

func (c *pathCorridor) getPos() []float32    { return c.pos[:] }
func (c *pathCorridor) getTarget() []float32 { return c.target[:] }

func (c *pathCorridor) firstPoly() navmesh.PolyRef {
	if c.npath == 0 {
		return 0
	}
	return c.path[0]
}

func (c *pathCorridor) lastPoly() navmesh.PolyRef {
	if c.npath == 0 {
		return 0
	}
	return c.path[c.npath-1]
}

// findCorners runs the funnel over the corridor and prunes leading corners
// the agent is already standing on.
func (c *pathCorridor) findCorners(cornerVerts []float32, cornerFlags []uint8, cornerPolys []navmesh.PolyRef,
	maxCorners int, q *navmesh.NavMeshQuery) int {
	const minTargetDist = 0.01

	ncorners, status := q.FindStraightPath(c.pos[:], c.target[:], c.path, c.npath,
		cornerVerts, cornerFlags, cornerPolys, maxCorners)
	if !status.Succeeded() {
		return 0
	}

	// Prune corners in the path start that are too close to be steered at.
	for ncorners > 0 {
		if cornerFlags[0]&navmesh.StraightPathEnd != 0 ||
			common.Vdist2DSqr(common.Vert3(cornerVerts, 0), c.pos[:]) > common.Sqr(minTargetDist) {
			break
		}
		ncorners--
		copy(cornerVerts, cornerVerts[3:(ncorners+1)*3])
		copy(cornerFlags, cornerFlags[1:ncorners+1])
		copy(cornerPolys, cornerPolys[1:ncorners+1])
	}
	return ncorners
}

// optimizePathVisibility shortcuts the corridor start when the agent can
// walk straight toward next without leaving the mesh. Inaccuracy in the
// funnel around vertices otherwise makes agents hug corners.
func (c *pathCorridor) optimizePathVisibility(next []float32, pathOptimizationRange float32,
	q *navmesh.NavMeshQuery, filter *navmesh.QueryFilter) {
	if c.npath < 3 {
		return
	}

	// Clamp the ray to the optimization range.
	var goal [3]float32
	common.Vcopy(goal[:], next)
	dist := common.Vdist2D(c.pos[:], goal[:])
	if dist < 0.01 {
		return
	}
	// Overshoot a little.
	dist = min32(dist+0.01, pathOptimizationRange)
	var delta [3]float32
	common.Vsub(delta[:], goal[:], c.pos[:])
	common.Vmad(goal[:], c.pos[:], delta[:], pathOptimizationRange/dist)

	const maxRes = 32
	var res [maxRes]navmesh.PolyRef
	t, nres, status := q.Raycast(c.path[0], c.pos[:], goal[:], filter, res[:])
	if !status.Succeeded() {
		return
	}
	if nres > 1 && t > 0.99 {
		c.npath = mergeCorridorStartShortcut(c.path, c.npath, res[:nres])
	}
}

// mergeCorridorStartShortcut splices the raycast result over the corridor
// start, keeping the corridor consistent past the furthest common polygon.
func mergeCorridorStartShortcut(path []navmesh.PolyRef, npath int, visited []navmesh.PolyRef) int {
	furthestPath := -1
	furthestVisited := -1

	for i := npath - 1; i >= 0; i-- {
		for j := len(visited) - 1; j >= 0; j-- {
			if path[i] == visited[j] {
				furthestPath = i
				furthestVisited = j
				break
			}
		}
		if furthestPath != -1 {
			break
		}
	}
	if furthestPath == -1 || furthestVisited <= 0 {
		return npath
	}

	req := furthestVisited
	orig := furthestPath
	size := npath - orig
	if size < 0 {
		size = 0
	}
	if req+size > len(path) {
		size = len(path) - req
	}
	if size > 0 {
		copy(path[req:req+size], path[orig:orig+size])
	}
	copy(path[1:req], visited[1:req])
	return req + size
}

// movePosition advances the corridor to npos. The new position must be in
// or near the leading corridor polygons; the corridor front is dropped up
// to the polygon containing it and the position is clamped to the surface.
func (c *pathCorridor) movePosition(npos []float32, q *navmesh.NavMeshQuery) bool {
	if c.npath == 0 {
		return false
	}
	const maxLook = 16

	look := c.npath
	if look > maxLook {
		look = maxLook
	}
	mesh := q.Mesh()
	for i := 0; i < look; i++ {
		if !mesh.PolyContainsPoint2D(c.path[i], npos) {
			continue
		}
		if i > 0 {
			copy(c.path, c.path[i:c.npath])
			c.npath -= i
		}
		common.Vcopy(c.pos[:], npos)
		if h, ok := mesh.PolyHeight(c.path[0], npos); ok {
			c.pos[1] = h
		}
		return true
	}

	// Moved off the corridor, clamp back onto the current polygon.
	var clamped [3]float32
	mesh.ClosestPointOnPoly(c.path[0], npos, clamped[:])
	common.Vcopy(c.pos[:], clamped[:])
	return true
}
