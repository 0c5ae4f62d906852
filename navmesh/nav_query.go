package navmesh

import (
	"math"

	"walkernav/common"
)

// Status reports the outcome of a query, teacher-style bitmask with high
// result bits and low detail bits.
type Status uint32

const (
	StatusFailure Status = 1 << 31
	StatusSuccess Status = 1 << 30

	StatusInvalidParam   Status = 1 << 0
	StatusBufferTooSmall Status = 1 << 1
	StatusOutOfNodes     Status = 1 << 2
	StatusPartialResult  Status = 1 << 3
)

func (s Status) Succeeded() bool { return s&StatusSuccess != 0 }
func (s Status) Failed() bool    { return s&StatusFailure != 0 }
func (s Status) Partial() bool   { return s&StatusPartialResult != 0 }

// Straight path vertex flags.
const (
	StraightPathStart uint8 = 0x01
	StraightPathEnd   uint8 = 0x02
)

// Search heuristic scale. Slightly below 1 keeps A* admissible while
// breaking ties toward the goal.
const hScale = 0.999

// QueryFilter selects which polygons a query may traverse and how much
// crossing each area costs.
type QueryFilter struct {
	areaCost     [MaxAreas]float32
	includeFlags uint16
	excludeFlags uint16
}

// NewQueryFilter returns a filter that accepts every flagged polygon at
// uniform cost.
func NewQueryFilter() *QueryFilter {
	f := &QueryFilter{
		includeFlags: PolyFlagsAll,
		excludeFlags: 0,
	}
	for i := range f.areaCost {
		f.areaCost[i] = 1.0
	}
	return f
}

func (f *QueryFilter) IncludeFlags() uint16      { return f.includeFlags }
func (f *QueryFilter) SetIncludeFlags(v uint16)  { f.includeFlags = v }
func (f *QueryFilter) ExcludeFlags() uint16      { return f.excludeFlags }
func (f *QueryFilter) SetExcludeFlags(v uint16)  { f.excludeFlags = v }
func (f *QueryFilter) AreaCost(area int) float32 { return f.areaCost[area] }

func (f *QueryFilter) SetAreaCost(area int, c float32) {
	f.areaCost[area] = c
}

func (f *QueryFilter) passFilter(p *Poly) bool {
	return p.Flags&f.includeFlags != 0 && p.Flags&f.excludeFlags == 0
}

// NavMeshQuery runs pathfinding and spatial queries against one mesh. Not
// safe for concurrent use; the facade serializes access.
type NavMeshQuery struct {
	mesh *Mesh
	pool *nodePool
	open *nodeQueue
}

// NewNavMeshQuery creates a query bound to mesh with a search budget of
// maxNodes visited polygons.
func NewNavMeshQuery(mesh *Mesh, maxNodes int) *NavMeshQuery {
	return &NavMeshQuery{
		mesh: mesh,
		pool: newNodePool(maxNodes),
		open: newNodeQueue(maxNodes),
	}
}

func (q *NavMeshQuery) Mesh() *Mesh { return q.mesh }

// queryPolygons collects polygons overlapping the box center±halfExtents,
// up to cap results.
func (q *NavMeshQuery) queryPolygons(center, halfExtents []float32, filter *QueryFilter, cap int) []PolyRef {
	qmin := [3]float32{center[0] - halfExtents[0], center[1] - halfExtents[1], center[2] - halfExtents[2]}
	qmax := [3]float32{center[0] + halfExtents[0], center[1] + halfExtents[1], center[2] + halfExtents[2]}

	var out []PolyRef
	for ti := 0; ti < q.mesh.TileCount(); ti++ {
		tile := q.mesh.Tile(ti)
		if !overlapBounds(qmin, qmax, tile.Header.Bmin, tile.Header.Bmax) {
			continue
		}
		for ip, poly := range tile.Polys {
			if !filter.passFilter(poly) {
				continue
			}
			var bmin, bmax [3]float32
			v0 := common.Vert3(tile.Verts, int(poly.Verts[0]))
			copy(bmin[:], v0)
			copy(bmax[:], v0)
			for j := 1; j < int(poly.VertCount); j++ {
				v := common.Vert3(tile.Verts, int(poly.Verts[j]))
				for k := 0; k < 3; k++ {
					if v[k] < bmin[k] {
						bmin[k] = v[k]
					}
					if v[k] > bmax[k] {
						bmax[k] = v[k]
					}
				}
			}
			if overlapBounds(qmin, qmax, bmin, bmax) {
				out = append(out, EncodePolyRef(tile.Ref, ip))
				if len(out) >= cap {
					return out
				}
			}
		}
	}
	return out
}

func overlapBounds(amin, amax, bmin, bmax [3]float32) bool {
	return amin[0] <= bmax[0] && amax[0] >= bmin[0] &&
		amin[1] <= bmax[1] && amax[1] >= bmin[1] &&
		amin[2] <= bmax[2] && amax[2] >= bmin[2]
}

// FindNearestPoly finds the polygon nearest to center within the search
// box, writing the closest point on it into nearestPt when non-nil.
func (q *NavMeshQuery) FindNearestPoly(center, halfExtents []float32, filter *QueryFilter, nearestPt []float32) (PolyRef, Status) {
	polys := q.queryPolygons(center, halfExtents, filter, 128)
	if len(polys) == 0 {
		return 0, StatusFailure
	}

	var nearest PolyRef
	nearestDist := float32(math.MaxFloat32)
	var closest [3]float32
	var best [3]float32
	for _, ref := range polys {
		q.mesh.ClosestPointOnPoly(ref, center, closest[:])
		d := common.VdistSqr(center, closest[:])
		if d < nearestDist {
			nearestDist = d
			nearest = ref
			common.Vcopy(best[:], closest[:])
		}
	}
	if nearestPt != nil {
		common.Vcopy(nearestPt, best[:])
	}
	return nearest, StatusSuccess
}

// ClosestPointOnPolyBoundary clamps pos to the polygon: pos itself when it
// lies over the polygon, the nearest boundary point otherwise.
func (q *NavMeshQuery) ClosestPointOnPolyBoundary(ref PolyRef, pos, closest []float32) Status {
	if !q.mesh.IsValidPolyRef(ref) {
		return StatusFailure | StatusInvalidParam
	}
	q.mesh.ClosestPointOnPoly(ref, pos, closest)
	return StatusSuccess
}

// FindPath runs A* from startRef to endRef, writing the polygon corridor
// into path and returning the number of polygons. When the search budget
// runs out or the goal is unreachable, the corridor leads toward the
// closest polygon visited and the status carries StatusPartialResult.
func (q *NavMeshQuery) FindPath(startRef, endRef PolyRef, startPos, endPos []float32, filter *QueryFilter, path []PolyRef) (int, Status) {
	if !q.mesh.IsValidPolyRef(startRef) || !q.mesh.IsValidPolyRef(endRef) ||
		len(path) == 0 || !common.Visfinite(startPos) || !common.Visfinite(endPos) {
		return 0, StatusFailure | StatusInvalidParam
	}

	if startRef == endRef {
		path[0] = startRef
		return 1, StatusSuccess
	}

	q.pool.clear()
	q.open.clear()

	startNode := q.pool.getNode(startRef)
	common.Vcopy(startNode.pos[:], startPos)
	startNode.total = common.Vdist(startPos, endPos) * hScale
	startNode.flags = nodeOpen
	q.open.push(startNode)

	lastBestNode := startNode
	lastBestNodeCost := startNode.total
	status := StatusSuccess

	for !q.open.empty() {
		bestNode := q.open.pop()
		bestNode.flags &^= nodeOpen
		bestNode.flags |= nodeClosed

		if bestNode.id == endRef {
			lastBestNode = bestNode
			break
		}

		bestTile, bestPoly, _ := q.mesh.TileAndPolyByRef(bestNode.id)
		parentRef := PolyRef(0)
		if parent := q.pool.nodeAtIdx(bestNode.pidx); parent != nil {
			parentRef = parent.id
		}

		for i := 0; i < int(bestPoly.VertCount); i++ {
			neighbourRef := bestPoly.Neis[i]
			if neighbourRef == 0 || neighbourRef == parentRef {
				continue
			}
			_, neighbourPoly, ok := q.mesh.TileAndPolyByRef(neighbourRef)
			if !ok || !filter.passFilter(neighbourPoly) {
				continue
			}

			neighbourNode := q.pool.getNode(neighbourRef)
			if neighbourNode == nil {
				status |= StatusOutOfNodes
				continue
			}

			// Cross at the portal midpoint.
			if neighbourNode.flags == 0 {
				va := common.Vert3(bestTile.Verts, int(bestPoly.Verts[i]))
				vb := common.Vert3(bestTile.Verts, int(bestPoly.Verts[(i+1)%int(bestPoly.VertCount)]))
				common.Vlerp(neighbourNode.pos[:], va, vb, 0.5)
			}

			var cost, heuristic float32
			if neighbourRef == endRef {
				curCost := common.Vdist(bestNode.pos[:], neighbourNode.pos[:]) *
					filter.areaCost[bestPoly.Area]
				endCost := common.Vdist(neighbourNode.pos[:], endPos) *
					filter.areaCost[neighbourPoly.Area]
				cost = bestNode.cost + curCost + endCost
				heuristic = 0
			} else {
				cost = bestNode.cost +
					common.Vdist(bestNode.pos[:], neighbourNode.pos[:])*filter.areaCost[bestPoly.Area]
				heuristic = common.Vdist(neighbourNode.pos[:], endPos) * hScale
			}
			total := cost + heuristic

			if neighbourNode.flags&nodeOpen != 0 && total >= neighbourNode.total {
				continue
			}
			if neighbourNode.flags&nodeClosed != 0 && total >= neighbourNode.total {
				continue
			}

			neighbourNode.pidx = bestNode.idx
			neighbourNode.flags &^= nodeClosed
			neighbourNode.cost = cost
			neighbourNode.total = total

			if neighbourNode.flags&nodeOpen != 0 {
				q.open.modify(neighbourNode)
			} else {
				neighbourNode.flags |= nodeOpen
				q.open.push(neighbourNode)
			}

			if heuristic < lastBestNodeCost {
				lastBestNodeCost = heuristic
				lastBestNode = neighbourNode
			}
		}
	}

	if lastBestNode.id != endRef {
		status |= StatusPartialResult
	}

	// Reverse the parent chain into path.
	n := 0
	for node := lastBestNode; node != nil; node = q.pool.nodeAtIdx(node.pidx) {
		n++
	}
	if n > len(path) {
		status |= StatusBufferTooSmall
	}
	write := n
	if write > len(path) {
		write = len(path)
	}
	node := lastBestNode
	// Skip the tail that does not fit; the head of the chain is the start.
	for skip := n - write; skip > 0; skip-- {
		node = q.pool.nodeAtIdx(node.pidx)
	}
	for i := write - 1; i >= 0; i-- {
		path[i] = node.id
		node = q.pool.nodeAtIdx(node.pidx)
	}
	return write, status
}

// getPortalPoints returns the shared edge between two adjacent polygons.
func (q *NavMeshQuery) getPortalPoints(from, to PolyRef, left, right []float32) bool {
	tile, poly, ok := q.mesh.TileAndPolyByRef(from)
	if !ok {
		return false
	}
	n := int(poly.VertCount)
	for i := 0; i < n; i++ {
		if poly.Neis[i] == to {
			common.Vcopy(left, common.Vert3(tile.Verts, int(poly.Verts[i])))
			common.Vcopy(right, common.Vert3(tile.Verts, int(poly.Verts[(i+1)%n])))
			return true
		}
	}
	return false
}

func appendVertex(pos []float32, flags uint8, ref PolyRef,
	straightPath []float32, straightFlags []uint8, straightRefs []PolyRef, n, max int) (int, bool) {
	if n > 0 && common.Vequal(common.Vert3(straightPath, n-1), pos) {
		// Duplicate vertex, keep the later flags and ref.
		if straightFlags != nil {
			straightFlags[n-1] = flags
		}
		if straightRefs != nil {
			straightRefs[n-1] = ref
		}
		return n, true
	}
	if n >= max {
		return n, false
	}
	common.Vcopy(common.Vert3(straightPath, n), pos)
	if straightFlags != nil {
		straightFlags[n] = flags
	}
	if straightRefs != nil {
		straightRefs[n] = ref
	}
	return n + 1, true
}

// FindStraightPath runs the string-pulling funnel over a polygon corridor,
// producing at most maxStraight waypoints from startPos to endPos.
// straightFlags and straightRefs may be nil.
func (q *NavMeshQuery) FindStraightPath(startPos, endPos []float32, path []PolyRef, npath int,
	straightPath []float32, straightFlags []uint8, straightRefs []PolyRef, maxStraight int) (int, Status) {
	if npath <= 0 || maxStraight <= 0 {
		return 0, StatusFailure | StatusInvalidParam
	}

	var closestStart, closestEnd [3]float32
	if q.ClosestPointOnPolyBoundary(path[0], startPos, closestStart[:]).Failed() {
		return 0, StatusFailure | StatusInvalidParam
	}
	if q.ClosestPointOnPolyBoundary(path[npath-1], endPos, closestEnd[:]).Failed() {
		return 0, StatusFailure | StatusInvalidParam
	}

	n := 0
	n, _ = appendVertex(closestStart[:], StraightPathStart, path[0],
		straightPath, straightFlags, straightRefs, n, maxStraight)

	status := StatusSuccess
	if npath > 1 {
		var portalApex, portalLeft, portalRight [3]float32
		common.Vcopy(portalApex[:], closestStart[:])
		common.Vcopy(portalLeft[:], portalApex[:])
		common.Vcopy(portalRight[:], portalApex[:])
		apexIndex := 0
		leftIndex := 0
		rightIndex := 0
		var leftPolyRef, rightPolyRef PolyRef

		for i := 0; i < npath; i++ {
			var left, right [3]float32
			var toRef PolyRef
			if i+1 < npath {
				toRef = path[i+1]
				if !q.getPortalPoints(path[i], toRef, left[:], right[:]) {
					// Corridor is broken past this polygon; clamp the end
					// onto it and finish.
					q.ClosestPointOnPolyBoundary(path[i], endPos, closestEnd[:])
					common.Vcopy(left[:], closestEnd[:])
					common.Vcopy(right[:], closestEnd[:])
					toRef = 0
					npath = i + 1
					status |= StatusPartialResult
				}
			} else {
				common.Vcopy(left[:], closestEnd[:])
				common.Vcopy(right[:], closestEnd[:])
			}

			// Right side of the funnel.
			if common.TriArea2D(portalApex[:], portalRight[:], right[:]) <= 0 {
				if common.Vequal(portalApex[:], portalRight[:]) ||
					common.TriArea2D(portalApex[:], portalLeft[:], right[:]) > 0 {
					common.Vcopy(portalRight[:], right[:])
					rightPolyRef = toRef
					rightIndex = i
				} else {
					var ok bool
					n, ok = appendVertex(portalLeft[:], 0, leftPolyRef,
						straightPath, straightFlags, straightRefs, n, maxStraight)
					if !ok {
						return n, StatusSuccess | StatusBufferTooSmall
					}
					common.Vcopy(portalApex[:], portalLeft[:])
					apexIndex = leftIndex
					common.Vcopy(portalLeft[:], portalApex[:])
					common.Vcopy(portalRight[:], portalApex[:])
					leftIndex = apexIndex
					rightIndex = apexIndex
					i = apexIndex
					continue
				}
			}

			// Left side of the funnel.
			if common.TriArea2D(portalApex[:], portalLeft[:], left[:]) >= 0 {
				if common.Vequal(portalApex[:], portalLeft[:]) ||
					common.TriArea2D(portalApex[:], portalRight[:], left[:]) < 0 {
					common.Vcopy(portalLeft[:], left[:])
					leftPolyRef = toRef
					leftIndex = i
				} else {
					var ok bool
					n, ok = appendVertex(portalRight[:], 0, rightPolyRef,
						straightPath, straightFlags, straightRefs, n, maxStraight)
					if !ok {
						return n, StatusSuccess | StatusBufferTooSmall
					}
					common.Vcopy(portalApex[:], portalRight[:])
					apexIndex = rightIndex
					common.Vcopy(portalLeft[:], portalApex[:])
					common.Vcopy(portalRight[:], portalApex[:])
					leftIndex = apexIndex
					rightIndex = apexIndex
					i = apexIndex
					continue
				}
			}
		}
	}

	n, _ = appendVertex(closestEnd[:], StraightPathEnd, 0,
		straightPath, straightFlags, straightRefs, n, maxStraight)
	return n, status
}

// FindRandomPoint picks a polygon weighted by surface area and a uniform
// point on it. frand must return uniform samples in [0, 1).
func (q *NavMeshQuery) FindRandomPoint(filter *QueryFilter, frand func() float32, pt []float32) (PolyRef, Status) {
	var chosenTile *Tile
	var chosenPoly *Poly
	var chosenRef PolyRef
	areaSum := float32(0)

	for ti := 0; ti < q.mesh.TileCount(); ti++ {
		tile := q.mesh.Tile(ti)
		for ip, poly := range tile.Polys {
			if !filter.passFilter(poly) {
				continue
			}
			// Reservoir sampling weighted by polygon area.
			polyArea := float32(0)
			for j := 2; j < int(poly.VertCount); j++ {
				a := common.TriArea2D(
					common.Vert3(tile.Verts, int(poly.Verts[0])),
					common.Vert3(tile.Verts, int(poly.Verts[j-1])),
					common.Vert3(tile.Verts, int(poly.Verts[j])))
				if a < 0 {
					a = -a
				}
				polyArea += 0.5 * a
			}
			if polyArea <= 0 {
				continue
			}
			areaSum += polyArea
			if frand()*areaSum <= polyArea {
				chosenTile = tile
				chosenPoly = poly
				chosenRef = EncodePolyRef(tile.Ref, ip)
			}
		}
	}
	if chosenPoly == nil {
		return 0, StatusFailure
	}

	var verts [MaxVertsPerPoly * 3]float32
	var areas [MaxVertsPerPoly]float32
	nv := q.mesh.PolyVerts(chosenTile, chosenPoly, verts[:])
	common.RandomPointInConvexPoly(verts[:], nv, areas[:], frand(), frand(), pt)
	if h, ok := q.mesh.PolyHeight(chosenRef, pt); ok {
		pt[1] = h
	}
	return chosenRef, StatusSuccess
}

// Raycast walks the surface from startPos toward endPos, returning the
// parametric distance reached before hitting a wall (t == 1 means the
// segment is fully walkable) and the polygons visited.
func (q *NavMeshQuery) Raycast(startRef PolyRef, startPos, endPos []float32, filter *QueryFilter, visited []PolyRef) (t float32, nvisited int, status Status) {
	if !q.mesh.IsValidPolyRef(startRef) {
		return 0, 0, StatusFailure | StatusInvalidParam
	}

	cur := startRef
	for cur != 0 {
		if nvisited < len(visited) {
			visited[nvisited] = cur
			nvisited++
		} else {
			return t, nvisited, StatusSuccess | StatusBufferTooSmall
		}

		tile, poly, ok := q.mesh.TileAndPolyByRef(cur)
		if !ok {
			return t, nvisited, StatusFailure | StatusInvalidParam
		}
		var verts [MaxVertsPerPoly * 3]float32
		nv := q.mesh.PolyVerts(tile, poly, verts[:])

		_, tmax, _, segMax, hit := common.IntersectSegmentPoly2D(startPos, endPos, verts[:], nv)
		if !hit {
			// Start point is outside the polygon.
			return t, nvisited, StatusSuccess
		}
		if tmax > t {
			t = tmax
		}
		if tmax >= 1 {
			// Reached the end without hitting a wall.
			return 1, nvisited, StatusSuccess
		}
		if segMax < 0 {
			return t, nvisited, StatusSuccess
		}

		next := poly.Neis[segMax]
		if next == 0 {
			return t, nvisited, StatusSuccess
		}
		_, nextPoly, ok := q.mesh.TileAndPolyByRef(next)
		if !ok || !filter.passFilter(nextPoly) {
			return t, nvisited, StatusSuccess
		}
		cur = next
	}
	return t, nvisited, StatusSuccess
}
