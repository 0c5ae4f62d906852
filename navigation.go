// Package walkernav simulates pedestrian crowds over a pre-baked
// navigation mesh. The Navigation facade loads binary mesh sets, manages
// walker agents and steps the crowd simulation, translating between the
// caller's z-up frame and the mesh's y-up frame at the boundary.
package walkernav

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"walkernav/common"
	"walkernav/config"
	"walkernav/crowd"
	"walkernav/navmesh"
)

// ActorID identifies a walker to the caller.
type ActorID uint64

// Location is a point in the caller's frame: x forward, y right, z up.
type Location struct {
	X, Y, Z float32
}

// Transform is a walker pose in the caller's frame. Yaw is in degrees.
type Transform struct {
	Location Location
	Yaw      float32
}

// TickState carries the per-frame simulation input.
type TickState struct {
	DeltaSeconds float64
}

// Half extents of the polygon search box for target and path queries.
var polyPickExt = [3]float32{2, 4, 2}

type walkerState struct {
	index      int
	baseOffset float32
	yaw        float32
}

// Navigation is the crowd facade. One mutex serializes every exported
// operation; the underlying query and crowd are not thread safe.
type Navigation struct {
	mu sync.Mutex

	log   *zap.Logger
	cfg   *config.Config
	store *navmesh.MeshStore
	query *navmesh.NavMeshQuery
	crowd *crowd.Crowd

	walkers map[ActorID]*walkerState
	delta   float64
	rng     *rand.Rand
}

// Option configures a Navigation.
type Option func(*Navigation)

func WithLogger(log *zap.Logger) Option {
	return func(n *Navigation) { n.log = log }
}

func WithConfig(cfg *config.Config) Option {
	return func(n *Navigation) { n.cfg = cfg }
}

// WithSeed fixes the random source used for wander destinations.
func WithSeed(seed int64) Option {
	return func(n *Navigation) { n.rng = rand.New(rand.NewSource(seed)) }
}

// New creates an empty Navigation; no queries succeed until a set is
// loaded.
func New(opts ...Option) *Navigation {
	n := &Navigation{
		log:     zap.NewNop(),
		cfg:     config.Default(),
		walkers: make(map[ActorID]*walkerState),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.store = navmesh.NewMeshStore(n.log)
	return n
}

// toNav converts a caller-frame location into mesh coordinates (y-up).
func toNav(loc Location) [3]float32 {
	return [3]float32{loc.X, loc.Z, loc.Y}
}

// fromNav converts a mesh-frame point back into the caller's frame.
func fromNav(p []float32) Location {
	return Location{X: p[0], Y: p[2], Z: p[1]}
}

// Load replaces the navigation mesh from a binary set. On success the
// query and crowd are rebuilt and all walkers are dropped; on failure the
// previous mesh, walkers included, stays in service.
func (n *Navigation) Load(data []byte) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.store.Load(data); err != nil {
		return false
	}
	n.rebuild()
	return true
}

// LoadFile loads a binary set from disk.
func (n *Navigation) LoadFile(path string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.store.LoadFile(path); err != nil {
		return false
	}
	n.rebuild()
	return true
}

// rebuild recreates the query and crowd over the freshly loaded mesh.
// Callers must hold the lock.
func (n *Navigation) rebuild() {
	mesh := n.store.Mesh()
	n.query = navmesh.NewNavMeshQuery(mesh, 2048)
	n.crowd = crowd.NewCrowd(n.cfg.MaxAgents, n.cfg.AgentRadius, mesh)
	n.walkers = make(map[ActorID]*walkerState)

	// Avoidance quality tiers, cheapest to best.
	tiers := []crowd.ObstacleAvoidanceParams{
		{VelBias: 0.5, AdaptiveDivs: 5, AdaptiveRings: 2, AdaptiveDepth: 1},
		{VelBias: 0.5, AdaptiveDivs: 5, AdaptiveRings: 2, AdaptiveDepth: 2},
		{VelBias: 0.5, AdaptiveDivs: 7, AdaptiveRings: 2, AdaptiveDepth: 3},
		{VelBias: 0.5, AdaptiveDivs: 7, AdaptiveRings: 3, AdaptiveDepth: 3},
	}
	for i, t := range tiers {
		base := n.crowd.ObstacleAvoidanceDefaults()
		base.VelBias = t.VelBias
		base.AdaptiveDivs = t.AdaptiveDivs
		base.AdaptiveRings = t.AdaptiveRings
		base.AdaptiveDepth = t.AdaptiveDepth
		n.crowd.SetObstacleAvoidanceParams(i, base)
	}

	// Walkers never cross polygons the baker disabled.
	filter := n.crowd.EditableFilter(0)
	filter.SetIncludeFlags(navmesh.PolyFlagsAll)
	filter.SetExcludeFlags(navmesh.PolyFlagsDisabled)
}

// Loaded reports whether a mesh is in service.
func (n *Navigation) Loaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.Mesh() != nil
}

// WalkerCount returns the number of registered walkers.
func (n *Navigation) WalkerCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.walkers)
}

// GetPath returns the waypoints of the shortest path between two points.
// A nil filter uses the default walker filter.
func (n *Navigation) GetPath(from, to Location, filter *navmesh.QueryFilter) ([]Location, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.query == nil {
		return nil, false
	}
	if filter == nil {
		filter = n.crowd.EditableFilter(0)
	}

	start := toNav(from)
	end := toNav(to)

	startRef, status := n.query.FindNearestPoly(start[:], polyPickExt[:], filter, start[:])
	if !status.Succeeded() || startRef == 0 {
		return nil, false
	}
	endRef, status := n.query.FindNearestPoly(end[:], polyPickExt[:], filter, end[:])
	if !status.Succeeded() || endRef == 0 {
		return nil, false
	}

	var polys [256]navmesh.PolyRef
	npolys, status := n.query.FindPath(startRef, endRef, start[:], end[:], filter, polys[:])
	if status.Failed() || npolys == 0 {
		return nil, false
	}

	var straight [256 * 3]float32
	nstraight, status := n.query.FindStraightPath(start[:], end[:], polys[:], npolys,
		straight[:], nil, nil, 256)
	if status.Failed() || nstraight == 0 {
		return nil, false
	}

	path := make([]Location, nstraight)
	for i := 0; i < nstraight; i++ {
		path[i] = fromNav(common.Vert3(straight[:], i))
	}
	return path, true
}

// AddWalker registers a walker at from. baseOffset is the height of the
// walker's pivot above its feet in the caller's frame.
func (n *Navigation) AddWalker(id ActorID, from Location, baseOffset float32) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.crowd == nil {
		return false
	}
	if _, exists := n.walkers[id]; exists {
		return false
	}

	params := n.agentParams(baseOffset)
	// The crowd works at the feet, the caller at the pivot.
	from.Z -= baseOffset
	pos := toNav(from)

	index := n.crowd.AddAgent(pos[:], &params)
	if index == -1 {
		n.log.Warn("walker pool exhausted", zap.Uint64("id", uint64(id)))
		return false
	}
	n.walkers[id] = &walkerState{index: index, baseOffset: baseOffset}
	return true
}

func (n *Navigation) agentParams(baseOffset float32) crowd.AgentParams {
	r := n.cfg.AgentRadius
	return crowd.AgentParams{
		Radius:                r,
		Height:                baseOffset * 2,
		MaxAcceleration:       n.cfg.MaxAcceleration,
		MaxSpeed:              n.cfg.MaxSpeed,
		CollisionQueryRange:   r * 12,
		PathOptimizationRange: r * 30,
		SeparationWeight:      n.cfg.SeparationWeight,
		ObstacleAvoidanceType: n.cfg.AvoidanceQuality,
		QueryFilterType:       0,
		UpdateFlags: crowd.UpdateFlagsAnticipateTurns |
			crowd.UpdateFlagsObstacleAvoidance |
			crowd.UpdateFlagsSeparation |
			crowd.UpdateFlagsOptimizeVis |
			crowd.UpdateFlagsOptimizeTopo,
	}
}

// RemoveWalker releases the walker's agent slot.
func (n *Navigation) RemoveWalker(id ActorID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	w, ok := n.walkers[id]
	if !ok {
		return false
	}
	n.crowd.RemoveAgent(w.index)
	delete(n.walkers, id)
	return true
}

// SetWalkerTarget directs a walker toward the given location.
func (n *Navigation) SetWalkerTarget(id ActorID, to Location) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	w, ok := n.walkers[id]
	if !ok {
		return false
	}
	return n.setWalkerTargetIndex(w.index, to)
}

// setWalkerTargetIndex is the shared retargeting path; callers must hold
// the lock.
func (n *Navigation) setWalkerTargetIndex(index int, to Location) bool {
	if index == -1 || n.query == nil {
		return false
	}
	pos := toNav(to)
	filter := n.crowd.EditableFilter(0)
	ref, status := n.query.FindNearestPoly(pos[:], polyPickExt[:], filter, pos[:])
	if !status.Succeeded() || ref == 0 {
		return false
	}
	return n.crowd.RequestMoveTarget(index, ref, pos[:])
}

// UpdateCrowd advances the simulation one tick. Walkers that arrived at
// their destination are sent toward a fresh random one, so idle crowds
// keep wandering.
func (n *Navigation) UpdateCrowd(state TickState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.crowd == nil {
		return
	}
	n.delta = state.DeltaSeconds
	n.crowd.Update(float32(state.DeltaSeconds))

	// Retarget walkers that reached the end of their path.
	for i := 0; i < n.crowd.AgentCount(); i++ {
		ag := n.crowd.Agent(i)
		if !ag.Active || ag.Ncorners == 0 {
			continue
		}
		end := common.Vert3(ag.CornerVerts[:], ag.Ncorners-1)
		if common.VdistSqr(ag.Npos[:], end) > n.cfg.ArrivalThresholdSqr {
			continue
		}
		if loc, ok := n.randomLocation(n.cfg.WanderMaxHeight, nil); ok {
			n.setWalkerTargetIndex(i, loc)
		}
	}
}

// GetWalkerTransform returns the walker's pose, with yaw smoothed toward
// the desired movement direction at the configured rotation speed. Idle
// walkers keep their last yaw rather than turning back toward zero.
func (n *Navigation) GetWalkerTransform(id ActorID) (Transform, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	w, ok := n.walkers[id]
	if !ok {
		return Transform{}, false
	}
	ag := n.crowd.Agent(w.index)
	if !ag.Active {
		return Transform{}, false
	}

	loc := fromNav(ag.Npos[:])
	loc.Z += w.baseOffset - n.cfg.GroundOffset

	// Face the desired velocity, turning a fixed fraction of the
	// remaining angle per second to avoid jitter.
	if common.VlenSqr(ag.Dvel[:]) > 0.0001 {
		yaw := float32(math.Atan2(float64(ag.Dvel[2]), float64(ag.Dvel[0]))) * 180 / math.Pi
		shortest := float32(math.Mod(float64(yaw-w.yaw)+540, 360)) - 180
		w.yaw += shortest * n.cfg.RotationSpeed * float32(n.delta)
	}

	return Transform{Location: loc, Yaw: w.yaw}, true
}

// GetWalkerSpeed returns the walker's current speed in m/s.
func (n *Navigation) GetWalkerSpeed(id ActorID) float32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	w, ok := n.walkers[id]
	if !ok {
		return 0
	}
	ag := n.crowd.Agent(w.index)
	if !ag.Active {
		return 0
	}
	return common.Vlen(ag.Vel[:])
}

// GetRandomLocation draws a random walkable location. maxHeight constrains
// the result's height in mesh space; negative disables the constraint.
// Fails after the configured number of attempts.
func (n *Navigation) GetRandomLocation(maxHeight float32, filter *navmesh.QueryFilter) (Location, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.randomLocation(maxHeight, filter)
}

// randomLocation is the unlocked sampler shared with the wander loop.
func (n *Navigation) randomLocation(maxHeight float32, filter *navmesh.QueryFilter) (Location, bool) {
	if n.query == nil {
		return Location{}, false
	}
	if filter == nil {
		filter = n.crowd.EditableFilter(0)
	}
	frand := func() float32 { return n.rng.Float32() }

	var pt [3]float32
	for attempt := 0; attempt < n.cfg.RandomPointAttempts; attempt++ {
		ref, status := n.query.FindRandomPoint(filter, frand, pt[:])
		if !status.Succeeded() || ref == 0 {
			return Location{}, false
		}
		if maxHeight < 0 || pt[1] <= maxHeight {
			return fromNav(pt[:]), true
		}
	}
	return Location{}, false
}
