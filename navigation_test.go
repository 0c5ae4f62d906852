package walkernav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkernav/config"
	"walkernav/meshgen"
)

func fixtureSet(t *testing.T) []byte {
	t.Helper()
	data, err := meshgen.Generate(meshgen.GridSpec{
		TilesX: 2, TilesZ: 2, CellsPerTile: 8, CellSize: 1,
	})
	require.NoError(t, err)
	return data
}

func loadedNav(t *testing.T, opts ...Option) *Navigation {
	t.Helper()
	nav := New(append([]Option{WithSeed(42)}, opts...)...)
	require.True(t, nav.Load(fixtureSet(t)))
	return nav
}

func TestLoadRejectsMalformedAndKeepsPrevious(t *testing.T) {
	nav := New(WithSeed(1))
	assert.False(t, nav.Load([]byte("not a navigation set")))
	assert.False(t, nav.Loaded())

	good := fixtureSet(t)
	require.True(t, nav.Load(good))
	require.True(t, nav.AddWalker(1, Location{X: 2, Y: 2, Z: 0.9}, 0.9))

	bad := make([]byte, len(good))
	copy(bad, good)
	bad[0] ^= 0xff
	assert.False(t, nav.Load(bad))

	// The previous mesh and its walkers stay in service.
	assert.True(t, nav.Loaded())
	assert.Equal(t, 1, nav.WalkerCount())
	_, ok := nav.GetPath(Location{X: 1, Y: 1}, Location{X: 14, Y: 14}, nil)
	assert.True(t, ok)
}

func TestReloadIsIdempotent(t *testing.T) {
	nav := loadedNav(t)
	from := Location{X: 1.5, Y: 1.5}
	to := Location{X: 14.5, Y: 9.5}

	first, ok := nav.GetPath(from, to, nil)
	require.True(t, ok)

	require.True(t, nav.Load(fixtureSet(t)))
	second, ok := nav.GetPath(from, to, nil)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestLoadReplacingMeshDropsWalkers(t *testing.T) {
	nav := loadedNav(t)
	require.True(t, nav.AddWalker(7, Location{X: 3, Y: 3, Z: 0.9}, 0.9))
	require.True(t, nav.Load(fixtureSet(t)))
	assert.Equal(t, 0, nav.WalkerCount())

	// The id is free again after the swap.
	assert.True(t, nav.AddWalker(7, Location{X: 3, Y: 3, Z: 0.9}, 0.9))
}

func TestWalkerPoolCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.MaxAgents = 500
	nav := loadedNav(t, WithConfig(cfg))

	for i := 0; i < 500; i++ {
		require.True(t, nav.AddWalker(ActorID(i+1), Location{X: 8, Y: 8, Z: 0.9}, 0.9),
			"walker %d", i)
	}
	assert.False(t, nav.AddWalker(501, Location{X: 8, Y: 8, Z: 0.9}, 0.9))

	// Removing one frees a slot.
	require.True(t, nav.RemoveWalker(250))
	assert.True(t, nav.AddWalker(501, Location{X: 8, Y: 8, Z: 0.9}, 0.9))
}

func TestDuplicateWalkerRejected(t *testing.T) {
	nav := loadedNav(t)
	require.True(t, nav.AddWalker(1, Location{X: 2, Y: 2, Z: 0.9}, 0.9))
	assert.False(t, nav.AddWalker(1, Location{X: 4, Y: 4, Z: 0.9}, 0.9))
	assert.Equal(t, 1, nav.WalkerCount())
}

func TestUnknownWalkerIsSafe(t *testing.T) {
	nav := loadedNav(t)

	_, ok := nav.GetWalkerTransform(99)
	assert.False(t, ok)
	assert.Zero(t, nav.GetWalkerSpeed(99))
	assert.False(t, nav.SetWalkerTarget(99, Location{X: 1, Y: 1}))
	assert.False(t, nav.RemoveWalker(99))
}

func TestGetPathSamePolygonIsDirect(t *testing.T) {
	nav := loadedNav(t)
	path, ok := nav.GetPath(Location{X: 3.2, Y: 3.2}, Location{X: 3.8, Y: 3.8}, nil)
	require.True(t, ok)
	require.Len(t, path, 2)
	assert.InDelta(t, 3.2, path[0].X, 1e-4)
	assert.InDelta(t, 3.8, path[1].X, 1e-4)
}

func TestGetPathWithoutMeshFails(t *testing.T) {
	nav := New()
	_, ok := nav.GetPath(Location{}, Location{X: 5}, nil)
	assert.False(t, ok)
}

func TestWalkerWalksTowardTarget(t *testing.T) {
	nav := loadedNav(t)
	start := Location{X: 1.5, Y: 1.5, Z: 0.9}
	require.True(t, nav.AddWalker(1, start, 0.9))
	require.True(t, nav.SetWalkerTarget(1, Location{X: 9.5, Y: 1.5}))

	// Arrived walkers wander off to a fresh destination, so track the
	// closest approach instead of the final position.
	state := TickState{DeltaSeconds: 1.0 / 30.0}
	closest := float64(math.MaxFloat64)
	for i := 0; i < 600; i++ {
		nav.UpdateCrowd(state)
		tr, ok := nav.GetWalkerTransform(1)
		require.True(t, ok)
		d := math.Hypot(float64(tr.Location.X-9.5), float64(tr.Location.Y-1.5))
		if d < closest {
			closest = d
		}
		// Pivot height: surface plus base offset minus the ground
		// correction.
		assert.InDelta(t, 0.9-0.08, tr.Location.Z, 1e-3)
	}
	// Within the arrival radius the walker retargets, so the closest
	// approach is bounded by it.
	assert.Less(t, closest, 1.5)
}

func TestArrivedWalkerPicksNewDestination(t *testing.T) {
	nav := loadedNav(t)
	start := Location{X: 8.5, Y: 8.5, Z: 0.9}
	require.True(t, nav.AddWalker(1, start, 0.9))
	// Target where the walker already stands: arrival triggers a wander
	// retarget on the next tick.
	require.True(t, nav.SetWalkerTarget(1, start))

	state := TickState{DeltaSeconds: 1.0 / 30.0}
	maxMoved := 0.0
	for i := 0; i < 600; i++ {
		nav.UpdateCrowd(state)
		tr, ok := nav.GetWalkerTransform(1)
		require.True(t, ok)
		moved := math.Hypot(float64(tr.Location.X-start.X), float64(tr.Location.Y-start.Y))
		if moved > maxMoved {
			maxMoved = moved
		}
	}
	assert.Greater(t, maxMoved, 0.5)
}

func TestSetWalkerTargetOffMeshKeepsPrevious(t *testing.T) {
	nav := loadedNav(t)
	require.True(t, nav.AddWalker(1, Location{X: 1.5, Y: 1.5, Z: 0.9}, 0.9))
	require.True(t, nav.SetWalkerTarget(1, Location{X: 12.5, Y: 1.5}))

	// Far outside the polygon search box: rejected, previous target kept.
	assert.False(t, nav.SetWalkerTarget(1, Location{X: 1000, Y: 1000}))

	state := TickState{DeltaSeconds: 1.0 / 30.0}
	for i := 0; i < 300; i++ {
		nav.UpdateCrowd(state)
	}
	tr, ok := nav.GetWalkerTransform(1)
	require.True(t, ok)
	assert.Greater(t, tr.Location.X, float32(5))
}

func TestYawTurnRateIsBounded(t *testing.T) {
	nav := loadedNav(t)
	require.True(t, nav.AddWalker(1, Location{X: 8.5, Y: 1.5, Z: 0.9}, 0.9))
	require.True(t, nav.SetWalkerTarget(1, Location{X: 8.5, Y: 14.5}))

	const dt = 1.0 / 30.0
	maxStep := 180 * 4.0 * dt // half-turn times rotation speed per tick

	state := TickState{DeltaSeconds: dt}
	nav.UpdateCrowd(state)
	prev, ok := nav.GetWalkerTransform(1)
	require.True(t, ok)
	for i := 0; i < 120; i++ {
		nav.UpdateCrowd(state)
		tr, ok := nav.GetWalkerTransform(1)
		require.True(t, ok)
		delta := math.Abs(float64(tr.Yaw - prev.Yaw))
		if delta > 180 {
			delta = 360 - delta
		}
		assert.LessOrEqual(t, delta, maxStep+1e-3)
		prev = tr
	}
}

func TestGetWalkerSpeedReachesCruise(t *testing.T) {
	nav := loadedNav(t)
	require.True(t, nav.AddWalker(1, Location{X: 1.5, Y: 8.5, Z: 0.9}, 0.9))
	require.True(t, nav.SetWalkerTarget(1, Location{X: 14.5, Y: 8.5}))

	state := TickState{DeltaSeconds: 1.0 / 30.0}
	for i := 0; i < 90; i++ {
		nav.UpdateCrowd(state)
	}
	speed := nav.GetWalkerSpeed(1)
	assert.Greater(t, speed, float32(1.0))
	assert.LessOrEqual(t, speed, float32(1.6))
}

func TestGetRandomLocation(t *testing.T) {
	nav := loadedNav(t)

	for i := 0; i < 20; i++ {
		loc, ok := nav.GetRandomLocation(-1, nil)
		require.True(t, ok)
		assert.GreaterOrEqual(t, loc.X, float32(0))
		assert.LessOrEqual(t, loc.X, float32(16))
		assert.GreaterOrEqual(t, loc.Y, float32(0))
		assert.LessOrEqual(t, loc.Y, float32(16))
		assert.Zero(t, loc.Z)
	}
}

func TestGetRandomLocationHeightBoundFails(t *testing.T) {
	data, err := meshgen.Generate(meshgen.GridSpec{
		TilesX: 1, TilesZ: 1, CellsPerTile: 4, CellSize: 1,
		HeightAt: func(x, z float32) float32 { return 5 },
	})
	require.NoError(t, err)

	nav := New(WithSeed(3))
	require.True(t, nav.Load(data))

	// Every sample sits at height 5; the bounded sampler gives up instead
	// of spinning forever.
	_, ok := nav.GetRandomLocation(1, nil)
	assert.False(t, ok)

	_, ok = nav.GetRandomLocation(-1, nil)
	assert.True(t, ok)
}

func TestGetRandomLocationBelowZeroSurface(t *testing.T) {
	// A surface below z = 0 still satisfies any non-negative height bound.
	data, err := meshgen.Generate(meshgen.GridSpec{
		TilesX: 1, TilesZ: 1, CellsPerTile: 4, CellSize: 1,
		HeightAt: func(x, z float32) float32 { return -5 },
	})
	require.NoError(t, err)

	nav := New(WithSeed(3))
	require.True(t, nav.Load(data))

	loc, ok := nav.GetRandomLocation(1, nil)
	require.True(t, ok)
	assert.InDelta(t, -5, loc.Z, 1e-4)
}

func TestArrivedWalkerKeepsWanderingBelowZero(t *testing.T) {
	// The wander retarget samples with a height bound; a sunken surface
	// must not stop arrived walkers from picking new destinations.
	data, err := meshgen.Generate(meshgen.GridSpec{
		TilesX: 2, TilesZ: 2, CellsPerTile: 8, CellSize: 1,
		HeightAt: func(x, z float32) float32 { return -5 },
	})
	require.NoError(t, err)

	nav := New(WithSeed(42))
	require.True(t, nav.Load(data))
	start := Location{X: 8.5, Y: 8.5, Z: -5 + 0.9}
	require.True(t, nav.AddWalker(1, start, 0.9))
	require.True(t, nav.SetWalkerTarget(1, start))

	state := TickState{DeltaSeconds: 1.0 / 30.0}
	maxMoved := 0.0
	for i := 0; i < 600; i++ {
		nav.UpdateCrowd(state)
		tr, ok := nav.GetWalkerTransform(1)
		require.True(t, ok)
		moved := math.Hypot(float64(tr.Location.X-start.X), float64(tr.Location.Y-start.Y))
		if moved > maxMoved {
			maxMoved = moved
		}
	}
	assert.Greater(t, maxMoved, 0.5)
}

func TestInactiveAgentIsNotReadable(t *testing.T) {
	nav := loadedNav(t)
	require.True(t, nav.AddWalker(1, Location{X: 2, Y: 2, Z: 0.9}, 0.9))

	// Deactivate the agent underneath the registry entry.
	nav.crowd.RemoveAgent(nav.walkers[1].index)

	_, ok := nav.GetWalkerTransform(1)
	assert.False(t, ok)
	assert.Zero(t, nav.GetWalkerSpeed(1))
}

func TestGetRandomLocationWithoutMeshFails(t *testing.T) {
	nav := New()
	_, ok := nav.GetRandomLocation(-1, nil)
	assert.False(t, ok)
}
