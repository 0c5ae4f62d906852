package navmesh_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkernav/common"
	"walkernav/meshgen"
	"walkernav/navmesh"
)

// buildMesh decodes a generated grid into a queryable mesh.
func buildMesh(t *testing.T, spec meshgen.GridSpec) *navmesh.Mesh {
	t.Helper()
	data := gridSet(t, spec)
	header, tiles, err := navmesh.ReadSet(data)
	require.NoError(t, err)
	mesh, err := navmesh.NewMesh(&header.Params)
	require.NoError(t, err)
	for _, tile := range tiles {
		require.NoError(t, mesh.AddTile(tile.Data, tile.Ref))
	}
	return mesh
}

var queryExt = []float32{2, 4, 2}

func TestFindNearestPoly(t *testing.T) {
	spec := defaultGrid()
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)
	filter := navmesh.NewQueryFilter()

	center := []float32{2.5, 0, 3.5}
	var nearest [3]float32
	ref, status := q.FindNearestPoly(center, queryExt, filter, nearest[:])
	require.True(t, status.Succeeded())
	assert.Equal(t, spec.PolyRefAt(2, 3), ref)
	assert.InDelta(t, 2.5, nearest[0], 1e-4)
	assert.InDelta(t, 3.5, nearest[2], 1e-4)

	// Far off the mesh nothing is found.
	_, status = q.FindNearestPoly([]float32{100, 0, 100}, queryExt, filter, nil)
	assert.True(t, status.Failed())
}

func TestFindNearestPolyRespectsFilter(t *testing.T) {
	spec := defaultGrid()
	spec.DisabledAt = func(cx, cz int) bool { return cx == 2 && cz == 3 }
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)

	filter := navmesh.NewQueryFilter()
	filter.SetExcludeFlags(navmesh.PolyFlagsDisabled)

	ref, status := q.FindNearestPoly([]float32{2.5, 0, 3.5}, queryExt, filter, nil)
	require.True(t, status.Succeeded())
	assert.NotEqual(t, spec.PolyRefAt(2, 3), ref)
}

func TestFindPathSamePoly(t *testing.T) {
	spec := defaultGrid()
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)
	filter := navmesh.NewQueryFilter()

	ref := spec.PolyRefAt(1, 1)
	var path [16]navmesh.PolyRef
	n, status := q.FindPath(ref, ref, []float32{1.2, 0, 1.2}, []float32{1.8, 0, 1.8}, filter, path[:])
	require.True(t, status.Succeeded())
	require.Equal(t, 1, n)
	assert.Equal(t, ref, path[0])
}

func TestFindPathAcrossTiles(t *testing.T) {
	spec := defaultGrid()
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)
	filter := navmesh.NewQueryFilter()

	start := []float32{0.5, 0, 0.5}
	end := []float32{7.5, 0, 7.5}
	startRef := spec.PolyRefAt(0, 0)
	endRef := spec.PolyRefAt(7, 7)

	var path [64]navmesh.PolyRef
	n, status := q.FindPath(startRef, endRef, start, end, filter, path[:])
	require.True(t, status.Succeeded())
	require.False(t, status.Partial())
	require.Greater(t, n, 1)
	assert.Equal(t, startRef, path[0])
	assert.Equal(t, endRef, path[n-1])
}

func TestFindPathPartialWhenBlocked(t *testing.T) {
	spec := defaultGrid()
	// A full wall of disabled cells at cx == 4.
	spec.DisabledAt = func(cx, cz int) bool { return cx == 4 }
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)
	filter := navmesh.NewQueryFilter()
	filter.SetExcludeFlags(navmesh.PolyFlagsDisabled)

	startRef := spec.PolyRefAt(1, 1)
	endRef := spec.PolyRefAt(6, 6)
	var path [64]navmesh.PolyRef
	n, status := q.FindPath(startRef, endRef, []float32{1.5, 0, 1.5}, []float32{6.5, 0, 6.5}, filter, path[:])
	require.True(t, status.Succeeded())
	assert.True(t, status.Partial())
	require.Greater(t, n, 0)
	assert.NotEqual(t, endRef, path[n-1])
}

func TestFindStraightPathTwoWaypoints(t *testing.T) {
	spec := defaultGrid()
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)
	filter := navmesh.NewQueryFilter()

	// Along one row the funnel never finds a corner.
	start := []float32{0.5, 0, 0.5}
	end := []float32{7.5, 0, 0.5}
	var path [64]navmesh.PolyRef
	n, status := q.FindPath(spec.PolyRefAt(0, 0), spec.PolyRefAt(7, 0), start, end, filter, path[:])
	require.True(t, status.Succeeded())

	var straight [64 * 3]float32
	var flags [64]uint8
	ns, status := q.FindStraightPath(start, end, path[:], n, straight[:], flags[:], nil, 64)
	require.True(t, status.Succeeded())
	require.Equal(t, 2, ns)
	assert.Equal(t, navmesh.StraightPathStart, flags[0]&navmesh.StraightPathStart)
	assert.Equal(t, navmesh.StraightPathEnd, flags[1]&navmesh.StraightPathEnd)
	assert.InDelta(t, 0.5, straight[0], 1e-4)
	assert.InDelta(t, 7.5, straight[3], 1e-4)
}

func TestFindStraightPathAroundWall(t *testing.T) {
	spec := defaultGrid()
	// Wall at cx == 4 with a gap at cz == 7.
	spec.DisabledAt = func(cx, cz int) bool { return cx == 4 && cz != 7 }
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)
	filter := navmesh.NewQueryFilter()
	filter.SetExcludeFlags(navmesh.PolyFlagsDisabled)

	start := []float32{1.5, 0, 1.5}
	end := []float32{6.5, 0, 1.5}
	var path [128]navmesh.PolyRef
	n, status := q.FindPath(spec.PolyRefAt(1, 1), spec.PolyRefAt(6, 1), start, end, filter, path[:])
	require.True(t, status.Succeeded())
	require.False(t, status.Partial())

	var straight [128 * 3]float32
	ns, status := q.FindStraightPath(start, end, path[:], n, straight[:], nil, nil, 128)
	require.True(t, status.Succeeded())
	// The detour through the gap needs at least one corner.
	assert.Greater(t, ns, 2)
	// Waypoints stay clear of the disabled column's near side.
	for i := 1; i < ns-1; i++ {
		wp := common.Vert3(straight[:], i)
		assert.GreaterOrEqual(t, wp[2], float32(1.5))
	}
}

func TestFindRandomPoint(t *testing.T) {
	spec := defaultGrid()
	spec.DisabledAt = func(cx, cz int) bool { return cx < 6 } // most cells excluded
	mesh := buildMesh(t, spec)
	q := navmesh.NewNavMeshQuery(mesh, 512)
	filter := navmesh.NewQueryFilter()
	filter.SetExcludeFlags(navmesh.PolyFlagsDisabled)

	rng := rand.New(rand.NewSource(7))
	frand := func() float32 { return rng.Float32() }

	for i := 0; i < 50; i++ {
		var pt [3]float32
		ref, status := q.FindRandomPoint(filter, frand, pt[:])
		require.True(t, status.Succeeded())
		require.True(t, mesh.IsValidPolyRef(ref))
		// Only the cells with cx >= 6 are eligible.
		assert.GreaterOrEqual(t, pt[0], float32(6))
		assert.LessOrEqual(t, pt[0], float32(8))
		assert.GreaterOrEqual(t, pt[2], float32(0))
		assert.LessOrEqual(t, pt[2], float32(8))
	}
}

func TestRaycast(t *testing.T) {
	spec := defaultGrid()
	q := navmesh.NewNavMeshQuery(buildMesh(t, spec), 512)
	filter := navmesh.NewQueryFilter()

	var visited [64]navmesh.PolyRef
	start := []float32{0.5, 0, 0.5}

	// Clear line along a row.
	tt, n, status := q.Raycast(spec.PolyRefAt(0, 0), start, []float32{7.5, 0, 0.5}, filter, visited[:])
	require.True(t, status.Succeeded())
	assert.InDelta(t, 1.0, tt, 1e-5)
	assert.Equal(t, 8, n)

	// Toward the mesh boundary the ray stops at the wall.
	tt, _, status = q.Raycast(spec.PolyRefAt(0, 0), start, []float32{0.5, 0, -5}, filter, visited[:])
	require.True(t, status.Succeeded())
	assert.Less(t, tt, float32(1))
}

func TestPolyHeightOnSlope(t *testing.T) {
	spec := defaultGrid()
	spec.HeightAt = func(x, z float32) float32 { return x * 0.1 }
	mesh := buildMesh(t, spec)

	ref := spec.PolyRefAt(3, 2)
	h, ok := mesh.PolyHeight(ref, []float32{3.5, 0, 2.5})
	require.True(t, ok)
	assert.InDelta(t, 0.35, h, 1e-3)

	var closest [3]float32
	over := mesh.ClosestPointOnPoly(ref, []float32{3.5, 5, 2.5}, closest[:])
	assert.True(t, over)
	assert.InDelta(t, 0.35, closest[1], 1e-3)
}
