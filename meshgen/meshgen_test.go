package meshgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkernav/navmesh"
)

func TestGenerateLoadsAndMatchesRefs(t *testing.T) {
	spec := GridSpec{TilesX: 3, TilesZ: 2, CellsPerTile: 4, CellSize: 2}
	data, err := Generate(spec)
	require.NoError(t, err)

	header, tiles, err := navmesh.ReadSet(data)
	require.NoError(t, err)
	require.Len(t, tiles, 6)
	assert.InDelta(t, 8.0, header.Params.TileWidth, 1e-6)

	mesh, err := navmesh.NewMesh(&header.Params)
	require.NoError(t, err)
	for _, tile := range tiles {
		require.NoError(t, mesh.AddTile(tile.Data, tile.Ref))
	}

	// Cell centers resolve to the refs the generator promises.
	for _, cell := range [][2]int{{0, 0}, {5, 3}, {11, 7}} {
		center := spec.CellCenter(cell[0], cell[1])
		_, _, ok := mesh.TileAndPolyByRef(spec.PolyRefAt(cell[0], cell[1]))
		require.True(t, ok)
		assert.True(t, mesh.PolyContainsPoint2D(spec.PolyRefAt(cell[0], cell[1]), center[:]),
			"cell %v", cell)
	}
}

func TestAdjacencyIsSymmetric(t *testing.T) {
	spec := GridSpec{TilesX: 2, TilesZ: 2, CellsPerTile: 2, CellSize: 1}
	data, err := Generate(spec)
	require.NoError(t, err)

	header, tiles, err := navmesh.ReadSet(data)
	require.NoError(t, err)
	mesh, err := navmesh.NewMesh(&header.Params)
	require.NoError(t, err)
	for _, tile := range tiles {
		require.NoError(t, mesh.AddTile(tile.Data, tile.Ref))
	}

	for ti := 0; ti < mesh.TileCount(); ti++ {
		tile := mesh.Tile(ti)
		for ip, poly := range tile.Polys {
			self := navmesh.EncodePolyRef(tile.Ref, ip)
			for e := 0; e < int(poly.VertCount); e++ {
				nei := poly.Neis[e]
				if nei == 0 {
					continue
				}
				_, neiPoly, ok := mesh.TileAndPolyByRef(nei)
				require.True(t, ok, "dangling neighbour ref %#x", uint64(nei))

				back := false
				for be := 0; be < int(neiPoly.VertCount); be++ {
					if neiPoly.Neis[be] == self {
						back = true
						break
					}
				}
				assert.True(t, back, "adjacency %#x -> %#x not mirrored", uint64(self), uint64(nei))
			}
		}
	}
}

func TestGenerateRejectsBadSpec(t *testing.T) {
	_, err := Generate(GridSpec{TilesX: 0, TilesZ: 1, CellsPerTile: 1, CellSize: 1})
	assert.Error(t, err)
}
