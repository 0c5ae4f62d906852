// Package meshgen produces small synthetic navigation sets: regular grids
// of square polygons with fully baked adjacency. It exists for tests and
// the CLI; production sets come from the external baking tool.
package meshgen

import (
	"fmt"

	"walkernav/navmesh"
)

// GridSpec describes a rectangular grid of tiles, each tile a CellsPerTile
// x CellsPerTile patch of square walkable cells of CellSize meters.
type GridSpec struct {
	TilesX, TilesZ int
	CellsPerTile   int
	CellSize       float32

	// HeightAt, when set, gives the surface height at a vertex. The
	// default is a flat plane at y = 0.
	HeightAt func(x, z float32) float32

	// DisabledAt, when set, marks the cell at global cell coordinates as
	// non-walkable. Adjacency across it is still baked; query filters
	// decide whether to cross.
	DisabledAt func(cx, cz int) bool
}

// TileRefAt returns the tile reference the generator assigns to the tile
// at grid position (tx, tz).
func (s *GridSpec) TileRefAt(tx, tz int) navmesh.TileRef {
	return navmesh.TileRef(uint64(tz*s.TilesX+tx+1) << 16)
}

// PolyRefAt returns the polygon reference of the cell at global cell
// coordinates (cx, cz).
func (s *GridSpec) PolyRefAt(cx, cz int) navmesh.PolyRef {
	tx, lx := cx/s.CellsPerTile, cx%s.CellsPerTile
	tz, lz := cz/s.CellsPerTile, cz%s.CellsPerTile
	return navmesh.EncodePolyRef(s.TileRefAt(tx, tz), lz*s.CellsPerTile+lx)
}

// CellCenter returns the center of the cell at global cell coordinates, on
// the surface.
func (s *GridSpec) CellCenter(cx, cz int) [3]float32 {
	x := (float32(cx) + 0.5) * s.CellSize
	z := (float32(cz) + 0.5) * s.CellSize
	return [3]float32{x, s.heightAt(x, z), z}
}

func (s *GridSpec) heightAt(x, z float32) float32 {
	if s.HeightAt == nil {
		return 0
	}
	return s.HeightAt(x, z)
}

func (s *GridSpec) disabledAt(cx, cz int) bool {
	return s.DisabledAt != nil && s.DisabledAt(cx, cz)
}

// Generate serializes the grid into a binary navigation set.
func Generate(spec GridSpec) ([]byte, error) {
	if spec.TilesX <= 0 || spec.TilesZ <= 0 || spec.CellsPerTile <= 0 || spec.CellSize <= 0 {
		return nil, fmt.Errorf("meshgen: invalid grid spec %+v", spec)
	}

	params := navmesh.MeshParams{
		TileWidth:  float32(spec.CellsPerTile) * spec.CellSize,
		TileHeight: float32(spec.CellsPerTile) * spec.CellSize,
		MaxTiles:   int32(spec.TilesX * spec.TilesZ),
		MaxPolys:   int32(spec.CellsPerTile * spec.CellsPerTile),
	}

	tiles := make([]navmesh.RawTile, 0, spec.TilesX*spec.TilesZ)
	for tz := 0; tz < spec.TilesZ; tz++ {
		for tx := 0; tx < spec.TilesX; tx++ {
			tiles = append(tiles, navmesh.RawTile{
				Ref:  spec.TileRefAt(tx, tz),
				Data: generateTile(&spec, tx, tz),
			})
		}
	}
	return navmesh.WriteSet(&params, tiles), nil
}

func generateTile(spec *GridSpec, tx, tz int) []byte {
	cpt := spec.CellsPerTile
	side := cpt + 1
	tileW := float32(cpt) * spec.CellSize
	orgX := float32(tx) * tileW
	orgZ := float32(tz) * tileW

	verts := make([]float32, 0, side*side*3)
	minY, maxY := float32(0), float32(0)
	for j := 0; j < side; j++ {
		for i := 0; i < side; i++ {
			x := orgX + float32(i)*spec.CellSize
			z := orgZ + float32(j)*spec.CellSize
			y := spec.heightAt(x, z)
			if len(verts) == 0 || y < minY {
				minY = y
			}
			if len(verts) == 0 || y > maxY {
				maxY = y
			}
			verts = append(verts, x, y, z)
		}
	}

	vid := func(i, j int) int32 { return int32(j*side + i) }

	polys := make([]*navmesh.Poly, 0, cpt*cpt)
	for cz := 0; cz < cpt; cz++ {
		for cx := 0; cx < cpt; cx++ {
			gx := tx*cpt + cx
			gz := tz*cpt + cz

			p := &navmesh.Poly{VertCount: 4, Flags: navmesh.PolyFlagsWalk}
			if spec.disabledAt(gx, gz) {
				p.Flags |= navmesh.PolyFlagsDisabled
			}
			// Clockwise on the xz-plane so funnel fan areas come out
			// positive.
			p.Verts[0] = vid(cx, cz)
			p.Verts[1] = vid(cx, cz+1)
			p.Verts[2] = vid(cx+1, cz+1)
			p.Verts[3] = vid(cx+1, cz)

			// Edge i runs Verts[i] -> Verts[i+1]: west, north, east,
			// south in that order.
			p.Neis[0] = spec.neiRef(gx-1, gz)
			p.Neis[1] = spec.neiRef(gx, gz+1)
			p.Neis[2] = spec.neiRef(gx+1, gz)
			p.Neis[3] = spec.neiRef(gx, gz-1)

			polys = append(polys, p)
		}
	}

	header := navmesh.TileHeader{
		TX:   int32(tx),
		TY:   int32(tz),
		Bmin: [3]float32{orgX, minY, orgZ},
		Bmax: [3]float32{orgX + tileW, maxY, orgZ + tileW},
	}
	return navmesh.EncodeTileData(&header, verts, polys)
}

func (s *GridSpec) neiRef(cx, cz int) navmesh.PolyRef {
	if cx < 0 || cz < 0 || cx >= s.TilesX*s.CellsPerTile || cz >= s.TilesZ*s.CellsPerTile {
		return 0
	}
	return s.PolyRefAt(cx, cz)
}
