package navmesh

import (
	"fmt"

	"walkernav/common"
)

// PolyRef is an opaque handle to a walkable polygon within the mesh.
// Zero means "no polygon".
type PolyRef uint64

// TileRef is the handle assigned to a tile by the baking tool. The low
// polyBits bits are reserved for the polygon index inside the tile.
type TileRef uint64

const (
	// Number of low bits of a PolyRef holding the polygon index.
	polyBits = 16
	polyMask = (1 << polyBits) - 1

	// MaxVertsPerPoly is the vertex budget of one walkable polygon.
	MaxVertsPerPoly = 6

	// MaxAreas bounds the polygon area classification ids.
	MaxAreas = 64
)

// Polygon classification flags. The baker marks areas that should not be
// walked with PolyFlagsDisabled; the default query filter skips them.
const (
	PolyFlagsWalk     uint16 = 0x01
	PolyFlagsDisabled uint16 = 0x10
	PolyFlagsAll      uint16 = 0xffff
)

// EncodePolyRef composes a polygon reference from a tile reference and a
// polygon index.
func EncodePolyRef(tref TileRef, ip int) PolyRef {
	return PolyRef(uint64(tref) | uint64(ip))
}

// DecodePolyRef splits a polygon reference into its tile reference and
// polygon index.
func DecodePolyRef(ref PolyRef) (TileRef, int) {
	return TileRef(uint64(ref) &^ polyMask), int(uint64(ref) & polyMask)
}

// Poly is one walkable polygon of a tile. Neis holds, per edge i
// (Verts[i] -> Verts[i+1]), the global reference of the polygon on the other
// side, or zero for a wall. Cross-tile adjacency is baked the same way as
// internal adjacency, so no link stitching happens at load time.
type Poly struct {
	Verts     [MaxVertsPerPoly]int32
	Neis      [MaxVertsPerPoly]PolyRef
	VertCount int32
	Flags     uint16
	Area      uint8
}

// TileHeader is the fixed part of a tile payload.
type TileHeader struct {
	Magic     int32
	Version   int32
	TX, TY    int32
	PolyCount int32
	VertCount int32
	Bmin      [3]float32
	Bmax      [3]float32
}

// Tile is one spatial partition of the walkable surface.
type Tile struct {
	Ref    TileRef
	Header TileHeader
	Verts  []float32 // [(x, y, z) * VertCount]
	Polys  []*Poly
	Data   []byte // raw payload as loaded
}

// MeshParams mirrors the fixed meshParams record of the set header.
type MeshParams struct {
	Orig       [3]float32
	TileWidth  float32
	TileHeight float32
	MaxTiles   int32
	MaxPolys   int32
}

// Mesh is the full walkable surface. It is immutable once built; replacement
// happens by building a new Mesh and swapping it in (see MeshStore).
type Mesh struct {
	params    MeshParams
	tiles     []*Tile
	tileByRef map[TileRef]*Tile
}

// NewMesh initializes an empty tiled mesh from the set header parameters.
func NewMesh(params *MeshParams) (*Mesh, error) {
	if params.MaxTiles <= 0 || params.MaxPolys <= 0 {
		return nil, fmt.Errorf("navmesh: invalid mesh params (maxTiles=%d maxPolys=%d)",
			params.MaxTiles, params.MaxPolys)
	}
	if params.MaxPolys > polyMask+1 {
		return nil, fmt.Errorf("navmesh: maxPolys %d exceeds poly index space", params.MaxPolys)
	}
	return &Mesh{
		params:    *params,
		tileByRef: make(map[TileRef]*Tile, params.MaxTiles),
	}, nil
}

func (m *Mesh) Params() *MeshParams { return &m.params }

func (m *Mesh) TileCount() int { return len(m.tiles) }

func (m *Mesh) Tile(i int) *Tile { return m.tiles[i] }

// AddTile decodes one tile payload and registers it under ref.
func (m *Mesh) AddTile(data []byte, ref TileRef) error {
	if ref == 0 || uint64(ref)&polyMask != 0 {
		return fmt.Errorf("navmesh: invalid tile ref %#x", uint64(ref))
	}
	if _, ok := m.tileByRef[ref]; ok {
		return fmt.Errorf("navmesh: duplicate tile ref %#x", uint64(ref))
	}
	if len(m.tiles) >= int(m.params.MaxTiles) {
		return fmt.Errorf("navmesh: tile count exceeds maxTiles %d", m.params.MaxTiles)
	}

	tile, err := decodeTileData(data)
	if err != nil {
		return err
	}
	if tile.Header.PolyCount > m.params.MaxPolys {
		return fmt.Errorf("navmesh: tile has %d polys, maxPolys is %d",
			tile.Header.PolyCount, m.params.MaxPolys)
	}
	tile.Ref = ref

	m.tiles = append(m.tiles, tile)
	m.tileByRef[ref] = tile
	return nil
}

// TileAndPolyByRef resolves a polygon reference. ok is false for the zero
// ref, unknown tiles and out-of-range polygon indices.
func (m *Mesh) TileAndPolyByRef(ref PolyRef) (tile *Tile, poly *Poly, ok bool) {
	if ref == 0 {
		return nil, nil, false
	}
	tref, ip := DecodePolyRef(ref)
	tile, ok = m.tileByRef[tref]
	if !ok || ip >= len(tile.Polys) {
		return nil, nil, false
	}
	return tile, tile.Polys[ip], true
}

// IsValidPolyRef reports whether ref resolves to a polygon of this mesh.
func (m *Mesh) IsValidPolyRef(ref PolyRef) bool {
	_, _, ok := m.TileAndPolyByRef(ref)
	return ok
}

// PolyVerts copies the polygon's vertices into verts
// [(x, y, z) * MaxVertsPerPoly] and returns the vertex count.
func (m *Mesh) PolyVerts(tile *Tile, poly *Poly, verts []float32) int {
	n := int(poly.VertCount)
	for i := 0; i < n; i++ {
		common.Vcopy(verts[i*3:], common.Vert3(tile.Verts, int(poly.Verts[i])))
	}
	return n
}

// ClosestPointOnPoly finds the point on the polygon closest to pos.
// posOverPoly is true when pos lies over the polygon on the xz-plane, in
// which case closest keeps pos's xz and takes the surface height.
func (m *Mesh) ClosestPointOnPoly(ref PolyRef, pos, closest []float32) (posOverPoly bool) {
	tile, poly, ok := m.TileAndPolyByRef(ref)
	if !ok {
		common.Vcopy(closest, pos)
		return false
	}

	var verts [MaxVertsPerPoly * 3]float32
	var edged, edget [MaxVertsPerPoly]float32
	nv := m.PolyVerts(tile, poly, verts[:])

	inside := common.DistancePtPolyEdgesSqr(pos, verts[:], nv, edged[:], edget[:])
	if inside {
		common.Vcopy(closest, pos)
		if h, ok := polyHeight(verts[:], nv, pos); ok {
			closest[1] = h
		}
		return true
	}

	// Point is outside the polygon, clamp to nearest edge.
	dmin := edged[0]
	imin := 0
	for i := 1; i < nv; i++ {
		if edged[i] < dmin {
			dmin = edged[i]
			imin = i
		}
	}
	va := common.Vert3(verts[:], imin)
	vb := common.Vert3(verts[:], (imin+1)%nv)
	common.Vlerp(closest, va, vb, edget[imin])
	return false
}

// PolyHeight returns the surface height at pos's xz-position, when pos lies
// over the polygon.
func (m *Mesh) PolyHeight(ref PolyRef, pos []float32) (float32, bool) {
	tile, poly, ok := m.TileAndPolyByRef(ref)
	if !ok {
		return 0, false
	}
	var verts [MaxVertsPerPoly * 3]float32
	nv := m.PolyVerts(tile, poly, verts[:])
	return polyHeight(verts[:], nv, pos)
}

// PolyContainsPoint2D reports whether pos lies over the polygon.
func (m *Mesh) PolyContainsPoint2D(ref PolyRef, pos []float32) bool {
	tile, poly, ok := m.TileAndPolyByRef(ref)
	if !ok {
		return false
	}
	var verts [MaxVertsPerPoly * 3]float32
	var edged, edget [MaxVertsPerPoly]float32
	nv := m.PolyVerts(tile, poly, verts[:])
	return common.DistancePtPolyEdgesSqr(pos, verts[:], nv, edged[:], edget[:])
}

// polyHeight interpolates the surface height over the polygon's triangle fan.
func polyHeight(verts []float32, nv int, pos []float32) (float32, bool) {
	v0 := common.Vert3(verts, 0)
	for i := 2; i < nv; i++ {
		if h, ok := common.ClosestHeightPointTriangle(pos, v0,
			common.Vert3(verts, i-1), common.Vert3(verts, i)); ok {
			return h, true
		}
	}
	return 0, false
}
