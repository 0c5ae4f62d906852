package navmesh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Binary set format. A set file is:
//
//	int32 magic | int32 version | int32 tileCount | MeshParams
//	tileCount * ( uint64 tileRef | int32 dataSize | dataSize bytes )
//
// A record with tileRef == 0 or dataSize == 0 terminates the list early
// without error. All fields are little-endian and packed.
const (
	SetMagic   int32 = 'M'<<24 | 'S'<<16 | 'E'<<8 | 'T'
	SetVersion int32 = 1

	TileMagic   int32 = 'N'<<24 | 'A'<<16 | 'V'<<8 | 'T'
	TileVersion int32 = 1
)

// ErrFormat is the base error of every malformed-set failure.
var ErrFormat = errors.New("navmesh: malformed set")

func formatErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// binReader reads packed little-endian values from a byte slice. The first
// out-of-bounds read latches err and every later read returns zero, so
// callers can check Err once per record.
type binReader struct {
	data []byte
	off  int
	err  error
}

func newBinReader(data []byte) *binReader { return &binReader{data: data} }

func (r *binReader) Err() error     { return r.err }
func (r *binReader) Remaining() int { return len(r.data) - r.off }

func (r *binReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = formatErr("unexpected end of data at offset %d (need %d bytes)", r.off, n)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *binReader) ReadInt32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *binReader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *binReader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binReader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *binReader) ReadFloat32() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (r *binReader) ReadBytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// binWriter appends packed little-endian values to a buffer.
type binWriter struct {
	buf bytes.Buffer
}

func (w *binWriter) Bytes() []byte { return w.buf.Bytes() }

func (w *binWriter) WriteInt32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *binWriter) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *binWriter) WriteUint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *binWriter) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *binWriter) WriteFloat32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}

func (w *binWriter) WriteBytes(b []byte) {
	w.buf.Write(b)
}

// RawTile is one undecoded tile record of a set.
type RawTile struct {
	Ref  TileRef
	Data []byte
}

// SetHeader is the decoded fixed header of a set.
type SetHeader struct {
	Magic     int32
	Version   int32
	TileCount int32
	Params    MeshParams
}

// ReadSet parses the set container. It validates magic, version and record
// framing but does not decode tile payloads. A zero tile ref or zero data
// size terminates the tile list early without error.
func ReadSet(data []byte) (*SetHeader, []RawTile, error) {
	r := newBinReader(data)

	var h SetHeader
	h.Magic = r.ReadInt32()
	h.Version = r.ReadInt32()
	h.TileCount = r.ReadInt32()
	readMeshParams(r, &h.Params)
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	if h.Magic != SetMagic {
		return nil, nil, formatErr("bad set magic %#x", uint32(h.Magic))
	}
	if h.Version != SetVersion {
		return nil, nil, formatErr("unsupported set version %d", h.Version)
	}
	if h.TileCount < 0 {
		return nil, nil, formatErr("negative tile count %d", h.TileCount)
	}

	tiles := make([]RawTile, 0, h.TileCount)
	for i := int32(0); i < h.TileCount; i++ {
		ref := TileRef(r.ReadUint64())
		size := r.ReadInt32()
		if err := r.Err(); err != nil {
			return nil, nil, err
		}
		if ref == 0 || size == 0 {
			break
		}
		if size < 0 {
			return nil, nil, formatErr("tile %d has negative data size %d", i, size)
		}
		payload := r.ReadBytes(int(size))
		if err := r.Err(); err != nil {
			return nil, nil, err
		}
		tiles = append(tiles, RawTile{Ref: ref, Data: payload})
	}
	return &h, tiles, nil
}

// WriteSet serializes a set container from mesh params and tile records.
func WriteSet(params *MeshParams, tiles []RawTile) []byte {
	var w binWriter
	w.WriteInt32(SetMagic)
	w.WriteInt32(SetVersion)
	w.WriteInt32(int32(len(tiles)))
	writeMeshParams(&w, params)
	for _, t := range tiles {
		w.WriteUint64(uint64(t.Ref))
		w.WriteInt32(int32(len(t.Data)))
		w.WriteBytes(t.Data)
	}
	return w.Bytes()
}

func readMeshParams(r *binReader, p *MeshParams) {
	p.Orig[0] = r.ReadFloat32()
	p.Orig[1] = r.ReadFloat32()
	p.Orig[2] = r.ReadFloat32()
	p.TileWidth = r.ReadFloat32()
	p.TileHeight = r.ReadFloat32()
	p.MaxTiles = r.ReadInt32()
	p.MaxPolys = r.ReadInt32()
}

func writeMeshParams(w *binWriter, p *MeshParams) {
	w.WriteFloat32(p.Orig[0])
	w.WriteFloat32(p.Orig[1])
	w.WriteFloat32(p.Orig[2])
	w.WriteFloat32(p.TileWidth)
	w.WriteFloat32(p.TileHeight)
	w.WriteInt32(p.MaxTiles)
	w.WriteInt32(p.MaxPolys)
}

// decodeTileData parses one tile payload:
//
//	TileHeader | vertCount * 3 float32 | polyCount * poly
//	poly: int32 vertCount | 6 int32 verts | 6 uint64 neis | uint16 flags | uint8 area
func decodeTileData(data []byte) (*Tile, error) {
	r := newBinReader(data)

	var h TileHeader
	h.Magic = r.ReadInt32()
	h.Version = r.ReadInt32()
	h.TX = r.ReadInt32()
	h.TY = r.ReadInt32()
	h.PolyCount = r.ReadInt32()
	h.VertCount = r.ReadInt32()
	for i := 0; i < 3; i++ {
		h.Bmin[i] = r.ReadFloat32()
	}
	for i := 0; i < 3; i++ {
		h.Bmax[i] = r.ReadFloat32()
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if h.Magic != TileMagic {
		return nil, formatErr("bad tile magic %#x", uint32(h.Magic))
	}
	if h.Version != TileVersion {
		return nil, formatErr("unsupported tile version %d", h.Version)
	}
	if h.PolyCount <= 0 || h.VertCount <= 0 {
		return nil, formatErr("empty tile (polyCount=%d vertCount=%d)", h.PolyCount, h.VertCount)
	}

	verts := make([]float32, h.VertCount*3)
	for i := range verts {
		verts[i] = r.ReadFloat32()
	}

	polys := make([]*Poly, h.PolyCount)
	for i := range polys {
		p := &Poly{}
		p.VertCount = r.ReadInt32()
		for j := 0; j < MaxVertsPerPoly; j++ {
			p.Verts[j] = r.ReadInt32()
		}
		for j := 0; j < MaxVertsPerPoly; j++ {
			p.Neis[j] = PolyRef(r.ReadUint64())
		}
		p.Flags = r.ReadUint16()
		p.Area = r.ReadUint8()
		if err := r.Err(); err != nil {
			return nil, err
		}
		if p.VertCount < 3 || p.VertCount > MaxVertsPerPoly {
			return nil, formatErr("poly %d has %d verts", i, p.VertCount)
		}
		for j := 0; j < int(p.VertCount); j++ {
			if p.Verts[j] < 0 || p.Verts[j] >= h.VertCount {
				return nil, formatErr("poly %d vert index %d out of range", i, p.Verts[j])
			}
		}
		if int(p.Area) >= MaxAreas {
			return nil, formatErr("poly %d area %d out of range", i, p.Area)
		}
		polys[i] = p
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	raw := make([]byte, len(data))
	copy(raw, data)
	return &Tile{Header: h, Verts: verts, Polys: polys, Data: raw}, nil
}

// EncodeTileData serializes a tile payload. Counterpart of decodeTileData,
// used by the fixture generator.
func EncodeTileData(h *TileHeader, verts []float32, polys []*Poly) []byte {
	var w binWriter
	w.WriteInt32(TileMagic)
	w.WriteInt32(TileVersion)
	w.WriteInt32(h.TX)
	w.WriteInt32(h.TY)
	w.WriteInt32(int32(len(polys)))
	w.WriteInt32(int32(len(verts) / 3))
	for i := 0; i < 3; i++ {
		w.WriteFloat32(h.Bmin[i])
	}
	for i := 0; i < 3; i++ {
		w.WriteFloat32(h.Bmax[i])
	}
	for _, v := range verts {
		w.WriteFloat32(v)
	}
	for _, p := range polys {
		w.WriteInt32(p.VertCount)
		for j := 0; j < MaxVertsPerPoly; j++ {
			w.WriteInt32(p.Verts[j])
		}
		for j := 0; j < MaxVertsPerPoly; j++ {
			w.WriteUint64(uint64(p.Neis[j]))
		}
		w.WriteUint16(p.Flags)
		w.WriteUint8(p.Area)
	}
	return w.Bytes()
}
