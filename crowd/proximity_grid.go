package crowd

// proximityGrid is a transient spatial hash rebuilt every tick. Agents are
// inserted with their xz bounds and queried by range for neighbour lookups.
type proximityGrid struct {
	cellSize    float32
	invCellSize float32
	buckets     map[int64][]uint16
}

func newProximityGrid(cellSize float32) *proximityGrid {
	return &proximityGrid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		buckets:     make(map[int64][]uint16),
	}
}

func (g *proximityGrid) clear() {
	for k := range g.buckets {
		delete(g.buckets, k)
	}
}

func cellKey(x, y int32) int64 {
	return int64(x)<<32 | int64(uint32(y))
}

func (g *proximityGrid) addItem(id uint16, minx, miny, maxx, maxy float32) {
	iminx := int32(minx * g.invCellSize)
	iminy := int32(miny * g.invCellSize)
	imaxx := int32(maxx * g.invCellSize)
	imaxy := int32(maxy * g.invCellSize)
	for y := iminy; y <= imaxy; y++ {
		for x := iminx; x <= imaxx; x++ {
			k := cellKey(x, y)
			g.buckets[k] = append(g.buckets[k], id)
		}
	}
}

// queryItems appends the distinct ids overlapping the query range to ids,
// up to its capacity, and returns the count.
func (g *proximityGrid) queryItems(minx, miny, maxx, maxy float32, ids []uint16) int {
	iminx := int32(minx * g.invCellSize)
	iminy := int32(miny * g.invCellSize)
	imaxx := int32(maxx * g.invCellSize)
	imaxy := int32(maxy * g.invCellSize)

	n := 0
	for y := iminy; y <= imaxy; y++ {
		for x := iminx; x <= imaxx; x++ {
			for _, id := range g.buckets[cellKey(x, y)] {
				dup := false
				for i := 0; i < n; i++ {
					if ids[i] == id {
						dup = true
						break
					}
				}
				if dup {
					continue
				}
				if n >= len(ids) {
					return n
				}
				ids[n] = id
				n++
			}
		}
	}
	return n
}
