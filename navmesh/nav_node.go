package navmesh

import "container/heap"

const (
	nodeOpen   uint8 = 0x01
	nodeClosed uint8 = 0x02

	nullIdx int32 = -1
)

type node struct {
	pos     [3]float32
	cost    float32 // cost from the start to this node
	total   float32 // cost + heuristic
	pidx    int32   // parent node index, nullIdx for the start
	flags   uint8
	id      PolyRef
	idx     int32 // own index in the pool
	heapIdx int   // position in the open list, -1 when not queued
}

// nodePool hands out at most maxNodes search nodes, one per polygon,
// addressed through a hash table. getNode returns nil when the pool is
// exhausted, which callers surface as an out-of-nodes partial result.
type nodePool struct {
	nodes    []node
	first    []int32 // hash bucket heads
	next     []int32 // per-node chain
	count    int
	maxNodes int
	hashMask int32
}

func newNodePool(maxNodes int) *nodePool {
	hashSize := int32(1)
	for hashSize < int32(maxNodes) {
		hashSize <<= 1
	}
	p := &nodePool{
		nodes:    make([]node, maxNodes),
		first:    make([]int32, hashSize),
		next:     make([]int32, maxNodes),
		maxNodes: maxNodes,
		hashMask: hashSize - 1,
	}
	p.clear()
	return p
}

func (p *nodePool) clear() {
	for i := range p.first {
		p.first[i] = nullIdx
	}
	p.count = 0
}

func hashRef(id PolyRef) int32 {
	a := uint64(id)
	a += ^(a << 31)
	a ^= a >> 20
	a += a << 6
	a ^= a >> 12
	a += ^(a << 22)
	a ^= a >> 32
	return int32(uint32(a))
}

// findNode returns the node already allocated for id, or nil.
func (p *nodePool) findNode(id PolyRef) *node {
	bucket := hashRef(id) & p.hashMask
	for i := p.first[bucket]; i != nullIdx; i = p.next[i] {
		if p.nodes[i].id == id {
			return &p.nodes[i]
		}
	}
	return nil
}

// getNode returns the node for id, allocating it when needed. Returns nil
// when the pool is full.
func (p *nodePool) getNode(id PolyRef) *node {
	bucket := hashRef(id) & p.hashMask
	for i := p.first[bucket]; i != nullIdx; i = p.next[i] {
		if p.nodes[i].id == id {
			return &p.nodes[i]
		}
	}
	if p.count >= p.maxNodes {
		return nil
	}
	i := int32(p.count)
	p.count++
	n := &p.nodes[i]
	*n = node{id: id, pidx: nullIdx, idx: i, heapIdx: -1}
	p.next[i] = p.first[bucket]
	p.first[bucket] = i
	return n
}

func (p *nodePool) nodeAtIdx(i int32) *node {
	if i == nullIdx {
		return nil
	}
	return &p.nodes[i]
}

// nodeQueue is the open list, a binary heap ordered by total cost.
type nodeQueue struct {
	h nodeHeap
}

func newNodeQueue(capacity int) *nodeQueue {
	return &nodeQueue{h: make(nodeHeap, 0, capacity)}
}

func (q *nodeQueue) clear()      { q.h = q.h[:0] }
func (q *nodeQueue) empty() bool { return len(q.h) == 0 }

func (q *nodeQueue) push(n *node) { heap.Push(&q.h, n) }

func (q *nodeQueue) pop() *node { return heap.Pop(&q.h).(*node) }

// modify re-sorts a queued node after its total cost changed.
func (q *nodeQueue) modify(n *node) { heap.Fix(&q.h, n.heapIdx) }

type nodeHeap []*node

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].total < h[j].total }

func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *nodeHeap) Push(x any) {
	n := x.(*node)
	n.heapIdx = len(*h)
	*h = append(*h, n)
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	n.heapIdx = -1
	*h = old[:len(old)-1]
	return n
}
