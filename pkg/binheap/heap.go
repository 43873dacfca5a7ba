package binheap

import "math"

// Heap is an indexed binary min-heap. Elements are addressed by an
// external uint32 id, which makes DecreaseKey and by-id weight/payload
// lookup possible after insertion, including after the element has been
// removed from the tree. Concrete-typed and slice-backed; container/heap
// interface boxing is deliberately avoided on this path.
//
// Ids must stay unique per session: Insert must not be called twice for
// the same id between two calls to Clear.
type Heap[D any] struct {
	// insertions is the log of every element ever inserted this session.
	// slot 0 marks an element that has been removed from the tree.
	insertions []heapNode[D]
	// tree is the 1-indexed binary heap; tree[0] is a sentinel.
	tree  []treeElem
	index indexStorage
}

// heapNode is an insertion record.
type heapNode[D any] struct {
	id     uint32
	slot   uint32 // position in tree, 0 = removed
	weight int32
	data   D
}

// treeElem duplicates the weight next to the insertion index so the
// sift loops touch one slice.
type treeElem struct {
	index  uint32
	weight int32
}

// NewDense creates a heap whose id index is a flat array sized for ids
// in [0, size).
func NewDense[D any](size uint32) *Heap[D] {
	h := &Heap[D]{index: newArrayStorage(size)}
	h.Clear()
	return h
}

// NewSparse creates a heap whose id index is a hash map.
func NewSparse[D any]() *Heap[D] {
	h := &Heap[D]{index: newMapStorage()}
	h.Clear()
	return h
}

// Clear fully resets the heap, forgetting all insertion records.
func (h *Heap[D]) Clear() {
	h.tree = h.tree[:0]
	h.tree = append(h.tree, treeElem{weight: math.MinInt32}) // sentinel guards Upheap
	h.insertions = h.insertions[:0]
	h.index.clear()
}

// Size returns the number of live elements.
func (h *Heap[D]) Size() int {
	return len(h.tree) - 1
}

// Insert adds id with the given weight and payload.
// Precondition: !WasInserted(id).
func (h *Heap[D]) Insert(id uint32, weight int32, data D) {
	pos := uint32(len(h.insertions))
	slot := uint32(len(h.tree))
	h.tree = append(h.tree, treeElem{index: pos, weight: weight})
	h.insertions = append(h.insertions, heapNode[D]{id: id, slot: slot, weight: weight, data: data})
	h.index.set(id, pos)
	h.upheap(slot)
}

// WasInserted reports whether Insert has been called for id this session.
func (h *Heap[D]) WasInserted(id uint32) bool {
	pos := h.index.get(id)
	if pos >= uint32(len(h.insertions)) {
		return false
	}
	return h.insertions[pos].id == id
}

// WasRemoved reports whether id has been removed from the tree since its
// insertion. Precondition: WasInserted(id).
func (h *Heap[D]) WasRemoved(id uint32) bool {
	return h.insertions[h.index.get(id)].slot == 0
}

// GetKey returns the current weight of id.
// Valid for both live and removed elements. Precondition: WasInserted(id).
func (h *Heap[D]) GetKey(id uint32) int32 {
	return h.insertions[h.index.get(id)].weight
}

// GetData returns a copy of the payload of id. Precondition: WasInserted(id).
func (h *Heap[D]) GetData(id uint32) D {
	return h.insertions[h.index.get(id)].data
}

// SetData overwrites the payload of id. Precondition: WasInserted(id).
func (h *Heap[D]) SetData(id uint32, data D) {
	h.insertions[h.index.get(id)].data = data
}

// SetRemovedKey overwrites the weight of an element that is no longer in
// the tree. Restricting the write to removed elements keeps the tree
// order untouched by construction. Precondition: WasRemoved(id).
func (h *Heap[D]) SetRemovedKey(id uint32, weight int32) {
	node := &h.insertions[h.index.get(id)]
	if node.slot != 0 {
		panic("binheap: SetRemovedKey on live element")
	}
	node.weight = weight
}

// Min returns the id of the minimum-weight live element.
// Precondition: Size() > 0.
func (h *Heap[D]) Min() uint32 {
	return h.insertions[h.tree[1].index].id
}

// MinKey returns the weight of the minimum-weight live element.
// Precondition: Size() > 0.
func (h *Heap[D]) MinKey() int32 {
	return h.tree[1].weight
}

// DeleteMin removes the minimum-weight live element and returns its id.
// The element stays queryable through GetKey/GetData.
// Precondition: Size() > 0.
func (h *Heap[D]) DeleteMin() uint32 {
	if len(h.tree) <= 1 {
		panic("binheap: DeleteMin on empty heap")
	}
	removed := h.tree[1].index
	last := len(h.tree) - 1
	h.tree[1] = h.tree[last]
	h.tree = h.tree[:last]
	if len(h.tree) > 1 {
		h.downheap(1)
	}
	h.insertions[removed].slot = 0
	return h.insertions[removed].id
}

// DeleteAll removes every live element without touching insertion
// records, so WasInserted/GetKey/GetData stay valid.
func (h *Heap[D]) DeleteAll() {
	for i := 1; i < len(h.tree); i++ {
		h.insertions[h.tree[i].index].slot = 0
	}
	h.tree = h.tree[:1]
}

// DecreaseKey lowers the weight of a live element and restores heap
// order. Precondition: id is live and weight <= GetKey(id).
func (h *Heap[D]) DecreaseKey(id uint32, weight int32) {
	pos := h.index.get(id)
	slot := h.insertions[pos].slot
	if slot == 0 {
		panic("binheap: DecreaseKey on removed element")
	}
	h.insertions[pos].weight = weight
	h.tree[slot].weight = weight
	h.upheap(slot)
}

// upheap sifts the element at slot toward the root. The rising element
// is carried as a hole and written once at its final slot, so every
// displaced entry has its insertion record updated exactly when it moves.
func (h *Heap[D]) upheap(slot uint32) {
	rising := h.tree[slot].index
	weight := h.tree[slot].weight
	next := slot >> 1
	for h.tree[next].weight > weight {
		h.tree[slot] = h.tree[next]
		h.insertions[h.tree[slot].index].slot = slot
		slot = next
		next >>= 1
	}
	h.tree[slot] = treeElem{index: rising, weight: weight}
	h.insertions[rising].slot = slot
}

// downheap sifts the element at slot toward the leaves, same hole scheme
// as upheap.
func (h *Heap[D]) downheap(slot uint32) {
	dropping := h.tree[slot].index
	weight := h.tree[slot].weight
	next := slot << 1
	for next < uint32(len(h.tree)) {
		if other := next + 1; other < uint32(len(h.tree)) && h.tree[next].weight > h.tree[other].weight {
			next = other
		}
		if weight <= h.tree[next].weight {
			break
		}
		h.tree[slot] = h.tree[next]
		h.insertions[h.tree[slot].index].slot = slot
		slot = next
		next <<= 1
	}
	h.tree[slot] = treeElem{index: dropping, weight: weight}
	h.insertions[dropping].slot = slot
}
