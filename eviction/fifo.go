// This file implements FIFO eviction.

package eviction

import (
	"container/heap"
	"sort"
	"time"
)

type fifoItem struct {
	key        string
	insertedAt time.Time
	index      int
}

// fifoHeap is a min-heap ordered by (insertedAt, key).
type fifoHeap []*fifoItem

func (h fifoHeap) Len() int { return len(h) }

func (h fifoHeap) Less(i, j int) bool {
	return older(h[i], h[j])
}

func (h fifoHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *fifoHeap) Push(x any) {
	it := x.(*fifoItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *fifoHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

func older(a, b *fifoItem) bool {
	if !a.insertedAt.Equal(b.insertedAt) {
		return a.insertedAt.Before(b.insertedAt)
	}
	return a.key < b.key
}

type fifo struct {
	// heap keeps the oldest insertion at index 0.
	heap fifoHeap

	// items lets us find a key's heap slot for rewrites and removals.
	items map[string]*fifoItem
}

func newFIFO() *fifo {
	return &fifo{items: make(map[string]*fifoItem)}
}

// OnInsert places a new key, or moves a rewritten key to its new insertion time.
func (f *fifo) OnInsert(k string, insertedAt time.Time) {
	if it, ok := f.items[k]; ok {
		it.insertedAt = insertedAt
		heap.Fix(&f.heap, it.index)
		return
	}
	it := &fifoItem{key: k, insertedAt: insertedAt}
	heap.Push(&f.heap, it)
	f.items[k] = it
}

// OnAccess does nothing: reads never reorder a FIFO cache.
func (f *fifo) OnAccess(string) {}

func (f *fifo) Remove(k string) {
	it, ok := f.items[k]
	if !ok {
		return
	}
	heap.Remove(&f.heap, it.index)
	delete(f.items, k)
}

// Evict removes and returns the oldest key.
func (f *fifo) Evict() string {
	if len(f.heap) == 0 {
		return ""
	}
	it := heap.Pop(&f.heap).(*fifoItem)
	delete(f.items, it.key)
	return it.key
}

func (f *fifo) Order() []string {
	sorted := make([]*fifoItem, len(f.heap))
	copy(sorted, f.heap)
	sort.Slice(sorted, func(i, j int) bool { return older(sorted[i], sorted[j]) })

	out := make([]string, len(sorted))
	for i, it := range sorted {
		out[i] = it.key
	}
	return out
}

func (f *fifo) Len() int { return len(f.heap) }

func (f *fifo) Reset() {
	f.heap = nil
	f.items = make(map[string]*fifoItem)
}
