// This file implements LRU eviction.

package eviction

import "time"

// lruNode represents ONE key inside the LRU structure.
type lruNode struct {
	key string

	// prev points towards the most recently used end.
	prev *lruNode

	// next points towards the least recently used end.
	next *lruNode
}

// lru keeps keys in a doubly-linked list, most recently used at head.
// Writes and reads both count as use.
type lru struct {
	nodes map[string]*lruNode
	head  *lruNode
	tail  *lruNode
}

func newLRU() *lru {
	return &lru{nodes: make(map[string]*lruNode)}
}

func (l *lru) OnInsert(k string, _ time.Time) {
	if n, ok := l.nodes[k]; ok {
		l.moveToFront(n)
		return
	}
	n := &lruNode{key: k}
	l.nodes[k] = n
	l.addFront(n)
}

func (l *lru) OnAccess(k string) {
	if n, ok := l.nodes[k]; ok {
		l.moveToFront(n)
	}
}

func (l *lru) Remove(k string) {
	if n, ok := l.nodes[k]; ok {
		l.unlink(n)
		delete(l.nodes, k)
	}
}

// Evict removes the key at the tail.
func (l *lru) Evict() string {
	if l.tail == nil {
		return ""
	}
	k := l.tail.key
	l.unlink(l.tail)
	delete(l.nodes, k)
	return k
}

func (l *lru) Order() []string {
	out := make([]string, 0, len(l.nodes))
	for n := l.tail; n != nil; n = n.prev {
		out = append(out, n.key)
	}
	return out
}

func (l *lru) Len() int { return len(l.nodes) }

func (l *lru) Reset() {
	l.nodes = make(map[string]*lruNode)
	l.head = nil
	l.tail = nil
}

func (l *lru) addFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *lru) unlink(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (l *lru) moveToFront(n *lruNode) {
	if l.head == n {
		return
	}
	l.unlink(n)
	l.addFront(n)
}
