package engine

import (
	"sync"

	"github.com/krisalay/artcache/writepolicy"
)

/*
pendingRemovals remembers local deletes and clears the remote store has not
confirmed yet. While one is outstanding, fall-through must not read the
key, or a value removed locally would come back from the remote copy.

Every mirrored write gets a sequence number. A tombstone is released by the
first successful remote write for its key with the same or a later number.
A failed or dropped removal keeps its tombstone.
*/
type pendingRemovals struct {
	mu  sync.Mutex
	seq uint64

	deletes map[string]uint64

	// cleared is the sequence of the latest local clear, clearAck the
	// latest one the remote store applied.
	cleared  uint64
	clearAck uint64
}

func newPendingRemovals() *pendingRemovals {
	return &pendingRemovals{deletes: make(map[string]uint64)}
}

func (p *pendingRemovals) write() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

func (p *pendingRemovals) delete(key string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.deletes[key] = p.seq
	return p.seq
}

// clear supersedes every older tombstone.
func (p *pendingRemovals) clear() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.cleared = p.seq
	p.deletes = make(map[string]uint64)
	return p.seq
}

func (p *pendingRemovals) applied(op writepolicy.Op, key string, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if op == writepolicy.OpClear {
		if seq > p.clearAck {
			p.clearAck = seq
		}
		return
	}
	if d, ok := p.deletes[key]; ok && d <= seq {
		delete(p.deletes, key)
	}
}

// blocks reports whether key must not be read from the remote store.
func (p *pendingRemovals) blocks(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clearAck < p.cleared {
		return true
	}
	_, ok := p.deletes[key]
	return ok
}

// done builds the writepolicy callback that releases seq once applied.
func (p *pendingRemovals) done(op writepolicy.Op, key string, seq uint64) writepolicy.Done {
	return func(err error) {
		if err == nil {
			p.applied(op, key, seq)
		}
	}
}
