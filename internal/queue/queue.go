// Package queue implements the request priority queue (C3): pending
// mutual-exclusion requests ordered by RequestKey, the way
// container/heap is used to order pending Lamport-ME requests.
package queue

import (
	"container/heap"
	"sync"

	"github.com/lamportchain/ledgerd/internal/types"
)

// entryHeap is a container/heap.Interface over PendingRequest entries,
// ordered by RequestKey.
type entryHeap []*types.PendingRequest

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].Key.Less(h[j].Key) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*types.PendingRequest)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a priority queue of PendingRequest entries keyed by
// RequestKey, safe for concurrent use. Invariant: it never holds two
// entries with the same key.
type Queue struct {
	mu      sync.Mutex
	heap    entryHeap
	byKey   map[types.RequestKey]*types.PendingRequest
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		byKey: make(map[types.RequestKey]*types.PendingRequest),
	}
}

// Insert adds entry to the queue. It is a no-op — not an error — if an
// entry with the same key is already present, since REQUEST delivery
// is idempotent under transport retry.
func (q *Queue) Insert(entry types.PendingRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.byKey[entry.Key]; exists {
		return
	}
	e := entry
	if e.RepliesReceived == nil && e.Origin == types.OriginSelf {
		e.RepliesReceived = make(map[types.NodeID]struct{})
	}
	q.byKey[entry.Key] = &e
	heap.Push(&q.heap, &e)
}

// Contains reports whether an entry with key is present.
func (q *Queue) Contains(key types.RequestKey) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byKey[key]
	return ok
}

// Remove deletes the entry with key, if present. It is a no-op if
// absent, tolerating a duplicate RELEASE.
func (q *Queue) Remove(key types.RequestKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	target, ok := q.byKey[key]
	if !ok {
		return
	}
	delete(q.byKey, key)
	for i, e := range q.heap {
		if e == target {
			heap.Remove(&q.heap, i)
			break
		}
	}
}

// PeekMin returns the entry with the smallest key, and whether the
// queue is non-empty.
func (q *Queue) PeekMin() (types.PendingRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return types.PendingRequest{}, false
	}
	return *q.heap[0], true
}

// Get returns a copy of the entry for key, if present. Self-origin
// callers use this to read back RepliesReceived after an Insert.
func (q *Queue) Get(key types.RequestKey) (types.PendingRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byKey[key]
	if !ok {
		return types.PendingRequest{}, false
	}
	return *e, true
}

// AddReply records that peer replied to the self-origin request keyed
// by key. It is a no-op if no such entry exists (late reply after
// RELEASE) or if the entry is not self-origin.
func (q *Queue) AddReply(key types.RequestKey, peer types.NodeID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byKey[key]
	if !ok || e.Origin != types.OriginSelf {
		return
	}
	if e.RepliesReceived == nil {
		e.RepliesReceived = make(map[types.NodeID]struct{})
	}
	e.RepliesReceived[peer] = struct{}{}
}

// Len returns the number of entries currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Snapshot returns every entry in ascending key order. It takes the
// lock only long enough to copy the heap slice, so it never blocks the
// coordinator for longer than a memcpy — safe to call from the
// operator's inspection endpoint.
func (q *Queue) Snapshot() []types.PendingRequest {
	q.mu.Lock()
	cp := make(entryHeap, len(q.heap))
	copy(cp, q.heap)
	q.mu.Unlock()

	// cp is a binary heap, not a sorted slice: pop it into order on a
	// local copy so callers see a total order without touching q.
	out := make([]types.PendingRequest, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, *heap.Pop(&cp).(*types.PendingRequest))
	}
	return out
}
