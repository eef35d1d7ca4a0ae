// Package locktable hands out one mutual-exclusion handle per auction.
//
// Handles are created lazily on first use and never removed, so memory is
// bounded by the number of distinct auctions bid on during the process
// lifetime. Looking up an existing handle never touches the table-wide mutex;
// that mutex only serializes creation of new handles.
package locktable

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Handle is the lock for a single auction.
type Handle struct {
	key int64
	sem *semaphore.Weighted
}

// Lock blocks until the handle is acquired or ctx is done. Callers bound the
// wait by giving ctx a deadline.
func (h *Handle) Lock(ctx context.Context) error {
	return h.sem.Acquire(ctx, 1)
}

// TryLock acquires the handle only if it is free.
func (h *Handle) TryLock() bool {
	return h.sem.TryAcquire(1)
}

// Unlock releases the handle. Unlocking a handle that is not held panics.
func (h *Handle) Unlock() {
	h.sem.Release(1)
}

func (h *Handle) Key() int64 {
	return h.key
}

type Table struct {
	handles sync.Map // int64 -> *Handle
	mu      sync.Mutex
	size    atomic.Int64
}

func New() *Table {
	return &Table{}
}

// AcquireFor returns the handle for key, creating it if absent. All callers
// racing on the first access of a key observe the same handle.
func (t *Table) AcquireFor(key int64) *Handle {
	if h, ok := t.handles.Load(key); ok {
		return h.(*Handle)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.handles.Load(key); ok {
		return h.(*Handle)
	}
	h := &Handle{key: key, sem: semaphore.NewWeighted(1)}
	t.handles.Store(key, h)
	t.size.Add(1)
	return h
}

// Len returns the number of handles created so far.
func (t *Table) Len() int {
	return int(t.size.Load())
}
