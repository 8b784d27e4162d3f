// Package kmem accounts for kernel heap usage against a fixed limit.
//
// The simulated kernel does not manage real memory; Go allocates the backing
// storage. What kmem provides is the failure model: every allocation a kernel
// operation makes is charged here first, so an operation can run out of
// memory part way through and must roll back what it already took.
package kmem

import (
	"fmt"
	"sync"

	"github.com/kestrel-os/kestrel/pkg/errno"
)

// Heap is a bounded allocator. The zero value is not usable; call New.
type Heap struct {
	mu       sync.Mutex
	limit    int
	used     int
	peak     int
	allocs   int
	failNext int
	failAt   map[int]bool
}

// Stats is a point-in-time view of heap accounting.
type Stats struct {
	Limit  int
	Used   int
	Peak   int
	Allocs int
}

// New returns a heap that refuses allocations beyond limit bytes.
func New(limit int) *Heap {
	return &Heap{limit: limit}
}

// Alloc charges n bytes. It returns ENOMEM if the limit would be exceeded or
// an injected failure is pending.
func (h *Heap) Alloc(n int) error {
	if n < 0 {
		panic(fmt.Sprintf("kmem: negative allocation %d", n))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.allocs++
	if h.failNext > 0 {
		h.failNext--
		return fmt.Errorf("kmem: injected failure for %d bytes: %w", n, errno.ENOMEM)
	}
	if h.failAt[h.allocs] {
		delete(h.failAt, h.allocs)
		return fmt.Errorf("kmem: injected failure at allocation %d: %w", h.allocs, errno.ENOMEM)
	}
	if h.used+n > h.limit {
		return fmt.Errorf("kmem: %d bytes requested, %d of %d in use: %w", n, h.used, h.limit, errno.ENOMEM)
	}

	h.used += n
	if h.used > h.peak {
		h.peak = h.used
	}
	return nil
}

// Free returns n bytes. Freeing more than is in use is a kernel bug.
func (h *Heap) Free(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n < 0 || n > h.used {
		panic(fmt.Sprintf("kmem: free of %d bytes with %d in use", n, h.used))
	}
	h.used -= n
}

// FailNext makes the next n allocations fail regardless of free space.
func (h *Heap) FailNext(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = n
}

// FailAfter makes the k-th allocation from now fail (k >= 1).
func (h *Heap) FailAfter(k int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failAt == nil {
		h.failAt = make(map[int]bool)
	}
	h.failAt[h.allocs+k] = true
}

// SetLimit changes the limit. Allocations already made are not revoked.
func (h *Heap) SetLimit(limit int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limit = limit
}

// Used returns the number of bytes currently charged.
func (h *Heap) Used() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Stats returns a copy of the counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Limit: h.limit, Used: h.used, Peak: h.peak, Allocs: h.allocs}
}
