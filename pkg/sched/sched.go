// Package sched provides run-queue policies for the thread scheduler.
package sched

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/types"
)

// ErrQueueFull means MakeRunnable was called without a matching Preallocate.
var ErrQueueFull = errors.New("run queue full")

// New returns the scheduler for policy. seed only matters for random.
func New(policy types.SchedulerPolicy, seed int64) (thread.Scheduler, error) {
	switch policy {
	case types.SchedulerFIFO, "":
		return NewFIFO(), nil
	case types.SchedulerRandom:
		return NewRandom(seed), nil
	}
	return nil, fmt.Errorf("sched: unknown policy %q", policy)
}

// FIFO is a round-robin run queue backed by a ring buffer.
type FIFO struct {
	buf  []*thread.Thread
	head int
	n    int
}

var _ thread.Scheduler = (*FIFO)(nil)

// NewFIFO creates an empty FIFO queue.
func NewFIFO() *FIFO {
	return &FIFO{}
}

// Preallocate grows the ring to hold at least n threads.
func (q *FIFO) Preallocate(n int) error {
	if n <= len(q.buf) {
		return nil
	}
	grown := make([]*thread.Thread, n)
	for i := 0; i < q.n; i++ {
		grown[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = grown
	q.head = 0
	return nil
}

// MakeRunnable appends t at the tail.
func (q *FIFO) MakeRunnable(t *thread.Thread) error {
	if q.n == len(q.buf) {
		return fmt.Errorf("%w (%d)", ErrQueueFull, q.n)
	}
	q.buf[(q.head+q.n)%len(q.buf)] = t
	q.n++
	return nil
}

// Next removes the head of the queue.
func (q *FIFO) Next() *thread.Thread {
	if q.n == 0 {
		return nil
	}
	t := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return t
}

// KillAll empties the queue.
func (q *FIFO) KillAll() []*thread.Thread {
	out := make([]*thread.Thread, 0, q.n)
	for t := q.Next(); t != nil; t = q.Next() {
		out = append(out, t)
	}
	return out
}

// Len is the number of queued threads.
func (q *FIFO) Len() int { return q.n }

// Random picks a uniformly random ready thread each time. With a fixed
// seed the choice sequence is reproducible.
type Random struct {
	ready []*thread.Thread
	rng   *rand.Rand
}

var _ thread.Scheduler = (*Random)(nil)

// NewRandom creates a random scheduler seeded with seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Preallocate reserves capacity for n threads.
func (r *Random) Preallocate(n int) error {
	if n <= cap(r.ready) {
		return nil
	}
	grown := make([]*thread.Thread, len(r.ready), n)
	copy(grown, r.ready)
	r.ready = grown
	return nil
}

// MakeRunnable adds t to the ready set.
func (r *Random) MakeRunnable(t *thread.Thread) error {
	if len(r.ready) == cap(r.ready) {
		return fmt.Errorf("%w (%d)", ErrQueueFull, len(r.ready))
	}
	r.ready = append(r.ready, t)
	return nil
}

// Next removes and returns a random ready thread.
func (r *Random) Next() *thread.Thread {
	n := len(r.ready)
	if n == 0 {
		return nil
	}
	i := r.rng.Intn(n)
	t := r.ready[i]
	r.ready[i] = r.ready[n-1]
	r.ready[n-1] = nil
	r.ready = r.ready[:n-1]
	return t
}

// KillAll empties the ready set.
func (r *Random) KillAll() []*thread.Thread {
	out := append([]*thread.Thread(nil), r.ready...)
	for i := range r.ready {
		r.ready[i] = nil
	}
	r.ready = r.ready[:0]
	return out
}

// Len is the number of ready threads.
func (r *Random) Len() int { return len(r.ready) }
