// Package synch provides the blocking primitives kernel threads use:
// counting semaphores, sleep locks with an owner, and condition variables.
//
// All operations must be called from kernel threads. Misuse (releasing a
// lock one does not hold, destroying a primitive with waiters, blocking in
// an interrupt handler) is a kernel panic.
package synch

import (
	"fmt"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/thread"
)

// Semaphore is a counting semaphore.
type Semaphore struct {
	k     *thread.Kernel
	name  string
	count int
	token thread.Token
}

// NewSemaphore creates a semaphore with an initial count.
func NewSemaphore(k *thread.Kernel, name string, initial int) (*Semaphore, error) {
	if initial < 0 {
		return nil, fmt.Errorf("sem_create %s: negative count %d: %w", name, initial, errno.EINVAL)
	}
	return &Semaphore{k: k, name: name, count: initial, token: k.NewToken()}, nil
}

// Name returns the semaphore's name.
func (s *Semaphore) Name() string { return s.name }

// Count returns the current count.
func (s *Semaphore) Count() int { return s.count }

// P waits until the count is positive and decrements it.
func (s *Semaphore) P() {
	k := s.k
	if k.InInterrupt() {
		k.Panic("P on %s in an interrupt handler", s.name)
	}

	spl := k.Splhigh()
	for s.count == 0 {
		k.SleepOn(s.token)
	}
	if s.count <= 0 {
		k.Panic("semaphore %s count %d after wakeup", s.name, s.count)
	}
	s.count--
	k.Splx(spl)
}

// V increments the count and wakes all waiters; they race to decrement it.
func (s *Semaphore) V() {
	k := s.k
	spl := k.Splhigh()
	s.count++
	if s.count <= 0 {
		k.Panic("semaphore %s overflowed", s.name)
	}
	k.WakeAll(s.token)
	k.Splx(spl)
}

// Destroy checks that nobody is waiting. Using the semaphore afterwards is a bug.
func (s *Semaphore) Destroy() {
	k := s.k
	spl := k.Splhigh()
	if k.HasSleepers(s.token) {
		k.Panic("sem_destroy %s: threads still waiting", s.name)
	}
	k.Splx(spl)
}
