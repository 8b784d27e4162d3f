package thread

import (
	"errors"
	"math"
	"sort"
)

// ErrPidInUse is returned when registering a pid that is already live.
var ErrPidInUse = errors.New("pid already registered")

var errPidsExhausted = errors.New("pid space exhausted")

// registry maps live pids to threads and hands out new pids.
// It is only touched by the current thread with interrupts off.
type registry struct {
	threads map[Pid]*Thread
	nextPid Pid
}

func newRegistry() *registry {
	return &registry{
		threads: make(map[Pid]*Thread),
		nextPid: 1,
	}
}

func (r *registry) allocatePid() (Pid, error) {
	if r.nextPid == math.MaxInt32 {
		return 0, errPidsExhausted
	}
	pid := r.nextPid
	r.nextPid++
	return pid, nil
}

func (r *registry) add(t *Thread) error {
	if _, ok := r.threads[t.pid]; ok {
		return ErrPidInUse
	}
	r.threads[t.pid] = t
	return nil
}

func (r *registry) lookup(pid Pid) *Thread {
	return r.threads[pid]
}

func (r *registry) remove(pid Pid) bool {
	if _, ok := r.threads[pid]; !ok {
		return false
	}
	delete(r.threads, pid)
	return true
}

func (r *registry) len() int { return len(r.threads) }

// sorted returns live threads in pid order.
func (r *registry) sorted() []*Thread {
	out := make([]*Thread, 0, len(r.threads))
	for _, t := range r.threads {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pid < out[j].pid })
	return out
}
