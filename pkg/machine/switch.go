package machine

import (
	"runtime"
	"sync"
)

// PCB is the machine-dependent context of a kernel thread: the goroutine
// that carries it and the channel it is resumed through.
type PCB struct {
	resume     chan struct{}
	retired    chan struct{}
	retireOnce sync.Once
}

func newPCB() *PCB {
	return &PCB{
		resume:  make(chan struct{}, 1),
		retired: make(chan struct{}),
	}
}

// GoSwitcher runs each kernel thread on its own goroutine and passes a
// single baton between them, so exactly one goroutine executes kernel code
// at a time. Switch hands the baton to the next context and parks the
// caller until it is handed back.
type GoSwitcher struct {
	halted   chan struct{}
	haltOnce sync.Once
}

// NewGoSwitcher creates a switcher with no contexts.
func NewGoSwitcher() *GoSwitcher {
	return &GoSwitcher{halted: make(chan struct{})}
}

// Bootstrap returns a context for the calling goroutine, which already holds the baton.
func (s *GoSwitcher) Bootstrap() *PCB {
	return newPCB()
}

// Start creates a context that runs entry the first time it is switched to.
// If the context is retired or the machine halts first, entry never runs.
func (s *GoSwitcher) Start(entry func()) *PCB {
	pcb := newPCB()
	go func() {
		if !s.park(pcb) {
			return
		}
		entry()
	}()
	return pcb
}

// Switch passes the baton from old to next and blocks until old is resumed.
// If old is retired or the machine halts instead, the calling goroutine exits.
func (s *GoSwitcher) Switch(old, next *PCB) {
	if old == next {
		return
	}
	select {
	case next.resume <- struct{}{}:
	default:
		panic("machine: context resumed while already runnable")
	}
	if !s.park(old) {
		runtime.Goexit()
	}
}

// Retire releases a context that will never run again.
func (s *GoSwitcher) Retire(pcb *PCB) {
	pcb.retireOnce.Do(func() { close(pcb.retired) })
}

// Halt releases every parked context.
func (s *GoSwitcher) Halt() {
	s.haltOnce.Do(func() { close(s.halted) })
}

// Halted is closed once Halt has been called.
func (s *GoSwitcher) Halted() <-chan struct{} {
	return s.halted
}

func (s *GoSwitcher) park(pcb *PCB) bool {
	select {
	case <-pcb.resume:
		return true
	case <-pcb.retired:
		return false
	case <-s.halted:
		return false
	}
}
