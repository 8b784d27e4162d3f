package thread

import "github.com/kestrel-os/kestrel/pkg/machine"

//go:generate mockgen -destination=../mocks/mock_thread.go -package=mocks github.com/kestrel-os/kestrel/pkg/thread Scheduler,Switcher

// Scheduler is the run queue. The kernel calls it only with interrupts off.
type Scheduler interface {
	// Preallocate makes room for n runnable threads so that MakeRunnable
	// cannot fail for up to n threads.
	Preallocate(n int) error
	// MakeRunnable appends t to the run queue.
	MakeRunnable(t *Thread) error
	// Next removes and returns the next thread to run, or nil if none is ready.
	Next() *Thread
	// KillAll empties the queue and returns what it held.
	KillAll() []*Thread
	// Len is the number of queued threads.
	Len() int
}

// Switcher is the machine-dependent context switch.
type Switcher interface {
	// Bootstrap returns the context of the caller, which becomes the boot thread.
	Bootstrap() *machine.PCB
	// Start creates a context that will run entry when first switched to.
	Start(entry func()) *machine.PCB
	// Switch suspends old and resumes next.
	Switch(old, next *machine.PCB)
	// Retire releases a context that will never run again.
	Retire(pcb *machine.PCB)
	// Halt stops the machine; parked contexts are released.
	Halt()
}
