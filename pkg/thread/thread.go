// Package thread is the scheduling core of the kernel: the thread registry
// and pid allocator, context switching, sleep and wakeup on wait tokens,
// thread creation and exit, and the exit records parents collect.
//
// The kernel is a single simulated CPU. Each thread runs on its own
// goroutine but only the current thread executes kernel code; the others
// are parked inside the switcher. Kernel state is therefore protected by the
// interrupt level alone, exactly as on a uniprocessor: code that must not be
// preempted raises it with Splhigh and restores it with Splx.
package thread

import (
	"fmt"

	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/vfs"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

// Pid identifies a thread. Pids start at 1 and are never reused within a boot.
type Pid int32

// NoParent is the parent pid of the boot thread and of orphans.
const NoParent Pid = -1

// State is a thread's scheduling state.
type State int

const (
	Running State = iota
	Ready
	Sleeping
	Zombie
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Ready:
		return "READY"
	case Sleeping:
		return "SLEEPING"
	case Zombie:
		return "ZOMBIE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type tokenKind uint8

const (
	tokenNone tokenKind = iota
	tokenThread
	tokenObject
)

// Token is what a sleeping thread waits on. Tokens are comparable values;
// two sleepers are woken together exactly when their tokens are equal.
type Token struct {
	kind tokenKind
	id   uint64
}

// ThreadToken is the token waiters on thread pid sleep on. Exit wakes it.
func ThreadToken(pid Pid) Token {
	return Token{kind: tokenThread, id: uint64(uint32(pid))}
}

// IsZero reports whether t is the zero token, which nothing may sleep on.
func (t Token) IsZero() bool { return t.kind == tokenNone }

func (t Token) String() string {
	switch t.kind {
	case tokenThread:
		return fmt.Sprintf("thread:%d", t.id)
	case tokenObject:
		return fmt.Sprintf("obj:%d", t.id)
	}
	return "-"
}

// ExitRecord is the exit status a child leaves for its parent.
type ExitRecord struct {
	Pid  Pid
	Code int
}

// Thread is a kernel thread, which is also a process in this kernel.
type Thread struct {
	k     *Kernel
	name  string
	pid   Pid
	ppid  Pid
	state State
	token Token

	stack   []byte
	pcb     *machine.PCB
	cwd     *vfs.Vnode
	vmspace *vm.AddressSpace

	// exits holds records of children that have exited and not been waited
	// for. reserved counts slots held back for live children so that
	// posting a record at exit never allocates.
	exits    []ExitRecord
	reserved int
}

// Name is the thread's name.
func (t *Thread) Name() string { return t.name }

// Pid is the thread's process id.
func (t *Thread) Pid() Pid { return t.pid }

// Ppid is the parent's pid, or NoParent.
func (t *Thread) Ppid() Pid { return t.ppid }

// State is the current scheduling state.
func (t *Thread) State() State { return t.state }

// Token is the token the thread sleeps on; zero unless Sleeping.
func (t *Thread) Token() Token { return t.token }

// Cwd is the current directory vnode, if any.
func (t *Thread) Cwd() *vfs.Vnode { return t.cwd }

// AddressSpace is the user address space, nil for pure kernel threads.
func (t *Thread) AddressSpace() *vm.AddressSpace { return t.vmspace }

// SetAddressSpace installs as and destroys the previous address space.
// If t is running, as is activated before the old one is torn down.
func (t *Thread) SetAddressSpace(as *vm.AddressSpace) {
	k := t.k
	s := k.Splhigh()
	old := t.vmspace
	t.vmspace = as
	if as != nil && t == k.cur {
		as.Activate()
	}
	k.Splx(s)

	if old != nil {
		old.Destroy()
	}
}

// TakeExitRecord removes and returns the record left by child pid.
func (t *Thread) TakeExitRecord(pid Pid) (int, bool) {
	for i, rec := range t.exits {
		if rec.Pid == pid {
			copy(t.exits[i:], t.exits[i+1:])
			t.exits = t.exits[:len(t.exits)-1]
			return rec.Code, true
		}
	}
	return 0, false
}

// PendingExits returns a copy of the unconsumed exit records.
func (t *Thread) PendingExits() []ExitRecord {
	return append([]ExitRecord(nil), t.exits...)
}

func (t *Thread) reserveExitSlot() {
	t.reserved++
	if need := len(t.exits) + t.reserved; cap(t.exits) < need {
		grown := make([]ExitRecord, len(t.exits), 2*need)
		copy(grown, t.exits)
		t.exits = grown
	}
}

func (t *Thread) postExit(rec ExitRecord) {
	if t.reserved <= 0 {
		t.k.Panic("exit record for pid %d posted to %d without a reserved slot", rec.Pid, t.pid)
	}
	t.reserved--
	t.exits = append(t.exits, rec)
}
