// Package proc implements process semantics on top of kernel threads:
// fork, exit, waitpid, getpid and execv.
package proc

import (
	"fmt"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/kmem"
	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/vfs"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

// Exit codes the kernel uses on a process's behalf.
const (
	ExitFault      = 139
	ExitExecFailed = 127
)

// Manager is the process layer of one kernel.
type Manager struct {
	k       *thread.Kernel
	fs      vfs.FS
	heap    *kmem.Heap
	log     logger.Logger
	handler machine.Handler
}

// New creates a process manager. SetHandler must be called before any
// process enters user mode.
func New(k *thread.Kernel, fs vfs.FS, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		k:    k,
		fs:   fs,
		heap: k.Heap(),
		log:  log.WithSubsystem("proc"),
	}
}

// SetHandler installs the trap handler user processes run under.
func (m *Manager) SetHandler(h machine.Handler) { m.handler = h }

// Kernel returns the underlying kernel.
func (m *Manager) Kernel() *thread.Kernel { return m.k }

// Getpid returns the caller's pid.
func (m *Manager) Getpid() thread.Pid {
	return m.k.Current().Pid()
}

// Fork duplicates the calling process. tf is the caller's trap frame at the
// fork syscall; the child resumes from it after the syscall with a return
// value of 0. The parent gets the child's pid.
func (m *Manager) Fork(tf *machine.Trapframe) (thread.Pid, error) {
	k := m.k
	cur := k.Current()

	if k.LiveCount() >= k.MaxThreads() {
		return 0, fmt.Errorf("fork: %w", errno.EAGAIN)
	}
	parentAS := cur.AddressSpace()
	if parentAS == nil {
		return 0, fmt.Errorf("fork: pid %d has no address space: %w", cur.Pid(), errno.EINVAL)
	}

	if err := m.heap.Alloc(machine.TrapframeSize); err != nil {
		return 0, fmt.Errorf("fork: trapframe: %w", err)
	}
	childTF := tf.Copy()

	childAS, err := parentAS.Copy()
	if err != nil {
		m.heap.Free(machine.TrapframeSize)
		return 0, fmt.Errorf("fork: %w", err)
	}

	child, err := k.Fork(cur.Name(), func() {
		m.forkEntry(childTF, childAS)
	})
	if err != nil {
		childAS.Destroy()
		m.heap.Free(machine.TrapframeSize)
		return 0, fmt.Errorf("fork: %w", err)
	}

	m.log.Debug("fork", logger.WithField("parent", cur.Pid()), logger.WithField("child", child.Pid()))
	return child.Pid(), nil
}

// forkEntry is the child's first code: it takes ownership of the copied
// address space and returns to user mode reporting success and 0.
func (m *Manager) forkEntry(saved *machine.Trapframe, as *vm.AddressSpace) {
	m.k.Current().SetAddressSpace(as)

	tf := *saved
	m.heap.Free(machine.TrapframeSize)

	tf.Set(machine.V0, 0)
	tf.Set(machine.A3, 0)
	tf.EPC += machine.WordSize

	m.enterUser(&tf, as)
}

// Create starts a kernel-mode child process running fn. The child exits
// with code 0 when fn returns, or with whatever code fn passes to Exit.
func (m *Manager) Create(name string, fn func()) (thread.Pid, error) {
	t, err := m.k.Fork(name, fn)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	return t.Pid(), nil
}

// Exit terminates the calling process. It does not return.
func (m *Manager) Exit(code int) {
	m.k.Exit(code)
}

// Wait waits for child pid to exit and returns its exit code. options must be 0.
//
// Waiting for a child that already exited returns at once. A child's exit
// code is delivered exactly once: waiting again for the same pid fails.
func (m *Manager) Wait(pid thread.Pid, options int) (int, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("waitpid %d: %w", pid, errno.EINVAL)
	}
	if options != 0 {
		return 0, fmt.Errorf("waitpid %d: options %#x: %w", pid, options, errno.EINVAL)
	}

	k := m.k
	s := k.Splhigh()
	defer k.Splx(s)

	cur := k.Current()
	child := k.Lookup(pid)
	if child != nil && child.Ppid() != cur.Pid() {
		return 0, fmt.Errorf("waitpid %d: not a child of %d: %w", pid, cur.Pid(), errno.EINVAL)
	}
	if code, ok := cur.TakeExitRecord(pid); ok {
		return code, nil
	}
	if child == nil {
		return 0, fmt.Errorf("waitpid %d: no such child: %w", pid, errno.EINVAL)
	}

	for {
		k.SleepOn(thread.ThreadToken(pid))
		if code, ok := cur.TakeExitRecord(pid); ok {
			return code, nil
		}
		if k.Lookup(pid) == nil {
			k.Panic("waitpid: child %d of %d is gone without an exit record", pid, cur.Pid())
		}
	}
}

func (m *Manager) enterUser(tf *machine.Trapframe, as *vm.AddressSpace) {
	if m.handler == nil {
		m.k.Panic("no trap handler installed")
	}
	machine.EnterUserMode(tf, as, m.handler)
	// A fault handler that returns leaves the process with nothing to run.
	m.k.Exit(ExitFault)
}
