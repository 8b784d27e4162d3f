package thread

import (
	"errors"
	"fmt"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/logger"
)

// create allocates a thread structure and its pid. The thread is not yet
// registered or runnable.
func (k *Kernel) create(name string) (*Thread, error) {
	if err := k.heap.Alloc(threadSize); err != nil {
		return nil, err
	}
	pid, err := k.registry.allocatePid()
	if err != nil {
		k.heap.Free(threadSize)
		return nil, fmt.Errorf("%v: %w", err, errno.EAGAIN)
	}
	return &Thread{
		k:     k,
		name:  name,
		pid:   pid,
		ppid:  NoParent,
		state: Ready,
	}, nil
}

// Fork creates a child of the current thread that runs entry and then
// exits with code 0. The child inherits the current directory; it starts
// with no address space. On failure nothing is left behind: no registry
// entry, no change to the live count and no heap usage.
func (k *Kernel) Fork(name string, entry func()) (*Thread, error) {
	parent := k.cur
	if parent == nil || k.inInterrupt {
		return nil, fmt.Errorf("thread_fork: no thread context: %w", errno.EINVAL)
	}

	s := k.Splhigh()
	defer k.Splx(s)

	if k.numThreads >= k.maxThreads {
		return nil, fmt.Errorf("thread_fork: %d of %d threads live: %w", k.numThreads, k.maxThreads, errno.EAGAIN)
	}

	t, err := k.create(name)
	if err != nil {
		return nil, fmt.Errorf("thread_fork: %w", err)
	}

	if err := k.heap.Alloc(k.cfg.StackSize); err != nil {
		k.heap.Free(threadSize)
		return nil, fmt.Errorf("thread_fork: stack: %w", err)
	}
	t.stack = make([]byte, k.cfg.StackSize)
	copy(t.stack, stackMagic[:])

	// Reserve everything the child's life cycle needs so that it can never
	// fail later: a run queue slot and table slots to sleep or die in.
	err = k.growTables(k.numThreads + 1)
	if err == nil {
		err = k.sched.Preallocate(k.numThreads + 1)
	}
	if err != nil {
		k.heap.Free(len(t.stack))
		k.heap.Free(threadSize)
		var e errno.Errno
		if !errors.As(err, &e) {
			err = fmt.Errorf("%v: %w", err, errno.ENOMEM)
		}
		return nil, fmt.Errorf("thread_fork: preallocate: %w", err)
	}

	if err := k.registry.add(t); err != nil {
		k.Panic("thread_fork: %v (pid %d)", err, t.pid)
	}

	parent.reserveExitSlot()
	t.ppid = parent.pid
	if parent.cwd != nil {
		parent.cwd.IncRef()
		t.cwd = parent.cwd
	}
	t.pcb = k.sw.Start(func() { k.threadStart(t, entry) })

	k.numThreads++
	k.stats.Forks++
	k.makeRunnable(t)

	k.log.Debug("forked",
		logger.WithField("pid", t.pid),
		logger.WithField("ppid", t.ppid),
		logger.WithField("name", t.name))
	return t, nil
}

// threadStart is the first code a new thread runs.
func (k *Kernel) threadStart(t *Thread, entry func()) {
	defer k.recoverThread()

	k.exorcise()
	if t.vmspace != nil {
		t.vmspace.Activate()
	}
	k.Spl0()

	entry()
	k.Exit(0)
}
