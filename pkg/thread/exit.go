package thread

import (
	"runtime"

	"github.com/kestrel-os/kestrel/pkg/logger"
)

// Exit terminates the current thread with code. It does not return.
//
// The exit record goes to the parent if the parent is still live; threads
// waiting on this pid are woken. Children of the exiting thread become
// orphans and will leave no record, and records of its own children that
// were never collected are discarded. The address space and current
// directory are released now; the stack and thread structure are freed by
// the next thread to run.
func (k *Kernel) Exit(code int) {
	cur := k.cur
	if cur == nil || k.inInterrupt {
		k.Panic("thread exit outside thread context")
	}

	k.Splhigh()
	k.checkStack(cur)

	if cur.ppid != NoParent {
		if parent := k.registry.lookup(cur.ppid); parent != nil {
			parent.postExit(ExitRecord{Pid: cur.pid, Code: code})
		}
	}
	k.WakeAll(ThreadToken(cur.pid))

	for _, t := range k.registry.threads {
		if t.ppid == cur.pid {
			t.ppid = NoParent
		}
	}
	if n := len(cur.exits); n > 0 {
		k.log.Debug("discarding uncollected exit records",
			logger.WithField("pid", cur.pid), logger.WithField("count", n))
	}
	cur.exits = nil
	cur.reserved = 0

	if as := cur.vmspace; as != nil {
		cur.vmspace = nil
		as.Destroy()
	}
	if cur.cwd != nil {
		cur.cwd.DecRef()
		cur.cwd = nil
	}

	k.registry.remove(cur.pid)
	k.numThreads--
	k.stats.Exits++
	k.log.Debug("exit", logger.WithField("pid", cur.pid), logger.WithField("code", code))

	if k.numThreads == 0 {
		k.log.Debug("last thread exited")
		k.halt(nil)
		runtime.Goexit()
	}

	k.yieldTo(Zombie)
	k.Panic("zombie %d was scheduled", cur.pid)
}
