package thread

import (
	"bytes"

	"github.com/kestrel-os/kestrel/pkg/logger"
)

// stackMagic sits at the bottom of every thread stack. A thread that has
// overwritten it has overflowed its stack.
var stackMagic = [4]byte{0xae, 0x11, 0xda, 0x33}

func (k *Kernel) checkStack(t *Thread) {
	if t.stack == nil {
		return
	}
	if !bytes.Equal(t.stack[:len(stackMagic)], stackMagic[:]) {
		k.Panic("stack overflow detected in thread %d (%s)", t.pid, t.name)
	}
}

// yieldTo moves the current thread to state ns and runs the next ready
// thread, idling until one exists. It returns when the caller is scheduled
// again. Interrupts must be off.
func (k *Kernel) yieldTo(ns State) {
	cur := k.cur
	if cur == nil {
		return
	}
	if k.inInterrupt {
		k.Panic("context switch from an interrupt handler")
	}
	if k.spl != splHigh {
		k.Panic("context switch with interrupts enabled")
	}
	k.checkStack(cur)

	switch ns {
	case Ready:
		k.makeRunnable(cur)
	case Sleeping:
		if len(k.sleepers) == cap(k.sleepers) {
			k.Panic("sleeper table full (%d)", cap(k.sleepers))
		}
		k.sleepers = append(k.sleepers, cur)
		k.setState(cur, Sleeping)
	case Zombie:
		if len(k.zombies) == cap(k.zombies) {
			k.Panic("zombie table full (%d)", cap(k.zombies))
		}
		k.zombies = append(k.zombies, cur)
		k.setState(cur, Zombie)
	default:
		k.Panic("cannot switch to state %s", ns)
	}

	k.cur = nil
	next := k.sched.Next()
	for next == nil {
		k.idle()
		next = k.sched.Next()
	}

	k.setState(next, Running)
	k.cur = next
	if next != cur {
		k.stats.Switches++
	}
	k.sw.Switch(cur.pcb, next.pcb)

	// Running again, possibly much later.
	k.exorcise()
	if as := k.cur.vmspace; as != nil {
		as.Activate()
	}
}

// Yield gives up the processor to the next ready thread.
func (k *Kernel) Yield() {
	s := k.Splhigh()
	k.yieldTo(Ready)
	k.Splx(s)
}

// SleepOn suspends the current thread until tok is woken. The caller must
// have interrupts off, having just checked the condition it waits for, and
// must re-check it after waking.
func (k *Kernel) SleepOn(tok Token) {
	if k.inInterrupt {
		k.Panic("sleep on %s in an interrupt handler", tok)
	}
	if k.spl != splHigh {
		k.Panic("sleep on %s with interrupts enabled", tok)
	}
	if tok.IsZero() {
		k.Panic("sleep on the zero token")
	}
	cur := k.cur
	cur.token = tok
	k.stats.Sleeps++
	k.yieldTo(Sleeping)
}

// WakeAll makes every thread sleeping on tok runnable, in the order they
// went to sleep, and returns how many were woken.
func (k *Kernel) WakeAll(tok Token) int {
	s := k.Splhigh()
	n := 0
	for i := 0; i < len(k.sleepers); {
		t := k.sleepers[i]
		if t.token != tok {
			i++
			continue
		}
		k.removeSleeper(i)
		k.wake(t)
		n++
	}
	k.Splx(s)
	return n
}

// WakeOne wakes the longest sleeper on tok, if any.
func (k *Kernel) WakeOne(tok Token) bool {
	s := k.Splhigh()
	defer k.Splx(s)
	for i, t := range k.sleepers {
		if t.token == tok {
			k.removeSleeper(i)
			k.wake(t)
			return true
		}
	}
	return false
}

// HasSleepers reports whether any thread sleeps on tok.
func (k *Kernel) HasSleepers(tok Token) bool {
	for _, t := range k.sleepers {
		if t.token == tok {
			return true
		}
	}
	return false
}

// SleeperCount is the number of sleeping threads.
func (k *Kernel) SleeperCount() int { return len(k.sleepers) }

func (k *Kernel) removeSleeper(i int) {
	copy(k.sleepers[i:], k.sleepers[i+1:])
	k.sleepers[len(k.sleepers)-1] = nil
	k.sleepers = k.sleepers[:len(k.sleepers)-1]
}

func (k *Kernel) wake(t *Thread) {
	t.token = Token{}
	k.stats.Wakeups++
	k.makeRunnable(t)
}

func (k *Kernel) makeRunnable(t *Thread) {
	if err := k.sched.MakeRunnable(t); err != nil {
		k.Panic("make runnable pid %d: %v", t.pid, err)
	}
	k.setState(t, Ready)
}

// exorcise frees the zombies left behind by threads that exited. It runs
// only in a thread that has just been switched to, and a zombie's context
// is never resumed, so the current thread is never among them.
func (k *Kernel) exorcise() {
	for i, z := range k.zombies {
		k.zombies[i] = nil
		k.destroy(z)
	}
	k.zombies = k.zombies[:0]
}

func (k *Kernel) destroy(t *Thread) {
	k.sw.Retire(t.pcb)
	if t.stack != nil {
		k.heap.Free(len(t.stack))
		t.stack = nil
	}
	k.heap.Free(threadSize)
	k.stats.Reaped++
	k.log.Debug("reaped", logger.WithField("pid", t.pid), logger.WithField("name", t.name))
}
