package thread

import (
	"fmt"
	"time"

	"github.com/kestrel-os/kestrel/pkg/logger"
)

// Splhigh disables interrupts and returns the previous level.
func (k *Kernel) Splhigh() int {
	old := k.spl
	k.spl = splHigh
	return old
}

// Splx restores a level returned by Splhigh. Returning to level 0 takes
// any pending interrupts, which may preempt the caller.
func (k *Kernel) Splx(old int) {
	k.spl = old
	if old == splLow && !k.inInterrupt {
		k.deliver()
	}
}

// Spl0 enables interrupts.
func (k *Kernel) Spl0() { k.Splx(splLow) }

// InterruptsEnabled reports whether the interrupt level is 0.
func (k *Kernel) InterruptsEnabled() bool { return k.spl == splLow }

// InInterrupt reports whether an interrupt handler is running.
func (k *Kernel) InInterrupt() bool { return k.inInterrupt }

// Checkpoint is a preemption point. Long-running kernel loops and the user
// mode interpreter call it; pending interrupts are taken if enabled.
func (k *Kernel) Checkpoint() {
	if k.spl == splLow && !k.inInterrupt {
		k.deliver()
	}
}

// Tick raises a timer interrupt. It is safe to call from any goroutine.
func (k *Kernel) Tick() {
	k.tickPending.Store(true)
}

// Post queues fn to run as an interrupt handler on the kernel CPU. It is
// the only way for code outside the kernel to act on kernel state.
func (k *Kernel) Post(fn func()) error {
	select {
	case <-k.done:
		return ErrHalted
	default:
	}
	select {
	case k.irq <- fn:
		return nil
	case <-k.done:
		return ErrHalted
	}
}

// deliver runs pending handlers and honours a reschedule request raised by
// the timer. Called with interrupts enabled.
func (k *Kernel) deliver() {
	for {
		if k.tickPending.Swap(false) {
			k.stats.Ticks++
			k.needResched = true
		}
		k.drainHandlers()

		if !k.needResched || k.cur == nil {
			return
		}
		k.needResched = false
		k.spl = splHigh
		k.yieldTo(Ready)
		k.spl = splLow
	}
}

func (k *Kernel) drainHandlers() {
	for {
		select {
		case fn := <-k.irq:
			k.runHandler(fn)
		default:
			return
		}
	}
}

func (k *Kernel) runHandler(fn func()) {
	old := k.spl
	k.spl = splHigh
	k.inInterrupt = true
	k.stats.Interrupts++
	fn()
	k.inInterrupt = false
	k.spl = old
}

// idle waits for an interrupt while no thread is runnable. If none arrives
// within the idle timeout the machine is deadlocked and panics.
func (k *Kernel) idle() {
	k.stats.Idles++

	var timeout <-chan time.Time
	if k.cfg.IdleTimeout > 0 {
		timer := time.NewTimer(k.cfg.IdleTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case fn := <-k.irq:
		k.runHandler(fn)
		k.tickPending.Store(false)
		k.needResched = false
	case <-timeout:
		sleeping := make([]string, 0, len(k.sleepers))
		for _, t := range k.sleepers {
			sleeping = append(sleeping, fmt.Sprintf("%d@%s", t.pid, t.token))
		}
		k.log.Error("idle timeout", logger.WithField("sleepers", sleeping))
		k.fatal(ErrDeadlock, fmt.Sprintf("no runnable threads for %s; sleepers %v", k.cfg.IdleTimeout, sleeping), nil)
	}
}
