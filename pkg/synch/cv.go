package synch

import "github.com/kestrel-os/kestrel/pkg/thread"

// Cond is a Mesa-style condition variable: woken threads must re-check
// their condition.
type Cond struct {
	k     *thread.Kernel
	name  string
	token thread.Token
}

// NewCond creates a condition variable.
func NewCond(k *thread.Kernel, name string) *Cond {
	return &Cond{k: k, name: name, token: k.NewToken()}
}

// Name returns the condition variable's name.
func (c *Cond) Name() string { return c.name }

// Wait releases l, sleeps until signalled and re-acquires l. Releasing and
// going to sleep happen atomically.
func (c *Cond) Wait(l *Lock) {
	k := c.k
	if !l.DoIHold() {
		k.Panic("cv_wait %s: lock %s not held by caller", c.name, l.name)
	}

	spl := k.Splhigh()
	l.Release()
	k.SleepOn(c.token)
	l.Acquire()
	k.Splx(spl)
}

// Signal wakes at most one waiter.
func (c *Cond) Signal(l *Lock) {
	k := c.k
	if !l.DoIHold() {
		k.Panic("cv_signal %s: lock %s not held by caller", c.name, l.name)
	}
	k.WakeOne(c.token)
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast(l *Lock) {
	k := c.k
	if !l.DoIHold() {
		k.Panic("cv_broadcast %s: lock %s not held by caller", c.name, l.name)
	}
	k.WakeAll(c.token)
}

// Destroy checks that nobody waits.
func (c *Cond) Destroy() {
	k := c.k
	spl := k.Splhigh()
	if k.HasSleepers(c.token) {
		k.Panic("cv_destroy %s: threads still waiting", c.name)
	}
	k.Splx(spl)
}
