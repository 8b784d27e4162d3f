package synch

import "github.com/kestrel-os/kestrel/pkg/thread"

// Lock is a sleep lock owned by the thread that acquired it.
type Lock struct {
	k      *thread.Kernel
	name   string
	holder *thread.Thread
	token  thread.Token
}

// NewLock creates an unheld lock.
func NewLock(k *thread.Kernel, name string) *Lock {
	return &Lock{k: k, name: name, token: k.NewToken()}
}

// Name returns the lock's name.
func (l *Lock) Name() string { return l.name }

// Acquire waits until the lock is free and takes it.
func (l *Lock) Acquire() {
	k := l.k
	if k.InInterrupt() {
		k.Panic("lock_acquire %s in an interrupt handler", l.name)
	}

	spl := k.Splhigh()
	cur := k.Current()
	if l.holder == cur {
		k.Panic("lock_acquire %s: already held by pid %d", l.name, cur.Pid())
	}
	for l.holder != nil {
		k.SleepOn(l.token)
	}
	l.holder = cur
	k.Splx(spl)
}

// Release frees the lock. Only the holder may release it.
func (l *Lock) Release() {
	k := l.k
	spl := k.Splhigh()
	if l.holder == nil || l.holder != k.Current() {
		k.Panic("lock_release %s: not held by caller", l.name)
	}
	l.holder = nil
	k.WakeAll(l.token)
	k.Splx(spl)
}

// DoIHold reports whether the current thread holds the lock.
func (l *Lock) DoIHold() bool {
	return l.holder != nil && l.holder == l.k.Current()
}

// Holder returns the holder's pid, if the lock is held.
func (l *Lock) Holder() (thread.Pid, bool) {
	if l.holder == nil {
		return 0, false
	}
	return l.holder.Pid(), true
}

// Destroy checks that the lock is free and nobody waits for it.
func (l *Lock) Destroy() {
	k := l.k
	spl := k.Splhigh()
	if l.holder != nil {
		k.Panic("lock_destroy %s: still held by pid %d", l.name, l.holder.Pid())
	}
	if k.HasSleepers(l.token) {
		k.Panic("lock_destroy %s: threads still waiting", l.name)
	}
	k.Splx(spl)
}
