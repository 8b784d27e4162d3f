package thread

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/kmem"
	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/types"
	"github.com/kestrel-os/kestrel/pkg/vfs"
)

var (
	// ErrHalted is returned by Post once the machine has stopped.
	ErrHalted = errors.New("machine halted")
	// ErrDeadlock is the cause of the panic raised when nothing can run.
	ErrDeadlock = errors.New("no runnable threads")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("kernel already running")
)

// threadSize is what a thread structure costs on the kernel heap.
const threadSize = 512

// slotSize is the heap cost of one entry in the sleeper or zombie table.
const slotSize = 8

// PanicError is returned by Run when the kernel stopped on a fatal error.
type PanicError struct {
	Message string
	Pid     Pid
	Thread  string
	Err     error
	Stack   string
}

func (e *PanicError) Error() string {
	if e.Thread != "" {
		return fmt.Sprintf("kernel panic in %s (pid %d): %s", e.Thread, e.Pid, e.Message)
	}
	return "kernel panic: " + e.Message
}

func (e *PanicError) Unwrap() error { return e.Err }

// Config configures a kernel. Zero fields take defaults.
type Config struct {
	Scheduler   Scheduler
	Switcher    Switcher
	Heap        *kmem.Heap
	Logger      logger.Logger
	StackSize   int
	MaxThreads  int
	IdleTimeout time.Duration // negative waits forever
	Root        *vfs.Vnode    // boot thread's current directory
	BootName    string
}

// Stats counts kernel events since boot.
type Stats struct {
	Forks      int
	Exits      int
	Reaped     int
	Switches   int
	Sleeps     int
	Wakeups    int
	Interrupts int
	Ticks      int
	Idles      int
}

// ThreadInfo describes one thread in a Snapshot.
type ThreadInfo struct {
	Pid   Pid
	Ppid  Pid
	Name  string
	State State
	Token Token
}

// Kernel is one simulated uniprocessor.
type Kernel struct {
	cfg   Config
	log   logger.Logger
	heap  *kmem.Heap
	sched Scheduler
	sw    Switcher

	cur         *Thread
	boot        *Thread
	registry    *registry
	sleepers    []*Thread
	zombies     []*Thread
	numThreads  int
	maxThreads  int
	tableBytes  int
	spl         int
	inInterrupt bool
	needResched bool
	stats       Stats

	irq         chan func()
	tickPending atomic.Bool
	tokens      atomic.Uint64
	started     atomic.Bool

	haltOnce sync.Once
	haltErr  error
	done     chan struct{}
}

const (
	splLow  = 0
	splHigh = 1
)

// New creates a kernel whose boot thread is the goroutine that will call Run.
func New(cfg Config) (*Kernel, error) {
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("thread: scheduler required: %w", errno.EINVAL)
	}
	if cfg.Switcher == nil {
		cfg.Switcher = machine.NewGoSwitcher()
	}
	if cfg.Heap == nil {
		cfg.Heap = kmem.New(types.DefaultHeapLimit)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.StackSize == 0 {
		cfg.StackSize = types.DefaultStackSize
	}
	if cfg.StackSize < len(stackMagic) {
		return nil, fmt.Errorf("thread: stack size %d too small: %w", cfg.StackSize, errno.EINVAL)
	}
	if cfg.MaxThreads == 0 {
		cfg.MaxThreads = types.DefaultMaxThreads
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Duration(types.DefaultIdleTimeoutMs) * time.Millisecond
	}
	if cfg.BootName == "" {
		cfg.BootName = "<boot>"
	}

	k := &Kernel{
		cfg:        cfg,
		log:        cfg.Logger.WithSubsystem("thread"),
		heap:       cfg.Heap,
		sched:      cfg.Scheduler,
		sw:         cfg.Switcher,
		registry:   newRegistry(),
		maxThreads: cfg.MaxThreads,
		spl:        splHigh,
		irq:        make(chan func(), 64),
		done:       make(chan struct{}),
	}

	if err := k.bootstrap(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Kernel) bootstrap() error {
	if err := k.growTables(k.maxThreads + 1); err != nil {
		return fmt.Errorf("thread_bootstrap: %w", err)
	}
	if err := k.sched.Preallocate(1); err != nil {
		return fmt.Errorf("thread_bootstrap: %w", err)
	}

	t, err := k.create(k.cfg.BootName)
	if err != nil {
		return fmt.Errorf("thread_bootstrap: %w", err)
	}
	t.ppid = NoParent
	t.state = Running
	t.pcb = k.sw.Bootstrap()
	if k.cfg.Root != nil {
		k.cfg.Root.IncRef()
		t.cwd = k.cfg.Root
	}
	if err := k.registry.add(t); err != nil {
		return fmt.Errorf("thread_bootstrap: %w", err)
	}
	k.numThreads = 1
	k.cur = t
	k.boot = t
	return nil
}

// Run executes main on the boot thread and blocks until the machine halts.
// The machine halts when main returns, when the last thread exits, on
// Shutdown, on a kernel panic, or when ctx is cancelled. A panic is
// returned as a *PanicError; cancellation returns ctx.Err().
func (k *Kernel) Run(ctx context.Context, main func()) error {
	if !k.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	k.log.Debug("booting", logger.WithField("maxThreads", k.maxThreads))

	go func() {
		defer k.recoverThread()
		k.Spl0()
		main()
		k.Splhigh()
		k.log.Debug("boot thread returned")
		k.halt(nil)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = k.Post(func() {
				k.log.Info("shutdown requested", logger.WithError(ctx.Err()))
				k.halt(ctx.Err())
				runtime.Goexit()
			})
		case <-k.done:
		}
	}()

	<-k.done
	return k.haltErr
}

// Done is closed when the machine halts.
func (k *Kernel) Done() <-chan struct{} { return k.done }

// Shutdown halts the machine from kernel context. Sleeping and ready threads
// are dropped without cleanup. It does not return.
func (k *Kernel) Shutdown() {
	k.Splhigh()
	k.log.Info("shutting down", logger.WithField("live", k.numThreads))
	k.halt(nil)
	runtime.Goexit()
}

// Panic stops the machine with a fatal error. It does not return.
func (k *Kernel) Panic(format string, args ...interface{}) {
	k.fatal(nil, fmt.Sprintf(format, args...), debug.Stack())
}

func (k *Kernel) fatal(cause error, msg string, stack []byte) {
	k.spl = splHigh
	pe := &PanicError{Message: msg, Pid: NoParent, Err: cause, Stack: string(stack)}
	if k.cur != nil {
		pe.Pid = k.cur.pid
		pe.Thread = k.cur.name
	}
	k.log.Error("panic: "+msg, logger.WithField("pid", pe.Pid))
	k.halt(pe)
	runtime.Goexit()
}

func (k *Kernel) recoverThread() {
	if r := recover(); r != nil {
		k.fatal(nil, fmt.Sprintf("unrecovered fault: %v", r), debug.Stack())
	}
}

func (k *Kernel) halt(err error) {
	k.haltOnce.Do(func() {
		k.haltErr = err
		sleeping := len(k.sleepers)
		for i := range k.sleepers {
			k.sleepers[i] = nil
		}
		k.sleepers = k.sleepers[:0]
		ready := len(k.sched.KillAll())

		k.log.Debug("halting",
			logger.WithField("sleeping", sleeping),
			logger.WithField("ready", ready),
			logger.WithField("live", k.numThreads))

		k.sw.Halt()
		close(k.done)
	})
}

// NewToken returns a wait token no other object uses.
func (k *Kernel) NewToken() Token {
	return Token{kind: tokenObject, id: k.tokens.Add(1)}
}

// Current is the running thread, or nil while idle.
func (k *Kernel) Current() *Thread { return k.cur }

// Lookup returns the live thread with pid, or nil.
func (k *Kernel) Lookup(pid Pid) *Thread { return k.registry.lookup(pid) }

// LiveCount is the number of threads that have not exited.
func (k *Kernel) LiveCount() int { return k.numThreads }

// MaxThreads is the ceiling on live threads.
func (k *Kernel) MaxThreads() int { return k.maxThreads }

// SetMaxThreads changes the ceiling. Lowering it never kills threads.
func (k *Kernel) SetMaxThreads(n int) error {
	if n < 1 {
		return fmt.Errorf("thread: max threads %d: %w", n, errno.EINVAL)
	}
	s := k.Splhigh()
	defer k.Splx(s)
	if err := k.growTables(n + 1); err != nil {
		return err
	}
	k.maxThreads = n
	return nil
}

// Heap is the kernel heap.
func (k *Kernel) Heap() *kmem.Heap { return k.heap }

// Logger is the kernel logger.
func (k *Kernel) Logger() logger.Logger { return k.log }

// Stats returns the event counters.
func (k *Kernel) Stats() Stats { return k.stats }

// Snapshot lists live threads in pid order followed by unreclaimed zombies.
func (k *Kernel) Snapshot() []ThreadInfo {
	var out []ThreadInfo
	for _, t := range k.registry.sorted() {
		out = append(out, info(t))
	}
	for _, t := range k.zombies {
		out = append(out, info(t))
	}
	return out
}

func info(t *Thread) ThreadInfo {
	return ThreadInfo{Pid: t.pid, Ppid: t.ppid, Name: t.name, State: t.state, Token: t.token}
}

func (k *Kernel) growTables(n int) error {
	for _, tbl := range []*[]*Thread{&k.sleepers, &k.zombies} {
		if cap(*tbl) >= n {
			continue
		}
		bytes := (n - cap(*tbl)) * slotSize
		if err := k.heap.Alloc(bytes); err != nil {
			return err
		}
		k.tableBytes += bytes
		grown := make([]*Thread, len(*tbl), n)
		copy(grown, *tbl)
		*tbl = grown
	}
	return nil
}

func (k *Kernel) setState(t *Thread, s State) {
	if t.state == s {
		return
	}
	k.log.Debug("state change",
		logger.WithField("pid", t.pid),
		logger.WithField("from", t.state),
		logger.WithField("to", s))
	t.state = s
}
