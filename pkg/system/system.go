// Package system assembles a complete simulated machine from a
// configuration: kernel heap, scheduler, kernel, process layer, syscall
// dispatcher, program file system, console and timer.
package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kestrel-os/kestrel/internal/runner"
	"github.com/kestrel-os/kestrel/pkg/kmem"
	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/proc"
	"github.com/kestrel-os/kestrel/pkg/sched"
	"github.com/kestrel-os/kestrel/pkg/syscall"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/types"
	"github.com/kestrel-os/kestrel/pkg/vfs"
)

// Options configures a System. Config is required.
type Options struct {
	Config  *types.KernelConfig
	FS      vfs.FS    // defaults to the config's program directory
	Console io.Writer // defaults to os.Stdout
	Logger  logger.Logger
}

// System is one booted machine.
type System struct {
	cfg     *types.KernelConfig
	heap    *kmem.Heap
	kernel  *thread.Kernel
	procs   *proc.Manager
	calls   *syscall.Dispatcher
	fs      vfs.FS
	log     logger.Logger
	console io.Writer

	services []service

	mu      sync.Mutex
	results map[thread.Pid]int
}

type service struct {
	name string
	run  func(ctx context.Context) error
}

// New builds a machine. Nothing runs until Run.
func New(opts Options) (*System, error) {
	if opts.Config == nil {
		return nil, errors.New("system: config is required")
	}
	cfg := *opts.Config
	cfg.ApplyDefaults()

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	fs := opts.FS
	if fs == nil {
		dfs, err := vfs.NewDirFS(cfg.ProgramDir)
		if err != nil {
			return nil, fmt.Errorf("system: program directory: %w", err)
		}
		fs = dfs
	}

	policy, err := types.ParseSchedulerPolicy(string(cfg.Scheduler))
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}
	scheduler, err := sched.New(policy, cfg.RandomSeed)
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}

	heap := kmem.New(cfg.HeapLimit)
	k, err := thread.New(thread.Config{
		Scheduler:   scheduler,
		Heap:        heap,
		Logger:      log,
		StackSize:   cfg.StackSize,
		MaxThreads:  cfg.MaxThreads,
		IdleTimeout: cfg.IdleTimeoutDuration(),
		Root:        fs.Root(),
		BootName:    "<boot>",
	})
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}

	procs := proc.New(k, fs, log)
	calls := syscall.New(procs, console, log)

	return &System{
		cfg:     &cfg,
		heap:    heap,
		kernel:  k,
		procs:   procs,
		calls:   calls,
		fs:      fs,
		log:     log.WithSubsystem("system"),
		console: console,
		results: make(map[thread.Pid]int),
	}, nil
}

// Config returns the effective configuration.
func (s *System) Config() *types.KernelConfig { return s.cfg }

// Kernel returns the kernel.
func (s *System) Kernel() *thread.Kernel { return s.kernel }

// Procs returns the process layer.
func (s *System) Procs() *proc.Manager { return s.procs }

// Dispatcher returns the syscall dispatcher.
func (s *System) Dispatcher() *syscall.Dispatcher { return s.calls }

// Heap returns the kernel heap.
func (s *System) Heap() *kmem.Heap { return s.heap }

// AddService runs fn alongside the kernel on every Run. Its context is
// cancelled once the machine halts; an error from fn halts the machine and
// becomes Run's result.
func (s *System) AddService(name string, fn func(ctx context.Context) error) {
	s.services = append(s.services, service{name: name, run: fn})
}

// Run boots the machine with main on the boot thread and blocks until it
// halts. The timer runs alongside the kernel when a quantum is configured.
func (s *System) Run(ctx context.Context, main func(*proc.Manager)) error {
	g, gctx := runner.NewSafeGroup(ctx, s.log)
	svcCtx, stopServices := context.WithCancel(gctx)

	clock := machine.NewClock(s.cfg.QuantumDuration(), s.kernel.Tick)
	g.Go("clock", func() error {
		return clock.Run(svcCtx)
	})
	for _, svc := range s.services {
		svc := svc
		g.Go(svc.name, func() error {
			return svc.run(svcCtx)
		})
	}

	var runErr error
	g.Go("kernel", func() error {
		defer stopServices()
		runErr = s.kernel.Run(gctx, func() { main(s.procs) })
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return runErr
}

// RunProgram boots the machine, runs the program at path as a child of the
// boot thread and returns its exit code once it has been waited for.
func (s *System) RunProgram(ctx context.Context, path string, args []string) (int, error) {
	var (
		code    int
		progErr error
	)
	err := s.Run(ctx, func(m *proc.Manager) {
		pid, err := m.Spawn(path, args)
		if err != nil {
			progErr = err
			return
		}
		code, progErr = m.Wait(pid, 0)
		if progErr == nil {
			s.record(pid, code)
		}
	})
	if err != nil {
		return 0, err
	}
	if progErr != nil {
		return 0, progErr
	}
	return code, nil
}

// RunPrograms runs several programs concurrently as children of the boot
// thread and collects every exit code.
func (s *System) RunPrograms(ctx context.Context, paths []string) (map[string]int, error) {
	codes := make(map[string]int, len(paths))
	var progErr error
	err := s.Run(ctx, func(m *proc.Manager) {
		pids := make(map[thread.Pid]string, len(paths))
		order := make([]thread.Pid, 0, len(paths))
		for _, p := range paths {
			pid, err := m.Spawn(p, nil)
			if err != nil {
				progErr = err
				break
			}
			pids[pid] = p
			order = append(order, pid)
		}
		for _, pid := range order {
			code, err := m.Wait(pid, 0)
			if err != nil {
				progErr = err
				continue
			}
			s.record(pid, code)
			codes[pids[pid]] = code
		}
	})
	if err != nil {
		return codes, err
	}
	return codes, progErr
}

// Results returns the exit codes collected by RunProgram and RunPrograms.
func (s *System) Results() map[thread.Pid]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[thread.Pid]int, len(s.results))
	for pid, code := range s.results {
		out[pid] = code
	}
	return out
}

func (s *System) record(pid thread.Pid, code int) {
	s.mu.Lock()
	s.results[pid] = code
	s.mu.Unlock()
}
