// Package shutdown turns host signals into an orderly stop of a running
// machine.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kestrel-os/kestrel/pkg/logger"
)

// ErrInterrupted is returned by Run when a signal arrives.
var ErrInterrupted = errors.New("interrupted")

// Manager handles signals and shutdown handlers.
type Manager struct {
	logger           logger.Logger
	signals          []os.Signal
	shutdownHandlers []func()
	heartbeatFunc    func()
	heartbeatEvery   time.Duration
	inject           chan os.Signal

	mu      sync.Mutex
	running bool
}

// NewManager creates a manager for SIGINT, SIGTERM and SIGHUP.
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		logger:  log.WithSubsystem("shutdown"),
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP},
		inject:  make(chan os.Signal, 1),
	}
}

// SetSignals replaces the signals the manager listens for.
func (m *Manager) SetSignals(sigs ...os.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = sigs
}

// RegisterShutdownHandler adds a handler run when a signal arrives.
// Handlers run in reverse registration order.
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// SetHeartbeat calls fn every interval while Run is active. A zero
// interval disables it.
func (m *Manager) SetHeartbeat(interval time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeatEvery = interval
	m.heartbeatFunc = fn
}

// Trigger delivers sig as if it came from the host. A second trigger
// before Run consumes the first is dropped.
func (m *Manager) Trigger(sig os.Signal) {
	select {
	case m.inject <- sig:
	default:
	}
}

// IsRunning reports whether Run is active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Run blocks until ctx is done or a signal arrives. On a signal it runs
// the shutdown handlers and returns ErrInterrupted; on ctx it returns nil.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("shutdown: already running")
	}
	m.running = true
	sigs := append([]os.Signal(nil), m.signals...)
	every, beat := m.heartbeatEvery, m.heartbeatFunc
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)
	defer signal.Stop(sigChan)

	var tick <-chan time.Time
	if every > 0 && beat != nil {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			beat()
		case sig := <-m.inject:
			return m.interrupted(sig)
		case sig := <-sigChan:
			return m.interrupted(sig)
		}
	}
}

func (m *Manager) interrupted(sig os.Signal) error {
	m.logger.Info("received signal", logger.WithField("signal", sig.String()))
	m.handleShutdown()
	return fmt.Errorf("%w: %s", ErrInterrupted, sig)
}

func (m *Manager) handleShutdown() {
	m.mu.Lock()
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}
