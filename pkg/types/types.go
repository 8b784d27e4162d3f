// Package types provides the configuration types shared by the kernel and CLI
package types

import (
	"fmt"
	"strings"
	"time"
)

// SchedulerPolicy selects the run-queue discipline
type SchedulerPolicy string

const (
	SchedulerFIFO   SchedulerPolicy = "fifo"
	SchedulerRandom SchedulerPolicy = "random"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Defaults used when a field is left zero.
const (
	DefaultMaxThreads    = 64
	DefaultStackSize     = 4096
	DefaultHeapLimit     = 4 << 20
	DefaultIdleTimeoutMs = 5000
	DefaultQuantumMs     = 0
	DefaultProgramDir    = "programs"
	MinStackSize         = 64
)

// KernelConfig is the on-disk configuration of a simulated machine
type KernelConfig struct {
	Version       string              `json:"version" yaml:"version"`
	MaxThreads    int                 `json:"maxThreads,omitempty" yaml:"maxThreads,omitempty"`
	StackSize     int                 `json:"stackSize,omitempty" yaml:"stackSize,omitempty"`
	HeapLimit     int                 `json:"heapLimit,omitempty" yaml:"heapLimit,omitempty"`
	Scheduler     SchedulerPolicy     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`
	RandomSeed    int64               `json:"randomSeed,omitempty" yaml:"randomSeed,omitempty"`
	Quantum       int                 `json:"quantum,omitempty" yaml:"quantum,omitempty"`         // milliseconds, 0 disables the clock
	IdleTimeout   int                 `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"` // milliseconds
	ProgramDir    string              `json:"programDir,omitempty" yaml:"programDir,omitempty"`
	LogLevel      LogLevel            `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFile       string              `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	Notifications *NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// NotificationConfig controls desktop notifications on machine halt
type NotificationConfig struct {
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	OnPanic      *bool  `json:"onPanic,omitempty" yaml:"onPanic,omitempty"`
	OnExit       *bool  `json:"onExit,omitempty" yaml:"onExit,omitempty"`
	Sound        bool   `json:"sound,omitempty" yaml:"sound,omitempty"`
	PanicMessage string `json:"panicMessage,omitempty" yaml:"panicMessage,omitempty"`
}

// IsEnabled reports whether notifications are on at all.
func (n *NotificationConfig) IsEnabled() bool {
	return n != nil && n.Enabled != nil && *n.Enabled
}

// NotifyOnPanic defaults to true once notifications are enabled.
func (n *NotificationConfig) NotifyOnPanic() bool {
	return n.IsEnabled() && (n.OnPanic == nil || *n.OnPanic)
}

// NotifyOnExit defaults to false.
func (n *NotificationConfig) NotifyOnExit() bool {
	return n.IsEnabled() && n.OnExit != nil && *n.OnExit
}

// ApplyDefaults fills zero fields with their defaults.
func (c *KernelConfig) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.MaxThreads == 0 {
		c.MaxThreads = DefaultMaxThreads
	}
	if c.StackSize == 0 {
		c.StackSize = DefaultStackSize
	}
	if c.HeapLimit == 0 {
		c.HeapLimit = DefaultHeapLimit
	}
	if c.Scheduler == "" {
		c.Scheduler = SchedulerFIFO
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeoutMs
	}
	if c.ProgramDir == "" {
		c.ProgramDir = DefaultProgramDir
	}
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}
}

// QuantumDuration is the timer interrupt interval, 0 when preemption is off.
func (c *KernelConfig) QuantumDuration() time.Duration {
	return time.Duration(c.Quantum) * time.Millisecond
}

// IdleTimeoutDuration is how long the idle loop waits before declaring deadlock.
func (c *KernelConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Millisecond
}

// ParseSchedulerPolicy accepts policy names case-insensitively.
func ParseSchedulerPolicy(s string) (SchedulerPolicy, error) {
	switch p := SchedulerPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SchedulerFIFO, SchedulerRandom:
		return p, nil
	case "":
		return SchedulerFIFO, nil
	default:
		return "", fmt.Errorf("unknown scheduler policy %q", s)
	}
}

// ValidLogLevel reports whether l is one of the known levels.
func ValidLogLevel(l LogLevel) bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}
