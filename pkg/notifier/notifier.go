// Package notifier sends desktop notifications when a machine halts
package notifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/types"
)

// Sender delivers one notification.
type Sender func(title, message string) error

// HaltNotifier reports how a run of the machine ended
type HaltNotifier struct {
	cfg    *types.NotificationConfig
	logger logger.Logger
	send   Sender
	beep   func() error
}

// New creates a notifier. A nil config disables it.
func New(cfg *types.NotificationConfig, log logger.Logger) *HaltNotifier {
	if log == nil {
		log = logger.Discard()
	}
	return &HaltNotifier{
		cfg:    cfg,
		logger: log.WithSubsystem("notifier"),
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
}

// SetSender replaces the desktop backend.
func (n *HaltNotifier) SetSender(s Sender) {
	n.send = s
	n.beep = func() error { return nil }
}

// NotifyHalt reports the result of Kernel.Run. Kernel panics are reported
// when OnPanic is set, clean halts when OnExit is set. It reports whether a
// notification was sent.
func (n *HaltNotifier) NotifyHalt(err error, uptime time.Duration) bool {
	var pe *thread.PanicError
	switch {
	case errors.As(err, &pe):
		if !n.cfg.NotifyOnPanic() {
			return false
		}
		msg := pe.Message
		if n.cfg.PanicMessage != "" {
			msg = fmt.Sprintf("%s: %s", n.cfg.PanicMessage, pe.Message)
		}
		if pe.Pid != 0 {
			msg = fmt.Sprintf("%s (pid %d)", msg, pe.Pid)
		}
		return n.sendNotification("Kernel panic", msg, n.cfg.Sound)

	case err != nil:
		if !n.cfg.NotifyOnExit() {
			return false
		}
		return n.sendNotification("Machine stopped", fmt.Sprintf("%v after %s", err, formatDuration(uptime)), false)

	default:
		if !n.cfg.NotifyOnExit() {
			return false
		}
		return n.sendNotification("Machine halted", fmt.Sprintf("halted after %s", formatDuration(uptime)), false)
	}
}

// NotifyProgramExit reports a program's exit code when OnExit is set.
func (n *HaltNotifier) NotifyProgramExit(path string, code int) bool {
	if !n.cfg.NotifyOnExit() {
		return false
	}
	return n.sendNotification("Program exited", fmt.Sprintf("%s exited with %d", path, code), false)
}

func (n *HaltNotifier) sendNotification(title, message string, sound bool) bool {
	if err := n.send(title, message); err != nil {
		n.logger.Debug("failed to send notification", logger.WithError(err))
		// Fall back to the log so the event is not lost.
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
		return false
	}
	if sound {
		if err := n.beep(); err != nil {
			n.logger.Debug("failed to play sound", logger.WithError(err))
		}
	}
	return true
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
