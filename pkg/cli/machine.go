package cli

import (
	"context"
	"time"

	kcontext "github.com/kestrel-os/kestrel/pkg/context"
	"github.com/kestrel-os/kestrel/pkg/config"
	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/notifier"
	"github.com/kestrel-os/kestrel/pkg/shutdown"
	"github.com/kestrel-os/kestrel/pkg/system"
	"github.com/kestrel-os/kestrel/pkg/types"
)

// machine is a booted system plus the host services that run beside it.
type machine struct {
	sys      *system.System
	cfg      *types.KernelConfig
	log      logger.Logger
	notifier *notifier.HaltNotifier
	signals  *shutdown.Manager
}

// newMachine builds a system from the effective configuration and attaches
// signal handling and, when a config file is in use, hot reload.
func (c *CLI) newMachine(ctx context.Context, heartbeat time.Duration) (*machine, context.Context, error) {
	cfg, err := c.kernelConfig()
	if err != nil {
		return nil, ctx, err
	}

	ctx = kcontext.EnrichContext(ctx)
	log := c.logger
	if cfg.LogFile != "" {
		log = logger.CreateLogger(cfg.LogFile, string(cfg.LogLevel))
	} else {
		logger.SetLevel(log, string(cfg.LogLevel))
	}
	log = logger.WithContext(ctx, log)

	sys, err := system.New(system.Options{Config: cfg, Console: c.output, Logger: log})
	if err != nil {
		return nil, ctx, err
	}

	m := &machine{
		sys:      sys,
		cfg:      sys.Config(),
		log:      log,
		notifier: notifier.New(cfg.Notifications, log),
		signals:  shutdown.NewManager(log),
	}

	k := sys.Kernel()
	if heartbeat > 0 {
		m.signals.SetHeartbeat(heartbeat, func() {
			// Kernel state is only read on the kernel CPU.
			_ = k.Post(func() {
				st := k.Stats()
				log.Info("heartbeat",
					logger.WithField("live", k.LiveCount()),
					logger.WithField("forks", st.Forks),
					logger.WithField("exits", st.Exits),
					logger.WithField("switches", st.Switches),
					logger.WithField("heap", sys.Heap().Used()))
			})
		})
	}
	sys.AddService("signals", m.signals.Run)

	if p := c.configPath(); p != "" {
		rm := config.NewReloadManager(p, log)
		rm.AddCallback(func(next *types.KernelConfig, err error) {
			if err != nil {
				return
			}
			logger.SetLevel(log, string(next.LogLevel))
			_ = k.Post(func() {
				if err := k.SetMaxThreads(next.MaxThreads); err != nil {
					log.Warn("cannot apply thread ceiling", logger.WithField("maxThreads", next.MaxThreads), logger.WithError(err))
				}
			})
		})
		sys.AddService("config", rm.Run)
	}

	return m, kcontext.WithOperation(ctx, "boot"), nil
}

// halted reports the end of a run through the notifier.
func (m *machine) halted(ctx context.Context, err error) {
	m.notifier.NotifyHalt(err, kcontext.GetDuration(ctx))
	if err != nil {
		m.log.Error("machine stopped", logger.WithError(err))
		return
	}
	m.log.Debug("machine halted", logger.WithField("uptime", kcontext.GetDuration(ctx).String()))
}
