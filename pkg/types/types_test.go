package types_test

import (
	"testing"
	"time"

	"github.com/kestrel-os/kestrel/pkg/types"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &types.KernelConfig{StackSize: 8192}
	cfg.ApplyDefaults()

	if cfg.Version != "1.0" {
		t.Errorf("expected version 1.0, got %s", cfg.Version)
	}
	if cfg.MaxThreads != types.DefaultMaxThreads {
		t.Errorf("expected default max threads, got %d", cfg.MaxThreads)
	}
	if cfg.StackSize != 8192 {
		t.Errorf("explicit stack size overwritten: %d", cfg.StackSize)
	}
	if cfg.Scheduler != types.SchedulerFIFO {
		t.Errorf("expected fifo scheduler, got %s", cfg.Scheduler)
	}
	if cfg.QuantumDuration() != 0 {
		t.Errorf("clock should be off by default, got %v", cfg.QuantumDuration())
	}
	if cfg.IdleTimeoutDuration() != 5*time.Second {
		t.Errorf("unexpected idle timeout %v", cfg.IdleTimeoutDuration())
	}
}

func TestParseSchedulerPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    types.SchedulerPolicy
		wantErr bool
	}{
		{"fifo", types.SchedulerFIFO, false},
		{"RANDOM", types.SchedulerRandom, false},
		{"", types.SchedulerFIFO, false},
		{"lottery", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := types.ParseSchedulerPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotificationConfig(t *testing.T) {
	var nilCfg *types.NotificationConfig
	if nilCfg.IsEnabled() || nilCfg.NotifyOnPanic() {
		t.Error("nil config must be disabled")
	}

	on, off := true, false
	cfg := &types.NotificationConfig{Enabled: &on}
	if !cfg.NotifyOnPanic() {
		t.Error("panic notifications default on")
	}
	if cfg.NotifyOnExit() {
		t.Error("exit notifications default off")
	}

	cfg.OnPanic = &off
	cfg.OnExit = &on
	if cfg.NotifyOnPanic() || !cfg.NotifyOnExit() {
		t.Error("explicit settings not honoured")
	}
}
