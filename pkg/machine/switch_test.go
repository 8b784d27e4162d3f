package machine_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrel-os/kestrel/pkg/machine"
)

func TestGoSwitcher_PassesBaton(t *testing.T) {
	sw := machine.NewGoSwitcher()
	boot := sw.Bootstrap()

	var trace []string
	var a *machine.PCB
	a = sw.Start(func() {
		trace = append(trace, "a1")
		sw.Switch(a, boot)
		trace = append(trace, "a2")
		sw.Switch(a, boot)
		trace = append(trace, "never")
	})

	sw.Switch(boot, a)
	trace = append(trace, "boot")
	sw.Switch(boot, a)
	sw.Retire(a)

	if got := strings.Join(trace, " "); got != "a1 boot a2" {
		t.Errorf("trace = %q", got)
	}
}

func TestGoSwitcher_SwitchToSelf(t *testing.T) {
	sw := machine.NewGoSwitcher()
	boot := sw.Bootstrap()
	sw.Switch(boot, boot)
}

func TestGoSwitcher_RetiredContextExits(t *testing.T) {
	sw := machine.NewGoSwitcher()
	boot := sw.Bootstrap()

	exited := make(chan struct{})
	var resumed atomic.Bool
	var a *machine.PCB
	a = sw.Start(func() {
		defer close(exited)
		sw.Switch(a, boot)
		resumed.Store(true)
	})

	sw.Switch(boot, a)
	sw.Retire(a)
	sw.Retire(a)

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("retired context did not exit")
	}
	if resumed.Load() {
		t.Error("retired context ran again")
	}
}

func TestGoSwitcher_HaltReleasesUnstarted(t *testing.T) {
	sw := machine.NewGoSwitcher()
	var ran atomic.Bool
	sw.Start(func() { ran.Store(true) })

	sw.Halt()
	sw.Halt()
	select {
	case <-sw.Halted():
	default:
		t.Fatal("Halted not closed")
	}
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Error("entry ran after halt")
	}
}

func TestClock_Ticks(t *testing.T) {
	var ticks atomic.Int32
	c := machine.NewClock(time.Millisecond, func() { ticks.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ticks.Load() == 0 {
		t.Error("clock never ticked")
	}
}

func TestClock_ZeroIntervalNeverTicks(t *testing.T) {
	var ticks atomic.Int32
	c := machine.NewClock(0, func() { ticks.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ticks.Load() != 0 {
		t.Errorf("ticked %d times", ticks.Load())
	}
}
