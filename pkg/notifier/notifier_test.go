package notifier_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/notifier"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/types"
)

type sent struct{ title, message string }

func newNotifier(cfg *types.NotificationConfig) (*notifier.HaltNotifier, *[]sent) {
	var out []sent
	n := notifier.New(cfg, logger.CreateLogger("", "info"))
	n.SetSender(func(title, message string) error {
		out = append(out, sent{title, message})
		return nil
	})
	return n, &out
}

func on(b bool) *bool { return &b }

func TestNotifyHalt_Panic(t *testing.T) {
	n, out := newNotifier(&types.NotificationConfig{Enabled: on(true), PanicMessage: "lab 2"})
	err := &thread.PanicError{Message: "lock not held by caller", Pid: 3, Thread: "worker"}

	if !n.NotifyHalt(err, 2*time.Second) {
		t.Fatal("panic not reported")
	}
	if len(*out) != 1 || (*out)[0].title != "Kernel panic" {
		t.Fatalf("sent %v", *out)
	}
	if msg := (*out)[0].message; msg != "lab 2: lock not held by caller (pid 3)" {
		t.Errorf("message = %q", msg)
	}
}

func TestNotifyHalt_Policy(t *testing.T) {
	panicErr := &thread.PanicError{Message: "boom"}
	tests := []struct {
		name string
		cfg  *types.NotificationConfig
		err  error
		want bool
	}{
		{"no config", nil, panicErr, false},
		{"disabled", &types.NotificationConfig{Enabled: on(false)}, panicErr, false},
		{"panic by default", &types.NotificationConfig{Enabled: on(true)}, panicErr, true},
		{"panic turned off", &types.NotificationConfig{Enabled: on(true), OnPanic: on(false)}, panicErr, false},
		{"clean halt off by default", &types.NotificationConfig{Enabled: on(true)}, nil, false},
		{"clean halt on", &types.NotificationConfig{Enabled: on(true), OnExit: on(true)}, nil, true},
		{"cancelled", &types.NotificationConfig{Enabled: on(true), OnExit: on(true)}, context.Canceled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, out := newNotifier(tt.cfg)
			if got := n.NotifyHalt(tt.err, 1500*time.Millisecond); got != tt.want {
				t.Errorf("NotifyHalt = %v, want %v", got, tt.want)
			}
			if (len(*out) == 1) != tt.want {
				t.Errorf("sent %v", *out)
			}
		})
	}
}

func TestNotifyHalt_Uptime(t *testing.T) {
	n, out := newNotifier(&types.NotificationConfig{Enabled: on(true), OnExit: on(true)})
	n.NotifyHalt(nil, 90*time.Second)
	n.NotifyHalt(nil, 250*time.Millisecond)
	if len(*out) != 2 {
		t.Fatalf("sent %v", *out)
	}
	if !strings.HasSuffix((*out)[0].message, "1m30s") || !strings.HasSuffix((*out)[1].message, "250ms") {
		t.Errorf("messages = %q, %q", (*out)[0].message, (*out)[1].message)
	}
}

func TestNotifyProgramExit(t *testing.T) {
	n, out := newNotifier(&types.NotificationConfig{Enabled: on(true), OnExit: on(true)})
	if !n.NotifyProgramExit("/hello.kx.yaml", 0) {
		t.Fatal("exit not reported")
	}
	if (*out)[0].message != "/hello.kx.yaml exited with 0" {
		t.Errorf("message = %q", (*out)[0].message)
	}
}

func TestNotify_SenderFailureFallsBackToLog(t *testing.T) {
	n := notifier.New(&types.NotificationConfig{Enabled: on(true)}, nil)
	n.SetSender(func(title, message string) error { return errors.New("no notification daemon") })
	if n.NotifyHalt(&thread.PanicError{Message: "x"}, 0) {
		t.Error("failed delivery reported as sent")
	}
}
