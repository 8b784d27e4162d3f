package logger_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	kcontext "github.com/kestrel-os/kestrel/pkg/context"
	"github.com/kestrel-os/kestrel/pkg/logger"
)

func TestCreateLogger(t *testing.T) {
	log := logger.CreateLogger("", "info")
	if log == nil {
		t.Fatal("expected logger to be created")
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.CreateLoggerWithOutput(tt.level, &buf)

			log.Debug("debug line")
			log.Info("info line")
			log.Error("error line")

			output := buf.String()
			if got := strings.Contains(output, "debug line"); got != tt.wantDebug {
				t.Errorf("debug line present = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(output, "info line"); got != tt.wantInfo {
				t.Errorf("info line present = %v, want %v", got, tt.wantInfo)
			}
			if !strings.Contains(output, "error line") {
				t.Error("error line should always be logged")
			}
		})
	}
}

func TestLogger_WithSubsystem(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.WithSubsystem("thread").Info("context switch")
	log.WithSubsystem("proc").Info("fork")

	output := buf.String()
	if !strings.Contains(output, "[thread] context switch") {
		t.Errorf("expected thread subsystem prefix, got %q", output)
	}
	if !strings.Contains(output, "[proc] fork") {
		t.Errorf("expected proc subsystem prefix, got %q", output)
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Info("exit",
		logger.WithField("pid", 7),
		logger.WithField("code", 3),
		logger.WithError(errors.New("boom")),
	)

	output := buf.String()
	if !strings.Contains(output, "{code=3, error=boom, pid=7}") {
		t.Errorf("expected sorted fields, got %q", output)
	}
}

func TestLogger_Success(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Success("halted cleanly")

	if !strings.Contains(buf.String(), "halted cleanly") {
		t.Error("expected success message in log output")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)
	sub := log.WithSubsystem("sched")

	sub.Debug("hidden")
	logger.SetLevel(log, "debug")
	sub.Debug("visible")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("debug output before SetLevel should be suppressed")
	}
	if !strings.Contains(output, "visible") {
		t.Error("SetLevel should apply to derived loggers")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := logger.CreateLoggerWithOutput("info", &buf)

	ctx := kcontext.WithBootID(context.Background(), "boot_test")
	ctx = kcontext.WithOperation(ctx, "waitpid")
	log := logger.WithContext(ctx, base).WithSubsystem("proc")

	log.Info("reaped")

	output := buf.String()
	for _, want := range []string{"[proc] reaped", "boot=boot_test", "op=waitpid"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in %q", want, output)
		}
	}
}

func TestDiscard(t *testing.T) {
	log := logger.Discard()
	log.Error("nowhere")
	log.WithSubsystem("x").Info("nowhere")
}
