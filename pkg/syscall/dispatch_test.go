package syscall_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kestrel-os/kestrel/pkg/callno"
	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/kmem"
	"github.com/kestrel-os/kestrel/pkg/proc"
	"github.com/kestrel-os/kestrel/pkg/sched"
	"github.com/kestrel-os/kestrel/pkg/syscall"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/vfs"
)

type result struct {
	code    int
	exited  bool
	runErr  error
	console string
	calls   map[int]int
}

func runUser(t *testing.T, src string, console io.Writer) result {
	t.Helper()
	fs := vfs.NewMemFS()
	fs.AddFile("/t.kx.yaml", []byte(src))

	k, err := thread.New(thread.Config{
		Scheduler:   sched.NewFIFO(),
		Heap:        kmem.New(1 << 20),
		StackSize:   256,
		MaxThreads:  8,
		IdleTimeout: 2 * time.Second,
		Root:        fs.Root(),
	})
	if err != nil {
		t.Fatalf("new kernel: %v", err)
	}
	procs := proc.New(k, fs, nil)

	var buf bytes.Buffer
	if console == nil {
		console = &buf
	}
	d := syscall.New(procs, console, nil)

	var res result
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res.runErr = k.Run(ctx, func() {
		pid, err := procs.Spawn("/t.kx.yaml", nil)
		if err != nil {
			t.Errorf("spawn: %v", err)
			return
		}
		res.code, err = procs.Wait(pid, 0)
		res.exited = err == nil
	})
	res.console = buf.String()
	res.calls = d.Counts()
	return res
}

func TestSyscall_CountsCalls(t *testing.T) {
	res := runUser(t, `
data:
  - label: msg
    asciiz: "ok\n"
text: |
  main:
      li   v0, SYS_getpid
      syscall
      li   v0, SYS_getpid
      syscall
      li   v0, SYS_write
      li   a0, STDERR_FILENO
      la   a1, msg
      li   a2, 3
      syscall
      move a0, v0
      li   v0, SYS__exit
      syscall
`, nil)

	if res.runErr != nil || !res.exited {
		t.Fatalf("run: %v, exited %v", res.runErr, res.exited)
	}
	if res.code != 3 {
		t.Errorf("write returned %d", res.code)
	}
	if res.console != "ok\n" {
		t.Errorf("console = %q", res.console)
	}
	want := map[int]int{callno.SysGetpid: 2, callno.SysWrite: 1, callno.SysExit: 1}
	for n, c := range want {
		if res.calls[n] != c {
			t.Errorf("%s dispatched %d times, want %d", callno.Name(n), res.calls[n], c)
		}
	}
}

func TestSyscall_ErrorConvention(t *testing.T) {
	tests := []struct {
		name string
		call string
		want errno.Errno
	}{
		{"unknown call", "li v0, 99", errno.ENOSYS},
		{"unimplemented call", "li v0, SYS_sbrk", errno.ENOSYS},
		{"negative write", "li v0, SYS_write\n    li a0, 1\n    li a1, 0\n    li a2, -1", errno.EINVAL},
		{"execv bad path", "li v0, SYS_execv\n    li a0, 16\n    li a1, 0", errno.EFAULT},
		{"execv missing", "li v0, SYS_execv\n    la a0, missing\n    li a1, 0", errno.ENOENT},
		{"waitpid options", "li v0, SYS_waitpid\n    li a0, 1\n    li a1, 0\n    li a2, 1", errno.EINVAL},
		{"reboot bad code", "li v0, SYS_reboot\n    li a0, 7", errno.EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Exits with errno when a3 is set and with 255 otherwise.
			src := `
data:
  - label: missing
    asciiz: "/missing.kx.yaml"
text: |
  main:
    ` + tt.call + `
    syscall
    beqz a3, ok
    move a0, v0
    li   v0, SYS__exit
    syscall
  ok:
    li   v0, SYS__exit
    li   a0, 255
    syscall
`
			res := runUser(t, src, nil)
			if res.runErr != nil || !res.exited {
				t.Fatalf("run: %v, exited %v", res.runErr, res.exited)
			}
			if res.code != int(tt.want) {
				t.Errorf("exit %d, want errno %d (%v)", res.code, int(tt.want), tt.want)
			}
		})
	}
}

func TestSyscall_WriteIsCapped(t *testing.T) {
	res := runUser(t, `
data:
  - label: buf
    space: 5000
text: |
  main:
      li   v0, SYS_write
      li   a0, STDOUT_FILENO
      la   a1, buf
      li   a2, 5000
      syscall
      move a0, v0
      li   v0, SYS__exit
      syscall
`, nil)

	if res.code != syscall.MaxWrite || len(res.console) != syscall.MaxWrite {
		t.Errorf("write returned %d and wrote %d bytes", res.code, len(res.console))
	}
}

type brokenConsole struct{}

func (brokenConsole) Write(p []byte) (int, error) { return 0, errors.New("device gone") }

func TestSyscall_ConsoleFailureIsEIO(t *testing.T) {
	res := runUser(t, `
data:
  - label: msg
    asciiz: "x"
text: |
  main:
      li   v0, SYS_write
      li   a0, STDOUT_FILENO
      la   a1, msg
      li   a2, 1
      syscall
      move a0, v0
      li   v0, SYS__exit
      syscall
`, brokenConsole{})

	if res.code != int(errno.EIO) {
		t.Errorf("exit %d, want EIO", res.code)
	}
}

func TestSyscall_WaitpidBadStatusKeepsChild(t *testing.T) {
	res := runUser(t, `
data:
  - label: status
    word: 0
text: |
  main:
      li   v0, SYS_fork
      syscall
      bnez a3, fail
      bnez v0, parent
      li   v0, SYS__exit
      li   a0, 4
      syscall
  parent:
      move s0, v0
      li   v0, SYS_waitpid
      move a0, s0
      li   a1, 16
      li   a2, 0
      syscall
      beqz a3, fail
      li   t0, EFAULT
      bne  v0, t0, fail
      li   v0, SYS_waitpid
      move a0, s0
      la   a1, status
      li   a2, 0
      syscall
      bnez a3, fail
      bne  v0, s0, fail
      lw   a0, status
      li   v0, SYS__exit
      syscall
  fail:
      li   v0, SYS__exit
      li   a0, 1
      syscall
`, nil)

	if res.runErr != nil {
		t.Fatalf("run: %v", res.runErr)
	}
	if res.code != 4 {
		t.Errorf("exit %d, want the child's 4", res.code)
	}
}

func TestSyscall_RebootHaltsKernel(t *testing.T) {
	res := runUser(t, `
data:
  - label: before
    asciiz: "going down\n"
  - label: after
    asciiz: "still here\n"
text: |
  main:
      li   v0, SYS_write
      li   a0, STDOUT_FILENO
      la   a1, before
      li   a2, 11
      syscall
      li   v0, SYS_reboot
      li   a0, RB_HALT
      syscall
      li   v0, SYS_write
      li   a0, STDOUT_FILENO
      la   a1, after
      li   a2, 11
      syscall
      li   v0, SYS__exit
      li   a0, 0
      syscall
`, nil)

	if res.runErr != nil {
		t.Fatalf("reboot should halt cleanly, got %v", res.runErr)
	}
	if res.exited {
		t.Error("program was reaped after the machine halted")
	}
	if strings.Contains(res.console, "still here") || res.console != "going down\n" {
		t.Errorf("console = %q", res.console)
	}
}

func TestSyscall_FaultKillsProcess(t *testing.T) {
	res := runUser(t, "text: |\n  main:\n      lw t0, 0(zero)\n", nil)
	if res.code != proc.ExitFault {
		t.Errorf("exit %d, want %d", res.code, proc.ExitFault)
	}
}
