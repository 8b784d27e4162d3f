// Package syscall decodes traps from user mode and dispatches them to the
// process layer.
//
// The calling convention: the call number is in v0 and up to four
// arguments in a0-a3. On return v0 holds the result and a3 is 0, or v0
// holds the error number and a3 is 1. The program counter is advanced past
// the syscall instruction either way.
package syscall

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kestrel-os/kestrel/pkg/callno"
	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/proc"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/vfs"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

// MaxWrite caps a single write call.
const MaxWrite = 4096

// Dispatcher is the machine.Handler for user processes.
type Dispatcher struct {
	procs   *proc.Manager
	k       *thread.Kernel
	console io.Writer
	log     logger.Logger
	calls   map[int]int
}

// New creates a dispatcher and installs it as the process manager's trap handler.
func New(procs *proc.Manager, console io.Writer, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	if console == nil {
		console = io.Discard
	}
	d := &Dispatcher{
		procs:   procs,
		k:       procs.Kernel(),
		console: console,
		log:     log.WithSubsystem("syscall"),
		calls:   make(map[int]int),
	}
	procs.SetHandler(d)
	return d
}

// Counts returns how many times each call number was dispatched.
func (d *Dispatcher) Counts() map[int]int {
	out := make(map[int]int, len(d.calls))
	for n, c := range d.calls {
		out[n] = c
	}
	return out
}

// Syscall implements machine.Handler.
func (d *Dispatcher) Syscall(tf *machine.Trapframe) {
	num := int(tf.Get(machine.V0))
	a0, a1, a2 := tf.Get(machine.A0), tf.Get(machine.A1), tf.Get(machine.A2)
	d.calls[num]++

	var (
		ret int32
		err error
	)
	switch num {
	case callno.SysExit:
		d.procs.Exit(int(a0))
	case callno.SysExecv:
		err = d.execv(a0, a1)
	case callno.SysFork:
		var pid thread.Pid
		pid, err = d.procs.Fork(tf)
		ret = int32(pid)
	case callno.SysWaitpid:
		ret, err = d.waitpid(a0, a1, a2)
	case callno.SysWrite:
		ret, err = d.write(a0, a1, a2)
	case callno.SysReboot:
		err = d.reboot(a0)
	case callno.SysGetpid:
		ret = int32(d.procs.Getpid())
	default:
		err = fmt.Errorf("call %d: %w", num, errno.ENOSYS)
	}

	if err != nil {
		e := errno.FromError(err)
		d.log.Debug("syscall failed",
			logger.WithField("call", callName(num)),
			logger.WithField("pid", d.procs.Getpid()),
			logger.WithField("errno", int(e)),
			logger.WithError(err))
		tf.Set(machine.V0, int32(e))
		tf.Set(machine.A3, 1)
	} else {
		tf.Set(machine.V0, ret)
		tf.Set(machine.A3, 0)
	}
	tf.EPC += machine.WordSize
}

// Fault implements machine.Handler: the faulting process is killed.
func (d *Dispatcher) Fault(tf *machine.Trapframe, err error) {
	var f *machine.Fault
	fields := []logger.Field{
		logger.WithField("pid", d.procs.Getpid()),
		logger.WithField("pc", fmt.Sprintf("%#x", tf.EPC)),
		logger.WithError(err),
	}
	if errors.As(err, &f) {
		fields = append(fields, logger.WithField("instr", f.Instr.String()))
	}
	d.log.Warn("user fault", fields...)
	d.procs.Exit(proc.ExitFault)
}

// Preempt implements machine.Handler.
func (d *Dispatcher) Preempt() {
	d.k.Checkpoint()
}

func (d *Dispatcher) addressSpace() (*vm.AddressSpace, error) {
	as := d.k.Current().AddressSpace()
	if as == nil {
		return nil, errno.EFAULT
	}
	return as, nil
}

// execv copies in every user string before the process layer touches the
// current program.
func (d *Dispatcher) execv(pathPtr, argvPtr int32) error {
	as, err := d.addressSpace()
	if err != nil {
		return err
	}
	path, err := as.CopyInString(pathPtr, vfs.MaxPath)
	if err != nil {
		return fmt.Errorf("execv: path: %w", err)
	}

	var args []string
	if argvPtr != 0 {
		total := 0
		for i := 0; ; i++ {
			if i > proc.MaxArgs {
				return fmt.Errorf("execv: %w", errno.E2BIG)
			}
			ptr, err := as.CopyInWord(argvPtr + int32(i*machine.WordSize))
			if err != nil {
				return fmt.Errorf("execv: argv[%d]: %w", i, err)
			}
			if ptr == 0 {
				break
			}
			arg, err := as.CopyInString(ptr, proc.ArgMax-total)
			if err != nil {
				if errors.Is(err, errno.ENAMETOOLONG) {
					return fmt.Errorf("execv: %w", errno.E2BIG)
				}
				return fmt.Errorf("execv: argv[%d]: %w", i, err)
			}
			total += len(arg) + 1
			args = append(args, arg)
		}
	}
	if len(args) == 0 {
		args = []string{path}
	}
	return d.procs.Exec(path, args)
}

func (d *Dispatcher) waitpid(pid, statusPtr, options int32) (int32, error) {
	var as *vm.AddressSpace
	if statusPtr != 0 {
		var err error
		if as, err = d.addressSpace(); err != nil {
			return 0, err
		}
		if err := as.CheckRange(statusPtr, machine.WordSize); err != nil {
			return 0, fmt.Errorf("waitpid: status: %w", err)
		}
	}

	code, err := d.procs.Wait(thread.Pid(pid), int(options))
	if err != nil {
		return 0, err
	}
	if as != nil {
		var buf [machine.WordSize]byte
		binary.BigEndian.PutUint32(buf[:], uint32(int32(code)))
		if err := as.CopyOut(statusPtr, buf[:]); err != nil {
			return 0, fmt.Errorf("waitpid: status: %w", err)
		}
	}
	return pid, nil
}

func (d *Dispatcher) write(fd, buf, n int32) (int32, error) {
	if fd != 1 && fd != 2 {
		return 0, fmt.Errorf("write: fd %d: %w", fd, errno.EBADF)
	}
	if n < 0 {
		return 0, fmt.Errorf("write: length %d: %w", n, errno.EINVAL)
	}
	if n > MaxWrite {
		n = MaxWrite
	}
	as, err := d.addressSpace()
	if err != nil {
		return 0, err
	}
	data, err := as.CopyIn(buf, int(n))
	if err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	written, err := d.console.Write(data)
	if err != nil {
		return int32(written), fmt.Errorf("write: %v: %w", err, errno.EIO)
	}
	return int32(written), nil
}

func (d *Dispatcher) reboot(code int32) error {
	switch code {
	case callno.RBReboot, callno.RBHalt, callno.RBPoweroff:
	default:
		return fmt.Errorf("reboot: code %d: %w", code, errno.EINVAL)
	}
	d.log.Info("reboot requested", logger.WithField("pid", d.procs.Getpid()), logger.WithField("code", int(code)))
	d.k.Shutdown()
	return nil
}

func callName(n int) string {
	if s := callno.Name(n); s != "" {
		return s
	}
	return fmt.Sprintf("#%d", n)
}
