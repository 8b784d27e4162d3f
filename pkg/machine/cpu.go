package machine

import (
	"errors"
	"fmt"
)

var (
	// ErrBreakpoint is raised by the break instruction.
	ErrBreakpoint = errors.New("breakpoint")
	// ErrIllegalInstruction is raised for opcodes the processor does not know.
	ErrIllegalInstruction = errors.New("illegal instruction")
)

// Memory is the user address space as seen by the processor.
type Memory interface {
	Fetch(pc int32) (Instr, error)
	LoadWord(addr int32) (int32, error)
	StoreWord(addr int32, v int32) error
	LoadByte(addr int32) (byte, error)
	StoreByte(addr int32, v byte) error
}

// Handler receives traps from user mode.
type Handler interface {
	// Syscall handles a syscall trap. It must advance tf.EPC past the
	// instruction unless it never returns.
	Syscall(tf *Trapframe)
	// Fault handles an exception the user program cannot recover from.
	Fault(tf *Trapframe, err error)
	// Preempt is called before every user instruction; interrupts are taken here.
	Preempt()
}

// Fault describes a user-mode exception.
type Fault struct {
	EPC   int32
	Instr Instr
	Err   error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at pc %#x (%s): %v", f.EPC, f.Instr, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// EnterUserMode runs user code from tf.EPC until a fault is delivered and the
// handler returns from it. Exiting processes never return from the handler,
// so in the kernel this call does not return.
func EnterUserMode(tf *Trapframe, mem Memory, h Handler) {
	for {
		h.Preempt()
		if err := Step(tf, mem, h); err != nil {
			h.Fault(tf, err)
			return
		}
	}
}

// Step executes one instruction.
func Step(tf *Trapframe, mem Memory, h Handler) error {
	pc := tf.EPC
	in, err := mem.Fetch(pc)
	if err != nil {
		return &Fault{EPC: pc, Err: err}
	}

	next := pc + WordSize
	switch in.Op {
	case OpNop:
	case OpLi:
		tf.Set(in.Rd, in.Imm)
	case OpMove:
		tf.Set(in.Rd, tf.Get(in.Rs))
	case OpAdd:
		tf.Set(in.Rd, tf.Get(in.Rs)+tf.Get(in.Rt))
	case OpAddi:
		tf.Set(in.Rd, tf.Get(in.Rs)+in.Imm)
	case OpSub:
		tf.Set(in.Rd, tf.Get(in.Rs)-tf.Get(in.Rt))
	case OpSlt:
		if tf.Get(in.Rs) < tf.Get(in.Rt) {
			tf.Set(in.Rd, 1)
		} else {
			tf.Set(in.Rd, 0)
		}
	case OpLw:
		v, err := mem.LoadWord(tf.Get(in.Rs) + in.Imm)
		if err != nil {
			return &Fault{EPC: pc, Instr: in, Err: err}
		}
		tf.Set(in.Rd, v)
	case OpLb:
		v, err := mem.LoadByte(tf.Get(in.Rs) + in.Imm)
		if err != nil {
			return &Fault{EPC: pc, Instr: in, Err: err}
		}
		tf.Set(in.Rd, int32(int8(v)))
	case OpSw:
		if err := mem.StoreWord(tf.Get(in.Rs)+in.Imm, tf.Get(in.Rt)); err != nil {
			return &Fault{EPC: pc, Instr: in, Err: err}
		}
	case OpSb:
		if err := mem.StoreByte(tf.Get(in.Rs)+in.Imm, byte(tf.Get(in.Rt))); err != nil {
			return &Fault{EPC: pc, Instr: in, Err: err}
		}
	case OpBeq:
		if tf.Get(in.Rs) == tf.Get(in.Rt) {
			next = in.Imm
		}
	case OpBne:
		if tf.Get(in.Rs) != tf.Get(in.Rt) {
			next = in.Imm
		}
	case OpJ:
		next = in.Imm
	case OpSyscall:
		// The handler owns EPC from here on.
		h.Syscall(tf)
		return nil
	case OpBreak:
		return &Fault{EPC: pc, Instr: in, Err: ErrBreakpoint}
	default:
		return &Fault{EPC: pc, Instr: in, Err: ErrIllegalInstruction}
	}

	tf.EPC = next
	return nil
}
