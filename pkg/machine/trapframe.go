// Package machine models the simulated processor: registers, the trap frame,
// the user-mode interpreter, context switching between kernel threads and the
// timer.
package machine

import "strings"

// Reg is a general purpose register number.
type Reg uint8

// NumRegs is the size of the register file.
const NumRegs = 32

// MIPS register names.
const (
	Zero Reg = iota
	AT
	V0
	V1
	A0
	A1
	A2
	A3
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	T8
	T9
	K0
	K1
	GP
	SP
	FP
	RA
)

var regNames = [NumRegs]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

func (r Reg) String() string {
	if int(r) < NumRegs {
		return "$" + regNames[r]
	}
	return "$?"
}

// RegByName resolves "v0", "$v0" or "$2".
func RegByName(name string) (Reg, bool) {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "$")
	for i, n := range regNames {
		if n == name {
			return Reg(i), true
		}
	}
	if name == "s8" {
		return FP, true
	}
	var n int
	for _, c := range name {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n >= NumRegs {
			return 0, false
		}
	}
	if name == "" {
		return 0, false
	}
	return Reg(n), true
}

// WordSize is the size of a register and of an instruction in bytes.
const WordSize = 4

// TrapframeSize is what a saved trap frame costs on the kernel heap.
const TrapframeSize = (NumRegs + 1) * WordSize

// Trapframe is the user register state saved on entry to the kernel.
type Trapframe struct {
	Regs [NumRegs]int32
	EPC  int32
}

// Copy returns an independent copy of tf.
func (tf *Trapframe) Copy() *Trapframe {
	c := *tf
	return &c
}

// Get reads a register. $zero always reads 0.
func (tf *Trapframe) Get(r Reg) int32 {
	if r == Zero {
		return 0
	}
	return tf.Regs[r]
}

// Set writes a register. Writes to $zero are discarded.
func (tf *Trapframe) Set(r Reg, v int32) {
	if r != Zero {
		tf.Regs[r] = v
	}
}
