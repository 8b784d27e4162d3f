package machine

import "fmt"

// Op is an instruction opcode.
type Op uint8

const (
	OpNop Op = iota
	OpLi
	OpMove
	OpAdd
	OpAddi
	OpSub
	OpSlt
	OpLw
	OpSw
	OpLb
	OpSb
	OpBeq
	OpBne
	OpJ
	OpSyscall
	OpBreak
)

var opNames = map[Op]string{
	OpNop:     "nop",
	OpLi:      "li",
	OpMove:    "move",
	OpAdd:     "add",
	OpAddi:    "addi",
	OpSub:     "sub",
	OpSlt:     "slt",
	OpLw:      "lw",
	OpSw:      "sw",
	OpLb:      "lb",
	OpSb:      "sb",
	OpBeq:     "beq",
	OpBne:     "bne",
	OpJ:       "j",
	OpSyscall: "syscall",
	OpBreak:   "break",
}

// OpByName maps a mnemonic to its opcode.
func OpByName(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return 0, false
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Instr is a decoded instruction. Field use depends on Op:
//
//	li    Rd, Imm
//	move  Rd, Rs
//	add   Rd, Rs, Rt     (sub, slt alike)
//	addi  Rd, Rs, Imm
//	lw    Rd, Imm(Rs)    (lb alike)
//	sw    Rt, Imm(Rs)    (sb alike)
//	beq   Rs, Rt, Imm    (bne alike; Imm is the target address)
//	j     Imm
type Instr struct {
	Op  Op
	Rd  Reg
	Rs  Reg
	Rt  Reg
	Imm int32
}

func (in Instr) String() string {
	switch in.Op {
	case OpNop, OpSyscall, OpBreak:
		return in.Op.String()
	case OpLi:
		return fmt.Sprintf("li %s, %d", in.Rd, in.Imm)
	case OpMove:
		return fmt.Sprintf("move %s, %s", in.Rd, in.Rs)
	case OpAdd, OpSub, OpSlt:
		return fmt.Sprintf("%s %s, %s, %s", in.Op, in.Rd, in.Rs, in.Rt)
	case OpAddi:
		return fmt.Sprintf("addi %s, %s, %d", in.Rd, in.Rs, in.Imm)
	case OpLw, OpLb:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, in.Rd, in.Imm, in.Rs)
	case OpSw, OpSb:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, in.Rt, in.Imm, in.Rs)
	case OpBeq, OpBne:
		return fmt.Sprintf("%s %s, %s, %#x", in.Op, in.Rs, in.Rt, in.Imm)
	case OpJ:
		return fmt.Sprintf("j %#x", in.Imm)
	}
	return in.Op.String()
}
