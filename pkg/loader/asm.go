package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

// source line after comment stripping and label extraction
type asmLine struct {
	num      int
	mnemonic string
	operands []string
}

// assembler turns text assembly into instructions in two passes: labels
// first, then encoding against the completed symbol table.
type assembler struct {
	symbols map[string]int32
	lines   []asmLine
}

func (a *assembler) scan(text string) error {
	pc := vm.TextBase
	for i, raw := range strings.Split(text, "\n") {
		line := raw
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)

		for {
			idx := strings.IndexByte(line, ':')
			if idx < 0 {
				break
			}
			label := strings.TrimSpace(line[:idx])
			if !isIdent(label) {
				break
			}
			if _, dup := a.symbols[label]; dup {
				return fmt.Errorf("line %d: symbol %q redefined", i+1, label)
			}
			a.symbols[label] = pc
			line = strings.TrimSpace(line[idx+1:])
		}
		if line == "" {
			continue
		}

		mnemonic, rest := line, ""
		if idx := strings.IndexAny(line, " \t"); idx >= 0 {
			mnemonic, rest = line[:idx], line[idx+1:]
		}
		var ops []string
		if rest = strings.TrimSpace(rest); rest != "" {
			for _, op := range strings.Split(rest, ",") {
				ops = append(ops, strings.TrimSpace(op))
			}
		}
		a.lines = append(a.lines, asmLine{num: i + 1, mnemonic: strings.ToLower(mnemonic), operands: ops})
		pc += machine.WordSize
	}
	return nil
}

func (a *assembler) encode() ([]machine.Instr, error) {
	out := make([]machine.Instr, 0, len(a.lines))
	for _, l := range a.lines {
		in, err := a.encodeLine(l)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", l.num, l.mnemonic, err)
		}
		out = append(out, in)
	}
	return out, nil
}

func (a *assembler) encodeLine(l asmLine) (machine.Instr, error) {
	ops := l.operands
	want := func(n int) error {
		if len(ops) != n {
			return fmt.Errorf("want %d operands, have %d", n, len(ops))
		}
		return nil
	}

	switch l.mnemonic {
	case "nop", "syscall", "break":
		if err := want(0); err != nil {
			return machine.Instr{}, err
		}
		op, _ := machine.OpByName(l.mnemonic)
		return machine.Instr{Op: op}, nil

	case "li", "la":
		if err := want(2); err != nil {
			return machine.Instr{}, err
		}
		rd, err := reg(ops[0])
		if err != nil {
			return machine.Instr{}, err
		}
		imm, err := a.value(ops[1])
		if err != nil {
			return machine.Instr{}, err
		}
		return machine.Instr{Op: machine.OpLi, Rd: rd, Imm: imm}, nil

	case "move":
		if err := want(2); err != nil {
			return machine.Instr{}, err
		}
		rd, err := reg(ops[0])
		if err != nil {
			return machine.Instr{}, err
		}
		rs, err := reg(ops[1])
		if err != nil {
			return machine.Instr{}, err
		}
		return machine.Instr{Op: machine.OpMove, Rd: rd, Rs: rs}, nil

	case "add", "sub", "slt":
		if err := want(3); err != nil {
			return machine.Instr{}, err
		}
		var r [3]machine.Reg
		for i := range r {
			var err error
			if r[i], err = reg(ops[i]); err != nil {
				return machine.Instr{}, err
			}
		}
		op, _ := machine.OpByName(l.mnemonic)
		return machine.Instr{Op: op, Rd: r[0], Rs: r[1], Rt: r[2]}, nil

	case "addi", "subi":
		if err := want(3); err != nil {
			return machine.Instr{}, err
		}
		rd, err := reg(ops[0])
		if err != nil {
			return machine.Instr{}, err
		}
		rs, err := reg(ops[1])
		if err != nil {
			return machine.Instr{}, err
		}
		imm, err := a.value(ops[2])
		if err != nil {
			return machine.Instr{}, err
		}
		if l.mnemonic == "subi" {
			imm = -imm
		}
		return machine.Instr{Op: machine.OpAddi, Rd: rd, Rs: rs, Imm: imm}, nil

	case "lw", "lb", "sw", "sb":
		if err := want(2); err != nil {
			return machine.Instr{}, err
		}
		r, err := reg(ops[0])
		if err != nil {
			return machine.Instr{}, err
		}
		off, base, err := a.memOperand(ops[1])
		if err != nil {
			return machine.Instr{}, err
		}
		op, _ := machine.OpByName(l.mnemonic)
		in := machine.Instr{Op: op, Rs: base, Imm: off}
		if op == machine.OpLw || op == machine.OpLb {
			in.Rd = r
		} else {
			in.Rt = r
		}
		return in, nil

	case "beq", "bne":
		if err := want(3); err != nil {
			return machine.Instr{}, err
		}
		rs, err := reg(ops[0])
		if err != nil {
			return machine.Instr{}, err
		}
		rt, err := reg(ops[1])
		if err != nil {
			return machine.Instr{}, err
		}
		target, err := a.value(ops[2])
		if err != nil {
			return machine.Instr{}, err
		}
		op, _ := machine.OpByName(l.mnemonic)
		return machine.Instr{Op: op, Rs: rs, Rt: rt, Imm: target}, nil

	case "beqz", "bnez":
		if err := want(2); err != nil {
			return machine.Instr{}, err
		}
		rs, err := reg(ops[0])
		if err != nil {
			return machine.Instr{}, err
		}
		target, err := a.value(ops[1])
		if err != nil {
			return machine.Instr{}, err
		}
		op := machine.OpBeq
		if l.mnemonic == "bnez" {
			op = machine.OpBne
		}
		return machine.Instr{Op: op, Rs: rs, Rt: machine.Zero, Imm: target}, nil

	case "j", "b":
		if err := want(1); err != nil {
			return machine.Instr{}, err
		}
		target, err := a.value(ops[0])
		if err != nil {
			return machine.Instr{}, err
		}
		return machine.Instr{Op: machine.OpJ, Imm: target}, nil
	}
	return machine.Instr{}, fmt.Errorf("unknown mnemonic")
}

// memOperand parses "off(reg)", "(reg)" or a bare address.
func (a *assembler) memOperand(s string) (int32, machine.Reg, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		v, err := a.value(s)
		return v, machine.Zero, err
	}
	if !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("bad memory operand %q", s)
	}
	base, err := reg(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}
	var off int32
	if o := strings.TrimSpace(s[:open]); o != "" {
		if off, err = a.value(o); err != nil {
			return 0, 0, err
		}
	}
	return off, base, nil
}

// value resolves an integer literal, a character literal or a symbol,
// optionally followed by +n or -n.
func (a *assembler) value(s string) (int32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing operand")
	}
	if v, err := literal(s); err == nil {
		return v, nil
	}
	name, off := s, int32(0)
	if i := strings.LastIndexAny(s, "+-"); i > 0 {
		o, err := literal(strings.TrimSpace(s[i:]))
		if err == nil {
			name, off = strings.TrimSpace(s[:i]), o
		}
	}
	v, ok := a.symbols[name]
	if !ok {
		return 0, fmt.Errorf("undefined symbol %q", name)
	}
	return v + off, nil
}

func literal(s string) (int32, error) {
	if len(s) >= 3 && s[0] == '\'' && s[len(s)-1] == '\'' {
		r, _, tail, err := strconv.UnquoteChar(s[1:len(s)-1], '\'')
		if err != nil || tail != "" {
			return 0, fmt.Errorf("bad character literal %s", s)
		}
		return int32(r), nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, err
	}
	if v < -1<<31 || v > 1<<32-1 {
		return 0, fmt.Errorf("%s out of range", s)
	}
	return int32(v), nil
}

func reg(s string) (machine.Reg, error) {
	r, ok := machine.RegByName(strings.TrimSpace(s))
	if !ok {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return r, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '.':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
