// Package vm implements user address spaces.
//
// An address space has three regions: a text segment of decoded
// instructions, a data segment and a fixed-size stack below StackTop.
// Every byte is charged to the kernel heap, so creating or copying an
// address space can fail with ENOMEM.
package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/kmem"
	"github.com/kestrel-os/kestrel/pkg/machine"
)

// User memory layout.
const (
	TextBase  int32 = 0x00400000
	DataBase  int32 = 0x10000000
	StackTop  int32 = 0x7fff0000
	StackSize       = 8192

	headerSize = 64
)

// AddressSpace is the memory of one user process.
type AddressSpace struct {
	heap      *kmem.Heap
	text      []machine.Instr
	data      []byte
	stack     []byte
	charged   int
	activated int
	destroyed bool
}

// Create returns an empty address space.
func Create(heap *kmem.Heap) (*AddressSpace, error) {
	if err := heap.Alloc(headerSize); err != nil {
		return nil, fmt.Errorf("as_create: %w", err)
	}
	return &AddressSpace{heap: heap, charged: headerSize}, nil
}

func (as *AddressSpace) charge(n int) error {
	if err := as.heap.Alloc(n); err != nil {
		return err
	}
	as.charged += n
	return nil
}

// DefineText installs the program text at TextBase.
func (as *AddressSpace) DefineText(instrs []machine.Instr) error {
	if as.text != nil {
		return fmt.Errorf("as_define_text: text already defined: %w", errno.EINVAL)
	}
	if err := as.charge(len(instrs) * machine.WordSize); err != nil {
		return fmt.Errorf("as_define_text: %w", err)
	}
	as.text = append(make([]machine.Instr, 0, len(instrs)), instrs...)
	return nil
}

// DefineData installs a data segment of size bytes at DataBase, initialised from init.
func (as *AddressSpace) DefineData(init []byte, size int) error {
	if size < len(init) {
		size = len(init)
	}
	if as.data != nil {
		return fmt.Errorf("as_define_data: data already defined: %w", errno.EINVAL)
	}
	if err := as.charge(size); err != nil {
		return fmt.Errorf("as_define_data: %w", err)
	}
	as.data = make([]byte, size)
	copy(as.data, init)
	return nil
}

// DefineStack allocates the user stack and returns the initial stack pointer.
func (as *AddressSpace) DefineStack() (int32, error) {
	if as.stack == nil {
		if err := as.charge(StackSize); err != nil {
			return 0, fmt.Errorf("as_define_stack: %w", err)
		}
		as.stack = make([]byte, StackSize)
	}
	return StackTop, nil
}

// Copy returns a deep copy. Nothing is shared with the original afterwards.
func (as *AddressSpace) Copy() (*AddressSpace, error) {
	if err := as.heap.Alloc(as.charged); err != nil {
		return nil, fmt.Errorf("as_copy: %w", err)
	}
	n := &AddressSpace{heap: as.heap, charged: as.charged}
	if as.text != nil {
		n.text = append(make([]machine.Instr, 0, len(as.text)), as.text...)
	}
	if as.data != nil {
		n.data = append(make([]byte, 0, len(as.data)), as.data...)
	}
	if as.stack != nil {
		n.stack = append(make([]byte, 0, len(as.stack)), as.stack...)
	}
	return n, nil
}

// Destroy returns the address space's memory to the heap.
func (as *AddressSpace) Destroy() {
	if as.destroyed {
		panic("vm: address space destroyed twice")
	}
	as.heap.Free(as.charged)
	as.charged = 0
	as.text, as.data, as.stack = nil, nil, nil
	as.destroyed = true
}

// Activate makes as the current translation context.
func (as *AddressSpace) Activate() {
	as.activated++
}

// Activations counts Activate calls.
func (as *AddressSpace) Activations() int { return as.activated }

// Size is the number of heap bytes the address space holds.
func (as *AddressSpace) Size() int { return as.charged }

// TextEnd is the first address past the text segment.
func (as *AddressSpace) TextEnd() int32 {
	return TextBase + int32(len(as.text))*machine.WordSize
}

// Fetch implements machine.Memory.
func (as *AddressSpace) Fetch(pc int32) (machine.Instr, error) {
	off := pc - TextBase
	if off < 0 || off%machine.WordSize != 0 || int(off/machine.WordSize) >= len(as.text) {
		return machine.Instr{}, fmt.Errorf("fetch %#x: %w", pc, errno.EFAULT)
	}
	return as.text[off/machine.WordSize], nil
}

func (as *AddressSpace) translate(addr int32, n int) ([]byte, error) {
	if n < 0 {
		return nil, errno.EFAULT
	}
	if b, ok := region(as.data, DataBase, addr, n); ok {
		return b, nil
	}
	if b, ok := region(as.stack, StackTop-int32(len(as.stack)), addr, n); ok {
		return b, nil
	}
	return nil, fmt.Errorf("address %#x+%d: %w", addr, n, errno.EFAULT)
}

func region(seg []byte, base, addr int32, n int) ([]byte, bool) {
	if seg == nil || addr < base {
		return nil, false
	}
	off := int64(addr) - int64(base)
	if off+int64(n) > int64(len(seg)) {
		return nil, false
	}
	return seg[off : off+int64(n)], true
}

// LoadWord implements machine.Memory. Words are big-endian and must be aligned.
func (as *AddressSpace) LoadWord(addr int32) (int32, error) {
	if addr%machine.WordSize != 0 {
		return 0, fmt.Errorf("unaligned load %#x: %w", addr, errno.EFAULT)
	}
	b, err := as.translate(addr, machine.WordSize)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// StoreWord implements machine.Memory.
func (as *AddressSpace) StoreWord(addr int32, v int32) error {
	if addr%machine.WordSize != 0 {
		return fmt.Errorf("unaligned store %#x: %w", addr, errno.EFAULT)
	}
	b, err := as.translate(addr, machine.WordSize)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, uint32(v))
	return nil
}

// LoadByte implements machine.Memory.
func (as *AddressSpace) LoadByte(addr int32) (byte, error) {
	b, err := as.translate(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// StoreByte implements machine.Memory.
func (as *AddressSpace) StoreByte(addr int32, v byte) error {
	b, err := as.translate(addr, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// CopyIn copies n bytes of user memory into a new kernel buffer.
func (as *AddressSpace) CopyIn(addr int32, n int) ([]byte, error) {
	b, err := as.translate(addr, n)
	if err != nil {
		return nil, fmt.Errorf("copyin: %w", err)
	}
	return append([]byte(nil), b...), nil
}

// CopyOut copies b into user memory at addr.
func (as *AddressSpace) CopyOut(addr int32, b []byte) error {
	dst, err := as.translate(addr, len(b))
	if err != nil {
		return fmt.Errorf("copyout: %w", err)
	}
	copy(dst, b)
	return nil
}

// CheckRange reports EFAULT unless [addr, addr+n) is mapped.
func (as *AddressSpace) CheckRange(addr int32, n int) error {
	_, err := as.translate(addr, n)
	return err
}

// CopyInString copies a NUL-terminated string of at most max bytes
// (terminator excluded). Longer strings fail with ENAMETOOLONG.
func (as *AddressSpace) CopyInString(addr int32, max int) (string, error) {
	buf := make([]byte, 0, 32)
	for i := 0; i <= max; i++ {
		c, err := as.LoadByte(addr + int32(i))
		if err != nil {
			return "", fmt.Errorf("copyinstr: %w", err)
		}
		if c == 0 {
			return string(buf), nil
		}
		buf = append(buf, c)
	}
	return "", fmt.Errorf("copyinstr: %w", errno.ENAMETOOLONG)
}

// CopyInWord reads one aligned word, for walking user pointer arrays.
func (as *AddressSpace) CopyInWord(addr int32) (int32, error) {
	v, err := as.LoadWord(addr)
	if err != nil {
		return 0, fmt.Errorf("copyin: %w", err)
	}
	return v, nil
}
