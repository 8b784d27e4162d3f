package vm_test

import (
	"errors"
	"testing"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/kmem"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

func newSpace(t *testing.T, heap *kmem.Heap) *vm.AddressSpace {
	t.Helper()
	as, err := vm.Create(heap)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := as.DefineText([]machine.Instr{{Op: machine.OpNop}, {Op: machine.OpBreak}}); err != nil {
		t.Fatalf("text: %v", err)
	}
	if err := as.DefineData([]byte("hello\x00"), 64); err != nil {
		t.Fatalf("data: %v", err)
	}
	if _, err := as.DefineStack(); err != nil {
		t.Fatalf("stack: %v", err)
	}
	return as
}

func TestAddressSpace_WordAccess(t *testing.T) {
	as := newSpace(t, kmem.New(1<<20))

	if err := as.StoreWord(vm.DataBase+8, -7); err != nil {
		t.Fatalf("store: %v", err)
	}
	v, err := as.LoadWord(vm.DataBase + 8)
	if err != nil || v != -7 {
		t.Fatalf("load = %d, %v", v, err)
	}

	sp := vm.StackTop - 4
	if err := as.StoreWord(sp, 99); err != nil {
		t.Fatalf("stack store: %v", err)
	}

	for _, addr := range []int32{0, vm.DataBase + 2, vm.DataBase + 64, vm.StackTop} {
		if _, err := as.LoadWord(addr); !errors.Is(err, errno.EFAULT) {
			t.Errorf("LoadWord(%#x) = %v, want EFAULT", addr, err)
		}
	}
}

func TestAddressSpace_Fetch(t *testing.T) {
	as := newSpace(t, kmem.New(1<<20))

	in, err := as.Fetch(vm.TextBase + 4)
	if err != nil || in.Op != machine.OpBreak {
		t.Fatalf("fetch = %v, %v", in, err)
	}
	if _, err := as.Fetch(vm.TextBase + 8); !errors.Is(err, errno.EFAULT) {
		t.Errorf("fetch past text: %v", err)
	}
	if _, err := as.Fetch(vm.TextBase + 2); !errors.Is(err, errno.EFAULT) {
		t.Errorf("unaligned fetch: %v", err)
	}
	if as.TextEnd() != vm.TextBase+8 {
		t.Errorf("unexpected text end %#x", as.TextEnd())
	}
}

func TestAddressSpace_CopyIsIsolated(t *testing.T) {
	heap := kmem.New(1 << 20)
	parent := newSpace(t, heap)
	before := heap.Used()

	child, err := parent.Copy()
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if heap.Used() != 2*before {
		t.Errorf("copy should double usage: %d -> %d", before, heap.Used())
	}

	if err := child.StoreWord(vm.DataBase, 1234); err != nil {
		t.Fatal(err)
	}
	if v, _ := parent.LoadWord(vm.DataBase); v == 1234 {
		t.Error("child write visible in parent")
	}

	child.Destroy()
	if heap.Used() != before {
		t.Errorf("destroy should release the copy: %d != %d", heap.Used(), before)
	}
	parent.Destroy()
	if heap.Used() != 0 {
		t.Errorf("heap not empty after destroying everything: %d", heap.Used())
	}
}

func TestAddressSpace_CopyOutOfMemory(t *testing.T) {
	heap := kmem.New(1 << 20)
	as := newSpace(t, heap)
	used := heap.Used()

	heap.FailNext(1)
	if _, err := as.Copy(); !errors.Is(err, errno.ENOMEM) {
		t.Fatalf("expected ENOMEM, got %v", err)
	}
	if heap.Used() != used {
		t.Errorf("failed copy leaked %d bytes", heap.Used()-used)
	}
}

func TestAddressSpace_Strings(t *testing.T) {
	as := newSpace(t, kmem.New(1<<20))

	s, err := as.CopyInString(vm.DataBase, 16)
	if err != nil || s != "hello" {
		t.Fatalf("CopyInString = %q, %v", s, err)
	}
	if _, err := as.CopyInString(vm.DataBase, 3); !errors.Is(err, errno.ENAMETOOLONG) {
		t.Errorf("expected ENAMETOOLONG, got %v", err)
	}
	if _, err := as.CopyInString(0x1000, 16); !errors.Is(err, errno.EFAULT) {
		t.Errorf("expected EFAULT, got %v", err)
	}

	if err := as.CopyOut(vm.DataBase+10, []byte("abc\x00")); err != nil {
		t.Fatal(err)
	}
	b, err := as.CopyIn(vm.DataBase+10, 3)
	if err != nil || string(b) != "abc" {
		t.Errorf("CopyIn = %q, %v", b, err)
	}
	if err := as.CheckRange(vm.DataBase+60, 8); !errors.Is(err, errno.EFAULT) {
		t.Errorf("range crossing the segment end should fault, got %v", err)
	}
}

func TestAddressSpace_DestroyTwicePanics(t *testing.T) {
	as, err := vm.Create(kmem.New(1024))
	if err != nil {
		t.Fatal(err)
	}
	as.Destroy()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	as.Destroy()
}
