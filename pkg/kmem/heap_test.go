package kmem_test

import (
	"errors"
	"testing"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/kmem"
)

func TestHeap_AllocFree(t *testing.T) {
	h := kmem.New(100)

	if err := h.Alloc(60); err != nil {
		t.Fatalf("alloc 60: %v", err)
	}
	if err := h.Alloc(50); !errors.Is(err, errno.ENOMEM) {
		t.Fatalf("expected ENOMEM over limit, got %v", err)
	}
	if h.Used() != 60 {
		t.Errorf("failed alloc must not charge, used=%d", h.Used())
	}

	h.Free(60)
	if err := h.Alloc(100); err != nil {
		t.Fatalf("alloc after free: %v", err)
	}

	st := h.Stats()
	if st.Peak != 100 || st.Used != 100 || st.Allocs != 3 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestHeap_FailNext(t *testing.T) {
	h := kmem.New(1 << 20)
	h.FailNext(2)

	for i := 0; i < 2; i++ {
		if err := h.Alloc(1); !errors.Is(err, errno.ENOMEM) {
			t.Fatalf("alloc %d: expected injected ENOMEM, got %v", i, err)
		}
	}
	if err := h.Alloc(1); err != nil {
		t.Fatalf("third alloc should succeed: %v", err)
	}
}

func TestHeap_FailAfter(t *testing.T) {
	h := kmem.New(1 << 20)
	h.FailAfter(3)

	for i := 1; i <= 4; i++ {
		err := h.Alloc(8)
		if i == 3 && !errors.Is(err, errno.ENOMEM) {
			t.Fatalf("alloc %d: expected ENOMEM, got %v", i, err)
		}
		if i != 3 && err != nil {
			t.Fatalf("alloc %d: unexpected %v", i, err)
		}
	}
	if h.Used() != 24 {
		t.Errorf("expected 24 bytes used, got %d", h.Used())
	}
}

func TestHeap_OverFreePanics(t *testing.T) {
	h := kmem.New(10)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on over-free")
		}
	}()
	h.Free(1)
}
