package thread

import (
	"errors"
	"math"
	"testing"
)

func TestRegistry_PidsAreMonotonic(t *testing.T) {
	r := newRegistry()
	var last Pid
	for i := 0; i < 10; i++ {
		pid, err := r.allocatePid()
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if pid <= last {
			t.Fatalf("pid %d not greater than %d", pid, last)
		}
		last = pid
	}
	if last != 10 {
		t.Errorf("expected pids 1..10, last was %d", last)
	}
}

func TestRegistry_PidsNeverReused(t *testing.T) {
	r := newRegistry()
	pid, _ := r.allocatePid()
	if err := r.add(&Thread{pid: pid}); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.remove(pid)

	next, _ := r.allocatePid()
	if next == pid {
		t.Fatalf("pid %d reused after removal", pid)
	}
}

func TestRegistry_Exhausted(t *testing.T) {
	r := newRegistry()
	r.nextPid = math.MaxInt32
	if _, err := r.allocatePid(); !errors.Is(err, errPidsExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
}

func TestRegistry_AddLookupRemove(t *testing.T) {
	r := newRegistry()
	a := &Thread{pid: 3, name: "a"}
	b := &Thread{pid: 1, name: "b"}

	if err := r.add(a); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := r.add(b); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := r.add(&Thread{pid: 3}); !errors.Is(err, ErrPidInUse) {
		t.Fatalf("expected ErrPidInUse, got %v", err)
	}
	if r.len() != 2 {
		t.Errorf("len = %d", r.len())
	}
	if r.lookup(3) != a || r.lookup(2) != nil {
		t.Error("lookup returned the wrong thread")
	}

	sorted := r.sorted()
	if len(sorted) != 2 || sorted[0] != b || sorted[1] != a {
		t.Errorf("sorted = %v", sorted)
	}

	if !r.remove(3) {
		t.Error("remove of a live pid reported false")
	}
	if r.remove(3) {
		t.Error("second remove reported true")
	}
	if r.len() != 1 {
		t.Errorf("len after remove = %d", r.len())
	}
}
