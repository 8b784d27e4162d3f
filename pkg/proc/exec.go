package proc

import (
	"encoding/binary"
	"fmt"
	"path"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/loader"
	"github.com/kestrel-os/kestrel/pkg/logger"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/vfs"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

// Argument limits for Exec.
const (
	MaxArgs = 64
	ArgMax  = 4096
)

// Exec replaces the calling process's program with the one at path and
// runs it with args as argv. On success it does not return.
//
// Everything that can fail is done before the old address space is
// released, so a failed Exec leaves the caller unchanged.
func (m *Manager) Exec(p string, args []string) error {
	if err := checkArgs(p, args); err != nil {
		return err
	}
	img, err := m.load(p)
	if err != nil {
		return fmt.Errorf("execv %s: %w", p, err)
	}
	return m.execImage(p, img, args)
}

// Spawn starts the program at path as a new child of the caller and returns
// its pid. The image is read and checked before the child is created, so a
// missing or malformed program fails here. A child whose exec still fails
// exits with ExitExecFailed.
func (m *Manager) Spawn(p string, args []string) (thread.Pid, error) {
	if len(args) == 0 {
		args = []string{p}
	}
	if err := checkArgs(p, args); err != nil {
		return 0, err
	}
	img, err := m.load(p)
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", p, err)
	}

	name := img.Name
	if name == "" {
		name = path.Base(p)
	}
	return m.Create(name, func() {
		if err := m.execImage(p, img, args); err != nil {
			m.log.Warn("spawn: exec failed", logger.WithField("path", p), logger.WithError(err))
			m.k.Exit(ExitExecFailed)
		}
	})
}

func checkArgs(p string, args []string) error {
	if p == "" {
		return fmt.Errorf("execv: empty path: %w", errno.EINVAL)
	}
	if len(p) > vfs.MaxPath {
		return fmt.Errorf("execv: %w", errno.ENAMETOOLONG)
	}
	if len(args) > MaxArgs {
		return fmt.Errorf("execv %s: %d args: %w", p, len(args), errno.E2BIG)
	}
	total := 0
	for _, a := range args {
		total += len(a) + 1
	}
	if total > ArgMax {
		return fmt.Errorf("execv %s: %d bytes of args: %w", p, total, errno.E2BIG)
	}
	return nil
}

func (m *Manager) load(p string) (*loader.Image, error) {
	vn, err := m.fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer vfs.Close(vn)

	if vn.IsDir() {
		return nil, errno.EISDIR
	}
	return loader.Parse(vn.Data())
}

func (m *Manager) execImage(p string, img *loader.Image, args []string) error {
	as, err := vm.Create(m.heap)
	if err != nil {
		return fmt.Errorf("execv %s: %w", p, err)
	}
	entry, err := img.Load(as)
	if err != nil {
		as.Destroy()
		return fmt.Errorf("execv %s: %w", p, err)
	}
	sp, err := as.DefineStack()
	if err != nil {
		as.Destroy()
		return fmt.Errorf("execv %s: %w", p, err)
	}
	sp, argv, err := copyOutArgs(as, sp, args)
	if err != nil {
		as.Destroy()
		return fmt.Errorf("execv %s: %w", p, err)
	}

	// Point of no return.
	cur := m.k.Current()
	cur.SetAddressSpace(as)
	m.log.Debug("exec", logger.WithField("pid", cur.Pid()), logger.WithField("path", p),
		logger.WithField("argc", len(args)))

	var tf machine.Trapframe
	tf.Set(machine.A0, int32(len(args)))
	tf.Set(machine.A1, argv)
	tf.Set(machine.SP, sp)
	tf.EPC = entry
	m.enterUser(&tf, as)
	return nil
}

// copyOutArgs lays out argv below sp: the strings first, then the
// NULL-terminated pointer array. It returns the new stack pointer and the
// address of the array.
func copyOutArgs(as *vm.AddressSpace, sp int32, args []string) (int32, int32, error) {
	ptrs := make([]int32, len(args)+1)
	for i, a := range args {
		n := int32(len(a) + 1)
		sp -= (n + machine.WordSize - 1) &^ (machine.WordSize - 1)
		if err := as.CopyOut(sp, append([]byte(a), 0)); err != nil {
			return 0, 0, err
		}
		ptrs[i] = sp
	}

	sp -= int32(len(ptrs) * machine.WordSize)
	buf := make([]byte, len(ptrs)*machine.WordSize)
	for i, ptr := range ptrs {
		binary.BigEndian.PutUint32(buf[i*machine.WordSize:], uint32(ptr))
	}
	if err := as.CopyOut(sp, buf); err != nil {
		return 0, 0, err
	}
	return sp, sp, nil
}
