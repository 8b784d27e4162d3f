package proc_test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kestrel-os/kestrel/pkg/errno"
	"github.com/kestrel-os/kestrel/pkg/kmem"
	"github.com/kestrel-os/kestrel/pkg/loader"
	"github.com/kestrel-os/kestrel/pkg/machine"
	"github.com/kestrel-os/kestrel/pkg/proc"
	"github.com/kestrel-os/kestrel/pkg/sched"
	ksyscall "github.com/kestrel-os/kestrel/pkg/syscall"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/vfs"
	"github.com/kestrel-os/kestrel/pkg/vm"
)

const helloSrc = `
name: hello
data:
  - label: msg
    asciiz: "hi\n"
text: |
  main:
      li   v0, SYS_write
      li   a0, STDOUT_FILENO
      la   a1, msg
      li   a2, 3
      syscall
      li   v0, SYS__exit
      li   a0, 0
      syscall
`

// The fork syscall is the second instruction; the child resumes after it
// and exits with the word at x.
const forkSrc = `
data:
  - label: x
    word: 1
text: |
  main:
      li   v0, SYS_fork
      syscall
      lw   a0, x
      li   v0, SYS__exit
      syscall
`

type machineUnderTest struct {
	k       *thread.Kernel
	heap    *kmem.Heap
	fs      *vfs.MemFS
	procs   *proc.Manager
	console *bytes.Buffer

	setupErr error
}

func boot(maxThreads int) *machineUnderTest {
	heap := kmem.New(1 << 20)
	fs := vfs.NewMemFS()
	fs.AddFile("/hello.kx.yaml", []byte(helloSrc))
	fs.AddFile("/fork.kx.yaml", []byte(forkSrc))
	fs.AddFile("/garbage.kx.yaml", []byte("{{{ not an image"))
	echo, err := os.ReadFile("../../programs/echo.kx.yaml")
	Expect(err).NotTo(HaveOccurred())
	fs.AddFile("/echo.kx.yaml", echo)

	k, err := thread.New(thread.Config{
		Scheduler:   sched.NewFIFO(),
		Heap:        heap,
		StackSize:   256,
		MaxThreads:  maxThreads,
		IdleTimeout: 2 * time.Second,
		Root:        fs.Root(),
	})
	Expect(err).NotTo(HaveOccurred())

	m := &machineUnderTest{k: k, heap: heap, fs: fs, console: &bytes.Buffer{}}
	m.procs = proc.New(k, fs, nil)
	ksyscall.New(m.procs, m.console, nil)
	return m
}

func (m *machineUnderTest) run(main func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := m.k.Run(ctx, main)
	Expect(m.setupErr).NotTo(HaveOccurred())
	return err
}

// becomeUserProcess gives the current process the program src and returns
// a trap frame stopped at its first syscall instruction. It runs on a
// kernel thread, so failures are recorded rather than asserted.
func (m *machineUnderTest) becomeUserProcess(src string) (*vm.AddressSpace, *machine.Trapframe) {
	tf := &machine.Trapframe{EPC: vm.TextBase + machine.WordSize}
	img, err := loader.Parse([]byte(src))
	if err != nil {
		m.setupErr = err
		return nil, tf
	}
	as, err := vm.Create(m.heap)
	if err != nil {
		m.setupErr = err
		return nil, tf
	}
	sp := int32(0)
	if _, err = img.Load(as); err == nil {
		sp, err = as.DefineStack()
	}
	if err != nil {
		as.Destroy()
		m.setupErr = err
		return nil, tf
	}
	m.k.Current().SetAddressSpace(as)
	tf.Set(machine.SP, sp)
	return as, tf
}

var _ = Describe("Process lifecycle", func() {
	var m *machineUnderTest

	BeforeEach(func() {
		m = boot(16)
	})

	Describe("Wait", func() {
		It("returns the code of a child that already exited without sleeping", func() {
			var code, again int
			var err, againErr error
			var sleeps int
			runErr := m.run(func() {
				pid, _ := m.procs.Create("child", func() { m.procs.Exit(7) })
				m.k.Yield()

				before := m.k.Stats().Sleeps
				code, err = m.procs.Wait(pid, 0)
				sleeps = m.k.Stats().Sleeps - before
				again, againErr = m.procs.Wait(pid, 0)
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(7))
			Expect(sleeps).To(BeZero())
			Expect(again).To(BeZero())
			Expect(againErr).To(MatchError(errno.EINVAL))
		})

		It("sleeps until a live child exits", func() {
			var code int
			var err error
			runErr := m.run(func() {
				pid, _ := m.procs.Create("child", func() {
					m.k.Yield()
					m.procs.Exit(3)
				})
				code, err = m.procs.Wait(pid, 0)
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(3))
			Expect(m.k.Stats().Sleeps).To(BeNumerically(">=", 1))
		})

		It("rejects bad arguments without blocking", func() {
			var errs []error
			runErr := m.run(func() {
				pid, _ := m.procs.Create("child", func() {})
				for _, call := range []struct {
					pid     thread.Pid
					options int
				}{{0, 0}, {-4, 0}, {pid, 1}, {999, 0}, {m.procs.Getpid(), 0}} {
					_, err := m.procs.Wait(call.pid, call.options)
					errs = append(errs, err)
				}
				_, _ = m.procs.Wait(pid, 0)
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(errs).To(HaveLen(5))
			for _, err := range errs {
				Expect(err).To(MatchError(errno.EINVAL))
			}
		})

		It("refuses to wait for another process's child", func() {
			var waitErr error
			runErr := m.run(func() {
				b, _ := m.procs.Create("b", func() { m.k.Yield() })
				a, _ := m.procs.Create("a", func() {
					_, waitErr = m.procs.Wait(b, 0)
				})
				_, _ = m.procs.Wait(a, 0)
				_, _ = m.procs.Wait(b, 0)
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(waitErr).To(MatchError(errno.EINVAL))
		})

		It("delivers each child's code to its parent exactly once", func() {
			codes := map[thread.Pid]int{}
			var pending []thread.ExitRecord
			runErr := m.run(func() {
				var pids []thread.Pid
				for i := 1; i <= 4; i++ {
					code := i * 10
					pid, _ := m.procs.Create("child", func() { m.procs.Exit(code) })
					pids = append(pids, pid)
				}
				for i := len(pids) - 1; i >= 0; i-- {
					code, err := m.procs.Wait(pids[i], 0)
					if err == nil {
						codes[pids[i]] = code
					}
				}
				pending = m.k.Current().PendingExits()
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(codes).To(HaveLen(4))
			Expect(codes).To(ContainElements(10, 20, 30, 40))
			Expect(pending).To(BeEmpty())
		})
	})

	Describe("Getpid", func() {
		It("reports the caller's pid", func() {
			var bootPid, childPid, created thread.Pid
			runErr := m.run(func() {
				bootPid = m.procs.Getpid()
				created, _ = m.procs.Create("child", func() { childPid = m.procs.Getpid() })
				_, _ = m.procs.Wait(created, 0)
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(bootPid).To(Equal(thread.Pid(1)))
			Expect(childPid).To(Equal(created))
		})
	})

	Describe("Fork", func() {
		It("gives the child a private copy of memory", func() {
			var code int
			var forkErr, waitErr error
			runErr := m.run(func() {
				pid, _ := m.procs.Create("parent", func() {
					as, tf := m.becomeUserProcess(forkSrc)
					if as == nil {
						return
					}
					child, err := m.procs.Fork(tf)
					if forkErr = err; err != nil {
						return
					}
					_ = as.StoreWord(vm.DataBase, 99)
					code, waitErr = m.procs.Wait(child, 0)
				})
				_, _ = m.procs.Wait(pid, 0)
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(forkErr).NotTo(HaveOccurred())
			Expect(waitErr).NotTo(HaveOccurred())
			Expect(code).To(Equal(1))
		})

		It("requires an address space", func() {
			var err error
			runErr := m.run(func() {
				_, err = m.procs.Fork(&machine.Trapframe{})
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(err).To(MatchError(errno.EINVAL))
		})

		It("fails with EAGAIN at the thread ceiling and changes nothing", func() {
			m = boot(2)
			var err error
			var liveBefore, liveAfter, heapBefore, heapAfter int
			runErr := m.run(func() {
				pid, _ := m.procs.Create("parent", func() {
					_, tf := m.becomeUserProcess(forkSrc)
					liveBefore, heapBefore = m.k.LiveCount(), m.heap.Used()
					_, err = m.procs.Fork(tf)
					liveAfter, heapAfter = m.k.LiveCount(), m.heap.Used()
				})
				_, _ = m.procs.Wait(pid, 0)
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(err).To(MatchError(errno.EAGAIN))
			Expect(liveAfter).To(Equal(liveBefore))
			Expect(heapAfter).To(Equal(heapBefore))
		})

		DescribeTable("unwinds every allocation when memory runs out",
			func(failAt int) {
				var err error
				var heapBefore, heapAfter, liveBefore, liveAfter int
				runErr := m.run(func() {
					pid, _ := m.procs.Create("parent", func() {
						_, tf := m.becomeUserProcess(forkSrc)
						liveBefore, heapBefore = m.k.LiveCount(), m.heap.Used()
						m.heap.FailAfter(failAt)
						_, err = m.procs.Fork(tf)
						liveAfter, heapAfter = m.k.LiveCount(), m.heap.Used()
					})
					_, _ = m.procs.Wait(pid, 0)
				})
				Expect(runErr).NotTo(HaveOccurred())
				Expect(err).To(MatchError(errno.ENOMEM))
				Expect(heapAfter).To(Equal(heapBefore))
				Expect(liveAfter).To(Equal(liveBefore))
			},
			Entry("trap frame", 1),
			Entry("address space copy", 2),
			Entry("thread structure", 3),
			Entry("thread stack", 4),
		)
	})

	Describe("Exec", func() {
		DescribeTable("fails before touching the caller",
			func(path string, args []string, want errno.Errno) {
				var err error
				var same bool
				runErr := m.run(func() {
					pid, _ := m.procs.Create("caller", func() {
						as, _ := m.becomeUserProcess(forkSrc)
						err = m.procs.Exec(path, args)
						same = m.k.Current().AddressSpace() == as
					})
					_, _ = m.procs.Wait(pid, 0)
				})
				Expect(runErr).NotTo(HaveOccurred())
				Expect(err).To(MatchError(want))
				Expect(same).To(BeTrue())
				Expect(m.fs.OpenCount()).To(BeZero())
			},
			Entry("empty path", "", nil, errno.EINVAL),
			Entry("missing program", "/missing.kx.yaml", nil, errno.ENOENT),
			Entry("malformed image", "/garbage.kx.yaml", nil, errno.ENOEXEC),
			Entry("directory", "/", nil, errno.EISDIR),
			Entry("too many arguments", "/hello.kx.yaml", make([]string, proc.MaxArgs+1), errno.E2BIG),
			Entry("arguments too long", "/hello.kx.yaml", []string{strings.Repeat("x", proc.ArgMax)}, errno.E2BIG),
		)

		It("passes argv to the new program", func() {
			var code int
			var spawnErr error
			runErr := m.run(func() {
				var pid thread.Pid
				pid, spawnErr = m.procs.Spawn("/echo.kx.yaml", []string{"echo", "one", "two"})
				if spawnErr == nil {
					code, _ = m.procs.Wait(pid, 0)
				}
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(spawnErr).NotTo(HaveOccurred())
			Expect(code).To(Equal(3))
			Expect(m.console.String()).To(Equal("echo\none\ntwo\n"))
		})
	})

	Describe("Spawn", func() {
		It("runs a program to completion", func() {
			var code int
			var err error
			heapBefore := m.heap.Used()
			runErr := m.run(func() {
				var pid thread.Pid
				pid, err = m.procs.Spawn("/hello.kx.yaml", nil)
				if err == nil {
					code, err = m.procs.Wait(pid, 0)
				}
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(m.console.String()).To(Equal("hi\n"))
			Expect(m.heap.Used()).To(Equal(heapBefore))
		})

		It("reports a missing or malformed program without creating a process", func() {
			var missing, malformed error
			var live int
			runErr := m.run(func() {
				_, missing = m.procs.Spawn("/nope.kx.yaml", nil)
				_, malformed = m.procs.Spawn("/garbage.kx.yaml", nil)
				live = m.k.LiveCount()
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(missing).To(MatchError(errno.ENOENT))
			Expect(malformed).To(MatchError(loader.ErrBadImage))
			Expect(live).To(Equal(1))
		})

		It("kills a program that faults", func() {
			m.fs.AddFile("/crash.kx.yaml", []byte("text: |\n  main: break\n"))
			var code int
			runErr := m.run(func() {
				pid, err := m.procs.Spawn("/crash.kx.yaml", nil)
				if err == nil {
					code, _ = m.procs.Wait(pid, 0)
				}
			})
			Expect(runErr).NotTo(HaveOccurred())
			Expect(code).To(Equal(proc.ExitFault))
		})
	})
})
