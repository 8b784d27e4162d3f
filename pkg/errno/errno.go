// Package errno defines the kernel's error numbers.
//
// An Errno is an error value. Kernel operations wrap it with context
// ("fork: %w") and callers test it with errors.Is or recover the number with
// FromError for the system call return register.
package errno

import (
	"errors"
	"fmt"
)

// Errno is a kernel error number
type Errno int

const (
	EPERM        Errno = 1
	ENOENT       Errno = 2
	ESRCH        Errno = 3
	EINTR        Errno = 4
	EIO          Errno = 5
	E2BIG        Errno = 7
	ENOEXEC      Errno = 8
	EBADF        Errno = 9
	ECHILD       Errno = 10
	EAGAIN       Errno = 11
	ENOMEM       Errno = 12
	EACCES       Errno = 13
	EFAULT       Errno = 14
	EBUSY        Errno = 16
	EEXIST       Errno = 17
	ENODEV       Errno = 19
	ENOTDIR      Errno = 20
	EISDIR       Errno = 21
	EINVAL       Errno = 22
	EMFILE       Errno = 24
	ENOSPC       Errno = 28
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
	ENOHEAP      Errno = 511
)

var names = map[Errno]string{
	EPERM:        "operation not permitted",
	ENOENT:       "no such file or directory",
	ESRCH:        "no such process",
	EINTR:        "interrupted system call",
	EIO:          "input/output error",
	E2BIG:        "argument list too long",
	ENOEXEC:      "exec format error",
	EBADF:        "bad file descriptor",
	ECHILD:       "no child processes",
	EAGAIN:       "resource temporarily unavailable",
	ENOMEM:       "out of memory",
	EACCES:       "permission denied",
	EFAULT:       "bad address",
	EBUSY:        "device or resource busy",
	EEXIST:       "file exists",
	ENODEV:       "no such device",
	ENOTDIR:      "not a directory",
	EISDIR:       "is a directory",
	EINVAL:       "invalid argument",
	EMFILE:       "too many open files",
	ENOSPC:       "no space left on device",
	ENAMETOOLONG: "file name too long",
	ENOSYS:       "function not implemented",
	ENOHEAP:      "kernel heap exhausted",
}

var symbols = map[string]Errno{
	"EPERM": EPERM, "ENOENT": ENOENT, "ESRCH": ESRCH, "EINTR": EINTR,
	"EIO": EIO, "E2BIG": E2BIG, "ENOEXEC": ENOEXEC, "EBADF": EBADF,
	"ECHILD": ECHILD, "EAGAIN": EAGAIN, "ENOMEM": ENOMEM, "EACCES": EACCES,
	"EFAULT": EFAULT, "EBUSY": EBUSY, "EEXIST": EEXIST, "ENODEV": ENODEV,
	"ENOTDIR": ENOTDIR, "EISDIR": EISDIR, "EINVAL": EINVAL, "EMFILE": EMFILE,
	"ENOSPC": ENOSPC, "ENAMETOOLONG": ENAMETOOLONG, "ENOSYS": ENOSYS,
	"ENOHEAP": ENOHEAP,
}

// Lookup returns the Errno with the given symbolic name, such as "EINVAL".
func Lookup(name string) (Errno, bool) {
	e, ok := symbols[name]
	return e, ok
}

// Names returns every symbolic name Lookup accepts.
func Names() []string {
	out := make([]string, 0, len(symbols))
	for n := range symbols {
		out = append(out, n)
	}
	return out
}

func (e Errno) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}

// FromError extracts the Errno from err. Errors that carry no Errno map to EIO;
// nil maps to 0.
func FromError(err error) Errno {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return EIO
}
