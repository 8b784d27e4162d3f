// Package callno lists system call numbers shared by the dispatcher and
// the program loader.
package callno

const (
	SysExit    = 0
	SysExecv   = 1
	SysFork    = 2
	SysWaitpid = 3
	SysOpen    = 4
	SysRead    = 5
	SysWrite   = 6
	SysClose   = 7
	SysReboot  = 8
	SysSync    = 9
	SysSbrk    = 10
	SysGetpid  = 11
)

// Reboot codes.
const (
	RBReboot   = 0
	RBHalt     = 1
	RBPoweroff = 2
)

var names = map[int]string{
	SysExit:    "_exit",
	SysExecv:   "execv",
	SysFork:    "fork",
	SysWaitpid: "waitpid",
	SysOpen:    "open",
	SysRead:    "read",
	SysWrite:   "write",
	SysClose:   "close",
	SysReboot:  "reboot",
	SysSync:    "sync",
	SysSbrk:    "sbrk",
	SysGetpid:  "getpid",
}

// Name returns the call's name, or "" if n is not a call number.
func Name(n int) string { return names[n] }

// Symbols returns assembler symbols for every call and reboot code.
func Symbols() map[string]int32 {
	syms := map[string]int32{
		"SYS__exit":   SysExit,
		"SYS_exit":    SysExit,
		"SYS_execv":   SysExecv,
		"SYS_fork":    SysFork,
		"SYS_waitpid": SysWaitpid,
		"SYS_open":    SysOpen,
		"SYS_read":    SysRead,
		"SYS_write":   SysWrite,
		"SYS_close":   SysClose,
		"SYS_reboot":  SysReboot,
		"SYS_sync":    SysSync,
		"SYS_sbrk":    SysSbrk,
		"SYS_getpid":  SysGetpid,

		"RB_REBOOT":   RBReboot,
		"RB_HALT":     RBHalt,
		"RB_POWEROFF": RBPoweroff,

		"STDIN_FILENO":  0,
		"STDOUT_FILENO": 1,
		"STDERR_FILENO": 2,
	}
	return syms
}
