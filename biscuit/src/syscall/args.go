// Package syscall implements the trap-to-kernel boundary: a dispatch
// table indexed by syscall number plus the argument helpers that
// validate words pulled off the calling process's simulated register
// file against its address space. Grounded on
// original_source/syscall.c's syscall() and argint/argptr/argstr/argfd.
//
// Real xv6 reads arguments off the trapframe a user-mode interrupt
// left on the kernel stack. This kernel has no patched runtime to trap
// user-mode execution, so there is no hardware trapframe; Sysargs_t is
// the same six-word shape (num plus six arguments, mirroring
// original_source/trap.c's tf->eax and the %ebx.. calling convention)
// filled in directly by whatever stands in for a user program -- a
// test, or a later simulated libc -- instead of by a trap handler.
// Everything downstream of Syscall still goes through the same
// bounds-checked helpers real xv6 used, so a path or buffer pointer is
// validated against the calling process's address space exactly as it
// would be at a real trap.
package syscall

import "proc"
import "defs"
import "fd"
import "ustr"

// Sysargs_t is the argument vector for one syscall, plus its result.
// Num selects the handler; Args holds up to six word-sized arguments,
// addresses included, exactly as original_source/syscall.c reads them
// off tf->eax/ebx/ecx/edx/esi/edi.
type Sysargs_t struct {
	Num  int
	Args [6]int
	// Err carries the errno a failed syscall produced; Ret alone only
	// says "-1", matching real syscall()'s combination of a return
	// value and (on Linux) a separately inspectable errno.
	Err defs.Err_t
	// ChildMain is consulted only by SYS_fork: the new process's
	// entire body, supplied out of band because a goroutine has no
	// saved trapframe for the child to "resume into" the way a real
	// forked process resumes at the instruction after the syscall.
	ChildMain func(*proc.Proc_t)
}

// maxstrlen bounds argstr's scan so a process with a never-terminated
// "string" can't make the kernel walk off into unrelated memory.
const maxstrlen = 4096

// argint fetches the i-th word argument. Grounded on
// original_source/syscall.c's argint, which only bounds-checks i
// against the trapframe's four general registers; Sysargs_t has a
// fixed six-slot array so the only possible failure is out-of-range i.
func argint(sa *Sysargs_t, i int) (int, defs.Err_t) {
	if i < 0 || i >= len(sa.Args) {
		return 0, -defs.EINVAL
	}
	return sa.Args[i], 0
}

// argptr fetches the i-th argument as a pointer and validates that
// [uva, uva+n) lies within p's current address space, returning the
// validated address. Grounded on original_source/syscall.c's argptr,
// which rejects addresses that overflow or run past p->sz.
func argptr(p *proc.Proc_t, sa *Sysargs_t, i, n int) (int, defs.Err_t) {
	uva, err := argint(sa, i)
	if err != 0 {
		return 0, err
	}
	if uva < 0 || n < 0 || uva+n < uva || uva+n > p.Sz {
		return 0, -defs.EFAULT
	}
	return uva, 0
}

// argstr fetches the i-th argument as a pointer and returns the
// NUL-terminated string starting there, failing with EFAULT if no
// terminator appears before the end of p's address space or
// maxstrlen, whichever comes first. Grounded on
// original_source/syscall.c's argstr, built on fetchstr.
func argstr(p *proc.Proc_t, sa *Sysargs_t, i int) (ustr.Ustr, defs.Err_t) {
	uva, err := argint(sa, i)
	if err != 0 {
		return nil, err
	}
	if uva < 0 || uva > p.Sz {
		return nil, -defs.EFAULT
	}
	buflen := p.Sz - uva
	if buflen > maxstrlen {
		buflen = maxstrlen
	}
	buf := make([]uint8, buflen)
	ub := p.Vm.Mkuserbuf(uva, buflen)
	n, err := ub.Uioread(buf)
	if err != 0 {
		return nil, err
	}
	for j, c := range buf[:n] {
		if c == 0 {
			return ustr.Ustr(buf[:j]), 0
		}
	}
	return nil, -defs.EFAULT
}

// argfd fetches the i-th argument as a file descriptor number and
// resolves the open fd.Fd_t it names. Grounded on
// original_source/syscall.c's argfd.
func argfd(p *proc.Proc_t, sa *Sysargs_t, i int) (int, *fd.Fd_t, defs.Err_t) {
	n, err := argint(sa, i)
	if err != 0 {
		return 0, nil, err
	}
	f, ok := p.GetFd(n)
	if !ok {
		return 0, nil, -defs.EBADF
	}
	return n, f, 0
}
