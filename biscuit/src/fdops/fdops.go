// Package fdops holds the small interfaces that decouple file
// descriptor operations, user memory access, and polling from any
// particular implementation (regular files, pipes, devices), mirroring
// how fd.Fd_t, circbuf.Circbuf_t and vm.Vm_t are wired together in the
// teacher.
package fdops

import "defs"
import "mem"
import "stat"

/// Userio_i abstracts a source or destination for a data transfer: it
/// may be a real user virtual-memory buffer (vm.Userbuf_t), an iovec
/// (vm.Useriovec_t), or an in-kernel buffer used by tests
/// (vm.Fakeubuf_t).
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

/// Fdops_i is implemented by every kind of open file description: a
/// regular file, a directory, a pipe end, or a device. Fd_t.Fops holds
/// one of these.
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(*stat.Stat_t) defs.Err_t
	Lseek(off, whence int) (int, defs.Err_t)
	Read(dst Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Write(src Userio_i) (int, defs.Err_t)
	Truncate(newlen uint) defs.Err_t
	Pread(dst Userio_i, offset int) (int, defs.Err_t)
	Pwrite(src Userio_i, offset int) (int, defs.Err_t)
	// Mmapi returns the physical pages backing [offset, offset+len) for
	// a memory mapping, growing the file if inc is set.
	Mmapi(offset, len int, inc bool) ([]mem.Mmapinfo_t, defs.Err_t)
	// Unpin releases a reference taken by Mmapi when a shared mapping
	// is torn down.
	Unpin(uintptr)
}

/// Ready_t is a bitmask of poll readiness conditions.
type Ready_t uint

const (
	R_READ  Ready_t = 1 << 0
	R_WRITE Ready_t = 1 << 1
	R_ERROR Ready_t = 1 << 2
	R_HUP   Ready_t = 1 << 3
)

/// Pollmsg_t describes one fd being polled and the events it cares
/// about; it is passed by value, and the events that fired are
/// returned separately as a Ready_t.
type Pollmsg_t struct {
	Fd_     int
	Events  Ready_t
	Dowait  bool
	Tid     defs.Tid_t
}

/// Cons_i is implemented by the console device; fs's device-switch
/// table dispatches D_CONSOLE reads/writes/polls to it.
type Cons_i interface {
	Cons_poll(pm Pollmsg_t) (Ready_t, defs.Err_t)
	Cons_read(ub Userio_i, offset int) (int, defs.Err_t)
	Cons_write(src Userio_i, off int) (int, defs.Err_t)
}
