// Package pipe implements anonymous, unidirectional, in-memory pipes.
package pipe

import "sync"

import "circbuf"
import "defs"
import "fdops"
import "lock"
import "mem"
import "stat"
import "tinfo"

// PIPESZ is the pipe's buffer capacity in bytes, matching xv6's
// original_source/pipe.c.
const PIPESZ = 512

// / Pipe_t is the shared state of one pipe's two file descriptions,
// / grounded on original_source/pipe.c's struct pipe. The buffer itself
// / is a circbuf.Circbuf_t exactly as console.go uses,
// / rather than pipe.c's raw fixed array.
type Pipe_t struct {
	l         lock.Spinlock_t
	cb        circbuf.Circbuf_t
	readOpen  bool
	writeOpen bool
}

func mkPipe() *Pipe_t {
	p := &Pipe_t{readOpen: true, writeOpen: true}
	if err := p.cb.Cb_init(PIPESZ, mem.Physmem); err != 0 {
		panic("pipe: out of memory for buffer")
	}
	return p
}

// / Pipefd_t is one end (read or write) of a pipe, implementing
// / fdops.Fdops_i. Grounded on original_source/pipe.c's pipe-backed
// / struct file plus piperead/pipewrite.
type Pipefd_t struct {
	p        *Pipe_t
	writable bool
	closed   bool
	mu       sync.Mutex
}

// / MkPipe allocates a new pipe and returns its read and write ends.
func MkPipe() (*Pipefd_t, *Pipefd_t) {
	p := mkPipe()
	return &Pipefd_t{p: p, writable: false}, &Pipefd_t{p: p, writable: true}
}

func (pf *Pipefd_t) Close() defs.Err_t {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.closed {
		return 0
	}
	pf.closed = true

	p := pf.p
	p.l.Acquire()
	if pf.writable {
		p.writeOpen = false
	} else {
		p.readOpen = false
	}
	lock.Wakeup(&p.cb)
	p.l.Release()
	return 0
}

func (pf *Pipefd_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(1 << 12) // S_IFIFO-equivalent bit, no on-disk inode backs a pipe
	st.Wsize(0)
	return 0
}

func (pf *Pipefd_t) Lseek(off, whence int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

// / Read blocks until the pipe has data or its write end is closed,
// / exactly like pipe.c's piperead. It does not check whether this
// / read end was already closed.
func (pf *Pipefd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if pf.writable {
		return 0, -defs.EINVAL
	}
	p := pf.p
	p.l.Acquire()
	for p.cb.Empty() && p.writeOpen {
		if tinfo.CurrentKilled() {
			p.l.Release()
			return 0, -defs.EINTR
		}
		lock.Sleep(&p.cb, &p.l)
	}
	n, err := p.cb.Copyout(dst)
	if n > 0 {
		lock.Wakeup(&p.cb)
	}
	p.l.Release()
	return n, err
}

func (pf *Pipefd_t) Reopen() defs.Err_t {
	return 0
}

// / Write blocks while the pipe is full and the read end is still
// / open, returning EPIPE once the reader has gone away, exactly like
// / pipe.c's pipewrite.
func (pf *Pipefd_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if !pf.writable {
		return 0, -defs.EINVAL
	}
	p := pf.p
	p.l.Acquire()
	defer p.l.Release()
	if !p.readOpen {
		return 0, -defs.EPIPE
	}
	tot := 0
	for tot < src.Totalsz() {
		for p.cb.Full() && p.readOpen {
			if tinfo.CurrentKilled() {
				return tot, -defs.EINTR
			}
			lock.Wakeup(&p.cb)
			lock.Sleep(&p.cb, &p.l)
		}
		if !p.readOpen {
			return tot, -defs.EPIPE
		}
		n, err := p.cb.Copyin(src)
		tot += n
		lock.Wakeup(&p.cb)
		if err != 0 {
			return tot, err
		}
		if n == 0 {
			break
		}
	}
	return tot, 0
}

func (pf *Pipefd_t) Truncate(newlen uint) defs.Err_t {
	return -defs.EINVAL
}

func (pf *Pipefd_t) Pread(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (pf *Pipefd_t) Pwrite(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (pf *Pipefd_t) Mmapi(offset, len int, inc bool) ([]mem.Mmapinfo_t, defs.Err_t) {
	return nil, -defs.EINVAL
}

func (pf *Pipefd_t) Unpin(uintptr) {
}
