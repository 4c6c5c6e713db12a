// Package proc implements the process model: a table of Proc_t
// describing every process in the system, and the fork/exit/wait/kill
// lifecycle operations that create and tear them down. Grounded on
// original_source/proc.c.
//
// Real xv6 runs one process per kernel stack, cooperatively scheduled
// by scheduler()/sched()/swtch() across a fixed NPROC-sized array.
// biscuit was written against a patched Go runtime that let a
// goroutine stand in for that kernel stack directly. Without that
// patch, a goroutine is simply a goroutine: the Go runtime's own
// scheduler already does everything scheduler()/sched()/swtch() did,
// so Proc_t's State_t exists purely as bookkeeping for wait/kill, not
// as an instruction to run anything.
package proc

import "sync"

import "accnt"
import "defs"
import "fd"
import "limits"
import "lock"
import "stats"
import "tinfo"
import "ustr"
import "vm"

// schedStats counts context switches (one per process goroutine
// started) and the cycles each ran for, system-wide. Grounded on
// original_source/proc.c's scheduler(), which original xv6 builds
// tallied the same way for `-DCS` style debugging.
var schedStats struct {
	Ctxswitch stats.Counter_t
	Cycles    stats.Cycles_t
}

// / SchedStatistics reports accumulated scheduler statistics, empty
// / unless stats.Stats is enabled.
func SchedStatistics() string {
	return stats.Stats2String(schedStats)
}

// / State_t is a process's lifecycle stage, kept for wait()/kill()
// / bookkeeping even though nothing in this package ever "schedules" a
// / RUNNABLE process onto a CPU the way original_source/proc.c did.
type State_t int

const (
	UNUSED State_t = iota
	EMBRYO
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

func (s State_t) String() string {
	switch s {
	case UNUSED:
		return "unused"
	case EMBRYO:
		return "embryo"
	case SLEEPING:
		return "sleeping"
	case RUNNABLE:
		return "runnable"
	case RUNNING:
		return "running"
	case ZOMBIE:
		return "zombie"
	default:
		return "?"
	}
}

// / Proc_t is one process: an address space, a file descriptor table,
// / a working directory, and the bookkeeping wait/kill/exit need.
// / Grounded on original_source/proc.c's struct proc, minus the
// / trapframe/context/kstack fields a goroutine has no use for.
type Proc_t struct {
	Pid  defs.Pid_t
	Name string

	Vm *vm.Vm_t
	Sz int // process size in bytes, as grown or shrunk by Growproc

	Accnt accnt.Accnt_t

	// guards Fds and Cwd against concurrent syscalls made by a
	// process's own threads; Pid/Name/Vm/Sz/Accnt are not covered by
	// it (Exec and Growproc update Name, Vm and Sz without it).
	mu  sync.Mutex
	Fds []*fd.Fd_t
	Cwd *fd.Cwd_t

	parent   *Proc_t
	note     *tinfo.Tnote_t
	tid      defs.Tid_t
	runStart uint64 // stats.Rdtsc() at the start of run(), for schedStats.Cycles

	// guarded by ptable.l
	state      State_t
	exitStatus int
}

var ptable = struct {
	l       lock.Spinlock_t
	procs   map[defs.Pid_t]*Proc_t
	nextpid defs.Pid_t
	nprocs  int
}{procs: map[defs.Pid_t]*Proc_t{}, nextpid: 1}

var threadnotes tinfo.Threadinfo_t

// initProc is the first process started by Userinit; exit() refuses
// to run on it and orphaned children are reparented to it, exactly as
// original_source/proc.c treats initproc.
var initProc *Proc_t

func init() {
	threadnotes.Init()
}

// / Find returns the process with the given pid, if it is still in
// / the table (it is removed once a parent Wait()s for it).
func Find(pid defs.Pid_t) (*Proc_t, bool) {
	ptable.l.Acquire()
	defer ptable.l.Release()
	p, ok := ptable.procs[pid]
	return p, ok
}

// newProc allocates an empty, EMBRYO-state process owned by parent
// (nil for the very first process) and installs its thread note,
// mirroring allocproc()'s table scan plus userinit()/fork()'s pid
// assignment.
func newProc(name string, parent *Proc_t) (*Proc_t, defs.Err_t) {
	ptable.l.Acquire()
	defer ptable.l.Release()

	if ptable.nprocs >= limits.Syslimit.Sysprocs {
		return nil, -defs.EAGAIN
	}

	pid := ptable.nextpid
	ptable.nextpid++

	p := &Proc_t{
		Pid:    pid,
		Name:   name,
		parent: parent,
		tid:    defs.Tid_t(pid),
		state:  EMBRYO,
	}
	p.note = &tinfo.Tnote_t{Alive: true}

	threadnotes.Lock()
	threadnotes.Notes[p.tid] = p.note
	threadnotes.Unlock()

	ptable.procs[pid] = p
	ptable.nprocs++
	return p, 0
}

// freeProc undoes newProc after a later step of process creation
// fails, returning the pid and limit slot to the pool.
func freeProc(p *Proc_t) {
	ptable.l.Acquire()
	delete(ptable.procs, p.Pid)
	ptable.nprocs--
	ptable.l.Release()

	threadnotes.Lock()
	delete(threadnotes.Notes, p.tid)
	threadnotes.Unlock()
}

// / Tid returns the process's sole thread's id, used to key
// / tinfo.Threadinfo_t and to report status to userspace.
func (p *Proc_t) Tid() defs.Tid_t {
	return p.tid
}

// / Killed reports whether Kill has been called on this process.
func (p *Proc_t) Killed() bool {
	return p.note.IsKilled()
}

// / State returns the process's current lifecycle state.
func (p *Proc_t) State() State_t {
	ptable.l.Acquire()
	defer ptable.l.Release()
	return p.state
}

// / AddFd installs f as the lowest-numbered free file descriptor and
// / returns its number.
func (p *Proc_t) AddFd(f *fd.Fd_t) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.Fds {
		if cur == nil {
			p.Fds[i] = f
			return i
		}
	}
	p.Fds = append(p.Fds, f)
	return len(p.Fds) - 1
}

// / GetFd returns the open file descriptor numbered n, if any.
func (p *Proc_t) GetFd(n int) (*fd.Fd_t, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || n >= len(p.Fds) || p.Fds[n] == nil {
		return nil, false
	}
	return p.Fds[n], true
}

// / SetCwd installs newCwd as p's working directory, closing the
// / previous one's backing file descriptor. Grounded on
// / original_source/sysfile.c's sys_chdir, which iput()s the old cwd
// / inode only after the new one is confirmed to resolve.
func (p *Proc_t) SetCwd(newCwd *fd.Cwd_t) {
	p.mu.Lock()
	old := p.Cwd
	p.Cwd = newCwd
	p.mu.Unlock()
	if old != nil {
		old.Fd.Fops.Close()
	}
}

// / CloseFd closes and removes the file descriptor numbered n.
func (p *Proc_t) CloseFd(n int) defs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || n >= len(p.Fds) || p.Fds[n] == nil {
		return -defs.EBADF
	}
	f := p.Fds[n]
	p.Fds[n] = nil
	return f.Fops.Close()
}

// / Userinit constructs the very first process in the system, akin to
// / original_source/proc.c's userinit(): no parent, given its own
// / address space and root working directory by the caller (kernel
// / bootstrap), and immediately RUNNABLE. main is run in a new
// / goroutine exactly like every later Fork'd child.
func Userinit(name string, as *vm.Vm_t, sz int, cwd *fd.Cwd_t, main func(*Proc_t)) (*Proc_t, defs.Err_t) {
	p, err := newProc(name, nil)
	if err != 0 {
		return nil, err
	}
	p.Vm = as
	p.Sz = sz
	p.Cwd = cwd

	ptable.l.Acquire()
	p.state = RUNNABLE
	ptable.l.Release()

	initProc = p

	go p.run(main)
	return p, 0
}

// run is the body every process goroutine executes: install this
// process's thread note (required before touching any lock.Spinlock_t
// or lock.Sleep/Wakeup), run its program, then exit with status 0 if
// main returns without calling Exit itself.
func (p *Proc_t) run(main func(*Proc_t)) {
	tinfo.SetCurrent(p.note)
	defer tinfo.ClearCurrent()

	schedStats.Ctxswitch.Inc()
	p.runStart = stats.Rdtsc()

	ptable.l.Acquire()
	p.state = RUNNING
	ptable.l.Release()

	main(p)
	Exit(p, 0)
}

// copyPath returns an independent copy of p, used when duplicating a
// Cwd_t so parent and child don't alias the same backing array.
func copyPath(p ustr.Ustr) ustr.Ustr {
	np := make(ustr.Ustr, len(p))
	copy(np, p)
	return np
}
