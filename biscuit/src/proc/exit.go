package proc

import "runtime"

import "defs"
import "lock"

// Exit tears down p: closes its open files, wakes a parent blocked in
// Wait, reparents any of p's own children to initProc, marks p a
// zombie, then unwinds p's goroutine via runtime.Goexit so that, like
// original_source/proc.c's exit(), nothing after the call to Exit
// ever runs. Grounded on original_source/proc.c's exit().
func Exit(p *Proc_t, status int) {
	if p == initProc {
		panic("init exiting")
	}

	schedStats.Cycles.Add(p.runStart)

	p.mu.Lock()
	for _, f := range p.Fds {
		if f != nil {
			f.Fops.Close()
		}
	}
	p.Fds = nil
	p.Cwd = nil
	p.mu.Unlock()

	ptable.l.Acquire()
	p.exitStatus = status
	if p.parent != nil {
		lock.Wakeup(p.parent)
	}
	for _, c := range ptable.procs {
		if c.parent == p {
			c.parent = initProc
			if c.state == ZOMBIE && initProc != nil {
				lock.Wakeup(initProc)
			}
		}
	}
	p.state = ZOMBIE
	ptable.l.Release()

	runtime.Goexit()
}

// Wait blocks until one of p's children exits, then reaps it and
// returns its pid and exit status. It returns -defs.ECHILD
// immediately if p has no children at all, or if p itself has been
// killed while it was the one blocked waiting. Grounded on
// original_source/proc.c's wait().
func Wait(p *Proc_t) (defs.Pid_t, int, defs.Err_t) {
	ptable.l.Acquire()
	for {
		havekids := false
		for pid, c := range ptable.procs {
			if c.parent != p {
				continue
			}
			havekids = true
			if c.state == ZOMBIE {
				status := c.exitStatus
				delete(ptable.procs, pid)
				ptable.nprocs--
				ptable.l.Release()

				c.Vm.Lock_pmap()
				c.Vm.Uvmfree()
				c.Vm.Unlock_pmap()

				threadnotes.Lock()
				delete(threadnotes.Notes, c.tid)
				threadnotes.Unlock()

				return pid, status, 0
			}
		}
		if !havekids || p.note.IsKilled() {
			ptable.l.Release()
			return 0, 0, -defs.ECHILD
		}
		lock.Sleep(p, &ptable.l)
	}
}

// Kill marks the process pid as killed and, if it is currently
// blocked, forces it to wake up so it can notice. xv6's kill() only
// had to flip p->state from SLEEPING to RUNNABLE because its
// scheduler polled state on every reschedule; a goroutine genuinely
// parked inside lock.Sleep's sync.Cond.Wait needs an actual Wakeup on
// whatever channel it's parked on to ever run again. Grounded on
// original_source/proc.c's kill().
func Kill(pid defs.Pid_t) defs.Err_t {
	ptable.l.Acquire()
	p, ok := ptable.procs[pid]
	if !ok {
		ptable.l.Release()
		return -defs.ESRCH
	}

	p.note.Lock()
	p.note.Killed = true
	p.note.Unlock()

	if p.state == SLEEPING {
		p.state = RUNNABLE
	}
	ch := p.note.Waitchan()
	ptable.l.Release()

	if ch != nil {
		lock.Wakeup(ch)
	}
	return 0
}
