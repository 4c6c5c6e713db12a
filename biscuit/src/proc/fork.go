package proc

import "fd"
import "defs"

// Fork duplicates parent into a new child process, exactly as
// original_source/proc.c's fork() duplicates the calling process: a
// copy-on-write address space (vm.Vm_t.Copyuvm), a reopened copy of
// every open file descriptor, and a reopened working directory.
//
// Real xv6 fork() returns twice: 0 in the child (which resumes at the
// instruction after fork()) and the child's pid in the parent. A
// goroutine has no saved trapframe to resume into, so instead of
// "continuing execution at the fork point" the child runs main from
// its start -- main is the child's entire program, called with the
// new Proc_t as its argument exactly as a freshly exec'd program
// would be. Fork returns only once, to the parent, with the child's
// pid.
func Fork(parent *Proc_t, main func(*Proc_t)) (defs.Pid_t, defs.Err_t) {
	child, err := newProc(parent.Name, parent)
	if err != 0 {
		return 0, err
	}

	parent.Vm.Lock_pmap()
	cvm, verr := parent.Vm.Copyuvm()
	parent.Vm.Unlock_pmap()
	if verr != 0 {
		freeProc(child)
		return 0, verr
	}
	child.Vm = cvm
	child.Sz = parent.Sz

	parent.mu.Lock()
	child.Fds = make([]*fd.Fd_t, len(parent.Fds))
	for i, f := range parent.Fds {
		if f == nil {
			continue
		}
		nf, ferr := fd.Copyfd(f)
		if ferr != 0 {
			parent.mu.Unlock()
			cvm.Uvmfree()
			freeProc(child)
			return 0, ferr
		}
		child.Fds[i] = nf
	}
	var cwdfd *fd.Fd_t
	var cerr defs.Err_t
	if parent.Cwd != nil {
		cwdfd, cerr = fd.Copyfd(parent.Cwd.Fd)
	}
	parent.mu.Unlock()
	if cerr != 0 {
		for _, f := range child.Fds {
			if f != nil {
				f.Fops.Close()
			}
		}
		cvm.Uvmfree()
		freeProc(child)
		return 0, cerr
	}
	if parent.Cwd != nil {
		child.Cwd = &fd.Cwd_t{Fd: cwdfd, Path: copyPath(parent.Cwd.Path)}
	}

	ptable.l.Acquire()
	child.state = RUNNABLE
	ptable.l.Release()

	go child.run(main)

	return child.Pid, 0
}
