package proc_test

import "testing"
import "time"

import "defs"
import "mem"
import "proc"
import "vm"

func TestMain(m *testing.M) {
	mem.Phys_init()
	// Real biscuit wires Cpumap from the APIC driver at boot; nothing
	// in these tests cares which CPU a shootdown claims to target.
	vm.Cpumap(func(int) uint32 { return 0 })
	m.Run()
}

func TestForkExitWait(t *testing.T) {
	as, err := vm.MkVm()
	if err != 0 {
		t.Fatalf("MkVm: %v", err)
	}

	done := make(chan struct{})
	var gotPid defs.Pid_t
	var gotStatus int
	var gotErr defs.Err_t

	root, err := proc.Userinit("root", as, 0, nil, func(rp *proc.Proc_t) {
		gotPid, gotStatus, gotErr = proc.Wait(rp)
		close(done)
		// an init process never returns from its main loop; block here
		// so run() never calls Exit(root, ...).
		select {}
	})
	if err != 0 {
		t.Fatalf("Userinit: %v", err)
	}

	childPid, err := proc.Fork(root, func(cp *proc.Proc_t) {
		// child does nothing: run() exits it with status 0, exactly
		// as a program that falls off the end of main.
	})
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("parent's Wait never returned")
	}

	if gotErr != 0 {
		t.Fatalf("Wait error: %v", gotErr)
	}
	if gotPid != childPid {
		t.Fatalf("Wait pid = %v, want %v", gotPid, childPid)
	}
	if gotStatus != 0 {
		t.Fatalf("Wait status = %v, want 0", gotStatus)
	}
}

func TestKillWakesWaiter(t *testing.T) {
	as, err := vm.MkVm()
	if err != 0 {
		t.Fatalf("MkVm: %v", err)
	}

	root, err := proc.Userinit("root2", as, 0, nil, func(*proc.Proc_t) {
		select {}
	})
	if err != 0 {
		t.Fatalf("Userinit: %v", err)
	}

	waitDone := make(chan defs.Err_t, 1)
	waiterPid, err := proc.Fork(root, func(wp *proc.Proc_t) {
		// a child that never exits, so wp's Wait below has to block.
		if _, ferr := proc.Fork(wp, func(*proc.Proc_t) { select {} }); ferr != 0 {
			waitDone <- ferr
			return
		}
		_, _, werr := proc.Wait(wp)
		waitDone <- werr
		select {}
	})
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}

	// give the waiter's goroutine time to reach its blocking Wait.
	time.Sleep(50 * time.Millisecond)

	if kerr := proc.Kill(waiterPid); kerr != 0 {
		t.Fatalf("Kill: %v", kerr)
	}

	select {
	case werr := <-waitDone:
		if werr != -defs.ECHILD {
			t.Fatalf("Wait returned %v, want -ECHILD", werr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("killed waiter never woke up")
	}
}

func TestGrowproc(t *testing.T) {
	as, err := vm.MkVm()
	if err != 0 {
		t.Fatalf("MkVm: %v", err)
	}
	p, err := proc.Userinit("growtest", as, 0, nil, func(*proc.Proc_t) {
		select {}
	})
	if err != 0 {
		t.Fatalf("Userinit: %v", err)
	}

	if gerr := proc.Growproc(p, mem.PGSIZE); gerr != 0 {
		t.Fatalf("grow: %v", gerr)
	}
	if p.Sz != mem.PGSIZE {
		t.Fatalf("Sz = %d, want %d", p.Sz, mem.PGSIZE)
	}

	if gerr := proc.Growproc(p, -mem.PGSIZE); gerr != 0 {
		t.Fatalf("shrink: %v", gerr)
	}
	if p.Sz != 0 {
		t.Fatalf("Sz = %d, want 0", p.Sz)
	}
}

func TestKillSetsKilled(t *testing.T) {
	as, err := vm.MkVm()
	if err != 0 {
		t.Fatalf("MkVm: %v", err)
	}
	root, err := proc.Userinit("root3", as, 0, nil, func(*proc.Proc_t) {
		select {}
	})
	if err != 0 {
		t.Fatalf("Userinit: %v", err)
	}

	childPid, err := proc.Fork(root, func(cp *proc.Proc_t) {
		select {}
	})
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}

	if kerr := proc.Kill(childPid); kerr != 0 {
		t.Fatalf("Kill: %v", kerr)
	}
	child, ok := proc.Find(childPid)
	if !ok {
		t.Fatal("child missing from process table")
	}
	if !child.Killed() {
		t.Fatal("child not marked killed")
	}
	if kerr := proc.Kill(defs.Pid_t(999999)); kerr != -defs.ESRCH {
		t.Fatalf("Kill of unknown pid = %v, want -ESRCH", kerr)
	}
}

// TestWaitFreesVm checks that reaping a zombie child releases its
// address space rather than leaking it: a child that grows its heap
// by several pages and exits must return those pages to the free list
// by the time its parent's Wait returns.
func TestWaitFreesVm(t *testing.T) {
	as, err := vm.MkVm()
	if err != 0 {
		t.Fatalf("MkVm: %v", err)
	}

	const grown = 4 * mem.PGSIZE
	done := make(chan struct{})
	var gotErr defs.Err_t

	root, err := proc.Userinit("vmtest", as, 0, nil, func(rp *proc.Proc_t) {
		_, _, gotErr = proc.Wait(rp)
		close(done)
		select {}
	})
	if err != 0 {
		t.Fatalf("Userinit: %v", err)
	}

	freeBefore, _, _, _ := mem.Physmem.Pgcount()

	_, err = proc.Fork(root, func(cp *proc.Proc_t) {
		if gerr := proc.Growproc(cp, grown); gerr != 0 {
			t.Errorf("child grow: %v", gerr)
		}
	})
	if err != 0 {
		t.Fatalf("Fork: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("parent's Wait never returned")
	}
	if gotErr != 0 {
		t.Fatalf("Wait error: %v", gotErr)
	}

	freeAfter, _, _, _ := mem.Physmem.Pgcount()
	if freeAfter < freeBefore {
		t.Fatalf("free pages after Wait = %d, want >= %d (pre-fork level): Uvmfree did not reclaim the child's address space", freeAfter, freeBefore)
	}
}
