// Command kernel boots the simulated kernel: physical memory, the
// on-disk filesystem, the syscall dispatcher, and the first process,
// then lets init wait for one child and block forever after that;
// unlike original_source/init.c, init does not loop reaping children.
//
// Real biscuit's equivalent entry point is reached by a bootloader
// jumping into kernel code linked against a patched Go runtime; there
// is no such loader or runtime here, so this command is a plain Go
// program run directly by the host, standing in for both BIOS boot
// and the patched runtime's early init.
package main

import "flag"
import "fmt"
import "os"

import "console"
import "defs"
import "mem"
import "oommsg"
import "proc"
import "syscall"
import "ufs"
import "vm"

// Disk layout for a freshly formatted image; generous enough for the
// one registered program and a handful of files without tuning.
const (
	nlogblks   = 256
	ninodeblks = 200
	ndatablks  = 8000
)

func main() {
	diskPath := flag.String("disk", "fs.img", "path to the on-disk filesystem image")
	flag.Parse()

	mem.Phys_init()
	// Real biscuit wires Cpumap from the APIC driver at boot; nothing
	// here ever schedules a TLB shootdown onto a real CPU, so any
	// constant mapping is as good as the real one.
	vm.Cpumap(func(int) uint32 { return 0 })

	if _, err := os.Stat(*diskPath); err != nil {
		fmt.Printf("kernel: formatting new filesystem image at %v\n", *diskPath)
		ufs.MkDisk(*diskPath, nil, nlogblks, ninodeblks, ndatablks)
	}

	cons := console.MkConsole()
	disk := ufs.BootFSCons(*diskPath, cons)
	defer ufs.ShutdownFS(disk)

	go reclaimDaemon(disk)

	sys := syscall.NewSys(disk.Fs())
	sys.RegisterProg("/hello", func(p *proc.Proc_t) { helloMain(p, sys) })

	as, verr := vm.MkVm()
	if verr != 0 {
		panic("kernel: out of memory setting up init's address space")
	}

	done := make(chan struct{})
	_, perr := proc.Userinit("init", as, 0, disk.Cwd(), func(p *proc.Proc_t) {
		initMain(p, sys)
		close(done)
		// init must never return from its main loop -- run() would
		// Exit it, and Exit refuses to run on initProc at all.
		select {}
	})
	if perr != 0 {
		panic("kernel: cannot start init")
	}

	<-done
	fmt.Println("kernel: init finished its startup work; idling")
	select {}
}

// reclaimDaemon answers the page-fault path's out-of-memory
// notifications (vm.Sys_pgfault, via oommsg.OomCh) by evicting disk's
// cached inodes and blocks, exactly the kind of reclaimable memory a
// buffer-cache-backed kernel has lying around. It always reports
// success: fs.Fs_evict frees whatever it can, and a faulting process
// that retries right after eviction either succeeds or (on genuine
// exhaustion) fails its allocation on the next attempt and returns
// -ENOMEM to its caller, same as without a reclaim daemon at all.
func reclaimDaemon(disk *ufs.Ufs_t) {
	for msg := range oommsg.OomCh {
		disk.Evict()
		msg.Resume <- true
	}
}

// must runs one syscall for p and panics if it fails; initMain plays
// the part of a trusted, hand-written init binary that does not
// expect its own bootstrap calls to fail.
func must(sys *syscall.Sys_t, p *proc.Proc_t, sa *syscall.Sysargs_t) int {
	ret := sys.Syscall(p, sa)
	if ret < 0 {
		panic(fmt.Sprintf("kernel: syscall %v failed: %v", sa.Num, sa.Err))
	}
	return ret
}

// putStr writes s plus a NUL terminator into p's address space at
// uva, growing p's heap first if uva falls past its current size.
func putStr(p *proc.Proc_t, uva int, s string) {
	want := uva + len(s) + 1
	if want > p.Sz {
		if err := proc.Growproc(p, want-p.Sz); err != 0 {
			panic("kernel: putStr: growproc failed")
		}
	}
	buf := append([]byte(s), 0)
	if err := p.Vm.K2user(buf, uva); err != 0 {
		panic("kernel: putStr: K2user failed")
	}
}

const (
	pathVa  = 0
	msgVa   = 256
	childVa = 512
)

// initMain mirrors original_source/init.c: make the console device
// node, open it on fds 0-2, announce that the kernel is up, then fork
// and exec the one program this kernel ships and wait for it.
func initMain(p *proc.Proc_t, sys *syscall.Sys_t) {
	putStr(p, pathVa, "/console")
	must(sys, p, &syscall.Sysargs_t{Num: syscall.SYS_mknod, Args: [6]int{pathVa, defs.D_CONSOLE, 0}})

	for wantfd := 0; wantfd < 3; wantfd++ {
		gotfd := must(sys, p, &syscall.Sysargs_t{Num: syscall.SYS_open, Args: [6]int{pathVa, defs.O_RDWR}})
		if gotfd != wantfd {
			panic("kernel: console fds out of order")
		}
	}

	banner := "kernel: init is up\n"
	putStr(p, msgVa, banner)
	must(sys, p, &syscall.Sysargs_t{Num: syscall.SYS_write, Args: [6]int{1, msgVa, len(banner)}})

	putStr(p, childVa, "/hello")
	must(sys, p, &syscall.Sysargs_t{
		Num:       syscall.SYS_fork,
		ChildMain: func(cp *proc.Proc_t) { execHello(cp, sys) },
	})

	// wait(0): reap the child without caring about its exit status,
	// exactly as original_source/init.c's parent loop does.
	must(sys, p, &syscall.Sysargs_t{Num: syscall.SYS_wait, Args: [6]int{0}})
}

// execHello replaces the forked child with the registered "/hello"
// program, matching original_source/init.c's fork-then-exec pattern.
func execHello(p *proc.Proc_t, sys *syscall.Sys_t) {
	putStr(p, pathVa, "/hello")
	sys.Syscall(p, &syscall.Sysargs_t{Num: syscall.SYS_exec, Args: [6]int{pathVa}})
}

// helloMain is the one statically "linked" program this kernel ships:
// original_source/init.c execs a real /init binary off disk, but
// without an ELF loader RegisterProg supplies a program's body
// directly instead. Sys_exec hands it a fresh, empty address space
// (see syscall.Sys_exec), so it grows its own heap before touching
// user memory, exactly as a freshly exec'd program's runtime would
// before its first write.
func helloMain(p *proc.Proc_t, sys *syscall.Sys_t) {
	msg := "hello from a registered program\n"
	putStr(p, msgVa, msg)
	sys.Syscall(p, &syscall.Sysargs_t{Num: syscall.SYS_write, Args: [6]int{1, msgVa, len(msg)}})
}
