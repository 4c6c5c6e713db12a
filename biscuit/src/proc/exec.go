package proc

import "defs"
import "vm"

// Exec replaces p's address space and name, then runs newmain in
// place of the freshly exec'd program. Grounded on
// original_source/sysfile.c's sys_exec / exec(), which builds a new
// page directory from an ELF image, frees the caller's old one, and
// jumps to the new program's entry point -- on success exec() never
// returns to its caller.
//
// This kernel has no ELF loader and no means of executing arbitrary
// x86 instructions (there is no patched runtime simulating user-mode
// execution); newmain stands in for "the loaded program", called
// directly in the exec'ing goroutine exactly where the real kernel
// would jump to the new _start. Like the original, Exec only returns
// to its caller on failure -- on success it falls straight through to
// Exit once newmain returns.
func Exec(p *Proc_t, name string, newas *vm.Vm_t, sz int, newmain func(*Proc_t)) defs.Err_t {
	if newas == nil {
		return -defs.EINVAL
	}

	p.Vm.Lock_pmap()
	p.Vm.Uvmfree()
	p.Vm.Unlock_pmap()

	p.Vm = newas
	p.Sz = sz
	p.Name = name

	newmain(p)
	Exit(p, 0)
	panic("Exit does not return")
}
