package proc

import "defs"
import "mem"
import "util"

// Growproc changes p's size by n bytes (n may be negative), the
// implementation behind the sbrk syscall. Grounded on
// original_source/proc.c's growproc(), which calls allocuvm/deallocuvm
// on a page-granular heap despite sbrk's byte-granular interface; we
// do the same, rounding the old and new break to page boundaries
// before touching the address space and only updating p.Sz (the
// precise byte-granular size) once the underlying vm.Vm_t call
// succeeds.
func Growproc(p *Proc_t, n int) defs.Err_t {
	if n == 0 {
		return 0
	}

	oldsz := p.Sz
	newsz := oldsz + n
	if newsz < 0 {
		return -defs.EINVAL
	}

	oldpg := util.Roundup(oldsz, mem.PGSIZE)
	newpg := util.Roundup(newsz, mem.PGSIZE)

	p.Vm.Lock_pmap()
	defer p.Vm.Unlock_pmap()

	if newpg > oldpg {
		p.Vm.Vmadd_anon(oldpg, newpg-oldpg, mem.PTE_U|mem.PTE_W)
	} else if newpg < oldpg {
		p.Vm.Vmregion.Shrink(p.Vm.Pmap, uintptr(newpg))
	}

	p.Sz = newsz
	return 0
}
