package vm

import "mem"

import "defs"

// This file supplies the page-table and PTE-bit machinery vm/as.go was
// written against but that the retrieved teacher source never
// shipped (the package only included as.go and userbuf.go). It is
// grounded on original_source/vm.c's walk()/freevm() and on the
// hardware x86-64 four-level page table format biscuit's own
// mem.Pmap_t (512-entry array of physical addresses) already assumes.

// Re-exported so vm's own files can refer to the PTE bits without
// qualifying every use with mem.
const (
	PGSHIFT  = mem.PGSHIFT
	PGSIZE   = mem.PGSIZE
	PGOFFSET = mem.PGOFFSET
	PTE_P    = mem.PTE_P
	PTE_W    = mem.PTE_W
	PTE_U    = mem.PTE_U
	PTE_G    = mem.PTE_G
	PTE_PCD  = mem.PTE_PCD
	PTE_PS   = mem.PTE_PS
	PTE_ADDR = mem.PTE_ADDR
)

// Software-only PTE bits: x86-64 reserves bits 9-11 of a present PTE
// for OS use. We repurpose two of them for copy-on-write bookkeeping,
// and track the accessed/dirty bits ourselves in bits 5 and 6 since
// there is no real MMU setting them for us.
const (
	PTE_COW    mem.Pa_t = 1 << 9
	PTE_WASCOW mem.Pa_t = 1 << 10
	PTE_A      mem.Pa_t = 1 << 5
	PTE_D      mem.Pa_t = 1 << 6
)

func pgbits(va int) (l4, l3, l2, l1 uint) {
	u := uint(va)
	l4 = (u >> 39) & 0x1ff
	l3 = (u >> 30) & 0x1ff
	l2 = (u >> 21) & 0x1ff
	l1 = (u >> 12) & 0x1ff
	return
}

// descends one page-table level, creating the child page-table page
// (with perm on its own PTE) if it is missing and create is set.
func nextlevel(cur *mem.Pmap_t, idx uint, create bool, perm mem.Pa_t) (*mem.Pmap_t, defs.Err_t) {
	pte := &cur[idx]
	if *pte&PTE_P == 0 {
		if !create {
			return nil, -defs.ENOMEM
		}
		child, p_child, ok := mem.Physmem.Pmap_new()
		if !ok {
			return nil, -defs.ENOMEM
		}
		*pte = mem.Pa_t(p_child) | perm | PTE_P
		return child, 0
	}
	return mem.Pg2pmap(mem.Physmem.Dmap(*pte & PTE_ADDR)), 0
}

/// pmap_walk returns the leaf PTE for va in pmap, allocating
/// intermediate page-table levels (using perm for their own PTEs) if
/// they don't exist yet.
func pmap_walk(pmap *mem.Pmap_t, va int, perm mem.Pa_t) (*mem.Pa_t, defs.Err_t) {
	l4, l3, l2, l1 := pgbits(va)
	cur := pmap
	for _, idx := range []uint{l4, l3, l2} {
		next, err := nextlevel(cur, idx, true, perm)
		if err != 0 {
			return nil, err
		}
		cur = next
	}
	return &cur[l1], 0
}

/// Pmap_lookup returns the leaf PTE for va, or nil if any level of the
/// walk is not yet present. It never allocates.
func Pmap_lookup(pmap *mem.Pmap_t, va int) *mem.Pa_t {
	l4, l3, l2, l1 := pgbits(va)
	cur := pmap
	for _, idx := range []uint{l4, l3, l2} {
		next, err := nextlevel(cur, idx, false, 0)
		if err != 0 {
			return nil
		}
		cur = next
	}
	return &cur[l1]
}

/// Uvmfree_inner releases all present user mappings reachable from
/// pmap. It does not free the page-table pages themselves; those are
/// reclaimed when the pml4's reference count (mem.Physmem.Dec_pmap)
/// drops to zero, mirroring freevm()'s two-phase teardown.
func Uvmfree_inner(pmap *mem.Pmap_t, p_pmap mem.Pa_t, vmr *Vmregion_t) {
	for _, vmi := range vmr.all() {
		start := int(vmi.Pgn << PGSHIFT)
		end := start + vmi.Pglen*PGSIZE
		for va := start; va < end; va += PGSIZE {
			pte := Pmap_lookup(pmap, va)
			if pte == nil || *pte&PTE_P == 0 {
				continue
			}
			p_pg := *pte & PTE_ADDR
			*pte = 0
			mem.Physmem.Refdown(p_pg)
		}
	}
}

// tlb_shootdown invalidates pgcount pages starting at startva in every
// CPU's TLB that may have this pmap loaded. Goroutines never hold a
// private hardware TLB the way real CPU cores do -- they all execute
// against the same process memory -- so there is nothing to shoot
// down; the call remains so callers keep the same "modify page table,
// then shoot down stale translations" shape the original hardware
// kernel required.
func tlb_shootdown(p_pmap mem.Pa_t, tlbp *uint64, startva uintptr, pgcount int) {
}
