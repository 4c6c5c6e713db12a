package vm

import "sort"

import "fdops"
import "mem"
import "defs"

// This file completes the address-space bookkeeping vm/as.go assumes:
// the set of virtual mappings an address space holds (Vmregion_t), a
// single mapping's description (Vminfo_t), and the file backing one
// (Mfile_t). Grounded on original_source/vm.c's vmregion, which keeps
// the same "sorted list of non-overlapping [pgn, pgn+pglen) intervals"
// shape.

type mtype_t int

const (
	VANON mtype_t = iota
	VFILE
	VSANON
)

// / Mfile_t describes the file backing a VFILE mapping, shared by every
// / Vminfo_t that maps the same file region.
type Mfile_t struct {
	mfops    fdops.Fdops_i
	unpin    mem.Unpin_i
	mapcount int
}

type vmfile_t struct {
	foff   int
	mfile  *Mfile_t
	shared bool
}

// / Vminfo_t describes one mapping within an address space: its page
// / range, type, and permissions.
type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr
	Pglen int
	Perms uint
	file  vmfile_t
}

// / Ptefor returns the PTE for va within this mapping, creating
// / intermediate page-table levels if necessary.
func (vmi *Vminfo_t) Ptefor(pmap *mem.Pmap_t, va uintptr) (*mem.Pa_t, bool) {
	perm := PTE_U
	if vmi.Perms&uint(PTE_W) != 0 {
		perm |= PTE_W
	}
	pte, err := pmap_walk(pmap, int(va), perm)
	if err != 0 {
		return nil, false
	}
	return pte, true
}

// / Filepage returns the backing page for the file-backed mapping at
// / faultaddr: the in-memory page, its physical address, and any
// / error reading it from the file's Fdops_i.
func (vmi *Vminfo_t) Filepage(faultaddr uintptr) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	if vmi.Mtype != VFILE {
		panic("not a file mapping")
	}
	pgn := faultaddr >> PGSHIFT
	off := vmi.file.foff + int(pgn-vmi.Pgn)*mem.PGSIZE
	mm, err := vmi.file.mfile.mfops.Mmapi(off, 1, vmi.file.shared)
	if err != 0 {
		return nil, 0, err
	}
	return mm[0].Pg, mm[0].Phys, 0
}

// / Vmregion_t holds the non-overlapping, sorted-by-page-number set of
// / mappings that make up one address space. Its owning Vm_t's mutex
// / (taken via Lock_pmap/Lock) serializes every access; Vmregion_t
// / itself holds no lock.
type Vmregion_t struct {
	rb []*Vminfo_t
}

// / Lookup finds the mapping containing page-aligned virtual address
// / va, if any.
func (vr *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	pgn := va >> PGSHIFT
	i := sort.Search(len(vr.rb), func(i int) bool {
		return vr.rb[i].Pgn+uintptr(vr.rb[i].Pglen) > pgn
	})
	if i >= len(vr.rb) || pgn < vr.rb[i].Pgn {
		return nil, false
	}
	return vr.rb[i], true
}

// insert adds vmi to the region list, keeping it sorted by page
// number. It panics on overlap with an existing mapping -- callers
// are expected to have already reserved the range via empty().
func (vr *Vmregion_t) insert(vmi *Vminfo_t) {
	if vmi.Mtype == VFILE && vmi.file.mfile != nil && vmi.file.mfile.mfops != nil {
		vmi.file.mfile.mfops.Reopen()
	}
	i := sort.Search(len(vr.rb), func(i int) bool {
		return vr.rb[i].Pgn >= vmi.Pgn
	})
	if i < len(vr.rb) && vr.rb[i].Pgn < vmi.Pgn+uintptr(vmi.Pglen) {
		panic("overlapping vm mapping")
	}
	vr.rb = append(vr.rb, nil)
	copy(vr.rb[i+1:], vr.rb[i:])
	vr.rb[i] = vmi
}

// / empty finds a free region of len bytes at or after start, and
// / returns its start address and available length.
func (vr *Vmregion_t) empty(start, len uintptr) (uintptr, uintptr) {
	pgn := start >> PGSHIFT
	pglen := (len + uintptr(PGOFFSET)) >> PGSHIFT
	for _, cur := range vr.rb {
		cend := cur.Pgn + uintptr(cur.Pglen)
		if pgn < cend {
			pgn = cend
		}
	}
	avail := ^uintptr(0)
	for _, cur := range vr.rb {
		if cur.Pgn >= pgn && cur.Pgn-pgn < avail {
			avail = cur.Pgn - pgn
		}
	}
	if avail == ^uintptr(0) {
		avail = pglen
		if avail == 0 {
			avail = 1 << 20
		}
	}
	return pgn << PGSHIFT, avail << PGSHIFT
}

// all returns the mappings in this region, for callers (Uvmfree_inner)
// that must iterate every mapping while tearing down an address
// space.
func (vr *Vmregion_t) all() []*Vminfo_t {
	return vr.rb
}

// / Clear releases this region's hold on any backing files and empties
// / the mapping list.
func (vr *Vmregion_t) Clear() {
	for _, vmi := range vr.rb {
		if vmi.Mtype == VFILE && vmi.file.mfile != nil && vmi.file.mfile.mfops != nil {
			vmi.file.mfile.mfops.Close()
		}
	}
	vr.rb = nil
}

// / Shrink removes every mapping at or above the page-aligned virtual
// / address lo, unmapping and dropping a reference on any page
// / currently present in pmap. Grounded on original_source/vm.c's
// / deallocuvm, called from proc.Growproc's shrink path (sbrk with a
// / negative increment). The caller must hold the owning Vm_t's pmap
// / lock.
func (vr *Vmregion_t) Shrink(pmap *mem.Pmap_t, lo uintptr) {
	loPgn := lo >> PGSHIFT
	kept := vr.rb[:0]
	for _, vmi := range vr.rb {
		switch {
		case vmi.Pgn >= loPgn:
			unmapRange(pmap, vmi.Pgn, vmi.Pglen)
			if vmi.Mtype == VFILE && vmi.file.mfile != nil && vmi.file.mfile.mfops != nil {
				vmi.file.mfile.mfops.Close()
			}
		case vmi.Pgn+uintptr(vmi.Pglen) > loPgn:
			newlen := int(loPgn - vmi.Pgn)
			unmapRange(pmap, loPgn, vmi.Pglen-newlen)
			vmi.Pglen = newlen
			kept = append(kept, vmi)
		default:
			kept = append(kept, vmi)
		}
	}
	vr.rb = kept
}

// unmapRange clears pgcount present PTEs starting at page number pgn,
// dropping a physical page reference for each one removed.
func unmapRange(pmap *mem.Pmap_t, pgn uintptr, pgcount int) {
	start := int(pgn << PGSHIFT)
	end := start + pgcount*PGSIZE
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
