package mem

// Real biscuit maps all of physical memory into the kernel's address
// space once at boot (Dmap_init, which built the kernel's own page
// tables by hand) and serves Physmem_t.Dmap by pointer arithmetic into
// that direct map, discovering installed RAM via the patched
// runtime's Get_phys hook. Without that patched runtime there is no
// real physical address space to map: this file simulates one as a
// flat Go slice of pages, the same way ufs/driver.go simulates a disk
// with a host file instead of talking to real AHCI hardware. Pa_t
// values are simply (page index << PGSHIFT) into ram.

/// USERMIN is the lowest user virtual address.
const USERMIN int = 1 << 32

var ram []Pg_t

/// P_zeropg is the physical address of Zeropg.
var P_zeropg Pa_t

func ramInit(npages int) {
	ram = make([]Pg_t, npages)
}

/// Dmap converts a physical address into the page that backs it.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	idx := p >> PGSHIFT
	if int(idx) >= len(ram) {
		panic("Pa_t out of simulated RAM")
	}
	return &ram[idx]
}

/// Dmap_v2p converts a page pointer obtained from Dmap back to its
/// physical address.
func (phys *Physmem_t) Dmap_v2p(v *Pg_t) Pa_t {
	for i := range ram {
		if &ram[i] == v {
			return Pa_t(i) << PGSHIFT
		}
	}
	panic("not a ram-backed page")
}

/// Dmap8 returns a byte slice view of the page containing p, starting
/// at p's offset within that page.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	pg := phys.Dmap(p)
	off := p & PGOFFSET
	bpg := Pg2bytes(pg)
	return bpg[off:]
}
