package fs

import "util"

import "defs"
import "ustr"

// Directory entries: a directory's data blocks hold a flat array of
// fixed-size (name, inum) pairs, read and written exactly like any
// other file's data through Read/Write_i_inner. Grounded on
// original_source/fs.c's struct dirent / dirlink / dirlookup, widened
// from xv6's 14-byte DIRSIZ since there is no struct-size parity with
// a C client to maintain.

// / DIRSIZ is the maximum file name length stored in one directory
// / entry; longer names are truncated rather than rejected.
const DIRSIZ = 56

const direntsz = DIRSIZ + 8 // name bytes + 8-byte inode number

// / NDIRENTS is the number of directory entries that fit in one block.
const NDIRENTS = BSIZE / direntsz

// / Dirdata_t views a byte slice (one or more blocks of a directory's
// / data) as an array of directory entries.
type Dirdata_t struct {
	Raw []uint8
}

func (dd Dirdata_t) off(i int) int { return i * direntsz }

// / Filename returns the name stored in entry i, or nil if that slot
// / is unused.
func (dd Dirdata_t) Filename(i int) ustr.Ustr {
	o := dd.off(i)
	raw := dd.Raw[o : o+DIRSIZ]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	if n == 0 {
		return nil
	}
	name := make(ustr.Ustr, n)
	copy(name, raw[:n])
	return name
}

// / Inum returns the inode number stored in entry i.
func (dd Dirdata_t) Inum(i int) int {
	return util.Readn(dd.Raw, 8, dd.off(i)+DIRSIZ)
}

func (dd Dirdata_t) setName(i int, name ustr.Ustr) {
	o := dd.off(i)
	for j := 0; j < DIRSIZ; j++ {
		dd.Raw[o+j] = 0
	}
	n := len(name)
	if n > DIRSIZ {
		n = DIRSIZ
	}
	copy(dd.Raw[o:o+n], name[:n])
}

func (dd Dirdata_t) setInum(i int, inum int) {
	util.Writen(dd.Raw, 8, dd.off(i)+DIRSIZ, inum)
}

// dirLookup searches dir's data for name, returning its inum and the
// byte offset of the matching entry (for unlink/rename rewrites), or
// ok=false if absent.
func (fs *Fs_t) dirLookup(dir *Inode_t, name ustr.Ustr) (inum int, off int, ok bool) {
	if len(name) > DIRSIZ {
		name = name[:DIRSIZ]
	}
	nblk := util.Roundup(dir.size, BSIZE) / BSIZE
	for bi := 0; bi < nblk; bi++ {
		blk, _ := fs.bcache.Get_fill(dir.bmap(bi), "dirlookup", true)
		dd := Dirdata_t{blk.Data[:]}
		for i := 0; i < NDIRENTS; i++ {
			fn := dd.Filename(i)
			if fn != nil && fn.Eq(name) {
				inum = dd.Inum(i)
				off = bi*BSIZE + i*direntsz
				ok = true
				blk.Unlock()
				fs.bcache.Relse(blk, "dirlookup")
				return
			}
		}
		blk.Unlock()
		fs.bcache.Relse(blk, "dirlookup")
	}
	return 0, 0, false
}

// dirAdd appends a (name, inum) entry to dir, reusing the first empty
// slot if one exists, else growing the directory by one block.
func (fs *Fs_t) dirAdd(dir *Inode_t, name ustr.Ustr, inum int) defs.Err_t {
	nblk := util.Roundup(dir.size, BSIZE) / BSIZE
	for bi := 0; bi < nblk; bi++ {
		blk, _ := fs.bcache.Get_fill(dir.bmap(bi), "diradd", true)
		dd := Dirdata_t{blk.Data[:]}
		for i := 0; i < NDIRENTS; i++ {
			if dd.Filename(i) == nil {
				dd.setName(i, name)
				dd.setInum(i, inum)
				fs.log.Log_write(blk)
				blk.Unlock()
				fs.bcache.Relse(blk, "diradd")
				return 0
			}
		}
		blk.Unlock()
		fs.bcache.Relse(blk, "diradd")
	}
	// no empty slot: extend the directory by one block of entries
	bi := nblk
	blk, _ := fs.bcache.Get_zero(dir.bmap(bi), "diradd-new", true)
	dd := Dirdata_t{blk.Data[:]}
	dd.setName(0, name)
	dd.setInum(0, inum)
	fs.log.Log_write(blk)
	blk.Unlock()
	fs.bcache.Relse(blk, "diradd-new")
	dir.size = (bi + 1) * BSIZE
	dir.iupdate()
	return 0
}

// dirRemove clears the entry at byte offset off within dir (found via
// dirLookup), freeing the slot for reuse.
func (fs *Fs_t) dirRemove(dir *Inode_t, off int) {
	bi := off / BSIZE
	idx := (off % BSIZE) / direntsz
	blk, _ := fs.bcache.Get_fill(dir.bmap(bi), "dirrm", true)
	dd := Dirdata_t{blk.Data[:]}
	dd.setName(idx, nil)
	dd.setInum(idx, 0)
	fs.log.Log_write(blk)
	blk.Unlock()
	fs.bcache.Relse(blk, "dirrm")
}

// dirEmpty reports whether dir holds only "." and ".." entries.
func (fs *Fs_t) dirEmpty(dir *Inode_t) bool {
	nblk := util.Roundup(dir.size, BSIZE) / BSIZE
	for bi := 0; bi < nblk; bi++ {
		blk, _ := fs.bcache.Get_fill(dir.bmap(bi), "direm", true)
		dd := Dirdata_t{blk.Data[:]}
		for i := 0; i < NDIRENTS; i++ {
			fn := dd.Filename(i)
			if fn != nil && !fn.Isdot() && !fn.Isdotdot() {
				blk.Unlock()
				fs.bcache.Relse(blk, "direm")
				return false
			}
		}
		blk.Unlock()
		fs.bcache.Relse(blk, "direm")
	}
	return true
}
