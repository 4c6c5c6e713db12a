package fs

import "sync"

import "defs"
import "fdops"
import "mem"
import "stat"
import "util"

// fsFd_t implements fdops.Fdops_i for a file description backed by an
// on-disk inode: regular files, directories (their raw entries can be
// read, but never written through an fd), and device files, whose data transfers are
// dispatched through the device-switch table instead of the block
// cache. Grounded on original_source/file.c's struct file plus
// fileread/filewrite/filestat.
type fsFd_t struct {
	fs     *Fs_t
	ip     *Inode_t
	mu     sync.Mutex // protects off
	off    int
	append_ bool
}

func (f *fsFd_t) Close() defs.Err_t {
	f.fs.iput(f.ip)
	return 0
}

func (f *fsFd_t) Fstat(st *stat.Stat_t) defs.Err_t {
	f.ip.ilock("fstat")
	f.fs.istat(f.ip, st)
	f.ip.iunlock()
	return 0
}

func (f *fsFd_t) Lseek(off, whence int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.ip.ilock("lseek")
		f.off = f.ip.Size() + off
		f.ip.iunlock()
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
	}
	return f.off, 0
}

func (f *fsFd_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.Pread(dst, f.off)
	if err == 0 {
		f.off += n
	}
	return n, err
}

func (f *fsFd_t) Reopen() defs.Err_t {
	f.ip.ref.Up()
	return 0
}

func (f *fsFd_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	off := f.off
	if f.append_ {
		f.ip.ilock("write-append")
		off = f.ip.Size()
		f.ip.iunlock()
	}
	n, err := f.Pwrite(src, off)
	if err == 0 {
		f.off = off + n
	}
	return n, err
}

func (f *fsFd_t) Truncate(newlen uint) defs.Err_t {
	f.ip.ilock("truncate")
	f.fs.log.Op_begin("truncate")
	f.ip.itrunc(int(newlen))
	f.fs.log.Op_end()
	f.ip.iunlock()
	return 0
}

func (f *fsFd_t) Pread(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	f.ip.ilock("pread")
	defer f.ip.iunlock()
	switch f.ip.Type() {
	case defs.I_DEV:
		return f.fs.devRead(f.ip.major, f.ip.minor, dst, offset)
	default:
		return f.readInode(dst, offset)
	}
}

func (f *fsFd_t) Pwrite(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	f.ip.ilock("pwrite")
	defer f.ip.iunlock()
	switch f.ip.Type() {
	case defs.I_DEV:
		return f.fs.devWrite(f.ip.major, f.ip.minor, src, offset)
	case defs.I_DIR:
		return 0, -defs.EISDIR
	default:
		return f.writeInode(src, offset)
	}
}

// readInode copies from ip's data blocks into dst, starting at offset.
// Must run with ip locked.
func (f *fsFd_t) readInode(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	ip := f.ip
	if offset >= ip.size {
		return 0, 0
	}
	n := dst.Remain()
	if offset+n > ip.size {
		n = ip.size - offset
	}
	tot := 0
	for tot < n {
		bn := (offset + tot) / BSIZE
		boff := (offset + tot) % BSIZE
		nc := util.Min(n-tot, BSIZE-boff)
		blk, _ := f.fs.bcache.Get_fill(ip.bmap(bn), "read", true)
		m, err := dst.Uiowrite(blk.Data[boff : boff+nc])
		blk.Unlock()
		f.fs.bcache.Relse(blk, "read")
		if err != 0 {
			return tot, err
		}
		tot += m
		if m < nc {
			break
		}
	}
	return tot, 0
}

// writeInode copies from src into ip's data blocks, growing the file
// as needed. Must run with ip locked.
func (f *fsFd_t) writeInode(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	ip := f.ip
	n := src.Remain()
	if offset+n > MAXFILE {
		return 0, -defs.EFBIG
	}
	f.fs.log.Op_begin("write")
	defer f.fs.log.Op_end()

	tot := 0
	for tot < n {
		bn := (offset + tot) / BSIZE
		boff := (offset + tot) % BSIZE
		nc := util.Min(n-tot, BSIZE-boff)
		blk, _ := f.fs.bcache.Get_fill(ip.bmap(bn), "write", true)
		m, err := src.Uioread(blk.Data[boff : boff+nc])
		if err == 0 {
			f.fs.log.Log_write(blk)
		}
		blk.Unlock()
		f.fs.bcache.Relse(blk, "write")
		if err != 0 {
			return tot, err
		}
		tot += m
		if m < nc {
			break
		}
	}
	if offset+tot > ip.size {
		ip.size = offset + tot
	}
	ip.iupdate()
	return tot, 0
}

// Mmapi returns the physical pages backing [offset, offset+length) of
// ip's data, pinning each cached block so it cannot be evicted until
// Unpin is called -- grounded on the teacher's file-backed Vminfo_t
// mapping (vm/vmregion.go's Filepage), generalized from a single page
// to the requested range.
func (f *fsFd_t) Mmapi(offset, length int, inc bool) ([]mem.Mmapinfo_t, defs.Err_t) {
	f.ip.ilock("mmapi")
	defer f.ip.iunlock()

	if inc && offset+length > f.ip.size {
		f.ip.size = offset + length
		f.ip.iupdate()
	}

	nblk := util.Roundup(length, BSIZE) / BSIZE
	startblk := offset / BSIZE
	ret := make([]mem.Mmapinfo_t, 0, nblk)
	for i := 0; i < nblk; i++ {
		blkn := f.ip.bmap(startblk + i)
		blk, _ := f.fs.bcache.Get_fill(blkn, "mmapi", false)
		blk.Ref.Up()
		f.fs.pin(blk)
		ret = append(ret, mem.Mmapinfo_t{Pg: mem.Bytepg2pg(blk.Data), Phys: blk.Pa})
	}
	return ret, 0
}

// Unpin releases a pin taken by Mmapi once a shared mapping using that
// physical page is torn down.
func (f *fsFd_t) Unpin(pa uintptr) {
	f.fs.unpin(mem.Pa_t(pa))
}
