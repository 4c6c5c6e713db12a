package fs

import "sync"

import "defs"
import "fd"
import "fdops"
import "hashtable"
import "mem"
import "stat"
import "ustr"

// Fs_t ties the block cache, redo log, inode cache and device-switch
// table together into one mountable filesystem, grounded on
// original_source/fs.c's global filesystem state (brought up by
// iinit/binit/initlog at boot there; a single StartFS call here).
//
// On-disk layout, in blocks from 0:
//   0                                    : superblock
//   [1, 1+Loglen)                        : redo log (header + slots)
//   [+Loglen, +Iorphanlen)               : orphan-inode bitmap
//   [+Iorphanlen, +Imaplen)              : reserved, unused by this
//                                          implementation (ialloc scans
//                                          dinodes directly, as in
//                                          original_source/fs.c)
//   [+Imaplen, +Inodelen)                : inode blocks
//   [Freeblock, +Freeblocklen)           : free-block bitmap
//   [..., Lastblock)                     : data blocks
type Fs_t struct {
	bcache     *bcache_t
	log        *log_t
	Superb     *Superblock_t
	icache     *hashtable.Hashtable_t
	icacheMu   sync.Mutex
	inodeStart int
	cons       fdops.Cons_i

	pinnedMu sync.Mutex
	pinned   map[mem.Pa_t]*Bdev_block_t
}

// maxCachedBlocks bounds the block cache's resident set; Fs_evict can
// be called under memory pressure to drop it further.
const maxCachedBlocks = 512

// / StartFS brings up a filesystem over disk via blockmem/disk, always
// / replaying the log first when logyes requests recovery (it must be
// / false only for a disk freshly formatted by mkfs, which has no log
// / to replay), and returns whether recovery ran along with the live
// / Fs_t.
func StartFS(blockmem Blockmem_i, disk Disk_i, cons fdops.Cons_i, logyes bool) (bool, *Fs_t) {
	fs := &Fs_t{}
	fs.cons = cons
	fs.pinned = make(map[mem.Pa_t]*Bdev_block_t)
	fs.bcache = mkCache(blockmem, disk, maxCachedBlocks)

	sblk, _ := fs.bcache.Get_fill(0, "super", true)
	sb := &Superblock_t{Data: &mem.Bytepg_t{}}
	*sb.Data = *sblk.Data
	sblk.Unlock()
	fs.bcache.Relse(sblk, "super")
	fs.Superb = sb

	fs.log = mklog(fs.bcache, disk, 1, sb.Loglen())
	fs.inodeStart = 1 + sb.Loglen() + sb.Iorphanlen() + sb.Imaplen()
	fs.icache = mkIcache()

	if logyes {
		fs.log.Recover()
	}
	fs.reclaimOrphans()

	return logyes, fs
}

// / StopFS flushes any outstanding transaction and drops the block
// / cache's resident set, leaving the on-disk filesystem consistent.
func (fs *Fs_t) StopFS() {
	fs.log.Op_begin("stopfs")
	fs.log.Op_end()
	fs.Fs_evict()
}

// / MkRootCwd opens the root directory and returns a Cwd_t rooted
// / there, suitable as a fresh process's initial working directory.
func (fs *Fs_t) MkRootCwd() *fd.Cwd_t {
	root := fs.iget(rootInum)
	rfd := &fsFd_t{fs: fs, ip: root}
	fdt := &fd.Fd_t{Fops: rfd, Perms: fd.FD_READ}
	return fd.MkRootCwd(fdt)
}

func (fs *Fs_t) pin(b *Bdev_block_t) {
	fs.pinnedMu.Lock()
	fs.pinned[b.Pa] = b
	fs.pinnedMu.Unlock()
}

func (fs *Fs_t) unpin(pa mem.Pa_t) {
	fs.pinnedMu.Lock()
	b, ok := fs.pinned[pa]
	if ok {
		delete(fs.pinned, pa)
	}
	fs.pinnedMu.Unlock()
	if ok {
		fs.bcache.Relse(b, "unpin")
	}
}

// create implements the shared core of Fs_open(O_CREAT) and Fs_mkdir:
// look up name in dir dp (itself resolved via fs_nameiparent), either
// returning the existing inode or allocating and linking a new one of
// itype. Grounded on original_source/fs.c's create().
func (fs *Fs_t) create(path ustr.Ustr, cwd *fd.Cwd_t, itype, maj, min int, excl bool) (*Inode_t, defs.Err_t) {
	dp, name, err := fs.fs_nameiparent(path, cwd)
	if err != 0 {
		return nil, err
	}
	dp.ilock("create")

	if inum, _, ok := fs.dirLookup(dp, name); ok {
		dp.iunlock()
		fs.iput(dp)
		if excl {
			return nil, -defs.EEXIST
		}
		ip := fs.iget(inum)
		ip.ilock("create")
		if itype == defs.I_DIR && ip.Type() != defs.I_DIR {
			ip.iunlock()
			fs.iput(ip)
			return nil, -defs.ENOTDIR
		}
		return ip, 0
	}

	ip := fs.ialloc(itype)
	ip.major = maj
	ip.minor = min
	ip.nlink = 1
	ip.iupdate()

	if itype == defs.I_DIR {
		dp.nlink++
		dp.iupdate()
		fs.dirAdd(ip, ustr.MkUstrDot(), ip.Inum())
		fs.dirAdd(ip, ustr.DotDot, dp.Inum())
	}
	if e := fs.dirAdd(dp, name, ip.Inum()); e != 0 {
		panic("create: dirAdd on fresh parent slot failed")
	}
	dp.iunlock()
	fs.iput(dp)
	return ip, 0
}

// / Fs_open resolves path (creating it first if flags has O_CREAT) and
// / returns an open file descriptor for it.
func (fs *Fs_t) Fs_open(path ustr.Ustr, flags int, mode int, cwd *fd.Cwd_t, maj, min int) (*fd.Fd_t, defs.Err_t) {
	fs.log.Op_begin("open")
	defer fs.log.Op_end()

	var ip *Inode_t
	var err defs.Err_t
	if flags&defs.O_CREAT != 0 {
		itype := defs.I_FILE
		if maj != 0 || min != 0 {
			itype = defs.I_DEV
		}
		ip, err = fs.create(path, cwd, itype, maj, min, flags&defs.O_EXCL != 0)
		if err != 0 {
			return nil, err
		}
	} else {
		ip, err = fs.fs_namei(path, cwd)
		if err != 0 {
			return nil, err
		}
		ip.ilock("open")
	}

	accmode := flags & 0x3
	if ip.Type() == defs.I_DIR && accmode != defs.O_RDONLY {
		ip.iunlock()
		fs.iput(ip)
		return nil, -defs.EISDIR
	}
	if flags&defs.O_TRUNC != 0 && ip.Type() == defs.I_FILE {
		ip.itrunc(0)
	}

	ffd := &fsFd_t{fs: fs, ip: ip, append_: flags&defs.O_APPEND != 0}
	ip.iunlock()

	perms := 0
	switch accmode {
	case defs.O_RDONLY:
		perms = fd.FD_READ
	case defs.O_WRONLY:
		perms = fd.FD_WRITE
	case defs.O_RDWR:
		perms = fd.FD_READ | fd.FD_WRITE
	}
	return &fd.Fd_t{Fops: ffd, Perms: perms}, 0
}

// / Fs_mkdir creates an empty directory at path.
func (fs *Fs_t) Fs_mkdir(path ustr.Ustr, mode int, cwd *fd.Cwd_t) defs.Err_t {
	fs.log.Op_begin("mkdir")
	defer fs.log.Op_end()

	ip, err := fs.create(path, cwd, defs.I_DIR, 0, 0, true)
	if err != 0 {
		return err
	}
	ip.iunlock()
	fs.iput(ip)
	return 0
}

// / Fs_unlink removes the directory entry at path. wantdir requires
// / path to name a (necessarily empty) directory; otherwise a
// / directory target is rejected with EISDIR.
func (fs *Fs_t) Fs_unlink(path ustr.Ustr, cwd *fd.Cwd_t, wantdir bool) defs.Err_t {
	fs.log.Op_begin("unlink")
	defer fs.log.Op_end()

	dp, name, err := fs.fs_nameiparent(path, cwd)
	if err != 0 {
		return err
	}
	dp.ilock("unlink")
	if name.Isdot() || name.Isdotdot() {
		dp.iunlock()
		fs.iput(dp)
		return -defs.EPERM
	}
	inum, off, ok := fs.dirLookup(dp, name)
	if !ok {
		dp.iunlock()
		fs.iput(dp)
		return -defs.ENOENT
	}

	ip := fs.iget(inum)
	ip.ilock("unlink")
	if wantdir && ip.Type() != defs.I_DIR {
		ip.iunlock()
		fs.iput(ip)
		dp.iunlock()
		fs.iput(dp)
		return -defs.ENOTDIR
	}
	if !wantdir && ip.Type() == defs.I_DIR {
		ip.iunlock()
		fs.iput(ip)
		dp.iunlock()
		fs.iput(dp)
		return -defs.EISDIR
	}
	if ip.Type() == defs.I_DIR && !fs.dirEmpty(ip) {
		ip.iunlock()
		fs.iput(ip)
		dp.iunlock()
		fs.iput(dp)
		return -defs.ENOTEMPTY
	}

	fs.dirRemove(dp, off)
	if ip.Type() == defs.I_DIR {
		dp.nlink--
		dp.iupdate()
	}
	ip.nlink--
	orphan := ip.nlink == 0 && ip.ref.Refcnt() > 1
	ip.iupdate()
	if orphan {
		fs.orphanMark(ip.Inum())
	}
	ip.iunlock()
	fs.iput(ip)
	dp.iunlock()
	fs.iput(dp)
	return 0
}

// / Fs_link adds a new directory entry newp naming the same inode as
// / oldp, bumping its link count. Refuses a directory target, matching
// / original_source/sysfile.c's sys_link -- hard links to directories
// / would make the tree a graph and break namex's ".." handling and
// / unlink's emptiness check.
func (fs *Fs_t) Fs_link(oldp, newp ustr.Ustr, cwd *fd.Cwd_t) defs.Err_t {
	fs.log.Op_begin("link")
	defer fs.log.Op_end()

	ip, err := fs.fs_namei(oldp, cwd)
	if err != 0 {
		return err
	}
	ip.ilock("link")
	if ip.Type() == defs.I_DIR {
		ip.iunlock()
		fs.iput(ip)
		return -defs.EPERM
	}
	ip.nlink++
	ip.iupdate()
	ip.iunlock()

	dp, name, err := fs.fs_nameiparent(newp, cwd)
	if err != 0 {
		goto bad
	}
	dp.ilock("link")
	if e := fs.dirAdd(dp, name, ip.Inum()); e != 0 {
		dp.iunlock()
		fs.iput(dp)
		err = e
		goto bad
	}
	dp.iunlock()
	fs.iput(dp)
	fs.iput(ip)
	return 0

bad:
	ip.ilock("link")
	ip.nlink--
	ip.iupdate()
	ip.iunlock()
	fs.iput(ip)
	return err
}

// / Fs_rename moves the entry named by oldp to newp, atomically with
// / respect to a crash (both the add and the remove happen within one
// / log transaction).
func (fs *Fs_t) Fs_rename(oldp, newp ustr.Ustr, cwd *fd.Cwd_t) defs.Err_t {
	fs.log.Op_begin("rename")
	defer fs.log.Op_end()

	srcdir, srcname, err := fs.fs_nameiparent(oldp, cwd)
	if err != 0 {
		return err
	}
	srcdir.ilock("rename-src")
	inum, off, ok := fs.dirLookup(srcdir, srcname)
	srcdir.iunlock()
	if !ok {
		fs.iput(srcdir)
		return -defs.ENOENT
	}

	dstdir, dstname, err := fs.fs_nameiparent(newp, cwd)
	if err != 0 {
		fs.iput(srcdir)
		return err
	}

	// Lock the two parent directories in a fixed order (by inum) to
	// avoid deadlocking against a concurrent rename of the opposite
	// direction; a rename within one directory sees first == second
	// since iget dedups by inum.
	first, second := srcdir, dstdir
	if dstdir.Inum() < srcdir.Inum() {
		first, second = dstdir, srcdir
	}
	first.ilock("rename-1")
	if first != second {
		second.ilock("rename-2")
	}

	if _, _, exists := fs.dirLookup(dstdir, dstname); exists {
		if first != second {
			second.iunlock()
		}
		first.iunlock()
		fs.iput(srcdir)
		fs.iput(dstdir)
		return -defs.EEXIST
	}
	if e := fs.dirAdd(dstdir, dstname, inum); e != 0 {
		if first != second {
			second.iunlock()
		}
		first.iunlock()
		fs.iput(srcdir)
		fs.iput(dstdir)
		return e
	}
	fs.dirRemove(srcdir, off)

	if first != second {
		second.iunlock()
	}
	first.iunlock()
	fs.iput(srcdir)
	fs.iput(dstdir)
	return 0
}

// / Fs_stat fills st with path's inode metadata.
func (fs *Fs_t) Fs_stat(path ustr.Ustr, st *stat.Stat_t, cwd *fd.Cwd_t) defs.Err_t {
	ip, err := fs.fs_namei(path, cwd)
	if err != 0 {
		return err
	}
	ip.ilock("stat")
	fs.istat(ip, st)
	ip.iunlock()
	fs.iput(ip)
	return 0
}

func (fs *Fs_t) istat(ip *Inode_t, st *stat.Stat_t) {
	var mode uint
	switch ip.Type() {
	case defs.I_DIR:
		mode = 1 << 14
	case defs.I_DEV:
		mode = 1 << 13
	default:
		mode = 1 << 15
	}
	st.Wmode(mode)
	st.Wino(uint(ip.Inum()))
	st.Wsize(uint(ip.Size()))
	st.Wdev(0)
	st.Wrdev(uint(ip.major<<8 | ip.minor))
}

// / Fs_sync commits any outstanding transaction, making every logged
// / write durable at its home location.
func (fs *Fs_t) Fs_sync() defs.Err_t {
	fs.log.Op_begin("sync")
	fs.log.Op_end()
	return 0
}

// / Fs_syncapply is like Fs_sync but also drops the block cache's
// / resident set, forcing the next access of any block to come from
// / disk -- used by tests that want to exercise Recover.
func (fs *Fs_t) Fs_syncapply() defs.Err_t {
	fs.log.Op_begin("syncapply")
	fs.log.Op_end()
	fs.Fs_evict()
	return 0
}

// / Fs_statistics reports the backing disk's accumulated I/O counters.
func (fs *Fs_t) Fs_statistics() string {
	return fs.bcache.disk.Stats()
}

// / Fs_evict drops every unreferenced block from the cache, for use
// / under memory pressure.
func (fs *Fs_t) Fs_evict() {
	fs.bcache.Lock()
	fs.bcache.evictAll()
	fs.bcache.Unlock()
}

// / Sizes reports the block cache's current and maximum resident block
// / counts.
func (fs *Fs_t) Sizes() (int, int) {
	fs.bcache.Lock()
	n := fs.bcache.nblks
	fs.bcache.Unlock()
	return n, fs.bcache.maxblks
}
