package fs

import "sync"

import "defs"
import "hashtable"
import "mem"
import "util"

// On-disk inode layout and the in-memory inode cache. Grounded on
// original_source/fs.c's struct dinode / iget / ilock / iupdate /
// itrunc, generalized with one extra field (Nblocks-style indirect
// count isn't needed; instead the orphan-inode bitmap in bitmap.go
// adds crash-safety for unlink-while-open that xv6 itself lacks).

const (
	NDIRECT   = 12
	NINDIRECT = BSIZE / 8
)

// maxFileBlocks is NDIRECT direct blocks plus one singly-indirect
// block of NINDIRECT block pointers; MAXFILE is that in bytes.
const maxFileBlocks = NDIRECT + NINDIRECT
const MAXFILE = maxFileBlocks * BSIZE

// INODESIZE is the on-disk size in bytes of one dinode slot.
const INODESIZE = 128
const IPB = BSIZE / INODESIZE // inodes per block

// dinode field byte offsets within its INODESIZE-byte slot.
const (
	di_type  = 0
	di_major = 2
	di_minor = 4
	di_nlink = 6
	di_size  = 8
	di_addrs = 16 // NDIRECT+1 8-byte block numbers follow
)

func inodeSlot(blkdata *mem.Bytepg_t, off int) []uint8 {
	return blkdata[off : off+INODESIZE]
}

// / Inode_t is the in-memory representation of an open inode: a cached
// / copy of its dinode fields plus the machinery (sleeplock, refcount)
// / needed to serialize and pin concurrent access.
type Inode_t struct {
	fs    *Fs_t
	guard sync.Mutex // protects valid/dinode fields before ilock is held
	ref   *Objref_t
	inum  int

	valid bool
	itype int
	major int
	minor int
	nlink int
	size  int
	addrs [NDIRECT + 1]int
}

// / Type returns the inode's file type (defs.I_FILE, I_DIR, I_DEV).
func (ip *Inode_t) Type() int { return ip.itype }

// / SetType sets the inode's file type.
func (ip *Inode_t) SetType(t int) { ip.itype = t }

// / Nlink returns the inode's hard link count.
func (ip *Inode_t) Nlink() int { return ip.nlink }

// / Size returns the inode's byte length.
func (ip *Inode_t) Size() int { return ip.size }

// / Inum returns the inode number.
func (ip *Inode_t) Inum() int { return ip.inum }

// maxIcache bounds the inode cache's resident set, matching the bucket
// count mkIcache gives its backing hashtable.Hashtable_t.
const maxIcache = 512

func (fs *Fs_t) iget(inum int) *Inode_t {
	fs.icacheMu.Lock()
	if v, ok := fs.icache.Get(inum); ok {
		ip := v.(*Inode_t)
		ip.ref.Up()
		fs.icacheMu.Unlock()
		return ip
	}
	if fs.icache.Size() >= maxIcache {
		if !fs.evictIcache() {
			fs.icacheMu.Unlock()
			panic("fs: no free inode cache entry")
		}
	}
	ip := &Inode_t{fs: fs, inum: inum, ref: mkObjref()}
	fs.icache.Set(inum, ip)
	fs.icacheMu.Unlock()
	return ip
}

// evictIcache drops one unreferenced cached inode to make room for a
// new iget, the inode-cache analog of bcache_t.evictsome. Must be
// called with fs.icacheMu held.
func (fs *Fs_t) evictIcache() bool {
	var victim int
	found := false
	fs.icache.Iter(func(k, v interface{}) bool {
		ip := v.(*Inode_t)
		if ip.ref.Refcnt() == 0 {
			victim = k.(int)
			found = true
			return true
		}
		return false
	})
	if !found {
		return false
	}
	fs.icache.Del(victim)
	return true
}

// / ilock locks the inode for exclusive access and loads its fields
// / from disk the first time it is locked.
func (ip *Inode_t) ilock(s string) {
	ip.guard.Lock()
	if ip.valid {
		return
	}
	ip.loadFromDisk()
	ip.valid = true
}

func (ip *Inode_t) iunlock() {
	ip.guard.Unlock()
}

func (ip *Inode_t) inodeBlock() int {
	return ip.fs.inodeStart + ip.inum/IPB
}

func (ip *Inode_t) loadFromDisk() {
	blk, _ := ip.fs.bcache.Get_fill(ip.inodeBlock(), "iload", true)
	off := (ip.inum % IPB) * INODESIZE
	d := inodeSlot(blk.Data, off)
	ip.itype = util.Readn(d, 2, di_type)
	ip.major = util.Readn(d, 2, di_major)
	ip.minor = util.Readn(d, 2, di_minor)
	ip.nlink = util.Readn(d, 2, di_nlink)
	ip.size = util.Readn(d, 8, di_size)
	for i := 0; i < NDIRECT+1; i++ {
		ip.addrs[i] = util.Readn(d, 8, di_addrs+i*8)
	}
	blk.Unlock()
	ip.fs.bcache.Relse(blk, "iload")
}

// / iupdate writes the inode's in-memory fields back to its dinode
// / slot, through the log.
func (ip *Inode_t) iupdate() {
	blk, _ := ip.fs.bcache.Get_fill(ip.inodeBlock(), "iupdate", true)
	off := (ip.inum % IPB) * INODESIZE
	d := inodeSlot(blk.Data, off)
	util.Writen(d, 2, di_type, ip.itype)
	util.Writen(d, 2, di_major, ip.major)
	util.Writen(d, 2, di_minor, ip.minor)
	util.Writen(d, 2, di_nlink, ip.nlink)
	util.Writen(d, 8, di_size, ip.size)
	for i := 0; i < NDIRECT+1; i++ {
		util.Writen(d, 8, di_addrs+i*8, ip.addrs[i])
	}
	ip.fs.log.Log_write(blk)
	blk.Unlock()
	ip.fs.bcache.Relse(blk, "iupdate")
}

// / iput drops a reference to ip; once the refcount and link count
// / both reach zero the inode's blocks are freed and the dinode slot
// / is reset.
func (fs *Fs_t) iput(ip *Inode_t) {
	fs.icacheMu.Lock()
	goingAway := ip.ref.Down() && ip.nlink == 0
	if ip.ref.Refcnt() == 0 {
		fs.icache.Del(ip.inum)
	}
	fs.icacheMu.Unlock()

	if goingAway {
		ip.guard.Lock()
		ip.itrunc(0)
		ip.itype = defs.I_INVALID
		ip.iupdate()
		ip.guard.Unlock()
		fs.orphanClear(ip.inum)
	}
}

// bmap returns the block number backing the bn'th block of ip's data,
// allocating it (and, if needed, the singly-indirect block) on
// demand.
func (ip *Inode_t) bmap(bn int) int {
	if bn < NDIRECT {
		if ip.addrs[bn] == 0 {
			blkn, ok := ip.fs.balloc()
			if !ok {
				panic("disk full")
			}
			ip.addrs[bn] = blkn
		}
		return ip.addrs[bn]
	}
	bn -= NDIRECT
	if bn >= NINDIRECT {
		panic("bn out of range")
	}
	if ip.addrs[NDIRECT] == 0 {
		blkn, ok := ip.fs.balloc()
		if !ok {
			panic("disk full")
		}
		ip.addrs[NDIRECT] = blkn
	}
	ind, _ := ip.fs.bcache.Get_fill(ip.addrs[NDIRECT], "bmap-ind", true)
	addr := util.Readn(ind.Data[:], 8, bn*8)
	if addr == 0 {
		blkn, ok := ip.fs.balloc()
		if !ok {
			ind.Unlock()
			ip.fs.bcache.Relse(ind, "bmap-ind")
			panic("disk full")
		}
		util.Writen(ind.Data[:], 8, bn*8, blkn)
		ip.fs.log.Log_write(ind)
		addr = blkn
	}
	ind.Unlock()
	ip.fs.bcache.Relse(ind, "bmap-ind")
	return addr
}

// / itrunc releases every data block beyond newsz (newsz==0 frees the
// / whole file) and updates ip.size.
func (ip *Inode_t) itrunc(newsz int) {
	newblks := util.Roundup(newsz, BSIZE) / BSIZE
	for i := newblks; i < NDIRECT; i++ {
		if ip.addrs[i] != 0 {
			ip.fs.bfree(ip.addrs[i])
			ip.addrs[i] = 0
		}
	}
	if newblks <= NDIRECT && ip.addrs[NDIRECT] != 0 {
		ind, _ := ip.fs.bcache.Get_fill(ip.addrs[NDIRECT], "itrunc-ind", true)
		for i := 0; i < NINDIRECT; i++ {
			addr := util.Readn(ind.Data[:], 8, i*8)
			if addr != 0 {
				ip.fs.bfree(addr)
			}
		}
		ind.Unlock()
		ip.fs.bcache.Relse(ind, "itrunc-ind")
		ip.fs.bfree(ip.addrs[NDIRECT])
		ip.addrs[NDIRECT] = 0
	} else if newblks > NDIRECT && ip.addrs[NDIRECT] != 0 {
		ind, _ := ip.fs.bcache.Get_fill(ip.addrs[NDIRECT], "itrunc-ind", true)
		for i := newblks - NDIRECT; i < NINDIRECT; i++ {
			addr := util.Readn(ind.Data[:], 8, i*8)
			if addr != 0 {
				ip.fs.bfree(addr)
				util.Writen(ind.Data[:], 8, i*8, 0)
			}
		}
		ip.fs.log.Log_write(ind)
		ind.Unlock()
		ip.fs.bcache.Relse(ind, "itrunc-ind")
	}
	ip.size = newsz
	ip.iupdate()
}

// / ialloc finds a free dinode slot, marks it with itype, and returns
// / the new in-memory inode, locked.
func (fs *Fs_t) ialloc(itype int) *Inode_t {
	ninodes := fs.Superb.Inodelen() * IPB
	for inum := 1; inum < ninodes; inum++ {
		blk, _ := fs.bcache.Get_fill(fs.inodeStart+inum/IPB, "ialloc", true)
		off := (inum % IPB) * INODESIZE
		d := inodeSlot(blk.Data, off)
		if util.Readn(d, 2, di_type) == defs.I_INVALID {
			util.Writen(d, 2, di_type, itype)
			fs.log.Log_write(blk)
			blk.Unlock()
			fs.bcache.Relse(blk, "ialloc")
			ip := fs.iget(inum)
			ip.ilock("ialloc")
			ip.itype = itype
			ip.nlink = 0
			ip.size = 0
			for i := range ip.addrs {
				ip.addrs[i] = 0
			}
			return ip
		}
		blk.Unlock()
		fs.bcache.Relse(blk, "ialloc")
	}
	panic("no free inodes")
}

func mkIcache() *hashtable.Hashtable_t {
	return hashtable.MkHash(512)
}
