package fs

import "fmt"
import "sync"
import "sync/atomic"

import "caller"
import "hashtable"

// cacheDebug enables Distinct_caller_t's call-site tracking around
// buffer-cache exhaustion, printing each new call chain that first
// drives the cache to "no free buffer" -- useful for spotting a
// leaking caller that never Relse's its blocks without the overhead
// of tracking every call site all the time.
const cacheDebug = false

var evictChurn = &caller.Distinct_caller_t{Enabled: cacheDebug}

// The block cache keeps at most a bounded number of disk blocks
// memory-resident, evicting the least-recently-used unreferenced
// block when full. Grounded on original_source/bio.c's bcache, but
// uses a hashtable.Hashtable_t for O(1) lookup by block number (bio.c
// linearly scans a small fixed array) and an explicit BlkList_t as
// the LRU order instead of an intrusive doubly-linked list.

// / Objref_t is a simple reference count guarding a cached block's
// / lifetime: a block may not be evicted while referenced.
type Objref_t struct {
	cnt int32
}

func mkObjref() *Objref_t {
	return &Objref_t{cnt: 1}
}

// / Up increments the reference count.
func (o *Objref_t) Up() {
	atomic.AddInt32(&o.cnt, 1)
}

// / Down decrements the reference count and reports whether it
// / reached zero.
func (o *Objref_t) Down() bool {
	return atomic.AddInt32(&o.cnt, -1) == 0
}

// / Refcnt reports the current reference count.
func (o *Objref_t) Refcnt() int {
	return int(atomic.LoadInt32(&o.cnt))
}

// / bcache_t is the filesystem's block cache: a bounded set of
// / Bdev_block_t, fetched from and written back to a Disk_i, evicted
// / in least-recently-used order once full.
type bcache_t struct {
	sync.Mutex
	mem     Blockmem_i
	disk    Disk_i
	blocks  *hashtable.Hashtable_t
	lru     *BlkList_t
	maxblks int
	nblks   int
}

func mkCache(mem Blockmem_i, disk Disk_i, maxblks int) *bcache_t {
	bc := &bcache_t{}
	bc.mem = mem
	bc.disk = disk
	bc.blocks = hashtable.MkHash(1024)
	bc.lru = MkBlkList()
	bc.maxblks = maxblks
	return bc
}

// / Get_fill returns the block numbered n, reading it from disk the
// / first time it is requested. s names the caller for debugging.
func (bc *bcache_t) Get_fill(n int, s string, lock bool) (*Bdev_block_t, bool) {
	b, isnew := bc.getref(n, s)
	if isnew {
		b.Read()
	}
	if lock {
		b.Lock()
	}
	return b, isnew
}

// / Get_zero returns a newly zero-filled block numbered n without
// / reading it from disk, used when a caller is about to overwrite the
// / entire block (new inode/dir/bitmap block).
func (bc *bcache_t) Get_zero(n int, s string, lock bool) (*Bdev_block_t, bool) {
	b, isnew := bc.getref(n, s)
	if isnew {
		b.New_page()
		for i := range b.Data {
			b.Data[i] = 0
		}
	}
	if lock {
		b.Lock()
	}
	return b, isnew
}

func (bc *bcache_t) getref(n int, s string) (*Bdev_block_t, bool) {
	bc.Lock()
	defer bc.Unlock()

	if v, ok := bc.blocks.Get(n); ok {
		b := v.(*Bdev_block_t)
		b.Ref.Up()
		bc.lru.RemoveBlock(n)
		bc.lru.PushBack(b)
		return b, false
	}

	bc.evictsome()

	b := MkBlock_newpage(n, s, bc.mem, bc.disk, bc)
	b.Ref = mkObjref()
	bc.blocks.Set(n, b)
	bc.lru.PushBack(b)
	bc.nblks++
	return b, true
}

// evictsome drops least-recently-used, unreferenced blocks until the
// cache is below its budget. Must be called with bc locked.
func (bc *bcache_t) evictsome() {
	for bc.nblks >= bc.maxblks {
		victim := bc.lru.FrontBlock()
		evicted := false
		for b := victim; b != nil; b = bc.lru.NextBlock() {
			if b.Ref.Refcnt() == 0 {
				bc.lru.RemoveBlock(b.Block)
				bc.blocks.Del(b.Block)
				b.EvictFromCache()
				b.EvictDone()
				bc.nblks--
				evicted = true
				break
			}
		}
		if !evicted {
			if isnew, trace := evictChurn.Distinct(); isnew {
				fmt.Printf("fs: no free buffer, new caller:\n%s", trace)
			}
			panic("fs: no free buffer")
		}
	}
}

// evictAll drops every currently-unreferenced block regardless of
// maxblks, for Fs_evict. Must be called with bc locked.
func (bc *bcache_t) evictAll() {
	for {
		victim := bc.lru.FrontBlock()
		if victim == nil {
			return
		}
		evicted := false
		for b := victim; b != nil; b = bc.lru.NextBlock() {
			if b.Ref.Refcnt() == 0 {
				bc.lru.RemoveBlock(b.Block)
				bc.blocks.Del(b.Block)
				b.EvictFromCache()
				b.EvictDone()
				bc.nblks--
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// / Relse implements Block_cb_i: it drops a reference taken by
// / Get_fill/Get_zero, evicting the block immediately if the caller
// / marked it with Tryevict and no one else holds it. The caller must
// / already have unlocked b.
func (bc *bcache_t) Relse(b *Bdev_block_t, s string) {
	bc.Lock()
	defer bc.Unlock()
	if b.Ref.Down() {
		if b.Evictnow() {
			bc.lru.RemoveBlock(b.Block)
			bc.blocks.Del(b.Block)
			b.EvictFromCache()
			b.EvictDone()
			bc.nblks--
		} else {
			// refcount hitting zero doesn't force eviction; the block
			// stays cached, available for reuse, until evictsome()
			// reclaims it under pressure.
			b.Ref.Up()
		}
	}
}
