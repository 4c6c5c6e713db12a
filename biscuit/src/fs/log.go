package fs

import "fmt"

import "bounds"
import "lock"
import "res"

// maxOpBlocks bounds how many distinct blocks a single filesystem
// operation may log, so Op_begin can refuse admission once the log
// has no room left for one more op's worst case -- mirroring
// MAXOPBLOCKS in original_source/log.c.
const maxOpBlocks = 12

// Crash-safe redo logging, grounded on original_source/log.c. Every
// write to a block anywhere in the filesystem goes through log_write
// within an Op_begin/Op_end bracket instead of straight to its home
// location; commit copies the logged blocks to their home locations
// only after the whole transaction is durably on disk in the log
// area, so a crash mid-transaction either sees none of it (log head
// untouched) or all of it (replayed by Recover at the next boot).
//
// log on-disk layout, at Loglen blocks starting right after the
// superblock:
//   block 0:  header -- number of logged blocks, then their
//             destination block numbers
//   block 1..n: the logged block contents themselves, in order

type log_t struct {
	l           lock.Spinlock_t
	start       int // first block of the log region
	size        int // blocks available to the log, including the header
	outstanding int // number of Op_begin calls not yet matched by Op_end
	committing  bool
	absorbed    map[int]int // block number -> index into lh, for this transaction
	lh          []int       // block numbers in the current transaction, in commit order
	bc          *bcache_t
	disk        Disk_i
}

func mklog(bc *bcache_t, disk Disk_i, start, size int) *log_t {
	lg := &log_t{}
	lg.start = start
	lg.size = size
	lg.bc = bc
	lg.disk = disk
	lg.absorbed = make(map[int]int)
	return lg
}

// / Recover replays a log left behind by a crash mid-transaction. It
// / must run before any other filesystem activity.
func (lg *log_t) Recover() {
	hdr, _ := lg.bc.Get_fill(lg.start, "log-hdr", true)
	n := fieldr(hdr.Data, 0)
	if n == 0 {
		hdr.Unlock()
		lg.bc.Relse(hdr, "log-hdr")
		return
	}
	fmt.Printf("log: recovering %v blocks\n", n)
	for i := 0; i < n; i++ {
		dst := fieldr(hdr.Data, 1+i)
		src, _ := lg.bc.Get_fill(lg.start+1+i, "log-blk", true)
		home, _ := lg.bc.Get_fill(dst, "log-home", true)
		*home.Data = *src.Data
		home.Write()
		home.Unlock()
		lg.bc.Relse(home, "log-home")
		src.Unlock()
		lg.bc.Relse(src, "log-blk")
	}
	fieldw(hdr.Data, 0, 0)
	hdr.Write()
	hdr.Unlock()
	lg.bc.Relse(hdr, "log-hdr")
}

// / Op_begin admits one filesystem operation into the log, blocking
// / while a commit is in progress or the log has no room left for
// / another transaction's worst-case write set.
func (lg *log_t) Op_begin(s string) {
	lg.l.Acquire()
	for {
		if lg.committing {
			lock.Sleep(lg, &lg.l)
			continue
		}
		if (lg.outstanding+1)*maxOpBlocks > lg.size-1 {
			lock.Sleep(lg, &lg.l)
			continue
		}
		lg.outstanding++
		lg.l.Release()
		return
	}
}

// / Op_end matches an Op_begin. The last matching Op_end for a batch
// / of concurrent operations triggers a commit.
func (lg *log_t) Op_end() {
	lg.l.Acquire()
	lg.outstanding--
	do_commit := false
	if lg.outstanding < 0 {
		panic("unbalanced op_begin/op_end")
	}
	if lg.outstanding == 0 {
		do_commit = true
		lg.committing = true
	} else {
		// wake Op_begin callers waiting for log space: this op's
		// reservation is released, so one more may now fit.
		lock.Wakeup(lg)
	}
	lg.l.Release()

	if do_commit {
		lg.commit()
		lg.l.Acquire()
		lg.committing = false
		lock.Wakeup(lg)
		lg.l.Release()
	}
}

// / Log_write records b's current contents into the log so they will
// / be written to b's home location at the next commit, instead of
// / writing straight through. Repeated writes to the same block within
// / one transaction are absorbed into a single log slot.
func (lg *log_t) Log_write(b *Bdev_block_t) {
	lg.l.Acquire()
	defer lg.l.Release()
	if !res.Resadd_noblock(bounds.Bounds(bounds.B_LOG_T_LOG_WRITE)) {
		panic("log: resource budget exceeded mid-transaction")
	}
	if i, ok := lg.absorbed[b.Block]; ok {
		lg.writeLogSlot(i, b)
		return
	}
	i := len(lg.lh)
	if i >= lg.size-1 {
		panic("log: transaction larger than log")
	}
	lg.lh = append(lg.lh, b.Block)
	lg.absorbed[b.Block] = i
	lg.writeLogSlot(i, b)
}

func (lg *log_t) writeLogSlot(i int, b *Bdev_block_t) {
	lb, _ := lg.bc.Get_fill(lg.start+1+i, "log-slot", true)
	*lb.Data = *b.Data
	lb.Write()
	lb.Unlock()
	lg.bc.Relse(lb, "log-slot")
}

// commit writes the transaction header (making it durable that these
// blocks must be replayed on crash), then copies every logged block
// to its home location, then clears the header. Must run with no
// Op_begin holder active (lg.outstanding == 0).
func (lg *log_t) commit() {
	if len(lg.lh) == 0 {
		return
	}

	hdr, _ := lg.bc.Get_fill(lg.start, "log-hdr", true)
	fieldw(hdr.Data, 0, len(lg.lh))
	for i, blkno := range lg.lh {
		fieldw(hdr.Data, 1+i, blkno)
	}
	hdr.Write()
	hdr.Unlock()
	lg.bc.Relse(hdr, "log-hdr")

	for i, blkno := range lg.lh {
		src, _ := lg.bc.Get_fill(lg.start+1+i, "log-slot", true)
		dst, _ := lg.bc.Get_fill(blkno, "log-home", true)
		*dst.Data = *src.Data
		dst.Write()
		dst.Unlock()
		lg.bc.Relse(dst, "log-home")
		src.Unlock()
		lg.bc.Relse(src, "log-slot")
	}

	hdr, _ = lg.bc.Get_fill(lg.start, "log-hdr", true)
	fieldw(hdr.Data, 0, 0)
	hdr.Write()
	hdr.Unlock()
	lg.bc.Relse(hdr, "log-hdr")

	lg.lh = nil
	lg.absorbed = make(map[int]int)
}
