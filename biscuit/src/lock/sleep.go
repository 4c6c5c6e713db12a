package lock

import "sync"

import "tinfo"

// Sleep and Wakeup implement xv6's generic wait-channel mechanism
// (original_source/proc.c): any value can serve as a "channel" that
// threads block on and other threads later signal. xv6 needs a
// process-table-wide lock to avoid a lost wakeup between releasing
// the caller's lock and actually blocking; we get the same atomicity
// by holding a single package-level mutex across that same window and
// handing it to a per-channel sync.Cond, whose Wait() is specified to
// unlock/relock it atomically.
var waitmu sync.Mutex
var waitconds = map[interface{}]*sync.Cond{}

func condFor(ch interface{}) *sync.Cond {
	c, ok := waitconds[ch]
	if !ok {
		c = sync.NewCond(&waitmu)
		waitconds[ch] = c
	}
	return c
}

/// Sleep atomically releases lk and blocks the calling thread on ch
/// until a Wakeup(ch). lk is re-acquired before Sleep returns, exactly
/// like xv6's sleep(chan, lk).
func Sleep(ch interface{}, lk *Spinlock_t) {
	note := tinfo.Current()
	note.SetWaitchan(ch)
	waitmu.Lock()
	c := condFor(ch)
	lk.Release()
	c.Wait()
	waitmu.Unlock()
	note.ClearWaitchan()
	lk.Acquire()
}

/// Wakeup wakes every thread sleeping on ch.
func Wakeup(ch interface{}) {
	waitmu.Lock()
	c, ok := waitconds[ch]
	waitmu.Unlock()
	if ok {
		c.Broadcast()
	}
}
