// Package lock implements the mutual-exclusion primitives used
// throughout the kernel: spinlocks with CLI-nesting bookkeeping and
// sleeplocks built on top of them.
package lock

import "runtime"
import "sync/atomic"

import "tinfo"

// Spinlock_t is a mutual-exclusion lock that never blocks its holder
// on the scheduler: acquiring it disables "interrupts" (pushcli) for
// the current thread so that a timer tick can never preempt a thread
// while it holds a spinlock, matching original_source/spinlock.c.
// Goroutines have no real interrupt flag to clear, but the nesting
// discipline itself is still an invariant worth enforcing: code that
// holds a spinlock must not call anything that can sleep.
type Spinlock_t struct {
	locked int32
	holder *tinfo.Tnote_t
	Name   string
}

/// Name-less constructor, used by the vast majority of call sites.
func MkSpinlock() *Spinlock_t {
	return &Spinlock_t{}
}

// pushcli increments the current thread's CLI-nesting depth. The
// first push sets Intena; popcli only decrements the depth and does
// not consult or restore it.
func pushcli() {
	t := tinfo.Current()
	t.Lock()
	if t.Ncli == 0 {
		t.Intena = true
	}
	t.Ncli++
	t.Unlock()
}

func popcli() {
	t := tinfo.Current()
	t.Lock()
	defer t.Unlock()
	t.Ncli--
	if t.Ncli < 0 {
		panic("popcli")
	}
}

/// Acquire takes the lock, disabling preemption-sensitive nesting for
/// the calling thread for as long as the lock is held.
func (lk *Spinlock_t) Acquire() {
	pushcli()
	if lk.Holding() {
		panic("acquire")
	}
	for !atomic.CompareAndSwapInt32(&lk.locked, 0, 1) {
		runtime.Gosched()
	}
	lk.holder = tinfo.Current()
}

/// Release drops the lock and restores the calling thread's nesting
/// depth.
func (lk *Spinlock_t) Release() {
	if !lk.Holding() {
		panic("release")
	}
	lk.holder = nil
	atomic.StoreInt32(&lk.locked, 0)
	popcli()
}

/// Holding reports whether the calling thread currently holds lk.
func (lk *Spinlock_t) Holding() bool {
	return atomic.LoadInt32(&lk.locked) != 0 && lk.holder == tinfo.Current()
}
