package lock

import "defs"

// Sleeplock_t is a lock that may be held across blocking operations
// (disk I/O); unlike Spinlock_t, acquiring one can put the calling
// thread to sleep rather than spin. Grounded on
// original_source/sleeplock.c.
type Sleeplock_t struct {
	guard  Spinlock_t
	locked bool
	holder defs.Tid_t
	Name   string
}

func MkSleeplock(name string) *Sleeplock_t {
	return &Sleeplock_t{Name: name}
}

/// Acquire blocks until the lock is free, then takes it.
func (lk *Sleeplock_t) Acquire(me defs.Tid_t) {
	lk.guard.Acquire()
	for lk.locked {
		Sleep(lk, &lk.guard)
	}
	lk.locked = true
	lk.holder = me
	lk.guard.Release()
}

/// Release drops the lock and wakes any thread waiting for it.
func (lk *Sleeplock_t) Release() {
	lk.guard.Acquire()
	lk.locked = false
	lk.holder = 0
	Wakeup(lk)
	lk.guard.Release()
}

/// Holding reports whether thread me currently holds lk.
func (lk *Sleeplock_t) Holding(me defs.Tid_t) bool {
	lk.guard.Acquire()
	r := lk.locked && lk.holder == me
	lk.guard.Release()
	return r
}
