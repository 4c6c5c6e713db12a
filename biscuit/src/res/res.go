// Package res tracks a single global resource budget (kernel heap
// bytes committed to in-flight operations) that operations must
// reserve before touching memory they cannot undo if the reservation
// fails, generalizing the log's own admission-control rule
// ((outstanding+1)*MAXOPBLOCKS > LOGSIZE) to every subsystem that
// needs a worst-case pre-check.
package res

import "sync/atomic"

const defaultBudget = 64 << 20 // 64MB of outstanding worst-case cost

var total int64 = defaultBudget
var used int64

/// SetBudget overrides the total budget; used by tests that want a
/// budget small enough to exercise ENOHEAP paths.
func SetBudget(n int) {
	atomic.StoreInt64(&total, int64(n))
}

/// Resadd_noblock reserves cost units of the global budget without
/// blocking; it returns false if the reservation would exceed the
/// budget, in which case the caller must return -defs.ENOHEAP rather
/// than proceed.
func Resadd_noblock(cost int) bool {
	for {
		cur := atomic.LoadInt64(&used)
		if cur+int64(cost) > atomic.LoadInt64(&total) {
			return false
		}
		if atomic.CompareAndSwapInt64(&used, cur, cur+int64(cost)) {
			return true
		}
	}
}

/// Resdel releases cost units previously reserved with
/// Resadd_noblock.
func Resdel(cost int) {
	atomic.AddInt64(&used, -int64(cost))
}
