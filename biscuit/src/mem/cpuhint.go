package mem

import "sync/atomic"

// cpuHint replaces the patched runtime's CPUHint(), which returned the
// logical ID of the CPU the calling goroutine is pinned to. Goroutines
// here are never pinned to a simulated CPU, so per-CPU free lists
// are just sharded round-robin across callers to keep the contention
// they were meant to avoid from collapsing onto a single shard.
var hintctr uint32

func cpuHint() uint32 {
	return atomic.AddUint32(&hintctr, 1) % maxsimcpus
}
