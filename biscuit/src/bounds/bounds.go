// Package bounds names the worst-case resource cost of operations
// that must be admitted before they are allowed to block (see
// package res). Each identifier is a call site; Bounds returns its
// pre-measured worst-case cost in the currency package res tracks
// (heap bytes/pages, for most of these).
package bounds

type Bkey_t int

const (
	B_ASPACE_T_K2USER_INNER Bkey_t = iota
	B_ASPACE_T_USER2K_INNER
	B_USERBUF_T__TX
	B_USERIOVEC_T_IOV_INIT
	B_USERIOVEC_T__TX
	B_FS_T_FS_READ
	B_FS_T_FS_WRITE
	B_LOG_T_LOG_WRITE
	B_FS_T_FS_MKDIR
	B_FS_T_FS_OPEN
	B_PIPE_T_WRITE
	B_PROC_T_FORK
	bkey_max
)

// per-key worst case cost, measured once for the teacher's workloads
// and kept conservative rather than tight.
var costs = [bkey_max]int{
	B_ASPACE_T_K2USER_INNER: 4096,
	B_ASPACE_T_USER2K_INNER: 4096,
	B_USERBUF_T__TX:         4096,
	B_USERIOVEC_T_IOV_INIT:  4096,
	B_USERIOVEC_T__TX:       4096,
	B_FS_T_FS_READ:          4096,
	B_FS_T_FS_WRITE:         4096 * 2,
	B_LOG_T_LOG_WRITE:       4096,
	B_FS_T_FS_MKDIR:         4096 * 4,
	B_FS_T_FS_OPEN:          4096 * 2,
	B_PIPE_T_WRITE:          512,
	B_PROC_T_FORK:           4096 * 8,
}

/// Bounds returns the worst-case resource cost registered for key.
func Bounds(key Bkey_t) int {
	return costs[key]
}
