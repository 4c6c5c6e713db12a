package fs

import "mem"
import "util"

// bdev_debug turns on verbose tracing of every block read/write in
// blk.go; off by default, flipped on by hand while chasing a bug.
var bdev_debug = false

// fieldr/fieldw read/write one of a handful of 8-byte fields packed at
// the front of a block (used by the superblock). Mirrors how biscuit
// marshals small fixed structures without a generic encoder.
func fieldr(data *mem.Bytepg_t, field int) int {
	return util.Readn(data[:], 8, field*8)
}

func fieldw(data *mem.Bytepg_t, field int, value int) {
	util.Writen(data[:], 8, field*8, value)
}
