package fs

import "defs"
import "fdops"

// Device-switch table: device-file reads/writes are dispatched by
// major number to whatever implements the matching interface, instead
// of going through the block cache like regular file data. Grounded on
// original_source/file.c's devsw[] array, reduced to the one device
// (the console) this kernel wires up.

// / D_CONSOLE is the major number of the console device.
const D_CONSOLE = 1

func (fs *Fs_t) devRead(major, minor int, dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	switch major {
	case D_CONSOLE:
		if fs.cons == nil {
			return 0, -defs.ENODEV
		}
		return fs.cons.Cons_read(dst, offset)
	default:
		return 0, -defs.ENODEV
	}
}

func (fs *Fs_t) devWrite(major, minor int, src fdops.Userio_i, offset int) (int, defs.Err_t) {
	switch major {
	case D_CONSOLE:
		if fs.cons == nil {
			return 0, -defs.ENODEV
		}
		return fs.cons.Cons_write(src, offset)
	default:
		return 0, -defs.ENODEV
	}
}
