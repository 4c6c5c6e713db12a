// Package console implements the device backing D_CONSOLE: line output
// goes straight to the host's stdout, line input is fed in from
// whatever simulates a keyboard (Input) and buffered until a reader
// asks for it. Grounded on original_source/console.c, minus the VGA
// text-buffer/backspace-escape handling real hardware needed.
package console

import "fmt"
import "os"

import "circbuf"
import "defs"
import "fdops"
import "lock"
import "mem"
import "tinfo"
import "vm"

const inbufsz = 256

// / Console_t is the kernel's single console device, installed at
// / fs.D_CONSOLE.
type Console_t struct {
	l     lock.Spinlock_t
	inbuf circbuf.Circbuf_t
}

// / MkConsole constructs a console device with an empty input buffer.
func MkConsole() *Console_t {
	c := &Console_t{}
	if err := c.inbuf.Cb_init(inbufsz, mem.Physmem); err != 0 {
		panic("console: out of memory for input buffer")
	}
	return c
}

// / Input feeds one line of input to the console, as a real keyboard
// / interrupt handler (consoleintr in original_source/console.c) would,
// / waking any blocked reader.
func (c *Console_t) Input(line []uint8) {
	c.l.Acquire()
	defer c.l.Release()
	var ub vm.Fakeubuf_t
	ub.Fake_init(line)
	for ub.Remain() > 0 {
		n, err := c.inbuf.Copyin(&ub)
		if err != 0 || n == 0 {
			break
		}
	}
	lock.Wakeup(&c.inbuf)
}

// / Cons_read blocks until input is available, then copies as much of
// / the buffered input as fits in ub.
func (c *Console_t) Cons_read(ub fdops.Userio_i, offset int) (int, defs.Err_t) {
	c.l.Acquire()
	for c.inbuf.Empty() {
		if tinfo.CurrentKilled() {
			c.l.Release()
			return 0, -defs.EINTR
		}
		lock.Sleep(&c.inbuf, &c.l)
	}
	n, err := c.inbuf.Copyout(ub)
	c.l.Release()
	return n, err
}

// / Cons_write writes src straight to the host's standard output,
// / standing in for original_source/console.c's VGA text-mode output.
func (c *Console_t) Cons_write(src fdops.Userio_i, off int) (int, defs.Err_t) {
	buf := make([]uint8, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return n, err
	}
	if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
		fmt.Fprintf(os.Stderr, "console write: %v\n", werr)
		return n, -defs.EIO
	}
	return n, 0
}

// / Cons_poll reports read-readiness when buffered input is pending;
// / the console is always considered writable.
func (c *Console_t) Cons_poll(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	c.l.Acquire()
	defer c.l.Release()
	var ready fdops.Ready_t
	if pm.Events&fdops.R_READ != 0 && !c.inbuf.Empty() {
		ready |= fdops.R_READ
	}
	if pm.Events&fdops.R_WRITE != 0 {
		ready |= fdops.R_WRITE
	}
	return ready, 0
}
