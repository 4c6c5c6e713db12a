package pipe_test

import "fmt"
import "testing"
import "time"

import "defs"
import "mem"
import "pipe"
import "tinfo"
import "vm"

func TestMain(m *testing.M) {
	mem.Phys_init()
	m.Run()
}

func mkNote() *tinfo.Tnote_t {
	return &tinfo.Tnote_t{Alive: true}
}

func mkBuf(b []byte) *vm.Fakeubuf_t {
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(append([]byte(nil), b...))
	return ub
}

// TestPipeEcho writes a message on one end of a pipe from a separate
// goroutine, and checks the reader gets it back unchanged -- the basic
// producer/consumer contract
// original_source/pipe.c's piperead/pipewrite implement.
func TestPipeEcho(t *testing.T) {
	rd, wr := pipe.MkPipe()

	msg := []byte("ping")
	errCh := make(chan error, 1)
	go func() {
		tinfo.SetCurrent(mkNote())
		defer tinfo.ClearCurrent()
		n, err := wr.Write(mkBuf(msg))
		if err != 0 {
			errCh <- fmt.Errorf("Write: %v", err)
			return
		}
		if n != len(msg) {
			errCh <- fmt.Errorf("Write n = %d, want %d", n, len(msg))
			return
		}
		errCh <- nil
	}()

	tinfo.SetCurrent(mkNote())
	defer tinfo.ClearCurrent()

	dst := make([]byte, len(msg))
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(dst)
	n, err := rd.Read(ub)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("Read n = %d, want %d", n, len(msg))
	}
	if string(dst) != string(msg) {
		t.Fatalf("Read got %q, want %q", dst, msg)
	}

	select {
	case werr := <-errCh:
		if werr != nil {
			t.Fatalf("writer goroutine: %v", werr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writer goroutine never finished")
	}
}

// TestPipeReadAfterWriterClose checks that once the write end closes,
// a reader drains whatever remains in the buffer and then gets EOF
// (n==0, err==0) rather than blocking forever.
func TestPipeReadAfterWriterClose(t *testing.T) {
	rd, wr := pipe.MkPipe()

	tinfo.SetCurrent(mkNote())
	defer tinfo.ClearCurrent()

	if _, err := wr.Write(mkBuf([]byte("x"))); err != 0 {
		t.Fatalf("Write: %v", err)
	}
	if err := wr.Close(); err != 0 {
		t.Fatalf("Close: %v", err)
	}

	dst := make([]byte, 1)
	n, err := rd.Read(mkBuf(dst))
	if err != 0 || n != 1 {
		t.Fatalf("Read = (%d, %v), want (1, 0)", n, err)
	}

	n, err = rd.Read(mkBuf(make([]byte, 1)))
	if err != 0 || n != 0 {
		t.Fatalf("Read after close+drain = (%d, %v), want (0, 0) for EOF", n, err)
	}
}

// TestPipeWriteAfterReaderClose checks that a writer whose reader has
// gone away gets EPIPE instead of blocking.
func TestPipeWriteAfterReaderClose(t *testing.T) {
	rd, wr := pipe.MkPipe()

	tinfo.SetCurrent(mkNote())
	defer tinfo.ClearCurrent()

	if err := rd.Close(); err != 0 {
		t.Fatalf("Close: %v", err)
	}

	_, err := wr.Write(mkBuf([]byte("y")))
	if err != -defs.EPIPE {
		t.Fatalf("Write after reader closed = %v, want -EPIPE", err)
	}
}
