package lock_test

import "sync"
import "testing"
import "time"

import "lock"
import "tinfo"

func withNote(f func()) {
	tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
	defer tinfo.ClearCurrent()
	f()
}

// TestSleepWakeup checks the basic wait-channel contract: a thread
// blocked in Sleep on ch doesn't wake until some other thread calls
// Wakeup(ch), and the spinlock passed to Sleep is held again by the
// time Sleep returns.
func TestSleepWakeup(t *testing.T) {
	var l lock.Spinlock_t
	ch := &struct{}{}

	woke := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go withNoteWG(&wg, func() {
		l.Acquire()
		lock.Sleep(ch, &l)
		if !l.Holding() {
			t.Error("Sleep returned without reacquiring the lock")
		}
		l.Release()
		close(woke)
	})

	// give the sleeper time to actually block before waking it.
	time.Sleep(50 * time.Millisecond)

	select {
	case <-woke:
		t.Fatal("Sleep returned before Wakeup")
	default:
	}

	withNote(func() {
		lock.Wakeup(ch)
	})

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("Sleep never woke up after Wakeup")
	}
	wg.Wait()
}

func withNoteWG(wg *sync.WaitGroup, f func()) {
	defer wg.Done()
	withNote(f)
}

// TestSpinlockMutualExclusion checks that Acquire actually excludes
// concurrent holders: many goroutines incrementing a shared counter
// under the lock must never race.
func TestSpinlockMutualExclusion(t *testing.T) {
	var l lock.Spinlock_t
	n := 0
	const iters = 200
	const goroutines = 8

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			withNote(func() {
				for j := 0; j < iters; j++ {
					l.Acquire()
					n++
					l.Release()
				}
			})
		}()
	}
	wg.Wait()

	if n != goroutines*iters {
		t.Fatalf("n = %d, want %d (lost updates under contention)", n, goroutines*iters)
	}
}

// TestSpinlockHolding checks Holding reflects only the calling
// thread's own ownership of the lock.
func TestSpinlockHolding(t *testing.T) {
	var l lock.Spinlock_t
	withNote(func() {
		if l.Holding() {
			t.Fatal("Holding true before any Acquire")
		}
		l.Acquire()
		if !l.Holding() {
			t.Fatal("Holding false right after Acquire")
		}
		l.Release()
		if l.Holding() {
			t.Fatal("Holding true after Release")
		}
	})
}
