package ufs

import "os"
import "path/filepath"
import "sync"
import "testing"

import "defs"
import "ustr"
import "vm"

// mkTestDisk formats a fresh disk image in a scratch directory and
// boots a Ufs_t over it, registering cleanup to shut the filesystem
// down and remove the image. Grounded on biscuit/src/mkfs's own MkDisk+BootFS
// sequence (see cmd/kernel/main.go).
func mkTestDisk(t *testing.T) *Ufs_t {
	t.Helper()
	dir := t.TempDir()
	img := filepath.Join(dir, "disk.img")
	MkDisk(img, nil, 64, 32, 1024)

	u := BootMemFS(img)
	t.Cleanup(func() {
		ShutdownFS(u)
		os.Remove(img)
	})
	return u
}

// TestFileRoundTrip writes a file and reads it back unchanged.
func TestFileRoundTrip(t *testing.T) {
	u := mkTestDisk(t)

	path := ustr.Ustr("/hello")
	want := []byte("hello, teachos\n")
	if err := u.MkFile(path, MkBuf(want)); err != 0 {
		t.Fatalf("MkFile: %v", err)
	}

	got, err := u.Read(path)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("Read = %q, want %q", got, want)
	}

	st, err := u.Stat(path)
	if err != 0 {
		t.Fatalf("Stat: %v", err)
	}
	if int(st.Size()) != len(want) {
		t.Fatalf("Stat size = %d, want %d", st.Size(), len(want))
	}
}

// TestConcurrentAppends has several goroutines each append their own
// fixed-size record to the same file, and checks that every record
// survives intact and none is torn or overwritten -- exercising
// Fs_t's per-inode locking (ilock/iunlock) under concurrent writers.
func TestConcurrentAppends(t *testing.T) {
	u := mkTestDisk(t)

	path := ustr.Ustr("/log")
	if err := u.MkFile(path, nil); err != 0 {
		t.Fatalf("MkFile: %v", err)
	}

	const nwriters = 8
	record := func(i int) []byte {
		b := make([]byte, 16)
		for j := range b {
			b[j] = byte('A' + i)
		}
		return b
	}

	var wg sync.WaitGroup
	errs := make([]defs.Err_t, nwriters)
	for i := 0; i < nwriters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = u.Append(path, MkBuf(record(i)))
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		if e != 0 {
			t.Fatalf("Append %d: %v", i, e)
		}
	}

	got, err := u.Read(path)
	if err != 0 {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != nwriters*16 {
		t.Fatalf("file size = %d, want %d", len(got), nwriters*16)
	}

	seen := make(map[byte]int)
	for i := 0; i < nwriters; i++ {
		rec := got[i*16 : (i+1)*16]
		b := rec[0]
		for _, c := range rec {
			if c != b {
				t.Fatalf("record at offset %d is torn: %q", i*16, rec)
			}
		}
		seen[b]++
	}
	if len(seen) != nwriters {
		t.Fatalf("got %d distinct records, want %d (some writer's record was clobbered)", len(seen), nwriters)
	}
}

// TestUnlinkOpenFile unlinks a file while a descriptor is still open
// on it, then confirms the data remains readable through that
// descriptor and the name is gone from the directory, and that the
// last close succeeds (the close that frees the inode's blocks via
// the orphan-inode bitmap in fs/bitmap.go; the freeing itself is not
// inspected here).
func TestUnlinkOpenFile(t *testing.T) {
	u := mkTestDisk(t)

	path := ustr.Ustr("/doomed")
	want := []byte("still here")
	if err := u.MkFile(path, MkBuf(want)); err != 0 {
		t.Fatalf("MkFile: %v", err)
	}

	fdv, err := u.fs.Fs_open(path, defs.O_RDONLY, 0, u.cwd, 0, 0)
	if err != 0 {
		t.Fatalf("Fs_open: %v", err)
	}

	if err := u.Unlink(path); err != 0 {
		t.Fatalf("Unlink: %v", err)
	}

	if _, err := u.Stat(path); err == 0 {
		t.Fatal("Stat succeeded on unlinked path, want ENOENT")
	}

	hdata := make([]uint8, len(want))
	ub := &vm.Fakeubuf_t{}
	ub.Fake_init(hdata)
	n, err := fdv.Fops.Read(ub)
	if err != 0 {
		t.Fatalf("Read through still-open fd: %v", err)
	}
	if n != len(want) || string(hdata) != string(want) {
		t.Fatalf("Read through still-open fd = (%d, %q), want (%d, %q)", n, hdata, len(want), want)
	}

	if err := fdv.Fops.Close(); err != 0 {
		t.Fatalf("Close: %v", err)
	}
}

// TestDirectoryOperations exercises mkdir, nested file creation,
// listing and rename across directories.
func TestDirectoryOperations(t *testing.T) {
	u := mkTestDisk(t)

	if err := u.MkDir(ustr.Ustr("/d1")); err != 0 {
		t.Fatalf("MkDir: %v", err)
	}
	if err := u.MkDir(ustr.Ustr("/d2")); err != 0 {
		t.Fatalf("MkDir d2: %v", err)
	}

	if err := u.MkFile(ustr.Ustr("/d1/a"), MkBuf([]byte("a"))); err != 0 {
		t.Fatalf("MkFile: %v", err)
	}
	if err := u.MkFile(ustr.Ustr("/d1/b"), MkBuf([]byte("bb"))); err != 0 {
		t.Fatalf("MkFile: %v", err)
	}

	entries, err := u.Ls(ustr.Ustr("/d1"))
	if err != 0 {
		t.Fatalf("Ls: %v", err)
	}
	if _, ok := entries["a"]; !ok {
		t.Fatal("Ls missing entry \"a\"")
	}
	if _, ok := entries["b"]; !ok {
		t.Fatal("Ls missing entry \"b\"")
	}

	if err := u.Rename(ustr.Ustr("/d1/a"), ustr.Ustr("/d2/a")); err != 0 {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := u.Stat(ustr.Ustr("/d1/a")); err == 0 {
		t.Fatal("Stat succeeded on renamed-away path")
	}
	if _, err := u.Stat(ustr.Ustr("/d2/a")); err != 0 {
		t.Fatalf("Stat on renamed-to path: %v", err)
	}

	if err := u.UnlinkDir(ustr.Ustr("/d2")); err != -defs.ENOTEMPTY {
		t.Fatalf("UnlinkDir on non-empty dir = %v, want -ENOTEMPTY", err)
	}
}

// TestLogRecovery commits a write, forces the cache to drop its
// resident blocks via SyncApply (simulating the filesystem being
// remounted after a crash with nothing but the redo log and the
// blocks it has already applied), and confirms the data is intact.
func TestLogRecovery(t *testing.T) {
	u := mkTestDisk(t)

	path := ustr.Ustr("/durable")
	want := []byte("committed before the crash")
	if err := u.MkFile(path, MkBuf(want)); err != 0 {
		t.Fatalf("MkFile: %v", err)
	}

	if err := u.SyncApply(); err != 0 {
		t.Fatalf("SyncApply: %v", err)
	}

	got, err := u.Read(path)
	if err != 0 {
		t.Fatalf("Read after SyncApply: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("Read after SyncApply = %q, want %q", got, want)
	}
}
