package ufs

import "os"

import "defs"
import "fs"
import "util"

// MkDisk formats a brand new disk image at path image, laying out
// every on-disk region fs.StartFS expects to find: superblock, redo
// log, orphan-inode bitmap, inode blocks, free-block bitmap, and data
// blocks, with a root directory already allocated. Grounded directly
// on fs.Fs_t's own layout comment and the on-disk structures in
// fs/super.go, fs/bitmap.go, fs/inode.go and fs/dir.go -- there is no
// original_source/mkfs.c in this kernel's lineage to mirror, since
// real xv6's mkfs ran as a host-side C program against the same
// struct definitions the kernel used, which here are package-private
// to fs. This file duplicates the handful of on-disk byte offsets fs
// keeps unexported (the dinode field layout, the directory entry
// layout) rather than exporting kernel-internal details just for a
// formatting tool to use them once.
//
// inputs names the bootloader and kernel images a BIOS-booted xv6
// image would prepend to the filesystem region; this kernel has no
// raw boot sector of its own (cmd/kernel/main.go constructs the Fs_t
// directly instead of being loaded off disk by firmware), so inputs
// is only checked for existence and is not written into the image.
func MkDisk(image string, inputs []string, nlogblks, ninodeblks, ndatablks int) {
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			panic(err)
		}
	}

	const bitsPerBlock = fs.BSIZE * 8

	ninodes := ninodeblks * fs.IPB
	iorphanlen := util.Roundup(ninodes, bitsPerBlock) / bitsPerBlock
	const imaplen = 0 // reserved; ialloc scans dinodes directly (fs.go)

	fixed := 1 + nlogblks + iorphanlen + imaplen + ninodeblks
	freeblocklen := 1
	for {
		lastblock := fixed + freeblocklen + ndatablks
		need := util.Roundup(lastblock, bitsPerBlock) / bitsPerBlock
		if need == freeblocklen {
			break
		}
		freeblocklen = need
	}
	lastblock := fixed + freeblocklen + ndatablks

	iorphanblock := 1 + nlogblks
	freeblock := fixed
	rootdata := freeblock + freeblocklen

	f, err := os.Create(image)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if err := f.Truncate(int64(lastblock) * fs.BSIZE); err != nil {
		panic(err)
	}

	sb := make([]byte, fs.BSIZE)
	sbSetField(sb, 0, nlogblks)
	sbSetField(sb, 1, iorphanblock)
	sbSetField(sb, 2, iorphanlen)
	sbSetField(sb, 3, imaplen)
	sbSetField(sb, 4, freeblock)
	sbSetField(sb, 5, freeblocklen)
	sbSetField(sb, 6, ninodeblks)
	sbSetField(sb, 7, lastblock)
	writeBlock(f, 0, sb)

	inodeStart := 1 + nlogblks + iorphanlen + imaplen
	rootInodeBlk := inodeStart + 1/fs.IPB
	blk := make([]byte, fs.BSIZE)
	off := (1 % fs.IPB) * fs.INODESIZE
	mkdiskWriteDinode(blk[off:off+fs.INODESIZE], defs.I_DIR, 2, rootdata)
	writeBlock(f, rootInodeBlk, blk)

	dirblk := make([]byte, fs.BSIZE)
	dd := fs.Dirdata_t{Raw: dirblk}
	mkdiskSetDirent(dd, 0, ".", 1)
	mkdiskSetDirent(dd, 1, "..", 1)
	writeBlock(f, rootdata, dirblk)

	used := fixed + freeblocklen + 1 // +1 for the root's own data block
	bm := make([]byte, fs.BSIZE*freeblocklen)
	for i := 0; i < used; i++ {
		bm[i/8] |= 1 << uint(i%8)
	}
	for i := 0; i < freeblocklen; i++ {
		writeBlock(f, freeblock+i, bm[i*fs.BSIZE:(i+1)*fs.BSIZE])
	}
}

func writeBlock(f *os.File, blkn int, data []byte) {
	if _, err := f.WriteAt(data, int64(blkn)*fs.BSIZE); err != nil {
		panic(err)
	}
}

// sbSetField mirrors fs/super.go's unexported fieldw: eight 8-byte
// fields packed at the front of the superblock's block.
func sbSetField(sb []byte, field, value int) {
	util.Writen(sb, 8, field*8, value)
}

// mkdiskWriteDinode mirrors fs/inode.go's dinode field layout
// (di_type, di_major, di_minor, di_nlink, di_size, di_addrs), writing
// a directory dinode with a single direct block and no indirect
// block.
func mkdiskWriteDinode(slot []byte, itype, nlink, firstblk int) {
	const (
		diType  = 0
		diMajor = 2
		diMinor = 4
		diNlink = 6
		diSize  = 8
		diAddrs = 16
	)
	util.Writen(slot, 2, diType, itype)
	util.Writen(slot, 2, diMajor, 0)
	util.Writen(slot, 2, diMinor, 0)
	util.Writen(slot, 2, diNlink, nlink)
	util.Writen(slot, 8, diSize, fs.BSIZE)
	util.Writen(slot, 8, diAddrs, firstblk)
	for i := 1; i < fs.NDIRECT+1; i++ {
		util.Writen(slot, 8, diAddrs+i*8, 0)
	}
}

// mkdiskSetDirent mirrors fs/dir.go's unexported setName/setInum,
// writing one (name, inum) pair into a directory data block.
func mkdiskSetDirent(dd fs.Dirdata_t, i int, name string, inum int) {
	const direntsz = fs.DIRSIZ + 8
	o := i * direntsz
	copy(dd.Raw[o:o+fs.DIRSIZ], name)
	util.Writen(dd.Raw, 8, o+fs.DIRSIZ, inum)
}
