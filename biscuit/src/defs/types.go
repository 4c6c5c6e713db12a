package defs

/// Pid_t identifies a process (a group of threads sharing an address
/// space, open file table, and current working directory).
type Pid_t int

/// Tid_t identifies a single thread of execution within a process.
type Tid_t int

/// File open flags, shared between the syscall layer and fs.Fs_open.
const (
	O_RDONLY int = 0
	O_WRONLY int = 1
	O_RDWR   int = 2
	O_CREAT  int = 0x40
	O_EXCL   int = 0x80
	O_TRUNC  int = 0x200
	O_APPEND int = 0x400
	O_DIRECTORY int = 0x10000
)

/// Seek whence values for Fdops_i.Lseek.
const (
	SEEK_SET int = 0
	SEEK_CUR int = 1
	SEEK_END int = 2
)

/// Inode/file type tags, stored in the on-disk dinode and mirrored in
/// stat replies.
const (
	I_INVALID int = 0
	I_FILE    int = 1
	I_DIR     int = 2
	I_DEV     int = 3
)
