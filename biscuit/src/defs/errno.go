package defs

/// Err_t is the kernel-wide error type: 0 is success, a negative value
/// is -errno. User-visible syscall failures return a negative Err_t;
/// violated kernel invariants panic instead (see spec's error model).
type Err_t int

/// Errno values returned (negated) by syscall-boundary operations.
const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EINTR        Err_t = 4
	EIO          Err_t = 5
	E2BIG        Err_t = 7
	EBADF        Err_t = 9
	ECHILD       Err_t = 10
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EACCES       Err_t = 13
	EFAULT       Err_t = 14
	ENOTBLK      Err_t = 15
	EBUSY        Err_t = 16
	EEXIST       Err_t = 17
	EXDEV        Err_t = 18
	ENODEV       Err_t = 19
	ENOTDIR      Err_t = 20
	EISDIR       Err_t = 21
	EINVAL       Err_t = 22
	ENFILE       Err_t = 23
	EMFILE       Err_t = 24
	ENOTTY       Err_t = 25
	EFBIG        Err_t = 27
	ENOSPC       Err_t = 28
	ESPIPE       Err_t = 29
	EROFS        Err_t = 30
	EMLINK       Err_t = 31
	EPIPE        Err_t = 32
	ENAMETOOLONG Err_t = 36
	ENOTEMPTY    Err_t = 39
	ENOSYS       Err_t = 38
	ENOHEAP      Err_t = 100 // kernel-internal: resource admission failed
)
