package syscall

import "defs"
import "fd"
import "proc"
import "stat"

// dirModeBit is the mode bit fs.Fs_t.istat sets for a directory;
// Sys_chdir uses it to reject a non-directory target without needing
// fs to export its internal inode type directly.
const dirModeBit = 1 << 14

// / Sys_open resolves or creates the path named in sa.Args[0] with the
// / flags in sa.Args[1], matching original_source/sysfile.c's
// / sys_open.
func (s *Sys_t) Sys_open(p *proc.Proc_t, sa *Sysargs_t) (int, defs.Err_t) {
	path, err := argstr(p, sa, 0)
	if err != 0 {
		return 0, err
	}
	flags, err := argint(sa, 1)
	if err != 0 {
		return 0, err
	}
	nfd, ferr := s.Fs.Fs_open(path, flags, 0, p.Cwd, 0, 0)
	if ferr != 0 {
		return 0, ferr
	}
	return p.AddFd(nfd), 0
}

// / Sys_mknod creates a device special file at the path named in
// / sa.Args[0] with the major/minor numbers in sa.Args[1]/sa.Args[2],
// / matching original_source/sysfile.c's sys_mknod.
func (s *Sys_t) Sys_mknod(p *proc.Proc_t, sa *Sysargs_t) (int, defs.Err_t) {
	path, err := argstr(p, sa, 0)
	if err != 0 {
		return 0, err
	}
	major, err := argint(sa, 1)
	if err != 0 {
		return 0, err
	}
	minor, err := argint(sa, 2)
	if err != 0 {
		return 0, err
	}
	nfd, ferr := s.Fs.Fs_open(path, defs.O_CREAT, 0, p.Cwd, major, minor)
	if ferr != 0 {
		return 0, ferr
	}
	nfd.Fops.Close()
	return 0, 0
}

// / Sys_unlink removes the directory entry named in sa.Args[0],
// / matching original_source/sysfile.c's sys_unlink.
func (s *Sys_t) Sys_unlink(p *proc.Proc_t, sa *Sysargs_t) (int, defs.Err_t) {
	path, err := argstr(p, sa, 0)
	if err != 0 {
		return 0, err
	}
	return 0, s.Fs.Fs_unlink(path, p.Cwd, false)
}

// / Sys_link adds a new name for the inode named in sa.Args[0],
// / matching original_source/sysfile.c's sys_link.
func (s *Sys_t) Sys_link(p *proc.Proc_t, sa *Sysargs_t) (int, defs.Err_t) {
	oldp, err := argstr(p, sa, 0)
	if err != 0 {
		return 0, err
	}
	newp, err := argstr(p, sa, 1)
	if err != 0 {
		return 0, err
	}
	return 0, s.Fs.Fs_link(oldp, newp, p.Cwd)
}

// / Sys_mkdir creates an empty directory at the path named in
// / sa.Args[0], matching original_source/sysfile.c's sys_mkdir.
func (s *Sys_t) Sys_mkdir(p *proc.Proc_t, sa *Sysargs_t) (int, defs.Err_t) {
	path, err := argstr(p, sa, 0)
	if err != 0 {
		return 0, err
	}
	return 0, s.Fs.Fs_mkdir(path, 0, p.Cwd)
}

// / Sys_chdir changes p's current working directory to the path named
// / in sa.Args[0], matching original_source/sysfile.c's sys_chdir.
func (s *Sys_t) Sys_chdir(p *proc.Proc_t, sa *Sysargs_t) (int, defs.Err_t) {
	path, err := argstr(p, sa, 0)
	if err != 0 {
		return 0, err
	}

	var st stat.Stat_t
	if serr := s.Fs.Fs_stat(path, &st, p.Cwd); serr != 0 {
		return 0, serr
	}
	if st.Mode()&dirModeBit == 0 {
		return 0, -defs.ENOTDIR
	}

	canon := p.Cwd.Canonicalpath(path)
	nfd, ferr := s.Fs.Fs_open(path, defs.O_RDONLY, 0, p.Cwd, 0, 0)
	if ferr != 0 {
		return 0, ferr
	}
	p.SetCwd(&fd.Cwd_t{Fd: nfd, Path: canon})
	return 0, 0
}
