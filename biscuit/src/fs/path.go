package fs

import "defs"
import "fd"
import "ustr"

// Pathname resolution, grounded on original_source/fs.c's namex /
// nameiparent / namei. Unlike the original, ".." is never looked up as
// a directory entry: bpath.Canonicalize already collapsed it into the
// textual path before namex ever walks the tree, which is why Cwd_t's
// own Canonicalpath is used as the entry point here.
const rootInum = 1

func splitPath(p ustr.Ustr) []ustr.Ustr {
	var parts []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func (fs *Fs_t) cwdInode(cwd *fd.Cwd_t) *Inode_t {
	return cwd.Fd.Fops.(*fsFd_t).ip
}

// namex resolves path (relative to cwd) one component at a time,
// always starting from the root since the path hande to it is already
// canonicalized and therefore absolute. With nameiparent set, it stops
// one component short and returns the unlocked parent directory plus the
// unresolved final component name instead of the named inode.
func (fs *Fs_t) namex(path ustr.Ustr, cwd *fd.Cwd_t, nameiparent bool) (*Inode_t, ustr.Ustr, defs.Err_t) {
	full := cwd.Canonicalpath(path)
	parts := splitPath(full)

	cur := fs.iget(rootInum)
	if len(parts) == 0 {
		if nameiparent {
			fs.iput(cur)
			return nil, nil, -defs.ENOENT
		}
		return cur, nil, 0
	}

	for i, comp := range parts {
		cur.ilock("namex")
		if cur.Type() != defs.I_DIR {
			cur.iunlock()
			fs.iput(cur)
			return nil, nil, -defs.ENOTDIR
		}
		if nameiparent && i == len(parts)-1 {
			cur.iunlock()
			return cur, comp, 0
		}
		inum, _, ok := fs.dirLookup(cur, comp)
		if !ok {
			cur.iunlock()
			fs.iput(cur)
			return nil, nil, -defs.ENOENT
		}
		next := fs.iget(inum)
		cur.iunlock()
		fs.iput(cur)
		cur = next
	}
	return cur, nil, 0
}

// fs_namei resolves path to its named inode, unlocked.
func (fs *Fs_t) fs_namei(path ustr.Ustr, cwd *fd.Cwd_t) (*Inode_t, defs.Err_t) {
	ip, _, err := fs.namex(path, cwd, false)
	return ip, err
}

// fs_nameiparent resolves path's parent directory (locked by the
// caller afterward) and returns the final path component unresolved.
func (fs *Fs_t) fs_nameiparent(path ustr.Ustr, cwd *fd.Cwd_t) (*Inode_t, ustr.Ustr, defs.Err_t) {
	return fs.namex(path, cwd, true)
}
