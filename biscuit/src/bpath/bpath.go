// Package bpath canonicalizes kernel path names: collapsing "." and
// ".." components and repeated slashes without touching the
// filesystem, the same textual pass xv6's namex/skipelem performs
// before walking directories (original_source/fs.c).
package bpath

import "ustr"

/// Canonicalize collapses "." and ".." components and redundant
/// slashes in p, returning a normalized path that is absolute only if
/// p was (a relative p stays relative). Leading ".."
/// components above the root are dropped, matching namex's behavior
/// of never escaping "/".
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	abs := p.IsAbsolute()
	parts := split(p)
	var stack []ustr.Ustr
	for _, c := range parts {
		switch {
		case len(c) == 0:
			continue
		case c.Isdot():
			continue
		case c.Isdotdot():
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, c)
		}
	}
	ret := ustr.MkUstr()
	if abs {
		ret = append(ret, '/')
	}
	for i, c := range stack {
		if i > 0 {
			ret = append(ret, '/')
		}
		ret = append(ret, c...)
	}
	if len(ret) == 0 {
		ret = ustr.MkUstrRoot()
	}
	return ret
}

func split(p ustr.Ustr) []ustr.Ustr {
	var ret []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				ret = append(ret, p[start:i])
			}
			start = i + 1
		}
	}
	return ret
}
