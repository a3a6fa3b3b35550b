package engine

import (
	"strings"
)

// canonicalPath normalizes a path to start with "/" and never end with
// "/" except for root itself, per §4.3. It does not resolve "." or ".."
// segments -- the adapter is expected to hand the engine already-clean
// absolute paths, same division of labor as §1 draws around argument
// handling.
func canonicalPath(p string) (string, error) {
	if p == "" {
		return "", ErrInvalid
	}
	if !strings.HasPrefix(p, "/") {
		return "", ErrInvalid
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p, nil
}

// parentPath returns the path obtained by stripping the last
// "/"-segment, per invariant I2. parentPath("/") is undefined and must
// not be called on root.
func parentPath(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

// isStrictDescendant reports whether child has ancestor as a strict
// path prefix, i.e. child is ancestor itself plus at least one more
// "/"-segment. Used by rename's subtree enumeration (§4.6).
func isStrictDescendant(ancestor, child string) bool {
	if ancestor == "/" {
		return len(child) > 1 && strings.HasPrefix(child, "/")
	}
	return strings.HasPrefix(child, ancestor+"/")
}

// rewritePrefix replaces the ancestor-prefix of child with newAncestor,
// used when renaming a directory subtree: every descendant's path gets
// its old parent-directory prefix swapped for the new one.
func rewritePrefix(child, oldAncestor, newAncestor string) string {
	suffix := strings.TrimPrefix(child, oldAncestor)
	if newAncestor == "/" {
		return "/" + strings.TrimPrefix(suffix, "/")
	}
	return newAncestor + suffix
}
