package propagate

import (
	"path/filepath"
	"strings"
)

// joinLocal joins a sync-root-relative, forward-slash path onto a local
// filesystem root, converting separators for the host OS.
func joinLocal(root, path string) string {
	return filepath.Join(root, filepath.FromSlash(path))
}

// isUnderPrefix reports whether path is path-component-wise under prefix
// (a directory path already ending in "/"), assuming the forward-slash,
// no-leading/trailing-slash path convention used throughout this package.
func isUnderPrefix(path, prefix string) bool {
	return strings.HasPrefix(path, prefix)
}

// splitStemExt splits a basename into stem and extension the way the
// conflict-backup naming rule needs: the extension is everything from the
// last "." in the *basename* (not any earlier path component) onward. If
// there is no "." in the basename, ext is empty and the suffix is appended
// at the very end.
func splitStemExt(name string) (stem, ext string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx:]
}
