//go:build !windows

package propagate

// markHidden is a no-op on platforms where a dot-prefixed name is already
// the hidden-file convention.
func markHidden(path string) error {
	return nil
}

// unmarkHidden is a no-op for the same reason.
func unmarkHidden(path string) error {
	return nil
}
