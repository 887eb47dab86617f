//go:build windows

package propagate

import (
	"golang.org/x/sys/windows"
)

// markHidden sets the Windows FILE_ATTRIBUTE_HIDDEN bit, since a leading
// dot carries no special meaning to the Windows shell.
func markHidden(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}

	return windows.SetFileAttributes(p, attrs|windows.FILE_ATTRIBUTE_HIDDEN)
}

// unmarkHidden clears the Windows FILE_ATTRIBUTE_HIDDEN bit before the
// temp file is published over its final destination name.
func unmarkHidden(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}

	return windows.SetFileAttributes(p, attrs&^windows.FILE_ATTRIBUTE_HIDDEN)
}
