//go:build !windows

package propagate

import (
	"os"
	"syscall"
)

// statRecordFields reads the inode/uid/gid/mode a FileRecord stores for
// local-change detection. A stat failure (file already gone, race with a
// concurrent edit) just yields zero values; the record is still written
// with the fields the caller already knows.
func statRecordFields(localPath string) (inode int64, uid, gid int, mode uint32) {
	info, err := os.Lstat(localPath)
	if err != nil {
		return 0, 0, 0, 0
	}
	mode = uint32(info.Mode())

	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, 0, mode
	}
	return int64(sys.Ino), int(sys.Uid), int(sys.Gid), mode
}
