//go:build windows

package propagate

import "os"

// statRecordFields reads the mode bits a FileRecord stores for local-change
// detection. Windows has no posix inode/uid/gid, so those stay zero; the
// etag/modtime pair already carries the change-detection signal there.
func statRecordFields(localPath string) (inode int64, uid, gid int, mode uint32) {
	info, err := os.Lstat(localPath)
	if err != nil {
		return 0, 0, 0, 0
	}
	return 0, 0, 0, uint32(info.Mode())
}
