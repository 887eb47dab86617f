package propagate

import (
	"context"
	"fmt"
	"os"

	"github.com/davsync/propagator/internal/utils"
)

// LocalRemoveJob deletes a local file or, recursively, a local directory.
// On success it deletes the FileRecord for the item's original path.
func LocalRemoveJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		localPath := rc.LocalPath(item.Path)

		var err error
		if item.IsDirectory {
			err = os.RemoveAll(localPath)
		} else {
			err = os.Remove(localPath)
			if os.IsNotExist(err) {
				err = nil
			}
		}
		if err != nil {
			return StatusNormal, fmt.Errorf("local remove %q: %w", item.Path, err)
		}

		if err := rc.Journal.DeleteFileRecord(item.OriginalPath, item.IsDirectory); err != nil {
			return StatusNormal, err
		}
		return StatusSuccess, nil
	})
}

// LocalMkdirJob creates a local directory, including missing parents.
func LocalMkdirJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		localPath := rc.LocalPath(item.Path)
		if err := os.MkdirAll(localPath, 0o755); err != nil {
			return StatusNormal, fmt.Errorf("local mkdir %q: %w", item.Path, err)
		}
		return StatusSuccess, nil
	})
}

// LocalRenameJob renames a local entry in place and moves its FileRecord to
// the new path.
func LocalRenameJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		if item.Path != item.RenameTarget {
			oldPath := rc.LocalPath(item.Path)
			newPath := rc.LocalPath(item.RenameTarget)
			if err := os.Rename(oldPath, newPath); err != nil {
				if !isCrossDeviceErr(err) {
					return StatusNormal, fmt.Errorf("local rename %q -> %q: %w", item.Path, item.RenameTarget, err)
				}
				// LocalRoot can span mount points (bind mounts, network
				// shares); os.Rename can't move across devices, so fall
				// back to copy-then-remove.
				if err := utils.CopyFile(oldPath, newPath); err != nil {
					return StatusNormal, fmt.Errorf("local rename %q -> %q: %w", item.Path, item.RenameTarget, err)
				}
				if err := os.Remove(oldPath); err != nil {
					return StatusNormal, fmt.Errorf("local rename %q -> %q: %w", item.Path, item.RenameTarget, err)
				}
			}
		}

		if err := rc.Journal.DeleteFileRecord(item.Path, item.IsDirectory); err != nil {
			return StatusNormal, err
		}
		inode, uid, gid, mode := statRecordFields(rc.LocalPath(item.RenameTarget))
		rec := &FileRecord{
			Path: item.RenameTarget, Inode: inode, UID: uid, GID: gid, Mode: mode,
			Modtime: item.Modtime, Etag: item.Etag,
			FileID: item.FileID, Type: boolToType(item.IsDirectory),
		}
		if err := rc.Journal.SetFileRecord(rec); err != nil {
			return StatusNormal, err
		}
		return StatusSuccess, nil
	})
}

func boolToType(isDir bool) int {
	if isDir {
		return 1
	}
	return 0
}
