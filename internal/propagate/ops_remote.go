package propagate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/davsync/propagator/internal/webdav"
)

const ignoreDelete404 = http.StatusNotFound
const ignoreMkcol405 = http.StatusMethodNotAllowed

// sharedFolderName is the literal top-level folder the server refuses to
// let clients rename, checked by exact string compare, not ACL lookup.
const sharedFolderName = "Shared"

// RemoteRemoveJob issues DELETE, tolerating 404 as already-gone, and on
// success deletes the FileRecord.
func RemoteRemoveJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		resp, err := rc.HTTP.Delete(ctx, item.Path)
		status, reason := Classify(webdav.NewOutcome(resp, err), ignoreDelete404)
		if status != StatusSuccess {
			return status, fmt.Errorf("remote remove %q: %s", item.Path, reason)
		}

		if err := rc.Journal.DeleteFileRecord(item.OriginalPath, item.IsDirectory); err != nil {
			return StatusNormal, err
		}
		return StatusSuccess, nil
	})
}

// RemoteMkdirJob issues MKCOL, tolerating 405 as already-exists.
func RemoteMkdirJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		resp, err := rc.HTTP.Mkcol(ctx, item.Path)
		status, reason := Classify(webdav.NewOutcome(resp, err), ignoreMkcol405)
		if status != StatusSuccess {
			return status, fmt.Errorf("remote mkdir %q: %s", item.Path, reason)
		}
		return StatusSuccess, nil
	})
}

// RemoteRenameJob issues MOVE, including the top-level "Shared" folder
// refusal and the ancestor-moved-only same-path refresh.
func RemoteRenameJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		if item.Path == item.RenameTarget {
			// Only an ancestor moved; the server does not preserve mtime
			// across moves, so refresh it explicitly at the (unchanged)
			// URI.
			return refreshMtimeAndEtag(ctx, rc, item)
		}

		if item.Path == sharedFolderName {
			localOld := rc.LocalPath(item.Path)
			localNew := rc.LocalPath(item.RenameTarget)
			if err := os.Rename(localNew, localOld); err != nil && !os.IsNotExist(err) {
				return StatusNormal, fmt.Errorf("revert local rename of %q: %w", sharedFolderName, err)
			}
			return StatusNormal, fmt.Errorf("cannot rename the special folder %q", sharedFolderName)
		}

		resp, err := rc.HTTP.Move(ctx, item.Path, item.RenameTarget)
		status, reason := Classify(webdav.NewOutcome(resp, err), 0)
		if status != StatusSuccess {
			return status, fmt.Errorf("remote move %q -> %q: %s", item.Path, item.RenameTarget, reason)
		}

		refreshed := *item
		refreshed.Path = item.RenameTarget
		metaStatus, metaErr := refreshMtimeAndEtag(ctx, rc, &refreshed)
		if metaErr != nil {
			if rc.StrictRenameMetadata {
				return StatusNormal, metaErr
			}
			metaStatus = StatusSoft
		}

		if err := rc.Journal.DeleteFileRecord(item.Path, item.IsDirectory); err != nil {
			return StatusNormal, err
		}
		inode, uid, gid, mode := statRecordFields(rc.LocalPath(item.RenameTarget))
		rec := &FileRecord{
			Path: item.RenameTarget, Inode: inode, UID: uid, GID: gid, Mode: mode,
			Modtime: refreshed.Modtime, Etag: refreshed.Etag,
			FileID: refreshed.FileID, Type: boolToType(item.IsDirectory),
		}
		if err := rc.Journal.SetFileRecord(rec); err != nil {
			return StatusNormal, err
		}

		item.Path = refreshed.Path
		item.Modtime = refreshed.Modtime
		item.Etag = refreshed.Etag
		item.FileID = refreshed.FileID

		if metaErr != nil {
			return metaStatus, metaErr
		}
		return StatusSuccess, nil
	})
}

// refreshMtimeAndEtag does PROPPATCH(lastmodified) with item's Modtime then
// HEAD, updating item's Etag/FileID in place from the server's response.
func refreshMtimeAndEtag(ctx context.Context, rc *RunContext, item *SyncItem) (Status, error) {
	resp, err := rc.HTTP.PropatchLastModified(ctx, item.Path, item.Modtime)
	if status, reason := Classify(webdav.NewOutcome(resp, err), 0); status != StatusSuccess {
		return status, fmt.Errorf("proppatch %q: %s", item.Path, reason)
	}

	headResp, err := rc.HTTP.Head(ctx, item.Path)
	status, reason := Classify(webdav.NewOutcome(headResp, err), 0)
	if status != StatusSuccess {
		return status, fmt.Errorf("head %q: %s", item.Path, reason)
	}

	etag := webdav.ETag(headResp.Header.Get(webdav.HeaderETag))
	setFileID(item, headResp.Header.Get(webdav.HeaderOCFileID))
	item.Etag = etag
	return StatusSuccess, nil
}

// setFileID applies the write-once-per-path rule: once a path has a
// FileID, a mismatching report from the server is logged, not adopted.
func setFileID(item *SyncItem, reported string) {
	if reported == "" {
		return
	}
	if item.FileID == "" {
		item.FileID = reported
		return
	}
	if item.FileID != reported {
		slog.Warn("remote: fileId mismatch, keeping original", "path", item.Path, "original", item.FileID, "reported", reported)
		return
	}
}

