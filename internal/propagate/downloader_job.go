package propagate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/davsync/propagator/internal/utils"
	"github.com/davsync/propagator/internal/webdav"
)

const downloadTimeoutRetries = 3

// DownloadJob writes to a hidden temp file with HTTP Range resume, handles
// gzip content-encoding, detects true conflicts, atomically publishes,
// sets mtime, and writes the FileRecord.
func DownloadJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		localPath := rc.LocalPath(item.Path)

		tmpPath, err := prepareDownloadTempFile(rc, item, localPath)
		if err != nil {
			return StatusNormal, err
		}

		limiter := NewBandwidthLimiter(rc.DownloadLimit)
		onProgress(Progress{Kind: ProgressStartDownload, Path: item.Path, Total: item.Size})

		var result *webdav.DownloadResult
		for attempt := 0; ; attempt++ {
			info, serr := os.Stat(tmpPath)
			var rangeFrom int64
			if serr == nil {
				rangeFrom = info.Size()
			}

			f, ferr := os.OpenFile(tmpPath, os.O_WRONLY|os.O_APPEND, 0o644)
			if ferr != nil {
				return StatusNormal, fmt.Errorf("open temp file %q: %w", tmpPath, ferr)
			}

			result, err = rc.HTTP.Download(ctx, item.Path, rangeFrom, f, rc.Aborted, func(done, total int64) {
				cumulative := rangeFrom + done
				limiter.Tick(cumulative)
				onProgress(Progress{Kind: ProgressContext, Path: item.Path, Done: cumulative, Total: total})
			})
			_ = f.Close()

			if err == nil {
				break
			}

			outcome := webdav.NewOutcome(nil, err)
			if outcome.Timeout && attempt+1 < downloadTimeoutRetries {
				slog.Warn("download: timeout, retrying", "path", item.Path, "attempt", attempt+1)
				continue
			}

			status, reason := Classify(outcome, 0)
			discardEmptyTempFile(rc, item, tmpPath)
			return status, fmt.Errorf("download %q: %s", item.Path, reason)
		}

		if result.StatusCode != 0 && !isSuccessStatus(result.StatusCode) {
			status, reason := Classify(webdav.Outcome{TransportOK: true, StatusCode: result.StatusCode}, 0)
			discardEmptyTempFile(rc, item, tmpPath)
			return status, fmt.Errorf("download %q: %s", item.Path, reason)
		}

		item.Etag = result.ETag
		setFileID(item, result.FileID)

		finalStatus := StatusSuccess
		if item.Instruction == InstrConflict {
			conflicted, cerr := handleConflict(rc, item, localPath, tmpPath)
			if cerr != nil {
				return StatusNormal, cerr
			}
			if conflicted {
				finalStatus = StatusConflict
			}
		}

		if err := unmarkHidden(tmpPath); err != nil {
			slog.Warn("download: failed to unhide temp file", "path", tmpPath, "error", err)
		}

		if err := publishAtomic(tmpPath, localPath); err != nil {
			return StatusNormal, fmt.Errorf("publish %q: %w", item.Path, err)
		}

		mtime := time.Unix(item.Modtime, 0)
		if err := os.Chtimes(localPath, mtime, mtime); err != nil {
			slog.Warn("download: failed to set mtime", "path", localPath, "error", err)
		}

		inode, uid, gid, mode := statRecordFields(localPath)
		if err := rc.Journal.SetFileRecord(&FileRecord{
			Path: item.Path, Inode: inode, UID: uid, GID: gid, Mode: mode,
			Modtime: item.Modtime, Etag: item.Etag, FileID: item.FileID, Type: boolToType(item.IsDirectory),
		}); err != nil {
			return StatusNormal, err
		}
		if err := rc.Journal.SetDownloadInfo(item.Path, &DownloadResume{Valid: false}); err != nil {
			return StatusNormal, err
		}

		onProgress(Progress{Kind: ProgressEndDownload, Path: item.Path, Done: item.Size, Total: item.Size})
		return finalStatus, nil
	})
}

// prepareDownloadTempFile reuses a valid resume record's temp file if the
// etag still matches, otherwise starts a fresh hidden temp file in the
// destination directory.
func prepareDownloadTempFile(rc *RunContext, item *SyncItem, localPath string) (string, error) {
	resume, err := rc.Journal.GetDownloadInfo(item.Path)
	if err != nil {
		return "", err
	}

	if resume.Valid {
		if resume.Etag != item.Etag {
			_ = os.Remove(joinLocal(rc.LocalRoot, resume.TmpFile))
			resume = &DownloadResume{}
		} else {
			return joinLocal(rc.LocalRoot, resume.TmpFile), nil
		}
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure directory %q: %w", dir, err)
	}

	tmpName := fmt.Sprintf(".%s.~%s", filepath.Base(localPath), randomHex(4))
	tmpPath := filepath.Join(dir, tmpName)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create temp file %q: %w", tmpPath, err)
	}
	_ = f.Close()

	if err := markHidden(tmpPath); err != nil {
		slog.Warn("download: failed to hide temp file", "path", tmpPath, "error", err)
	}

	relTmp, err := filepath.Rel(rc.LocalRoot, tmpPath)
	if err != nil {
		relTmp = tmpPath
	}
	if err := rc.Journal.SetDownloadInfo(item.Path, &DownloadResume{Valid: true, Etag: item.Etag, TmpFile: filepath.ToSlash(relTmp)}); err != nil {
		return "", err
	}

	return tmpPath, nil
}

// discardEmptyTempFile removes a zero-byte temp file left behind by a
// failed download rather than retaining it as a resume point.
func discardEmptyTempFile(rc *RunContext, item *SyncItem, tmpPath string) {
	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() != 0 {
		return
	}
	_ = os.Remove(tmpPath)
	_ = rc.Journal.SetDownloadInfo(item.Path, &DownloadResume{Valid: false})
}

// handleConflict backs up the existing local file only when it differs at
// the byte level from the freshly downloaded temp file.
func handleConflict(rc *RunContext, item *SyncItem, localPath, tmpPath string) (bool, error) {
	same, err := filesEqual(localPath, tmpPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if same {
		return false, nil
	}

	backupPath := conflictBackupPath(localPath, item.Modtime)
	if err := os.Rename(localPath, backupPath); err != nil {
		return false, fmt.Errorf("backup conflicted file %q: %w", localPath, err)
	}
	return true, nil
}

// conflictBackupPath builds "<stem>_conflict-YYYYMMDD-hhmmss<ext>" using the
// item's modtime, not wall-clock time. If the basename has no extension,
// the suffix is appended at the very end.
func conflictBackupPath(localPath string, modtime int64) string {
	dir := filepath.Dir(localPath)
	base := filepath.Base(localPath)
	stem, ext := splitStemExt(base)
	ts := time.Unix(modtime, 0).UTC().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("%s_conflict-%s%s", stem, ts, ext))
}

// filesEqual reports whether a and b hold identical content. Size is
// checked first since it's free; only a genuine size match pays for the
// MD5 pass over both files.
func filesEqual(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	hashA, err := utils.FileHash(a)
	if err != nil {
		return false, err
	}
	hashB, err := utils.FileHash(b)
	if err != nil {
		return false, err
	}
	return hashA == hashB, nil
}

// publishAtomic renames tmpPath over destPath. Where the platform's rename
// primitive lacks overwrite semantics, the fallback remove-then-rename is a
// documented, acceptable race: the reconciler re-drives on the next run.
func publishAtomic(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err != nil {
		if os.IsExist(err) {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		return err
	}
	return nil
}
