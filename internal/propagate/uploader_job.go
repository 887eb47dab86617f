package propagate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/davsync/propagator/internal/webdav"
)

// uploadChunkSize is the fixed target chunk size chosen for the chunked
// uploader; files smaller than this upload as a single chunk.
const uploadChunkSize = 10 * 1024 * 1024

// maxSourceChangeRetries bounds retries for a source file changing mid-upload.
const maxSourceChangeRetries = 30

const sourceChangeBackoff = 2 * time.Second

const headerMtime = "X-OC-Mtime"
const headerMtimeAccepted = "accepted"

// UploadJob splits a local file into ordered chunks, PUTs them, persists
// per-chunk resume state, detects mid-flight source change, finalizes
// etag/fileId, and writes the FileRecord.
func UploadJob(rc *RunContext, item *SyncItem) Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		limiter := NewBandwidthLimiter(rc.UploadLimit)

		for attempt := 0; ; attempt++ {
			status, changed, err := attemptUpload(ctx, rc, item, limiter, onProgress)
			if err == nil {
				return status, nil
			}
			if !changed {
				return status, err
			}
			if attempt+1 >= maxSourceChangeRetries {
				return StatusNormal, fmt.Errorf("upload %q: source changed %d times, giving up: %w", item.Path, attempt+1, err)
			}
			slog.Warn("upload: source file changed mid-transfer, retrying", "path", item.Path, "attempt", attempt+1)
			time.Sleep(sourceChangeBackoff)
		}
	})
}

func attemptUpload(ctx context.Context, rc *RunContext, item *SyncItem, limiter *BandwidthLimiter, onProgress ProgressFunc) (status Status, sourceChanged bool, err error) {
	localPath := rc.LocalPath(item.Path)

	file, err := os.Open(localPath)
	if err != nil {
		return StatusNormal, false, fmt.Errorf("open %q: %w", item.Path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return StatusNormal, false, fmt.Errorf("stat %q: %w", item.Path, err)
	}
	size := info.Size()
	chunkCount := chunkCountFor(size)

	startChunk := 0
	transferID := randomHex(8)
	resume, rerr := rc.Journal.GetUploadInfo(item.Path)
	if rerr != nil {
		return StatusNormal, false, rerr
	}
	if resume.Valid && resume.Modtime == item.Modtime {
		startChunk = resume.Chunk
		transferID = resume.TransferID
	}

	onProgress(Progress{Kind: ProgressStartUpload, Path: item.Path, Done: int64(startChunk) * uploadChunkSize, Total: size})

	ifMatch := ""
	if item.HasUsableEtag() {
		ifMatch = item.Etag
	}

	var lastResp *webdavResponse
	for chunk := startChunk; chunk < chunkCount; chunk++ {
		if rc.Aborted() {
			return StatusNormal, false, ErrAbort
		}

		statNow, serr := os.Stat(localPath)
		if serr != nil {
			return StatusNormal, false, fmt.Errorf("stat %q: %w", item.Path, serr)
		}
		if statNow.Size() != size || !statNow.ModTime().Equal(info.ModTime()) {
			return StatusNormal, true, fmt.Errorf("source file changed")
		}

		offset := int64(chunk) * uploadChunkSize
		chunkSize := min64(uploadChunkSize, size-offset)
		section := io.NewSectionReader(file, offset, chunkSize)

		resp, perr := rc.HTTP.PutChunk(ctx, item.Path, transferID, chunk, chunkCount, section, chunkSize, ifMatch,
			func(done, total int64) {
				cumulative := offset + done
				limiter.Tick(cumulative)
				onProgress(Progress{Kind: ProgressContext, Path: item.Path, Done: cumulative, Total: size})
			})

		outcome := webdav.NewOutcome(resp, perr)
		st, reason := Classify(outcome, 0)
		if st != StatusSuccess {
			return st, false, fmt.Errorf("upload chunk %d/%d of %q: %s", chunk, chunkCount, item.Path, reason)
		}
		lastResp = &webdavResponse{etag: webdav.ETag(resp.Header.Get(webdav.HeaderETag)), fileID: resp.Header.Get(webdav.HeaderOCFileID), mtimeAccepted: resp.Header.Get(headerMtime) == headerMtimeAccepted}

		if chunkCount > 1 {
			if err := rc.Journal.SetUploadInfo(item.Path, &UploadResume{Valid: true, Chunk: chunk + 1, TransferID: transferID, Modtime: item.Modtime}); err != nil {
				return StatusNormal, false, err
			}
		}
	}

	setFileID(item, lastResp.fileID)
	if item.FileID == "" {
		headResp, herr := rc.HTTP.Head(ctx, item.Path)
		if hstatus, reason := Classify(webdav.NewOutcome(headResp, herr), 0); hstatus != StatusSuccess {
			return hstatus, false, fmt.Errorf("head %q after upload: %s", item.Path, reason)
		}
		setFileID(item, headResp.Header.Get(webdav.HeaderOCFileID))
	}

	if lastResp.mtimeAccepted {
		item.Etag = lastResp.etag
	} else {
		if mstatus, merr := refreshMtimeAndEtag(ctx, rc, item); merr != nil {
			return mstatus, false, merr
		}
	}

	inode, uid, gid, mode := statRecordFields(localPath)
	if err := rc.Journal.SetFileRecord(&FileRecord{
		Path: item.Path, Inode: inode, UID: uid, GID: gid, Mode: mode,
		Modtime: item.Modtime, Etag: item.Etag, FileID: item.FileID, Type: boolToType(item.IsDirectory),
	}); err != nil {
		return StatusNormal, false, err
	}
	if err := rc.Journal.SetUploadInfo(item.Path, &UploadResume{Valid: false}); err != nil {
		return StatusNormal, false, err
	}

	onProgress(Progress{Kind: ProgressEndUpload, Path: item.Path, Done: size, Total: size})
	return StatusSuccess, false, nil
}

type webdavResponse struct {
	etag          string
	fileID        string
	mtimeAccepted bool
}

func chunkCountFor(size int64) int {
	if size == 0 {
		return 1
	}
	n := size / uploadChunkSize
	if size%uploadChunkSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return int(n)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
