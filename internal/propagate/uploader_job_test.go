package propagate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davsync/propagator/internal/webdav"
)

func TestUploadJob_SetsIfMatchFromUsableEtag(t *testing.T) {
	var gotIfMatch string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfMatch = r.Header.Get("If-Match")
		w.Header().Set(webdav.HeaderETag, `"v2"`)
		w.Header().Set(webdav.HeaderOCFileID, "f1")
		w.Header().Set("X-OC-Mtime", "accepted")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rc := &RunContext{HTTP: webdav.New(srv.URL), Journal: openTestJournal(t), LocalRoot: t.TempDir()}
	require.NoError(t, writeLocalFile(rc.LocalRoot, "a.txt", "payload"))

	item := &SyncItem{Path: "a.txt", Etag: "v1"}
	status, err := runSync(context.Background(), UploadJob(rc, item), func(Progress) {})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, "v1", gotIfMatch)
	assert.Equal(t, "v2", item.Etag)
	assert.Equal(t, "f1", item.FileID)
}

func TestUploadJob_EmptyEtagSentinelIsNotSentAsIfMatch(t *testing.T) {
	var gotIfMatch string
	seenIfMatch := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfMatch = r.Header.Get("If-Match")
		seenIfMatch = gotIfMatch != ""
		w.Header().Set("X-OC-Mtime", "accepted")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rc := &RunContext{HTTP: webdav.New(srv.URL), Journal: openTestJournal(t), LocalRoot: t.TempDir()}
	require.NoError(t, writeLocalFile(rc.LocalRoot, "a.txt", "payload"))

	item := &SyncItem{Path: "a.txt", Etag: EmptyETag}
	status, err := runSync(context.Background(), UploadJob(rc, item), func(Progress) {})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.False(t, seenIfMatch)
}

func TestUploadJob_FetchesFileIDViaHeadWhenNotReturnedByPut(t *testing.T) {
	var headCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			headCalled = true
			w.Header().Set(webdav.HeaderOCFileID, "late-id")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("X-OC-Mtime", "accepted")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rc := &RunContext{HTTP: webdav.New(srv.URL), Journal: openTestJournal(t), LocalRoot: t.TempDir()}
	require.NoError(t, writeLocalFile(rc.LocalRoot, "a.txt", "payload"))

	item := &SyncItem{Path: "a.txt"}
	status, err := runSync(context.Background(), UploadJob(rc, item), func(Progress) {})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.True(t, headCalled)
	assert.Equal(t, "late-id", item.FileID)
}

// TestUploadJob_ResumesFromPersistedChunkAfterInterruption drives a
// multi-chunk upload whose second chunk fails once, confirms the journal
// persisted chunk 1 as the resume point, then replays attemptUpload and
// checks it resumes there with the same transferId instead of restarting.
func TestUploadJob_ResumesFromPersistedChunkAfterInterruption(t *testing.T) {
	chunkURIPattern := regexp.MustCompile(`-chunking-([0-9a-f]+)-(\d+)-(\d+)$`)
	var failedChunk1Once bool
	var transferIDs []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)

		m := chunkURIPattern.FindStringSubmatch(r.URL.Path)
		require.NotNil(t, m, "expected a chunked PUT URI, got %q", r.URL.Path)
		transferIDs = append(transferIDs, m[1])
		chunkCount, _ := strconv.Atoi(m[2])
		chunkIndex, _ := strconv.Atoi(m[3])

		if chunkIndex == 1 && !failedChunk1Once {
			failedChunk1Once = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if chunkIndex == chunkCount-1 {
			w.Header().Set(webdav.HeaderETag, `"final"`)
			w.Header().Set(webdav.HeaderOCFileID, "fileid123")
			w.Header().Set("X-OC-Mtime", "accepted")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rc := &RunContext{HTTP: webdav.New(srv.URL), Journal: openTestJournal(t), LocalRoot: t.TempDir()}
	payload := make([]byte, uploadChunkSize+1)
	require.NoError(t, writeLocalFile(rc.LocalRoot, "big.bin", string(payload)))

	info, err := os.Stat(rc.LocalPath("big.bin"))
	require.NoError(t, err)
	item := &SyncItem{Path: "big.bin", Modtime: info.ModTime().Unix()}
	limiter := NewBandwidthLimiter(0)

	status, changed, err := attemptUpload(context.Background(), rc, item, limiter, func(Progress) {})
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusNormal, status)

	resume, err := rc.Journal.GetUploadInfo("big.bin")
	require.NoError(t, err)
	require.True(t, resume.Valid)
	assert.Equal(t, 1, resume.Chunk)
	assert.Equal(t, transferIDs[0], resume.TransferID)

	status, changed, err = attemptUpload(context.Background(), rc, item, limiter, func(Progress) {})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, "fileid123", item.FileID)

	// Only chunk 1 was retried, not chunk 0: the second attempt resumed
	// instead of restarting the whole transfer.
	assert.Equal(t, []string{resume.TransferID, resume.TransferID, resume.TransferID}, transferIDs)

	resume2, err := rc.Journal.GetUploadInfo("big.bin")
	require.NoError(t, err)
	assert.False(t, resume2.Valid)
}

func TestChunkCountFor(t *testing.T) {
	assert.Equal(t, 1, chunkCountFor(0))
	assert.Equal(t, 1, chunkCountFor(uploadChunkSize))
	assert.Equal(t, 2, chunkCountFor(uploadChunkSize+1))
}
