package propagate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davsync/propagator/internal/webdav"
)

var chunkSuffixPattern = regexp.MustCompile(`-chunking-[0-9a-f]+-\d+-\d+$`)

func writeLocalFile(root, relPath, content string) error {
	full := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

// fakeServer is a minimal in-memory stand-in for the WebDAV endpoints Run
// drives: it tracks file bodies and etags keyed by sync-root path, handling
// PUT (including the owncloud chunking URI), HEAD, DELETE, MKCOL, MOVE, and
// PROPPATCH well enough to exercise a full upload-then-download round trip.
type fakeServer struct {
	files map[string][]byte
	etags map[string]string
}

func newFakeServer() *httptest.Server {
	fs := &fakeServer{files: map[string][]byte{}, etags: map[string]string{}}
	return httptest.NewServer(http.HandlerFunc(fs.handle))
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch r.Method {
	case http.MethodPut:
		// Strip the owncloud legacy chunking suffix; the fake server
		// assembles whole-file bodies in one PUT for simplicity since no
		// test here exercises multi-chunk resumption end to end.
		path = chunkSuffixPattern.ReplaceAllString(path, "")
		body, _ := io.ReadAll(r.Body)
		fs.files[path] = body
		fs.etags[path] = "etag-1"
		w.Header().Set(webdav.HeaderETag, `"etag-1"`)
		w.Header().Set("X-OC-Mtime", "accepted")
		w.WriteHeader(http.StatusCreated)

	case http.MethodHead:
		body, ok := fs.files[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set(webdav.HeaderETag, `"`+fs.etags[path]+`"`)
		w.Header().Set("Content-Length", itoa(len(body)))
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		body, ok := fs.files[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set(webdav.HeaderETag, `"`+fs.etags[path]+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)

	case http.MethodDelete:
		if _, ok := fs.files[path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(fs.files, path)
		w.WriteHeader(http.StatusNoContent)

	case "MKCOL":
		w.WriteHeader(http.StatusCreated)

	case "PROPPATCH":
		w.WriteHeader(http.StatusMultiStatus)

	case "MOVE":
		dest := r.Header.Get("Destination")
		fs.files[dest] = fs.files[path]
		fs.etags[dest] = fs.etags[path]
		delete(fs.files, path)
		w.WriteHeader(http.StatusCreated)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}

func TestRun_UploadThenDownload_RoundTripsContent(t *testing.T) {
	srv := newFakeServer()
	defer srv.Close()

	uploadRoot := t.TempDir()
	require.NoError(t, writeLocalFile(uploadRoot, "doc.txt", "hello from the sync root"))

	uploadRC := &RunContext{
		HTTP:      webdav.New(srv.URL),
		Journal:   openTestJournal(t),
		LocalRoot: uploadRoot,
	}
	uploadItem := &SyncItem{Path: "doc.txt", Instruction: InstrNew, Direction: DirUp, Size: int64(len("hello from the sync root"))}

	status, err := Run(context.Background(), uploadRC, []*SyncItem{uploadItem}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	rec, ok, err := uploadRC.Journal.GetFileRecord("doc.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, rec.Etag)

	downloadRoot := t.TempDir()
	downloadRC := &RunContext{
		HTTP:      webdav.New(srv.URL),
		Journal:   openTestJournal(t),
		LocalRoot: downloadRoot,
	}
	downloadItem := &SyncItem{Path: "doc.txt", Instruction: InstrNew, Direction: DirDown, Modtime: 1700000000}

	status, err = Run(context.Background(), downloadRC, []*SyncItem{downloadItem}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	got, err := os.ReadFile(filepath.Join(downloadRoot, "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from the sync root", string(got))
}

func TestRun_ConflictingDownloadBacksUpLocalFile(t *testing.T) {
	srv := newFakeServer()
	defer srv.Close()

	root := t.TempDir()
	require.NoError(t, writeLocalFile(root, "notes.txt", "local version"))

	uploadRC := &RunContext{HTTP: webdav.New(srv.URL), Journal: openTestJournal(t), LocalRoot: t.TempDir()}
	require.NoError(t, writeLocalFile(uploadRC.LocalRoot, "notes.txt", "remote version"))
	_, err := Run(context.Background(), uploadRC, []*SyncItem{{Path: "notes.txt", Instruction: InstrNew, Direction: DirUp}}, nil)
	require.NoError(t, err)

	rc := &RunContext{HTTP: webdav.New(srv.URL), Journal: openTestJournal(t), LocalRoot: root}
	item := &SyncItem{Path: "notes.txt", Instruction: InstrConflict, Direction: DirDown, Modtime: 1700000000}

	// A handled conflict is not a run-level error: the directory-aggregation
	// rule treats StatusConflict as a completed leaf, not one that marks the
	// enclosing run errored (only Soft/Normal/Fatal escalate).
	status, err := Run(context.Background(), rc, []*SyncItem{item}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	got, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "remote version", string(got))

	matches, _ := filepath.Glob(filepath.Join(root, "notes_conflict-*.txt"))
	assert.Len(t, matches, 1)
}

func TestRun_RemoteRenameOfSharedFolderIsRefusedAndReverted(t *testing.T) {
	srv := newFakeServer()
	defer srv.Close()

	root := t.TempDir()
	require.NoError(t, writeLocalFile(root, "renamed/placeholder.txt", "x"))

	rc := &RunContext{HTTP: webdav.New(srv.URL), Journal: openTestJournal(t), LocalRoot: root}
	item := &SyncItem{Path: "Shared", RenameTarget: "renamed", IsDirectory: true, Instruction: InstrRename, Direction: DirUp}

	status, _ := Run(context.Background(), rc, []*SyncItem{item}, nil)
	assert.Equal(t, StatusNormal, status)

	_, statErr := os.Stat(filepath.Join(root, "Shared"))
	assert.NoError(t, statErr, "the local rename should have been reverted")
}
