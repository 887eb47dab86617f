package propagate

import (
	"sync/atomic"

	"github.com/davsync/propagator/internal/webdav"
)

// RunContext carries every piece of run-wide state a job needs, passed as
// an explicit argument rather than reached through an ambient singleton:
// the shared HTTP session, the abort flag, the local/remote roots, the
// configured bandwidth limits, and the journal handle.
type RunContext struct {
	HTTP    *webdav.Client
	Journal Journal

	LocalRoot string

	UploadLimit   int64
	DownloadLimit int64

	// StrictRenameMetadata escalates a MOVE-succeeded-but-PROPPATCH/HEAD-
	// failed outcome from Soft (the default) to Normal.
	StrictRenameMetadata bool

	aborted atomic.Bool
}

// Abort sets the monotonic abort flag. Jobs observe it cooperatively between
// I/O operations; it is never cleared once set for the lifetime of a run.
func (r *RunContext) Abort() {
	r.aborted.Store(true)
}

// Aborted reports whether the run-wide abort flag has been set.
func (r *RunContext) Aborted() bool {
	return r.aborted.Load()
}

// LocalPath joins the configured local root with a sync-root-relative path.
func (r *RunContext) LocalPath(path string) string {
	return joinLocal(r.LocalRoot, path)
}
