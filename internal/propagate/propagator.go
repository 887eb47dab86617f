package propagate

import "context"

// Run builds the job tree for items (already sorted by the reconciler so
// directories precede their descendants) and executes it to completion. The returned Status is the root DirectoryJob's own
// aggregate: Success if nothing errored, Normal if some item errored but
// the run was not aborted, Fatal if a single item's failure halted the
// whole run. onProgress receives the start, progress and end events of
// upload and download jobs, keyed by path; per-item statuses are not
// reported through it.
func Run(ctx context.Context, rc *RunContext, items []*SyncItem, onProgress ProgressFunc) (Status, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	root := Build(rc, items)
	status, err := runSync(ctx, root, onProgress)
	if status == StatusFatal {
		rc.Abort()
	}
	return status, err
}
