package propagate

import "context"

// DirectoryJob composes a first job (the directory's own create/check) and
// an ordered list of children into one sequential unit. Children emit
// completion through the callback passed to Start, never through back-
// pointers; a DirectoryJob is itself a Job, so the tree recurses through
// the same interface at every level.
type DirectoryJob struct {
	rc *RunContext

	// Item is nil for the synthetic root job.
	Item *SyncItem
	// FirstJob is the directory's own create/check job; nil for the root
	// and for directories whose instruction needs no action of its own
	// (SYNC/CONFLICT on an existing directory).
	FirstJob Job
	Children []Job
}

func (d *DirectoryJob) Start(ctx context.Context, onProgress ProgressFunc, onFinished FinishedFunc) {
	errored := false

	if d.FirstJob != nil {
		status, err := runSync(ctx, d.FirstJob, onProgress)
		if status == StatusFatal {
			onFinished(StatusFatal, err)
			return
		}
		if status.IsError() {
			errored = true
		}
	}

	for _, child := range d.Children {
		status, err := runSync(ctx, child, onProgress)
		if status == StatusFatal {
			onFinished(StatusFatal, err)
			return
		}
		if status.IsError() {
			errored = true
		}
	}

	if d.Item != nil && !errored && d.rc != nil {
		inode, uid, gid, mode := statRecordFields(d.rc.LocalPath(d.Item.Path))
		rec := &FileRecord{
			Path: d.Item.Path, Inode: inode, UID: uid, GID: gid, Mode: mode,
			Modtime: d.Item.Modtime, Etag: d.Item.Etag,
			FileID: d.Item.FileID, Type: boolToType(true),
		}
		if err := d.rc.Journal.SetFileRecord(rec); err != nil {
			onFinished(StatusNormal, err)
			return
		}
	}

	if errored {
		onFinished(StatusNormal, nil)
		return
	}
	onFinished(StatusSuccess, nil)
}

// runSync drives a Job synchronously, since the core is single-threaded
// cooperative over a run: only one job is ever active at a time.
func runSync(ctx context.Context, j Job, onProgress ProgressFunc) (Status, error) {
	var status Status
	var err error
	j.Start(ctx, onProgress, func(s Status, e error) {
		status, err = s, e
	})
	return status, err
}

var _ Job = (*DirectoryJob)(nil)
