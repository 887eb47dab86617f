package propagate

import "context"

// ProgressFunc receives one progress tick from a running job.
type ProgressFunc func(Progress)

// FinishedFunc is invoked exactly once, when a job reaches a terminal
// status. Jobs are one-shot: start, zero or more progress events, one
// finished event.
type FinishedFunc func(Status, error)

// Job is the shared capability set every leaf and directory job satisfies.
// There is no inheritance: a Job is whatever type implements Start; the
// tree holds plain Job values.
type Job interface {
	// Start runs the job to completion (or to its first unrecoverable
	// error), reporting progress via onProgress and its terminal outcome
	// via onFinished exactly once.
	Start(ctx context.Context, onProgress ProgressFunc, onFinished FinishedFunc)
}

// JobFunc adapts a plain function into a Job for the trivial leaf jobs
// (IgnoreJob, simple ops) that need no internal state.
type JobFunc func(ctx context.Context, onProgress ProgressFunc) (Status, error)

func (f JobFunc) Start(ctx context.Context, onProgress ProgressFunc, onFinished FinishedFunc) {
	status, err := f(ctx, onProgress)
	onFinished(status, err)
}

// IgnoreJob emits Success immediately without touching the filesystem,
// network, or journal.
func IgnoreJob() Job {
	return JobFunc(func(ctx context.Context, onProgress ProgressFunc) (Status, error) {
		return StatusSuccess, nil
	})
}
