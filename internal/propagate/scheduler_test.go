package propagate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunContext(t *testing.T) *RunContext {
	t.Helper()
	return &RunContext{
		LocalRoot: t.TempDir(),
		Journal:   openTestJournal(t),
	}
}

func TestBuild_NestsChildrenUnderTheirDirectory(t *testing.T) {
	rc := newTestRunContext(t)
	items := []*SyncItem{
		{Path: "a", IsDirectory: true, Instruction: InstrNew, Direction: DirDown},
		{Path: "a/b.txt", Instruction: InstrIgnore},
		{Path: "c.txt", Instruction: InstrIgnore},
	}

	root := Build(rc, items)
	require.Len(t, root.Children, 2)

	dirJob, ok := root.Children[0].(*DirectoryJob)
	require.True(t, ok)
	assert.Equal(t, "a", dirJob.Item.Path)
	require.Len(t, dirJob.Children, 1)
}

func TestBuild_SkipsDescendantsOfARemovedDirectory(t *testing.T) {
	rc := newTestRunContext(t)
	items := []*SyncItem{
		{Path: "a", IsDirectory: true, Instruction: InstrRemove, Direction: DirUp},
		{Path: "a/b.txt", Instruction: InstrRemove, Direction: DirUp},
		{Path: "a/c", IsDirectory: true, Instruction: InstrRemove, Direction: DirUp},
		{Path: "a/c/d.txt", Instruction: InstrRemove, Direction: DirUp},
	}

	root := Build(rc, items)

	// Every removal rolls up into the single deferred directory job for "a",
	// appended as the sole child of the root; nothing else gets attached.
	require.Len(t, root.Children, 1)
	dirJob, ok := root.Children[0].(*DirectoryJob)
	require.True(t, ok)
	assert.Equal(t, "a", dirJob.Item.Path)
	assert.Empty(t, dirJob.Children)
}

func TestBuild_DeferredDirectoryRemovalsRunLast(t *testing.T) {
	rc := newTestRunContext(t)
	items := []*SyncItem{
		{Path: "old", IsDirectory: true, Instruction: InstrRemove, Direction: DirUp},
		{Path: "new.txt", Instruction: InstrIgnore},
	}

	root := Build(rc, items)
	require.Len(t, root.Children, 2)
	_, isDirJob := root.Children[0].(*DirectoryJob)
	assert.False(t, isDirJob, "the non-removal leaf should come first")

	removedDir, ok := root.Children[1].(*DirectoryJob)
	require.True(t, ok)
	assert.Equal(t, "old", removedDir.Item.Path)
}

func TestBuild_PopsStackBackToCommonAncestor(t *testing.T) {
	rc := newTestRunContext(t)
	items := []*SyncItem{
		{Path: "a", IsDirectory: true, Instruction: InstrNew, Direction: DirDown},
		{Path: "a/b", IsDirectory: true, Instruction: InstrNew, Direction: DirDown},
		{Path: "a/b/c.txt", Instruction: InstrIgnore},
		{Path: "z.txt", Instruction: InstrIgnore},
	}

	root := Build(rc, items)
	require.Len(t, root.Children, 2)

	aJob := root.Children[0].(*DirectoryJob)
	require.Len(t, aJob.Children, 1)
	bJob := aJob.Children[0].(*DirectoryJob)
	require.Len(t, bJob.Children, 1)

	_, isDirJob := root.Children[1].(*DirectoryJob)
	assert.False(t, isDirJob)
}

func TestJobForItem_SyncOnExistingDirectoryIsANoOp(t *testing.T) {
	item := &SyncItem{Path: "a", IsDirectory: true, Instruction: InstrSync}
	assert.Nil(t, jobForItem(&RunContext{}, item))
}

func TestDirectoryJob_RunsEntireTreeAndAggregatesErrors(t *testing.T) {
	rc := newTestRunContext(t)
	require.NoError(t, writeLocalFile(rc.LocalRoot, "a/keep.txt", "hi"))

	items := []*SyncItem{
		{Path: "a", IsDirectory: true, Instruction: InstrSync},
		{Path: "a/keep.txt", Instruction: InstrIgnore},
		{Path: "missing.txt", RenameTarget: "renamed.txt", Instruction: InstrRename, Direction: DirDown},
	}

	root := Build(rc, items)
	status, _ := runSync(context.Background(), root, func(Progress) {})
	assert.Equal(t, StatusNormal, status, "a failed rename of a nonexistent local file should mark the run errored, not fatal")
}
