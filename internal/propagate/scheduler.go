package propagate

import "strings"

// stackFrame is one (prefix, directoryJob) entry of the build-time stack.
type stackFrame struct {
	prefix string
	dir    *DirectoryJob
}

// Build composes items (sorted so any directory precedes all its
// descendants) into a tree of DirectoryJobs rooted at the returned job.
// Directory removals are deferred and appended as the last children of the
// root, in the order they were encountered.
func Build(rc *RunContext, items []*SyncItem) *DirectoryJob {
	root := &DirectoryJob{rc: rc}
	stack := []stackFrame{{prefix: "", dir: root}}

	var deferredRemovals []Job
	removedPrefix := ""

	for _, item := range items {
		if removedPrefix != "" && item.Instruction == InstrRemove && strings.HasPrefix(item.Path, removedPrefix) {
			// An ancestor directory removal already covers this path; the
			// sorted input guarantees removed descendants are contiguous.
			continue
		}

		for len(stack) > 1 && !strings.HasPrefix(item.Path+"/", stack[len(stack)-1].prefix) {
			stack = stack[:len(stack)-1]
		}
		top := stack[len(stack)-1].dir

		if item.IsDirectory {
			dirJob := &DirectoryJob{rc: rc, Item: item, FirstJob: jobForItem(rc, item)}

			if item.Instruction == InstrRemove {
				deferredRemovals = append(deferredRemovals, dirJob)
				removedPrefix = item.Path + "/"
			} else {
				top.Children = append(top.Children, dirJob)
			}

			stack = append(stack, stackFrame{prefix: item.Path + "/", dir: dirJob})
			continue
		}

		top.Children = append(top.Children, jobForItem(rc, item))
	}

	root.Children = append(root.Children, deferredRemovals...)
	return root
}

// jobForItem is the leaf-job factory table, covering both true leaf items
// and a directory's own first job (the isDirectory column disambiguates
// rows that only apply to one or the other).
func jobForItem(rc *RunContext, item *SyncItem) Job {
	switch item.Instruction {
	case InstrIgnore:
		return IgnoreJob()

	case InstrRemove:
		if item.Direction == DirUp {
			return RemoteRemoveJob(rc, item)
		}
		return LocalRemoveJob(rc, item)

	case InstrRename:
		if item.Direction == DirUp {
			return RemoteRenameJob(rc, item)
		}
		return LocalRenameJob(rc, item)

	case InstrNew:
		if item.IsDirectory {
			if item.Direction == DirUp {
				return RemoteMkdirJob(rc, item)
			}
			return LocalMkdirJob(rc, item)
		}
		return transferJob(rc, item)

	case InstrSync, InstrConflict:
		if item.IsDirectory {
			// The directory already exists on both sides; nothing to do
			// for the directory entry itself beyond traversal.
			return nil
		}
		return transferJob(rc, item)

	default:
		return IgnoreJob()
	}
}

func transferJob(rc *RunContext, item *SyncItem) Job {
	if item.Direction == DirUp {
		return UploadJob(rc, item)
	}
	return DownloadJob(rc, item)
}
