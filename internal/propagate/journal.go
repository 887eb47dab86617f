package propagate

// Journal is the narrow key/value-like contract the core consumes. The
// schema/storage layer behind it is a swappable collaborator; the core only
// needs these point operations, and assumes reads reflect prior writes
// within the same run.
type Journal interface {
	SetFileRecord(rec *FileRecord) error
	// DeleteFileRecord removes the record for path. When isDirectory is
	// true, every descendant record is removed too, since a removed
	// directory's children are never visited individually.
	DeleteFileRecord(path string, isDirectory bool) error
	GetFileRecord(path string) (*FileRecord, bool, error)

	GetUploadInfo(path string) (*UploadResume, error)
	SetUploadInfo(path string, info *UploadResume) error

	GetDownloadInfo(path string) (*DownloadResume, error)
	SetDownloadInfo(path string, info *DownloadResume) error
}
