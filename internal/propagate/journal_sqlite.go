package propagate

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/davsync/propagator/internal/db"
	"github.com/davsync/propagator/internal/utils"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS file_record (
	path TEXT PRIMARY KEY,
	inode INTEGER NOT NULL,
	uid INTEGER NOT NULL,
	gid INTEGER NOT NULL,
	mode INTEGER NOT NULL,
	modtime INTEGER NOT NULL,
	type INTEGER NOT NULL,
	etag TEXT NOT NULL,
	file_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS upload_resume (
	path TEXT PRIMARY KEY,
	valid INTEGER NOT NULL,
	chunk INTEGER NOT NULL,
	transfer_id TEXT NOT NULL,
	modtime INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS download_resume (
	path TEXT PRIMARY KEY,
	valid INTEGER NOT NULL,
	etag TEXT NOT NULL,
	tmpfile TEXT NOT NULL
);
`

// SqliteJournal is the sqlite-backed Journal implementation, extending the
// teacher's single-table sync journal with resume-state tables.
type SqliteJournal struct {
	db   *sqlx.DB
	path string
}

// OpenSqliteJournal opens (creating if needed) a journal database at path.
// Use ":memory:" for a transient journal, primarily for tests.
func OpenSqliteJournal(path string) (*SqliteJournal, error) {
	if path != ":memory:" {
		if err := utils.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("ensure journal directory: %w", err)
		}
	}

	sqlDB, err := db.NewSqliteDb(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := sqlDB.Exec(journalSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	return &SqliteJournal{db: sqlDB, path: path}, nil
}

// Close closes the underlying database connection.
func (j *SqliteJournal) Close() error {
	return j.db.Close()
}

type fileRecordRow struct {
	Path    string `db:"path"`
	Inode   int64  `db:"inode"`
	UID     int    `db:"uid"`
	GID     int    `db:"gid"`
	Mode    uint32 `db:"mode"`
	Modtime int64  `db:"modtime"`
	Type    int    `db:"type"`
	Etag    string `db:"etag"`
	FileID  string `db:"file_id"`
}

func (j *SqliteJournal) SetFileRecord(rec *FileRecord) error {
	if rec == nil {
		return fmt.Errorf("propagate: cannot set nil file record")
	}

	row := fileRecordRow{
		Path: rec.Path, Inode: rec.Inode, UID: rec.UID, GID: rec.GID,
		Mode: rec.Mode, Modtime: rec.Modtime, Type: rec.Type,
		Etag: rec.Etag, FileID: rec.FileID,
	}

	_, err := j.db.NamedExec(`INSERT OR REPLACE INTO file_record
		(path, inode, uid, gid, mode, modtime, type, etag, file_id)
		VALUES (:path, :inode, :uid, :gid, :mode, :modtime, :type, :etag, :file_id)`, row)
	if err != nil {
		return fmt.Errorf("set file record %q: %w", rec.Path, err)
	}
	slog.Debug("journal: file record set", "path", rec.Path, "etag", rec.Etag)
	return nil
}

// DeleteFileRecord deletes the record at path. When path is a directory,
// every descendant's record is deleted with it: a removed directory's
// descendants are never individually walked, so this is the only chance
// to clear their journal rows.
func (j *SqliteJournal) DeleteFileRecord(path string, isDirectory bool) error {
	if !isDirectory {
		if _, err := j.db.Exec(`DELETE FROM file_record WHERE path = ?`, path); err != nil {
			return fmt.Errorf("delete file record %q: %w", path, err)
		}
		return nil
	}

	if _, err := j.db.Exec(`DELETE FROM file_record WHERE path = ? OR path LIKE ? || '/%'`, path, path); err != nil {
		return fmt.Errorf("delete file record tree %q: %w", path, err)
	}
	return nil
}

func (j *SqliteJournal) GetFileRecord(path string) (*FileRecord, bool, error) {
	var row fileRecordRow
	err := j.db.Get(&row, `SELECT path, inode, uid, gid, mode, modtime, type, etag, file_id
		FROM file_record WHERE path = ?`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get file record %q: %w", path, err)
	}

	return &FileRecord{
		Path: row.Path, Inode: row.Inode, UID: row.UID, GID: row.GID,
		Mode: row.Mode, Modtime: row.Modtime, Type: row.Type,
		Etag: row.Etag, FileID: row.FileID,
	}, true, nil
}

type uploadResumeRow struct {
	Path       string `db:"path"`
	Valid      bool   `db:"valid"`
	Chunk      int    `db:"chunk"`
	TransferID string `db:"transfer_id"`
	Modtime    int64  `db:"modtime"`
}

func (j *SqliteJournal) GetUploadInfo(path string) (*UploadResume, error) {
	var row uploadResumeRow
	err := j.db.Get(&row, `SELECT path, valid, chunk, transfer_id, modtime
		FROM upload_resume WHERE path = ?`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &UploadResume{}, nil
		}
		return nil, fmt.Errorf("get upload resume %q: %w", path, err)
	}
	return &UploadResume{Valid: row.Valid, Chunk: row.Chunk, TransferID: row.TransferID, Modtime: row.Modtime}, nil
}

func (j *SqliteJournal) SetUploadInfo(path string, info *UploadResume) error {
	if info == nil || !info.Valid {
		_, err := j.db.Exec(`DELETE FROM upload_resume WHERE path = ?`, path)
		if err != nil {
			return fmt.Errorf("clear upload resume %q: %w", path, err)
		}
		return nil
	}

	row := uploadResumeRow{Path: path, Valid: info.Valid, Chunk: info.Chunk, TransferID: info.TransferID, Modtime: info.Modtime}
	_, err := j.db.NamedExec(`INSERT OR REPLACE INTO upload_resume
		(path, valid, chunk, transfer_id, modtime)
		VALUES (:path, :valid, :chunk, :transfer_id, :modtime)`, row)
	if err != nil {
		return fmt.Errorf("set upload resume %q: %w", path, err)
	}
	return nil
}

type downloadResumeRow struct {
	Path    string `db:"path"`
	Valid   bool   `db:"valid"`
	Etag    string `db:"etag"`
	TmpFile string `db:"tmpfile"`
}

func (j *SqliteJournal) GetDownloadInfo(path string) (*DownloadResume, error) {
	var row downloadResumeRow
	err := j.db.Get(&row, `SELECT path, valid, etag, tmpfile FROM download_resume WHERE path = ?`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &DownloadResume{}, nil
		}
		return nil, fmt.Errorf("get download resume %q: %w", path, err)
	}
	return &DownloadResume{Valid: row.Valid, Etag: row.Etag, TmpFile: row.TmpFile}, nil
}

func (j *SqliteJournal) SetDownloadInfo(path string, info *DownloadResume) error {
	if info == nil || !info.Valid {
		_, err := j.db.Exec(`DELETE FROM download_resume WHERE path = ?`, path)
		if err != nil {
			return fmt.Errorf("clear download resume %q: %w", path, err)
		}
		return nil
	}

	row := downloadResumeRow{Path: path, Valid: info.Valid, Etag: info.Etag, TmpFile: info.TmpFile}
	_, err := j.db.NamedExec(`INSERT OR REPLACE INTO download_resume
		(path, valid, etag, tmpfile) VALUES (:path, :valid, :etag, :tmpfile)`, row)
	if err != nil {
		return fmt.Errorf("set download resume %q: %w", path, err)
	}
	return nil
}

var _ Journal = (*SqliteJournal)(nil)
