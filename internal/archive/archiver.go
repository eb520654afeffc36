package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Archiver moves terminal jobs (printed or failed) older than the retention
// window out of the live database into per-month archive databases. Queued
// and printing jobs are never touched.
type Archiver struct {
	db         *sql.DB
	path       string
	retainDays int
	logger     *slog.Logger
	stopCh     chan struct{}
	mu         sync.Mutex
}

type Config struct {
	Path       string
	RetainDays int
}

type ArchiveFile struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Month     string    `json:"month"`
}

func NewArchiver(database *sql.DB, cfg Config, logger *slog.Logger) (*Archiver, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/archives"
	}
	if cfg.RetainDays <= 0 {
		cfg.RetainDays = 30
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		db:         database,
		path:       cfg.Path,
		retainDays: cfg.RetainDays,
		logger:     logger.With("component", "archive"),
		stopCh:     make(chan struct{}),
	}, nil
}

// Start runs the daily archive sweep in the background.
func (a *Archiver) Start() {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				if err := a.RunArchive(context.Background()); err != nil {
					a.logger.Error("archive sweep failed", "error", err)
				}
			}
		}
	}()
}

func (a *Archiver) Stop() {
	close(a.stopCh)
}

// RunArchive performs one sweep: copy eligible jobs into the current month's
// archive database, then delete them from the live table.
func (a *Archiver) RunArchive(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -a.retainDays)

	jobs, err := a.jobsForArchival(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to select jobs for archival: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	archivePath := filepath.Join(a.path, fmt.Sprintf("archive_%s.db", time.Now().Format("2006_01")))
	archiveDB, err := a.openArchiveDB(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	defer archiveDB.Close()

	tx, err := archiveDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	for _, job := range jobs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO print_jobs (id, kind, message, image, submitter_ip, friend_name, is_priority, status, error_message, created_at, printed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.id, job.kind, job.message, job.image, job.submitterIP,
			job.friendName, job.isPriority, job.status, job.errorMessage,
			job.createdAt, job.printedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to copy job %d: %w", job.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	if err := a.deleteArchived(ctx, jobs); err != nil {
		return fmt.Errorf("failed to delete archived jobs: %w", err)
	}

	a.logger.Info("archived jobs", "count", len(jobs), "file", filepath.Base(archivePath))
	return nil
}

type archivedJob struct {
	id           int64
	kind         string
	message      sql.NullString
	image        sql.NullString
	submitterIP  string
	friendName   sql.NullString
	isPriority   bool
	status       string
	errorMessage string
	createdAt    time.Time
	printedAt    sql.NullTime
}

func (a *Archiver) jobsForArchival(ctx context.Context, cutoff time.Time) ([]*archivedJob, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, kind, message, image, submitter_ip, friend_name, is_priority, status, error_message, created_at, printed_at
		FROM print_jobs
		WHERE status IN ('printed', 'failed') AND created_at < ?
		ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*archivedJob
	for rows.Next() {
		job := &archivedJob{}
		if err := rows.Scan(
			&job.id, &job.kind, &job.message, &job.image, &job.submitterIP,
			&job.friendName, &job.isPriority, &job.status, &job.errorMessage,
			&job.createdAt, &job.printedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (a *Archiver) openArchiveDB(path string) (*sql.DB, error) {
	archiveDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = archiveDB.Exec(`
		CREATE TABLE IF NOT EXISTS print_jobs (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			message TEXT,
			image TEXT,
			submitter_ip TEXT NOT NULL,
			friend_name TEXT,
			is_priority INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			printed_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_archive_jobs_created_at ON print_jobs(created_at);`)
	if err != nil {
		archiveDB.Close()
		return nil, err
	}
	return archiveDB, nil
}

func (a *Archiver) deleteArchived(ctx context.Context, jobs []*archivedJob) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM print_jobs WHERE id = ?", job.id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListArchives returns the archive files on disk, newest month last.
func (a *Archiver) ListArchives() ([]*ArchiveFile, error) {
	entries, err := os.ReadDir(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var archives []*ArchiveFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "archive_") || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, &ArchiveFile{
			Filename:  name,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Month:     strings.TrimSuffix(strings.TrimPrefix(name, "archive_"), ".db"),
		})
	}
	return archives, nil
}
