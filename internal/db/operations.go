package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrStaleTransition means a status update matched no row because the job
	// was no longer in the expected state. Callers treat this as a protocol
	// anomaly, not a fatal error.
	ErrStaleTransition = errors.New("job not in expected status")
)

// JobStore is the durable record of every print job. All status transitions
// go through compare-and-swap updates guarded on the current status, so two
// racing writers can never both move the same job.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(database *sql.DB) *JobStore {
	return &JobStore{db: database}
}

func (s *JobStore) CreateJob(ctx context.Context, job *PrintJob) error {
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, insertJob,
		job.Kind, nullable(job.Message), nullable(job.Image),
		job.SubmitterIP, nullable(job.FriendName), job.IsPriority,
		job.Status, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	job.ID = id

	return nil
}

func (s *JobStore) GetJob(ctx context.Context, id int64) (*PrintJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, getJobByID, id))
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// NextQueued returns the queued job at the head of the delivery order, or
// nil when the queue is empty.
func (s *JobStore) NextQueued(ctx context.Context) (*PrintJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, nextQueued))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query next queued job: %w", err)
	}
	return job, nil
}

func (s *JobStore) ListQueued(ctx context.Context) ([]*PrintJob, error) {
	rows, err := s.db.QueryContext(ctx, listQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) ListJobs(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = s.db.QueryContext(ctx, listJobsByStatus, filter.Status, limit, filter.Offset)
	} else {
		rows, err = s.db.QueryContext(ctx, listJobs, limit, filter.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// CountActive counts jobs occupying queue capacity (queued or printing).
func (s *JobStore) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, countActive).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// QueuePosition returns how many queued jobs sort strictly ahead of the
// given job in delivery order. Position 0 means next up.
func (s *JobStore) QueuePosition(ctx context.Context, job *PrintJob) (int, error) {
	created := job.CreatedAt.UTC()
	var position int
	err := s.db.QueryRowContext(ctx, countQueuedAhead,
		job.IsPriority,
		job.IsPriority, created,
		job.IsPriority, created, job.ID,
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("failed to compute queue position: %w", err)
	}
	return position, nil
}

// LastJobFrom returns the most recent job submitted from the given IP, or
// nil when the IP has never submitted.
func (s *JobStore) LastJobFrom(ctx context.Context, ip string) (*PrintJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, lastJobFromIP, ip))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last job from %s: %w", ip, err)
	}
	return job, nil
}

// MarkPrinting flips a job queued -> printing. Returns ErrStaleTransition
// when the job was no longer queued (e.g. claimed by a racing writer).
func (s *JobStore) MarkPrinting(ctx context.Context, id int64) error {
	return s.transition(ctx, markPrinting, id)
}

// MarkPrinted flips a job printing -> printed and stamps printed_at.
func (s *JobStore) MarkPrinted(ctx context.Context, id int64, at time.Time) error {
	return s.transition(ctx, markPrinted, at.UTC(), id)
}

// MarkFailed terminates a job with an error detail. Accepted from queued or
// printing so a send failure can fail a job it never managed to transmit.
func (s *JobStore) MarkFailed(ctx context.Context, id int64, at time.Time, detail string) error {
	return s.transition(ctx, markFailed, at.UTC(), detail, id)
}

func (s *JobStore) transition(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (s *JobStore) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}

	rows, err := s.db.QueryContext(ctx, countByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job stats: %w", err)
		}
		stats.Total += count
		switch JobStatus(status) {
		case StatusQueued:
			stats.Queued = count
		case StatusPrinting:
			stats.Printing = count
		case StatusPrinted:
			stats.Printed = count
		case StatusFailed:
			stats.Failed = count
		}
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	job := &PrintJob{}
	var message, image, friendName sql.NullString
	var printedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Kind, &message, &image,
		&job.SubmitterIP, &friendName, &job.IsPriority,
		&job.Status, &job.ErrorMessage, &job.CreatedAt, &printedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Message = message.String
	job.Image = image.String
	job.FriendName = friendName.String
	if printedAt.Valid {
		job.PrintedAt = &printedAt.Time
	}

	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*PrintJob, error) {
	var jobs []*PrintJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SettingsStore holds small key/value rows (admin password hash, JWT
// secret) used by the operator API.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(database *sql.DB) *SettingsStore {
	return &SettingsStore{db: database}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (*Setting, error) {
	setting := &Setting{}
	err := s.db.QueryRowContext(ctx, getSetting, key).Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return setting, nil
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertSetting, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}
