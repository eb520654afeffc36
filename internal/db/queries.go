package db

const (
	insertJob = `
		INSERT INTO print_jobs (kind, message, image, submitter_ip, friend_name, is_priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	jobColumns = `id, kind, message, image, submitter_ip, friend_name, is_priority, status, error_message, created_at, printed_at`

	getJobByID = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE id = ?
	`

	// Delivery order: priority class first, then arrival order. The id
	// tiebreaker keeps ordering stable when two jobs share a timestamp.
	nextQueued = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE status = 'queued'
		ORDER BY is_priority DESC, created_at ASC, id ASC
		LIMIT 1
	`

	listQueued = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE status = 'queued'
		ORDER BY is_priority DESC, created_at ASC, id ASC
	`

	listJobsByStatus = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	listJobs = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	countActive = `
		SELECT COUNT(*) FROM print_jobs WHERE status IN ('queued', 'printing')
	`

	countQueuedAhead = `
		SELECT COUNT(*) FROM print_jobs
		WHERE status = 'queued'
		  AND (is_priority > ?
		       OR (is_priority = ? AND created_at < ?)
		       OR (is_priority = ? AND created_at = ? AND id < ?))
	`

	lastJobFromIP = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE submitter_ip = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	markPrinting = `
		UPDATE print_jobs SET status = 'printing'
		WHERE id = ? AND status = 'queued'
	`

	markPrinted = `
		UPDATE print_jobs SET status = 'printed', printed_at = ?
		WHERE id = ? AND status = 'printing'
	`

	markFailed = `
		UPDATE print_jobs SET status = 'failed', printed_at = ?, error_message = ?
		WHERE id = ? AND status IN ('queued', 'printing')
	`

	countByStatus = `
		SELECT status, COUNT(*) FROM print_jobs GROUP BY status
	`
)

const (
	getSetting = `
		SELECT key, value, updated_at FROM settings WHERE key = ?
	`

	upsertSetting = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
)
