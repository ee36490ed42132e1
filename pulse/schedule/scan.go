package schedule

import (
	"database/sql"
	"encoding/json"

	"github.com/teranos/crosspost/errors"
)

// jobScanArgs holds the nullable and encoded columns of a job row.
type jobScanArgs struct {
	Platforms    string
	ErrorMessage sql.NullString
	PublishedAt  sql.NullTime
}

// jobColumns is the column list every job SELECT uses, in scan order.
const jobColumns = `id, draft_id, user_id, platforms, scheduled_at, status,
		retry_count, error_message, published_at, created_at, updated_at`

func jobScanTargets(job *Job, args *jobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.DraftID,
		&job.UserID,
		&args.Platforms,
		&job.ScheduledAt,
		&job.Status,
		&job.RetryCount,
		&args.ErrorMessage,
		&args.PublishedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	}
}

func processJobScanArgs(job *Job, args *jobScanArgs) error {
	if err := json.Unmarshal([]byte(args.Platforms), &job.Platforms); err != nil {
		return errors.Wrapf(err, "failed to decode platforms for job %s", job.ID)
	}
	if args.ErrorMessage.Valid {
		job.ErrorMessage = args.ErrorMessage.String
	}
	if args.PublishedAt.Valid {
		t := args.PublishedAt.Time.UTC()
		job.PublishedAt = &t
	}
	job.ScheduledAt = job.ScheduledAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var args jobScanArgs
	if err := row.Scan(jobScanTargets(&job, &args)...); err != nil {
		return nil, err
	}
	if err := processJobScanArgs(&job, &args); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
