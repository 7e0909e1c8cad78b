package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	"github.com/expensio/expensio_backend/internal/models"
	"github.com/expensio/expensio_backend/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const extractionJobColumns = `
	job_id, expense_id, receipt_location, status, attempts, max_attempts,
	last_error, processed_at, created_at, created_by, last_updated_at, last_updated_by`

type PgxExtractionJobRepository struct {
	BaseRepository
}

// newPgxExtractionJobRepository creates a new repository for extraction job data.
func newPgxExtractionJobRepository(pool *pgxpool.Pool) portsrepo.ExtractionJobRepositoryFacade {
	return &PgxExtractionJobRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

// Ensure PgxExtractionJobRepository implements portsrepo.ExtractionJobRepositoryFacade
var _ portsrepo.ExtractionJobRepositoryFacade = (*PgxExtractionJobRepository)(nil)

func scanExtractionJobRow(row rowScanner) (models.ExtractionJob, error) {
	var m models.ExtractionJob
	err := row.Scan(
		&m.JobID,
		&m.ExpenseID,
		&m.ReceiptLocation,
		&m.Status,
		&m.Attempts,
		&m.MaxAttempts,
		&m.LastError,
		&m.ProcessedAt,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
	)
	return m, err
}

// FindJobByExpenseID retrieves the extraction job for an expense. Each expense
// has at most one job row.
func (r *PgxExtractionJobRepository) FindJobByExpenseID(ctx context.Context, expenseID string) (*domain.ExtractionJob, error) {
	query := `SELECT ` + extractionJobColumns + ` FROM extraction_jobs WHERE expense_id = $1;`

	m, err := scanExtractionJobRow(r.Pool.QueryRow(ctx, query, expenseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find extraction job for expense "+expenseID, err)
	}

	domainJob := mapping.ToDomainExtractionJob(m)
	return &domainJob, nil
}

// ListRetryableJobs retrieves failed jobs created after the cutoff that still
// have attempts left, oldest first. Jobs currently processing are excluded so
// the sweeper never doubles up on an in-flight extraction.
func (r *PgxExtractionJobRepository) ListRetryableJobs(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExtractionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + extractionJobColumns + `
		FROM extraction_jobs
		WHERE status = $1 AND attempts < max_attempts AND created_at >= $2
		ORDER BY created_at ASC
		LIMIT $3;
	`
	rows, err := r.Pool.Query(ctx, query, string(domain.JobFailed), cutoff, limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query retryable extraction jobs", err)
	}
	defer rows.Close()

	jobs := []models.ExtractionJob{}
	for rows.Next() {
		m, scanErr := scanExtractionJobRow(rows)
		if scanErr != nil {
			return nil, apperrors.NewAppError(500, "failed to scan extraction job row", scanErr)
		}
		jobs = append(jobs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating extraction job rows", err)
	}

	return mapping.ToDomainExtractionJobSlice(jobs), nil
}

// UpsertJob enqueues an extraction job for an expense. Re-enqueueing an
// existing job resets it to pending with a fresh attempt budget and a new
// job ID, so replacing a receipt restarts extraction from scratch and any
// attempt still running against the old job ID can no longer complete or
// fail the row.
func (r *PgxExtractionJobRepository) UpsertJob(ctx context.Context, job domain.ExtractionJob) error {
	m := mapping.ToModelExtractionJob(job)
	query := `
		INSERT INTO extraction_jobs (
			job_id, expense_id, receipt_location, status, attempts, max_attempts,
			last_error, processed_at, created_at, created_by, last_updated_at, last_updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (expense_id) DO UPDATE
		SET job_id = EXCLUDED.job_id,
		    receipt_location = EXCLUDED.receipt_location,
		    status = EXCLUDED.status,
		    attempts = EXCLUDED.attempts,
		    max_attempts = EXCLUDED.max_attempts,
		    last_error = NULL,
		    processed_at = NULL,
		    last_updated_at = EXCLUDED.last_updated_at,
		    last_updated_by = EXCLUDED.last_updated_by;
	`
	_, err := r.Pool.Exec(ctx, query,
		m.JobID, m.ExpenseID, m.ReceiptLocation, m.Status, m.Attempts, m.MaxAttempts,
		m.LastError, m.ProcessedAt, m.CreatedAt, m.CreatedBy, m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to upsert extraction job for expense "+m.ExpenseID, err)
	}
	return nil
}

// ClaimJob atomically moves the expense's job from pending or failed to
// processing and returns the claimed job. A job already processing yields
// ErrDuplicate; a missing or exhausted job yields ErrNotFound. The conditional
// UPDATE is what keeps two workers from extracting the same receipt at once.
func (r *PgxExtractionJobRepository) ClaimJob(ctx context.Context, expenseID string, now time.Time) (*domain.ExtractionJob, error) {
	query := `
		UPDATE extraction_jobs
		SET status = $2, last_updated_at = $3, last_updated_by = $4
		WHERE expense_id = $1
		  AND status IN ($5, $6)
		  AND attempts < max_attempts
		RETURNING ` + extractionJobColumns + `;
	`
	m, err := scanExtractionJobRow(r.Pool.QueryRow(ctx, query,
		expenseID, string(domain.JobProcessing), now, domain.SystemActorID,
		string(domain.JobPending), string(domain.JobFailed),
	))
	if err == nil {
		domainJob := mapping.ToDomainExtractionJob(m)
		return &domainJob, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewAppError(500, "failed to claim extraction job for expense "+expenseID, err)
	}

	// Nothing claimable. Read the row to tell the caller why.
	var status string
	readErr := r.Pool.QueryRow(ctx, `SELECT status FROM extraction_jobs WHERE expense_id = $1;`, expenseID).Scan(&status)
	if readErr != nil {
		if errors.Is(readErr, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to read extraction job status for expense "+expenseID, readErr)
	}
	if status == string(domain.JobProcessing) {
		return nil, fmt.Errorf("%w: extraction already in progress for expense %s", apperrors.ErrDuplicate, expenseID)
	}
	// Completed, or failed with no attempts left.
	return nil, apperrors.ErrNotFound
}

// CompleteJob marks a processing job as completed. The update is conditioned
// on the job still being the processing one; ErrNotFound means the attempt
// was superseded (the receipt was replaced mid-flight) and its result must
// be dropped.
func (r *PgxExtractionJobRepository) CompleteJob(ctx context.Context, jobID string, processedAt time.Time) error {
	query := `
		UPDATE extraction_jobs
		SET status = $2, last_error = NULL, processed_at = $3, last_updated_at = $3, last_updated_by = $4
		WHERE job_id = $1 AND status = $5;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, jobID, string(domain.JobCompleted), processedAt, domain.SystemActorID, string(domain.JobProcessing))
	if err != nil {
		return apperrors.NewAppError(500, "failed to complete extraction job "+jobID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// FailJob marks a processing job as failed, recording the error and consuming
// one attempt. Like CompleteJob it only touches the row while the job ID is
// still the processing one; ErrNotFound means the attempt was superseded.
func (r *PgxExtractionJobRepository) FailJob(ctx context.Context, jobID string, lastError string, processedAt time.Time) error {
	query := `
		UPDATE extraction_jobs
		SET status = $2, attempts = attempts + 1, last_error = $3,
		    processed_at = $4, last_updated_at = $4, last_updated_by = $5
		WHERE job_id = $1 AND status = $6;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, jobID, string(domain.JobFailed), lastError, processedAt, domain.SystemActorID, string(domain.JobProcessing))
	if err != nil {
		return apperrors.NewAppError(500, "failed to record extraction failure for job "+jobID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
