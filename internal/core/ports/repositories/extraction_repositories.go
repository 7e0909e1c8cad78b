package repositories

import (
	"context"
	"time"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// ExtractionJobReader defines read operations for extraction job data
type ExtractionJobReader interface {
	// FindJobByExpenseID retrieves the extraction job for an expense, if any.
	FindJobByExpenseID(ctx context.Context, expenseID string) (*domain.ExtractionJob, error)

	// ListRetryableJobs retrieves failed jobs that still have attempts left
	// and were created after the cutoff, oldest first, up to limit. Jobs
	// currently processing are not returned.
	ListRetryableJobs(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExtractionJob, error)
}

// ExtractionJobWriter defines write operations for extraction job data
type ExtractionJobWriter interface {
	// UpsertJob creates the job for an expense or replaces the existing one.
	// A replaced job starts over: pending status, zero attempts, new receipt
	// location, new job ID. Replacement orphans any attempt still running
	// against the old job ID.
	UpsertJob(ctx context.Context, job domain.ExtractionJob) error

	// ClaimJob atomically moves the expense's job from pending or failed to
	// processing. It is the per-expense mutex: the conditional update succeeds
	// for exactly one caller, everyone else gets apperrors.ErrDuplicate while
	// another attempt is in flight. Exhausted jobs are never claimed.
	ClaimJob(ctx context.Context, expenseID string, now time.Time) (*domain.ExtractionJob, error)

	// CompleteJob marks a claimed job completed. It returns
	// apperrors.ErrNotFound when the job ID no longer names the processing
	// job, meaning the attempt was superseded and its result is stale.
	CompleteJob(ctx context.Context, jobID string, processedAt time.Time) error

	// FailJob marks a claimed job failed, increments its attempt counter and
	// records the error message. Like CompleteJob it refuses superseded
	// attempts with apperrors.ErrNotFound.
	FailJob(ctx context.Context, jobID string, lastError string, processedAt time.Time) error
}

// ExtractionJobRepositoryFacade combines all extraction-job repository interfaces
type ExtractionJobRepositoryFacade interface {
	ExtractionJobReader
	ExtractionJobWriter
}
