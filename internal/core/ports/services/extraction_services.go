package services

import "context"

// ExtractionQueueSvc sequences receipt-extraction attempts. At most one
// attempt runs per expense at a time; failures are recorded on the job and
// never propagated past this boundary.
type ExtractionQueueSvc interface {
	// EnqueueExtraction creates the extraction job for an expense, replacing
	// any previous job and resetting its attempt counter.
	EnqueueExtraction(ctx context.Context, expenseID string, receiptLocation string) error

	// ProcessExpense claims the expense's job and runs one extraction attempt
	// against the job's current receipt location. Extraction failures are
	// recorded, not returned; the error is non-nil only when bookkeeping
	// itself fails.
	ProcessExpense(ctx context.Context, expenseID string) error

	// RetryFailedExtractions sweeps failed jobs with attempts left that were
	// created within the window, oldest first, running at most batchSize
	// attempts sequentially. It returns how many attempts ran. Scheduling is
	// the caller's job; the queue never schedules itself.
	RetryFailedExtractions(ctx context.Context, windowHours int, batchSize int) (int, error)
}
