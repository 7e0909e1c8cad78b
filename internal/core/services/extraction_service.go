package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/utils/receiptparse"
	"github.com/google/uuid"
)

const (
	defaultSweepWindowHours = 24
	defaultSweepBatchSize   = 10
)

// extractionService sequences receipt-extraction attempts. The job row's
// status acts as the per-expense mutex: claiming flips it to PROCESSING with
// a conditional update, so two workers can never run the same expense at
// once. Extraction failures are recorded on the job and absorbed; only
// bookkeeping failures propagate.
type extractionService struct {
	BaseService
	jobRepo     portsrepo.ExtractionJobRepositoryFacade
	expenseRepo portsrepo.ExpenseRepositoryFacade
	auditRepo   portsrepo.AuditRepositoryFacade
	provider    clients.ExtractionProvider
	maxAttempts int
}

// NewExtractionService creates the extraction queue service.
func NewExtractionService(
	jobRepo portsrepo.ExtractionJobRepositoryFacade,
	expenseRepo portsrepo.ExpenseRepositoryFacade,
	auditRepo portsrepo.AuditRepositoryFacade,
	provider clients.ExtractionProvider,
	maxAttempts int,
) portssvc.ExtractionQueueSvc {
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxExtractionAttempts
	}
	return &extractionService{
		jobRepo:     jobRepo,
		expenseRepo: expenseRepo,
		auditRepo:   auditRepo,
		provider:    provider,
		maxAttempts: maxAttempts,
	}
}

// EnqueueExtraction creates the extraction job for an expense. A second call
// replaces the previous job, resets its attempt counter and puts the
// expense's OCR state back to PENDING: a new receipt supersedes the old one
// entirely.
func (s *extractionService) EnqueueExtraction(ctx context.Context, expenseID string, receiptLocation string) error {
	if receiptLocation == "" {
		return fmt.Errorf("%w: receipt location is required", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	job := domain.ExtractionJob{
		JobID:           uuid.NewString(),
		ExpenseID:       expenseID,
		ReceiptLocation: receiptLocation,
		Status:          domain.JobPending,
		Attempts:        0,
		MaxAttempts:     s.maxAttempts,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     domain.SystemActorID,
			LastUpdatedAt: now,
			LastUpdatedBy: domain.SystemActorID,
		},
	}

	if err := s.jobRepo.UpsertJob(ctx, job); err != nil {
		s.LogError(ctx, err, "Failed to upsert extraction job", slog.String("expense_id", expenseID))
		return fmt.Errorf("failed to enqueue extraction for expense %s: %w", expenseID, err)
	}
	if err := s.expenseRepo.UpdateExpenseOCR(ctx, expenseID, domain.OCRPending, nil, now); err != nil {
		s.LogError(ctx, err, "Failed to reset OCR state on expense", slog.String("expense_id", expenseID))
		return fmt.Errorf("failed to reset OCR state of expense %s: %w", expenseID, err)
	}

	s.LogDebug(ctx, "Extraction job enqueued", slog.String("expense_id", expenseID))
	return nil
}

// ProcessExpense claims the expense's job and runs one extraction attempt.
// While another attempt is in flight the claim fails with ErrDuplicate and
// nothing runs. The returned error is non-nil only when claiming or
// recording fails, never because extraction itself did.
func (s *extractionService) ProcessExpense(ctx context.Context, expenseID string) error {
	job, err := s.jobRepo.ClaimJob(ctx, expenseID, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrDuplicate) {
			s.LogError(ctx, err, "Failed to claim extraction job", slog.String("expense_id", expenseID))
		}
		return fmt.Errorf("failed to claim extraction job for expense %s: %w", expenseID, err)
	}
	attempt := job.Attempts + 1

	if err := s.expenseRepo.UpdateExpenseOCR(ctx, expenseID, domain.OCRProcessing, nil, time.Now().UTC()); err != nil {
		s.LogError(ctx, err, "Failed to mark expense OCR processing", slog.String("expense_id", expenseID))
		return s.recordFailure(ctx, *job, attempt, fmt.Errorf("mark expense processing: %w", err))
	}

	result, err := s.provider.DetectText(ctx, job.ReceiptLocation)
	if err != nil {
		return s.recordFailure(ctx, *job, attempt, err)
	}

	parsed := receiptparse.Parse(result.FullText, result.KeyValuePairs)
	ocrData := &domain.OCRData{
		FullText:      result.FullText,
		KeyValuePairs: result.KeyValuePairs,
		Confidence:    result.Confidence,
		Source:        result.Source,
		Parsed:        parsed,
	}

	// Completing the job is the commit point. The repository refuses it when
	// the receipt was replaced mid-attempt (the job row now carries a new job
	// ID), in which case this attempt's result belongs to the old receipt and
	// is dropped without touching the expense.
	completedAt := time.Now().UTC()
	if err := s.jobRepo.CompleteJob(ctx, job.JobID, completedAt); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.LogInfo(ctx, "Extraction attempt superseded by a newer receipt, dropping result",
				slog.String("expense_id", expenseID),
				slog.String("job_id", job.JobID))
			return nil
		}
		s.LogError(ctx, err, "Failed to complete extraction job", slog.String("job_id", job.JobID))
		return fmt.Errorf("failed to complete extraction job for expense %s: %w", expenseID, err)
	}
	if err := s.expenseRepo.UpdateExpenseOCR(ctx, expenseID, domain.OCRCompleted, ocrData, completedAt); err != nil {
		s.LogError(ctx, err, "Failed to store extraction result on expense", slog.String("expense_id", expenseID))
		return fmt.Errorf("failed to store extraction result on expense %s: %w", expenseID, err)
	}

	entry := domain.AuditEntry{
		AuditID:   uuid.NewString(),
		ExpenseID: expenseID,
		ActorID:   domain.SystemActorID,
		Action:    domain.ActionExtractionCompleted,
		Metadata: map[string]any{
			"confidence": result.Confidence,
			"source":     result.Source,
			"attempt":    attempt,
		},
		CreatedAt: completedAt,
	}
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		s.LogError(ctx, err, "Failed to save extraction audit entry", slog.String("expense_id", expenseID))
		return fmt.Errorf("failed to save extraction audit entry for expense %s: %w", expenseID, err)
	}

	s.LogInfo(ctx, "Receipt extraction completed",
		slog.String("expense_id", expenseID),
		slog.Float64("confidence", result.Confidence),
		slog.Int("attempt", attempt))
	return nil
}

// RetryFailedExtractions sweeps failed jobs with attempts left, oldest first,
// and reruns them sequentially. Jobs claimed elsewhere in the meantime are
// skipped. It returns how many attempts actually ran.
func (s *extractionService) RetryFailedExtractions(ctx context.Context, windowHours int, batchSize int) (int, error) {
	if windowHours <= 0 {
		windowHours = defaultSweepWindowHours
	}
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	cutoff := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	jobs, err := s.jobRepo.ListRetryableJobs(ctx, cutoff, batchSize)
	if err != nil {
		s.LogError(ctx, err, "Failed to list retryable extraction jobs")
		return 0, fmt.Errorf("failed to list retryable extraction jobs: %w", err)
	}
	if len(jobs) == 0 {
		s.LogDebug(ctx, "No extraction jobs to retry")
		return 0, nil
	}

	attempted := 0
	for _, job := range jobs {
		err := s.ProcessExpense(ctx, job.ExpenseID)
		if err != nil && (errors.Is(err, apperrors.ErrDuplicate) || errors.Is(err, apperrors.ErrNotFound)) {
			// Claimed by a concurrent worker, or the expense vanished
			// between listing and claiming. Nothing ran.
			continue
		}
		// Recording failures are already logged inside ProcessExpense; the
		// sweep keeps going regardless.
		attempted++
	}

	s.LogInfo(ctx, "Extraction retry sweep finished",
		slog.Int("eligible", len(jobs)),
		slog.Int("attempted", attempted))
	return attempted, nil
}

// recordFailure books one failed attempt: job FAILED with the error message
// and a bumped attempt counter, expense OCR status FAILED, and a failure
// audit entry. A superseded attempt (the job row moved on to a new job ID)
// books nothing. The extraction error itself is absorbed here; the returned
// error is non-nil only when the bookkeeping fails.
func (s *extractionService) recordFailure(ctx context.Context, job domain.ExtractionJob, attempt int, cause error) error {
	logger := s.GetLogger(ctx)
	failedAt := time.Now().UTC()

	logger.Warn("Receipt extraction attempt failed",
		slog.String("expense_id", job.ExpenseID),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("error", cause.Error()))

	if err := s.jobRepo.FailJob(ctx, job.JobID, cause.Error(), failedAt); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The receipt was replaced while this attempt ran; the fresh job
			// owns the expense now and this attempt's failure is moot.
			logger.Info("Failed extraction attempt superseded by a newer receipt",
				slog.String("expense_id", job.ExpenseID),
				slog.String("job_id", job.JobID))
			return nil
		}
		s.LogError(ctx, err, "Failed to record extraction failure on job", slog.String("job_id", job.JobID))
		return fmt.Errorf("failed to record extraction failure for expense %s: %w", job.ExpenseID, err)
	}
	if err := s.expenseRepo.UpdateExpenseOCR(ctx, job.ExpenseID, domain.OCRFailed, nil, failedAt); err != nil {
		s.LogError(ctx, err, "Failed to mark expense OCR failed", slog.String("expense_id", job.ExpenseID))
		return fmt.Errorf("failed to mark OCR failed on expense %s: %w", job.ExpenseID, err)
	}

	entry := domain.AuditEntry{
		AuditID:   uuid.NewString(),
		ExpenseID: job.ExpenseID,
		ActorID:   domain.SystemActorID,
		Action:    domain.ActionExtractionFailed,
		Metadata: map[string]any{
			"error":        cause.Error(),
			"attempt":      attempt,
			"max_attempts": job.MaxAttempts,
		},
		CreatedAt: failedAt,
	}
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		s.LogError(ctx, err, "Failed to save extraction failure audit entry", slog.String("expense_id", job.ExpenseID))
		return fmt.Errorf("failed to save extraction failure audit entry for expense %s: %w", job.ExpenseID, err)
	}

	return nil
}
