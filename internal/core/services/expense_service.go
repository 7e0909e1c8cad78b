package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/dto"
	"github.com/expensio/expensio_backend/internal/middleware"
	"github.com/expensio/expensio_backend/internal/platform/tasks"
	"github.com/expensio/expensio_backend/internal/utils"
	"github.com/google/uuid"
)

// Expense service errors
var (
	ErrAmountNotPositive  = fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrValidation)
	ErrTitleMissing       = fmt.Errorf("%w: title must not be empty", apperrors.ErrValidation)
	ErrReasonRequired     = fmt.Errorf("%w: a rejection reason is required", apperrors.ErrValidation)
	ErrMessageRequired    = fmt.Errorf("%w: a change-request message is required", apperrors.ErrValidation)
	ErrExpenseNotEditable = fmt.Errorf("%w: expense is no longer a draft", apperrors.ErrValidation)
	ErrReceiptEmpty       = fmt.Errorf("%w: receipt file is empty", apperrors.ErrValidation)
	ErrNoEligibleApprover = errors.New("no eligible approver available")
)

const (
	defaultExpensePageSize = 20
	maxExpensePageSize     = 100
)

// expenseService owns expense CRUD and the lifecycle state machine. Every
// transition is a storage-level compare-and-swap committed together with its
// audit entry; events and category feedback fire through the task runner
// only after that commit.
type expenseService struct {
	expenseRepo portsrepo.ExpenseRepositoryWithTx
	auditRepo   portsrepo.AuditRepositoryFacade
	userRepo    portsrepo.UserRepositoryFacade
	blobs       clients.BlobStore
	notifier    clients.Notifier
	extraction  portssvc.ExtractionQueueSvc
	categorizer portssvc.CategorizerSvc
	runner      *tasks.Runner
}

// NewExpenseService creates the expense service.
func NewExpenseService(
	expenseRepo portsrepo.ExpenseRepositoryWithTx,
	auditRepo portsrepo.AuditRepositoryFacade,
	userRepo portsrepo.UserRepositoryFacade,
	blobs clients.BlobStore,
	notifier clients.Notifier,
	extraction portssvc.ExtractionQueueSvc,
	categorizer portssvc.CategorizerSvc,
	runner *tasks.Runner,
) portssvc.ExpenseSvcFacade {
	return &expenseService{
		expenseRepo: expenseRepo,
		auditRepo:   auditRepo,
		userRepo:    userRepo,
		blobs:       blobs,
		notifier:    notifier,
		extraction:  extraction,
		categorizer: categorizer,
		runner:      runner,
	}
}

// CreateExpense persists a new draft expense and, when receipt bytes are
// attached, stores them and enqueues extraction. Categorization is triggered
// fire-and-forget once the expense is committed.
func (s *expenseService) CreateExpense(ctx context.Context, req dto.CreateExpenseRequest, creatorUserID string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if !req.Amount.IsPositive() {
		return nil, ErrAmountNotPositive
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleMissing
	}
	if !domain.IsValidCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", apperrors.ErrValidation, req.Category)
	}

	now := time.Now().UTC()
	expense := domain.Expense{
		ExpenseID:    uuid.NewString(),
		UserID:       creatorUserID,
		Amount:       req.Amount.Round(2),
		CurrencyCode: strings.ToUpper(req.CurrencyCode),
		Title:        req.Title,
		Description:  req.Description,
		Vendor:       req.Vendor,
		Category:     req.Category,
		Status:       domain.StatusDraft,
		OCRStatus:    domain.OCRPending,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}

	if err := s.expenseRepo.SaveExpense(ctx, expense); err != nil {
		logger.Error("Failed to save expense in repository", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to save expense: %w", err)
	}

	created := domain.StatusDraft
	entry := domain.AuditEntry{
		AuditID:   uuid.NewString(),
		ExpenseID: expense.ExpenseID,
		ActorID:   creatorUserID,
		Action:    domain.ActionExpenseCreated,
		NewStatus: &created,
		CreatedAt: now,
	}
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		logger.Error("Failed to save creation audit entry", slog.String("error", err.Error()), slog.String("expense_id", expense.ExpenseID))
		return nil, fmt.Errorf("failed to save creation audit entry: %w", err)
	}

	if req.Receipt != nil {
		if err := s.storeReceiptAndEnqueue(ctx, &expense, *req.Receipt, creatorUserID); err != nil {
			return nil, err
		}
	}

	logger.Info("Expense created", slog.String("expense_id", expense.ExpenseID), slog.String("user_id", creatorUserID))
	s.queueCategorization(ctx, expense.ExpenseID)
	return &expense, nil
}

// GetExpenseByID retrieves an expense. Owners see their own; approvers and
// admins see everything.
func (s *expenseService) GetExpenseByID(ctx context.Context, expenseID string, requestingUserID string) (*domain.Expense, error) {
	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, expense, requestingUserID); err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses lists the requesting user's own expenses, or a status queue
// when params.Status is set (reviewers only).
func (s *expenseService) ListExpenses(ctx context.Context, requestingUserID string, params dto.ListExpensesParams) (*dto.ListExpensesResponse, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	limit := params.Limit
	if limit <= 0 {
		limit = defaultExpensePageSize
	}
	if limit > maxExpensePageSize {
		limit = maxExpensePageSize
	}

	var (
		expenses  []domain.Expense
		nextToken *string
		err       error
	)
	if params.Status != nil {
		switch *params.Status {
		case domain.StatusDraft, domain.StatusPending, domain.StatusApproved,
			domain.StatusRejected, domain.StatusChangesRequested, domain.StatusReimbursed:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, *params.Status)
		}
		if err := s.requireApprover(ctx, requestingUserID); err != nil {
			return nil, err
		}
		expenses, nextToken, err = s.expenseRepo.ListExpensesByStatus(ctx, *params.Status, limit, params.NextToken)
	} else {
		expenses, nextToken, err = s.expenseRepo.ListExpensesByUser(ctx, requestingUserID, limit, params.NextToken)
	}
	if err != nil {
		if !isClientError(err) {
			logger.Error("Failed to list expenses from repository", slog.String("error", err.Error()))
		}
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	return &dto.ListExpensesResponse{
		Expenses:  dto.ToExpenseResponses(expenses),
		NextToken: nextToken,
	}, nil
}

// ListAuditTrail retrieves the append-only audit trail of an expense, oldest
// first. Read access follows the same rules as GetExpenseByID.
func (s *expenseService) ListAuditTrail(ctx context.Context, expenseID string, requestingUserID string) ([]domain.AuditEntry, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, expense, requestingUserID); err != nil {
		return nil, err
	}

	entries, err := s.auditRepo.ListAuditEntriesByExpense(ctx, expenseID)
	if err != nil {
		logger.Error("Failed to list audit entries from repository", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		return nil, fmt.Errorf("failed to list audit entries for expense %s: %w", expenseID, err)
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return entries, nil
}

// UpdateExpense updates a draft expense's editable fields. Any change to the
// classification inputs re-triggers categorization.
func (s *expenseService) UpdateExpense(ctx context.Context, expenseID string, req dto.UpdateExpenseRequest, requestingUserID string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.UserID != requestingUserID {
		return nil, fmt.Errorf("%w: only the owner can edit an expense", apperrors.ErrForbidden)
	}
	if !expense.IsEditable() {
		return nil, ErrExpenseNotEditable
	}

	changed := make([]string, 0, 6)
	reclassify := false
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, ErrAmountNotPositive
		}
		expense.Amount = req.Amount.Round(2)
		changed = append(changed, "amount")
		reclassify = true
	}
	if req.CurrencyCode != nil {
		expense.CurrencyCode = strings.ToUpper(*req.CurrencyCode)
		changed = append(changed, "currencyCode")
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, ErrTitleMissing
		}
		expense.Title = *req.Title
		changed = append(changed, "title")
		reclassify = true
	}
	if req.Description != nil {
		expense.Description = *req.Description
		changed = append(changed, "description")
		reclassify = true
	}
	if req.Vendor != nil {
		expense.Vendor = *req.Vendor
		changed = append(changed, "vendor")
		reclassify = true
	}
	if req.Category != nil {
		if !domain.IsValidCategory(*req.Category) {
			return nil, fmt.Errorf("%w: unknown category %q", apperrors.ErrValidation, *req.Category)
		}
		expense.Category = *req.Category
		changed = append(changed, "category")
	}
	if len(changed) == 0 {
		return expense, nil
	}

	now := time.Now().UTC()
	expense.LastUpdatedAt = now
	expense.LastUpdatedBy = requestingUserID

	if err := s.expenseRepo.UpdateExpense(ctx, *expense); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrInvalidTransition) {
			logger.Error("Failed to update expense in repository", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
		return nil, fmt.Errorf("failed to update expense %s: %w", expenseID, err)
	}

	entry := domain.AuditEntry{
		AuditID:   uuid.NewString(),
		ExpenseID: expenseID,
		ActorID:   requestingUserID,
		Action:    domain.ActionExpenseUpdated,
		Metadata:  map[string]any{"fields": changed},
		CreatedAt: now,
	}
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		logger.Error("Failed to save update audit entry", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		return nil, fmt.Errorf("failed to save update audit entry: %w", err)
	}

	logger.Info("Expense updated", slog.String("expense_id", expenseID), slog.Any("fields", changed))
	if reclassify {
		s.queueCategorization(ctx, expenseID)
	}
	return expense, nil
}

// AttachReceipt stores receipt bytes for a draft expense and re-enqueues
// extraction. The new receipt supersedes any previous job entirely.
func (s *expenseService) AttachReceipt(ctx context.Context, expenseID string, req dto.AttachReceiptRequest, requestingUserID string) (*domain.Expense, error) {
	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.UserID != requestingUserID {
		return nil, fmt.Errorf("%w: only the owner can attach a receipt", apperrors.ErrForbidden)
	}
	if !expense.IsEditable() {
		return nil, ErrExpenseNotEditable
	}

	if err := s.storeReceiptAndEnqueue(ctx, expense, req, requestingUserID); err != nil {
		return nil, err
	}
	return expense, nil
}

// DeleteExpense removes a draft expense together with its extraction job.
// Audit entries stay behind; the trail outlives its expense.
func (s *expenseService) DeleteExpense(ctx context.Context, expenseID string, requestingUserID string) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if expense.UserID != requestingUserID {
		return fmt.Errorf("%w: only the owner can delete an expense", apperrors.ErrForbidden)
	}
	if !expense.IsEditable() {
		return ErrExpenseNotEditable
	}

	if err := s.expenseRepo.DeleteExpense(ctx, expenseID); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrInvalidTransition) {
			logger.Error("Failed to delete expense in repository", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
		return fmt.Errorf("failed to delete expense %s: %w", expenseID, err)
	}

	logger.Info("Expense deleted", slog.String("expense_id", expenseID), slog.String("user_id", requestingUserID))
	return nil
}

// SubmitExpense moves DRAFT to PENDING and assigns the earliest-registered
// active approver.
func (s *expenseService) SubmitExpense(ctx context.Context, expenseID string, actorID string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.UserID != actorID {
		return nil, fmt.Errorf("%w: only the owner can submit an expense", apperrors.ErrForbidden)
	}

	approver, err := s.userRepo.FindEligibleApprover(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrNoEligibleApprover
		}
		logger.Error("Failed to find eligible approver", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to find eligible approver: %w", err)
	}

	now := time.Now().UTC()
	updated := *expense
	updated.Status = domain.StatusPending
	updated.ApproverID = &approver.UserID
	updated.SubmittedAt = &now
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = actorID

	entry := transitionAudit(expenseID, actorID, domain.ActionExpenseSubmitted, domain.StatusDraft, domain.StatusPending, "", now)
	if err := s.runTransition(ctx, expenseID, domain.StatusDraft, updated, entry); err != nil {
		return nil, err
	}

	logger.Info("Expense submitted", slog.String("expense_id", expenseID), slog.String("approver_id", approver.UserID))
	s.queueEvent(ctx, domain.Event{
		Type:        domain.EventExpenseSubmitted,
		ExpenseID:   expenseID,
		RecipientID: approver.UserID,
		Payload:     eventPayload(updated, ""),
	})
	return &updated, nil
}

// ApproveExpense moves PENDING to APPROVED. A human-confirmed category that
// differs from the machine suggestion becomes a feedback signal for the
// classifier, sent after the transition commits.
func (s *expenseService) ApproveExpense(ctx context.Context, expenseID string, approverID string, note string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated := *expense
	updated.Status = domain.StatusApproved
	updated.ApproverID = &approverID
	updated.ApprovalNote = note
	updated.ApprovedAt = &now
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = approverID

	entry := transitionAudit(expenseID, approverID, domain.ActionExpenseApproved, domain.StatusPending, domain.StatusApproved, note, now)
	if err := s.runTransition(ctx, expenseID, domain.StatusPending, updated, entry); err != nil {
		return nil, err
	}

	logger.Info("Expense approved", slog.String("expense_id", expenseID), slog.String("approver_id", approverID))
	s.queueEvent(ctx, domain.Event{
		Type:        domain.EventExpenseApproved,
		ExpenseID:   expenseID,
		RecipientID: expense.UserID,
		Payload:     eventPayload(updated, note),
	})
	if expense.MLSuggestedCategory != nil && *expense.MLSuggestedCategory != expense.Category {
		s.queueFeedback(ctx, expenseID, expense.Category, approverID)
	}
	return &updated, nil
}

// RejectExpense moves PENDING to REJECTED. The reason is mandatory. No
// feedback signal: a rejection does not imply a category correction.
func (s *expenseService) RejectExpense(ctx context.Context, expenseID string, approverID string, reason string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated := *expense
	updated.Status = domain.StatusRejected
	updated.ApproverID = &approverID
	updated.RejectionReason = reason
	updated.RejectedAt = &now
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = approverID

	entry := transitionAudit(expenseID, approverID, domain.ActionExpenseRejected, domain.StatusPending, domain.StatusRejected, reason, now)
	if err := s.runTransition(ctx, expenseID, domain.StatusPending, updated, entry); err != nil {
		return nil, err
	}

	logger.Info("Expense rejected", slog.String("expense_id", expenseID), slog.String("approver_id", approverID))
	s.queueEvent(ctx, domain.Event{
		Type:        domain.EventExpenseRejected,
		ExpenseID:   expenseID,
		RecipientID: expense.UserID,
		Payload:     eventPayload(updated, reason),
	})
	return &updated, nil
}

// RequestChanges moves PENDING to CHANGES_REQUESTED. The message is mandatory
// and lands in the audit trail and the notification, not on the expense.
func (s *expenseService) RequestChanges(ctx context.Context, expenseID string, approverID string, message string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if strings.TrimSpace(message) == "" {
		return nil, ErrMessageRequired
	}
	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(ctx, approverID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated := *expense
	updated.Status = domain.StatusChangesRequested
	updated.ApproverID = &approverID
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = approverID

	entry := transitionAudit(expenseID, approverID, domain.ActionChangesRequested, domain.StatusPending, domain.StatusChangesRequested, message, now)
	if err := s.runTransition(ctx, expenseID, domain.StatusPending, updated, entry); err != nil {
		return nil, err
	}

	logger.Info("Changes requested on expense", slog.String("expense_id", expenseID), slog.String("approver_id", approverID))
	s.queueEvent(ctx, domain.Event{
		Type:        domain.EventChangesRequested,
		ExpenseID:   expenseID,
		RecipientID: expense.UserID,
		Payload:     eventPayload(updated, message),
	})
	return &updated, nil
}

// ResubmitExpense moves CHANGES_REQUESTED back to PENDING, keeping the
// previously assigned approver.
func (s *expenseService) ResubmitExpense(ctx context.Context, expenseID string, actorID string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.UserID != actorID {
		return nil, fmt.Errorf("%w: only the owner can resubmit an expense", apperrors.ErrForbidden)
	}

	now := time.Now().UTC()
	updated := *expense
	updated.Status = domain.StatusPending
	updated.SubmittedAt = &now
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = actorID
	if updated.ApproverID == nil {
		approver, err := s.userRepo.FindEligibleApprover(ctx)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, ErrNoEligibleApprover
			}
			logger.Error("Failed to find eligible approver", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to find eligible approver: %w", err)
		}
		updated.ApproverID = &approver.UserID
	}

	entry := transitionAudit(expenseID, actorID, domain.ActionExpenseResubmitted, domain.StatusChangesRequested, domain.StatusPending, "", now)
	if err := s.runTransition(ctx, expenseID, domain.StatusChangesRequested, updated, entry); err != nil {
		return nil, err
	}

	logger.Info("Expense resubmitted", slog.String("expense_id", expenseID), slog.String("approver_id", *updated.ApproverID))
	s.queueEvent(ctx, domain.Event{
		Type:        domain.EventExpenseSubmitted,
		ExpenseID:   expenseID,
		RecipientID: *updated.ApproverID,
		Payload:     eventPayload(updated, ""),
	})
	return &updated, nil
}

// ReimburseExpense moves APPROVED to REIMBURSED, the terminal state.
func (s *expenseService) ReimburseExpense(ctx context.Context, expenseID string, actorID string) (*domain.Expense, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.findExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(ctx, actorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated := *expense
	updated.Status = domain.StatusReimbursed
	updated.ReimbursedAt = &now
	updated.LastUpdatedAt = now
	updated.LastUpdatedBy = actorID

	entry := transitionAudit(expenseID, actorID, domain.ActionExpenseReimbursed, domain.StatusApproved, domain.StatusReimbursed, "", now)
	if err := s.runTransition(ctx, expenseID, domain.StatusApproved, updated, entry); err != nil {
		return nil, err
	}

	logger.Info("Expense reimbursed", slog.String("expense_id", expenseID), slog.String("actor_id", actorID))
	s.queueEvent(ctx, domain.Event{
		Type:        domain.EventExpenseReimbursed,
		ExpenseID:   expenseID,
		RecipientID: expense.UserID,
		Payload:     eventPayload(updated, ""),
	})
	return &updated, nil
}

// findExpense loads an expense with the usual not-found handling.
func (s *expenseService) findExpense(ctx context.Context, expenseID string) (*domain.Expense, error) {
	expense, err := s.expenseRepo.FindExpenseByID(ctx, expenseID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			middleware.GetLoggerFromCtx(ctx).Error("Failed to find expense by ID in repository",
				slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
		return nil, fmt.Errorf("failed to find expense %s: %w", expenseID, err)
	}
	return expense, nil
}

// authorizeRead allows the owner, plus any active approver or admin.
func (s *expenseService) authorizeRead(ctx context.Context, expense *domain.Expense, requestingUserID string) error {
	if expense.UserID == requestingUserID {
		return nil
	}
	return s.requireApprover(ctx, requestingUserID)
}

// requireApprover verifies the user exists and may review expenses.
func (s *expenseService) requireApprover(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: user %s may not review expenses", apperrors.ErrForbidden, userID)
		}
		middleware.GetLoggerFromCtx(ctx).Error("Failed to find user in repository",
			slog.String("error", err.Error()), slog.String("user_id", userID))
		return fmt.Errorf("failed to find user %s: %w", userID, err)
	}
	if !user.CanApprove() {
		return fmt.Errorf("%w: user %s may not review expenses", apperrors.ErrForbidden, userID)
	}
	return nil
}

// runTransition executes the compare-and-swap transition. Lost races and
// missing rows are expected outcomes, so only unexpected failures hit the
// error log.
func (s *expenseService) runTransition(ctx context.Context, expenseID string, fromStatus domain.ExpenseStatus, updated domain.Expense, entry domain.AuditEntry) error {
	if err := s.expenseRepo.TransitionExpenseStatus(ctx, expenseID, fromStatus, updated, entry); err != nil {
		if !errors.Is(err, apperrors.ErrInvalidTransition) && !errors.Is(err, apperrors.ErrNotFound) {
			middleware.GetLoggerFromCtx(ctx).Error("Failed to transition expense status",
				slog.String("error", err.Error()),
				slog.String("expense_id", expenseID),
				slog.String("action", string(entry.Action)))
		}
		return err
	}
	return nil
}

// storeReceiptAndEnqueue puts the receipt bytes in the blob store, records
// the location on the expense and enqueues extraction. The extraction run
// itself happens on the task runner after this returns.
func (s *expenseService) storeReceiptAndEnqueue(ctx context.Context, expense *domain.Expense, req dto.AttachReceiptRequest, actorID string) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	if len(req.Data) == 0 {
		return ErrReceiptEmpty
	}

	key := receiptObjectKey(expense.ExpenseID, req.Filename)
	location, err := s.blobs.Put(ctx, key, req.ContentType, req.Data)
	if err != nil {
		if !isClientError(err) {
			logger.Error("Failed to store receipt in blob store", slog.String("error", err.Error()), slog.String("expense_id", expense.ExpenseID))
		}
		return fmt.Errorf("failed to store receipt for expense %s: %w", expense.ExpenseID, err)
	}

	now := time.Now().UTC()
	expense.ReceiptLocation = location
	expense.OCRStatus = domain.OCRPending
	expense.OCRData = nil
	expense.LastUpdatedAt = now
	expense.LastUpdatedBy = actorID
	if err := s.expenseRepo.UpdateExpense(ctx, *expense); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrInvalidTransition) {
			logger.Error("Failed to record receipt location on expense", slog.String("error", err.Error()), slog.String("expense_id", expense.ExpenseID))
		}
		return fmt.Errorf("failed to record receipt location on expense %s: %w", expense.ExpenseID, err)
	}

	if err := s.extraction.EnqueueExtraction(ctx, expense.ExpenseID, location); err != nil {
		return fmt.Errorf("failed to enqueue extraction for expense %s: %w", expense.ExpenseID, err)
	}

	expenseID := expense.ExpenseID
	s.runner.Submit("extract-receipt", func(taskCtx context.Context) {
		if err := s.extraction.ProcessExpense(taskCtx, expenseID); err != nil {
			logger.Warn("Background extraction run failed", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
	})
	return nil
}

// queueCategorization schedules a classification run once the triggering
// write has committed. Failures are logged, never propagated.
func (s *expenseService) queueCategorization(ctx context.Context, expenseID string) {
	logger := middleware.GetLoggerFromCtx(ctx)
	s.runner.Submit("categorize-expense", func(taskCtx context.Context) {
		if _, err := s.categorizer.ClassifyExpense(taskCtx, expenseID); err != nil {
			logger.Warn("Background categorization failed", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
	})
}

// queueFeedback forwards a category correction to the categorizer off the
// request path.
func (s *expenseService) queueFeedback(ctx context.Context, expenseID string, corrected domain.Category, actorID string) {
	logger := middleware.GetLoggerFromCtx(ctx)
	s.runner.Submit("category-feedback", func(taskCtx context.Context) {
		if err := s.categorizer.RecordCategoryFeedback(taskCtx, expenseID, corrected, actorID); err != nil {
			logger.Warn("Failed to record category feedback", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
	})
}

// queueEvent hands a lifecycle event to the notifier on the task runner.
// Delivery is fire-and-forget; failures are logged only.
func (s *expenseService) queueEvent(ctx context.Context, event domain.Event) {
	logger := middleware.GetLoggerFromCtx(ctx)
	s.runner.Submit("deliver-notification", func(taskCtx context.Context) {
		if err := s.notifier.Notify(taskCtx, event); err != nil {
			logger.Warn("Failed to deliver notification",
				slog.String("error", err.Error()),
				slog.String("event_type", string(event.Type)),
				slog.String("expense_id", event.ExpenseID))
		}
	})
}

// transitionAudit builds the audit entry for one lifecycle transition.
func transitionAudit(expenseID, actorID string, action domain.AuditAction, from, to domain.ExpenseStatus, note string, at time.Time) domain.AuditEntry {
	return domain.AuditEntry{
		AuditID:   uuid.NewString(),
		ExpenseID: expenseID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: &from,
		NewStatus: &to,
		Note:      note,
		CreatedAt: at,
	}
}

// eventPayload carries the human-facing bits of an expense into a
// notification.
func eventPayload(expense domain.Expense, note string) map[string]any {
	payload := map[string]any{
		"title":    expense.Title,
		"amount":   utils.FormatAmount(expense.Amount, expense.CurrencyCode),
		"currency": expense.CurrencyCode,
	}
	if note != "" {
		payload["note"] = note
	}
	return payload
}

// receiptObjectKey builds the blob store key for an uploaded receipt. The
// filename is flattened to its base name so uploads cannot steer the key.
func receiptObjectKey(expenseID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "receipt"
	}
	return "receipts/" + expenseID + "/" + name
}

// isClientError reports whether the error is the caller's fault rather than
// an infrastructure failure worth an error log.
func isClientError(err error) bool {
	if errors.Is(err, apperrors.ErrValidation) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrForbidden) ||
		errors.Is(err, apperrors.ErrInvalidTransition) ||
		errors.Is(err, apperrors.ErrDuplicate) {
		return true
	}
	var appErr *apperrors.AppError
	return errors.As(err, &appErr) && appErr.Code < 500
}
