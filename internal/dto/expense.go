package dto

import (
	"time"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateExpenseRequest defines the data needed to create a draft expense.
type CreateExpenseRequest struct {
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	CurrencyCode string          `json:"currencyCode" binding:"required,iso4217"`
	Title        string          `json:"title" binding:"required"`
	Description  string          `json:"description"`
	Vendor       string          `json:"vendor"`
	Category     domain.Category `json:"category" binding:"required,expensecategory"`

	// Receipt optionally carries an uploaded file when the expense arrives
	// via the multipart form. Filled by the handler, never by JSON binding.
	Receipt *AttachReceiptRequest `json:"-"`
}

// UpdateExpenseRequest defines the fields editable while an expense is a draft.
// Pointers differentiate omitted fields from zero-value fields.
type UpdateExpenseRequest struct {
	Amount       *decimal.Decimal `json:"amount"`
	CurrencyCode *string          `json:"currencyCode" binding:"omitempty,iso4217"`
	Title        *string          `json:"title"`
	Description  *string          `json:"description"`
	Vendor       *string          `json:"vendor"`
	Category     *domain.Category `json:"category" binding:"omitempty,expensecategory"`
}

// AttachReceiptRequest carries an uploaded receipt. The handler fills it from
// the multipart form; services never touch multipart directly.
type AttachReceiptRequest struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ApproveExpenseRequest carries the optional approval note.
type ApproveExpenseRequest struct {
	Note string `json:"note"`
}

// RejectExpenseRequest carries the mandatory rejection reason.
type RejectExpenseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RequestChangesRequest carries the mandatory change-request message.
type RequestChangesRequest struct {
	Message string `json:"message" binding:"required"`
}

// ListExpensesParams defines query parameters for listing expenses.
type ListExpensesParams struct {
	Limit     int     `form:"limit,default=20"`
	NextToken *string `form:"nextToken"`
	// Status switches the listing from "my expenses" to a reviewer queue.
	Status *domain.ExpenseStatus `form:"status"`
}

// OCRDataResponse mirrors the extraction payload stored on an expense.
type OCRDataResponse struct {
	FullText      string               `json:"fullText"`
	KeyValuePairs map[string]string    `json:"keyValuePairs,omitempty"`
	Confidence    float64              `json:"confidence"`
	Source        string               `json:"source"`
	Parsed        domain.ParsedReceipt `json:"parsed"`
}

// ExpenseResponse defines the data returned for an expense.
type ExpenseResponse struct {
	ExpenseID           string           `json:"expenseID"`
	UserID              string           `json:"userID"`
	Amount              decimal.Decimal  `json:"amount"`
	CurrencyCode        string           `json:"currencyCode"`
	Title               string           `json:"title"`
	Description         string           `json:"description,omitempty"`
	Vendor              string           `json:"vendor,omitempty"`
	Category            domain.Category  `json:"category"`
	MLSuggestedCategory *domain.Category `json:"mlSuggestedCategory,omitempty"`
	MLConfidence        *float64         `json:"mlConfidence,omitempty"`
	Status              string           `json:"status"`
	OCRStatus           string           `json:"ocrStatus"`
	OCRData             *OCRDataResponse `json:"ocrData,omitempty"`
	ReceiptLocation     string           `json:"receiptLocation,omitempty"`
	ApproverID          *string          `json:"approverID,omitempty"`
	ApprovalNote        string           `json:"approvalNote,omitempty"`
	RejectionReason     string           `json:"rejectionReason,omitempty"`
	SubmittedAt         *time.Time       `json:"submittedAt,omitempty"`
	ApprovedAt          *time.Time       `json:"approvedAt,omitempty"`
	RejectedAt          *time.Time       `json:"rejectedAt,omitempty"`
	ReimbursedAt        *time.Time       `json:"reimbursedAt,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	LastUpdatedAt       time.Time        `json:"lastUpdatedAt"`
}

// ListExpensesResponse wraps a page of expenses plus the token for the next page.
type ListExpensesResponse struct {
	Expenses  []ExpenseResponse `json:"expenses"`
	NextToken *string           `json:"nextToken,omitempty"`
}

// AuditEntryResponse defines the data returned for one audit trail entry.
type AuditEntryResponse struct {
	AuditID   string         `json:"auditID"`
	ExpenseID string         `json:"expenseID"`
	ActorID   string         `json:"actorID"`
	Action    string         `json:"action"`
	OldStatus *string        `json:"oldStatus,omitempty"`
	NewStatus *string        `json:"newStatus,omitempty"`
	Note      string         `json:"note,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ListAuditTrailResponse wraps the ordered audit entries of one expense.
type ListAuditTrailResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

// ToExpenseResponse converts a domain.Expense to ExpenseResponse DTO.
func ToExpenseResponse(e *domain.Expense) ExpenseResponse {
	resp := ExpenseResponse{
		ExpenseID:           e.ExpenseID,
		UserID:              e.UserID,
		Amount:              e.Amount,
		CurrencyCode:        e.CurrencyCode,
		Title:               e.Title,
		Description:         e.Description,
		Vendor:              e.Vendor,
		Category:            e.Category,
		MLSuggestedCategory: e.MLSuggestedCategory,
		MLConfidence:        e.MLConfidence,
		Status:              string(e.Status),
		OCRStatus:           string(e.OCRStatus),
		ReceiptLocation:     e.ReceiptLocation,
		ApproverID:          e.ApproverID,
		ApprovalNote:        e.ApprovalNote,
		RejectionReason:     e.RejectionReason,
		SubmittedAt:         e.SubmittedAt,
		ApprovedAt:          e.ApprovedAt,
		RejectedAt:          e.RejectedAt,
		ReimbursedAt:        e.ReimbursedAt,
		CreatedAt:           e.CreatedAt,
		LastUpdatedAt:       e.LastUpdatedAt,
	}
	if e.OCRData != nil {
		resp.OCRData = &OCRDataResponse{
			FullText:      e.OCRData.FullText,
			KeyValuePairs: e.OCRData.KeyValuePairs,
			Confidence:    e.OCRData.Confidence,
			Source:        e.OCRData.Source,
			Parsed:        e.OCRData.Parsed,
		}
	}
	return resp
}

// ToExpenseResponses converts a slice of domain.Expense to []ExpenseResponse.
func ToExpenseResponses(expenses []domain.Expense) []ExpenseResponse {
	responses := make([]ExpenseResponse, len(expenses))
	for i := range expenses {
		responses[i] = ToExpenseResponse(&expenses[i])
	}
	return responses
}

// ToAuditEntryResponse converts a domain.AuditEntry to AuditEntryResponse DTO.
func ToAuditEntryResponse(entry *domain.AuditEntry) AuditEntryResponse {
	resp := AuditEntryResponse{
		AuditID:   entry.AuditID,
		ExpenseID: entry.ExpenseID,
		ActorID:   entry.ActorID,
		Action:    string(entry.Action),
		Note:      entry.Note,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
	if entry.OldStatus != nil {
		old := string(*entry.OldStatus)
		resp.OldStatus = &old
	}
	if entry.NewStatus != nil {
		newStatus := string(*entry.NewStatus)
		resp.NewStatus = &newStatus
	}
	return resp
}

// ToAuditEntryResponses converts a slice of domain.AuditEntry to []AuditEntryResponse.
func ToAuditEntryResponses(entries []domain.AuditEntry) []AuditEntryResponse {
	responses := make([]AuditEntryResponse, len(entries))
	for i := range entries {
		responses[i] = ToAuditEntryResponse(&entries[i])
	}
	return responses
}
