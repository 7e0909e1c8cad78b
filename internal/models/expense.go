package models

import (
	"time"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Expense is the database representation of an expense row.
type Expense struct {
	ExpenseID    string          `json:"expenseID" db:"expense_id"`
	UserID       string          `json:"userID" db:"user_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	CurrencyCode string          `json:"currencyCode" db:"currency_code"`
	Title        string          `json:"title" db:"title"`
	Description  string          `json:"description" db:"description"`
	Vendor       string          `json:"vendor" db:"vendor"`

	Category            string   `json:"category" db:"category"`
	MLSuggestedCategory *string  `json:"mlSuggestedCategory" db:"ml_suggested_category"`
	MLConfidence        *float64 `json:"mlConfidence" db:"ml_confidence"`

	Status          string          `json:"status" db:"status"`
	OCRStatus       string          `json:"ocrStatus" db:"ocr_status"`
	OCRData         *domain.OCRData `json:"ocrData" db:"ocr_data"` // JSONB column
	ReceiptLocation *string         `json:"receiptLocation" db:"receipt_location"`

	ApproverID      *string `json:"approverID" db:"approver_id"`
	ApprovalNote    *string `json:"approvalNote" db:"approval_note"`
	RejectionReason *string `json:"rejectionReason" db:"rejection_reason"`

	SubmittedAt  *time.Time `json:"submittedAt" db:"submitted_at"`
	ApprovedAt   *time.Time `json:"approvedAt" db:"approved_at"`
	RejectedAt   *time.Time `json:"rejectedAt" db:"rejected_at"`
	ReimbursedAt *time.Time `json:"reimbursedAt" db:"reimbursed_at"`

	AuditFields
}
