package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseStatus indicates where an expense sits in its approval lifecycle.
type ExpenseStatus string

const (
	StatusDraft            ExpenseStatus = "DRAFT"
	StatusPending          ExpenseStatus = "PENDING"
	StatusApproved         ExpenseStatus = "APPROVED"
	StatusRejected         ExpenseStatus = "REJECTED"
	StatusChangesRequested ExpenseStatus = "CHANGES_REQUESTED"
	StatusReimbursed       ExpenseStatus = "REIMBURSED"
)

// OCRStatus tracks the receipt-extraction pipeline for an expense. It is a
// state machine independent of ExpenseStatus: a failed extraction never
// blocks submission or approval.
type OCRStatus string

const (
	OCRPending    OCRStatus = "PENDING"
	OCRProcessing OCRStatus = "PROCESSING"
	OCRCompleted  OCRStatus = "COMPLETED"
	OCRFailed     OCRStatus = "FAILED"
)

// Expense is the central entity of the reimbursement flow.
type Expense struct {
	ExpenseID    string          `json:"expenseID"` // Primary Key (UUID)
	UserID       string          `json:"userID"`    // FK -> users.user_id (owner)
	Amount       decimal.Decimal `json:"amount"`    // Always > 0, two decimal places
	CurrencyCode string          `json:"currencyCode"`
	Title        string          `json:"title"`
	Description  string          `json:"description"` // Nullable free text
	Vendor       string          `json:"vendor"`      // Nullable free text

	Category            Category  `json:"category"`                      // Human-entered, required
	MLSuggestedCategory *Category `json:"mlSuggestedCategory,omitempty"` // Advisory only
	MLConfidence        *float64  `json:"mlConfidence,omitempty"`        // In [0,1]

	Status          ExpenseStatus `json:"status"`
	OCRStatus       OCRStatus     `json:"ocrStatus"`
	OCRData         *OCRData      `json:"ocrData,omitempty"`         // Opaque to the state machine
	ReceiptLocation string        `json:"receiptLocation,omitempty"` // Blob store key, nullable

	ApproverID      *string `json:"approverID,omitempty"`
	ApprovalNote    string  `json:"approvalNote,omitempty"`
	RejectionReason string  `json:"rejectionReason,omitempty"`

	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	ApprovedAt   *time.Time `json:"approvedAt,omitempty"`
	RejectedAt   *time.Time `json:"rejectedAt,omitempty"`
	ReimbursedAt *time.Time `json:"reimbursedAt,omitempty"`

	AuditFields
}

// IsEditable reports whether the expense can still be mutated directly.
// Outside DRAFT, amount/category/receipt change only through transitions.
func (e Expense) IsEditable() bool {
	return e.Status == StatusDraft
}

// IsFinalized reports whether the expense reached a state whose category is
// trustworthy enough to serve as a training example.
func (e Expense) IsFinalized() bool {
	return e.Status == StatusApproved || e.Status == StatusReimbursed
}

// OCRData is the extraction payload stored on an expense: the raw provider
// output plus the fields the receipt parser derived from it.
type OCRData struct {
	FullText      string            `json:"fullText"`
	KeyValuePairs map[string]string `json:"keyValuePairs,omitempty"`
	Confidence    float64           `json:"confidence"` // Mean per-line confidence in [0,1]
	Source        string            `json:"source"`     // Provider that produced the text
	Parsed        ParsedReceipt     `json:"parsed"`
}

// ParsedReceipt holds the structured fields derived from raw receipt text.
// Nil fields mean "unknown, ask the human"; the parser never fails outright.
type ParsedReceipt struct {
	Vendor *string          `json:"vendor,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Date   *time.Time       `json:"date,omitempty"`
	Total  *decimal.Decimal `json:"total,omitempty"`
	Items  []ReceiptItem    `json:"items,omitempty"`
}

// ReceiptItem is a single best-effort line item off a receipt.
type ReceiptItem struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}
