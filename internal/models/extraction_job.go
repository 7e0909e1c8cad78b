package models

import "time"

// ExtractionJob is the database representation of a receipt extraction job.
// The expense_id column carries a unique constraint: one job per expense.
type ExtractionJob struct {
	JobID           string     `json:"jobID" db:"job_id"`
	ExpenseID       string     `json:"expenseID" db:"expense_id"`
	ReceiptLocation string     `json:"receiptLocation" db:"receipt_location"`
	Status          string     `json:"status" db:"status"`
	Attempts        int        `json:"attempts" db:"attempts"`
	MaxAttempts     int        `json:"maxAttempts" db:"max_attempts"`
	LastError       *string    `json:"lastError" db:"last_error"`
	ProcessedAt     *time.Time `json:"processedAt" db:"processed_at"`
	AuditFields
}
