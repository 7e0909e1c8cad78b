package domain

import "time"

// ExtractionJobStatus is the state of a single receipt-extraction job.
type ExtractionJobStatus string

const (
	JobPending    ExtractionJobStatus = "PENDING"
	JobProcessing ExtractionJobStatus = "PROCESSING"
	JobCompleted  ExtractionJobStatus = "COMPLETED"
	JobFailed     ExtractionJobStatus = "FAILED"
)

// DefaultMaxExtractionAttempts bounds how often a failed extraction is
// retried before the job becomes terminally failed.
const DefaultMaxExtractionAttempts = 3

// ExtractionJob tracks extraction attempts for one expense's receipt. There
// is at most one job per expense; attaching a new receipt replaces the job
// and resets its attempt counter.
type ExtractionJob struct {
	JobID           string              `json:"jobID"`     // Primary Key (UUID)
	ExpenseID       string              `json:"expenseID"` // FK -> expenses.expense_id, unique
	ReceiptLocation string              `json:"receiptLocation"`
	Status          ExtractionJobStatus `json:"status"`
	Attempts        int                 `json:"attempts"`    // Starts at 0
	MaxAttempts     int                 `json:"maxAttempts"` // Default 3
	LastError       string              `json:"lastError,omitempty"`
	ProcessedAt     *time.Time          `json:"processedAt,omitempty"`
	AuditFields
}

// IsExhausted reports whether the job has used up its retry budget and must
// be excluded from future sweeps.
func (j ExtractionJob) IsExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// ExtractionResult is what the document-understanding provider produced for
// a receipt, normalized to text lines plus a key-value map.
type ExtractionResult struct {
	FullText      string            `json:"fullText"`
	KeyValuePairs map[string]string `json:"keyValuePairs,omitempty"`
	Confidence    float64           `json:"confidence"` // Mean per-line confidence, 0 when no lines
	Source        string            `json:"source"`     // "remote" or "stub", kept observable
}

// Extraction result sources. The stub path must stay distinguishable from a
// real provider response.
const (
	ExtractionSourceRemote = "remote"
	ExtractionSourceStub   = "stub"
)
