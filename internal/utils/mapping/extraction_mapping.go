package mapping

import (
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/models"
)

// ToModelExtractionJob converts a domain ExtractionJob to its database model.
func ToModelExtractionJob(d domain.ExtractionJob) models.ExtractionJob {
	return models.ExtractionJob{
		JobID:           d.JobID,
		ExpenseID:       d.ExpenseID,
		ReceiptLocation: d.ReceiptLocation,
		Status:          string(d.Status),
		Attempts:        d.Attempts,
		MaxAttempts:     d.MaxAttempts,
		LastError:       nilIfEmpty(d.LastError),
		ProcessedAt:     d.ProcessedAt,
		AuditFields:     ToModelAuditFields(d.AuditFields),
	}
}

// ToDomainExtractionJob converts an extraction job model to its domain form.
func ToDomainExtractionJob(m models.ExtractionJob) domain.ExtractionJob {
	return domain.ExtractionJob{
		JobID:           m.JobID,
		ExpenseID:       m.ExpenseID,
		ReceiptLocation: m.ReceiptLocation,
		Status:          domain.ExtractionJobStatus(m.Status),
		Attempts:        m.Attempts,
		MaxAttempts:     m.MaxAttempts,
		LastError:       emptyIfNil(m.LastError),
		ProcessedAt:     m.ProcessedAt,
		AuditFields:     ToDomainAuditFields(m.AuditFields),
	}
}

// ToDomainExtractionJobSlice converts a slice of job models to domain form.
func ToDomainExtractionJobSlice(ms []models.ExtractionJob) []domain.ExtractionJob {
	ds := make([]domain.ExtractionJob, len(ms))
	for i, m := range ms {
		ds[i] = ToDomainExtractionJob(m)
	}
	return ds
}
