package mapping

import (
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/models"
)

// ToModelExpense converts a domain Expense to its database model.
func ToModelExpense(d domain.Expense) models.Expense {
	m := models.Expense{
		ExpenseID:       d.ExpenseID,
		UserID:          d.UserID,
		Amount:          d.Amount,
		CurrencyCode:    d.CurrencyCode,
		Title:           d.Title,
		Description:     d.Description,
		Vendor:          d.Vendor,
		Category:        string(d.Category),
		MLConfidence:    d.MLConfidence,
		Status:          string(d.Status),
		OCRStatus:       string(d.OCRStatus),
		OCRData:         d.OCRData,
		ReceiptLocation: nilIfEmpty(d.ReceiptLocation),
		ApproverID:      d.ApproverID,
		ApprovalNote:    nilIfEmpty(d.ApprovalNote),
		RejectionReason: nilIfEmpty(d.RejectionReason),
		SubmittedAt:     d.SubmittedAt,
		ApprovedAt:      d.ApprovedAt,
		RejectedAt:      d.RejectedAt,
		ReimbursedAt:    d.ReimbursedAt,
		AuditFields:     ToModelAuditFields(d.AuditFields),
	}
	if d.MLSuggestedCategory != nil {
		suggested := string(*d.MLSuggestedCategory)
		m.MLSuggestedCategory = &suggested
	}
	return m
}

// ToDomainExpense converts an expense database model to its domain form.
func ToDomainExpense(m models.Expense) domain.Expense {
	d := domain.Expense{
		ExpenseID:       m.ExpenseID,
		UserID:          m.UserID,
		Amount:          m.Amount,
		CurrencyCode:    m.CurrencyCode,
		Title:           m.Title,
		Description:     m.Description,
		Vendor:          m.Vendor,
		Category:        domain.Category(m.Category),
		MLConfidence:    m.MLConfidence,
		Status:          domain.ExpenseStatus(m.Status),
		OCRStatus:       domain.OCRStatus(m.OCRStatus),
		OCRData:         m.OCRData,
		ReceiptLocation: emptyIfNil(m.ReceiptLocation),
		ApproverID:      m.ApproverID,
		ApprovalNote:    emptyIfNil(m.ApprovalNote),
		RejectionReason: emptyIfNil(m.RejectionReason),
		SubmittedAt:     m.SubmittedAt,
		ApprovedAt:      m.ApprovedAt,
		RejectedAt:      m.RejectedAt,
		ReimbursedAt:    m.ReimbursedAt,
		AuditFields:     ToDomainAuditFields(m.AuditFields),
	}
	if m.MLSuggestedCategory != nil {
		suggested := domain.Category(*m.MLSuggestedCategory)
		d.MLSuggestedCategory = &suggested
	}
	return d
}

// ToDomainExpenseSlice converts a slice of expense models to domain form.
func ToDomainExpenseSlice(ms []models.Expense) []domain.Expense {
	ds := make([]domain.Expense, len(ms))
	for i, m := range ms {
		ds[i] = ToDomainExpense(m)
	}
	return ds
}
