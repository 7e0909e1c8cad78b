package mapping

import (
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/models"
)

// ToModelAuditEntry converts a domain AuditEntry to its database model.
func ToModelAuditEntry(d domain.AuditEntry) models.AuditEntry {
	m := models.AuditEntry{
		AuditID:   d.AuditID,
		ExpenseID: d.ExpenseID,
		ActorID:   d.ActorID,
		Action:    string(d.Action),
		Note:      nilIfEmpty(d.Note),
		Metadata:  d.Metadata,
		CreatedAt: d.CreatedAt,
	}
	if d.OldStatus != nil {
		old := string(*d.OldStatus)
		m.OldStatus = &old
	}
	if d.NewStatus != nil {
		newStatus := string(*d.NewStatus)
		m.NewStatus = &newStatus
	}
	return m
}

// ToDomainAuditEntry converts an audit entry model to its domain form.
func ToDomainAuditEntry(m models.AuditEntry) domain.AuditEntry {
	d := domain.AuditEntry{
		AuditID:   m.AuditID,
		ExpenseID: m.ExpenseID,
		ActorID:   m.ActorID,
		Action:    domain.AuditAction(m.Action),
		Note:      emptyIfNil(m.Note),
		Metadata:  m.Metadata,
		CreatedAt: m.CreatedAt,
	}
	if m.OldStatus != nil {
		old := domain.ExpenseStatus(*m.OldStatus)
		d.OldStatus = &old
	}
	if m.NewStatus != nil {
		newStatus := domain.ExpenseStatus(*m.NewStatus)
		d.NewStatus = &newStatus
	}
	return d
}

// ToDomainAuditEntrySlice converts a slice of audit entry models to domain form.
func ToDomainAuditEntrySlice(ms []models.AuditEntry) []domain.AuditEntry {
	ds := make([]domain.AuditEntry, len(ms))
	for i, m := range ms {
		ds[i] = ToDomainAuditEntry(m)
	}
	return ds
}
