// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// InvoiceByID fetches one invoice.
func (s *StateStore) InvoiceByID(ctx context.Context, id uuid.UUID) (*structs.Invoice, error) {
	var inv structs.Invoice
	if err := s.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "invoice", id.String())
	}
	return &inv, nil
}

// InvoiceByIDForUpdate fetches one invoice holding its row lock; for use
// inside a transaction wrapping a read-modify-write.
func (s *StateStore) InvoiceByIDForUpdate(ctx context.Context, id uuid.UUID) (*structs.Invoice, error) {
	var inv structs.Invoice
	if err := s.db.WithContext(ctx).Clauses(forUpdate()).First(&inv, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "invoice", id.String())
	}
	return &inv, nil
}

// InvoiceByJobID fetches the newest non-void invoice billing a job.
func (s *StateStore) InvoiceByJobID(ctx context.Context, jobID uuid.UUID) (*structs.Invoice, error) {
	var inv structs.Invoice
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status <> ?", jobID, structs.InvoiceVoid).
		Order("created_at desc").
		First(&inv).Error
	if err != nil {
		return nil, translateErr(err, "invoice", jobID.String())
	}
	return &inv, nil
}

// CreateInvoice persists a new invoice.
func (s *StateStore) CreateInvoice(ctx context.Context, inv *structs.Invoice) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return translateErr(err, "invoice", inv.JobID.String())
	}
	return nil
}

// UpdateInvoice saves a modified invoice row.
func (s *StateStore) UpdateInvoice(ctx context.Context, inv *structs.Invoice) error {
	if err := s.db.WithContext(ctx).Save(inv).Error; err != nil {
		return translateErr(err, "invoice", inv.ID.String())
	}
	return nil
}

// InvoicesDueLienWarning returns lien-eligible unpaid invoices sent at or
// before the cutoff and not yet warned. The warning clock anchors at the
// sent timestamp.
func (s *StateStore) InvoicesDueLienWarning(ctx context.Context, cutoff time.Time) ([]*structs.Invoice, error) {
	var invoices []*structs.Invoice
	err := s.db.WithContext(ctx).
		Where("lien_eligible AND lien_warning_sent_at IS NULL").
		Where("status NOT IN ?", []structs.InvoiceStatus{
			structs.InvoicePaid, structs.InvoiceVoid, structs.InvoiceDraft,
		}).
		Where("sent_at IS NOT NULL AND sent_at <= ?", cutoff).
		Find(&invoices).Error
	if err != nil {
		return nil, translateErr(err, "invoice", "lien_warning")
	}
	return invoices, nil
}

// OverdueInvoices returns unpaid invoices past their due date.
func (s *StateStore) OverdueInvoices(ctx context.Context, asOf time.Time) ([]*structs.Invoice, error) {
	var invoices []*structs.Invoice
	err := s.db.WithContext(ctx).
		Where("due_date < ?", Day(asOf)).
		Where("status IN ?", []structs.InvoiceStatus{
			structs.InvoiceSent, structs.InvoiceViewed, structs.InvoicePartiallyPaid,
		}).
		Find(&invoices).Error
	if err != nil {
		return nil, translateErr(err, "invoice", "overdue")
	}
	return invoices, nil
}

// RecordSentMessage appends one outbound-message delivery record.
func (s *StateStore) RecordSentMessage(ctx context.Context, msg *structs.SentMessage) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return translateErr(err, "sent_message", msg.Phone)
	}
	return nil
}
