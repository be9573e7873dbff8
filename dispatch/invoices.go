// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
)

// lienWarningDays is the statutory notice period: a warning goes out once an
// eligible invoice has been unpaid this long after sending.
const lienWarningDays = 45

// Invoice fetches an invoice by id.
func (c *Core) Invoice(ctx context.Context, invoiceID uuid.UUID) (*structs.Invoice, error) {
	return c.store.InvoiceByID(ctx, invoiceID)
}

// SendInvoice issues a draft invoice to the customer, starting the payment
// and lien clocks at the send instant.
func (c *Core) SendInvoice(ctx context.Context, invoiceID uuid.UUID) (*structs.Invoice, error) {
	var inv *structs.Invoice
	err := c.store.WithTransaction(ctx, func(tx Store) error {
		var err error
		inv, err = tx.InvoiceByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransition(structs.InvoiceSent) {
			return structs.NewErrStateRejection("invoice_transition",
				"invoice %s is %s; only drafts can be sent", invoiceID, inv.Status)
		}
		now := c.now()
		inv.Status = structs.InvoiceSent
		inv.SentAt = &now
		if inv.DueDate.IsZero() {
			inv.DueDate = state.Day(now.AddDate(0, 0, invoiceDueDays))
		}
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	if customer, err := c.store.CustomerByID(ctx, inv.CustomerID); err == nil {
		c.notify(ctx, &customer.ID, customer.Phone, "invoice_sent",
			fmt.Sprintf("Your invoice for $%s is ready. Due %s.",
				inv.Total().StringFixed(2), inv.DueDate.Format("Jan 2")))
	}
	return inv, nil
}

// MarkInvoiceViewed records the customer opening the invoice.
func (c *Core) MarkInvoiceViewed(ctx context.Context, invoiceID uuid.UUID) error {
	return c.store.WithTransaction(ctx, func(tx Store) error {
		inv, err := tx.InvoiceByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != structs.InvoiceSent {
			// Viewing is only meaningful once; later opens are no-ops.
			return nil
		}
		now := c.now()
		inv.Status = structs.InvoiceViewed
		inv.ViewedAt = &now
		return tx.UpdateInvoice(ctx, inv)
	})
}

// RecordPayment applies a payment to an invoice. Overpayment is rejected;
// the invoice settles exactly when the paid amount reaches the total.
func (c *Core) RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, method string) (*structs.Invoice, error) {
	if !amount.IsPositive() {
		return nil, structs.NewErrValidation("payment_amount",
			"payment must be positive, got %s", amount)
	}

	var inv *structs.Invoice
	err := c.store.WithTransaction(ctx, func(tx Store) error {
		var err error
		inv, err = tx.InvoiceByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		outstanding := inv.Outstanding()
		if amount.GreaterThan(outstanding) {
			return structs.NewErrValidation("overpayment",
				"payment %s exceeds outstanding balance %s", amount, outstanding)
		}

		next := structs.InvoicePartiallyPaid
		if amount.Equal(outstanding) {
			next = structs.InvoicePaid
		}
		if inv.Status != next && !inv.Status.CanTransition(next) {
			return structs.NewErrStateRejection("invoice_transition",
				"invoice %s is %s; cannot accept payment", invoiceID, inv.Status)
		}

		inv.PaidAmount = inv.PaidAmount.Add(amount)
		inv.Status = next
		if method != "" {
			inv.PaymentMethod = &method
		}
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("payment recorded",
		"invoice", invoiceID, "amount", amount, "status", inv.Status)
	return inv, nil
}

// ApplyLateFee adds a one-time late fee to an unpaid invoice and marks it
// overdue.
func (c *Core) ApplyLateFee(ctx context.Context, invoiceID uuid.UUID, fee decimal.Decimal) (*structs.Invoice, error) {
	if fee.IsNegative() {
		return nil, structs.NewErrValidation("late_fee", "late fee cannot be negative")
	}

	var inv *structs.Invoice
	err := c.store.WithTransaction(ctx, func(tx Store) error {
		var err error
		inv, err = tx.InvoiceByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.LateFee.IsZero() {
			return structs.NewErrStateRejection("late_fee_applied",
				"invoice %s already carries a late fee", invoiceID)
		}
		if inv.Status != structs.InvoiceOverdue {
			if !inv.Status.CanTransition(structs.InvoiceOverdue) {
				return structs.NewErrStateRejection("invoice_transition",
					"invoice %s is %s; cannot mark overdue", invoiceID, inv.Status)
			}
			inv.Status = structs.InvoiceOverdue
		}
		inv.LateFee = fee
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// MarkOverdueInvoices sweeps unpaid invoices past their due date into the
// overdue state. Returns the invoices it transitioned.
func (c *Core) MarkOverdueInvoices(ctx context.Context) ([]*structs.Invoice, error) {
	candidates, err := c.store.OverdueInvoices(ctx, c.now())
	if err != nil {
		return nil, err
	}

	var marked []*structs.Invoice
	for _, cand := range candidates {
		err := c.store.WithTransaction(ctx, func(tx Store) error {
			inv, err := tx.InvoiceByIDForUpdate(ctx, cand.ID)
			if err != nil {
				return err
			}
			if !inv.Status.CanTransition(structs.InvoiceOverdue) {
				return nil
			}
			inv.Status = structs.InvoiceOverdue
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
			marked = append(marked, inv)
			return nil
		})
		if err != nil {
			return marked, err
		}
	}
	return marked, nil
}

// SendLienWarnings notifies customers of lien-eligible invoices unpaid past
// the statutory window, anchored at the send timestamp. Each invoice is
// warned at most once.
func (c *Core) SendLienWarnings(ctx context.Context) ([]*structs.Invoice, error) {
	cutoff := c.now().AddDate(0, 0, -lienWarningDays)
	due, err := c.store.InvoicesDueLienWarning(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var warned []*structs.Invoice
	for _, cand := range due {
		err := c.store.WithTransaction(ctx, func(tx Store) error {
			inv, err := tx.InvoiceByIDForUpdate(ctx, cand.ID)
			if err != nil {
				return err
			}
			if inv.LienWarningSentAt != nil {
				return nil
			}
			now := c.now()
			inv.LienWarningSentAt = &now
			if err := tx.UpdateInvoice(ctx, inv); err != nil {
				return err
			}
			warned = append(warned, inv)
			return nil
		})
		if err != nil {
			return warned, err
		}
	}

	for _, inv := range warned {
		if customer, err := c.store.CustomerByID(ctx, inv.CustomerID); err == nil {
			c.notify(ctx, &customer.ID, customer.Phone, "lien_warning",
				fmt.Sprintf("Your invoice of $%s is %d days past issue. "+
					"A mechanic's lien may be filed if it remains unpaid.",
					inv.Outstanding().StringFixed(2), lienWarningDays))
		}
	}

	c.logger.Info("lien warnings sent", "count", len(warned))
	return warned, nil
}

// FileLien records a mechanic's lien filing. Filing requires eligibility, an
// outstanding balance and a prior warning.
func (c *Core) FileLien(ctx context.Context, invoiceID uuid.UUID, filedDate time.Time) (*structs.Invoice, error) {
	var inv *structs.Invoice
	err := c.store.WithTransaction(ctx, func(tx Store) error {
		var err error
		inv, err = tx.InvoiceByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.LienEligible {
			return structs.NewErrStateRejection("lien_ineligible",
				"invoice %s is not lien eligible", invoiceID)
		}
		if inv.LienWarningSentAt == nil {
			return structs.NewErrStateRejection("lien_no_warning",
				"invoice %s requires a lien warning before filing", invoiceID)
		}
		if inv.LienFiledDate != nil {
			return structs.NewErrStateRejection("lien_filed",
				"invoice %s already has a lien on file", invoiceID)
		}
		if inv.Outstanding().IsZero() {
			return structs.NewErrStateRejection("lien_settled",
				"invoice %s has no outstanding balance", invoiceID)
		}
		day := state.Day(filedDate)
		inv.LienFiledDate = &day
		return tx.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Warn("lien filed", "invoice", invoiceID, "outstanding", inv.Outstanding())
	return inv, nil
}

// VoidInvoice voids an unpaid invoice.
func (c *Core) VoidInvoice(ctx context.Context, invoiceID uuid.UUID, actor string) error {
	return c.store.WithTransaction(ctx, func(tx Store) error {
		inv, err := tx.InvoiceByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransition(structs.InvoiceVoid) {
			return structs.NewErrStateRejection("invoice_transition",
				"invoice %s is %s; cannot void", invoiceID, inv.Status)
		}
		inv.Status = structs.InvoiceVoid
		c.logger.Info("invoice voided", "invoice", invoiceID, "actor", actor)
		return tx.UpdateInvoice(ctx, inv)
	})
}
