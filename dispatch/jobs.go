// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/helper/pointer"
)

// invoiceDueDays is the payment term stamped on auto-created invoices.
const invoiceDueDays = 30

// CreateJobRequest carries the fields a caller supplies for a new job; the
// duration, price and equipment requirements derive from the offering and
// the site's zone count.
type CreateJobRequest struct {
	CustomerID        uuid.UUID  `json:"customer_id"`
	PropertyID        uuid.UUID  `json:"property_id"`
	ServiceOfferingID uuid.UUID  `json:"service_offering_id"`
	Priority          int        `json:"priority"`
	PreferredDate     *time.Time `json:"preferred_date,omitempty"`
	WindowStartMinute *int       `json:"window_start_minute,omitempty"`
	WindowEndMinute   *int       `json:"window_end_minute,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Actor             string     `json:"-"`
}

// CreateJob builds a job from an offering and a site. The offering supplies
// category, equipment, staffing and the duration/price formulas; the
// property's zone count feeds both formulas.
func (c *Core) CreateJob(ctx context.Context, req *CreateJobRequest) (*structs.Job, error) {
	offerings, err := c.store.OfferingsByIDs(ctx, []uuid.UUID{req.ServiceOfferingID})
	if err != nil {
		return nil, err
	}
	if len(offerings) == 0 {
		return nil, structs.NewErrNotFound("service_offering", req.ServiceOfferingID.String())
	}
	offering := offerings[0]
	if !offering.IsActive {
		return nil, structs.NewErrStateRejection("offering_inactive",
			"service offering %q is no longer offered", offering.Name)
	}

	props, err := c.store.PropertiesByIDs(ctx, []uuid.UUID{req.PropertyID})
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, structs.NewErrNotFound("property", req.PropertyID.String())
	}
	prop := props[0]
	if prop.CustomerID != req.CustomerID {
		return nil, structs.NewErrValidation("property_owner",
			"property %s does not belong to customer %s", req.PropertyID, req.CustomerID)
	}

	zones := pointer.ValueOr(prop.ZoneCount, 0)
	job := &structs.Job{
		CustomerID:        req.CustomerID,
		PropertyID:        req.PropertyID,
		ServiceOfferingID: req.ServiceOfferingID,
		Category:          offering.Category,
		Status:            structs.JobStatusRequested,
		Priority:          req.Priority,
		DurationMinutes:   offering.DurationFor(zones),
		RequiredEquipment: offering.RequiredEquipment,
		RequiredStaff:     offering.RequiredStaff,
		PreferredDate:     req.PreferredDate,
		WindowStartMinute: req.WindowStartMinute,
		WindowEndMinute:   req.WindowEndMinute,
		PriceSnapshot:     offering.PriceFor(zones),
		Description:       req.Description,
	}
	if job.PreferredDate != nil {
		job.PreferredDate = pointer.Of(state.Day(*job.PreferredDate))
	}

	if err := c.store.CreateJob(ctx, job, req.Actor); err != nil {
		return nil, err
	}
	c.logger.Info("job created",
		"job", job.ID, "customer", job.CustomerID,
		"category", job.Category, "duration", job.DurationMinutes)
	return job, nil
}

// ApproveJob accepts a requested job into the schedulable pool.
func (c *Core) ApproveJob(ctx context.Context, jobID uuid.UUID, actor string) error {
	return c.store.TransitionJob(ctx, jobID, structs.JobStatusApproved, actor, nil)
}

// StartJob marks field work underway: the job moves to in_progress and the
// tech's appointment records arrival.
func (c *Core) StartJob(ctx context.Context, apptID uuid.UUID, actor string) error {
	appt, err := c.store.AppointmentByID(ctx, apptID)
	if err != nil {
		return err
	}
	return c.store.WithDateLock(ctx, appt.Date, func(tx Store) error {
		if err := tx.TransitionJob(ctx, appt.JobID, structs.JobStatusInProgress, actor, nil); err != nil {
			return err
		}
		rows, err := tx.ActiveAppointmentsByDate(ctx, state.Day(appt.Date))
		if err != nil {
			return err
		}
		now := c.now()
		for _, row := range rows {
			if row.JobID != appt.JobID {
				continue
			}
			row.Status = structs.AppointmentInProgress
			row.ArrivedAt = &now
			if err := tx.UpdateAppointment(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompleteJob finishes field work and drafts the invoice from the price
// snapshot taken at creation. Lien eligibility carries over from the
// offering.
func (c *Core) CompleteJob(ctx context.Context, apptID uuid.UUID, actor string) (*structs.Invoice, error) {
	appt, err := c.store.AppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	var invoice *structs.Invoice
	err = c.store.WithDateLock(ctx, appt.Date, func(tx Store) error {
		if err := tx.TransitionJob(ctx, appt.JobID, structs.JobStatusCompleted, actor, nil); err != nil {
			return err
		}
		rows, err := tx.ActiveAppointmentsByDate(ctx, state.Day(appt.Date))
		if err != nil {
			return err
		}
		now := c.now()
		for _, row := range rows {
			if row.JobID != appt.JobID {
				continue
			}
			row.Status = structs.AppointmentCompleted
			row.CompletedAt = &now
			if err := tx.UpdateAppointment(ctx, row); err != nil {
				return err
			}
		}

		job, err := tx.JobByID(ctx, appt.JobID)
		if err != nil {
			return err
		}
		lienEligible := false
		if offs, err := tx.OfferingsByIDs(ctx, []uuid.UUID{job.ServiceOfferingID}); err == nil && len(offs) == 1 {
			lienEligible = offs[0].LienEligible
		}
		invoice = &structs.Invoice{
			JobID:        job.ID,
			CustomerID:   job.CustomerID,
			Amount:       job.PriceSnapshot,
			DueDate:      state.Day(now.AddDate(0, 0, invoiceDueDays)),
			Status:       structs.InvoiceDraft,
			LienEligible: lienEligible,
		}
		return tx.CreateInvoice(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("job completed",
		"job", appt.JobID, "invoice", invoice.ID, "amount", invoice.Amount)
	return invoice, nil
}

// CloseJob closes the books on a completed job. The invoice must be settled
// or voided first.
func (c *Core) CloseJob(ctx context.Context, jobID uuid.UUID, actor string) error {
	inv, err := c.store.InvoiceByJobID(ctx, jobID)
	if err != nil && !structs.IsKind(err, structs.ErrKindNotFound) {
		return err
	}
	if inv != nil && inv.Status != structs.InvoicePaid && inv.Status != structs.InvoiceVoid {
		return structs.NewErrStateRejection("invoice_open",
			"job %s has an open invoice (%s); settle or void it before closing", jobID, inv.Status)
	}
	return c.store.TransitionJob(ctx, jobID, structs.JobStatusClosed, actor, nil)
}

// CancelJob cancels a job and any live appointments it holds.
func (c *Core) CancelJob(ctx context.Context, jobID uuid.UUID, reason, actor string) error {
	job, err := c.store.JobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return structs.NewErrStateRejection("job_terminal",
			"job %s is already %s", jobID, job.Status)
	}

	return c.store.WithTransaction(ctx, func(tx Store) error {
		if err := tx.TransitionJob(ctx, jobID, structs.JobStatusCancelled, actor,
			pointer.Of(reason)); err != nil {
			return err
		}
		rows, err := tx.ActiveAppointmentsByJob(ctx, jobID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := tx.CancelAppointmentRow(ctx, row.ID, "job cancelled: "+reason, c.now()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Job fetches a job by id.
func (c *Core) Job(ctx context.Context, jobID uuid.UUID) (*structs.Job, error) {
	return c.store.JobByID(ctx, jobID)
}

// JobHistory returns the job's append-only transition chain, oldest first.
func (c *Core) JobHistory(ctx context.Context, jobID uuid.UUID) ([]*structs.JobStatusHistory, error) {
	return c.store.JobHistory(ctx, jobID)
}
