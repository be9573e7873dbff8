// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-set/v3"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/helper/pointer"
	"github.com/greenvale/dispatch/scheduler"
)

// CancelOptions modifies a cancellation.
type CancelOptions struct {
	Reason string
	Actor  string

	// AddToWaitlist queues the cancelled job for rebooking; the entry's
	// preferred date defaults to the cancelled appointment's date.
	AddToWaitlist           bool
	PreferredRescheduleDate *time.Time
}

// CancelResult reports a cancellation and the gap it opened.
type CancelResult struct {
	JobID        uuid.UUID  `json:"job_id"`
	Date         time.Time  `json:"date"`
	GapStart     int        `json:"gap_start_minute"`
	GapEnd       int        `json:"gap_end_minute"`
	Waitlisted   bool       `json:"waitlisted"`
	OfferedJobID *uuid.UUID `json:"offered_job_id,omitempty"`
}

// CancelAppointment cancels every appointment of the target's job on its
// date, returns the job to approved, and offers the opened gap to the
// best-ranked waitlist entry that fits. Only scheduled and confirmed
// appointments may be cancelled.
func (c *Core) CancelAppointment(ctx context.Context, apptID uuid.UUID, opts CancelOptions) (*CancelResult, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "cancel_appointment"}, time.Now())

	appt, err := c.store.AppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.Cancellable() {
		return nil, structs.NewErrStateRejection("not_cancellable",
			"appointment %s is %s; only scheduled or confirmed appointments can be cancelled",
			apptID, appt.Status)
	}

	result := &CancelResult{
		JobID:    appt.JobID,
		Date:     state.Day(appt.Date),
		GapStart: appt.StartMinute,
		GapEnd:   appt.EndMinute,
	}

	err = c.store.WithDateLock(ctx, result.Date, func(tx Store) error {
		// Multi-tech jobs hold one row per tech; cancelling one leg cancels
		// the whole visit.
		rows, err := tx.ActiveAppointmentsByDate(ctx, result.Date)
		if err != nil {
			return err
		}
		found := false
		for _, row := range rows {
			if row.JobID != appt.JobID {
				continue
			}
			if !row.Status.Cancellable() {
				return structs.NewErrStateRejection("not_cancellable",
					"appointment %s of job %s is %s", row.ID, row.JobID, row.Status)
			}
			if err := tx.CancelAppointmentRow(ctx, row.ID, opts.Reason, c.now()); err != nil {
				return err
			}
			found = true
		}
		if !found {
			return structs.NewErrNotFound("appointment", apptID.String())
		}

		if err := tx.TransitionJob(ctx, appt.JobID, structs.JobStatusApproved, opts.Actor,
			pointer.Of("appointment cancelled: "+opts.Reason)); err != nil {
			return err
		}

		if opts.AddToWaitlist {
			job, err := tx.JobByID(ctx, appt.JobID)
			if err != nil {
				return err
			}
			preferred := result.Date
			if opts.PreferredRescheduleDate != nil {
				preferred = state.Day(*opts.PreferredRescheduleDate)
			}
			if err := tx.CreateWaitlistEntry(ctx, &structs.WaitlistEntry{
				JobID:             job.ID,
				PreferredDate:     preferred,
				WindowStartMinute: job.WindowStartMinute,
				WindowEndMinute:   job.WindowEndMinute,
				Priority:          job.Priority,
			}); err != nil {
				return err
			}
			result.Waitlisted = true
		}

		offered, err := c.offerGap(ctx, tx, result.Date, appt.StartMinute, appt.EndMinute, appt.JobID)
		if err != nil {
			return err
		}
		result.OfferedJobID = offered
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("appointment cancelled",
		"appointment", apptID, "job", appt.JobID,
		"date", result.Date.Format("2006-01-02"), "reason", opts.Reason)
	return result, nil
}

// offerGap picks the best waitlist entry for an opened slot, ranked by
// priority then by how tightly the job fills the gap, and marks the
// customer notified. The job whose cancellation opened the gap is never
// offered its own slot back. Placement happens later through emergency
// insert or the next reoptimization; the offer is a notification, not a
// commitment.
func (c *Core) offerGap(ctx context.Context, tx Store, date time.Time, gapStart, gapEnd int, excludeJob uuid.UUID) (*uuid.UUID, error) {
	entries, err := tx.WaitlistByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	gap := gapEnd - gapStart

	var best *structs.WaitlistEntry
	bestSlack := 0
	for _, e := range entries {
		if e.NotifiedAt != nil || e.JobID == excludeJob {
			continue
		}
		job, err := tx.JobByID(ctx, e.JobID)
		if err != nil {
			return nil, err
		}
		if job.DurationMinutes > gap {
			continue
		}
		slack := gap - job.DurationMinutes
		if best == nil || e.Priority > best.Priority ||
			(e.Priority == best.Priority && slack < bestSlack) {
			best = e
			bestSlack = slack
		}
	}
	if best == nil {
		return nil, nil
	}

	if err := tx.MarkWaitlistNotified(ctx, best.ID, c.now()); err != nil {
		return nil, err
	}
	job, err := tx.JobByID(ctx, best.JobID)
	if err != nil {
		return nil, err
	}
	customer, err := tx.CustomerByID(ctx, job.CustomerID)
	if err == nil {
		c.notify(ctx, &customer.ID, customer.Phone, "waitlist_offer",
			fmt.Sprintf("A slot opened on %s. Reply to claim it.", date.Format("Jan 2")))
	}
	return &best.JobID, nil
}

// RescheduleRequest is an explicit slot for a rebooking: the dispatcher
// names the date, window, and optionally a different tech.
type RescheduleRequest struct {
	NewDate     time.Time
	StartMinute int
	EndMinute   int
	NewStaffID  *uuid.UUID
}

// RescheduleResult reports an atomic cancel-and-rebook.
type RescheduleResult struct {
	OldAppointmentID uuid.UUID `json:"old_appointment_id"`
	NewAppointmentID uuid.UUID `json:"new_appointment_id"`
	Date             time.Time `json:"date"`
	StaffID          uuid.UUID `json:"staff_id"`
	StartMinute      int       `json:"start_minute"`
	EndMinute        int       `json:"end_minute"`
}

// RescheduleAppointment moves a job to an explicit slot on another date:
// the old appointment cancels and the new one is created in one mutation,
// chained through RescheduledFrom. The slot must fit inside the target
// tech's availability, clear of their lunch and existing appointments;
// travel efficiency is the next reoptimization's concern, not a condition
// here.
func (c *Core) RescheduleAppointment(ctx context.Context, apptID uuid.UUID, req *RescheduleRequest, actor string) (*RescheduleResult, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "reschedule"}, time.Now())

	appt, err := c.store.AppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.Cancellable() {
		return nil, structs.NewErrStateRejection("not_reschedulable",
			"appointment %s is %s; only scheduled or confirmed appointments can be rescheduled",
			apptID, appt.Status)
	}
	oldDate := state.Day(appt.Date)
	newDate := state.Day(req.NewDate)
	if oldDate.Equal(newDate) {
		return nil, structs.NewErrValidation("same_date",
			"appointment %s is already on %s; use reoptimize to move within a day",
			apptID, newDate.Format("2006-01-02"))
	}
	if req.StartMinute < 0 || req.EndMinute > 24*60 || req.StartMinute >= req.EndMinute {
		return nil, structs.NewErrValidation("bad_window",
			"invalid slot [%d, %d)", req.StartMinute, req.EndMinute)
	}

	job, err := c.store.JobByID(ctx, appt.JobID)
	if err != nil {
		return nil, err
	}
	if job.RequiredStaff > 1 {
		return nil, structs.NewErrValidation("co_staffed",
			"job %s needs %d techs; co-staffed visits reschedule through the optimizer",
			job.ID, job.RequiredStaff)
	}
	if req.EndMinute-req.StartMinute < job.DurationMinutes {
		return nil, structs.NewErrValidation("slot_too_short",
			"slot is %d minutes, job needs %d", req.EndMinute-req.StartMinute, job.DurationMinutes)
	}

	staffID := appt.StaffID
	if req.NewStaffID != nil {
		staffID = *req.NewStaffID
	}
	staff, err := c.store.StaffByID(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if !staff.Routable() {
		return nil, structs.NewErrValidation("not_routable", "staff %s is not schedulable", staffID)
	}
	if !set.From([]string(staff.Equipment)).ContainsSlice([]string(job.RequiredEquipment)) {
		return nil, structs.NewErrInfeasible("reschedule_infeasible",
			fmt.Sprintf("staff %s lacks required equipment", staffID),
			[]string{string(scheduler.ReasonEquipment)})
	}

	result := &RescheduleResult{
		OldAppointmentID: apptID,
		Date:             newDate,
		StaffID:          staffID,
		StartMinute:      req.StartMinute,
		EndMinute:        req.EndMinute,
	}

	// Both dates lock in chronological order so two opposing reschedules
	// cannot deadlock.
	first, second := oldDate, newDate
	if second.Before(first) {
		first, second = second, first
	}
	err = c.store.WithDateLock(ctx, first, func(tx1 Store) error {
		return tx1.WithDateLock(ctx, second, func(tx Store) error {
			if err := c.checkSlotFree(ctx, tx, staffID, newDate, req.StartMinute, req.EndMinute); err != nil {
				return err
			}

			oldRows, err := tx.ActiveAppointmentsByDate(ctx, oldDate)
			if err != nil {
				return err
			}
			for _, row := range oldRows {
				if row.JobID != appt.JobID {
					continue
				}
				if !row.Status.Cancellable() {
					return structs.NewErrStateRejection("not_reschedulable",
						"appointment %s of job %s is %s", row.ID, row.JobID, row.Status)
				}
				if err := tx.CancelAppointmentRow(ctx, row.ID,
					"rescheduled to "+newDate.Format("2006-01-02"), c.now()); err != nil {
					return err
				}
			}

			na := &structs.Appointment{
				ID:              uuid.New(),
				JobID:           appt.JobID,
				StaffID:         staffID,
				Date:            newDate,
				StartMinute:     req.StartMinute,
				EndMinute:       req.EndMinute,
				Status:          structs.AppointmentScheduled,
				RescheduledFrom: pointer.Of(apptID),
			}
			result.NewAppointmentID = na.ID
			return tx.CreateAppointments(ctx, []*structs.Appointment{na})
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("appointment rescheduled",
		"appointment", apptID, "job", appt.JobID,
		"from", oldDate.Format("2006-01-02"), "to", newDate.Format("2006-01-02"),
		"staff", result.StaffID, "start", result.StartMinute)
	return result, nil
}

// checkSlotFree validates an explicit slot against the tech's availability
// window, lunch, and existing appointments on the date.
func (c *Core) checkSlotFree(ctx context.Context, tx Store, staffID uuid.UUID, date time.Time, start, end int) error {
	avail, err := tx.AvailabilityFor(ctx, staffID, date)
	if err != nil {
		return err
	}
	if !avail.IsAvailable {
		return structs.NewErrStateRejection("staff_unavailable",
			"staff %s is not available on %s", staffID, date.Format("2006-01-02"))
	}
	if start < avail.StartMinute || end > avail.EndMinute {
		return structs.NewErrInfeasible("reschedule_infeasible",
			fmt.Sprintf("slot [%d, %d) is outside the shift [%d, %d)",
				start, end, avail.StartMinute, avail.EndMinute),
			[]string{string(scheduler.ReasonWindow)})
	}
	if avail.LunchStartMinute != nil {
		ls, le := *avail.LunchStartMinute, *avail.LunchStartMinute+avail.LunchDurationMinutes
		if start < le && ls < end {
			return structs.NewErrInfeasible("reschedule_infeasible",
				fmt.Sprintf("slot [%d, %d) overlaps lunch [%d, %d)", start, end, ls, le),
				[]string{string(scheduler.ReasonWindow)})
		}
	}

	rows, err := tx.ActiveAppointmentsByStaffDate(ctx, staffID, date)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if start < row.EndMinute && row.StartMinute < end {
			return structs.NewErrStateRejection("slot_taken",
				"slot [%d, %d) overlaps appointment %s", start, end, row.ID)
		}
	}
	return nil
}

// Waitlist lists a date's pending entries, priority first.
func (c *Core) Waitlist(ctx context.Context, date time.Time) ([]*structs.WaitlistEntry, error) {
	return c.store.WaitlistByDate(ctx, state.Day(date))
}

// GapRequest names an open slot a dispatcher wants candidates for.
type GapRequest struct {
	Date        time.Time
	StartMinute int
	EndMinute   int

	// StaffID narrows the candidates to jobs the named tech is equipped for.
	StaffID *uuid.UUID
}

// GapSuggestion is one job that would fit the gap.
type GapSuggestion struct {
	JobID           uuid.UUID `json:"job_id"`
	Source          string    `json:"source"`
	Priority        int       `json:"priority"`
	DurationMinutes int       `json:"duration_minutes"`
	SlackMinutes    int       `json:"slack_minutes"`
}

// Gap candidate sources.
const (
	GapSourceWaitlist = "waitlist"
	GapSourceApproved = "approved"
)

// FillGap ranks jobs that could fill an open slot: waitlist entries for the
// date first, then the approved pool. Candidates must fit the gap's length,
// their own preferred window, and (when a tech is named) that tech's
// equipment. Ranked priority first, then tightest fit. Pure read; booking
// goes through emergency-insert or the next reoptimization.
func (c *Core) FillGap(ctx context.Context, req *GapRequest) ([]*GapSuggestion, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "fill_gap"}, time.Now())
	date := state.Day(req.Date)
	gap := req.EndMinute - req.StartMinute
	if req.StartMinute < 0 || req.EndMinute > 24*60 || gap <= 0 {
		return nil, structs.NewErrValidation("bad_window",
			"invalid gap [%d, %d)", req.StartMinute, req.EndMinute)
	}

	var equipped *set.Set[string]
	if req.StaffID != nil {
		staff, err := c.store.StaffByID(ctx, *req.StaffID)
		if err != nil {
			return nil, err
		}
		equipped = set.From([]string(staff.Equipment))
	}

	entries, err := c.store.WaitlistByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	pool, err := c.store.SchedulableJobsForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	source := make(map[uuid.UUID]string)
	jobs := make(map[uuid.UUID]*structs.Job)
	for _, job := range pool {
		source[job.ID] = GapSourceApproved
		jobs[job.ID] = job
	}
	var missing []uuid.UUID
	for _, e := range entries {
		if _, ok := source[e.JobID]; !ok {
			missing = append(missing, e.JobID)
		}
		source[e.JobID] = GapSourceWaitlist
	}
	if len(missing) > 0 {
		fetched, err := c.store.JobsByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, job := range fetched {
			jobs[job.ID] = job
		}
	}

	var out []*GapSuggestion
	for id, src := range source {
		job := jobs[id]
		if job == nil || job.Status != structs.JobStatusApproved {
			continue
		}
		if job.DurationMinutes > gap {
			continue
		}
		if !windowFits(job, req.StartMinute, req.EndMinute) {
			continue
		}
		if equipped != nil && !equipped.ContainsSlice([]string(job.RequiredEquipment)) {
			continue
		}
		out = append(out, &GapSuggestion{
			JobID:           id,
			Source:          src,
			Priority:        job.Priority,
			DurationMinutes: job.DurationMinutes,
			SlackMinutes:    gap - job.DurationMinutes,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].SlackMinutes != out[j].SlackMinutes {
			return out[i].SlackMinutes < out[j].SlackMinutes
		}
		return out[i].JobID.String() < out[j].JobID.String()
	})
	return out, nil
}

// windowFits reports whether the job's preferred window leaves room for its
// full duration inside the gap. Jobs without a window only need the gap.
func windowFits(job *structs.Job, gapStart, gapEnd int) bool {
	ws, we := gapStart, gapEnd
	if job.WindowStartMinute != nil && *job.WindowStartMinute > ws {
		ws = *job.WindowStartMinute
	}
	if job.WindowEndMinute != nil && *job.WindowEndMinute < we {
		we = *job.WindowEndMinute
	}
	return we-ws >= job.DurationMinutes
}
