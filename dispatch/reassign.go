// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/helper/pointer"
	"github.com/greenvale/dispatch/scheduler"
)

// reassignInsertBudget is the per-job placement allowance while the date
// lock is held.
const reassignInsertBudget = scheduler.DefaultInsertBudget

// SetAvailability validates and upserts a tech's working window for a date.
// The new window must still contain every active appointment the tech holds
// that day; taking a tech off booked work goes through MarkUnavailable or
// ReassignStaff so the freed jobs land somewhere.
func (c *Core) SetAvailability(ctx context.Context, row *structs.StaffAvailability) error {
	if err := row.Validate(); err != nil {
		return err
	}
	if _, err := c.store.StaffByID(ctx, row.StaffID); err != nil {
		return err
	}
	row.Date = state.Day(row.Date)
	return c.store.WithDateLock(ctx, row.Date, func(tx Store) error {
		booked, err := tx.ActiveAppointmentsByStaffDate(ctx, row.StaffID, row.Date)
		if err != nil {
			return err
		}
		for _, ap := range booked {
			if !row.IsAvailable {
				return structs.NewErrStateRejection("availability_conflict",
					"staff %s holds appointment %s on %s; use mark-unavailable or reassign-staff first",
					row.StaffID, ap.ID, row.Date.Format("2006-01-02"))
			}
			if ap.StartMinute < row.StartMinute || ap.EndMinute > row.EndMinute {
				return structs.NewErrStateRejection("availability_conflict",
					"window [%d, %d) excludes appointment %s at [%d, %d); use mark-unavailable or reassign-staff first",
					row.StartMinute, row.EndMinute, ap.ID, ap.StartMinute, ap.EndMinute)
			}
			if row.LunchStartMinute != nil {
				ls, le := *row.LunchStartMinute, *row.LunchStartMinute+row.LunchDurationMinutes
				if ap.StartMinute < le && ls < ap.EndMinute {
					return structs.NewErrStateRejection("availability_conflict",
						"lunch [%d, %d) overlaps appointment %s at [%d, %d)",
						ls, le, ap.ID, ap.StartMinute, ap.EndMinute)
				}
			}
		}
		return tx.UpsertAvailability(ctx, row)
	})
}

// UnavailableResult reports what marking a tech off a date freed up.
type UnavailableResult struct {
	StaffID              uuid.UUID   `json:"staff_id"`
	Date                 time.Time   `json:"date"`
	AffectedAppointments int         `json:"affected_appointments"`
	FreedJobs            []uuid.UUID `json:"freed_jobs,omitempty"`
}

// MarkUnavailable flags a tech off for a date and cancels their day. The
// freed jobs return to approved; placing them elsewhere is ReassignStaff's
// job, or the next reoptimization's.
func (c *Core) MarkUnavailable(ctx context.Context, staffID uuid.UUID, date time.Time, reason, actor string) (*UnavailableResult, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "mark_unavailable"}, time.Now())
	date = state.Day(date)

	if _, err := c.store.StaffByID(ctx, staffID); err != nil {
		return nil, err
	}

	result := &UnavailableResult{StaffID: staffID, Date: date}

	err := c.store.WithDateLock(ctx, date, func(tx Store) error {
		if err := tx.SetAvailabilityFlag(ctx, staffID, date, false); err != nil {
			// No availability row means the tech was never rostered; the
			// flag flip is moot but the day may still hold appointments.
			if !structs.IsKind(err, structs.ErrKindNotFound) {
				return err
			}
		}

		leaving, err := tx.ActiveAppointmentsByStaffDate(ctx, staffID, date)
		if err != nil {
			return err
		}
		seen := make(map[uuid.UUID]struct{})
		for _, ap := range leaving {
			// Work already underway or finished stays on the books; only
			// scheduled and confirmed visits are pulled.
			if !ap.Status.Cancellable() {
				continue
			}
			if err := tx.CancelAppointmentRow(ctx, ap.ID, "staff unavailable: "+reason, c.now()); err != nil {
				return err
			}
			result.AffectedAppointments++
			if _, ok := seen[ap.JobID]; ok {
				continue
			}
			seen[ap.JobID] = struct{}{}
			if err := tx.TransitionJob(ctx, ap.JobID, structs.JobStatusApproved, actor,
				pointer.Of("staff unavailable: "+reason)); err != nil {
				return err
			}
			result.FreedJobs = append(result.FreedJobs, ap.JobID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("staff marked unavailable",
		"staff", staffID, "date", date.Format("2006-01-02"),
		"affected", result.AffectedAppointments)
	return result, nil
}

// ReassignResult reports a coverage attempt onto one target tech.
type ReassignResult struct {
	FromStaffID uuid.UUID                     `json:"from_staff_id"`
	ToStaffID   uuid.UUID                     `json:"to_staff_id"`
	Date        time.Time                     `json:"date"`
	Moved       []*MovedJob                   `json:"moved,omitempty"`
	Waitlisted  []uuid.UUID                   `json:"waitlisted,omitempty"`
	Record      *structs.ScheduleReassignment `json:"record"`
}

// MovedJob is one job relocated to the covering tech.
type MovedJob struct {
	JobID       uuid.UUID `json:"job_id"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
}

// ReassignStaff splices the jobs freed by MarkUnavailable onto one covering
// tech, highest priority first. Work the target cannot absorb goes to the
// waitlist; displacing the target's existing appointments is never allowed.
func (c *Core) ReassignStaff(ctx context.Context, fromID, toID uuid.UUID, date time.Time, actor string) (*ReassignResult, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "reassign_staff"}, time.Now())
	date = state.Day(date)

	if fromID == toID {
		return nil, structs.NewErrValidation("same_staff", "cannot reassign a tech to themselves")
	}
	if _, err := c.store.StaffByID(ctx, fromID); err != nil {
		return nil, err
	}
	target, err := c.store.StaffByID(ctx, toID)
	if err != nil {
		return nil, err
	}
	if !target.Routable() {
		return nil, structs.NewErrValidation("not_routable", "staff %s is not schedulable", toID)
	}
	avail, err := c.store.AvailabilityFor(ctx, toID, date)
	if err != nil {
		return nil, err
	}
	if !avail.IsAvailable {
		return nil, structs.NewErrStateRejection("target_unavailable",
			"staff %s is not available on %s", toID, date.Format("2006-01-02"))
	}

	result := &ReassignResult{FromStaffID: fromID, ToStaffID: toID, Date: date}

	err = c.store.WithDateLock(ctx, date, func(tx Store) error {
		jobs, err := tx.ReassignableJobs(ctx, fromID, date)
		if err != nil {
			return err
		}

		record := &structs.ScheduleReassignment{
			OriginalStaffID: fromID,
			NewStaffID:      pointer.Of(toID),
			Date:            date,
			Reason:          "coverage",
		}

		for _, job := range jobs {
			snap, err := c.buildSnapshot(ctx, tx, date, snapshotOptions{
				extraJobs: []uuid.UUID{job.ID},
				onlyStaff: &toID,
			})
			if err != nil {
				return err
			}

			insCtx, cancel := context.WithTimeout(ctx, reassignInsertBudget)
			res := c.optimizer.Insert(insCtx, snap.input, job.ID)
			cancel()

			// Bumping the target's own work to cover an absence trades one
			// broken promise for another.
			if !res.Success || len(res.Bumped) > 0 {
				if err := tx.CreateWaitlistEntry(ctx, &structs.WaitlistEntry{
					JobID:             job.ID,
					PreferredDate:     date,
					WindowStartMinute: job.WindowStartMinute,
					WindowEndMinute:   job.WindowEndMinute,
					Priority:          job.Priority,
				}); err != nil {
					return err
				}
				result.Waitlisted = append(result.Waitlisted, job.ID)
				continue
			}

			if err := c.applyCoverage(ctx, tx, snap, res, job.ID, date); err != nil {
				return err
			}
			if err := tx.TransitionJob(ctx, job.ID, structs.JobStatusScheduled, actor,
				pointer.Of("reassigned for coverage")); err != nil {
				return err
			}
			record.JobsReassigned++
			result.Moved = append(result.Moved, &MovedJob{
				JobID:       job.ID,
				StartMinute: res.StartMinute,
				EndMinute:   res.EndMinute,
			})
		}

		result.Record = record
		return tx.CreateReassignment(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("staff reassigned",
		"from", fromID, "to", toID, "date", date.Format("2006-01-02"),
		"moved", len(result.Moved), "waitlisted", len(result.Waitlisted))
	return result, nil
}

// applyCoverage commits one placement result: new rows for the moved job,
// in-place updates for any rippled movable rows.
func (c *Core) applyCoverage(ctx context.Context, tx Store, snap *daySnapshot, res *scheduler.InsertResult, jobID uuid.UUID, date time.Time) error {
	byJob := make(map[uuid.UUID][]*scheduler.Assignment)
	for _, asn := range res.Assignments {
		byJob[asn.JobID] = append(byJob[asn.JobID], asn)
	}

	var toCreate []*structs.Appointment
	for jid, asns := range byJob {
		rows := append([]*structs.Appointment(nil), snap.apptByJob[jid]...)
		for _, asn := range asns {
			var row *structs.Appointment
			for i, r := range rows {
				if r != nil && !r.Status.Pinned() {
					row = r
					rows[i] = nil
					break
				}
			}
			switch {
			case row != nil:
				row.StaffID = asn.StaffID
				row.StartMinute = asn.StartMinute
				row.EndMinute = asn.EndMinute
				row.RouteOrder = asn.RouteOrder
				if err := tx.UpdateAppointment(ctx, row); err != nil {
					return err
				}
			case jid == jobID:
				toCreate = append(toCreate, &structs.Appointment{
					JobID:       jid,
					StaffID:     asn.StaffID,
					Date:        date,
					StartMinute: asn.StartMinute,
					EndMinute:   asn.EndMinute,
					Status:      structs.AppointmentScheduled,
					RouteOrder:  asn.RouteOrder,
				})
			}
		}
	}
	return tx.CreateAppointments(ctx, toCreate)
}

// CoverageOption summarizes one candidate tech's room to absorb a leaving
// tech's day.
type CoverageOption struct {
	StaffID          uuid.UUID `json:"staff_id"`
	RemainingMinutes int       `json:"remaining_minutes"`
	CanCoverAll      bool      `json:"can_cover_all"`
}

// CoverageOptions reports, for every other rostered tech on the date, the
// capacity left in their day and whether they alone could absorb all of the
// given tech's jobs. Pure read; nothing moves.
func (c *Core) CoverageOptions(ctx context.Context, staffID uuid.UUID, date time.Time) ([]*CoverageOption, error) {
	date = state.Day(date)

	if _, err := c.store.StaffByID(ctx, staffID); err != nil {
		return nil, err
	}
	leaving, err := c.store.ActiveAppointmentsByStaffDate(ctx, staffID, date)
	if err != nil {
		return nil, err
	}
	jobIDs := make([]uuid.UUID, 0, len(leaving))
	seen := make(map[uuid.UUID]struct{})
	for _, ap := range leaving {
		if _, ok := seen[ap.JobID]; !ok {
			seen[ap.JobID] = struct{}{}
			jobIDs = append(jobIDs, ap.JobID)
		}
	}

	roster, availByStaff, err := c.rosterForDate(ctx, c.store, date, &staffID)
	if err != nil {
		return nil, err
	}

	var options []*CoverageOption
	for _, cand := range roster {
		avail := availByStaff[cand.ID]
		booked := 0
		rows, err := c.store.ActiveAppointmentsByStaffDate(ctx, cand.ID, date)
		if err != nil {
			return nil, err
		}
		for _, ap := range rows {
			booked += ap.EndMinute - ap.StartMinute
		}
		opt := &CoverageOption{
			StaffID:          cand.ID,
			RemainingMinutes: avail.WorkingMinutes() - booked,
		}
		if len(jobIDs) > 0 {
			opt.CanCoverAll, err = c.canCoverAll(ctx, date, cand.ID, jobIDs)
			if err != nil {
				return nil, err
			}
		}
		options = append(options, opt)
	}
	sort.Slice(options, func(i, j int) bool {
		return options[i].StaffID.String() < options[j].StaffID.String()
	})
	return options, nil
}

// canCoverAll dry-runs inserting every freed job onto one candidate,
// committing each placement into the working snapshot so later jobs see the
// earlier ones. Bumping disqualifies the candidate.
func (c *Core) canCoverAll(ctx context.Context, date time.Time, candID uuid.UUID, jobIDs []uuid.UUID) (bool, error) {
	snap, err := c.buildSnapshot(ctx, c.store, date, snapshotOptions{
		extraJobs: jobIDs,
		onlyStaff: &candID,
	})
	if err != nil {
		return false, err
	}
	for _, jobID := range jobIDs {
		insCtx, cancel := context.WithTimeout(ctx, reassignInsertBudget)
		res := c.optimizer.Insert(insCtx, snap.input, jobID)
		cancel()
		if !res.Success || len(res.Bumped) > 0 {
			return false, nil
		}
		for _, asn := range res.Assignments {
			if asn.JobID == jobID {
				snap.input.Current = append(snap.input.Current, asn)
			}
		}
	}
	return true, nil
}
