// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/google/uuid"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/scheduler"
)

// scheduleRetryAttempts bounds the snapshot-solve-apply loop when a
// concurrent mutation invalidates the snapshot mid-solve.
const scheduleRetryAttempts = 3

// GenerateOptions tunes one schedule generation run.
type GenerateOptions struct {
	// Budget is the solver wall-clock allowance, clamped to the legal range.
	Budget time.Duration

	// Seed fixes the solver's random source for reproducible runs.
	Seed *int64

	// MaxIterations caps the improvement loop; zero means clock-bound only.
	MaxIterations int

	// Actor is recorded on every lifecycle transition the apply step makes.
	Actor string
}

// GenerateSchedule plans one date: the approved job pool plus any existing
// appointments are solved together, then the result is committed under the
// date lock. Existing pinned appointments never move; freshly scheduled ones
// may. The solve runs outside the lock; when a concurrent mutation
// invalidates the snapshot the whole cycle retries.
func (c *Core) GenerateSchedule(ctx context.Context, date time.Time, opts GenerateOptions) (*scheduler.ScheduleSolution, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "generate"}, time.Now())
	date = state.Day(date)

	var sol *scheduler.ScheduleSolution
	err := retry.Do(
		func() error {
			snap, err := c.buildSnapshot(ctx, c.store, date, snapshotOptions{includeApproved: true})
			if err != nil {
				return err
			}
			s := c.optimizer.Plan(ctx, snap.input, scheduler.Options{
				Budget:        opts.Budget,
				Seed:          opts.Seed,
				MaxIterations: opts.MaxIterations,
			})
			err = c.store.WithDateLock(ctx, date, func(tx Store) error {
				if err := snap.verifyUnchanged(ctx, tx); err != nil {
					return err
				}
				return c.applySolution(ctx, tx, snap, s, opts.Actor)
			})
			if err != nil {
				return err
			}
			sol = s
			return nil
		},
		retry.Attempts(scheduleRetryAttempts),
		retry.RetryIf(func(err error) bool { return structs.IsKind(err, structs.ErrKindTransient) }),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}
	c.logger.Info("schedule generated",
		"date", date.Format("2006-01-02"),
		"assigned", len(sol.Assignments), "unassigned", len(sol.Unassigned),
		"hard", sol.HardScore, "soft", sol.SoftScore,
		"iterations", sol.Iterations, "elapsed", sol.Elapsed)
	return sol, nil
}

// ReoptimizeSchedule re-solves an already planned date. Appointments past
// confirmation keep their exact slots; only freshly scheduled ones move. New
// approved work is pulled in opportunistically.
func (c *Core) ReoptimizeSchedule(ctx context.Context, date time.Time, opts GenerateOptions) (*scheduler.ScheduleSolution, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "reoptimize"}, time.Now())
	// Reoptimize is Generate with the same snapshot semantics: pinned rows
	// enter as fixed slots, scheduled rows as movable current assignments.
	return c.GenerateSchedule(ctx, date, opts)
}

// applySolution commits a solver result inside the caller's date-locked
// transaction: free rows are updated in place, new work gets rows plus the
// approved -> scheduled transition, and displaced work falls back to the
// waitlist with its job returned to approved.
func (c *Core) applySolution(ctx context.Context, tx Store, snap *daySnapshot, sol *scheduler.ScheduleSolution, actor string) error {
	byJob := make(map[uuid.UUID][]*scheduler.Assignment)
	for _, asn := range sol.Assignments {
		byJob[asn.JobID] = append(byJob[asn.JobID], asn)
	}

	// Placing a waitlisted job retires its waitlist entries.
	waitlisted, err := tx.WaitlistByDate(ctx, snap.date)
	if err != nil {
		return err
	}
	entriesByJob := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range waitlisted {
		entriesByJob[e.JobID] = append(entriesByJob[e.JobID], e.ID)
	}

	var toCreate []*structs.Appointment

	for jobID, asns := range byJob {
		existing := snap.apptByJob[jobID]

		var pinnedRows, freeRows []*structs.Appointment
		for _, ap := range existing {
			if ap.Status.Pinned() {
				pinnedRows = append(pinnedRows, ap)
			} else {
				freeRows = append(freeRows, ap)
			}
		}

		// Pinned rows are untouched; drop the assignments that mirror them.
		remaining := asns[:0]
		for _, asn := range asns {
			matched := false
			for i, row := range pinnedRows {
				if row != nil && row.StaffID == asn.StaffID && row.StartMinute == asn.StartMinute {
					pinnedRows[i] = nil
					matched = true
					break
				}
			}
			if !matched {
				remaining = append(remaining, asn)
			}
		}

		sort.Slice(remaining, func(i, j int) bool {
			return remaining[i].StaffID.String() < remaining[j].StaffID.String()
		})

		for _, asn := range remaining {
			if len(freeRows) > 0 {
				row := freeRows[0]
				freeRows = freeRows[1:]
				row.StaffID = asn.StaffID
				row.StartMinute = asn.StartMinute
				row.EndMinute = asn.EndMinute
				row.RouteOrder = asn.RouteOrder
				if err := tx.UpdateAppointment(ctx, row); err != nil {
					return err
				}
				continue
			}
			toCreate = append(toCreate, &structs.Appointment{
				JobID:       jobID,
				StaffID:     asn.StaffID,
				Date:        snap.date,
				StartMinute: asn.StartMinute,
				EndMinute:   asn.EndMinute,
				Status:      structs.AppointmentScheduled,
				RouteOrder:  asn.RouteOrder,
			})
		}

		// A job gaining its first appointment moves to scheduled and comes
		// off the waitlist.
		if len(existing) == 0 {
			if err := tx.TransitionJob(ctx, jobID, structs.JobStatusScheduled, actor, nil); err != nil {
				return err
			}
			for _, entryID := range entriesByJob[jobID] {
				if err := tx.DeleteWaitlistEntry(ctx, entryID); err != nil {
					return err
				}
			}
		}

		// Surplus free rows mean the solver shrank the job's occurrence
		// count, which only happens when the whole job went unassigned and
		// is handled below; anything left here is cancelled defensively.
		for _, row := range freeRows {
			if err := tx.CancelAppointmentRow(ctx, row.ID, "superseded by reoptimization", c.now()); err != nil {
				return err
			}
		}
	}

	if err := tx.CreateAppointments(ctx, toCreate); err != nil {
		return err
	}

	// Jobs the solver dropped: cancel their movable rows, return them to
	// approved and park them on the waitlist.
	for _, uj := range sol.Unassigned {
		existing := snap.apptByJob[uj.JobID]
		if len(existing) == 0 {
			continue
		}
		hadFree := false
		for _, row := range existing {
			if row.Status.Pinned() {
				continue
			}
			hadFree = true
			reason := fmt.Sprintf("displaced by reoptimization: %s", uj.Reason)
			if err := tx.CancelAppointmentRow(ctx, row.ID, reason, c.now()); err != nil {
				return err
			}
		}
		if !hadFree {
			continue
		}
		if err := tx.TransitionJob(ctx, uj.JobID, structs.JobStatusApproved, actor, nil); err != nil {
			return err
		}
		job := snap.jobs[uj.JobID]
		if err := tx.CreateWaitlistEntry(ctx, &structs.WaitlistEntry{
			JobID:             uj.JobID,
			PreferredDate:     snap.date,
			WindowStartMinute: job.WindowStartMinute,
			WindowEndMinute:   job.WindowEndMinute,
			Priority:          job.Priority,
		}); err != nil {
			return err
		}
	}

	return nil
}

// StaffCapacity is one tech's utilization on a date.
type StaffCapacity struct {
	StaffID          uuid.UUID `json:"staff_id"`
	AvailableMinutes int       `json:"available_minutes"`
	BookedMinutes    int       `json:"booked_minutes"`
	Appointments     int       `json:"appointments"`
	Utilization      float64   `json:"utilization"`
}

// CapacityReport summarizes a date's remaining room.
type CapacityReport struct {
	Date             time.Time        `json:"date"`
	Staff            []*StaffCapacity `json:"staff"`
	TotalAvailable   int              `json:"total_available_minutes"`
	TotalBooked      int              `json:"total_booked_minutes"`
	WaitlistedJobs   int              `json:"waitlisted_jobs"`
	UnderfilledStaff int              `json:"underfilled_staff"`
}

// Capacity computes per-tech utilization for a date without touching the
// schedule. Reads take no locks.
func (c *Core) Capacity(ctx context.Context, date time.Time) (*CapacityReport, error) {
	date = state.Day(date)

	specs, availByStaff, err := c.rosterForDate(ctx, c.store, date, nil)
	if err != nil {
		return nil, err
	}
	appts, err := c.store.ActiveAppointmentsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	waitlist, err := c.store.WaitlistByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	booked := make(map[uuid.UUID]int)
	count := make(map[uuid.UUID]int)
	for _, ap := range appts {
		booked[ap.StaffID] += ap.EndMinute - ap.StartMinute
		count[ap.StaffID]++
	}

	report := &CapacityReport{Date: date, WaitlistedJobs: len(waitlist)}
	for _, spec := range specs {
		avail := availByStaff[spec.ID].WorkingMinutes()
		sc := &StaffCapacity{
			StaffID:          spec.ID,
			AvailableMinutes: avail,
			BookedMinutes:    booked[spec.ID],
			Appointments:     count[spec.ID],
		}
		if avail > 0 {
			sc.Utilization = float64(sc.BookedMinutes) / float64(avail)
		}
		if sc.Utilization < 0.5 {
			report.UnderfilledStaff++
		}
		report.TotalAvailable += avail
		report.TotalBooked += sc.BookedMinutes
		report.Staff = append(report.Staff, sc)
	}
	sort.Slice(report.Staff, func(i, j int) bool {
		return report.Staff[i].StaffID.String() < report.Staff[j].StaffID.String()
	})
	return report, nil
}

// VerifySchedule runs the constraint checker over the live day and reports
// any hard violations; a read-only consistency check.
func (c *Core) VerifySchedule(ctx context.Context, date time.Time) (scheduler.Score, []string, error) {
	snap, err := c.buildSnapshot(ctx, c.store, date, snapshotOptions{})
	if err != nil {
		return scheduler.Score{}, nil, err
	}
	score, violations := scheduler.CheckDay(snap.input, c.oracle)
	return score, violations, nil
}
