// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/helper/pointer"
	"github.com/greenvale/dispatch/scheduler"
)

// InsertOutcome is the emergency insertion result surfaced to callers.
type InsertOutcome struct {
	JobID       uuid.UUID     `json:"job_id"`
	Date        time.Time     `json:"date"`
	StaffID     uuid.UUID     `json:"assigned_staff_id"`
	StartMinute int           `json:"start_minute"`
	EndMinute   int           `json:"end_minute"`
	BumpedJobs  []uuid.UUID   `json:"bumped_jobs,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// EmergencyInsert splices an urgent approved job into an already planned
// date, displacing strictly lower-priority work when nothing fits otherwise.
// Displaced jobs return to approved and land on the waitlist. The placement
// search runs outside the date lock; the commit re-validates the snapshot.
func (c *Core) EmergencyInsert(ctx context.Context, jobID uuid.UUID, date time.Time, budget time.Duration, actor string) (*InsertOutcome, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "emergency_insert"}, time.Now())
	date = state.Day(date)

	job, err := c.store.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != structs.JobStatusApproved {
		return nil, structs.NewErrStateRejection("job_not_approved",
			"job %s is %s; only approved jobs can be inserted", jobID, job.Status)
	}
	if job.Priority < structs.PriorityUrgent {
		return nil, structs.NewErrValidation("priority_too_low",
			"job %s has priority %d; emergency insertion requires at least %d",
			jobID, job.Priority, structs.PriorityUrgent)
	}

	snap, err := c.buildSnapshot(ctx, c.store, date, snapshotOptions{
		extraJobs: []uuid.UUID{jobID},
	})
	if err != nil {
		return nil, err
	}

	if budget == 0 {
		budget = scheduler.DefaultInsertBudget
	}
	budget = scheduler.ClampBudget(budget)
	insCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	res := c.optimizer.Insert(insCtx, snap.input, jobID)
	if !res.Success {
		return nil, structs.NewErrInfeasible("insert_infeasible",
			fmt.Sprintf("no feasible placement for job %s on %s", jobID, date.Format("2006-01-02")),
			res.Violations)
	}

	outcome := &InsertOutcome{
		JobID:       jobID,
		Date:        date,
		StartMinute: res.StartMinute,
		EndMinute:   res.EndMinute,
		BumpedJobs:  res.Bumped,
		Elapsed:     res.Elapsed,
	}
	if res.StaffID != nil {
		outcome.StaffID = *res.StaffID
	}

	err = c.store.WithDateLock(ctx, date, func(tx Store) error {
		if err := snap.verifyUnchanged(ctx, tx); err != nil {
			return err
		}

		bumped := make(map[uuid.UUID]struct{}, len(res.Bumped))
		for _, id := range res.Bumped {
			bumped[id] = struct{}{}
		}

		// Displaced jobs: cancel their rows, return to approved, waitlist.
		for id := range bumped {
			for _, row := range snap.apptByJob[id] {
				if err := tx.CancelAppointmentRow(ctx, row.ID,
					"bumped by emergency insertion", c.now()); err != nil {
					return err
				}
			}
			if err := tx.TransitionJob(ctx, id, structs.JobStatusApproved, actor,
				pointer.Of("bumped by emergency insertion")); err != nil {
				return err
			}
			victim := snap.jobs[id]
			if err := tx.CreateWaitlistEntry(ctx, &structs.WaitlistEntry{
				JobID:             id,
				PreferredDate:     date,
				WindowStartMinute: victim.WindowStartMinute,
				WindowEndMinute:   victim.WindowEndMinute,
				Priority:          victim.Priority,
			}); err != nil {
				return err
			}
		}

		// The solver returns the full updated day; ripple moves shift other
		// movable rows, so reconcile every assignment.
		byJob := make(map[uuid.UUID][]*scheduler.Assignment)
		for _, asn := range res.Assignments {
			byJob[asn.JobID] = append(byJob[asn.JobID], asn)
		}
		var toCreate []*structs.Appointment
		for jid, asns := range byJob {
			if _, wasBumped := bumped[jid]; wasBumped {
				continue
			}
			rows := snap.apptByJob[jid]
			for _, asn := range asns {
				var row *structs.Appointment
				for i, r := range rows {
					if r != nil && !r.Status.Pinned() {
						row = r
						rows[i] = nil
						break
					}
				}
				if row != nil {
					row.StaffID = asn.StaffID
					row.StartMinute = asn.StartMinute
					row.EndMinute = asn.EndMinute
					row.RouteOrder = asn.RouteOrder
					if err := tx.UpdateAppointment(ctx, row); err != nil {
						return err
					}
					continue
				}
				if jid != jobID {
					// Pinned rows keep their slots; no row to touch.
					continue
				}
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
		if err := tx.CreateAppointments(ctx, toCreate); err != nil {
			return err
		}

		return tx.TransitionJob(ctx, jobID, structs.JobStatusScheduled, actor,
			pointer.Of("emergency insertion"))
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("emergency insertion committed",
		"job", jobID, "date", date.Format("2006-01-02"),
		"staff", outcome.StaffID, "start", outcome.StartMinute,
		"bumped", len(outcome.BumpedJobs), "elapsed", outcome.Elapsed)
	return outcome, nil
}
