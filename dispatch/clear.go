// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/helper/pointer"
)

// ClearSchedule wipes a date's schedule atomically: every active appointment
// is captured into a versioned snapshot, its job returned to approved, and
// the rows deleted, all under the date lock with an audit record. Days with
// work in progress or completed refuse to clear.
func (c *Core) ClearSchedule(ctx context.Context, date time.Time, clearedBy, notes string) (*structs.ScheduleClearAudit, error) {
	defer metrics.MeasureSince([]string{"dispatch", "core", "clear"}, time.Now())
	date = state.Day(date)

	var audit *structs.ScheduleClearAudit
	err := c.store.WithDateLock(ctx, date, func(tx Store) error {
		appts, err := tx.ActiveAppointmentsByDate(ctx, date)
		if err != nil {
			return err
		}
		if len(appts) == 0 {
			return structs.NewErrNotFound("schedule", date.Format("2006-01-02"))
		}

		for _, ap := range appts {
			if ap.Status == structs.AppointmentInProgress || ap.Status == structs.AppointmentCompleted {
				return structs.NewErrStateRejection("work_underway",
					"cannot clear %s: appointment %s is %s",
					date.Format("2006-01-02"), ap.ID, ap.Status)
			}
		}

		snapshot := structs.ClearSnapshot{
			Version: structs.ClearSnapshotVersion,
			Date:    date.Format("2006-01-02"),
		}
		jobIDs := make([]uuid.UUID, 0, len(appts))
		seen := make(map[uuid.UUID]struct{})
		for _, ap := range appts {
			snapshot.Appointments = append(snapshot.Appointments, *ap)
			if _, ok := seen[ap.JobID]; !ok {
				seen[ap.JobID] = struct{}{}
				jobIDs = append(jobIDs, ap.JobID)
			}
		}
		blob, err := json.Marshal(snapshot)
		if err != nil {
			return structs.NewErrValidation("snapshot_encode", "encoding clear snapshot: %v", err)
		}

		for _, jobID := range jobIDs {
			job, err := tx.JobByID(ctx, jobID)
			if err != nil {
				return err
			}
			if job.Status != structs.JobStatusScheduled {
				continue
			}
			if err := tx.TransitionJob(ctx, jobID, structs.JobStatusApproved, clearedBy,
				pointer.Of("schedule cleared")); err != nil {
				return err
			}
		}

		if err := tx.DeleteAppointmentsByDate(ctx, date); err != nil {
			return err
		}

		audit = &structs.ScheduleClearAudit{
			Date:             date,
			Snapshot:         blob,
			JobIDs:           jobIDs,
			AppointmentCount: len(appts),
			ClearedBy:        clearedBy,
		}
		if notes != "" {
			audit.Notes = pointer.Of(notes)
		}
		return tx.CreateClearAudit(ctx, audit)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Warn("schedule cleared",
		"date", date.Format("2006-01-02"), "appointments", audit.AppointmentCount,
		"jobs", len(audit.JobIDs), "cleared_by", clearedBy)
	return audit, nil
}

// RecentClears lists the newest clear audit records.
func (c *Core) RecentClears(ctx context.Context, limit int) ([]*structs.ScheduleClearAudit, error) {
	return c.store.RecentClearAudits(ctx, limit)
}

// DecodeClearSnapshot decodes an audit snapshot blob, accepting any version
// up to the current one.
func DecodeClearSnapshot(blob []byte) (*structs.ClearSnapshot, error) {
	var snap structs.ClearSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, structs.NewErrValidation("snapshot_decode", "decoding clear snapshot: %v", err)
	}
	if snap.Version < 1 || snap.Version > structs.ClearSnapshotVersion {
		return nil, structs.NewErrValidation("snapshot_version",
			"unsupported clear snapshot version %d", snap.Version)
	}
	return &snap, nil
}
