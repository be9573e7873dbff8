// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/scheduler"
)

// daySnapshot is the immutable read the solver works from plus the index
// the apply step needs to map solver output back onto rows.
type daySnapshot struct {
	date  time.Time
	input *scheduler.PlanInput

	jobs      map[uuid.UUID]*structs.Job
	offerings map[uuid.UUID]*structs.ServiceOffering
	appts     []*structs.Appointment
	apptByJob map[uuid.UUID][]*structs.Appointment

	// apptIDs fingerprints the day for optimistic re-validation under the
	// date lock.
	apptIDs map[uuid.UUID]struct{}
}

// snapshotOptions selects which job pool enters the snapshot.
type snapshotOptions struct {
	// includeApproved pulls in the approved, not-yet-scheduled pool.
	includeApproved bool

	// extraJobs forces specific jobs into the pool regardless of status,
	// used by the emergency and reassignment paths.
	extraJobs []uuid.UUID

	// onlyStaff restricts the roster to a single tech. Everyone else's
	// assignments are dropped and their jobs enter the pool, so targeted
	// inserts see just the one candidate's day.
	onlyStaff *uuid.UUID
}

// buildSnapshot reads one date's complete scheduling state. It holds no
// locks: callers re-validate via apptIDs before applying a solution.
func (c *Core) buildSnapshot(ctx context.Context, st Store, date time.Time, opts snapshotOptions) (*daySnapshot, error) {
	date = state.Day(date)

	snap := &daySnapshot{
		date:      date,
		jobs:      make(map[uuid.UUID]*structs.Job),
		offerings: make(map[uuid.UUID]*structs.ServiceOffering),
		apptByJob: make(map[uuid.UUID][]*structs.Appointment),
		apptIDs:   make(map[uuid.UUID]struct{}),
	}

	appts, err := st.ActiveAppointmentsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	snap.appts = appts
	for _, ap := range appts {
		snap.apptByJob[ap.JobID] = append(snap.apptByJob[ap.JobID], ap)
		snap.apptIDs[ap.ID] = struct{}{}
	}

	jobIDs := make(map[uuid.UUID]struct{})
	for _, ap := range appts {
		jobIDs[ap.JobID] = struct{}{}
	}
	if opts.includeApproved {
		pool, err := st.SchedulableJobsForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		for _, job := range pool {
			snap.jobs[job.ID] = job
			jobIDs[job.ID] = struct{}{}
		}
	}
	for _, id := range opts.extraJobs {
		jobIDs[id] = struct{}{}
	}

	var missing []uuid.UUID
	for id := range jobIDs {
		if _, ok := snap.jobs[id]; !ok {
			missing = append(missing, id)
		}
	}
	fetched, err := st.JobsByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, job := range fetched {
		snap.jobs[job.ID] = job
	}
	for _, id := range opts.extraJobs {
		if _, ok := snap.jobs[id]; !ok {
			return nil, structs.NewErrNotFound("job", id.String())
		}
	}

	propIDs := make(map[uuid.UUID]struct{})
	offIDs := make(map[uuid.UUID]struct{})
	for _, job := range snap.jobs {
		propIDs[job.PropertyID] = struct{}{}
		offIDs[job.ServiceOfferingID] = struct{}{}
	}
	props, err := st.PropertiesByIDs(ctx, keys(propIDs))
	if err != nil {
		return nil, err
	}
	propByID := make(map[uuid.UUID]*structs.Property, len(props))
	for _, p := range props {
		propByID[p.ID] = p
	}
	offerings, err := st.OfferingsByIDs(ctx, keys(offIDs))
	if err != nil {
		return nil, err
	}
	for _, o := range offerings {
		snap.offerings[o.ID] = o
	}

	staff, _, err := c.rosterForDate(ctx, st, date, nil)
	if err != nil {
		return nil, err
	}
	if opts.onlyStaff != nil {
		kept := staff[:0]
		for _, s := range staff {
			if s.ID == *opts.onlyStaff {
				kept = append(kept, s)
			}
		}
		staff = kept
	}

	input := &scheduler.PlanInput{Date: date}
	input.Staff = staff

	for _, job := range sortedJobs(snap.jobs) {
		prop := propByID[job.PropertyID]
		if prop == nil {
			return nil, structs.NewErrNotFound("property", job.PropertyID.String())
		}
		buffer := 0
		if off := snap.offerings[job.ServiceOfferingID]; off != nil {
			buffer = off.BufferMinutes
		}
		input.Jobs = append(input.Jobs, &scheduler.JobSpec{
			ID:                job.ID,
			Priority:          job.Priority,
			DurationMinutes:   job.DurationMinutes,
			BufferMinutes:     buffer,
			RequiredEquipment: job.RequiredEquipment,
			RequiredStaff:     job.RequiredStaff,
			Category:          job.Category,
			City:              prop.City,
			Site:              scheduler.Coordinates{Lat: prop.Latitude, Lng: prop.Longitude},
			WindowStart:       job.WindowStartMinute,
			WindowEnd:         job.WindowEndMinute,
		})
	}

	rostered := make(map[uuid.UUID]struct{}, len(staff))
	for _, s := range staff {
		rostered[s.ID] = struct{}{}
	}
	for _, ap := range appts {
		if _, ok := rostered[ap.StaffID]; !ok {
			continue
		}
		asn := &scheduler.Assignment{
			JobID:       ap.JobID,
			StaffID:     ap.StaffID,
			StartMinute: ap.StartMinute,
			EndMinute:   ap.EndMinute,
			RouteOrder:  ap.RouteOrder,
		}
		if ap.Status.Pinned() {
			input.Pinned = append(input.Pinned, asn)
		} else {
			input.Current = append(input.Current, asn)
		}
	}

	snap.input = input
	return snap, nil
}

// rosterForDate builds the solver's staff specs: active techs with an
// availability row flagged available on the date.
func (c *Core) rosterForDate(ctx context.Context, st Store, date time.Time, exclude *uuid.UUID) ([]*scheduler.StaffSpec, map[uuid.UUID]*structs.StaffAvailability, error) {
	techs, err := st.RoutableStaff(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := st.AvailabilityByDate(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	availByStaff := make(map[uuid.UUID]*structs.StaffAvailability, len(rows))
	for _, row := range rows {
		availByStaff[row.StaffID] = row
	}

	var specs []*scheduler.StaffSpec
	for _, tech := range techs {
		if exclude != nil && tech.ID == *exclude {
			continue
		}
		avail := availByStaff[tech.ID]
		if avail == nil || !avail.IsAvailable {
			continue
		}
		specs = append(specs, &scheduler.StaffSpec{
			ID:           tech.ID,
			Equipment:    tech.Equipment,
			Start:        scheduler.Coordinates{Lat: tech.HomeLatitude, Lng: tech.HomeLongitude},
			ShiftStart:   avail.StartMinute,
			ShiftEnd:     avail.EndMinute,
			LunchStart:   avail.LunchStartMinute,
			LunchMinutes: avail.LunchDurationMinutes,
		})
	}
	return specs, availByStaff, nil
}

// verifyUnchanged re-reads the day under the lock and rejects the apply when
// the appointment set drifted since the snapshot was taken.
func (snap *daySnapshot) verifyUnchanged(ctx context.Context, tx Store) error {
	current, err := tx.ActiveAppointmentsByDate(ctx, snap.date)
	if err != nil {
		return err
	}
	if len(current) != len(snap.apptIDs) {
		return structs.NewErrTransient("schedule_conflict",
			"schedule for %s changed during solve", snap.date.Format("2006-01-02"))
	}
	for _, ap := range current {
		if _, ok := snap.apptIDs[ap.ID]; !ok {
			return structs.NewErrTransient("schedule_conflict",
				"schedule for %s changed during solve", snap.date.Format("2006-01-02"))
		}
	}
	return nil
}

func keys(m map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

// sortedJobs yields a deterministic job order so seeded solver runs are
// reproducible across processes.
func sortedJobs(m map[uuid.UUID]*structs.Job) []*structs.Job {
	out := make([]*structs.Job, 0, len(m))
	for _, job := range m {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
