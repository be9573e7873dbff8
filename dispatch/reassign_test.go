// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/greenvale/dispatch/dispatch/structs"
)

func TestCore_MarkUnavailable_cancelsDayAndFreesJobs(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	leaving := addTech(fs, testDay)

	j1 := addApprovedJob(fs, custID, propID, offID, 2, 90)
	j1.Status = structs.JobStatusScheduled
	j2 := addApprovedJob(fs, custID, propID, offID, 0, 60)
	j2.Status = structs.JobStatusScheduled
	addAppointment(fs, j1.ID, leaving, 490, 580, 0, structs.AppointmentScheduled)
	addAppointment(fs, j2.ID, leaving, 590, 650, 1, structs.AppointmentScheduled)

	res, err := core.MarkUnavailable(context.Background(), leaving, testDay, "sick", "dispatcher")
	must.NoError(t, err)
	must.Eq(t, 2, res.AffectedAppointments)
	must.Len(t, 2, res.FreedJobs)

	avail, err := fs.AvailabilityFor(context.Background(), leaving, testDay)
	must.NoError(t, err)
	must.False(t, avail.IsAvailable)

	for _, job := range []*structs.Job{j1, j2} {
		rows, err := fs.ActiveAppointmentsByJob(context.Background(), job.ID)
		must.NoError(t, err)
		must.Len(t, 0, rows)
		got, err := fs.JobByID(context.Background(), job.ID)
		must.NoError(t, err)
		must.Eq(t, structs.JobStatusApproved, got.Status)
	}

	// Marking off frees the day; placement is ReassignStaff's job.
	must.Len(t, 0, fs.reassigns)
}

func TestCore_MarkUnavailable_leavesFinishedWork(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	leaving := addTech(fs, testDay)

	done := addApprovedJob(fs, custID, propID, offID, 0, 60)
	done.Status = structs.JobStatusCompleted
	doneRow := addAppointment(fs, done.ID, leaving, 490, 550, 0, structs.AppointmentCompleted)

	pending := addApprovedJob(fs, custID, propID, offID, 0, 60)
	pending.Status = structs.JobStatusScheduled
	addAppointment(fs, pending.ID, leaving, 600, 660, 1, structs.AppointmentScheduled)

	res, err := core.MarkUnavailable(context.Background(), leaving, testDay, "sick", "dispatcher")
	must.NoError(t, err)
	must.Eq(t, 1, res.AffectedAppointments)
	must.Len(t, 1, res.FreedJobs)
	must.Eq(t, pending.ID, res.FreedJobs[0])

	// The morning's finished visit stays on the books.
	row, err := fs.AppointmentByID(context.Background(), doneRow.ID)
	must.NoError(t, err)
	must.Eq(t, structs.AppointmentCompleted, row.Status)
	got, err := fs.JobByID(context.Background(), done.ID)
	must.NoError(t, err)
	must.Eq(t, structs.JobStatusCompleted, got.Status)
}

func TestCore_MarkUnavailable_emptyDay(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	tech := addTech(fs, testDay)

	res, err := core.MarkUnavailable(context.Background(), tech, testDay, "jury duty", "dispatcher")
	must.NoError(t, err)
	must.Eq(t, 0, res.AffectedAppointments)
	must.Len(t, 0, res.FreedJobs)
}

func TestCore_ReassignStaff_movesFreedWorkPriorityFirst(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	leaving := addTech(fs, testDay)
	covering := addTech(fs, testDay)

	j1 := addApprovedJob(fs, custID, propID, offID, 2, 90)
	j1.Status = structs.JobStatusScheduled
	j2 := addApprovedJob(fs, custID, propID, offID, 0, 60)
	j2.Status = structs.JobStatusScheduled
	addAppointment(fs, j1.ID, leaving, 490, 580, 0, structs.AppointmentScheduled)
	addAppointment(fs, j2.ID, leaving, 590, 650, 1, structs.AppointmentScheduled)

	_, err := core.MarkUnavailable(context.Background(), leaving, testDay, "sick", "dispatcher")
	must.NoError(t, err)

	res, err := core.ReassignStaff(context.Background(), leaving, covering, testDay, "dispatcher")
	must.NoError(t, err)
	must.Len(t, 2, res.Moved)
	must.Len(t, 0, res.Waitlisted)
	must.Eq(t, 2, res.Record.JobsReassigned)
	must.Eq(t, leaving, res.Record.OriginalStaffID)
	must.NotNil(t, res.Record.NewStaffID)
	must.Eq(t, covering, *res.Record.NewStaffID)

	// Higher priority work is covered first.
	must.Eq(t, j1.ID, res.Moved[0].JobID)

	for _, job := range []*structs.Job{j1, j2} {
		rows, err := fs.ActiveAppointmentsByJob(context.Background(), job.ID)
		must.NoError(t, err)
		must.Len(t, 1, rows)
		must.Eq(t, covering, rows[0].StaffID)
		got, err := fs.JobByID(context.Background(), job.ID)
		must.NoError(t, err)
		must.Eq(t, structs.JobStatusScheduled, got.Status)
	}

	must.Len(t, 1, fs.reassigns)
}

func TestCore_ReassignStaff_waitlistsUncoverableWork(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	leaving := addTech(fs, testDay, "trencher")
	covering := addTech(fs, testDay) // no trencher

	job := addApprovedJob(fs, custID, propID, offID, 0, 60, "trencher")
	job.Status = structs.JobStatusScheduled
	addAppointment(fs, job.ID, leaving, 490, 550, 0, structs.AppointmentScheduled)

	_, err := core.MarkUnavailable(context.Background(), leaving, testDay, "truck broke down", "dispatcher")
	must.NoError(t, err)

	res, err := core.ReassignStaff(context.Background(), leaving, covering, testDay, "dispatcher")
	must.NoError(t, err)
	must.Len(t, 0, res.Moved)
	must.Len(t, 1, res.Waitlisted)
	must.Eq(t, job.ID, res.Waitlisted[0])

	got, err := fs.JobByID(context.Background(), job.ID)
	must.NoError(t, err)
	must.Eq(t, structs.JobStatusApproved, got.Status)

	entries, err := fs.WaitlistByDate(context.Background(), testDay)
	must.NoError(t, err)
	must.Len(t, 1, entries)
	must.Eq(t, job.ID, entries[0].JobID)
}

func TestCore_ReassignStaff_rejectsSelfAndUnavailableTarget(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	leaving := addTech(fs, testDay)
	covering := addTech(fs, testDay)

	_, err := core.ReassignStaff(context.Background(), leaving, leaving, testDay, "dispatcher")
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindValidation))

	must.NoError(t, fs.SetAvailabilityFlag(context.Background(), covering, testDay, false))
	_, err = core.ReassignStaff(context.Background(), leaving, covering, testDay, "dispatcher")
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindStateRejection))
}

func TestCore_SetAvailability_rejectsWindowExcludingBookedWork(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	err := core.SetAvailability(context.Background(), &structs.StaffAvailability{
		StaffID:     tech,
		Date:        testDay,
		StartMinute: 600,
		EndMinute:   1020,
		IsAvailable: true,
	})
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindStateRejection))

	// The shift on file is untouched.
	avail, err := fs.AvailabilityFor(context.Background(), tech, testDay)
	must.NoError(t, err)
	must.Eq(t, 480, avail.StartMinute)
	must.Eq(t, 1020, avail.EndMinute)
}

func TestCore_SetAvailability_rejectsFlagOffUnderBookedWork(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 60)
	job.Status = structs.JobStatusScheduled
	addAppointment(fs, job.ID, tech, 490, 550, 0, structs.AppointmentScheduled)

	err := core.SetAvailability(context.Background(), &structs.StaffAvailability{
		StaffID:     tech,
		Date:        testDay,
		StartMinute: 480,
		EndMinute:   1020,
		IsAvailable: false,
	})
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindStateRejection))

	avail, err := fs.AvailabilityFor(context.Background(), tech, testDay)
	must.NoError(t, err)
	must.True(t, avail.IsAvailable)
}

func TestCore_SetAvailability_acceptsWindowContainingBookedWork(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	err := core.SetAvailability(context.Background(), &structs.StaffAvailability{
		StaffID:     tech,
		Date:        testDay,
		StartMinute: 480,
		EndMinute:   900,
		IsAvailable: true,
	})
	must.NoError(t, err)

	avail, err := fs.AvailabilityFor(context.Background(), tech, testDay)
	must.NoError(t, err)
	must.Eq(t, 900, avail.EndMinute)
}

func TestCore_CoverageOptions_dryRunDoesNotMutate(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	leaving := addTech(fs, testDay)
	covering := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	ap := addAppointment(fs, job.ID, leaving, 490, 580, 0, structs.AppointmentScheduled)

	options, err := core.CoverageOptions(context.Background(), leaving, testDay)
	must.NoError(t, err)
	must.Len(t, 1, options)
	must.Eq(t, covering, options[0].StaffID)
	must.Eq(t, 540, options[0].RemainingMinutes)
	must.True(t, options[0].CanCoverAll)

	// Nothing moved.
	row, err := fs.AppointmentByID(context.Background(), ap.ID)
	must.NoError(t, err)
	must.Eq(t, leaving, row.StaffID)
	must.Eq(t, structs.AppointmentScheduled, row.Status)
	must.Len(t, 0, fs.reassigns)
}

func TestCore_CoverageOptions_flagsEquipmentGap(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	leaving := addTech(fs, testDay, "trencher")
	covering := addTech(fs, testDay) // no trencher

	job := addApprovedJob(fs, custID, propID, offID, 0, 60, "trencher")
	job.Status = structs.JobStatusScheduled
	addAppointment(fs, job.ID, leaving, 490, 550, 0, structs.AppointmentScheduled)

	options, err := core.CoverageOptions(context.Background(), leaving, testDay)
	must.NoError(t, err)
	must.Len(t, 1, options)
	must.Eq(t, covering, options[0].StaffID)
	must.False(t, options[0].CanCoverAll)
}
