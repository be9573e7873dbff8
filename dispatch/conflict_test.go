// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/helper/pointer"
)

func TestCore_CancelAppointment_offersGapToWaitlist(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	booked := addApprovedJob(fs, custID, propID, offID, 0, 120)
	booked.Status = structs.JobStatusScheduled
	ap := addAppointment(fs, booked.ID, tech, 490, 610, 0, structs.AppointmentScheduled)

	waiting := addApprovedJob(fs, custID, propID, offID, 1, 90)
	fs.CreateWaitlistEntry(context.Background(), &structs.WaitlistEntry{
		JobID:         waiting.ID,
		PreferredDate: testDay,
		Priority:      waiting.Priority,
	})

	res, err := core.CancelAppointment(context.Background(), ap.ID, CancelOptions{
		Reason: "customer request",
		Actor:  "dispatcher",
	})
	must.NoError(t, err)
	must.Eq(t, booked.ID, res.JobID)
	must.Eq(t, 490, res.GapStart)
	must.Eq(t, 610, res.GapEnd)
	must.False(t, res.Waitlisted)
	must.NotNil(t, res.OfferedJobID)
	must.Eq(t, waiting.ID, *res.OfferedJobID)

	row, err := fs.AppointmentByID(context.Background(), ap.ID)
	must.NoError(t, err)
	must.Eq(t, structs.AppointmentCancelled, row.Status)
	must.NotNil(t, row.CancelledAt)

	job, err := fs.JobByID(context.Background(), booked.ID)
	must.NoError(t, err)
	must.Eq(t, structs.JobStatusApproved, job.Status)

	entries, err := fs.WaitlistByDate(context.Background(), testDay)
	must.NoError(t, err)
	must.Len(t, 1, entries)
	must.NotNil(t, entries[0].NotifiedAt)
	must.Len(t, 1, fs.messages)
	must.Eq(t, "waitlist_offer", fs.messages[0].Kind)
}

func TestCore_CancelAppointment_addToWaitlist(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 1, 90)
	job.Status = structs.JobStatusScheduled
	ap := addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	nextWeek := testDay.AddDate(0, 0, 7)
	res, err := core.CancelAppointment(context.Background(), ap.ID, CancelOptions{
		Reason:                  "customer travelling",
		Actor:                   "dispatcher",
		AddToWaitlist:           true,
		PreferredRescheduleDate: pointer.Of(nextWeek),
	})
	must.NoError(t, err)
	must.True(t, res.Waitlisted)
	// The cancelled job is never offered its own slot back.
	must.Nil(t, res.OfferedJobID)

	entries, err := fs.WaitlistByDate(context.Background(), nextWeek)
	must.NoError(t, err)
	must.Len(t, 1, entries)
	must.Eq(t, job.ID, entries[0].JobID)
	must.Eq(t, job.Priority, entries[0].Priority)
	must.Nil(t, entries[0].NotifiedAt)
}

func TestCore_CancelAppointment_waitlistDefaultsToApptDate(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 60)
	job.Status = structs.JobStatusScheduled
	ap := addAppointment(fs, job.ID, tech, 490, 550, 0, structs.AppointmentScheduled)

	res, err := core.CancelAppointment(context.Background(), ap.ID, CancelOptions{
		Reason:        "rain",
		Actor:         "dispatcher",
		AddToWaitlist: true,
	})
	must.NoError(t, err)
	must.True(t, res.Waitlisted)

	entries, err := fs.WaitlistByDate(context.Background(), testDay)
	must.NoError(t, err)
	must.Len(t, 1, entries)
	must.Eq(t, job.ID, entries[0].JobID)
}

func TestCore_CancelAppointment_rejectsInProgress(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 60)
	job.Status = structs.JobStatusInProgress
	ap := addAppointment(fs, job.ID, tech, 490, 550, 0, structs.AppointmentInProgress)

	_, err := core.CancelAppointment(context.Background(), ap.ID, CancelOptions{
		Reason: "too late", Actor: "dispatcher",
	})
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindStateRejection))
}

func TestCore_RescheduleAppointment_movesAtomically(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	nextDay := testDay.AddDate(0, 0, 1)
	addAvailability(fs, tech, nextDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	old := addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	res, err := core.RescheduleAppointment(context.Background(), old.ID, &RescheduleRequest{
		NewDate:     nextDay,
		StartMinute: 600,
		EndMinute:   690,
	}, "dispatcher")
	must.NoError(t, err)
	must.Eq(t, old.ID, res.OldAppointmentID)
	must.Eq(t, tech, res.StaffID)
	must.Eq(t, 600, res.StartMinute)

	oldRow, err := fs.AppointmentByID(context.Background(), old.ID)
	must.NoError(t, err)
	must.Eq(t, structs.AppointmentCancelled, oldRow.Status)

	newRow, err := fs.AppointmentByID(context.Background(), res.NewAppointmentID)
	must.NoError(t, err)
	must.Eq(t, nextDay, newRow.Date)
	must.Eq(t, 600, newRow.StartMinute)
	must.Eq(t, 690, newRow.EndMinute)
	must.NotNil(t, newRow.RescheduledFrom)
	must.Eq(t, old.ID, *newRow.RescheduledFrom)

	got, err := fs.JobByID(context.Background(), job.ID)
	must.NoError(t, err)
	must.Eq(t, structs.JobStatusScheduled, got.Status)
}

func TestCore_RescheduleAppointment_toDifferentTech(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)
	other := addTech(fs, testDay)

	nextDay := testDay.AddDate(0, 0, 1)
	addAvailability(fs, other, nextDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	old := addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	res, err := core.RescheduleAppointment(context.Background(), old.ID, &RescheduleRequest{
		NewDate:     nextDay,
		StartMinute: 480,
		EndMinute:   570,
		NewStaffID:  pointer.Of(other),
	}, "dispatcher")
	must.NoError(t, err)
	must.Eq(t, other, res.StaffID)

	newRow, err := fs.AppointmentByID(context.Background(), res.NewAppointmentID)
	must.NoError(t, err)
	must.Eq(t, other, newRow.StaffID)
}

func TestCore_RescheduleAppointment_rejectsSameDate(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	old := addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	_, err := core.RescheduleAppointment(context.Background(), old.ID, &RescheduleRequest{
		NewDate:     testDay,
		StartMinute: 600,
		EndMinute:   690,
	}, "dispatcher")
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindValidation))
}

func TestCore_RescheduleAppointment_rejectsShortSlot(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	old := addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	_, err := core.RescheduleAppointment(context.Background(), old.ID, &RescheduleRequest{
		NewDate:     testDay.AddDate(0, 0, 1),
		StartMinute: 600,
		EndMinute:   660, // job needs 90
	}, "dispatcher")
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindValidation))
}

func TestCore_RescheduleAppointment_infeasibleSlotLeavesDayIntact(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	nextDay := testDay.AddDate(0, 0, 1)
	addAvailability(fs, tech, nextDay)

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	old := addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	// Slot runs past the end of the shift.
	_, err := core.RescheduleAppointment(context.Background(), old.ID, &RescheduleRequest{
		NewDate:     nextDay,
		StartMinute: 990,
		EndMinute:   1080,
	}, "dispatcher")
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindInfeasible))

	row, err := fs.AppointmentByID(context.Background(), old.ID)
	must.NoError(t, err)
	must.Eq(t, structs.AppointmentScheduled, row.Status)
}

func TestCore_RescheduleAppointment_rejectsTakenSlot(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay)

	nextDay := testDay.AddDate(0, 0, 1)
	addAvailability(fs, tech, nextDay)

	blocker := addApprovedJob(fs, custID, propID, offID, 0, 60)
	blocker.Status = structs.JobStatusScheduled
	block := addAppointment(fs, blocker.ID, tech, 600, 660, 0, structs.AppointmentScheduled)
	block.Date = nextDay

	job := addApprovedJob(fs, custID, propID, offID, 0, 90)
	job.Status = structs.JobStatusScheduled
	old := addAppointment(fs, job.ID, tech, 490, 580, 0, structs.AppointmentScheduled)

	_, err := core.RescheduleAppointment(context.Background(), old.ID, &RescheduleRequest{
		NewDate:     nextDay,
		StartMinute: 630,
		EndMinute:   720,
	}, "dispatcher")
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindStateRejection))
}

func TestCore_Waitlist_listsDate(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)

	low := addApprovedJob(fs, custID, propID, offID, 0, 60)
	high := addApprovedJob(fs, custID, propID, offID, 2, 60)
	for _, job := range []*structs.Job{low, high} {
		fs.CreateWaitlistEntry(context.Background(), &structs.WaitlistEntry{
			JobID:         job.ID,
			PreferredDate: testDay,
			Priority:      job.Priority,
		})
	}

	entries, err := core.Waitlist(context.Background(), testDay)
	must.NoError(t, err)
	must.Len(t, 2, entries)
	must.Eq(t, high.ID, entries[0].JobID)
}

func TestCore_FillGap_ranksPriorityThenSlack(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)

	// Waitlisted for the date but preferring another day, so the only route
	// into the candidate set is the waitlist entry.
	waitlisted := addApprovedJob(fs, custID, propID, offID, 2, 90)
	waitlisted.PreferredDate = pointer.Of(testDay.AddDate(0, 0, 3))
	fs.CreateWaitlistEntry(context.Background(), &structs.WaitlistEntry{
		JobID:         waitlisted.ID,
		PreferredDate: testDay,
		Priority:      waitlisted.Priority,
	})

	snug := addApprovedJob(fs, custID, propID, offID, 2, 110)
	loose := addApprovedJob(fs, custID, propID, offID, 0, 60)

	out, err := core.FillGap(context.Background(), &GapRequest{
		Date:        testDay,
		StartMinute: 480,
		EndMinute:   600,
	})
	must.NoError(t, err)
	must.Len(t, 3, out)
	// Same priority: the tighter fit wins.
	must.Eq(t, snug.ID, out[0].JobID)
	must.Eq(t, GapSourceApproved, out[0].Source)
	must.Eq(t, 10, out[0].SlackMinutes)
	must.Eq(t, waitlisted.ID, out[1].JobID)
	must.Eq(t, GapSourceWaitlist, out[1].Source)
	must.Eq(t, loose.ID, out[2].JobID)
}

func TestCore_FillGap_suggestsWithoutBooking(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	addTech(fs, testDay)

	job := addApprovedJob(fs, custID, propID, offID, 2, 60)
	fs.CreateWaitlistEntry(context.Background(), &structs.WaitlistEntry{
		JobID:         job.ID,
		PreferredDate: testDay,
		Priority:      job.Priority,
	})
	apptsBefore := len(fs.appts)

	out, err := core.FillGap(context.Background(), &GapRequest{
		Date:        testDay,
		StartMinute: 480,
		EndMinute:   600,
	})
	must.NoError(t, err)
	must.Len(t, 1, out)
	must.Eq(t, job.ID, out[0].JobID)

	// Suggesting commits nothing: no rows, no status changes, the waitlist
	// entry stays put.
	must.Eq(t, apptsBefore, len(fs.appts))
	got, err := fs.JobByID(context.Background(), job.ID)
	must.NoError(t, err)
	must.Eq(t, structs.JobStatusApproved, got.Status)
	entries, err := fs.WaitlistByDate(context.Background(), testDay)
	must.NoError(t, err)
	must.Len(t, 1, entries)
}

func TestCore_FillGap_filtersFitWindowAndEquipment(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)
	tech := addTech(fs, testDay) // carries no equipment

	fits := addApprovedJob(fs, custID, propID, offID, 0, 60)
	addApprovedJob(fs, custID, propID, offID, 0, 180) // longer than the gap
	addApprovedJob(fs, custID, propID, offID, 0, 60, "trencher")
	evening := addApprovedJob(fs, custID, propID, offID, 0, 60)
	evening.WindowStartMinute = pointer.Of(900)
	evening.WindowEndMinute = pointer.Of(1020)

	out, err := core.FillGap(context.Background(), &GapRequest{
		Date:        testDay,
		StartMinute: 480,
		EndMinute:   600,
		StaffID:     pointer.Of(tech),
	})
	must.NoError(t, err)
	must.Len(t, 1, out)
	must.Eq(t, fits.ID, out[0].JobID)
}

func TestCore_FillGap_skipsStaleWaitlistEntries(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)
	custID, propID := addSite(fs)
	offID := addOffering(fs)

	moved := addApprovedJob(fs, custID, propID, offID, 2, 60)
	fs.CreateWaitlistEntry(context.Background(), &structs.WaitlistEntry{
		JobID:         moved.ID,
		PreferredDate: testDay,
		Priority:      moved.Priority,
	})
	moved.Status = structs.JobStatusScheduled

	out, err := core.FillGap(context.Background(), &GapRequest{
		Date:        testDay,
		StartMinute: 480,
		EndMinute:   600,
	})
	must.NoError(t, err)
	must.Len(t, 0, out)
}

func TestCore_FillGap_rejectsBadWindow(t *testing.T) {
	fs := newFakeStore()
	core := testCore(fs)

	_, err := core.FillGap(context.Background(), &GapRequest{
		Date:        testDay,
		StartMinute: 600,
		EndMinute:   600,
	})
	must.Error(t, err)
	must.True(t, structs.IsKind(err, structs.ErrKindValidation))
}
