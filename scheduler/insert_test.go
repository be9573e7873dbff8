// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"context"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/greenvale/dispatch/dispatch/structs"
)

func TestInsert_FitsWithoutBumping(t *testing.T) {
	staff := testStaff(480, 1020)

	existing := testJob(60)
	emergency := testJob(60)
	emergency.Priority = structs.PriorityEmergency

	input := &PlanInput{
		Date:  testDate(),
		Jobs:  []*JobSpec{existing, emergency},
		Staff: []*StaffSpec{staff},
		Current: []*Assignment{
			{JobID: existing.ID, StaffID: staff.ID, StartMinute: 490, EndMinute: 550, RouteOrder: 0},
		},
	}
	res := testOptimizer(fixedOracle{minutes: 10}).Insert(context.Background(), input, emergency.ID)

	must.True(t, res.Success)
	must.NotNil(t, res.StaffID)
	must.Eq(t, staff.ID, *res.StaffID)
	must.Len(t, 0, res.Bumped)
	must.Len(t, 2, res.Assignments)
}

func TestInsert_BumpsLowerPriority(t *testing.T) {
	// One staff with a 240-minute shift packed solid with two 110-minute
	// priority-0 jobs; a priority-3 repair must displace one of them.
	staff := testStaff(480, 720)

	a := testJob(110)
	b := testJob(110)
	emergency := testJob(110)
	emergency.Priority = structs.PriorityEmergency
	emergency.Category = structs.JobCategoryRepair

	input := &PlanInput{
		Date:  testDate(),
		Jobs:  []*JobSpec{a, b, emergency},
		Staff: []*StaffSpec{staff},
		Current: []*Assignment{
			{JobID: a.ID, StaffID: staff.ID, StartMinute: 490, EndMinute: 600, RouteOrder: 0},
			{JobID: b.ID, StaffID: staff.ID, StartMinute: 600, EndMinute: 710, RouteOrder: 1},
		},
	}
	res := testOptimizer(fixedOracle{minutes: 10}).Insert(context.Background(), input, emergency.ID)

	must.True(t, res.Success)
	must.NotNil(t, res.StaffID)
	must.SliceNotEmpty(t, res.Bumped)

	// The bumped job is one of the two originals, never the emergency.
	for _, bumped := range res.Bumped {
		must.NotEq(t, emergency.ID, bumped)
	}
}

func TestInsert_NeverBumpsEqualOrHigherPriority(t *testing.T) {
	staff := testStaff(480, 720)

	a := testJob(110)
	a.Priority = structs.PriorityEmergency
	b := testJob(110)
	b.Priority = structs.PriorityEmergency
	emergency := testJob(110)
	emergency.Priority = structs.PriorityEmergency

	input := &PlanInput{
		Date:  testDate(),
		Jobs:  []*JobSpec{a, b, emergency},
		Staff: []*StaffSpec{staff},
		Current: []*Assignment{
			{JobID: a.ID, StaffID: staff.ID, StartMinute: 490, EndMinute: 600, RouteOrder: 0},
			{JobID: b.ID, StaffID: staff.ID, StartMinute: 600, EndMinute: 710, RouteOrder: 1},
		},
	}
	res := testOptimizer(fixedOracle{minutes: 10}).Insert(context.Background(), input, emergency.ID)

	must.False(t, res.Success)
	must.Nil(t, res.StaffID)
	must.SliceNotEmpty(t, res.Violations)
}

func TestInsert_DurationViolation(t *testing.T) {
	// No staff has a 240-minute contiguous stretch.
	staff := testStaff(480, 900)
	staff.LunchStart = intptr(690)
	staff.LunchMinutes = 30

	emergency := testJob(240)
	emergency.Priority = structs.PriorityEmergency

	input := &PlanInput{
		Date:  testDate(),
		Jobs:  []*JobSpec{emergency},
		Staff: []*StaffSpec{staff},
	}
	res := testOptimizer(fixedOracle{minutes: 10}).Insert(context.Background(), input, emergency.ID)

	must.False(t, res.Success)
	must.Nil(t, res.StaffID)
	must.SliceContains(t, res.Violations, string(ReasonDuration))
}

func TestInsert_EquipmentViolation(t *testing.T) {
	staff := testStaff(480, 1020)
	emergency := testJob(60)
	emergency.Priority = structs.PriorityEmergency
	emergency.RequiredEquipment = []string{"crane"}

	input := &PlanInput{
		Date:  testDate(),
		Jobs:  []*JobSpec{emergency},
		Staff: []*StaffSpec{staff},
	}
	res := testOptimizer(fixedOracle{minutes: 10}).Insert(context.Background(), input, emergency.ID)

	must.False(t, res.Success)
	must.SliceContains(t, res.Violations, string(ReasonEquipment))
}

func TestInsert_PreservesConfirmedSlots(t *testing.T) {
	staff := testStaff(480, 1020)

	confirmed := testJob(60)
	emergency := testJob(60)
	emergency.Priority = structs.PriorityEmergency

	input := &PlanInput{
		Date:  testDate(),
		Jobs:  []*JobSpec{confirmed, emergency},
		Staff: []*StaffSpec{staff},
		Pinned: []*Assignment{
			{JobID: confirmed.ID, StaffID: staff.ID, StartMinute: 600, EndMinute: 660},
		},
	}
	res := testOptimizer(fixedOracle{minutes: 10}).Insert(context.Background(), input, emergency.ID)

	must.True(t, res.Success)
	for _, asn := range res.Assignments {
		if asn.JobID == confirmed.ID {
			must.Eq(t, 600, asn.StartMinute)
			must.Eq(t, 660, asn.EndMinute)
		}
	}
}
