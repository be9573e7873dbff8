// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package scheduler implements the pure day-plan solver: the travel-time
// oracle, the constraint checker, the route optimizer and the emergency
// inserter. The solver takes an immutable snapshot of one date and returns
// an immutable solution; persistence happens in the caller.
package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// Coordinates is a geographic point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// JobSpec is the solver's view of one schedulable job.
type JobSpec struct {
	ID                uuid.UUID
	Priority          int
	DurationMinutes   int
	BufferMinutes     int
	RequiredEquipment []string
	RequiredStaff     int
	Category          structs.JobCategory
	City              string
	Site              Coordinates

	// Preferred time window in minutes from midnight; both nil when the
	// customer has no preference. Hard for priority >= PriorityUrgent.
	WindowStart *int
	WindowEnd   *int
}

// HasWindow reports whether the job carries a preferred window.
func (j *JobSpec) HasWindow() bool {
	return j.WindowStart != nil && j.WindowEnd != nil
}

// WindowIsHard reports whether missing the window is a hard violation.
func (j *JobSpec) WindowIsHard() bool {
	return j.HasWindow() && j.Priority >= structs.PriorityUrgent
}

// StaffSpec is the solver's view of one routable tech on the plan date.
type StaffSpec struct {
	ID           uuid.UUID
	Equipment    []string
	Start        Coordinates
	ShiftStart   int
	ShiftEnd     int
	LunchStart   *int
	LunchMinutes int
}

// lunchInterval returns the forbidden interval, or (0, 0, false) when the
// staff takes no lunch.
func (s *StaffSpec) lunchInterval() (int, int, bool) {
	if s.LunchStart == nil || s.LunchMinutes <= 0 {
		return 0, 0, false
	}
	return *s.LunchStart, *s.LunchStart + s.LunchMinutes, true
}

// PlanInput is the immutable snapshot the solver works from. Pinned
// assignments must keep their exact slots; Current assignments keep their
// staff and relative order but their times are recomputed by the walk.
type PlanInput struct {
	Date    time.Time
	Jobs    []*JobSpec
	Staff   []*StaffSpec
	Pinned  []*Assignment
	Current []*Assignment
}

// Assignment is one placed job occurrence: one job on one staff with a
// concrete slot. Multi-tech jobs produce one assignment per tech with equal
// start minutes.
type Assignment struct {
	JobID       uuid.UUID `json:"job_id"`
	StaffID     uuid.UUID `json:"staff_id"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	RouteOrder  int       `json:"route_order"`
}

// UnassignedReason explains why the solver left a job out of the plan.
type UnassignedReason string

const (
	// ReasonNoStaff: no routable staff is available on the date.
	ReasonNoStaff UnassignedReason = "no_staff"

	// ReasonEquipment: no available staff carries the required equipment.
	ReasonEquipment UnassignedReason = "equipment"

	// ReasonDuration: the job exceeds every staff's longest contiguous
	// availability stretch.
	ReasonDuration UnassignedReason = "duration"

	// ReasonWindow: the hard preferred window cannot be met.
	ReasonWindow UnassignedReason = "window"

	// ReasonInfeasible: no feasible placement was found within the budget.
	ReasonInfeasible UnassignedReason = "infeasible"
)

// UnassignedJob pairs a job with the reason it was left out.
type UnassignedJob struct {
	JobID  uuid.UUID        `json:"job_id"`
	Reason UnassignedReason `json:"reason"`
}

// ScheduleSolution is the solver output. The union of assigned and
// unassigned job ids equals the input job set and the two are disjoint.
type ScheduleSolution struct {
	Date        time.Time        `json:"date"`
	Assignments []*Assignment    `json:"assignments"`
	Unassigned  []*UnassignedJob `json:"unassigned_jobs"`
	HardScore   int              `json:"hard_score"`
	SoftScore   int              `json:"soft_score"`
	Elapsed     time.Duration    `json:"elapsed"`
	Iterations  int              `json:"iterations"`
	Seed        int64            `json:"seed"`
}

// Feasible reports whether every hard constraint is satisfied.
func (s *ScheduleSolution) Feasible() bool { return s.HardScore == 0 }

// Score orders candidate plans lexicographically: hard first, then soft.
// Both components are <= 0; zero hard means feasible.
type Score struct {
	Hard int
	Soft int
}

// Feasible reports whether the hard component is clean.
func (s Score) Feasible() bool { return s.Hard == 0 }

// Better reports whether s strictly beats o.
func (s Score) Better(o Score) bool {
	if s.Hard != o.Hard {
		return s.Hard > o.Hard
	}
	return s.Soft > o.Soft
}

// Soft constraint weights. Each violated unit subtracts its weight from the
// soft score.
const (
	weightTravelMinute   = 1
	weightCityTransition = 5
	weightTypeTransition = 3
	weightUnassigned     = 1000
	weightLateHighPrio   = 2

	// noonMinute anchors the late-in-day penalty for high-priority jobs.
	noonMinute = 12 * 60
)

// Default operation budgets. Generate accepts [MinBudget, MaxBudget].
const (
	DefaultBudget       = 30 * time.Second
	MinBudget           = 5 * time.Second
	MaxBudget           = 120 * time.Second
	DefaultInsertBudget = 15 * time.Second
)

// ClampBudget bounds a caller-supplied budget to the legal range, applying
// the default when zero.
func ClampBudget(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultBudget
	}
	if d < MinBudget {
		return MinBudget
	}
	if d > MaxBudget {
		return MaxBudget
	}
	return d
}
