// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	metrics "github.com/hashicorp/go-metrics"
)

// InsertResult is the emergency inserter's outcome. On success the new job
// occupies the reported slot and Assignments holds the complete updated day
// for the persistence layer; Bumped lists any lower-priority jobs displaced
// to make room. On failure Violations explains why no placement exists.
type InsertResult struct {
	Success     bool          `json:"success"`
	StaffID     *uuid.UUID    `json:"assigned_staff_id"`
	StartMinute int           `json:"start_minute,omitempty"`
	EndMinute   int           `json:"end_minute,omitempty"`
	Bumped      []uuid.UUID   `json:"bumped_jobs,omitempty"`
	Violations  []string      `json:"constraint_violations,omitempty"`
	Assignments []*Assignment `json:"assignments,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// maxDisplacementCandidates bounds the displacement search; beyond this the
// pair enumeration cost stops paying for itself.
const maxDisplacementCandidates = 12

// Insert splices the job with the given id into an already-populated day,
// minimizing disturbance (C4). The day snapshot arrives as input.Current
// (order-preserving) plus input.Pinned (immovable); the job to insert must
// be present in input.Jobs and absent from both assignment lists.
//
// The search is: cheapest feasible position first; failing that, the
// minimum-weight set of displaceable lower-priority jobs (singles, then
// pairs) whose removal admits a feasible placement. The displaced jobs are
// reported so the caller can move them to the waitlist. The whole operation
// is read-only on the snapshot; persistence and atomicity belong to the
// caller.
func (o *Optimizer) Insert(ctx context.Context, input *PlanInput, jobID uuid.UUID) *InsertResult {
	defer metrics.MeasureSince([]string{"dispatch", "optimizer", "insert"}, time.Now())
	start := time.Now()

	res := &InsertResult{}
	finish := func() *InsertResult {
		res.Elapsed = time.Since(start)
		return res
	}

	j := -1
	for i, job := range input.Jobs {
		if job.ID == jobID {
			j = i
			break
		}
	}
	if j < 0 {
		res.Violations = append(res.Violations, "job not in snapshot")
		return finish()
	}
	job := input.Jobs[j]

	p := newPlan(input, o.oracle)
	seedRoutes(p)

	if len(input.Staff) == 0 {
		res.Violations = append(res.Violations, string(ReasonNoStaff))
		return finish()
	}
	capable := o.capableStaff(input, job)
	if len(capable) == 0 {
		res.Violations = append(res.Violations, string(ReasonEquipment))
		return finish()
	}
	if !o.fitsAnywhere(input, job, capable) {
		res.Violations = append(res.Violations, string(ReasonDuration))
		return finish()
	}

	// Phase 1: cheapest feasible position without touching anyone.
	if best, ev := o.bestPosition(ctx, p, j, capable); best != nil {
		o.commitInsert(res, best, ev, j, nil)
		return finish()
	}

	// Phase 2: displace lower-priority work. Candidates are free entries
	// strictly below the incoming priority, cheapest first.
	type victim struct {
		job    int
		weight int
	}
	var victims []victim
	for _, route := range p.routes {
		for _, e := range route {
			if e.fixedStart >= 0 {
				continue
			}
			cand := input.Jobs[e.job]
			if cand.Priority >= job.Priority || cand.RequiredStaff > 1 {
				continue
			}
			victims = append(victims, victim{
				job:    e.job,
				weight: cand.Priority*MinutesPerDayWeight + cand.DurationMinutes,
			})
		}
	}
	sort.Slice(victims, func(a, b int) bool { return victims[a].weight < victims[b].weight })
	if len(victims) > maxDisplacementCandidates {
		victims = victims[:maxDisplacementCandidates]
	}

	for _, v := range victims {
		if deadlineExceeded(ctx) {
			break
		}
		trial := p.copy()
		trial.remove(v.job, ReasonInfeasible)
		if best, ev := o.bestPosition(ctx, trial, j, capable); best != nil {
			o.commitInsert(res, best, ev, j, []uuid.UUID{input.Jobs[v.job].ID})
			return finish()
		}
	}

	for ai := 0; ai < len(victims); ai++ {
		for bi := ai + 1; bi < len(victims); bi++ {
			if deadlineExceeded(ctx) {
				break
			}
			trial := p.copy()
			trial.remove(victims[ai].job, ReasonInfeasible)
			trial.remove(victims[bi].job, ReasonInfeasible)
			if best, ev := o.bestPosition(ctx, trial, j, capable); best != nil {
				o.commitInsert(res, best, ev, j, []uuid.UUID{
					input.Jobs[victims[ai].job].ID,
					input.Jobs[victims[bi].job].ID,
				})
				return finish()
			}
		}
	}

	if job.WindowIsHard() {
		res.Violations = append(res.Violations, string(ReasonWindow))
	}
	res.Violations = append(res.Violations, string(ReasonInfeasible))
	return finish()
}

// bestPosition evaluates every insertion point for job j on the capable
// staff and returns the feasible plan with the best soft score, or nil.
func (o *Optimizer) bestPosition(ctx context.Context, p *plan, j int, capable []int) (*plan, *evaluation) {
	var best *plan
	var bestEv *evaluation

	for _, si := range capable {
		for pos := 0; pos <= len(p.routes[si]); pos++ {
			if deadlineExceeded(ctx) {
				return best, bestEv
			}
			trial := p.copy()
			trial.insert(j, si, pos)
			ev := trial.evaluate()
			if !ev.score.Feasible() {
				continue
			}
			if best == nil || ev.score.Better(bestEv.score) {
				best = trial
				bestEv = ev
			}
		}
	}
	return best, bestEv
}

func (o *Optimizer) commitInsert(res *InsertResult, p *plan, ev *evaluation, j int, bumped []uuid.UUID) {
	res.Success = true
	res.Bumped = bumped
	res.Assignments = p.assignments(ev)

	jobID := p.input.Jobs[j].ID
	for _, asn := range res.Assignments {
		if asn.JobID == jobID {
			sid := asn.StaffID
			res.StaffID = &sid
			res.StartMinute = asn.StartMinute
			res.EndMinute = asn.EndMinute
			break
		}
	}
}

// MinutesPerDayWeight separates priority tiers in the displacement weight.
const MinutesPerDayWeight = 10000

func deadlineExceeded(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// CheckDay runs the constraint checker over an existing day layout without
// modifying it: the snapshot's pinned and current assignments are evaluated
// as-is. Useful for invariant verification and capacity math.
func CheckDay(input *PlanInput, oracle TravelEstimator) (Score, []string) {
	p := newPlan(input, oracle)
	seedRoutes(p)
	ev := p.evaluate()
	return ev.score, ev.violations
}
