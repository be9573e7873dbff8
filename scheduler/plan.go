// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/hashicorp/go-set/v3"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// entry is one stop on a staff's route: a job occurrence with an optional
// pinned start. fixedStart is -1 for free entries; pinned entries must begin
// exactly at fixedStart.
type entry struct {
	job        int
	fixedStart int
}

// plan is the solver's mutable working state: per-staff ordered routes over
// the snapshot's job indices, plus the set of jobs left unplaced.
type plan struct {
	input      *PlanInput
	oracle     TravelEstimator
	routes     [][]entry
	unassigned map[int]UnassignedReason
}

func newPlan(input *PlanInput, oracle TravelEstimator) *plan {
	p := &plan{
		input:      input,
		oracle:     oracle,
		routes:     make([][]entry, len(input.Staff)),
		unassigned: make(map[int]UnassignedReason, len(input.Jobs)),
	}
	for i := range input.Jobs {
		p.unassigned[i] = ReasonInfeasible
	}
	return p
}

// copy returns an independent clone for speculative moves.
func (p *plan) copy() *plan {
	np := &plan{
		input:      p.input,
		oracle:     p.oracle,
		routes:     make([][]entry, len(p.routes)),
		unassigned: make(map[int]UnassignedReason, len(p.unassigned)),
	}
	for i, r := range p.routes {
		np.routes[i] = append([]entry(nil), r...)
	}
	for j, r := range p.unassigned {
		np.unassigned[j] = r
	}
	return np
}

// placements returns the staff indices holding job j, in route order.
func (p *plan) placements(j int) []int {
	var out []int
	for si, route := range p.routes {
		for _, e := range route {
			if e.job == j {
				out = append(out, si)
				break
			}
		}
	}
	return out
}

// insert places job j on staff si at position pos as a free entry.
func (p *plan) insert(j, si, pos int) {
	route := p.routes[si]
	route = append(route, entry{})
	copy(route[pos+1:], route[pos:])
	route[pos] = entry{job: j, fixedStart: -1}
	p.routes[si] = route
	delete(p.unassigned, j)
}

// remove deletes every occurrence of job j and marks it unassigned with the
// given reason. Pinned occurrences are never removed.
func (p *plan) remove(j int, reason UnassignedReason) bool {
	removed := false
	for si, route := range p.routes {
		for pos, e := range route {
			if e.job == j && e.fixedStart < 0 {
				p.routes[si] = append(route[:pos], route[pos+1:]...)
				removed = true
				break
			}
		}
	}
	if removed {
		p.unassigned[j] = reason
	}
	return removed
}

// seedRoutes loads the snapshot's pinned and current assignments into the
// routes. Pinned entries keep their fixed starts; current entries keep staff
// and relative order with times recomputed by the walk. Returns the seeded
// job indices.
func seedRoutes(p *plan) map[int]bool {
	input := p.input
	seeded := map[int]bool{}

	jobIdx := map[uuid.UUID]int{}
	for i, j := range input.Jobs {
		jobIdx[j.ID] = i
	}
	staffIdx := map[uuid.UUID]int{}
	for i, s := range input.Staff {
		staffIdx[s.ID] = i
	}

	type seed struct {
		asn   *Assignment
		fixed bool
	}
	byStaff := make([][]seed, len(input.Staff))
	add := func(asn *Assignment, fixed bool) {
		si, okS := staffIdx[asn.StaffID]
		if _, okJ := jobIdx[asn.JobID]; !okS || !okJ {
			return
		}
		byStaff[si] = append(byStaff[si], seed{asn: asn, fixed: fixed})
	}
	for _, pin := range input.Pinned {
		add(pin, true)
	}
	for _, cur := range input.Current {
		add(cur, false)
	}

	for si, seeds := range byStaff {
		sort.SliceStable(seeds, func(a, b int) bool {
			return seeds[a].asn.StartMinute < seeds[b].asn.StartMinute
		})
		for _, sd := range seeds {
			j := jobIdx[sd.asn.JobID]
			e := entry{job: j, fixedStart: -1}
			if sd.fixed {
				e.fixedStart = sd.asn.StartMinute
			}
			p.routes[si] = append(p.routes[si], e)
			delete(p.unassigned, j)
			seeded[j] = true
		}
	}
	return seeded
}

// slot is a computed service interval for one job occurrence.
type slot struct {
	job   int
	start int
	end   int
}

// evaluation is the constraint checker's full output for one candidate plan.
type evaluation struct {
	score      Score
	slots      [][]slot
	travel     int
	violations []string
}

// evaluate is the stateless constraint checker (C2). It walks every staff
// route from the staff's start location (travel, service, buffer; lunch
// inserted when crossed, successors pushed), aligns multi-tech co-starts by
// relaxation, and scores the result. Hard is the negated violation count;
// soft is the negated weighted penalty sum. Both are zero or negative.
func (p *plan) evaluate() *evaluation {
	// Forced starts: pinned slots first, multi-tech alignment added below.
	forced := map[int]int{}
	for _, route := range p.routes {
		for _, e := range route {
			if e.fixedStart >= 0 {
				forced[e.job] = e.fixedStart
			}
		}
	}

	// Relax multi-tech co-starts: each pass pushes the forced start of any
	// job placed on several staff up to the latest computed start. Pushing
	// is monotone so the loop settles quickly; the cap guards degenerate
	// inputs.
	var ev *evaluation
	for pass := 0; pass < 4; pass++ {
		ev = p.walk(forced)
		changed := false
		for j := range p.input.Jobs {
			if p.input.Jobs[j].RequiredStaff <= 1 {
				continue
			}
			latest := -1
			for _, staffSlots := range ev.slots {
				for _, sl := range staffSlots {
					if sl.job == j && sl.start > latest {
						latest = sl.start
					}
				}
			}
			if latest >= 0 && forced[j] < latest {
				forced[j] = latest
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	p.scoreHard(ev)
	p.scoreSoft(ev)
	return ev
}

// walk computes per-staff timelines under the given forced starts, recording
// in-route hard violations (availability overrun, unreachable pinned slot).
func (p *plan) walk(forced map[int]int) *evaluation {
	ev := &evaluation{slots: make([][]slot, len(p.routes))}

	for si, route := range p.routes {
		staff := p.input.Staff[si]
		lunchStart, lunchEnd, hasLunch := staff.lunchInterval()

		cursor := staff.ShiftStart
		loc := staff.Start

		for _, e := range route {
			job := p.input.Jobs[e.job]

			travel := p.oracle.EstimateMinutes(loc, job.Site)
			ev.travel += travel
			start := cursor + travel

			if f, ok := forced[e.job]; ok && f > start {
				start = f
			}

			// A slot that would cross lunch is pushed past it; the walk
			// inserts the lunch interval and successors shift right.
			if hasLunch && start < lunchEnd && start+job.DurationMinutes > lunchStart {
				start = lunchEnd
			}

			end := start + job.DurationMinutes

			if e.fixedStart >= 0 && start > e.fixedStart {
				ev.violations = append(ev.violations,
					fmt.Sprintf("pinned slot for job %s unreachable", job.ID))
			}
			if end > staff.ShiftEnd {
				ev.violations = append(ev.violations,
					fmt.Sprintf("job %s ends at %d past shift end %d", job.ID, end, staff.ShiftEnd))
			}

			ev.slots[si] = append(ev.slots[si], slot{job: e.job, start: start, end: end})

			cursor = end + job.BufferMinutes
			loc = job.Site
		}
	}
	return ev
}

// scoreHard applies the per-assignment hard rules on top of the walk's
// in-route violations: equipment, staff-count, co-start equality, and hard
// preferred windows.
func (p *plan) scoreHard(ev *evaluation) {
	for si, staffSlots := range ev.slots {
		staff := p.input.Staff[si]
		have := set.From(staff.Equipment)

		for _, sl := range staffSlots {
			job := p.input.Jobs[sl.job]

			if !have.ContainsSlice(job.RequiredEquipment) {
				ev.violations = append(ev.violations,
					fmt.Sprintf("staff %s lacks equipment for job %s", staff.ID, job.ID))
			}
			if job.WindowIsHard() && !(sl.start >= *job.WindowStart && sl.end <= *job.WindowEnd) {
				ev.violations = append(ev.violations,
					fmt.Sprintf("job %s slot [%d, %d) outside hard window", job.ID, sl.start, sl.end))
			}
		}
	}

	for j, job := range p.input.Jobs {
		if _, un := p.unassigned[j]; un {
			continue
		}
		starts := []int{}
		for _, staffSlots := range ev.slots {
			for _, sl := range staffSlots {
				if sl.job == j {
					starts = append(starts, sl.start)
				}
			}
		}
		if len(starts) != job.RequiredStaff {
			ev.violations = append(ev.violations,
				fmt.Sprintf("job %s assigned to %d staff, requires %d", job.ID, len(starts), job.RequiredStaff))
		}
		for _, s := range starts {
			if s != starts[0] {
				ev.violations = append(ev.violations,
					fmt.Sprintf("job %s co-assignments start at different instants", job.ID))
				break
			}
		}
	}

	ev.score.Hard = -len(ev.violations)
}

// scoreSoft applies the weighted soft terms: travel, geographic batching,
// job-type batching, unassigned jobs, late-in-day high-priority slots, and
// missed soft windows.
func (p *plan) scoreSoft(ev *evaluation) {
	penalty := ev.travel * weightTravelMinute

	for _, staffSlots := range ev.slots {
		prevCity := ""
		prevType := ""
		for _, sl := range staffSlots {
			job := p.input.Jobs[sl.job]

			if prevCity != "" && job.City != prevCity {
				penalty += weightCityTransition
			}
			prevCity = job.City

			if prevType != "" && string(job.Category) != prevType {
				penalty += weightTypeTransition
			}
			prevType = string(job.Category)

			if job.Priority >= structs.PriorityUrgent && sl.start > noonMinute {
				penalty += weightLateHighPrio * ((sl.start - noonMinute + 29) / 30)
			}

			// Missed soft windows are penalized by how far outside the
			// window the slot lands, in half-hour units.
			if job.HasWindow() && !job.WindowIsHard() {
				if d := windowMissMinutes(sl.start, sl.end, *job.WindowStart, *job.WindowEnd); d > 0 {
					penalty += weightLateHighPrio * ((d + 29) / 30)
				}
			}
		}
	}

	penalty += len(p.unassigned) * weightUnassigned

	ev.score.Soft = -penalty
}

// windowMissMinutes returns how far the slot [start, end) falls outside the
// preferred window, zero when contained.
func windowMissMinutes(start, end, winStart, winEnd int) int {
	miss := 0
	if start < winStart {
		miss += winStart - start
	}
	if end > winEnd {
		miss += end - winEnd
	}
	return miss
}

// assignments renders the evaluated plan into the solution's assignment
// list, route order following slot order per staff.
func (p *plan) assignments(ev *evaluation) []*Assignment {
	var out []*Assignment
	for si, staffSlots := range ev.slots {
		staff := p.input.Staff[si]
		for order, sl := range staffSlots {
			out = append(out, &Assignment{
				JobID:       p.input.Jobs[sl.job].ID,
				StaffID:     staff.ID,
				StartMinute: sl.start,
				EndMinute:   sl.end,
				RouteOrder:  order,
			})
		}
	}
	return out
}

// unassignedList renders the unplaced jobs with their reasons.
func (p *plan) unassignedList() []*UnassignedJob {
	var out []*UnassignedJob
	for j, reason := range p.unassigned {
		out = append(out, &UnassignedJob{JobID: p.input.Jobs[j].ID, Reason: reason})
	}
	return out
}
