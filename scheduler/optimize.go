// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	log "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/hashicorp/go-set/v3"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// Optimizer produces a full day plan from a snapshot under a wall-clock
// budget: greedy construction first, then local search with simulated
// annealing until the budget expires.
type Optimizer struct {
	logger log.Logger
	oracle TravelEstimator
}

// NewOptimizer builds an optimizer using the given travel oracle.
func NewOptimizer(logger log.Logger, oracle TravelEstimator) *Optimizer {
	return &Optimizer{
		logger: logger.Named("optimizer"),
		oracle: oracle,
	}
}

// Options tunes a single Plan invocation.
type Options struct {
	// Budget is the wall-clock allowance, clamped to [MinBudget, MaxBudget].
	Budget time.Duration

	// Seed fixes the random source so identical inputs yield identical
	// solutions. When nil, a time-derived seed is used and runs may differ,
	// but the result never regresses below the construction phase.
	Seed *int64

	// MaxIterations caps the improvement loop independently of the clock.
	// Zero means clock-bound only. Combined with Seed this makes the whole
	// run reproducible.
	MaxIterations int
}

// annealing parameters. The temperature decays linearly with the consumed
// budget so late soft-worsening moves become rare.
const (
	initialTemperature = 200.0
	checkEvery         = 64
)

// Plan solves the snapshot. It always returns within the budget plus a small
// grace interval; on context cancellation it returns the best plan found so
// far, which is never worse than the construction result.
func (o *Optimizer) Plan(ctx context.Context, input *PlanInput, opts Options) *ScheduleSolution {
	defer metrics.MeasureSince([]string{"dispatch", "optimizer", "plan"}, time.Now())

	budget := ClampBudget(opts.Budget)
	start := time.Now()
	deadline := start.Add(budget)

	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	p := newPlan(input, o.oracle)
	o.construct(p)
	constructed := p.evaluate()
	o.logger.Debug("construction phase complete",
		"date", input.Date.Format("2006-01-02"),
		"jobs", len(input.Jobs), "staff", len(input.Staff),
		"hard", constructed.score.Hard, "soft", constructed.score.Soft)

	best, bestEv, iterations := o.improve(ctx, p, constructed, deadline, rng, opts.MaxIterations)

	sol := &ScheduleSolution{
		Date:        input.Date,
		Assignments: best.assignments(bestEv),
		Unassigned:  best.unassignedList(),
		HardScore:   bestEv.score.Hard,
		SoftScore:   bestEv.score.Soft,
		Elapsed:     time.Since(start),
		Iterations:  iterations,
		Seed:        seed,
	}
	sort.Slice(sol.Unassigned, func(i, j int) bool {
		return sol.Unassigned[i].JobID.String() < sol.Unassigned[j].JobID.String()
	})
	return sol
}

// construct runs the greedy phase: jobs ordered by (priority desc, preferred
// start asc, duration desc) are placed at the cheapest feasible position;
// jobs with no feasible placement stay unassigned with a reason.
func (o *Optimizer) construct(p *plan) {
	defer metrics.MeasureSince([]string{"dispatch", "optimizer", "construct"}, time.Now())

	input := p.input

	seeded := seedRoutes(p)

	order := make([]int, 0, len(input.Jobs))
	for i := range input.Jobs {
		if !seeded[i] {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		ja, jb := input.Jobs[order[a]], input.Jobs[order[b]]
		if ja.Priority != jb.Priority {
			return ja.Priority > jb.Priority
		}
		wa, wb := windowSortKey(ja), windowSortKey(jb)
		if wa != wb {
			return wa < wb
		}
		return ja.DurationMinutes > jb.DurationMinutes
	})

	for _, j := range order {
		job := input.Jobs[j]

		if len(input.Staff) == 0 {
			p.unassigned[j] = ReasonNoStaff
			continue
		}

		capable := o.capableStaff(input, job)
		if len(capable) == 0 {
			p.unassigned[j] = ReasonEquipment
			continue
		}
		if !o.fitsAnywhere(input, job, capable) {
			p.unassigned[j] = ReasonDuration
			continue
		}

		var placed bool
		if job.RequiredStaff <= 1 {
			placed = o.placeSingle(p, j, capable)
		} else {
			placed = o.placeMulti(p, j, capable)
		}
		if !placed {
			if job.WindowIsHard() {
				p.unassigned[j] = ReasonWindow
			} else {
				p.unassigned[j] = ReasonInfeasible
			}
		}
	}
}

// windowSortKey orders jobs by preferred start, no-preference last.
func windowSortKey(j *JobSpec) int {
	if j.WindowStart == nil {
		return structs.MinutesPerDay + 1
	}
	return *j.WindowStart
}

// capableStaff filters staff carrying the job's required equipment.
func (o *Optimizer) capableStaff(input *PlanInput, job *JobSpec) []int {
	var out []int
	for si, s := range input.Staff {
		if set.From(s.Equipment).ContainsSlice(job.RequiredEquipment) {
			out = append(out, si)
		}
	}
	return out
}

// fitsAnywhere reports whether the job's duration fits inside at least one
// capable staff's longest contiguous availability stretch.
func (o *Optimizer) fitsAnywhere(input *PlanInput, job *JobSpec, capable []int) bool {
	for _, si := range capable {
		s := input.Staff[si]
		longest := s.ShiftEnd - s.ShiftStart
		if ls, le, ok := s.lunchInterval(); ok {
			before := ls - s.ShiftStart
			after := s.ShiftEnd - le
			longest = before
			if after > longest {
				longest = after
			}
		}
		if job.DurationMinutes <= longest {
			return true
		}
	}
	return false
}

// placeSingle tries every (staff, position) for a single-tech job, keeping
// the cheapest placement that stays feasible.
func (o *Optimizer) placeSingle(p *plan, j int, capable []int) bool {
	type candidate struct {
		si, pos int
		score   Score
	}
	var best *candidate

	for _, si := range capable {
		for pos := 0; pos <= len(p.routes[si]); pos++ {
			trial := p.copy()
			trial.insert(j, si, pos)
			ev := trial.evaluate()
			if !ev.score.Feasible() {
				continue
			}
			if best == nil || ev.score.Better(best.score) {
				best = &candidate{si: si, pos: pos, score: ev.score}
			}
		}
	}
	if best == nil {
		return false
	}
	p.insert(j, best.si, best.pos)
	return true
}

// placeMulti appends a multi-tech job to the end of the N least-loaded
// capable routes; the checker aligns the co-starts. Multi-tech jobs are not
// revisited by local search.
func (o *Optimizer) placeMulti(p *plan, j int, capable []int) bool {
	job := p.input.Jobs[j]
	if len(capable) < job.RequiredStaff {
		return false
	}

	sort.SliceStable(capable, func(a, b int) bool {
		return len(p.routes[capable[a]]) < len(p.routes[capable[b]])
	})

	trial := p.copy()
	for i := 0; i < job.RequiredStaff; i++ {
		si := capable[i]
		trial.routes[si] = append(trial.routes[si], entry{job: j, fixedStart: -1})
	}
	delete(trial.unassigned, j)

	if ev := trial.evaluate(); !ev.score.Feasible() {
		return false
	}

	for i := 0; i < job.RequiredStaff; i++ {
		si := capable[i]
		p.routes[si] = append(p.routes[si], entry{job: j, fixedStart: -1})
	}
	delete(p.unassigned, j)
	return true
}

// improve runs the annealing loop until the deadline or cancellation,
// returning the best plan seen. The accepted move set is relocate, swap and
// intra-route 2-opt; a lexicographic improvement is always taken and a
// soft-worsening move is taken with probability decaying over the budget.
func (o *Optimizer) improve(ctx context.Context, p *plan, startEv *evaluation, deadline time.Time, rng *rand.Rand, maxIterations int) (*plan, *evaluation, int) {
	defer metrics.MeasureSince([]string{"dispatch", "optimizer", "improve"}, time.Now())

	best := p.copy()
	bestEv := startEv
	cur := p
	curEv := startEv

	budget := time.Until(deadline)
	iterations := 0

	for {
		if maxIterations > 0 && iterations >= maxIterations {
			return best, bestEv, iterations
		}
		if iterations%checkEvery == 0 {
			select {
			case <-ctx.Done():
				return best, bestEv, iterations
			default:
			}
			if !time.Now().Before(deadline) {
				return best, bestEv, iterations
			}
		}
		iterations++

		trial := o.mutate(cur, rng)
		if trial == nil {
			continue
		}
		ev := trial.evaluate()

		accept := false
		switch {
		case ev.score.Better(curEv.score):
			accept = true
		case ev.score.Hard >= curEv.score.Hard:
			// Soft-worsening move: Metropolis acceptance with temperature
			// decaying over the consumed budget.
			frac := float64(time.Until(deadline)) / float64(budget)
			if frac < 0 {
				frac = 0
			}
			temp := initialTemperature*frac + 1
			delta := float64(ev.score.Soft - curEv.score.Soft)
			accept = rng.Float64() < math.Exp(delta/temp)
		}

		if accept {
			cur = trial
			curEv = ev
			if ev.score.Better(bestEv.score) {
				best = trial.copy()
				bestEv = ev
			}
		}
	}
}

// mutate produces one neighbor of the current plan, or nil when no move
// applies. Pinned entries and multi-tech jobs never move.
func (o *Optimizer) mutate(p *plan, rng *rand.Rand) *plan {
	switch rng.Intn(4) {
	case 0:
		return o.moveRelocate(p, rng)
	case 1:
		return o.moveSwap(p, rng)
	case 2:
		return o.moveTwoOpt(p, rng)
	default:
		return o.movePlace(p, rng)
	}
}

// movable collects (staff, pos) of free single-tech entries.
func (o *Optimizer) movable(p *plan) [][2]int {
	var out [][2]int
	for si, route := range p.routes {
		for pos, e := range route {
			if e.fixedStart >= 0 || p.input.Jobs[e.job].RequiredStaff > 1 {
				continue
			}
			out = append(out, [2]int{si, pos})
		}
	}
	return out
}

func (o *Optimizer) moveRelocate(p *plan, rng *rand.Rand) *plan {
	mv := o.movable(p)
	if len(mv) == 0 || len(p.input.Staff) == 0 {
		return nil
	}
	pick := mv[rng.Intn(len(mv))]
	j := p.routes[pick[0]][pick[1]].job

	trial := p.copy()
	trial.remove(j, ReasonInfeasible)
	si := rng.Intn(len(trial.routes))
	pos := rng.Intn(len(trial.routes[si]) + 1)
	trial.insert(j, si, pos)
	return trial
}

func (o *Optimizer) moveSwap(p *plan, rng *rand.Rand) *plan {
	mv := o.movable(p)
	if len(mv) < 2 {
		return nil
	}
	a := mv[rng.Intn(len(mv))]
	b := mv[rng.Intn(len(mv))]
	if a == b {
		return nil
	}
	trial := p.copy()
	trial.routes[a[0]][a[1]].job, trial.routes[b[0]][b[1]].job =
		trial.routes[b[0]][b[1]].job, trial.routes[a[0]][a[1]].job
	return trial
}

func (o *Optimizer) moveTwoOpt(p *plan, rng *rand.Rand) *plan {
	if len(p.routes) == 0 {
		return nil
	}
	si := rng.Intn(len(p.routes))
	route := p.routes[si]
	if len(route) < 3 {
		return nil
	}
	i := rng.Intn(len(route) - 1)
	k := i + 1 + rng.Intn(len(route)-i-1)
	for x := i; x <= k; x++ {
		e := route[x]
		if e.fixedStart >= 0 || p.input.Jobs[e.job].RequiredStaff > 1 {
			return nil
		}
	}
	trial := p.copy()
	seg := trial.routes[si][i : k+1]
	for l, r := 0, len(seg)-1; l < r; l, r = l+1, r-1 {
		seg[l], seg[r] = seg[r], seg[l]
	}
	return trial
}

// movePlace tries to bring one unassigned single-tech job back into the plan.
func (o *Optimizer) movePlace(p *plan, rng *rand.Rand) *plan {
	if len(p.unassigned) == 0 || len(p.input.Staff) == 0 {
		return nil
	}
	var candidates []int
	for j := range p.unassigned {
		if r := p.unassigned[j]; r == ReasonNoStaff || r == ReasonEquipment || r == ReasonDuration {
			continue
		}
		if p.input.Jobs[j].RequiredStaff > 1 {
			continue
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Ints(candidates)
	j := candidates[rng.Intn(len(candidates))]

	trial := p.copy()
	si := rng.Intn(len(trial.routes))
	pos := rng.Intn(len(trial.routes[si]) + 1)
	trial.insert(j, si, pos)
	return trial
}
