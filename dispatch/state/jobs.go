// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// JobByID fetches one job.
func (s *StateStore) JobByID(ctx context.Context, id uuid.UUID) (*structs.Job, error) {
	var job structs.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "job", id.String())
	}
	return &job, nil
}

// CreateJob persists a new job in status requested with its first history
// entry.
func (s *StateStore) CreateJob(ctx context.Context, job *structs.Job, actor string) error {
	if err := job.Validate(); err != nil {
		return err
	}
	return s.WithTransaction(ctx, func(tx *StateStore) error {
		if job.Status == "" {
			job.Status = structs.JobStatusRequested
		}
		if err := tx.db.Create(job).Error; err != nil {
			return translateErr(err, "job", job.ID.String())
		}
		history := &structs.JobStatusHistory{
			JobID:    job.ID,
			ToStatus: job.Status,
			Actor:    actor,
		}
		if err := tx.db.Create(history).Error; err != nil {
			return translateErr(err, "job_status_history", job.ID.String())
		}
		return nil
	})
}

// TransitionJob moves a job along its lifecycle graph, rejecting illegal
// edges and appending the immutable history entry in the same transaction.
func (s *StateStore) TransitionJob(ctx context.Context, jobID uuid.UUID, next structs.JobStatus, actor string, note *string) error {
	return s.WithTransaction(ctx, func(tx *StateStore) error {
		return tx.transitionJobTx(ctx, jobID, next, actor, note)
	})
}

// transitionJobTx is the in-transaction body of TransitionJob, reused by the
// composite schedule mutations that already hold a transaction.
func (s *StateStore) transitionJobTx(ctx context.Context, jobID uuid.UUID, next structs.JobStatus, actor string, note *string) error {
	var job structs.Job
	if err := s.db.WithContext(ctx).Clauses(forUpdate()).First(&job, "id = ?", jobID).Error; err != nil {
		return translateErr(err, "job", jobID.String())
	}

	if !job.Status.CanTransition(next) {
		return structs.NewErrStateRejection("job_transition",
			"job %s cannot move from %s to %s", jobID, job.Status, next)
	}

	prev := job.Status
	if err := s.db.WithContext(ctx).Model(&job).Update("status", next).Error; err != nil {
		return translateErr(err, "job", jobID.String())
	}

	history := &structs.JobStatusHistory{
		JobID:      jobID,
		FromStatus: &prev,
		ToStatus:   next,
		Actor:      actor,
		Note:       note,
	}
	if err := s.db.WithContext(ctx).Create(history).Error; err != nil {
		return translateErr(err, "job_status_history", jobID.String())
	}
	return nil
}

// JobHistory returns the append-only transition chain, oldest first.
func (s *StateStore) JobHistory(ctx context.Context, jobID uuid.UUID) ([]*structs.JobStatusHistory, error) {
	var history []*structs.JobStatusHistory
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at asc").
		Find(&history).Error
	if err != nil {
		return nil, translateErr(err, "job_status_history", jobID.String())
	}
	return history, nil
}

// SchedulableJobsForDate returns approved jobs targeting the date (or
// undated), the optimizer's input pool.
func (s *StateStore) SchedulableJobsForDate(ctx context.Context, date time.Time) ([]*structs.Job, error) {
	var jobs []*structs.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", structs.JobStatusApproved).
		Where("preferred_date IS NULL OR preferred_date = ?", Day(date)).
		Order("priority desc, created_at asc").
		Find(&jobs).Error
	if err != nil {
		return nil, translateErr(err, "job", "schedulable")
	}
	return jobs, nil
}

// ReassignableJobs returns approved jobs whose appointments on the date were
// cancelled off the given tech, the pool a coverage reassignment works from.
func (s *StateStore) ReassignableJobs(ctx context.Context, staffID uuid.UUID, date time.Time) ([]*structs.Job, error) {
	var jobs []*structs.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", structs.JobStatusApproved).
		Where("id IN (?)", s.db.Model(&structs.Appointment{}).
			Select("job_id").
			Where("staff_id = ? AND date = ? AND status = ?",
				staffID, Day(date), structs.AppointmentCancelled)).
		Order("priority desc, created_at asc").
		Find(&jobs).Error
	if err != nil {
		return nil, translateErr(err, "job", "reassignable")
	}
	return jobs, nil
}

// JobsByIDs fetches a batch preserving no particular order.
func (s *StateStore) JobsByIDs(ctx context.Context, ids []uuid.UUID) ([]*structs.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var jobs []*structs.Job
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&jobs).Error; err != nil {
		return nil, translateErr(err, "job", "batch")
	}
	return jobs, nil
}
