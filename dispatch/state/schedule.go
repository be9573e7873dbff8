// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/structs"
)

// ActiveAppointmentsByDate returns every non-cancelled appointment on the
// date, ordered by staff then route order.
func (s *StateStore) ActiveAppointmentsByDate(ctx context.Context, date time.Time) ([]*structs.Appointment, error) {
	var appts []*structs.Appointment
	err := s.db.WithContext(ctx).
		Where("date = ? AND status <> ?", Day(date), structs.AppointmentCancelled).
		Order("staff_id, route_order").
		Find(&appts).Error
	if err != nil {
		return nil, translateErr(err, "appointment", date.Format("2006-01-02"))
	}
	return appts, nil
}

// AppointmentByID fetches one appointment.
func (s *StateStore) AppointmentByID(ctx context.Context, id uuid.UUID) (*structs.Appointment, error) {
	var appt structs.Appointment
	if err := s.db.WithContext(ctx).First(&appt, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "appointment", id.String())
	}
	return &appt, nil
}

// ActiveAppointmentsByStaffDate returns one staff's live day.
func (s *StateStore) ActiveAppointmentsByStaffDate(ctx context.Context, staffID uuid.UUID, date time.Time) ([]*structs.Appointment, error) {
	var appts []*structs.Appointment
	err := s.db.WithContext(ctx).
		Where("staff_id = ? AND date = ? AND status <> ?", staffID, Day(date), structs.AppointmentCancelled).
		Order("route_order").
		Find(&appts).Error
	if err != nil {
		return nil, translateErr(err, "appointment", staffID.String())
	}
	return appts, nil
}

// ActiveAppointmentsByJob returns every live appointment of one job across
// all dates.
func (s *StateStore) ActiveAppointmentsByJob(ctx context.Context, jobID uuid.UUID) ([]*structs.Appointment, error) {
	var appts []*structs.Appointment
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND status <> ?", jobID, structs.AppointmentCancelled).
		Order("date, start_minute").
		Find(&appts).Error
	if err != nil {
		return nil, translateErr(err, "appointment", jobID.String())
	}
	return appts, nil
}

// CreateAppointments inserts a batch.
func (s *StateStore) CreateAppointments(ctx context.Context, appts []*structs.Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(appts).Error; err != nil {
		return translateErr(err, "appointment", "batch")
	}
	return nil
}

// UpdateAppointment saves a modified appointment row.
func (s *StateStore) UpdateAppointment(ctx context.Context, appt *structs.Appointment) error {
	if err := s.db.WithContext(ctx).Save(appt).Error; err != nil {
		return translateErr(err, "appointment", appt.ID.String())
	}
	return nil
}

// CancelAppointmentRow marks one appointment cancelled with reason and
// timestamp. Lifecycle legality is the caller's concern.
func (s *StateStore) CancelAppointmentRow(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&structs.Appointment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        structs.AppointmentCancelled,
			"cancel_reason": reason,
			"cancelled_at":  at,
		})
	if res.Error != nil {
		return translateErr(res.Error, "appointment", id.String())
	}
	if res.RowsAffected == 0 {
		return structs.NewErrNotFound("appointment", id.String())
	}
	return nil
}

// DeleteAppointmentsByDate removes every appointment on the date; used only
// by the audited clear path.
func (s *StateStore) DeleteAppointmentsByDate(ctx context.Context, date time.Time) error {
	err := s.db.WithContext(ctx).
		Where("date = ?", Day(date)).
		Delete(&structs.Appointment{}).Error
	if err != nil {
		return translateErr(err, "appointment", date.Format("2006-01-02"))
	}
	return nil
}

// WaitlistByDate returns the waitlist for a date, highest priority first.
func (s *StateStore) WaitlistByDate(ctx context.Context, date time.Time) ([]*structs.WaitlistEntry, error) {
	var entries []*structs.WaitlistEntry
	err := s.db.WithContext(ctx).
		Where("preferred_date = ?", Day(date)).
		Order("priority desc, created_at asc").
		Find(&entries).Error
	if err != nil {
		return nil, translateErr(err, "waitlist_entry", date.Format("2006-01-02"))
	}
	return entries, nil
}

// CreateWaitlistEntry adds one job to the waitlist.
func (s *StateStore) CreateWaitlistEntry(ctx context.Context, entry *structs.WaitlistEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return translateErr(err, "waitlist_entry", entry.JobID.String())
	}
	return nil
}

// DeleteWaitlistEntry removes a filled entry.
func (s *StateStore) DeleteWaitlistEntry(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Delete(&structs.WaitlistEntry{}, "id = ?", id).Error
	if err != nil {
		return translateErr(err, "waitlist_entry", id.String())
	}
	return nil
}

// MarkWaitlistNotified stamps the customer-notified time.
func (s *StateStore) MarkWaitlistNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&structs.WaitlistEntry{}).
		Where("id = ?", id).
		Update("notified_at", at).Error
	if err != nil {
		return translateErr(err, "waitlist_entry", id.String())
	}
	return nil
}

// RoutableStaff returns active techs.
func (s *StateStore) RoutableStaff(ctx context.Context) ([]*structs.Staff, error) {
	var staff []*structs.Staff
	err := s.db.WithContext(ctx).
		Where("role = ? AND is_active", structs.StaffRoleTech).
		Order("last_name, first_name").
		Find(&staff).Error
	if err != nil {
		return nil, translateErr(err, "staff", "routable")
	}
	return staff, nil
}

// StaffByID fetches one staff member.
func (s *StateStore) StaffByID(ctx context.Context, id uuid.UUID) (*structs.Staff, error) {
	var st structs.Staff
	if err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, translateErr(err, "staff", id.String())
	}
	return &st, nil
}

// StaffByEmail fetches a staff member by login email.
func (s *StateStore) StaffByEmail(ctx context.Context, email string) (*structs.Staff, error) {
	var st structs.Staff
	if err := s.db.WithContext(ctx).First(&st, "email = ?", email).Error; err != nil {
		return nil, translateErr(err, "staff", email)
	}
	return &st, nil
}

// AvailabilityByDate returns the availability rows for all staff on a date.
func (s *StateStore) AvailabilityByDate(ctx context.Context, date time.Time) ([]*structs.StaffAvailability, error) {
	var rows []*structs.StaffAvailability
	err := s.db.WithContext(ctx).
		Where("date = ?", Day(date)).
		Find(&rows).Error
	if err != nil {
		return nil, translateErr(err, "staff_availability", date.Format("2006-01-02"))
	}
	return rows, nil
}

// AvailabilityFor returns one staff's availability row for a date.
func (s *StateStore) AvailabilityFor(ctx context.Context, staffID uuid.UUID, date time.Time) (*structs.StaffAvailability, error) {
	var row structs.StaffAvailability
	err := s.db.WithContext(ctx).
		First(&row, "staff_id = ? AND date = ?", staffID, Day(date)).Error
	if err != nil {
		return nil, translateErr(err, "staff_availability", staffID.String())
	}
	return &row, nil
}

// SetAvailabilityFlag flips the availability bit on an existing row.
func (s *StateStore) SetAvailabilityFlag(ctx context.Context, staffID uuid.UUID, date time.Time, available bool) error {
	res := s.db.WithContext(ctx).Model(&structs.StaffAvailability{}).
		Where("staff_id = ? AND date = ?", staffID, Day(date)).
		Update("is_available", available)
	if res.Error != nil {
		return translateErr(res.Error, "staff_availability", staffID.String())
	}
	if res.RowsAffected == 0 {
		return structs.NewErrNotFound("staff_availability", staffID.String())
	}
	return nil
}

// UpsertAvailability writes one (staff, date) window.
func (s *StateStore) UpsertAvailability(ctx context.Context, row *structs.StaffAvailability) error {
	if err := row.Validate(); err != nil {
		return err
	}
	row.Date = Day(row.Date)
	err := s.db.WithContext(ctx).
		Where("staff_id = ? AND date = ?", row.StaffID, row.Date).
		Assign(map[string]interface{}{
			"start_minute":           row.StartMinute,
			"end_minute":             row.EndMinute,
			"lunch_start_minute":     row.LunchStartMinute,
			"lunch_duration_minutes": row.LunchDurationMinutes,
			"is_available":           row.IsAvailable,
		}).
		FirstOrCreate(row).Error
	if err != nil {
		return translateErr(err, "staff_availability", row.StaffID.String())
	}
	return nil
}

// CreateReassignment records a bulk staff-to-staff move.
func (s *StateStore) CreateReassignment(ctx context.Context, rec *structs.ScheduleReassignment) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translateErr(err, "schedule_reassignment", rec.OriginalStaffID.String())
	}
	return nil
}

// CreateClearAudit writes one clear-and-audit row.
func (s *StateStore) CreateClearAudit(ctx context.Context, audit *structs.ScheduleClearAudit) error {
	if err := s.db.WithContext(ctx).Create(audit).Error; err != nil {
		return translateErr(err, "schedule_clear_audit", audit.Date.Format("2006-01-02"))
	}
	return nil
}

// RecentClearAudits returns the newest clear records.
func (s *StateStore) RecentClearAudits(ctx context.Context, limit int) ([]*structs.ScheduleClearAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	var audits []*structs.ScheduleClearAudit
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&audits).Error
	if err != nil {
		return nil, translateErr(err, "schedule_clear_audit", "recent")
	}
	return audits, nil
}

// PropertiesByIDs fetches a batch of properties.
func (s *StateStore) PropertiesByIDs(ctx context.Context, ids []uuid.UUID) ([]*structs.Property, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var props []*structs.Property
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&props).Error; err != nil {
		return nil, translateErr(err, "property", "batch")
	}
	return props, nil
}

// OfferingsByIDs fetches a batch of service offerings.
func (s *StateStore) OfferingsByIDs(ctx context.Context, ids []uuid.UUID) ([]*structs.ServiceOffering, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var offerings []*structs.ServiceOffering
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&offerings).Error; err != nil {
		return nil, translateErr(err, "service_offering", "batch")
	}
	return offerings, nil
}
