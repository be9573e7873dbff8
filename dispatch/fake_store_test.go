// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
)

// fakeStore is an in-memory Store. It enforces the same lifecycle rules as
// the real store but not transactional rollback; tests that exercise
// rollback behavior belong at the integration level.
type fakeStore struct {
	mu  sync.Mutex
	seq int

	jobs      map[uuid.UUID]*structs.Job
	history   []*structs.JobStatusHistory
	appts     map[uuid.UUID]*structs.Appointment
	waitlist  map[uuid.UUID]*structs.WaitlistEntry
	staff     map[uuid.UUID]*structs.Staff
	avail     map[string]*structs.StaffAvailability
	reassigns []*structs.ScheduleReassignment
	audits    []*structs.ScheduleClearAudit
	props     map[uuid.UUID]*structs.Property
	offerings map[uuid.UUID]*structs.ServiceOffering
	invoices  map[uuid.UUID]*structs.Invoice
	customers map[uuid.UUID]*structs.Customer
	leads     map[uuid.UUID]*structs.Lead
	messages  []*structs.SentMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:      make(map[uuid.UUID]*structs.Job),
		appts:     make(map[uuid.UUID]*structs.Appointment),
		waitlist:  make(map[uuid.UUID]*structs.WaitlistEntry),
		staff:     make(map[uuid.UUID]*structs.Staff),
		avail:     make(map[string]*structs.StaffAvailability),
		props:     make(map[uuid.UUID]*structs.Property),
		offerings: make(map[uuid.UUID]*structs.ServiceOffering),
		invoices:  make(map[uuid.UUID]*structs.Invoice),
		customers: make(map[uuid.UUID]*structs.Customer),
		leads:     make(map[uuid.UUID]*structs.Lead),
	}
}

// tick produces strictly increasing timestamps so created-at ordering is
// deterministic.
func (f *fakeStore) tick() time.Time {
	f.seq++
	return time.Date(2026, 4, 1, 0, 0, 0, f.seq, time.UTC)
}

func availKey(staffID uuid.UUID, date time.Time) string {
	return staffID.String() + "|" + state.Day(date).Format("2006-01-02")
}

func (f *fakeStore) WithDateLock(_ context.Context, _ time.Time, fn func(tx Store) error) error {
	return fn(f)
}

func (f *fakeStore) WithTransaction(_ context.Context, fn func(tx Store) error) error {
	return fn(f)
}

func (f *fakeStore) JobByID(_ context.Context, id uuid.UUID) (*structs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, structs.NewErrNotFound("job", id.String())
	}
	return job, nil
}

func (f *fakeStore) CreateJob(_ context.Context, job *structs.Job, actor string) error {
	if err := job.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == (uuid.UUID{}) {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = structs.JobStatusRequested
	}
	job.CreatedAt = f.tick()
	f.jobs[job.ID] = job
	f.history = append(f.history, &structs.JobStatusHistory{
		ID:        uuid.New(),
		JobID:     job.ID,
		ToStatus:  job.Status,
		Actor:     actor,
		CreatedAt: job.CreatedAt,
	})
	return nil
}

func (f *fakeStore) TransitionJob(_ context.Context, jobID uuid.UUID, next structs.JobStatus, actor string, note *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return structs.NewErrNotFound("job", jobID.String())
	}
	if !job.Status.CanTransition(next) {
		return structs.NewErrStateRejection("job_transition",
			"job %s cannot move from %s to %s", jobID, job.Status, next)
	}
	prev := job.Status
	job.Status = next
	f.history = append(f.history, &structs.JobStatusHistory{
		ID:         uuid.New(),
		JobID:      jobID,
		FromStatus: &prev,
		ToStatus:   next,
		Actor:      actor,
		Note:       note,
		CreatedAt:  f.tick(),
	})
	return nil
}

func (f *fakeStore) JobHistory(_ context.Context, jobID uuid.UUID) ([]*structs.JobStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.JobStatusHistory
	for _, h := range f.history {
		if h.JobID == jobID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) SchedulableJobsForDate(_ context.Context, date time.Time) ([]*structs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := state.Day(date)
	var out []*structs.Job
	for _, job := range f.jobs {
		if job.Status != structs.JobStatusApproved {
			continue
		}
		if job.PreferredDate != nil && !state.Day(*job.PreferredDate).Equal(day) {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeStore) ReassignableJobs(_ context.Context, staffID uuid.UUID, date time.Time) ([]*structs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := state.Day(date)
	seen := make(map[uuid.UUID]struct{})
	var out []*structs.Job
	for _, ap := range f.appts {
		if ap.StaffID != staffID || ap.Status != structs.AppointmentCancelled || !state.Day(ap.Date).Equal(day) {
			continue
		}
		if _, dup := seen[ap.JobID]; dup {
			continue
		}
		seen[ap.JobID] = struct{}{}
		if job, ok := f.jobs[ap.JobID]; ok && job.Status == structs.JobStatusApproved {
			out = append(out, job)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) JobsByIDs(_ context.Context, ids []uuid.UUID) ([]*structs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.Job
	for _, id := range ids {
		if job, ok := f.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveAppointmentsByDate(_ context.Context, date time.Time) ([]*structs.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := state.Day(date)
	var out []*structs.Appointment
	for _, ap := range f.appts {
		if ap.Status != structs.AppointmentCancelled && state.Day(ap.Date).Equal(day) {
			out = append(out, ap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StaffID != out[j].StaffID {
			return out[i].StaffID.String() < out[j].StaffID.String()
		}
		return out[i].RouteOrder < out[j].RouteOrder
	})
	return out, nil
}

func (f *fakeStore) AppointmentByID(_ context.Context, id uuid.UUID) (*structs.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ap, ok := f.appts[id]
	if !ok {
		return nil, structs.NewErrNotFound("appointment", id.String())
	}
	return ap, nil
}

func (f *fakeStore) ActiveAppointmentsByStaffDate(_ context.Context, staffID uuid.UUID, date time.Time) ([]*structs.Appointment, error) {
	all, _ := f.ActiveAppointmentsByDate(nil, date)
	var out []*structs.Appointment
	for _, ap := range all {
		if ap.StaffID == staffID {
			out = append(out, ap)
		}
	}
	return out, nil
}

func (f *fakeStore) ActiveAppointmentsByJob(_ context.Context, jobID uuid.UUID) ([]*structs.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.Appointment
	for _, ap := range f.appts {
		if ap.Status != structs.AppointmentCancelled && ap.JobID == jobID {
			out = append(out, ap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out, nil
}

func (f *fakeStore) CreateAppointments(_ context.Context, appts []*structs.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ap := range appts {
		if ap.ID == (uuid.UUID{}) {
			ap.ID = uuid.New()
		}
		ap.CreatedAt = f.tick()
		f.appts[ap.ID] = ap
	}
	return nil
}

func (f *fakeStore) UpdateAppointment(_ context.Context, ap *structs.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.appts[ap.ID]; !ok {
		return structs.NewErrNotFound("appointment", ap.ID.String())
	}
	f.appts[ap.ID] = ap
	return nil
}

func (f *fakeStore) CancelAppointmentRow(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ap, ok := f.appts[id]
	if !ok {
		return structs.NewErrNotFound("appointment", id.String())
	}
	ap.Status = structs.AppointmentCancelled
	ap.CancelReason = &reason
	ap.CancelledAt = &at
	return nil
}

func (f *fakeStore) DeleteAppointmentsByDate(_ context.Context, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := state.Day(date)
	for id, ap := range f.appts {
		if state.Day(ap.Date).Equal(day) {
			delete(f.appts, id)
		}
	}
	return nil
}

func (f *fakeStore) WaitlistByDate(_ context.Context, date time.Time) ([]*structs.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := state.Day(date)
	var out []*structs.WaitlistEntry
	for _, e := range f.waitlist {
		if state.Day(e.PreferredDate).Equal(day) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeStore) CreateWaitlistEntry(_ context.Context, e *structs.WaitlistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == (uuid.UUID{}) {
		e.ID = uuid.New()
	}
	e.CreatedAt = f.tick()
	f.waitlist[e.ID] = e
	return nil
}

func (f *fakeStore) DeleteWaitlistEntry(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.waitlist, id)
	return nil
}

func (f *fakeStore) MarkWaitlistNotified(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.waitlist[id]
	if !ok {
		return structs.NewErrNotFound("waitlist_entry", id.String())
	}
	e.NotifiedAt = &at
	return nil
}

func (f *fakeStore) RoutableStaff(_ context.Context) ([]*structs.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.Staff
	for _, s := range f.staff {
		if s.Routable() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeStore) StaffByID(_ context.Context, id uuid.UUID) (*structs.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.staff[id]
	if !ok {
		return nil, structs.NewErrNotFound("staff", id.String())
	}
	return s, nil
}

func (f *fakeStore) StaffByEmail(_ context.Context, email string) (*structs.Staff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.staff {
		if s.Email == email {
			return s, nil
		}
	}
	return nil, structs.NewErrNotFound("staff", email)
}

func (f *fakeStore) AvailabilityByDate(_ context.Context, date time.Time) ([]*structs.StaffAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := state.Day(date)
	var out []*structs.StaffAvailability
	for _, a := range f.avail {
		if state.Day(a.Date).Equal(day) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) AvailabilityFor(_ context.Context, staffID uuid.UUID, date time.Time) (*structs.StaffAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.avail[availKey(staffID, date)]
	if !ok {
		return nil, structs.NewErrNotFound("staff_availability", staffID.String())
	}
	return a, nil
}

func (f *fakeStore) SetAvailabilityFlag(_ context.Context, staffID uuid.UUID, date time.Time, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.avail[availKey(staffID, date)]
	if !ok {
		return structs.NewErrNotFound("staff_availability", staffID.String())
	}
	a.IsAvailable = available
	return nil
}

func (f *fakeStore) UpsertAvailability(_ context.Context, row *structs.StaffAvailability) error {
	if err := row.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == (uuid.UUID{}) {
		row.ID = uuid.New()
	}
	row.Date = state.Day(row.Date)
	f.avail[availKey(row.StaffID, row.Date)] = row
	return nil
}

func (f *fakeStore) CreateReassignment(_ context.Context, rec *structs.ScheduleReassignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == (uuid.UUID{}) {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = f.tick()
	f.reassigns = append(f.reassigns, rec)
	return nil
}

func (f *fakeStore) CreateClearAudit(_ context.Context, audit *structs.ScheduleClearAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if audit.ID == (uuid.UUID{}) {
		audit.ID = uuid.New()
	}
	audit.CreatedAt = f.tick()
	f.audits = append(f.audits, audit)
	return nil
}

func (f *fakeStore) RecentClearAudits(_ context.Context, limit int) ([]*structs.ScheduleClearAudit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	out := append([]*structs.ScheduleClearAudit(nil), f.audits...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) PropertiesByIDs(_ context.Context, ids []uuid.UUID) ([]*structs.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.Property
	for _, id := range ids {
		if p, ok := f.props[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) OfferingsByIDs(_ context.Context, ids []uuid.UUID) ([]*structs.ServiceOffering, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.ServiceOffering
	for _, id := range ids {
		if o, ok := f.offerings[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) InvoiceByID(_ context.Context, id uuid.UUID) (*structs.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, structs.NewErrNotFound("invoice", id.String())
	}
	return inv, nil
}

func (f *fakeStore) InvoiceByIDForUpdate(ctx context.Context, id uuid.UUID) (*structs.Invoice, error) {
	return f.InvoiceByID(ctx, id)
}

func (f *fakeStore) InvoiceByJobID(_ context.Context, jobID uuid.UUID) (*structs.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *structs.Invoice
	for _, inv := range f.invoices {
		if inv.JobID != jobID || inv.Status == structs.InvoiceVoid {
			continue
		}
		if newest == nil || inv.CreatedAt.After(newest.CreatedAt) {
			newest = inv
		}
	}
	if newest == nil {
		return nil, structs.NewErrNotFound("invoice", jobID.String())
	}
	return newest, nil
}

func (f *fakeStore) CreateInvoice(_ context.Context, inv *structs.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv.ID == (uuid.UUID{}) {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = f.tick()
	f.invoices[inv.ID] = inv
	return nil
}

func (f *fakeStore) UpdateInvoice(_ context.Context, inv *structs.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invoices[inv.ID]; !ok {
		return structs.NewErrNotFound("invoice", inv.ID.String())
	}
	f.invoices[inv.ID] = inv
	return nil
}

func (f *fakeStore) InvoicesDueLienWarning(_ context.Context, cutoff time.Time) ([]*structs.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.Invoice
	for _, inv := range f.invoices {
		if !inv.LienEligible || inv.LienWarningSentAt != nil {
			continue
		}
		switch inv.Status {
		case structs.InvoicePaid, structs.InvoiceVoid, structs.InvoiceDraft:
			continue
		}
		if inv.SentAt == nil || inv.SentAt.After(cutoff) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (f *fakeStore) OverdueInvoices(_ context.Context, asOf time.Time) ([]*structs.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*structs.Invoice
	for _, inv := range f.invoices {
		switch inv.Status {
		case structs.InvoiceSent, structs.InvoiceViewed, structs.InvoicePartiallyPaid:
		default:
			continue
		}
		if inv.DueDate.Before(state.Day(asOf)) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordSentMessage(_ context.Context, msg *structs.SentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID == (uuid.UUID{}) {
		msg.ID = uuid.New()
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) CustomerByID(_ context.Context, id uuid.UUID) (*structs.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, structs.NewErrNotFound("customer", id.String())
	}
	return c, nil
}

func (f *fakeStore) CreateCustomer(_ context.Context, c *structs.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == (uuid.UUID{}) {
		c.ID = uuid.New()
	}
	c.Phone = structs.NormalizePhone(c.Phone)
	c.CreatedAt = f.tick()
	f.customers[c.ID] = c
	return nil
}

func (f *fakeStore) LeadByID(_ context.Context, id uuid.UUID) (*structs.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok {
		return nil, structs.NewErrNotFound("lead", id.String())
	}
	return l, nil
}

func (f *fakeStore) LeadByIDForUpdate(ctx context.Context, id uuid.UUID) (*structs.Lead, error) {
	return f.LeadByID(ctx, id)
}

func (f *fakeStore) UpdateLead(_ context.Context, l *structs.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.leads[l.ID]; !ok {
		return structs.NewErrNotFound("lead", l.ID.String())
	}
	f.leads[l.ID] = l
	return nil
}

func (f *fakeStore) CreateProperty(_ context.Context, p *structs.Property) error {
	if err := p.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == (uuid.UUID{}) {
		p.ID = uuid.New()
	}
	f.props[p.ID] = p
	return nil
}

func (f *fakeStore) SetPrimaryProperty(_ context.Context, customerID, propertyID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.props[propertyID]
	if !ok || target.CustomerID != customerID {
		return structs.NewErrNotFound("property", propertyID.String())
	}
	for _, p := range f.props {
		if p.CustomerID == customerID {
			p.IsPrimary = p.ID == propertyID
		}
	}
	return nil
}
