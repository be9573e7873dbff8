// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package dispatch is the business core: it composes the pure scheduler with
// the persistent store and enforces the workflow rules that span both. Every
// schedule mutation for a date runs under that date's lock; the long-running
// solve itself happens outside the lock against an immutable snapshot, and
// the apply step re-validates the snapshot before committing.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/hashicorp/go-hclog"

	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/scheduler"
)

// Store is the persistence surface the core consumes. *state.StateStore
// satisfies it through NewSQLStore; tests substitute an in-memory fake.
type Store interface {
	WithDateLock(ctx context.Context, date time.Time, fn func(tx Store) error) error
	WithTransaction(ctx context.Context, fn func(tx Store) error) error

	JobByID(ctx context.Context, id uuid.UUID) (*structs.Job, error)
	CreateJob(ctx context.Context, job *structs.Job, actor string) error
	TransitionJob(ctx context.Context, jobID uuid.UUID, next structs.JobStatus, actor string, note *string) error
	JobHistory(ctx context.Context, jobID uuid.UUID) ([]*structs.JobStatusHistory, error)
	SchedulableJobsForDate(ctx context.Context, date time.Time) ([]*structs.Job, error)
	ReassignableJobs(ctx context.Context, staffID uuid.UUID, date time.Time) ([]*structs.Job, error)
	JobsByIDs(ctx context.Context, ids []uuid.UUID) ([]*structs.Job, error)

	ActiveAppointmentsByDate(ctx context.Context, date time.Time) ([]*structs.Appointment, error)
	AppointmentByID(ctx context.Context, id uuid.UUID) (*structs.Appointment, error)
	ActiveAppointmentsByStaffDate(ctx context.Context, staffID uuid.UUID, date time.Time) ([]*structs.Appointment, error)
	ActiveAppointmentsByJob(ctx context.Context, jobID uuid.UUID) ([]*structs.Appointment, error)
	CreateAppointments(ctx context.Context, appts []*structs.Appointment) error
	UpdateAppointment(ctx context.Context, appt *structs.Appointment) error
	CancelAppointmentRow(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	DeleteAppointmentsByDate(ctx context.Context, date time.Time) error

	WaitlistByDate(ctx context.Context, date time.Time) ([]*structs.WaitlistEntry, error)
	CreateWaitlistEntry(ctx context.Context, entry *structs.WaitlistEntry) error
	DeleteWaitlistEntry(ctx context.Context, id uuid.UUID) error
	MarkWaitlistNotified(ctx context.Context, id uuid.UUID, at time.Time) error

	RoutableStaff(ctx context.Context) ([]*structs.Staff, error)
	StaffByID(ctx context.Context, id uuid.UUID) (*structs.Staff, error)
	StaffByEmail(ctx context.Context, email string) (*structs.Staff, error)
	AvailabilityByDate(ctx context.Context, date time.Time) ([]*structs.StaffAvailability, error)
	AvailabilityFor(ctx context.Context, staffID uuid.UUID, date time.Time) (*structs.StaffAvailability, error)
	SetAvailabilityFlag(ctx context.Context, staffID uuid.UUID, date time.Time, available bool) error
	UpsertAvailability(ctx context.Context, row *structs.StaffAvailability) error

	CreateReassignment(ctx context.Context, rec *structs.ScheduleReassignment) error
	CreateClearAudit(ctx context.Context, audit *structs.ScheduleClearAudit) error
	RecentClearAudits(ctx context.Context, limit int) ([]*structs.ScheduleClearAudit, error)

	PropertiesByIDs(ctx context.Context, ids []uuid.UUID) ([]*structs.Property, error)
	OfferingsByIDs(ctx context.Context, ids []uuid.UUID) ([]*structs.ServiceOffering, error)

	InvoiceByID(ctx context.Context, id uuid.UUID) (*structs.Invoice, error)
	InvoiceByIDForUpdate(ctx context.Context, id uuid.UUID) (*structs.Invoice, error)
	InvoiceByJobID(ctx context.Context, jobID uuid.UUID) (*structs.Invoice, error)
	CreateInvoice(ctx context.Context, inv *structs.Invoice) error
	UpdateInvoice(ctx context.Context, inv *structs.Invoice) error
	InvoicesDueLienWarning(ctx context.Context, cutoff time.Time) ([]*structs.Invoice, error)
	OverdueInvoices(ctx context.Context, asOf time.Time) ([]*structs.Invoice, error)
	RecordSentMessage(ctx context.Context, msg *structs.SentMessage) error

	CustomerByID(ctx context.Context, id uuid.UUID) (*structs.Customer, error)
	CreateCustomer(ctx context.Context, c *structs.Customer) error
	LeadByID(ctx context.Context, id uuid.UUID) (*structs.Lead, error)
	LeadByIDForUpdate(ctx context.Context, id uuid.UUID) (*structs.Lead, error)
	UpdateLead(ctx context.Context, l *structs.Lead) error
	CreateProperty(ctx context.Context, p *structs.Property) error
	SetPrimaryProperty(ctx context.Context, customerID, propertyID uuid.UUID) error
}

// sqlStore adapts *state.StateStore to the Store interface. Everything is a
// promoted method except the transactional scopes, which rewrap the
// transaction handle so callbacks receive the interface type.
type sqlStore struct {
	*state.StateStore
}

// NewSQLStore wraps the postgres store for the core.
func NewSQLStore(st *state.StateStore) Store {
	return sqlStore{st}
}

func (s sqlStore) WithDateLock(ctx context.Context, date time.Time, fn func(tx Store) error) error {
	return s.StateStore.WithDateLock(ctx, date, func(tx *state.StateStore) error {
		return fn(sqlStore{tx})
	})
}

func (s sqlStore) WithTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.StateStore.WithTransaction(ctx, func(tx *state.StateStore) error {
		return fn(sqlStore{tx})
	})
}

// Notifier hands outbound customer messages to an external channel. Delivery
// is best-effort: the core records the handoff but a delivery failure never
// rolls back the schedule mutation that triggered it.
type Notifier interface {
	Send(ctx context.Context, phone, kind, body string) error
}

// NoopNotifier drops every message; the default when no SMS channel is
// configured.
type NoopNotifier struct{}

func (NoopNotifier) Send(context.Context, string, string, string) error { return nil }

// Config assembles a Core.
type Config struct {
	Logger   log.Logger
	Store    Store
	Oracle   scheduler.TravelEstimator
	Notifier Notifier

	// Clock overrides time.Now, used by tests to pin lifecycle timestamps.
	Clock func() time.Time
}

// Core is the top-level service facade. All methods are safe for concurrent
// use; cross-process safety comes from the store's per-date locks.
type Core struct {
	logger    log.Logger
	store     Store
	oracle    scheduler.TravelEstimator
	optimizer *scheduler.Optimizer
	notifier  Notifier
	now       func() time.Time
}

// New builds a Core from its collaborators.
func New(cfg Config) *Core {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.Named("core")

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Core{
		logger:    logger,
		store:     cfg.Store,
		oracle:    cfg.Oracle,
		optimizer: scheduler.NewOptimizer(logger, cfg.Oracle),
		notifier:  notifier,
		now:       clock,
	}
}

// Now reports the core's clock, which tests may have pinned.
func (c *Core) Now() time.Time {
	return c.now()
}

// notify sends a customer message and records the handoff. Failures are
// logged, never propagated.
func (c *Core) notify(ctx context.Context, customerID *uuid.UUID, phone, kind, body string) {
	if phone == "" {
		return
	}
	if err := c.notifier.Send(ctx, phone, kind, body); err != nil {
		c.logger.Warn("notification delivery failed", "kind", kind, "error", err)
		return
	}
	msg := &structs.SentMessage{
		CustomerID: customerID,
		Phone:      phone,
		Kind:       kind,
		Body:       body,
		SentAt:     c.now(),
	}
	if err := c.store.RecordSentMessage(ctx, msg); err != nil {
		c.logger.Warn("recording sent message failed", "kind", kind, "error", err)
	}
}
