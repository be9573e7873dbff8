// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package structs holds the domain model shared by the scheduler, the state
// store and the HTTP agent. Entities map one-to-one onto tables; enum columns
// are typed string constants so illegal values cannot be constructed by
// accident.
package structs

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MinutesPerDay bounds every minute-of-day column.
const MinutesPerDay = 24 * 60

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusRequested  JobStatus = "requested"
	JobStatusApproved   JobStatus = "approved"
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusClosed     JobStatus = "closed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// jobStatusTransitions is the legal transition graph. cancelled is reachable
// from every pre-terminal state and is itself terminal.
var jobStatusTransitions = map[JobStatus][]JobStatus{
	JobStatusRequested:  {JobStatusApproved, JobStatusCancelled},
	JobStatusApproved:   {JobStatusScheduled, JobStatusCancelled},
	JobStatusScheduled:  {JobStatusInProgress, JobStatusApproved, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
	JobStatusCompleted:  {JobStatusClosed},
	JobStatusClosed:     {},
	JobStatusCancelled:  {},
}

// Terminal returns true when no further transition is legal.
func (s JobStatus) Terminal() bool {
	return len(jobStatusTransitions[s]) == 0
}

// CanTransition reports whether s -> next is a legal lifecycle edge.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, t := range jobStatusTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// JobCategory classifies the kind of field work.
type JobCategory string

const (
	JobCategoryInstallation JobCategory = "installation"
	JobCategoryRepair       JobCategory = "repair"
	JobCategoryDiagnostic   JobCategory = "diagnostic"
	JobCategorySeasonal     JobCategory = "seasonal"
	JobCategoryLandscaping  JobCategory = "landscaping"
)

// ValidJobCategory reports whether c is a known category.
func ValidJobCategory(c JobCategory) bool {
	switch c {
	case JobCategoryInstallation, JobCategoryRepair, JobCategoryDiagnostic,
		JobCategorySeasonal, JobCategoryLandscaping:
		return true
	}
	return false
}

// Job priorities. Anything at or above PriorityUrgent treats the preferred
// time window as a hard constraint and qualifies for emergency insertion.
const (
	PriorityNormal    = 0
	PriorityElevated  = 1
	PriorityUrgent    = 2
	PriorityEmergency = 3
)

// Job is the unit of schedulable work.
type Job struct {
	ID                uuid.UUID                    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CustomerID        uuid.UUID                    `gorm:"type:uuid;not null;index" json:"customer_id"`
	PropertyID        uuid.UUID                    `gorm:"type:uuid;not null;index" json:"property_id"`
	ServiceOfferingID uuid.UUID                    `gorm:"type:uuid;not null" json:"service_offering_id"`
	Category          JobCategory                  `gorm:"type:varchar(20);not null" json:"category"`
	Status            JobStatus                    `gorm:"type:varchar(20);not null;default:'requested';index" json:"status"`
	Priority          int                          `gorm:"type:int;not null;default:0" json:"priority"`
	DurationMinutes   int                          `gorm:"type:int;not null" json:"duration_minutes"`
	RequiredEquipment datatypes.JSONSlice[string]  `gorm:"type:jsonb" json:"required_equipment"`
	RequiredStaff     int                          `gorm:"type:int;not null;default:1" json:"required_staff"`
	PreferredDate     *time.Time                   `gorm:"type:date" json:"preferred_date,omitempty"`
	WindowStartMinute *int                         `gorm:"type:int" json:"window_start_minute,omitempty"`
	WindowEndMinute   *int                         `gorm:"type:int" json:"window_end_minute,omitempty"`
	PriceSnapshot     decimal.Decimal              `gorm:"type:decimal(10,2);not null;default:0" json:"price_snapshot"`
	Description       *string                      `gorm:"type:text" json:"description,omitempty"`
	CreatedAt         time.Time                    `gorm:"default:now()" json:"created_at"`
	UpdatedAt         time.Time                    `gorm:"default:now()" json:"updated_at"`

	StatusHistory []JobStatusHistory `gorm:"foreignKey:JobID" json:"status_history,omitempty"`
}

func (Job) TableName() string { return "jobs" }

// HasWindow reports whether the job carries a preferred time window.
func (j *Job) HasWindow() bool {
	return j.WindowStartMinute != nil && j.WindowEndMinute != nil
}

// WindowIsHard reports whether the preferred window is a hard constraint.
func (j *Job) WindowIsHard() bool {
	return j.HasWindow() && j.Priority >= PriorityUrgent
}

// Copy returns a deep copy of the job.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	nj := *j
	nj.RequiredEquipment = append(datatypes.JSONSlice[string]{}, j.RequiredEquipment...)
	if j.PreferredDate != nil {
		d := *j.PreferredDate
		nj.PreferredDate = &d
	}
	if j.WindowStartMinute != nil {
		v := *j.WindowStartMinute
		nj.WindowStartMinute = &v
	}
	if j.WindowEndMinute != nil {
		v := *j.WindowEndMinute
		nj.WindowEndMinute = &v
	}
	nj.StatusHistory = append([]JobStatusHistory{}, j.StatusHistory...)
	return &nj
}

// JobStatusHistory is one immutable lifecycle transition record. Rows are
// append-only; the chain is monotone in CreatedAt.
type JobStatusHistory struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	JobID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	FromStatus *JobStatus `gorm:"type:varchar(20)" json:"from_status,omitempty"`
	ToStatus   JobStatus  `gorm:"type:varchar(20);not null" json:"to_status"`
	Actor      string     `gorm:"type:varchar(120);not null" json:"actor"`
	Note       *string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt  time.Time  `gorm:"default:now()" json:"created_at"`
}

func (JobStatusHistory) TableName() string { return "job_status_history" }

// Customer owns properties and receives invoices.
type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FirstName string    `gorm:"type:varchar(80);not null" json:"first_name"`
	LastName  string    `gorm:"type:varchar(80);not null" json:"last_name"`
	Email     *string   `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone     string    `gorm:"type:varchar(20);not null" json:"phone"`
	Notes     *string   `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:now()" json:"updated_at"`

	Properties []Property `gorm:"foreignKey:CustomerID" json:"properties,omitempty"`
}

func (Customer) TableName() string { return "customers" }

// Lead is a prospective customer. A lead converts at most once; conversion
// stamps ConvertedAt and the created customer's id.
type Lead struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string     `gorm:"type:varchar(160);not null" json:"name"`
	Email       *string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone       string     `gorm:"type:varchar(20);not null" json:"phone"`
	Source      *string    `gorm:"type:varchar(80)" json:"source,omitempty"`
	Notes       *string    `gorm:"type:text" json:"notes,omitempty"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
	CustomerID  *uuid.UUID `gorm:"type:uuid" json:"customer_id,omitempty"`
	CreatedAt   time.Time  `gorm:"default:now()" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:now()" json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

// Converted reports whether the lead has already been turned into a customer.
func (l *Lead) Converted() bool { return l.ConvertedAt != nil }

// Property is a geo-located service site owned by a customer.
type Property struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CustomerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"customer_id"`
	Address     string    `gorm:"type:varchar(255);not null" json:"address"`
	City        string    `gorm:"type:varchar(120);not null" json:"city"`
	State       string    `gorm:"type:varchar(2);not null" json:"state"`
	Zip         string    `gorm:"type:varchar(10);not null" json:"zip"`
	Latitude    float64   `gorm:"type:double precision;not null" json:"latitude"`
	Longitude   float64   `gorm:"type:double precision;not null" json:"longitude"`
	ZoneCount   *int      `gorm:"type:int" json:"zone_count,omitempty"`
	SystemType  *string   `gorm:"type:varchar(80)" json:"system_type,omitempty"`
	AccessNotes *string   `gorm:"type:text" json:"access_notes,omitempty"`
	IsPrimary   bool      `gorm:"not null;default:false" json:"is_primary"`
	CreatedAt   time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"default:now()" json:"updated_at"`
}

func (Property) TableName() string { return "properties" }

// PricingModel selects how a service offering is priced.
type PricingModel string

const (
	PricingFlat      PricingModel = "flat"
	PricingZoneBased PricingModel = "zone_based"
	PricingHourly    PricingModel = "hourly"
	PricingCustom    PricingModel = "custom"
)

// ServiceOffering is a catalog item.
type ServiceOffering struct {
	ID                     uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name                   string                      `gorm:"type:varchar(160);not null" json:"name"`
	Category               JobCategory                 `gorm:"type:varchar(20);not null" json:"category"`
	PricingModel           PricingModel                `gorm:"type:varchar(20);not null;default:'flat'" json:"pricing_model"`
	BasePrice              decimal.Decimal             `gorm:"type:decimal(10,2);not null;default:0" json:"base_price"`
	PerZonePrice           decimal.Decimal             `gorm:"type:decimal(10,2);not null;default:0" json:"per_zone_price"`
	BaseDurationMinutes    int                         `gorm:"type:int;not null" json:"base_duration_minutes"`
	PerZoneDurationMinutes int                         `gorm:"type:int;not null;default:0" json:"per_zone_duration_minutes"`
	RequiredEquipment      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"required_equipment"`
	RequiredStaff          int                         `gorm:"type:int;not null;default:1" json:"required_staff"`
	BufferMinutes          int                         `gorm:"type:int;not null;default:0" json:"buffer_minutes"`
	LienEligible           bool                        `gorm:"not null;default:false" json:"lien_eligible"`
	RequiresPrepay         bool                        `gorm:"not null;default:false" json:"requires_prepay"`
	IsActive               bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt              time.Time                   `gorm:"default:now()" json:"created_at"`
	UpdatedAt              time.Time                   `gorm:"default:now()" json:"updated_at"`
}

func (ServiceOffering) TableName() string { return "service_offerings" }

// DurationFor derives the estimated job duration in minutes for a site with
// the given zone count.
func (o *ServiceOffering) DurationFor(zoneCount int) int {
	if o.PricingModel == PricingZoneBased && zoneCount > 0 {
		return o.BaseDurationMinutes + o.PerZoneDurationMinutes*zoneCount
	}
	return o.BaseDurationMinutes
}

// PriceFor derives the price snapshot for a site with the given zone count.
func (o *ServiceOffering) PriceFor(zoneCount int) decimal.Decimal {
	if o.PricingModel == PricingZoneBased && zoneCount > 0 {
		return o.BasePrice.Add(o.PerZonePrice.Mul(decimal.NewFromInt(int64(zoneCount))))
	}
	return o.BasePrice
}

// StaffRole partitions workers; only techs participate in routing.
type StaffRole string

const (
	StaffRoleTech  StaffRole = "tech"
	StaffRoleSales StaffRole = "sales"
	StaffRoleAdmin StaffRole = "admin"
)

// Staff is a worker.
type Staff struct {
	ID             uuid.UUID                   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FirstName      string                      `gorm:"type:varchar(80);not null" json:"first_name"`
	LastName       string                      `gorm:"type:varchar(80);not null" json:"last_name"`
	Email          string                      `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Phone          *string                     `gorm:"type:varchar(20)" json:"phone,omitempty"`
	Role           StaffRole                   `gorm:"type:varchar(10);not null;default:'tech'" json:"role"`
	SkillLevel     int                         `gorm:"type:int;not null;default:1" json:"skill_level"`
	Certifications datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"certifications"`
	Equipment      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"equipment"`
	HomeLatitude   float64                     `gorm:"type:double precision;not null" json:"home_latitude"`
	HomeLongitude  float64                     `gorm:"type:double precision;not null" json:"home_longitude"`
	PasswordHash   string                      `gorm:"type:varchar(255);not null" json:"-"`
	IsActive       bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time                   `gorm:"default:now()" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"default:now()" json:"updated_at"`
}

func (Staff) TableName() string { return "staff" }

// Routable reports whether the staff member participates in scheduling.
func (s *Staff) Routable() bool {
	return s.Role == StaffRoleTech && s.IsActive
}

// StaffAvailability is one row per (staff, date): the working window and an
// optional lunch interval inside it. Unique on (staff, date).
type StaffAvailability struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	StaffID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_staff_avail_date" json:"staff_id"`
	Date                 time.Time `gorm:"type:date;not null;uniqueIndex:idx_staff_avail_date" json:"date"`
	StartMinute          int       `gorm:"type:int;not null" json:"start_minute"`
	EndMinute            int       `gorm:"type:int;not null" json:"end_minute"`
	LunchStartMinute     *int      `gorm:"type:int" json:"lunch_start_minute,omitempty"`
	LunchDurationMinutes int       `gorm:"type:int;not null;default:0" json:"lunch_duration_minutes"`
	IsAvailable          bool      `gorm:"not null;default:true" json:"is_available"`
	CreatedAt            time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt            time.Time `gorm:"default:now()" json:"updated_at"`
}

func (StaffAvailability) TableName() string { return "staff_availability" }

// WorkingMinutes is the gross on-duty span minus lunch.
func (a *StaffAvailability) WorkingMinutes() int {
	m := a.EndMinute - a.StartMinute
	if a.LunchStartMinute != nil {
		m -= a.LunchDurationMinutes
	}
	if m < 0 {
		return 0
	}
	return m
}

// LongestContiguous returns the longest uninterrupted stretch inside the
// window, accounting for lunch splitting the day in two.
func (a *StaffAvailability) LongestContiguous() int {
	if a.LunchStartMinute == nil || a.LunchDurationMinutes == 0 {
		return a.EndMinute - a.StartMinute
	}
	before := *a.LunchStartMinute - a.StartMinute
	after := a.EndMinute - (*a.LunchStartMinute + a.LunchDurationMinutes)
	if before > after {
		return before
	}
	return after
}

// AppointmentStatus is the lifecycle state of an Appointment.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentConfirmed  AppointmentStatus = "confirmed"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

// Cancellable reports whether the appointment may still be cancelled or
// rescheduled.
func (s AppointmentStatus) Cancellable() bool {
	return s == AppointmentScheduled || s == AppointmentConfirmed
}

// Pinned reports whether re-optimization must leave the appointment in
// place. Only freshly scheduled appointments may move.
func (s AppointmentStatus) Pinned() bool {
	return s != AppointmentScheduled
}

// Appointment is a concrete assignment of one job to one staff on one date.
// Multi-tech jobs are represented as one appointment per tech with equal
// start instants.
type Appointment struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	JobID           uuid.UUID         `gorm:"type:uuid;not null;index" json:"job_id"`
	StaffID         uuid.UUID         `gorm:"type:uuid;not null;index" json:"staff_id"`
	Date            time.Time         `gorm:"type:date;not null;index" json:"date"`
	StartMinute     int               `gorm:"type:int;not null" json:"start_minute"`
	EndMinute       int               `gorm:"type:int;not null" json:"end_minute"`
	Status          AppointmentStatus `gorm:"type:varchar(20);not null;default:'scheduled'" json:"status"`
	RouteOrder      int               `gorm:"type:int;not null;default:0" json:"route_order"`
	ArrivedAt       *time.Time        `json:"arrived_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CancelReason    *string           `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	RescheduledFrom *uuid.UUID        `gorm:"type:uuid" json:"rescheduled_from,omitempty"`
	CreatedAt       time.Time         `gorm:"default:now()" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"default:now()" json:"updated_at"`
}

func (Appointment) TableName() string { return "appointments" }

// Overlaps reports whether two appointments intersect in time. Cancelled
// appointments never overlap anything.
func (ap *Appointment) Overlaps(other *Appointment) bool {
	if ap.Status == AppointmentCancelled || other.Status == AppointmentCancelled {
		return false
	}
	if !ap.Date.Equal(other.Date) {
		return false
	}
	return ap.StartMinute < other.EndMinute && other.StartMinute < ap.EndMinute
}

// WaitlistEntry is a job awaiting a schedule slot.
type WaitlistEntry struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	JobID             uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	PreferredDate     time.Time  `gorm:"type:date;not null;index" json:"preferred_date"`
	WindowStartMinute *int       `gorm:"type:int" json:"window_start_minute,omitempty"`
	WindowEndMinute   *int       `gorm:"type:int" json:"window_end_minute,omitempty"`
	Priority          int        `gorm:"type:int;not null;default:0" json:"priority"`
	NotifiedAt        *time.Time `json:"notified_at,omitempty"`
	CreatedAt         time.Time  `gorm:"default:now()" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"default:now()" json:"updated_at"`
}

func (WaitlistEntry) TableName() string { return "schedule_waitlist" }

// InvoiceStatus is the lifecycle state of an Invoice.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceSent          InvoiceStatus = "sent"
	InvoiceViewed        InvoiceStatus = "viewed"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoiceVoid          InvoiceStatus = "void"
)

var invoiceStatusTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:         {InvoiceSent, InvoiceVoid},
	InvoiceSent:          {InvoiceViewed, InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue, InvoiceVoid},
	InvoiceViewed:        {InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue, InvoiceVoid},
	InvoicePartiallyPaid: {InvoicePaid, InvoiceOverdue, InvoiceVoid},
	InvoiceOverdue:       {InvoicePartiallyPaid, InvoicePaid, InvoiceVoid},
	InvoicePaid:          {},
	InvoiceVoid:          {},
}

// CanTransition reports whether s -> next is a legal invoice edge.
func (s InvoiceStatus) CanTransition(next InvoiceStatus) bool {
	for _, t := range invoiceStatusTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Invoice bills a completed job. Total = Amount + LateFee; PaidAmount never
// exceeds Total; lien filing requires eligibility plus a prior warning.
type Invoice struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	JobID             uuid.UUID       `gorm:"type:uuid;not null;index" json:"job_id"`
	CustomerID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	LateFee           decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"late_fee"`
	PaidAmount        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"paid_amount"`
	DueDate           time.Time       `gorm:"type:date;not null" json:"due_date"`
	Status            InvoiceStatus   `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	PaymentMethod     *string         `gorm:"type:varchar(40)" json:"payment_method,omitempty"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	ViewedAt          *time.Time      `json:"viewed_at,omitempty"`
	LienEligible      bool            `gorm:"not null;default:false" json:"lien_eligible"`
	LienWarningSentAt *time.Time      `json:"lien_warning_sent_at,omitempty"`
	LienFiledDate     *time.Time      `gorm:"type:date" json:"lien_filed_date,omitempty"`
	CreatedAt         time.Time       `gorm:"default:now()" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"default:now()" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// Total is the full amount owed.
func (i *Invoice) Total() decimal.Decimal {
	return i.Amount.Add(i.LateFee)
}

// Outstanding is the unpaid remainder, never negative.
func (i *Invoice) Outstanding() decimal.Decimal {
	out := i.Total().Sub(i.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// ScheduleClearAudit records an atomic schedule wipe with enough state to
// reconstruct the cleared day. Snapshot is a versioned JSON blob; newer code
// must keep decoding older versions.
type ScheduleClearAudit struct {
	ID               uuid.UUID                      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Date             time.Time                      `gorm:"type:date;not null;index" json:"date"`
	Snapshot         datatypes.JSON                 `gorm:"type:jsonb;not null" json:"snapshot"`
	JobIDs           datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb" json:"job_ids"`
	AppointmentCount int                            `gorm:"type:int;not null" json:"appointment_count"`
	ClearedBy        string                         `gorm:"type:varchar(120);not null" json:"cleared_by"`
	Notes            *string                        `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time                      `gorm:"default:now()" json:"created_at"`
}

func (ScheduleClearAudit) TableName() string { return "schedule_clear_audit" }

// ClearSnapshotVersion tags the snapshot blob format.
const ClearSnapshotVersion = 1

// ClearSnapshot is the decoded form of ScheduleClearAudit.Snapshot.
type ClearSnapshot struct {
	Version      int           `json:"version"`
	Date         string        `json:"date"`
	Appointments []Appointment `json:"appointments"`
}

// ScheduleReassignment records a bulk move of one staff's day to another.
type ScheduleReassignment struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OriginalStaffID uuid.UUID  `gorm:"type:uuid;not null" json:"original_staff_id"`
	NewStaffID      *uuid.UUID `gorm:"type:uuid" json:"new_staff_id,omitempty"`
	Date            time.Time  `gorm:"type:date;not null;index" json:"date"`
	Reason          string     `gorm:"type:text;not null" json:"reason"`
	JobsReassigned  int        `gorm:"type:int;not null" json:"jobs_reassigned"`
	CreatedAt       time.Time  `gorm:"default:now()" json:"created_at"`
}

func (ScheduleReassignment) TableName() string { return "schedule_reassignments" }

// SentMessage is a delivery record for outbound SMS. Delivery itself is an
// external collaborator; the core only records what was handed off.
type SentMessage struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CustomerID *uuid.UUID `gorm:"type:uuid" json:"customer_id,omitempty"`
	Phone      string     `gorm:"type:varchar(20);not null" json:"phone"`
	Kind       string     `gorm:"type:varchar(40);not null" json:"kind"`
	Body       string     `gorm:"type:text;not null" json:"body"`
	SentAt     time.Time  `gorm:"default:now()" json:"sent_at"`
}

func (SentMessage) TableName() string { return "sent_messages" }
