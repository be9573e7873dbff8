// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package mock provides populated domain fixtures for tests. Each builder
// returns a valid entity with fresh ids; callers tweak fields as needed.
package mock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greenvale/dispatch/dispatch/structs"
	"github.com/greenvale/dispatch/helper/pointer"
)

// Day is the canonical fixture date.
var Day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func Customer() *structs.Customer {
	return &structs.Customer{
		ID:        uuid.New(),
		FirstName: "Alex",
		LastName:  "Moreno",
		Email:     pointer.Of("alex.moreno@example.com"),
		Phone:     "+16025550134",
	}
}

func Property(customerID uuid.UUID) *structs.Property {
	return &structs.Property{
		ID:         uuid.New(),
		CustomerID: customerID,
		Address:    "118 W Southern Ave",
		City:       "Tempe",
		State:      "AZ",
		Zip:        "85282",
		Latitude:   33.393,
		Longitude:  -111.941,
		ZoneCount:  pointer.Of(6),
		SystemType: pointer.Of("drip"),
		IsPrimary:  true,
	}
}

func Offering() *structs.ServiceOffering {
	return &structs.ServiceOffering{
		ID:                     uuid.New(),
		Name:                   "Zone Repair",
		Category:               structs.JobCategoryRepair,
		PricingModel:           structs.PricingZoneBased,
		BasePrice:              decimal.NewFromInt(120),
		PerZonePrice:           decimal.NewFromInt(20),
		BaseDurationMinutes:    45,
		PerZoneDurationMinutes: 15,
		RequiredStaff:          1,
		BufferMinutes:          15,
		IsActive:               true,
	}
}

func Job(customerID, propertyID, offeringID uuid.UUID) *structs.Job {
	return &structs.Job{
		ID:                uuid.New(),
		CustomerID:        customerID,
		PropertyID:        propertyID,
		ServiceOfferingID: offeringID,
		Category:          structs.JobCategoryRepair,
		Status:            structs.JobStatusApproved,
		Priority:          structs.PriorityNormal,
		DurationMinutes:   90,
		RequiredStaff:     1,
		PreferredDate:     pointer.Of(Day),
		PriceSnapshot:     decimal.NewFromInt(240),
	}
}

func Staff() *structs.Staff {
	id := uuid.New()
	return &structs.Staff{
		ID:            id,
		FirstName:     "Riley",
		LastName:      "Chen",
		Email:         id.String() + "@greenvale.test",
		Role:          structs.StaffRoleTech,
		SkillLevel:    2,
		Equipment:     []string{"compressor", "trencher"},
		HomeLatitude:  33.448,
		HomeLongitude: -112.074,
		PasswordHash:  "$2a$10$fixturefixturefixturefixturefix",
		IsActive:      true,
	}
}

func Availability(staffID uuid.UUID, date time.Time) *structs.StaffAvailability {
	return &structs.StaffAvailability{
		ID:                   uuid.New(),
		StaffID:              staffID,
		Date:                 date,
		StartMinute:          480,
		EndMinute:            1020,
		LunchStartMinute:     pointer.Of(720),
		LunchDurationMinutes: 30,
		IsAvailable:          true,
	}
}

func Appointment(jobID, staffID uuid.UUID, date time.Time) *structs.Appointment {
	return &structs.Appointment{
		ID:          uuid.New(),
		JobID:       jobID,
		StaffID:     staffID,
		Date:        date,
		StartMinute: 540,
		EndMinute:   630,
		Status:      structs.AppointmentScheduled,
	}
}

func Invoice(jobID, customerID uuid.UUID) *structs.Invoice {
	return &structs.Invoice{
		ID:         uuid.New(),
		JobID:      jobID,
		CustomerID: customerID,
		Amount:     decimal.NewFromInt(240),
		DueDate:    Day.AddDate(0, 0, 30),
		Status:     structs.InvoiceDraft,
	}
}

func Lead() *structs.Lead {
	return &structs.Lead{
		ID:     uuid.New(),
		Name:   "Morgan Blake",
		Phone:  "+14805550171",
		Source: pointer.Of("website"),
	}
}
