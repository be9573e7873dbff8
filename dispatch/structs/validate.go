// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package structs

import (
	"regexp"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
)

var (
	zipRe   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	digitRe = regexp.MustCompile(`\D`)
)

// NormalizePhone strips formatting and normalizes US numbers to E.164.
// The function is idempotent: normalizing an already-normalized number
// returns it unchanged.
func NormalizePhone(phone string) string {
	if strings.HasPrefix(phone, "+") {
		rest := digitRe.ReplaceAllString(phone[1:], "")
		return "+" + rest
	}
	digits := digitRe.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return digits
	}
}

// ValidZip reports whether zip is a 5-digit or ZIP+4 code.
func ValidZip(zip string) bool {
	return zipRe.MatchString(zip)
}

// Validate checks job field constraints prior to persistence.
func (j *Job) Validate() error {
	var mErr multierror.Error

	if !ValidJobCategory(j.Category) {
		mErr.Errors = append(mErr.Errors, NewErrValidation("job_category", "unknown category %q", j.Category))
	}
	if j.Priority < PriorityNormal || j.Priority > PriorityEmergency {
		mErr.Errors = append(mErr.Errors, NewErrValidation("job_priority", "priority must be in [0, 3], got %d", j.Priority))
	}
	if j.DurationMinutes <= 0 {
		mErr.Errors = append(mErr.Errors, NewErrValidation("job_duration", "duration must be positive, got %d", j.DurationMinutes))
	}
	if j.RequiredStaff < 1 {
		mErr.Errors = append(mErr.Errors, NewErrValidation("job_required_staff", "required staff must be at least 1, got %d", j.RequiredStaff))
	}
	if (j.WindowStartMinute == nil) != (j.WindowEndMinute == nil) {
		mErr.Errors = append(mErr.Errors, NewErrValidation("job_window", "preferred window requires both start and end"))
	}
	if j.HasWindow() {
		if *j.WindowStartMinute < 0 || *j.WindowEndMinute > MinutesPerDay || *j.WindowStartMinute >= *j.WindowEndMinute {
			mErr.Errors = append(mErr.Errors, NewErrValidation("job_window", "preferred window [%d, %d) is not a valid interval", *j.WindowStartMinute, *j.WindowEndMinute))
		}
	}

	return mErr.ErrorOrNil()
}

// Validate checks property field constraints prior to persistence.
func (p *Property) Validate() error {
	var mErr multierror.Error

	if p.Latitude < -90 || p.Latitude > 90 {
		mErr.Errors = append(mErr.Errors, NewErrValidation("property_latitude", "latitude %f out of range", p.Latitude))
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		mErr.Errors = append(mErr.Errors, NewErrValidation("property_longitude", "longitude %f out of range", p.Longitude))
	}
	if p.ZoneCount != nil && (*p.ZoneCount < 1 || *p.ZoneCount > 50) {
		mErr.Errors = append(mErr.Errors, NewErrValidation("property_zone_count", "zone count must be in [1, 50], got %d", *p.ZoneCount))
	}
	if !ValidZip(p.Zip) {
		mErr.Errors = append(mErr.Errors, NewErrValidation("property_zip", "invalid zip %q", p.Zip))
	}

	return mErr.ErrorOrNil()
}

// Validate checks the availability window shape. Lunch, when present, must
// lie fully inside the working window.
func (a *StaffAvailability) Validate() error {
	var mErr multierror.Error

	if a.StartMinute < 0 || a.EndMinute > MinutesPerDay || a.StartMinute >= a.EndMinute {
		mErr.Errors = append(mErr.Errors, NewErrValidation("availability_window", "window [%d, %d) is not a valid interval", a.StartMinute, a.EndMinute))
	}
	if a.LunchDurationMinutes < 0 || a.LunchDurationMinutes > 120 {
		mErr.Errors = append(mErr.Errors, NewErrValidation("availability_lunch", "lunch duration must be in [0, 120], got %d", a.LunchDurationMinutes))
	}
	if a.LunchStartMinute != nil {
		lunchEnd := *a.LunchStartMinute + a.LunchDurationMinutes
		if *a.LunchStartMinute < a.StartMinute || lunchEnd > a.EndMinute {
			mErr.Errors = append(mErr.Errors, NewErrValidation("availability_lunch", "lunch [%d, %d) outside working window", *a.LunchStartMinute, lunchEnd))
		}
	}

	return mErr.ErrorOrNil()
}
