// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"net/http"

	"github.com/greenvale/dispatch/dispatch/structs"
)

type markUnavailableRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

func (s *HTTPServer) staffMarkUnavailableRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args markUnavailableRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	date, err := parseDateField(args.Date, "date")
	if err != nil {
		return nil, err
	}
	if args.Reason == "" {
		args.Reason = "unavailable"
	}
	return s.core.MarkUnavailable(req.Context(), id, date, args.Reason, identityFrom(req).actor())
}

type availabilityRequest struct {
	Date                 string `json:"date"`
	StartMinute          int    `json:"start_minute"`
	EndMinute            int    `json:"end_minute"`
	LunchStartMinute     *int   `json:"lunch_start_minute,omitempty"`
	LunchDurationMinutes int    `json:"lunch_duration_minutes,omitempty"`
	IsAvailable          *bool  `json:"is_available,omitempty"`
}

func (s *HTTPServer) staffAvailabilityRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args availabilityRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	date, err := parseDateField(args.Date, "date")
	if err != nil {
		return nil, err
	}

	row := &structs.StaffAvailability{
		StaffID:              id,
		Date:                 date,
		StartMinute:          args.StartMinute,
		EndMinute:            args.EndMinute,
		LunchStartMinute:     args.LunchStartMinute,
		LunchDurationMinutes: args.LunchDurationMinutes,
		IsAvailable:          true,
	}
	if args.IsAvailable != nil {
		row.IsAvailable = *args.IsAvailable
	}
	return row, s.core.SetAvailability(req.Context(), row)
}
