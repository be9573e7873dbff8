// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch"
	"github.com/greenvale/dispatch/helper/pointer"
)

func (s *HTTPServer) appointmentStartRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return nil, s.core.StartJob(req.Context(), id, identityFrom(req).actor())
}

func (s *HTTPServer) appointmentCompleteRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return s.core.CompleteJob(req.Context(), id, identityFrom(req).actor())
}

type appointmentCancelRequest struct {
	Reason                  string `json:"reason"`
	AddToWaitlist           bool   `json:"add_to_waitlist,omitempty"`
	PreferredRescheduleDate string `json:"preferred_reschedule_date,omitempty"`
}

func (s *HTTPServer) appointmentCancelRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args appointmentCancelRequest
	if err := decodeBody(req, &args, false); err != nil {
		return nil, err
	}
	if args.Reason == "" {
		args.Reason = "cancelled by dispatcher"
	}
	opts := dispatch.CancelOptions{
		Reason:        args.Reason,
		Actor:         identityFrom(req).actor(),
		AddToWaitlist: args.AddToWaitlist,
	}
	if args.PreferredRescheduleDate != "" {
		pref, err := parseDateField(args.PreferredRescheduleDate, "preferred_reschedule_date")
		if err != nil {
			return nil, err
		}
		opts.PreferredRescheduleDate = pointer.Of(pref)
	}
	return s.core.CancelAppointment(req.Context(), id, opts)
}

type rescheduleRequest struct {
	NewDate      string     `json:"new_date"`
	NewTimeStart int        `json:"new_time_start"`
	NewTimeEnd   int        `json:"new_time_end"`
	NewStaffID   *uuid.UUID `json:"new_staff_id,omitempty"`
}

func (s *HTTPServer) appointmentRescheduleRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args rescheduleRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	date, err := parseDateField(args.NewDate, "new_date")
	if err != nil {
		return nil, err
	}
	return s.core.RescheduleAppointment(req.Context(), id, &dispatch.RescheduleRequest{
		NewDate:     date,
		StartMinute: args.NewTimeStart,
		EndMinute:   args.NewTimeEnd,
		NewStaffID:  args.NewStaffID,
	}, identityFrom(req).actor())
}
