// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/greenvale/dispatch/dispatch"
)

type scheduleGenerateRequest struct {
	ScheduleDate   string `json:"schedule_date"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
	MaxIterations  int    `json:"max_iterations,omitempty"`
}

func (r *scheduleGenerateRequest) options(actor string) dispatch.GenerateOptions {
	return dispatch.GenerateOptions{
		Budget:        time.Duration(r.TimeoutSeconds) * time.Second,
		Seed:          r.Seed,
		MaxIterations: r.MaxIterations,
		Actor:         actor,
	}
}

func (s *HTTPServer) scheduleGenerate(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args scheduleGenerateRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	date, err := parseDateField(args.ScheduleDate, "schedule_date")
	if err != nil {
		return nil, err
	}
	return s.core.GenerateSchedule(req.Context(), date, args.options(identityFrom(req).actor()))
}

type scheduleReoptimizeRequest struct {
	TargetDate     string `json:"target_date"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
	MaxIterations  int    `json:"max_iterations,omitempty"`
}

func (s *HTTPServer) scheduleReoptimize(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args scheduleReoptimizeRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	date, err := parseDateField(args.TargetDate, "target_date")
	if err != nil {
		return nil, err
	}
	opts := dispatch.GenerateOptions{
		Budget:        time.Duration(args.TimeoutSeconds) * time.Second,
		Seed:          args.Seed,
		MaxIterations: args.MaxIterations,
		Actor:         identityFrom(req).actor(),
	}
	return s.core.ReoptimizeSchedule(req.Context(), date, opts)
}

func (s *HTTPServer) scheduleCapacity(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	date, err := parseDateQuery(req)
	if err != nil {
		return nil, err
	}
	return s.core.Capacity(req.Context(), date)
}

type verifyResponse struct {
	Date       string   `json:"date"`
	Feasible   bool     `json:"feasible"`
	HardScore  int      `json:"hard_score"`
	SoftScore  int      `json:"soft_score"`
	Violations []string `json:"violations,omitempty"`
}

func (s *HTTPServer) scheduleVerify(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	date, err := parseDateQuery(req)
	if err != nil {
		return nil, err
	}
	score, violations, err := s.core.VerifySchedule(req.Context(), date)
	if err != nil {
		return nil, err
	}
	return &verifyResponse{
		Date:       date.Format("2006-01-02"),
		Feasible:   score.Feasible(),
		HardScore:  score.Hard,
		SoftScore:  score.Soft,
		Violations: violations,
	}, nil
}

type emergencyInsertRequest struct {
	JobID      uuid.UUID `json:"job_id"`
	TargetDate string    `json:"target_date"`

	// PriorityLevel is advisory; the job's stored priority governs whether
	// the insertion qualifies as an emergency.
	PriorityLevel  *int `json:"priority_level,omitempty"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty"`
}

func (s *HTTPServer) scheduleEmergencyInsert(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args emergencyInsertRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	if args.JobID == uuid.Nil {
		return nil, CodedError(http.StatusBadRequest, "job_id required")
	}
	date, err := parseDateField(args.TargetDate, "target_date")
	if err != nil {
		return nil, err
	}
	budget := time.Duration(args.TimeoutSeconds) * time.Second
	return s.core.EmergencyInsert(req.Context(), args.JobID, date, budget, identityFrom(req).actor())
}

func (s *HTTPServer) scheduleWaitlist(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	date, err := parseDateQuery(req)
	if err != nil {
		return nil, err
	}
	return s.core.Waitlist(req.Context(), date)
}

type fillGapRequest struct {
	Date        string     `json:"date"`
	StartMinute int        `json:"start_minute"`
	EndMinute   int        `json:"end_minute"`
	StaffID     *uuid.UUID `json:"staff_id,omitempty"`
}

func (s *HTTPServer) scheduleFillGap(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args fillGapRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	date, err := parseDateField(args.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.core.FillGap(req.Context(), &dispatch.GapRequest{
		Date:        date,
		StartMinute: args.StartMinute,
		EndMinute:   args.EndMinute,
		StaffID:     args.StaffID,
	})
}

type reassignStaffRequest struct {
	FromStaffID uuid.UUID `json:"from_staff_id"`
	ToStaffID   uuid.UUID `json:"to_staff_id"`
	Date        string    `json:"date"`
}

func (s *HTTPServer) scheduleReassignStaff(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args reassignStaffRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	if args.FromStaffID == uuid.Nil || args.ToStaffID == uuid.Nil {
		return nil, CodedError(http.StatusBadRequest, "from_staff_id and to_staff_id required")
	}
	date, err := parseDateField(args.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.core.ReassignStaff(req.Context(), args.FromStaffID, args.ToStaffID, date, identityFrom(req).actor())
}

func (s *HTTPServer) scheduleCoverageOptions(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	date, err := parseDateParam(req, "date")
	if err != nil {
		return nil, err
	}
	raw := req.URL.Query().Get("staff_id")
	staffID, err := uuid.Parse(raw)
	if err != nil {
		return nil, CodedError(http.StatusBadRequest, "valid staff_id query parameter required")
	}
	return s.core.CoverageOptions(req.Context(), staffID, date)
}

type scheduleClearRequest struct {
	Date  string `json:"date"`
	Notes string `json:"notes,omitempty"`
}

func (s *HTTPServer) scheduleClear(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args scheduleClearRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	date, err := parseDateField(args.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.core.ClearSchedule(req.Context(), date, identityFrom(req).actor(), args.Notes)
}

// maxClearsPageSize caps the recent-clears listing regardless of the
// caller's limit.
const maxClearsPageSize = 100

func (s *HTTPServer) scheduleRecentClears(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	limit := 20
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, CodedError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	if limit > maxClearsPageSize {
		limit = maxClearsPageSize
	}
	return s.core.RecentClears(req.Context(), limit)
}
