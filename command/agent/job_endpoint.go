// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"net/http"

	"github.com/greenvale/dispatch/dispatch"
)

func (s *HTTPServer) jobCreateRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args dispatch.CreateJobRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	args.Actor = identityFrom(req).actor()
	return s.core.CreateJob(req.Context(), &args)
}

func (s *HTTPServer) jobGetRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return s.core.Job(req.Context(), id)
}

func (s *HTTPServer) jobHistoryRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return s.core.JobHistory(req.Context(), id)
}

func (s *HTTPServer) jobApproveRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return nil, s.core.ApproveJob(req.Context(), id, identityFrom(req).actor())
}

func (s *HTTPServer) jobCloseRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return nil, s.core.CloseJob(req.Context(), id, identityFrom(req).actor())
}

type jobCancelRequest struct {
	Reason string `json:"reason"`
}

func (s *HTTPServer) jobCancelRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args jobCancelRequest
	if err := decodeBody(req, &args, false); err != nil {
		return nil, err
	}
	if args.Reason == "" {
		args.Reason = "cancelled by dispatcher"
	}
	return nil, s.core.CancelJob(req.Context(), id, args.Reason, identityFrom(req).actor())
}
