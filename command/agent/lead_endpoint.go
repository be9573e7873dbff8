// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"net/http"

	"github.com/greenvale/dispatch/dispatch"
)

func (s *HTTPServer) leadConvertRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args dispatch.ConvertLeadRequest
	if err := decodeBody(req, &args, false); err != nil {
		return nil, err
	}
	return s.core.ConvertLead(req.Context(), id, &args)
}
