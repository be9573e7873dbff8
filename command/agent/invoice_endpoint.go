// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"net/http"

	"github.com/shopspring/decimal"
)

func (s *HTTPServer) invoiceGetRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return s.core.Invoice(req.Context(), id)
}

func (s *HTTPServer) invoiceSendRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return s.core.SendInvoice(req.Context(), id)
}

func (s *HTTPServer) invoiceViewedRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return nil, s.core.MarkInvoiceViewed(req.Context(), id)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

func (s *HTTPServer) invoicePaymentRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args paymentRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	if args.Method == "" {
		args.Method = "manual"
	}
	return s.core.RecordPayment(req.Context(), id, args.Amount, args.Method)
}

type lateFeeRequest struct {
	Fee decimal.Decimal `json:"fee"`
}

func (s *HTTPServer) invoiceLateFeeRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args lateFeeRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	return s.core.ApplyLateFee(req.Context(), id, args.Fee)
}

type fileLienRequest struct {
	FiledDate string `json:"filed_date,omitempty"`
}

func (s *HTTPServer) invoiceFileLienRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	var args fileLienRequest
	if err := decodeBody(req, &args, false); err != nil {
		return nil, err
	}
	filed := s.core.Now()
	if args.FiledDate != "" {
		d, err := parseDateField(args.FiledDate, "filed_date")
		if err != nil {
			return nil, err
		}
		filed = d
	}
	return s.core.FileLien(req.Context(), id, filed)
}

func (s *HTTPServer) invoiceVoidRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	id, err := parseUUIDParam(req, "id")
	if err != nil {
		return nil, err
	}
	return nil, s.core.VoidInvoice(req.Context(), id, identityFrom(req).actor())
}

func (s *HTTPServer) invoiceSweepOverdueRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	return s.core.MarkOverdueInvoices(req.Context())
}

func (s *HTTPServer) invoiceLienWarningsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	return s.core.SendLienWarnings(req.Context())
}
