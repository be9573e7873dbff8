// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	log "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/greenvale/dispatch/dispatch"
	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/dispatch/structs"
)

// HTTPServer serves the v1 API. Handlers return (result, error); the wrap
// helper turns results into JSON and errors into coded responses so the
// endpoint methods stay free of transport noise.
type HTTPServer struct {
	logger log.Logger
	core   *dispatch.Core
	auth   *authenticator
	router chi.Router
	srv    *http.Server
	ln     net.Listener
}

// HTTPCodedError is an error with an explicit HTTP status. Endpoints return
// it when the default kind mapping is not what they want.
type HTTPCodedError interface {
	error
	Code() int
}

func CodedError(c int, msg string) HTTPCodedError {
	return &codedError{msg, c}
}

type codedError struct {
	s    string
	code int
}

func (e *codedError) Error() string { return e.s }
func (e *codedError) Code() int     { return e.code }

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// NewHTTPServer wires the router and starts listening. Call Shutdown to stop.
func NewHTTPServer(logger log.Logger, cfg *Config, core *dispatch.Core) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.HTTPAddr, err)
	}

	s := &HTTPServer{
		logger: logger.Named("http"),
		core:   core,
		auth:   newAuthenticator(cfg),
		ln:     ln,
	}
	s.router = s.buildRouter()
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server exited", "error", err)
		}
	}()
	s.logger.Info("api listening", "address", ln.Addr().String())
	return s, nil
}

// Addr reports the bound listen address.
func (s *HTTPServer) Addr() string { return s.ln.Addr().String() }

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		MaxAge:         300,
	}))

	r.Use(csrfCheck)

	r.Get("/healthz", s.wrap(s.healthRequest))
	r.Post("/v1/auth/login", s.wrap(s.loginRequest))

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)

		r.Route("/v1/schedule", func(r chi.Router) {
			r.Post("/generate", s.wrap(s.scheduleGenerate))
			r.Post("/reoptimize", s.wrap(s.scheduleReoptimize))
			r.Get("/capacity", s.wrap(s.scheduleCapacity))
			r.Get("/verify", s.wrap(s.scheduleVerify))
			r.Post("/emergency-insert", s.wrap(s.scheduleEmergencyInsert))
			r.Get("/waitlist", s.wrap(s.scheduleWaitlist))
			r.Post("/fill-gap", s.wrap(s.scheduleFillGap))
			r.Post("/reassign-staff", s.wrap(s.scheduleReassignStaff))
			r.Get("/coverage-options/{date}", s.wrap(s.scheduleCoverageOptions))
			r.Post("/clear", s.wrap(s.scheduleClear))
			r.Get("/clears/recent", s.wrap(s.scheduleRecentClears))
		})

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", s.wrap(s.jobCreateRequest))
			r.Get("/{id}", s.wrap(s.jobGetRequest))
			r.Get("/{id}/history", s.wrap(s.jobHistoryRequest))
			r.Post("/{id}/approve", s.wrap(s.jobApproveRequest))
			r.Post("/{id}/close", s.wrap(s.jobCloseRequest))
			r.Post("/{id}/cancel", s.wrap(s.jobCancelRequest))
		})

		r.Route("/v1/appointments", func(r chi.Router) {
			r.Post("/{id}/start", s.wrap(s.appointmentStartRequest))
			r.Post("/{id}/complete", s.wrap(s.appointmentCompleteRequest))
			r.Post("/{id}/cancel", s.wrap(s.appointmentCancelRequest))
			r.Post("/{id}/reschedule", s.wrap(s.appointmentRescheduleRequest))
		})

		r.Route("/v1/staff", func(r chi.Router) {
			r.Post("/{id}/mark-unavailable", s.wrap(s.staffMarkUnavailableRequest))
			r.Put("/{id}/availability", s.wrap(s.staffAvailabilityRequest))
		})

		r.Route("/v1/invoices", func(r chi.Router) {
			r.Get("/{id}", s.wrap(s.invoiceGetRequest))
			r.Post("/{id}/send", s.wrap(s.invoiceSendRequest))
			r.Post("/{id}/viewed", s.wrap(s.invoiceViewedRequest))
			r.Post("/{id}/payments", s.wrap(s.invoicePaymentRequest))
			r.Post("/{id}/late-fee", s.wrap(s.invoiceLateFeeRequest))
			r.Post("/{id}/lien", s.wrap(s.invoiceFileLienRequest))
			r.Post("/{id}/void", s.wrap(s.invoiceVoidRequest))
			r.Post("/sweep-overdue", s.wrap(s.invoiceSweepOverdueRequest))
			r.Post("/send-lien-warnings", s.wrap(s.invoiceLienWarningsRequest))
		})

		r.Post("/v1/leads/{id}/convert", s.wrap(s.leadConvertRequest))
	})

	return r
}

// csrfCheck enforces the double-submit pattern for browser clients: when a
// csrf_token cookie rides along on a state-changing request, a matching
// X-CSRF-Token header must too. Header-auth API clients carry no cookie and
// pass through untouched.
func csrfCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(resp, req)
			return
		}
		cookie, err := req.Cookie("csrf_token")
		if err == nil && cookie.Value != "" {
			if req.Header.Get("X-CSRF-Token") != cookie.Value {
				resp.Header().Set("Content-Type", "application/json")
				resp.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(resp).Encode(errorResponse{Error: "csrf token mismatch"})
				return
			}
		}
		next.ServeHTTP(resp, req)
	})
}

type apiHandler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)

// wrap renders a handler's result as JSON and maps failures onto HTTP
// statuses. Domain errors carry their kind; anything unrecognized is treated
// as transient and kept vague in the body.
func (s *HTTPServer) wrap(handler apiHandler) http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		start := time.Now()
		defer metrics.MeasureSince([]string{"dispatch", "http", "request"}, start)

		obj, err := handler(resp, req)
		if err != nil {
			s.writeError(resp, req, err)
			return
		}
		if obj == nil {
			resp.WriteHeader(http.StatusNoContent)
			return
		}
		resp.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(resp)
		if err := enc.Encode(obj); err != nil {
			s.logger.Error("failed to encode response", "path", req.URL.Path, "error", err)
		}
	}
}

func (s *HTTPServer) writeError(resp http.ResponseWriter, req *http.Request, err error) {
	code := http.StatusInternalServerError
	body := errorResponse{Error: err.Error()}

	var coded HTTPCodedError
	var domain *structs.Error
	switch {
	case errors.As(err, &coded):
		code = coded.Code()
	case errors.As(err, &domain):
		code = kindToStatus(domain.Kind)
		body.Code = domain.Code
		body.Details = domain.Details
	default:
		// Unrecognized errors are server faults; do not leak internals.
		body.Error = "internal error"
		s.logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "error", err)
	}

	if code >= 500 {
		s.logger.Error("request failed", "method", req.Method, "path", req.URL.Path,
			"code", code, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", req.Method, "path", req.URL.Path,
			"code", code, "error", err)
	}

	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(code)
	_ = json.NewEncoder(resp).Encode(body)
}

func kindToStatus(kind structs.ErrorKind) int {
	switch kind {
	case structs.ErrKindNotFound:
		return http.StatusNotFound
	case structs.ErrKindValidation:
		return http.StatusBadRequest
	case structs.ErrKindStateRejection:
		return http.StatusConflict
	case structs.ErrKindInfeasible:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *HTTPServer) healthRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	return map[string]string{"status": "ok"}, nil
}

// decodeBody parses a JSON request body into out. A missing body is allowed
// when out is optional; callers pass required=true to insist on one.
func decodeBody(req *http.Request, out interface{}, required bool) error {
	if req.Body == nil || req.ContentLength == 0 {
		if required {
			return CodedError(http.StatusBadRequest, "request body required")
		}
		return nil
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return CodedError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func parseUUIDParam(req *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(req, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, CodedError(http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}

func parseDateParam(req *http.Request, name string) (time.Time, error) {
	raw := chi.URLParam(req, name)
	d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, CodedError(http.StatusBadRequest, fmt.Sprintf("invalid %s %q, want YYYY-MM-DD", name, raw))
	}
	return state.Day(d), nil
}

func parseDateField(raw, name string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, CodedError(http.StatusBadRequest, fmt.Sprintf("invalid %s %q, want YYYY-MM-DD", name, raw))
	}
	return state.Day(d), nil
}

func parseDateQuery(req *http.Request) (time.Time, error) {
	raw := req.URL.Query().Get("date")
	if raw == "" {
		return time.Time{}, CodedError(http.StatusBadRequest, "date query parameter required")
	}
	return parseDateField(raw, "date")
}
