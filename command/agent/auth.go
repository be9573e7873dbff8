// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/greenvale/dispatch/dispatch/structs"
)

type contextKey int

const identityKey contextKey = 0

// identity is the authenticated caller attached to each request.
type identity struct {
	StaffID string
	Email   string
	Role    structs.StaffRole
}

// actor renders the caller for audit trails.
func (id *identity) actor() string {
	if id == nil {
		return "system"
	}
	return id.Email
}

func identityFrom(req *http.Request) *identity {
	id, _ := req.Context().Value(identityKey).(*identity)
	return id
}

type authClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// authenticator issues and verifies HS256 bearer tokens.
type authenticator struct {
	secret      []byte
	accessTTL   time.Duration
	rememberTTL time.Duration
}

func newAuthenticator(cfg *Config) *authenticator {
	return &authenticator{
		secret:      []byte(cfg.JWTSecret),
		accessTTL:   cfg.JWTAccessTTL,
		rememberTTL: cfg.JWTRememberTTL,
	}
}

func (a *authenticator) issue(staff *structs.Staff, remember bool, now time.Time) (string, time.Time, error) {
	ttl := a.accessTTL
	if remember {
		ttl = a.rememberTTL
	}
	exp := now.Add(ttl)
	claims := &authClaims{
		Email: staff.Email,
		Role:  string(staff.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "dispatch",
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	return tok, exp, err
}

func (a *authenticator) verify(raw string) (*identity, error) {
	claims := &authClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return &identity{
		StaffID: claims.Subject,
		Email:   claims.Email,
		Role:    structs.StaffRole(claims.Role),
	}, nil
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		raw := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == req.Header.Get("Authorization") {
			unauthorized(resp, "missing bearer token")
			return
		}
		id, err := a.verify(raw)
		if err != nil {
			unauthorized(resp, "invalid token")
			return
		}
		ctx := context.WithValue(req.Context(), identityKey, id)
		next.ServeHTTP(resp, req.WithContext(ctx))
	})
}

func unauthorized(resp http.ResponseWriter, msg string) {
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(http.StatusUnauthorized)
	_, _ = resp.Write([]byte(`{"error":"` + msg + `"}`))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	StaffID   string    `json:"staff_id"`
	Role      string    `json:"role"`
}

func (s *HTTPServer) loginRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	var args loginRequest
	if err := decodeBody(req, &args, true); err != nil {
		return nil, err
	}
	if args.Email == "" || args.Password == "" {
		return nil, CodedError(http.StatusBadRequest, "email and password required")
	}

	staff, err := s.core.Authenticate(req.Context(), args.Email, args.Password)
	if err != nil {
		// Collapse lookup and password failures into one answer.
		s.logger.Debug("login rejected", "email", args.Email)
		return nil, CodedError(http.StatusUnauthorized, "invalid credentials")
	}

	tok, exp, err := s.auth.issue(staff, args.Remember, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &loginResponse{
		Token:     tok,
		ExpiresAt: exp,
		StaffID:   staff.ID.String(),
		Role:      string(staff.Role),
	}, nil
}
