// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shoenig/test/must"
)

func TestGreatCircleEstimator_EqualPoints(t *testing.T) {
	g := NewGreatCircleEstimator()
	p := Coordinates{Lat: 44.98, Lng: -93.26}
	must.Zero(t, g.EstimateMinutes(p, p))
}

func TestGreatCircleEstimator_Symmetric(t *testing.T) {
	g := NewGreatCircleEstimator()
	a := Coordinates{Lat: 44.98, Lng: -93.26}
	b := Coordinates{Lat: 45.10, Lng: -93.45}
	must.Eq(t, g.EstimateMinutes(a, b), g.EstimateMinutes(b, a))
}

func TestGreatCircleEstimator_Floor(t *testing.T) {
	g := NewGreatCircleEstimator()

	// Two points a few hundred meters apart must not produce zero-travel
	// optimism.
	a := Coordinates{Lat: 44.9800, Lng: -93.2600}
	b := Coordinates{Lat: 44.9810, Lng: -93.2610}
	must.Eq(t, DefaultTravelFloorMinutes, g.EstimateMinutes(a, b))
}

func TestGreatCircleEstimator_Deterministic(t *testing.T) {
	g := NewGreatCircleEstimator()
	a := Coordinates{Lat: 44.98, Lng: -93.26}
	b := Coordinates{Lat: 46.80, Lng: -92.10}

	first := g.EstimateMinutes(a, b)
	for i := 0; i < 10; i++ {
		must.Eq(t, first, g.EstimateMinutes(a, b))
	}
	must.Positive(t, first)
}

func TestCachedEstimator_SymmetricKey(t *testing.T) {
	calls := 0
	inner := estimatorFunc(func(a, b Coordinates) int {
		calls++
		return 17
	})
	c := NewCachedEstimator(inner, 8)

	a := Coordinates{Lat: 1, Lng: 2}
	b := Coordinates{Lat: 3, Lng: 4}

	must.Eq(t, 17, c.EstimateMinutes(a, b))
	must.Eq(t, 17, c.EstimateMinutes(b, a))
	must.Eq(t, 1, calls)
}

func TestCachedEstimator_Bounded(t *testing.T) {
	inner := NewGreatCircleEstimator()
	c := NewCachedEstimator(inner, 2)

	for i := 0; i < 10; i++ {
		a := Coordinates{Lat: float64(i), Lng: 0}
		b := Coordinates{Lat: float64(i), Lng: 1}
		_ = c.EstimateMinutes(a, b)
	}
	must.True(t, c.cache.Len() <= 2)
}

type estimatorFunc func(a, b Coordinates) int

func (f estimatorFunc) EstimateMinutes(a, b Coordinates) int { return f(a, b) }

func TestRemoteEstimator_ProviderResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		must.Eq(t, "Bearer sekrit", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]int{"minutes": 42})
	}))
	defer srv.Close()

	r := NewRemoteEstimator(srv.URL, "sekrit")
	got := r.EstimateMinutes(Coordinates{Lat: 1}, Coordinates{Lat: 2})
	must.Eq(t, 42, got)
}

func TestRemoteEstimator_FallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRemoteEstimator(srv.URL, "")
	a := Coordinates{Lat: 44.98, Lng: -93.26}
	b := Coordinates{Lat: 45.10, Lng: -93.45}

	want := NewGreatCircleEstimator().EstimateMinutes(a, b)
	must.Eq(t, want, r.EstimateMinutes(a, b))
}
