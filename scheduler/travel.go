// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TravelEstimator is the travel-time capability: estimated minutes between
// two geo-points. Implementations must be symmetric, return zero for equal
// points, and be deterministic for a given input within a process lifetime.
type TravelEstimator interface {
	EstimateMinutes(a, b Coordinates) int
}

const (
	earthRadiusKm = 6371.0

	// defaultRoadSpeedKmh approximates average suburban road speed; the
	// great-circle distance understates the real route, so the estimate
	// stays honest with the floor applied on top.
	defaultRoadSpeedKmh = 56.0

	// DefaultTravelFloorMinutes guards against zero-travel optimism between
	// distinct nearby sites.
	DefaultTravelFloorMinutes = 5
)

// GreatCircleEstimator is the default oracle: haversine distance at an
// assumed road speed with a floor for distinct points.
type GreatCircleEstimator struct {
	SpeedKmh     float64
	FloorMinutes int
}

// NewGreatCircleEstimator builds the default estimator.
func NewGreatCircleEstimator() *GreatCircleEstimator {
	return &GreatCircleEstimator{
		SpeedKmh:     defaultRoadSpeedKmh,
		FloorMinutes: DefaultTravelFloorMinutes,
	}
}

// EstimateMinutes implements TravelEstimator.
func (g *GreatCircleEstimator) EstimateMinutes(a, b Coordinates) int {
	if a == b {
		return 0
	}
	km := haversineKm(a, b)
	speed := g.SpeedKmh
	if speed <= 0 {
		speed = defaultRoadSpeedKmh
	}
	minutes := int(math.Ceil(km / speed * 60))
	if minutes < g.FloorMinutes {
		return g.FloorMinutes
	}
	return minutes
}

func haversineKm(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// pairKey canonicalizes an unordered coordinate pair so symmetric lookups
// share one cache entry.
type pairKey struct {
	aLat, aLng, bLat, bLng float64
}

func newPairKey(a, b Coordinates) pairKey {
	if a.Lat > b.Lat || (a.Lat == b.Lat && a.Lng > b.Lng) {
		a, b = b, a
	}
	return pairKey{a.Lat, a.Lng, b.Lat, b.Lng}
}

// CachedEstimator is a read-through, size-bounded, concurrency-safe wrapper
// around another estimator. Entries never outlive the process.
type CachedEstimator struct {
	inner TravelEstimator
	cache *lru.Cache[pairKey, int]
}

// DefaultTravelCacheSize bounds the pair cache.
const DefaultTravelCacheSize = 4096

// NewCachedEstimator wraps inner with an LRU of the given size.
func NewCachedEstimator(inner TravelEstimator, size int) *CachedEstimator {
	if size <= 0 {
		size = DefaultTravelCacheSize
	}
	cache, _ := lru.New[pairKey, int](size)
	return &CachedEstimator{inner: inner, cache: cache}
}

// EstimateMinutes implements TravelEstimator.
func (c *CachedEstimator) EstimateMinutes(a, b Coordinates) int {
	key := newPairKey(a, b)
	if v, ok := c.cache.Get(key); ok {
		return v
	}
	v := c.inner.EstimateMinutes(a, b)
	c.cache.Add(key, v)
	return v
}

// RemoteEstimator queries an external routing provider and falls back to the
// great-circle estimate when the provider is unreachable or slow. The
// request timeout is owned here so solver iterations never block on the
// network longer than intended.
type RemoteEstimator struct {
	URL      string
	Token    string
	Client   *http.Client
	Fallback TravelEstimator
}

// NewRemoteEstimator builds a provider-backed estimator.
func NewRemoteEstimator(providerURL, token string) *RemoteEstimator {
	return &RemoteEstimator{
		URL:      providerURL,
		Token:    token,
		Client:   &http.Client{Timeout: 2 * time.Second},
		Fallback: NewGreatCircleEstimator(),
	}
}

// EstimateMinutes implements TravelEstimator.
func (r *RemoteEstimator) EstimateMinutes(a, b Coordinates) int {
	if a == b {
		return 0
	}
	minutes, err := r.query(a, b)
	if err != nil {
		return r.Fallback.EstimateMinutes(a, b)
	}
	return minutes
}

func (r *RemoteEstimator) query(a, b Coordinates) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Client.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("from", fmt.Sprintf("%f,%f", a.Lat, a.Lng))
	q.Set("to", fmt.Sprintf("%f,%f", b.Lat, b.Lng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("travel provider returned %d", resp.StatusCode)
	}

	var out struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Minutes < 0 {
		return 0, fmt.Errorf("travel provider returned negative minutes")
	}
	return out.Minutes, nil
}
