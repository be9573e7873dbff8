// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package agent assembles the dispatch service: postgres state, travel
// estimation, the scheduling core, and the HTTP API, configured from the
// environment.
package agent

import (
	"context"
	"fmt"
	"time"

	log "github.com/hashicorp/go-hclog"

	"github.com/greenvale/dispatch/dispatch"
	"github.com/greenvale/dispatch/dispatch/state"
	"github.com/greenvale/dispatch/scheduler"
)

// Agent owns the running service and its shutdown order.
type Agent struct {
	logger log.Logger
	config *Config
	state  *state.StateStore
	core   *dispatch.Core
	http   *HTTPServer
}

// NewAgent opens the store, runs migrations, and starts the API server.
func NewAgent(logger log.Logger, cfg *Config) (*Agent, error) {
	st, err := state.Open(state.Config{
		DatabaseURL: cfg.DatabaseURL,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	if err := st.Bootstrap(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	core := dispatch.New(dispatch.Config{
		Logger:   logger,
		Store:    dispatch.NewSQLStore(st),
		Oracle:   buildEstimator(cfg),
		Notifier: buildNotifier(logger, cfg),
	})

	srv, err := NewHTTPServer(logger, cfg, core)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		logger: logger.Named("agent"),
		config: cfg,
		state:  st,
		core:   core,
		http:   srv,
	}
	a.logger.Info("agent started", "http", srv.Addr())
	return a, nil
}

// buildEstimator layers an LRU cache over the remote provider when one is
// configured, and over great-circle estimates otherwise.
func buildEstimator(cfg *Config) scheduler.TravelEstimator {
	var inner scheduler.TravelEstimator
	if cfg.TravelProviderURL != "" {
		inner = scheduler.NewRemoteEstimator(cfg.TravelProviderURL, cfg.TravelProviderToken)
	} else {
		inner = scheduler.NewGreatCircleEstimator()
	}
	return scheduler.NewCachedEstimator(inner, cfg.TravelCacheSize)
}

func buildNotifier(logger log.Logger, cfg *Config) dispatch.Notifier {
	if cfg.SMSProviderURL == "" {
		return dispatch.NoopNotifier{}
	}
	return newSMSNotifier(logger, cfg.SMSProviderURL, cfg.SMSProviderToken)
}

// HTTPAddr reports the bound API address.
func (a *Agent) HTTPAddr() string { return a.http.Addr() }

// Shutdown stops the API server, draining in-flight requests.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return a.http.Shutdown(shutdownCtx)
}
