// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/cli"
	log "github.com/hashicorp/go-hclog"

	"github.com/greenvale/dispatch/command/agent"
	"github.com/greenvale/dispatch/version"
)

// AgentCommand runs the dispatch agent until interrupted.
type AgentCommand struct {
	Ui cli.Ui
}

func (c *AgentCommand) Help() string {
	helpText := `
Usage: dispatch agent

  Starts the dispatch agent: the API server and scheduling core backed by
  postgres. All configuration comes from the environment:

    DATABASE_URL          postgres DSN (required)
    JWT_SECRET            token signing secret (required)
    HTTP_ADDR             listen address (default :8600)
    JWT_ACCESS_TTL        session lifetime (default 1h)
    JWT_REMEMBER_TTL      remembered session lifetime (default 168h)
    TRAVEL_PROVIDER_URL   remote travel-time provider (optional)
    TRAVEL_PROVIDER_TOKEN provider credential
    TRAVEL_CACHE_SIZE     travel estimate cache entries (default 4096)
    SMS_PROVIDER_URL      outbound SMS gateway (optional)
    SMS_PROVIDER_TOKEN    gateway credential
    LOG_LEVEL             trace|debug|info|warn|error (default info)
`
	return strings.TrimSpace(helpText)
}

func (c *AgentCommand) Synopsis() string {
	return "Runs the dispatch agent"
}

func (c *AgentCommand) Run(_ []string) int {
	cfg, err := agent.LoadConfig()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Invalid configuration: %v", err))
		return 1
	}

	logger := log.New(&log.LoggerOptions{
		Name:  "dispatch",
		Level: log.LevelFromString(cfg.LogLevel),
	})
	logger.Info("starting dispatch agent", "version", version.GetVersion().FullVersionNumber(true))

	a, err := agent.NewAgent(logger, cfg)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to start agent: %v", err))
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("caught signal", "signal", sig.String())

	if err := a.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}
	return 0
}
