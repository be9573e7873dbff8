// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package command implements the dispatch CLI.
package command

import (
	"github.com/hashicorp/cli"
)

// Commands returns the mapping of CLI commands to factories.
func Commands(ui cli.Ui) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return &AgentCommand{Ui: ui}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{Ui: ui}, nil
		},
	}
}
