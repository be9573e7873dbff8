// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"github.com/hashicorp/cli"

	"github.com/greenvale/dispatch/version"
)

// VersionCommand prints the binary's version identity.
type VersionCommand struct {
	Ui cli.Ui
}

func (c *VersionCommand) Help() string {
	return "Usage: dispatch version\n\n  Prints the dispatch version."
}

func (c *VersionCommand) Synopsis() string {
	return "Prints the dispatch version"
}

func (c *VersionCommand) Run(_ []string) int {
	c.Ui.Output(version.GetVersion().FullVersionNumber(true))
	return 0
}
