// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// deskshell supervises note-taking kernels and their workspace windows.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wingedpig/deskshell/internal/app"
)

var (
	version = "3.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "deskshell [--workspace=<dir>] [--port=<n>] [--openAsHidden] [<scheme>://...]",
	Short: "Desktop shell that boots workspace kernels and manages their windows",
	Long: `deskshell starts one kernel process per open workspace, waits for it to
become healthy and opens the workspace's main window.

Only one deskshell runs per configuration directory. A second launch hands
its arguments to the running instance and exits.`,
	Version: version,
	// Launch arguments are kept verbatim: unknown ones belong to the
	// window host.
	DisableFlagParsing: true,
	Args:               cobra.ArbitraryArgs,
	SilenceUsage:       true,
	RunE:               runShell,
}

func init() {
	rootCmd.AddCommand(versionCmd, doctorCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deskshell %s\n", version)
	},
}

func runShell(cmd *cobra.Command, args []string) error {
	for _, a := range args {
		switch a {
		case "-h", "--help":
			return cmd.Help()
		case "-v", "--version":
			fmt.Fprintf(cmd.OutOrStdout(), "deskshell %s\n", version)
			return nil
		}
	}

	application, err := app.New(app.Options{
		Argv:    args,
		Version: version,
	})
	if err != nil {
		return err
	}

	err = application.Run(context.Background())
	if errors.Is(err, app.ErrForwarded) {
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
