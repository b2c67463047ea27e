// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/deskshell/internal/config"
	"github.com/wingedpig/deskshell/internal/instance"
	"github.com/wingedpig/deskshell/internal/kernel"
	"github.com/wingedpig/deskshell/pkg/client"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Report running kernels and the running shell instance",
	Long: `doctor lists kernel processes found on this machine, the kernel binary
location and, when a shell is running, its control API address and open
workspaces.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.LoadEnv()
		if err != nil {
			return err
		}
		cfg, err := config.NewLoader().Resolve(cmd.Context(), env)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		defer cancel()
		return runDoctor(ctx, cmd.OutOrStdout(), cfg, kernel.FindKernelProcesses)
	},
}

func init() {
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 5*time.Second, "Timeout for querying the running shell")
}

type processFinder func(name string) ([]kernel.ProcessInfo, error)

// runDoctor writes the report to out. Problems found along the way are part
// of the report, not errors.
func runDoctor(ctx context.Context, out io.Writer, cfg *config.Config, find processFinder) error {
	fmt.Fprintf(out, "Configuration: %s\n", cfg.App.ConfDir)

	binary := cfg.KernelExecutable(runtime.GOOS)
	if err := kernel.NewSpawner(cfg.Kernel.Dir, cfg.Kernel.Name, nil).Check(); err != nil {
		fmt.Fprintf(out, "Kernel binary: %s (missing)\n", binary)
	} else {
		fmt.Fprintf(out, "Kernel binary: %s\n", binary)
	}

	procs, err := find(cfg.Kernel.Name)
	switch {
	case err != nil:
		fmt.Fprintf(out, "Kernel processes: unavailable (%v)\n", err)
	case len(procs) == 0:
		fmt.Fprintln(out, "Kernel processes: none")
	default:
		fmt.Fprintf(out, "Kernel processes: %d\n", len(procs))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  PID\tPPID\tEXECUTABLE")
		for _, p := range procs {
			fmt.Fprintf(w, "  %d\t%d\t%s\n", p.PID, p.PPID, p.Executable)
		}
		w.Flush()
	}

	rec, err := instance.ReadRecord(cfg.App.ConfDir)
	if errors.Is(err, instance.ErrNoRecord) {
		fmt.Fprintln(out, "Shell: not running")
		return nil
	}
	if err != nil {
		fmt.Fprintf(out, "Shell: unreadable instance record (%v)\n", err)
		return nil
	}

	c := client.New(rec.URL())
	info, err := c.Info(ctx)
	if err != nil {
		fmt.Fprintf(out, "Shell: pid %d at %s, not responding (%v)\n", rec.PID, rec.URL(), err)
		return nil
	}
	fmt.Fprintf(out, "Shell: %s %s, pid %d at %s\n", info.Product, info.Version, info.PID, rec.URL())

	workspaces, err := c.Workspaces.List(ctx)
	if err != nil {
		fmt.Fprintf(out, "Workspaces: unavailable (%v)\n", err)
		return nil
	}
	if len(workspaces) == 0 {
		fmt.Fprintln(out, "Workspaces: none")
		return nil
	}
	fmt.Fprintf(out, "Workspaces: %d\n", len(workspaces))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PORT\tPID\tWORKSPACE")
	for _, ws := range workspaces {
		fmt.Fprintf(w, "  %d\t%d\t%s\n", ws.Port, ws.PID, ws.Workspace)
	}
	return w.Flush()
}
