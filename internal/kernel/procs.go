// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"fmt"
	"sort"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// ProcessInfo describes a kernel process found on the system.
type ProcessInfo struct {
	PID        int    `json:"pid"`
	PPID       int    `json:"ppid"`
	Executable string `json:"executable"`
}

// processLister is swapped out in tests.
var processLister = ps.Processes

// FindKernelProcesses lists running processes whose executable matches the
// kernel name, with or without the windows suffix.
func FindKernelProcesses(name string) ([]ProcessInfo, error) {
	procs, err := processLister()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var found []ProcessInfo
	for _, p := range procs {
		exe := strings.TrimSuffix(p.Executable(), ".exe")
		if !strings.EqualFold(exe, name) {
			continue
		}
		found = append(found, ProcessInfo{
			PID:        p.Pid(),
			PPID:       p.PPid(),
			Executable: p.Executable(),
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].PID < found[j].PID })
	return found, nil
}

// OtherKernelPIDs returns pids of running kernels other than self.
func OtherKernelPIDs(name string, self int) []int {
	procs, err := FindKernelProcesses(name)
	if err != nil {
		return nil
	}
	var pids []int
	for _, p := range procs {
		if p.PID != self {
			pids = append(pids, p.PID)
		}
	}
	return pids
}
