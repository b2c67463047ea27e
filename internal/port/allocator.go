// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package port hands out TCP ports for kernel processes.
package port

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// ErrNoPortAvailable is returned when no listening socket could be opened.
var ErrNoPortAvailable = errors.New("no port available")

// maxProbes bounds how many ephemeral sockets Allocate opens looking for a
// port that has not already been handed out.
const maxProbes = 16

// Allocator returns pinned ports unchanged and otherwise asks the OS for an
// ephemeral one. Ports it hands out stay reserved until Release so that
// concurrent boots never receive the same number.
type Allocator struct {
	mu     sync.Mutex
	host   string
	issued map[int]struct{}
	listen func(network, address string) (net.Listener, error)
}

// NewAllocator creates an allocator that probes on the given host.
// An empty host means loopback.
func NewAllocator(host string) *Allocator {
	if host == "" {
		host = "127.0.0.1"
	}
	return &Allocator{
		host:   host,
		issued: make(map[int]struct{}),
		listen: net.Listen,
	}
}

// Allocate returns pinned when it is positive. Otherwise it binds port 0,
// reads back the port the OS assigned and closes the socket.
func (a *Allocator) Allocate(pinned int) (int, error) {
	if pinned > 0 {
		return pinned, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < maxProbes; i++ {
		p, err := a.probe()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNoPortAvailable, err)
		}
		if _, taken := a.issued[p]; taken {
			continue
		}
		a.issued[p] = struct{}{}
		return p, nil
	}
	return 0, fmt.Errorf("%w: every probed port is already reserved", ErrNoPortAvailable)
}

// Release returns a port to the pool. Releasing an unknown port is a no-op.
func (a *Allocator) Release(p int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.issued, p)
}

func (a *Allocator) probe() (int, error) {
	ln, err := a.listen("tcp", net.JoinHostPort(a.host, "0"))
	if err != nil {
		return 0, err
	}
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %T", ln.Addr())
	}
	return addr.Port, nil
}
