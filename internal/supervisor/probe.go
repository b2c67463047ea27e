// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNetworkUnreachable is returned when the network stayed offline for the
// whole resume check.
var ErrNetworkUnreachable = errors.New("network unreachable")

// Prober reports whether the network is reachable.
type Prober interface {
	Online(ctx context.Context) bool
}

// NetworkProbe checks reachability with a HEAD request. Any HTTP response
// counts as online.
type NetworkProbe struct {
	client *resty.Client
	url    string
}

// NewNetworkProbe creates a probe against url.
func NewNetworkProbe(url string, timeout time.Duration) *NetworkProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &NetworkProbe{
		client: resty.New().SetTimeout(timeout),
		url:    url,
	}
}

// Online issues one probe request.
func (p *NetworkProbe) Online(ctx context.Context) bool {
	_, err := p.client.R().SetContext(ctx).Head(p.url)
	return err == nil
}
