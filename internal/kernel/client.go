// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRequestTimeout = 5 * time.Second

// APIError is a well-formed kernel response carrying a non-zero code.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kernel api error %d: %s", e.Code, e.Msg)
}

// Proxy is the network proxy configured in a workspace.
type Proxy struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   string `json:"port"`
}

// URL renders the proxy as scheme://host:port. An unset proxy renders as
// "://", which window hosts treat as "use the system proxy".
func (p Proxy) URL() string {
	if p.Host == "" {
		return p.Scheme + "://"
	}
	return p.Scheme + "://" + p.Host + ":" + p.Port
}

// Network is the payload of /api/system/getNetwork.
type Network struct {
	Proxy Proxy `json:"proxy"`
}

type apiResult struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client talks to kernel processes over their local HTTP API. A single
// client serves every kernel; requests are addressed by port.
type Client struct {
	http *resty.Client
	host string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// WithHost overrides the kernel host (default 127.0.0.1).
func WithHost(host string) ClientOption {
	return func(c *Client) {
		c.host = host
	}
}

// NewClient creates a kernel API client.
func NewClient(userAgent string, opts ...ClientOption) *Client {
	r := resty.New().
		SetTimeout(defaultRequestTimeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)

	c := &Client{http: r, host: "127.0.0.1"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the origin of the kernel listening on port.
func (c *Client) BaseURL(port int) string {
	return "http://" + c.host + ":" + strconv.Itoa(port)
}

// Version returns the kernel's version string.
func (c *Client) Version(ctx context.Context, port int) (string, error) {
	var v string
	if err := c.call(ctx, "GET", port, "/api/system/version", nil, &v); err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// BootProgress returns the kernel's boot progress in percent.
func (c *Client) BootProgress(ctx context.Context, port int) (int, error) {
	var data struct {
		Progress float64 `json:"progress"`
	}
	if err := c.call(ctx, "GET", port, "/api/system/bootProgress", nil, &data); err != nil {
		return 0, fmt.Errorf("get boot progress: %w", err)
	}
	return int(data.Progress), nil
}

// Exit asks the kernel to shut down.
func (c *Client) Exit(ctx context.Context, port int) error {
	if err := c.call(ctx, "POST", port, "/api/system/exit", nil, nil); err != nil {
		return fmt.Errorf("request exit: %w", err)
	}
	return nil
}

// UIProc tells the kernel which process owns its UI.
func (c *Client) UIProc(ctx context.Context, port, pid int) error {
	q := map[string]string{"pid": strconv.Itoa(pid)}
	if err := c.call(ctx, "POST", port, "/api/system/uiproc", q, nil); err != nil {
		return fmt.Errorf("report ui process: %w", err)
	}
	return nil
}

// PerformSync triggers a background data sync.
func (c *Client) PerformSync(ctx context.Context, port int) error {
	if err := c.call(ctx, "POST", port, "/api/sync/performSync", nil, nil); err != nil {
		return fmt.Errorf("perform sync: %w", err)
	}
	return nil
}

// GetNetwork returns the workspace's network settings.
func (c *Client) GetNetwork(ctx context.Context, port int) (Network, error) {
	var n Network
	if err := c.call(ctx, "POST", port, "/api/system/getNetwork", nil, &n); err != nil {
		return Network{}, fmt.Errorf("get network: %w", err)
	}
	return n, nil
}

// call issues a request and decodes the {code, msg, data} envelope. Bodies
// that are not an envelope are accepted when out is nil.
func (c *Client) call(ctx context.Context, method string, port int, path string, query map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, c.BaseURL(port)+path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	body := resp.Body()
	if out == nil && len(body) == 0 {
		return nil
	}

	var res apiResult
	if err := json.Unmarshal(body, &res); err != nil {
		if out == nil {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if res.Code != 0 {
		return &APIError{Code: res.Code, Msg: res.Msg}
	}
	if out == nil || len(res.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// IsAPIError reports whether err carries a kernel-level error code.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
