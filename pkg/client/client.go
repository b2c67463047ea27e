// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the deskshell control API.
//
// deskshell supervises the kernel processes behind each open workspace of
// the desktop shell. Its control API is bound to the loopback interface and
// lets window content, second launches and tooling inspect workspaces, send
// window commands and read the event log.
//
// # Getting Started
//
// Create a client pointing to the running shell. The address of the owner
// process is recorded in the instance file of the configuration directory:
//
//	c := client.New("http://127.0.0.1:52381")
//
// The client provides access to different API resources through sub-clients:
//
//	// List open workspaces
//	workspaces, err := c.Workspaces.List(ctx)
//
//	// Boot a workspace and wait for its window
//	opened, err := c.Workspaces.Open(ctx, client.OpenRequest{Workspace: "/home/me/SiYuan"})
//
//	// Send a window command
//	err = c.Commands.Send(ctx, client.Command{"cmd": "show", "windowId": id})
//
//	// Hand the arguments of a second launch to the owner
//	err = c.Instance.Forward(ctx, os.Args)
//
// # Configuration Options
//
// The client can be configured with functional options:
//
//	c := client.New("http://127.0.0.1:52381",
//	    client.WithTimeout(60 * time.Second),
//	    client.WithHTTPClient(customHTTPClient),
//	)
//
// # Error Handling
//
// API errors are returned as *APIError values, which include an error code
// and message:
//
//	err := c.Commands.Send(ctx, client.Command{"cmd": "show", "windowId": "gone"})
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == client.CodeNotFound {
//	    // the window was closed
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a deskshell control API client.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Workspaces lists and opens workspaces.
	Workspaces *WorkspaceClient

	// Commands sends window and application commands.
	Commands *CommandClient

	// Events provides access to the event log.
	Events *EventClient

	// Instance forwards second launches to the owner process.
	Instance *InstanceClient
}

// Option configures a [Client]. Options are passed to [New] to customize
// client behavior.
type Option func(*Client)

// New creates a new client with the given base URL and options.
//
// Any trailing slash of baseURL is removed. By default the client uses a
// 30-second HTTP timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Workspaces = &WorkspaceClient{c: c}
	c.Commands = &CommandClient{c: c}
	c.Events = &EventClient{c: c}
	c.Instance = &InstanceClient{c: c}

	return c
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests.
//
// Opening a workspace waits for the kernel to boot; use a longer timeout
// than the boot budget of the shell when calling [WorkspaceClient.Open].
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Info returns information about the running shell.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	data, err := c.get(ctx, "/api/v1/version")
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse info: %w", err)
	}
	return &info, nil
}

// apiResponse is the standard API response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// Error codes returned by the control API.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeBadRequest  = "BAD_REQUEST"
	CodeConflict    = "CONFLICT"
	CodeUnavailable = "UNAVAILABLE"
	CodeBootFailed  = "BOOT_FAILED"
	CodeInternal    = "INTERNAL_ERROR"
)

// APIError represents an error response from the control API.
//
// API errors include a machine-readable Code and a human-readable Message.
// Boot failures caused by a kernel exit carry the exit code and its category
// in Details.
type APIError struct {
	// Code is a machine-readable error code (see the Code constants).
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details contains additional error information, if available.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// get performs a GET request to the given path.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// postJSON performs a POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data))
}

// do performs an HTTP request and parses the response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse reads and parses an API response.
func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		// Non-envelope body, e.g. /metrics.
		return respBody, nil
	}

	if apiResp.Error != nil {
		return nil, apiResp.Error
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Message: fmt.Sprintf("request failed with status %d", resp.StatusCode)}
	}

	return apiResp.Data, nil
}
