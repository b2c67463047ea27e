// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// WorkspaceClient lists and opens workspaces.
//
// Access this client through [Client.Workspaces].
type WorkspaceClient struct {
	c *Client
}

// List returns the open workspaces ordered by kernel port.
func (w *WorkspaceClient) List(ctx context.Context) ([]Workspace, error) {
	data, err := w.c.get(ctx, "/api/v1/workspaces")
	if err != nil {
		return nil, err
	}

	var list []Workspace
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse workspaces: %w", err)
	}
	return list, nil
}

// Open boots a workspace, or shows it when it is already open. It returns
// once the main window is up or the boot failed.
func (w *WorkspaceClient) Open(ctx context.Context, req OpenRequest) (bool, error) {
	data, err := w.c.postJSON(ctx, "/api/v1/workspaces", req)
	if err != nil {
		return false, err
	}

	var resp struct {
		Opened bool `json:"opened"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Opened, nil
}
