// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
)

// CommandClient sends commands to the shell.
type CommandClient struct {
	c *Client
}

// Send dispatches cmd. Commands that wait for a boot or the network are
// accepted at once and run in the background.
func (cc *CommandClient) Send(ctx context.Context, cmd Command) error {
	if _, ok := cmd["cmd"].(string); !ok {
		return fmt.Errorf("command has no name")
	}
	_, err := cc.c.postJSON(ctx, "/api/v1/commands", cmd)
	return err
}

// Names returns the commands the shell accepts.
func (cc *CommandClient) Names(ctx context.Context) ([]string, error) {
	data, err := cc.c.get(ctx, "/api/v1/commands")
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to parse commands: %w", err)
	}
	return names, nil
}

// InstanceClient talks to the process owning the single-instance lock.
type InstanceClient struct {
	c *Client
}

// Forward hands the command line of a second launch to the owner, which
// opens the workspace or URL it names or shows its first window.
func (ic *InstanceClient) Forward(ctx context.Context, argv []string) error {
	if argv == nil {
		argv = []string{}
	}
	_, err := ic.c.postJSON(ctx, "/api/v1/instance", map[string]interface{}{"argv": argv})
	return err
}
