// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/wingedpig/deskshell/internal/supervisor"
	"github.com/wingedpig/deskshell/internal/workspace"
)

// WorkspaceLister lists the open workspaces.
type WorkspaceLister interface {
	Entries() []workspace.Entry
}

// WorkspaceOpener boots workspaces.
type WorkspaceOpener interface {
	OpenWorkspace(ctx context.Context, req supervisor.OpenRequest) (bool, error)
}

// WorkspaceInfo describes an open workspace.
type WorkspaceInfo struct {
	Workspace string   `json:"workspace"`
	Window    string   `json:"windowId"`
	Port      int      `json:"port"`
	PID       int      `json:"pid"`
	Tray      string   `json:"tray,omitempty"`
	Hotkeys   []string `json:"hotkeys"`
}

// OpenResponse is the result of opening a workspace.
type OpenResponse struct {
	Workspace string `json:"workspace"`
	Opened    bool   `json:"opened"`
}

// WorkspaceHandler handles workspace-related API requests.
type WorkspaceHandler struct {
	registry WorkspaceLister
	opener   WorkspaceOpener
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(registry WorkspaceLister, opener WorkspaceOpener) *WorkspaceHandler {
	return &WorkspaceHandler{registry: registry, opener: opener}
}

// List returns the open workspaces ordered by kernel port.
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.registry.Entries()
	list := make([]WorkspaceInfo, 0, len(entries))
	for _, e := range entries {
		hotkeys := e.Hotkeys
		if hotkeys == nil {
			hotkeys = []string{}
		}
		list = append(list, WorkspaceInfo{
			Workspace: e.Dir,
			Window:    e.Window,
			Port:      e.Port,
			PID:       e.PID(),
			Tray:      e.Tray,
			Hotkeys:   hotkeys,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Port < list[j].Port })
	WriteJSON(w, http.StatusOK, list)
}

// Open boots a workspace and waits for its main window.
func (h *WorkspaceHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req supervisor.OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid JSON")
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "port out of range")
		return
	}

	// The boot outlives the request.
	opened, err := h.opener.OpenWorkspace(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeSupervisorError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, OpenResponse{Workspace: req.Workspace, Opened: opened})
}
