// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/wingedpig/deskshell/internal/supervisor"
)

const maxCommandSize = 1 << 20

// Dispatcher runs commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd supervisor.Command) error
}

// CommandResponse acknowledges a dispatched command.
type CommandResponse struct {
	Cmd    string `json:"cmd"`
	Window string `json:"windowId,omitempty"`
}

// InstanceRequest carries the argv of a second launch.
type InstanceRequest struct {
	Argv []string `json:"argv"`
}

// CommandHandler accepts commands from window content and second launches.
type CommandHandler struct {
	dispatcher Dispatcher
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(d Dispatcher) *CommandHandler {
	return &CommandHandler{dispatcher: d}
}

// Send decodes a tagged command and dispatches it.
func (h *CommandHandler) Send(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCommandSize))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "failed to read body")
		return
	}
	cmd, err := supervisor.DecodeCommand(data)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}
	h.dispatch(w, r, cmd)
}

// Instance forwards the arguments of a second launch.
func (h *CommandHandler) Instance(w http.ResponseWriter, r *http.Request) {
	var req InstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid JSON")
		return
	}
	h.dispatch(w, r, &supervisor.SecondInstance{Argv: req.Argv})
}

func (h *CommandHandler) dispatch(w http.ResponseWriter, r *http.Request, cmd supervisor.Command) {
	if err := h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), cmd); err != nil {
		writeSupervisorError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, CommandResponse{Cmd: cmd.CommandName(), Window: supervisor.WindowOf(cmd)})
}

// Names lists the commands accepted by Send.
func (h *CommandHandler) Names(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, supervisor.CommandNames())
}
