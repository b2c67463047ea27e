// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"net/http"

	"github.com/wingedpig/deskshell/internal/kernel"
	"github.com/wingedpig/deskshell/internal/port"
	"github.com/wingedpig/deskshell/internal/supervisor"
	"github.com/wingedpig/deskshell/internal/window"
	"github.com/wingedpig/deskshell/internal/workspace"
)

// writeSupervisorError maps errors returned by the supervisor and its router
// onto the API envelope.
func writeSupervisorError(w http.ResponseWriter, err error) {
	var exitErr *kernel.ExitError
	switch {
	case errors.Is(err, supervisor.ErrUnknownCommand):
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
	case errors.Is(err, window.ErrWindowNotFound),
		errors.Is(err, workspace.ErrNotFound),
		errors.Is(err, supervisor.ErrHotkeyNotBound):
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, workspace.ErrDuplicateWorkspace),
		errors.Is(err, workspace.ErrDuplicateWindow):
		WriteError(w, http.StatusConflict, ErrConflict, err.Error())
	case errors.Is(err, port.ErrNoPortAvailable),
		errors.Is(err, supervisor.ErrNetworkUnreachable),
		errors.Is(err, supervisor.ErrClosed):
		WriteError(w, http.StatusServiceUnavailable, ErrUnavailable, err.Error())
	case errors.As(err, &exitErr):
		WriteErrorWithDetails(w, http.StatusBadGateway, ErrBootFailed, err.Error(), map[string]interface{}{
			"code":     exitErr.Code,
			"category": exitErr.Category.String(),
		})
	case errors.Is(err, kernel.ErrKernelBinaryMissing),
		errors.Is(err, kernel.ErrBootTimeout),
		errors.Is(err, kernel.ErrVersionMismatch):
		WriteError(w, http.StatusBadGateway, ErrBootFailed, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	}
}
