// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"runtime"
	"time"
)

// Info describes the running shell.
type Info struct {
	Product string    `json:"product"`
	Version string    `json:"version"`
	PID     int       `json:"pid"`
	GOOS    string    `json:"goos"`
	Started time.Time `json:"started"`
}

// InfoHandler serves process information.
type InfoHandler struct {
	info Info
}

// NewInfoHandler creates a new info handler.
func NewInfoHandler(info Info) *InfoHandler {
	if info.GOOS == "" {
		info.GOOS = runtime.GOOS
	}
	return &InfoHandler{info: info}
}

// Get returns the process information.
func (h *InfoHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.info)
}
