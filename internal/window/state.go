// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"encoding/json"
	"fmt"
	"os"
)

// Main window size limits.
const (
	MinWidth  = 493
	MinHeight = 376

	// edgeSlack tolerates windows a few pixels off the work area.
	edgeSlack = 32
)

// State is the persisted main window geometry.
type State struct {
	IsMaximized      bool `json:"isMaximized"`
	Fullscreen       bool `json:"fullscreen"`
	IsDevToolsOpened bool `json:"isDevToolsOpened"`
	X                int  `json:"x"`
	Y                int  `json:"y"`
	Width            int  `json:"width"`
	Height           int  `json:"height"`
}

// DefaultState is the geometry used when nothing was saved: 80% of the
// display width and 80% of the work area height at the origin.
func DefaultState(d Display) State {
	return State{
		Width:  d.Size.Width * 4 / 5,
		Height: d.WorkArea.Height * 4 / 5,
	}
}

// LoadState reads path and merges the saved fields over defaults. An
// unreadable or malformed file is replaced with "{}" and defaults are used.
func LoadState(path string, defaults State) (State, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		st := defaults
		if err = json.Unmarshal(data, &st); err == nil {
			return st, nil
		}
	}

	if werr := os.WriteFile(path, []byte("{}"), 0644); werr != nil {
		return defaults, fmt.Errorf("reset window state: %w", werr)
	}
	return defaults, fmt.Errorf("read window state: %w", err)
}

// SaveState writes the geometry of the last main window.
func SaveState(path string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save window state: %w", err)
	}
	return nil
}

// ResetState empties the saved geometry so the next start uses defaults.
func ResetState(path string) error {
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		return fmt.Errorf("reset window state: %w", err)
	}
	return nil
}

// StateOf captures the persisted geometry from a window snapshot.
func StateOf(s Status) State {
	return State{
		IsMaximized:      s.Maximized,
		Fullscreen:       s.Fullscreen,
		IsDevToolsOpened: s.DevTools,
		X:                s.Bounds.X,
		Y:                s.Bounds.Y,
		Width:            s.Bounds.Width,
		Height:           s.Bounds.Height,
	}
}

// Placement is where the main window opens.
type Placement struct {
	Bounds Rect
	Center bool
}

// Place clamps saved geometry to the display.
func Place(st State, d Display) Placement {
	def := DefaultState(d)
	work := d.WorkArea

	x, y := st.X, st.Y
	if x > -edgeSlack && x < 0 {
		x = 0
	}
	if y > -edgeSlack && y < 0 {
		y = 0
	}

	w, h := st.Width, st.Height
	center := false
	if work.Width > 0 && work.Height > 0 {
		if w > work.Width+edgeSlack || h > work.Height+edgeSlack {
			w = min(def.Width, work.Width)
			h = min(def.Height, work.Height)
		}
		if x*5 >= work.Width*4 || y*5 >= work.Height*4 {
			center = true
		}
	}
	if x < 0 || y < 0 {
		center = true
	}

	w = max(w, MinWidth)
	h = max(h, MinHeight)

	return Placement{
		Bounds: Rect{X: x, Y: y, Width: w, Height: h},
		Center: center,
	}
}
