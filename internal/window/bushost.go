// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wingedpig/deskshell/internal/events"
)

// BusHost keeps window state in memory and turns every window operation into
// an event on the bus. A renderer subscribed to the bus performs the actual
// drawing and reports state changes back through Report.
type BusHost struct {
	bus     events.EventBus
	display Display
	logger  *zap.Logger

	mu      sync.Mutex
	windows map[string]*Status
	order   []string
	trays   map[string]string // tray id -> window id
	hotkeys map[string]bool
}

// NewBusHost creates a host publishing to bus.
func NewBusHost(bus events.EventBus, display Display, logger *zap.Logger) *BusHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BusHost{
		bus:     bus,
		display: display,
		logger:  logger.Named("window"),
		windows: make(map[string]*Status),
		trays:   make(map[string]string),
		hotkeys: make(map[string]bool),
	}
}

// SetDisplay updates the primary display, as reported by the renderer.
func (h *BusHost) SetDisplay(d Display) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.display = d
}

// PrimaryDisplay returns the primary display.
func (h *BusHost) PrimaryDisplay() Display {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.display
}

// Create opens a window.
func (h *BusHost) Create(opts Options) (string, error) {
	st := &Status{
		ID:         uuid.New().String(),
		Kind:       opts.Kind,
		ContentID:  uuid.New().String(),
		URL:        opts.URL,
		Bounds:     opts.Bounds,
		Visible:    !opts.Hidden && !opts.Minimized,
		Minimized:  opts.Minimized,
		Maximized:  opts.Maximized,
		Fullscreen: opts.Fullscreen,
		DevTools:   opts.DevTools,
	}

	h.mu.Lock()
	h.windows[st.ID] = st
	h.order = append(h.order, st.ID)
	h.mu.Unlock()

	h.publish(events.EventWindowCreated, st.ID, map[string]interface{}{
		"kind":      string(opts.Kind),
		"contentId": st.ContentID,
		"options":   opts,
	})
	return st.ID, nil
}

// ShowError opens an error window carrying a title and HTML body.
func (h *BusHost) ShowError(title, body string) (string, error) {
	id, err := h.Create(Options{
		Kind:   KindError,
		Title:  title,
		Center: true,
		Bounds: Rect{Width: 470, Height: 260},
	})
	if err != nil {
		return "", err
	}
	h.publish(events.EventWindowError, id, map[string]interface{}{
		"title": title,
		"body":  body,
	})
	return id, nil
}

// ContentID returns the content handle of a window, or "" if unknown.
func (h *BusHost) ContentID(id string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.windows[id]; ok {
		return st.ContentID
	}
	return ""
}

// Load points a window at url. An empty or "://"-prefixed proxy means the
// system proxy.
func (h *BusHost) Load(id, url, proxy string) error {
	if err := h.update(id, func(st *Status) { st.URL = url }); err != nil {
		return err
	}
	payload := map[string]interface{}{"url": url}
	if proxy != "" {
		payload["proxy"] = proxy
	}
	h.publish(events.EventWindowLoad, id, payload)
	return nil
}

// Show makes a window visible.
func (h *BusHost) Show(id string) error {
	return h.apply(id, events.EventWindowShow, nil, func(st *Status) {
		st.Visible = true
		st.Minimized = false
	})
}

// Hide hides a window.
func (h *BusHost) Hide(id string) error {
	return h.apply(id, events.EventWindowHide, nil, func(st *Status) {
		st.Visible = false
		st.Focused = false
	})
}

// Minimize minimizes a window.
func (h *BusHost) Minimize(id string) error {
	return h.apply(id, events.EventWindowMinimize, nil, func(st *Status) {
		st.Minimized = true
		st.Focused = false
	})
}

// Maximize maximizes a window.
func (h *BusHost) Maximize(id string) error {
	return h.apply(id, events.EventWindowMaximize, nil, func(st *Status) {
		st.Maximized = true
	})
}

// Unmaximize restores a maximized window to its bounds.
func (h *BusHost) Unmaximize(id string) error {
	return h.apply(id, events.EventWindowUnmaximize, nil, func(st *Status) {
		st.Maximized = false
	})
}

// Restore brings a minimized window back.
func (h *BusHost) Restore(id string) error {
	return h.apply(id, events.EventWindowRestore, nil, func(st *Status) {
		st.Minimized = false
		st.Visible = true
	})
}

// Focus brings a window to the front and gives it focus.
func (h *BusHost) Focus(id string) error {
	h.mu.Lock()
	st, ok := h.windows[id]
	if ok {
		for _, other := range h.windows {
			other.Focused = false
		}
		st.Focused = true
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("focus %s: %w", id, ErrWindowNotFound)
	}
	h.publish(events.EventWindowFocus, id, nil)
	return nil
}

// Destroy closes a window without asking its content.
func (h *BusHost) Destroy(id string) error {
	h.mu.Lock()
	_, ok := h.windows[id]
	if ok {
		delete(h.windows, id)
		for i, w := range h.order {
			if w == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("destroy %s: %w", id, ErrWindowNotFound)
	}
	h.publish(events.EventWindowDestroyed, id, nil)
	return nil
}

// SetFullscreen enters or leaves full screen.
func (h *BusHost) SetFullscreen(id string, on bool) error {
	return h.apply(id, events.EventWindowFullscreen, map[string]interface{}{"on": on}, func(st *Status) {
		st.Fullscreen = on
	})
}

// SetAlwaysOnTop pins or unpins a window.
func (h *BusHost) SetAlwaysOnTop(id string, on bool) error {
	return h.apply(id, events.EventWindowAlwaysOnTop, map[string]interface{}{"on": on}, func(st *Status) {
		st.AlwaysOnTop = on
	})
}

// OpenDevTools opens the developer tools docked at the bottom.
func (h *BusHost) OpenDevTools(id string) error {
	return h.apply(id, events.EventWindowDevTools, map[string]interface{}{"mode": "bottom"}, func(st *Status) {
		st.DevTools = true
	})
}

// State returns a snapshot of a window.
func (h *BusHost) State(id string) (Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.windows[id]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Windows returns the ids of open windows in creation order.
func (h *BusHost) Windows() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// Send delivers a message to one window's content.
func (h *BusHost) Send(id, channel string, payload map[string]interface{}) error {
	h.mu.Lock()
	_, ok := h.windows[id]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("send %s to %s: %w", channel, id, ErrWindowNotFound)
	}
	h.publish(events.EventWindowMessage, id, map[string]interface{}{
		"channel": channel,
		"data":    payload,
	})
	return nil
}

// Broadcast delivers a message to every window.
func (h *BusHost) Broadcast(channel string, payload map[string]interface{}) {
	h.publish(events.EventWindowMessage, "", map[string]interface{}{
		"channel": channel,
		"data":    payload,
	})
}

// CreateTray creates a tray icon for a window.
func (h *BusHost) CreateTray(windowID, tooltip string) (string, error) {
	h.mu.Lock()
	_, ok := h.windows[windowID]
	id := uuid.New().String()
	if ok {
		h.trays[id] = windowID
	}
	h.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("create tray for %s: %w", windowID, ErrWindowNotFound)
	}
	h.publish(events.EventTrayCreated, windowID, map[string]interface{}{
		"tray":    id,
		"tooltip": tooltip,
	})
	return id, nil
}

// DestroyTray removes a tray icon.
func (h *BusHost) DestroyTray(trayID string) error {
	h.mu.Lock()
	windowID, ok := h.trays[trayID]
	delete(h.trays, trayID)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("tray %s not found", trayID)
	}
	h.publish(events.EventTrayDestroyed, windowID, map[string]interface{}{"tray": trayID})
	return nil
}

// Trays returns the number of live tray icons.
func (h *BusHost) Trays() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.trays)
}

// RegisterHotkey binds a global accelerator.
func (h *BusHost) RegisterHotkey(accelerator string) error {
	if accelerator == "" {
		return fmt.Errorf("empty accelerator")
	}
	h.mu.Lock()
	h.hotkeys[accelerator] = true
	h.mu.Unlock()
	h.publish(events.EventHotkeyRegistered, "", map[string]interface{}{"accelerator": accelerator})
	return nil
}

// UnregisterHotkey releases a global accelerator.
func (h *BusHost) UnregisterHotkey(accelerator string) {
	h.mu.Lock()
	_, ok := h.hotkeys[accelerator]
	delete(h.hotkeys, accelerator)
	h.mu.Unlock()
	if ok {
		h.publish(events.EventHotkeyUnregistered, "", map[string]interface{}{"accelerator": accelerator})
	}
}

// UnregisterAllHotkeys releases every global accelerator.
func (h *BusHost) UnregisterAllHotkeys() {
	h.mu.Lock()
	n := len(h.hotkeys)
	h.hotkeys = make(map[string]bool)
	h.mu.Unlock()
	if n > 0 {
		h.publish(events.EventHotkeyUnregistered, "", map[string]interface{}{"all": true})
	}
}

// IsHotkeyRegistered reports whether accelerator is bound.
func (h *BusHost) IsHotkeyRegistered(accelerator string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hotkeys[accelerator]
}

// Report applies a state change observed by the renderer.
func (h *BusHost) Report(id, event string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.windows[id]
	if !ok {
		return fmt.Errorf("report %s for %s: %w", event, id, ErrWindowNotFound)
	}

	switch event {
	case ReportFocus:
		for _, other := range h.windows {
			other.Focused = false
		}
		st.Focused = true
		st.Visible = true
		st.Minimized = false
	case ReportBlur:
		st.Focused = false
	case ReportShow:
		st.Visible = true
	case ReportHide:
		st.Visible = false
		st.Focused = false
	case ReportMinimize:
		st.Minimized = true
		st.Focused = false
	case ReportRestore:
		st.Minimized = false
	case ReportMaximize:
		st.Maximized = true
	case ReportUnmaximize:
		st.Maximized = false
	case ReportEnterFullScreen:
		st.Fullscreen = true
	case ReportLeaveFullScreen:
		st.Fullscreen = false
	default:
		return fmt.Errorf("unknown window event %q", event)
	}
	return nil
}

// SetBounds records the bounds reported by the renderer.
func (h *BusHost) SetBounds(id string, r Rect) error {
	return h.update(id, func(st *Status) { st.Bounds = r })
}

func (h *BusHost) apply(id, eventType string, payload map[string]interface{}, fn func(*Status)) error {
	if err := h.update(id, fn); err != nil {
		return err
	}
	h.publish(eventType, id, payload)
	return nil
}

func (h *BusHost) update(id string, fn func(*Status)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.windows[id]
	if !ok {
		return fmt.Errorf("window %s: %w", id, ErrWindowNotFound)
	}
	fn(st)
	return nil
}

func (h *BusHost) publish(eventType, windowID string, payload map[string]interface{}) {
	err := h.bus.Publish(context.Background(), events.Event{
		Type:    eventType,
		Window:  windowID,
		Payload: payload,
	})
	if err != nil {
		h.logger.Debug("publish window event", zap.String("type", eventType), zap.Error(err))
	}
}
