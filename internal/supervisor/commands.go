// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownCommand is returned for command names the router does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a request routed by the Router. The set of commands is closed:
// every implementation lives in this file and is handled by Router.Dispatch.
type Command interface {
	CommandName() string
	sealed()
}

// Target names the window a command was sent from or acts on.
type Target struct {
	Window string `json:"windowId"`
}

func (Target) sealed() {}

// Global is embedded by commands that do not act on a window.
type Global struct{}

func (Global) sealed() {}

// Window commands.
type (
	Show                struct{ Target }
	Hide                struct{ Target }
	Minimize            struct{ Target }
	Maximize            struct{ Target }
	Restore             struct{ Target }
	Focus               struct{ Target }
	Destroy             struct{ Target }
	CloseButtonBehavior struct{ Target }
	OpenDevTools        struct{ Target }
	CloseRequested      struct{ Target }

	SetAlwaysOnTop struct {
		Target
		On bool `json:"on"`
	}
	WriteLog struct {
		Target
		Msg string `json:"msg"`
	}
	WindowEvent struct {
		Target
		Event string `json:"event"`
	}
)

// Workspace commands sent by window content.
type (
	Init struct {
		Target
		WorkspaceDir string            `json:"workspaceDir"`
		Port         int               `json:"port"`
		Languages    map[string]string `json:"languages,omitempty"`
	}
	Quit struct {
		Global
		Port int `json:"port"`
	}
	OpenWorkspace struct {
		Global
		Workspace string `json:"workspace"`
	}
	FirstInit struct {
		Target
		Workspace string `json:"workspace"`
		Lang      string `json:"lang"`
	}
	OpenWindow struct {
		Global
		URL      string `json:"url"`
		Width    int    `json:"width,omitempty"`
		Height   int    `json:"height,omitempty"`
		Position *struct {
			X int `json:"x"`
			Y int `json:"y"`
		} `json:"position,omitempty"`
	}
	SendWindows struct {
		Global
		Data map[string]interface{} `json:"data"`
	}
)

// Hot-key and tray commands.
type (
	Hotkeys struct {
		Target
		Hotkeys []string `json:"hotkeys"`
	}
	UnregisterGlobalShortcut struct {
		Global
		Accelerator string `json:"accelerator"`
	}
	HotkeyFired struct {
		Global
		Accelerator string `json:"accelerator"`
	}
	ConfigTray struct{ Target }
	TrayToggle struct{ Target }
	TrayQuit   struct{ Target }
	TrayReset  struct{ Target }
)

// Application and system commands.
type (
	OpenURL struct {
		Global
		URL string `json:"url"`
	}
	SecondInstance struct {
		Global
		Argv []string `json:"argv"`
	}
	Activate        struct{ Global }
	AppQuit         struct{ Global }
	PowerResume     struct{ Global }
	PowerShutdown   struct{ Global }
	PowerSuspend    struct{ Global }
	PowerLockScreen struct{ Global }
)

func (*Show) CommandName() string                     { return "show" }
func (*Hide) CommandName() string                     { return "hide" }
func (*Minimize) CommandName() string                 { return "minimize" }
func (*Maximize) CommandName() string                 { return "maximize" }
func (*Restore) CommandName() string                  { return "restore" }
func (*Focus) CommandName() string                    { return "focus" }
func (*Destroy) CommandName() string                  { return "destroy" }
func (*CloseButtonBehavior) CommandName() string      { return "closeButtonBehavior" }
func (*OpenDevTools) CommandName() string             { return "openDevTools" }
func (*CloseRequested) CommandName() string           { return "closeRequested" }
func (*SetAlwaysOnTop) CommandName() string           { return "setAlwaysOnTop" }
func (*WriteLog) CommandName() string                 { return "writeLog" }
func (*WindowEvent) CommandName() string              { return "windowEvent" }
func (*Init) CommandName() string                     { return "init" }
func (*Quit) CommandName() string                     { return "quit" }
func (*OpenWorkspace) CommandName() string            { return "openWorkspace" }
func (*FirstInit) CommandName() string                { return "firstInit" }
func (*OpenWindow) CommandName() string               { return "openWindow" }
func (*SendWindows) CommandName() string              { return "sendWindows" }
func (*Hotkeys) CommandName() string                  { return "hotkeys" }
func (*UnregisterGlobalShortcut) CommandName() string { return "unregisterGlobalShortcut" }
func (*HotkeyFired) CommandName() string              { return "hotkeyFired" }
func (*ConfigTray) CommandName() string               { return "configTray" }
func (*TrayToggle) CommandName() string               { return "trayToggle" }
func (*TrayQuit) CommandName() string                 { return "trayQuit" }
func (*TrayReset) CommandName() string                { return "trayReset" }
func (*OpenURL) CommandName() string                  { return "openURL" }
func (*SecondInstance) CommandName() string           { return "secondInstance" }
func (*Activate) CommandName() string                 { return "activate" }
func (*AppQuit) CommandName() string                  { return "appQuit" }
func (*PowerResume) CommandName() string              { return "powerResume" }
func (*PowerShutdown) CommandName() string            { return "powerShutdown" }
func (*PowerSuspend) CommandName() string             { return "powerSuspend" }
func (*PowerLockScreen) CommandName() string          { return "powerLockScreen" }

var commands = map[string]func() Command{}

func init() {
	for _, f := range []func() Command{
		func() Command { return &Show{} },
		func() Command { return &Hide{} },
		func() Command { return &Minimize{} },
		func() Command { return &Maximize{} },
		func() Command { return &Restore{} },
		func() Command { return &Focus{} },
		func() Command { return &Destroy{} },
		func() Command { return &CloseButtonBehavior{} },
		func() Command { return &OpenDevTools{} },
		func() Command { return &CloseRequested{} },
		func() Command { return &SetAlwaysOnTop{} },
		func() Command { return &WriteLog{} },
		func() Command { return &WindowEvent{} },
		func() Command { return &Init{} },
		func() Command { return &Quit{} },
		func() Command { return &OpenWorkspace{} },
		func() Command { return &FirstInit{} },
		func() Command { return &OpenWindow{} },
		func() Command { return &SendWindows{} },
		func() Command { return &Hotkeys{} },
		func() Command { return &UnregisterGlobalShortcut{} },
		func() Command { return &HotkeyFired{} },
		func() Command { return &ConfigTray{} },
		func() Command { return &TrayToggle{} },
		func() Command { return &TrayQuit{} },
		func() Command { return &TrayReset{} },
		func() Command { return &OpenURL{} },
		func() Command { return &SecondInstance{} },
		func() Command { return &Activate{} },
		func() Command { return &AppQuit{} },
		func() Command { return &PowerResume{} },
		func() Command { return &PowerShutdown{} },
		func() Command { return &PowerSuspend{} },
		func() Command { return &PowerLockScreen{} },
	} {
		commands[f().CommandName()] = f
	}
}

// CommandNames returns every command name, sorted.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewCommand returns an empty command for name.
func NewCommand(name string) (Command, error) {
	f, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return f(), nil
}

// DecodeCommand decodes a JSON object whose "cmd" member names the command.
// The remaining members fill the command's fields.
func DecodeCommand(data []byte) (Command, error) {
	var head struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	cmd, err := NewCommand(head.Cmd)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Cmd, err)
	}
	return cmd, nil
}

// WindowOf returns the window a command targets, or "".
func WindowOf(cmd Command) string {
	if t, ok := cmd.(interface{ target() string }); ok {
		return t.target()
	}
	return ""
}

func (t Target) target() string { return t.Window }
