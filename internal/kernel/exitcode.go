// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"fmt"
	"html"
	"strconv"
)

// ExitCategory groups kernel exit codes by cause.
type ExitCategory int

const (
	ExitClean ExitCategory = iota
	ExitDatabaseLocked
	ExitPortBindFailed
	ExitWorkspaceLocked
	ExitWorkspaceInitFailed
	ExitCorruptionAvoided
	ExitUnknown
)

// Kernel exit codes with a defined meaning.
const (
	CodeClean               = 0
	CodeDatabaseLocked      = 20
	CodePortBindFailed      = 21
	CodeWorkspaceLocked     = 24
	CodeWorkspaceInitFailed = 25
	CodeCorruptionAvoided   = 26
)

func (c ExitCategory) String() string {
	switch c {
	case ExitClean:
		return "clean"
	case ExitDatabaseLocked:
		return "database-locked"
	case ExitPortBindFailed:
		return "port-bind-failed"
	case ExitWorkspaceLocked:
		return "workspace-locked"
	case ExitWorkspaceInitFailed:
		return "workspace-init-failed"
	case ExitCorruptionAvoided:
		return "corruption-avoided"
	default:
		return "unknown"
	}
}

// Classification is the result of classifying an exit code.
type Classification struct {
	Code     int
	Category ExitCategory
	Title    string
	Body     string // HTML

	// FocusFirstWorkspace asks the caller to surface the first open
	// workspace window, since another process owns the workspace.
	FocusFirstWorkspace bool
}

// IsError reports whether the exit needs remediation and cleanup.
func (c Classification) IsError() bool {
	return c.Category != ExitClean
}

// Classify maps a kernel exit code to its category and remediation text.
// port is only used to fill in the port-bind message.
func Classify(code, port int) Classification {
	c := Classification{Code: code}

	switch code {
	case CodeClean:
		c.Category = ExitClean
	case CodeDatabaseLocked:
		c.Category = ExitDatabaseLocked
		c.Title = "⚠️ Database is locked"
		c.Body = "<div>The database file is being used by another process. Check whether several kernel processes are serving the same workspace at the same time.</div>"
	case CodePortBindFailed:
		p := strconv.Itoa(port)
		c.Category = ExitPortBindFailed
		c.Title = "⚠️ Failed to listen to port " + p
		c.Body = "<div>Failed to listen to port " + p + ". Make sure the program has network permissions and is not blocked by a firewall or antivirus software.</div>"
	case CodeWorkspaceLocked:
		c.Category = ExitWorkspaceLocked
		c.FocusFirstWorkspace = true
		c.Title = "⚠️ The workspace is locked"
		c.Body = "<div>The workspace is already in use. End the kernel process in the task manager or restart the operating system, then start the application again.</div>"
	case CodeWorkspaceInitFailed:
		c.Category = ExitWorkspaceInitFailed
		c.Title = "⚠️ Failed to create workspace directory"
		c.Body = "<div>Failed to initialize the workspace.</div>"
	case CodeCorruptionAvoided:
		c.Category = ExitCorruptionAvoided
		c.Title = "🚒 Potential data corruption avoided"
		c.Body = "<div>Files in the workspace are held open by third-party software such as a network drive sync client or an antivirus scanner. " +
			"Continuing would corrupt data, so the kernel has shut down safely.<br><br>" +
			"Move the workspace to another path and open it again, stop the network drive from syncing the workspace, " +
			"and add the workspace to the antivirus trust list.</div>"
	default:
		c.Category = ExitUnknown
		c.Title = "⚠️ The kernel exited for unknown reasons"
		c.Body = fmt.Sprintf("<div>The kernel exited for unknown reasons [code=%d]. Restart the operating system and start the application again. "+
			"If the problem persists, check whether antivirus software is killing the kernel.</div>", code)
	}

	return c
}

// ExitError reports that the kernel process exited before boot completed.
type ExitError struct {
	Code     int
	Category ExitCategory
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("kernel exited with code %d (%s)", e.Code, e.Category)
}

// MissingBinaryNotice is the remediation text shown when the kernel
// executable is not installed at path.
func MissingBinaryNotice(path string) (title, body string) {
	return "⚠️ Kernel program is missing",
		"<div>The kernel program was not found. Reinstall the application and add the kernel program to the trust list of your antivirus software.</div><div><i>" +
			html.EscapeString(path) + "</i></div>"
}

// TimeoutNotice is the remediation text shown when the kernel never answered.
func TimeoutNotice() (title, body string) {
	return "⚠️ Failed to get kernel serve port",
		"<div>Failed to get the kernel serve port. Make sure the program has network permissions and is not blocked by a firewall or antivirus software.</div>"
}
