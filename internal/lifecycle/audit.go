// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// Audit event names.
const (
	EventStart    = "start"
	EventStaged   = "staged"
	EventLaunched = "launched"
	EventExited   = "exited"
	EventDetached = "detached"
	EventFailed   = "failed"
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	LaunchID  string    `json:"launch_id"`
	App       string    `json:"app,omitempty"`
	PID       int       `json:"pid,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Path      string    `json:"path,omitempty"`
	Args      []string  `json:"args,omitempty"`
	ErrorType string    `json:"error_type,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AuditLog appends launch lifecycle events as JSON lines. Every event of
// one launch carries the same launch id.
type AuditLog struct {
	path     string
	launchID string
	app      string
	now      func() time.Time
}

// NewAuditLog creates an audit log for a single launch with a fresh id.
func NewAuditLog(path, app string) *AuditLog {
	return &AuditLog{
		path:     path,
		launchID: uuid.New().String(),
		app:      app,
		now:      time.Now,
	}
}

// LaunchID returns the identifier shared by this launch's events.
func (l *AuditLog) LaunchID() string {
	return l.launchID
}

// LogStart records that a launch was initiated from configFile.
func (l *AuditLog) LogStart(configFile string) error {
	return l.write(AuditEvent{
		Event:   EventStart,
		Success: true,
		Message: "Launch initiated",
		Path:    configFile,
	})
}

// LogStaged records that the staged artifact replaced target.
func (l *AuditLog) LogStaged(target string) error {
	return l.write(AuditEvent{
		Event:   EventStaged,
		Success: true,
		Message: "Staged artifact installed",
		Path:    target,
	})
}

// LogLaunched records a successfully started child.
func (l *AuditLog) LogLaunched(pid int, consoleLog string, args []string) error {
	return l.write(AuditEvent{
		Event:   EventLaunched,
		PID:     pid,
		Success: true,
		Message: "Process started",
		Path:    consoleLog,
		Args:    args,
	})
}

// LogExited records the exit of a child the launcher waited on.
func (l *AuditLog) LogExited(pid, code int) error {
	return l.write(AuditEvent{
		Event:    EventExited,
		PID:      pid,
		ExitCode: &code,
		Success:  code == 0,
		Message:  fmt.Sprintf("Process exited with code %d", code),
	})
}

// LogDetached records that the launcher stopped waiting on a child that
// is still running.
func (l *AuditLog) LogDetached(pid int) error {
	return l.write(AuditEvent{
		Event:   EventDetached,
		PID:     pid,
		Success: true,
		Message: "Stopped waiting, process keeps running",
	})
}

// LogFailure records a fatal launch error.
func (l *AuditLog) LogFailure(err error) error {
	return l.write(AuditEvent{
		Event:     EventFailed,
		Success:   false,
		Message:   "Launch failed",
		ErrorType: javactlerrors.TypeOf(err),
		Error:     err.Error(),
	})
}

// write appends an event to the log file.
func (l *AuditLog) write(event AuditEvent) error {
	event.Timestamp = l.now()
	event.LaunchID = l.launchID
	event.App = l.app

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}
