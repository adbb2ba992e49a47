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

package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// DefaultPreCommandTimeout bounds a single pre command.
const DefaultPreCommandTimeout = 5 * time.Minute

// PreCommandRunner runs shell commands before the JVM starts.
type PreCommandRunner struct {
	// Dir is the working directory for the commands.
	Dir string

	// Env is appended to the launcher environment.
	Env []string

	// Timeout applies to each command (default: 5m).
	Timeout time.Duration

	Logger *slog.Logger
}

// Run executes commands in order with sh -c and stops at the first
// failure. The failing command's output is part of the returned
// *errors.LaunchError.
func (r *PreCommandRunner) Run(ctx context.Context, commands []string) error {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultPreCommandTimeout
	}

	for _, command := range commands {
		if err := r.run(ctx, command, timeout); err != nil {
			return err
		}
	}
	return nil
}

func (r *PreCommandRunner) run(ctx context.Context, command string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	startTime := time.Now()
	err := cmd.Run()
	if r.Logger != nil {
		r.Logger.Debug("pre command finished",
			slog.String("command", command),
			slog.Duration("duration", time.Since(startTime)),
			slog.Bool("success", err == nil),
		)
	}
	if err == nil {
		return nil
	}

	reason := fmt.Sprintf("pre command %q failed", command)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = fmt.Sprintf("pre command %q timed out after %s", command, timeout)
	}
	if msg := strings.TrimSpace(output.String()); msg != "" {
		err = fmt.Errorf("%w: %s", err, msg)
	}
	return &javactlerrors.LaunchError{Program: "/bin/sh", Reason: reason, Cause: err}
}
