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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/tombee/javactl/internal/lifecycle"
	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// maxLogAttempts bounds the -N suffixes tried when a console log name is taken.
const maxLogAttempts = 100

// LaunchRequest is everything needed to start the JVM.
type LaunchRequest struct {
	Binary           string
	Args             CommandLine
	Dirs             LogDirectorySet
	Stamp            Timestamp
	WorkingDirectory string

	// Env is appended to the launcher's environment.
	Env []string

	Wait bool
}

// ExitStatusError reports a non-zero exit of a child the launcher waited on.
type ExitStatusError struct {
	Code int
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// ExitCode returns the child's exit code.
func (e *ExitStatusError) ExitCode() int {
	return e.Code
}

// ProcessLauncher starts the JVM with its output in a fresh console log.
type ProcessLauncher struct {
	LookPath func(string) (string, error)
	Environ  func() []string
	Logger   *slog.Logger
}

// NewProcessLauncher creates a launcher using PATH and the process environment.
func NewProcessLauncher(logger *slog.Logger) *ProcessLauncher {
	return &ProcessLauncher{
		LookPath: exec.LookPath,
		Environ:  os.Environ,
		Logger:   logger,
	}
}

// Running is a started child that has been neither released nor waited on.
type Running struct {
	Handle *LaunchHandle
	proc   *lifecycle.Process
}

// Release detaches from the child.
func (r *Running) Release() error {
	return r.proc.Release()
}

// Wait blocks until the child exits or ctx is done. The exit code is
// recorded on the handle. Cancelling ctx leaves the child running.
func (r *Running) Wait(ctx context.Context) (int, error) {
	code, err := r.proc.Wait(ctx)
	if err != nil {
		return code, err
	}
	r.Handle.Waited = true
	r.Handle.ExitCode = code
	return code, nil
}

// Launch starts the child and either releases it or, in wait mode, blocks
// until it exits. A non-zero exit in wait mode is returned as
// *ExitStatusError together with the handle.
func (l *ProcessLauncher) Launch(ctx context.Context, req LaunchRequest) (*LaunchHandle, error) {
	running, err := l.Start(req)
	if err != nil {
		return nil, err
	}

	if !req.Wait {
		if err := running.Release(); err != nil {
			return running.Handle, &javactlerrors.LaunchError{Program: req.Binary, Reason: "failed to detach", Cause: err}
		}
		return running.Handle, nil
	}

	code, err := running.Wait(ctx)
	if err != nil {
		return running.Handle, err
	}
	if code != 0 {
		return running.Handle, &ExitStatusError{Code: code}
	}
	return running.Handle, nil
}

// Start resolves the binary, creates the console log and spawns the child
// in its own session with stdin closed.
func (l *ProcessLauncher) Start(req LaunchRequest) (*Running, error) {
	binary, err := l.LookPath(req.Binary)
	if err != nil {
		return nil, &javactlerrors.LaunchError{Program: req.Binary, Reason: "executable not found", Cause: err}
	}

	logFile, logPath, err := createConsoleLog(req.Dirs, req.Stamp)
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	env := append(l.Environ(), req.Env...)
	spawner := lifecycle.NewSpawner().WithEnv(env)

	proc, err := spawner.Start(binary, req.Args, lifecycle.SpawnOptions{
		Dir:    req.WorkingDirectory,
		Output: logFile,
	})
	if err != nil {
		os.Remove(logPath)
		return nil, &javactlerrors.LaunchError{Program: binary, Reason: "failed to start", Cause: err}
	}

	if l.Logger != nil {
		l.Logger.Debug("process started",
			slog.Int("pid", proc.PID),
			slog.String("path", logPath),
		)
	}

	return &Running{
		Handle: &LaunchHandle{
			PID:     proc.PID,
			LogPath: logPath,
			Stamp:   req.Stamp,
		},
		proc: proc,
	}, nil
}

// createConsoleLog creates console_<ts>.log exclusively, falling back to
// console_<ts>-N.log when the name is taken.
func createConsoleLog(dirs LogDirectorySet, ts Timestamp) (*os.File, string, error) {
	base := dirs.ConsoleLogPath(ts)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	path := base
	for attempt := 1; attempt <= maxLogAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", &javactlerrors.FilesystemError{Op: "create console log", Path: path, Cause: err}
		}
		path = stem + "-" + strconv.Itoa(attempt) + ext
	}

	return nil, "", &javactlerrors.FilesystemError{
		Op:    "create console log",
		Path:  base,
		Cause: fmt.Errorf("no free file name after %d attempts", maxLogAttempts),
	}
}
