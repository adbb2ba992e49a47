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
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Spawner starts child processes detached from the launcher's session.
type Spawner struct {
	// Env is the environment passed to the child process.
	Env []string
}

// NewSpawner creates a new process spawner inheriting the current environment.
func NewSpawner() *Spawner {
	return &Spawner{
		Env: os.Environ(),
	}
}

// WithEnv replaces the environment passed to spawned processes.
func (s *Spawner) WithEnv(env []string) *Spawner {
	s.Env = env
	return s
}

// SpawnOptions configures a single Start call.
type SpawnOptions struct {
	// Dir is the working directory. Empty means the launcher's.
	Dir string

	// Output receives both stdout and stderr of the child.
	// Nil discards them.
	Output *os.File
}

// Process is a started child.
type Process struct {
	PID int

	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Start spawns binary with args. The child:
// - Runs in a new session (not killed when the launcher's terminal goes away)
// - Has stdin closed, stdout/stderr redirected to opts.Output
//
// The caller must either Release or Wait on the returned Process.
func (s *Spawner) Start(binary string, args []string, opts SpawnOptions) (*Process, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = s.Env
	cmd.Dir = opts.Dir
	cmd.Stdin = nil
	if opts.Output != nil {
		cmd.Stdout = opts.Output
		cmd.Stderr = opts.Output
	}

	// Setsid already makes the child a process group leader; adding Setpgid
	// would make the kernel reject the setpgid call on a session leader.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	return &Process{
		PID: cmd.Process.Pid,
		cmd: cmd,
	}, nil
}

// Release lets the child run on without the launcher waiting for it.
func (p *Process) Release() error {
	if err := p.cmd.Process.Release(); err != nil {
		return fmt.Errorf("process started but failed to release: %w", err)
	}
	return nil
}

// Wait blocks until the child exits or ctx is done and returns the child's
// exit code. A child killed by a signal reports 128+signal, like a shell.
// When ctx is done first, Wait returns ctx.Err() and the child keeps running.
func (p *Process) Wait(ctx context.Context) (int, error) {
	if p.done == nil {
		p.done = make(chan struct{})
		go func() {
			p.err = p.cmd.Wait()
			close(p.done)
		}()
	}

	select {
	case <-p.done:
		return exitCode(p.err)
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// exitCode converts the result of exec.Cmd.Wait into a process exit code.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, fmt.Errorf("failed waiting for process: %w", err)
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
