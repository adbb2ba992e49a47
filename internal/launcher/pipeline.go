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
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/javactl/internal/lifecycle"
	"github.com/tombee/javactl/internal/log"
	"github.com/tombee/javactl/internal/metrics"
	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// Launcher runs the full launch sequence for a resolved configuration.
type Launcher struct {
	Provisioner *Provisioner
	Stager      *Stager
	Process     *ProcessLauncher
	Logger      *slog.Logger

	now func() time.Time
}

// New creates a launcher that reports created directories to stdout.
func New(stdout io.Writer, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Launcher{
		Provisioner: NewProvisioner(stdout),
		Stager:      NewStager(log.WithComponent(logger, "stager")),
		Process:     NewProcessLauncher(log.WithComponent(logger, "process")),
		Logger:      logger,
		now:         time.Now,
	}
}

// Result describes a completed launch.
type Result struct {
	LaunchID    string
	Dirs        LogDirectorySet
	Stage       StageResult
	CommandLine CommandLine
	Handle      *LaunchHandle
}

// Plan returns the command line a launch at the current instant would use.
// It touches nothing on disk.
func (l *Launcher) Plan(cfg *LaunchConfig) CommandLine {
	return BuildOptions(cfg, NewLogDirectorySet(cfg.LogRoot), NewTimestamp(l.now()))
}

// Run provisions the log tree, installs a staged artifact, runs the pre
// commands and starts the JVM. In wait mode it blocks until the JVM exits;
// a non-zero exit is returned as *ExitStatusError alongside the result.
//
// Failures after the log tree exists are recorded in the audit log.
func (l *Launcher) Run(ctx context.Context, cfg *LaunchConfig) (result *Result, err error) {
	startedAt := l.now()
	stamp := NewTimestamp(startedAt)
	logger := l.Logger

	dirs, err := l.Provisioner.Ensure(cfg.LogRoot)
	if err != nil {
		return nil, err
	}
	result = &Result{Dirs: dirs}

	var audit *lifecycle.AuditLog
	if cfg.AuditEnabled {
		audit = lifecycle.NewAuditLog(dirs.AuditPath(), cfg.AppName)
		result.LaunchID = audit.LaunchID()
		logger = log.WithLaunchContext(logger, audit.LaunchID(), cfg.AppName)
	}

	var launchMetrics *metrics.LaunchMetrics
	if cfg.MetricsTextfile != "" {
		launchMetrics = metrics.NewLaunchMetrics(cfg.AppName)
	}

	defer func() {
		var exitErr *ExitStatusError
		if err == nil || errors.As(err, &exitErr) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if audit != nil {
			if auditErr := audit.LogFailure(err); auditErr != nil {
				logger.Warn("failed to write audit event", log.Error(auditErr))
			}
		}
		if launchMetrics != nil {
			launchMetrics.RecordFailure(javactlerrors.TypeOf(err))
			l.writeMetrics(logger, launchMetrics, cfg.MetricsTextfile)
		}
	}()

	var lock *lifecycle.LaunchLock
	if cfg.LockEnabled {
		lock = lifecycle.NewLaunchLock(dirs.LockPath())
		switch err := lock.Acquire(); {
		case errors.Is(err, lifecycle.ErrUnsafeDirectory):
			// A shared world-writable log root is valid; launch without the lock.
			logger.Warn("launch lock disabled", slog.String(log.PathKey, lock.Path()), log.Error(err))
			lock = nil
		case err != nil:
			return result, &javactlerrors.LaunchError{Program: cfg.AppName, Reason: "cannot acquire launch lock", Cause: err}
		default:
			defer lock.Release()
		}
	}

	if audit != nil {
		if err := audit.LogStart(cfg.ConfigFile); err != nil {
			logger.Warn("failed to write audit event", log.Error(err))
		}
	}

	if cfg.StagingEnabled {
		staged, err := l.Stager.Stage(cfg.ExecutablePath)
		if err != nil {
			return result, err
		}
		result.Stage = staged
		if staged.Staged && audit != nil {
			if err := audit.LogStaged(staged.Path); err != nil {
				logger.Warn("failed to write audit event", log.Error(err))
			}
		}
	} else {
		result.Stage = StageResult{Path: cfg.ExecutablePath}
	}

	if _, err := os.Stat(cfg.ExecutablePath); err != nil {
		return result, &javactlerrors.LaunchError{Program: cfg.ExecutablePath, Reason: "application artifact not found", Cause: err}
	}

	if cfg.PIDFile != "" {
		if pid, err := lifecycle.ReadPIDFile(cfg.PIDFile); err == nil && lifecycle.IsProcessRunning(pid) {
			logger.Warn("previous process is still running", slog.Int(log.PIDKey, pid), slog.String(log.PathKey, cfg.PIDFile))
		}
	}

	if len(cfg.PreCommands) > 0 {
		runner := &PreCommandRunner{
			Dir:    cfg.WorkingDirectory,
			Env:    cfg.Env,
			Logger: log.WithComponent(logger, "pre"),
		}
		if err := runner.Run(ctx, cfg.PreCommands); err != nil {
			return result, err
		}
	}

	result.CommandLine = BuildOptions(cfg, dirs, stamp)

	running, err := l.Process.Start(LaunchRequest{
		Binary:           cfg.JavaBinary,
		Args:             result.CommandLine,
		Dirs:             dirs,
		Stamp:            stamp,
		WorkingDirectory: cfg.WorkingDirectory,
		Env:              cfg.Env,
		Wait:             cfg.Wait,
	})
	if err != nil {
		return result, err
	}
	result.Handle = running.Handle
	logger = logger.With(slog.Int(log.PIDKey, running.Handle.PID))

	if cfg.PIDFile != "" {
		if err := lifecycle.WritePIDFile(cfg.PIDFile, running.Handle.PID); err != nil {
			logger.Warn("failed to write PID file", log.Error(err))
		}
	}
	if audit != nil {
		if err := audit.LogLaunched(running.Handle.PID, running.Handle.LogPath, result.CommandLine); err != nil {
			logger.Warn("failed to write audit event", log.Error(err))
		}
	}
	if launchMetrics != nil {
		launchMetrics.RecordLaunch(running.Handle.PID, startedAt, l.now().Sub(startedAt), result.Stage.Staged)
		l.writeMetrics(logger, launchMetrics, cfg.MetricsTextfile)
	}

	logger.Info("process launched", slog.String(log.PathKey, running.Handle.LogPath))

	// The lock guards staging and spawning, not the lifetime of the JVM.
	if lock != nil {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release launch lock", log.Error(err))
		}
	}

	if !cfg.Wait {
		if err := running.Release(); err != nil {
			return result, &javactlerrors.LaunchError{Program: cfg.JavaBinary, Reason: "failed to detach", Cause: err}
		}
		return result, nil
	}

	code, err := running.Wait(ctx)
	if err != nil {
		logger.Warn("stopped waiting, process keeps running", log.Error(err))
		if audit != nil {
			if auditErr := audit.LogDetached(running.Handle.PID); auditErr != nil {
				logger.Warn("failed to write audit event", log.Error(auditErr))
			}
		}
		return result, err
	}

	if audit != nil {
		if err := audit.LogExited(running.Handle.PID, code); err != nil {
			logger.Warn("failed to write audit event", log.Error(err))
		}
	}
	if launchMetrics != nil {
		launchMetrics.RecordExit(code)
		l.writeMetrics(logger, launchMetrics, cfg.MetricsTextfile)
	}

	if code != 0 {
		return result, &ExitStatusError{Code: code}
	}
	return result, nil
}

func (l *Launcher) writeMetrics(logger *slog.Logger, m *metrics.LaunchMetrics, path string) {
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn("failed to write metrics", log.Error(err))
	}
}
