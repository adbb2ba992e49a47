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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// Staging layout next to the executable.
const (
	StagingDirName = "staging"
	StagingPrefix  = "staging-"
)

// Stage methods reported in StageResult.
const (
	StageMethodRename = "rename"
	StageMethodCopy   = "copy"
)

// StageResult describes the outcome of Stage.
type StageResult struct {
	// Path is the executable to run. It is always the configured path.
	Path string

	// Staged reports whether a staging file replaced the executable.
	Staged bool

	// Method is how the replacement was installed.
	Method string
}

// Stager swaps a staged artifact over the configured executable.
type Stager struct {
	Logger *slog.Logger

	rename func(oldpath, newpath string) error
	copy   func(dst io.Writer, src io.Reader) (int64, error)
}

// NewStager creates a stager using the real filesystem.
func NewStager(logger *slog.Logger) *Stager {
	return &Stager{
		Logger: logger,
		rename: os.Rename,
		copy:   io.Copy,
	}
}

// StagingPath returns <dir>/staging/staging-<base> for executable.
func StagingPath(executable string) string {
	return filepath.Join(filepath.Dir(executable), StagingDirName, StagingPrefix+filepath.Base(executable))
}

// Stage replaces executable with its staging file when one exists and
// removes the staging file. Without a staging file nothing is touched.
//
// The replacement is a rename, so the executable is either the old file or
// the new one. When the staging directory is on another filesystem the
// content is copied to a temporary file beside the executable and renamed
// into place. On any failure the executable keeps its original content.
func (s *Stager) Stage(executable string) (StageResult, error) {
	result := StageResult{Path: executable}
	staging := StagingPath(executable)

	info, err := os.Lstat(staging)
	if os.IsNotExist(err) {
		s.debug("no staging artifact", slog.String("path", staging))
		return result, nil
	}
	if err != nil {
		return result, &javactlerrors.FilesystemError{Op: "stat", Path: staging, Cause: err}
	}
	if !info.Mode().IsRegular() {
		return result, &javactlerrors.FilesystemError{
			Op:    "stage",
			Path:  staging,
			Cause: fmt.Errorf("staging artifact is not a regular file"),
		}
	}

	mode := info.Mode().Perm()
	if target, err := os.Stat(executable); err == nil {
		mode = target.Mode().Perm()
	}

	method := StageMethodRename
	if err := s.renameInto(staging, executable, mode); err != nil {
		if !errors.Is(err, unix.EXDEV) {
			return result, &javactlerrors.FilesystemError{Op: "replace", Path: executable, Cause: err}
		}

		s.debug("staging artifact on another filesystem, copying", slog.String("path", staging))
		method = StageMethodCopy
		if err := s.copyInto(staging, executable, mode); err != nil {
			return result, &javactlerrors.FilesystemError{Op: "replace", Path: executable, Cause: err}
		}
		if err := os.Remove(staging); err != nil && !os.IsNotExist(err) {
			return result, &javactlerrors.FilesystemError{Op: "remove", Path: staging, Cause: err}
		}
	}

	result.Staged = true
	result.Method = method
	s.debug("staging artifact installed", slog.String("path", executable), slog.String("method", method))
	return result, nil
}

func (s *Stager) renameInto(staging, target string, mode os.FileMode) error {
	if err := os.Chmod(staging, mode); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	return s.rename(staging, target)
}

// copyInto writes the staging content to a temporary sibling of target and
// renames it over target.
func (s *Stager) copyInto(staging, target string, mode os.FileMode) error {
	src, err := os.Open(staging)
	if err != nil {
		return fmt.Errorf("failed to open staging artifact: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(target), ".staging.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
		}
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := s.copy(tmpFile, src); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Chmod(mode); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		tmpFile = nil
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmpFile = nil

	if err := s.rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	tmpPath = ""
	return nil
}

func (s *Stager) debug(msg string, attrs ...any) {
	if s.Logger != nil {
		s.Logger.Debug(msg, attrs...)
	}
}
