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
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidPID is returned when a PID file contains invalid data.
var ErrInvalidPID = errors.New("invalid PID in file")

// WritePIDFile records pid at path. The file is written to a temporary
// sibling and renamed into place so readers never see a partial PID.
func WritePIDFile(path string, pid int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pid.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		return fmt.Errorf("failed to write PID: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync PID file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("failed to set PID file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close PID file: %w", err)
	}
	tmp = nil

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads the PID stored at path.
// Returns ErrInvalidPID if the file contains non-numeric data.
func ReadPIDFile(path string) (int, error) {
	pid, err := readPID(path)
	if err != nil && !errors.Is(err, ErrInvalidPID) && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	return pid, err
}
