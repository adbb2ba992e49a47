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
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	// ErrLaunchInProgress is returned when another launcher holds the lock.
	ErrLaunchInProgress = errors.New("another launch is in progress")

	// ErrUnsafeDirectory is returned when the lock file parent is world-writable.
	ErrUnsafeDirectory = errors.New("lock directory is world-writable")
)

// LaunchLock serializes launches that share a log root. It holds an
// exclusive flock on a file that records the holder's PID. The file is
// never removed: unlinking a lock file lets two processes lock different
// inodes under the same name.
type LaunchLock struct {
	path string
	file *os.File
}

// NewLaunchLock creates a lock backed by the file at path.
func NewLaunchLock(path string) *LaunchLock {
	return &LaunchLock{path: path}
}

// Path returns the lock file location.
func (l *LaunchLock) Path() string {
	return l.path
}

// Acquire takes the lock without blocking. It returns an error wrapping
// ErrLaunchInProgress when another process holds it.
func (l *LaunchLock) Acquire() error {
	if l.file != nil {
		return nil
	}

	if err := verifyDirectorySafety(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("unsafe lock location: %w", err)
	}

	// O_NOFOLLOW refuses a planted symlink at the lock path.
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid, readErr := readPID(l.path); readErr == nil {
				return fmt.Errorf("%w (held by PID %d)", ErrLaunchInProgress, pid)
			}
			return ErrLaunchInProgress
		}
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}

	if err := f.Truncate(0); err != nil {
		l.unlock(f)
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		l.unlock(f)
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	l.file = f
	return nil
}

// Release drops the lock. It is safe to call when the lock is not held.
func (l *LaunchLock) Release() error {
	if l.file == nil {
		return nil
	}
	err := l.unlock(l.file)
	l.file = nil
	return err
}

func (l *LaunchLock) unlock(f *os.File) error {
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}

// verifyDirectorySafety checks that the directory is not world-writable.
// A world-writable parent lets other users swap the lock file underneath us.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	mode := info.Mode()
	if mode&0002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}

	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPID, strings.TrimSpace(string(data)))
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}
	return pid, nil
}
