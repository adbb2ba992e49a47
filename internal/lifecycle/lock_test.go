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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestLaunchLock_Acquire(t *testing.T) {
	t.Run("writes holder PID", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".javactl.lock")
		lock := NewLaunchLock(path)
		if err := lock.Acquire(); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		defer lock.Release()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read lock file: %v", err)
		}
		if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
			t.Errorf("lock file contains %q, want our PID", got)
		}
	})

	t.Run("second holder is refused", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".javactl.lock")
		first := NewLaunchLock(path)
		if err := first.Acquire(); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}

		second := NewLaunchLock(path)
		err := second.Acquire()
		if !errors.Is(err, ErrLaunchInProgress) {
			t.Fatalf("second Acquire() error = %v, want ErrLaunchInProgress", err)
		}
		if !strings.Contains(err.Error(), strconv.Itoa(os.Getpid())) {
			t.Errorf("error should name the holder PID: %v", err)
		}

		if err := first.Release(); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if err := second.Acquire(); err != nil {
			t.Fatalf("Acquire() after release error = %v", err)
		}
		second.Release()
	})

	t.Run("acquire is idempotent", func(t *testing.T) {
		lock := NewLaunchLock(filepath.Join(t.TempDir(), ".javactl.lock"))
		if err := lock.Acquire(); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if err := lock.Acquire(); err != nil {
			t.Fatalf("second Acquire() on same lock error = %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("Release() when not held error = %v", err)
		}
	})

	t.Run("refuses symlink", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "victim")
		if err := os.WriteFile(target, []byte("keep"), 0600); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, ".javactl.lock")
		if err := os.Symlink(target, path); err != nil {
			t.Fatal(err)
		}

		if err := NewLaunchLock(path).Acquire(); err == nil {
			t.Fatal("Acquire() through symlink succeeded, want error")
		}
		data, _ := os.ReadFile(target)
		if string(data) != "keep" {
			t.Errorf("symlink target modified: %q", data)
		}
	})

	t.Run("refuses world-writable directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "open")
		if err := os.Mkdir(dir, 0777); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(dir, 0777); err != nil {
			t.Fatal(err)
		}

		err := NewLaunchLock(filepath.Join(dir, ".javactl.lock")).Acquire()
		if !errors.Is(err, ErrUnsafeDirectory) {
			t.Errorf("Acquire() error = %v, want ErrUnsafeDirectory", err)
		}
	})
}
