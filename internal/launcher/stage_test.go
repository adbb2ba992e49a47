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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// setupStaging creates bin/app.jar with content A and, when staged is not
// empty, bin/staging/staging-app.jar with that content.
func setupStaging(t *testing.T, staged string) (jar, staging string) {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.MkdirAll(filepath.Join(bin, "staging"), 0755))

	jar = filepath.Join(bin, "app.jar")
	require.NoError(t, os.WriteFile(jar, []byte("A"), 0640))

	staging = StagingPath(jar)
	if staged != "" {
		require.NoError(t, os.WriteFile(staging, []byte(staged), 0600))
	}
	return jar, staging
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestStagingPath(t *testing.T) {
	assert.Equal(t, "/opt/app/bin/staging/staging-app-0.1.0.jar", StagingPath("/opt/app/bin/app-0.1.0.jar"))
}

func TestStager_Swap(t *testing.T) {
	jar, staging := setupStaging(t, "B")
	s := NewStager(nil)

	result, err := s.Stage(jar)
	require.NoError(t, err)
	assert.True(t, result.Staged)
	assert.Equal(t, StageMethodRename, result.Method)
	assert.Equal(t, jar, result.Path)

	assert.Equal(t, "B", readFile(t, jar))
	assert.NoFileExists(t, staging)

	info, err := os.Stat(jar)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm(), "target mode should be kept")

	// Second run has nothing to stage.
	result, err = s.Stage(jar)
	require.NoError(t, err)
	assert.False(t, result.Staged)
	assert.Equal(t, "B", readFile(t, jar))
}

func TestStager_NoStagingFile(t *testing.T) {
	jar, _ := setupStaging(t, "")

	result, err := NewStager(nil).Stage(jar)
	require.NoError(t, err)
	assert.False(t, result.Staged)
	assert.Equal(t, jar, result.Path)
	assert.Equal(t, "A", readFile(t, jar))
}

func TestStager_NoStagingDirectory(t *testing.T) {
	jar := filepath.Join(t.TempDir(), "app.jar")
	require.NoError(t, os.WriteFile(jar, []byte("A"), 0644))

	result, err := NewStager(nil).Stage(jar)
	require.NoError(t, err)
	assert.False(t, result.Staged)
}

func TestStager_StagingIsDirectory(t *testing.T) {
	jar, staging := setupStaging(t, "")
	require.NoError(t, os.Mkdir(staging, 0755))

	_, err := NewStager(nil).Stage(jar)

	var fsErr *javactlerrors.FilesystemError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "A", readFile(t, jar))
}

func TestStager_RenameFailureLeavesTarget(t *testing.T) {
	jar, staging := setupStaging(t, "B")
	s := NewStager(nil)
	s.rename = func(string, string) error {
		return &os.LinkError{Op: "rename", Err: unix.EACCES}
	}

	_, err := s.Stage(jar)

	var fsErr *javactlerrors.FilesystemError
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "A", readFile(t, jar))
	assert.FileExists(t, staging)
}

// crossDevice makes the first rename fail with EXDEV, as when the staging
// directory is a separate mount.
func crossDevice(staging string) func(string, string) error {
	return func(oldpath, newpath string) error {
		if oldpath == staging {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: unix.EXDEV}
		}
		return os.Rename(oldpath, newpath)
	}
}

func TestStager_CrossDeviceCopy(t *testing.T) {
	jar, staging := setupStaging(t, "B")
	s := NewStager(nil)
	s.rename = crossDevice(staging)

	result, err := s.Stage(jar)
	require.NoError(t, err)
	assert.True(t, result.Staged)
	assert.Equal(t, StageMethodCopy, result.Method)

	assert.Equal(t, "B", readFile(t, jar))
	assert.NoFileExists(t, staging)
	assertNoTempFiles(t, filepath.Dir(jar))
}

func TestStager_InterruptedCopyLeavesTarget(t *testing.T) {
	jar, staging := setupStaging(t, "BBBBBBBB")
	s := NewStager(nil)
	s.rename = crossDevice(staging)
	s.copy = func(dst io.Writer, src io.Reader) (int64, error) {
		// Write part of the content, then fail.
		n, _ := io.CopyN(dst, src, 3)
		return n, errors.New("disk full")
	}

	_, err := s.Stage(jar)

	var fsErr *javactlerrors.FilesystemError
	require.ErrorAs(t, err, &fsErr)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, "A", readFile(t, jar), "target must keep its original content")
	assert.FileExists(t, staging, "staging file is kept for a retry")
	assertNoTempFiles(t, filepath.Dir(jar))
}

func TestStager_FinalRenameFailureLeavesTarget(t *testing.T) {
	jar, staging := setupStaging(t, "B")
	s := NewStager(nil)
	s.rename = func(oldpath, newpath string) error {
		if oldpath == staging {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: unix.EXDEV}
		}
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: unix.EIO}
	}

	_, err := s.Stage(jar)
	require.Error(t, err)

	assert.Equal(t, "A", readFile(t, jar))
	assert.FileExists(t, staging)
	assertNoTempFiles(t, filepath.Dir(jar))
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".staging.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
