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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// fakeJava writes an executable script that prints its working directory,
// the TZ variable and then each argument on its own line.
func fakeJava(t *testing.T, exitCode int) string {
	t.Helper()
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}

	path := filepath.Join(t.TempDir(), "bin", "java")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	script := "#!/bin/sh\npwd\necho \"TZ=$TZ\"\nfor a in \"$@\"; do echo \"$a\"; done\necho oops >&2\nexit " +
		strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

// skipOnSpawnError skips when the environment forbids fork/exec.
func skipOnSpawnError(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
	}
}

func killProcess(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)
}

func launchRequest(t *testing.T, binary string, wait bool) LaunchRequest {
	t.Helper()
	dirs, err := NewProvisioner(nil).Ensure(t.TempDir())
	require.NoError(t, err)
	return LaunchRequest{
		Binary:           binary,
		Args:             CommandLine{"-Xmx2G", "-jar", "app.jar"},
		Dirs:             dirs,
		Stamp:            testStamp,
		WorkingDirectory: t.TempDir(),
		Env:              []string{"TZ=Asia/Tokyo"},
		Wait:             wait,
	}
}

func TestProcessLauncher_LaunchWait(t *testing.T) {
	java := fakeJava(t, 0)
	req := launchRequest(t, java, true)

	handle, err := NewProcessLauncher(nil).Launch(context.Background(), req)
	skipOnSpawnError(t, err)
	require.NoError(t, err)

	assert.True(t, handle.Waited)
	assert.Equal(t, 0, handle.ExitCode)
	assert.Positive(t, handle.PID)
	assert.Equal(t, testStamp, handle.Stamp)
	assert.Equal(t, filepath.Join(req.Dirs.Console, "console_20250301_120000.123.log"), handle.LogPath)

	lines := strings.Split(strings.TrimSpace(readFile(t, handle.LogPath)), "\n")
	require.GreaterOrEqual(t, len(lines), 6)

	resolved, _ := filepath.EvalSymlinks(req.WorkingDirectory)
	assert.Contains(t, []string{req.WorkingDirectory, resolved}, lines[0])
	assert.Equal(t, "TZ=Asia/Tokyo", lines[1])
	assert.Equal(t, []string{"-Xmx2G", "-jar", "app.jar"}, lines[2:5])
	assert.Equal(t, "oops", lines[5], "stderr should share the console log")
}

func TestProcessLauncher_ExitCode(t *testing.T) {
	java := fakeJava(t, 3)

	handle, err := NewProcessLauncher(nil).Launch(context.Background(), launchRequest(t, java, true))
	skipOnSpawnError(t, err)

	var exitErr *ExitStatusError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	require.NotNil(t, handle)
	assert.Equal(t, 3, handle.ExitCode)
}

func TestProcessLauncher_FireAndForget(t *testing.T) {
	java := fakeJava(t, 0)
	req := launchRequest(t, java, false)

	handle, err := NewProcessLauncher(nil).Launch(context.Background(), req)
	skipOnSpawnError(t, err)
	require.NoError(t, err)

	assert.False(t, handle.Waited)
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(handle.LogPath)
		return err == nil && strings.Contains(string(data), "app.jar")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestProcessLauncher_LogNameCollision(t *testing.T) {
	java := fakeJava(t, 0)
	req := launchRequest(t, java, true)
	taken := req.Dirs.ConsoleLogPath(req.Stamp)
	require.NoError(t, os.WriteFile(taken, []byte("previous"), 0644))

	handle, err := NewProcessLauncher(nil).Launch(context.Background(), req)
	skipOnSpawnError(t, err)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(req.Dirs.Console, "console_20250301_120000.123-1.log"), handle.LogPath)
	assert.Equal(t, "previous", readFile(t, taken))
}

func TestProcessLauncher_MissingBinary(t *testing.T) {
	req := launchRequest(t, filepath.Join(t.TempDir(), "no-such-java"), false)

	_, err := NewProcessLauncher(nil).Launch(context.Background(), req)

	var launchErr *javactlerrors.LaunchError
	require.ErrorAs(t, err, &launchErr)

	entries, err := os.ReadDir(req.Dirs.Console)
	require.NoError(t, err)
	assert.Empty(t, entries, "no console log should be created")
}

func TestProcessLauncher_NotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0644))

	_, err := NewProcessLauncher(nil).Launch(context.Background(), launchRequest(t, path, false))

	var launchErr *javactlerrors.LaunchError
	require.ErrorAs(t, err, &launchErr)
}

func TestProcessLauncher_CancelWait(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}
	path := filepath.Join(t.TempDir(), "java")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 5\n"), 0755))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	handle, err := NewProcessLauncher(nil).Launch(ctx, launchRequest(t, path, true))
	skipOnSpawnError(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, handle)
	defer killProcess(handle.PID)

	assert.False(t, handle.Waited)
}
