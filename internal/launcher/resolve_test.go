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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/javactl/internal/config"
	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

func testResolver(env map[string]string) *Resolver {
	return &Resolver{
		LookupEnv: func(name string) (string, bool) {
			v, ok := env[name]
			return v, ok
		},
		HomeDir:     func() (string, error) { return "/home/alice", nil },
		CurrentUser: func() (string, error) { return "alice", nil },
		Getwd:       func() (string, error) { return "/work", nil },
	}
}

func mustParse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestResolver_Resolve(t *testing.T) {
	cfg := mustParse(t, `
app:
  home: ${APP_HOME}
  jar: bin/your-app-assembly-0.1.0.jar
  args: [--port, "9000"]
java:
  home: $JAVA_HOME
  server: true
  memory:
    heap_min: 64M
    heap_max: 2G
    metaspace_min: 1G
    metaspace_max: 2G
    new_min: 256M
    new_max: 256M
    survivor_ratio: 8
    target_survivor_ratio: 50
  prop:
    file.encoding: UTF-8
    http.port: 9000
  option:
    - -XX:+UseConcMarkSweepGC
log:
  home: ~/logs/your-app
os:
  env:
    TZ: UTC
launch:
  pid_file: run/app.pid
`)

	lc, err := testResolver(map[string]string{
		"APP_HOME":  "/opt/your-app",
		"JAVA_HOME": "/usr/java/latest",
	}).Resolve(cfg)
	require.NoError(t, err)

	assert.Equal(t, "your-app-assembly-0.1.0", lc.AppName)
	assert.Equal(t, "/opt/your-app", lc.WorkingDirectory)
	assert.Equal(t, "/opt/your-app/bin/your-app-assembly-0.1.0.jar", lc.ExecutablePath)
	assert.Equal(t, "/home/alice/logs/your-app", lc.LogRoot)
	assert.Equal(t, "/usr/java/latest/bin/java", lc.JavaBinary)
	assert.Equal(t, 8, lc.JavaVersion)
	assert.Equal(t, "/work/run/app.pid", lc.PIDFile)

	assert.Equal(t, []string{
		"-server",
		"-Xms64M",
		"-Xmx2G",
		"-XX:MetaspaceSize=1G",
		"-XX:MaxMetaspaceSize=2G",
		"-Xmn256M",
		"-XX:MaxNewSize=256M",
		"-XX:SurvivorRatio=8",
		"-XX:TargetSurvivorRatio=50",
		"-XX:+UseConcMarkSweepGC",
	}, lc.JVMOptions)

	assert.Equal(t, config.Properties{
		{Name: "file.encoding", Value: "UTF-8"},
		{Name: "http.port", Value: "9000"},
	}, lc.SystemProperties)
	assert.Equal(t, []string{"--port", "9000"}, lc.ExtraArgs)
	assert.Equal(t, []string{"TZ=UTC"}, lc.Env)
	assert.Equal(t, ArtifactJar, lc.Artifact.Kind)

	assert.True(t, lc.StagingEnabled)
	assert.True(t, lc.LockEnabled)
	assert.True(t, lc.AuditEnabled)
	assert.False(t, lc.Wait)
}

func TestResolver_Defaults(t *testing.T) {
	cfg := mustParse(t, `
app:
  jar: /opt/app.jar
log:
  home: logs
launch:
  staging: false
`)

	lc, err := testResolver(nil).Resolve(cfg)
	require.NoError(t, err)

	assert.Equal(t, "/work", lc.WorkingDirectory)
	assert.Equal(t, "/work/logs", lc.LogRoot)
	assert.Equal(t, "java", lc.JavaBinary)
	assert.Empty(t, lc.JVMOptions)
	assert.False(t, lc.StagingEnabled)
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantKey string
	}{
		{
			name:    "unset variable in log home",
			yaml:    "app: {jar: /opt/app.jar}\nlog: {home: $LOG_DIR/app}\n",
			wantKey: "log.home",
		},
		{
			name:    "unset braced variable in jar",
			yaml:    "app: {jar: '${APP_DIR}/app.jar'}\nlog: {home: /var/log/app}\n",
			wantKey: "app.jar",
		},
		{
			name:    "variable expanding to nothing",
			yaml:    "app: {jar: /opt/app.jar}\nlog: {home: $EMPTY}\n",
			wantKey: "log.home",
		},
		{
			name:    "unclosed placeholder",
			yaml:    "app: {jar: /opt/app.jar}\nlog: {home: '/opt/${APP_HOME/logs'}\n",
			wantKey: "log.home",
		},
		{
			name:    "empty placeholder",
			yaml:    "app: {jar: '/opt/${}/app.jar'}\nlog: {home: /var/log/app}\n",
			wantKey: "app.jar",
		},
		{
			name:    "wrong user",
			yaml:    "app: {jar: /opt/app.jar}\nlog: {home: /var/log/app}\nos: {user: bob}\n",
			wantKey: "os.user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustParse(t, tt.yaml)

			_, err := testResolver(map[string]string{"EMPTY": ""}).Resolve(cfg)
			require.Error(t, err)

			var cfgErr *javactlerrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestResolver_EmptyRequiredFields(t *testing.T) {
	_, err := testResolver(nil).Resolve(&config.Config{Log: config.LogConfig{Home: "/logs"}})
	var cfgErr *javactlerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "app.jar", cfgErr.Key)

	_, err = testResolver(nil).Resolve(&config.Config{App: config.AppConfig{Jar: "app.jar"}})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "log.home", cfgErr.Key)
}

func TestResolver_MatchingUser(t *testing.T) {
	cfg := mustParse(t, "app: {jar: /opt/app.jar}\nlog: {home: /var/log/app}\nos: {user: alice}\n")

	lc, err := testResolver(nil).Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "alice", lc.User)
}

func TestResolver_Classpath(t *testing.T) {
	home := t.TempDir()
	for _, name := range []string{"lib/b.jar", "lib/a.jar", "lib/nested/c.jar", "lib/readme.txt"} {
		path := filepath.Join(home, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}

	cfg := mustParse(t, `
app:
  home: `+home+`
  jar: app.jar
  entry_point: com.example.Main
  classpath:
    - lib/**/*.jar
    - conf
log:
  home: /var/log/app
`)

	lc, err := testResolver(nil).Resolve(cfg)
	require.NoError(t, err)

	assert.Equal(t, ArtifactClasspath, lc.Artifact.Kind)
	assert.Equal(t, "com.example.Main", lc.Artifact.EntryPoint)
	assert.Equal(t, []string{
		filepath.Join(home, "lib/a.jar"),
		filepath.Join(home, "lib/b.jar"),
		filepath.Join(home, "lib/nested/c.jar"),
		filepath.Join(home, "conf"),
	}, lc.Artifact.Classpath)
}

func TestCheckPlaceholders(t *testing.T) {
	assert.NoError(t, checkPlaceholders("/opt/${APP_HOME}/logs"))
	assert.NoError(t, checkPlaceholders("$HOME/logs/${APP}"))
	assert.NoError(t, checkPlaceholders("/var/log/app"))

	err := checkPlaceholders("/opt/${APP_HOME/logs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed placeholder")

	err = checkPlaceholders("/opt/${A}/${}/logs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty ${}")
}

func TestResolver_ExpandHome(t *testing.T) {
	r := testResolver(nil)

	got, err := r.expand("log.home", "~")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice", got)

	got, err = r.expand("log.home", "~other/logs")
	require.NoError(t, err)
	assert.Equal(t, "~other/logs", got)
}
