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
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/javactl/internal/config"
	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// Resolver turns a loaded configuration into a LaunchConfig. It expands ~
// and environment references and makes every path absolute. It never
// creates anything on disk.
type Resolver struct {
	LookupEnv   func(string) (string, bool)
	HomeDir     func() (string, error)
	CurrentUser func() (string, error)
	Getwd       func() (string, error)
	Logger      *slog.Logger
}

// NewResolver creates a resolver backed by the process environment.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		LookupEnv: os.LookupEnv,
		HomeDir:   os.UserHomeDir,
		CurrentUser: func() (string, error) {
			u, err := user.Current()
			if err != nil {
				return "", err
			}
			return u.Username, nil
		},
		Getwd:  os.Getwd,
		Logger: logger,
	}
}

// Resolve builds a LaunchConfig from cfg. Problems are reported as
// *errors.ConfigError naming the offending key.
func (r *Resolver) Resolve(cfg *config.Config) (*LaunchConfig, error) {
	if strings.TrimSpace(cfg.App.Jar) == "" {
		return nil, &javactlerrors.ConfigError{Key: "app.jar", Reason: "must not be empty"}
	}
	if strings.TrimSpace(cfg.Log.Home) == "" {
		return nil, &javactlerrors.ConfigError{Key: "log.home", Reason: "must not be empty"}
	}

	cwd, err := r.Getwd()
	if err != nil {
		return nil, &javactlerrors.ConfigError{Reason: "cannot determine working directory", Cause: err}
	}

	home := cwd
	if cfg.App.Home != "" {
		if home, err = r.absPath("app.home", cfg.App.Home, cwd); err != nil {
			return nil, err
		}
	}

	jar, err := r.absPath("app.jar", cfg.App.Jar, home)
	if err != nil {
		return nil, err
	}
	logRoot, err := r.absPath("log.home", cfg.Log.Home, cwd)
	if err != nil {
		return nil, err
	}

	javaBinary := "java"
	if cfg.Java.Home != "" {
		javaHome, err := r.absPath("java.home", cfg.Java.Home, cwd)
		if err != nil {
			return nil, err
		}
		javaBinary = filepath.Join(javaHome, "bin", "java")
	}

	major, err := cfg.JavaMajorVersion()
	if err != nil {
		return nil, err
	}

	artifact := Artifact{Kind: ArtifactJar}
	if cfg.App.EntryPoint != "" {
		artifact.Kind = ArtifactClasspath
		artifact.EntryPoint = cfg.App.EntryPoint
		for i, entry := range cfg.App.Classpath {
			key := fmt.Sprintf("app.classpath[%d]", i)
			pattern, err := r.absPath(key, entry, home)
			if err != nil {
				return nil, err
			}
			matches, err := r.glob(key, pattern)
			if err != nil {
				return nil, err
			}
			artifact.Classpath = append(artifact.Classpath, matches...)
		}
	}

	pidFile := ""
	if cfg.Launch.PIDFile != "" {
		if pidFile, err = r.absPath("launch.pid_file", cfg.Launch.PIDFile, cwd); err != nil {
			return nil, err
		}
	}
	textfile := ""
	if cfg.Metrics.Textfile != "" {
		if textfile, err = r.absPath("metrics.textfile", cfg.Metrics.Textfile, cwd); err != nil {
			return nil, err
		}
	}

	if cfg.OS.User != "" {
		if err := r.checkUser(cfg.OS.User); err != nil {
			return nil, err
		}
	}

	if _, statErr := os.Stat(jar); statErr != nil && r.Logger != nil {
		r.Logger.Debug("artifact not present yet", slog.String("path", jar), slog.Any("error", statErr))
	}

	lc := &LaunchConfig{
		AppName:          cfg.App.Name,
		ExecutablePath:   jar,
		WorkingDirectory: home,
		LogRoot:          logRoot,
		JavaBinary:       javaBinary,
		JavaVersion:      major,
		JVMOptions:       jvmOptions(cfg.Java),
		SystemProperties: append(config.Properties(nil), cfg.Java.Prop...),
		JMX: JMX{
			Port:         cfg.Java.JMX.Port,
			SSL:          cfg.Java.JMX.SSL,
			Authenticate: cfg.Java.JMX.Authenticate,
		},
		GCLog: GCLog{
			FileSize:  cfg.Log.GC.FileSize,
			FileCount: cfg.Log.GC.FileNum,
		},
		Artifact:        artifact,
		ExtraArgs:       append([]string(nil), cfg.App.Args...),
		StagingEnabled:  enabled(cfg.Launch.Staging),
		Wait:            cfg.Launch.Wait,
		Env:             cfg.OS.Env.Environ(),
		PreCommands:     append([]string(nil), cfg.Pre...),
		User:            cfg.OS.User,
		LockEnabled:     enabled(cfg.Launch.Lock),
		AuditEnabled:    enabled(cfg.Log.Audit),
		PIDFile:         pidFile,
		MetricsTextfile: textfile,
	}
	return lc, nil
}

// jvmOptions flattens the structured settings into leading JVM flags,
// followed by the raw options in file order.
func jvmOptions(java config.JavaConfig) []string {
	var opts []string
	if java.Server {
		opts = append(opts, "-server")
	}

	m := java.Memory
	sized := []struct {
		flag  string
		value string
	}{
		{"-Xms", m.HeapMin},
		{"-Xmx", m.HeapMax},
		{"-XX:PermSize=", m.PermMin},
		{"-XX:MaxPermSize=", m.PermMax},
		{"-XX:MetaspaceSize=", m.MetaspaceMin},
		{"-XX:MaxMetaspaceSize=", m.MetaspaceMax},
		{"-Xmn", m.NewMin},
		{"-XX:MaxNewSize=", m.NewMax},
	}
	for _, s := range sized {
		if s.value != "" {
			opts = append(opts, s.flag+s.value)
		}
	}
	if m.SurvivorRatio > 0 {
		opts = append(opts, fmt.Sprintf("-XX:SurvivorRatio=%d", m.SurvivorRatio))
	}
	if m.TargetSurvivorRatio > 0 {
		opts = append(opts, fmt.Sprintf("-XX:TargetSurvivorRatio=%d", m.TargetSurvivorRatio))
	}

	return append(opts, java.Option...)
}

// absPath expands raw and makes it absolute relative to base.
func (r *Resolver) absPath(key, raw, base string) (string, error) {
	path, err := r.expand(key, raw)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", &javactlerrors.ConfigError{Key: key, Reason: fmt.Sprintf("%q expands to an empty path", raw)}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	return filepath.Clean(path), nil
}

// expand replaces a leading ~ with the home directory and substitutes
// $VAR and ${VAR}. An unset variable is an error.
func (r *Resolver) expand(key, raw string) (string, error) {
	path := strings.TrimSpace(raw)
	if err := checkPlaceholders(path); err != nil {
		return "", &javactlerrors.ConfigError{Key: key, Reason: err.Error()}
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := r.HomeDir()
		if err != nil {
			return "", &javactlerrors.ConfigError{Key: key, Reason: "cannot expand ~", Cause: err}
		}
		path = home + path[1:]
	}

	var missing []string
	path = os.Expand(path, func(name string) string {
		value, ok := r.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return "", &javactlerrors.ConfigError{
			Key:    key,
			Reason: fmt.Sprintf("environment variable %s is not set", strings.Join(missing, ", ")),
		}
	}

	return path, nil
}

// checkPlaceholders rejects ${ without a closing brace and empty ${}.
// os.Expand drops both silently.
func checkPlaceholders(path string) error {
	rest := path
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			return nil
		}
		rest = rest[i+2:]
		end := strings.IndexByte(rest, '}')
		switch {
		case end < 0:
			return fmt.Errorf("malformed placeholder in %q: missing closing brace", path)
		case end == 0:
			return fmt.Errorf("malformed placeholder in %q: empty ${}", path)
		}
		rest = rest[end+1:]
	}
}

// glob expands a classpath pattern. Entries without glob syntax are kept
// as written so directories of classes work.
func (r *Resolver) glob(key, pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return nil, &javactlerrors.ConfigError{Key: key, Reason: fmt.Sprintf("invalid glob %q", pattern)}
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, &javactlerrors.ConfigError{Key: key, Reason: fmt.Sprintf("cannot expand %q", pattern), Cause: err}
	}
	if len(matches) == 0 && r.Logger != nil {
		r.Logger.Warn("classpath pattern matched nothing", slog.String("pattern", pattern))
	}
	sort.Strings(matches)
	return matches, nil
}

func (r *Resolver) checkUser(want string) error {
	current, err := r.CurrentUser()
	if err != nil {
		return &javactlerrors.ConfigError{Key: "os.user", Reason: "cannot determine current user", Cause: err}
	}
	if current != want {
		return &javactlerrors.ConfigError{
			Key:    "os.user",
			Reason: fmt.Sprintf("must run as %s, not %s", want, current),
		}
	}
	return nil
}

func enabled(b *bool) bool {
	return b == nil || *b
}
