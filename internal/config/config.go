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

// Package config loads the javactl YAML configuration file.
//
// The file describes one JVM application:
//
//	app:
//	  name: your-app
//	  home: /opt/your-app
//	  jar: bin/your-app-assembly-0.1.0.jar
//	java:
//	  home: /usr/java/latest
//	  version: "1.8"
//	  server: true
//	  memory:
//	    heap_min: 64M
//	    heap_max: 2G
//	  jmx:
//	    port: 20001
//	  prop:
//	    file.encoding: UTF-8
//	  option:
//	    - -XX:+UseConcMarkSweepGC
//	log:
//	  home: /var/log/your-app
//
// Paths are kept exactly as written; expansion of ~ and environment
// references happens when the launcher resolves the configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	javactlerrors "github.com/tombee/javactl/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the file leaves a setting out.
const (
	DefaultJavaVersion = "1.8"
	DefaultGCFileSize  = "10M"
	DefaultGCFileNum   = 10
)

// Config represents the complete javactl configuration.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Java    JavaConfig    `yaml:"java"`
	Log     LogConfig     `yaml:"log"`
	OS      OSConfig      `yaml:"os"`
	Launch  LaunchConfig  `yaml:"launch"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Pre lists shell commands run in app.home before the JVM starts.
	// A failing command aborts the launch.
	Pre []string `yaml:"pre,omitempty"`
}

// AppConfig describes the application artifact.
type AppConfig struct {
	// Name identifies the application in logs and metrics.
	// Default: jar file name without extension
	Name string `yaml:"name,omitempty"`

	// Home is the working directory of the JVM and the base for relative paths.
	Home string `yaml:"home,omitempty"`

	// Jar is the application artifact. Required.
	Jar string `yaml:"jar"`

	// EntryPoint is a main class. When set the jar is put on the classpath
	// instead of being started with -jar.
	EntryPoint string `yaml:"entry_point,omitempty"`

	// Classpath lists extra classpath entries; doublestar globs are allowed.
	Classpath []string `yaml:"classpath,omitempty"`

	// Args are passed to the application after every JVM flag.
	Args []string `yaml:"args,omitempty"`
}

// JavaConfig describes the JVM and its tuning flags.
type JavaConfig struct {
	// Home is the JDK/JRE root; the launcher runs <home>/bin/java.
	// Empty means "java" from PATH.
	Home string `yaml:"home,omitempty"`

	// Version selects between legacy and unified GC logging flags.
	// Default: 1.8
	Version string `yaml:"version,omitempty"`

	// Server adds -server.
	Server bool `yaml:"server,omitempty"`

	Memory MemoryConfig `yaml:"memory,omitempty"`
	JMX    JMXConfig    `yaml:"jmx,omitempty"`

	// Prop holds system properties rendered as -Dname=value in file order.
	Prop Properties `yaml:"prop,omitempty"`

	// Option holds raw JVM flags passed through verbatim.
	Option []string `yaml:"option,omitempty"`
}

// MemoryConfig holds heap and generation sizing.
type MemoryConfig struct {
	HeapMin             string `yaml:"heap_min,omitempty"`
	HeapMax             string `yaml:"heap_max,omitempty"`
	PermMin             string `yaml:"perm_min,omitempty"`
	PermMax             string `yaml:"perm_max,omitempty"`
	MetaspaceMin        string `yaml:"metaspace_min,omitempty"`
	MetaspaceMax        string `yaml:"metaspace_max,omitempty"`
	NewMin              string `yaml:"new_min,omitempty"`
	NewMax              string `yaml:"new_max,omitempty"`
	SurvivorRatio       int    `yaml:"survivor_ratio,omitempty"`
	TargetSurvivorRatio int    `yaml:"target_survivor_ratio,omitempty"`
}

// JMXConfig enables remote JMX. A zero port disables it.
type JMXConfig struct {
	Port         int  `yaml:"port,omitempty"`
	SSL          bool `yaml:"ssl,omitempty"`
	Authenticate bool `yaml:"authenticate,omitempty"`
}

// LogConfig describes the log tree.
type LogConfig struct {
	// Home is the log root; console, gc and dump live below it. Required.
	Home string `yaml:"home"`

	GC GCLogConfig `yaml:"gc,omitempty"`

	// Audit writes launch lifecycle events to <home>/javactl-audit.jsonl.
	// Default: true
	Audit *bool `yaml:"audit,omitempty"`
}

// GCLogConfig controls GC log rotation.
type GCLogConfig struct {
	// FileSize is the rotation size, e.g. 10M.
	FileSize string `yaml:"file_size,omitempty"`

	// FileNum is the number of rotated files kept.
	FileNum int `yaml:"file_num,omitempty"`
}

// OSConfig holds process-level settings.
type OSConfig struct {
	// User, when set, must match the invoking user.
	User string `yaml:"user,omitempty"`

	// Env is added to the child environment in file order.
	Env Properties `yaml:"env,omitempty"`
}

// LaunchConfig controls how the child is started.
type LaunchConfig struct {
	// Wait blocks until the JVM exits and propagates its exit code.
	Wait bool `yaml:"wait,omitempty"`

	// Staging swaps in <jar dir>/staging/staging-<jar> when present.
	// Default: true
	Staging *bool `yaml:"staging,omitempty"`

	// Lock serializes launches sharing a log root.
	// Default: true
	Lock *bool `yaml:"lock,omitempty"`

	// PIDFile receives the child PID after a successful start.
	PIDFile string `yaml:"pid_file,omitempty"`
}

// MetricsConfig controls launch metrics export.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after each launch,
	// for the node_exporter textfile collector. Empty disables it.
	Textfile string `yaml:"textfile,omitempty"`
}

var (
	sizePattern    = regexp.MustCompile(`^[0-9]+[kKmMgGtT]?$`)
	versionPattern = regexp.MustCompile(`^([0-9]+)(?:\.([0-9]+))?`)
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &javactlerrors.ConfigError{Reason: "failed to read config file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var cfgErr *javactlerrors.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &javactlerrors.ConfigError{Reason: fmt.Sprintf("failed to parse %s", filepath.Base(path)), Cause: err}
	}
	return cfg, nil
}

// Parse decodes YAML data, applies defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &javactlerrors.ConfigError{Reason: "config file is empty"}
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Java.Version == "" {
		c.Java.Version = DefaultJavaVersion
	}
	if c.Log.GC.FileSize == "" {
		c.Log.GC.FileSize = DefaultGCFileSize
	}
	if c.Log.GC.FileNum == 0 {
		c.Log.GC.FileNum = DefaultGCFileNum
	}
	if c.App.Name == "" && c.App.Jar != "" {
		base := filepath.Base(c.App.Jar)
		c.App.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if c.Launch.Staging == nil {
		c.Launch.Staging = boolPtr(true)
	}
	if c.Launch.Lock == nil {
		c.Launch.Lock = boolPtr(true)
	}
	if c.Log.Audit == nil {
		c.Log.Audit = boolPtr(true)
	}
}

// Validate checks that the configuration is valid. It returns the first
// problem found as a *errors.ConfigError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.App.Jar) == "" {
		return invalid("app.jar", "must not be empty")
	}
	if strings.TrimSpace(c.Log.Home) == "" {
		return invalid("log.home", "must not be empty")
	}
	if len(c.App.Classpath) > 0 && c.App.EntryPoint == "" {
		return invalid("app.classpath", "requires app.entry_point")
	}

	major, err := c.JavaMajorVersion()
	if err != nil {
		return err
	}

	sizes := []struct {
		key   string
		value string
	}{
		{"java.memory.heap_min", c.Java.Memory.HeapMin},
		{"java.memory.heap_max", c.Java.Memory.HeapMax},
		{"java.memory.perm_min", c.Java.Memory.PermMin},
		{"java.memory.perm_max", c.Java.Memory.PermMax},
		{"java.memory.metaspace_min", c.Java.Memory.MetaspaceMin},
		{"java.memory.metaspace_max", c.Java.Memory.MetaspaceMax},
		{"java.memory.new_min", c.Java.Memory.NewMin},
		{"java.memory.new_max", c.Java.Memory.NewMax},
		{"log.gc.file_size", c.Log.GC.FileSize},
	}
	for _, s := range sizes {
		if s.value != "" && !sizePattern.MatchString(s.value) {
			return invalid(s.key, fmt.Sprintf("invalid size %q (want e.g. 512M, 2G)", s.value))
		}
	}

	if major >= 8 && (c.Java.Memory.PermMin != "" || c.Java.Memory.PermMax != "") {
		return invalid("java.memory.perm_min", "permanent generation settings are not supported on Java 8 and later; use metaspace_min/metaspace_max")
	}
	if major < 8 && (c.Java.Memory.MetaspaceMin != "" || c.Java.Memory.MetaspaceMax != "") {
		return invalid("java.memory.metaspace_min", "metaspace settings require Java 8 or later")
	}
	if c.Java.Memory.SurvivorRatio < 0 {
		return invalid("java.memory.survivor_ratio", "must not be negative")
	}
	if c.Java.Memory.TargetSurvivorRatio < 0 || c.Java.Memory.TargetSurvivorRatio > 100 {
		return invalid("java.memory.target_survivor_ratio", "must be between 0 and 100")
	}
	if c.Java.JMX.Port < 0 || c.Java.JMX.Port > 65535 {
		return invalid("java.jmx.port", fmt.Sprintf("must be between 1 and 65535, got %d", c.Java.JMX.Port))
	}
	if c.Log.GC.FileNum < 1 {
		return invalid("log.gc.file_num", "must be at least 1")
	}
	for i, cmd := range c.Pre {
		if strings.TrimSpace(cmd) == "" {
			return invalid(fmt.Sprintf("pre[%d]", i), "must not be empty")
		}
	}

	return nil
}

// JavaMajorVersion returns the major Java version, treating the legacy
// "1.x" scheme as x.
func (c *Config) JavaMajorVersion() (int, error) {
	return ParseJavaVersion(c.Java.Version)
}

// ParseJavaVersion parses versions like "1.8", "1.7.0_80", "11" or "17.0.2".
func ParseJavaVersion(version string) (int, error) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(version))
	if m == nil {
		return 0, invalid("java.version", fmt.Sprintf("cannot parse %q", version))
	}
	major, _ := strconv.Atoi(m[1])
	if major == 1 && m[2] != "" {
		major, _ = strconv.Atoi(m[2])
	}
	if major < 1 {
		return 0, invalid("java.version", fmt.Sprintf("cannot parse %q", version))
	}
	return major, nil
}

func invalid(key, reason string) error {
	return &javactlerrors.ConfigError{Key: key, Reason: reason}
}

func boolPtr(b bool) *bool {
	return &b
}
