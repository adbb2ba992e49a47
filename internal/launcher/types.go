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
	"path/filepath"
	"strings"
	"time"

	"github.com/tombee/javactl/internal/config"
)

// ArtifactKind selects how the application is referenced on the command line.
type ArtifactKind string

const (
	// ArtifactJar starts the application with -jar <path>.
	ArtifactJar ArtifactKind = "jar"

	// ArtifactClasspath puts the jar and extra entries on -cp and names a main class.
	ArtifactClasspath ArtifactKind = "classpath"
)

// Artifact describes the application reference.
type Artifact struct {
	Kind ArtifactKind

	// EntryPoint is the main class for ArtifactClasspath.
	EntryPoint string

	// Classpath holds extra entries after glob expansion, in order.
	Classpath []string
}

// JMX holds the remote JMX settings. A zero Port disables JMX.
type JMX struct {
	Port         int
	SSL          bool
	Authenticate bool
}

// GCLog holds GC log rotation settings.
type GCLog struct {
	FileSize  string
	FileCount int
}

// LaunchConfig is a fully resolved launch description. All paths are absolute.
type LaunchConfig struct {
	AppName          string
	ConfigFile       string
	ExecutablePath   string
	WorkingDirectory string
	LogRoot          string

	JavaBinary  string
	JavaVersion int

	// JVMOptions are emitted first and verbatim. Duplicates are kept.
	JVMOptions       []string
	SystemProperties config.Properties
	JMX              JMX
	GCLog            GCLog
	Artifact         Artifact

	// ExtraArgs follow the artifact reference verbatim.
	ExtraArgs []string

	StagingEnabled bool
	Wait           bool

	// Env is appended to the launcher environment as KEY=value pairs.
	Env []string

	PreCommands  []string
	User         string
	LockEnabled  bool
	AuditEnabled bool

	PIDFile         string
	MetricsTextfile string
}

// Log directory names below the log root.
const (
	ConsoleDirName = "console"
	GCDirName      = "gc"
	DumpDirName    = "dump"
)

// LogDirectorySet is the log tree of one log root.
type LogDirectorySet struct {
	Root    string
	Console string
	GC      string
	Dump    string
}

// NewLogDirectorySet derives the log tree below root.
func NewLogDirectorySet(root string) LogDirectorySet {
	return LogDirectorySet{
		Root:    root,
		Console: filepath.Join(root, ConsoleDirName),
		GC:      filepath.Join(root, GCDirName),
		Dump:    filepath.Join(root, DumpDirName),
	}
}

// Dirs returns the directories in creation order.
func (s LogDirectorySet) Dirs() []string {
	return []string{s.Console, s.GC, s.Dump}
}

// GCLogPath returns the GC log file for a launch.
func (s LogDirectorySet) GCLogPath(ts Timestamp) string {
	return filepath.Join(s.GC, "gc_"+string(ts)+".log")
}

// ConsoleLogPath returns the console log file for a launch.
func (s LogDirectorySet) ConsoleLogPath(ts Timestamp) string {
	return filepath.Join(s.Console, "console_"+string(ts)+".log")
}

// ErrorFile returns the JVM fatal error file pattern. %p is left for the JVM.
func (s LogDirectorySet) ErrorFile() string {
	return filepath.Join(s.Root, "hs_error_pid%p.log")
}

// LockPath returns the launch lock file.
func (s LogDirectorySet) LockPath() string {
	return filepath.Join(s.Root, ".javactl.lock")
}

// AuditPath returns the audit log file.
func (s LogDirectorySet) AuditPath() string {
	return filepath.Join(s.Root, "javactl-audit.jsonl")
}

// TimestampLayout formats a launch instant with millisecond resolution.
const TimestampLayout = "20060102_150405.000"

// Timestamp identifies one launch instant in log file names.
type Timestamp string

// NewTimestamp formats t in local time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.Format(TimestampLayout))
}

// CommandLine is the ordered JVM argument vector, without the binary.
type CommandLine []string

// String renders the command line for display, quoting tokens the shell
// would split or expand.
func (c CommandLine) String() string {
	parts := make([]string, len(c))
	for i, arg := range c {
		parts[i] = shellQuote(arg)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// LaunchHandle describes a started child.
type LaunchHandle struct {
	PID     int
	LogPath string
	Stamp   Timestamp

	// Waited reports whether the launcher blocked until exit.
	// ExitCode is only meaningful when it did.
	Waited   bool
	ExitCode int
}
