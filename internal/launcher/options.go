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
	"path/filepath"
	"strconv"
	"strings"
)

// UnifiedLoggingVersion is the first Java release with -Xlog.
const UnifiedLoggingVersion = 9

// BuildOptions assembles the JVM argument vector. It performs no I/O.
//
// The order is fixed: JVM options, system properties, JMX flags, GC log
// flags, heap dump flags, the error file flag, the artifact reference and
// finally the extra arguments. Tokens are never reordered or deduplicated.
func BuildOptions(cfg *LaunchConfig, dirs LogDirectorySet, ts Timestamp) CommandLine {
	var cmd CommandLine

	cmd = append(cmd, cfg.JVMOptions...)

	for _, prop := range cfg.SystemProperties {
		cmd = append(cmd, "-D"+prop.Name+"="+prop.Value)
	}

	if cfg.JMX.Port > 0 {
		cmd = append(cmd,
			"-Dcom.sun.management.jmxremote",
			fmt.Sprintf("-Dcom.sun.management.jmxremote.port=%d", cfg.JMX.Port),
			"-Dcom.sun.management.jmxremote.ssl="+strconv.FormatBool(cfg.JMX.SSL),
			"-Dcom.sun.management.jmxremote.authenticate="+strconv.FormatBool(cfg.JMX.Authenticate),
		)
	}

	cmd = append(cmd, gcLogFlags(cfg, dirs.GCLogPath(ts))...)

	cmd = append(cmd,
		"-XX:+HeapDumpOnOutOfMemoryError",
		"-XX:HeapDumpPath="+dirs.Dump,
		"-XX:ErrorFile="+dirs.ErrorFile(),
	)

	cmd = append(cmd, artifactRef(cfg)...)

	return append(cmd, cfg.ExtraArgs...)
}

func gcLogFlags(cfg *LaunchConfig, path string) []string {
	if cfg.JavaVersion >= UnifiedLoggingVersion {
		return []string{
			fmt.Sprintf("-Xlog:gc*:file=%s:time,uptime,level,tags:filecount=%d,filesize=%s",
				path, cfg.GCLog.FileCount, cfg.GCLog.FileSize),
		}
	}
	return []string{
		"-verbose:gc",
		"-XX:+PrintGCDateStamps",
		"-XX:+PrintGCDetails",
		"-Xloggc:" + path,
		"-XX:+UseGCLogFileRotation",
		"-XX:GCLogFileSize=" + cfg.GCLog.FileSize,
		fmt.Sprintf("-XX:NumberOfGCLogFiles=%d", cfg.GCLog.FileCount),
	}
}

func artifactRef(cfg *LaunchConfig) []string {
	if cfg.Artifact.Kind == ArtifactClasspath {
		entries := append([]string{cfg.ExecutablePath}, cfg.Artifact.Classpath...)
		return []string{"-cp", strings.Join(entries, string(filepath.ListSeparator)), cfg.Artifact.EntryPoint}
	}
	return []string{"-jar", cfg.ExecutablePath}
}
