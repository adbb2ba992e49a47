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

// Package errors defines the error taxonomy shared by the javactl launch
// pipeline. Every fatal condition surfaces as one of these types so the CLI
// can map it to a distinct exit code.
package errors

import (
	"errors"
	"fmt"
)

// Error type identifiers returned by ErrorType.
const (
	TypeConfig     = "config"
	TypeFilesystem = "filesystem"
	TypeLaunch     = "launch"
)

// ConfigError represents malformed or missing configuration.
// It is raised before any side effect takes place.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "log.home", "java.jmx.port")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := "config error"
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s", e.Key)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string {
	return TypeConfig
}

// FilesystemError represents a failure to create log directories or to
// replace the executable with its staged artifact.
type FilesystemError struct {
	// Op is the operation that failed (e.g., "mkdir", "stage")
	Op string

	// Path is the file or directory the operation targeted
	Path string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *FilesystemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s %s failed", e.Op, e.Path)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *FilesystemError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *FilesystemError) ErrorType() string {
	return TypeFilesystem
}

// LaunchError represents a child process that could not be started.
type LaunchError struct {
	// Program is the binary that was being launched
	Program string

	// Reason is the human-readable error description
	Reason string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	msg := e.Reason
	if e.Program != "" {
		msg = fmt.Sprintf("%s: %s", e.Program, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *LaunchError) ErrorType() string {
	return TypeLaunch
}

// TypeOf returns the ErrorType of the first classified error in err's chain,
// or an empty string.
func TypeOf(err error) string {
	var classified ErrorClassifier
	if errors.As(err, &classified) {
		return classified.ErrorType()
	}
	return ""
}
