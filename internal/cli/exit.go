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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tombee/javactl/internal/launcher"
	javactlerrors "github.com/tombee/javactl/pkg/errors"
)

// Exit codes. The failure codes follow sysexits.h.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitLaunch      = 71  // EX_OSERR
	ExitFilesystem  = 73  // EX_CANTCREAT
	ExitConfig      = 78  // EX_CONFIG
	ExitInterrupted = 130 // 128 + SIGINT
)

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *launcher.ExitStatusError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}

	switch javactlerrors.TypeOf(err) {
	case javactlerrors.TypeConfig:
		return ExitConfig
	case javactlerrors.TypeFilesystem:
		return ExitFilesystem
	case javactlerrors.TypeLaunch:
		return ExitLaunch
	}
	return ExitFailure
}

// PrintError writes the single diagnostic line for err. A child that
// exited non-zero under --wait has already reported through its own log,
// so nothing is printed for it.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}

	var exitErr *launcher.ExitStatusError
	if errors.As(err, &exitErr) {
		return
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "Error: interrupted; the launched process keeps running")
		return
	}

	msg := strings.ReplaceAll(strings.TrimSpace(err.Error()), "\n", "; ")
	fmt.Fprintln(w, "Error:", msg)
}

// HandleExitError prints err and exits with the matching code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}
