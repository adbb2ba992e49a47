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

/*
Package cli provides the javactl root command.

javactl takes a single YAML file describing a JVM application, prepares
its log directories, installs a staged artifact if one is waiting and
starts the JVM with its output in a timestamped console log.

# Usage

From main.go:

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd := cli.NewRootCommand(cli.BuildInfo{Version: version})
	if err := cmd.ExecuteContext(ctx); err != nil {
	    cli.HandleExitError(err)
	}

# Flags

	--dry-run          Print the java command line and exit
	--check            Validate the configuration and exit
	--wait             Wait for the JVM and exit with its code
	--no-staging       Ignore a staged artifact
	--verbose, -v      Log each step to stderr
	--log-format       Log format (text, json, auto)

# Exit Codes

	0    launch succeeded (or the JVM exited 0 with --wait)
	N    the JVM's own exit code with --wait
	71   the JVM could not be started
	73   a log directory or the staged artifact could not be written
	78   the configuration is invalid
	130  interrupted while waiting; the JVM keeps running
	1    anything else
*/
package cli
