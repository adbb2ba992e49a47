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
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/javactl/internal/config"
	"github.com/tombee/javactl/internal/launcher"
	"github.com/tombee/javactl/internal/log"
)

// BuildInfo carries version information injected at build time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

func (b BuildInfo) String() string {
	v := b.Version
	if v == "" {
		v = "dev"
	}
	if b.Commit == "" && b.BuildDate == "" {
		return v
	}
	return fmt.Sprintf("%s (commit %s, built %s)", v, b.Commit, b.BuildDate)
}

type rootOptions struct {
	dryRun    bool
	check     bool
	wait      bool
	noStaging bool
	verbose   bool
	logFormat string
}

// NewRootCommand creates the javactl command.
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "javactl [flags] CONFIG_FILE",
		Short: "javactl - launch a JVM application from a YAML description",
		Long: `javactl starts a JVM application described by a YAML file.

It creates <log.home>/{console,gc,dump}, replaces the jar with
<jar dir>/staging/staging-<jar> when one is present, builds the JVM
command line and starts java with stdout and stderr in
<log.home>/console/console_<timestamp>.log. javactl returns as soon as
the JVM has started unless --wait is given.`,
		Example: `  javactl /etc/your-app.yml
  javactl --dry-run /etc/your-app.yml
  javactl --wait --no-staging /etc/your-app.yml`,
		Args:          cobra.ExactArgs(1),
		Version:       info.String(),
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args[0])
		},
	}
	cmd.SetVersionTemplate("javactl {{.Version}}\n")

	registerFlags(cmd.Flags(), opts)
	cmd.MarkFlagsMutuallyExclusive("dry-run", "check")

	return cmd
}

// registerFlags adds the launch flags to flags.
func registerFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the java command line without launching")
	flags.BoolVar(&opts.check, "check", false, "Validate the configuration and exit")
	flags.BoolVar(&opts.wait, "wait", false, "Wait for the JVM to exit and return its exit code")
	flags.BoolVar(&opts.noStaging, "no-staging", false, "Do not install a staged artifact")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log each launch step to stderr")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text, json or auto (default from LOG_FORMAT)")
	flags.SortFlags = false
}

func run(ctx context.Context, stdout, stderr io.Writer, opts *rootOptions, configFile string) error {
	logCfg := log.FromEnv()
	logCfg.Output = stderr
	if opts.verbose {
		logCfg.Level = "debug"
	}
	switch log.Format(opts.logFormat) {
	case "":
	case log.FormatText, log.FormatJSON, log.FormatAuto:
		logCfg.Format = log.Format(opts.logFormat)
	default:
		return fmt.Errorf("invalid --log-format %q (want text, json or auto)", opts.logFormat)
	}
	logger := log.New(logCfg)

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if opts.wait {
		cfg.Launch.Wait = true
	}
	if opts.noStaging {
		disabled := false
		cfg.Launch.Staging = &disabled
	}

	lc, err := launcher.NewResolver(log.WithComponent(logger, "resolver")).Resolve(cfg)
	if err != nil {
		return err
	}
	if abs, err := filepath.Abs(configFile); err == nil {
		lc.ConfigFile = abs
	} else {
		lc.ConfigFile = configFile
	}

	if opts.check {
		fmt.Fprintln(stdout, "Configuration OK")
		return nil
	}

	l := launcher.New(stdout, logger)
	if opts.dryRun {
		fmt.Fprintln(stdout, launcher.CommandLine{lc.JavaBinary}.String()+" "+l.Plan(lc).String())
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	_, err = l.Run(ctx, lc)
	return err
}
