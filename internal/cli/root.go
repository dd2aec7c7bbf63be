/*
PURPOSE:
  Defines the root Cobra command for the Polyglot Runner CLI.
  Handles global flags, config loading and logger setup shared by subcommands.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config and --log-level.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Every subcommand needs the same Load -> Override -> Logger sequence.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/polyglot-runner/main.go
  - Calls: Child commands (run, list-models, validate, version)
  - Modifies: output.Logger (installed once per command).

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root only wires shared helpers.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/polyglot-runner/main.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/daryltucker/polyglot-runner/internal/config"
	"github.com/daryltucker/polyglot-runner/internal/output"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=v1.2.3".
var Version = "dev"

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile string
	// logLevel overrides log.level from the config
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "polyglot-runner",
		Short: "Bilingual (English/Hindi) benchmark runner for local LLMs",
		Long: `Asks every question of a bilingual corpus in English and Hindi to one or more
models served by Ollama or an OpenAI-compatible server, and records the answers.
Use 'run --help' for benchmark options.`,
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// --output_dir and --output-dir are the same flag; config keys use underscores.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./polyglot_runner.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

// loadConfig loads the config file and environment, then applies --log-level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// setupLogging installs the global logger described by cfg.Log.
// file controls whether the rotating log file is written; short commands skip it.
func setupLogging(cfg *config.Config, file bool) io.Closer {
	opts := output.LoggerOptions{
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		NoColor:    cfg.Log.NoColor,
	}
	if file {
		opts.File = cfg.Log.File
	}
	logger, closer := output.NewLogger(opts)
	output.SetLogger(logger)
	return closer
}
