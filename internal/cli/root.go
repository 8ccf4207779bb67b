// Package cli implements the chatfeed command line.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ageapps/chatfeed/internal/config"
	"github.com/ageapps/chatfeed/internal/logging"
)

// Execute runs the root command.
func Execute(version string) error {
	return ExecuteContext(context.Background(), version)
}

// ExecuteContext runs the root command; commands stop when ctx ends.
func ExecuteContext(ctx context.Context, version string) error {
	return newRootCmd(version).ExecuteContext(ctx)
}

// app is the state shared by every command: persistent flags and the loaded
// configuration.
type app struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	cfg     *config.Config
	logFile io.Closer
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "chatfeed",
		Short: "Chat room history viewer",
		Long: "chatfeed shows a chat room's history with grouped senders, day " +
			"separators and mention highlighting, pages older history on demand, " +
			"and follows live messages.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/chatfeed/config.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file read before environment overrides")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (json, console, auto)")

	cmd.AddCommand(
		newViewCmd(a),
		newDumpCmd(a),
		newImportCmd(a),
		newSendCmd(a),
		newMetricsCmd(a),
	)
	return cmd
}

func (a *app) load(cmd *cobra.Command) error {
	loader := config.NewLoader()
	loader.SetConfigFile(a.configFile)
	loader.SetEnvFile(a.envFile)
	if a.logLevel != "" {
		loader.Set("logging.level", a.logLevel)
	}
	if a.logFormat != "" {
		loader.Set("logging.format", a.logFormat)
	}

	cfg, err := loader.Load()
	if err != nil {
		return Exitf(ExitCodeUsage, "load config: %w", err)
	}
	a.cfg = cfg

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cmd.ErrOrStderr(),
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return Exitf(ExitCodeFailure, "open log file: %w", err)
		}
		a.logFile = f
		logCfg.Output = f
		logCfg.Format = "json"
	}
	logging.Init(logCfg)

	if used := loader.ConfigFileUsed(); used != "" {
		logging.Component("cli").Debug().Str("path", used).Msg("config loaded")
	}
	return nil
}

func (a *app) close() error {
	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	return err
}
