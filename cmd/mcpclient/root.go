package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nakad-pixel/Mcpclient/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	v          *viper.Viper
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}

	rootCmd := &cobra.Command{
		Use:           "mcpclient",
		Short:         "Chat backend bridging language models and MCP tool servers",
		Long:          "mcpclient connects to remote MCP servers over JSON-RPC, exposes their tools to language models and drives chat turns, alone or as a council of models.",
		SilenceUsage:  true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (YAML or TOML)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	_ = opts.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = opts.v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newServeCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.v, o.configPath)
}

func newLogger(cfg config.Log, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
