package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// commandContext carries the persistent flags to the subcommands.
type commandContext struct {
	envFile    string
	configFile string
	logLevel   string
	logFile    string

	closeLog func() error
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "subbatch",
		Short:         "Translate subtitle files in batches with LLM backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	rootCmd.PersistentFlags().StringVarP(&ctx.configFile, "config", "c", "", "TOML configuration file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&ctx.logFile, "log-file", "", "Write logs to this file instead of stdout")

	rootCmd.AddCommand(newTranslateCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}

func (c *commandContext) setup() error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return err
	}
	if path := strings.TrimSpace(c.configFile); path != "" {
		if err := os.Setenv("CONFIG_FILE", path); err != nil {
			return fmt.Errorf("set CONFIG_FILE: %w", err)
		}
	}
	return nil
}

// loadConfig builds the configuration and installs the global logger.
func (c *commandContext) loadConfig(opts ...config.Option) (*config.Config, error) {
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.System.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	logFile := cfg.System.LogFile
	if c.logFile != "" {
		logFile = c.logFile
	}

	if logFile == "" {
		log.InitLogger(log.ParseLevel(level))
		return cfg, nil
	}
	fileLogger, err := log.NewFileLogger(logFile, log.ParseLevel(level))
	if err != nil {
		return nil, err
	}
	log.SetGlobal(fileLogger.Logger)
	c.closeLog = fileLogger.Close
	return cfg, nil
}

func (c *commandContext) close() error {
	if c.closeLog == nil {
		return nil
	}
	err := c.closeLog()
	c.closeLog = nil
	return err
}
