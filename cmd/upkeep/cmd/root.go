package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/logger"
	"github.com/oshokin/upkeep/internal/service/orchestrator"
	"github.com/oshokin/upkeep/internal/version"
)

var errUnknownLogLevel = errors.New("unknown log level")

// globalFlags are shared by the root command and its subcommands.
type globalFlags struct {
	// configPath to the configuration YAML file.
	configPath string
	// logLevel for the process logger.
	logLevel string
}

// NewRootCommand builds the upkeep command tree.
func NewRootCommand() *cobra.Command {
	flags := new(globalFlags)

	rootCmd := &cobra.Command{
		Use:   "upkeep [flags] <task> [task-args...]",
		Short: "Run a maintenance task from a self-updating checkout.",
		Long: `Synchronizes the checkout holding the maintenance code with its remote,
applies a detected update (assets, its own binary, services, scheduled jobs),
restarts itself on the new revision and then runs the requested task.

A failing task is reported through the configured notifier and its log file
is kept in the log directory. Everything after the task name is passed to it.`,
		Args:              cobra.MinimumNArgs(1),
		SilenceUsage:      true,
		PersistentPreRunE: flags.apply,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &orchestrator.Options{
				ConfigPath: flags.configPath,
				TaskName:   args[0],
				TaskArgs:   args[1:],
			}

			return orchestrator.Run(ctx, options)
		},
	}

	rootCmd.PersistentFlags().
		StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath(), "path to configuration file")
	rootCmd.PersistentFlags().
		StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	// Flags after the task name belong to the task.
	rootCmd.Flags().SetInterspersed(false)

	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(newTasksCommand(flags), newInstallCrontabCommand(flags))

	return rootCmd
}

// Execute runs the upkeep CLI and exits with non-zero status on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (f *globalFlags) apply(*cobra.Command, []string) error {
	level, ok := logger.ParseLogLevel(f.logLevel)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, f.logLevel)
	}

	logger.SetLevel(level)

	return nil
}
