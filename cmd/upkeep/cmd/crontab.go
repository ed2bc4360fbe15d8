package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/service/crontab"
)

func newInstallCrontabCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install-crontab",
		Short: "Render the scheduled-job template and install it.",
		Long: `Renders the configured cron template with the install directory and
replaces the target file. Runs the same step an update performs, for the
first deployment or after editing the template by hand.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			installer := crontab.New(cfg, executil.NewCLIRunner())
			if !installer.Enabled() {
				return crontab.ErrNotConfigured
			}

			return installer.Install(ctx)
		},
	}
}
