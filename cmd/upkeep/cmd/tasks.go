package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/repository/runstate"
)

func newTasksCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List configured maintenance tasks and their last run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			records, err := runstate.NewFileRepository(cfg.StatusFilePath()).Load(cmd.Context())
			if err != nil && !errors.Is(err, runstate.ErrNotFound) {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TASK\tLAST RUN\tSTATUS\tCOMMAND")

			for _, name := range cfg.TaskNames() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
					name, lastRun(records[name]), strings.Join(cfg.Tasks[name].Command, " "))
			}

			return w.Flush()
		},
	}
}

// lastRun formats the start time and status columns.
func lastRun(record *maintenance.RunRecord) string {
	if record == nil {
		return "never\t-"
	}

	return record.StartedAt.Local().Format(time.DateTime) + "\t" + record.Status()
}
