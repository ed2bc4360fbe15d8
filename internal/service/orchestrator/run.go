package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/logger"
	"github.com/oshokin/upkeep/internal/notify"
	"github.com/oshokin/upkeep/internal/repository/runstate"
	"github.com/oshokin/upkeep/internal/service/runner"
	"github.com/oshokin/upkeep/internal/service/updater"
	"github.com/oshokin/upkeep/internal/version"
)

// Options are inputs accepted by the orchestrator entry point.
type Options struct {
	// ConfigPath is the optional path to the YAML configuration.
	ConfigPath string
	// TaskName selects the configured task.
	TaskName string
	// TaskArgs are appended to the task command.
	TaskArgs []string
	// Environ overrides the process environment, mostly for tests.
	Environ []string
	// Reexec overrides the process replacement, mostly for tests.
	Reexec ReexecFunc
}

// Run loads the configuration, wires the production collaborators and runs
// one invocation. It is the entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	phase := maintenance.PhaseFromMarker(lookupEnv(environ, MarkerEnv) != "")

	runID := lookupEnv(environ, RunIDEnv)
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx = logger.WithKV(logger.WithName(ctx, "upkeep"), "run_id", runID)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.InfoKV(ctx, "Starting invocation",
		"task", opts.TaskName, "install_dir", cfg.InstallDir, "version", version.Short())

	cmdRunner := executil.NewCLIRunner()

	sink, err := notify.New(&cfg.Notify, cmdRunner)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	o := New(cfg, Dependencies{
		Updater: updater.FromConfig(cfg, opts.ConfigPath, cmdRunner, sink),
		Runner:  runner.New(cfg.LogDirPath(), sink),
		Status:  runstate.NewFileRepository(cfg.StatusFilePath()),
		Reexec:  opts.Reexec,
		Environ: environ,
	}, phase, runID)

	return o.Run(ctx, opts.TaskName, opts.TaskArgs)
}

// lookupEnv returns the last value of key in a KEY=VALUE list, like os.Getenv.
func lookupEnv(environ []string, key string) string {
	prefix := key + "="

	for i := len(environ) - 1; i >= 0; i-- {
		if value, ok := strings.CutPrefix(environ[i], prefix); ok {
			return value
		}
	}

	return ""
}
