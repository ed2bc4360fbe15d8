package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/repository/runstate"
	"github.com/oshokin/upkeep/internal/service/crontab"
	"github.com/oshokin/upkeep/internal/service/orchestrator"
)

const (
	cronConfig = `
lock_file: "-"
crontab:
  template: deploy/upkeep.cron
  target: %s
tasks:
  rebuild_catalog:
    command: ["python3", "tools/list_builder.py"]
    error_message: "[listbuilder] Rebuilding the application list failed"
  update_levels:
    command: ["sh", "-c", "true"]
    error_message: "[levels] Updating levels failed"
`
	plainConfig = `
lock_file: "-"
tasks:
  update_levels:
    command: ["true"]
    error_message: "levels failed"
`
)

// writeConfig creates an install dir holding a config and, when asked, a cron template.
func writeConfig(t *testing.T, withTemplate bool) (configPath, target string) {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	contents := plainConfig

	if withTemplate {
		target = filepath.Join(dir, "upkeep.crontab")
		contents = fmt.Sprintf(cronConfig, target)

		require.NoError(t, os.MkdirAll(filepath.Join(dir, "deploy"), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy", "upkeep.cron"),
			[]byte("0 3 * * * __INSTALL_DIR__/upkeep rebuild_catalog\n"), 0o600))
	}

	configPath = filepath.Join(dir, "upkeep.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0o600))

	return configPath, target
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{}, args...))

	err := root.Execute()

	return out.String(), err
}

// TestTasksCommand lists task names with their commands.
func TestTasksCommand(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, true)

	out, err := execute(t, "--config", configPath, "tasks")
	require.NoError(t, err)
	require.Contains(t, out, "rebuild_catalog")
	require.Contains(t, out, "python3 tools/list_builder.py")
	require.Contains(t, out, "never")
	require.Less(t, strings.Index(out, "rebuild_catalog"), strings.Index(out, "update_levels"))
}

// TestTasksCommand_ShowsLastRun prints the recorded status of a task.
func TestTasksCommand_ShowsLastRun(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, false)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	record := &maintenance.RunRecord{
		Task:      "update_levels",
		StartedAt: time.Now(),
		Result:    maintenance.ExecutionResult{ExitedNonZero: true, ExitCode: 2},
	}
	require.NoError(t, runstate.NewFileRepository(cfg.StatusFilePath()).Save(context.Background(), record))

	out, err := execute(t, "-c", configPath, "tasks")
	require.NoError(t, err)
	require.Contains(t, out, "failed")
	require.NotContains(t, out, "never")
}

// TestInstallCrontabCommand renders the template into the target.
func TestInstallCrontabCommand(t *testing.T) {
	t.Parallel()

	configPath, target := writeConfig(t, true)

	_, err := execute(t, "-c", configPath, "install-crontab")
	require.NoError(t, err)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "0 3 * * * "+filepath.Dir(configPath)+"/upkeep rebuild_catalog\n", string(contents))
}

// TestInstallCrontabCommand_NotConfigured fails when no template is set.
func TestInstallCrontabCommand_NotConfigured(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, false)

	_, err := execute(t, "-c", configPath, "install-crontab")
	require.ErrorIs(t, err, crontab.ErrNotConfigured)
}

// TestRootCommand_UnknownTask rejects a task before anything else happens.
func TestRootCommand_UnknownTask(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, false)

	_, err := execute(t, "--config", configPath, "rebuild_everything", "--full")
	require.ErrorIs(t, err, orchestrator.ErrUnknownTask)
}

// TestRootCommand_Args checks argument and flag validation.
func TestRootCommand_Args(t *testing.T) {
	t.Parallel()

	_, err := execute(t)
	require.Error(t, err)

	_, err = execute(t, "--log-level", "loud", "tasks")
	require.ErrorIs(t, err, errUnknownLogLevel)
}
