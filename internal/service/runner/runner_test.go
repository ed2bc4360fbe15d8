package runner

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/notify"
	"github.com/oshokin/upkeep/internal/notify/notifytest"
)

func shellTask(name, script string) *maintenance.Task {
	return &maintenance.Task{
		Name:         name,
		Command:      []string{"sh", "-c", script},
		ErrorMessage: "[tools] " + name + " failed, see {log}",
	}
}

// TestRunSafely_SuccessDoesNotNotify runs a zero-exit task and checks the captured log.
func TestRunSafely_SuccessDoesNotNotify(t *testing.T) {
	t.Parallel()

	rec := new(notifytest.Recorder)
	r := New(t.TempDir(), rec)

	result := r.RunSafely(context.Background(), shellTask("ok", "echo to-stdout; echo to-stderr >&2"))

	require.False(t, result.ExitedNonZero)
	require.Equal(t, 0, result.ExitCode)
	require.Zero(t, rec.Count())

	contents, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "to-stdout")
	require.Contains(t, string(contents), "to-stderr")
}

// TestRunSafely_FailureNotifiesOnce checks a non-zero exit produces exactly one message.
func TestRunSafely_FailureNotifiesOnce(t *testing.T) {
	t.Parallel()

	rec := new(notifytest.Recorder)
	r := New(t.TempDir(), rec)

	result := r.RunSafely(context.Background(), shellTask("broken", "echo oops >&2; exit 1"))

	require.True(t, result.ExitedNonZero)
	require.Equal(t, 1, result.ExitCode)
	require.Equal(t, []string{"[tools] broken failed, see " + result.LogPath}, rec.Messages())
}

// TestRunSafely_MissingExecutable treats a start failure like a failed run.
func TestRunSafely_MissingExecutable(t *testing.T) {
	t.Parallel()

	rec := new(notifytest.Recorder)
	r := New(t.TempDir(), rec)

	task := &maintenance.Task{
		Name:         "ghost",
		Command:      []string{filepath.Join(t.TempDir(), "does-not-exist")},
		ErrorMessage: "ghost failed with {exit_code}",
	}

	result := r.RunSafely(context.Background(), task)

	require.True(t, result.ExitedNonZero)
	require.Equal(t, maintenance.ExitCodeNotStarted, result.ExitCode)
	require.Equal(t, []string{"ghost failed with -1"}, rec.Messages())

	contents, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "cannot start")
}

// TestRunSafely_PermissionDenied treats a non-executable file like a missing one.
func TestRunSafely_PermissionDenied(t *testing.T) {
	t.Parallel()

	script := filepath.Join(t.TempDir(), "job.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o600))

	rec := new(notifytest.Recorder)
	r := New(t.TempDir(), rec)

	result := r.RunSafely(context.Background(), &maintenance.Task{
		Name:         "noexec",
		Command:      []string{script},
		ErrorMessage: "noexec failed",
	})

	require.True(t, result.ExitedNonZero)
	require.Equal(t, 1, rec.Count())
}

// TestRunSafely_LogOverwrite runs the same task twice and expects only the latest output.
func TestRunSafely_LogOverwrite(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	r := New(logDir, new(notifytest.Recorder))

	first := r.RunSafely(context.Background(), shellTask("levels", "echo first-run-with-a-long-line"))
	second := r.RunSafely(context.Background(), shellTask("levels", "echo second"))

	require.Equal(t, first.LogPath, second.LogPath)

	contents, err := os.ReadFile(second.LogPath)
	require.NoError(t, err)
	require.Equal(t, "second\n", string(contents))

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestRunSafely_ArgsDirAndEnv passes invocation arguments, working directory and environment.
func TestRunSafely_ArgsDirAndEnv(t *testing.T) {
	t.Parallel()

	workDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	r := New(t.TempDir(), new(notifytest.Recorder))

	result := r.RunSafely(context.Background(), &maintenance.Task{
		Name:         "args",
		Command:      []string{"sh", "-c", `echo "$0 $1 $(pwd) $CATALOG"`, "arg0"},
		Args:         []string{"--force"},
		ErrorMessage: "args failed",
		Dir:          workDir,
		Env:          []string{"CATALOG=apps.json"},
	})
	require.False(t, result.ExitedNonZero)

	contents, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	require.Equal(t, "arg0 --force "+workDir+" apps.json\n", string(contents))
}

// TestRunSafely_CancelledTaskStillNotifies interrupts a running task the way
// SIGTERM does and expects the notification helper to run anyway.
func TestRunSafely_CancelledTaskStillNotifies(t *testing.T) {
	t.Parallel()

	delivered := filepath.Join(t.TempDir(), "delivered.txt")
	sink := notify.NewCommandSink(executil.NewCLIRunner(),
		[]string{"sh", "-c", `printf '%s\n' "$0" >> '` + delivered + `'`}, 5*time.Second)

	r := New(t.TempDir(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(200*time.Millisecond, cancel)

	t.Cleanup(func() {
		timer.Stop()
		cancel()
	})

	result := r.RunSafely(ctx, shellTask("slow", "sleep 30"))

	require.True(t, result.ExitedNonZero)
	require.NotEqual(t, maintenance.ExitCodeNotStarted, result.ExitCode)

	contents, err := os.ReadFile(delivered)
	require.NoError(t, err)
	require.Equal(t, "[tools] slow failed, see "+result.LogPath+"\n", string(contents))
}

// TestRunSafely_KilledBySignal reports the signal instead of a start failure.
func TestRunSafely_KilledBySignal(t *testing.T) {
	t.Parallel()

	rec := new(notifytest.Recorder)
	r := New(t.TempDir(), rec)

	task := shellTask("oom", "kill -KILL $$")
	task.ErrorMessage = "oom exited {exit_code}"

	result := r.RunSafely(context.Background(), task)

	require.True(t, result.ExitedNonZero)
	require.Equal(t, maintenance.ExitCodeSignalBase+int(syscall.SIGKILL), result.ExitCode)
	require.Equal(t, syscall.SIGKILL.String(), result.Signal)
	require.Equal(t, []string{"oom exited 137"}, rec.Messages())
}

// TestRunSafely_ScrubsInvocationEnv hides the re-exec marker, run id and lock
// descriptor from tasks.
func TestRunSafely_ScrubsInvocationEnv(t *testing.T) {
	t.Setenv(maintenance.MarkerEnv, "1")
	t.Setenv(maintenance.RunIDEnv, "run-1")
	t.Setenv(maintenance.LockFDEnv, "3")

	r := New(t.TempDir(), new(notifytest.Recorder))

	result := r.RunSafely(context.Background(), &maintenance.Task{
		Name:         "env",
		Command:      []string{"sh", "-c", `echo "[${UPKEEP_UPDATED-}${UPKEEP_RUN_ID-}${UPKEEP_LOCK_FD-}] $CATALOG"`},
		ErrorMessage: "env failed",
		Env:          []string{"CATALOG=apps.json"},
	})
	require.False(t, result.ExitedNonZero)

	contents, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	require.Equal(t, "[] apps.json\n", string(contents))
}

