package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/executil/executiltest"
)

// buildRunner pretends to be the go toolchain by writing the -o output.
type buildRunner struct {
	contents string
	argv     [][]string
}

func (b *buildRunner) Run(_ context.Context, _ string, argv ...string) ([]byte, error) {
	b.argv = append(b.argv, argv)

	for i := range argv {
		if argv[i] == "-o" && i+1 < len(argv) {
			return nil, os.WriteFile(argv[i+1], []byte(b.contents), 0o600)
		}
	}

	return nil, nil
}

// TestRebuild_RunsStepsInOrder runs every step once in its directory.
func TestRebuild_RunsStepsInOrder(t *testing.T) {
	t.Parallel()

	runner := executiltest.NewRunner()
	b := New(runner, []Step{
		{Name: "venv", Command: []string{"pip", "install", "-r", "requirements.txt"}, Dir: "/srv/tools"},
		{Name: "css", Command: []string{"npx", "tailwindcss", "-o", "static/app.css"}, Dir: "/srv/tools/store"},
	}, nil)

	require.NoError(t, b.Rebuild(context.Background()))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "pip install -r requirements.txt", calls[0].Line())
	require.Equal(t, "/srv/tools", calls[0].Dir)
	require.Equal(t, "npx tailwindcss -o static/app.css", calls[1].Line())
	require.Equal(t, "/srv/tools/store", calls[1].Dir)
}

// TestRebuild_StopsAtFirstFailure propagates the failing step with its output.
func TestRebuild_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	runner := executiltest.NewRunner().Fail("pip install", "No matching distribution")
	b := New(runner, []Step{
		{Name: "venv", Command: []string{"pip", "install", "-r", "requirements.txt"}},
		{Name: "css", Command: []string{"npx", "tailwindcss"}},
	}, nil)

	err := b.Rebuild(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "step venv")
	require.Contains(t, err.Error(), "No matching distribution")
	require.Len(t, runner.Calls(), 1)
}

// TestFromConfig resolves step directories and names unnamed steps.
func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		InstallDir: "/srv/tools",
		Assets: []config.AssetStep{
			{Command: []string{"make", "css"}, Dir: "store"},
		},
		SelfBinary: config.SelfBinary{Package: "./cmd/upkeep", GoBinary: "go"},
	}

	b := FromConfig(cfg, executiltest.NewRunner())
	require.Equal(t, []Step{{Name: "step-1", Command: []string{"make", "css"}, Dir: "/srv/tools/store"}}, b.steps)
	require.NotNil(t, b.self)
	require.Equal(t, "./cmd/upkeep", b.self.pkg)
}

// TestSelfBinary_Rebuild builds into a temp file and swaps the target.
func TestSelfBinary_Rebuild(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "upkeep")
	require.NoError(t, os.WriteFile(target, []byte("old binary"), 0o755))

	runner := &buildRunner{contents: "new binary"}
	self := NewSelfBinary(runner, "/srv/tools", "./cmd/upkeep", "go").WithTarget(target)

	require.NoError(t, New(executiltest.NewRunner(), nil, self).Rebuild(context.Background()))

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "new binary", string(contents))

	require.Len(t, runner.argv, 1)
	require.Equal(t, "go", runner.argv[0][0])
	require.Equal(t, "./cmd/upkeep", runner.argv[0][len(runner.argv[0])-1])

	info, err := os.Stat(target)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o100)
}

// TestFileChecksum returns a SHA-512 sized digest.
func TestFileChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	sum, err := FileChecksum(path)
	require.NoError(t, err)
	require.Len(t, sum, ChecksumFunction.Size())

	_, err = FileChecksum(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
