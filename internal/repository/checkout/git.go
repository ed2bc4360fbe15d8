package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/executil"
)

// Repository is the checkout as seen by the self-updater.
type Repository interface {
	// Head returns the current fingerprint of the checkout.
	Head(ctx context.Context) (maintenance.RepoState, error)
	// Sync brings the checkout up to date with the remote source.
	Sync(ctx context.Context) error
}

var errEmptyHead = errors.New("git returned an empty HEAD")

// Git implements Repository with the git CLI.
type Git struct {
	dir     string
	remote  string
	branch  string
	timeout time.Duration
	runner  executil.Runner
}

// Option configures Git.
type Option func(*Git)

// WithRunner replaces the command runner.
func WithRunner(r executil.Runner) Option {
	return func(g *Git) {
		g.runner = r
	}
}

// WithRemote selects the remote and branch to pull. An empty branch pulls the upstream.
func WithRemote(remote, branch string) Option {
	return func(g *Git) {
		g.remote = remote
		g.branch = branch
	}
}

// WithTimeout bounds Sync.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Git) {
		g.timeout = timeout
	}
}

// NewGit creates a git-backed repository rooted at dir.
func NewGit(dir string, opts ...Option) *Git {
	g := &Git{
		dir:    dir,
		runner: executil.NewCLIRunner(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Head returns the commit hash of HEAD.
func (g *Git) Head(ctx context.Context) (maintenance.RepoState, error) {
	output, err := executil.RunChecked(ctx, g.runner, g.dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}

	head := strings.TrimSpace(string(output))
	if head == "" {
		return "", errEmptyHead
	}

	return maintenance.RepoState(head), nil
}

// Sync fast-forwards the checkout. Local modifications or divergent history
// make git refuse, which surfaces as an error carrying git's own output.
func (g *Git) Sync(ctx context.Context) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if _, err := executil.RunChecked(ctx, g.runner, g.dir, g.pullArgs()...); err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	return nil
}

func (g *Git) pullArgs() []string {
	args := []string{"git", "pull", "--ff-only", "--quiet"}

	if g.remote != "" {
		args = append(args, g.remote)

		if g.branch != "" {
			args = append(args, g.branch)
		}
	}

	return args
}
