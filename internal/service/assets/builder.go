package assets

import (
	"context"
	"fmt"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/logger"
)

// Step is one rebuild command.
type Step struct {
	Name    string
	Command []string
	Dir     string
}

// Builder runs the rebuild steps.
type Builder struct {
	steps  []Step
	self   *SelfBinary
	runner executil.Runner
}

// New creates a builder for the configured steps. self may be nil.
func New(runner executil.Runner, steps []Step, self *SelfBinary) *Builder {
	return &Builder{
		steps:  steps,
		self:   self,
		runner: runner,
	}
}

// FromConfig converts the configured asset steps and self binary.
func FromConfig(cfg *config.Config, runner executil.Runner) *Builder {
	steps := make([]Step, 0, len(cfg.Assets))

	for i, asset := range cfg.Assets {
		name := asset.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}

		steps = append(steps, Step{
			Name:    name,
			Command: asset.Command,
			Dir:     cfg.Resolve(asset.Dir),
		})
	}

	var self *SelfBinary
	if cfg.SelfBinary.Package != "" {
		self = NewSelfBinary(runner, cfg.InstallDir, cfg.SelfBinary.Package, cfg.SelfBinary.GoBinary)
	}

	return New(runner, steps, self)
}

// Rebuild runs every step in order, then rebuilds the orchestrator binary if configured.
func (b *Builder) Rebuild(ctx context.Context) error {
	ctx = logger.WithName(ctx, "assets")

	for _, step := range b.steps {
		logger.InfoKV(ctx, "Rebuilding assets", "step", step.Name)

		if _, err := executil.RunChecked(ctx, b.runner, step.Dir, step.Command...); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}

	if b.self == nil {
		return nil
	}

	logger.Info(ctx, "Rebuilding the orchestrator binary")

	if err := b.self.Rebuild(ctx); err != nil {
		return fmt.Errorf("self binary: %w", err)
	}

	return nil
}
