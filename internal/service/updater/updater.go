package updater

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/domain/maintenance"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/logger"
	"github.com/oshokin/upkeep/internal/notify"
	"github.com/oshokin/upkeep/internal/repository/checkout"
	"github.com/oshokin/upkeep/internal/service/assets"
	"github.com/oshokin/upkeep/internal/service/crontab"
	"github.com/oshokin/upkeep/internal/service/supervisor"
)

var (
	// ErrSyncConflict means the checkout could not be synchronized with its remote.
	ErrSyncConflict = errors.New("repository synchronization failed")
	// ErrAssetRebuild means derived assets could not be regenerated after an update.
	ErrAssetRebuild = errors.New("asset rebuild failed")
	// ErrConfigReload means the configuration pulled with an update is unusable.
	ErrConfigReload = errors.New("updated configuration is invalid")
)

// AssetBuilder regenerates derived assets from the checkout.
type AssetBuilder interface {
	Rebuild(ctx context.Context) error
}

// ServiceRestarter restarts one managed service and verifies it.
type ServiceRestarter interface {
	RestartAndVerify(ctx context.Context, svc *maintenance.ManagedService) error
}

// RegistryInstaller reinstalls the scheduled-job definitions.
type RegistryInstaller interface {
	Install(ctx context.Context) error
}

// Reloader rebuilds the post-update collaborators from the configuration
// that was just pulled.
type Reloader func() (*Dependencies, error)

// Dependencies are the collaborators of the updater.
type Dependencies struct {
	Repository checkout.Repository
	Assets     AssetBuilder
	Restarter  ServiceRestarter
	Registry   RegistryInstaller
	Sink       notify.Sink
	Services   []maintenance.ManagedService
	// Dir names the checkout in operator messages.
	Dir string
	// Reload is optional. When set, the post-update steps come from its result.
	Reload Reloader
}

// Updater implements the self-update protocol.
type Updater struct {
	deps Dependencies
}

// New creates an updater from its collaborators.
func New(deps Dependencies) *Updater {
	return &Updater{deps: deps}
}

// FromConfig wires the production collaborators for the configured checkout.
// After an update the configuration is read again from configPath, so steps
// added by the update itself are applied.
func FromConfig(cfg *config.Config, configPath string, runner executil.Runner, sink notify.Sink) *Updater {
	deps := dependencies(cfg, runner, sink)
	deps.Reload = func() (*Dependencies, error) {
		fresh, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}

		reloaded := dependencies(fresh, runner, sink)

		return &reloaded, nil
	}

	return New(deps)
}

func dependencies(cfg *config.Config, runner executil.Runner, sink notify.Sink) Dependencies {
	return Dependencies{
		Repository: checkout.NewGit(cfg.InstallDir,
			checkout.WithRunner(runner),
			checkout.WithRemote(cfg.Repository.Remote, cfg.Repository.Branch),
			checkout.WithTimeout(cfg.Repository.Timeout),
		),
		Assets:    assets.FromConfig(cfg, runner),
		Restarter: supervisor.New(runner, sink),
		Registry:  crontab.New(cfg, runner),
		Sink:      sink,
		Services:  cfg.ManagedServices(),
		Dir:       cfg.InstallDir,
	}
}

// CheckAndApply synchronizes the checkout and, if it changed, runs the post-update sequence.
// A sync failure is notified and returned wrapped in ErrSyncConflict; an asset
// rebuild failure is returned wrapped in ErrAssetRebuild. Service and registry
// failures are reported and do not stop the sequence.
func (u *Updater) CheckAndApply(ctx context.Context) (maintenance.UpdateOutcome, error) {
	ctx = logger.WithName(ctx, "updater")

	before, err := u.deps.Repository.Head(ctx)
	if err != nil {
		return maintenance.Unchanged, fmt.Errorf("read checkout state: %w", err)
	}

	logger.InfoKV(ctx, "Synchronizing checkout", "dir", u.deps.Dir, "revision", before)

	if err = u.deps.Repository.Sync(ctx); err != nil {
		logger.ErrorKV(ctx, "Synchronization failed", "error", err)
		u.deps.Sink.Notify(context.WithoutCancel(ctx),
			fmt.Sprintf("Could not synchronize %s with its remote: %v", u.deps.Dir, err))

		return maintenance.Unchanged, fmt.Errorf("%w: %w", ErrSyncConflict, err)
	}

	after, err := u.deps.Repository.Head(ctx)
	if err != nil {
		return maintenance.Unchanged, fmt.Errorf("read checkout state: %w", err)
	}

	if before == after {
		logger.Info(ctx, "Checkout is up to date")
		return maintenance.Unchanged, nil
	}

	logger.InfoKV(ctx, "Checkout updated", "from", before, "to", after)

	return maintenance.Updated, u.applyPostUpdate(ctx)
}

// applyPostUpdate runs the ordered post-update steps.
func (u *Updater) applyPostUpdate(ctx context.Context) error {
	deps, err := u.postUpdateDependencies(ctx)
	if err != nil {
		return err
	}

	if err = deps.Assets.Rebuild(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrAssetRebuild, err)
	}

	restartServices(ctx, deps)

	if err = deps.Registry.Install(ctx); err != nil {
		logger.ErrorKV(ctx, "Reinstalling scheduled jobs failed", "error", err)
		deps.Sink.Notify(context.WithoutCancel(ctx),
			fmt.Sprintf("Could not reinstall scheduled jobs from %s: %v", deps.Dir, err))
	}

	return nil
}

// postUpdateDependencies returns the collaborators matching the updated checkout.
func (u *Updater) postUpdateDependencies(ctx context.Context) (*Dependencies, error) {
	if u.deps.Reload == nil {
		return &u.deps, nil
	}

	deps, err := u.deps.Reload()
	if err != nil {
		logger.ErrorKV(ctx, "Loading the updated configuration failed", "error", err)
		u.deps.Sink.Notify(context.WithoutCancel(ctx),
			fmt.Sprintf("Could not load the updated configuration of %s: %v", u.deps.Dir, err))

		return nil, fmt.Errorf("%w: %w", ErrConfigReload, err)
	}

	logger.Debug(ctx, "Post-update steps taken from the updated configuration")

	return deps, nil
}

// restartServices gives every service its own chance to restart.
func restartServices(ctx context.Context, deps *Dependencies) {
	for i := range deps.Services {
		svc := &deps.Services[i]

		if err := deps.Restarter.RestartAndVerify(ctx, svc); err != nil {
			logger.WarnKV(ctx, "Continuing after service failure", "service", svc.Name, "error", err)
		}
	}
}
