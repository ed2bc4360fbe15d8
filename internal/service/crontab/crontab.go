package crontab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/logger"
)

// FilePlaceholder is replaced by the target path in the install command.
const FilePlaceholder = "{file}"

const registryMode os.FileMode = 0o644

// ErrNotConfigured is returned by Render when no template is configured.
var ErrNotConfigured = errors.New("crontab template is not configured")

// Installer writes the rendered registry to its target.
type Installer struct {
	template       string
	target         string
	placeholder    string
	installDir     string
	installCommand []string
	runner         executil.Runner
}

// New creates an installer from the configuration.
func New(cfg *config.Config, runner executil.Runner) *Installer {
	template := ""
	if cfg.Crontab.Template != "" {
		template = cfg.Resolve(cfg.Crontab.Template)
	}

	return &Installer{
		template:       template,
		target:         cfg.Crontab.Target,
		placeholder:    cfg.Crontab.Placeholder,
		installDir:     cfg.InstallDir,
		installCommand: cfg.Crontab.InstallCommand,
		runner:         runner,
	}
}

// Enabled reports whether a registry template is configured.
func (i *Installer) Enabled() bool {
	return i.template != ""
}

// Render returns the template with the placeholder replaced by the install directory.
func (i *Installer) Render() ([]byte, error) {
	if !i.Enabled() {
		return nil, ErrNotConfigured
	}

	contents, err := os.ReadFile(filepath.Clean(i.template))
	if err != nil {
		return nil, fmt.Errorf("read crontab template: %w", err)
	}

	rendered := strings.ReplaceAll(string(contents), i.placeholder, i.installDir)

	return []byte(rendered), nil
}

// Install renders the registry and replaces the target atomically.
// It is a no-op when no template is configured.
func (i *Installer) Install(ctx context.Context) error {
	ctx = logger.WithName(ctx, "crontab")

	if !i.Enabled() {
		logger.Debug(ctx, "No crontab template configured, skipping")
		return nil
	}

	rendered, err := i.Render()
	if err != nil {
		return err
	}

	if err = writeAtomic(i.target, rendered); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Scheduled jobs installed", "target", i.target)

	if len(i.installCommand) == 0 {
		return nil
	}

	argv := make([]string, 0, len(i.installCommand))
	for _, arg := range i.installCommand {
		argv = append(argv, strings.ReplaceAll(arg, FilePlaceholder, i.target))
	}

	if _, err = executil.RunChecked(ctx, i.runner, i.installDir, argv...); err != nil {
		return fmt.Errorf("load crontab: %w", err)
	}

	return nil
}

// writeAtomic writes data next to path and renames it into place so cron
// never reads a half-written file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary crontab: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temporary crontab: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary crontab: %w", err)
	}

	if err = os.Chmod(tmpName, registryMode); err != nil {
		return fmt.Errorf("chmod crontab: %w", err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("install crontab: %w", err)
	}

	return nil
}
