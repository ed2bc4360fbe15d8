package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/upkeep/internal/domain/maintenance"
)

// Config is the orchestrator configuration, usually committed next to the
// code in the managed checkout.
type Config struct {
	// InstallDir is the checkout root. Defaults to the directory holding the config file.
	InstallDir string `yaml:"install_dir"`
	// LogDir holds one log file per task, relative to InstallDir unless absolute.
	LogDir string `yaml:"log_dir"`
	// LockFile guards against concurrent invocations, "-" disables locking.
	LockFile string `yaml:"lock_file"`
	// Repository controls how the checkout is synchronized.
	Repository Repository `yaml:"repository"`
	// Notify selects the operator notification channel.
	Notify Notify `yaml:"notify"`
	// Assets are rebuilt in order after an update.
	Assets []AssetStep `yaml:"assets"`
	// SelfBinary rebuilds the orchestrator itself after an update when Package is set.
	SelfBinary SelfBinary `yaml:"self_binary"`
	// Services are restarted after an update.
	Services []Service `yaml:"services"`
	// Crontab is the scheduled-job registry reinstalled after an update.
	Crontab Crontab `yaml:"crontab"`
	// Tasks maps task names to their definitions.
	Tasks map[string]Task `yaml:"tasks"`
}

// Repository describes the remote source of truth.
type Repository struct {
	// Remote is the git remote to pull from.
	Remote string `yaml:"remote"`
	// Branch is the branch to pull. Empty pulls the upstream of the current branch.
	Branch string `yaml:"branch"`
	// Timeout bounds the synchronization.
	Timeout time.Duration `yaml:"timeout"`
}

// Notify configures the notification sink.
type Notify struct {
	// Kind is one of NotifyLog, NotifyCommand or NotifyWebhook.
	Kind string `yaml:"kind"`
	// Command is the helper invoked with the message as its last argument.
	Command []string `yaml:"command"`
	// WebhookURL receives a JSON POST for each message.
	WebhookURL string `yaml:"webhook_url"`
	// Prefix is prepended to every message.
	Prefix string `yaml:"prefix"`
	// Timeout bounds a single delivery.
	Timeout time.Duration `yaml:"timeout"`
}

// AssetStep is one command regenerating derived assets.
type AssetStep struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir"`
}

// SelfBinary describes how the orchestrator binary is rebuilt from the checkout.
type SelfBinary struct {
	// Package is the go package path of the main package, e.g. ./cmd/upkeep.
	Package string `yaml:"package"`
	// GoBinary is the go toolchain executable.
	GoBinary string `yaml:"go_binary"`
}

// Service is the configuration of a managed service.
type Service struct {
	Name           string        `yaml:"name"`
	Restart        []string      `yaml:"restart"`
	Health         Health        `yaml:"health"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	FailureMessage string        `yaml:"failure_message"`
}

// Health configures the liveness query of a service.
type Health struct {
	Command     []string `yaml:"command"`
	GRPCAddress string   `yaml:"grpc_address"`
	GRPCService string   `yaml:"grpc_service"`
}

// Crontab configures the scheduled-job registry.
type Crontab struct {
	// Template is the registry template, relative to InstallDir unless absolute.
	Template string `yaml:"template"`
	// Target is where the rendered registry is written.
	Target string `yaml:"target"`
	// Placeholder is replaced by InstallDir in the template.
	Placeholder string `yaml:"placeholder"`
	// InstallCommand is run after writing, "{file}" is replaced by Target.
	InstallCommand []string `yaml:"install_command"`
}

// Task is the configuration of a maintenance job.
type Task struct {
	Command      []string          `yaml:"command"`
	ErrorMessage string            `yaml:"error_message"`
	Dir          string            `yaml:"dir"`
	Env          map[string]string `yaml:"env"`
}

// Notification sink kinds.
const (
	NotifyLog     = "log"
	NotifyCommand = "command"
	NotifyWebhook = "webhook"
)

const (
	// DefaultConfigFilename is the config file looked up next to the executable.
	DefaultConfigFilename = "upkeep.yaml"

	// DefaultLogDir is the per-task log directory relative to the install dir.
	DefaultLogDir = ".logs"
	// StatusFilename holds the last run of every task inside the log directory.
	StatusFilename = "status.yaml"

	// DefaultLockFile is the lock file relative to the install dir.
	DefaultLockFile = ".upkeep.lock"

	// LockDisabled turns the instance lock off.
	LockDisabled = "-"

	// DefaultRemote is the git remote pulled from.
	DefaultRemote = "origin"

	// DefaultSyncTimeout bounds repository synchronization.
	DefaultSyncTimeout = 2 * time.Minute

	// DefaultNotifyTimeout bounds one notification delivery.
	DefaultNotifyTimeout = 10 * time.Second

	// DefaultGracePeriod is the wait between service restart and health check.
	DefaultGracePeriod = 5 * time.Second

	// DefaultPlaceholder is substituted with the install dir in the crontab template.
	DefaultPlaceholder = "__INSTALL_DIR__"

	// DefaultGoBinary builds the self binary.
	DefaultGoBinary = "go"

	// DefaultFilePermissions is used for files written from the configuration.
	DefaultFilePermissions = 0o600
)

// ReservedTaskNames collide with CLI subcommands and cannot name a task.
//
//nolint:gochecknoglobals // Read-only lookup table.
var ReservedTaskNames = []string{"version", "tasks", "install-crontab", "help", "completion"}

//nolint:gochecknoglobals // Compiled once.
var taskNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var (
	errConfigIsNotSet      = errors.New("configuration is not set")
	errNoTasks             = errors.New("no tasks configured")
	errInvalidTaskName     = errors.New("invalid task name")
	errReservedTaskName    = errors.New("task name is reserved")
	errEmptyCommand        = errors.New("command must not be empty")
	errMissingErrorMessage = errors.New("error_message must be set")
	errServiceName         = errors.New("service name must be unique and non-empty")
	errHealthConflict      = errors.New("health check must use either command or grpc_address")
	errUnknownNotifyKind   = errors.New("unknown notify kind")
	errWebhookURL          = errors.New("webhook_url is required for webhook notifications")
	errNegativeDuration    = errors.New("duration must not be negative")
	errCrontabTarget       = errors.New("crontab target is required when a template is set")
)

// DefaultConfigPath returns upkeep.yaml next to the resolved running executable.
func DefaultConfigPath() string {
	executable, err := os.Executable()
	if err != nil {
		return DefaultConfigFilename
	}

	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}

	return filepath.Join(filepath.Dir(executable), DefaultConfigFilename)
}

// Load reads configuration from the provided path and validates it.
// A relative or empty InstallDir is resolved against the config file directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	configDir := filepath.Dir(absPath)
	if resolved, evalErr := filepath.EvalSymlinks(configDir); evalErr == nil {
		configDir = resolved
	}

	switch {
	case cfg.InstallDir == "":
		cfg.InstallDir = configDir
	case !filepath.IsAbs(cfg.InstallDir):
		cfg.InstallDir = filepath.Join(configDir, cfg.InstallDir)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks the configuration and fills defaults in place.
// Misconfigured tasks are rejected here so that a failing task never
// reaches the operator with a guessed message.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if err := validateTasks(cfg.Tasks); err != nil {
		return err
	}

	if err := validateServices(cfg.Services); err != nil {
		return err
	}

	if err := validateNotify(&cfg.Notify); err != nil {
		return err
	}

	for i, step := range cfg.Assets {
		if len(step.Command) == 0 {
			return fmt.Errorf("asset step %d (%s): %w", i, step.Name, errEmptyCommand)
		}
	}

	if cfg.Crontab.Template != "" && cfg.Crontab.Target == "" {
		return errCrontabTarget
	}

	if cfg.Repository.Timeout < 0 {
		return fmt.Errorf("repository timeout: %w", errNegativeDuration)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}

	if cfg.LockFile == "" {
		cfg.LockFile = DefaultLockFile
	}

	if cfg.Repository.Remote == "" {
		cfg.Repository.Remote = DefaultRemote
	}

	if cfg.Repository.Timeout == 0 {
		cfg.Repository.Timeout = DefaultSyncTimeout
	}

	if cfg.Notify.Kind == "" {
		cfg.Notify.Kind = NotifyLog
	}

	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = DefaultNotifyTimeout
	}

	if cfg.Crontab.Placeholder == "" {
		cfg.Crontab.Placeholder = DefaultPlaceholder
	}

	if cfg.SelfBinary.GoBinary == "" {
		cfg.SelfBinary.GoBinary = DefaultGoBinary
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]

		if svc.GracePeriod == 0 {
			svc.GracePeriod = DefaultGracePeriod
		}

		if len(svc.Restart) == 0 {
			svc.Restart = []string{"systemctl", "restart", svc.Name}
		}

		if len(svc.Health.Command) == 0 && svc.Health.GRPCAddress == "" {
			svc.Health.Command = []string{"systemctl", "is-active", "--quiet", svc.Name}
		}
	}
}

func validateTasks(tasks map[string]Task) error {
	if len(tasks) == 0 {
		return errNoTasks
	}

	for name, task := range tasks {
		if !taskNamePattern.MatchString(name) {
			return fmt.Errorf("%w: %q", errInvalidTaskName, name)
		}

		if slices.Contains(ReservedTaskNames, name) {
			return fmt.Errorf("%w: %q", errReservedTaskName, name)
		}

		if len(task.Command) == 0 {
			return fmt.Errorf("task %s: %w", name, errEmptyCommand)
		}

		if task.ErrorMessage == "" {
			return fmt.Errorf("task %s: %w", name, errMissingErrorMessage)
		}
	}

	return nil
}

func validateServices(services []Service) error {
	seen := make(map[string]struct{}, len(services))

	for _, svc := range services {
		if _, dup := seen[svc.Name]; svc.Name == "" || dup {
			return fmt.Errorf("%w: %q", errServiceName, svc.Name)
		}

		seen[svc.Name] = struct{}{}

		if len(svc.Health.Command) > 0 && svc.Health.GRPCAddress != "" {
			return fmt.Errorf("service %s: %w", svc.Name, errHealthConflict)
		}

		if svc.GracePeriod < 0 {
			return fmt.Errorf("service %s grace period: %w", svc.Name, errNegativeDuration)
		}
	}

	return nil
}

func validateNotify(n *Notify) error {
	switch n.Kind {
	case NotifyLog:
		return nil
	case NotifyCommand:
		if len(n.Command) == 0 {
			return fmt.Errorf("notify: %w", errEmptyCommand)
		}

		return nil
	case NotifyWebhook:
		if n.WebhookURL == "" {
			return errWebhookURL
		}

		if _, err := url.ParseRequestURI(n.WebhookURL); err != nil {
			return fmt.Errorf("invalid webhook url: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownNotifyKind, n.Kind)
	}
}

// Resolve turns a path from the configuration into an absolute one rooted at InstallDir.
func (c *Config) Resolve(path string) string {
	if path == "" {
		return c.InstallDir
	}

	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(c.InstallDir, path)
}

// LogDirPath returns the absolute per-task log directory.
func (c *Config) LogDirPath() string {
	return c.Resolve(c.LogDir)
}

// StatusFilePath returns the run state file inside the log directory.
func (c *Config) StatusFilePath() string {
	return filepath.Join(c.LogDirPath(), StatusFilename)
}

// LockFilePath returns the absolute lock file path, or "" when locking is disabled.
func (c *Config) LockFilePath() string {
	if c.LockFile == LockDisabled {
		return ""
	}

	return c.Resolve(c.LockFile)
}

// TaskNames returns the configured task names in sorted order.
func (c *Config) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// LookupTask builds the domain task for a name with the invocation arguments.
func (c *Config) LookupTask(name string, args []string) (*maintenance.Task, bool) {
	task, ok := c.Tasks[name]
	if !ok {
		return nil, false
	}

	env := make([]string, 0, len(task.Env))
	for key, value := range task.Env {
		env = append(env, key+"="+value)
	}

	sort.Strings(env)

	return &maintenance.Task{
		Name:         name,
		Command:      slices.Clone(task.Command),
		Args:         slices.Clone(args),
		ErrorMessage: task.ErrorMessage,
		Dir:          c.Resolve(task.Dir),
		Env:          env,
	}, true
}

// ManagedServices converts the configured services into domain values.
func (c *Config) ManagedServices() []maintenance.ManagedService {
	services := make([]maintenance.ManagedService, 0, len(c.Services))

	for _, svc := range c.Services {
		services = append(services, maintenance.ManagedService{
			Name:    svc.Name,
			Restart: slices.Clone(svc.Restart),
			Health: maintenance.HealthCheck{
				Command:     slices.Clone(svc.Health.Command),
				GRPCAddress: svc.Health.GRPCAddress,
				GRPCService: svc.Health.GRPCService,
			},
			GracePeriod:    svc.GracePeriod,
			FailureMessage: svc.FailureMessage,
		})
	}

	return services
}
