package runstate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/upkeep/internal/config"
	"github.com/oshokin/upkeep/internal/domain/maintenance"
)

// Repository defines persistence operations for task run records.
type Repository interface {
	Load(ctx context.Context) (map[string]*maintenance.RunRecord, error)
	Save(ctx context.Context, record *maintenance.RunRecord) error
}

// FileRepository persists run records to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the status file.
	path string
	// mu serializes read-modify-write cycles within the process.
	mu sync.Mutex
}

// ErrNotFound is returned when the status file does not exist yet.
var ErrNotFound = errors.New("run state not found")

// record is the on-disk representation of maintenance.RunRecord.
type record struct {
	RunID     string        `yaml:"run_id"`
	StartedAt time.Time     `yaml:"started_at"`
	Duration  time.Duration `yaml:"duration"`
	ExitCode  int           `yaml:"exit_code"`
	Failed    bool          `yaml:"failed"`
	LogPath   string        `yaml:"log_path"`
}

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the status file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads all records from disk.
func (r *FileRepository) Load(_ context.Context) (map[string]*maintenance.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read()
	if err != nil {
		return nil, err
	}

	records := make(map[string]*maintenance.RunRecord, len(stored))
	for task, rec := range stored {
		records[task] = fromStored(task, rec)
	}

	return records, nil
}

// Save replaces the record of one task, keeping the others.
func (r *FileRepository) Save(_ context.Context, rec *maintenance.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.read()

	switch {
	case errors.Is(err, ErrNotFound):
		stored = make(map[string]record, 1)
	case err != nil:
		return err
	}

	stored[rec.Task] = toStored(rec)

	data, err := yaml.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}

	return r.write(data)
}

func (r *FileRepository) read() (map[string]record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read run state file: %w", err)
	}

	stored := make(map[string]record)
	if err = yaml.Unmarshal(contents, &stored); err != nil {
		return nil, fmt.Errorf("decode run state file: %w", err)
	}

	return stored, nil
}

// write replaces the file through a rename so readers never see a partial document.
func (r *FileRepository) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("create run state directory: %w", err)
	}

	tmp := r.path + ".tmp"

	if err := os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write run state file: %w", err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace run state file: %w", err)
	}

	return nil
}

// fromStored converts the on-disk record into the domain model.
func fromStored(task string, rec record) *maintenance.RunRecord {
	return &maintenance.RunRecord{
		Task:      task,
		RunID:     rec.RunID,
		StartedAt: rec.StartedAt,
		Result: maintenance.ExecutionResult{
			ExitedNonZero: rec.Failed,
			ExitCode:      rec.ExitCode,
			LogPath:       rec.LogPath,
			Duration:      rec.Duration,
		},
	}
}

// toStored converts the domain model into its on-disk record.
func toStored(rec *maintenance.RunRecord) record {
	return record{
		RunID:     rec.RunID,
		StartedAt: rec.StartedAt.UTC(),
		Duration:  rec.Result.Duration,
		ExitCode:  rec.Result.ExitCode,
		Failed:    rec.Result.ExitedNonZero,
		LogPath:   rec.Result.LogPath,
	}
}
