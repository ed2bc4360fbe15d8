package assets

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/upkeep/internal/executil"
	"github.com/oshokin/upkeep/internal/logger"

	// Register SHA-512 for checksum verification.
	_ "crypto/sha512"
)

const (
	// ChecksumFunction verifies the rebuilt binary before it replaces the old one.
	ChecksumFunction crypto.Hash = crypto.SHA512

	executableMode os.FileMode = 0o755
)

var errHashUnavailable = errors.New("hash function unavailable")

// SelfBinary rebuilds the orchestrator from its checkout and replaces the target executable.
type SelfBinary struct {
	runner   executil.Runner
	dir      string
	pkg      string
	goBinary string
	target   func() (string, error)
}

// NewSelfBinary creates a rebuilder for the main package pkg inside dir.
// The target defaults to the running executable.
func NewSelfBinary(runner executil.Runner, dir, pkg, goBinary string) *SelfBinary {
	return &SelfBinary{
		runner:   runner,
		dir:      dir,
		pkg:      pkg,
		goBinary: goBinary,
		target:   runningExecutable,
	}
}

// WithTarget overrides the executable that gets replaced.
func (s *SelfBinary) WithTarget(path string) *SelfBinary {
	s.target = func() (string, error) {
		return path, nil
	}

	return s
}

// Rebuild compiles the package into a temporary file and applies it over the target.
func (s *SelfBinary) Rebuild(ctx context.Context) error {
	target, err := s.target()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "upkeep-build-")
	if err != nil {
		return err
	}

	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	output := filepath.Join(tmpDir, filepath.Base(target))

	if _, err = executil.RunChecked(ctx, s.runner, s.dir, s.goBinary, "build", "-o", output, s.pkg); err != nil {
		return fmt.Errorf("build %s: %w", s.pkg, err)
	}

	if err = ApplyBinary(output, target); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Orchestrator binary replaced", "path", target)

	return nil
}

// ApplyBinary atomically replaces target with the file at source,
// verifying the SHA-512 checksum of the written data.
func ApplyBinary(source, target string) error {
	checksum, err := FileChecksum(source)
	if err != nil {
		return err
	}

	file, err := os.Open(filepath.Clean(source))
	if err != nil {
		return fmt.Errorf("open new binary: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: executableMode,
		Checksum:   checksum,
		Hash:       ChecksumFunction,
	}

	if err = goupdate.Apply(file, options); err != nil {
		return fmt.Errorf("apply new binary: %w", err)
	}

	// go-update cannot always remove the previous binary, e.g. on Windows.
	oldFile := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".old")
	if _, statErr := os.Stat(oldFile); statErr == nil {
		_ = os.Remove(oldFile)
	}

	return nil
}

// FileChecksum returns the ChecksumFunction digest of a file.
func FileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := ChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

func runningExecutable() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", err
	}

	return filepath.EvalSymlinks(executable)
}
