package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sys/unix"
)

const lockFileMode os.FileMode = 0o644

var (
	// ErrAlreadyRunning is returned when another process holds the lock.
	ErrAlreadyRunning = errors.New("another orchestrator is already running")

	errForeignDescriptor = errors.New("descriptor does not refer to the lock file")
	errNotHeld           = errors.New("lock is not held")
)

// Lock is a held exclusive file lock.
type Lock struct {
	path string
	file *os.File
}

// TryAcquire takes the lock at path without blocking.
// The file records the PID of the holder for diagnostics.
func TryAcquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_RDWR, lockFileMode)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()

		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, alreadyRunning(path)
		}

		return nil, fmt.Errorf("flock: %w", err)
	}

	if err = file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("record lock holder: %w", err)
	}

	return &Lock{path: path, file: file}, nil
}

// Inherit keeps the lock descriptor open across exec and returns its number,
// so the replacement process can Adopt the lock without ever releasing it.
func (l *Lock) Inherit() (int, error) {
	if l == nil || l.file == nil {
		return 0, errNotHeld
	}

	fd := int(l.file.Fd())

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0); err != nil {
		return 0, fmt.Errorf("clear close-on-exec: %w", err)
	}

	return fd, nil
}

// Adopt takes over a lock inherited as descriptor fd. The descriptor must
// refer to the file at path and still hold its lock.
func Adopt(fd int, path string) (*Lock, error) {
	var inherited, onDisk unix.Stat_t

	if err := unix.Fstat(fd, &inherited); err != nil {
		return nil, fmt.Errorf("inspect descriptor %d: %w", fd, err)
	}

	if err := unix.Stat(path, &onDisk); err != nil {
		return nil, fmt.Errorf("inspect lock file: %w", err)
	}

	if inherited.Dev != onDisk.Dev || inherited.Ino != onDisk.Ino {
		return nil, fmt.Errorf("descriptor %d: %w", fd, errForeignDescriptor)
	}

	// Re-locking through the same open file description succeeds; anything
	// else means the lock went to another process.
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, alreadyRunning(path)
		}

		return nil, fmt.Errorf("flock: %w", err)
	}

	unix.CloseOnExec(fd)

	return &Lock{path: path, file: os.NewFile(uintptr(fd), path)}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. The file itself stays in place.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("funlock: %w", unlockErr)
	}

	return closeErr
}

func alreadyRunning(path string) error {
	holder := "unknown"
	if contents, err := os.ReadFile(filepath.Clean(path)); err == nil {
		if pid := strings.TrimSpace(string(contents)); pid != "" {
			holder = pid
		}
	}

	peers := PeerPIDs()
	if len(peers) == 0 {
		return fmt.Errorf("%w: lock %s held by pid %s", ErrAlreadyRunning, path, holder)
	}

	return fmt.Errorf("%w: lock %s held by pid %s, running instances: %v", ErrAlreadyRunning, path, holder, peers)
}

// PeerPIDs lists other processes running the same executable as this one.
func PeerPIDs() []int {
	executable, err := os.Executable()
	if err != nil {
		return nil
	}

	return peersNamed(filepath.Base(executable), os.Getpid())
}

func peersNamed(name string, self int) []int {
	processes, err := ps.Processes()
	if err != nil {
		return nil
	}

	var peers []int

	for _, process := range processes {
		if process.Pid() == self || process.Executable() != truncateComm(name) {
			continue
		}

		peers = append(peers, process.Pid())
	}

	return peers
}

// truncateComm mirrors the kernel's 15-byte limit on process names, which
// go-ps reports on Linux.
func truncateComm(name string) string {
	const maxComm = 15

	if len(name) > maxComm {
		return name[:maxComm]
	}

	return name
}
