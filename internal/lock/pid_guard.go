// Package lock keeps two scopesync servers from sharing one SQLite
// database directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName is the name of the PID file next to the database.
const PIDFileName = "serve.pid"

// PIDGuard is a PID file owned by the running server.
type PIDGuard struct {
	path string
	pid  int
}

// NewPIDGuard creates a guard for the given directory.
func NewPIDGuard(dir string) *PIDGuard {
	return &PIDGuard{path: filepath.Join(dir, PIDFileName), pid: os.Getpid()}
}

// Path returns the PID file path.
func (g *PIDGuard) Path() string {
	return g.path
}

// Acquire claims the PID file. A file left by a process that no longer
// runs, or one that does not hold a PID, is replaced.
func (g *PIDGuard) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(g.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(g.pid))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(g.path)
				return fmt.Errorf("write pid file: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create pid file: %w", err)
		}

		owner, ok := g.owner()
		if ok && owner != g.pid && processExists(owner) {
			return &AlreadyRunningError{PID: owner, Path: g.path}
		}
		if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	}
	return &AlreadyRunningError{Path: g.path}
}

// Release removes the PID file if this process still owns it.
func (g *PIDGuard) Release() {
	if owner, ok := g.owner(); ok && owner == g.pid {
		_ = os.Remove(g.path)
	}
}

func (g *PIDGuard) owner() (int, bool) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// AlreadyRunningError means another server holds the PID file.
type AlreadyRunningError struct {
	PID  int
	Path string
}

func (e *AlreadyRunningError) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("another scopesync server holds %s", e.Path)
	}
	return fmt.Sprintf("scopesync server already running (pid %d, %s)", e.PID, e.Path)
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds. Signal 0 probes the process.
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
