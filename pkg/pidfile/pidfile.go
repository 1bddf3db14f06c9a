package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile guards against concurrent daemon instances via a pid file.
type PIDFile struct {
	path string
	pid  int
}

// New creates a PIDFile handle for the current process.
func New(path string) *PIDFile {
	return &PIDFile{
		path: path,
		pid:  os.Getpid(),
	}
}

// CheckRunning reports whether another live instance owns the pid file.
// It returns the recorded PID either way so callers can log it.
func (p *PIDFile) CheckRunning() (bool, int, error) {
	existingPID, err := p.readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	if processAlive(existingPID) {
		return true, existingPID, nil
	}
	return false, existingPID, nil
}

// Create writes the pid file, replacing a stale one from a dead process.
func (p *PIDFile) Create() error {
	if existingPID, err := p.readPID(); err == nil {
		if processAlive(existingPID) {
			return fmt.Errorf("daemon already running with PID %d", existingPID)
		}
		if err := os.Remove(p.path); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := os.WriteFile(p.path, []byte(strconv.Itoa(p.pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// Remove deletes the pid file if this process owns it.
func (p *PIDFile) Remove() error {
	existingPID, err := p.readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return os.Remove(p.path)
	}

	if existingPID != p.pid {
		return fmt.Errorf("PID file owned by %d, not %d; leaving it", existingPID, p.pid)
	}
	return os.Remove(p.path)
}

// ForceRemove deletes the pid file regardless of ownership.
func (p *PIDFile) ForceRemove() error {
	return os.Remove(p.path)
}

// Path returns the pid file path.
func (p *PIDFile) Path() string {
	return p.path
}

func (p *PIDFile) readPID() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %q", pidStr)
	}
	return pid, nil
}

// processAlive probes the PID with signal 0. EPERM still means the process
// exists, just owned by someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
