// Package daemon manages the on-disk daemon state: the PID file lifecycle,
// process liveness checks, graceful stop signalling, and detaching into the
// background. The CLI process and the daemon are separate OS processes that
// communicate only through the PID file and signals.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	// ErrAlreadyRunning is returned when a second daemon instance is refused.
	ErrAlreadyRunning = errors.New("collector is already running")

	// ErrNotRunning is returned by Stop when no live daemon exists.
	ErrNotRunning = errors.New("collector is not running")
)

// stopWait is how long Stop waits for a graceful exit before escalating
// to SIGKILL.
const stopWait = 5 * time.Second

// Manager owns the PID file at a configured path.
type Manager struct {
	pidFile string
	logger  *zap.Logger
}

// NewManager creates a daemon manager for the given PID file path.
func NewManager(pidFile string, logger *zap.Logger) *Manager {
	return &Manager{pidFile: pidFile, logger: logger}
}

// PID returns the live daemon's PID. A missing file, an unparsable file, or
// a PID whose process is gone all report not running; stale files are
// removed on the way.
func (m *Manager) PID() (int, bool) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		m.cleanup()
		return 0, false
	}

	if !alive(pid) {
		m.logger.Debug("removing stale PID file",
			zap.String("path", m.pidFile),
			zap.Int("pid", pid))
		m.cleanup()
		return 0, false
	}
	return pid, true
}

// IsRunning reports whether a live daemon instance exists.
func (m *Manager) IsRunning() bool {
	_, ok := m.PID()
	return ok
}

// WritePID records the current process in the PID file atomically.
// Refuses to overwrite the record of another live instance.
func (m *Manager) WritePID() error {
	if pid, ok := m.PID(); ok && pid != os.Getpid() {
		return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}

	dir := filepath.Dir(m.pidFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating PID file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pid-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp PID file: %w", err)
	}
	if _, err := fmt.Fprintf(tmp, "%d\n", os.Getpid()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing PID file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing PID file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.pidFile); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing PID file: %w", err)
	}
	return nil
}

// RemovePID deletes the PID file on clean shutdown.
func (m *Manager) RemovePID() {
	m.cleanup()
}

// Uptime reports how long the daemon has been running, based on the PID
// file's modification time (written at daemon start).
func (m *Manager) Uptime() (time.Duration, bool) {
	if !m.IsRunning() {
		return 0, false
	}
	info, err := os.Stat(m.pidFile)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}

// Stop signals the daemon with SIGTERM and waits for it to exit. The loop
// finishes its in-flight tick before exiting, so the wait is bounded but
// not instant. SIGKILL is the last resort.
func (m *Manager) Stop() error {
	pid, ok := m.PID()
	if !ok {
		return ErrNotRunning
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("signaling PID %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopWait)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if !alive(pid) {
			m.cleanup()
			return nil
		}
	}

	m.logger.Warn("daemon did not exit in time, sending SIGKILL", zap.Int("pid", pid))
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing PID %d: %w", pid, err)
	}
	m.cleanup()
	return nil
}

// Detach re-executes the current binary in a new session, detached from the
// terminal, with output redirected to the given log file. This is the Go
// equivalent of the classic double fork. Returns the child PID; the child
// writes the PID file itself once its loop starts.
func Detach(args []string, logFile string) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolving executable: %w", err)
	}

	out, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		out, err = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return 0, fmt.Errorf("opening daemon output: %w", err)
		}
	}
	defer out.Close()

	cmd := exec.Command(self, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting daemon process: %w", err)
	}

	pid := cmd.Process.Pid
	// Detach fully: the child is reparented, not waited on.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("releasing daemon process: %w", err)
	}
	return pid, nil
}

// alive probes a PID with signal 0. EPERM still means the process exists.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (m *Manager) cleanup() {
	if err := os.Remove(m.pidFile); err != nil && !os.IsNotExist(err) {
		m.logger.Debug("could not remove PID file",
			zap.String("path", m.pidFile),
			zap.Error(err))
	}
}
