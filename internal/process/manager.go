package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the supervision state of the managed daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	defaultRestartDelay    = 5 * time.Second
	defaultGracefulTimeout = 10 * time.Second
)

// Config describes the daemon to supervise.
type Config struct {
	// Name identifies the process in log output.
	Name string

	// Binary is the path to the executable, resolved via PATH when
	// not absolute.
	Binary string

	// Args are passed to the binary on every (re)start.
	Args []string

	// RestartOnFailure restarts the daemon when it exits without
	// Stop having been called.
	RestartOnFailure bool

	// RestartDelay is the pause before each restart attempt.
	// Defaults to 5s when zero.
	RestartDelay time.Duration

	// MaxRestartAttempts caps restarts; 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout bounds the SIGTERM grace period before the
	// process group is killed. Defaults to 10s when zero.
	GracefulTimeout time.Duration
}

// Logger is the subset of logging.Logger the supervisor uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises a single long-running daemon, typically
// serialoscd. It launches the binary in its own process group,
// relays its output to the log, and restarts it with a fixed delay
// when it dies unexpectedly. Stop tears down the whole group with
// SIGTERM, escalating to SIGKILL after the grace period.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	stopRequested bool
	done          chan struct{}
}

// NewManager builds a supervisor for cfg. Zero delay and timeout
// fields get defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger installs a logger. Call before Start.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the daemon and begins supervision. It returns an
// error if the binary cannot be started or if the daemon is already
// running; later crashes are handled by the restart loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.launch(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx)

	return nil
}

// launch starts one instance of the daemon.
func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("starting daemon",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary path comes from validated configuration

	// Own process group so Stop can signal the daemon and anything
	// it forked in one syscall.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.mu.Unlock()

	go m.relayOutput("stdout", stdout)
	go m.relayOutput("stderr", stderr)

	m.logger.Info("daemon started", "name", m.config.Name, "pid", cmd.Process.Pid)

	return nil
}

// relayOutput forwards the daemon's output to the log, one line per
// entry.
func (m *Manager) relayOutput(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Debug("daemon output",
			"name", m.config.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
}

// supervise waits for the daemon to exit and restarts it unless Stop
// was requested or the restart budget is exhausted.
func (m *Manager) supervise(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		m.mu.RUnlock()

		if cmd == nil {
			return
		}

		err := cmd.Wait()

		m.mu.Lock()
		stopRequested := m.stopRequested
		m.mu.Unlock()

		if stopRequested {
			m.logger.Info("daemon stopped", "name", m.config.Name)
			m.mu.Lock()
			m.status = StatusStopped
			m.mu.Unlock()
			return
		}

		m.logger.Warn("daemon exited unexpectedly", "name", m.config.Name, "error", err)

		m.mu.Lock()
		m.lastError = err
		m.status = StatusFailed
		m.mu.Unlock()

		if !m.config.RestartOnFailure {
			return
		}

		m.mu.Lock()
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("restart attempts exhausted",
				"name", m.config.Name,
				"attempts", attempt,
			)
			return
		}

		m.logger.Info("restarting daemon",
			"name", m.config.Name,
			"attempt", attempt,
			"delay", m.config.RestartDelay,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.config.RestartDelay):
		}

		m.mu.RLock()
		stopRequested = m.stopRequested
		m.mu.RUnlock()
		if stopRequested {
			return
		}

		if err := m.launch(ctx); err != nil {
			m.logger.Error("restart failed", "name", m.config.Name, "error", err)
			// Loop again; the next Wait returns immediately for a
			// dead cmd, so the delay above paces retries.
		}
	}
}

// Stop terminates the daemon's process group, SIGTERM first and
// SIGKILL after the grace period. Returns nil if nothing is running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusRunning && m.status != StatusStarting {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping daemon", "name", m.config.Name, "pid", pid)

	// Negative pid signals the whole group created via Setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn("SIGTERM failed", "name", m.config.Name, "error", err)
		}
	}

	select {
	case <-done:
		m.logger.Info("daemon stopped gracefully", "name", m.config.Name)
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("grace period expired, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing %s process group: %w", m.config.Name, err)
		}
	}

	<-done
	m.logger.Info("daemon killed", "name", m.config.Name)

	return nil
}

// Status returns the current supervision state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the daemon is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error from the most recent unexpected exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns how many times the daemon has been restarted.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// PID returns the daemon's process id, or 0 when not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}
