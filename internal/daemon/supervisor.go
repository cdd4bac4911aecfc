// Package daemon supervises the long-lived per-project processes
// (Watcher, VectorService) the way wt wing start/stop/status supervises
// the wing process: a detached child, a PID file, a rotated log, and a
// terminate-by-signal stop path. No external process supervisor
// integration is implemented; ensure always takes the fork-and-PID-file
// path.
package daemon

import (
	"compress/gzip"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/ehrlich-b/kgraph/internal/config"
)

// maxLogSize triggers rotation once a supervised process's log exceeds it.
const maxLogSize = 1 << 20 // 1MB

// Status describes one named process's observed state.
type Status struct {
	Name    string
	Running bool
	PID     int
	Healthy bool // only meaningful when a HealthCheck was supplied
}

// Spec describes how to start one named long-lived process.
type Spec struct {
	Name string
	Args []string // arguments to re-exec this binary with, e.g. ["serve"]

	// HealthCheck is not read by Ensure or StatusOf; StatusOf takes its
	// health check as a separate argument.
	HealthCheck func() bool
}

// Supervisor starts, stops, and reports on named long-lived processes for
// one project, using PID files under cfg.IndexPath().
type Supervisor struct {
	cfg *config.Config
}

// New returns a Supervisor rooted at cfg's project directory.
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

func (s *Supervisor) pidPath(name string) string { return s.cfg.PIDPath(name) }

func (s *Supervisor) logPath(name string) string {
	return s.cfg.LogsDir() + "/" + name + ".log"
}

// readPID returns the PID recorded for name if the file exists and the
// process is alive; a stale file is removed and treated as "not running".
func (s *Supervisor) readPID(name string) (int, bool) {
	data, err := os.ReadFile(s.pidPath(name))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(s.pidPath(name))
		return 0, false
	}
	return pid, true
}

// Ensure starts the named process if it is not already running. Returns
// the PID of the (already or newly) running process.
func (s *Supervisor) Ensure(spec Spec) (int, error) {
	if pid, ok := s.readPID(spec.Name); ok {
		return pid, nil
	}

	if err := os.MkdirAll(s.cfg.LogsDir(), 0o755); err != nil {
		return 0, fmt.Errorf("daemon: create log dir: %w", err)
	}
	if err := os.MkdirAll(s.cfg.IndexPath(), 0o755); err != nil {
		return 0, fmt.Errorf("daemon: create index dir: %w", err)
	}

	rotateLog(s.logPath(spec.Name))
	logFile, err := os.OpenFile(s.logPath(spec.Name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("daemon: open log: %w", err)
	}
	defer logFile.Close()

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("daemon: resolve executable: %w", err)
	}

	runID := uuid.NewString()
	fmt.Fprintf(logFile, "--- start run=%s args=%v ---\n", runID, spec.Args)

	child := exec.Command(exe, spec.Args...)
	child.Dir = s.cfg.Dir
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return 0, fmt.Errorf("daemon: start %s (run %s): %w", spec.Name, runID, err)
	}

	pid := child.Process.Pid
	if err := os.WriteFile(s.pidPath(spec.Name), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return pid, fmt.Errorf("daemon: write pid file: %w", err)
	}

	return pid, nil
}

// Stop terminates the named process if its PID file names a live process.
// Stopping a process that is not running is not an error.
func (s *Supervisor) Stop(name string) error {
	pid, ok := s.readPID(name)
	if !ok {
		os.Remove(s.pidPath(name))
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(s.pidPath(name))
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("daemon: terminate %s (pid %d): %w", name, pid, err)
	}
	os.Remove(s.pidPath(name))
	return nil
}

// StatusOf reports whether name is running and, if healthCheck is
// supplied, whether it currently answers healthy.
func (s *Supervisor) StatusOf(name string, healthCheck func() bool) Status {
	pid, ok := s.readPID(name)
	st := Status{Name: name, Running: ok, PID: pid}
	if ok && healthCheck != nil {
		st.Healthy = healthCheck()
	}
	return st
}

// rotateLog rotates path once it exceeds maxLogSize: .log -> .log.1 ->
// .log.2.gz -> deleted.
func rotateLog(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxLogSize {
		return
	}
	os.Remove(path + ".2.gz")
	if data, err := os.ReadFile(path + ".1"); err == nil {
		if gz, err := os.Create(path + ".2.gz"); err == nil {
			w := gzip.NewWriter(gz)
			w.Write(data)
			w.Close()
			gz.Close()
			os.Remove(path + ".1")
		}
	}
	os.Rename(path, path+".1")
}
