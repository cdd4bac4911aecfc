package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ehrlich-b/kgraph/internal/config"
)

func testSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return New(cfg)
}

func TestStopWithoutPidFileIsNotAnError(t *testing.T) {
	s := testSupervisor(t)
	if err := s.Stop("watcher"); err != nil {
		t.Errorf("expected idempotent stop, got %v", err)
	}
}

func TestStatusOfNotRunning(t *testing.T) {
	s := testSupervisor(t)
	st := s.StatusOf("watcher", nil)
	if st.Running {
		t.Errorf("expected not running, got %+v", st)
	}
}

func TestStatusOfStalePidFileIsNotRunning(t *testing.T) {
	s := testSupervisor(t)
	if err := os.MkdirAll(s.cfg.IndexPath(), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	// A PID that is vanishingly unlikely to be alive.
	if err := os.WriteFile(s.pidPath("watcher"), []byte(strconv.Itoa(1<<30)), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st := s.StatusOf("watcher", nil)
	if st.Running {
		t.Errorf("expected stale pid to read as not running, got %+v", st)
	}
	if _, err := os.Stat(s.pidPath("watcher")); !os.IsNotExist(err) {
		t.Errorf("expected stale pid file removed, stat err=%v", err)
	}
}

func TestEnsureIsIdempotentForAlreadyRunningProcess(t *testing.T) {
	s := testSupervisor(t)
	if err := os.MkdirAll(s.cfg.IndexPath(), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	// Use our own PID: always alive for the test's duration.
	self := os.Getpid()
	if err := os.WriteFile(s.pidPath("watcher"), []byte(strconv.Itoa(self)), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pid, err := s.Ensure(Spec{Name: "watcher", Args: []string{"watch"}})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if pid != self {
		t.Errorf("expected Ensure to report the already-running pid %d, got %d", self, pid)
	}
}

func TestRotateLogLeavesSmallFileAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.log")
	if err := os.WriteFile(path, []byte("small"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rotateLog(path)
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "small" {
		t.Errorf("expected untouched small log, got data=%q err=%v", data, err)
	}
}
