package lockfile

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestAcquireWritesHolder(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir, RoleOutreach)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, "leadpipe-outreach.lock") {
		t.Errorf("unexpected lock path %s", lock.Path())
	}
	h := readHolder(lock.Path())
	if h.PID != os.Getpid() || h.Role != RoleOutreach || h.Started.IsZero() {
		t.Errorf("unexpected holder %+v", h)
	}
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, RoleOutreach)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer first.Release()

	second, err := Acquire(dir, RoleOutreach)
	if err == nil {
		second.Release()
		t.Fatal("expected second Acquire to fail")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if lockErr.Holder.PID != os.Getpid() {
		t.Errorf("expected holder pid %d, got %d", os.Getpid(), lockErr.Holder.PID)
	}
	msg := err.Error()
	if !strings.Contains(msg, "outreach") || !strings.Contains(msg, "(running)") || !strings.Contains(msg, dir) {
		t.Errorf("unhelpful error message: %s", msg)
	}

	// The conflicting attempt must not wipe the holder's details.
	if h := readHolder(first.Path()); h.PID != os.Getpid() {
		t.Errorf("holder details lost: %+v", h)
	}
}

func TestRolesAreIndependent(t *testing.T) {
	dir := t.TempDir()

	serve, err := Acquire(dir, RoleServe)
	if err != nil {
		t.Fatalf("Acquire(serve) error = %v", err)
	}
	defer serve.Release()

	outreach, err := Acquire(dir, RoleOutreach)
	if err != nil {
		t.Fatalf("Acquire(outreach) error = %v", err)
	}
	outreach.Release()
}

func TestReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir, RoleServe)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("expected lock file removed, stat err = %v", err)
	}

	again, err := Acquire(dir, RoleServe)
	if err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}
	again.Release()
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := Acquire(dir, RoleServe)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected state directory created: %v", err)
	}
}

func TestParseHolder(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	content := "pid=4242\nrole=serve\nstarted=" + started.Format(time.RFC3339) + "\ngarbage\n"
	h := parseHolder(bufio.NewScanner(strings.NewReader(content)))
	if h.PID != 4242 || h.Role != RoleServe || !h.Started.Equal(started) {
		t.Errorf("unexpected holder %+v", h)
	}

	if h := parseHolder(bufio.NewScanner(strings.NewReader(""))); h.PID != 0 || h.String() != "unknown process" {
		t.Errorf("expected empty holder, got %+v", h)
	}
}

func TestHolderString(t *testing.T) {
	self := Holder{PID: os.Getpid()}
	if !strings.Contains(self.String(), "PID "+strconv.Itoa(os.Getpid())+" (running)") {
		t.Errorf("unexpected String() %q", self.String())
	}
}
