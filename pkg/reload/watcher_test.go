package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestNewConfigWatcherValidation(t *testing.T) {
	if _, err := NewConfigWatcher("", time.Second); err == nil {
		t.Errorf("NewConfigWatcher() with empty path expected error but got none")
	}

	watcher, err := NewConfigWatcher("/tmp/config.yaml", 0)
	if err != nil {
		t.Fatalf("NewConfigWatcher() unexpected error = %v", err)
	}
	defer watcher.Stop()
	if watcher.debounceInterval != 500*time.Millisecond {
		t.Errorf("debounceInterval = %v, want default 500ms", watcher.debounceInterval)
	}
}

func TestWatcherEmitsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "settings: {}\n")

	watcher, err := NewConfigWatcher(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewConfigWatcher() unexpected error = %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := watcher.Start(ctx)
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	writeFile(t, path, "settings:\n  logLevel: debug\n")

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatalf("no change event after file write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "settings: {}\n")

	watcher, err := NewConfigWatcher(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewConfigWatcher() unexpected error = %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := watcher.Start(ctx)
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	writeFile(t, filepath.Join(dir, "other.yaml"), "unrelated\n")

	select {
	case <-changes:
		t.Fatalf("change event for unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "settings: {}\n")

	watcher, err := NewConfigWatcher(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewConfigWatcher() unexpected error = %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := watcher.Start(ctx)
	if err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}

	// A burst of writes inside the debounce window coalesces into one event.
	for i := 0; i < 5; i++ {
		writeFile(t, path, "settings: {}\n")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatalf("no change event after burst")
	}

	select {
	case <-changes:
		t.Fatalf("second change event for a single burst")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStartTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "settings: {}\n")

	watcher, err := NewConfigWatcher(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewConfigWatcher() unexpected error = %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start() unexpected error = %v", err)
	}
	if _, err := watcher.Start(ctx); err == nil {
		t.Errorf("second Start() expected error but got none")
	}
}
