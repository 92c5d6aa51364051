// Package reload provides configuration hot reload functionality.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Logger provides optional logging functionality for the watcher.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ConfigWatcher watches a configuration file for changes and emits reload events.
type ConfigWatcher struct {
	configPath       string
	debounceInterval time.Duration
	watcher          *fsnotify.Watcher
	changeCh         chan struct{}
	logger           Logger
	mu               sync.Mutex
	running          bool
	stopCh           chan struct{}
}

// NewConfigWatcher creates a new configuration file watcher.
func NewConfigWatcher(configPath string, debounceInterval time.Duration) (*ConfigWatcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}

	if debounceInterval <= 0 {
		debounceInterval = 500 * time.Millisecond // Default debounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &ConfigWatcher{
		configPath:       configPath,
		debounceInterval: debounceInterval,
		watcher:          watcher,
		changeCh:         make(chan struct{}, 1), // Buffered to prevent blocking
		stopCh:           make(chan struct{}),
	}, nil
}

// SetLogger sets an optional logger for the watcher.
func (cw *ConfigWatcher) SetLogger(logger Logger) {
	cw.logger = logger
}

// Start begins watching the configuration file for changes.
// Returns a channel that receives events when the config file changes.
func (cw *ConfigWatcher) Start(ctx context.Context) (<-chan struct{}, error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return nil, fmt.Errorf("watcher already running")
	}

	// Watch the directory, not the file directly, so atomic writes
	// (editors and config management tools rename over the file) are seen.
	dir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	cw.running = true

	// Start event processing goroutine
	go cw.processEvents(ctx)

	return cw.changeCh, nil
}

// Stop stops watching the configuration file.
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running {
		return
	}

	close(cw.stopCh)
	cw.watcher.Close()
	close(cw.changeCh)
	cw.running = false
}

// processEvents handles file system events with debouncing.
func (cw *ConfigWatcher) processEvents(ctx context.Context) {
	var debounceTimer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-cw.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			// Only process events for our config file
			if filepath.Clean(event.Name) != filepath.Clean(cw.configPath) {
				continue
			}

			// Process WRITE and CREATE events (atomic updates arrive as CREATE)
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {

				// Start or reset debounce timer
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(cw.debounceInterval)
				timerCh = debounceTimer.C
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if cw.logger != nil {
				cw.logger.Errorf("[ConfigWatcher] File watcher error: %v", err)
			}

		case <-timerCh:
			// Debounce period elapsed, emit change event
			select {
			case cw.changeCh <- struct{}{}:
				// Event sent
			default:
				// Channel full, event already pending
			}
			timerCh = nil
		}
	}
}
