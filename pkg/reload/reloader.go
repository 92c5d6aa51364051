package reload

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/supporttools/compose-doctor/pkg/types"
	"github.com/supporttools/compose-doctor/pkg/util"
)

// ApplyFunc receives a freshly validated configuration when the file
// changes. Implementations apply the runtime-tunable settings and ignore
// the rest.
type ApplyFunc func(cfg *types.Config)

// Reloader ties the file watcher to config loading. On every change event
// it reloads the file, validates it, reports which sections changed, and
// hands the new config to the apply callback. A file that fails to load or
// validate is rejected; the running configuration stays in effect.
type Reloader struct {
	configPath string
	watcher    *ConfigWatcher
	apply      ApplyFunc
	logger     Logger

	mu      sync.Mutex
	current *types.Config
}

// NewReloader creates a reloader for the given config file. current is the
// configuration the daemon started with.
func NewReloader(configPath string, current *types.Config, apply ApplyFunc) (*Reloader, error) {
	if current == nil {
		return nil, fmt.Errorf("current config cannot be nil")
	}
	if apply == nil {
		return nil, fmt.Errorf("apply callback cannot be nil")
	}

	watcher, err := NewConfigWatcher(configPath, 0)
	if err != nil {
		return nil, err
	}

	return &Reloader{
		configPath: configPath,
		watcher:    watcher,
		apply:      apply,
		current:    current,
	}, nil
}

// SetLogger sets an optional logger for the reloader and its watcher.
func (r *Reloader) SetLogger(logger Logger) {
	r.logger = logger
	r.watcher.SetLogger(logger)
}

// Run watches until the context is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	changes, err := r.watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer r.watcher.Stop()

	r.logInfof("Watching %s for configuration changes", r.configPath)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			r.reload()
		}
	}
}

// reload loads and validates the file, logs the per-section changes, and
// applies the result. Strategy changes are reported but require a restart;
// the strategy table is immutable once the tracker holds state against it.
func (r *Reloader) reload() {
	cfg, err := util.LoadConfig(r.configPath)
	if err != nil {
		r.logErrorf("Rejecting config change: %v", err)
		return
	}

	r.mu.Lock()
	previous := r.current
	r.current = cfg
	r.mu.Unlock()

	if reflect.DeepEqual(previous, cfg) {
		r.logInfof("Config file rewritten without changes")
		return
	}

	if !reflect.DeepEqual(previous.Strategies, cfg.Strategies) {
		r.logWarnf("Strategy table changed on disk; restart required for it to take effect")
	}
	if !reflect.DeepEqual(previous.Metrics, cfg.Metrics) {
		r.logWarnf("Metrics configuration changed on disk; restart required for it to take effect")
	}
	if !reflect.DeepEqual(previous.Alerts, cfg.Alerts) {
		r.logWarnf("Alert feed configuration changed on disk; restart required for it to take effect")
	}

	r.logInfof("Applying runtime-tunable settings from %s", r.configPath)
	r.apply(cfg)
}

// Current returns the most recently accepted configuration.
func (r *Reloader) Current() *types.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// logInfof logs an informational message if a logger is configured.
func (r *Reloader) logInfof(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Infof("[Reloader] "+format, args...)
	}
}

// logWarnf logs a warning message if a logger is configured.
func (r *Reloader) logWarnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warnf("[Reloader] "+format, args...)
	}
}

// logErrorf logs an error message if a logger is configured.
func (r *Reloader) logErrorf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Errorf("[Reloader] "+format, args...)
	}
}
