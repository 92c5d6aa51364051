package types

import (
	"fmt"
	"os"
	"time"
)

// Default configuration values.
const (
	DefaultTickInterval      = "30s"
	DefaultActionTimeout     = "60s"
	DefaultNotifyTimeout     = "10s"
	DefaultAlertPollPeriod   = "30s"
	DefaultMetricsAddr       = ":9400"
	DefaultMetricsPath       = "/metrics"
	DefaultOptOutLabel       = "auto_repair"
	DefaultOptOutValue       = "false"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultHistorySize       = 200
	DefaultStormThreshold    = 5
	DefaultCleanupMaxAgeDays = 7
)

// Validation bounds.
const (
	MinTickInterval  = 1 * time.Second
	MinActionTimeout = 1 * time.Second
)

// Config is the top-level Compose Doctor configuration, loaded from a
// YAML or JSON file by pkg/util.
type Config struct {
	// Settings contains global daemon settings.
	Settings GlobalSettings `json:"settings" yaml:"settings"`

	// Strategies contains optional per-kind overrides for the strategy
	// table (action, cooldown, max attempts). Keys are failure kinds.
	Strategies map[string]StrategyOverride `json:"strategies,omitempty" yaml:"strategies,omitempty"`

	// Alerts configures the alert-feed collaborator.
	Alerts AlertFeedConfig `json:"alerts,omitempty" yaml:"alerts,omitempty"`

	// Notify configures the notification transport.
	Notify NotifyConfig `json:"notify,omitempty" yaml:"notify,omitempty"`

	// Metrics configures the Prometheus exposition server.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Cleanup configures the bounded log pruning performed by the
	// cleanup action.
	Cleanup CleanupConfig `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
}

// GlobalSettings contains daemon-wide settings.
type GlobalSettings struct {
	// Logging configuration
	LogLevel  string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`

	// Intervals (stored as strings, parsed to time.Duration)
	TickIntervalString  string `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`
	ActionTimeoutString string `json:"actionTimeout,omitempty" yaml:"actionTimeout,omitempty"`

	// Parsed durations (not serialized)
	TickInterval  time.Duration `json:"-" yaml:"-"`
	ActionTimeout time.Duration `json:"-" yaml:"-"`

	// Opt-out label convention. A service carrying
	// OptOutLabel=OptOutValue is never repaired.
	OptOutLabel string `json:"optOutLabel,omitempty" yaml:"optOutLabel,omitempty"`
	OptOutValue string `json:"optOutValue,omitempty" yaml:"optOutValue,omitempty"`

	// RestartStormThreshold is the restart count above which a service is
	// considered stuck in a restart loop.
	RestartStormThreshold int `json:"restartStormThreshold,omitempty" yaml:"restartStormThreshold,omitempty"`

	// DryRun makes decisions and state transitions run normally while
	// actions are logged instead of executed.
	DryRun bool `json:"dryRun,omitempty" yaml:"dryRun,omitempty"`

	// HistorySize bounds the in-memory repair history ring.
	HistorySize int `json:"historySize,omitempty" yaml:"historySize,omitempty"`
}

// StrategyOverride overrides the built-in strategy rule for one failure kind.
// Zero-valued fields keep the built-in default.
type StrategyOverride struct {
	// Action is the repair action identifier (restart, stop_then_start, cleanup).
	Action string `json:"action,omitempty" yaml:"action,omitempty"`

	// Cooldown is the minimum interval between actions (stored as string).
	CooldownString string `json:"cooldown,omitempty" yaml:"cooldown,omitempty"`

	// MaxAttempts bounds actions per incident before escalation.
	MaxAttempts int `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`

	// Parsed duration (not serialized)
	Cooldown time.Duration `json:"-" yaml:"-"`
}

// AlertFeedConfig configures the alert-feed collaborator. Both the webhook
// receiver and the poller feed the same inbound queue.
type AlertFeedConfig struct {
	// WebhookAddr is the listen address for inbound Alertmanager-style
	// webhooks. Empty disables the webhook receiver.
	WebhookAddr string `json:"webhookAddr,omitempty" yaml:"webhookAddr,omitempty"`

	// PrometheusURL is the base URL polled for firing alerts.
	// Empty disables polling.
	PrometheusURL string `json:"prometheusURL,omitempty" yaml:"prometheusURL,omitempty"`

	// PollPeriod is how often the poller queries Prometheus (stored as string).
	PollPeriodString string `json:"pollPeriod,omitempty" yaml:"pollPeriod,omitempty"`

	// Parsed duration (not serialized)
	PollPeriod time.Duration `json:"-" yaml:"-"`
}

// NotifyConfig configures the Telegram notification transport.
type NotifyConfig struct {
	// TelegramToken is the bot API token. Empty disables notifications.
	TelegramToken string `json:"telegramToken,omitempty" yaml:"telegramToken,omitempty"`

	// TelegramChatID is the destination chat.
	TelegramChatID string `json:"telegramChatID,omitempty" yaml:"telegramChatID,omitempty"`

	// Timeout bounds each delivery attempt (stored as string).
	TimeoutString string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Parsed duration (not serialized)
	Timeout time.Duration `json:"-" yaml:"-"`
}

// MetricsConfig configures the Prometheus exposition server.
type MetricsConfig struct {
	// Enabled controls whether the metrics server runs.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Path is the scrape path.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// CleanupConfig bounds the log pruning performed by the cleanup action.
type CleanupConfig struct {
	// LogDir is the directory pruned for old log files. Empty disables
	// log pruning (system prune still runs).
	LogDir string `json:"logDir,omitempty" yaml:"logDir,omitempty"`

	// MaxAgeDays deletes *.log files older than this many days.
	MaxAgeDays int `json:"maxAgeDays,omitempty" yaml:"maxAgeDays,omitempty"`

	// MaxFiles caps how many files one cleanup pass may delete.
	MaxFiles int `json:"maxFiles,omitempty" yaml:"maxFiles,omitempty"`
}

// ApplyDefaults fills unset fields with defaults and parses the string
// duration fields. It must be called before Validate.
func (c *Config) ApplyDefaults() error {
	s := &c.Settings

	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = DefaultLogFormat
	}
	if s.TickIntervalString == "" {
		s.TickIntervalString = DefaultTickInterval
	}
	if s.ActionTimeoutString == "" {
		s.ActionTimeoutString = DefaultActionTimeout
	}
	if s.OptOutLabel == "" {
		s.OptOutLabel = DefaultOptOutLabel
	}
	if s.OptOutValue == "" {
		s.OptOutValue = DefaultOptOutValue
	}
	if s.RestartStormThreshold == 0 {
		s.RestartStormThreshold = DefaultStormThreshold
	}
	if s.HistorySize == 0 {
		s.HistorySize = DefaultHistorySize
	}

	var err error
	s.TickInterval, err = time.ParseDuration(s.TickIntervalString)
	if err != nil {
		return fmt.Errorf("invalid tickInterval %q: %w", s.TickIntervalString, err)
	}
	s.ActionTimeout, err = time.ParseDuration(s.ActionTimeoutString)
	if err != nil {
		return fmt.Errorf("invalid actionTimeout %q: %w", s.ActionTimeoutString, err)
	}

	for kind, override := range c.Strategies {
		if override.CooldownString != "" {
			override.Cooldown, err = time.ParseDuration(override.CooldownString)
			if err != nil {
				return fmt.Errorf("invalid cooldown for strategy %q: %w", kind, err)
			}
			c.Strategies[kind] = override
		}
	}

	if c.Alerts.PollPeriodString == "" {
		c.Alerts.PollPeriodString = DefaultAlertPollPeriod
	}
	c.Alerts.PollPeriod, err = time.ParseDuration(c.Alerts.PollPeriodString)
	if err != nil {
		return fmt.Errorf("invalid alert pollPeriod %q: %w", c.Alerts.PollPeriodString, err)
	}

	if c.Notify.TimeoutString == "" {
		c.Notify.TimeoutString = DefaultNotifyTimeout
	}
	c.Notify.Timeout, err = time.ParseDuration(c.Notify.TimeoutString)
	if err != nil {
		return fmt.Errorf("invalid notify timeout %q: %w", c.Notify.TimeoutString, err)
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Cleanup.MaxAgeDays == 0 {
		c.Cleanup.MaxAgeDays = DefaultCleanupMaxAgeDays
	}

	return nil
}

// Validate checks the configuration for errors. A validation failure is a
// ConfigurationError: the daemon must refuse to start.
func (c *Config) Validate() error {
	s := &c.Settings

	if s.TickInterval < MinTickInterval {
		return fmt.Errorf("tickInterval %v is below minimum %v", s.TickInterval, MinTickInterval)
	}
	if s.ActionTimeout < MinActionTimeout {
		return fmt.Errorf("actionTimeout %v is below minimum %v", s.ActionTimeout, MinActionTimeout)
	}
	if s.RestartStormThreshold < 0 {
		return fmt.Errorf("restartStormThreshold cannot be negative, got %d", s.RestartStormThreshold)
	}
	if s.HistorySize < 0 {
		return fmt.Errorf("historySize cannot be negative, got %d", s.HistorySize)
	}

	for kind, override := range c.Strategies {
		if !FailureKind(kind).Valid() {
			return fmt.Errorf("strategy override for unknown failure kind %q", kind)
		}
		if override.Action != "" && !Action(override.Action).Valid() {
			return fmt.Errorf("strategy override for kind %q names unknown action %q", kind, override.Action)
		}
		if override.CooldownString != "" && override.Cooldown <= 0 {
			return fmt.Errorf("strategy override for kind %q has non-positive cooldown %v", kind, override.Cooldown)
		}
		if override.MaxAttempts < 0 {
			return fmt.Errorf("strategy override for kind %q has negative maxAttempts %d", kind, override.MaxAttempts)
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		return fmt.Errorf("notify.telegramChatID must be set when notify.telegramToken is set")
	}

	if c.Cleanup.MaxAgeDays < 0 {
		return fmt.Errorf("cleanup.maxAgeDays cannot be negative, got %d", c.Cleanup.MaxAgeDays)
	}
	if c.Cleanup.MaxFiles < 0 {
		return fmt.Errorf("cleanup.maxFiles cannot be negative, got %d", c.Cleanup.MaxFiles)
	}

	return nil
}

// SubstituteEnvVars expands ${VAR} references in string fields whose values
// commonly carry secrets. File-level expansion happens before parsing; this
// covers values injected programmatically.
func (c *Config) SubstituteEnvVars() {
	c.Notify.TelegramToken = os.ExpandEnv(c.Notify.TelegramToken)
	c.Notify.TelegramChatID = os.ExpandEnv(c.Notify.TelegramChatID)
	c.Alerts.PrometheusURL = os.ExpandEnv(c.Alerts.PrometheusURL)
}
