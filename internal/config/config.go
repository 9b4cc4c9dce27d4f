package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"alerteval/internal/domain"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultListen        = ":8080"
	defaultHealthPath    = "/healthz"
	defaultReadyPath     = "/readyz"
	defaultMetricsPath   = "/metrics"
	defaultSweepSeconds  = 60
	defaultBackfillDepth = 3
	defaultMaxConcurrent = 4
	defaultQueryTimeout  = 15
	defaultStoreBackend  = "memory"
	defaultNATSURL       = "nats://127.0.0.1:4222"
	defaultNATSBucket    = "alerteval"
	defaultLogLevel      = "info"
	defaultLogFormat     = "line"

	// StoreBackendMemory keeps all state in process memory.
	StoreBackendMemory = "memory"
	// StoreBackendNATS persists state in a JetStream KV bucket.
	StoreBackendNATS = "nats"

	// SourceKindHTTP queries a remote aggregation endpoint.
	SourceKindHTTP = "http"
	// SourceKindMemory uses the seedable in-process source.
	SourceKindMemory = "memory"

	// ChannelKindTelegram identifies the chat-style Telegram channel.
	ChannelKindTelegram = "telegram"
	// ChannelKindWebhook identifies the generic JSON webhook channel.
	ChannelKindWebhook = "webhook"
)

// Config holds service runtime settings, channels, and alert definitions.
// Params: TOML sections from one config file.
// Returns: validated runtime configuration.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Log     LogConfig     `toml:"log"`
	Store   StoreConfig   `toml:"store"`
	Source  SourceConfig  `toml:"source"`
	Notify  NotifyConfig  `toml:"notify"`
	Alert   []AlertConfig `toml:"alert"`
}

// ServiceConfig contains process-level settings.
// Params: name, HTTP listener, sweep cadence, and evaluation knobs.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name             string `toml:"name"`
	Listen           string `toml:"listen"`
	HealthPath       string `toml:"health_path"`
	ReadyPath        string `toml:"ready_path"`
	MetricsPath      string `toml:"metrics_path"`
	SweepIntervalSec int    `toml:"sweep_interval_sec"`
	BackfillDepth    int    `toml:"backfill_depth"`
	MaxConcurrent    int    `toml:"max_concurrent"`
	BaseURL          string `toml:"base_url"`
}

// LogConfig defines logging sinks.
// Params: console and file sink settings.
// Returns: logging behavior.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig configures one log sink.
// Params: toggle, minimum level, output format, and file path for file sinks.
// Returns: sink behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// StoreConfig selects and configures the state backend.
// Params: backend name and NATS settings.
// Returns: store behavior.
type StoreConfig struct {
	Backend string          `toml:"backend"`
	NATS    NATSStoreConfig `toml:"nats"`
}

// NATSStoreConfig contains JetStream KV settings for the state backend.
// Params: server URLs, bucket name, and bucket auto-create toggle.
// Returns: NATS state backend options.
type NATSStoreConfig struct {
	URL               []string `toml:"url"`
	Bucket            string   `toml:"bucket"`
	AllowCreateBucket bool     `toml:"allow_create_bucket"`
}

// SourceConfig selects and configures the data source.
// Params: source kind and HTTP endpoint settings.
// Returns: data source options.
type SourceConfig struct {
	Kind       string `toml:"kind"`
	Endpoint   string `toml:"endpoint"`
	Token      string `toml:"token"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// NotifyConfig defines outbound notification behavior.
// Params: retry policy and the named channel registry.
// Returns: notification controls.
type NotifyConfig struct {
	Retry   NotifyRetry     `toml:"retry"`
	Channel []ChannelConfig `toml:"channel"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff strategy, and attempt limits.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled     bool   `toml:"enabled"`
	Backoff     string `toml:"backoff"`
	InitialMS   int    `toml:"initial_ms"`
	MaxMS       int    `toml:"max_ms"`
	MaxAttempts int    `toml:"max_attempts"`
}

// ChannelConfig describes one named notification channel.
// Params: name referenced from alerts and shorthand, kind, and transport
// settings (webhook URL/templates or Telegram token/chat).
// Returns: registry entry resolved by the dispatcher.
type ChannelConfig struct {
	Name         string            `toml:"name"`
	Kind         string            `toml:"kind"`
	URL          string            `toml:"url"`
	Headers      map[string]string `toml:"headers"`
	BodyTemplate string            `toml:"body_template"`
	BotToken     string            `toml:"bot_token"`
	ChatID       string            `toml:"chat_id"`
	APIBase      string            `toml:"api_base"`
	TimeoutSec   int               `toml:"timeout_sec"`
}

// AlertConfig describes one alert definition from TOML.
// Params: alert fields with duration expressed in seconds.
// Returns: raw alert body normalized by ToDomain.
type AlertConfig struct {
	ID          string            `toml:"id"`
	Name        string            `toml:"name"`
	Mode        string            `toml:"mode"`
	Threshold   float64           `toml:"threshold"`
	IntervalSec int               `toml:"interval_sec"`
	GroupBy     []string          `toml:"group_by"`
	Channel     string            `toml:"channel"`
	Message     string            `toml:"message"`
	Query       QueryConfig       `toml:"query"`
	Details     DetailsConfig     `toml:"details"`
	Attributes  map[string]string `toml:"attributes"`
}

// QueryConfig references the evaluated query.
// Params: source id and filter expression.
// Returns: query descriptor body.
type QueryConfig struct {
	SourceID string `toml:"source_id"`
	Query    string `toml:"query"`
}

// DetailsConfig mirrors the alert detail variant in TOML.
// Params: kind discriminant plus one populated sub-table.
// Returns: raw detail body normalized by ToDomain.
type DetailsConfig struct {
	Kind        string                   `toml:"kind"`
	SavedSearch *SavedSearchDetailConfig `toml:"saved_search"`
	Tile        *TileDetailConfig        `toml:"tile"`
}

// SavedSearchDetailConfig is the saved-search variant body.
// Params: search id and raw query.
// Returns: detail payload.
type SavedSearchDetailConfig struct {
	SearchID string `toml:"search_id"`
	Query    string `toml:"query"`
}

// TileDetailConfig is the dashboard-tile variant body.
// Params: dashboard and tile ids.
// Returns: detail payload.
type TileDetailConfig struct {
	DashboardID string `toml:"dashboard_id"`
	TileID      string `toml:"tile_id"`
}

// Load reads and validates one TOML config file.
// Params: config file path.
// Returns: normalized configuration or load/validation error.
func Load(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	return Parse(body)
}

// Parse decodes and validates one TOML config document.
// Params: raw TOML bytes.
// Returns: normalized configuration or decode/validation error.
func Parse(body []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with runtime defaults.
// Params: decoded configuration (mutated in place).
// Returns: configuration ready for validation.
func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "alerteval"
	}
	if c.Service.Listen == "" {
		c.Service.Listen = defaultListen
	}
	if c.Service.HealthPath == "" {
		c.Service.HealthPath = defaultHealthPath
	}
	if c.Service.ReadyPath == "" {
		c.Service.ReadyPath = defaultReadyPath
	}
	if c.Service.MetricsPath == "" {
		c.Service.MetricsPath = defaultMetricsPath
	}
	if c.Service.SweepIntervalSec <= 0 {
		c.Service.SweepIntervalSec = defaultSweepSeconds
	}
	if c.Service.BackfillDepth <= 0 {
		c.Service.BackfillDepth = defaultBackfillDepth
	}
	if c.Service.MaxConcurrent <= 0 {
		c.Service.MaxConcurrent = defaultMaxConcurrent
	}

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}
	applySinkDefaults(&c.Log.Console)
	applySinkDefaults(&c.Log.File)

	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if len(c.Store.NATS.URL) == 0 {
		c.Store.NATS.URL = []string{defaultNATSURL}
	}
	if c.Store.NATS.Bucket == "" {
		c.Store.NATS.Bucket = defaultNATSBucket
	}

	if c.Source.Kind == "" {
		c.Source.Kind = SourceKindMemory
	}
	if c.Source.TimeoutSec <= 0 {
		c.Source.TimeoutSec = defaultQueryTimeout
	}
}

// applySinkDefaults fills one log sink's unset fields.
// Params: sink pointer (mutated in place).
// Returns: sink with level/format defaults.
func applySinkDefaults(sink *LogSinkConfig) {
	if sink.Level == "" {
		sink.Level = defaultLogLevel
	}
	if sink.Format == "" {
		sink.Format = defaultLogFormat
	}
}

// Validate validates the full configuration.
// Params: configuration after defaults.
// Returns: first validation error found.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendMemory, StoreBackendNATS:
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}

	switch c.Source.Kind {
	case SourceKindMemory:
	case SourceKindHTTP:
		if strings.TrimSpace(c.Source.Endpoint) == "" {
			return errors.New("source endpoint is required for kind=http")
		}
	default:
		return fmt.Errorf("unsupported source kind %q", c.Source.Kind)
	}

	seenChannels := make(map[string]struct{}, len(c.Notify.Channel))
	for i, channel := range c.Notify.Channel {
		if err := channel.Validate(); err != nil {
			return fmt.Errorf("notify.channel[%d]: %w", i, err)
		}
		key := strings.ToLower(channel.Name)
		if _, dup := seenChannels[key]; dup {
			return fmt.Errorf("notify.channel[%d]: duplicate channel name %q", i, channel.Name)
		}
		seenChannels[key] = struct{}{}
	}

	seenAlerts := make(map[string]struct{}, len(c.Alert))
	for i, alert := range c.Alert {
		parsed, err := alert.ToDomain()
		if err != nil {
			return fmt.Errorf("alert[%d]: %w", i, err)
		}
		if _, dup := seenAlerts[parsed.ID]; dup {
			return fmt.Errorf("alert[%d]: duplicate alert id %q", i, parsed.ID)
		}
		seenAlerts[parsed.ID] = struct{}{}
		if alert.Channel != "" {
			if _, ok := seenChannels[strings.ToLower(alert.Channel)]; !ok {
				return fmt.Errorf("alert[%d]: unknown channel %q", i, alert.Channel)
			}
		}
	}
	return nil
}

// Validate validates one channel entry.
// Params: channel fields from TOML.
// Returns: validation error when transport settings are incomplete.
func (ch ChannelConfig) Validate() error {
	if strings.TrimSpace(ch.Name) == "" {
		return errors.New("channel name is required")
	}
	switch ch.Kind {
	case ChannelKindWebhook:
		if strings.TrimSpace(ch.URL) == "" {
			return errors.New("webhook url is required")
		}
	case ChannelKindTelegram:
		if strings.TrimSpace(ch.BotToken) == "" {
			return errors.New("telegram bot_token is required")
		}
		if strings.TrimSpace(ch.ChatID) == "" {
			return errors.New("telegram chat_id is required")
		}
	default:
		return fmt.Errorf("unsupported channel kind %q", ch.Kind)
	}
	return nil
}

// ToDomain normalizes one alert definition into the domain model.
// Params: raw TOML alert body.
// Returns: validated domain alert or configuration error.
func (a AlertConfig) ToDomain() (domain.Alert, error) {
	details := domain.AlertDetails{Kind: domain.DetailKind(a.Details.Kind)}
	if a.Details.SavedSearch != nil {
		details.SavedSearch = &domain.SavedSearchDetails{
			SearchID: a.Details.SavedSearch.SearchID,
			Query:    a.Details.SavedSearch.Query,
		}
	}
	if a.Details.Tile != nil {
		details.Tile = &domain.TileDetails{
			DashboardID: a.Details.Tile.DashboardID,
			TileID:      a.Details.Tile.TileID,
		}
	}

	alert := domain.Alert{
		ID:         a.ID,
		Name:       a.Name,
		Mode:       domain.ComparisonMode(strings.ToUpper(strings.TrimSpace(a.Mode))),
		Threshold:  a.Threshold,
		Interval:   time.Duration(a.IntervalSec) * time.Second,
		GroupBy:    a.GroupBy,
		Query:      domain.QueryDescriptor{SourceID: a.Query.SourceID, Query: a.Query.Query},
		Details:    details,
		ChannelRef: a.Channel,
		Message:    a.Message,
		Attributes: a.Attributes,
		State:      domain.AlertStateOK,
	}
	if err := alert.Validate(); err != nil {
		return domain.Alert{}, err
	}
	return alert, nil
}

// Alerts normalizes all configured alert definitions.
// Params: none.
// Returns: domain alerts in config order; Validate must have passed.
func (c Config) Alerts() ([]domain.Alert, error) {
	alerts := make([]domain.Alert, 0, len(c.Alert))
	for i, raw := range c.Alert {
		alert, err := raw.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("alert[%d]: %w", i, err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}
