package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Enabled   EnabledConfig   `json:"enabled" yaml:"enabled"`
	Buffers   BuffersConfig   `json:"buffers" yaml:"buffers"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Flush     FlushConfig     `json:"flush" yaml:"flush"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Spool     SpoolConfig     `json:"spool" yaml:"spool"`
}

type SessionConfig struct {
	SessionID   string `json:"session_id" yaml:"session_id"`
	UserID      string `json:"user_id" yaml:"user_id"`
	Environment string `json:"environment" yaml:"environment"`
}

type EnabledConfig struct {
	Analytics    bool `json:"analytics" yaml:"analytics"`
	ErrorLogging bool `json:"error_logging" yaml:"error_logging"`
	Metrics      bool `json:"metrics" yaml:"metrics"`
}

type BuffersConfig struct {
	ErrorCapacity  int `json:"error_capacity" yaml:"error_capacity"`
	EventCapacity  int `json:"event_capacity" yaml:"event_capacity"`
	MetricCapacity int `json:"metric_capacity" yaml:"metric_capacity"`
}

type DetectionConfig struct {
	Window          time.Duration `json:"window" yaml:"window"`
	HighErrorRate   int           `json:"high_error_rate" yaml:"high_error_rate"`
	CriticalErrors  int           `json:"critical_errors" yaml:"critical_errors"`
	APIFailures     int           `json:"api_failures" yaml:"api_failures"`
	MemoryRunLength int           `json:"memory_run_length" yaml:"memory_run_length"`
	AlertCooldown   time.Duration `json:"alert_cooldown" yaml:"alert_cooldown"`
	DedupeWindow    time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	MaxStackLength  int           `json:"max_stack_length" yaml:"max_stack_length"`
	DedupeCacheSize int           `json:"dedupe_cache_size" yaml:"dedupe_cache_size"`
}

type FlushConfig struct {
	Interval          time.Duration `json:"interval" yaml:"interval"`
	MemorySample      time.Duration `json:"memory_sample" yaml:"memory_sample"`
	BestEffortTimeout time.Duration `json:"best_effort_timeout" yaml:"best_effort_timeout"`
}

type TransportConfig struct {
	Driver     string            `json:"driver" yaml:"driver"`
	EventsURL  string            `json:"events_url" yaml:"events_url"`
	ErrorsURL  string            `json:"errors_url" yaml:"errors_url"`
	MetricsURL string            `json:"metrics_url" yaml:"metrics_url"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
	Timeout    time.Duration     `json:"timeout" yaml:"timeout"`
	Kafka      KafkaConfig       `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type SpoolConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Session: SessionConfig{
			Environment: "production",
		},
		Enabled: EnabledConfig{
			Analytics:    true,
			ErrorLogging: true,
			Metrics:      true,
		},
		Buffers: BuffersConfig{
			ErrorCapacity:  500,
			EventCapacity:  1000,
			MetricCapacity: 1000,
		},
		Detection: DetectionConfig{
			Window:          60 * time.Second,
			HighErrorRate:   10,
			CriticalErrors:  3,
			APIFailures:     5,
			MemoryRunLength: 5,
			AlertCooldown:   60 * time.Second,
			DedupeWindow:    1 * time.Second,
			MaxStackLength:  4096,
			DedupeCacheSize: 1024,
		},
		Flush: FlushConfig{
			Interval:          30 * time.Second,
			MemorySample:      30 * time.Second,
			BestEffortTimeout: 2 * time.Second,
		},
		Transport: TransportConfig{
			Driver:  "http",
			Timeout: 10 * time.Second,
		},
		Spool: SpoolConfig{
			Enabled: false,
			Driver:  "sqlite",
			DSN:     "file:pagepulse.db?_pragma=busy_timeout(5000)",
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

// ApplyDefaults fills zero values so hosts can construct a partial Config
// without going through Load.
func ApplyDefaults(cfg *Config) {
	if cfg.Session.SessionID == "" {
		cfg.Session.SessionID = uuid.NewString()
	}
	if cfg.Session.Environment == "" {
		cfg.Session.Environment = "production"
	}
	if cfg.Buffers.ErrorCapacity <= 0 {
		cfg.Buffers.ErrorCapacity = 500
	}
	if cfg.Buffers.EventCapacity <= 0 {
		cfg.Buffers.EventCapacity = 1000
	}
	if cfg.Buffers.MetricCapacity <= 0 {
		cfg.Buffers.MetricCapacity = 1000
	}
	if cfg.Detection.Window <= 0 {
		cfg.Detection.Window = 60 * time.Second
	}
	if cfg.Detection.HighErrorRate <= 0 {
		cfg.Detection.HighErrorRate = 10
	}
	if cfg.Detection.CriticalErrors <= 0 {
		cfg.Detection.CriticalErrors = 3
	}
	if cfg.Detection.APIFailures <= 0 {
		cfg.Detection.APIFailures = 5
	}
	if cfg.Detection.MemoryRunLength <= 0 {
		cfg.Detection.MemoryRunLength = 5
	}
	if cfg.Detection.AlertCooldown <= 0 {
		cfg.Detection.AlertCooldown = cfg.Detection.Window
	}
	if cfg.Detection.MaxStackLength <= 0 {
		cfg.Detection.MaxStackLength = 4096
	}
	if cfg.Detection.DedupeCacheSize <= 0 {
		cfg.Detection.DedupeCacheSize = 1024
	}
	if cfg.Flush.Interval <= 0 {
		cfg.Flush.Interval = 30 * time.Second
	}
	if cfg.Flush.BestEffortTimeout <= 0 {
		cfg.Flush.BestEffortTimeout = 2 * time.Second
	}
	if cfg.Transport.Driver == "" {
		cfg.Transport.Driver = "http"
	}
	if cfg.Transport.Timeout <= 0 {
		cfg.Transport.Timeout = 10 * time.Second
	}
	if cfg.Spool.Driver == "" {
		cfg.Spool.Driver = "sqlite"
	}
}

func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Transport.Driver) {
	case "http":
		if cfg.Transport.EventsURL == "" {
			return errors.New("transport.events_url required for the http driver")
		}
	case "kafka":
		if len(cfg.Transport.Kafka.Brokers) == 0 || cfg.Transport.Kafka.Topic == "" {
			return errors.New("transport.kafka requires brokers and topic")
		}
	default:
		return fmt.Errorf("unsupported transport driver: %q", cfg.Transport.Driver)
	}
	if cfg.Session.Environment != "production" && cfg.Session.Environment != "debug" {
		return fmt.Errorf("session.environment must be production or debug, got %q", cfg.Session.Environment)
	}
	if cfg.Detection.Window <= 0 {
		return errors.New("detection.window must be > 0")
	}
	if cfg.Spool.Enabled {
		driver := strings.ToLower(cfg.Spool.Driver)
		if driver != "sqlite" && driver != "postgres" && driver != "postgresql" {
			return fmt.Errorf("unsupported spool driver: %q", cfg.Spool.Driver)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if info, err := os.Stat(path); err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

// Watch polls the config file and invokes onReload when it changes. Used by
// hosts that want threshold overrides applied without a restart.
func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}
