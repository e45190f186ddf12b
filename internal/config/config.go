// Package config exposes strongly typed application configuration structs loaded from YAML,
// with environment overrides for deployment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:5000/api"
	DefaultPollIntervalMs = 3000
	DefaultTimeoutMs      = 10000
	DefaultSymbol         = "AAPL"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
}

// Backend points at the analytics service.
type Backend struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	UserAgent string `yaml:"user_agent"`
}

// Quotes configures the live price poll.
type Quotes struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
	// Provider is "backend" (default) or "binance" to stream crypto prices directly.
	Provider   string `yaml:"provider"`
	BinanceURL string `yaml:"binance_url"`
}

// Widget mirrors the display options of the embedded chart widget.
type Widget struct {
	Interval string `yaml:"interval"`
	Timezone string `yaml:"timezone"`
	Theme    string `yaml:"theme"`
	Locale   string `yaml:"locale"`
}

// Chart configures rendering of the analytics chart.
type Chart struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Widget Widget `yaml:"widget"`
}

// Dashboard holds terminal UI preferences.
type Dashboard struct {
	DefaultSymbol string `yaml:"default_symbol"`
	ExportDir     string `yaml:"export_dir"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Backend   Backend   `yaml:"backend"`
	Quotes    Quotes    `yaml:"quotes"`
	Chart     Chart     `yaml:"chart"`
	Dashboard Dashboard `yaml:"dashboard"`
}

// Load reads a YAML file from disk, applies .env and environment overrides, then defaults.
// A missing file is not an error: the defaults describe a local setup.
func Load(path string) (*Config, error) {
	var config Config
	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	_ = godotenv.Load() // best-effort
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("STOCK_API_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("STOCK_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv("STOCK_METRICS_ADDR"); v != "" {
		c.App.MetricsAddr = v
	}
	if v := os.Getenv("STOCK_DEFAULT_SYMBOL"); v != "" {
		c.Dashboard.DefaultSymbol = v
	}
	if v := os.Getenv("STOCK_QUOTE_PROVIDER"); v != "" {
		c.Quotes.Provider = v
	}
	if v := os.Getenv("STOCK_POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOCK_POLL_INTERVAL_MS: %w", err)
		}
		c.Quotes.PollIntervalMs = ms
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "stock-market"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBaseURL
	}
	if c.Backend.TimeoutMs <= 0 {
		c.Backend.TimeoutMs = DefaultTimeoutMs
	}
	if c.Quotes.PollIntervalMs <= 0 {
		c.Quotes.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Quotes.Provider == "" {
		c.Quotes.Provider = "backend"
	}
	if c.Dashboard.DefaultSymbol == "" {
		c.Dashboard.DefaultSymbol = DefaultSymbol
	}
	if c.Dashboard.ExportDir == "" {
		c.Dashboard.ExportDir = "."
	}
	if c.Chart.Width <= 0 {
		c.Chart.Width = 900
	}
	if c.Chart.Height <= 0 {
		c.Chart.Height = 500
	}
}

// minChartSide leaves room for the SVG axis padding.
const minChartSide = 100

// Validate checks fields the program cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	switch c.Quotes.Provider {
	case "backend", "binance":
	default:
		return fmt.Errorf("quotes.provider must be backend or binance, got %q", c.Quotes.Provider)
	}
	if c.Quotes.PollIntervalMs < 100 {
		return fmt.Errorf("quotes.poll_interval_ms must be at least 100")
	}
	if tooSmall(c.Chart.Width) || tooSmall(c.Chart.Height) {
		return fmt.Errorf("chart size %dx%d is below the %dpx minimum", c.Chart.Width, c.Chart.Height, minChartSide)
	}
	return nil
}

// tooSmall reports a chart side that is set but cannot fit the axis padding.
// Zero falls back to the renderer default.
func tooSmall(side int) bool {
	return side > 0 && side < minChartSide
}

// PollInterval is the quote poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Quotes.PollIntervalMs) * time.Millisecond
}

// Timeout is the per-request timeout against the analytics service.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutMs) * time.Millisecond
}
