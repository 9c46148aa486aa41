package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samarkanov/airflow-smolagents/internal/calculator"
)

// Defaults applied by Load when a field is unset.
const (
	DefaultSourceURL    = "https://data.samarkanov.info/files/NASDAQ_20100401_30.txt"
	DefaultOutputPath   = "nasdaq_moving_average_report.html"
	DefaultWindow       = 30
	DefaultFetchTimeout = 30
	DefaultConcurrency  = 4
	DefaultControlAddr  = ":8080"
	DefaultRescanCron   = "0 */15 * * * *"
	DefaultSQLitePath   = "data/report_runs.db"
)

// DefaultTickers is the ticker list used when none is configured.
var DefaultTickers = []string{"AAPL", "GOOG", "MSFT", "AMZN"}

// Pipeline holds the per-run settings.
type Pipeline struct {
	Tickers             []string `yaml:"tickers" json:"tickers"`
	Window              int      `yaml:"window" json:"window"`
	SourceURL           string   `yaml:"source_url" json:"source_url"`
	OutputPath          string   `yaml:"output_path" json:"output_path"`
	FetchTimeoutSeconds int      `yaml:"fetch_timeout_seconds" json:"-"`
	Concurrency         int      `yaml:"concurrency" json:"-"`

	// WindowSet records an explicit window so that 0 is validated rather than defaulted.
	WindowSet bool `yaml:"-" json:"-"`
}

// UnmarshalYAML decodes p, rejecting any window that is not a YAML integer.
func (p *Pipeline) UnmarshalYAML(node *yaml.Node) error {
	type plain Pipeline
	windowSet := false
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value != "window" {
				continue
			}
			v := node.Content[i+1]
			if v.Kind != yaml.ScalarNode || v.ShortTag() != "!!int" {
				return fmt.Errorf("line %d: window: %q is not an integer", v.Line, v.Value)
			}
			windowSet = true
		}
	}
	if err := node.Decode((*plain)(p)); err != nil {
		return err
	}
	p.WindowSet = p.WindowSet || windowSet
	return nil
}

// Config holds all application configuration.
type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
	Report   struct {
		Title string `yaml:"title"` // empty selects the report package default
	} `yaml:"report"`
	Control struct {
		Addr       string `yaml:"addr"`
		RescanCron string `yaml:"rescan_cron"`
		RunCron    string `yaml:"run_cron"`
	} `yaml:"control"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy    string `yaml:"proxy"`
	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("REPORT_TICKERS"); v != "" {
		cfg.Pipeline.Tickers = SplitTickers(v)
	}
	if v := os.Getenv("REPORT_WINDOW"); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REPORT_WINDOW: %q is not an integer", v)
		}
		cfg.Pipeline.Window = w
		cfg.Pipeline.WindowSet = true
	}
	if v := os.Getenv("REPORT_SOURCE_URL"); v != "" {
		cfg.Pipeline.SourceURL = v
	}
	if v := os.Getenv("REPORT_OUTPUT"); v != "" {
		cfg.Pipeline.OutputPath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("CONTROL_ADDR"); v != "" {
		cfg.Control.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Defaults
	if len(cfg.Pipeline.Tickers) == 0 {
		cfg.Pipeline.Tickers = append([]string(nil), DefaultTickers...)
	}
	if !cfg.Pipeline.WindowSet {
		cfg.Pipeline.Window = DefaultWindow
	}
	if cfg.Pipeline.SourceURL == "" {
		cfg.Pipeline.SourceURL = DefaultSourceURL
	}
	if cfg.Pipeline.OutputPath == "" {
		cfg.Pipeline.OutputPath = DefaultOutputPath
	}
	if cfg.Pipeline.FetchTimeoutSeconds == 0 {
		cfg.Pipeline.FetchTimeoutSeconds = DefaultFetchTimeout
	}
	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = DefaultConcurrency
	}
	if cfg.Control.Addr == "" {
		cfg.Control.Addr = DefaultControlAddr
	}
	if cfg.Control.RescanCron == "" {
		cfg.Control.RescanCron = DefaultRescanCron
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = DefaultSQLitePath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if err := calculator.ValidateWindow(c.Pipeline.Window); err != nil {
		return fmt.Errorf("pipeline.window: %w", err)
	}
	if problems := c.Pipeline.Validate(); len(problems) > 0 {
		return fmt.Errorf("pipeline: %s", strings.Join(problems, "; "))
	}
	if c.Pipeline.FetchTimeoutSeconds < 0 {
		return errors.New("pipeline.fetch_timeout_seconds must not be negative")
	}
	if c.Pipeline.Concurrency < 0 {
		return errors.New("pipeline.concurrency must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return errors.New("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
	}
	return nil
}

// Validate returns every problem with p; an empty result means p is runnable.
func (p Pipeline) Validate() []string {
	var problems []string

	if len(p.Tickers) == 0 {
		problems = append(problems, "tickers: at least one ticker is required")
	}
	seen := make(map[string]bool, len(p.Tickers))
	for i, t := range p.Tickers {
		switch {
		case strings.TrimSpace(t) == "":
			problems = append(problems, fmt.Sprintf("tickers[%d]: blank ticker", i))
		case seen[t]:
			problems = append(problems, fmt.Sprintf("tickers[%d]: duplicate ticker %q", i, t))
		}
		seen[t] = true
	}

	if p.Window <= 0 {
		problems = append(problems, fmt.Sprintf("window: must be a positive integer, got %d", p.Window))
	}

	if u, err := url.Parse(p.SourceURL); err != nil {
		problems = append(problems, fmt.Sprintf("source_url: %v", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("source_url: %q is not an http(s) URL", p.SourceURL))
	}

	if strings.TrimSpace(p.OutputPath) == "" {
		problems = append(problems, "output_path: required")
	}
	return problems
}

// Merge returns p with every non-zero field of override applied. An explicitly
// set window is applied even when zero.
func (p Pipeline) Merge(override Pipeline) Pipeline {
	if len(override.Tickers) > 0 {
		p.Tickers = override.Tickers
	}
	if override.WindowSet || override.Window != 0 {
		p.Window = override.Window
		p.WindowSet = true
	}
	if override.SourceURL != "" {
		p.SourceURL = override.SourceURL
	}
	if override.OutputPath != "" {
		p.OutputPath = override.OutputPath
	}
	return p
}

// FetchTimeout returns the configured fetch timeout.
func (p Pipeline) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSeconds) * time.Second
}

// SplitTickers parses a comma-separated ticker list, trimming blanks.
func SplitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	return out
}
