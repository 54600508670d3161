// Package config loads the collector configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, .env files
// (which never override variables already set), the process environment,
// and finally explicit command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rcourtman/pulse-disk-collector/internal/hostmetrics"
	"github.com/rcourtman/pulse-disk-collector/internal/smartctl"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultLogPath            = "/var/lib/pulse-disk-collector/disk_metrics.csv"
	DefaultToolTimeoutSeconds = 30.0
)

// DefaultServerSources is every server-level source in column order.
var DefaultServerSources = []string{
	"cpu", "memory", "paging", "tcp", "udp", "pps", "net_rx", "disk_util", "disk_summary", "loadavg",
}

// Environment variables.
const (
	EnvSmartAttributes = "PDC_SMART_ATTRIBUTES"
	EnvServerSources   = "PDC_SERVER_SOURCES"
	EnvToolTimeout     = "PDC_TOOL_TIMEOUT"
	EnvLogPath         = "PDC_LOG_PATH"
	EnvDiskExclude     = "PDC_DISK_EXCLUDE"
	EnvInterface       = "PDC_NET_INTERFACE"
	EnvSQLitePath      = "PDC_SQLITE_PATH"
	EnvAPIURL          = "API_URL"
	EnvMetricsTextfile = "PDC_METRICS_TEXTFILE"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvLogFile         = "LOG_FILE"
)

// Config is the effective collector configuration.
type Config struct {
	SmartAttributes      []int    `yaml:"smart_attributes"`
	EnabledServerSources []string `yaml:"enabled_server_sources"`
	ToolTimeoutSeconds   float64  `yaml:"tool_timeout_seconds"`
	LogPath              string   `yaml:"log_path"`

	DiskExclude      []string `yaml:"disk_exclude,omitempty"`
	NetworkInterface string   `yaml:"network_interface,omitempty"`
	SQLitePath       string   `yaml:"sqlite_path,omitempty"`
	APIURL           string   `yaml:"api_url,omitempty"`
	MetricsTextfile  string   `yaml:"metrics_textfile,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file,omitempty"`

	// EnvOverrides records which keys came from the environment.
	EnvOverrides map[string]bool `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SmartAttributes:      append([]int(nil), smartctl.DefaultAttributes...),
		EnabledServerSources: append([]string(nil), DefaultServerSources...),
		ToolTimeoutSeconds:   DefaultToolTimeoutSeconds,
		LogPath:              DefaultLogPath,
		LogLevel:             "info",
		LogFormat:            "auto",
		EnvOverrides:         make(map[string]bool),
	}
}

// Load builds the configuration. configFile may be empty; a named file that
// cannot be read is an error.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
		log.Debug().Str("file", configFile).Msg("Loaded configuration file")
	}

	loadDotEnv(filepath.Join(filepath.Dir(cfg.LogPath), ".env"))
	loadDotEnv(".env")

	cfg.applyEnv()
	return cfg, nil
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to load .env file")
		return
	}
	log.Debug().Str("file", path).Msg("Loaded .env file")
}

func (c *Config) applyEnv() {
	if c.EnvOverrides == nil {
		c.EnvOverrides = make(map[string]bool)
	}

	if v := os.Getenv(EnvSmartAttributes); v != "" {
		if ids, err := ParseIDList(v); err == nil {
			c.SmartAttributes = ids
			c.EnvOverrides["smart_attributes"] = true
		} else {
			log.Warn().Err(err).Str("env", EnvSmartAttributes).Msg("Ignoring invalid SMART attribute list")
		}
	}
	if v := os.Getenv(EnvServerSources); v != "" {
		c.EnabledServerSources = SplitList(v)
		c.EnvOverrides["enabled_server_sources"] = true
	}
	if v := os.Getenv(EnvToolTimeout); v != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.ToolTimeoutSeconds = secs
			c.EnvOverrides["tool_timeout_seconds"] = true
		} else {
			log.Warn().Err(err).Str("env", EnvToolTimeout).Msg("Ignoring invalid tool timeout")
		}
	}
	if v := os.Getenv(EnvDiskExclude); v != "" {
		c.DiskExclude = SplitList(v)
		c.EnvOverrides["disk_exclude"] = true
	}

	strs := []struct {
		env, key string
		dst      *string
	}{
		{EnvLogPath, "log_path", &c.LogPath},
		{EnvInterface, "network_interface", &c.NetworkInterface},
		{EnvSQLitePath, "sqlite_path", &c.SQLitePath},
		{EnvAPIURL, "api_url", &c.APIURL},
		{EnvMetricsTextfile, "metrics_textfile", &c.MetricsTextfile},
		{EnvLogLevel, "log_level", &c.LogLevel},
		{EnvLogFormat, "log_format", &c.LogFormat},
		{EnvLogFile, "log_file", &c.LogFile},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(os.Getenv(s.env)); v != "" {
			*s.dst = v
			c.EnvOverrides[s.key] = true
		}
	}
}

// ToolTimeout converts the configured seconds to a duration.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds * float64(time.Second))
}

// Validate checks the configuration. Unknown source names and out-of-range
// SMART IDs are rejected here so nothing downstream needs to.
func (c *Config) Validate() error {
	var errs []error

	if math.IsNaN(c.ToolTimeoutSeconds) || math.IsInf(c.ToolTimeoutSeconds, 0) || c.ToolTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout_seconds must be a positive number, got %v", c.ToolTimeoutSeconds))
	} else if c.ToolTimeout() <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout_seconds %v is below the timer resolution", c.ToolTimeoutSeconds))
	}
	if strings.TrimSpace(c.LogPath) == "" {
		errs = append(errs, errors.New("log_path is required"))
	}

	if len(c.SmartAttributes) == 0 {
		errs = append(errs, errors.New("smart_attributes must list at least one attribute ID"))
	}
	seen := make(map[int]bool, len(c.SmartAttributes))
	for _, id := range c.SmartAttributes {
		if id < 1 || id > 255 {
			errs = append(errs, fmt.Errorf("smart attribute ID %d is outside 1..255", id))
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("smart attribute ID %d is listed twice", id))
		}
		seen[id] = true
	}

	known := hostmetrics.Sources()
	for _, name := range c.EnabledServerSources {
		if _, ok := known[name]; !ok {
			errs = append(errs, fmt.Errorf("unknown server source %q (known: %s)", name, strings.Join(KnownSources(), ", ")))
		}
	}

	if c.APIURL != "" && !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		errs = append(errs, fmt.Errorf("api_url must start with http:// or https://"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be auto, json or console, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// KnownSources lists valid enabled_server_sources names, sorted.
func KnownSources() []string {
	known := hostmetrics.Sources()
	names := make([]string, 0, len(known))
	for name := range known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// YAML renders the configuration as it would appear in a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// SplitList splits a comma or whitespace separated list, dropping empties.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ParseIDList parses "1,3,5" into attribute IDs.
func ParseIDList(s string) ([]int, error) {
	parts := SplitList(s)
	if len(parts) == 0 {
		return nil, errors.New("empty attribute list")
	}
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid attribute ID %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
