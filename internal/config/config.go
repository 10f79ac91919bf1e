package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration for a run. It is populated from
// defaults, an optional YAML config file, REQS_* environment variables, and
// command-line flags (highest priority), then treated as read-only.
type Config struct {
	Network NetworkConfig `yaml:"network" mapstructure:"network"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Filter  FilterConfig  `yaml:"filter" mapstructure:"filter"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	MCP     bool          `yaml:"mcp" mapstructure:"mcp"`
}

// NetworkConfig controls transport-level request policy.
type NetworkConfig struct {
	// Timeout is the per-attempt budget in seconds, covering connect,
	// send, and body read.
	Timeout int `yaml:"timeout" mapstructure:"timeout"`
	// Retry is the number of additional attempts after a failure.
	Retry int `yaml:"retry" mapstructure:"retry"`
	// Delay is the fixed sleep between retries in milliseconds.
	Delay int `yaml:"delay" mapstructure:"delay"`
	// Concurrency caps simultaneous requests; 0 means unlimited.
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	Proxy       string `yaml:"proxy" mapstructure:"proxy"`
	VerifySSL   bool   `yaml:"verify_ssl" mapstructure:"verify_ssl"`
	// RateLimit caps request starts per second; 0 disables the limiter.
	RateLimit int `yaml:"rate_limit" mapstructure:"rate_limit"`
	// RandomDelay is a "min:max" millisecond range slept before every
	// attempt; empty disables jitter.
	RandomDelay string `yaml:"random_delay" mapstructure:"random_delay"`
}

// HTTPConfig controls the shape of each outgoing request.
type HTTPConfig struct {
	FollowRedirect bool     `yaml:"follow_redirect" mapstructure:"follow_redirect"`
	HTTP2          bool     `yaml:"http2" mapstructure:"http2"`
	Headers        []string `yaml:"headers" mapstructure:"headers"`
}

// OutputConfig controls record rendering and the sink.
type OutputConfig struct {
	File         string `yaml:"file" mapstructure:"file"`
	Format       string `yaml:"format" mapstructure:"format"`
	Template     string `yaml:"template" mapstructure:"template"`
	IncludeReq   bool   `yaml:"include_req" mapstructure:"include_req"`
	IncludeRes   bool   `yaml:"include_res" mapstructure:"include_res"`
	IncludeTitle bool   `yaml:"include_title" mapstructure:"include_title"`
	NoColor      bool   `yaml:"no_color" mapstructure:"no_color"`
}

// FilterConfig holds the raw, uncompiled record filters.
type FilterConfig struct {
	Status []int  `yaml:"status" mapstructure:"status"`
	String string `yaml:"string" mapstructure:"string"`
	Regex  string `yaml:"regex" mapstructure:"regex"`
}

// LogConfig log configuration
type LogConfig struct {
	Level       string        `yaml:"level" mapstructure:"level"`
	FileLogging FileLogConfig `yaml:"file_logging" mapstructure:"file_logging"`
}

// FileLogConfig file log configuration
type FileLogConfig struct {
	Enable     bool   `yaml:"enable" mapstructure:"enable"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// Output formats accepted by --format.
const (
	FormatPlain = "plain"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// LoadConfig loads configuration from the given file (or the default
// search paths), environment, and the supplied viper instance. If v is
// nil a fresh instance is created.
func LoadConfig(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("REQS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reqs")
		v.AddConfigPath("/etc/reqs")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults plus flags apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the documented default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("network.timeout", 10)
	v.SetDefault("network.retry", 0)
	v.SetDefault("network.delay", 0)
	v.SetDefault("network.concurrency", 0)
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.verify_ssl", false)
	v.SetDefault("network.rate_limit", 0)
	v.SetDefault("network.random_delay", "")

	v.SetDefault("http.follow_redirect", false)
	v.SetDefault("http.http2", false)
	v.SetDefault("http.headers", []string{})

	v.SetDefault("output.file", "")
	v.SetDefault("output.format", FormatPlain)
	v.SetDefault("output.template", "")
	v.SetDefault("output.include_req", false)
	v.SetDefault("output.include_res", false)
	v.SetDefault("output.include_title", false)
	v.SetDefault("output.no_color", false)

	v.SetDefault("filter.status", []int{})
	v.SetDefault("filter.string", "")
	v.SetDefault("filter.regex", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_logging.enable", false)
	v.SetDefault("log.file_logging.path", "./reqs.log")
	v.SetDefault("log.file_logging.max_size_mb", 10)
	v.SetDefault("log.file_logging.max_backups", 5)
	v.SetDefault("log.file_logging.max_age_days", 30)
	v.SetDefault("log.file_logging.compress", true)
}

// Validate front-loads configuration errors so they are fatal at startup
// rather than surfacing mid-run.
func (c *Config) Validate() error {
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Network.Timeout)
	}
	if c.Network.Retry < 0 {
		return fmt.Errorf("retry cannot be negative")
	}
	if c.Network.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.Network.Concurrency < 0 {
		return fmt.Errorf("concurrency cannot be negative")
	}
	if c.Network.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.Network.RandomDelay != "" {
		if _, _, err := ParseDelayRange(c.Network.RandomDelay); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Output.Format) {
	case "", FormatPlain, FormatJSONL, FormatCSV:
		if c.Output.Format == "" {
			c.Output.Format = FormatPlain
		} else {
			c.Output.Format = strings.ToLower(c.Output.Format)
		}
	default:
		return fmt.Errorf("format must be plain, jsonl, or csv, got %q", c.Output.Format)
	}

	for _, code := range c.Filter.Status {
		if code < 0 || code > 999 {
			return fmt.Errorf("filter status %d out of range", code)
		}
	}
	if c.Filter.Regex != "" {
		if _, err := regexp.Compile(c.Filter.Regex); err != nil {
			return fmt.Errorf("invalid filter regex: %w", err)
		}
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.Log.FileLogging.Enable {
		if c.Log.FileLogging.Path == "" {
			return fmt.Errorf("log file path cannot be empty when file logging is enabled")
		}
		if c.Log.FileLogging.MaxSizeMB < 1 {
			return fmt.Errorf("log file max size must be at least 1MB")
		}
	}

	return nil
}

// ParseDelayRange parses a "min:max" millisecond range.
func ParseDelayRange(value string) (min, max time.Duration, err error) {
	left, right, ok := strings.Cut(value, ":")
	if !ok {
		return 0, 0, fmt.Errorf("random delay must be MIN:MAX milliseconds, got %q", value)
	}
	lo, err := strconv.ParseInt(strings.TrimSpace(left), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("random delay min %q is not a number", left)
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(right), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("random delay max %q is not a number", right)
	}
	if lo < 0 || hi < lo {
		return 0, 0, fmt.Errorf("random delay range %q must satisfy 0 <= min <= max", value)
	}
	return time.Duration(lo) * time.Millisecond, time.Duration(hi) * time.Millisecond, nil
}
