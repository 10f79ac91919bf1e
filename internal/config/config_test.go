package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", viper.New())
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.Network.Timeout != 10 {
		t.Errorf("Expected default timeout 10, got %d", cfg.Network.Timeout)
	}
	if cfg.Network.Retry != 0 {
		t.Errorf("Expected default retry 0, got %d", cfg.Network.Retry)
	}
	if cfg.Network.Concurrency != 0 {
		t.Errorf("Expected default concurrency 0 (unlimited), got %d", cfg.Network.Concurrency)
	}
	if cfg.Network.VerifySSL {
		t.Error("Expected SSL verification off by default")
	}
	if cfg.HTTP.FollowRedirect {
		t.Error("Expected follow redirect off by default in CLI mode")
	}
	if cfg.Output.Format != FormatPlain {
		t.Errorf("Expected default format plain, got %s", cfg.Output.Format)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("", viper.New())
		if err != nil {
			t.Fatalf("Failed to load default config: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:   "Defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:        "Zero timeout",
			mutate:      func(c *Config) { c.Network.Timeout = 0 },
			expectError: true,
		},
		{
			name:        "Negative retry",
			mutate:      func(c *Config) { c.Network.Retry = -1 },
			expectError: true,
		},
		{
			name:        "Bad random delay",
			mutate:      func(c *Config) { c.Network.RandomDelay = "100" },
			expectError: true,
		},
		{
			name:        "Inverted random delay",
			mutate:      func(c *Config) { c.Network.RandomDelay = "500:100" },
			expectError: true,
		},
		{
			name:   "Good random delay",
			mutate: func(c *Config) { c.Network.RandomDelay = "100:500" },
		},
		{
			name:        "Unknown format",
			mutate:      func(c *Config) { c.Output.Format = "xml" },
			expectError: true,
		},
		{
			name:   "Format case folded",
			mutate: func(c *Config) { c.Output.Format = "JSONL" },
		},
		{
			name:        "Bad filter regex",
			mutate:      func(c *Config) { c.Filter.Regex = "[unclosed" },
			expectError: true,
		},
		{
			name:   "Good filter regex",
			mutate: func(c *Config) { c.Filter.Regex = `admin\d+` },
		},
		{
			name:        "Bad log level",
			mutate:      func(c *Config) { c.Log.Level = "verbose" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestParseDelayRange(t *testing.T) {
	min, max, err := ParseDelayRange("100:500")
	if err != nil {
		t.Fatalf("Failed to parse range: %v", err)
	}
	if min != 100*time.Millisecond || max != 500*time.Millisecond {
		t.Errorf("Expected 100ms:500ms, got %v:%v", min, max)
	}

	if _, _, err := ParseDelayRange("abc:100"); err == nil {
		t.Error("Expected error for non-numeric min")
	}
	if _, _, err := ParseDelayRange("100:abc"); err == nil {
		t.Error("Expected error for non-numeric max")
	}
	if _, _, err := ParseDelayRange("-5:10"); err == nil {
		t.Error("Expected error for negative min")
	}

	// Equal bounds are a fixed delay.
	min, max, err = ParseDelayRange("250:250")
	if err != nil {
		t.Fatalf("Failed to parse fixed range: %v", err)
	}
	if min != max || min != 250*time.Millisecond {
		t.Errorf("Expected fixed 250ms range, got %v:%v", min, max)
	}
}
