package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the public WCCA portal
const DefaultBaseURL = "https://wcca.wicourts.gov"

// Config is the complete runtime configuration
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Sweep        SweepConfig        `yaml:"sweep" mapstructure:"sweep"`
	Detail       DetailConfig       `yaml:"detail" mapstructure:"detail"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// HTTPConfig controls the portal JSON client
type HTTPConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	Cookie        string        `yaml:"cookie" mapstructure:"cookie"`
	HTTPProxy     string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// SweepConfig holds defaults for the search sweep
type SweepConfig struct {
	SpanDays    int      `yaml:"span_days" mapstructure:"span_days"`
	ClassCodes  []string `yaml:"class_codes" mapstructure:"class_codes"`
	OnError     string   `yaml:"on_error" mapstructure:"on_error"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// DetailConfig controls the browser detail stage
type DetailConfig struct {
	Profile        string        `yaml:"profile" mapstructure:"profile"`
	Headless       bool          `yaml:"headless" mapstructure:"headless"`
	PageTimeout    time.Duration `yaml:"page_timeout" mapstructure:"page_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	ChallengeWait  time.Duration `yaml:"challenge_wait" mapstructure:"challenge_wait"`
	MinDelay       time.Duration `yaml:"min_delay" mapstructure:"min_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	UseResultIndex bool          `yaml:"use_result_index" mapstructure:"use_result_index"`
}

// CacheConfig controls caching of closed-window search responses. Off by
// default: every sweep queries the portal live unless caching is asked for.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateLimitingConfig bounds request rate against the portal
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// StoreConfig points at the optional SQLite database
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// OutputConfig controls human-facing output
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	Summary bool `yaml:"summary" mapstructure:"summary"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			BaseURL:       DefaultBaseURL,
			Timeout:       30 * time.Second,
			UserAgent:     "casesweep/0.1 (+https://github.com/ppiankov/casesweep)",
			MaxRetries:    3,
			RespectRobots: true,
		},
		Sweep: SweepConfig{
			SpanDays:    7,
			OnError:     "fail-fast",
			Concurrency: 1,
		},
		Detail: DetailConfig{
			Profile:        filepath.Join(ConfigDir(), "profile"),
			Headless:       false,
			PageTimeout:    60 * time.Second,
			SettleDelay:    3 * time.Second,
			ChallengeWait:  60 * time.Second,
			MinDelay:       500 * time.Millisecond,
			MaxDelay:       1500 * time.Millisecond,
			UseResultIndex: true,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       filepath.Join(ConfigDir(), "cache"),
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Output: OutputConfig{
			Summary: true,
		},
	}
}

// ConfigDir returns ~/.casesweep, or .casesweep when there is no home directory
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".casesweep"
	}
	return filepath.Join(home, ".casesweep")
}

// LoadConfig overlays everything viper knows (file, env, bound flags) on the defaults
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if v == nil {
		return cfg, nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// BindDefaults registers every default as a viper default so environment
// variables resolve for keys no config file mentions
func BindDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}
