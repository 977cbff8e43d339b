// Package config handles configuration loading for hive.
// It supports XDG config paths, environment overrides, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for hive.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Crews     CrewsConfig     `mapstructure:"crews"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Search    SearchConfig    `mapstructure:"search"`
	State     StateConfig     `mapstructure:"state"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Falls back to ANTHROPIC_API_KEY.
	APIKey string `mapstructure:"api_key"`
	// Model is the model identifier to use for all agents.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes calls through AWS Bedrock instead.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// EngineConfig holds run-controller settings.
type EngineConfig struct {
	// MaxTicks bounds the number of orchestrator planning ticks per run.
	MaxTicks int `mapstructure:"max_ticks"`
	// TickTimeout bounds one planning tick including its dispatch.
	TickTimeout time.Duration `mapstructure:"tick_timeout"`
}

// CrewsConfig holds sub-workflow settings.
type CrewsConfig struct {
	// CodingIterations is the retry ceiling for the coding crew.
	CodingIterations int `mapstructure:"coding_iterations"`
	// DefaultIterations is the retry ceiling for other crews.
	DefaultIterations int `mapstructure:"default_iterations"`
	// PauseBefore lists crew names the controller pauses in front of
	// so a human can approve or edit the instruction first.
	PauseBefore []string `mapstructure:"pause_before"`
}

// SandboxConfig holds code-execution settings.
type SandboxConfig struct {
	// Command is the interpreter invocation, e.g. ["python3", "-u"].
	Command []string `mapstructure:"command"`
	// Timeout bounds a single run.
	Timeout time.Duration `mapstructure:"timeout"`
	// WorkDir is the base directory for per-run scratch dirs.
	WorkDir string `mapstructure:"work_dir"`
}

// MemoryConfig holds vector-memory settings.
type MemoryConfig struct {
	// Path is the index directory. Empty disables memory (no-op mode).
	Path string `mapstructure:"path"`
	// CacheThreshold is the minimum match score for a semantic cache hit.
	CacheThreshold float64 `mapstructure:"cache_threshold"`
}

// SearchConfig holds web-search settings.
type SearchConfig struct {
	// Endpoint is the search service URL. Empty degrades to fallback.
	Endpoint string `mapstructure:"endpoint"`
	// Timeout bounds one query.
	Timeout time.Duration `mapstructure:"timeout"`
}

// StateConfig holds session persistence settings.
type StateConfig struct {
	// Path is the sqlite database file. Empty uses the default location.
	Path string `mapstructure:"path"`
}

// DefaultConfigDir returns the hive config directory.
func DefaultConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "hive")
}

// DefaultDataDir returns the hive data directory (db, memory index).
func DefaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "hive")
}

// Load reads configuration from the config file (if present), the
// environment, and defaults. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(DefaultConfigDir())
	v.AddConfigPath(".")

	v.SetEnvPrefix("HIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(DefaultDataDir(), "hive.db")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.model", "")
	v.SetDefault("engine.max_ticks", 25)
	v.SetDefault("engine.tick_timeout", 10*time.Minute)
	v.SetDefault("crews.coding_iterations", 5)
	v.SetDefault("crews.default_iterations", 3)
	v.SetDefault("crews.pause_before", []string{})
	v.SetDefault("sandbox.command", []string{"python3", "-u"})
	v.SetDefault("sandbox.timeout", 2*time.Minute)
	v.SetDefault("memory.cache_threshold", 0.85)
	v.SetDefault("search.timeout", 15*time.Second)
}
