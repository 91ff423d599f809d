package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/viper"
)

var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Pink   = color.New(color.FgMagenta).SprintFunc()
)

// Config is passed explicitly to every component that needs keys or limits.
type Config struct {
	NVD       NVDConfig       `mapstructure:"nvd"`
	Claude    ClaudeConfig    `mapstructure:"claude"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	SSH       SSHConfig       `mapstructure:"ssh"`
}

// NVDConfig contains the vulnerability source limits
type NVDConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Multiplier     float64       `mapstructure:"multiplier"`
	SyncWindow     time.Duration `mapstructure:"sync_window"`
}

// ClaudeConfig contains identifier generation settings
type ClaudeConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int64         `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// BatchSize caps the items sent in one generation request, 0 sends
	// every item of a machine and kind at once
	BatchSize int           `mapstructure:"batch_size"`
}

type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

type InventoryConfig struct {
	Path   string `mapstructure:"path"`
	Source string `mapstructure:"source"`

	// LanguagePackages adds globally installed pip and npm modules
	LanguagePackages bool `mapstructure:"language_packages"`
}

type SSHConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	KnownHosts string        `mapstructure:"known_hosts"`
	// Insecure skips host key verification when no known_hosts file is set
	Insecure bool `mapstructure:"insecure"`
}

const (
	// NVD public quota: 5 requests per 30s without a key, 50 with one
	anonymousDelay = 6 * time.Second
	keyedDelay     = 600 * time.Millisecond
)

func DefaultConfig() *Config {
	return &Config{
		NVD: NVDConfig{
			RequestDelay:   anonymousDelay,
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
			Multiplier:     2,
			SyncWindow:     24 * time.Hour,
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Cache: CacheConfig{
			Dir: "~/.vulnmap/cache",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.vulnmap/logs",
		},
		Inventory: InventoryConfig{
			Path: "inventory.yaml",
		},
		SSH: SSHConfig{
			Timeout:    30 * time.Second,
			KnownHosts: "~/.ssh/known_hosts",
		},
	}
}

// Load reads defaults, the config file, VULNMAP_* variables and bound flags, in increasing priority.
func Load(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".vulnmap"))
		}
		viper.AddConfigPath(".")
	}

	setDefaults(config)

	viper.SetEnvPrefix("VULNMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("nvd.api_key", "VULNMAP_NVD_API_KEY", "NVD_API_KEY")
	viper.BindEnv("claude.api_key", "VULNMAP_CLAUDE_API_KEY", "CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	viper.BindEnv("logging.level", "VULNMAP_LOG_LEVEL", "LOG_LEVEL")
	viper.BindEnv("cache.dir", "VULNMAP_CACHE_DIR")
	// no default, so IsSet below only sees explicit values
	viper.BindEnv("nvd.request_delay")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// An API key raises the quota unless the pacing was set explicitly
	if config.NVD.APIKey != "" && !viper.IsSet("nvd.request_delay") {
		config.NVD.RequestDelay = keyedDelay
	}

	if err := config.ExpandPaths(); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults registers every key, AutomaticEnv only reaches keys viper knows.
func setDefaults(c *Config) {
	viper.SetDefault("nvd.base_url", c.NVD.BaseURL)
	viper.SetDefault("nvd.timeout", c.NVD.Timeout)
	viper.SetDefault("nvd.max_retries", c.NVD.MaxRetries)
	viper.SetDefault("nvd.initial_backoff", c.NVD.InitialBackoff)
	viper.SetDefault("nvd.max_backoff", c.NVD.MaxBackoff)
	viper.SetDefault("nvd.multiplier", c.NVD.Multiplier)
	viper.SetDefault("nvd.sync_window", c.NVD.SyncWindow)

	viper.SetDefault("claude.base_url", c.Claude.BaseURL)
	viper.SetDefault("claude.model", c.Claude.Model)
	viper.SetDefault("claude.max_tokens", c.Claude.MaxTokens)
	viper.SetDefault("claude.timeout", c.Claude.Timeout)
	viper.SetDefault("claude.batch_size", c.Claude.BatchSize)

	viper.SetDefault("cache.dir", c.Cache.Dir)

	viper.SetDefault("logging.level", c.Logging.Level)
	viper.SetDefault("logging.dir", c.Logging.Dir)

	viper.SetDefault("inventory.path", c.Inventory.Path)
	viper.SetDefault("inventory.source", c.Inventory.Source)
	viper.SetDefault("inventory.language_packages", c.Inventory.LanguagePackages)

	viper.SetDefault("ssh.timeout", c.SSH.Timeout)
	viper.SetDefault("ssh.known_hosts", c.SSH.KnownHosts)
	viper.SetDefault("ssh.insecure", c.SSH.Insecure)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache dir is required")
	}

	if c.NVD.RequestDelay < 0 {
		return fmt.Errorf("nvd request delay must not be negative")
	}

	if c.NVD.MaxRetries < 0 {
		return fmt.Errorf("nvd max retries must not be negative")
	}

	if c.NVD.InitialBackoff <= 0 {
		return fmt.Errorf("nvd initial backoff must be positive")
	}

	if c.NVD.Multiplier < 1 {
		return fmt.Errorf("nvd backoff multiplier must be at least 1")
	}

	if c.Claude.MaxTokens <= 0 {
		return fmt.Errorf("claude max tokens must be positive")
	}

	return nil
}

// HasGenerator reports whether identifier generation can run
func (c *Config) HasGenerator() bool {
	return c.Claude.APIKey != ""
}

// ExpandPaths expands home directory paths
func (c *Config) ExpandPaths() error {
	var err error

	for _, p := range []*string{&c.Cache.Dir, &c.Logging.Dir, &c.Inventory.Path, &c.SSH.KnownHosts} {
		*p, err = ExpandPath(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *p, err)
		}
	}

	return nil
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path, err
	}

	if len(path) == 1 {
		return home, nil
	}

	return filepath.Join(home, path[1:]), nil
}
