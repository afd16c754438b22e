// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/ned-harvester/internal/assets"
	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/indices"
	"github.com/JakeFAU/ned-harvester/internal/partition"
)

// EnvPrefix prefixes environment overrides, e.g. HARVEST_STORAGE_URL.
const EnvPrefix = "HARVEST"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Indices IndicesConfig `mapstructure:"indices"`
	Objects ObjectsConfig `mapstructure:"objects"`
	Browser BrowserConfig `mapstructure:"browser"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig locates the durable store: a directory or a bucket URL.
type StorageConfig struct {
	URL string `mapstructure:"url"`
}

// RemoteConfig describes the remote catalog service.
type RemoteConfig struct {
	FormURL           string  `mapstructure:"form_url"`
	ObjectURLTemplate string  `mapstructure:"object_url_template"`
	GuessURLTemplate  string  `mapstructure:"guess_url_template"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// IndicesConfig governs partition downloads.
type IndicesConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	PrimaryBucket   time.Duration `mapstructure:"primary_bucket"`
	SecondaryBucket time.Duration `mapstructure:"secondary_bucket"`
	Categories      []string      `mapstructure:"categories"`
	PollAttempts    int           `mapstructure:"poll_attempts"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
}

// ObjectsConfig governs per-object asset harvesting.
type ObjectsConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	Strategy     string        `mapstructure:"strategy"`
	TableTimeout time.Duration `mapstructure:"table_timeout"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
}

// HTTPConfig configures blob downloads.
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the optional metrics endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.url", "data")
	v.SetDefault("remote.form_url", indices.DefaultFormURL)
	v.SetDefault("remote.object_url_template", assets.DefaultObjectURLTemplate)
	v.SetDefault("remote.guess_url_template", assets.DefaultGuessURLTemplate)
	v.SetDefault("remote.requests_per_second", 2)
	v.SetDefault("remote.burst", 1)
	v.SetDefault("indices.concurrency", 20)
	v.SetDefault("indices.primary_bucket", partition.DefaultPrimaryBucket)
	v.SetDefault("indices.secondary_bucket", partition.DefaultSecondaryBucket)
	v.SetDefault("indices.categories", []string{})
	v.SetDefault("indices.poll_attempts", 120)
	v.SetDefault("indices.poll_timeout", 30*time.Second)
	v.SetDefault("objects.concurrency", 2)
	v.SetDefault("objects.strategy", string(harvest.StrategyFull))
	v.SetDefault("objects.table_timeout", 15*time.Second)
	v.SetDefault("browser.user_agent", "ned-harvester/1.0 (+https://github.com/JakeFAU/ned-harvester)")
	v.SetDefault("browser.navigation_timeout", 60*time.Second)
	v.SetDefault("browser.headless", true)
	v.SetDefault("http.timeout", 60*time.Second)
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial", 500*time.Millisecond)
	v.SetDefault("http.backoff_max", 10*time.Second)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits. Category names
// and bucket sizes are checked here so a bad run fails before any remote
// interaction.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Storage.URL) == "" {
		return fmt.Errorf("storage.url must be set")
	}
	if c.Indices.Concurrency <= 0 {
		return fmt.Errorf("indices.concurrency must be > 0")
	}
	if c.Objects.Concurrency <= 0 {
		return fmt.Errorf("objects.concurrency must be > 0")
	}
	if c.Indices.PollAttempts <= 0 {
		return fmt.Errorf("indices.poll_attempts must be > 0")
	}
	if c.Indices.PollTimeout <= 0 {
		return fmt.Errorf("indices.poll_timeout must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Remote.RequestsPerSecond < 0 {
		return fmt.Errorf("remote.requests_per_second must be >= 0")
	}
	if _, err := c.Strategy(); err != nil {
		return fmt.Errorf("objects.strategy: %w", err)
	}
	if _, err := partition.New(c.Partitions()); err != nil {
		return fmt.Errorf("indices: %w", err)
	}
	return nil
}

// Strategy parses objects.strategy.
func (c Config) Strategy() (harvest.Strategy, error) {
	return harvest.ParseStrategy(c.Objects.Strategy)
}

// Partitions converts the indices section into an enumerator config.
func (c Config) Partitions() partition.Config {
	return partition.Config{
		PrimaryBucket:   c.Indices.PrimaryBucket,
		SecondaryBucket: c.Indices.SecondaryBucket,
		Categories:      c.Indices.Categories,
	}
}
