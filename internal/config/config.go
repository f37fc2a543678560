package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	FEMA      FEMAConfig      `yaml:"fema" mapstructure:"fema"`
	Crosswalk CrosswalkConfig `yaml:"crosswalk" mapstructure:"crosswalk"`
	Sink      SinkConfig      `yaml:"sink" mapstructure:"sink"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FEMAConfig configures the OpenFEMA client and pagination.
type FEMAConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	PageSize        int     `yaml:"page_size" mapstructure:"page_size"`
	PageConcurrency int     `yaml:"page_concurrency" mapstructure:"page_concurrency"`
	KeyBatchSize    int     `yaml:"key_batch_size" mapstructure:"key_batch_size"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"` // retries after the first attempt; negative uses the default
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CrosswalkConfig locates the ZIP to county reference file.
type CrosswalkConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// SinkConfig configures optional persistence of reconciled records.
type SinkConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// MetricsConfig configures the optional metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "disaster-recon.db")
	v.SetDefault("fema.base_url", "https://www.fema.gov/api/open")
	v.SetDefault("fema.user_agent", "disaster-recon/1.0")
	v.SetDefault("fema.page_size", 1000)
	v.SetDefault("fema.page_concurrency", 4)
	v.SetDefault("fema.key_batch_size", 100)
	v.SetDefault("fema.timeout_secs", 60)
	v.SetDefault("fema.max_retries", 3)
	v.SetDefault("fema.rate_limit", 10.0)
	v.SetDefault("crosswalk.path", "data/zip_to_fips.csv")
	v.SetDefault("crosswalk.temp_dir", "/tmp/disaster-recon")
	v.SetDefault("sink.table", "fed_data.disaster_county_aid")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.FEMA.PageSize <= 0 {
		return eris.Errorf("config: fema.page_size must be positive, got %d", c.FEMA.PageSize)
	}
	if c.FEMA.PageConcurrency <= 0 {
		return eris.Errorf("config: fema.page_concurrency must be positive, got %d", c.FEMA.PageConcurrency)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store.driver %q (valid: sqlite, postgres)", c.Store.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
