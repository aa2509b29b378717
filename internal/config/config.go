package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Policy   PolicyConfig   `yaml:"policy" mapstructure:"policy"`
	Cost     CostConfig     `yaml:"cost" mapstructure:"cost"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Watcher  WatcherConfig  `yaml:"watcher" mapstructure:"watcher"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where reference data (BOM, suppliers, routes,
// tariffs, scenarios) is loaded from.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // csv, sqlite or postgres
	DataDir     string `yaml:"data_dir" mapstructure:"data_dir"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	BOMXLSX     string `yaml:"bom_xlsx" mapstructure:"bom_xlsx"` // optional BOM override
}

// PolicyConfig points at the YAML policy file.
type PolicyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// Reload re-reads the file on change while serving.
	Reload bool `yaml:"reload" mapstructure:"reload"`
}

// CostConfig configures the landed-cost model.
type CostConfig struct {
	FreightFraction float64 `yaml:"freight_fraction" mapstructure:"freight_fraction"`
}

// PipelineConfig holds per-run defaults for the decision pipeline.
type PipelineConfig struct {
	BaseRoute           string  `yaml:"base_route" mapstructure:"base_route"`
	PriceUSD            float64 `yaml:"price_usd" mapstructure:"price_usd"`
	Destination         string  `yaml:"destination" mapstructure:"destination"`
	DefaultOrigin       string  `yaml:"default_origin" mapstructure:"default_origin"`
	ApprovalConfidence  float64 `yaml:"approval_confidence" mapstructure:"approval_confidence"`
	AuditTail           int     `yaml:"audit_tail" mapstructure:"audit_tail"`
	MaxConcurrentRoutes int     `yaml:"max_concurrent_routes" mapstructure:"max_concurrent_routes"`
}

// WatcherSource is one bulletin feed.
type WatcherSource struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Kind   string `yaml:"kind" mapstructure:"kind"` // rss or json
	URL    string `yaml:"url" mapstructure:"url"`
	HSHint string `yaml:"hs_hint" mapstructure:"hs_hint"`
}

// WatcherConfig configures bulletin acquisition.
type WatcherConfig struct {
	Sources       []WatcherSource `yaml:"sources" mapstructure:"sources"`
	CachePath     string          `yaml:"cache_path" mapstructure:"cache_path"`
	TimeoutSecs   float64         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries       int             `yaml:"retries" mapstructure:"retries"`
	MinConfidence float64         `yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxItems      int             `yaml:"max_items" mapstructure:"max_items"`
	UserAgent     string          `yaml:"user_agent" mapstructure:"user_agent"`
	Concurrency   int             `yaml:"concurrency" mapstructure:"concurrency"`
	// A source is skipped for BreakerResetSecs after BreakerFailures
	// consecutive failed polls.
	BreakerFailures  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs float64 `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TARIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "csv")
	v.SetDefault("store.data_dir", "./data")
	v.SetDefault("policy.path", "./data/policy.yaml")
	v.SetDefault("policy.reload", true)
	v.SetDefault("cost.freight_fraction", 0.05)
	v.SetDefault("pipeline.base_route", "R-CN-US")
	v.SetDefault("pipeline.price_usd", 25.0)
	v.SetDefault("pipeline.destination", "US")
	v.SetDefault("pipeline.default_origin", "CN")
	v.SetDefault("pipeline.approval_confidence", 0.95)
	v.SetDefault("pipeline.audit_tail", 12)
	v.SetDefault("pipeline.max_concurrent_routes", 4)
	v.SetDefault("watcher.sources", []map[string]any{
		{"name": "USTRPressRSS", "kind": "rss", "url": "https://ustr.gov/feeds/press-releases/rss.xml"},
	})
	v.SetDefault("watcher.cache_path", "./cache/watch_cache.jsonl")
	v.SetDefault("watcher.timeout_secs", 2.0)
	v.SetDefault("watcher.retries", 1)
	v.SetDefault("watcher.min_confidence", 0.75)
	v.SetDefault("watcher.max_items", 10)
	v.SetDefault("watcher.user_agent", "tariff-cli/1.0")
	v.SetDefault("watcher.concurrency", 4)
	v.SetDefault("watcher.breaker_failures", 3)
	v.SetDefault("watcher.breaker_reset_secs", 300.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks that the settings required by the given command mode are
// present. Mode is one of "run", "watch" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "csv":
		if c.Store.DataDir == "" {
			errs = append(errs, "store.data_dir is required for the csv driver")
		}
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the "+c.Store.Driver+" driver")
		}
	default:
		errs = append(errs, "store.driver must be one of csv, sqlite, postgres")
	}

	if c.Policy.Path == "" {
		errs = append(errs, "policy.path is required")
	}
	if !finite(c.Cost.FreightFraction) || c.Cost.FreightFraction < 0 {
		errs = append(errs, "cost.freight_fraction must be a finite value >= 0")
	}
	if !finite(c.Pipeline.PriceUSD) || c.Pipeline.PriceUSD <= 0 {
		errs = append(errs, "pipeline.price_usd must be a finite value > 0")
	}
	if c.Pipeline.BaseRoute == "" {
		errs = append(errs, "pipeline.base_route is required")
	}
	if !(c.Pipeline.ApprovalConfidence >= 0 && c.Pipeline.ApprovalConfidence <= 1) {
		errs = append(errs, "pipeline.approval_confidence must be between 0 and 1")
	}
	if c.Pipeline.MaxConcurrentRoutes < 1 || c.Pipeline.MaxConcurrentRoutes > 32 {
		errs = append(errs, "pipeline.max_concurrent_routes must be between 1 and 32")
	}

	switch mode {
	case "run":
	case "watch":
		if c.Watcher.Retries < 0 {
			errs = append(errs, "watcher.retries must be >= 0")
		}
		if c.Watcher.TimeoutSecs <= 0 {
			errs = append(errs, "watcher.timeout_secs must be > 0")
		}
		if !(c.Watcher.MinConfidence >= 0 && c.Watcher.MinConfidence <= 1) {
			errs = append(errs, "watcher.min_confidence must be between 0 and 1")
		}
		if c.Watcher.Concurrency < 1 {
			errs = append(errs, "watcher.concurrency must be >= 1")
		}
		for i, src := range c.Watcher.Sources {
			if src.Kind != "rss" && src.Kind != "json" {
				errs = append(errs, fmt.Sprintf("watcher.sources[%d].kind must be rss or json", i))
			}
			if src.URL == "" {
				errs = append(errs, fmt.Sprintf("watcher.sources[%d].url is required", i))
			}
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
