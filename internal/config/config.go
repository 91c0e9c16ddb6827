package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	AutoSeq AutoSeqConfig `yaml:"autoseq" mapstructure:"autoseq"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the key-value backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BrowserConfig configures the Chrome page the harvester drives.
type BrowserConfig struct {
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	StartURL    string `yaml:"start_url" mapstructure:"start_url"`
	ExecPath    string `yaml:"exec_path" mapstructure:"exec_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxScrolls  int    `yaml:"max_scrolls" mapstructure:"max_scrolls"`
}

// ExtractConfig configures the field extractor.
type ExtractConfig struct {
	PhonePolicy   string `yaml:"phone_policy" mapstructure:"phone_policy"`
	SelectorsFile string `yaml:"selectors_file" mapstructure:"selectors_file"`
}

// EnrichConfig configures website enrichment.
type EnrichConfig struct {
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	UserAgent    string   `yaml:"user_agent" mapstructure:"user_agent"`
	VerifyMX     bool     `yaml:"verify_mx" mapstructure:"verify_mx"`
	DNSServers   []string `yaml:"dns_servers" mapstructure:"dns_servers"`
	Concurrency  int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// Timeout returns the per-fetch timeout.
func (c EnrichConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AutoSeqConfig holds the auto-sequence delays in milliseconds.
type AutoSeqConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	MaxPolls       int `yaml:"max_polls" mapstructure:"max_polls"`
	SettleMs       int `yaml:"settle_ms" mapstructure:"settle_ms"`
	InterItemMs    int `yaml:"inter_item_ms" mapstructure:"inter_item_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory is loaded first; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "harvest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.timeout_secs", 30)
	v.SetDefault("browser.max_scrolls", 20)
	v.SetDefault("extract.phone_policy", "local10")
	v.SetDefault("enrich.timeout_secs", 15)
	v.SetDefault("enrich.max_body_bytes", 2<<20)
	v.SetDefault("enrich.verify_mx", false)
	v.SetDefault("enrich.dns_servers", []string{"8.8.8.8:53", "1.1.1.1:53"})
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("autoseq.poll_interval_ms", 500)
	v.SetDefault("autoseq.max_polls", 24)
	v.SetDefault("autoseq.settle_ms", 3000)
	v.SetDefault("autoseq.inter_item_ms", 4000)
	v.SetDefault("server.port", 8080)

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

// Validate checks the settings a command relies on. mode is the command
// name; every problem found is reported in one error.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for postgres")
		}
	default:
		add("store.driver must be sqlite, postgres or memory")
	}

	switch c.Extract.PhonePolicy {
	case "", "local10", "all":
	default:
		add("extract.phone_policy must be local10 or all")
	}

	checkEnrich := func() {
		if c.Enrich.TimeoutSecs <= 0 {
			add("enrich.timeout_secs must be > 0")
		}
		if c.Enrich.MaxBodyBytes <= 0 {
			add("enrich.max_body_bytes must be > 0")
		}
		if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 32 {
			add("enrich.concurrency must be between 1 and 32")
		}
		if c.Enrich.VerifyMX && len(c.Enrich.DNSServers) == 0 {
			add("enrich.dns_servers is required when verify_mx is set")
		}
	}
	checkAuto := func() {
		if c.AutoSeq.PollIntervalMs <= 0 || c.AutoSeq.MaxPolls <= 0 ||
			c.AutoSeq.SettleMs <= 0 || c.AutoSeq.InterItemMs <= 0 {
			add("autoseq timings must be > 0")
		}
		if c.Browser.TimeoutSecs <= 0 {
			add("browser.timeout_secs must be > 0")
		}
	}

	switch mode {
	case "extract", "records", "export":
	case "enrich":
		checkEnrich()
	case "auto":
		checkEnrich()
		checkAuto()
	case "serve":
		checkEnrich()
		checkAuto()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
