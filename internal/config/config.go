package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine binaries. Values
// come from the YAML file first, then from the environment.
type Config struct {
	Server   ServerConfig   `yaml:"server" env:", prefix=SERVER_"`
	Database DatabaseConfig `yaml:"database" env:", prefix=DB_"`
	Redis    RedisConfig    `yaml:"redis" env:", prefix=REDIS_"`
	Log      LogConfig      `yaml:"log" env:", prefix=LOG_"`
	Campaign CampaignConfig `yaml:"campaign" env:", prefix=CAMPAIGN_"`
	Worker   WorkerConfig   `yaml:"worker" env:", prefix=WORKER_"`
	Tracking TrackingConfig `yaml:"tracking" env:", prefix=TRACKING_"`
	SES      SESConfig      `yaml:"ses" env:", prefix=SES_"`
	SMS      ProviderConfig `yaml:"sms" env:", prefix=SMS_"`
	WhatsApp ProviderConfig `yaml:"whatsapp" env:", prefix=WHATSAPP_"`
}

// ServerConfig holds the API listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST, overwrite"`
	Port            int           `yaml:"port" env:"PORT, overwrite"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT, overwrite"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT, overwrite"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT, overwrite"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS, overwrite"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// DatabaseConfig selects the storage backend. Driver "memory" runs the
// engine on the in-process store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER, overwrite"`
	URL             string        `yaml:"url" env:"URL, overwrite"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS, overwrite"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS, overwrite"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME, overwrite"`
}

// RedisConfig configures the distributed step lock. An empty Addr falls
// back to Postgres advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR, overwrite"`
	Password string `yaml:"password" env:"PASSWORD, overwrite"`
	DB       int    `yaml:"db" env:"DB, overwrite"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL, overwrite"`
	File       string `yaml:"file" env:"FILE, overwrite"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB, overwrite"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS, overwrite"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS, overwrite"`
	KeepPII    bool   `yaml:"keep_pii" env:"KEEP_PII, overwrite"`
}

// CampaignConfig tunes step execution.
type CampaignConfig struct {
	Concurrency        int           `yaml:"concurrency" env:"CONCURRENCY, overwrite"`
	DelayPolicy        string        `yaml:"delay_policy" env:"DELAY_POLICY, overwrite"`
	FailOnTotalFailure bool          `yaml:"fail_on_total_failure" env:"FAIL_ON_TOTAL_FAILURE, overwrite"`
	LockTTL            time.Duration `yaml:"lock_ttl" env:"LOCK_TTL, overwrite"`
}

// WorkerConfig controls the step worker's polling.
type WorkerConfig struct {
	Interval    time.Duration `yaml:"interval" env:"INTERVAL, overwrite"`
	StepTimeout time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT, overwrite"`
}

// TrackingConfig configures link generation and the tracking endpoint.
type TrackingConfig struct {
	BaseURL     string   `yaml:"base_url" env:"BASE_URL, overwrite"`
	SigningKey  string   `yaml:"signing_key" env:"SIGNING_KEY, overwrite"`
	Port        int      `yaml:"port" env:"PORT, overwrite"`
	Mode        string   `yaml:"mode" env:"MODE, overwrite"`
	QueueURL    string   `yaml:"queue_url" env:"QUEUE_URL, overwrite"`
	Region      string   `yaml:"region" env:"REGION, overwrite"`
	BotPatterns []string `yaml:"bot_patterns" env:"BOT_PATTERNS, overwrite"`
}

// SESConfig holds the email provider settings.
type SESConfig struct {
	Region           string  `yaml:"region" env:"REGION, overwrite"`
	AccessKey        string  `yaml:"access_key" env:"ACCESS_KEY, overwrite"`
	SecretKey        string  `yaml:"secret_key" env:"SECRET_KEY, overwrite"`
	FromAddress      string  `yaml:"from_address" env:"FROM_ADDRESS, overwrite"`
	ConfigurationSet string  `yaml:"configuration_set" env:"CONFIGURATION_SET, overwrite"`
	RatePerSecond    float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND, overwrite"`
	Burst            int     `yaml:"burst" env:"BURST, overwrite"`
}

// ProviderConfig holds an HTTP messaging provider's settings.
type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url" env:"BASE_URL, overwrite"`
	APIKey        string        `yaml:"api_key" env:"API_KEY, overwrite"`
	Sender        string        `yaml:"sender" env:"SENDER, overwrite"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT, overwrite"`
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES, overwrite"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"RATE_PER_SECOND, overwrite"`
	Burst         int           `yaml:"burst" env:"BURST, overwrite"`
}

// Enabled reports whether the provider is configured.
func (c ProviderConfig) Enabled() bool { return c.BaseURL != "" }

// DefaultPath is read when no config file is named and it exists.
const DefaultPath = "config/config.yaml"

// ResolvePath picks the config file: explicit, then $CONFIG_PATH, then
// DefaultPath if present. It returns "" to run from the environment alone.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// Load reads the YAML file at path (skipped when path is empty), loads a
// .env file if present, applies environment overrides and fills defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit environment source.
func LoadWith(ctx context.Context, path string, env envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: env}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Campaign.Concurrency == 0 {
		cfg.Campaign.Concurrency = 8
	}
	if cfg.Campaign.DelayPolicy == "" {
		cfg.Campaign.DelayPolicy = "best_effort"
	}
	if cfg.Campaign.LockTTL == 0 {
		cfg.Campaign.LockTTL = 15 * time.Minute
	}
	if cfg.Worker.Interval == 0 {
		cfg.Worker.Interval = time.Minute
	}
	if cfg.Worker.StepTimeout == 0 {
		cfg.Worker.StepTimeout = 10 * time.Minute
	}
	if cfg.Tracking.Port == 0 {
		cfg.Tracking.Port = 8081
	}
	if cfg.Tracking.Mode == "" {
		cfg.Tracking.Mode = "direct"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "eu-west-1"
	}
	if cfg.SES.RatePerSecond == 0 {
		cfg.SES.RatePerSecond = 14
	}
	for _, p := range []*ProviderConfig{&cfg.SMS, &cfg.WhatsApp} {
		if p.Timeout == 0 {
			p.Timeout = 30 * time.Second
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = 3
		}
		if p.RatePerSecond == 0 {
			p.RatePerSecond = 10
		}
	}
}

// Validate rejects settings the engine cannot run with.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not postgres or memory", cfg.Database.Driver))
	}
	switch cfg.Campaign.DelayPolicy {
	case "best_effort", "strict":
	default:
		errs = append(errs, fmt.Errorf("campaign.delay_policy %q is not best_effort or strict", cfg.Campaign.DelayPolicy))
	}
	if cfg.Campaign.Concurrency < 0 {
		errs = append(errs, errors.New("campaign.concurrency must not be negative"))
	}
	if cfg.Tracking.BaseURL != "" && cfg.Tracking.SigningKey == "" {
		errs = append(errs, errors.New("tracking.signing_key is required when tracking.base_url is set"))
	}
	switch cfg.Tracking.Mode {
	case "direct":
	case "sqs":
		if cfg.Tracking.QueueURL == "" {
			errs = append(errs, errors.New("tracking.queue_url is required in sqs mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracking.mode %q is not direct or sqs", cfg.Tracking.Mode))
	}
	return errors.Join(errs...)
}
