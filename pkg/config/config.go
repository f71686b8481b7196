package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Billing      BillingConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PROMPTSTASH_APP_ENV" required:"true"`
	Port         string `envconfig:"PROMPTSTASH_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PROMPTSTASH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PROMPTSTASH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PROMPTSTASH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PROMPTSTASH_DB_DSN"`
	Driver string `envconfig:"PROMPTSTASH_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PROMPTSTASH_DB_HOST"`
	Port     int    `envconfig:"PROMPTSTASH_DB_PORT" default:"5432"`
	User     string `envconfig:"PROMPTSTASH_DB_USER"`
	Password string `envconfig:"PROMPTSTASH_DB_PASSWORD"`
	Name     string `envconfig:"PROMPTSTASH_DB_NAME"`
	SSLMode  string `envconfig:"PROMPTSTASH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROMPTSTASH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROMPTSTASH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROMPTSTASH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROMPTSTASH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either PROMPTSTASH_DB_DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"PROMPTSTASH_REDIS_URL"`
	Address      string        `envconfig:"PROMPTSTASH_REDIS_ADDR"`
	Password     string        `envconfig:"PROMPTSTASH_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROMPTSTASH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROMPTSTASH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROMPTSTASH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROMPTSTASH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROMPTSTASH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROMPTSTASH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BillingConfig holds process-wide billing settings. Currency applies to every
// tier price; per-tier currency is out of scope.
type BillingConfig struct {
	CurrencyCode string `envconfig:"PROMPTSTASH_BILLING_CURRENCY" default:"USD"`
	TrialDays    int    `envconfig:"PROMPTSTASH_BILLING_TRIAL_DAYS" default:"7"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PROMPTSTASH_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"PROMPTSTASH_CRON_LOCK_TTL" default:"25h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PROMPTSTASH_FEATURE_AUTO_MIGRATE" default:"false"`
}
