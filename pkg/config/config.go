package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Lifecycle     LifecycleConfig
	Candidates    CandidatesConfig
	Notifications NotificationsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Lifecycle.AllowedExtensionDays(); err != nil {
		return nil, err
	}
	if err := cfg.Notifications.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEADENGINE_APP_ENV" required:"true"`
	Port         string `envconfig:"LEADENGINE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LEADENGINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEADENGINE_LOG_WARN_STACK" default:"false"`

	CORSOrigins        []string `envconfig:"LEADENGINE_CORS_ORIGINS" default:"*"`
	RateLimitPerSecond float64  `envconfig:"LEADENGINE_RATE_LIMIT_PER_SECOND" default:"20"`
	RateLimitBurst     int      `envconfig:"LEADENGINE_RATE_LIMIT_BURST" default:"40"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LEADENGINE_DB_DSN"`
	Driver string `envconfig:"LEADENGINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEADENGINE_DB_HOST"`
	LegacyPort     int    `envconfig:"LEADENGINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEADENGINE_DB_USER"`
	LegacyPassword string `envconfig:"LEADENGINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEADENGINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEADENGINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEADENGINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEADENGINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEADENGINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEADENGINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEADENGINE_REDIS_URL"`
	Address      string        `envconfig:"LEADENGINE_REDIS_ADDR"`
	Password     string        `envconfig:"LEADENGINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEADENGINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEADENGINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEADENGINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEADENGINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEADENGINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEADENGINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds what the API needs to verify bearer tokens issued elsewhere.
type JWTConfig struct {
	Secret            string `envconfig:"LEADENGINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEADENGINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEADENGINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LEADENGINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LEADENGINE_AUTO_MIGRATE" default:"false"`
}

// LifecycleConfig tunes the reactivation sweep and replenishment thresholds.
type LifecycleConfig struct {
	InactivityDays      int    `envconfig:"LEADENGINE_INACTIVITY_DAYS" default:"30"`
	ReactivationDays    int    `envconfig:"LEADENGINE_REACTIVATION_DAYS" default:"30"`
	SweepBatchSize      int    `envconfig:"LEADENGINE_SWEEP_BATCH_SIZE" default:"100"`
	MinAvailablePerTerm int    `envconfig:"LEADENGINE_MIN_AVAILABLE_PER_TERM" default:"5"`
	ExtensionDays       string `envconfig:"LEADENGINE_EXTENSION_DAYS" default:"10,20,30"`
	PhoneRegion         string `envconfig:"LEADENGINE_PHONE_REGION" default:"BR"`
}

// AllowedExtensionDays parses the comma separated extension set.
func (l LifecycleConfig) AllowedExtensionDays() ([]int, error) {
	out := []int{}
	for _, part := range strings.Split(l.ExtensionDays, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		days, err := strconv.Atoi(trimmed)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid %s entry %q", EnvExtensionDays, trimmed)
		}
		out = append(out, days)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s must list at least one value", EnvExtensionDays)
	}
	return out, nil
}

// CandidatesConfig points at the scraper service that produces candidate leads.
type CandidatesConfig struct {
	BaseURL       string        `envconfig:"LEADENGINE_CANDIDATES_BASE_URL"`
	APIKey        string        `envconfig:"LEADENGINE_CANDIDATES_API_KEY"`
	Timeout       time.Duration `envconfig:"LEADENGINE_CANDIDATES_TIMEOUT" default:"30s"`
	RatePerSecond float64       `envconfig:"LEADENGINE_CANDIDATES_RATE_PER_SECOND" default:"2"`
	Burst         int           `envconfig:"LEADENGINE_CANDIDATES_BURST" default:"2"`
	MaxRetries    uint64        `envconfig:"LEADENGINE_CANDIDATES_MAX_RETRIES" default:"3"`
	Concurrency   int           `envconfig:"LEADENGINE_CANDIDATES_CONCURRENCY" default:"4"`
	City          string        `envconfig:"LEADENGINE_CANDIDATES_CITY"`
	State         string        `envconfig:"LEADENGINE_CANDIDATES_STATE"`
	Terms         []string      `envconfig:"LEADENGINE_CANDIDATES_TERMS"`
}

// Enabled reports whether a candidate source has been configured.
func (c CandidatesConfig) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

type NotificationsConfig struct {
	Driver    string `envconfig:"LEADENGINE_NOTIFY_DRIVER" default:"log"`
	Workers   int    `envconfig:"LEADENGINE_NOTIFY_WORKERS" default:"4"`
	QueueSize int    `envconfig:"LEADENGINE_NOTIFY_QUEUE_SIZE" default:"256"`
}

func (n NotificationsConfig) validate() error {
	switch strings.ToLower(n.Driver) {
	case NotifyDriverLog, NotifyDriverRedis, NotifyDriverPubSub:
		return nil
	}
	return fmt.Errorf("invalid %s %q", EnvNotifyDriver, n.Driver)
}

type GCPConfig struct {
	ProjectID string `envconfig:"LEADENGINE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LeadEventsTopic string `envconfig:"LEADENGINE_PUBSUB_LEAD_EVENTS_TOPIC" default:"lead-events"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LEADENGINE_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"LEADENGINE_CRON_LOCK_TTL" default:"25h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
