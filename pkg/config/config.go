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

	EnvDBDSN  = "WARESYNC_DB_DSN"
	EnvDBHost = "WARESYNC_DB_HOST"
	EnvDBUser = "WARESYNC_DB_USER"
	EnvDBName = "WARESYNC_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Warehouse    WarehouseConfig
	Marketplace  MarketplaceConfig
	Reconcile    ReconcileConfig
	Queue        QueueConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	Env          string `envconfig:"WARESYNC_APP_ENV" required:"true"`
	OpsPort      string `envconfig:"WARESYNC_OPS_PORT" default:"9090"`
	LogLevel     string `envconfig:"WARESYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WARESYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WARESYNC_SERVICE_KIND" default:"reconciler-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"WARESYNC_DB_DSN"`
	Driver string `envconfig:"WARESYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WARESYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"WARESYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WARESYNC_DB_USER"`
	LegacyPassword string `envconfig:"WARESYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"WARESYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"WARESYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WARESYNC_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"WARESYNC_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"WARESYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WARESYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WARESYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WARESYNC_REDIS_ADDR"`
	Password     string        `envconfig:"WARESYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"WARESYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WARESYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WARESYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WARESYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WARESYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WARESYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"WARESYNC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"WARESYNC_AUTO_MIGRATE" default:"false"`
}

type WarehouseConfig struct {
	BaseURL          string        `envconfig:"WARESYNC_WAREHOUSE_BASE_URL" required:"true"`
	APIKey           string        `envconfig:"WARESYNC_WAREHOUSE_API_KEY" required:"true"`
	AuthoritativeKey string        `envconfig:"WARESYNC_WAREHOUSE_AUTHORITATIVE_KEY" required:"true"`
	PageSize         int           `envconfig:"WARESYNC_WAREHOUSE_PAGE_SIZE" default:"100"`
	RequestTimeout   time.Duration `envconfig:"WARESYNC_WAREHOUSE_REQUEST_TIMEOUT" default:"30s"`
	FullProductBatch int           `envconfig:"WARESYNC_WAREHOUSE_FULL_PRODUCT_BATCH" default:"50"`
}

type MarketplaceConfig struct {
	BaseURL        string        `envconfig:"WARESYNC_MARKETPLACE_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"WARESYNC_MARKETPLACE_API_KEY" required:"true"`
	RequestTimeout time.Duration `envconfig:"WARESYNC_MARKETPLACE_REQUEST_TIMEOUT" default:"30s"`
	RequestPacing  time.Duration `envconfig:"WARESYNC_MARKETPLACE_REQUEST_PACING" default:"500ms"`
}

type ReconcileConfig struct {
	Interval            time.Duration `envconfig:"WARESYNC_RECONCILE_INTERVAL" default:"15m"`
	ReportRetentionDays int           `envconfig:"WARESYNC_REPORT_RETENTION_DAYS" default:"30"`
}

type QueueConfig struct {
	SweepBatchSize int           `envconfig:"WARESYNC_QUEUE_SWEEP_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"WARESYNC_QUEUE_POLL_MS" default:"5000"`
	MaxAttempts    int           `envconfig:"WARESYNC_QUEUE_MAX_ATTEMPTS" default:"3"`
	BackoffBase    time.Duration `envconfig:"WARESYNC_QUEUE_BACKOFF_BASE" default:"30s"`
	BackoffMax     time.Duration `envconfig:"WARESYNC_QUEUE_BACKOFF_MAX" default:"15m"`
	RetentionDays  int           `envconfig:"WARESYNC_QUEUE_RETENTION_DAYS" default:"14"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WARESYNC_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WARESYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WARESYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AlertTopic string `envconfig:"WARESYNC_PUBSUB_ALERT_TOPIC"`
}

// AlertsEnabled reports whether operator alerts should be published.
func (p PubSubConfig) AlertsEnabled() bool {
	return strings.TrimSpace(p.AlertTopic) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
