package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment variable names used outside struct tags.
const (
	EnvPrefix = "LEAGUELEDGER"

	EnvAppEnv = "LEAGUELEDGER_APP_ENV"
	EnvDBDSN  = "LEAGUELEDGER_DB_DSN"
	EnvDBHost = "LEAGUELEDGER_DB_HOST"
	EnvDBUser = "LEAGUELEDGER_DB_USER"
	EnvDBName = "LEAGUELEDGER_DB_NAME"

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Xero         XeroConfig
	Sync         SyncConfig
	RateLimit    RateLimitConfig
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
	Env          string `envconfig:"LEAGUELEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"LEAGUELEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEAGUELEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEAGUELEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEAGUELEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEAGUELEDGER_DB_DSN"`
	Driver string `envconfig:"LEAGUELEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEAGUELEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"LEAGUELEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEAGUELEDGER_DB_USER"`
	LegacyPassword string `envconfig:"LEAGUELEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEAGUELEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEAGUELEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEAGUELEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEAGUELEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEAGUELEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEAGUELEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEAGUELEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEAGUELEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"LEAGUELEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEAGUELEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEAGUELEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEAGUELEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEAGUELEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEAGUELEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEAGUELEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"LEAGUELEDGER_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LEAGUELEDGER_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEAGUELEDGER_AUTO_MIGRATE" default:"false"`
}

type RateLimitConfig struct {
	WebhookLimit  int64         `envconfig:"LEAGUELEDGER_RATE_LIMIT_WEBHOOK" default:"120"`
	WebhookWindow time.Duration `envconfig:"LEAGUELEDGER_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
}

type StripeConfig struct {
	WebhookSecret string `envconfig:"LEAGUELEDGER_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"LEAGUELEDGER_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type XeroConfig struct {
	ClientID          string        `envconfig:"LEAGUELEDGER_XERO_CLIENT_ID"`
	ClientSecret      string        `envconfig:"LEAGUELEDGER_XERO_CLIENT_SECRET"`
	TenantID          string        `envconfig:"LEAGUELEDGER_XERO_TENANT_ID"`
	TokenURL          string        `envconfig:"LEAGUELEDGER_XERO_TOKEN_URL" default:"https://identity.xero.com/connect/token"`
	BaseURL           string        `envconfig:"LEAGUELEDGER_XERO_BASE_URL" default:"https://api.xero.com/api.xro/2.0"`
	ConnectionsURL    string        `envconfig:"LEAGUELEDGER_XERO_CONNECTIONS_URL" default:"https://api.xero.com/connections"`
	RequestTimeout    time.Duration `envconfig:"LEAGUELEDGER_XERO_REQUEST_TIMEOUT" default:"30s"`
	SalesAccountCode  string        `envconfig:"LEAGUELEDGER_XERO_SALES_ACCOUNT_CODE" default:"SALES"`
	BankAccountCode   string        `envconfig:"LEAGUELEDGER_XERO_BANK_ACCOUNT_CODE" default:"090"`
	BrandingThemeName string        `envconfig:"LEAGUELEDGER_XERO_BRANDING_THEME"`
}

type SyncConfig struct {
	BatchSize       int           `envconfig:"LEAGUELEDGER_SYNC_BATCH_SIZE" default:"10"`
	Concurrency     int           `envconfig:"LEAGUELEDGER_SYNC_CONCURRENCY" default:"3"`
	ClaimLimit      int           `envconfig:"LEAGUELEDGER_SYNC_CLAIM_LIMIT" default:"200"`
	Interval        time.Duration `envconfig:"LEAGUELEDGER_SYNC_INTERVAL" default:"5m"`
	BatchDelay      time.Duration `envconfig:"LEAGUELEDGER_SYNC_BATCH_DELAY" default:"1s"`
	StuckSyncingTTL time.Duration `envconfig:"LEAGUELEDGER_SYNC_STUCK_TTL" default:"30m"`
	LockKey         string        `envconfig:"LEAGUELEDGER_SYNC_LOCK_KEY" default:"ll:lock:sync-worker"`
	LockTTL         time.Duration `envconfig:"LEAGUELEDGER_SYNC_LOCK_TTL" default:"10m"`
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
