package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Wallet    WalletConfig
	Pricing   PricingConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	BigQuery  BigQueryConfig
	Outbox    OutboxConfig
	Eventing  EventingConfig
	Cron      CronConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Wallet.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VENDORISLAND_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDORISLAND_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENDORISLAND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENDORISLAND_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"VENDORISLAND_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"VENDORISLAND_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"VENDORISLAND_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN string `envconfig:"VENDORISLAND_DB_DSN"`

	Host     string `envconfig:"VENDORISLAND_DB_HOST"`
	Port     int    `envconfig:"VENDORISLAND_DB_PORT" default:"5432"`
	User     string `envconfig:"VENDORISLAND_DB_USER"`
	Password string `envconfig:"VENDORISLAND_DB_PASSWORD"`
	Name     string `envconfig:"VENDORISLAND_DB_NAME"`
	SSLMode  string `envconfig:"VENDORISLAND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDORISLAND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENDORISLAND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENDORISLAND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDORISLAND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"VENDORISLAND_AUTO_MIGRATE" default:"false"`
	// SlowQuery logs statements slower than this at warn; zero disables it.
	SlowQuery time.Duration `envconfig:"VENDORISLAND_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDORISLAND_REDIS_URL"`
	Address      string        `envconfig:"VENDORISLAND_REDIS_ADDR"`
	Password     string        `envconfig:"VENDORISLAND_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDORISLAND_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDORISLAND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENDORISLAND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENDORISLAND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDORISLAND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDORISLAND_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VENDORISLAND_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VENDORISLAND_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VENDORISLAND_JWT_EXPIRATION_MINUTES" default:"60"`
	// Leeway tolerates clock skew between the token issuer and this service.
	Leeway time.Duration `envconfig:"VENDORISLAND_JWT_LEEWAY" default:"30s"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// WalletConfig drives reservation and settlement policy.
type WalletConfig struct {
	// FeePolicy is "reserved" (platform fee held with the supplier cost) or
	// "separate" (fee debited from available balance at settlement).
	FeePolicy            string        `envconfig:"VENDORISLAND_WALLET_FEE_POLICY" default:"reserved"`
	AllowNegativeBalance bool          `envconfig:"VENDORISLAND_WALLET_ALLOW_NEGATIVE" default:"false"`
	DefaultCurrency      string        `envconfig:"VENDORISLAND_WALLET_CURRENCY" default:"USD"`
	RetryMaxAttempts     int           `envconfig:"VENDORISLAND_WALLET_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay       time.Duration `envconfig:"VENDORISLAND_WALLET_RETRY_BASE_DELAY" default:"50ms"`
	// The platform fee charged per order is PlatformFeeFixedCents plus
	// PlatformFeeBps basis points of the order subtotal.
	PlatformFeeBps        int64 `envconfig:"VENDORISLAND_WALLET_PLATFORM_FEE_BPS" default:"0"`
	PlatformFeeFixedCents int64 `envconfig:"VENDORISLAND_WALLET_PLATFORM_FEE_FIXED_CENTS" default:"0"`
}

func (w WalletConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(w.FeePolicy)) {
	case FeePolicyReserved, FeePolicySeparate:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvWalletFeePolicy, FeePolicyReserved, FeePolicySeparate)
	}
	if w.PlatformFeeBps < 0 || w.PlatformFeeBps > 10000 {
		return fmt.Errorf("%s must be between 0 and 10000", EnvWalletPlatformFeeBps)
	}
	if w.PlatformFeeFixedCents < 0 {
		return fmt.Errorf("%s cannot be negative", EnvWalletPlatformFeeFixed)
	}
	return nil
}

type PricingConfig struct {
	Workers int `envconfig:"VENDORISLAND_PRICING_WORKERS" default:"4"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VENDORISLAND_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"VENDORISLAND_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VENDORISLAND_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic           string `envconfig:"VENDORISLAND_PUBSUB_DOMAIN_TOPIC" required:"true"`
	AnalyticsSubscription string `envconfig:"VENDORISLAND_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"VENDORISLAND_BIGQUERY_DATASET" default:"vendorisland"`
	LedgerFactTable string `envconfig:"VENDORISLAND_BIGQUERY_LEDGER_TABLE" default:"ledger_facts"`
	// Endpoint points the client at a local emulator; credentials are skipped when set.
	Endpoint       string        `envconfig:"VENDORISLAND_BIGQUERY_ENDPOINT"`
	InsertAttempts int           `envconfig:"VENDORISLAND_BIGQUERY_INSERT_ATTEMPTS" default:"3"`
	InsertBackoff  time.Duration `envconfig:"VENDORISLAND_BIGQUERY_INSERT_BACKOFF" default:"250ms"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"VENDORISLAND_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"VENDORISLAND_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"VENDORISLAND_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"VENDORISLAND_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"VENDORISLAND_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

// EventingConfig tunes Pub/Sub consumers. ClaimTTL bounds how long a crashed
// consumer can block redelivery of the event it was handling.
type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"VENDORISLAND_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	ClaimTTL               time.Duration `envconfig:"VENDORISLAND_EVENTING_CLAIM_TTL" default:"2m"`
	MaxOutstanding         int           `envconfig:"VENDORISLAND_EVENTING_MAX_OUTSTANDING" default:"100"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"VENDORISLAND_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"VENDORISLAND_CRON_LOCK_TTL" default:"5m"`
	// ReconcileEvery spaces out full ledger replays; the topup retry still runs every Interval.
	ReconcileEvery time.Duration `envconfig:"VENDORISLAND_CRON_RECONCILE_EVERY" default:"1h"`
}

// RateLimitConfig bounds authenticated API traffic per caller.
type RateLimitConfig struct {
	Window      time.Duration `envconfig:"VENDORISLAND_RATE_LIMIT_WINDOW" default:"1m"`
	VendorLimit int           `envconfig:"VENDORISLAND_RATE_LIMIT_VENDOR_LIMIT" default:"120"`
	AdminLimit  int           `envconfig:"VENDORISLAND_RATE_LIMIT_ADMIN_LIMIT" default:"300"`
}

type CORSConfig struct {
	AllowedOrigins []string      `envconfig:"VENDORISLAND_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxAge         time.Duration `envconfig:"VENDORISLAND_CORS_MAX_AGE" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
