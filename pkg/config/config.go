package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Pricing      PricingConfig
	Orders       OrdersConfig
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QUICKCART_APP_ENV" required:"true"`
	Port         string `envconfig:"QUICKCART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"QUICKCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QUICKCART_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"QUICKCART_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"QUICKCART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"QUICKCART_DB_DSN"`
	Driver string `envconfig:"QUICKCART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"QUICKCART_DB_HOST"`
	Port     int    `envconfig:"QUICKCART_DB_PORT" default:"5432"`
	User     string `envconfig:"QUICKCART_DB_USER"`
	Password string `envconfig:"QUICKCART_DB_PASSWORD"`
	Name     string `envconfig:"QUICKCART_DB_NAME"`
	SSLMode  string `envconfig:"QUICKCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"QUICKCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"QUICKCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"QUICKCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"QUICKCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxTimeout bounds every transaction opened through Client.WithTx.
	TxTimeout time.Duration `envconfig:"QUICKCART_DB_TX_TIMEOUT" default:"10s"`

	// SlowQueryThreshold logs statements slower than this at warn level; 0 disables.
	SlowQueryThreshold time.Duration `envconfig:"QUICKCART_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the sqlite driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"QUICKCART_REDIS_URL"`
	Address      string        `envconfig:"QUICKCART_REDIS_ADDR"`
	Password     string        `envconfig:"QUICKCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"QUICKCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"QUICKCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"QUICKCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"QUICKCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"QUICKCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"QUICKCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"QUICKCART_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"QUICKCART_JWT_ISSUER" required:"true"`
	// ExpirationMinutes is only used when this service mints tokens itself.
	ExpirationMinutes int `envconfig:"QUICKCART_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PricingConfig struct {
	TaxRate               decimal.Decimal `envconfig:"QUICKCART_PRICING_TAX_RATE" default:"0.08"`
	FreeShippingThreshold decimal.Decimal `envconfig:"QUICKCART_PRICING_FREE_SHIPPING_THRESHOLD" default:"100.00"`
	FlatShippingFee       decimal.Decimal `envconfig:"QUICKCART_PRICING_FLAT_SHIPPING_FEE" default:"10.00"`
}

func (p PricingConfig) validate() error {
	if p.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingTaxRate)
	}
	if p.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingFreeShippingThreshold)
	}
	if p.FlatShippingFee.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvPricingFlatShippingFee)
	}
	return nil
}

type OrdersConfig struct {
	PageSize            int           `envconfig:"QUICKCART_ORDERS_PAGE_SIZE" default:"15"`
	NumberPrefix        string        `envconfig:"QUICKCART_ORDERS_NUMBER_PREFIX" default:"ORD"`
	NumberMaxAttempts   int           `envconfig:"QUICKCART_ORDERS_NUMBER_MAX_ATTEMPTS" default:"5"`
	IdempotencyTTL      time.Duration `envconfig:"QUICKCART_ORDERS_IDEMPOTENCY_TTL" default:"24h"`
	SessionCookieMaxAge time.Duration `envconfig:"QUICKCART_SESSION_COOKIE_MAX_AGE" default:"720h"`
}

type HTTPConfig struct {
	AllowedOrigins      []string      `envconfig:"QUICKCART_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	SecureCookies       bool          `envconfig:"QUICKCART_SECURE_COOKIES" default:"true"`
	CheckoutRateLimit   int           `envconfig:"QUICKCART_CHECKOUT_RATE_LIMIT" default:"10"`
	CheckoutRateWindow  time.Duration `envconfig:"QUICKCART_CHECKOUT_RATE_WINDOW" default:"1m"`
	ReadHeaderTimeout   time.Duration `envconfig:"QUICKCART_HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ShutdownGracePeriod time.Duration `envconfig:"QUICKCART_HTTP_SHUTDOWN_GRACE" default:"15s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"QUICKCART_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"QUICKCART_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"QUICKCART_PUBSUB_ORDERS_TOPIC" default:"quickcart-order-events"`
	OrdersSubscription string `envconfig:"QUICKCART_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"QUICKCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"QUICKCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"QUICKCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
