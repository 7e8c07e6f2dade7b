package config

const EnvPrefix = "QUICKCART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "QUICKCART_APP_ENV"
	EnvPort     = "QUICKCART_APP_PORT"
	EnvLogLevel = "QUICKCART_LOG_LEVEL"

	EnvDBDSN    = "QUICKCART_DB_DSN"
	EnvDBDriver = "QUICKCART_DB_DRIVER"
	EnvDBHost   = "QUICKCART_DB_HOST"
	EnvDBPort   = "QUICKCART_DB_PORT"
	EnvDBUser   = "QUICKCART_DB_USER"
	EnvDBName   = "QUICKCART_DB_NAME"

	EnvRedisURL = "QUICKCART_REDIS_URL"

	EnvJWTSecret = "QUICKCART_JWT_SECRET"
	EnvJWTIssuer = "QUICKCART_JWT_ISSUER"

	EnvPricingTaxRate               = "QUICKCART_PRICING_TAX_RATE"
	EnvPricingFreeShippingThreshold = "QUICKCART_PRICING_FREE_SHIPPING_THRESHOLD"
	EnvPricingFlatShippingFee       = "QUICKCART_PRICING_FLAT_SHIPPING_FEE"

	EnvOrdersPageSize = "QUICKCART_ORDERS_PAGE_SIZE"

	EnvGCPProjectID      = "QUICKCART_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "QUICKCART_PUBSUB_ORDERS_TOPIC"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
