package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv          = "STOREFRONT_APP_ENV"
	EnvPort            = "STOREFRONT_APP_PORT"
	EnvStoreDriver     = "STOREFRONT_STORE_DRIVER"
	EnvStoreNamespace  = "STOREFRONT_STORE_NAMESPACE"
	EnvDBDSN           = "STOREFRONT_DB_DSN"
	EnvRedisURL        = "STOREFRONT_REDIS_URL"
	EnvRedisAddr       = "STOREFRONT_REDIS_ADDR"
	EnvProductTTL      = "STOREFRONT_CACHE_PRODUCT_TTL"
	EnvFavoritesTTL    = "STOREFRONT_CACHE_FAVORITES_TTL"
	EnvBackendURL      = "STOREFRONT_BACKEND_URL"
	EnvBackendTimeout  = "STOREFRONT_BACKEND_TIMEOUT"
	EnvRefreshAttempts = "STOREFRONT_FAVORITES_REFRESH_ATTEMPTS"

	defaultSQLiteDSN = "file:storefront.db?cache=shared"
)
