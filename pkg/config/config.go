package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
)

type Config struct {
	App         AppConfig
	HTTP        HTTPConfig
	Store       StoreConfig
	DB          DBConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Favorites   FavoritesConfig
	Backend     BackendConfig
	Maintenance MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// HTTPConfig tunes the storefront API server.
type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout     time.Duration `envconfig:"STOREFRONT_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"STOREFRONT_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"STOREFRONT_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// StoreConfig selects the KeyValueStore medium backing cart/favorites snapshots.
type StoreConfig struct {
	Driver    string `envconfig:"STOREFRONT_STORE_DRIVER" default:"memory"`
	Namespace string `envconfig:"STOREFRONT_STORE_NAMESPACE" default:"storefront"`
	// AutoMigrate applies the SQL migrations on boot for the sql drivers.
	AutoMigrate bool `envconfig:"STOREFRONT_STORE_AUTO_MIGRATE" default:"true"`
}

// Kind returns the parsed store driver.
func (s StoreConfig) Kind() (enums.StoreDriver, error) {
	return enums.ParseStoreDriver(strings.ToLower(strings.TrimSpace(s.Driver)))
}

type DBConfig struct {
	DSN string `envconfig:"STOREFRONT_DB_DSN"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CacheConfig struct {
	ProductTTL       time.Duration `envconfig:"STOREFRONT_CACHE_PRODUCT_TTL" default:"5m"`
	ProductMaxSize   int           `envconfig:"STOREFRONT_CACHE_PRODUCT_MAX_SIZE" default:"256"`
	FavoritesTTL     time.Duration `envconfig:"STOREFRONT_CACHE_FAVORITES_TTL" default:"3m"`
	FavoritesMaxSize int           `envconfig:"STOREFRONT_CACHE_FAVORITES_MAX_SIZE" default:"1024"`
}

type FavoritesConfig struct {
	RefreshAttempts int `envconfig:"STOREFRONT_FAVORITES_REFRESH_ATTEMPTS" default:"3"`
}

// BackendConfig points at the storefront REST backend. An empty BaseURL runs
// the in-process order service instead.
type BackendConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_BACKEND_URL"`
	APIToken       string        `envconfig:"STOREFRONT_BACKEND_API_TOKEN"`
	Timeout        time.Duration `envconfig:"STOREFRONT_BACKEND_TIMEOUT" default:"10s"`
	PaymentBaseURL string        `envconfig:"STOREFRONT_PAYMENT_BASE_URL" default:"https://pay.localhost/checkout"`
	// BreakerFailures consecutive upstream failures open the circuit for BreakerCooldown.
	BreakerFailures uint32        `envconfig:"STOREFRONT_BACKEND_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"STOREFRONT_BACKEND_BREAKER_COOLDOWN" default:"30s"`
}

// MaintenanceConfig drives the background loop that flushes session
// snapshots, evicts idle sessions, sweeps expired cache entries and expires
// unpaid orders.
type MaintenanceConfig struct {
	Enabled  bool          `envconfig:"STOREFRONT_MAINTENANCE_ENABLED" default:"true"`
	Interval time.Duration `envconfig:"STOREFRONT_MAINTENANCE_INTERVAL" default:"5m"`
	// PendingOrderTTL only applies to the in-process order service.
	PendingOrderTTL time.Duration `envconfig:"STOREFRONT_PENDING_ORDER_TTL" default:"30m"`
	SessionIdleTTL  time.Duration `envconfig:"STOREFRONT_SESSION_IDLE_TTL" default:"30m"`
	JobTimeout      time.Duration `envconfig:"STOREFRONT_MAINTENANCE_JOB_TIMEOUT" default:"1m"`
}

// InProcess reports whether orders are served by the embedded order service.
func (b BackendConfig) InProcess() bool {
	return strings.TrimSpace(b.BaseURL) == ""
}

func (c *Config) validate() error {
	driver, err := c.Store.Kind()
	if err != nil {
		return fmt.Errorf("%s: %w", EnvStoreDriver, err)
	}
	switch driver {
	case enums.StoreDriverRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("either %s or %s is required for the redis store", EnvRedisURL, EnvRedisAddr)
		}
	case enums.StoreDriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("%s is required for the postgres store", EnvDBDSN)
		}
	case enums.StoreDriverSQLite:
		if c.DB.DSN == "" {
			c.DB.DSN = defaultSQLiteDSN
		}
	}
	if c.Cache.ProductTTL <= 0 || c.Cache.FavoritesTTL <= 0 {
		return fmt.Errorf("cache ttls must be positive")
	}
	if c.Favorites.RefreshAttempts <= 0 {
		c.Favorites.RefreshAttempts = 1
	}
	return nil
}
