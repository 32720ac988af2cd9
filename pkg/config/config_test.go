package config

import (
	"os"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
)

func TestLoad_Defaults(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "dev" || !cfg.App.IsDev() {
		t.Fatalf("expected App.Env to be dev, got %q", cfg.App.Env)
	}
	if got := cfg.Cache.ProductTTL; got != 5*time.Minute {
		t.Fatalf("expected product ttl 5m, got %v", got)
	}
	if got := cfg.Cache.FavoritesTTL; got != 3*time.Minute {
		t.Fatalf("expected favorites ttl 3m, got %v", got)
	}
	kind, err := cfg.Store.Kind()
	if err != nil || kind != enums.StoreDriverMemory {
		t.Fatalf("expected memory store, got %q (%v)", kind, err)
	}
	if !cfg.Backend.InProcess() {
		t.Fatalf("expected in-process backend when url unset")
	}
	if len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Maintenance.SessionIdleTTL != 30*time.Minute || cfg.Maintenance.JobTimeout != time.Minute {
		t.Fatalf("unexpected maintenance timings %+v", cfg.Maintenance)
	}
	if !cfg.Maintenance.Enabled || cfg.Maintenance.Interval != 5*time.Minute {
		t.Fatalf("unexpected maintenance config %+v", cfg.Maintenance)
	}
}

func TestLoad_CORSOriginsList(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("STOREFRONT_CORS_ORIGINS", "https://shop.example.com,https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", cfg.HTTP.CORSOrigins)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_RedisDriverNeedsAddress(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvStoreDriver, "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected redis driver without address to fail")
	}

	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error with redis url: %v", err)
	}
}

func TestLoad_SQLiteDefaultsDSN(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvStoreDriver, "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DB.DSN != defaultSQLiteDSN {
		t.Fatalf("expected default sqlite dsn, got %q", cfg.DB.DSN)
	}
}

func TestLoad_UnknownDriver(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvStoreDriver, "etcd")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown driver to fail")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "dev")
	t.Setenv(EnvStoreDriver, "memory")
	t.Setenv(EnvBackendURL, "")
	t.Setenv(EnvRedisURL, "")
	t.Setenv(EnvRedisAddr, "")
	t.Setenv(EnvDBDSN, "")
}
