package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
postgres:
  dsn: "postgres://localhost/race"
`

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("AUTH_JWT_SECRET", "")
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Logging.Service != "race-service" || cfg.Logging.Env != "dev" || cfg.Logging.Backend != "std" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Tracking.FinishRadiusMeters != 100 || cfg.Tracking.PersistWorkers != 4 || cfg.Tracking.PersistQueue != 1024 {
		t.Fatalf("tracking defaults = %+v", cfg.Tracking)
	}
	if cfg.Tracking.BroadcastIntervalOr() != time.Second {
		t.Fatalf("broadcast interval = %v", cfg.Tracking.BroadcastIntervalOr())
	}
	if cfg.WS.PingEveryOr() != 15*time.Second || cfg.WS.ReadLimit != 64<<10 || cfg.WS.Burst != 40 {
		t.Fatalf("ws defaults = %+v", cfg.WS)
	}
	if cfg.Postgres.HealthCheckPeriodOr() != 30*time.Second {
		t.Fatalf("health check period = %v", cfg.Postgres.HealthCheckPeriodOr())
	}
	if cfg.Auth.Enabled() {
		t.Fatal("auth must be off without a secret")
	}
}

func TestLoad_DurationsAndEnv(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://env/race")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, minimal+`
tracking:
  broadcastInterval: 500ms
  persistTimeout: nonsense
ws:
  pingEvery: 5s
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Postgres.DSN != "postgres://env/race" {
		t.Fatalf("dsn = %q", cfg.Postgres.DSN)
	}
	if !cfg.Auth.Enabled() || cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if got := cfg.Tracking.BroadcastIntervalOr(); got != 500*time.Millisecond {
		t.Fatalf("broadcast interval = %v", got)
	}
	if got := cfg.Tracking.PersistTimeoutOr(); got != 5*time.Second {
		t.Fatalf("invalid duration must fall back, got %v", got)
	}
	if got := cfg.WS.PingEveryOr(); got != 5*time.Second {
		t.Fatalf("ping = %v", got)
	}
}

func TestLoad_Required(t *testing.T) {
	cases := map[string]string{
		"http.addr":    "grpc:\n  addr: \":1\"\npostgres:\n  dsn: x\n",
		"grpc.addr":    "http:\n  addr: \":1\"\npostgres:\n  dsn: x\n",
		"postgres.dsn": "http:\n  addr: \":1\"\ngrpc:\n  addr: \":2\"\n",
	}
	for field, body := range cases {
		_, err := Load(writeConfig(t, body))
		if err == nil || !strings.Contains(err.Error(), field) {
			t.Errorf("%s: err = %v", field, err)
		}
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	if _, err := Load(writeConfig(t, minimal+"breaker:\n  failureRatio: 1.5\n")); err == nil {
		t.Fatal("failure ratio above 1 must be rejected")
	}
	if _, err := Load(writeConfig(t, "http: [")); err == nil {
		t.Fatal("broken yaml must be rejected")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must be rejected")
	}
}

func TestLoadConfig_UsesConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, minimal))
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestShippedConfig(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("AUTH_JWT_SECRET", "")
	cfg, err := Load("config.yaml")
	if err != nil {
		t.Fatalf("shipped config.yaml: %v", err)
	}
	if cfg.Breaker.MinRequests != 10 || cfg.Breaker.TimeoutOr() != 30*time.Second {
		t.Fatalf("breaker = %+v", cfg.Breaker)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.HTTP.AllowedOrigins)
	}
}
