package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     string   `yaml:"readTimeout"`     // 10s
	IdleTimeout     string   `yaml:"idleTimeout"`     // 60s
	ShutdownTimeout string   `yaml:"shutdownTimeout"` // 10s
	AllowedOrigins  []string `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // race-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string `yaml:"dsn"`
	MaxConns          int32  `yaml:"maxConns"`
	MinConns          int32  `yaml:"minConns"`
	MaxConnLifetime   string `yaml:"maxConnLifetime"`
	MaxConnIdleTime   string `yaml:"maxConnIdleTime"`
	HealthCheckPeriod string `yaml:"healthCheckPeriod"`
}

// Auth enables token identity on the socket when JWTSecret is set.
type Auth struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
	ClockSkew string `yaml:"clockSkew"`
}

type Tracking struct {
	BroadcastInterval  string  `yaml:"broadcastInterval"`
	FinishRadiusMeters float64 `yaml:"finishRadiusMeters"`
	PersistWorkers     int     `yaml:"persistWorkers"`
	PersistQueue       int     `yaml:"persistQueue"`
	PersistTimeout     string  `yaml:"persistTimeout"`
	RestoreTimeout     string  `yaml:"restoreTimeout"`
}

type WS struct {
	PingEvery     string  `yaml:"pingEvery"`
	ReadLimit     int64   `yaml:"readLimit"`
	SendBuffer    int     `yaml:"sendBuffer"`
	RatePerSecond float64 `yaml:"ratePerSecond"`
	Burst         int     `yaml:"burst"`
}

type Breaker struct {
	MaxRequests  uint32  `yaml:"maxRequests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"minRequests"`
	FailureRatio float64 `yaml:"failureRatio"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Auth     Auth     `yaml:"auth"`
	Tracking Tracking `yaml:"tracking"`
	WS       WS       `yaml:"ws"`
	Breaker  Breaker  `yaml:"breaker"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return Load(path)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// secrets are usually injected by the environment
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		c.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")); v != "" {
		c.Auth.JWTSecret = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Tracking.FinishRadiusMeters < 0 {
		return errors.New("tracking.finishRadiusMeters must not be negative")
	}
	if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
		return errors.New("breaker.failureRatio must be within [0, 1]")
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "race-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	if c.Tracking.FinishRadiusMeters == 0 {
		c.Tracking.FinishRadiusMeters = 100
	}
	if c.Tracking.PersistWorkers <= 0 {
		c.Tracking.PersistWorkers = 4
	}
	if c.Tracking.PersistQueue <= 0 {
		c.Tracking.PersistQueue = 1024
	}

	if c.WS.ReadLimit <= 0 {
		c.WS.ReadLimit = 64 << 10
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.RatePerSecond <= 0 {
		c.WS.RatePerSecond = 20
	}
	if c.WS.Burst <= 0 {
		c.WS.Burst = 40
	}
	return nil
}

func (h HTTP) ReadTimeoutOr() time.Duration { return parseDurationOr(10*time.Second, h.ReadTimeout) }
func (h HTTP) IdleTimeoutOr() time.Duration { return parseDurationOr(60*time.Second, h.IdleTimeout) }
func (h HTTP) ShutdownTimeoutOr() time.Duration { return parseDurationOr(10*time.Second, h.ShutdownTimeout) }

func (p Postgres) MaxConnLifetimeOr() time.Duration {
	return parseDurationOr(time.Hour, p.MaxConnLifetime)
}

func (p Postgres) MaxConnIdleTimeOr() time.Duration {
	return parseDurationOr(30*time.Minute, p.MaxConnIdleTime)
}

func (p Postgres) HealthCheckPeriodOr() time.Duration {
	return parseDurationOr(30*time.Second, p.HealthCheckPeriod)
}

func (a Auth) Enabled() bool { return a.JWTSecret != "" }

func (a Auth) ClockSkewOr() time.Duration { return parseDurationOr(30*time.Second, a.ClockSkew) }

func (t Tracking) BroadcastIntervalOr() time.Duration {
	return parseDurationOr(time.Second, t.BroadcastInterval)
}

func (t Tracking) PersistTimeoutOr() time.Duration {
	return parseDurationOr(5*time.Second, t.PersistTimeout)
}

func (t Tracking) RestoreTimeoutOr() time.Duration {
	return parseDurationOr(10*time.Second, t.RestoreTimeout)
}

func (w WS) PingEveryOr() time.Duration { return parseDurationOr(15*time.Second, w.PingEvery) }

func (b Breaker) IntervalOr() time.Duration { return parseDurationOr(time.Minute, b.Interval) }
func (b Breaker) TimeoutOr() time.Duration { return parseDurationOr(30*time.Second, b.Timeout) }

// parseDurationOr returns def for empty, invalid or non-positive values.
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
