package logger

import (
	"io"
	"log/slog"
	"os"
)

var def *slog.Logger

// Init builds the process logger and installs it as slog's default.
func Init(cfg Config) *slog.Logger {
	return InitTo(os.Stdout, cfg)
}

func InitTo(w io.Writer, cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "race-service"
	}
	cfg.InstanceID = ensureInstanceID(cfg.InstanceID)

	if cfg.Backend == "" {
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		} else {
			cfg.Backend = BackendZap
		}
	}

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(w, cfg)
	default:
		h = newStdHandler(w, cfg)
	}

	base := slog.New(h.WithAttrs(commonAttrs(cfg)))
	slog.SetDefault(base)
	def = base

	return base
}

func L() *slog.Logger {
	if def != nil {
		return def
	}

	return Init(Config{})
}
