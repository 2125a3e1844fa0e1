package observability

import (
	"log/slog"
	"os"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/config"
)

// SetupLogger builds the process-wide JSON logger. Every line carries the
// service name and environment so job and agent logs from multiple
// deployments can be separated downstream. Dev runs at debug to expose the
// per-stage pipeline logging.
func SetupLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDev() {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
