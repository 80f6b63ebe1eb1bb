package observability

import (
	"github.com/viveroverde/vivero/internal/config"
	"github.com/viveroverde/vivero/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
)

func provideMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.MetricsEndpoint,
		ExporterProtocol: cfg.MetricsProtocol,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}
