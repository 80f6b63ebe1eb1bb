package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookNotifications metric.Int64Counter
	invalidSignatures    metric.Int64Counter
	gatewayFailures      metric.Int64Counter
	stockShortages       metric.Int64Counter
	ordersMaterialized   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "vivero"
	}
	meter := provider.Meter(name)

	webhookNotifications, err := meter.Int64Counter("vivero_webhook_notifications_total")
	if err != nil {
		return nil, err
	}
	invalidSignatures, err := meter.Int64Counter("vivero_webhook_invalid_signatures_total")
	if err != nil {
		return nil, err
	}
	gatewayFailures, err := meter.Int64Counter("vivero_gateway_failures_total")
	if err != nil {
		return nil, err
	}
	stockShortages, err := meter.Int64Counter("vivero_stock_shortages_total")
	if err != nil {
		return nil, err
	}
	ordersMaterialized, err := meter.Int64Counter("vivero_orders_materialized_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookNotifications: webhookNotifications,
		invalidSignatures:    invalidSignatures,
		gatewayFailures:      gatewayFailures,
		stockShortages:       stockShortages,
		ordersMaterialized:   ordersMaterialized,
	}, nil
}

// RecordWebhookNotification increments processed webhook counts per outcome.
func (m *Metrics) RecordWebhookNotification(ctx context.Context, topic, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("topic", strings.TrimSpace(topic)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.webhookNotifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvalidSignature increments rejected signature counts.
func (m *Metrics) RecordInvalidSignature(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.invalidSignatures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGatewayFailure increments gateway lookup failure counts.
func (m *Metrics) RecordGatewayFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.gatewayFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordStockShortage increments shortage counts seen during approval.
func (m *Metrics) RecordStockShortage(ctx context.Context) {
	if m == nil {
		return
	}
	m.stockShortages.Add(ctx, 1)
}

// RecordOrderMaterialized increments counts of orders created from webhooks.
func (m *Metrics) RecordOrderMaterialized(ctx context.Context, paymentStatus string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_status", strings.TrimSpace(paymentStatus)))
	m.ordersMaterialized.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"topic":          {},
	"result":         {},
	"reason":         {},
	"payment_status": {},
	"status_code":    {},
	"endpoint":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
