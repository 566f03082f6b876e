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
	stockMutations   metric.Int64Counter
	stockUnitsDelta  metric.Int64Counter
	itemsCreated     metric.Int64Counter
	alertsDelivered  metric.Int64Counter
	alertsFailed     metric.Int64Counter
	lowStockDetected metric.Int64Counter
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
		name = "stockledger"
	}
	meter := provider.Meter(name)

	stockMutations, err := meter.Int64Counter("stockledger_stock_mutations_total")
	if err != nil {
		return nil, err
	}
	stockUnitsDelta, err := meter.Int64Counter("stockledger_stock_units_moved_total")
	if err != nil {
		return nil, err
	}
	itemsCreated, err := meter.Int64Counter("stockledger_items_created_total")
	if err != nil {
		return nil, err
	}
	alertsDelivered, err := meter.Int64Counter("stockledger_alerts_delivered_total")
	if err != nil {
		return nil, err
	}
	alertsFailed, err := meter.Int64Counter("stockledger_alerts_failed_total")
	if err != nil {
		return nil, err
	}
	lowStockDetected, err := meter.Int64Counter("stockledger_low_stock_detected_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		stockMutations:   stockMutations,
		stockUnitsDelta:  stockUnitsDelta,
		itemsCreated:     itemsCreated,
		alertsDelivered:  alertsDelivered,
		alertsFailed:     alertsFailed,
		lowStockDetected: lowStockDetected,
	}, nil
}

// NewNop returns instruments backed by a no-op meter provider.
func NewNop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordStockMutation counts a committed quantity change and the absolute units moved.
func (m *Metrics) RecordStockMutation(ctx context.Context, changeType string, delta int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("change_type", strings.TrimSpace(changeType)))
	m.stockMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
	if delta < 0 {
		delta = -delta
	}
	m.stockUnitsDelta.Add(ctx, int64(delta), metric.WithAttributes(attrs...))
}

// RecordItemCreated increments created item counts.
func (m *Metrics) RecordItemCreated(ctx context.Context, category string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("category", strings.TrimSpace(category)))
	m.itemsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAlertDelivered increments alert deliveries per channel.
func (m *Metrics) RecordAlertDelivered(ctx context.Context, channel, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("kind", strings.TrimSpace(kind)),
	)
	m.alertsDelivered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAlertFailed increments failed alert deliveries per channel.
func (m *Metrics) RecordAlertFailed(ctx context.Context, channel, kind, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.alertsFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLowStockDetected counts items that crossed into low stock on the mutation path.
func (m *Metrics) RecordLowStockDetected(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.lowStockDetected.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"endpoint":    {},
	"method":      {},
	"status_code": {},
	"change_type": {},
	"category":    {},
	"channel":     {},
	"kind":        {},
	"source":      {},
	"reason":      {},
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
