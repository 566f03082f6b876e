package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("change_type", "STOCK_OUT"),
		attribute.String("sku", "A1"),
		attribute.String("channel", "email"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "change_type" && attrs[1].Key != "change_type" {
		t.Fatalf("expected change_type to be retained")
	}
	if attrs[0].Key != "channel" && attrs[1].Key != "channel" {
		t.Fatalf("expected channel to be retained")
	}
}

func TestRecordStockMutationCountsAbsoluteUnits(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "stockledger"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordStockMutation(ctx, "STOCK_OUT", -7)
	m.RecordStockMutation(ctx, "STOCK_IN", 4)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	var units, mutations int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch metric.Name {
				case "stockledger_stock_units_moved_total":
					units += dp.Value
				case "stockledger_stock_mutations_total":
					mutations += dp.Value
				}
			}
		}
	}
	if units != 11 {
		t.Fatalf("expected 11 units moved, got %d", units)
	}
	if mutations != 2 {
		t.Fatalf("expected 2 mutations, got %d", mutations)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordStockMutation(context.Background(), "ADJUSTMENT", 1)
	m.RecordAlertFailed(context.Background(), "email", "single", "timeout")
}
