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
	ledgerAppends          metric.Int64Counter
	adjustRetries          metric.Int64Counter
	reconciliationMismatch metric.Int64Counter
	legacyCorrections      metric.Int64Counter
	legacyCorrectionMisses metric.Int64Counter
	balanceCacheHits       metric.Int64Counter
	balanceCacheMisses     metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "reserva"
	}
	meter := provider.Meter(name)

	ledgerAppends, err := meter.Int64Counter("reserva_ledger_appends_total")
	if err != nil {
		return nil, err
	}
	adjustRetries, err := meter.Int64Counter("reserva_holding_adjust_retries_total")
	if err != nil {
		return nil, err
	}
	reconciliationMismatch, err := meter.Int64Counter("reserva_holding_reconciliation_mismatch_total")
	if err != nil {
		return nil, err
	}
	legacyCorrections, err := meter.Int64Counter("reserva_legacy_corrections_total")
	if err != nil {
		return nil, err
	}
	legacyCorrectionMisses, err := meter.Int64Counter("reserva_legacy_correction_misses_total")
	if err != nil {
		return nil, err
	}
	balanceCacheHits, err := meter.Int64Counter("reserva_points_balance_cache_hits_total")
	if err != nil {
		return nil, err
	}
	balanceCacheMisses, err := meter.Int64Counter("reserva_points_balance_cache_misses_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ledgerAppends:          ledgerAppends,
		adjustRetries:          adjustRetries,
		reconciliationMismatch: reconciliationMismatch,
		legacyCorrections:      legacyCorrections,
		legacyCorrectionMisses: legacyCorrectionMisses,
		balanceCacheHits:       balanceCacheHits,
		balanceCacheMisses:     balanceCacheMisses,
	}, nil
}

// RecordLedgerAppend increments ledger append counts per kind (points, holding).
func (m *Metrics) RecordLedgerAppend(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ledgerAppends.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
	))
}

// RecordAdjustRetry increments the lost-update retry count.
func (m *Metrics) RecordAdjustRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.adjustRetries.Add(ctx, 1)
}

// RecordReconciliationMismatch increments the invariant-violation count.
func (m *Metrics) RecordReconciliationMismatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconciliationMismatch.Add(ctx, 1)
}

// RecordLegacyCorrection counts calls to the deprecated text-match endpoint.
func (m *Metrics) RecordLegacyCorrection(ctx context.Context, matched bool) {
	if m == nil {
		return
	}
	m.legacyCorrections.Add(ctx, 1)
	if !matched {
		m.legacyCorrectionMisses.Add(ctx, 1)
	}
}

// RecordBalanceCache counts cache hits and misses for the scalar balance.
func (m *Metrics) RecordBalanceCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.balanceCacheHits.Add(ctx, 1)
		return
	}
	m.balanceCacheMisses.Add(ctx, 1)
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
