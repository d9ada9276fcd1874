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
	accessChecks     metric.Int64Counter
	accessDenied     metric.Int64Counter
	usageRecords     metric.Int64Counter
	recordLockWaits  metric.Int64Histogram
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
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
		name = "gatekeeper"
	}
	meter := provider.Meter(name)

	accessChecks, err := meter.Int64Counter("gatekeeper_access_checks_total")
	if err != nil {
		return nil, err
	}
	accessDenied, err := meter.Int64Counter("gatekeeper_access_denied_total")
	if err != nil {
		return nil, err
	}
	usageRecords, err := meter.Int64Counter("gatekeeper_usage_records_total")
	if err != nil {
		return nil, err
	}
	recordLockWaits, err := meter.Int64Histogram("gatekeeper_record_lock_wait_ms")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("gatekeeper_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("gatekeeper_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		accessChecks:     accessChecks,
		accessDenied:     accessDenied,
		usageRecords:     usageRecords,
		recordLockWaits:  recordLockWaits,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordAccessCheck increments access decision counts.
func (m *Metrics) RecordAccessCheck(ctx context.Context, featureCode, tier string, allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	attrs := FilterAttributes(
		attribute.String("feature_code", strings.TrimSpace(featureCode)),
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("decision", decision),
	)
	m.accessChecks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAccessDenied increments denial counts by reason kind.
func (m *Metrics) RecordAccessDenied(ctx context.Context, featureCode, tier, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("feature_code", strings.TrimSpace(featureCode)),
		attribute.String("tier", strings.TrimSpace(tier)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.accessDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUsageRecorded increments accepted usage record counts.
func (m *Metrics) RecordUsageRecorded(ctx context.Context, featureCode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("feature_code", strings.TrimSpace(featureCode)))
	m.usageRecords.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLockWait observes how long a recorder waited on the per-key lock.
func (m *Metrics) RecordLockWait(ctx context.Context, featureCode string, wait time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("feature_code", strings.TrimSpace(featureCode)))
	m.recordLockWaits.Record(ctx, wait.Milliseconds(), metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"feature_code": {},
	"tier":         {},
	"decision":     {},
	"reason":       {},
	"endpoint":     {},
	"status_code":  {},
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
