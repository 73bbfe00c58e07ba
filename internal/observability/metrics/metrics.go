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

// Metrics exposes the reconciliation instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	proofReviews        metric.Int64Counter
	ticketsIssued       metric.Int64Counter
	syncChanges         metric.Int64Counter
	treasurySettlements metric.Int64Counter
	notificationsFailed metric.Int64Counter
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
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New creates the instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "duesledger"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.proofReviews, err = meter.Int64Counter("duesledger_proof_reviews_total"); err != nil {
		return nil, err
	}
	if m.ticketsIssued, err = meter.Int64Counter("duesledger_tickets_issued_total"); err != nil {
		return nil, err
	}
	if m.syncChanges, err = meter.Int64Counter("duesledger_sync_changes_total"); err != nil {
		return nil, err
	}
	if m.treasurySettlements, err = meter.Int64Counter("duesledger_treasury_settlements_total"); err != nil {
		return nil, err
	}
	if m.notificationsFailed, err = meter.Int64Counter("duesledger_notifications_failed_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordProofReview counts approve/reject decisions.
func (m *Metrics) RecordProofReview(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.proofReviews.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTicketIssued counts tickets by their payment status snapshot.
func (m *Metrics) RecordTicketIssued(ctx context.Context, paymentStatus string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_status", strings.TrimSpace(paymentStatus)))
	m.ticketsIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncChanges adds n row changes of one kind (added, reintegrated, detached, deleted).
func (m *Metrics) RecordSyncChanges(ctx context.Context, change string, n int) {
	if m == nil || n <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("change", strings.TrimSpace(change)))
	m.syncChanges.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordTreasurySettlement(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.treasurySettlements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotificationFailed(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.notificationsFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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

// Member, group and payment ids are never labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"result":         {},
	"payment_status": {},
	"change":         {},
	"source":         {},
	"event_type":     {},
	"status_code":    {},
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
