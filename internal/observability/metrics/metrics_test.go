package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("result", "approved"),
		attribute.String("member_id", "user-1"),
		attribute.String("source", "cash"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("result"), attrs[0].Key)
	assert.Equal(t, attribute.Key("source"), attrs[1].Key)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordProofReview(context.Background(), "approved")
		m.RecordTicketIssued(context.Background(), "Parcial")
		m.RecordSyncChanges(context.Background(), "added", 2)
		m.RecordTreasurySettlement(context.Background(), "cash")
		m.RecordNotificationFailed(context.Background(), "new_charge")
	})
}

func TestCountersAreRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "duesledger-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTicketIssued(ctx, "Completo")
	m.RecordTicketIssued(ctx, "Completo")
	m.RecordSyncChanges(ctx, "detached", 3)
	m.RecordSyncChanges(ctx, "added", 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[metric.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), totals["duesledger_tickets_issued_total"])
	assert.Equal(t, int64(3), totals["duesledger_sync_changes_total"])
	assert.Zero(t, totals["duesledger_proof_reviews_total"])
}
