package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("notify", reg)

	m.Deliveries.WithLabelValues("EMAIL", "success").Inc()
	m.RoutingMisses.WithLabelValues("order.returned").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("EMAIL", "success")))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["notify_delivery_attempts_total"])
	assert.True(t, names["notify_consumer_routing_misses_total"])
}

func TestNopDoesNotPanicOnReuse(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
