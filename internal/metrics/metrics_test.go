package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientMetricsReusesOnReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := NewClientMetrics(reg, "10.0.0.1:4000")
	require.NotNil(t, a)

	assert.NotPanics(t, func() {
		b := NewClientMetrics(reg, "10.0.0.1:4000")
		require.NotNil(t, b)
	})
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *ClientMetrics
	assert.NotPanics(t, func() {
		m.IncRpcSent()
		m.IncRpcFailed()
		m.ObserveWriteLatency(5 * time.Millisecond)
	})
}
