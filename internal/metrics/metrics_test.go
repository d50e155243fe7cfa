package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CallsScheduled.WithLabelValues("retention_check").Inc()
	m.WebhooksReceived.WithLabelValues("processed").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsScheduled.WithLabelValues("retention_check")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WebhooksReceived.WithLabelValues("processed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewNopIsIndependent(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewNop()
	b := NewNop()
	a.SignatureFailures.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.SignatureFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SignatureFailures))
}
