package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()
	m.StoreFiles.WithLabelValues("ingested").Inc()
	m.RecordsEmitted.WithLabelValues("missing").Add(2)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.StoreFiles.WithLabelValues("ingested")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.RecordsEmitted.WithLabelValues("missing")), 0)
}

func TestMetricsRegisterUnderNamespace(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.ChunksWritten))
	m.ChunksWritten.Add(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "climate_etl_chunks_written_total", families[0].GetName())
}
