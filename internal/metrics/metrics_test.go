package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheHits.Inc()
	m.StoreOps.WithLabelValues("write", "ok").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["vaultkeep_cache_hits_total"])
	assert.True(t, names["vaultkeep_store_operations_total"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
}

func TestNewTwiceWithoutRegistry(t *testing.T) {
	a := OrNop(nil)
	b := OrNop(nil)
	a.CacheMisses.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheMisses))
}
