package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			matched := 0
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestHelpersBeforeInitAreNoops(t *testing.T) {
	if exportTotal != nil {
		t.Skip("metrics already initialised")
	}
	IncExport("pdf", ResultSuccess)
	AddExpansion(1, 1, 1)
	ObserveReconcile(ResultSuccess, 1, 0, time.Second)
}

func TestCountersAccumulate(t *testing.T) {
	Init(nil, nil)
	Init(nil, nil)

	before := counterValue(t, "scentroute_export_total", map[string]string{"format": "xlsx", "result": ResultSuccess})
	IncExport("xlsx", "")
	IncExport("xlsx", ResultSuccess)
	after := counterValue(t, "scentroute_export_total", map[string]string{"format": "xlsx", "result": ResultSuccess})
	assert.Equal(t, before+2, after)

	createdBefore := counterValue(t, "scentroute_expansion_visits_total", map[string]string{"outcome": "created"})
	AddExpansion(3, 0, 1)
	assert.Equal(t, createdBefore+3, counterValue(t, "scentroute_expansion_visits_total", map[string]string{"outcome": "created"}))

	skippedBefore := counterValue(t, "scentroute_reconcile_runs_total", map[string]string{"result": ResultSkipped})
	ObserveReconcile(ResultSkipped, 0, 0, 0)
	assert.Equal(t, skippedBefore+1, counterValue(t, "scentroute_reconcile_runs_total", map[string]string{"result": ResultSkipped}))
}
