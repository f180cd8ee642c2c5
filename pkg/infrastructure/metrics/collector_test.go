package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoOpCollector(t *testing.T) {
	collector := NewNoOpCollector()

	assert.NotPanics(t, func() {
		collector.IncrementCounter("validation_results_total", "result", "valid")
		collector.IncrementCounter("queries_classified_total")
		collector.RecordHistogram("prepare_duration_seconds", 0.004, "role", "syntax")
		collector.RecordGauge("pool_active_connections", 3, "pool", "parser")
	})
}

func TestNoOpCollector_TimerStillMeasures(t *testing.T) {
	timer := NewNoOpCollector().StartTimer("prepare")
	time.Sleep(10 * time.Millisecond)

	seconds := timer.Stop()
	assert.GreaterOrEqual(t, seconds, 0.01)
	assert.Less(t, seconds, 1.0)
}
