package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"SetupScan/internal/domain/repository"
)

var _ repository.Metrics = (*Recorder)(nil)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	r.RecordRule("bos_confirmed", "pass")
	r.RecordRule("bos_confirmed", "pass")
	r.RecordTransition("phase1", "phase2", "completed")
	r.RecordTick("ok", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.rules.WithLabelValues("bos_confirmed", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("phase1", "phase2", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticks.WithLabelValues("ok")))
}
