package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)

	time.Sleep(50 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 50*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	second := timer.Duration()
	assert.Greater(t, second, first, "Duration should keep growing")
}

func TestTimerObserve(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_send_duration_seconds",
		Help:    "test histogram",
		Buckets: prometheus.DefBuckets,
	})
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_request_duration_seconds",
		Help:    "test histogram vec",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	timer.ObserveDuration(hist)
	timer.ObserveDurationVec(vec, "GET")

	assert.NotZero(t, timer.Duration())
}

func TestTimersAreIndependent(t *testing.T) {
	older := NewTimer()
	time.Sleep(30 * time.Millisecond)
	newer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	assert.Greater(t, older.Duration(), newer.Duration())
}
