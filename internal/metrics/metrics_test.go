package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveApply("UpsertUser", 0.05)
	})

	SetQueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(queueDepth))

	SetSyncStatus(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(syncStatus))

	before := testutil.ToFloat64(queueApplied.WithLabelValues("CreateBooking"))
	IncApplied("CreateBooking")
	assert.Equal(t, before+1, testutil.ToFloat64(queueApplied.WithLabelValues("CreateBooking")))

	IncFailure("UpsertTrip", "transient")
	assert.Equal(t, 1.0, testutil.ToFloat64(queueFailures.WithLabelValues("UpsertTrip", "transient")))

	IncDeadLettered("UpsertTrip")
	assert.Equal(t, 1.0, testutil.ToFloat64(queueDeadLettered.WithLabelValues("UpsertTrip")))

	IncCacheRefresh("unreachable")
	assert.Equal(t, 1.0, testutil.ToFloat64(cacheRefresh.WithLabelValues("unreachable")))
}
