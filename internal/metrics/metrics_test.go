package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsOnPrivateRegistry(t *testing.T) {
	a := NewCollector("opd")
	b := NewCollector("opd")

	a.ObserveBooking("booked")
	a.ObserveBooking("booked")
	a.ObserveBooking("slot_full")
	a.ObserveReconciliation("complete", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(a.BookingsTotal.WithLabelValues("booked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.BookingsTotal.WithLabelValues("slot_full")))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.LeaveCancellations))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BookingsTotal.WithLabelValues("booked")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveBooking("booked")
		c.ObserveTransition("cancelled")
		c.ObserveReconciliation("incomplete", 0)
		c.ObserveNotifications("k", "ok", 1)
		c.ObserveLeaveDecision("approved")
		c.ObserveRequest("GET", "/", "200", 0.1)
	})
	assert.NotNil(t, c.Handler())
}

func TestServerExposesWorkerCounters(t *testing.T) {
	c := NewCollector("opd_worker")
	c.ObserveTransition("missed")
	c.ObserveLeaveDecision("approved")

	srv := NewServer(":0", c)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `opd_worker_queue_appointment_transitions_total{to="missed"} 1`)
	assert.Contains(t, rr.Body.String(), `opd_worker_leave_decisions_total{status="approved"} 1`)
}
