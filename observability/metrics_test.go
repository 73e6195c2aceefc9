package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	req := require.New(t)
	m := NewMetrics(prometheus.NewRegistry())

	m.Message("live", 0.01)
	m.Message("notified", 0.02)
	m.Message("live", 0.01)
	m.Notification("sent")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.QueueLength("notifications", 7)

	req.Equal(2.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("live")))
	req.Equal(1.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("notified")))
	req.Equal(1.0, testutil.ToFloat64(m.notifications.WithLabelValues("sent")))
	req.Equal(1.0, testutil.ToFloat64(m.sessionsActive))
	req.Equal(7.0, testutil.ToFloat64(m.queueLength.WithLabelValues("notifications")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Message("live", 1)
		m.Evicted()
		m.ParticipantOnline(true)
		m.Process(1, 1)
	})
}
