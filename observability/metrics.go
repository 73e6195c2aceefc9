package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every chat counter. A nil *Metrics is valid and records nothing,
// which keeps unit tests free of registry plumbing.
type Metrics struct {
	sessionsActive     prometheus.Gauge
	participantsOnline prometheus.Gauge
	roomsActive        prometheus.Gauge
	messagesTotal      *prometheus.CounterVec
	sendLatency        prometheus.Histogram
	evictions          prometheus.Counter
	notifications      *prometheus.CounterVec
	readReceipts       prometheus.Counter
	workerRestarts     *prometheus.CounterVec
	droppedEvents      *prometheus.CounterVec
	queueLength        *prometheus.GaugeVec
	processRSS         prometheus.Gauge
	processCPU         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Current number of live connection sessions.",
		}),
		participantsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_participants_online",
			Help: "Participants holding at least one live connection.",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_rooms_active",
			Help: "Conversation rooms with at least one subscriber.",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages handled, grouped by outcome (live, notified, rejected, persistence_error).",
		}, []string{"outcome"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_send_latency_seconds",
			Help:    "Latency from send request to end of fan-out.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_handle_evictions_total",
			Help: "Connection handles evicted after a failed or slow delivery.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_notifications_total",
			Help: "Offline notifications grouped by result.",
		}, []string{"result"}),
		readReceipts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_read_receipts_total",
			Help: "Messages flipped from unread to read.",
		}),
		workerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_worker_restarts_total",
			Help: "Supervised worker restarts after a crash.",
		}, []string{"worker"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_dropped_events_total",
			Help: "Events dropped because a pipeline buffer was full.",
		}, []string{"pipeline"}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chat_queue_length",
			Help: "Sampled number of items waiting in an internal queue.",
		}, []string{"queue"}),
		processRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_process_rss_bytes",
			Help: "Resident memory of the chat process.",
		}),
		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_process_cpu_percent",
			Help: "CPU usage of the chat process.",
		}),
	}

	reg.MustRegister(
		m.sessionsActive,
		m.participantsOnline,
		m.roomsActive,
		m.messagesTotal,
		m.sendLatency,
		m.evictions,
		m.notifications,
		m.readReceipts,
		m.workerRestarts,
		m.droppedEvents,
		m.queueLength,
		m.processRSS,
		m.processCPU,
	)
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) ParticipantOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.participantsOnline.Inc()
		return
	}
	m.participantsOnline.Dec()
}

func (m *Metrics) RoomOpened() {
	if m == nil {
		return
	}
	m.roomsActive.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.roomsActive.Dec()
}

func (m *Metrics) Message(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.sendLatency.Observe(seconds)
	}
}

func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ReadReceipt() {
	if m == nil {
		return
	}
	m.readReceipts.Inc()
}

func (m *Metrics) WorkerRestarted(worker string) {
	if m == nil {
		return
	}
	m.workerRestarts.WithLabelValues(worker).Inc()
}

func (m *Metrics) Dropped(pipeline string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(pipeline).Inc()
}

func (m *Metrics) QueueLength(queue string, length int) {
	if m == nil {
		return
	}
	m.queueLength.WithLabelValues(queue).Set(float64(length))
}

func (m *Metrics) Process(rss uint64, cpu float64) {
	if m == nil {
		return
	}
	m.processRSS.Set(float64(rss))
	m.processCPU.Set(cpu)
}
