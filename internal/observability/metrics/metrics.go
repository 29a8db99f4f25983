package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoreMetrics exposes counters/histograms for the buffering and orchestration flows.
type CoreMetrics struct {
	bufferFlushTotal  *prometheus.CounterVec
	bufferedMessages  prometheus.Counter
	turnTotal         *prometheus.CounterVec
	turnLatency       prometheus.Histogram
	toolCallTotal     *prometheus.CounterVec
	reminderSendTotal *prometheus.CounterVec
}

func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	m := &CoreMetrics{
		bufferFlushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convia",
			Subsystem: "buffer",
			Name:      "flush_total",
			Help:      "Total buffer flushes delivered",
		}, []string{"kind"}),
		bufferedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "convia",
			Subsystem: "buffer",
			Name:      "messages_total",
			Help:      "Total inbound messages accepted by the buffer",
		}),
		turnTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convia",
			Subsystem: "conversation",
			Name:      "turn_total",
			Help:      "Total conversation turns by terminal state",
		}, []string{"state"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "convia",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one orchestrated turn",
			Buckets:   prometheus.DefBuckets,
		}),
		toolCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convia",
			Subsystem: "conversation",
			Name:      "tool_call_total",
			Help:      "Total tool invocations by tool and status",
		}, []string{"tool", "status"}),
		reminderSendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convia",
			Subsystem: "reminders",
			Name:      "send_total",
			Help:      "Total reminder send attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bufferFlushTotal,
		m.bufferedMessages,
		m.turnTotal,
		m.turnLatency,
		m.toolCallTotal,
		m.reminderSendTotal,
	)
	return m
}

func (m *CoreMetrics) ObserveBufferedMessage() {
	if m == nil {
		return
	}
	m.bufferedMessages.Inc()
}

// ObserveFlush records one delivered flush; kind is "text" or "media".
func (m *CoreMetrics) ObserveFlush(kind string) {
	if m == nil {
		return
	}
	m.bufferFlushTotal.WithLabelValues(kind).Inc()
}

func (m *CoreMetrics) ObserveTurn(state string, seconds float64) {
	if m == nil {
		return
	}
	m.turnTotal.WithLabelValues(state).Inc()
	m.turnLatency.Observe(seconds)
}

func (m *CoreMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallTotal.WithLabelValues(tool, status).Inc()
}

func (m *CoreMetrics) ObserveReminderSend(outcome string) {
	if m == nil {
		return
	}
	m.reminderSendTotal.WithLabelValues(outcome).Inc()
}
