package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the gateway.
type Metrics struct {
	inboundEvents   *prometheus.CounterVec
	outboundFrames  *prometheus.CounterVec
	eventErrors     *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	connections     prometheus.Gauge
	slowConnections prometheus.Counter
	roomsEvicted    prometheus.Counter
	publishFailures prometheus.Counter
	publishedEvents prometheus.Counter
}

// NewMetrics registers the gateway collectors with reg. rooms reports the
// current number of rooms held in memory.
func NewMetrics(reg prometheus.Registerer, rooms func() int) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		inboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrumpoker",
			Name:      "inbound_events_total",
			Help:      "Client events received by type",
		}, []string{"type"}),

		outboundFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrumpoker",
			Name:      "outbound_frames_total",
			Help:      "Frames queued to connections by event type",
		}, []string{"type"}),

		eventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrumpoker",
			Name:      "event_errors_total",
			Help:      "Client events rejected by error kind",
		}, []string{"kind"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scrumpoker",
			Name:      "event_duration_seconds",
			Help:      "Time spent handling a client event",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"type"}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scrumpoker",
			Name:      "websocket_connections",
			Help:      "Open websocket connections",
		}),

		slowConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrumpoker",
			Name:      "slow_connections_closed_total",
			Help:      "Connections closed because their send buffer was full",
		}),

		roomsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrumpoker",
			Name:      "rooms_evicted_total",
			Help:      "Idle empty rooms removed by the sweeper",
		}),

		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrumpoker",
			Name:      "event_publish_failures_total",
			Help:      "Room events that could not be published to the event bus",
		}),

		publishedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrumpoker",
			Name:      "events_published_total",
			Help:      "Room events published to the event bus",
		}),
	}

	if rooms != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "scrumpoker",
			Name:      "rooms",
			Help:      "Rooms held in memory",
		}, func() float64 { return float64(rooms()) })
	}

	return m
}

// The methods below accept a nil receiver so components can run without
// metrics in tests.

func (m *Metrics) EventHandled(t EventType, d time.Duration) {
	if m == nil {
		return
	}
	m.inboundEvents.WithLabelValues(string(t)).Inc()
	m.eventDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}

func (m *Metrics) EventRejected(kind string) {
	if m == nil {
		return
	}
	m.eventErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) FramesQueued(t EventType, n int) {
	if m == nil {
		return
	}
	m.outboundFrames.WithLabelValues(string(t)).Add(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) SlowConnectionClosed() {
	if m == nil {
		return
	}
	m.slowConnections.Inc()
}

func (m *Metrics) RoomsEvicted(n int) {
	if m == nil {
		return
	}
	m.roomsEvicted.Add(float64(n))
}

func (m *Metrics) Published(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.publishedEvents.Inc()
		return
	}
	m.publishFailures.Inc()
}
