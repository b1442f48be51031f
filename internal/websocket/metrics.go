package websocket

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	delivered   prometheus.Counter
}

// NewMetrics registers the websocket collectors. A nil registerer gives
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatdesk_ws_connections",
			Help: "Current number of active websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatdesk_ws_rooms",
			Help: "Current number of websocket rooms.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatdesk_ws_messages_delivered_total",
			Help: "Total websocket messages delivered to clients.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.rooms, m.delivered)
	}
	return m
}

func (m *Metrics) incConnections() {
	m.connections.Inc()
}

func (m *Metrics) decConnections() {
	m.connections.Dec()
}

func (m *Metrics) setRooms(count int) {
	m.rooms.Set(float64(count))
}

func (m *Metrics) addDelivered(count int) {
	m.delivered.Add(float64(count))
}
