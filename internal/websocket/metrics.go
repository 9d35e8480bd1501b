package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webchat_ws_connections",
			Help: "Current number of visitor connections joined to a conversation.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webchat_ws_rooms",
			Help: "Current number of conversations with at least one listener.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webchat_ws_messages_delivered_total",
			Help: "Total push frames handed to visitor connections.",
		},
	)
	wsJoinsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webchat_ws_joins_rejected_total",
			Help: "Join requests refused for a conversation the visitor does not own.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsMessagesDelivered, wsJoinsRejected)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}
