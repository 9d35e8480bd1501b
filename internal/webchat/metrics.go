package webchat

import "github.com/prometheus/client_golang/prometheus"

const (
	sourceSeed     = "seed"
	sourcePush     = "push"
	sourceResponse = "response"
	sourceSummary  = "summary"
)

var (
	messagesMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webchat_messages_merged_total",
			Help: "Messages appended to a widget transcript, by delivery path.",
		},
		[]string{"source"},
	)
	messagesDuplicate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webchat_messages_duplicate_total",
			Help: "Messages dropped because their id was already in the transcript.",
		},
		[]string{"source"},
	)
	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webchat_backend_requests_total",
			Help: "Backend calls made by widget sessions.",
		},
		[]string{"operation", "outcome"},
	)
	pushReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webchat_push_reconnects_total",
			Help: "Push channel reconnect attempts.",
		},
	)
	pushSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webchat_push_subscriptions",
			Help: "Push channel subscriptions currently held.",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesMerged, messagesDuplicate, backendRequests, pushReconnects, pushSubscriptions)
}

func observeMerge(source string, appended bool) {
	if appended {
		messagesMerged.WithLabelValues(source).Inc()
		return
	}
	messagesDuplicate.WithLabelValues(source).Inc()
}

func observeRequest(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	backendRequests.WithLabelValues(operation, outcome).Inc()
}
