package whatsapp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wa",
		Name:      "sessions_connected",
		Help:      "Sessions currently in the connected state.",
	})

	messagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wa",
		Name:      "messages_ingested_total",
		Help:      "Messages persisted by the ingestion pipeline.",
	}, []string{"direction"})

	messagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wa",
		Name:      "messages_dropped_total",
		Help:      "Inbound messages rejected by the ingestion filter.",
	}, []string{"reason"})

	reconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wa",
		Name:      "reconnects_scheduled_total",
		Help:      "Automatic reconnects scheduled after a recoverable closure.",
	})
)

func direction(fromMe bool) string {
	if fromMe {
		return "outbound"
	}
	return "inbound"
}
