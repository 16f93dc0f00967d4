package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_operations_total",
		Help: "Diagram operations by type and result",
	}, []string{"type", "result"})

	positionBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_position_broadcasts_total",
		Help: "anchor.positions messages sent to rooms",
	})

	rejectedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collab_rejected_messages_total",
		Help: "Inbound websocket frames rejected before reaching the hub",
	})

	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collab_connected_clients",
		Help: "Websocket clients currently connected",
	})
)
