package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_events_total",
			Help: "Inbound real-time events by type and result code",
		},
		[]string{"type", "result"},
	)

	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_messages_persisted_total",
			Help: "Private messages written to the store",
		},
	)

	RoomEmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_room_emissions_total",
			Help: "Payloads emitted to rooms, by delivery path",
		},
		[]string{"path"},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_rooms_active",
			Help: "Rooms with at least one bound connection",
		},
	)

	RelayReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_relay_received_total",
			Help: "Room emissions received from the relay channel",
		},
	)
)
