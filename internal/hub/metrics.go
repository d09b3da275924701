// metrics.go — Prometheus-метрики дуплексных соединений.
package hub

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метки result для входящих сообщений.
const (
	resultOK               = "ok"
	resultMalformed        = "malformed"
	resultRateLimited      = "rate_limited"
	resultUnknownType      = "unknown_type"
	resultUnknownRecipient = "unknown_recipient"
)

var (
	// openConnections — количество открытых дуплексных соединений.
	openConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sp_ws_connections",
		Help: "Количество открытых WebSocket-соединений.",
	})

	// boundDevices — количество привязок deviceId → соединение.
	boundDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sp_ws_bound_devices",
		Help: "Количество устройств с привязанным WebSocket-соединением.",
	})

	// broadcastsTotal — количество широковещательных рассылок.
	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sp_broadcasts_total",
		Help: "Общее количество широковещательных рассылок.",
	})

	// sendFailuresTotal — неудачные постановки сообщения в очередь соединения.
	sendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sp_ws_send_failures_total",
			Help: "Сообщения, не поставленные в очередь соединения.",
		},
		[]string{"reason"},
	)

	// inboundMessagesTotal — входящие сообщения по типу и результату обработки.
	inboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sp_ws_inbound_messages_total",
			Help: "Входящие сообщения дуплексного канала.",
		},
		[]string{"type", "result"},
	)
)

// sendFailureReason возвращает метку причины для ошибки отправки.
func sendFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrSendBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrConnClosed):
		return "closed"
	default:
		return "other"
	}
}
