// Package metrics provides Prometheus metrics for both roles. The serve
// role can expose them over HTTP; the consume role only records.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transfer direction label values.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

var (
	// Discovery metrics
	discoveryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poek_discovery_requests_total",
			Help: "Discovery datagrams received, by handling result",
		},
		[]string{"result"},
	)

	// Catalog metrics
	catalogPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poek_catalog_pushes_total",
			Help: "Catalog pushes attempted, by outcome",
		},
		[]string{"status"},
	)

	catalogPullsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poek_catalog_pulls_total",
			Help: "Catalog streams received, by outcome",
		},
		[]string{"status"},
	)

	// Transfer metrics
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poek_transfers_total",
			Help: "Finished transfers, by direction and outcome",
		},
		[]string{"direction", "status"},
	)

	transferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poek_transfer_bytes_total",
			Help: "Bytes moved on the wire, by direction",
		},
		[]string{"direction"},
	)

	activeTransfers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poek_active_transfers",
			Help: "Transfers currently in flight, by direction",
		},
		[]string{"direction"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poek_transfer_duration_seconds",
			Help:    "Transfer lifetime in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDiscoveryRequest records one received discovery datagram.
func RecordDiscoveryRequest(result string) {
	discoveryRequestsTotal.WithLabelValues(result).Inc()
}

// RecordCatalogPush records a catalog push attempt.
func RecordCatalogPush(status string) {
	catalogPushesTotal.WithLabelValues(status).Inc()
}

// RecordCatalogPull records a received catalog stream.
func RecordCatalogPull(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	catalogPullsTotal.WithLabelValues(status).Inc()
}

// TransferStarted records a transfer entering flight.
func TransferStarted(direction string) {
	activeTransfers.WithLabelValues(direction).Inc()
}

// TransferFinished records a transfer leaving flight.
func TransferFinished(direction, status string, bytes int64, duration time.Duration) {
	activeTransfers.WithLabelValues(direction).Dec()
	transfersTotal.WithLabelValues(direction, status).Inc()
	transferBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}
