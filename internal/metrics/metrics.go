// Package metrics holds the bot's Prometheus collectors and the small HTTP
// server that exposes them next to the health check and the webhook.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfbot_updates_total",
			Help: "Inbound updates by message type.",
		},
		[]string{"type"},
	)

	ImagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfbot_images_total",
			Help: "Images received, by outcome.",
		},
		[]string{"result"},
	)

	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfbot_conversions_total",
			Help: "Finished conversions by encoder path and result.",
		},
		[]string{"path", "result"},
	)

	ConversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdfbot_conversion_duration_seconds",
		Help:    "Time spent turning a batch into a PDF.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	OCRFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdfbot_ocr_fallbacks_total",
		Help: "Batches where text recognition failed and the plain path was used.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdfbot_queue_depth",
		Help: "Conversion jobs waiting or running.",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdfbot_rate_limited_total",
		Help: "Updates dropped by the per-user limiter.",
	})

	CatalogOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfbot_catalog_ops_total",
			Help: "Catalog operations by kind and result.",
		},
		[]string{"op", "result"},
	)

	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdfbot_downloads_total",
			Help: "Platform file downloads by result.",
		},
		[]string{"result"},
	)
)

// Result maps an error to a low-cardinality label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
