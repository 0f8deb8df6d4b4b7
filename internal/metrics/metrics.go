// Package metrics provides Prometheus metrics for the media services.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
)

const namespace = "erp_media"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	ImagesProcessed  *prometheus.CounterVec
	ProcessFailures  *prometheus.CounterVec
	ProcessDuration  prometheus.Histogram
	CompressionRatio prometheus.Histogram
	BytesSaved       prometheus.Counter
	CameraState      *prometheus.GaugeVec
	CollectionSize   prometheus.Gauge
	PublishTotal     *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ImagesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_processed_total",
			Help:      "Images resized and re-encoded, by output format",
		}, []string{"format"}),
		ProcessFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_failures_total",
			Help:      "Images rejected by the processor, by stage",
		}, []string{"stage"}),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Duration of image processing in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CompressionRatio: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_ratio_percent",
			Help:      "Size reduction of processed images in percent",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		BytesSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_saved_total",
			Help:      "Bytes saved by compression",
		}),
		CameraState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_state",
			Help:      "1 for the current camera session status",
		}, []string{"status"}),
		CollectionSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_images",
			Help:      "Images currently held for the product",
		}),
		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_images_total",
			Help:      "Images published to storage, by outcome",
		}, []string{"outcome"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProcessed implements imageproc.Observer.
func (m *Metrics) ObserveProcessed(img *imageproc.ProcessedImage, elapsed time.Duration) {
	m.ImagesProcessed.WithLabelValues(string(img.Format)).Inc()
	m.ProcessDuration.Observe(elapsed.Seconds())
	m.CompressionRatio.Observe(img.CompressionRatio)
	if saved := img.OriginalSize - img.CompressedSize; saved > 0 {
		m.BytesSaved.Add(float64(saved))
	}
}

// ObserveFailure implements imageproc.Observer.
func (m *Metrics) ObserveFailure(stage string) {
	m.ProcessFailures.WithLabelValues(stage).Inc()
}

// ObserveCameraState sets the gauge of the current status to 1 and the others to 0.
func (m *Metrics) ObserveCameraState(st capture.State) {
	for _, s := range []capture.Status{capture.StatusIdle, capture.StatusStarting, capture.StatusActive, capture.StatusError} {
		v := 0.0
		if s == st.Status {
			v = 1
		}
		m.CameraState.WithLabelValues(string(s)).Set(v)
	}
}

// SetCollectionSize records the number of held images.
func (m *Metrics) SetCollectionSize(n int) {
	m.CollectionSize.Set(float64(n))
}

// RecordPublish counts one published image outcome: stored, duplicate or failed.
func (m *Metrics) RecordPublish(outcome string) {
	m.PublishTotal.WithLabelValues(outcome).Inc()
}
