package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/metrics"
)

var _ imageproc.Observer = (*metrics.Metrics)(nil)

func TestObserveProcessed(t *testing.T) {
	m := metrics.New()
	m.ObserveProcessed(&imageproc.ProcessedImage{
		Format:           imageproc.FormatJPEG,
		OriginalSize:     1000,
		CompressedSize:   250,
		CompressionRatio: 75,
	}, 20*time.Millisecond)
	m.ObserveProcessed(&imageproc.ProcessedImage{
		Format:         imageproc.FormatPNG,
		OriginalSize:   100,
		CompressedSize: 400,
	}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesProcessed.WithLabelValues("jpeg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesProcessed.WithLabelValues("png")))
	assert.Equal(t, 750.0, testutil.ToFloat64(m.BytesSaved))

	var ratio dto.Metric
	require.NoError(t, m.CompressionRatio.Write(&ratio))
	assert.Equal(t, uint64(2), ratio.GetHistogram().GetSampleCount())
	assert.Equal(t, 75.0, ratio.GetHistogram().GetSampleSum())
}

func TestObserveFailure(t *testing.T) {
	m := metrics.New()
	m.ObserveFailure("decode")
	m.ObserveFailure("decode")
	m.ObserveFailure("encode")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProcessFailures.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessFailures.WithLabelValues("encode")))
}

func TestCameraStateGauge(t *testing.T) {
	m := metrics.New()
	m.ObserveCameraState(capture.State{Status: capture.StatusStarting})
	m.ObserveCameraState(capture.State{Status: capture.StatusActive})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CameraState.WithLabelValues("active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CameraState.WithLabelValues("starting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CameraState.WithLabelValues("idle")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.SetCollectionSize(3)
	m.RecordPublish("stored")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "erp_media_collection_images 3")
	assert.Contains(t, string(body), `erp_media_publish_images_total{outcome="stored"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
