package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mikeyudex/erp-totalmotors/internal/config"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
)

var envKeys = []string{
	"ERP_HTTP_ADDR", "ERP_LOG_LEVEL", "ERP_IMAGE_PRESET", "ERP_PRESETS_FILE",
	"ERP_IMAGE_WIDTH", "ERP_IMAGE_HEIGHT", "ERP_IMAGE_QUALITY", "ERP_IMAGE_FORMAT",
	"ERP_IMAGE_KEEP_ASPECT", "ERP_IMAGE_BACKGROUND", "ERP_SHOW_COMPRESSION_INFO",
	"ERP_CAMERA", "ERP_STORAGE", "ERP_STORAGE_DIR", "ERP_API_URL", "ERP_API_TOKEN",
	"ERP_OWNER_ID", "ERP_TENANT_ID", "DBOS_SYSTEM_DATABASE_URL", "DBOS_QUEUE_NAME",
	"DBOS_CONCURRENCY",
}

// clearEnv unsets every variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	c, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, imageproc.PresetWooCommerce, c.Preset)
	assert.Equal(t, config.StorageContent, c.Storage)
	assert.Equal(t, config.CameraOpenCV, c.Camera)
	assert.True(t, c.ShowCompressionInfo)
	assert.Equal(t, "image-publish", c.QueueName)
	assert.Equal(t, 4, c.Concurrency)
	assert.Equal(t, config.DefaultOwnerID, c.OwnerID)

	assert.Equal(t, 800, c.Options.Width)
	assert.Equal(t, 536, c.Options.Height)
	assert.Equal(t, 0.8, c.Options.Quality)
	assert.Equal(t, imageproc.FormatJPEG, c.Options.Format)
	assert.True(t, c.Options.MaintainAspectRatio)
}

func TestOverridesApplyOverPreset(t *testing.T) {
	clearEnv(t)
	t.Setenv("ERP_IMAGE_PRESET", imageproc.PresetGallery)
	t.Setenv("ERP_IMAGE_QUALITY", "0.5")
	t.Setenv("ERP_IMAGE_FORMAT", "image/png")
	t.Setenv("ERP_IMAGE_KEEP_ASPECT", "false")
	t.Setenv("ERP_IMAGE_BACKGROUND", "#000000")

	c, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 1200, c.Options.Width)
	assert.Equal(t, 800, c.Options.Height)
	assert.Equal(t, 0.5, c.Options.Quality)
	assert.Equal(t, imageproc.FormatPNG, c.Options.Format)
	assert.False(t, c.Options.MaintainAspectRatio)
	assert.Equal(t, "#000000", c.Options.BackgroundColor)
	assert.False(t, c.Overrides.Empty())
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown preset", map[string]string{"ERP_IMAGE_PRESET": "poster"}, "ERP_IMAGE_PRESET"},
		{"bad width", map[string]string{"ERP_IMAGE_WIDTH": "wide"}, "ERP_IMAGE_WIDTH"},
		{"zero width", map[string]string{"ERP_IMAGE_WIDTH": "0"}, "width must be greater than 0"},
		{"quality above one", map[string]string{"ERP_IMAGE_QUALITY": "1.5"}, "quality"},
		{"bad format", map[string]string{"ERP_IMAGE_FORMAT": "gif"}, "ERP_IMAGE_FORMAT"},
		{"bad bool", map[string]string{"ERP_SHOW_COMPRESSION_INFO": "maybe"}, "ERP_SHOW_COMPRESSION_INFO"},
		{"bad camera", map[string]string{"ERP_CAMERA": "usb"}, "ERP_CAMERA"},
		{"bad storage", map[string]string{"ERP_STORAGE": "s3"}, "ERP_STORAGE"},
		{"http without url", map[string]string{"ERP_STORAGE": "http"}, "ERP_API_URL"},
		{"bad owner", map[string]string{"ERP_OWNER_ID": "nope"}, "ERP_OWNER_ID"},
		{"zero concurrency", map[string]string{"DBOS_CONCURRENCY": "0"}, "DBOS_CONCURRENCY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHTTPStorage(t *testing.T) {
	clearEnv(t)
	t.Setenv("ERP_STORAGE", "HTTP")
	t.Setenv("ERP_API_URL", "https://erp.example.com/")
	t.Setenv("ERP_API_TOKEN", "secret")

	c, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, config.StorageHTTP, c.Storage)
	assert.Equal(t, "https://erp.example.com", c.APIURL)
	assert.Equal(t, "secret", c.APIToken)
}

func TestPresetsFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
presets:
  banner:
    label: Banner
    width: 1600
    height: 400
    quality: 0.85
    format: image/jpeg
`), 0o644))
	t.Setenv("ERP_PRESETS_FILE", path)
	t.Setenv("ERP_IMAGE_PRESET", "banner")

	c, err := config.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1600, c.Options.Width)
	assert.Contains(t, c.Presets.Names(), imageproc.PresetWooCommerce)
	assert.Contains(t, c.Presets.Names(), "banner")
}
