// Package config loads the media service configuration from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
)

// Storage backends.
const (
	StorageFilesystem = "filesystem"
	StorageContent    = "content"
	StorageHTTP       = "http"
)

// Camera backends.
const (
	CameraOpenCV = "opencv"
	CameraNone   = "none"
)

// Default owner and tenant used for the embedded content store.
var (
	DefaultOwnerID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	DefaultTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// Config is the configuration shared by the service binaries.
type Config struct {
	HTTPAddr string
	LogLevel string

	Presets   *imageproc.Registry
	Preset    string
	Overrides imageproc.Overrides
	Options   imageproc.Options

	ShowCompressionInfo bool
	Camera              string

	Storage    string
	StorageDir string
	APIURL     string
	APIToken   string
	OwnerID    uuid.UUID
	TenantID   uuid.UUID

	DatabaseURL string
	QueueName   string
	Concurrency int
}

// Load reads .env (if present) and the environment. Invalid values fail
// with a descriptive error.
func Load() (*Config, error) {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error
	c := &Config{
		HTTPAddr:    getenv("ERP_HTTP_ADDR", ":8080"),
		LogLevel:    getenv("ERP_LOG_LEVEL", "info"),
		Preset:      getenv("ERP_IMAGE_PRESET", imageproc.PresetWooCommerce),
		Camera:      strings.ToLower(getenv("ERP_CAMERA", CameraOpenCV)),
		Storage:     strings.ToLower(getenv("ERP_STORAGE", StorageContent)),
		StorageDir:  getenv("ERP_STORAGE_DIR", "./dev-data"),
		APIURL:      strings.TrimRight(os.Getenv("ERP_API_URL"), "/"),
		APIToken:    os.Getenv("ERP_API_TOKEN"),
		DatabaseURL: os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
		QueueName:   getenv("DBOS_QUEUE_NAME", "image-publish"),
	}

	var err error
	if path := os.Getenv("ERP_PRESETS_FILE"); path != "" {
		c.Presets, err = imageproc.LoadRegistry(path)
		if err != nil {
			return nil, err
		}
	} else {
		c.Presets = imageproc.DefaultRegistry()
	}

	c.Overrides, err = overridesFromEnv()
	if err != nil {
		errs = append(errs, err)
	}

	if c.ShowCompressionInfo, err = boolEnv("ERP_SHOW_COMPRESSION_INFO", true); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency, err = intEnv("DBOS_CONCURRENCY", 4); err != nil {
		errs = append(errs, err)
	} else if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("DBOS_CONCURRENCY must be greater than 0, got %d", c.Concurrency))
	}
	if c.OwnerID, err = uuidEnv("ERP_OWNER_ID", DefaultOwnerID); err != nil {
		errs = append(errs, err)
	}
	if c.TenantID, err = uuidEnv("ERP_TENANT_ID", DefaultTenantID); err != nil {
		errs = append(errs, err)
	}

	switch c.Camera {
	case CameraOpenCV, CameraNone:
	default:
		errs = append(errs, fmt.Errorf("ERP_CAMERA must be %q or %q, got %q", CameraOpenCV, CameraNone, c.Camera))
	}
	switch c.Storage {
	case StorageFilesystem, StorageContent:
	case StorageHTTP:
		if c.APIURL == "" {
			errs = append(errs, errors.New("ERP_API_URL is required when ERP_STORAGE=http"))
		}
	default:
		errs = append(errs, fmt.Errorf("ERP_STORAGE must be one of filesystem, content, http, got %q", c.Storage))
	}

	preset, err := c.Presets.Get(c.Preset)
	if err != nil {
		errs = append(errs, fmt.Errorf("ERP_IMAGE_PRESET: %w", err))
	} else {
		c.Options = preset.With(c.Overrides)
		if err := c.Options.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func overridesFromEnv() (imageproc.Overrides, error) {
	var o imageproc.Overrides
	var errs []error

	if v, ok := os.LookupEnv("ERP_IMAGE_WIDTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ERP_IMAGE_WIDTH: %w", err))
		}
		o.Width = &n
	}
	if v, ok := os.LookupEnv("ERP_IMAGE_HEIGHT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ERP_IMAGE_HEIGHT: %w", err))
		}
		o.Height = &n
	}
	if v, ok := os.LookupEnv("ERP_IMAGE_QUALITY"); ok {
		q, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("ERP_IMAGE_QUALITY: %w", err))
		}
		o.Quality = &q
	}
	if v, ok := os.LookupEnv("ERP_IMAGE_FORMAT"); ok {
		f, err := imageproc.ParseFormat(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ERP_IMAGE_FORMAT: %w", err))
		}
		o.Format = &f
	}
	if _, ok := os.LookupEnv("ERP_IMAGE_KEEP_ASPECT"); ok {
		keep, err := boolEnv("ERP_IMAGE_KEEP_ASPECT", true)
		if err != nil {
			errs = append(errs, err)
		}
		o.MaintainAspectRatio = &keep
	}
	if v, ok := os.LookupEnv("ERP_IMAGE_BACKGROUND"); ok {
		o.BackgroundColor = &v
	}
	return o, errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func uuidEnv(key string, fallback uuid.UUID) (uuid.UUID, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return id, nil
}
