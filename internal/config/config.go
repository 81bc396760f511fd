// Package config loads kiosk configuration from .env files and the environment.
// Flag parsing is done in cmd/attend; this package is data plus loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultEndpoint       = "http://localhost:8080/api/attendance"
	DefaultSource         = "device"
	DefaultDevice         = "0"
	DefaultMode           = "detect"
	DefaultDetector       = "yunet"
	DefaultModelPath      = "models/face_detection_yunet.onnx"
	DefaultFilename       = "capture.jpg"
	DefaultQuality        = 90
	DefaultDetectInterval = 5 * time.Second
	DefaultUploadInterval = 5 * time.Second
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultDashboardPort  = "8090"
	DefaultBackendPort    = "8080"
)

// Config holds all configuration for the kiosk agent.
type Config struct {
	// Endpoint is the attendance backend upload URL.
	Endpoint string

	// Source selects the feed backend: "device", "webrtc" or "static".
	Source string

	// Device is the capture device index or path for the device source.
	Device string

	// SignallingURL is the WebRTC signalling server for the webrtc source.
	SignallingURL string

	// Mode is "detect", "interval" or "manual".
	Mode string

	DetectInterval time.Duration
	UploadInterval time.Duration

	// Detector is "yunet", "haar" or "none".
	Detector  string
	ModelPath string

	Quality  int
	Filename string

	// DashboardPort serves the local dashboard. Empty disables it.
	DashboardPort string

	HTTPTimeout time.Duration

	LogLevel  string
	LogFormat string

	// OAuth2 client credentials for the backend (optional).
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthScopes       []string
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		Source:         DefaultSource,
		Device:         DefaultDevice,
		Mode:           DefaultMode,
		DetectInterval: DefaultDetectInterval,
		UploadInterval: DefaultUploadInterval,
		Detector:       DefaultDetector,
		ModelPath:      DefaultModelPath,
		Quality:        DefaultQuality,
		Filename:       DefaultFilename,
		DashboardPort:  DefaultDashboardPort,
		HTTPTimeout:    DefaultHTTPTimeout,
		LogLevel:       "info",
	}
}

// Load reads an optional .env file and applies environment overrides on top
// of Default. A missing .env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() {
	c.Endpoint = getEnv("ATTEND_ENDPOINT", c.Endpoint)
	c.Source = getEnv("ATTEND_SOURCE", c.Source)
	c.Device = getEnv("CAMERA_DEVICE", c.Device)
	c.SignallingURL = getEnv("SIGNALLING_URL", c.SignallingURL)
	c.Mode = getEnv("ATTEND_MODE", c.Mode)
	c.DetectInterval = getEnvDuration("DETECT_INTERVAL", c.DetectInterval)
	c.UploadInterval = getEnvDuration("UPLOAD_INTERVAL", c.UploadInterval)
	c.Detector = getEnv("DETECTOR", c.Detector)
	c.ModelPath = getEnv("DETECTOR_MODEL", c.ModelPath)
	c.Quality = getEnvInt("JPEG_QUALITY", c.Quality)
	c.Filename = getEnv("CAPTURE_FILENAME", c.Filename)
	c.DashboardPort = getEnv("DASHBOARD_PORT", c.DashboardPort)
	c.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.OAuthTokenURL = getEnv("OAUTH_TOKEN_URL", c.OAuthTokenURL)
	c.OAuthClientID = getEnv("OAUTH_CLIENT_ID", c.OAuthClientID)
	c.OAuthClientSecret = getEnv("OAUTH_CLIENT_SECRET", c.OAuthClientSecret)
	if scopes := os.Getenv("OAUTH_SCOPES"); scopes != "" {
		c.OAuthScopes = splitList(scopes)
	}
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return &ConfigError{Field: "Endpoint", Message: "ATTEND_ENDPOINT must not be empty"}
	}
	if !oneOf(c.Source, "device", "webrtc", "static") {
		return &ConfigError{Field: "Source", Message: "source must be device, webrtc or static"}
	}
	if c.Source == "webrtc" && c.SignallingURL == "" {
		return &ConfigError{Field: "SignallingURL", Message: "SIGNALLING_URL is required for the webrtc source"}
	}
	if !oneOf(c.Mode, "detect", "interval", "manual") {
		return &ConfigError{Field: "Mode", Message: "mode must be detect, interval or manual"}
	}
	if !oneOf(c.Detector, "yunet", "haar", "none") {
		return &ConfigError{Field: "Detector", Message: "detector must be yunet, haar or none"}
	}
	if c.Mode == "detect" && c.Detector == "none" {
		return &ConfigError{Field: "Detector", Message: "detect mode needs a detector"}
	}
	if c.Quality < 1 || c.Quality > 100 {
		return &ConfigError{Field: "Quality", Message: "JPEG quality must be between 1 and 100"}
	}
	if c.DetectInterval <= 0 || c.UploadInterval <= 0 {
		return &ConfigError{Field: "Interval", Message: "intervals must be positive"}
	}
	if c.Filename == "" {
		return &ConfigError{Field: "Filename", Message: "capture filename must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Message
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("5s") or bare seconds ("5").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
