package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "scribblemap.cfg.json"

// StorageConfig selects the annotation store backend
type StorageConfig struct {
	Type string `json:"type" mapstructure:"type"`
}

// CaptureConfig holds AR capture settings
type CaptureConfig struct {
	ViewportWidth   int           `json:"viewportWidth" mapstructure:"viewportWidth"`
	ViewportHeight  int           `json:"viewportHeight" mapstructure:"viewportHeight"`
	LocationTimeout time.Duration `json:"locationTimeout" mapstructure:"locationTimeout"`
	FlyToZoom       float64       `json:"flyToZoom" mapstructure:"flyToZoom"`
	StrokeWidth     float64       `json:"strokeWidth" mapstructure:"strokeWidth"`
	StrokeColor     string        `json:"strokeColor" mapstructure:"strokeColor"`
	ThumbnailWidth  int           `json:"thumbnailWidth" mapstructure:"thumbnailWidth"`
	NearbyRadius    float64       `json:"nearbyRadius" mapstructure:"nearbyRadius"`
}

// CameraConfig selects the camera device
type CameraConfig struct {
	Type   string `json:"type" mapstructure:"type"`
	Device int    `json:"device" mapstructure:"device"`
}

// LocationConfig selects the location sensor
type LocationConfig struct {
	Type         string  `json:"type" mapstructure:"type"`
	Latitude     float64 `json:"latitude" mapstructure:"latitude"`
	Longitude    float64 `json:"longitude" mapstructure:"longitude"`
	URL          string  `json:"url" mapstructure:"url"`
	HighAccuracy bool    `json:"highAccuracy" mapstructure:"highAccuracy"`
}

// OverlayConfig selects the map renderer
type OverlayConfig struct {
	Type   string `json:"type" mapstructure:"type"`
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// APIConfig holds backend boundary settings
type APIConfig struct {
	ServerURL string        `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string        `json:"apiKey" mapstructure:"apiKey"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// InfluxConfig holds capture telemetry settings
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	URL        string `json:"url" mapstructure:"url"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Environment
// variables prefixed with SCRIBBLE_ override file values.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "scribblemap")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "scribblemap")
	viper.SetDefault("influx.bucket", "capture_sessions")
	viper.SetDefault("influx.backupPath", "./logs/capture_sessions.lp.gz")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.timeout", "30s")

	viper.SetDefault("capture.viewportWidth", 1280)
	viper.SetDefault("capture.viewportHeight", 720)
	viper.SetDefault("capture.locationTimeout", "10s")
	viper.SetDefault("capture.flyToZoom", 14)
	viper.SetDefault("capture.strokeWidth", 3)
	viper.SetDefault("capture.strokeColor", "#ff0000")
	viper.SetDefault("capture.thumbnailWidth", 200)
	viper.SetDefault("capture.nearbyRadius", 25)

	viper.SetDefault("camera.type", "device")
	viper.SetDefault("camera.device", 0)

	viper.SetDefault("location.type", "static")
	viper.SetDefault("location.latitude", 40.7127281)
	viper.SetDefault("location.longitude", -74.0060152)
	viper.SetDefault("location.url", "")
	viper.SetDefault("location.highAccuracy", true)

	viper.SetDefault("storage.type", "memory")

	viper.SetDefault("overlay.type", "recording")
	viper.SetDefault("overlay.url", "")
	viper.SetDefault("overlay.secret", "")

	viper.SetDefault("search.weight", 1.0)
	viper.SetDefault("search.seedOnStart", true)

	viper.SetDefault("server.port", "8080")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")

	viper.SetEnvPrefix("SCRIBBLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetCaptureConfig returns the capture section.
func GetCaptureConfig() CaptureConfig {
	return CaptureConfig{
		ViewportWidth:   viper.GetInt("capture.viewportWidth"),
		ViewportHeight:  viper.GetInt("capture.viewportHeight"),
		LocationTimeout: viper.GetDuration("capture.locationTimeout"),
		FlyToZoom:       viper.GetFloat64("capture.flyToZoom"),
		StrokeWidth:     viper.GetFloat64("capture.strokeWidth"),
		StrokeColor:     viper.GetString("capture.strokeColor"),
		ThumbnailWidth:  viper.GetInt("capture.thumbnailWidth"),
		NearbyRadius:    viper.GetFloat64("capture.nearbyRadius"),
	}
}

// GetCameraConfig returns the camera section.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		Type:   viper.GetString("camera.type"),
		Device: viper.GetInt("camera.device"),
	}
}

// GetLocationConfig returns the location section.
func GetLocationConfig() LocationConfig {
	return LocationConfig{
		Type:         viper.GetString("location.type"),
		Latitude:     viper.GetFloat64("location.latitude"),
		Longitude:    viper.GetFloat64("location.longitude"),
		URL:          viper.GetString("location.url"),
		HighAccuracy: viper.GetBool("location.highAccuracy"),
	}
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{Type: viper.GetString("storage.type")}
}

// GetOverlayConfig returns the overlay section.
func GetOverlayConfig() OverlayConfig {
	return OverlayConfig{
		Type:   viper.GetString("overlay.type"),
		URL:    viper.GetString("overlay.url"),
		Secret: viper.GetString("overlay.secret"),
	}
}

// GetAPIConfig returns the backend api section.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Timeout:   viper.GetDuration("api.timeout"),
	}
}

// GetInfluxConfig returns the telemetry section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		URL:        viper.GetString("influx.url"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetOTelConfig returns the OpenTelemetry section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat returns a float config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
