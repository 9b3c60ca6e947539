package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Camera
	CameraIndex     int
	FrameWidth      int
	FrameHeight     int
	FPS             int
	Autofocus       bool
	Focus           int
	TuneForBarcodes bool // Kontrast/saturacja/ekspozycja pod kody kreskowe

	// Detection
	Cooldown time.Duration
	Scales   []float64

	// Image processing
	ClaheClipLimit        float64
	ClaheTileGrid         int
	AdaptiveMaxValue      float64
	AdaptiveBlockSize     int
	AdaptiveC             float64
	MorphKernelSize       int
	BilateralDiameter     int
	BilateralSigmaColor   float64
	BilateralSigmaSpace   float64
	ProcessingModes       []string
	DisplayWindow         bool
	WindowName            string
	ExportDirectory       string
	ExportFormat          string
	DatabasePath          string
	RecordBufferLimit     int
	RecordFlushInterval   int // w sekundach
	Port                  int
	APIKey                string
	LogDirectory          string
	MQTTBroker            string
	MQTTTopic             string
	MQTTClientID          string
	MQTTUsername          string
	MQTTPassword          string
	ViewerBroadcastEveryN int // Co którą klatkę wysyłać podgląd do widzów
}

// DefaultScales is the scale search order. The order is part of the detection behaviour.
var DefaultScales = []float64{1.0, 1.2, 0.8, 1.4}

// DefaultProcessingModes are the display names of the preprocessing techniques, in search order.
var DefaultProcessingModes = []string{
	"Original",
	"Grayscale",
	"Contrast enhanced",
	"Binarized",
	"Morphological",
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		CameraIndex:     getEnvAsInt("CAMERA_INDEX", 0),
		FrameWidth:      getEnvAsInt("FRAME_WIDTH", 1280),
		FrameHeight:     getEnvAsInt("FRAME_HEIGHT", 720),
		FPS:             getEnvAsInt("FPS", 30),
		Autofocus:       getEnvAsBool("AUTOFOCUS", true),
		Focus:           getEnvAsInt("FOCUS", 0),
		TuneForBarcodes: getEnvAsBool("TUNE_FOR_BARCODES", true),

		Cooldown: time.Duration(getEnvAsFloat("COOLDOWN_SECONDS", 2.0) * float64(time.Second)),
		Scales:   getEnvAsFloats("SCALES", DefaultScales),

		ClaheClipLimit:      getEnvAsFloat("CLAHE_CLIP_LIMIT", 3.0),
		ClaheTileGrid:       getEnvAsInt("CLAHE_TILE_GRID", 8),
		AdaptiveMaxValue:    getEnvAsFloat("ADAPTIVE_MAX_VALUE", 255),
		AdaptiveBlockSize:   getEnvAsInt("ADAPTIVE_BLOCK_SIZE", 11),
		AdaptiveC:           getEnvAsFloat("ADAPTIVE_C", 2),
		MorphKernelSize:     getEnvAsInt("MORPH_KERNEL_SIZE", 2),
		BilateralDiameter:   getEnvAsInt("BILATERAL_D", 9),
		BilateralSigmaColor: getEnvAsFloat("BILATERAL_SIGMA_COLOR", 75),
		BilateralSigmaSpace: getEnvAsFloat("BILATERAL_SIGMA_SPACE", 75),
		ProcessingModes:     DefaultProcessingModes,

		DisplayWindow:   getEnvAsBool("DISPLAY_WINDOW", true),
		WindowName:      getEnv("WINDOW_NAME", "Barcode Scanner"),
		ExportDirectory: getEnv("EXPORT_DIR", filepath.Join(".", "exports")),
		ExportFormat:    getEnv("EXPORT_FORMAT", "json"),

		DatabasePath:        getEnv("DB_PATH", filepath.Join(".", "data", "detections.db")),
		RecordBufferLimit:   getEnvAsInt("BUFFER_LIMIT", 50),
		RecordFlushInterval: getEnvAsInt("FLUSH_INTERVAL", 30),

		Port:         getEnvAsInt("PORT", 8080),
		APIKey:       getEnv("API_KEY", ""),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),

		MQTTBroker:   getEnv("MQTT_BROKER", ""), // puste = wyłączone
		MQTTTopic:    getEnv("MQTT_TOPIC", "pharmascan/detections"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "pharmascan"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		ViewerBroadcastEveryN: getEnvAsInt("VIEWER_BROADCAST_EVERY_N", 3),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsFloats parses a comma separated list; any bad entry falls back to the default list.
func getEnvAsFloats(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return append([]float64(nil), defaultValue...)
	}

	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f <= 0 {
			return append([]float64(nil), defaultValue...)
		}
		out = append(out, f)
	}
	return out
}
