package config

import (
	"os"
	"strconv"
)

type envService struct {
}

// NewEnv returns a config service backed by environment variables with
// hardcoded fallbacks. Env vars are loaded from a .env file in dev mode
// (see main).
func NewEnv() IService {
	return &envService{}
}

func (svc *envService) GetModeMaxShutdownTime() int {
	return intFromEnv("MODE_MAX_SHUTDOWN_TIME", 5)
}

func (svc *envService) GetSessionPeriodicTimeout() int {
	return intFromEnv("SESSION_PERIODIC_TIMEOUT", 30)
}

func (svc *envService) GetSampleInputFile() string {
	return strFromEnv("SAMPLE_INPUT_FILE", "./samples/zidane.jpg")
}

func (svc *envService) GetOutputFolder() string {
	return strFromEnv("OUTPUT_FOLDER", "./output")
}

func (svc *envService) GetDataFolder() string {
	return strFromEnv("DATA_FOLDER", "./data")
}

func (svc *envService) GetInputQueueCapacity() int {
	return intFromEnv("INPUT_QUEUE_CAPACITY", 10)
}

func (svc *envService) GetOutputQueueCapacity() int {
	return intFromEnv("OUTPUT_QUEUE_CAPACITY", 10)
}

func (svc *envService) GetCameraCaptureWidth() int {
	return intFromEnv("CAMERA_CAP_WIDTH", 640)
}

func (svc *envService) GetCameraCaptureHeight() int {
	return intFromEnv("CAMERA_CAP_HEIGHT", 480)
}

func (svc *envService) GetModelInputShape() (int, int, int) {
	return intFromEnv("MODEL_INPUT_HEIGHT", 640),
		intFromEnv("MODEL_INPUT_WIDTH", 640),
		intFromEnv("MODEL_INPUT_CHANNELS", 3)
}

func (svc *envService) GetConfidenceThreshold() float32 {
	return floatFromEnv("CONFIDENCE_THRESHOLD", 0.5)
}

func (svc *envService) GetNMSThreshold() float32 {
	return floatFromEnv("NMS_THRESHOLD", 0.45)
}

// GetRelayAddress is the default for the detect-mode relay flag. Empty means
// relaying is off unless the flag supplies an address.
func (svc *envService) GetRelayAddress() string {
	return strFromEnv("RELAY_ADDRESS", "")
}

func (svc *envService) GetRelayPort() int {
	return intFromEnv("RELAY_PORT", 9999)
}

func (svc *envService) GetRelayJPEGQuality() int {
	return intFromEnv("RELAY_JPEG_QUALITY", 50)
}

func (svc *envService) GetRelaySendBuffer() int {
	return intFromEnv("RELAY_SEND_BUFFER", 65536)
}

func (svc *envService) GetRelayReceiveTimeout() int {
	return intFromEnv("RELAY_RECEIVE_TIMEOUT", 1)
}

func (svc *envService) GetRenderInterval() int {
	return intFromEnv("RENDER_INTERVAL_MS", 10)
}

func (svc *envService) GetWebPort() int {
	return intFromEnv("WEB_PORT", 5000)
}

func strFromEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func floatFromEnv(key string, fallback float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}
