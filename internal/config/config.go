package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dudu/facesignal/internal/session"
)

type Config struct {
	CameraIndex   int
	TargetFPS     int
	CaptureWidth  int
	CaptureHeight int
	DisplayScale  float64
	Mirror        bool
	Preview       bool

	ModelPaths   []string
	LibraryPaths []string
	TuningPath   string

	ListenAddr  string
	LogLevel    string
	LogFile     string
	Environment string
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// Locations expands model and library paths into the ordered fallback list:
// every library is tried with the first model before moving to the next model.
func (c *Config) Locations() []session.Location {
	var locations []session.Location
	for _, model := range c.ModelPaths {
		for _, lib := range c.LibraryPaths {
			locations = append(locations, session.Location{
				Name:        fmt.Sprintf("%s@%s", filepath.Base(model), lib),
				LibraryPath: lib,
				ModelPath:   model,
			})
		}
	}
	return locations
}

// Validate checks the values a session cannot run without.
func (c *Config) Validate() error {
	if c.TargetFPS <= 0 {
		return fmt.Errorf("target fps must be positive, got %d", c.TargetFPS)
	}
	if c.CaptureWidth <= 0 || c.CaptureHeight <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", c.CaptureWidth, c.CaptureHeight)
	}
	if c.DisplayScale <= 0 {
		return fmt.Errorf("display scale must be positive, got %v", c.DisplayScale)
	}
	if len(c.ModelPaths) == 0 {
		return fmt.Errorf("no face mesh model paths configured")
	}
	if len(c.LibraryPaths) == 0 {
		return fmt.Errorf("no onnxruntime library paths configured")
	}
	return nil
}

// Load reads an optional .env file and then the FACESIGNAL_* environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		CameraIndex:   getEnvInt("FACESIGNAL_CAMERA", 0),
		TargetFPS:     getEnvInt("FACESIGNAL_FPS", 30),
		CaptureWidth:  getEnvInt("FACESIGNAL_CAPTURE_WIDTH", 1280),
		CaptureHeight: getEnvInt("FACESIGNAL_CAPTURE_HEIGHT", 720),
		DisplayScale:  getEnvFloat("FACESIGNAL_DISPLAY_SCALE", 1.0),
		Mirror:        getEnvBool("FACESIGNAL_MIRROR", true),
		Preview:       getEnvBool("FACESIGNAL_PREVIEW", true),
		ModelPaths: getEnvList("FACESIGNAL_MODEL_PATHS", []string{
			"models/face_landmark.onnx",
			"models/face_mesh_refined.onnx",
		}),
		LibraryPaths: getEnvList("FACESIGNAL_ORT_LIBRARY_PATHS", []string{
			"lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.so",
		}),
		TuningPath:  getEnv("FACESIGNAL_TUNING", ""),
		ListenAddr:  getEnv("FACESIGNAL_LISTEN", ":8089"),
		LogLevel:    getEnv("FACESIGNAL_LOG_LEVEL", "info"),
		LogFile:     getEnv("FACESIGNAL_LOG_FILE", ""),
		Environment: getEnv("FACESIGNAL_ENV", "production"),
	}

	return cfg, nil
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
