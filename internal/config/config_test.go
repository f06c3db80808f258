package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facesignal/internal/expression"
	"github.com/dudu/facesignal/internal/posture"
	"github.com/dudu/facesignal/internal/session"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.TargetFPS)
	assert.Equal(t, ":8089", cfg.ListenAddr)
	assert.True(t, cfg.Mirror)
	assert.Len(t, cfg.ModelPaths, 2)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FACESIGNAL_FPS", "15")
	t.Setenv("FACESIGNAL_MIRROR", "false")
	t.Setenv("FACESIGNAL_MODEL_PATHS", "a.onnx, b.onnx,")
	t.Setenv("FACESIGNAL_ORT_LIBRARY_PATHS", "/lib/ort.so")
	t.Setenv("FACESIGNAL_DISPLAY_SCALE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.TargetFPS)
	assert.False(t, cfg.Mirror)
	assert.Equal(t, []string{"a.onnx", "b.onnx"}, cfg.ModelPaths)
	assert.Equal(t, 0.5, cfg.DisplayScale)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FACESIGNAL_CAMERA=2\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("FACESIGNAL_CAMERA") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.CameraIndex)
}

func TestLocationsOrder(t *testing.T) {
	cfg := &Config{
		ModelPaths:   []string{"models/a.onnx", "models/b.onnx"},
		LibraryPaths: []string{"lib1", "lib2"},
	}

	locs := cfg.Locations()
	require.Len(t, locs, 4)
	assert.Equal(t, session.Location{Name: "a.onnx@lib1", LibraryPath: "lib1", ModelPath: "models/a.onnx"}, locs[0])
	assert.Equal(t, "lib2", locs[1].LibraryPath)
	assert.Equal(t, "models/b.onnx", locs[2].ModelPath)
}

func TestValidate(t *testing.T) {
	base := Config{
		TargetFPS: 30, CaptureWidth: 640, CaptureHeight: 480, DisplayScale: 1,
		ModelPaths: []string{"m.onnx"}, LibraryPaths: []string{"l.so"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fps", func(c *Config) { c.TargetFPS = 0 }},
		{"bad size", func(c *Config) { c.CaptureHeight = 0 }},
		{"bad scale", func(c *Config) { c.DisplayScale = -1 }},
		{"no models", func(c *Config) { c.ModelPaths = nil }},
		{"no libraries", func(c *Config) { c.LibraryPaths = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"blink_ear": 0.2, "eye_tilt": 0.05}`), 0644))

	tuning, err := LoadTuning(path)
	require.NoError(t, err)

	th := tuning.Thresholds()
	assert.Equal(t, 0.2, th.BlinkEAR)
	assert.Equal(t, expression.DefaultThresholds().MouthOpen, th.MouthOpen)

	w := tuning.Weights()
	assert.Equal(t, 0.05, w.EyeTilt)
	assert.Equal(t, posture.DefaultWeights().ForwardHeadDrop, w.ForwardHeadDrop)
}

func TestLoadTuningErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTuning(filepath.Join(dir, "tuning.yaml"))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadTuning(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"blink_ear": -1}`), 0644))
	_, err = LoadTuning(bad)
	assert.ErrorContains(t, err, "blink_ear")

	inverted := filepath.Join(dir, "inverted.json")
	require.NoError(t, os.WriteFile(inverted, []byte(`{"surprised_brow": 10, "frowning_brow": -10}`), 0644))
	_, err = LoadTuning(inverted)
	assert.Error(t, err)
}

func TestNilTuningDefaults(t *testing.T) {
	var tuning *Tuning
	assert.Equal(t, expression.DefaultThresholds(), tuning.Thresholds())
	assert.Equal(t, posture.DefaultWeights(), tuning.Weights())
}
