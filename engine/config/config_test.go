package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	d := cfg.UniformDescriptor()
	assert.Equal(t, uint64(320), d.Size)
	assert.NoError(t, d.Validate(256))
	assert.Len(t, d.Bindings, 2)
	assert.Equal(t, uint64(math.MaxUint64), cfg.Renderer.FenceTimeout.Nanoseconds())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[window]
title = "demo"
width = 800
height = 600
backend = "sdl"

[renderer]
fence_timeout = "2s"
texture_slots = 2

[renderer.uniforms]
size = 256

[[renderer.uniforms.bindings]]
binding = 0
offset = 0
range = 256

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Window.Title)
	assert.Equal(t, WindowBackendSDL, cfg.Window.Backend)
	assert.Equal(t, uint32(2), cfg.Renderer.TextureSlots)
	assert.Equal(t, 2*time.Second, cfg.Renderer.FenceTimeout.Duration)
	assert.Equal(t, uint64(2*time.Second), cfg.Renderer.FenceTimeout.Nanoseconds())
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Renderer.Uniforms.Bindings, 1)
	assert.Equal(t, uint64(256), cfg.Renderer.Uniforms.Bindings[0].Range)
	// untouched sections keep their defaults
	assert.Equal(t, "assets", cfg.Assets.Dir)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Window, cfg.Window)
}

func TestLoadRejectsOverlappingUniforms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[renderer.uniforms]
size = 192

[[renderer.uniforms.bindings]]
binding = 0
offset = 0
range = 128

[[renderer.uniforms.bindings]]
binding = 1
offset = 64
range = 128
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"VKFRAME_LOG_LEVEL":      "warn",
		"VKFRAME_WINDOW_BACKEND": "SDL",
		"VKFRAME_DEBUG":          "true",
	}
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, WindowBackendSDL, cfg.Window.Backend)
	assert.True(t, cfg.Renderer.Debug)

	env["VKFRAME_DEBUG"] = "maybe"
	assert.Error(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
}
