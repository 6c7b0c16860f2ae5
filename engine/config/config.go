// Package config loads the engine configuration from a TOML file, an
// optional .env file and VKFRAME_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

const envPrefix = "VKFRAME_"

type WindowBackend string

const (
	WindowBackendGLFW WindowBackend = "glfw"
	WindowBackendSDL  WindowBackend = "sdl"
)

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Log      LogConfig      `toml:"log"`
	Assets   AssetsConfig   `toml:"assets"`
}

type WindowConfig struct {
	Title   string        `toml:"title"`
	PosX    uint32        `toml:"pos_x"`
	PosY    uint32        `toml:"pos_y"`
	Width   uint32        `toml:"width"`
	Height  uint32        `toml:"height"`
	Backend WindowBackend `toml:"backend"`
}

type RendererConfig struct {
	// Enables validation layers and the debug report callback.
	Debug          bool       `toml:"debug"`
	VertexShader   string     `toml:"vertex_shader"`
	FragmentShader string     `toml:"fragment_shader"`
	ClearColor     [4]float32 `toml:"clear_color"`
	// Zero means wait forever.
	FenceTimeout Duration `toml:"fence_timeout"`
	// Number of combined image samplers in the material descriptor set.
	TextureSlots uint32 `toml:"texture_slots"`
	// Live descriptor sets per pool, per class.
	MaterialBudget uint32          `toml:"material_budget"`
	PassBudget     uint32          `toml:"pass_budget"`
	Uniforms       UniformsConfig  `toml:"uniforms"`
	Anisotropy     bool            `toml:"anisotropy"`
	Present        PresentModeName `toml:"present_mode"`
}

type PresentModeName string

const (
	PresentModeFIFO    PresentModeName = "fifo"
	PresentModeMailbox PresentModeName = "mailbox"
)

type UniformsConfig struct {
	Size     uint64               `toml:"size"`
	Bindings []UniformBlockConfig `toml:"bindings"`
}

type UniformBlockConfig struct {
	Binding uint32 `toml:"binding"`
	Offset  uint64 `toml:"offset"`
	Range   uint64 `toml:"range"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type AssetsConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
	FlipY bool   `toml:"flip_y"`
}

// Duration decodes TOML strings such as "2s" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Nanoseconds returns the timeout to pass to a fence wait. Zero maps to the
// maximum value, which the driver treats as infinite.
func (d Duration) Nanoseconds() uint64 {
	if d.Duration <= 0 {
		return math.MaxUint64
	}
	return uint64(d.Duration.Nanoseconds())
}

func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:   "vkframe",
			PosX:    100,
			PosY:    100,
			Width:   1280,
			Height:  720,
			Backend: WindowBackendGLFW,
		},
		Renderer: RendererConfig{
			Debug:          false,
			VertexShader:   "shaders/builtin.vert.spv",
			FragmentShader: "shaders/builtin.frag.spv",
			ClearColor:     [4]float32{0, 0, 0, 1},
			TextureSlots:   1,
			MaterialBudget: 64,
			PassBudget:     4,
			Anisotropy:     true,
			Present:        PresentModeMailbox,
			Uniforms: UniformsConfig{
				Size: metadata.GetAligned(128, metadata.MaxUniformAlignment) + 64,
				Bindings: []UniformBlockConfig{
					// view and projection
					{Binding: 0, Offset: 0, Range: 128},
					// model
					{Binding: 1, Offset: metadata.GetAligned(128, metadata.MaxUniformAlignment), Range: 64},
				},
			},
		},
		Log: LogConfig{
			Level: "info",
		},
		Assets: AssetsConfig{
			Dir:   "assets",
			Watch: true,
			FlipY: true,
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error,
// the defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config `%s`: %w", path, err)
		default:
			// a file that declares bindings replaces the default layout entirely
			defaults := cfg.Renderer.Uniforms.Bindings
			cfg.Renderer.Uniforms.Bindings = nil
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config `%s`: %w", path, err)
			}
			if len(cfg.Renderer.Uniforms.Bindings) == 0 {
				cfg.Renderer.Uniforms.Bindings = defaults
			}
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(envPrefix + "WINDOW_BACKEND"); ok {
		c.Window.Backend = WindowBackend(strings.ToLower(v))
	}
	if v, ok := lookup(envPrefix + "ASSETS_DIR"); ok {
		c.Assets.Dir = v
	}
	if v, ok := lookup(envPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG `%s`: %w", envPrefix, v, err)
		}
		c.Renderer.Debug = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	switch c.Window.Backend {
	case WindowBackendGLFW, WindowBackendSDL:
	default:
		return fmt.Errorf("unknown window backend `%s`", c.Window.Backend)
	}
	switch c.Renderer.Present {
	case PresentModeFIFO, PresentModeMailbox:
	default:
		return fmt.Errorf("unknown present mode `%s`", c.Renderer.Present)
	}
	if c.Renderer.TextureSlots == 0 {
		return fmt.Errorf("renderer.texture_slots must be at least 1")
	}
	if c.Renderer.MaterialBudget == 0 || c.Renderer.PassBudget == 0 {
		return fmt.Errorf("descriptor budgets must be at least 1")
	}
	// alignment is checked later against the device limits
	if err := c.UniformDescriptor().Validate(1); err != nil {
		return fmt.Errorf("invalid renderer.uniforms: %w", err)
	}
	return nil
}

// UniformDescriptor converts the uniform layout into the renderer's type.
func (c *Config) UniformDescriptor() metadata.UniformBufferDescriptor {
	d := metadata.UniformBufferDescriptor{
		Size:     c.Renderer.Uniforms.Size,
		Bindings: make([]metadata.UniformBinding, 0, len(c.Renderer.Uniforms.Bindings)),
	}
	for _, b := range c.Renderer.Uniforms.Bindings {
		d.Bindings = append(d.Bindings, metadata.UniformBinding{
			Binding: b.Binding,
			Offset:  b.Offset,
			Range:   b.Range,
		})
	}
	return d
}
