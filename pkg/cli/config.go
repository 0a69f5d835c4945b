package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/explainer/pkg/ai"
)

const (
	// DefaultBaseDir is the directory under $HOME holding config and data.
	DefaultBaseDir = ".explainer"
	// DefaultConfigFile is the config filename inside DefaultBaseDir.
	DefaultConfigFile = "config.yaml"
	// DefaultContextName names the implicit context used when none is set.
	DefaultContextName = "default"
)

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Audio devices.
const (
	DevicePortAudio = "portaudio"
	DeviceNull      = "null"
)

// Config is the explainer config file.
type Config struct {
	// CurrentContext is the name of the active context.
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts maps a context name to its settings.
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context is one named set of provider and playback settings.
type Context struct {
	Name string `yaml:"name"`

	// Provider is "gemini" (default) or "openai".
	Provider string `yaml:"provider,omitempty"`

	// APIKey falls back to GEMINI_API_KEY or OPENAI_API_KEY when empty.
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`

	Model       string `yaml:"model,omitempty"`
	SpeechModel string `yaml:"speech_model,omitempty"`
	Voice       string `yaml:"voice,omitempty"`
	Language    string `yaml:"language,omitempty"`
	Tone        string `yaml:"tone,omitempty"`
	Level       string `yaml:"level,omitempty"`

	Audio  AudioConfig  `yaml:"audio,omitempty"`
	Export ExportConfig `yaml:"export,omitempty"`
}

// AudioConfig configures playback. Zero gain or rate selects 1.
type AudioConfig struct {
	// Device is "portaudio" (default) or "null".
	Device string  `yaml:"device,omitempty"`
	Gain   float64 `yaml:"gain,omitempty"`
	Rate   float64 `yaml:"rate,omitempty"`
}

// ExportConfig chooses where exports are saved. S3 wins over Dir when set.
type ExportConfig struct {
	Dir string    `yaml:"dir,omitempty"`
	S3  *S3Config `yaml:"s3,omitempty"`
}

// S3Config locates an S3-compatible bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
}

// LoadConfig loads the config file at path, or at ~/.explainer/config.yaml
// when path is empty. A missing file is created empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := NewPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = p.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{Contexts: make(map[string]*Context), path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			ctx = &Context{}
			cfg.Contexts[name] = ctx
		}
		ctx.Name = name
	}
	cfg.path = path
	return cfg, nil
}

// Save writes the config to disk, readable only by the owner.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// AddContext validates and stores ctx under name.
func (c *Config) AddContext(name string, ctx *Context) error {
	if name == "" {
		return fmt.Errorf("context name is required")
	}
	ctx.Name = name
	if err := ctx.Validate(); err != nil {
		return err
	}
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext makes name the current context.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns the named context.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name is
// empty. With no current context it returns an empty default context, so a
// bare environment API key is enough to run.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext == "" {
		return &Context{Name: DefaultContextName}, nil
	}
	return c.GetContext(c.CurrentContext)
}

// ListContexts returns the context names, sorted.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResolvedProvider returns the provider, defaulting to Gemini.
func (ctx *Context) ResolvedProvider() string {
	if ctx.Provider == "" {
		return ProviderGemini
	}
	return ctx.Provider
}

// ResolvedAPIKey returns APIKey or the provider's environment variable.
func (ctx *Context) ResolvedAPIKey() string {
	if ctx.APIKey != "" {
		return ctx.APIKey
	}
	switch ctx.ResolvedProvider() {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	default:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
}

// ResolvedDevice returns the audio device, defaulting to PortAudio.
func (ctx *Context) ResolvedDevice() string {
	if ctx.Audio.Device == "" {
		return DevicePortAudio
	}
	return ctx.Audio.Device
}

// Validate checks enumerated fields and ranges.
func (ctx *Context) Validate() error {
	switch ctx.ResolvedProvider() {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("context %q: unknown provider %q", ctx.Name, ctx.Provider)
	}
	switch ctx.ResolvedDevice() {
	case DevicePortAudio, DeviceNull:
	default:
		return fmt.Errorf("context %q: unknown audio device %q", ctx.Name, ctx.Audio.Device)
	}
	if _, err := ai.ParseTone(ctx.Tone); err != nil {
		return fmt.Errorf("context %q: %w", ctx.Name, err)
	}
	if _, err := ai.ParseLevel(ctx.Level); err != nil {
		return fmt.Errorf("context %q: %w", ctx.Name, err)
	}
	if g := ctx.Audio.Gain; g < 0 || g > 1 {
		return fmt.Errorf("context %q: gain %v outside [0, 1]", ctx.Name, g)
	}
	if r := ctx.Audio.Rate; r != 0 && (r < 0.5 || r > 2) {
		return fmt.Errorf("context %q: rate %v outside [0.5, 2]", ctx.Name, r)
	}
	if s3 := ctx.Export.S3; s3 != nil && s3.Bucket == "" {
		return fmt.Errorf("context %q: export.s3.bucket is required", ctx.Name)
	}
	return nil
}

// Keys lists the settings accepted by Set.
var Keys = []string{
	"provider", "api_key", "base_url", "model", "speech_model", "voice",
	"language", "tone", "level",
	"audio.device", "audio.gain", "audio.rate",
	"export.dir", "export.s3.bucket", "export.s3.prefix", "export.s3.region",
	"export.s3.endpoint", "export.s3.access_key", "export.s3.secret_key",
	"export.s3.path_style",
}

// Set assigns one dotted setting, then validates the context.
func (ctx *Context) Set(key, value string) error {
	s3 := func() *S3Config {
		if ctx.Export.S3 == nil {
			ctx.Export.S3 = &S3Config{}
		}
		return ctx.Export.S3
	}
	var err error
	switch key {
	case "provider":
		ctx.Provider = strings.ToLower(value)
	case "api_key":
		ctx.APIKey = value
	case "base_url":
		ctx.BaseURL = value
	case "model":
		ctx.Model = value
	case "speech_model":
		ctx.SpeechModel = value
	case "voice":
		ctx.Voice = value
	case "language":
		ctx.Language = value
	case "tone":
		ctx.Tone = value
	case "level":
		ctx.Level = value
	case "audio.device":
		ctx.Audio.Device = value
	case "audio.gain":
		ctx.Audio.Gain, err = strconv.ParseFloat(value, 64)
	case "audio.rate":
		ctx.Audio.Rate, err = strconv.ParseFloat(value, 64)
	case "export.dir":
		ctx.Export.Dir = value
	case "export.s3.bucket":
		s3().Bucket = value
	case "export.s3.prefix":
		s3().Prefix = value
	case "export.s3.region":
		s3().Region = value
	case "export.s3.endpoint":
		s3().Endpoint = value
	case "export.s3.access_key":
		s3().AccessKey = value
	case "export.s3.secret_key":
		s3().SecretKey = value
	case "export.s3.path_style":
		s3().PathStyle, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return ctx.Validate()
}

// Masked returns a copy with secrets masked for display.
func (ctx *Context) Masked() *Context {
	out := *ctx
	out.APIKey = MaskAPIKey(ctx.APIKey)
	if ctx.Export.S3 != nil {
		s3 := *ctx.Export.S3
		s3.SecretKey = MaskAPIKey(s3.SecretKey)
		out.Export.S3 = &s3
	}
	return &out
}

// MaskAPIKey masks a secret for display.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
