package commands

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/haivivi/explainer/pkg/ai"
	"github.com/haivivi/explainer/pkg/audio/portaudio"
	"github.com/haivivi/explainer/pkg/cli"
	"github.com/haivivi/explainer/pkg/history"
	"github.com/haivivi/explainer/pkg/kv"
	"github.com/haivivi/explainer/pkg/playback"
	"github.com/haivivi/explainer/pkg/storage"
	"github.com/haivivi/explainer/pkg/workflow"
)

// Overridden in tests.
var (
	newService       = defaultService
	newDevice        = defaultDevice
	openHistoryStore = defaultHistoryStore
)

func defaultService(ctx context.Context, c *cli.Context) (ai.Service, error) {
	key := c.ResolvedAPIKey()
	switch c.ResolvedProvider() {
	case cli.ProviderOpenAI:
		if key == "" {
			return nil, fmt.Errorf("no API key: set api_key in context %q or OPENAI_API_KEY", c.Name)
		}
		o := ai.NewOpenAI(key, c.BaseURL)
		setIfNotEmpty(&o.Model, c.Model)
		setIfNotEmpty(&o.SpeechModel, c.SpeechModel)
		setIfNotEmpty(&o.Voice, c.Voice)
		o.Language = c.Language
		o.Logger = slog.Default()
		return o, nil
	default:
		if key == "" {
			return nil, fmt.Errorf("no API key: set api_key in context %q or GEMINI_API_KEY", c.Name)
		}
		g, err := ai.NewGemini(ctx, key)
		if err != nil {
			return nil, err
		}
		if c.BaseURL != "" {
			g.Client, err = genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:      key,
				Backend:     genai.BackendGeminiAPI,
				HTTPOptions: genai.HTTPOptions{BaseURL: c.BaseURL},
			})
			if err != nil {
				return nil, fmt.Errorf("gemini client: %w", err)
			}
		}
		setIfNotEmpty(&g.Model, c.Model)
		setIfNotEmpty(&g.SpeechModel, c.SpeechModel)
		setIfNotEmpty(&g.Voice, c.Voice)
		g.Language = c.Language
		g.Logger = slog.Default()
		return g, nil
	}
}

func defaultDevice(c *cli.Context) (playback.Device, func(), error) {
	if c.ResolvedDevice() == cli.DeviceNull {
		return playback.NullDevice{}, func() {}, nil
	}
	return &portaudio.Device{}, func() { portaudio.Terminate() }, nil
}

func defaultHistoryStore() (kv.Store, error) {
	paths, err := cli.NewPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDataDir(); err != nil {
		return nil, err
	}
	return kv.NewBadger(kv.BadgerOptions{Dir: paths.HistoryDir(), Logger: slog.Default()})
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// app is everything a workflow command runs on.
type app struct {
	ctx     *cli.Context
	machine *workflow.Machine
	store   kv.Store
	closeFn func()
}

func newApp(ctx context.Context) (*app, error) {
	c, err := currentContext()
	if err != nil {
		return nil, err
	}
	svc, err := newService(ctx, c)
	if err != nil {
		return nil, err
	}
	device, closeDevice, err := newDevice(c)
	if err != nil {
		return nil, err
	}
	store, err := openHistoryStore()
	if err != nil {
		closeDevice()
		return nil, fmt.Errorf("open history: %w", err)
	}
	logger := slog.Default()
	m := workflow.New(workflow.Config{
		Service: svc,
		Player:  playback.NewController(playback.Config{Device: device, Logger: logger}),
		History: history.New(history.Config{Store: store, Logger: logger}),
		Gain:    c.Audio.Gain,
		Rate:    c.Audio.Rate,
		Logger:  logger,
	})
	slog.Debug("explainer: ready", "context", c.Name, "provider", c.ResolvedProvider(), "device", c.ResolvedDevice())
	return &app{ctx: c, machine: m, store: store, closeFn: closeDevice}, nil
}

func (a *app) Close() error {
	a.machine.Close()
	err := a.store.Close()
	a.closeFn()
	return err
}

// exportStore opens the context's export destination.
func exportStore(c *cli.Context) (storage.Store, error) {
	if s3 := c.Export.S3; s3 != nil {
		client, err := storage.NewS3Client(storage.S3Options{
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			PathStyle: s3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3(client, s3.Bucket, s3.Prefix), nil
	}
	dir := c.Export.Dir
	if dir == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return nil, err
		}
		dir = paths.ExportDir()
	}
	return storage.NewLocal(dir)
}

// savedFile is one exported file.
type savedFile struct {
	Location string
	Size     int
}

func (f savedFile) String() string {
	return fmt.Sprintf("%s (%s)", f.Location, cli.FormatBytes(f.Size))
}

// export saves the requested files. what is "audio", "script" or "all". A
// rate other than 1 is rendered into the audio.
func (a *app) export(ctx context.Context, store storage.Store, what string, rate float64) ([]savedFile, error) {
	type file struct {
		name string
		data func() ([]byte, error)
	}
	audio := file{workflow.AudioFilename, a.machine.ExportAudio}
	if rate != 0 && rate != 1 {
		audio.data = func() ([]byte, error) { return a.machine.ExportAudioAt(rate) }
	}
	script := file{workflow.ScriptFilename, a.machine.ExportScript}

	var files []file
	switch what {
	case "audio":
		files = []file{audio}
	case "script":
		files = []file{script}
	case "all", "":
		files = []file{audio, script}
	default:
		return nil, fmt.Errorf("unknown export %q (want audio, script or all)", what)
	}
	var saved []savedFile
	for _, f := range files {
		data, err := f.data()
		if err != nil {
			return saved, fmt.Errorf("export %s: %w", f.name, err)
		}
		loc, err := store.Save(ctx, f.name, data)
		if err != nil {
			return saved, err
		}
		slog.Debug("explainer: exported", "name", f.name, "location", loc, "bytes", len(data))
		saved = append(saved, savedFile{Location: loc, Size: len(data)})
	}
	return saved, nil
}

// waitPlayback blocks until the narration stops sounding or ctx is done, in
// which case playback is stopped.
func (a *app) waitPlayback(ctx context.Context) {
	left := make(chan struct{})
	var closed bool
	cancel := a.machine.Subscribe(func(t workflow.Transition) {
		if t.To != workflow.Playing && !closed {
			closed = true
			close(left)
		}
	})
	defer cancel()
	if !a.machine.Snapshot().Playing {
		return
	}
	select {
	case <-left:
	case <-ctx.Done():
		a.machine.Stop()
	}
}
