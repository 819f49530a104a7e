// Package openai provides a transcription engine backed by the OpenAI audio
// transcription API (or any server exposing the same endpoint, such as a
// self-hosted faster-whisper gateway).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/pipescribe/pkg/audio"
	"github.com/MrWong99/pipescribe/pkg/provider/stt"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(oai.AudioModelWhisper1)

// Compile-time assertion that Engine implements stt.Transcriber.
var _ stt.Transcriber = (*Engine)(nil)

// Engine implements stt.Transcriber using the OpenAI API.
type Engine struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the engine.
type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Engine.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries a failed request. The
// worker applies its own backoff, so the default is 0.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI transcription Engine. An empty model selects
// [DefaultModel].
func New(apiKey string, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Engine{client: oai.NewClient(reqOpts...), model: model}, nil
}

// ModelID returns the configured model name.
func (e *Engine) ModelID() string { return e.model }

// Transcribe uploads samples as a WAV file and returns the recognised text
// as a single segment. The API has no beam-size or VAD parameters.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, opts stt.Options) ([]stt.Segment, error) {
	wav := audio.EncodeWAV(samples, audio.EngineSampleRate)

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:          oai.AudioModel(e.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
		Temperature:    oai.Float(float64(opts.Temperature)),
	}
	if opts.Language != "" {
		params.Language = oai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = oai.String(opts.Prompt)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: transcribe: %w", err)
	}
	if resp.Text == "" {
		return nil, nil
	}
	return []stt.Segment{{Text: resp.Text}}, nil
}
