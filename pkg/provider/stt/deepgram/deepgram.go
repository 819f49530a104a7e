// Package deepgram provides a Deepgram-backed transcription engine using the
// Deepgram live WebSocket API. It implements the stt.Transcriber interface.
//
// Deepgram is a streaming service; the engine opens one connection per
// waveform, streams the PCM, asks the server to flush with CloseStream and
// collects the final results until the server closes the connection.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrWong99/pipescribe/pkg/audio"
	"github.com/MrWong99/pipescribe/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// sendChunkBytes is the size of each binary message: 250 ms of 16 kHz
	// mono PCM16.
	sendChunkBytes = 8000
)

// Compile-time assertion that Engine implements stt.Transcriber.
var _ stt.Transcriber = (*Engine)(nil)

// Option is a functional option for configuring the Deepgram Engine.
type Option func(*Engine)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithEndpoint overrides the listen endpoint. Used by tests and by
// self-hosted Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(e *Engine) { e.endpoint = endpoint }
}

// Engine implements stt.Transcriber backed by the Deepgram live API.
type Engine struct {
	apiKey   string
	model    string
	endpoint string
}

// New creates a new Deepgram Engine. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	e := &Engine{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// buildURL constructs the listen endpoint URL for the given options.
func (e *Engine) buildURL(opts stt.Options) (string, error) {
	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", e.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.EngineSampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Transcribe streams samples to Deepgram and returns every final result in
// arrival order. Deepgram has no prompt or beam parameters; those options
// are ignored.
func (e *Engine) Transcribe(ctx context.Context, samples []float32, opts stt.Options) ([]stt.Segment, error) {
	wsURL, err := e.buildURL(opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	pcm := audio.EncodePCM16LE(samples)
	for off := 0; off < len(pcm); off += sendChunkBytes {
		end := min(off+sendChunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return nil, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return nil, fmt.Errorf("deepgram: send close stream: %w", err)
	}

	var segs []stt.Segment
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return segs, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}

		resp, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		switch resp.kind {
		case "Metadata":
			// Sent once the server has flushed every result.
			conn.Close(websocket.StatusNormalClosure, "")
			return segs, nil
		case "Results":
			if resp.seg.Text != "" {
				segs = append(segs, resp.seg)
			}
		}
	}
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results
// or Metadata event.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type parsedResponse struct {
	kind string
	seg  stt.Segment
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message. Interim
// results and unknown events are reported as ignorable (false).
func parseDeepgramResponse(data []byte) (parsedResponse, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return parsedResponse{}, false
	}
	switch resp.Type {
	case "Metadata":
		return parsedResponse{kind: "Metadata"}, true
	case "Results":
	default:
		return parsedResponse{}, false
	}
	if !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
		return parsedResponse{}, false
	}

	start := time.Duration(resp.Start * float64(time.Second))
	return parsedResponse{
		kind: "Results",
		seg: stt.Segment{
			Text:  resp.Channel.Alternatives[0].Transcript,
			Start: start,
			End:   start + time.Duration(resp.Duration*float64(time.Second)),
		},
	}, true
}
