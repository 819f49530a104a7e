package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/pipescribe/pkg/audio"
	"github.com/MrWong99/pipescribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/pipescribe/pkg/provider/stt/mock"
)

func TestJoinSegments(t *testing.T) {
	tests := []struct {
		name string
		segs []stt.Segment
		want string
	}{
		{"nil", nil, ""},
		{"single", []stt.Segment{{Text: " Hello. "}}, "Hello."},
		{"drops empties", []stt.Segment{{Text: "a"}, {Text: "   "}, {Text: ""}, {Text: "b"}}, "a b"},
		{"keeps inner spacing", []stt.Segment{{Text: "a  b"}, {Text: "c"}}, "a  b c"},
		{"all blank", []stt.Segment{{Text: " "}, {Text: "\t"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinSegments(tt.segs); got != tt.want {
				t.Errorf("JoinSegments = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdapter_EmptyWaveformSkipsEngine(t *testing.T) {
	eng := &sttmock.Transcriber{Segments: []stt.Segment{{Text: "x"}}}
	a := NewAdapter(eng, "mock", stt.Options{}, testMetrics(t))

	text, err := a.Transcribe(context.Background(), nil, "prompt")
	if err != nil || text != "" {
		t.Fatalf("Transcribe = %q, %v; want empty, nil", text, err)
	}
	if eng.CallCount() != 0 {
		t.Errorf("engine called %d times, want 0", eng.CallCount())
	}
}

func TestAdapter_PinsOptions(t *testing.T) {
	eng := &sttmock.Transcriber{}
	a := NewAdapter(eng, "mock", stt.Options{Language: "de", BeamSize: 3, Temperature: 0.8, Prompt: "stale"}, testMetrics(t))

	if _, err := a.Transcribe(context.Background(), audio.Waveform{0.2}, "carried words"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	got := eng.Calls[0].Opts
	want := stt.Options{Language: "de", BeamSize: 3, Temperature: 0, Prompt: "carried words"}
	if got != want {
		t.Errorf("opts = %+v, want %+v", got, want)
	}
}

func TestAdapter_EngineError(t *testing.T) {
	cause := errors.New("model not loaded")
	eng := &sttmock.Transcriber{Err: cause}
	a := NewAdapter(eng, "whisper", stt.Options{}, testMetrics(t))

	_, err := a.Transcribe(context.Background(), audio.Waveform{0.2}, "")
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *EngineError", err)
	}
	if ee.Engine != "whisper" || ee.Panic {
		t.Errorf("EngineError = %+v", ee)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err does not wrap cause")
	}
}

func TestAdapter_EnginePanic(t *testing.T) {
	eng := &sttmock.Transcriber{Responses: []sttmock.Response{{Panic: "boom"}}}
	a := NewAdapter(eng, "whisper", stt.Options{}, testMetrics(t))

	_, err := a.Transcribe(context.Background(), audio.Waveform{0.2}, "")
	var ee *EngineError
	if !errors.As(err, &ee) || !ee.Panic {
		t.Fatalf("err = %v, want panic EngineError", err)
	}
	if ee.Error() != `worker: engine "whisper" panicked: boom` {
		t.Errorf("Error() = %q", ee.Error())
	}
}
