package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/pipescribe/pkg/provider/stt"
	"github.com/coder/websocket"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	e, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := e.buildURL(stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
}

func TestBuildURL_CustomModelNoLanguage(t *testing.T) {
	e, err := New("key", WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := e.buildURL(stt.Options{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	assertEqual(t, "model", "base", q.Get("model"))
	if q.Has("language") {
		t.Errorf("language should be omitted, got %q", q.Get("language"))
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- parser tests ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantOK   bool
		wantKind string
		wantText string
	}{
		{"final", `{"type":"Results","is_final":true,"start":1.5,"duration":2,"channel":{"alternatives":[{"transcript":"hello world"}]}}`, true, "Results", "hello world"},
		{"interim ignored", `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`, false, "", ""},
		{"no alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`, false, "", ""},
		{"metadata", `{"type":"Metadata"}`, true, "Metadata", ""},
		{"speech started", `{"type":"SpeechStarted"}`, false, "", ""},
		{"garbage", `not json`, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDeepgramResponse([]byte(tt.msg))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v; want %v", ok, tt.wantOK)
			}
			if got.kind != tt.wantKind || got.seg.Text != tt.wantText {
				t.Errorf("got (%q, %q); want (%q, %q)", got.kind, got.seg.Text, tt.wantKind, tt.wantText)
			}
		})
	}

	got, _ := parseDeepgramResponse([]byte(`{"type":"Results","is_final":true,"start":1.5,"duration":2,"channel":{"alternatives":[{"transcript":"x"}]}}`))
	if got.seg.Start != 1500*time.Millisecond || got.seg.End != 3500*time.Millisecond {
		t.Errorf("timing = %v..%v; want 1.5s..3.5s", got.seg.Start, got.seg.End)
	}
}

// ---- end-to-end against a fake server ----

// newFakeServer accepts one websocket, counts the audio bytes until
// CloseStream arrives and then replies with the given messages followed by
// Metadata.
func newFakeServer(t *testing.T, gotBytes *atomic.Int64, gotAuth *atomic.Value, replies ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				gotBytes.Add(int64(len(msg)))
				continue
			}
			break
		}
		for _, m := range replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
		// Wait for the client to close.
		_, _, _ = conn.Read(ctx)
	}))
}

func TestTranscribe_CollectsFinalResults(t *testing.T) {
	var gotBytes atomic.Int64
	var gotAuth atomic.Value
	srv := newFakeServer(t, &gotBytes, &gotAuth,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"world"}]}}`,
	)
	defer srv.Close()

	e, err := New("secret", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	samples := make([]float32, 10000) // 20000 bytes: three binary messages
	segs, err := e.Transcribe(ctx, samples, stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segs) != 2 || segs[0].Text != "hello" || segs[1].Text != "world" {
		t.Fatalf("segments = %+v; want [hello world]", segs)
	}
	if got := gotBytes.Load(); got != 20000 {
		t.Errorf("server received %d audio bytes; want 20000", got)
	}
	if got, _ := gotAuth.Load().(string); got != "Token secret" {
		t.Errorf("Authorization = %q; want %q", got, "Token secret")
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, _ := New("bad", WithEndpoint(srv.URL))
	if _, err := e.Transcribe(context.Background(), make([]float32, 16), stt.Options{}); err == nil {
		t.Fatal("expected error when the handshake is rejected")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
