package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"leo/internal/domain"
	"leo/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{}, zerolog.Nop())
	if p.cfg.APIBaseURL != DefaultAPIBaseURL || p.cfg.Model != DefaultModel {
		t.Fatalf("unexpected defaults: %+v", p.cfg)
	}
	if p.cfg.KeepAlive != defaultKeepAlive || p.dialer.HandshakeTimeout != defaultDialTimeout {
		t.Fatalf("unexpected timing defaults: %+v", p.cfg)
	}
}

func TestProviderRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(Config{}, zerolog.Nop()).StartStreaming(context.Background(), ports.StreamingConfig{})
	var captureErr *domain.CaptureError
	if !errors.As(err, &captureErr) || captureErr.Kind != domain.CaptureUnsupported {
		t.Fatalf("expected unsupported capture error, got %v", err)
	}
	if err := NewProvider(Config{APIKey: "key"}, zerolog.Nop()).Available(); err != nil {
		t.Fatalf("expected provider with key to be available: %v", err)
	}
}

func TestProviderStreamsTranscriptsFromServer(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	server := newListenServer(t, func(r *http.Request, conn *websocket.Conn) {
		gotAuth <- r.Header.Get("Authorization")
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"how do volcanoes work"}]}}`))
				continue
			}
			if strings.Contains(string(payload), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	})

	stream, err := NewProvider(Config{APIKey: "secret", APIBaseURL: server.URL + "/v1"}, zerolog.Nop()).
		StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if auth := <-gotAuth; auth != "Token secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}

	if err := stream.SendAudio([]byte{0, 1}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	event := nextEvent(t, stream)
	if event.Kind != domain.TranscriptKindFinal || event.Text != "how do volcanoes work" || !event.IsSpeechFinal {
		t.Fatalf("unexpected event: %+v", event)
	}

	_ = stream.CloseSend()
	if err := stream.Wait(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if err := stream.SendAudio([]byte{2, 3}); !errors.Is(err, errSendClosed) {
		t.Fatalf("expected send after close to fail, got %v", err)
	}
}

func TestProviderDialRejectedIsNotAllowed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	_, err := NewProvider(Config{APIKey: "wrong", APIBaseURL: server.URL}, zerolog.Nop()).
		StartStreaming(context.Background(), ports.StreamingConfig{})
	var captureErr *domain.CaptureError
	if !errors.As(err, &captureErr) || captureErr.Code != "not-allowed" {
		t.Fatalf("expected not-allowed, got %v", err)
	}
}

func TestClassifyDialErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		resp *http.Response
		kind domain.CaptureErrorKind
		code string
	}{
		{&http.Response{StatusCode: http.StatusUnauthorized}, domain.CaptureOther, "not-allowed"},
		{&http.Response{StatusCode: http.StatusForbidden}, domain.CaptureOther, "not-allowed"},
		{&http.Response{StatusCode: http.StatusBadRequest}, domain.CaptureOther, "bad-request"},
		{&http.Response{StatusCode: http.StatusTooManyRequests}, domain.CaptureOther, "rate-limited"},
		{&http.Response{StatusCode: http.StatusBadGateway}, domain.CaptureNetwork, ""},
		{nil, domain.CaptureNetwork, ""},
	}
	for _, tc := range cases {
		var captureErr *domain.CaptureError
		err := classifyDialErr(tc.resp, websocket.ErrBadHandshake)
		if !errors.As(err, &captureErr) || captureErr.Kind != tc.kind || captureErr.Code != tc.code {
			t.Fatalf("resp %+v: expected %s/%s, got %v", tc.resp, tc.kind, tc.code, err)
		}
	}
}

func TestListenURLDefaults(t *testing.T) {
	t.Parallel()

	got, err := listenURL(Config{APIBaseURL: DefaultAPIBaseURL, Model: DefaultModel}, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"wss://api.deepgram.com/v1/listen", "encoding=linear16", "sample_rate=16000", "channels=1", "model=nova-2"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %s", want, got)
		}
	}
	if strings.Contains(got, "utterance_end_ms") || strings.Contains(got, "endpointing") {
		t.Fatalf("unexpected optional params in %s", got)
	}
}

func TestListenURLOptionalParams(t *testing.T) {
	t.Parallel()

	got, err := listenURL(
		Config{APIBaseURL: "http://localhost:8080/v1/", Model: "m", Language: "en-US", SmartFormat: true, Endpointing: 300, UtteranceEndMs: 1000},
		ports.StreamingConfig{Encoding: "linear16", SampleRate: 8000, Channels: 2, InterimResults: true},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"ws://localhost:8080/v1/listen?", "language=en-US", "smart_format=true", "endpointing=300", "utterance_end_ms=1000", "vad_events=true"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %s", want, got)
		}
	}

	noInterim, _ := listenURL(Config{Model: "m", UtteranceEndMs: 1000}, ports.StreamingConfig{})
	if strings.Contains(noInterim, "utterance_end_ms") {
		t.Fatalf("utterance end needs interim results: %s", noInterim)
	}
}

func TestListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := listenURL(Config{APIBaseURL: ":// bad"}, ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected invalid base url error")
	}
	if _, err := listenURL(Config{APIBaseURL: "ftp://example.com"}, ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func newListenServer(t *testing.T, serve func(r *http.Request, conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(r, conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func nextEvent(t *testing.T, stream ports.StreamingSession) domain.TranscriptEvent {
	t.Helper()

	select {
	case event, ok := <-stream.Events():
		if !ok {
			t.Fatalf("event stream closed early")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcript")
	}
	return domain.TranscriptEvent{}
}
