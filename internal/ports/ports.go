package ports

import (
	"context"
	"io"

	"leo/internal/domain"
)

// ChatConfig configures a text-generation conversation.
type ChatConfig struct {
	SystemPrompt string
	Temperature  float32
}

// TextGenerator is a stateful multi-turn chat with the language model.
type TextGenerator interface {
	// Initialize starts a fresh conversation; prior turns are forgotten.
	Initialize(ctx context.Context, cfg ChatConfig) error
	Send(ctx context.Context, history []domain.Message, text string, image *domain.Image) (string, error)
}

// SpeechSynthesizer turns text into encoded audio. A nil payload means
// no audio is available.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (*domain.AudioPayload, error)
}

// FactGenerator produces a short fun fact. It never returns an empty string.
type FactGenerator interface {
	Generate(ctx context.Context, topic string) string
}

// RecognitionConfig controls a dictation capture.
type RecognitionConfig struct {
	Language   string
	Continuous bool
}

// RecognitionHandle is a live recognition instance. Events is closed
// after the RecognitionEnd event.
type RecognitionHandle interface {
	Events() <-chan domain.RecognitionEvent
	Stop() error
	Abort() error
}

// Recognizer is the speech recognition capability.
type Recognizer interface {
	// Available returns a CaptureError of kind unsupported when no
	// recognition is possible.
	Available() error
	Start(ctx context.Context, cfg RecognitionConfig) (RecognitionHandle, error)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Available() error
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	Available() error
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// PlaybackHandle is one connected output stream.
type PlaybackHandle interface {
	Start()
	Stop() error
	// Done is closed when the stream ends, naturally or by Stop.
	Done() <-chan struct{}
}

// AudioSink connects decoded PCM to the speaker.
type AudioSink interface {
	Open(format domain.AudioFormat, pcm io.Reader) (PlaybackHandle, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionChanged(snapshot domain.SessionSnapshot)
	MoodChanged(mood domain.Mood)
	SideFact(text string)
	CaptureChanged(status domain.CaptureStatus)
	SessionError(code domain.ErrorCode, detail string)
}
