package domain

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline picture attached to a user message.
type Image struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Message is one immutable entry of the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Image     *Image    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"isError,omitempty"`
}

// Mood is the companion's displayed affect.
type Mood string

const (
	MoodNeutral  Mood = "neutral"
	MoodThinking Mood = "thinking"
	MoodHappy    Mood = "happy"
	MoodWaiting  Mood = "waiting"
)

// CaptureState models the dictation lifecycle.
type CaptureState string

const (
	CaptureStateIdle      CaptureState = "idle"
	CaptureStateListening CaptureState = "listening"
	CaptureStateStopping  CaptureState = "stopping"
)

// CaptureStatus summarizes the dictation session for the UI.
type CaptureStatus struct {
	State CaptureState `json:"state"`
	Input string       `json:"input"`
	Error string       `json:"error,omitempty"`
	Kind  string       `json:"kind,omitempty"`
}

// ErrorCode identifies the surface an error is reported on.
type ErrorCode string

const (
	ErrorCodeStartup ErrorCode = "startup"
	ErrorCodeChat    ErrorCode = "chat"
	ErrorCodeCapture ErrorCode = "capture"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// RecognitionEventKind mirrors the platform recognizer callbacks.
type RecognitionEventKind string

const (
	RecognitionStart  RecognitionEventKind = "start"
	RecognitionResult RecognitionEventKind = "result"
	RecognitionError  RecognitionEventKind = "error"
	RecognitionEnd    RecognitionEventKind = "end"
)

// RecognitionEvent is emitted by a recognition handle. Err is set for
// RecognitionError only, Transcript for RecognitionResult only.
type RecognitionEvent struct {
	Kind       RecognitionEventKind
	Transcript string
	Err        *CaptureError
}

// AudioPayload is encoded speech returned by a synthesizer.
type AudioPayload struct {
	Data     []byte
	MIMEType string
}

// AudioFormat describes decoded PCM.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// SessionSnapshot is the read model of the chat session.
type SessionSnapshot struct {
	Messages  []Message     `json:"messages"`
	InFlight  bool          `json:"inFlight"`
	LastError string        `json:"lastError,omitempty"`
	Mood      Mood          `json:"mood"`
	Exchanges int           `json:"exchanges"`
	SideFact  string        `json:"sideFact,omitempty"`
	Muted     bool          `json:"muted"`
	Capture   CaptureStatus `json:"capture"`
}
