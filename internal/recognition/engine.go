package recognition

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"leo/internal/domain"
	"leo/internal/ports"
)

const defaultFinalizeTimeout = 4 * time.Second

// Config controls microphone capture and streaming for dictation.
type Config struct {
	Audio           ports.AudioConfig
	Streaming       ports.StreamingConfig
	ChunkSize       int
	StreamingGrace  time.Duration
	FinalizeTimeout time.Duration
}

// Engine composes a microphone and a streaming transcription provider into
// an event-driven recognizer.
type Engine struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      Config
	logger   zerolog.Logger
}

func NewEngine(audio ports.AudioCapture, provider ports.TranscriptionProvider, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.ChunkSize < minChunkSize {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	return &Engine{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "recognition").Logger(),
	}
}

// Available fails with an unsupported capture error when either the
// microphone or the transcription provider cannot be used.
func (e *Engine) Available() error {
	if err := e.audio.Available(); err != nil {
		return err
	}
	return e.provider.Available()
}

// Start connects the stream before opening the microphone so no speech is
// lost to the websocket handshake.
func (e *Engine) Start(ctx context.Context, cfg ports.RecognitionConfig) (ports.RecognitionHandle, error) {
	if err := e.Available(); err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := e.provider.StartStreaming(sessionCtx, e.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, domain.AsCaptureError(err)
	}

	audioSession, err := e.audio.Start(sessionCtx, e.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, domain.AsCaptureError(err)
	}

	h := &handle{
		ctx:        sessionCtx,
		cancel:     cancel,
		audio:      audioSession,
		stream:     stream,
		cfg:        e.cfg,
		continuous: cfg.Continuous,
		speech:     &utterance{},
		events:     make(chan domain.RecognitionEvent, 4),
		eventsDone: make(chan struct{}),
		done:       make(chan struct{}),
		logger:     e.logger,
	}
	h.events <- domain.RecognitionEvent{Kind: domain.RecognitionStart}

	go h.consumeTranscripts()
	go h.run()

	e.logger.Debug().Bool("continuous", cfg.Continuous).Msg("recognition started")
	return h, nil
}

// handle emits exactly one start, at most one result or error, then end.
type handle struct {
	ctx        context.Context
	cancel     context.CancelFunc
	audio      ports.AudioSession
	stream     ports.StreamingSession
	cfg        Config
	continuous bool
	speech     *utterance
	logger     zerolog.Logger

	events     chan domain.RecognitionEvent
	eventsDone chan struct{}
	done       chan struct{}

	mu       sync.Mutex
	stopping bool
	aborted  bool
}

func (h *handle) Events() <-chan domain.RecognitionEvent {
	return h.events
}

// Stop ends microphone capture; the final result is delivered asynchronously.
func (h *handle) Stop() error {
	h.mu.Lock()
	if h.stopping || h.aborted {
		h.mu.Unlock()
		return nil
	}
	h.stopping = true
	h.mu.Unlock()

	if err := h.audio.Stop(); err != nil {
		h.logger.Warn().Err(err).Msg("failed to stop audio capture cleanly")
	}
	return nil
}

// Abort tears the capture down and waits for the handle to finish.
func (h *handle) Abort() error {
	h.mu.Lock()
	already := h.aborted
	h.aborted = true
	h.mu.Unlock()

	if !already {
		h.cancel()
		_ = h.audio.Stop()
		_ = h.stream.Close()
	}
	<-h.done
	return nil
}

func (h *handle) state() (stopping, aborted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopping, h.aborted
}

func (h *handle) consumeTranscripts() {
	defer close(h.eventsDone)

	for event := range h.stream.Events() {
		h.speech.observe(event)
		if event.IsSpeechFinal && !h.continuous {
			go h.Stop()
		}
	}
}

func (h *handle) run() {
	defer close(h.done)
	defer close(h.events)
	defer h.cancel()

	sent, pumpErr := forwardAudio(h.audio, h.stream, h.cfg.ChunkSize)
	_ = h.audio.Stop()
	h.logger.Debug().Int64("bytes", sent).Msg("microphone closed")

	if _, aborted := h.state(); aborted {
		_ = h.stream.Close()
		<-h.eventsDone
		h.finish(domain.NewCaptureError(domain.CaptureAborted, errors.New("recognition aborted")))
		return
	}

	if pumpErr == nil && h.cfg.StreamingGrace > 0 {
		timer := time.NewTimer(h.cfg.StreamingGrace)
		select {
		case <-timer.C:
		case <-h.ctx.Done():
			timer.Stop()
		}
	}

	_ = h.stream.CloseSend()
	streamErr := awaitFinal(h.stream, h.cfg.FinalizeTimeout)
	<-h.eventsDone

	if _, aborted := h.state(); aborted {
		h.finish(domain.NewCaptureError(domain.CaptureAborted, errors.New("recognition aborted")))
		return
	}

	if text := h.speech.transcript(); text != "" {
		h.events <- domain.RecognitionEvent{Kind: domain.RecognitionResult, Transcript: text}
		h.finish(nil)
		return
	}

	switch {
	case pumpErr != nil:
		h.finish(domain.AsCaptureError(pumpErr))
	case streamErr != nil:
		captureErr := domain.AsCaptureError(streamErr)
		if captureErr.Kind == domain.CaptureOther && captureErr.Code == "" {
			captureErr = domain.NewCaptureError(domain.CaptureNetwork, streamErr)
		}
		h.finish(captureErr)
	default:
		h.finish(domain.NewCaptureError(domain.CaptureNoSpeech, errors.New("no speech detected")))
	}
}

func (h *handle) finish(err *domain.CaptureError) {
	if err != nil {
		h.events <- domain.RecognitionEvent{Kind: domain.RecognitionError, Err: err}
		h.logger.Debug().Str("kind", string(err.Kind)).Err(err).Msg("recognition ended with error")
	}
	h.events <- domain.RecognitionEvent{Kind: domain.RecognitionEnd}
}
