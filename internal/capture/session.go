// Package capture owns the dictation session: at most one live recognition
// handle feeding the chat input buffer.
package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"leo/internal/domain"
	"leo/internal/ports"
)

var ErrClosed = errors.New("capture session is closed")

// Session drives idle -> listening -> stopping -> idle. Events from a
// handle that is no longer current are dropped. Status events are published
// one at a time from the latest state.
type Session struct {
	recognizer ports.Recognizer
	rules      ports.RulesEngine
	events     ports.EventSink
	cfg        ports.RecognitionConfig
	logger     zerolog.Logger

	notifyMu sync.Mutex

	mu      sync.Mutex
	handle  ports.RecognitionHandle
	state   domain.CaptureState
	lastErr *domain.CaptureError
	input   string
	closed  bool

	wg sync.WaitGroup
}

func NewSession(
	recognizer ports.Recognizer,
	rules ports.RulesEngine,
	events ports.EventSink,
	cfg ports.RecognitionConfig,
	logger zerolog.Logger,
) *Session {
	return &Session{
		recognizer: recognizer,
		rules:      rules,
		events:     events,
		cfg:        cfg,
		logger:     logger.With().Str("component", "capture").Logger(),
		state:      domain.CaptureStateIdle,
	}
}

// Start aborts any live handle, then begins a new capture.
func (s *Session) Start(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.recognizer.Available(); err != nil {
		return s.fail(domain.AsCaptureError(err))
	}

	s.mu.Lock()
	previous := s.handle
	s.handle = nil
	s.mu.Unlock()
	if previous != nil {
		_ = previous.Abort()
	}

	handle, err := s.recognizer.Start(ctx, s.cfg)
	if err != nil {
		return s.fail(domain.AsCaptureError(err))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = handle.Abort()
		return ErrClosed
	}
	raced := s.handle
	s.handle = handle
	s.state = domain.CaptureStateListening
	s.lastErr = nil
	s.mu.Unlock()

	if raced != nil {
		_ = raced.Abort()
	}

	s.wg.Add(1)
	go s.consume(handle)

	s.logger.Debug().Msg("dictation started")
	s.publish()
	return nil
}

// Stop ends capture and lets the final result arrive.
func (s *Session) Stop() error {
	s.mu.Lock()
	handle := s.handle
	if handle == nil || s.state != domain.CaptureStateListening {
		s.mu.Unlock()
		return nil
	}
	s.state = domain.CaptureStateStopping
	s.mu.Unlock()

	s.publish()
	return handle.Stop()
}

// Abort ends capture without a result or a visible error.
func (s *Session) Abort() error {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.state = domain.CaptureStateIdle
	s.mu.Unlock()

	if handle == nil {
		return nil
	}
	err := handle.Abort()
	s.publish()
	return err
}

// Toggle stops a listening session or starts a new one. A session that is
// already draining its result is left alone.
func (s *Session) Toggle(ctx context.Context) error {
	switch s.Status().State {
	case domain.CaptureStateListening:
		return s.Stop()
	case domain.CaptureStateStopping:
		return nil
	default:
		return s.Start(ctx)
	}
}

// Close aborts the live handle and waits for its events to drain.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	handle := s.handle
	s.handle = nil
	s.state = domain.CaptureStateIdle
	s.mu.Unlock()

	if handle != nil {
		_ = handle.Abort()
	}
	s.wg.Wait()
}

func (s *Session) Status() domain.CaptureStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the buffer with what the user typed.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	if s.input == text {
		s.mu.Unlock()
		return
	}
	s.input = text
	s.mu.Unlock()
	s.publish()
}

func (s *Session) ClearInput() {
	s.SetInput("")
}

func (s *Session) consume(handle ports.RecognitionHandle) {
	defer s.wg.Done()

	for event := range handle.Events() {
		switch event.Kind {
		case domain.RecognitionResult:
			s.applyResult(handle, s.rewrite(event.Transcript))
		case domain.RecognitionError:
			s.applyError(handle, event.Err)
		case domain.RecognitionEnd:
			s.applyEnd(handle)
		}
	}
}

func (s *Session) rewrite(transcript string) string {
	if s.rules == nil {
		return transcript
	}
	rewritten, err := s.rules.Apply(transcript)
	if err != nil {
		s.logger.Warn().Err(err).Msg("dictation rules failed")
	}
	if strings.TrimSpace(rewritten) == "" {
		return transcript
	}
	return rewritten
}

func (s *Session) applyResult(handle ports.RecognitionHandle, transcript string) {
	s.mu.Lock()
	if s.handle != handle {
		s.mu.Unlock()
		return
	}
	s.input = appendTranscript(s.input, transcript)
	s.lastErr = nil
	s.mu.Unlock()

	s.publish()
}

func (s *Session) applyError(handle ports.RecognitionHandle, captureErr *domain.CaptureError) {
	if captureErr == nil || captureErr.Silent() {
		return
	}

	s.mu.Lock()
	if s.handle != handle {
		s.mu.Unlock()
		return
	}
	s.lastErr = captureErr
	s.mu.Unlock()

	s.logger.Warn().Err(captureErr).Str("kind", string(captureErr.Kind)).Msg("dictation failed")
	s.publish()
	s.events.SessionError(domain.ErrorCodeCapture, Describe(captureErr))
}

func (s *Session) applyEnd(handle ports.RecognitionHandle) {
	s.mu.Lock()
	if s.handle != handle {
		s.mu.Unlock()
		return
	}
	s.handle = nil
	s.state = domain.CaptureStateIdle
	s.mu.Unlock()

	s.publish()
}

// fail records a start failure. Silent kinds leave no visible error.
func (s *Session) fail(captureErr *domain.CaptureError) error {
	s.mu.Lock()
	s.state = domain.CaptureStateIdle
	if !captureErr.Silent() {
		s.lastErr = captureErr
	}
	s.mu.Unlock()

	s.logger.Warn().Err(captureErr).Str("kind", string(captureErr.Kind)).Msg("dictation could not start")
	s.publish()
	if !captureErr.Silent() {
		s.events.SessionError(domain.ErrorCodeCapture, Describe(captureErr))
	}
	return captureErr
}

// publish emits the current status. Publishers take turns, so the last
// event always carries the latest status.
func (s *Session) publish() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.events.CaptureChanged(s.Status())
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) statusLocked() domain.CaptureStatus {
	status := domain.CaptureStatus{State: s.state, Input: s.input}
	if s.lastErr != nil {
		status.Error = Describe(s.lastErr)
		status.Kind = string(s.lastErr.Kind)
	}
	return status
}

// appendTranscript joins with one space unless the buffer is empty or
// already ends in whitespace.
func appendTranscript(buffer, transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return buffer
	}
	if buffer == "" {
		return transcript
	}
	last, _ := utf8.DecodeLastRuneInString(buffer)
	if unicode.IsSpace(last) {
		return buffer + transcript
	}
	return buffer + " " + transcript
}
