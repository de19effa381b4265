// Package playback owns the single live speech stream.
package playback

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"leo/internal/domain"
	"leo/internal/ports"
)

// Session plays at most one decoded payload at a time. Playback is always
// triggered fire-and-forget, so failures are logged and never returned.
type Session struct {
	sink   ports.AudioSink
	logger zerolog.Logger

	mu      sync.Mutex
	active  ports.PlaybackHandle
	playing bool
}

func NewSession(sink ports.AudioSink, logger zerolog.Logger) *Session {
	return &Session{sink: sink, logger: logger.With().Str("component", "playback").Logger()}
}

// Play stops the current stream, then decodes and starts payload. The old
// handle is torn down before the new one is connected to the sink.
func (s *Session) Play(payload domain.AudioPayload) {
	s.PlayIf(payload, nil)
}

// PlayIf is Play guarded by current, which is evaluated under the session
// lock so a concurrent Stop either precedes the check or stops the result.
// It reports whether playback started.
func (s *Session) PlayIf(payload domain.AudioPayload, current func() bool) (started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("audio playback panicked")
			s.active = nil
			s.playing = false
			started = false
		}
	}()

	if current != nil && !current() {
		s.logger.Debug().Msg("dropping superseded audio")
		return false
	}

	s.stopLocked()

	pcm, format, err := Decode(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("mime_type", payload.MIMEType).Msg("failed to decode audio")
		return false
	}

	handle, err := s.sink.Open(format, bytes.NewReader(pcm))
	if err != nil {
		s.logger.Warn().Err(err).Int("sample_rate", format.SampleRate).Msg("failed to open audio output")
		return false
	}

	s.active = handle
	s.playing = true
	handle.Start()
	go s.watch(handle)

	s.logger.Debug().Int("bytes", len(pcm)).Int("sample_rate", format.SampleRate).Msg("playback started")
	return true
}

// Stop tears down the current stream. Stopping a stopped session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Session) stopLocked() {
	if s.active == nil {
		return
	}
	handle := s.active
	s.active = nil
	s.playing = false
	if err := safeStop(handle); err != nil {
		s.logger.Warn().Err(err).Msg("failed to stop audio output cleanly")
	}
}

func (s *Session) watch(handle ports.PlaybackHandle) {
	<-handle.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == handle {
		s.active = nil
		s.playing = false
		s.logger.Debug().Msg("playback finished")
	}
}

func safeStop(handle ports.PlaybackHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stop panicked: %v", r)
		}
	}()
	return handle.Stop()
}
