package deepgram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"leo/internal/domain"
)

var (
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
)

var errSendClosed = errors.New("audio stream is already closed")

// session is one live listen socket. Only writeLoop writes to conn.
type session struct {
	conn      *websocket.Conn
	keepAlive time.Duration
	logger    zerolog.Logger

	events   chan domain.TranscriptEvent
	audio    chan []byte
	readDone chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	sendMu     sync.RWMutex
	sendClosed bool

	errMu         sync.Mutex
	err           error
	closedLocally bool

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func newSession(conn *websocket.Conn, keepAlive time.Duration, logger zerolog.Logger) *session {
	return &session{
		conn:      conn,
		keepAlive: keepAlive,
		logger:    logger,
		events:    make(chan domain.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		readDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *session) start(ctx context.Context) {
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	go func() {
		s.wg.Wait()
		close(s.events)
		_ = s.conn.Close()
		close(s.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
}

func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errSendClosed
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return domain.NewCaptureError(domain.CaptureNetwork, errors.New("listen stream closed"))
	}
}

// CloseSend flushes queued audio and asks Deepgram to finalize.
func (s *session) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *session) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *session) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close drops the socket without waiting for final results.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.closedLocally = true
		s.errMu.Unlock()

		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.waitErr()
}

func (s *session) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage); err != nil {
					s.fail(transportErr("failed to close stream", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.fail(transportErr("failed to send audio", err))
				return
			}
			ticker.Reset(s.keepAlive)
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.TextMessage, keepAliveMessage); err != nil {
				s.fail(transportErr("failed to send keepalive", err))
				return
			}
		case <-s.readDone:
			return
		}
	}
}

func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(transportErr("failed to read provider event", err))
			return
		}

		msg, err := decodeMessage(payload)
		if err != nil {
			s.logger.Debug().Err(err).Msg("skipping unreadable provider message")
			continue
		}

		switch msg.Type {
		case messageError:
			s.fail(&domain.CaptureError{Kind: domain.CaptureOther, Code: "provider", Err: errors.New(msg.errorText())})
			return
		case messageUtteranceEnd:
			s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, IsSpeechFinal: true})
		case messageResults, "":
			if event, ok := msg.transcriptEvent(); ok {
				s.emit(event)
			}
		}
	}
}

func (s *session) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Debug().Str("kind", string(event.Kind)).Msg("transcript buffer full, dropping event")
	}
}

// fail records the first failure. Normal closes and anything after a local
// Close are not failures.
func (s *session) fail(err error) {
	if err == nil || isNormalClose(err) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.closedLocally || s.err != nil {
		return
	}
	s.err = err
}

func (s *session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func transportErr(msg string, err error) error {
	if isNormalClose(err) {
		return err
	}
	return domain.NewCaptureError(domain.CaptureNetwork, fmt.Errorf("%s: %w", msg, err))
}
