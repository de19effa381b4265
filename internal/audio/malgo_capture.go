package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"leo/internal/domain"
	"leo/internal/ports"
)

// MalgoCapture reads the default microphone through miniaudio, for
// platforms without ffmpeg.
type MalgoCapture struct{}

func NewMalgoCapture() *MalgoCapture {
	return &MalgoCapture{}
}

func (c *MalgoCapture) Available() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return domain.NewCaptureError(domain.CaptureUnsupported, fmt.Errorf("no audio backend: %w", err))
	}
	_ = ctx.Uninit()
	ctx.Free()
	return nil
}

func (c *MalgoCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withCaptureDefaults(cfg)

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, domain.NewCaptureError(domain.CaptureUnsupported, fmt.Errorf("failed to init audio context: %w", err))
	}

	session := &malgoSession{malgoCtx: malgoCtx}
	session.cond = sync.NewCond(&session.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{Data: session.onData})
	if err != nil {
		session.release()
		return nil, classifyDeviceErr("failed to open microphone", err)
	}
	session.device = device

	if err := device.Start(); err != nil {
		session.release()
		return nil, classifyDeviceErr("failed to start microphone", err)
	}

	go func() {
		<-ctx.Done()
		_ = session.Stop()
	}()

	return session, nil
}

func classifyDeviceErr(msg string, err error) error {
	wrapped := fmt.Errorf("%s: %w", msg, err)
	if strings.Contains(strings.ToLower(err.Error()), "denied") {
		return domain.NewCaptureError(domain.CapturePermissionDenied, wrapped)
	}
	return &domain.CaptureError{Kind: domain.CaptureOther, Code: "audio-capture", Err: wrapped}
}

type malgoSession struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool

	stopOnce sync.Once
}

func (s *malgoSession) onData(_, input []byte, _ uint32) {
	s.mu.Lock()
	if !s.closed {
		s.buf = append(s.buf, input...)
	}
	s.mu.Unlock()
	s.cond.Signal()
}

// Read blocks until samples arrive and returns io.EOF once stopped and drained.
func (s *malgoSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *malgoSession) Close() error {
	return s.Stop()
}

func (s *malgoSession) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.device != nil {
			err = s.device.Stop()
		}
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cond.Broadcast()
		s.release()
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *malgoSession) release() {
	if s.device != nil {
		s.device.Uninit()
	}
	if s.malgoCtx != nil {
		_ = s.malgoCtx.Uninit()
		s.malgoCtx.Free()
	}
}
