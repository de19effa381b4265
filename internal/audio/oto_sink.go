package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"leo/internal/domain"
	"leo/internal/ports"
)

const otoPollInterval = 20 * time.Millisecond

// OtoSink plays PCM16LE through the system speaker. oto allows a single
// context per process, so the sink is bound to one output format and the
// context is only created on first use.
type OtoSink struct {
	format     domain.AudioFormat
	bufferSize time.Duration

	once    sync.Once
	ctx     *oto.Context
	initErr error
}

func NewOtoSink(format domain.AudioFormat, bufferSize time.Duration) *OtoSink {
	if format.SampleRate <= 0 {
		format.SampleRate = 24000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	return &OtoSink{format: format, bufferSize: bufferSize}
}

func (s *OtoSink) Open(format domain.AudioFormat, pcm io.Reader) (ports.PlaybackHandle, error) {
	if format != s.format {
		return nil, fmt.Errorf("speaker is configured for %d Hz/%d ch, payload is %d Hz/%d ch",
			s.format.SampleRate, s.format.Channels, format.SampleRate, format.Channels)
	}
	ctx, err := s.context()
	if err != nil {
		return nil, err
	}
	return newOtoHandle(ctx.NewPlayer(pcm)), nil
}

func (s *OtoSink) context() (*oto.Context, error) {
	s.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   s.format.SampleRate,
			ChannelCount: s.format.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   s.bufferSize,
		})
		if err != nil {
			s.initErr = fmt.Errorf("failed to init speaker: %w", err)
			return
		}
		<-ready
		s.ctx = ctx
	})
	return s.ctx, s.initErr
}

type otoHandle struct {
	player *oto.Player

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
	stopErr  error
}

func newOtoHandle(player *oto.Player) *otoHandle {
	return &otoHandle{player: player, done: make(chan struct{}), stopped: make(chan struct{})}
}

func (h *otoHandle) Start() {
	h.player.Play()
	go h.monitor()
}

// Stop pauses before closing so buffered audio is cut immediately.
func (h *otoHandle) Stop() error {
	h.stopOnce.Do(func() {
		close(h.stopped)
		h.player.Pause()
		h.stopErr = h.player.Close()
		h.finish()
	})
	return h.stopErr
}

func (h *otoHandle) Done() <-chan struct{} {
	return h.done
}

func (h *otoHandle) monitor() {
	ticker := time.NewTicker(otoPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopped:
			return
		case <-ticker.C:
			if !h.player.IsPlaying() {
				_ = h.Stop()
				return
			}
		}
	}
}

func (h *otoHandle) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}
