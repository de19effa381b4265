package recognition

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"leo/internal/domain"
	"leo/internal/ports"
)

const (
	minChunkSize     = 256
	defaultChunkSize = 4096
)

// forwardAudio copies microphone audio into the stream until the microphone
// is stopped, and reports how many bytes went out. A stopped microphone is a
// clean end.
func forwardAudio(mic ports.AudioSession, stream ports.StreamingSession, chunkSize int) (int64, error) {
	if chunkSize < minChunkSize {
		chunkSize = defaultChunkSize
	}

	var sent int64
	chunk := make([]byte, chunkSize)
	for {
		n, readErr := mic.Read(chunk)
		if n > 0 {
			if err := stream.SendAudio(chunk[:n]); err != nil {
				return sent, sendFailure(err)
			}
			sent += int64(n)
		}

		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF), errors.Is(readErr, os.ErrClosed):
			return sent, nil
		default:
			return sent, &domain.CaptureError{
				Kind: domain.CaptureOther,
				Code: "audio-capture",
				Err:  fmt.Errorf("microphone read: %w", readErr),
			}
		}
	}
}

func sendFailure(err error) error {
	var captureErr *domain.CaptureError
	if errors.As(err, &captureErr) {
		return err
	}
	return domain.NewCaptureError(domain.CaptureNetwork, fmt.Errorf("stream audio: %w", err))
}

// awaitFinal waits for the provider to flush its last results. Past the
// deadline the stream is closed and whatever it reports is returned.
func awaitFinal(stream ports.StreamingSession, deadline time.Duration) error {
	result := make(chan error, 1)
	go func() { result <- stream.Wait() }()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		_ = stream.Close()
		return <-result
	}
}
