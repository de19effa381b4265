package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"leo/internal/domain"
	"leo/internal/ports"
)

const (
	defaultStartupProbe = 250 * time.Millisecond
	defaultStopGrace    = 1200 * time.Millisecond
	stderrTailLimit     = 2048
)

var permissionMarkers = []string{
	"permission denied",
	"access denied",
	"operation not permitted",
	"not authorized",
}

// FFMPEGCapture records the microphone as raw s16le PCM by running ffmpeg
// (or any recorder with the same flags) and reading its stdout.
type FFMPEGCapture struct {
	command      string
	startupProbe time.Duration
	stopGrace    time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{
		command:      command,
		startupProbe: defaultStartupProbe,
		stopGrace:    defaultStopGrace,
	}
}

func (c *FFMPEGCapture) Available() error {
	if _, err := exec.LookPath(c.command); err != nil {
		return domain.NewCaptureError(domain.CaptureUnsupported, fmt.Errorf("microphone recorder %q not found: %w", c.command, err))
	}
	return nil
}

// Start launches the recorder and watches it for startupProbe. A recorder
// that dies in that window usually could not open the device.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, recorderArgs(withCaptureDefaults(cfg))...)
	tail := &stderrTail{}
	cmd.Stderr = tail
	cmd.WaitDelay = c.stopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, domain.NewCaptureError(domain.CaptureUnsupported, err)
		}
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	rec := &recording{
		stdout:    stdout,
		stderr:    tail,
		process:   cmd.Process,
		stopGrace: c.stopGrace,
		exited:    make(chan struct{}),
	}
	go func() {
		rec.exitErr = cmd.Wait()
		close(rec.exited)
	}()

	probe := time.NewTimer(c.startupProbe)
	defer probe.Stop()
	select {
	case <-rec.exited:
		return nil, startupFailure(rec.exitErr, tail.String())
	case <-probe.C:
		return rec, nil
	}
}

func recorderArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin", "-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

func withCaptureDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

// startupFailure turns an early recorder exit into a capture error. Device
// permission problems are only visible in stderr.
func startupFailure(exitErr error, stderr string) error {
	parts := []string{"recorder exited before capture started"}
	if exitErr != nil {
		parts = append(parts, exitErr.Error())
	}
	if stderr != "" {
		parts = append(parts, stderr)
	}
	err := errors.New(strings.Join(parts, ": "))

	lower := strings.ToLower(stderr)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return domain.NewCaptureError(domain.CapturePermissionDenied, err)
		}
	}
	return &domain.CaptureError{Kind: domain.CaptureOther, Code: "audio-capture", Err: err}
}

type recording struct {
	stdout    io.ReadCloser
	stderr    *stderrTail
	process   *os.Process
	stopGrace time.Duration

	exited  chan struct{}
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

func (r *recording) Read(p []byte) (int, error) {
	return r.stdout.Read(p)
}

func (r *recording) Close() error {
	return r.Stop()
}

// Stop interrupts the recorder and kills it if it outlives stopGrace. An
// interrupted recorder exits non-zero, which is not reported.
func (r *recording) Stop() error {
	r.stopOnce.Do(func() {
		_ = r.process.Signal(os.Interrupt)

		grace := time.NewTimer(r.stopGrace)
		select {
		case <-r.exited:
		case <-grace.C:
			_ = r.process.Kill()
			<-r.exited
		}
		grace.Stop()

		var exitErr *exec.ExitError
		if r.exitErr != nil && !errors.As(r.exitErr, &exitErr) {
			r.stopErr = r.exitErr
		}
		if err := r.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && r.stopErr == nil {
			r.stopErr = err
		}
		if r.stopErr != nil {
			if detail := r.stderr.String(); detail != "" {
				r.stopErr = fmt.Errorf("%w: %s", r.stopErr, detail)
			}
		}
	})
	return r.stopErr
}

// stderrTail keeps the last stderrTailLimit bytes the recorder wrote.
type stderrTail struct {
	mu  sync.Mutex
	buf []byte
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - stderrTailLimit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
