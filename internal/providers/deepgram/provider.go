// Package deepgram streams microphone audio to Deepgram's live
// transcription websocket.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"leo/internal/domain"
	"leo/internal/ports"
)

const (
	DefaultAPIBaseURL = "https://api.deepgram.com/v1"
	DefaultModel      = "nova-2"

	defaultKeepAlive   = 8 * time.Second
	defaultDialTimeout = 10 * time.Second
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool

	// Endpointing is the trailing silence in milliseconds after which
	// Deepgram marks speech final. Zero keeps the server default.
	Endpointing int
	// UtteranceEndMs enables UtteranceEnd messages after that many
	// milliseconds without words. It needs interim results.
	UtteranceEndMs int

	KeepAlive   time.Duration
	DialTimeout time.Duration
}

// Provider implements ports.TranscriptionProvider for Deepgram.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger
}

func NewProvider(cfg Config, logger zerolog.Logger) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	return &Provider{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: logger.With().Str("component", "deepgram").Logger(),
	}
}

// Available reports unsupported when no Deepgram key is configured.
func (p *Provider) Available() error {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return domain.NewCaptureError(domain.CaptureUnsupported, errors.New("DEEPGRAM_API_KEY is not configured"))
	}
	return nil
}

// StartStreaming dials the listen endpoint. The session closes itself when
// ctx is canceled.
func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}

	wsURL, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, &domain.CaptureError{Kind: domain.CaptureOther, Code: "bad-config", Err: err}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		classified := classifyDialErr(resp, err)
		p.logger.Warn().Err(classified).Msg("listen dial failed")
		return nil, classified
	}

	s := newSession(conn, p.cfg.KeepAlive, p.logger)
	s.start(ctx)

	p.logger.Debug().Str("model", p.cfg.Model).Int("sample_rate", cfg.SampleRate).Msg("listen stream open")
	return s, nil
}

// classifyDialErr separates rejected requests from transport failures.
func classifyDialErr(resp *http.Response, err error) error {
	wrapped := fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	if resp == nil {
		return domain.NewCaptureError(domain.CaptureNetwork, wrapped)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return &domain.CaptureError{Kind: domain.CaptureOther, Code: "not-allowed", Err: wrapped}
	case http.StatusBadRequest:
		return &domain.CaptureError{Kind: domain.CaptureOther, Code: "bad-request", Err: wrapped}
	case http.StatusTooManyRequests:
		return &domain.CaptureError{Kind: domain.CaptureOther, Code: "rate-limited", Err: wrapped}
	default:
		return domain.NewCaptureError(domain.CaptureNetwork, wrapped)
	}
}

func listenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = DefaultAPIBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported Deepgram API scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/listen"

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := u.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	query.Set("channels", strconv.Itoa(streamCfg.Channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	if providerCfg.Endpointing > 0 {
		query.Set("endpointing", strconv.Itoa(providerCfg.Endpointing))
	}
	if providerCfg.UtteranceEndMs > 0 && streamCfg.InterimResults {
		query.Set("utterance_end_ms", strconv.Itoa(providerCfg.UtteranceEndMs))
		query.Set("vad_events", "true")
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
