package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"leo/internal/domain"
)

const (
	DefaultChatModel   = "gemini-2.5-flash"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice       = "Puck"
)

// Config selects the Gemini API key, endpoint and models.
type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	SpeechModel string
	FactModel   string
	Voice       string
	HTTPClient  *http.Client
}

// Client lazily builds one genai client shared by the chat, speech and
// fact collaborators.
type Client struct {
	cfg Config

	mu     sync.Mutex
	client *genai.Client
}

func NewClient(cfg Config) *Client {
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}
	if cfg.FactModel == "" {
		cfg.FactModel = cfg.ChatModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return &Client{cfg: cfg}
}

// get returns the shared client, failing with ErrMissingCredential
// before any network access when no key is configured.
func (c *Client) get(ctx context.Context) (*genai.Client, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, domain.ErrMissingCredential
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     c.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.cfg.HTTPClient,
	}
	if c.cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	c.client = client
	return client, nil
}
