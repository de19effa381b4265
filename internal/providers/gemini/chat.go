package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"leo/internal/domain"
	"leo/internal/ports"
)

const defaultImagePrompt = "Help me with this image."

// Chat implements ports.TextGenerator on a stateful genai chat.
type Chat struct {
	client *Client
	logger zerolog.Logger

	mu   sync.Mutex
	cfg  ports.ChatConfig
	chat *genai.Chat
}

func NewChat(client *Client, logger zerolog.Logger) *Chat {
	return &Chat{
		client: client,
		logger: logger.With().Str("component", "gemini_chat").Logger(),
	}
}

// Initialize replaces the conversation with a fresh one.
func (c *Chat) Initialize(ctx context.Context, cfg ports.ChatConfig) error {
	c.mu.Lock()
	c.cfg = cfg
	c.chat = nil
	c.mu.Unlock()

	chat, err := c.create(ctx, cfg, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.chat = chat
	c.mu.Unlock()
	return nil
}

// Send posts one user turn. A chat that was never initialized is created
// on demand and seeded from history.
func (c *Chat) Send(ctx context.Context, history []domain.Message, text string, image *domain.Image) (string, error) {
	c.mu.Lock()
	chat, cfg := c.chat, c.cfg
	c.mu.Unlock()

	if chat == nil {
		created, err := c.create(ctx, cfg, historyContents(history))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		if c.chat == nil {
			c.chat = created
		}
		chat = c.chat
		c.mu.Unlock()
	}

	resp, err := chat.SendMessage(ctx, messageParts(text, image)...)
	if err != nil {
		return "", fmt.Errorf("%w: gemini send message: %w", domain.ErrUpstreamFailure, err)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", fmt.Errorf("%w: gemini returned empty text", domain.ErrUpstreamFailure)
	}
	return reply, nil
}

func (c *Chat) create(ctx context.Context, cfg ports.ChatConfig, history []*genai.Content) (*genai.Chat, error) {
	client, err := c.client.get(ctx)
	if err != nil {
		return nil, err
	}

	genConfig := &genai.GenerateContentConfig{}
	if cfg.SystemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}
	if cfg.Temperature > 0 {
		temp := cfg.Temperature
		genConfig.Temperature = &temp
	}

	chat, err := client.Chats.Create(ctx, c.client.cfg.ChatModel, genConfig, history)
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini chat: %w", domain.ErrUpstreamFailure, err)
	}
	c.logger.Debug().Int("history", len(history)).Msg("chat created")
	return chat, nil
}

func messageParts(text string, image *domain.Image) []genai.Part {
	text = strings.TrimSpace(text)
	var parts []genai.Part
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, *genai.NewPartFromBytes(image.Data, image.MIMEType))
		if text == "" {
			text = defaultImagePrompt
		}
	}
	return append(parts, *genai.NewPartFromText(text))
}

// historyContents maps the visible log onto model turns. Error entries and
// the greeting before the first user turn are skipped.
func historyContents(history []domain.Message) []*genai.Content {
	var contents []*genai.Content
	for _, message := range history {
		if message.IsError {
			continue
		}
		if len(contents) == 0 && message.Role != domain.RoleUser {
			continue
		}

		role := genai.Role(genai.RoleUser)
		if message.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if message.Image != nil && len(message.Image.Data) > 0 {
			parts = append(parts, genai.NewPartFromBytes(message.Image.Data, message.Image.MIMEType))
		}
		if message.Text != "" {
			parts = append(parts, genai.NewPartFromText(message.Text))
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}
