package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// FactGenerator implements ports.FactGenerator. It never returns an empty
// string: every failure yields the fallback.
type FactGenerator struct {
	client   *Client
	fallback string
	logger   zerolog.Logger
}

func NewFactGenerator(client *Client, fallback string, logger zerolog.Logger) *FactGenerator {
	return &FactGenerator{
		client:   client,
		fallback: fallback,
		logger:   logger.With().Str("component", "gemini_facts").Logger(),
	}
}

func (f *FactGenerator) Generate(ctx context.Context, topic string) string {
	client, err := f.client.get(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("fact generation unavailable")
		return f.fallback
	}

	temp := float32(1.0)
	resp, err := client.Models.GenerateContent(ctx, f.client.cfg.FactModel, genai.Text(factPrompt(topic)), &genai.GenerateContentConfig{
		Temperature: &temp,
	})
	if err != nil {
		f.logger.Warn().Err(err).Msg("fact generation failed")
		return f.fallback
	}

	fact := strings.TrimSpace(resp.Text())
	if fact == "" {
		return f.fallback
	}
	return fact
}

func factPrompt(topic string) string {
	prompt := "Share one surprising, true fun fact for a curious 10-year-old in one or two short sentences. Start with \"Did you know?\"."
	if topic = strings.TrimSpace(topic); topic != "" {
		prompt += fmt.Sprintf(" Make it related to what they just asked about: %q.", topic)
	}
	return prompt
}
