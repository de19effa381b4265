package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"leo/internal/domain"
)

// Synthesizer implements ports.SpeechSynthesizer with a Gemini TTS model.
type Synthesizer struct {
	client *Client
	logger zerolog.Logger
}

func NewSynthesizer(client *Client, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		client: client,
		logger: logger.With().Str("component", "gemini_tts").Logger(),
	}
}

// Synthesize returns the first inline audio part, or nil when the model
// produced none.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*domain.AudioPayload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	client, err := s.client.get(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, s.client.cfg.SpeechModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.client.cfg.Voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini speech: %w", domain.ErrUpstreamFailure, err)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return &domain.AudioPayload{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
		}
	}

	s.logger.Debug().Msg("speech response carried no audio")
	return nil, nil
}
