package bootstrap

import (
	"github.com/rs/zerolog"

	"leo/internal/audio"
	"leo/internal/config"
	"leo/internal/domain"
	"leo/internal/persona"
	"leo/internal/ports"
	"leo/internal/providers/deepgram"
	"leo/internal/providers/gemini"
	"leo/internal/recognition"
	"leo/internal/rules"
	"leo/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Orchestrator *usecase.Orchestrator
	Config       config.Config
}

// Build wires all backend dependencies for the current runtime. Missing API
// keys are not a build error; they surface on the first request instead.
func Build(cfg config.Config, eventSink ports.EventSink, logger zerolog.Logger) (Services, error) {
	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	systemPrompt, err := persona.LoadSystemInstruction(cfg.Gemini.SystemPromptFile)
	if err != nil {
		return Services{}, err
	}

	client := gemini.NewClient(gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		BaseURL:     cfg.Gemini.APIBaseURL,
		ChatModel:   cfg.Gemini.ChatModel,
		SpeechModel: cfg.Gemini.SpeechModel,
		FactModel:   cfg.Gemini.FactModel,
		Voice:       cfg.Gemini.Voice,
	})

	recognizer := recognition.NewEngine(
		newCapture(cfg.Audio),
		deepgram.NewProvider(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			Endpointing:    cfg.Deepgram.Endpointing,
			UtteranceEndMs: cfg.Deepgram.UtteranceEndMs,
		}, logger),
		recognition.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:      cfg.Audio.ChunkSize,
			StreamingGrace: cfg.Audio.StreamingGrace,
		},
		logger,
	)

	orchestrator := usecase.NewOrchestrator(
		usecase.Collaborators{
			Chat:       gemini.NewChat(client, logger),
			Speech:     gemini.NewSynthesizer(client, logger),
			Facts:      gemini.NewFactGenerator(client, persona.FallbackFact, logger),
			Recognizer: recognizer,
			Rules:      rulesEngine,
			Speaker:    audio.NewOtoSink(domain.AudioFormat{SampleRate: cfg.Speaker.SampleRate, Channels: 1}, cfg.Speaker.Buffer),
			Events:     eventSink,
		},
		usecase.Config{
			Cadence:       cfg.Session.FactCadence,
			HappyRevert:   cfg.Session.HappyRevert,
			ResetRevert:   cfg.Session.ResetRevert,
			SideFactDelay: cfg.Session.FactDelay,
			Muted:         cfg.Session.Muted,
			SystemPrompt:  systemPrompt,
			Temperature:   cfg.Gemini.Temperature,
			Recognition: ports.RecognitionConfig{
				Language:   cfg.Deepgram.Language,
				Continuous: cfg.Audio.Continuous,
			},
		},
		logger,
	)

	logger.Info().
		Str("chat_model", cfg.Gemini.ChatModel).
		Str("audio_backend", cfg.Audio.Backend).
		Bool("gemini_key", cfg.Gemini.APIKey != "").
		Bool("deepgram_key", cfg.Deepgram.APIKey != "").
		Msg("services ready")

	return Services{Orchestrator: orchestrator, Config: cfg}, nil
}

func newCapture(cfg config.AudioConfig) ports.AudioCapture {
	if cfg.Backend == config.BackendMalgo {
		return audio.NewMalgoCapture()
	}
	return audio.NewFFMPEGCapture(cfg.RecorderCommand)
}
