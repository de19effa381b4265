package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFFMPEG = "ffmpeg"
	BackendMalgo  = "malgo"
)

// Config stores runtime configuration for Leo.
type Config struct {
	Gemini   GeminiConfig
	Session  SessionConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Speaker  SpeakerConfig
	Rules    RulesConfig
	Log      LogConfig
}

type GeminiConfig struct {
	APIKey           string
	APIBaseURL       string
	ChatModel        string
	SpeechModel      string
	FactModel        string
	Voice            string
	Temperature      float32
	SystemPromptFile string
}

type SessionConfig struct {
	Muted       bool
	FactCadence int
	HappyRevert time.Duration
	ResetRevert time.Duration
	FactDelay   time.Duration
}

type DeepgramConfig struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	SmartFormat    bool
	Endpointing    int
	UtteranceEndMs int
}

type AudioConfig struct {
	Backend         string
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
	StreamingGrace  time.Duration
	Continuous      bool
}

type SpeakerConfig struct {
	SampleRate int
	Buffer     time.Duration
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load resolves configuration from the environment, then a .env file in the
// working directory, then defaults.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an
// error; values already present in the environment take precedence.
func LoadFile(dotenvPath string) (Config, error) {
	dotenv, err := godotenv.Read(dotenvPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
		}
		dotenv = map[string]string{}
	}
	e := env{dotenv: dotenv}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Config{
		Gemini: GeminiConfig{
			APIKey:           firstNonEmpty(e.get("GEMINI_API_KEY"), e.get("API_KEY")),
			APIBaseURL:       e.get("GEMINI_API_BASE"),
			ChatModel:        e.envOrDefault("LEO_CHAT_MODEL", "gemini-2.5-flash"),
			SpeechModel:      e.envOrDefault("LEO_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
			FactModel:        e.envOrDefault("LEO_FACT_MODEL", "gemini-2.5-flash"),
			Voice:            e.envOrDefault("LEO_TTS_VOICE", "Puck"),
			Temperature:      e.envOrDefaultFloat("LEO_TEMPERATURE", 0.7),
			SystemPromptFile: e.get("LEO_SYSTEM_PROMPT_FILE"),
		},
		Session: SessionConfig{
			Muted:       e.envOrDefaultBool("LEO_MUTED", false),
			FactCadence: e.envOrDefaultInt("LEO_FACT_CADENCE", 5),
			HappyRevert: e.envOrDefaultMillis("LEO_HAPPY_REVERT_MS", 3000),
			ResetRevert: e.envOrDefaultMillis("LEO_RESET_REVERT_MS", 2000),
			FactDelay:   e.envOrDefaultMillis("LEO_FACT_DELAY_MS", 5000),
		},
		Deepgram: DeepgramConfig{
			APIKey:         e.get("DEEPGRAM_API_KEY"),
			APIBaseURL:     e.envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:          e.envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:       e.envOrDefault("DEEPGRAM_LANGUAGE", "en-US"),
			SmartFormat:    e.envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			Endpointing:    e.envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", 300),
			UtteranceEndMs: e.envOrDefaultInt("DEEPGRAM_UTTERANCE_END_MS", 1000),
		},
		Audio: AudioConfig{
			Backend:         strings.ToLower(e.envOrDefault("LEO_AUDIO_BACKEND", BackendFFMPEG)),
			RecorderCommand: e.envOrDefault("LEO_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     e.envOrDefault("LEO_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     e.envOrDefault("LEO_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      e.envOrDefaultInt("LEO_SAMPLE_RATE", 16000),
			Channels:        e.envOrDefaultInt("LEO_CHANNELS", 1),
			ChunkSize:       e.envOrDefaultInt("LEO_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace:  e.envOrDefaultMillis("LEO_STREAMING_GRACE_MS", 500),
			Continuous:      e.envOrDefaultBool("LEO_DICTATION_CONTINUOUS", false),
		},
		Speaker: SpeakerConfig{
			SampleRate: e.envOrDefaultInt("LEO_OUTPUT_SAMPLE_RATE", 24000),
			Buffer:     e.envOrDefaultMillis("LEO_OUTPUT_BUFFER_MS", 0),
		},
		Rules: RulesConfig{
			Path:           e.envOrDefault("LEO_RULES_FILE", filepath.Join(home, ".config", "leo", "dictation.rules")),
			IterationLimit: e.envOrDefaultInt("LEO_RULE_ITERATION_LIMIT", 30),
		},
		Log: LogConfig{
			Level:  strings.ToLower(e.envOrDefault("LEO_LOG_LEVEL", "info")),
			Format: strings.ToLower(e.envOrDefault("LEO_LOG_FORMAT", "console")),
		},
	}

	if cfg.Gemini.Temperature < 0 || cfg.Gemini.Temperature > 2 {
		cfg.Gemini.Temperature = 0.7
	}
	if cfg.Session.FactCadence <= 0 {
		cfg.Session.FactCadence = 5
	}
	if cfg.Audio.Backend != BackendFFMPEG && cfg.Audio.Backend != BackendMalgo {
		cfg.Audio.Backend = BackendFFMPEG
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Speaker.SampleRate <= 0 {
		cfg.Speaker.SampleRate = 24000
	}
	if cfg.Deepgram.Endpointing < 0 {
		cfg.Deepgram.Endpointing = 0
	}
	if cfg.Deepgram.UtteranceEndMs < 0 {
		cfg.Deepgram.UtteranceEndMs = 0
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}

	return cfg, nil
}

// env resolves keys from the process environment first, then the dotenv map.
type env struct {
	dotenv map[string]string
}

func (e env) get(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(e.dotenv[key])
}

func (e env) envOrDefault(key string, fallback string) string {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	return value
}

func (e env) envOrDefaultInt(key string, fallback int) int {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e env) envOrDefaultFloat(key string, fallback float32) float32 {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return fallback
	}
	return float32(parsed)
}

func (e env) envOrDefaultBool(key string, fallback bool) bool {
	switch strings.ToLower(e.get(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// envOrDefaultMillis reads a non-negative millisecond count.
func (e env) envOrDefaultMillis(key string, fallback int) time.Duration {
	ms := e.envOrDefaultInt(key, fallback)
	if ms < 0 {
		ms = fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
