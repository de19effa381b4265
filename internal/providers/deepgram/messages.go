package deepgram

import (
	"encoding/json"
	"strings"

	"leo/internal/domain"
)

const (
	messageResults      = "Results"
	messageUtteranceEnd = "UtteranceEnd"
	messageError        = "Error"
)

// message is the subset of Deepgram's listen responses Leo reads.
// Metadata and SpeechStarted are decoded and ignored.
type message struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Message     string  `json:"message"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     channel `json:"channel"`
	Results     struct {
		Channels []channel `json:"channels"`
	} `json:"results"`
}

type channel struct {
	Alternatives []alternative `json:"alternatives"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

func decodeMessage(payload []byte) (message, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return message{}, err
	}
	if strings.EqualFold(msg.Type, messageError) {
		msg.Type = messageError
	}
	return msg, nil
}

func (m message) transcript() string {
	if text := firstTranscript(m.Channel); text != "" {
		return text
	}
	if len(m.Results.Channels) > 0 {
		return firstTranscript(m.Results.Channels[0])
	}
	return ""
}

// transcriptEvent reports false for results that carry no words.
func (m message) transcriptEvent() (domain.TranscriptEvent, bool) {
	text := m.transcript()
	if text == "" {
		return domain.TranscriptEvent{}, false
	}

	kind := domain.TranscriptKindPartial
	if m.IsFinal || m.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: m.SpeechFinal}, true
}

func (m message) errorText() string {
	for _, text := range []string{m.Description, m.Message} {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return "deepgram returned an unknown error"
}

func firstTranscript(c channel) string {
	if len(c.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Alternatives[0].Transcript)
}
