package recognition

import (
	"strings"
	"sync"

	"leo/internal/domain"
)

// utterance collects one dictation. Deepgram revises the open segment with
// partials and locks it with a final, so only the newest partial since the
// last final is kept.
type utterance struct {
	mu       sync.Mutex
	segments []string
	pending  string
}

func (u *utterance) observe(event domain.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)

	u.mu.Lock()
	defer u.mu.Unlock()

	switch event.Kind {
	case domain.TranscriptKindFinal:
		// Empty finals only mark the end of speech.
		if text != "" {
			u.segments = append(u.segments, text)
			u.pending = ""
		}
	case domain.TranscriptKindPartial:
		u.pending = text
	}
}

// transcript joins the locked segments with whatever is still open. A
// stream that ends mid-segment still yields the words heard so far.
func (u *utterance) transcript() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	parts := u.segments
	if u.pending != "" {
		parts = append(parts[:len(parts):len(parts)], u.pending)
	}
	return strings.Join(parts, " ")
}
