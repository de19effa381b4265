// Package chatlog holds the ordered, append-only record of a conversation.
package chatlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"leo/internal/domain"
)

// Log is an append-only message sequence. Reset is the only way to drop
// entries and it always leaves exactly one seed message behind.
type Log struct {
	mu       sync.RWMutex
	messages []domain.Message
}

func New(seed ...domain.Message) *Log {
	l := &Log{}
	l.messages = append(l.messages, seed...)
	return l
}

// NewMessage builds a message with a fresh time-ordered ID.
func NewMessage(role domain.Role, text string, image *domain.Image, now time.Time) domain.Message {
	return domain.Message{
		ID:        newID(),
		Role:      role,
		Text:      text,
		Image:     image,
		Timestamp: now,
	}
}

func (l *Log) Append(msg domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// Snapshot returns a copy of the sequence in append order.
func (l *Log) Snapshot() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Reset discards every message and reseeds the log.
func (l *Log) Reset(seed domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = []domain.Message{seed}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
