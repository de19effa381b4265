// Package mood tracks the companion's affect and its self-expiring transitions.
package mood

import (
	"sync"
	"time"

	"leo/internal/domain"
	"leo/internal/timers"
)

// Machine holds exactly one active mood. Every transition stamps a new
// generation; a revert only applies if its generation is still current.
// Transitions and their notifications are serialized by notifyMu, so the
// last notification always matches Current.
type Machine struct {
	sched    timers.Scheduler
	onChange func(domain.Mood)

	notifyMu sync.Mutex

	mu         sync.Mutex
	current    domain.Mood
	generation uint64
	revert     timers.Timer
}

func NewMachine(sched timers.Scheduler, onChange func(domain.Mood)) *Machine {
	if sched == nil {
		sched = timers.System()
	}
	return &Machine{sched: sched, onChange: onChange, current: domain.MoodNeutral}
}

func (m *Machine) Current() domain.Mood {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Enter switches mood and cancels any pending revert.
func (m *Machine) Enter(mood domain.Mood) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	m.transitionLocked(mood)
	m.mu.Unlock()
	m.notify(mood)
}

// EnterWithRevert switches mood and schedules a return to neutral after d.
func (m *Machine) EnterWithRevert(mood domain.Mood, d time.Duration) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	stamp := m.transitionLocked(mood)
	m.revert = m.sched.AfterFunc(d, func() { m.revertIfCurrent(stamp) })
	m.mu.Unlock()
	m.notify(mood)
}

// Close cancels the pending revert.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.stopRevertLocked()
}

func (m *Machine) transitionLocked(mood domain.Mood) uint64 {
	m.generation++
	m.stopRevertLocked()
	m.current = mood
	return m.generation
}

func (m *Machine) stopRevertLocked() {
	if m.revert != nil {
		m.revert.Stop()
		m.revert = nil
	}
}

func (m *Machine) revertIfCurrent(stamp uint64) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if stamp != m.generation {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.revert = nil
	m.current = domain.MoodNeutral
	m.mu.Unlock()
	m.notify(domain.MoodNeutral)
}

func (m *Machine) notify(mood domain.Mood) {
	if m.onChange != nil {
		m.onChange(mood)
	}
}
