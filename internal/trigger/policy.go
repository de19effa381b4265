// Package trigger decides when the deferred side-fact should run.
package trigger

import (
	"sync"
	"time"

	"leo/internal/timers"
)

const (
	DefaultCadence = 5
	DefaultDelay   = 5 * time.Second
)

// Policy counts completed exchanges and schedules fire every cadence-th
// exchange, delay after it completed. Only one deferred fire is pending.
type Policy struct {
	cadence int
	delay   time.Duration
	sched   timers.Scheduler
	fire    func(topic string)

	mu         sync.Mutex
	count      int
	generation uint64
	pending    timers.Timer
}

func NewPolicy(cadence int, delay time.Duration, sched timers.Scheduler, fire func(topic string)) *Policy {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	if sched == nil {
		sched = timers.System()
	}
	return &Policy{cadence: cadence, delay: delay, sched: sched, fire: fire}
}

// RecordExchange counts one completed exchange and schedules the
// side-fact when the new count is a multiple of the cadence.
func (p *Policy) RecordExchange(topic string) (count int, scheduled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	if p.count%p.cadence != 0 {
		return p.count, false
	}

	p.cancelLocked()
	stamp := p.generation
	p.pending = p.sched.AfterFunc(p.delay, func() { p.fireIfCurrent(stamp, topic) })
	return p.count, true
}

func (p *Policy) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Cancel drops a pending side-fact without touching the counter.
func (p *Policy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

// Reset zeroes the counter and drops a pending side-fact.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	p.count = 0
}

func (p *Policy) cancelLocked() {
	p.generation++
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}

func (p *Policy) fireIfCurrent(stamp uint64, topic string) {
	p.mu.Lock()
	if stamp != p.generation {
		p.mu.Unlock()
		return
	}
	p.pending = nil
	p.mu.Unlock()

	if p.fire != nil {
		p.fire(topic)
	}
}
