package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"leo/internal/capture"
	"leo/internal/chatlog"
	"leo/internal/domain"
	"leo/internal/mood"
	"leo/internal/persona"
	"leo/internal/playback"
	"leo/internal/ports"
	"leo/internal/timers"
	"leo/internal/trigger"
)

var (
	ErrRequestInFlight = errors.New("a request is already in flight")
	ErrEmptyMessage    = errors.New("message has no text or image")
	ErrStaleResponse   = errors.New("response arrived after the session was reset")
	ErrClosed          = errors.New("session is closed")
)

// Config holds the session timings and fixed strings.
type Config struct {
	Cadence       int
	HappyRevert   time.Duration
	ResetRevert   time.Duration
	SideFactDelay time.Duration
	Muted         bool

	SystemPrompt string
	Temperature  float32

	WelcomeMessage string
	ResetMessage   string
	ErrorMessage   string
	FallbackFact   string

	Recognition ports.RecognitionConfig
}

func (c Config) withDefaults() Config {
	if c.Cadence <= 0 {
		c.Cadence = trigger.DefaultCadence
	}
	if c.HappyRevert <= 0 {
		c.HappyRevert = 3 * time.Second
	}
	if c.ResetRevert <= 0 {
		c.ResetRevert = 2 * time.Second
	}
	if c.SideFactDelay <= 0 {
		c.SideFactDelay = trigger.DefaultDelay
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = persona.SystemInstruction
	}
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = persona.WelcomeMessage
	}
	if c.ResetMessage == "" {
		c.ResetMessage = persona.ResetMessage
	}
	if c.ErrorMessage == "" {
		c.ErrorMessage = persona.ErrorMessage
	}
	if c.FallbackFact == "" {
		c.FallbackFact = persona.FallbackFact
	}
	return c
}

// Collaborators are the outside capabilities the session drives.
type Collaborators struct {
	Chat       ports.TextGenerator
	Speech     ports.SpeechSynthesizer
	Facts      ports.FactGenerator
	Recognizer ports.Recognizer
	Rules      ports.RulesEngine
	Speaker    ports.AudioSink
	Events     ports.EventSink

	// Scheduler and Now default to the wall clock.
	Scheduler timers.Scheduler
	Now       func() time.Time
}

// Orchestrator coordinates one chat session. It owns the message log,
// audio playback, dictation, mood and side-fact trigger, and admits one
// text-generation request at a time.
type Orchestrator struct {
	chat   ports.TextGenerator
	speech ports.SpeechSynthesizer
	facts  ports.FactGenerator
	events ports.EventSink
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger

	log     *chatlog.Log
	audio   *playback.Session
	capture *capture.Session
	mood    *mood.Machine
	trigger *trigger.Policy

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	// transitionMu pairs a state commit with its mood and trigger follow-up.
	// publishMu keeps session events in snapshot order.
	transitionMu sync.Mutex
	publishMu    sync.Mutex

	mu         sync.Mutex
	inFlight   bool
	lastError  string
	sideFact   string
	muted      bool
	closed     bool
	generation uint64
	audioEpoch uint64
	factEpoch  uint64
}

func NewOrchestrator(deps Collaborators, cfg Config, logger zerolog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if deps.Scheduler == nil {
		deps.Scheduler = timers.System()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		chat:   deps.Chat,
		speech: deps.Speech,
		facts:  deps.Facts,
		events: deps.Events,
		cfg:    cfg,
		now:    deps.Now,
		logger: logger.With().Str("component", "orchestrator").Logger(),
		ctx:    ctx,
		cancel: cancel,
		muted:  cfg.Muted,
	}

	o.log = chatlog.New(chatlog.NewMessage(domain.RoleAssistant, cfg.WelcomeMessage, nil, o.now()))
	o.audio = playback.NewSession(deps.Speaker, logger)
	o.capture = capture.NewSession(deps.Recognizer, deps.Rules, deps.Events, cfg.Recognition, logger)
	o.mood = mood.NewMachine(deps.Scheduler, deps.Events.MoodChanged)
	o.trigger = trigger.NewPolicy(cfg.Cadence, cfg.SideFactDelay, deps.Scheduler, func(topic string) {
		if err := o.RequestSideFact(o.ctx, topic); err != nil {
			o.logger.Debug().Err(err).Msg("scheduled side-fact skipped")
		}
	})
	return o
}

// Start opens the model conversation and publishes the welcome state. A
// failure here is logged; a missing credential surfaces on each send.
func (o *Orchestrator) Start(ctx context.Context) {
	if err := o.chat.Initialize(ctx, o.chatConfig()); err != nil {
		o.logger.Warn().Err(err).Msg("chat initialization failed")
	}
	o.publish()
}

// SendUserMessage appends the user's turn and waits for the reply. Calls
// made while a request is in flight, or with nothing to send, return an
// error without touching the session.
func (o *Orchestrator) SendUserMessage(ctx context.Context, text string, image *domain.Image) error {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return ErrEmptyMessage
	}

	history, generation, err := o.beginTurn(text, image)
	if err != nil {
		return err
	}
	reply, err := o.chat.Send(ctx, history, text, image)
	return o.finishTurn(generation, text, reply, err)
}

// beginTurn admits a send. The commit and its mood change happen under
// transitionMu so a reset cannot land between them.
func (o *Orchestrator) beginTurn(text string, image *domain.Image) ([]domain.Message, uint64, error) {
	o.transitionMu.Lock()
	defer o.transitionMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, 0, ErrClosed
	}
	if o.inFlight {
		o.mu.Unlock()
		return nil, 0, ErrRequestInFlight
	}
	history := o.log.Snapshot()
	o.log.Append(chatlog.NewMessage(domain.RoleUser, text, image, o.now()))
	o.inFlight = true
	o.lastError = ""
	o.sideFact = ""
	o.audioEpoch++
	o.factEpoch++
	generation := o.generation
	o.mu.Unlock()

	o.mood.Enter(domain.MoodThinking)
	o.audio.Stop()
	o.trigger.Cancel()
	o.capture.ClearInput()
	o.publish()
	return history, generation, nil
}

// finishTurn applies the reply unless a reset made it stale.
func (o *Orchestrator) finishTurn(generation uint64, text, reply string, sendErr error) error {
	o.transitionMu.Lock()
	defer o.transitionMu.Unlock()

	o.mu.Lock()
	if generation != o.generation {
		o.mu.Unlock()
		o.logger.Info().Msg("discarding reply from before the reset")
		return ErrStaleResponse
	}
	o.inFlight = false
	if sendErr != nil {
		o.lastError = o.cfg.ErrorMessage
		o.mu.Unlock()

		o.logger.Warn().Err(sendErr).Bool("missing_credential", errors.Is(sendErr, domain.ErrMissingCredential)).Msg("chat request failed")
		o.mood.Enter(domain.MoodWaiting)
		o.publish()
		o.events.SessionError(domain.ErrorCodeChat, sendErr.Error())
		return sendErr
	}
	o.log.Append(chatlog.NewMessage(domain.RoleAssistant, reply, nil, o.now()))
	epoch := o.audioEpoch
	muted := o.muted
	o.mu.Unlock()

	o.mood.EnterWithRevert(domain.MoodHappy, o.cfg.HappyRevert)
	if count, scheduled := o.trigger.RecordExchange(text); scheduled {
		o.logger.Debug().Int("exchanges", count).Msg("side-fact scheduled")
	}
	o.publish()

	if !muted {
		o.spawn("reply-speech", func(ctx context.Context) {
			o.speak(ctx, reply, epoch)
		})
	}
	return nil
}

// ResetSession starts a new topic. Confirmation is the caller's job.
func (o *Orchestrator) ResetSession(ctx context.Context) error {
	if err := o.resetState(); err != nil {
		return err
	}
	if err := o.chat.Initialize(ctx, o.chatConfig()); err != nil {
		o.logger.Warn().Err(err).Msg("chat re-initialization failed")
	}
	return nil
}

func (o *Orchestrator) resetState() error {
	o.transitionMu.Lock()
	defer o.transitionMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.generation++
	o.audioEpoch++
	o.factEpoch++
	o.inFlight = false
	o.lastError = ""
	o.sideFact = ""
	o.log.Reset(chatlog.NewMessage(domain.RoleAssistant, o.cfg.ResetMessage, nil, o.now()))
	o.mu.Unlock()

	o.audio.Stop()
	o.trigger.Reset()
	o.mood.EnterWithRevert(domain.MoodHappy, o.cfg.ResetRevert)
	o.publish()
	return nil
}

// RequestSideFact fetches a fun fact in the background and, unless muted,
// reads it out. It never touches the log or the exchange counter.
func (o *Orchestrator) RequestSideFact(_ context.Context, topic string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.inFlight {
		o.mu.Unlock()
		return ErrRequestInFlight
	}
	o.factEpoch++
	factEpoch := o.factEpoch
	o.mu.Unlock()

	o.spawn("side-fact", func(ctx context.Context) {
		fact := strings.TrimSpace(o.facts.Generate(ctx, topic))
		if fact == "" {
			fact = o.cfg.FallbackFact
		}

		o.mu.Lock()
		if factEpoch != o.factEpoch {
			o.mu.Unlock()
			o.logger.Debug().Msg("dropping superseded side-fact")
			return
		}
		o.sideFact = fact
		o.audioEpoch++
		epoch := o.audioEpoch
		muted := o.muted
		o.mu.Unlock()

		o.publishFact(fact, factEpoch)
		if !muted {
			o.speak(ctx, fact, epoch)
		}
	})
	return nil
}

// DismissSideFact hides the current fact and drops one still being fetched.
func (o *Orchestrator) DismissSideFact() {
	o.mu.Lock()
	o.factEpoch++
	o.sideFact = ""
	o.mu.Unlock()
	o.publish()
}

// SetMuted toggles speech. Muting silences the current stream.
func (o *Orchestrator) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	if muted {
		o.audioEpoch++
	}
	o.mu.Unlock()

	if muted {
		o.audio.Stop()
	}
	o.publish()
}

// StartDictation is refused while a reply is pending.
func (o *Orchestrator) StartDictation() error {
	o.mu.Lock()
	busy := o.inFlight
	o.mu.Unlock()
	if busy {
		return ErrRequestInFlight
	}
	return o.capture.Start(o.ctx)
}

func (o *Orchestrator) StopDictation() error {
	return o.capture.Stop()
}

func (o *Orchestrator) AbortDictation() error {
	return o.capture.Abort()
}

func (o *Orchestrator) ToggleDictation() error {
	if o.capture.Status().State == domain.CaptureStateIdle {
		return o.StartDictation()
	}
	return o.capture.Toggle(o.ctx)
}

func (o *Orchestrator) SetInput(text string) {
	o.capture.SetInput(text)
}

func (o *Orchestrator) Input() string {
	return o.capture.Input()
}

func (o *Orchestrator) IsPlaying() bool {
	return o.audio.IsPlaying()
}

func (o *Orchestrator) Snapshot() domain.SessionSnapshot {
	o.mu.Lock()
	snapshot := domain.SessionSnapshot{
		Messages:  o.log.Snapshot(),
		InFlight:  o.inFlight,
		LastError: o.lastError,
		SideFact:  o.sideFact,
		Muted:     o.muted,
	}
	o.mu.Unlock()

	snapshot.Mood = o.mood.Current()
	snapshot.Exchanges = o.trigger.Count()
	snapshot.Capture = o.capture.Status()
	return snapshot
}

// Wait blocks until background speech and side-fact tasks finish.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// Close cancels background work and releases timers, audio and dictation.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.audioEpoch++
	o.factEpoch++
	o.mu.Unlock()

	o.cancel()
	o.trigger.Cancel()
	o.mood.Close()
	o.capture.Close()
	o.audio.Stop()
	o.tasks.Wait()
}

func (o *Orchestrator) chatConfig() ports.ChatConfig {
	return ports.ChatConfig{SystemPrompt: o.cfg.SystemPrompt, Temperature: o.cfg.Temperature}
}

// speak synthesizes text and plays it only if no newer speech, send, reset
// or mute happened since epoch was taken.
func (o *Orchestrator) speak(ctx context.Context, text string, epoch uint64) {
	payload, err := o.speech.Synthesize(ctx, text)
	if err != nil {
		o.logger.Warn().Err(err).Msg("speech synthesis failed")
		return
	}
	if payload == nil {
		return
	}

	o.audio.PlayIf(*payload, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return epoch == o.audioEpoch && !o.muted && !o.closed
	})
}

// spawn runs task in the background, bound to the session lifetime. Panics
// and errors stay inside the task.
func (o *Orchestrator) spawn(name string, task func(ctx context.Context)) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.tasks.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error().Interface("panic", r).Str("task", name).Msg("background task panicked")
			}
		}()
		task(o.ctx)
	}()
}

func (o *Orchestrator) publish() {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()
	o.events.SessionChanged(o.Snapshot())
}

// publishFact announces a side-fact unless it was dismissed or replaced
// before its turn to publish.
func (o *Orchestrator) publishFact(fact string, factEpoch uint64) {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	o.mu.Lock()
	current := factEpoch == o.factEpoch
	o.mu.Unlock()
	if current {
		o.events.SideFact(fact)
	}
	o.events.SessionChanged(o.Snapshot())
}
