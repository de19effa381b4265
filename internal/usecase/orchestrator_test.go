package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"leo/internal/domain"
	"leo/internal/persona"
	"leo/internal/ports"
	"leo/internal/timers"
	"leo/internal/trigger"
)

func TestSendUserMessageAppendsReplyAndSpeaks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.o.SetInput("why is the sky blue")

	if err := h.o.SendUserMessage(context.Background(), "why is the sky blue", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	h.o.Wait()

	snapshot := h.o.Snapshot()
	if len(snapshot.Messages) != 3 {
		t.Fatalf("expected welcome, user and reply, got %+v", snapshot.Messages)
	}
	if snapshot.Messages[0].Text != persona.WelcomeMessage {
		t.Fatalf("expected welcome seed, got %q", snapshot.Messages[0].Text)
	}
	if snapshot.Messages[1].Role != domain.RoleUser || snapshot.Messages[2].Text != defaultReply {
		t.Fatalf("unexpected messages %+v", snapshot.Messages)
	}
	if snapshot.InFlight || snapshot.LastError != "" || snapshot.Exchanges != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if h.o.Input() != "" {
		t.Fatalf("expected input to be cleared on send, got %q", h.o.Input())
	}

	if history := h.chat.history(0); len(history) != 1 || history[0].Text != persona.WelcomeMessage {
		t.Fatalf("expected prior context only, got %+v", history)
	}
	if got := h.speech.spoken(); len(got) != 1 || got[0] != defaultReply {
		t.Fatalf("expected reply to be synthesized, got %v", got)
	}
	if h.sink.openCount() != 1 {
		t.Fatalf("expected one playback, got %d", h.sink.openCount())
	}
}

func TestSendUserMessageMoodRevertsAfterHappyDelay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if err := h.o.SendUserMessage(context.Background(), "hello", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := h.events.moodHistory(); len(got) != 2 || got[0] != domain.MoodThinking || got[1] != domain.MoodHappy {
		t.Fatalf("expected thinking then happy, got %v", got)
	}

	h.clock.Advance(2 * time.Second)
	if err := h.o.SendUserMessage(context.Background(), "again", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	h.clock.Advance(1500 * time.Millisecond)
	if mood := h.o.Snapshot().Mood; mood != domain.MoodHappy {
		t.Fatalf("stale revert must not clobber newer mood, got %s", mood)
	}
	h.clock.Advance(1500 * time.Millisecond)
	if mood := h.o.Snapshot().Mood; mood != domain.MoodNeutral {
		t.Fatalf("expected neutral after revert, got %s", mood)
	}
}

func TestSendUserMessageRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if err := h.o.SendUserMessage(context.Background(), "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if h.chat.sendCount() != 0 || len(h.o.Snapshot().Messages) != 1 {
		t.Fatalf("empty send must not touch the session")
	}

	image := &domain.Image{MIMEType: "image/png", Data: []byte("png")}
	if err := h.o.SendUserMessage(context.Background(), "", image); err != nil {
		t.Fatalf("image-only send failed: %v", err)
	}
	if got := h.o.Snapshot().Messages[1]; got.Image == nil {
		t.Fatalf("expected image on user message, got %+v", got)
	}
}

func TestSendUserMessageRejectedWhileInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	release := h.chat.hold()

	result := make(chan error, 1)
	go func() { result <- h.o.SendUserMessage(context.Background(), "first", nil) }()
	<-h.chat.entered

	if !h.o.Snapshot().InFlight {
		t.Fatalf("expected request in flight")
	}
	if err := h.o.SendUserMessage(context.Background(), "second", nil); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}
	if err := h.o.RequestSideFact(context.Background(), ""); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected side-fact to be refused, got %v", err)
	}
	if err := h.o.StartDictation(); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("expected dictation to be refused, got %v", err)
	}

	close(release)
	if err := <-result; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if got := len(h.o.Snapshot().Messages); got != 3 {
		t.Fatalf("expected only the first exchange, got %d messages", got)
	}
	if h.chat.sendCount() != 1 {
		t.Fatalf("expected one upstream request, got %d", h.chat.sendCount())
	}
}

func TestSendUserMessageFailureSetsErrorAndWaiting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.chat.fail(fmt.Errorf("%w: 500", domain.ErrUpstreamFailure))

	err := h.o.SendUserMessage(context.Background(), "hello", nil)
	if !errors.Is(err, domain.ErrUpstreamFailure) {
		t.Fatalf("expected upstream failure, got %v", err)
	}

	snapshot := h.o.Snapshot()
	if snapshot.LastError != persona.ErrorMessage || snapshot.InFlight {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if len(snapshot.Messages) != 2 || snapshot.Exchanges != 0 {
		t.Fatalf("failure must not append a reply or count an exchange: %+v", snapshot)
	}

	h.clock.Advance(10 * time.Second)
	if mood := h.o.Snapshot().Mood; mood != domain.MoodWaiting {
		t.Fatalf("waiting must persist, got %s", mood)
	}
	if codes := h.events.errorCodes(); len(codes) != 1 || codes[0] != domain.ErrorCodeChat {
		t.Fatalf("expected one chat error event, got %v", codes)
	}
	h.o.Wait()
	if len(h.speech.spoken()) != 0 {
		t.Fatalf("failed turn must not be spoken")
	}

	h.chat.fail(nil)
	if err := h.o.SendUserMessage(context.Background(), "retry", nil); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if h.o.Snapshot().LastError != "" {
		t.Fatalf("expected accepted send to clear the error")
	}
}

func TestSendUserMessageMissingCredential(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.chat.fail(fmt.Errorf("%w: GEMINI_API_KEY is not set", domain.ErrMissingCredential))

	if err := h.o.SendUserMessage(context.Background(), "hi", nil); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
	if h.o.Snapshot().LastError != persona.ErrorMessage {
		t.Fatalf("expected apology to be recorded")
	}
}

func TestSpeechFailureDoesNotFailTheTurn(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.speech.fail(errors.New("tts down"))

	if err := h.o.SendUserMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	h.o.Wait()

	if h.sink.openCount() != 0 {
		t.Fatalf("expected no playback")
	}
	if snapshot := h.o.Snapshot(); snapshot.LastError != "" || len(snapshot.Messages) != 3 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestMutedSessionDoesNotSynthesize(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	if err := h.o.SendUserMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	h.o.Wait()

	if len(h.speech.spoken()) != 0 || h.sink.openCount() != 0 {
		t.Fatalf("muted session must stay silent")
	}
	if !h.o.Snapshot().Muted {
		t.Fatalf("expected muted snapshot")
	}
}

func TestMutingDropsPendingSpeech(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	release := h.speech.hold()

	if err := h.o.SendUserMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	<-h.speech.entered
	h.o.SetMuted(true)
	close(release)
	h.o.Wait()

	if h.sink.openCount() != 0 {
		t.Fatalf("speech synthesized before muting must not play")
	}
}

func TestResetDropsPendingSpeech(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	release := h.speech.hold()

	if err := h.o.SendUserMessage(context.Background(), "hi", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	<-h.speech.entered
	if err := h.o.ResetSession(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	close(release)
	h.o.Wait()

	if h.sink.openCount() != 0 {
		t.Fatalf("speech from before the reset must not play")
	}
}

func TestSideFactScheduledOnFifthExchange(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	for i := 1; i <= 4; i++ {
		if err := h.o.SendUserMessage(context.Background(), fmt.Sprintf("question %d", i), nil); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	h.clock.Advance(10 * time.Second)
	h.o.Wait()
	if len(h.facts.topicsSeen()) != 0 {
		t.Fatalf("no side-fact before the fifth exchange")
	}

	if err := h.o.SendUserMessage(context.Background(), "volcanoes", nil); err != nil {
		t.Fatalf("fifth send failed: %v", err)
	}
	h.clock.Advance(4 * time.Second)
	h.o.Wait()
	if len(h.facts.topicsSeen()) != 0 {
		t.Fatalf("side-fact fired before its delay")
	}

	h.clock.Advance(time.Second)
	h.o.Wait()
	if topics := h.facts.topicsSeen(); len(topics) != 1 || topics[0] != "volcanoes" {
		t.Fatalf("expected one side-fact about the fifth message, got %v", topics)
	}

	snapshot := h.o.Snapshot()
	if snapshot.SideFact != defaultFact || snapshot.Exchanges != 5 || len(snapshot.Messages) != 11 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if got := h.events.factHistory(); len(got) != 1 || got[0] != defaultFact {
		t.Fatalf("expected one fact event, got %v", got)
	}
}

func TestSendCancelsPendingSideFact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	for i := 1; i <= 5; i++ {
		if err := h.o.SendUserMessage(context.Background(), fmt.Sprintf("q%d", i), nil); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	if err := h.o.SendUserMessage(context.Background(), "q6", nil); err != nil {
		t.Fatalf("sixth send failed: %v", err)
	}

	h.clock.Advance(10 * time.Second)
	h.o.Wait()
	if len(h.facts.topicsSeen()) != 0 {
		t.Fatalf("newer send must cancel the pending side-fact")
	}
}

func TestResetSessionReseedsAndCancelsTimers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	for i := 1; i <= 5; i++ {
		if err := h.o.SendUserMessage(context.Background(), fmt.Sprintf("q%d", i), nil); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	if err := h.o.ResetSession(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	snapshot := h.o.Snapshot()
	if len(snapshot.Messages) != 1 || snapshot.Messages[0].Text != persona.ResetMessage {
		t.Fatalf("expected reseeded log, got %+v", snapshot.Messages)
	}
	if snapshot.Exchanges != 0 || snapshot.Mood != domain.MoodHappy || snapshot.InFlight {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if h.chat.initCount() != 2 {
		t.Fatalf("expected conversation to be re-initialized, got %d inits", h.chat.initCount())
	}

	h.clock.Advance(2 * time.Second)
	if mood := h.o.Snapshot().Mood; mood != domain.MoodNeutral {
		t.Fatalf("expected neutral after reset revert, got %s", mood)
	}

	h.clock.Advance(10 * time.Second)
	h.o.Wait()
	if len(h.facts.topicsSeen()) != 0 {
		t.Fatalf("reset must drop the pending side-fact")
	}
}

func TestResetDiscardsStaleReply(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	release := h.chat.hold()

	result := make(chan error, 1)
	go func() { result <- h.o.SendUserMessage(context.Background(), "slow question", nil) }()
	<-h.chat.entered

	if err := h.o.ResetSession(context.Background()); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	close(release)

	if err := <-result; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale response, got %v", err)
	}
	h.o.Wait()

	snapshot := h.o.Snapshot()
	if len(snapshot.Messages) != 1 || snapshot.Messages[0].Text != persona.ResetMessage {
		t.Fatalf("stale reply must not reach the reset log: %+v", snapshot.Messages)
	}
	if len(h.speech.spoken()) != 0 {
		t.Fatalf("stale reply must not be spoken")
	}
}

func TestRequestSideFactSpeaksWithoutTouchingLog(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	if err := h.o.RequestSideFact(context.Background(), "owls"); err != nil {
		t.Fatalf("side-fact failed: %v", err)
	}
	h.o.Wait()

	snapshot := h.o.Snapshot()
	if len(snapshot.Messages) != 1 || snapshot.Exchanges != 0 {
		t.Fatalf("side-fact must not touch log or counter: %+v", snapshot)
	}
	if snapshot.SideFact != defaultFact {
		t.Fatalf("expected side-fact in snapshot, got %q", snapshot.SideFact)
	}
	if got := h.speech.spoken(); len(got) != 1 || got[0] != defaultFact {
		t.Fatalf("expected fact to be spoken, got %v", got)
	}
	if h.sink.openCount() != 1 {
		t.Fatalf("expected one playback, got %d", h.sink.openCount())
	}

	h.o.DismissSideFact()
	if h.o.Snapshot().SideFact != "" {
		t.Fatalf("expected dismissed side-fact")
	}
}

func TestRequestSideFactFallsBackOnEmptyFact(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	h.facts.set("  ")

	if err := h.o.RequestSideFact(context.Background(), ""); err != nil {
		t.Fatalf("side-fact failed: %v", err)
	}
	h.o.Wait()

	if got := h.o.Snapshot().SideFact; got != persona.FallbackFact {
		t.Fatalf("expected fallback fact, got %q", got)
	}
}

func TestDismissDropsSideFactInProgress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	release := h.facts.hold()

	if err := h.o.RequestSideFact(context.Background(), ""); err != nil {
		t.Fatalf("side-fact failed: %v", err)
	}
	<-h.facts.entered
	h.o.DismissSideFact()
	close(release)
	h.o.Wait()

	if len(h.events.factHistory()) != 0 || h.o.Snapshot().SideFact != "" {
		t.Fatalf("dismissed side-fact must be dropped")
	}
	if len(h.speech.spoken()) != 0 {
		t.Fatalf("dismissed side-fact must not be spoken")
	}
}

func TestStartDictationReportsUnsupported(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.recognizer.availableErr = domain.NewCaptureError(domain.CaptureUnsupported, errors.New("no backend"))

	err := h.o.StartDictation()
	var captureErr *domain.CaptureError
	if !errors.As(err, &captureErr) || captureErr.Kind != domain.CaptureUnsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if status := h.o.Snapshot().Capture; status.State != domain.CaptureStateIdle || status.Error == "" {
		t.Fatalf("expected visible capture notice, got %+v", status)
	}
	if codes := h.events.errorCodes(); len(codes) != 1 || codes[0] != domain.ErrorCodeCapture {
		t.Fatalf("expected capture error event, got %v", codes)
	}
}

func TestLastSessionEventMatchesSnapshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	reached := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.events.onSnapshot(func(snapshot domain.SessionSnapshot) {
		if snapshot.SideFact == defaultFact {
			once.Do(func() {
				close(reached)
				<-release
			})
		}
	})

	if err := h.o.RequestSideFact(context.Background(), "space"); err != nil {
		t.Fatalf("side-fact request failed: %v", err)
	}
	<-reached

	dismissed := make(chan struct{})
	go func() {
		h.o.DismissSideFact()
		close(dismissed)
	}()
	select {
	case <-dismissed:
		t.Fatalf("dismiss must publish after the pending fact snapshot")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-dismissed
	h.o.Wait()

	if last := h.events.lastSnapshot(); last.SideFact != "" || last.SideFact != h.o.Snapshot().SideFact {
		t.Fatalf("last event carries side-fact %q after dismissal", last.SideFact)
	}
}

func TestResetDuringAdmissionKeepsResetMood(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Muted: true})
	release := h.chat.hold()

	resetDone := make(chan error, 1)
	var once sync.Once
	h.events.onMood(func(mood domain.Mood) {
		if mood == domain.MoodThinking {
			once.Do(func() {
				go func() { resetDone <- h.o.ResetSession(context.Background()) }()
			})
		}
	})

	result := make(chan error, 1)
	go func() { result <- h.o.SendUserMessage(context.Background(), "tell me about bees", nil) }()
	<-h.chat.entered
	if err := <-resetDone; err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	close(release)
	if err := <-result; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale reply, got %v", err)
	}

	snapshot := h.o.Snapshot()
	if snapshot.Mood != domain.MoodHappy || snapshot.InFlight {
		t.Fatalf("expected reset mood without a request in flight, got %+v", snapshot)
	}
	moods := h.events.moodHistory()
	if moods[len(moods)-1] != domain.MoodHappy {
		t.Fatalf("expected reset to have the last mood, got %v", moods)
	}
}

func TestConcurrentSendAndResetNeverStrandThinking(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		h := newHarness(t, Config{Muted: true})

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_ = h.o.SendUserMessage(context.Background(), "why do cats purr", nil)
		}()
		go func() {
			defer wg.Done()
			<-start
			_ = h.o.ResetSession(context.Background())
		}()
		close(start)
		wg.Wait()

		snapshot := h.o.Snapshot()
		if snapshot.InFlight || snapshot.Mood == domain.MoodThinking {
			t.Fatalf("iteration %d: send and reset left %+v", i, snapshot)
		}
	}
}

func TestZeroConfigUsesDefaultDelays(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.SideFactDelay != trigger.DefaultDelay {
		t.Fatalf("expected default side-fact delay, got %s", cfg.SideFactDelay)
	}
	if cfg.HappyRevert != 3*time.Second || cfg.ResetRevert != 2*time.Second {
		t.Fatalf("unexpected revert defaults %s/%s", cfg.HappyRevert, cfg.ResetRevert)
	}
	if cfg.Cadence != trigger.DefaultCadence {
		t.Fatalf("expected default cadence, got %d", cfg.Cadence)
	}
}

func TestClosedSessionRejectsWork(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.o.Close()
	h.o.Close()

	if err := h.o.SendUserMessage(context.Background(), "hi", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on send, got %v", err)
	}
	if err := h.o.ResetSession(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on reset, got %v", err)
	}
	if err := h.o.RequestSideFact(context.Background(), ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on side-fact, got %v", err)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no live timers after close, got %d", h.clock.Pending())
	}
}

const (
	defaultReply = "Great question! What do you think?"
	defaultFact  = "Did you know? Owls cannot move their eyes."
)

type harness struct {
	o          *Orchestrator
	clock      *timers.Manual
	chat       *fakeChat
	speech     *fakeSpeech
	facts      *fakeFacts
	recognizer *fakeRecognizer
	sink       *fakeSink
	events     *fakeEvents
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	cfg.Cadence = 5
	cfg.HappyRevert = 3 * time.Second
	cfg.ResetRevert = 2 * time.Second
	cfg.SideFactDelay = 5 * time.Second

	h := &harness{
		clock:      timers.NewManual(),
		chat:       newFakeChat(),
		speech:     newFakeSpeech(),
		facts:      newFakeFacts(defaultFact),
		recognizer: &fakeRecognizer{},
		sink:       &fakeSink{},
		events:     &fakeEvents{},
	}
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	h.o = NewOrchestrator(Collaborators{
		Chat:       h.chat,
		Speech:     h.speech,
		Facts:      h.facts,
		Recognizer: h.recognizer,
		Speaker:    h.sink,
		Events:     h.events,
		Scheduler:  h.clock,
		Now:        func() time.Time { return now },
	}, cfg, zerolog.Nop())
	t.Cleanup(h.o.Close)

	h.o.Start(context.Background())
	return h
}

type fakeChat struct {
	mu        sync.Mutex
	inits     int
	histories [][]domain.Message
	err       error
	gate      chan struct{}
	entered   chan struct{}
}

func newFakeChat() *fakeChat {
	return &fakeChat{entered: make(chan struct{}, 8)}
}

func (c *fakeChat) Initialize(context.Context, ports.ChatConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inits++
	return nil
}

func (c *fakeChat) Send(_ context.Context, history []domain.Message, _ string, _ *domain.Image) (string, error) {
	c.mu.Lock()
	c.histories = append(c.histories, history)
	gate, err := c.gate, c.err
	c.mu.Unlock()

	c.entered <- struct{}{}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return defaultReply, nil
}

func (c *fakeChat) hold() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	return c.gate
}

func (c *fakeChat) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeChat) history(i int) []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.histories[i]
}

func (c *fakeChat) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.histories)
}

func (c *fakeChat) initCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inits
}

type fakeSpeech struct {
	mu      sync.Mutex
	texts   []string
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{entered: make(chan struct{}, 8)}
}

func (s *fakeSpeech) Synthesize(_ context.Context, text string) (*domain.AudioPayload, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	gate, err := s.gate, s.err
	s.mu.Unlock()

	s.entered <- struct{}{}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &domain.AudioPayload{Data: []byte{1, 0, 2, 0}, MIMEType: "audio/L16;codec=pcm;rate=24000"}, nil
}

func (s *fakeSpeech) hold() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *fakeSpeech) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSpeech) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type fakeFacts struct {
	mu      sync.Mutex
	fact    string
	topics  []string
	gate    chan struct{}
	entered chan struct{}
}

func newFakeFacts(fact string) *fakeFacts {
	return &fakeFacts{fact: fact, entered: make(chan struct{}, 8)}
}

func (f *fakeFacts) Generate(_ context.Context, topic string) string {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	gate, fact := f.gate, f.fact
	f.mu.Unlock()

	f.entered <- struct{}{}
	if gate != nil {
		<-gate
	}
	return fact
}

func (f *fakeFacts) set(fact string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fact = fact
}

func (f *fakeFacts) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeFacts) topicsSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

type fakeRecognizer struct {
	availableErr error
}

func (r *fakeRecognizer) Available() error { return r.availableErr }

func (r *fakeRecognizer) Start(context.Context, ports.RecognitionConfig) (ports.RecognitionHandle, error) {
	return nil, errors.New("recognition not scripted")
}

type fakeSink struct {
	mu     sync.Mutex
	opened int
}

func (s *fakeSink) Open(domain.AudioFormat, io.Reader) (ports.PlaybackHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	return &fakePlayback{done: make(chan struct{})}, nil
}

func (s *fakeSink) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

type fakePlayback struct {
	once sync.Once
	done chan struct{}
}

func (p *fakePlayback) Start() {}

func (p *fakePlayback) Stop() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *fakePlayback) Done() <-chan struct{} { return p.done }

type fakeEvents struct {
	mu        sync.Mutex
	snapshots int
	last      domain.SessionSnapshot
	moods     []domain.Mood
	facts     []string
	captures  []domain.CaptureStatus
	errors    []domain.ErrorCode

	// Optional hooks, run before the event is recorded.
	beforeSnapshot func(domain.SessionSnapshot)
	beforeMood     func(domain.Mood)
}

func (e *fakeEvents) SessionChanged(snapshot domain.SessionSnapshot) {
	e.mu.Lock()
	hook := e.beforeSnapshot
	e.mu.Unlock()
	if hook != nil {
		hook(snapshot)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots++
	e.last = snapshot
}

func (e *fakeEvents) MoodChanged(mood domain.Mood) {
	e.mu.Lock()
	hook := e.beforeMood
	e.mu.Unlock()
	if hook != nil {
		hook(mood)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.moods = append(e.moods, mood)
}

func (e *fakeEvents) onSnapshot(hook func(domain.SessionSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beforeSnapshot = hook
}

func (e *fakeEvents) onMood(hook func(domain.Mood)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beforeMood = hook
}

func (e *fakeEvents) lastSnapshot() domain.SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *fakeEvents) SideFact(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facts = append(e.facts, text)
}

func (e *fakeEvents) CaptureChanged(status domain.CaptureStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captures = append(e.captures, status)
}

func (e *fakeEvents) SessionError(code domain.ErrorCode, _ string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, code)
}

func (e *fakeEvents) moodHistory() []domain.Mood {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Mood(nil), e.moods...)
}

func (e *fakeEvents) factHistory() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.facts...)
}

func (e *fakeEvents) errorCodes() []domain.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ErrorCode(nil), e.errors...)
}
