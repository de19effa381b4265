package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"leo/internal/bootstrap"
	"leo/internal/config"
	"leo/internal/domain"
	"leo/internal/persona"
	"leo/internal/usecase"
)

const (
	eventSession = "leo:session"
	eventMood    = "leo:mood"
	eventFact    = "leo:fact"
	eventCapture = "leo:capture"
	eventError   = "leo:error"
)

type emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})

type confirmFunc func(ctx context.Context, message string) (bool, error)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	logger zerolog.Logger
	emit   emitFunc
	ask    confirmFunc

	orchestrator *usecase.Orchestrator
	cfg          config.Config
	bootErr      error
}

// NewApp takes the loaded configuration; a non-nil cfgErr is reported to
// the UI once the window is up.
func NewApp(cfg config.Config, cfgErr error, logger zerolog.Logger) *App {
	return &App{
		cfg:     cfg,
		bootErr: cfgErr,
		logger:  logger,
		emit:    runtime.EventsEmit,
		ask:     confirmDialog,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	if a.bootErr != nil {
		a.SessionError(domain.ErrorCodeStartup, a.bootErr.Error())
		return
	}

	services, err := bootstrap.Build(a.cfg, a, a.logger)
	if err != nil {
		a.bootErr = err
		a.logger.Error().Err(err).Msg("startup failed")
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.orchestrator = services.Orchestrator
	a.orchestrator.Start(ctx)
}

func (a *App) shutdown(_ context.Context) {
	if a.orchestrator != nil {
		a.orchestrator.Close()
	}
}

// SendMessage sends typed or dictated text with an optional image data URL.
// Sends made while busy or with nothing to say are ignored; chat failures
// reach the UI through the session state.
func (a *App) SendMessage(text string, imageDataURL string) error {
	if err := a.requireReady(); err != nil {
		return err
	}

	image, err := domain.ImageFromDataURL(imageDataURL)
	if err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}

	err = a.orchestrator.SendUserMessage(a.ctx, text, image)
	if errors.Is(err, usecase.ErrClosed) {
		return err
	}
	if err != nil {
		a.logger.Debug().Err(err).Msg("send did not complete")
	}
	return nil
}

// NewTopic asks for confirmation, then resets the conversation.
func (a *App) NewTopic() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}

	ok, err := a.ask(a.ctx, persona.ResetConfirmation)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := a.orchestrator.ResetSession(a.ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RequestFunFact fetches a side-fact on demand.
func (a *App) RequestFunFact() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.orchestrator.RequestSideFact(a.ctx, ""); err != nil && !errors.Is(err, usecase.ErrRequestInFlight) {
		return err
	}
	return nil
}

func (a *App) DismissFunFact() {
	if a.orchestrator != nil {
		a.orchestrator.DismissSideFact()
	}
}

func (a *App) StartListening() (domain.CaptureStatus, error) {
	return a.dictation(func(o *usecase.Orchestrator) error { return o.StartDictation() })
}

func (a *App) StopListening() (domain.CaptureStatus, error) {
	return a.dictation(func(o *usecase.Orchestrator) error { return o.StopDictation() })
}

func (a *App) AbortListening() (domain.CaptureStatus, error) {
	return a.dictation(func(o *usecase.Orchestrator) error { return o.AbortDictation() })
}

func (a *App) ToggleListening() (domain.CaptureStatus, error) {
	return a.dictation(func(o *usecase.Orchestrator) error { return o.ToggleDictation() })
}

// SetInput mirrors the text box so dictation appends to what was typed.
func (a *App) SetInput(text string) {
	if a.orchestrator != nil {
		a.orchestrator.SetInput(text)
	}
}

func (a *App) SetMuted(muted bool) {
	if a.orchestrator != nil {
		a.orchestrator.SetMuted(muted)
	}
}

// GetState returns the current session snapshot.
func (a *App) GetState() domain.SessionSnapshot {
	if a.orchestrator == nil {
		snapshot := domain.SessionSnapshot{
			Mood:    domain.MoodNeutral,
			Muted:   a.cfg.Session.Muted,
			Capture: domain.CaptureStatus{State: domain.CaptureStateIdle},
		}
		if a.bootErr != nil {
			snapshot.LastError = a.bootErr.Error()
		}
		return snapshot
	}
	return a.orchestrator.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"name":           persona.Name,
		"chatModel":      a.cfg.Gemini.ChatModel,
		"speechModel":    a.cfg.Gemini.SpeechModel,
		"voice":          a.cfg.Gemini.Voice,
		"geminiKey":      strconv.FormatBool(a.cfg.Gemini.APIKey != ""),
		"transcription":  "Deepgram",
		"deepgramModel":  a.cfg.Deepgram.Model,
		"language":       a.cfg.Deepgram.Language,
		"deepgramKey":    strconv.FormatBool(a.cfg.Deepgram.APIKey != ""),
		"audioBackend":   a.cfg.Audio.Backend,
		"audioInput":     a.cfg.Audio.InputDevice,
		"rulesFile":      a.cfg.Rules.Path,
		"factCadence":    strconv.Itoa(a.cfg.Session.FactCadence),
		"continuousDict": strconv.FormatBool(a.cfg.Audio.Continuous),
	}
}

func (a *App) dictation(action func(o *usecase.Orchestrator) error) (domain.CaptureStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.CaptureStatus{}, err
	}

	err := action(a.orchestrator)
	status := a.orchestrator.Snapshot().Capture

	var captureErr *domain.CaptureError
	switch {
	case err == nil, errors.Is(err, usecase.ErrRequestInFlight), errors.As(err, &captureErr):
		return status, nil
	default:
		return status, err
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.orchestrator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionChanged emits the session snapshot to the frontend.
func (a *App) SessionChanged(snapshot domain.SessionSnapshot) {
	a.send(eventSession, snapshot)
}

func (a *App) MoodChanged(mood domain.Mood) {
	a.send(eventMood, map[string]string{"mood": string(mood)})
}

func (a *App) SideFact(text string) {
	a.send(eventFact, map[string]string{"text": text})
}

func (a *App) CaptureChanged(status domain.CaptureStatus) {
	a.send(eventCapture, status)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) send(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeChat:
		return persona.ErrorMessage
	case domain.ErrorCodeCapture:
		return "Dictation problem"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func confirmDialog(ctx context.Context, message string) (bool, error) {
	choice, err := runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         persona.Name,
		Message:       message,
		Buttons:       []string{"Yes", "No"},
		DefaultButton: "No",
		CancelButton:  "No",
	})
	if err != nil {
		return false, err
	}
	choice = strings.TrimSpace(choice)
	return strings.EqualFold(choice, "Yes") || strings.EqualFold(choice, "Ok"), nil
}
