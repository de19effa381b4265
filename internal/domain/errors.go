package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned by generation collaborators when no API key is configured.
	ErrMissingCredential = errors.New("missing credential")
	// ErrUpstreamFailure wraps failed or empty responses from a generation collaborator.
	ErrUpstreamFailure = errors.New("upstream failure")
)

// CaptureErrorKind classifies dictation failures.
type CaptureErrorKind string

const (
	CaptureUnsupported      CaptureErrorKind = "unsupported"
	CapturePermissionDenied CaptureErrorKind = "permission-denied"
	CaptureNetwork          CaptureErrorKind = "network"
	CaptureNoSpeech         CaptureErrorKind = "no-speech"
	CaptureAborted          CaptureErrorKind = "aborted"
	CaptureOther            CaptureErrorKind = "other"
)

// CaptureError is the typed error surface of a dictation session.
type CaptureError struct {
	Kind CaptureErrorKind
	Code string
	Err  error
}

func NewCaptureError(kind CaptureErrorKind, err error) *CaptureError {
	return &CaptureError{Kind: kind, Err: err}
}

func (e *CaptureError) Error() string {
	label := string(e.Kind)
	if e.Kind == CaptureOther && e.Code != "" {
		label = fmt.Sprintf("%s(%s)", e.Kind, e.Code)
	}
	if e.Err == nil {
		return "capture " + label
	}
	return fmt.Sprintf("capture %s: %v", label, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Silent reports whether the error must not be shown to the user.
func (e *CaptureError) Silent() bool {
	return e.Kind == CaptureNoSpeech || e.Kind == CaptureAborted
}

// AsCaptureError extracts a CaptureError from err, classifying anything
// else as CaptureOther.
func AsCaptureError(err error) *CaptureError {
	if err == nil {
		return nil
	}
	var captureErr *CaptureError
	if errors.As(err, &captureErr) {
		return captureErr
	}
	return &CaptureError{Kind: CaptureOther, Err: err}
}
