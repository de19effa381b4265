package capture

import (
	"fmt"

	"leo/internal/domain"
)

// Describe renders a capture error as a short notice for the child.
func Describe(err *domain.CaptureError) string {
	if err == nil {
		return ""
	}
	switch err.Kind {
	case domain.CaptureUnsupported:
		return "Voice typing isn't available on this computer. You can still type!"
	case domain.CapturePermissionDenied:
		return "I can't hear you yet. Ask a grown-up to let Leo use the microphone."
	case domain.CaptureNetwork:
		return "I couldn't reach the listening service. Check the internet and try again."
	case domain.CaptureNoSpeech:
		return "I didn't hear anything. Try again?"
	case domain.CaptureAborted:
		return ""
	}
	if err.Code != "" {
		return fmt.Sprintf("Something went wrong with the microphone (%s).", err.Code)
	}
	return "Something went wrong with the microphone."
}
