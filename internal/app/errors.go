package app

import (
	"context"
	"errors"

	"docchat/internal/backend"
	"docchat/internal/session"
)

var (
	ErrEmptyQuery        = errors.New("query is empty")
	ErrQueryInFlight     = errors.New("a query is already streaming")
	ErrViewClosed        = errors.New("view is closed")
	ErrInvalidTarget     = errors.New("exactly one of document id or session id is required")
	ErrInvalidOutput     = errors.New("unknown output type")
	ErrAlreadyOpen       = errors.New("document view already opened")
	ErrNoConversation    = errors.New("conversation key or subject is empty")
	ErrTranscriptEnqueue = errors.New("transcript enqueue failed")
)

const featureLockedMessage = "This mode is not available on your current plan."

// Redirect tells the host where to send the user instead of showing an
// inline error.
type Redirect string

const (
	RedirectNone    Redirect = ""
	RedirectLogin   Redirect = "login"
	RedirectUpgrade Redirect = "upgrade"
)

// outcome is how a failed call should surface in a view.
type outcome struct {
	redirect  Redirect
	message   string
	resetMode bool
	silent    bool
}

func classify(err error) outcome {
	switch {
	case errors.Is(err, context.Canceled):
		return outcome{silent: true}
	case errors.Is(err, session.ErrNoSession), errors.Is(err, backend.ErrUnauthorized):
		return outcome{redirect: RedirectLogin}
	case backend.IsQuotaExceeded(err):
		return outcome{redirect: RedirectUpgrade}
	case errors.Is(err, backend.ErrFeatureLocked):
		msg := backend.UserMessage(err)
		if msg == backend.DefaultFailureMessage {
			msg = featureLockedMessage
		}
		return outcome{message: msg, resetMode: true}
	default:
		return outcome{message: backend.UserMessage(err)}
	}
}

// RedirectFor maps an error to the flow the user should be sent to, if any.
func RedirectFor(err error) Redirect {
	return classify(err).redirect
}
