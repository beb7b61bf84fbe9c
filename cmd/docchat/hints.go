package main

import (
	"errors"
	"fmt"

	"docchat/internal/app"
	"docchat/internal/backend"
)

var (
	errLoginRequired = errors.New("not signed in: pass --token or set the token environment variable")
	errUpgradeNeeded = errors.New("plan limit reached: upgrade your plan to continue")
)

// explain turns a failed call into the message printed on exit.
func explain(err error) error {
	switch app.RedirectFor(err) {
	case app.RedirectLogin:
		return errLoginRequired
	case app.RedirectUpgrade:
		return errUpgradeNeeded
	}
	if errors.Is(err, backend.ErrFeatureLocked) {
		msg := backend.UserMessage(err)
		if msg == backend.DefaultFailureMessage {
			msg = "this feature is not available on your current plan"
		}
		return fmt.Errorf("%s (upgrade your plan to use it)", msg)
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return errors.New(backend.UserMessage(err))
	}
	return err
}
