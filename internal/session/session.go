// Package session provides the bearer credential accessor used by every
// backend call. Tokens are issued by an external auth provider; this package
// only reads them.
package session

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrNoSession means there is no active login. Callers treat it as
// "not authenticated", never as a transport failure.
var ErrNoSession = errors.New("no active session")

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticSource always returns the same token.
type StaticSource string

func (s StaticSource) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// EnvSource reads the token from an environment variable on every call, so a
// refreshed token is picked up without restarting.
type EnvSource struct {
	Key string
}

func (s EnvSource) Token(context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(s.Key))
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}
