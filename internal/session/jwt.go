package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// JWTSource wraps another source and rejects tokens that are expired or, when
// a secret is configured, not signed with it. Without a secret, tokens that
// are not JWTs at all are passed through as opaque credentials. next may be
// nil when the source is only used to inspect tokens received from elsewhere.
type JWTSource struct {
	next   TokenSource
	secret []byte
	now    func() time.Time
}

func NewJWTSource(next TokenSource, secret string) *JWTSource {
	return &JWTSource{
		next:   next,
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (s *JWTSource) Token(ctx context.Context) (string, error) {
	token, err := s.next.Token(ctx)
	if err != nil {
		return "", err
	}
	if _, err := s.Claims(token); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrNoSession
		case len(s.secret) == 0 && errors.Is(err, jwt.ErrTokenMalformed):
			return token, nil
		}
		return "", err
	}
	return token, nil
}

// Claims parses the token. Signature verification only happens when a
// secret was configured; provider tokens signed with keys we do not hold are
// read unverified.
func (s *JWTSource) Claims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if len(s.secret) == 0 {
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		if claims.ExpiresAt != nil && !claims.ExpiresAt.After(s.now()) {
			return nil, jwt.ErrTokenExpired
		}
		return claims, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, jwt.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Subject returns the "sub" claim, used to attribute transcripts.
func (s *JWTSource) Subject(token string) (string, error) {
	claims, err := s.Claims(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
