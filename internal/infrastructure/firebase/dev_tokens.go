package firebase

import (
	"context"
	"errors"
	"strings"
)

const devTokenPrefix = "dev-"

var ErrInvalidDevToken = errors.New("invalid development token")

// DevTokenVerifier accepts tokens of the form "dev-<uid>". It exists for
// local runs against the memory store and must never be wired in production.
type DevTokenVerifier struct{}

func (DevTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	uid := strings.TrimPrefix(token, devTokenPrefix)
	if uid == token || uid == "" {
		return "", ErrInvalidDevToken
	}
	return uid, nil
}
