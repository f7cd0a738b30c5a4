package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrAccountDisabled    = errors.New("account disabled")
)

// AccountLockedError carries the remaining lockout so the handler can
// tell the client when to retry.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter.Round(time.Second))
}
