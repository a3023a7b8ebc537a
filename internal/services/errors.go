package services

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrDessertNotFound     = errors.New("dessert not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUpstreamRateLimited = errors.New("upstream provider is rate limiting requests")
	ErrUpstreamGeneration  = errors.New("upstream generation failed")
	ErrInvalidCredits      = errors.New("credits must not be negative")
)

// ValidationError is a user-correctable rejection of the ingredient input.
type ValidationError struct {
	Message string
	Blocked bool
	Term    string
}

func (e *ValidationError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("blocked ingredient term %q", e.Term)
	}
	return e.Message
}

// PersistenceError wraps a storage failure during the persisting phase of a generation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
