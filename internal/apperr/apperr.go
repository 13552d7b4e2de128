// Package apperr carries user-facing failures from the domain packages to the
// HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Forbidden
	NotFound
	RateLimited
	Upstream
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case RateLimited:
		return "rate_limited"
	case Upstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a failure with a message safe to show to the visitor.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set for RateLimited.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Limited builds a RateLimited error asking the visitor to retry after d.
func Limited(d time.Duration) *Error {
	return &Error{
		Kind:       RateLimited,
		Message:    fmt.Sprintf("Zu viele neue Termine. Bitte in %s erneut versuchen.", humanDuration(d)),
		RetryAfter: d,
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "einer Stunde"
		}
		return fmt.Sprintf("%d Stunden", int(d/time.Hour))
	case d >= time.Minute:
		m := int((d + time.Minute - 1) / time.Minute)
		if m == 1 {
			return "einer Minute"
		}
		return fmt.Sprintf("%d Minuten", m)
	default:
		s := int((d + time.Second - 1) / time.Second)
		if s <= 1 {
			return "einer Sekunde"
		}
		return fmt.Sprintf("%d Sekunden", s)
	}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
