// Package sandbox talks to the remote code executor.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedLanguage is returned (wrapped in a TransportError) when no runtime is configured for a language.
var ErrUnsupportedLanguage = errors.New("language not supported")

// Client executes a program once against one stdin.
// Every failure to obtain a result is reported as a *TransportError.
type Client interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// LanguageSupporter is implemented by clients that know their language set up front.
type LanguageSupporter interface {
	Supports(language string) bool
}

// Request is one execution of Code with Stdin.
type Request struct {
	Language string
	Code     string
	Stdin    string
	// TimeLimit bounds the run stage; zero means the client default.
	TimeLimit time.Duration
}

// Result is what the executor reported.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
}

// TransportError means the executor could not be reached or gave no usable answer.
type TransportError struct {
	Op         string
	Timeout    bool
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("sandbox %s: timed out: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("sandbox %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a TransportError caused by a deadline.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Timeout
}
