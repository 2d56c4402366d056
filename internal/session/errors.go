package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/editorialops/referee-monitor/internal/driver"
)

// AuthenticationError means a session could not be established. It is fatal for the run.
type AuthenticationError struct {
	Platform string
	Step     string
	Message  string
	Cause    error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed for %s at %s: %s: %v", e.Platform, e.Step, e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication failed for %s at %s: %s", e.Platform, e.Step, e.Message)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// SessionDeadError means the remote session died and could not be recovered
type SessionDeadError struct {
	Platform string
	Step     string
	Cause    error
}

func (e *SessionDeadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session dead for %s at %s: %v", e.Platform, e.Step, e.Cause)
	}
	return fmt.Sprintf("session dead for %s at %s", e.Platform, e.Step)
}

func (e *SessionDeadError) Unwrap() error {
	return e.Cause
}

// ErrTerminated is returned for any step attempted after the session was terminated
var ErrTerminated = errors.New("session terminated")

var deadMarkers = []string{
	"connection refused",
	"connection_refused",
	"invalid session",
	"no such session",
	"unreachable",
	"name_not_resolved",
	"target closed",
	"session closed",
	"browser closed",
	"invalid context",
}

// IsDeadSession classifies an error as the remote session being gone
func IsDeadSession(err error) bool {
	if err == nil {
		return false
	}
	var dead *SessionDeadError
	if errors.As(err, &dead) || errors.Is(err, driver.ErrBrowserGone) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range deadMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
