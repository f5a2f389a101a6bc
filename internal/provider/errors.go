package provider

import "fmt"

// CompletionError reports a failed completion request. StatusCode is zero for
// transport and decode failures.
type CompletionError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *CompletionError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s] %s", e.Provider, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}
