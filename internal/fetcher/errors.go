package fetcher

import "fmt"

const maxErrorBody = 512

// ConfigError reports a missing or invalid setting. It is returned before
// any network request is made.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s config: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError reports a network failure or a non-success HTTP status.
// Body holds the last response body, if any.
type TransportError struct {
	Source     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request: %v", e.Source, e.Err)
	}
	msg := fmt.Sprintf("%s API error: %d", e.Source, e.StatusCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + truncate(e.Body, maxErrorBody)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// FormatError reports a response body that is not JSON or lacks the
// expected structure.
type FormatError struct {
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s parse: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
