package broker

import (
	"errors"
	"fmt"
	"strings"
)

// RemoteError is the structured failure surface of a Gateway. Classification
// downstream is driven by StatusCode when the transport provided one;
// free-text matching against Message is only a fallback for errors that
// arrive without a status.
type RemoteError struct {
	Op         string // gateway operation, e.g. "GetBars"
	Symbol     string // symbol in play, if any
	StatusCode int    // HTTP status, 0 if unknown
	Message    string
	Body       string // raw response body, if captured
	Err        error  // underlying transport error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Symbol != "" {
		b.WriteString(" ")
		b.WriteString(e.Symbol)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

// AsRemote extracts a *RemoteError from err's chain.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 0 if none is known.
func StatusOf(err error) int {
	if re, ok := AsRemote(err); ok {
		return re.StatusCode
	}
	return 0
}

// IsRateLimited reports whether err indicates the venue's rate limit was hit
// (HTTP 429, or a rate-limit message from a transport without status codes).
func IsRateLimited(err error) bool {
	if StatusOf(err) == 429 {
		return true
	}
	return containsFold(messageOf(err), "rate limit") || containsFold(messageOf(err), "too many requests")
}

// IsNotFound reports whether err indicates a not-found response.
func IsNotFound(err error) bool {
	if StatusOf(err) == 404 {
		return true
	}
	msg := messageOf(err)
	return strings.Contains(msg, "404") || containsFold(msg, "not found")
}

func messageOf(err error) string {
	if err == nil {
		return ""
	}
	if re, ok := AsRemote(err); ok {
		return re.Message
	}
	return err.Error()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
