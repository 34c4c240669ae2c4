package courier

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrLLM is a provider-level failure that is not an HTTP status error,
// such as an unparseable response body.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx response from an upstream API.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed Retry-After header; 0 when absent
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrEmptyResponse is returned when a provider answers with neither text
// nor tool calls.
var ErrEmptyResponse = errors.New("empty response")

// ParseRetryAfter parses a Retry-After header value given either as
// delay-seconds or as an HTTP date. Unparseable or past values yield 0.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
