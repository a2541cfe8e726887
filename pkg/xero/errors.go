package xero

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies an API rejection for retry handling.
type ErrorKind string

const (
	// KindRateLimited means the tenant or app hit a request quota. Safe to
	// retry after the window resets.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransient covers server-side failures that may clear on retry.
	KindTransient ErrorKind = "transient"
	// KindPermanent covers rejections that retrying cannot fix, usually a
	// malformed or duplicate document.
	KindPermanent ErrorKind = "permanent"
)

const errorBodyReadLimit int64 = 2048

// APIError is the normalized form of any non-2xx Xero response.
type APIError struct {
	Kind            ErrorKind
	StatusCode      int
	RetryAfterDelay time.Duration
	Message         string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xero: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// RateLimited reports whether the error was a quota rejection.
func (e *APIError) RateLimited() bool {
	return e.Kind == KindRateLimited
}

// RetryAfter returns the server-suggested wait, or zero when not provided.
func (e *APIError) RetryAfter() time.Duration {
	return e.RetryAfterDelay
}

// Permanent reports whether retrying can never succeed.
func (e *APIError) Permanent() bool {
	return e.Kind == KindPermanent
}

// normalizeResponse maps a non-2xx response to an APIError. The body is read
// up to a small limit so oversized error payloads cannot balloon memory.
func normalizeResponse(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	message := strings.TrimSpace(string(raw))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		apiErr.RetryAfterDelay = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= http.StatusInternalServerError,
		resp.StatusCode == http.StatusRequestTimeout:
		apiErr.Kind = KindTransient
	default:
		apiErr.Kind = KindPermanent
	}

	return apiErr
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
