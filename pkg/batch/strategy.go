package batch

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Operation type keys for the shared strategy registry. Callers select a
// strategy by key so tuning stays centralized.
const (
	OpXeroAPI  = "xero_api"
	OpEmail    = "email"
	OpDatabase = "database"
)

// Strategy is an immutable retry policy for one class of dependency.
type Strategy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            time.Duration
}

var defaultStrategy = Strategy{
	MaxRetries:        3,
	BaseDelay:         time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2,
	Jitter:            500 * time.Millisecond,
}

// Registry holds named retry strategies. Read-only after construction.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry returns a registry preloaded with the strategies tuned for the
// dependencies this service talks to.
func NewRegistry() *Registry {
	return &Registry{
		strategies: map[string]Strategy{
			OpXeroAPI: {
				MaxRetries:        5,
				BaseDelay:         time.Second,
				MaxDelay:          time.Minute,
				BackoffMultiplier: 2,
				Jitter:            time.Second,
			},
			OpEmail: {
				MaxRetries:        3,
				BaseDelay:         2 * time.Second,
				MaxDelay:          30 * time.Second,
				BackoffMultiplier: 2,
				Jitter:            500 * time.Millisecond,
			},
			OpDatabase: {
				MaxRetries:        2,
				BaseDelay:         250 * time.Millisecond,
				MaxDelay:          5 * time.Second,
				BackoffMultiplier: 2,
				Jitter:            100 * time.Millisecond,
			},
		},
	}
}

// Register adds or replaces a named strategy.
func (r *Registry) Register(operationType string, s Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[operationType] = s
}

// Strategy returns the policy for the operation type, falling back to the
// default policy for unknown keys.
func (r *Registry) Strategy(operationType string) Strategy {
	if r != nil {
		if s, ok := r.strategies[operationType]; ok {
			return s
		}
	}
	return defaultStrategy
}

// RetryDelay computes the exponential-backoff-with-jitter delay for the given
// retry count: min(base * multiplier^retryCount, max) + random(0, jitter).
// The jitter term avoids synchronized retry storms when many items fail at once.
func RetryDelay(retryCount int, s Strategy) time.Duration {
	mult := s.BackoffMultiplier
	if mult <= 0 {
		mult = defaultStrategy.BackoffMultiplier
	}
	base := s.BaseDelay
	if base <= 0 {
		base = defaultStrategy.BaseDelay
	}

	delay := float64(base) * math.Pow(mult, float64(retryCount))
	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		delay = float64(s.MaxDelay)
	}

	d := time.Duration(delay)
	if s.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.Jitter)))
	}
	return d
}

// rateLimited is implemented by normalized dependency errors (see pkg/xero).
type rateLimited interface {
	RateLimited() bool
}

// retryAfterProvider exposes the server-suggested wait, when known.
type retryAfterProvider interface {
	RetryAfter() time.Duration
}

// permanent is implemented by normalized dependency errors whose rejection
// will not change on retry (see pkg/xero).
type permanent interface {
	Permanent() bool
}

// IsPermanentError reports whether the error is a terminal rejection such as
// a 400-class validation failure. Retrying these only burns the attempt
// budget against an answer that cannot change.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	var p permanent
	if errors.As(err, &p) {
		return p.Permanent()
	}
	return false
}

var rateLimitPhrases = []string{
	"rate limit",
	"429",
	"too many requests",
	"quota exceeded",
}

// IsRateLimitError reports whether the error represents an external quota
// rejection. Normalized errors answer directly; anything else is classified by
// message text since processors may surface raw errors from arbitrary clients.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var rl rateLimited
	if errors.As(err, &rl) {
		return rl.RateLimited()
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
