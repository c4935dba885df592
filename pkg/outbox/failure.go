package outbox

import (
	"math/rand"
	"time"
	"unicode/utf8"
)

// backoff doubles from one second per attempt, capped at limit.
func backoff(attempts int, limit time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if attempts > 32 {
		return limit
	}
	d := time.Second << (attempts - 1)
	if d > limit {
		return limit
	}
	return d
}

func jitter(r *rand.Rand, limit time.Duration) time.Duration {
	if r == nil || limit <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(limit) + 1)) //nolint:gosec
}

// truncateError cuts the message to maxBytes without splitting a rune.
func truncateError(err error, maxBytes int) string {
	if err == nil || maxBytes <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= maxBytes {
		return s
	}
	s = s[:maxBytes]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
