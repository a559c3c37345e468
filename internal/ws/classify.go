package ws

import (
	"errors"
	"net/http"
)

// Class buckets a connect failure for the route classifier.
type Class int

const (
	// Intermittent failures are worth trying the next route for.
	Intermittent Class = iota

	// RetryLater means the server told us to back off (rate limiting).
	RetryLater

	// Fatal failures will not be fixed by another route.
	Fatal
)

// Classify decides how a per-route connect failure should steer the
// attempt. Network-level trouble (timeouts, resets, refused connections,
// resolution failures) is intermittent: another route may well work. A
// server that actively rejected the upgrade was reached and said no, which
// no amount of re-routing will change.
func Classify(err error) Class {
	var se *StatusError
	if !errors.As(err, &se) {
		return Intermittent
	}
	switch {
	case se.Code == http.StatusTooManyRequests:
		return RetryLater
	case se.Code >= 400 && se.Code < 500:
		return Fatal
	default:
		// 5xx from a proxy or front is as transient as a reset.
		return Intermittent
	}
}
