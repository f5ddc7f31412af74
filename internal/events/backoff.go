package events

import (
	"math/rand"
	"time"
)

const (
	jitterWindow       = 5 * time.Second
	defaultBackoffBase = 30 * time.Second
	defaultBackoffMax  = 15 * time.Minute
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// nextAttemptDelay returns the delay before the given retry, doubling from
// base per prior attempt and capped at max, plus a random jitter so retries
// from one failed sweep do not land on the same instant.
func nextAttemptDelay(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	return delay + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
