package transfer

import "time"

// Policy decides whether a failed attempt should be retried and how long to
// wait before the next attempt. Backoff doubles per attempt and is capped at
// MaxDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Decision is the outcome of evaluating a failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide evaluates a failure on the given attempt (1-based). Non-recoverable
// errors never retry. Recoverable errors retry while attempt <= MaxRetries,
// so a task that exhausts retries has made exactly 1+MaxRetries attempts.
func (p Policy) Decide(attempt int, err error) Decision {
	if err == nil || !Recoverable(err) {
		return Decision{}
	}
	if attempt > p.MaxRetries {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.backoff(attempt)}
}

func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
