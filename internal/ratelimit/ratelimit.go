package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer spaces consecutive page loads of a batch.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Feedback is implemented by pacers that adjust to scrape outcomes.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

// Jittered waits a random delay in [min, max) since the previous call. A zero
// range never waits, which is the default for a batch.
type Jittered struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	rnd        func(n int64) int64
}

func NewJittered(minDelay, maxDelay time.Duration) *Jittered {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Jittered{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rnd:      rand.Int63n,
	}
}

func (j *Jittered) Wait(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	delay := j.delay()
	if elapsed := time.Since(j.lastAction); delay > 0 && elapsed < delay {
		timer := time.NewTimer(delay - elapsed)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	j.lastAction = time.Now()
	return nil
}

func (j *Jittered) Delays() (time.Duration, time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.minDelay, j.maxDelay
}

func (j *Jittered) delay() time.Duration {
	if j.minDelay == j.maxDelay {
		return j.minDelay
	}
	return j.minDelay + time.Duration(j.rnd(int64(j.maxDelay-j.minDelay)))
}

// Adaptive widens its delays after repeated failures and narrows them again
// after a run of successes, never below the configured floor.
type Adaptive struct {
	*Jittered
	floor         time.Duration
	errorCount    int
	successCount  int
	maxErrorCount int
	backoffFactor float64
}

const (
	maxBackoffMin = 60 * time.Second
	maxBackoffMax = 120 * time.Second
)

func NewAdaptive(minDelay, maxDelay time.Duration) *Adaptive {
	return &Adaptive{
		Jittered:      NewJittered(minDelay, maxDelay),
		floor:         minDelay,
		maxErrorCount: 3,
		backoffFactor: 1.5,
	}
}

func (a *Adaptive) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.errorCount = 0

	if a.successCount > 5 {
		newMin := time.Duration(float64(a.minDelay) * 0.9)
		if newMin < a.floor {
			newMin = a.floor
		}
		a.minDelay = newMin
		if a.maxDelay < a.minDelay {
			a.maxDelay = a.minDelay
		}
		a.successCount = 0
	}
}

func (a *Adaptive) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.successCount = 0

	if a.errorCount >= a.maxErrorCount {
		a.minDelay = min(time.Duration(float64(a.minDelay)*a.backoffFactor), maxBackoffMin)
		a.maxDelay = min(time.Duration(float64(a.maxDelay)*a.backoffFactor), maxBackoffMax)
		a.errorCount = 0
	}
}
