// Package traffic keeps a sliding window of request outcomes. The health
// endpoint reads the error rate from it and the capacity gauges read the
// request and denial counts.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one served request.
type Outcome int

const (
	// OutcomeSuccess is a request that completed with weather data.
	OutcomeSuccess Outcome = iota
	// OutcomeError is a request that failed in the workflow or upstream.
	OutcomeError
	// OutcomeDenied is a request rejected by the rate limiter (429).
	OutcomeDenied
)

// Samples older than this are pruned on every write.
const maxSampleAge = 5 * time.Minute

var defaultWindow Window

// RecordSuccess records a request that completed with weather data.
func RecordSuccess() { defaultWindow.Record(OutcomeSuccess) }

// RecordError records a request that failed (upstream error, timeout, parse
// failure).
func RecordError() { defaultWindow.Record(OutcomeError) }

// RecordDenied records a rate-limit denial.
func RecordDenied() { defaultWindow.Record(OutcomeDenied) }

// RequestCount returns the number of outcomes of any kind within the window.
func RequestCount(window time.Duration) int {
	return defaultWindow.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultWindow.DenialCount(window)
}

// ErrorRate returns (errors, total) within the window, where total counts
// successes and errors only. Denials never enter the error rate: a shed
// request says nothing about upstream health.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultWindow.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultWindow.Reset() }

// Window maintains a bounded history of outcome timestamps.
type Window struct {
	mu      sync.Mutex
	samples []sample
}

type sample struct {
	at   time.Time
	kind Outcome
}

// Record appends an outcome at the current time and prunes expired samples.
func (w *Window) Record(kind Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.samples = append(w.samples, sample{at: now, kind: kind})
	w.pruneLocked(now)
}

// RequestCount returns the number of outcomes of any kind within the window
// ending at now.
func (w *Window) RequestCount(window time.Duration) int {
	return w.count(window, func(Outcome) bool { return true })
}

// DenialCount returns the number of denials within the window ending at now.
func (w *Window) DenialCount(window time.Duration) int {
	return w.count(window, func(k Outcome) bool { return k == OutcomeDenied })
}

// ErrorRate returns (errors, total) within the window, denials excluded from
// both counts.
func (w *Window) ErrorRate(window time.Duration) (errors, total int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := time.Now().Add(-window)
	for _, s := range w.samples {
		if s.at.Before(cutoff) {
			continue
		}
		switch s.kind {
		case OutcomeError:
			errors++
			total++
		case OutcomeSuccess:
			total++
		}
	}
	return errors, total
}

// Reset clears all recorded outcomes.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = nil
}

func (w *Window) count(window time.Duration, match func(Outcome) bool) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for _, s := range w.samples {
		if !s.at.Before(cutoff) && match(s.kind) {
			n++
		}
	}
	return n
}

// pruneLocked drops samples older than maxSampleAge. Samples are appended in
// time order, so the expired prefix is contiguous. Must be called with the
// mutex held.
func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxSampleAge)
	i := 0
	for ; i < len(w.samples) && w.samples[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}
