package goszakup

import (
	"context"
	"sync"
	"time"
)

// rateWindow allows at most limit requests in any rolling window. A caller
// over the limit sleeps until the oldest request leaves the window.
type rateWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	times []time.Time // oldest first
}

func newRateWindow(limit int, window time.Duration) *rateWindow {
	return &rateWindow{limit: limit, window: window, now: time.Now}
}

// Wait blocks until a request may be sent and records it
func (w *rateWindow) Wait(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := w.now()
		cutoff := now.Add(-w.window)
		drop := 0
		for drop < len(w.times) && !w.times[drop].After(cutoff) {
			drop++
		}
		w.times = w.times[drop:]

		if len(w.times) < w.limit {
			w.times = append(w.times, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.times[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow returns the number of requests in the current window
func (w *rateWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := w.now().Add(-w.window)
	n := 0
	for _, t := range w.times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
