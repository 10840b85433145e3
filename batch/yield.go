package batch

import (
	"context"
	"runtime"
	"time"
)

// Yielder is the scheduling point between records. It hands control back to
// the host (other goroutines, the UI loop, a pacing timer) and reports
// whether the run may continue. done is the number of records finished so
// far.
type Yielder interface {
	Yield(ctx context.Context, done int) error
}

// YieldFunc adapts a function to Yielder.
type YieldFunc func(ctx context.Context, done int) error

// Yield implements Yielder.
func (f YieldFunc) Yield(ctx context.Context, done int) error { return f(ctx, done) }

// Throttle yields the processor and optionally sleeps between records. Every
// BatchSize records it sleeps for BatchPause instead of Pause.
type Throttle struct {
	Pause      time.Duration
	BatchSize  int
	BatchPause time.Duration
}

// Yield implements Yielder.
func (t Throttle) Yield(ctx context.Context, done int) error {
	runtime.Gosched()
	d := t.Pause
	if t.BatchSize > 0 && done%t.BatchSize == 0 && t.BatchPause > 0 {
		d = t.BatchPause
	}
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return ctx.Err()
}
