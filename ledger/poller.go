package ledger

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// Default receipt poll settings.
const (
	DefaultPollAttempts = 10
	DefaultPollMin      = 500 * time.Millisecond
	DefaultPollMax      = 8 * time.Second
	DefaultPollFactor   = 2
)

// CheckFunc reports whether the awaited condition holds. A non-nil error
// aborts the wait.
type CheckFunc func(ctx context.Context) (bool, error)

// Poller waits for a condition with bounded exponential backoff.
//
// Wait calls the check up to MaxAttempts times. Between attempts it sleeps
// for the next backoff duration. It returns ErrTimeout when every attempt
// came back false, and ctx.Err() when the context ends first.
type Poller struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      bool

	// Sleep pauses between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller returns a Poller with the given bounds. Zero values fall back to
// the package defaults.
func NewPoller(attempts int, min, max time.Duration) *Poller {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if min <= 0 {
		min = DefaultPollMin
	}
	if max < min {
		max = DefaultPollMax
		if max < min {
			max = min
		}
	}
	return &Poller{
		MaxAttempts: attempts,
		Min:         min,
		Max:         max,
		Factor:      DefaultPollFactor,
		Jitter:      true,
	}
}

// Wait polls check until it returns true, fails, or the budget runs out.
func (p *Poller) Wait(ctx context.Context, check CheckFunc) error {
	if check == nil {
		return ErrNilParam
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: p.Factor, Jitter: p.Jitter}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= attempts {
			return ErrTimeout
		}
		if err := sleep(ctx, b.Duration()); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
