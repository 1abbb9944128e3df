package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep returns a sleep func that records durations without waiting.
func recordingSleep(slept *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
}

func TestPollerSucceedsAfterRetries(t *testing.T) {
	var slept []time.Duration
	p := &Poller{MaxAttempts: 5, Min: 10 * time.Millisecond, Max: time.Second, Factor: 2, Sleep: recordingSleep(&slept)}

	calls := 0
	err := p.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
}

func TestPollerTimeout(t *testing.T) {
	var slept []time.Duration
	p := &Poller{MaxAttempts: 4, Min: time.Millisecond, Max: 3 * time.Millisecond, Factor: 2, Sleep: recordingSleep(&slept)}

	calls := 0
	err := p.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 4, calls)
	require.Len(t, slept, 3)
	assert.Equal(t, 3*time.Millisecond, slept[2], "capped at Max")
}

func TestPollerCheckErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	p := &Poller{MaxAttempts: 10, Sleep: func(context.Context, time.Duration) error { return nil }}
	calls := 0
	err := p.Wait(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPollerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{MaxAttempts: 10, Min: time.Hour, Max: time.Hour, Factor: 2}

	calls := 0
	err := p.Wait(ctx, func(context.Context) (bool, error) {
		calls++
		cancel()
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPollerNilCheck(t *testing.T) {
	assert.ErrorIs(t, NewPoller(1, 0, 0).Wait(context.Background(), nil), ErrNilParam)
}

func TestNewPollerDefaults(t *testing.T) {
	p := NewPoller(0, 0, 0)
	assert.Equal(t, DefaultPollAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultPollMin, p.Min)
	assert.Equal(t, DefaultPollMax, p.Max)

	p = NewPoller(3, 10*time.Second, time.Second)
	assert.Equal(t, 10*time.Second, p.Max, "max never below min")
}
