package supervise

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{Initial: time.Millisecond, Max: 5 * time.Millisecond}

func TestRunRestartsUntilRetriesSpent(t *testing.T) {
	p := fast
	p.MaxRetries = 3

	var calls atomic.Int32
	boom := errors.New("boom")
	err := Run(context.Background(), p, "test", func(context.Context) error {
		calls.Add(1)
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(4), calls.Load())
}

func TestRunRestartsCleanExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	err := Run(ctx, fast, "test", func(context.Context) error {
		if calls.Add(1) == 5 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(5), calls.Load())
}

func TestRunPermanentStops(t *testing.T) {
	fatal := errors.New("fatal")
	var calls atomic.Int32
	err := Run(context.Background(), fast, "test", func(context.Context) error {
		calls.Add(1)
		return Permanent(fatal)
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunStopsWhileWaiting(t *testing.T) {
	p := Policy{Initial: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Run(ctx, p, "test", func(context.Context) error { return errors.New("x") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
