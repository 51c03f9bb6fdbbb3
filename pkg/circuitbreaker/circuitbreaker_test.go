package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("redis", WithFailureThreshold(2))
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	var transitions []string
	cb := New("redis",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Second),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
		withClock(clk.now),
	)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	clk.advance(5 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	clk.advance(5 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	cb := New("redis", WithFailureThreshold(1), WithTimeout(time.Second), withClock(clk.now))
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	clk.advance(time.Second)
	require.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestBreaker_IsFailureIgnoresExpectedErrors(t *testing.T) {
	miss := errors.New("miss")
	cb := New("redis",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, miss) }),
	)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return miss })
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 3, cb.Counts().TotalSuccesses)
}

func TestBreaker_Reset(t *testing.T) {
	cb := ForBackingService("redis", nil, nil)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Counts().Requests)
	assert.Equal(t, "redis", cb.Name())
}
