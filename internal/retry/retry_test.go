package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mptcp-go/internal/retry"
)

func TestNextSleep(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{name: "first", attempt: 0, jitter: 0.5, want: 100 * time.Millisecond},
		{name: "doubled", attempt: 3, jitter: 0.5, want: 800 * time.Millisecond},
		{name: "capped", attempt: 100, jitter: 0.5, want: time.Second},
		{name: "min jitter", attempt: 1, jitter: 0, want: 100 * time.Millisecond},
		{name: "max jitter", attempt: 1, jitter: 1, want: 300 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			FixJitter(t, tt.jitter)
			assert.Equal(t, tt.want, NextSleep(tt.attempt, 100*time.Millisecond, time.Second))
		})
	}
}

func TestBackoff_Do(t *testing.T) {
	FixJitter(t, 0.5)
	var attempts []int
	start := time.Now()
	err := Backoff{BaseInterval: 10 * time.Millisecond}.Do(context.Background(), func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestBackoff_Do_MaxRetries(t *testing.T) {
	var count int
	err := Backoff{MaxRetries: 2, BaseInterval: time.Millisecond}.Do(context.Background(), func(int) error {
		count++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, count)
}

func TestBackoff_Do_Permanent(t *testing.T) {
	var count int
	err := Backoff{}.Do(context.Background(), func(int) error {
		count++
		return Permanent(assert.AnError)
	})
	assert.Equal(t, assert.AnError, err)
	assert.Equal(t, 1, count)
}

func TestBackoff_Do_Canceled(t *testing.T) {
	clk := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Backoff{Clock: clk}.Do(ctx, func(int) error {
			called <- struct{}{}
			return assert.AnError
		})
	}()
	<-called
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, assert.AnError)
}
