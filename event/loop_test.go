package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aptpod/mptcp-go/errors"
	. "github.com/aptpod/mptcp-go/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStartedLoop(t *testing.T, clk clock.Clock) *Loop {
	t.Helper()
	l := NewLoop(clk)
	l.Start()
	t.Cleanup(func() {
		l.Stop()
		<-l.Done()
	})
	return l
}

func TestLoop_FIFO(t *testing.T) {
	l := newStartedLoop(t, nil)
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestLoop_Do(t *testing.T) {
	l := newStartedLoop(t, nil)
	var v int
	require.NoError(t, l.Do(context.Background(), func() { v = 42 }))
	assert.Equal(t, 42, v)

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	l.Post(func() { <-block })
	cancel()
	assert.ErrorIs(t, l.Do(ctx, func() {}), context.Canceled)
	close(block)
}

func TestLoop_Stop(t *testing.T) {
	l := NewLoop(nil)
	l.Start()

	require.NoError(t, l.Do(context.Background(), func() { l.Stop() }))
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	err := l.Do(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, err, errors.ErrConnectionClosed)
}

func TestLoop_StopBeforeStart(t *testing.T) {
	l := NewLoop(nil)
	l.Stop()
	<-l.Done()
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
}

func TestLoop_StopDiscardsPending(t *testing.T) {
	l := NewLoop(nil)
	l.Start()
	var ran bool
	block := make(chan struct{})
	l.Post(func() { <-block; l.Stop() })
	l.Post(func() { ran = true })
	close(block)
	<-l.Done()
	assert.False(t, ran)
}

func TestTimer(t *testing.T) {
	mock := clock.NewMock()
	l := newStartedLoop(t, mock)

	fired := make(chan struct{}, 2)
	var timer, cancelled *Timer
	require.NoError(t, l.Do(context.Background(), func() {
		timer = l.AfterFunc(2*time.Second, func() { fired <- struct{}{} })
		cancelled = l.AfterFunc(time.Second, func() { fired <- struct{}{} })
		cancelled.Cancel()
		assert.True(t, timer.Pending())
		assert.False(t, cancelled.Pending())
	}))

	mock.Add(time.Second)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Len(t, fired, 0)

	mock.Add(time.Second)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	require.NoError(t, l.Do(context.Background(), func() {
		assert.False(t, timer.Pending())
	}))

	var nilTimer *Timer
	assert.NotPanics(t, nilTimer.Cancel)
	assert.Equal(t, clock.Clock(mock), l.Clock())
}

func TestTimer_CancelAfterFire(t *testing.T) {
	mock := clock.NewMock()
	l := newStartedLoop(t, mock)

	var count int
	var timer *Timer
	require.NoError(t, l.Do(context.Background(), func() {
		timer = l.AfterFunc(time.Second, func() { count++ })
	}))

	block := make(chan struct{})
	l.Post(func() {
		<-block
		// 発火したコールバックはこの関数の後ろで待っている
		timer.Cancel()
	})
	mock.Add(time.Second)
	close(block)

	require.NoError(t, l.Do(context.Background(), func() {}))
	require.NoError(t, l.Do(context.Background(), func() {
		assert.Equal(t, 0, count)
	}))
}
